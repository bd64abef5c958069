package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/sameehj/strava-mcp/pkg/tool"
)

// Handler answers MCP JSON-RPC requests on top of a tool dispatcher. It is
// shared by every transport and session.
type Handler struct {
	dispatcher   *tool.Dispatcher
	info         ServerInfo
	instructions string
	logger       *slog.Logger
}

func NewHandler(dispatcher *tool.Dispatcher, info ServerInfo) *Handler {
	return &Handler{dispatcher: dispatcher, info: info}
}

func (h *Handler) SetLogger(logger *slog.Logger) {
	h.logger = logger
}

// SetInstructions sets the text returned to clients on initialize.
func (h *Handler) SetInstructions(text string) {
	h.instructions = text
}

func (h *Handler) Info() ServerInfo {
	return h.info
}

// Handle processes one request. It returns nil for notifications.
func (h *Handler) Handle(ctx context.Context, req Request) *Response {
	if req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request", "missing method")
	}

	var resp *Response
	switch req.Method {
	case "initialize":
		resp = h.handleInitialize(req)
	case "ping":
		resp = resultResponse(req.ID, map[string]any{})
	case "tools/list":
		resp = resultResponse(req.ID, toolsListResult{Tools: h.listTools()})
	case "tools/call":
		resp = h.handleToolCall(ctx, req)
	case "notifications/initialized", "notifications/cancelled":
		return nil
	default:
		resp = errorResponse(req.ID, CodeMethodNotFound, "method not found", req.Method)
	}

	if req.IsNotification() {
		return nil
	}
	return resp
}

// HandleMessage decodes payload as a single request and handles it. Decode
// failures produce a parse-error response.
func (h *Handler) HandleMessage(ctx context.Context, payload []byte) *Response {
	var raw json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		h.logWarn("mcp_parse_error", "error", err)
		return errorResponse(nil, CodeParseError, "parse error", err.Error())
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		h.logWarn("mcp_invalid_request", "error", err)
		return errorResponse(envelopeID(raw), CodeInvalidRequest, "invalid request", err.Error())
	}
	return h.Handle(ctx, req)
}

// envelopeID recovers the id of a message that is valid JSON but not a valid
// request. Ids that are neither strings nor numbers are dropped.
func envelopeID(raw json.RawMessage) json.RawMessage {
	var envelope struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.ID) == 0 {
		return nil
	}
	switch envelope.ID[0] {
	case '"', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return envelope.ID
	}
	return nil
}

func (h *Handler) handleInitialize(req Request) *Response {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid params", err.Error())
		}
	}
	h.logInfo("mcp_initialize", "client", params.ClientInfo.Name, "protocol", params.ProtocolVersion)
	return resultResponse(req.ID, initializeResult{
		ProtocolVersion: negotiateVersion(params.ProtocolVersion),
		Capabilities: map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		ServerInfo:   h.info,
		Instructions: h.instructions,
	})
}

func negotiateVersion(requested string) string {
	if slices.Contains(supportedProtocolVersions, requested) {
		return requested
	}
	return LatestProtocolVersion
}

func (h *Handler) listTools() []Tool {
	descriptors := h.dispatcher.Registry().List()
	out := make([]Tool, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: tool.SchemaDocument(d.InputSchema),
		})
	}
	return out
}

func (h *Handler) handleToolCall(ctx context.Context, req Request) *Response {
	var call toolCallParams
	if err := json.Unmarshal(req.Params, &call); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params", err.Error())
	}
	if call.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params", "missing tool name")
	}

	res, err := h.dispatcher.Dispatch(ctx, call.Name, call.Arguments)
	if err == nil {
		return resultResponse(req.ID, res)
	}

	var terr *tool.Error
	if !errors.As(err, &terr) {
		return errorResponse(req.ID, CodeInternalError, "internal error", nil)
	}
	switch terr.Code {
	case tool.CodeUnknownTool:
		return errorResponse(req.ID, CodeInvalidParams, terr.Message, map[string]any{"tool": call.Name})
	case tool.CodeInvalidArguments:
		return errorResponse(req.ID, CodeInvalidParams, terr.Message, map[string]any{
			"tool":   call.Name,
			"issues": terr.Issues,
		})
	default:
		return resultResponse(req.ID, tool.Failure(terr.Message))
	}
}

func (h *Handler) logInfo(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Info(msg, args...)
	}
}

func (h *Handler) logWarn(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, args...)
	}
}
