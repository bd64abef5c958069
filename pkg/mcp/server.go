package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/sameehj/strava-mcp/pkg/tool"
)

// Framing is the wire framing of one stdio message.
type Framing int

const (
	// FramingLine is newline-delimited JSON, as the MCP stdio transport uses.
	FramingLine Framing = iota
	// FramingHeader is LSP-style Content-Length framing.
	FramingHeader
)

// StdioServer serves MCP over a byte stream, one request at a time. The next
// message is not read until the previous response has been written.
type StdioServer struct {
	handler *Handler
	logger  *slog.Logger
}

func NewStdioServer(handler *Handler) *StdioServer {
	return &StdioServer{handler: handler}
}

func (s *StdioServer) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Serve runs the request loop until reader hits EOF or ctx is cancelled.
// Responses use the framing of the request they answer. Cancellation takes
// effect even while a read is blocked; a reader that is also an io.Closer is
// closed so the pending read returns.
func (s *StdioServer) Serve(ctx context.Context, reader io.Reader, writer io.Writer) error {
	bufWriter := bufio.NewWriter(writer)
	messages := make(chan readResult)
	next := make(chan struct{})
	done := make(chan struct{})
	defer close(done)

	go readLoop(bufio.NewReader(reader), messages, next, done)

	if closer, ok := reader.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	for {
		var msg readResult
		select {
		case <-ctx.Done():
			return nil
		case msg = <-messages:
		}
		if ctx.Err() != nil {
			return nil
		}
		if msg.err != nil {
			if errors.Is(msg.err, io.EOF) {
				return nil
			}
			s.logError("mcp_read_failed", "error", msg.err)
			return fmt.Errorf("%w: read message: %v", tool.ErrTransport, msg.err)
		}

		if err := s.answer(ctx, bufWriter, msg); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case next <- struct{}{}:
		}
	}
}

func (s *StdioServer) answer(ctx context.Context, w *bufio.Writer, msg readResult) error {
	resp := s.handler.HandleMessage(ctx, msg.payload)
	if resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		s.logError("mcp_encode_failed", "error", err)
		data, _ = json.Marshal(errorResponse(resp.ID, CodeInternalError, "internal error", nil))
	}
	if err := writeMessage(w, data, msg.framing); err != nil {
		s.logError("mcp_write_failed", "error", err)
		return fmt.Errorf("%w: write message: %v", tool.ErrTransport, err)
	}
	return nil
}

type readResult struct {
	payload []byte
	framing Framing
	err     error
}

// readLoop reads one message at a time and waits on next before reading the
// following one, so requests are still answered strictly in order.
func readLoop(r *bufio.Reader, out chan<- readResult, next <-chan struct{}, done <-chan struct{}) {
	for {
		payload, framing, err := readMessage(r)
		select {
		case out <- readResult{payload: payload, framing: framing, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
		select {
		case <-next:
		case <-done:
			return
		}
	}
}

// ServeStdio serves on the process's standard streams.
func (s *StdioServer) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

func writeMessage(w *bufio.Writer, payload []byte, framing Framing) error {
	if framing == FramingHeader {
		if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return err
		}
		return w.Flush()
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// readMessage reads either a single line of JSON or a Content-Length framed
// body, skipping blank lines between messages.
func readMessage(r *bufio.Reader) ([]byte, Framing, error) {
	for {
		line, err := r.ReadString('\n')
		if err != nil && len(line) == 0 {
			return nil, FramingLine, err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(trimmed) == "" {
			if err != nil {
				return nil, FramingLine, err
			}
			continue
		}
		if !isHeaderLine(trimmed) {
			return []byte(strings.TrimSpace(trimmed)), FramingLine, nil
		}

		contentLength, perr := parseContentLength(trimmed)
		if perr != nil {
			return nil, FramingHeader, perr
		}
		for {
			headerLine, readErr := r.ReadString('\n')
			if readErr != nil && len(headerLine) == 0 {
				return nil, FramingHeader, readErr
			}
			header := strings.TrimRight(headerLine, "\r\n")
			if header == "" {
				break
			}
			if strings.HasPrefix(strings.ToLower(header), "content-length:") {
				length, lerr := parseContentLength(header)
				if lerr != nil {
					return nil, FramingHeader, lerr
				}
				contentLength = length
			}
		}

		if contentLength <= 0 {
			return nil, FramingHeader, errors.New("missing Content-Length")
		}
		payload := make([]byte, contentLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, FramingHeader, err
		}
		return payload, FramingHeader, nil
	}
}

func isHeaderLine(line string) bool {
	if strings.HasPrefix(strings.TrimSpace(line), "{") || strings.HasPrefix(strings.TrimSpace(line), "[") {
		return false
	}
	name, _, ok := strings.Cut(line, ":")
	return ok && !strings.ContainsAny(name, " \t\"{")
}

func parseContentLength(header string) (int, error) {
	name, value, _ := strings.Cut(header, ":")
	if !strings.EqualFold(strings.TrimSpace(name), "content-length") {
		return 0, nil
	}
	length, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid Content-Length %q: %w", value, err)
	}
	return length, nil
}

func (s *StdioServer) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
