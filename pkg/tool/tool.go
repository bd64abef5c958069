package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ExecuteFunc performs the work of a tool with arguments that already passed
// schema validation.
type ExecuteFunc func(ctx context.Context, args Args) (*Result, error)

// Descriptor is the static description of one callable tool.
type Descriptor struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Execute     ExecuteFunc
}

// Content is one item of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the payload returned by a tool call.
type Result struct {
	Content           []Content `json:"content"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	IsError           bool      `json:"isError,omitempty"`
}

// Text returns a result holding a single text block.
func Text(text string) *Result {
	return &Result{Content: []Content{{Type: "text", Text: text}}}
}

// TextWithData returns a text result that also carries structured content.
// Non-object data is wrapped under "items" since structured content must be
// a JSON object.
func TextWithData(text string, data any) *Result {
	res := Text(text)
	switch v := data.(type) {
	case nil:
	case map[string]any:
		res.StructuredContent = v
	default:
		res.StructuredContent = map[string]any{"items": v}
	}
	return res
}

// Failure returns an error-shaped result carrying message.
func Failure(message string) *Result {
	res := Text(message)
	res.IsError = true
	return res
}

// JSON renders v as an indented JSON text result.
func JSON(v any) (*Result, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return Text(string(data)), nil
}
