package tool

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Code classifies a failure at the dispatch or transport boundary.
type Code string

const (
	CodeUnknownTool      Code = "UNKNOWN_TOOL"
	CodeInvalidArguments Code = "INVALID_ARGUMENTS"
	CodeExecution        Code = "EXECUTION_ERROR"
	CodeTransport        Code = "TRANSPORT_ERROR"
	CodeStartup          Code = "STARTUP_FAILURE"
)

var (
	ErrUnknownTool      = &Error{Code: CodeUnknownTool}
	ErrInvalidArguments = &Error{Code: CodeInvalidArguments}
	ErrExecution        = &Error{Code: CodeExecution}
	ErrTransport        = &Error{Code: CodeTransport}
	ErrStartup          = &Error{Code: CodeStartup}

	ErrDuplicateTool     = errors.New("tool already registered")
	ErrInvalidDescriptor = errors.New("invalid tool descriptor")
)

// Issue is one field-level validation finding.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return i.Field + ": " + i.Message
}

// Error is a structured failure. errors.Is matches any *Error with the same
// Code, so the package sentinels work as category checks.
type Error struct {
	Code    Code    `json:"code"`
	Tool    string  `json:"tool,omitempty"`
	Message string  `json:"message"`
	Issues  []Issue `json:"issues,omitempty"`
	Cause   error   `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the Code carried by err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var terr *Error
	if errors.As(err, &terr) && terr != nil {
		return terr.Code
	}
	return ""
}

// ArgumentError lets a tool reject an argument the schema cannot express,
// such as a malformed date. The dispatcher reports it as INVALID_ARGUMENTS.
func ArgumentError(field, message string) error {
	return &Error{
		Code:    CodeInvalidArguments,
		Message: field + ": " + message,
		Issues:  []Issue{{Field: field, Message: message}},
	}
}

func unknownTool(name string) *Error {
	return &Error{Code: CodeUnknownTool, Tool: name, Message: "unknown tool: " + name}
}

func invalidArguments(name string, issues []Issue) *Error {
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		parts = append(parts, issue.String())
	}
	return &Error{
		Code:    CodeInvalidArguments,
		Tool:    name,
		Message: "invalid arguments: " + strings.Join(parts, "; "),
		Issues:  issues,
	}
}

func executionError(name string, cause error) *Error {
	return &Error{
		Code:    CodeExecution,
		Tool:    name,
		Message: failureMessage(cause),
		Cause:   cause,
	}
}

// failureMessage keeps the human-readable part of an error. Network errors
// from net/http are reduced to their innermost cause so request internals
// stay out of tool results.
func failureMessage(err error) string {
	if err == nil {
		return "tool execution failed"
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return "upstream request failed: " + uerr.Err.Error()
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "tool execution failed"
	}
	return msg
}
