package tool

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"
)

func echoDescriptor(calls *int) Descriptor {
	return Descriptor{
		Name:        "echo",
		Description: "Echo text back",
		InputSchema: Object(map[string]Property{
			"text": String("text to echo"),
		}, "text"),
		Execute: func(ctx context.Context, args Args) (*Result, error) {
			*calls++
			return TextWithData(args.String("text"), map[string]any{"echoed": args.String("text")}), nil
		},
	}
}

func newEchoDispatcher(t *testing.T, calls *int) *Dispatcher {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register(echoDescriptor(calls)); err != nil {
		t.Fatalf("register: %v", err)
	}
	return NewDispatcher(reg)
}

func TestDispatchEchoScenario(t *testing.T) {
	calls := 0
	d := newEchoDispatcher(t, &calls)
	ctx := context.Background()

	res, err := d.Dispatch(ctx, "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("dispatch echo: %v", err)
	}
	data, ok := res.StructuredContent.(map[string]any)
	if !ok || data["echoed"] != "hi" {
		t.Fatalf("expected echoed=hi, got %#v", res.StructuredContent)
	}

	_, err = d.Dispatch(ctx, "echo", json.RawMessage(`{}`))
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("expected invalid arguments, got %v", err)
	}
	var terr *Error
	if !errors.As(err, &terr) || len(terr.Issues) != 1 || terr.Issues[0].Field != "text" {
		t.Fatalf("expected issue on field text, got %#v", err)
	}

	_, err = d.Dispatch(ctx, "missing", json.RawMessage(`{}`))
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected unknown tool, got %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected execute to run once, got %d", calls)
	}
}

func TestDispatchInvalidArgumentsNeverExecutes(t *testing.T) {
	calls := 0
	d := newEchoDispatcher(t, &calls)

	for _, raw := range []string{`{}`, `{"text":5}`, `{"text":null}`, `[1,2]`, `not json`} {
		_, err := d.Dispatch(context.Background(), "echo", json.RawMessage(raw))
		if CodeOf(err) != CodeInvalidArguments {
			t.Fatalf("args %s: expected INVALID_ARGUMENTS, got %v", raw, err)
		}
	}
	if calls != 0 {
		t.Fatalf("expected no executions, got %d", calls)
	}
}

func TestDispatchWrapsExecutionErrors(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(Descriptor{
		Name: "fails",
		Execute: func(ctx context.Context, args Args) (*Result, error) {
			return nil, &url.Error{Op: "Get", URL: "https://example.test/secret", Err: errors.New("connection refused")}
		},
	})
	_ = reg.Register(Descriptor{
		Name: "panics",
		Execute: func(ctx context.Context, args Args) (*Result, error) {
			panic("boom")
		},
	})
	d := NewDispatcher(reg)

	_, err := d.Dispatch(context.Background(), "fails", nil)
	if !errors.Is(err, ErrExecution) {
		t.Fatalf("expected execution error, got %v", err)
	}
	if strings.Contains(err.Error(), "example.test") {
		t.Fatalf("expected url details stripped, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected cause message kept, got %q", err.Error())
	}

	_, err = d.Dispatch(context.Background(), "panics", nil)
	if !errors.Is(err, ErrExecution) || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected panic converted to execution error, got %v", err)
	}
}

func TestDispatchNilResultBecomesEmpty(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(Descriptor{
		Name:    "quiet",
		Execute: func(ctx context.Context, args Args) (*Result, error) { return nil, nil },
	})
	res, err := NewDispatcher(reg).Dispatch(context.Background(), "quiet", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res == nil || res.Content == nil {
		t.Fatalf("expected empty result, got %#v", res)
	}
}

type recordingObserver struct {
	seen []Observation
}

func (r *recordingObserver) ObserveDispatch(o Observation) {
	r.seen = append(r.seen, o)
}

func TestDispatchReportsObservations(t *testing.T) {
	calls := 0
	d := newEchoDispatcher(t, &calls)
	obs := &recordingObserver{}
	d.SetObserver(obs)

	_, _ = d.Dispatch(context.Background(), "echo", json.RawMessage(`{"text":"a"}`))
	_, _ = d.Dispatch(context.Background(), "nope", nil)

	if len(obs.seen) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs.seen))
	}
	if !obs.seen[0].Success() || obs.seen[0].Tool != "echo" {
		t.Fatalf("unexpected first observation %#v", obs.seen[0])
	}
	if obs.seen[1].Code != CodeUnknownTool {
		t.Fatalf("expected UNKNOWN_TOOL observation, got %#v", obs.seen[1])
	}
}

func TestDispatchArgumentErrorFromTool(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(Descriptor{
		Name:        "dated",
		InputSchema: Object(map[string]Property{"day": String("YYYY-MM-DD")}),
		Execute: func(ctx context.Context, args Args) (*Result, error) {
			return nil, ArgumentError("day", "expected YYYY-MM-DD")
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = NewDispatcher(reg).Dispatch(context.Background(), "dated", json.RawMessage(`{"day":"soon"}`))
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("expected invalid arguments, got %v", err)
	}
	var terr *Error
	if !errors.As(err, &terr) || terr.Tool != "dated" || len(terr.Issues) != 1 || terr.Issues[0].Field != "day" {
		t.Fatalf("unexpected error %#v", err)
	}
}
