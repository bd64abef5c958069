package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Observation describes one finished dispatch.
type Observation struct {
	Tool     string
	Code     Code
	Started  time.Time
	Duration time.Duration
}

// Success reports whether the dispatch returned a result.
func (o Observation) Success() bool {
	return o.Code == ""
}

// Observer receives an Observation after every dispatch.
type Observer interface {
	ObserveDispatch(Observation)
}

// Dispatcher routes named calls to registered tools. It holds no per-call
// state and is safe for concurrent use.
type Dispatcher struct {
	registry *Registry
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

func NewDispatcher(registry *Registry) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Dispatcher{registry: registry, now: time.Now}
}

func (d *Dispatcher) SetObserver(observer Observer) {
	d.observer = observer
}

func (d *Dispatcher) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch looks up name, validates raw against its schema and runs it.
// Every failure is an *Error: UNKNOWN_TOOL and INVALID_ARGUMENTS are
// reported before the tool runs, EXECUTION_ERROR wraps whatever the tool
// returned or panicked with.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, raw json.RawMessage) (res *Result, err error) {
	started := d.now()
	defer func() {
		d.observe(name, started, err)
	}()

	entry, ok := d.registry.lookup(name)
	if !ok {
		d.logWarn("tool_unknown", "tool", name)
		return nil, unknownTool(name)
	}
	desc := entry.desc

	args, issues := entry.input.validate(raw)
	if len(issues) > 0 {
		d.logWarn("tool_invalid_arguments", "tool", name, "issues", len(issues))
		return nil, invalidArguments(name, issues)
	}

	res, err = d.execute(ctx, desc, args)
	var terr *Error
	if errors.As(err, &terr) && terr.Code == CodeInvalidArguments {
		d.logWarn("tool_invalid_arguments", "tool", name, "issues", len(terr.Issues))
		return nil, invalidArguments(name, terr.Issues)
	}
	if err != nil {
		d.logError("tool_execution_failed", "tool", name, "error", err)
		return nil, executionError(name, err)
	}
	if res == nil {
		res = &Result{Content: []Content{}}
	}
	return res, nil
}

func (d *Dispatcher) execute(ctx context.Context, desc Descriptor, args Args) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return desc.Execute(ctx, args)
}

func (d *Dispatcher) observe(name string, started time.Time, err error) {
	if d.observer == nil {
		return
	}
	d.observer.ObserveDispatch(Observation{
		Tool:     name,
		Code:     CodeOf(err),
		Started:  started,
		Duration: d.now().Sub(started),
	})
}

func (d *Dispatcher) logWarn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}

func (d *Dispatcher) logError(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Error(msg, args...)
	}
}
