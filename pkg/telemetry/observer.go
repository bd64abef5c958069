package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/sameehj/strava-mcp/pkg/tool"
)

const (
	MetricInvocations = "strava_mcp.tool.invocations"
	MetricFailures    = "strava_mcp.tool.failures"
	MetricLatency     = "strava_mcp.tool.latency"
)

var attrTool = attribute.Key("tool_name")

// UnknownTool replaces the caller-supplied name of unregistered tools so
// clients cannot grow the attribute set without bound.
const UnknownTool = "unknown"

// DispatchObserver records every tool dispatch into OpenTelemetry.
type DispatchObserver struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	failures    metric.Int64Counter
	latency     metric.Float64Histogram
}

func NewDispatchObserver(meter metric.Meter, tracer trace.Tracer) (*DispatchObserver, error) {
	invocations, err := meter.Int64Counter(
		MetricInvocations,
		metric.WithDescription("Number of tool dispatches"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter(
		MetricFailures,
		metric.WithDescription("Number of tool dispatches that returned an error"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		MetricLatency,
		metric.WithDescription("Tool dispatch latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &DispatchObserver{
		tracer:      tracer,
		invocations: invocations,
		failures:    failures,
		latency:     latency,
	}, nil
}

// ObserveDispatch records one finished dispatch.
func (o *DispatchObserver) ObserveDispatch(obs tool.Observation) {
	if o == nil {
		return
	}

	name := obs.Tool
	if obs.Code == tool.CodeUnknownTool {
		name = UnknownTool
	}
	attrs := []attribute.KeyValue{
		attrTool.String(name),
		attribute.Bool("success", obs.Success()),
	}
	if obs.Code != "" {
		attrs = append(attrs, attribute.String("error_code", string(obs.Code)))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	if !obs.Success() {
		o.failures.Add(ctx, 1, options)
	}
	o.latency.Record(ctx, obs.Duration.Seconds(), options)

	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(ctx, "tool.dispatch",
		trace.WithTimestamp(obs.Started),
		trace.WithAttributes(attrs...),
	)
	if obs.Success() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, string(obs.Code))
	}
	span.End(trace.WithTimestamp(obs.Started.Add(obs.Duration)))
}

var _ tool.Observer = (*DispatchObserver)(nil)
