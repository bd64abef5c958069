package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sameehj/strava-mcp/pkg/tool"
)

func newTestMeter() (*metric.ManualReader, *metric.MeterProvider) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func TestDispatchObserverRecordsMetrics(t *testing.T) {
	reader, mp := newTestMeter()
	observer, err := NewDispatchObserver(mp.Meter("test"), noop.NewTracerProvider().Tracer("test"))
	if err != nil {
		t.Fatalf("NewDispatchObserver() error = %v", err)
	}

	started := time.Now()
	observer.ObserveDispatch(tool.Observation{Tool: "get-route", Started: started, Duration: 120 * time.Millisecond})
	observer.ObserveDispatch(tool.Observation{Tool: "get-route", Code: tool.CodeExecution, Started: started, Duration: 40 * time.Millisecond})

	rm := collectMetrics(t, reader)

	invocations := findMetric(rm, MetricInvocations)
	if invocations == nil {
		t.Fatalf("%s metric not found", MetricInvocations)
	}
	sum, ok := invocations.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s type = %T, want Sum[int64]", MetricInvocations, invocations.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Fatalf("expected 2 invocations, got %d", total)
	}

	failures := findMetric(rm, MetricFailures)
	if failures == nil {
		t.Fatalf("%s metric not found", MetricFailures)
	}
	fsum := failures.Data.(metricdata.Sum[int64])
	if len(fsum.DataPoints) != 1 || fsum.DataPoints[0].Value != 1 {
		t.Fatalf("expected one failure, got %+v", fsum.DataPoints)
	}

	latency := findMetric(rm, MetricLatency)
	if latency == nil {
		t.Fatalf("%s metric not found", MetricLatency)
	}
	if _, ok := latency.Data.(metricdata.Histogram[float64]); !ok {
		t.Fatalf("%s type = %T, want Histogram[float64]", MetricLatency, latency.Data)
	}
}

func TestDispatchObserverRecordsSpans(t *testing.T) {
	_, mp := newTestMeter()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	observer, err := NewDispatchObserver(mp.Meter("test"), tp.Tracer("test"))
	if err != nil {
		t.Fatalf("NewDispatchObserver() error = %v", err)
	}
	observer.ObserveDispatch(tool.Observation{Tool: "star-segment", Code: tool.CodeInvalidArguments, Started: time.Now(), Duration: time.Millisecond})

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "tool.dispatch" {
		t.Fatalf("expected one tool.dispatch span, got %d", len(spans))
	}
	if spans[0].Status().Description != string(tool.CodeInvalidArguments) {
		t.Fatalf("unexpected span status %+v", spans[0].Status())
	}
}

func TestProviderSummary(t *testing.T) {
	p, err := Setup(context.Background(), Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer p.Shutdown(context.Background())
	if p.Exporting() {
		t.Fatalf("expected no exporter without endpoint")
	}

	observer, err := NewDispatchObserver(p.Meter(), p.Tracer())
	if err != nil {
		t.Fatalf("NewDispatchObserver: %v", err)
	}
	observer.ObserveDispatch(tool.Observation{Tool: "get-route", Duration: time.Millisecond})
	observer.ObserveDispatch(tool.Observation{Tool: "get-athlete-zones", Code: tool.CodeExecution})
	observer.ObserveDispatch(tool.Observation{Tool: "get-athlete-zones"})

	summary, err := p.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("expected 2 tools, got %+v", summary)
	}
	if summary[0].Tool != "get-athlete-zones" || summary[0].Invocations != 2 || summary[0].Failures != 1 {
		t.Fatalf("unexpected zones summary %+v", summary[0])
	}
	if summary[1].Tool != "get-route" || summary[1].Invocations != 1 || summary[1].Failures != 0 {
		t.Fatalf("unexpected route summary %+v", summary[1])
	}
}

func TestDispatchObserverCollapsesUnknownToolNames(t *testing.T) {
	p, err := Setup(context.Background(), Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer p.Shutdown(context.Background())

	observer, err := NewDispatchObserver(p.Meter(), p.Tracer())
	if err != nil {
		t.Fatalf("NewDispatchObserver: %v", err)
	}
	for _, name := range []string{"no-such-tool", "random-1", "random-2"} {
		observer.ObserveDispatch(tool.Observation{Tool: name, Code: tool.CodeUnknownTool})
	}
	observer.ObserveDispatch(tool.Observation{Tool: "get-route"})

	summary, err := p.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("expected 2 tool names, got %+v", summary)
	}
	if summary[0].Tool != "get-route" || summary[0].Invocations != 1 {
		t.Fatalf("unexpected route summary %+v", summary[0])
	}
	if summary[1].Tool != UnknownTool || summary[1].Invocations != 3 || summary[1].Failures != 3 {
		t.Fatalf("unexpected unknown summary %+v", summary[1])
	}
}
