package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/sameehj/strava-mcp"

type Config struct {
	// Endpoint is an OTLP/HTTP collector URL. Empty disables trace export.
	Endpoint    string
	ServiceName string
}

// Provider owns the meter and tracer providers for one process. Metrics stay
// in process behind a manual reader and are summarised on demand.
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	reader         *sdkmetric.ManualReader
	tracerProvider trace.TracerProvider
	sdkTracer      *sdktrace.TracerProvider
}

// Setup builds the providers. With an endpoint configured traces are batched
// to OTLP/HTTP and the tracer provider is installed globally.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "strava-mcp"
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))

	reader := sdkmetric.NewManualReader()
	p := &Provider{
		reader:         reader,
		meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)),
		tracerProvider: noop.NewTracerProvider(),
	}

	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		p.sdkTracer = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		p.tracerProvider = p.sdkTracer
		otel.SetTracerProvider(p.sdkTracer)
	}
	otel.SetMeterProvider(p.meterProvider)
	return p, nil
}

func (p *Provider) Meter() metric.Meter {
	return p.meterProvider.Meter(instrumentationName)
}

func (p *Provider) Tracer() trace.Tracer {
	return p.tracerProvider.Tracer(instrumentationName)
}

// Exporting reports whether spans leave the process.
func (p *Provider) Exporting() bool {
	return p.sdkTracer != nil
}

// ToolSummary aggregates invocation counts for one tool.
type ToolSummary struct {
	Tool        string
	Invocations int64
	Failures    int64
}

// Summary collects the current tool counters, sorted by tool name.
func (p *Provider) Summary(ctx context.Context) ([]ToolSummary, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	byTool := map[string]*ToolSummary{}
	entry := func(name string) *ToolSummary {
		s, ok := byTool[name]
		if !ok {
			s = &ToolSummary{Tool: name}
			byTool[name] = s
		}
		return s
	}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				v, ok := dp.Attributes.Value(attrTool)
				if !ok {
					continue
				}
				switch m.Name {
				case MetricInvocations:
					entry(v.AsString()).Invocations += dp.Value
				case MetricFailures:
					entry(v.AsString()).Failures += dp.Value
				}
			}
		}
	}
	out := make([]ToolSummary, 0, len(byTool))
	for _, s := range byTool {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool < out[j].Tool })
	return out, nil
}

// Shutdown flushes pending spans and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.sdkTracer != nil {
		if err := p.sdkTracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown meter: %w", err))
	}
	return errors.Join(errs...)
}
