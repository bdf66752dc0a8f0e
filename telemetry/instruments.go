package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/hupe1980/taskmesh"

// Attribute keys attached to node spans and metrics.
const (
	AttrRunID    = attribute.Key("taskmesh.run_id")
	AttrNodeID   = attribute.Key("taskmesh.node_id")
	AttrParentID = attribute.Key("taskmesh.parent_id")
	AttrNodeName = attribute.Key("taskmesh.node")
	AttrOutcome  = attribute.Key("taskmesh.outcome")
)

// InstrumentOptions configures NewInstruments.
type InstrumentOptions struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Instruments bundles the tracer and meters used for node calls.
type Instruments struct {
	tracer   trace.Tracer
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewInstruments creates node call instruments. Providers default to the
// global ones installed by Init.
func NewInstruments(optFns ...func(o *InstrumentOptions)) (*Instruments, error) {
	opts := InstrumentOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}

	meter := opts.MeterProvider.Meter(instrumentationName)

	calls, err := meter.Int64Counter(
		"taskmesh.node.calls",
		metric.WithDescription("Node calls issued through the scheduler"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"taskmesh.node.failures",
		metric.WithDescription("Node calls that returned an error"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram(
		"taskmesh.node.latency",
		metric.WithDescription("Node call latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Instruments{
		tracer:   opts.TracerProvider.Tracer(instrumentationName),
		calls:    calls,
		failures: failures,
		latency:  latency,
	}, nil
}

// Default returns instruments bound to the global providers. Instrument
// creation on the global providers does not fail in practice; should it,
// the no-op fallback keeps node calls working.
func Default() *Instruments {
	in, err := NewInstruments()
	if err != nil {
		return Noop()
	}
	return in
}

// Noop returns instruments that record nothing.
func Noop() *Instruments {
	in, _ := NewInstruments(func(o *InstrumentOptions) {
		o.TracerProvider = noopTracerProvider()
		o.MeterProvider = noopMeterProvider()
	})
	return in
}

// StartNode opens the span of a node call.
func (in *Instruments) StartNode(ctx context.Context, runID, nodeID, parentID, name string) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "node "+name,
		trace.WithAttributes(
			AttrRunID.String(runID),
			AttrNodeID.String(nodeID),
			AttrParentID.String(parentID),
			AttrNodeName.String(name),
		),
	)
}

// EndNode records the outcome of a node call and ends its span.
func (in *Instruments) EndNode(ctx context.Context, span trace.Span, name string, latency time.Duration, err error) {
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		in.failures.Add(ctx, 1, metric.WithAttributes(AttrNodeName.String(name)))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	attrs := metric.WithAttributes(AttrNodeName.String(name), AttrOutcome.String(outcome))
	in.calls.Add(ctx, 1, attrs)
	in.latency.Record(ctx, float64(latency.Microseconds())/1000, attrs)

	span.End()
}
