// Package telemetry provides OpenTelemetry span helpers for the actor
// suspension points named in spec §5: the inbound-queue receive, the Trust
// verifier reply, and the periodic reconciliation timer. Only the verify
// span is started by the running core (godview.Core.IngestSignedPacket);
// trackmgr.Manager does not call the other two helpers. The teacher's go.mod
// already carries the otel stack without using it; this package is where
// godview exercises it for real.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/asgard/godview"

// Tracer wraps the otel tracer used across the three suspension points.
type Tracer struct {
	tracer trace.Tracer
}

// Shutdown flushes and stops the underlying trace provider.
type Shutdown func(context.Context) error

// New installs a stdouttrace-backed TracerProvider writing spans to w and
// returns a Tracer bound to it, along with a Shutdown to call on exit.
// Passing io.Discard is the common case outside of local debugging.
func New(serviceName string, w io.Writer) (*Tracer, Shutdown, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Tracer{tracer: tp.Tracer(tracerName)}, tp.Shutdown, nil
}

// NewNoop returns a Tracer backed by an unconfigured global provider (a
// no-op until something calls otel.SetTracerProvider), for tests and
// callers that do not want tracing overhead.
func NewNoop() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// StartInboundReceive spans a Track Manager actor's wait on its inbound
// measurement queue (§5 suspension point a).
func (t *Tracer) StartInboundReceive(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "trackmgr.inbound_receive")
}

// StartVerify spans an actor's wait for a Trust verifier reply (§5
// suspension point b).
func (t *Tracer) StartVerify(ctx context.Context, keyID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "trust.verify", trace.WithAttributes(attribute.String("key_id", keyID)))
}

// StartReconciliation spans one firing of the periodic reconciliation
// timer (§5 suspension point c).
func (t *Tracer) StartReconciliation(ctx context.Context, liveTrackCount int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "trackmgr.reconciliation",
		trace.WithAttributes(attribute.Int("live_tracks", liveTrackCount)))
}
