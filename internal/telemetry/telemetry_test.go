package telemetry

import (
	"bytes"
	"context"
	"testing"
)

func TestNewWritesSpansToWriter(t *testing.T) {
	var buf bytes.Buffer
	tr, shutdown, err := New("godview-test", &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer shutdown(context.Background())

	_, span := tr.StartInboundReceive(context.Background())
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected at least one span to be written")
	}
}

func TestNoopTracerDoesNotPanic(t *testing.T) {
	tr := NewNoop()

	_, span := tr.StartInboundReceive(context.Background())
	span.End()

	_, span = tr.StartVerify(context.Background(), "abcd1234")
	span.End()

	_, span = tr.StartReconciliation(context.Background(), 3)
	span.End()
}
