package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())

	m.IncOOSMDropped()
	if got := testutil.ToFloat64(m.OOSMDropped); got != 1 {
		t.Errorf("OOSMDropped = %v, want 1", got)
	}

	m.IncMergePerformed()
	m.IncMergePerformed()
	if got := testutil.ToFloat64(m.MergesPerformed); got != 2 {
		t.Errorf("MergesPerformed = %v, want 2", got)
	}

	m.IncTrackSpawned()
	if got := testutil.ToFloat64(m.TracksSpawned); got != 1 {
		t.Errorf("TracksSpawned = %v, want 1", got)
	}

	m.IncTrackRetired()
	if got := testutil.ToFloat64(m.TracksRetired); got != 1 {
		t.Errorf("TracksRetired = %v, want 1", got)
	}
}

func TestVerifyFailureLabelsByReason(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())
	m.RecordVerifyFailure("trust: unknown signing key")
	m.RecordVerifyFailure("trust: unknown signing key")
	m.RecordVerifyFailure("trust: packet outside freshness window")

	if got := testutil.ToFloat64(m.VerifyFailures.WithLabelValues("trust: unknown signing key")); got != 2 {
		t.Errorf("unknown-key failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.VerifyFailures.WithLabelValues("trust: packet outside freshness window")); got != 1 {
		t.Errorf("stale failures = %v, want 1", got)
	}
}

func TestGaugesReflectLastSet(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())
	m.SetLiveTracks(5)
	m.SetInboundQueued(3)

	if got := testutil.ToFloat64(m.LiveTracks); got != 5 {
		t.Errorf("LiveTracks = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.InboundQueued); got != 3 {
		t.Errorf("InboundQueued = %v, want 3", got)
	}

	m.SetLiveTracks(2)
	if got := testutil.ToFloat64(m.LiveTracks); got != 2 {
		t.Errorf("LiveTracks after update = %v, want 2", got)
	}
}

func TestGetReturnsSingleton(t *testing.T) {
	a := Get()
	b := Get()
	if a != b {
		t.Fatal("Get must return the same process-wide instance")
	}
}
