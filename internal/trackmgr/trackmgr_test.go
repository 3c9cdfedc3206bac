package trackmgr

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/asgard/godview/internal/spatial"
	"github.com/asgard/godview/internal/wire"
	"github.com/google/uuid"
)

func posCov9() []float64 {
	cov := make([]float64, 9)
	for i := 0; i < 3; i++ {
		cov[i*3+i] = 0.1
	}
	return cov
}

func measurementAt(x, y, z float64, tMs int64, agent string, class string) wire.Measurement {
	return wire.Measurement{
		Entity: wire.Entity{
			ID:          uuid.New(),
			Position:    wire.Vector3{X: x, Y: y, Z: z},
			Class:       class,
			TimestampMS: tMs,
			Confidence:  0.9,
		},
		Cov:     posCov9(),
		AgentID: agent,
	}
}

func newTestManager() *Manager {
	return NewManager(DefaultConfig(), spatial.NewIndex(spatial.DefaultConfig()), nil)
}

func TestSingleAgentSingleTarget(t *testing.T) {
	m := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	for i := int64(0); i < 10; i++ {
		if err := m.Submit(measurementAt(float64(i), 0, 0, i*100, "agentA", "vehicle")); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	var last wire.TrackDelta
	deadline := time.After(2 * time.Second)
	seen := 0
	for seen < 10 {
		select {
		case ev := <-m.Events():
			last = ev
			seen++
		case <-deadline:
			t.Fatalf("timed out waiting for track events, saw %d", seen)
		}
	}

	if math.Abs(last.State[0]-9.0) > 0.3 {
		t.Fatalf("expected final x near 9.0, got %v", last.State[0])
	}
}

func TestDuplicateIdentityMergeViaHighlander(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReconciliationPeriod = 20 * time.Millisecond
	m := NewManager(cfg, spatial.NewIndex(spatial.DefaultConfig()), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	if err := m.Submit(measurementAt(0, 0, 0, 0, "agentA", "vehicle")); err != nil {
		t.Fatalf("submit A failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := m.Submit(measurementAt(0.3, 0.2, 0, 0, "agentB", "vehicle")); err != nil {
		t.Fatalf("submit B failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	sawMerge := false
	for !sawMerge {
		select {
		case ev := <-m.Events():
			if ev.SupersededBy != nil {
				sawMerge = true
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a Highlander merge event")
		}
	}

	m.mu.Lock()
	liveCount := len(m.tracks)
	m.mu.Unlock()
	if liveCount != 1 {
		t.Fatalf("expected exactly one live track after merge, got %d", liveCount)
	}
}

func TestIdleRetirementFiresExactlyOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	m := NewManager(cfg, spatial.NewIndex(spatial.DefaultConfig()), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	if err := m.Submit(measurementAt(0, 0, 0, 0, "agentA", "vehicle")); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	retiredEvents := 0
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-m.Events():
			if ev.Retired {
				retiredEvents++
			}
			if retiredEvents > 0 {
				// Give any spurious duplicate a moment to arrive before asserting.
				select {
				case ev2 := <-m.Events():
					if ev2.Retired {
						retiredEvents++
					}
				case <-time.After(150 * time.Millisecond):
				}
				if retiredEvents != 1 {
					t.Fatalf("expected exactly one retirement event, got %d", retiredEvents)
				}
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for retirement event")
		}
	}
}

func TestHighlanderTieBreakIsDeterministic(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	survivor, loser := survivingUUID(a, b)
	if survivor != a || loser != b {
		t.Fatalf("expected a to survive as lexicographically smaller, got survivor=%v loser=%v", survivor, loser)
	}
	survivor2, loser2 := survivingUUID(b, a)
	if survivor2 != survivor || loser2 != loser {
		t.Fatalf("survivingUUID must be commutative: got %v/%v vs %v/%v", survivor, loser, survivor2, loser2)
	}
}

func TestTombstoneLRUResolvesAndBounds(t *testing.T) {
	lru := newTombstoneLRU(2)
	loser1, survivor1 := uuid.New(), uuid.New()
	loser2, survivor2 := uuid.New(), uuid.New()
	loser3, survivor3 := uuid.New(), uuid.New()

	lru.put(loser1, survivor1)
	lru.put(loser2, survivor2)
	lru.put(loser3, survivor3) // evicts loser1 (oldest)

	if got := lru.resolve(loser1); got != loser1 {
		t.Fatalf("expected loser1 to have been evicted, got resolve=%v", got)
	}
	if got := lru.resolve(loser3); got != survivor3 {
		t.Fatalf("expected loser3 -> survivor3, got %v", got)
	}
}
