package spatial

import (
	"testing"

	"github.com/google/uuid"
)

func containsUUID(list []uuid.UUID, target uuid.UUID) bool {
	for _, u := range list {
		if u == target {
			return true
		}
	}
	return false
}

func TestUpsertIdempotentUnderRepeatedCalls(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	id := uuid.New()
	pos := Position{X: 10, Y: 20, Z: 3}

	idx.Upsert(id, pos)
	idx.Upsert(id, pos)
	idx.Upsert(id, pos)

	if idx.Len() != 1 {
		t.Fatalf("expected exactly one indexed track, got %d", idx.Len())
	}
}

func TestUpsertMovesBetweenCells(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	id := uuid.New()
	idx.Upsert(id, Position{X: 0, Y: 0, Z: 0})
	idx.Upsert(id, Position{X: 5000, Y: 5000, Z: 0})

	if idx.Len() != 1 {
		t.Fatalf("expected exactly one indexed track after move, got %d", idx.Len())
	}
	results := idx.QueryRadius(Position{X: 5000, Y: 5000, Z: 0}, 10)
	if !containsUUID(results, id) {
		t.Fatalf("expected track at new position to be found")
	}
	stale := idx.QueryRadius(Position{X: 0, Y: 0, Z: 0}, 10)
	if containsUUID(stale, id) {
		t.Fatalf("track should no longer be found at old position")
	}
}

func TestQueryRadiusNeverOmitsInRangeTrack(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	id := uuid.New()
	idx.Upsert(id, Position{X: 100, Y: 100, Z: 1})

	results := idx.QueryRadius(Position{X: 100, Y: 100, Z: 1}, 5)
	if !containsUUID(results, id) {
		t.Fatalf("expected exact-position query to find the track")
	}
}

func TestRemoveIsConstantTimeViaLastKnownCell(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	id := uuid.New()
	idx.Upsert(id, Position{X: 1, Y: 1, Z: 1})
	idx.Remove(id)
	if idx.Len() != 0 {
		t.Fatalf("expected index to be empty after remove, got %d", idx.Len())
	}
	results := idx.QueryRadius(Position{X: 1, Y: 1, Z: 1}, 100)
	if containsUUID(results, id) {
		t.Fatalf("removed track should not be found")
	}
}

func TestUniquenessAcrossUpserts(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	ids := make([]uuid.UUID, 50)
	for i := range ids {
		ids[i] = uuid.New()
		idx.Upsert(ids[i], Position{X: float64(i) * 3, Y: float64(i) * -2, Z: 0})
	}
	seen := make(map[uuid.UUID]int)
	for key, rec := range idx.cells {
		_ = key
		for id := range rec.tracks {
			seen[id]++
		}
	}
	for _, id := range ids {
		if seen[id] != 1 {
			t.Fatalf("track %s present in %d cells, want exactly 1", id, seen[id])
		}
	}
}
