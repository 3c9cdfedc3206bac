package trackmgr

import (
	"container/list"

	"github.com/asgard/godview/internal/spatial"
	"github.com/google/uuid"
)

// tombstoneLRU is a bounded loser->survivor map (§4.4: default 10 000
// entries) so late arrivals addressed to a merged-away UUID can be
// redirected without the map growing without bound.
type tombstoneLRU struct {
	capacity int
	entries  map[uuid.UUID]*list.Element
	order    *list.List
}

type tombstoneEntry struct {
	loser, survivor uuid.UUID
}

func newTombstoneLRU(capacity int) *tombstoneLRU {
	if capacity <= 0 {
		capacity = 10000
	}
	return &tombstoneLRU{
		capacity: capacity,
		entries:  make(map[uuid.UUID]*list.Element),
		order:    list.New(),
	}
}

func (l *tombstoneLRU) put(loser, survivor uuid.UUID) {
	if el, ok := l.entries[loser]; ok {
		l.order.MoveToFront(el)
		el.Value.(*tombstoneEntry).survivor = survivor
		return
	}
	el := l.order.PushFront(&tombstoneEntry{loser: loser, survivor: survivor})
	l.entries[loser] = el
	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		if oldest != nil {
			l.order.Remove(oldest)
			delete(l.entries, oldest.Value.(*tombstoneEntry).loser)
		}
	}
}

// resolve follows the tombstone chain for id, returning the final live
// survivor UUID (id itself if it was never merged away).
func (l *tombstoneLRU) resolve(id uuid.UUID) uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	for {
		el, ok := l.entries[id]
		if !ok {
			return id
		}
		if _, loop := seen[id]; loop {
			return id
		}
		seen[id] = struct{}{}
		l.order.MoveToFront(el)
		id = el.Value.(*tombstoneEntry).survivor
	}
}

// survivingUUID implements the Highlander tie-break: the lexicographically
// smaller canonical string wins, deterministically across nodes.
func survivingUUID(a, b uuid.UUID) (survivor, loser uuid.UUID) {
	if a.String() <= b.String() {
		return a, b
	}
	return b, a
}

// overlaps reports whether two tracks' 3-σ position ellipsoids overlap and
// their class tags are compatible (§4.4 identity reconciliation).
func overlaps(a, b *Track) bool {
	if a.Class != "" && b.Class != "" && a.Class != b.Class {
		return false
	}
	pa, pb := a.Position(), b.Position()
	dx, dy, dz := pa.X-pb.X, pa.Y-pb.Y, pa.Z-pb.Z
	dist2 := dx*dx + dy*dy + dz*dz

	sum := spatial.EllipsoidRadius(a.PositionCov()) + spatial.EllipsoidRadius(b.PositionCov())
	return dist2 <= sum*sum
}
