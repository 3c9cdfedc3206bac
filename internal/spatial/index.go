// Package spatial provides the two-tier geographic + volumetric index: a
// hexagonal surface partition with sparse per-cell voxel sub-partitions
// (§4.2), adapted from the teacher's octree spatial index to the hex+voxel
// shape the spec requires.
package spatial

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Position is the 3D point an index entry is keyed on.
type Position struct {
	X, Y, Z float64
}

// Config configures index resolution (§6: hex_resolution, voxel_height_m).
type Config struct {
	HexEdgeM    float64
	VoxelHeight float64
}

// DefaultConfig returns the spec defaults (~65m hex, 2m voxel).
func DefaultConfig() Config {
	return Config{HexEdgeM: hexResolutionEdgeM, VoxelHeight: 2.0}
}

type voxelID int64

func voxelOf(z, height float64) voxelID {
	if height <= 0 {
		height = 2.0
	}
	return voxelID(int64(z / height))
}

// cellKey identifies one (hex, voxel) bucket.
type cellKey struct {
	hex   HexID
	voxel voxelID
}

// cellRecord holds the set of track UUIDs occupying one bucket.
type cellRecord struct {
	tracks map[uuid.UUID]struct{}
}

// Index is the live hex+voxel spatial index. Per §4.2/§9, the Track<->Cell
// relationship is a back-reference: cells hold UUID sets, tracks don't know
// about cells, and a per-UUID "last known cell" side map makes upsert/remove
// O(1) instead of a full scan (mirrors the teacher's per-UUID bookkeeping in
// robotics/perception, generalized from octants to hex+voxel buckets).
type Index struct {
	mu       sync.Mutex
	grid     hexGrid
	voxelH   float64
	cells    map[cellKey]*cellRecord
	lastCell map[uuid.UUID]cellKey
	lastPos  map[uuid.UUID]Position
}

// NewIndex creates an empty index at the given resolution.
func NewIndex(cfg Config) *Index {
	return &Index{
		grid:     newHexGrid(cfg.HexEdgeM),
		voxelH:   cfg.VoxelHeight,
		cells:    make(map[cellKey]*cellRecord),
		lastCell: make(map[uuid.UUID]cellKey),
		lastPos:  make(map[uuid.UUID]Position),
	}
}

func (idx *Index) keyFor(pos Position) cellKey {
	return cellKey{hex: idx.grid.cellOf(pos.X, pos.Y), voxel: voxelOf(pos.Z, idx.voxelH)}
}

// Upsert places trackID at pos, removing it from any prior cell first.
// Repeated calls with an identical position are idempotent (§4.2).
func (idx *Index) Upsert(trackID uuid.UUID, pos Position) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	newKey := idx.keyFor(pos)
	if oldKey, ok := idx.lastCell[trackID]; ok {
		if oldKey == newKey && idx.lastPos[trackID] == pos {
			return
		}
		idx.removeFromCellLocked(oldKey, trackID)
	}
	idx.insertIntoCellLocked(newKey, trackID)
	idx.lastCell[trackID] = newKey
	idx.lastPos[trackID] = pos
}

// Remove takes trackID out of the index entirely. O(1) via the last-known-cell map.
func (idx *Index) Remove(trackID uuid.UUID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(trackID)
}

func (idx *Index) removeLocked(trackID uuid.UUID) {
	key, ok := idx.lastCell[trackID]
	if !ok {
		return
	}
	idx.removeFromCellLocked(key, trackID)
	delete(idx.lastCell, trackID)
	delete(idx.lastPos, trackID)
}

func (idx *Index) insertIntoCellLocked(key cellKey, trackID uuid.UUID) {
	rec, ok := idx.cells[key]
	if !ok {
		rec = &cellRecord{tracks: make(map[uuid.UUID]struct{})}
		idx.cells[key] = rec
	}
	rec.tracks[trackID] = struct{}{}
}

func (idx *Index) removeFromCellLocked(key cellKey, trackID uuid.UUID) {
	rec, ok := idx.cells[key]
	if !ok {
		return
	}
	delete(rec.tracks, trackID)
	if len(rec.tracks) == 0 {
		delete(idx.cells, key)
	}
}

// Repair re-synchronizes trackID's entry if it is found at an unexpected
// cell (§7 IndexConsistency): removes every stale occurrence and reinserts
// at the position it actually claims to be at.
func (idx *Index) Repair(trackID uuid.UUID, pos Position) {
	log.Printf("[spatial] WARNING: repairing index entry for track %s", trackID)
	idx.mu.Lock()
	for key, rec := range idx.cells {
		if _, ok := rec.tracks[trackID]; ok {
			idx.removeFromCellLocked(key, trackID)
		}
	}
	delete(idx.lastCell, trackID)
	delete(idx.lastPos, trackID)
	idx.mu.Unlock()
	idx.Upsert(trackID, pos)
}

// QueryRadius returns the union of track sets in every hex+voxel bucket that
// could contain a point within r of center — callers must do final exact
// distance filtering themselves (§4.2: false positives allowed, false
// negatives are not).
func (idx *Index) QueryRadius(center Position, r float64) []uuid.UUID {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	k := idx.grid.kRingForRadius(r)
	centerHex := idx.grid.cellOf(center.X, center.Y)
	hexes := idx.grid.diskWithin(centerHex, k)

	voxelSpan := int64(1)
	if idx.voxelH > 0 {
		voxelSpan = int64(r/idx.voxelH) + 1
	}
	centerVoxel := int64(voxelOf(center.Z, idx.voxelH))

	seen := make(map[uuid.UUID]struct{})
	for _, h := range hexes {
		for v := centerVoxel - voxelSpan; v <= centerVoxel+voxelSpan; v++ {
			rec, ok := idx.cells[cellKey{hex: h, voxel: voxelID(v)}]
			if !ok {
				continue
			}
			for id := range rec.tracks {
				seen[id] = struct{}{}
			}
		}
	}
	out := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// AABB is an axis-aligned bounding box query region.
type AABB struct {
	Min, Max Position
}

// QueryBox returns the union of track sets in every bucket overlapping box.
// Like QueryRadius, false positives are allowed but false negatives are not:
// it conservatively covers every hex within the box's horizontal extent.
func (idx *Index) QueryBox(box AABB) []uuid.UUID {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cx, cy := (box.Min.X+box.Max.X)/2, (box.Min.Y+box.Max.Y)/2
	dx, dy := box.Max.X-box.Min.X, box.Max.Y-box.Min.Y
	radius := dx
	if dy > radius {
		radius = dy
	}
	radius = radius / 2 * 1.5 // hex corner-to-corner margin over the half-diagonal

	centerHex := idx.grid.cellOf(cx, cy)
	k := idx.grid.kRingForRadius(radius)
	hexes := idx.grid.diskWithin(centerHex, k)

	seen := make(map[uuid.UUID]struct{})
	for _, h := range hexes {
		for key, rec := range idx.cells {
			if key.hex != h {
				continue
			}
			for id := range rec.tracks {
				seen[id] = struct{}{}
			}
		}
	}
	out := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// Len reports how many distinct tracks are currently indexed.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.lastCell)
}
