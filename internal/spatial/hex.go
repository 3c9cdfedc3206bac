package spatial

import "math"

// HexID identifies a hexagonal surface cell by its axial (Q, R) integer
// coordinate pair, used as a comparable map key, the way the teacher's octree
// addresses octants by index rather than by pointer identity.
type HexID struct {
	Q int64
	R int64
}

// hexResolutionEdgeM is the default edge length of a hex cell at the
// default resolution level (§3: "~65 m across at the default level").
const hexResolutionEdgeM = 65.0 / 2 // 32.5m edge -> 65m corner-to-corner

// hexGrid converts between world positions and axial hex coordinates using
// a pointy-top hexagonal tiling of the given edge length.
type hexGrid struct {
	edgeM float64
}

func newHexGrid(edgeM float64) hexGrid {
	if edgeM <= 0 {
		edgeM = hexResolutionEdgeM
	}
	return hexGrid{edgeM: edgeM}
}

// cellOf maps a world (x, y) to the axial hex coordinate containing it.
func (g hexGrid) cellOf(x, y float64) HexID {
	q := (math.Sqrt(3)/3*x - 1.0/3*y) / g.edgeM
	r := (2.0 / 3 * y) / g.edgeM
	return axialRound(q, r)
}

// center returns the world-space center of a hex cell.
func (g hexGrid) center(id HexID) (x, y float64) {
	q, r := float64(id.Q), float64(id.R)
	x = g.edgeM * (math.Sqrt(3)*q + math.Sqrt(3)/2*r)
	y = g.edgeM * (3.0 / 2 * r)
	return x, y
}

// ring returns every hex cell whose axial distance from center is exactly k
// (k=0 returns just center).
func (g hexGrid) ring(center HexID, k int) []HexID {
	if k == 0 {
		return []HexID{center}
	}
	// Axial direction vectors, in ring-walk order.
	dirs := [6][2]int64{{1, 0}, {1, -1}, {0, -1}, {-1, 0}, {-1, 1}, {0, 1}}
	cells := make([]HexID, 0, 6*k)
	cur := HexID{Q: center.Q + dirs[4][0]*int64(k), R: center.R + dirs[4][1]*int64(k)}
	for side := 0; side < 6; side++ {
		for step := 0; step < k; step++ {
			cells = append(cells, cur)
			cur = HexID{Q: cur.Q + dirs[side][0], R: cur.R + dirs[side][1]}
		}
	}
	return cells
}

// kRingForRadius returns the smallest k such that k*avg_edge >= r (§4.2).
func (g hexGrid) kRingForRadius(r float64) int {
	if r <= 0 {
		return 0
	}
	k := int(math.Ceil(r / g.edgeM))
	if k < 0 {
		k = 0
	}
	return k
}

// diskWithin returns center plus every ring up to and including k.
func (g hexGrid) diskWithin(center HexID, k int) []HexID {
	out := make([]HexID, 0, 1+3*k*(k+1))
	for i := 0; i <= k; i++ {
		out = append(out, g.ring(center, i)...)
	}
	return out
}

func axialRound(qf, rf float64) HexID {
	xf, zf := qf, rf
	yf := -xf - zf
	x := math.Round(xf)
	y := math.Round(yf)
	z := math.Round(zf)

	dx := math.Abs(x - xf)
	dy := math.Abs(y - yf)
	dz := math.Abs(z - zf)

	if dx > dy && dx > dz {
		x = -y - z
	} else if dy > dz {
		// y is derived, nothing to correct for axial (q, r) representation
		_ = y
	} else {
		z = -x - y
	}
	return HexID{Q: int64(x), R: int64(z)}
}
