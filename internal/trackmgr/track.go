// Package trackmgr turns a stream of verified measurements into a stable
// set of canonical tracks: gating, Hungarian assignment, covariance
// intersection fusion, and Highlander duplicate-identity reconciliation
// (§4.4), modeled on the teacher's coordination.Coordinator actor.
package trackmgr

import (
	"time"

	"github.com/asgard/godview/internal/filter"
	"github.com/asgard/godview/internal/spatial"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Track is the canonical fused estimate for one physical entity (§3).
type Track struct {
	ID     uuid.UUID
	Class  string
	Filter *filter.Filter

	LastUpdate time.Time
	Version    uint64

	ContributingAgents map[string]struct{}
}

func newTrack(id uuid.UUID, class string, z *mat.VecDense, r *mat.SymDense, atMs int64, p0 *mat.SymDense, agentID string, cfg filter.Config) *Track {
	state := mat.NewVecDense(filter.StateDim, nil)
	for i := 0; i < z.Len(); i++ {
		state.SetVec(i, z.AtVec(i))
	}
	t := &Track{
		ID:                 id,
		Class:              class,
		Filter:             filter.New(state, p0, atMs, cfg),
		LastUpdate:         time.Now().UTC(),
		Version:            1,
		ContributingAgents: map[string]struct{}{agentID: {}},
	}
	return t
}

// Position returns the current posterior position as a spatial.Position.
func (t *Track) Position() spatial.Position {
	s := t.Filter.State()
	return spatial.Position{X: s.AtVec(0), Y: s.AtVec(1), Z: s.AtVec(2)}
}

// PositionCov returns the 3x3 position sub-block of the posterior
// covariance, used for the Highlander ellipsoid-overlap test.
func (t *Track) PositionCov() *mat.SymDense {
	cov := t.Filter.Cov()
	out := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			out.SetSym(i, j, cov.At(i, j))
		}
	}
	return out
}

func (t *Track) touch(agentID string) {
	t.LastUpdate = time.Now().UTC()
	t.Version++
	t.ContributingAgents[agentID] = struct{}{}
}
