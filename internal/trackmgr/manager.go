package trackmgr

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/asgard/godview/internal/filter"
	"github.com/asgard/godview/internal/spatial"
	"github.com/asgard/godview/internal/wire"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Recorder receives the counters named in §7; internal/metrics implements
// it against Prometheus. Manager falls back to a no-op when none is given.
type Recorder interface {
	IncOOSMDropped()
	IncFilterReject()
	IncMergePerformed()
	IncTrackSpawned()
	IncTrackRetired()
}

type noopRecorder struct{}

func (noopRecorder) IncOOSMDropped()    {}
func (noopRecorder) IncFilterReject()   {}
func (noopRecorder) IncMergePerformed() {}
func (noopRecorder) IncTrackSpawned()   {}
func (noopRecorder) IncTrackRetired()   {}

// Config controls gating, fusion, and reconciliation parameters (§6).
type Config struct {
	FilterConfig          filter.Config
	MaxAssociationRadiusM float64
	AssignmentGateChi2    float64
	ReconciliationPeriod  time.Duration
	IdleTimeout           time.Duration
	TombstoneCapacity     int
	PriorCovDiag          float64
}

// DefaultConfig returns the spec defaults (§6).
func DefaultConfig() Config {
	return Config{
		FilterConfig:          filter.DefaultConfig(),
		MaxAssociationRadiusM: 20.0,
		AssignmentGateChi2:    DefaultChiSquareGate(),
		ReconciliationPeriod:  500 * time.Millisecond,
		IdleTimeout:           5 * time.Second,
		TombstoneCapacity:     10000,
		PriorCovDiag:          10.0,
	}
}

// Manager is the Track Manager actor (§5): it owns every Track's filter
// state directly. Its ingest, reconciliation, and retirement goroutines are
// serialized by one manager-wide mutex, so there are no per-track locks.
type Manager struct {
	mu sync.Mutex

	cfg        Config
	index      *spatial.Index
	tracks     map[uuid.UUID]*Track
	tombstones *tombstoneLRU
	recorder   Recorder

	inbound chan wire.Measurement
	events  chan wire.TrackDelta
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewManager builds a Manager over a shared spatial index. recorder may be
// nil, in which case metric events are discarded.
func NewManager(cfg Config, idx *spatial.Index, recorder Recorder) *Manager {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Manager{
		cfg:        cfg,
		index:      idx,
		tracks:     make(map[uuid.UUID]*Track),
		tombstones: newTombstoneLRU(cfg.TombstoneCapacity),
		recorder:   recorder,
		inbound:    make(chan wire.Measurement, 256),
		events:     make(chan wire.TrackDelta, 256),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the ingest, reconciliation, and idle-retirement actors.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(3)
	go m.ingestLoop(ctx)
	go m.reconciliationLoop(ctx)
	go m.retirementLoop(ctx)
}

// Stop halts every Manager goroutine and waits for them to exit;
// measurements still in the inbound queue are not processed.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Submit enqueues a verified measurement for processing (§6 inbound
// detection interface). Returns immediately.
func (m *Manager) Submit(meas wire.Measurement) error {
	select {
	case m.inbound <- meas:
		return nil
	default:
		return fmt.Errorf("trackmgr: inbound queue full")
	}
}

// Events returns the outbound track-update subscription (§6).
func (m *Manager) Events() <-chan wire.TrackDelta {
	return m.events
}

// TombstoneSurvivor resolves a possibly merged-away UUID to the live
// survivor it was folded into, or returns id unchanged if it was never
// merged (§5: "tombstone LRU is private to the Track Manager actor").
func (m *Manager) TombstoneSurvivor(id uuid.UUID) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tombstones.resolve(id)
}

func (m *Manager) ingestLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case first := <-m.inbound:
			batch := []wire.Measurement{first}
			draining := true
			for draining {
				select {
				case meas := <-m.inbound:
					batch = append(batch, meas)
				default:
					draining = false
				}
			}
			m.processBatch(batch)
		}
	}
}

type measurementRow struct {
	meas       wire.Measurement
	z          *mat.VecDense
	r          *mat.SymDense
	candidates []candidateScore
}

// processBatch implements §4.4 gating + Hungarian assignment over one
// ingest epoch.
func (m *Manager) processBatch(batch []wire.Measurement) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trackUnion := make(map[uuid.UUID]*Track)
	rows := make([]measurementRow, 0, len(batch))

	for _, meas := range batch {
		z, r, err := measurementVectors(meas)
		if err != nil {
			log.Printf("[trackmgr] dropping malformed measurement: %v", err)
			continue
		}
		pos := spatial.Position{X: meas.Entity.Position.X, Y: meas.Entity.Position.Y, Z: meas.Entity.Position.Z}
		nearbyIDs := m.index.QueryRadius(pos, m.cfg.MaxAssociationRadiusM)
		candidates := make([]*Track, 0, len(nearbyIDs))
		for _, id := range nearbyIDs {
			if t, ok := m.tracks[id]; ok {
				candidates = append(candidates, t)
			}
		}
		scored := gateCandidates(candidates, z, r, meas.Entity.TimestampMS, m.cfg.AssignmentGateChi2)
		for _, s := range scored {
			trackUnion[s.track.ID] = s.track
		}
		rows = append(rows, measurementRow{meas: meas, z: z, r: r, candidates: scored})
	}

	trackIDs := make([]uuid.UUID, 0, len(trackUnion))
	colIndex := make(map[uuid.UUID]int)
	for id := range trackUnion {
		colIndex[id] = len(trackIDs)
		trackIDs = append(trackIDs, id)
	}

	cost := make([][]float64, len(rows))
	for i, row := range rows {
		cost[i] = make([]float64, len(trackIDs))
		for j := range cost[i] {
			cost[i][j] = infeasibleCost
		}
		for _, s := range row.candidates {
			cost[i][colIndex[s.track.ID]] = s.d2
		}
	}

	assignment := solveAssignment(cost, len(rows), len(trackIDs))

	assignedThisEpoch := make(map[uuid.UUID]bool)
	var unassigned []int
	for i, row := range rows {
		col := assignment[i]
		if col < 0 || col >= len(trackIDs) {
			unassigned = append(unassigned, i)
			continue
		}
		track := m.tracks[trackIDs[col]]
		m.applyMeasurement(track, row.meas, row.z, row.r)
		assignedThisEpoch[track.ID] = true
	}

	// §4.4: a second measurement for a track already matched this epoch
	// (e.g. two agents observing the same target) fuses into that track
	// instead of spawning a duplicate.
	for _, i := range unassigned {
		row := rows[i]
		merged := false
		for _, s := range row.candidates {
			if assignedThisEpoch[s.track.ID] {
				m.applyMeasurement(s.track, row.meas, row.z, row.r)
				merged = true
				break
			}
		}
		if !merged {
			m.spawnTrack(row.meas, row.z, row.r)
		}
	}
}

func (m *Manager) applyMeasurement(track *Track, meas wire.Measurement, z *mat.VecDense, r *mat.SymDense) {
	tMs := meas.Entity.TimestampMS
	if _, alreadyContributing := track.ContributingAgents[meas.AgentID]; !alreadyContributing && len(track.ContributingAgents) > 0 {
		predState, predCov := track.Filter.PredictedAt(tMs)
		obsState, obsCov := expandMeasurementToState(z, r, predState)
		fusedState, fusedCov := covarianceIntersection(predState, predCov, obsState, obsCov)
		track.Filter = filter.New(fusedState, fusedCov, tMs, m.cfg.FilterConfig)
	} else if err := track.Filter.Update(z, r, tMs); err != nil {
		m.recorder.IncFilterReject()
		if err == filter.ErrOOSMTooOld {
			m.recorder.IncOOSMDropped()
		}
		log.Printf("[trackmgr] update rejected for track %s: %v", track.ID, err)
		return
	}
	track.touch(meas.AgentID)
	m.index.Upsert(track.ID, track.Position())
	m.emit(track, nil, false)
}

func (m *Manager) spawnTrack(meas wire.Measurement, z *mat.VecDense, r *mat.SymDense) {
	id := uuid.New()
	p0 := mat.NewSymDense(filter.StateDim, nil)
	for i := 0; i < filter.StateDim; i++ {
		p0.SetSym(i, i, m.cfg.PriorCovDiag)
	}
	n := r.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			p0.SetSym(i, j, r.At(i, j))
		}
	}

	t := newTrack(id, meas.Entity.Class, z, r, meas.Entity.TimestampMS, p0, meas.AgentID, m.cfg.FilterConfig)
	m.tracks[id] = t
	m.index.Upsert(id, t.Position())
	m.recorder.IncTrackSpawned()
	log.Printf("[trackmgr] spawned track %s (class=%s)", id, t.Class)
	m.emit(t, nil, false)
}

func (m *Manager) reconciliationLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.ReconciliationPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reconcile()
		}
	}
}

// reconcile implements the Highlander rule (§4.4): tracks are visited in
// lexicographic UUID order so the smaller of any overlapping pair is always
// the one already "in hand" when the overlap is found, which is what makes
// the survivor selection deterministic regardless of scan order.
func (m *Manager) reconcile() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(m.tracks))
	for id := range m.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	merged := make(map[uuid.UUID]bool)
	for i := 0; i < len(ids); i++ {
		a := ids[i]
		if merged[a] {
			continue
		}
		trackA, ok := m.tracks[a]
		if !ok {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			b := ids[j]
			if merged[b] {
				continue
			}
			trackB, ok := m.tracks[b]
			if !ok {
				continue
			}
			if !overlaps(trackA, trackB) {
				continue
			}
			m.mergeTracks(trackA, trackB)
			merged[b] = true
		}
	}
}

func (m *Manager) mergeTracks(survivor, loser *Track) {
	tNow := survivor.Filter.Now()
	sState, sCov := survivor.Filter.State(), survivor.Filter.Cov()
	lState, lCov := loser.Filter.PredictedAt(tNow)

	fusedState, fusedCov := covarianceIntersection(sState, sCov, lState, lCov)
	survivor.Filter = filter.New(fusedState, fusedCov, tNow, m.cfg.FilterConfig)
	for agent := range loser.ContributingAgents {
		survivor.ContributingAgents[agent] = struct{}{}
	}
	survivor.Version++
	survivor.LastUpdate = time.Now().UTC()

	delete(m.tracks, loser.ID)
	m.index.Remove(loser.ID)
	m.tombstones.put(loser.ID, survivor.ID)
	m.recorder.IncMergePerformed()

	supersededBy := survivor.ID
	m.emit(loser, &supersededBy, false)
	m.index.Upsert(survivor.ID, survivor.Position())
	m.emit(survivor, nil, false)
	log.Printf("[trackmgr] merged track %s into %s (Highlander)", loser.ID, survivor.ID)
}

func (m *Manager) retirementLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.retireIdle()
		}
	}
}

func (m *Manager) retireIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for id, t := range m.tracks {
		if now.Sub(t.LastUpdate) < m.cfg.IdleTimeout {
			continue
		}
		delete(m.tracks, id)
		m.index.Remove(id)
		m.recorder.IncTrackRetired()
		m.emit(t, nil, true)
		log.Printf("[trackmgr] retired idle track %s", id)
	}
}

func (m *Manager) emit(t *Track, supersededBy *uuid.UUID, retired bool) {
	state := t.Filter.State()
	cov := t.Filter.Cov()
	agents := make([]string, 0, len(t.ContributingAgents))
	for a := range t.ContributingAgents {
		agents = append(agents, a)
	}
	delta := wire.TrackDelta{
		TrackID:            t.ID,
		State:              vecToSlice(state),
		Covariance:         symToSlice(cov),
		Version:            t.Version,
		ContributingAgents: agents,
		SupersededBy:       supersededBy,
		Retired:            retired,
		Class:              t.Class,
		LastUpdate:         t.LastUpdate,
	}
	select {
	case m.events <- delta:
	default:
		log.Printf("[trackmgr] outbound event channel full, dropping update for %s", t.ID)
	}
}

func measurementVectors(meas wire.Measurement) (*mat.VecDense, *mat.SymDense, error) {
	n := len(meas.Cov)
	var dim int
	switch n {
	case 9:
		dim = 3
	case 36:
		dim = 6
	default:
		return nil, nil, fmt.Errorf("trackmgr: unexpected covariance length %d", n)
	}

	z := mat.NewVecDense(dim, nil)
	z.SetVec(0, meas.Entity.Position.X)
	z.SetVec(1, meas.Entity.Position.Y)
	z.SetVec(2, meas.Entity.Position.Z)
	if dim == 6 {
		z.SetVec(3, meas.Entity.Velocity.X)
		z.SetVec(4, meas.Entity.Velocity.Y)
		z.SetVec(5, meas.Entity.Velocity.Z)
	}

	r := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			v := meas.Cov[i*dim+j]
			r.SetSym(i, j, v)
		}
	}
	return z, r, nil
}

// expandMeasurementToState lifts a 3- or 6-dim observation into the full
// 9-state space for covariance-intersection fusion against a track's
// predicted state: observed dimensions carry their real covariance,
// unobserved ones are marked uninformative so CI doesn't distort them.
func expandMeasurementToState(z *mat.VecDense, r *mat.SymDense, referenceState *mat.VecDense) (*mat.VecDense, *mat.SymDense) {
	const uninformative = 1e6
	state := mat.NewVecDense(filter.StateDim, nil)
	cov := mat.NewSymDense(filter.StateDim, nil)
	for i := 0; i < filter.StateDim; i++ {
		cov.SetSym(i, i, uninformative)
		state.SetVec(i, referenceState.AtVec(i))
	}
	n := z.Len()
	for i := 0; i < n; i++ {
		state.SetVec(i, z.AtVec(i))
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, r.At(i, j))
		}
	}
	return state, cov
}

func vecToSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

func symToSlice(m *mat.SymDense) []float64 {
	n := m.SymmetricDim()
	out := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = m.At(i, j)
		}
	}
	return out
}
