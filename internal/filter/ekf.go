package filter

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// rcondFloor is the minimum reciprocal condition number an innovation
// covariance may have before an update is rejected outright (§4.1).
const rcondFloor = 1e-12

// timeEpsilonMS is the tolerance used to decide whether an incoming
// measurement lands "now" (in-place update) or in the past (OOSM).
const timeEpsilonMS = 1

// snapshot is one retained history checkpoint: the posterior state/cov as
// of T, plus the measurement that produced it so an OOSM replay can redo
// the same correction against a corrected upstream trajectory.
type snapshot struct {
	T     int64
	State *mat.VecDense
	Cov   *mat.SymDense
	Z     *mat.VecDense
	R     *mat.SymDense
	H     *mat.Dense
}

// Filter is one track's augmented-state EKF, including the bounded OOSM
// history ring (§4.1).
type Filter struct {
	state *mat.VecDense
	cov   *mat.SymDense
	now   int64

	lastZ *mat.VecDense
	lastR *mat.SymDense
	lastH *mat.Dense
	// pending is true when lastZ/lastR/lastH correct the live state at Now()
	// but have not yet been archived into history by a Predict call.
	pending bool

	history  []snapshot
	capacity int

	qScale float64
}

// Config controls the filter's process-noise scale and history depth.
type Config struct {
	QScale          float64
	HistoryCapacity int
}

// DefaultConfig returns the spec defaults (§6: history_depth=20,
// process_noise_q_scale=0.01).
func DefaultConfig() Config {
	return Config{QScale: 0.01, HistoryCapacity: 20}
}

// New creates a filter seeded with an initial state/covariance at time t0Ms.
func New(state *mat.VecDense, cov *mat.SymDense, t0Ms int64, cfg Config) *Filter {
	cap := cfg.HistoryCapacity
	if cap <= 0 {
		cap = 20
	}
	qs := cfg.QScale
	if qs <= 0 {
		qs = 0.01
	}
	return &Filter{
		state:    cloneVec(state),
		cov:      cloneSym(cov),
		now:      t0Ms,
		history:  make([]snapshot, 0, cap),
		capacity: cap,
		qScale:   qs,
	}
}

// State returns a copy of the live posterior state at Now().
func (f *Filter) State() *mat.VecDense { return cloneVec(f.state) }

// Cov returns a copy of the live posterior covariance at Now().
func (f *Filter) Cov() *mat.SymDense { return cloneSym(f.cov) }

// Now returns the filter's current time, in milliseconds.
func (f *Filter) Now() int64 { return f.now }

// Predict advances the filter to nowMs, pushing the pre-prediction snapshot
// onto the bounded history ring (oldest evicted once capacity is exceeded).
func (f *Filter) Predict(nowMs int64) {
	entry := snapshot{T: f.now, State: cloneVec(f.state), Cov: cloneSym(f.cov)}
	if f.pending {
		entry.Z, entry.R, entry.H = f.lastZ, f.lastR, f.lastH
		f.pending = false
	}
	f.history = append(f.history, entry)
	if len(f.history) > f.capacity {
		f.history = f.history[len(f.history)-f.capacity:]
	}

	dt := float64(nowMs-f.now) / 1000
	f.state, f.cov = propagate(f.state, f.cov, dt, f.qScale)
	f.now = nowMs
}

// Update incorporates a measurement z (with covariance R, measurement
// matrix implied by z's length: 3 rows for position-only, 6 for
// position+velocity) timestamped tMs. In-order measurements (within
// timeEpsilonMS of Now()) update in place; older ones take the OOSM path:
// roll back to the nearest retained snapshot, reapply forward, and replay
// every subsequent historical update so the final posterior at Now()
// reflects the corrected trajectory (§4.1).
func (f *Filter) Update(z *mat.VecDense, r *mat.SymDense, tMs int64) error {
	if !isFiniteVec(z) || !isFiniteSym(r) {
		return ErrNonFinite
	}
	h := positionMeasurementMatrix(z.Len() == 6)

	delta := tMs - f.now
	if delta > timeEpsilonMS {
		// Ahead of the filter's current time: predict forward first so the
		// correction is applied at, and Now() remains, tMs.
		f.Predict(tMs)
		delta = 0
	}
	if delta >= -timeEpsilonMS {
		newState, newCov, err := kalmanUpdate(f.state, f.cov, h, z, r)
		if err != nil {
			return err
		}
		f.state, f.cov = newState, newCov
		f.lastZ, f.lastR, f.lastH = z, r, h
		f.pending = true
		return nil
	}
	return f.applyOOSM(z, r, h, tMs)
}

func (f *Filter) applyOOSM(z *mat.VecDense, r *mat.SymDense, h *mat.Dense, tMs int64) error {
	if len(f.history) == 0 || tMs < f.history[0].T {
		return ErrOOSMTooOld
	}

	branch := 0
	for i, snap := range f.history {
		if snap.T <= tMs {
			branch = i
		} else {
			break
		}
	}

	base := f.history[branch]
	dt := float64(tMs-base.T) / 1000
	predState, predCov := propagate(base.State, base.Cov, dt, f.qScale)
	corrected, correctedCov, err := kalmanUpdate(predState, predCov, h, z, r)
	if err != nil {
		return err
	}

	replayed := make([]snapshot, branch+1, f.capacity)
	copy(replayed, f.history[:branch+1])
	replayed = append(replayed, snapshot{T: tMs, State: corrected, Cov: correctedCov, Z: z, R: r, H: h})

	prevT := tMs
	prevState, prevCov := corrected, correctedCov
	for i := branch + 1; i < len(f.history); i++ {
		old := f.history[i]
		if old.Z == nil {
			continue
		}
		dt := float64(old.T-prevT) / 1000
		ps, pc := propagate(prevState, prevCov, dt, f.qScale)
		ns, nc, err := kalmanUpdate(ps, pc, old.H, old.Z, old.R)
		if err != nil {
			return err
		}
		replayed = append(replayed, snapshot{T: old.T, State: ns, Cov: nc, Z: old.Z, R: old.R, H: old.H})
		prevState, prevCov, prevT = ns, nc, old.T
	}

	// The live state's own correction (if any) has not yet been archived
	// into history by a Predict call, so it must be redone here too.
	if f.pending {
		dt := float64(f.now-prevT) / 1000
		ps, pc := propagate(prevState, prevCov, dt, f.qScale)
		ns, nc, err := kalmanUpdate(ps, pc, f.lastH, f.lastZ, f.lastR)
		if err != nil {
			return err
		}
		f.state, f.cov = ns, nc
	} else {
		f.state, f.cov = propagate(prevState, prevCov, float64(f.now-prevT)/1000, f.qScale)
	}

	if len(replayed) > f.capacity {
		replayed = replayed[len(replayed)-f.capacity:]
	}
	f.history = replayed
	return nil
}

// PredictedAt returns the state/cov the filter would have at tMs, without
// mutating the filter (a read-only peek used by gating to score candidates
// without committing to a prediction step).
func (f *Filter) PredictedAt(tMs int64) (*mat.VecDense, *mat.SymDense) {
	dt := float64(tMs-f.now) / 1000
	return propagate(f.state, f.cov, dt, f.qScale)
}

// Mahalanobis returns the squared Mahalanobis distance d² = yᵀS⁻¹y of
// measurement z (covariance r) against (state, cov) under measurement
// matrix h, without applying any correction (§4.4 gating).
func Mahalanobis(state *mat.VecDense, cov *mat.SymDense, h *mat.Dense, z *mat.VecDense, r *mat.SymDense) (float64, error) {
	m, _ := h.Dims()

	var hx mat.VecDense
	hx.MulVec(h, state)
	y := mat.NewVecDense(m, nil)
	y.SubVec(z, &hx)

	var ph mat.Dense
	ph.Mul(cov, h.T())
	var hph mat.Dense
	hph.Mul(h, &ph)

	s := mat.NewDense(m, m, nil)
	s.Add(&hph, r)

	cond := mat.Cond(s, 2)
	if math.IsInf(cond, 1) || cond == 0 || 1/cond < rcondFloor {
		return 0, ErrIllConditioned
	}

	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return 0, ErrIllConditioned
	}

	var sInvY mat.VecDense
	sInvY.MulVec(&sInv, y)
	return mat.Dot(y, &sInvY), nil
}

// kalmanUpdate applies one EKF correction step and returns the posterior.
func kalmanUpdate(state *mat.VecDense, cov *mat.SymDense, h *mat.Dense, z *mat.VecDense, r *mat.SymDense) (*mat.VecDense, *mat.SymDense, error) {
	m, _ := h.Dims()

	var hx mat.VecDense
	hx.MulVec(h, state)
	innovation := mat.NewVecDense(m, nil)
	innovation.SubVec(z, &hx)

	var ph mat.Dense
	ph.Mul(cov, h.T())
	var hph mat.Dense
	hph.Mul(h, &ph)

	s := mat.NewDense(m, m, nil)
	s.Add(&hph, r)

	cond := mat.Cond(s, 2)
	if math.IsInf(cond, 1) || cond == 0 || 1/cond < rcondFloor {
		return nil, nil, ErrIllConditioned
	}

	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return nil, nil, ErrIllConditioned
	}

	var k mat.Dense
	k.Mul(&ph, &sInv)

	var ky mat.VecDense
	ky.MulVec(&k, innovation)

	newState := mat.NewVecDense(StateDim, nil)
	newState.AddVec(state, &ky)

	var kh mat.Dense
	kh.Mul(&k, h)
	ikH := mat.NewDense(StateDim, StateDim, nil)
	for i := 0; i < StateDim; i++ {
		ikH.Set(i, i, 1)
	}
	ikH.Sub(ikH, &kh)

	var newCovDense mat.Dense
	newCovDense.Mul(ikH, cov)
	newCov := symmetrize(&newCovDense)

	return newState, newCov, nil
}

func isFiniteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func isFiniteSym(m *mat.SymDense) bool {
	n := m.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x := m.At(i, j)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}
