// Package filter implements the augmented-state EKF described in §4.1: a
// 9-dimensional (position, velocity, acceleration) constant-acceleration
// kinematic model with a bounded history ring enabling correct
// out-of-sequence measurement (OOSM) incorporation.
package filter

import "gonum.org/v1/gonum/mat"

// StateDim is the dimensionality of the augmented state: 3 axes x
// (position, velocity, acceleration).
const StateDim = 9

// NewStateVector builds the 9-vector [px,py,pz,vx,vy,vz,ax,ay,az].
func NewStateVector(pos, vel, acc [3]float64) *mat.VecDense {
	return mat.NewVecDense(StateDim, []float64{
		pos[0], pos[1], pos[2],
		vel[0], vel[1], vel[2],
		acc[0], acc[1], acc[2],
	})
}

// transitionMatrix builds the discrete-time constant-acceleration state
// transition F(dt) for the 9-state: position += v*dt + 1/2*a*dt^2,
// velocity += a*dt, acceleration unchanged, applied independently per axis.
func transitionMatrix(dtSeconds float64) *mat.Dense {
	f := mat.NewDense(StateDim, StateDim, nil)
	for i := 0; i < StateDim; i++ {
		f.Set(i, i, 1)
	}
	half := 0.5 * dtSeconds * dtSeconds
	for axis := 0; axis < 3; axis++ {
		pos, vel, acc := axis, axis+3, axis+6
		f.Set(pos, vel, dtSeconds)
		f.Set(pos, acc, half)
		f.Set(vel, acc, dtSeconds)
	}
	return f
}

// processNoise builds Q(dt), scaled by qScale, growing with dt as a simple
// diagonal (independent per axis/derivative) process-noise model (§4.1:
// "process noise covariance Q scales with dt").
func processNoise(dtSeconds, qScale float64) *mat.SymDense {
	q := mat.NewSymDense(StateDim, nil)
	dt := dtSeconds
	if dt < 0 {
		dt = -dt
	}
	posVar := qScale * dt * dt * dt / 3
	velVar := qScale * dt
	accVar := qScale * dt
	for axis := 0; axis < 3; axis++ {
		q.SetSym(axis, axis, posVar)
		q.SetSym(axis+3, axis+3, velVar)
		q.SetSym(axis+6, axis+6, accVar)
	}
	return q
}

// propagate advances (state, cov) by dtSeconds under the CA model,
// returning new matrices (inputs are left untouched).
func propagate(state *mat.VecDense, cov *mat.SymDense, dtSeconds, qScale float64) (*mat.VecDense, *mat.SymDense) {
	f := transitionMatrix(dtSeconds)

	newState := mat.NewVecDense(StateDim, nil)
	newState.MulVec(f, state)

	var fp mat.Dense
	fp.Mul(f, cov)
	var fpft mat.Dense
	fpft.Mul(&fp, f.T())

	q := processNoise(dtSeconds, qScale)
	var sum mat.Dense
	sum.Add(&fpft, q)

	newCov := mat.NewSymDense(StateDim, nil)
	for i := 0; i < StateDim; i++ {
		for j := i; j < StateDim; j++ {
			avg := (sum.At(i, j) + sum.At(j, i)) / 2
			newCov.SetSym(i, j, avg)
		}
	}
	return newState, newCov
}

// MeasurementMatrix returns H = [I3 0 0] for a 3-row position-only
// measurement, or the 6-row [I3 0 0; 0 I3 0] stack when velocity is
// directly observed too. Exported so callers (gating) can build the same H
// a subsequent Update call would use, without duplicating the layout.
func MeasurementMatrix(velocityObserved bool) *mat.Dense {
	return positionMeasurementMatrix(velocityObserved)
}

func positionMeasurementMatrix(velocityObserved bool) *mat.Dense {
	rows := 3
	if velocityObserved {
		rows = 6
	}
	h := mat.NewDense(rows, StateDim, nil)
	for i := 0; i < 3; i++ {
		h.Set(i, i, 1)
	}
	if velocityObserved {
		for i := 0; i < 3; i++ {
			h.Set(3+i, 3+i, 1)
		}
	}
	return h
}

func cloneVec(v *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	out.CloneFromVec(v)
	return out
}

func cloneSym(m *mat.SymDense) *mat.SymDense {
	n := m.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(m)
	return out
}

func symmetrize(m *mat.Dense) *mat.SymDense {
	r, _ := m.Dims()
	out := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			out.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return out
}
