package filter

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func identityCov(n int, v float64) *mat.SymDense {
	c := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		c.SetSym(i, i, v)
	}
	return c
}

func posVec(x, y, z float64) *mat.VecDense {
	return mat.NewVecDense(3, []float64{x, y, z})
}

func newTestFilter(t0 int64) *Filter {
	state := NewStateVector([3]float64{0, 0, 0}, [3]float64{1, 0, 0}, [3]float64{0, 0, 0})
	cov := identityCov(StateDim, 1.0)
	return New(state, cov, t0, DefaultConfig())
}

func TestPredictAdvancesPositionByVelocity(t *testing.T) {
	f := newTestFilter(0)
	f.Predict(1000)
	s := f.State()
	if math.Abs(s.AtVec(0)-1.0) > 1e-9 {
		t.Fatalf("expected x position ~1.0 after 1s at vx=1, got %v", s.AtVec(0))
	}
}

func TestUpdateCorrectsTowardMeasurement(t *testing.T) {
	f := newTestFilter(0)
	f.Predict(1000)
	err := f.Update(posVec(2, 0, 0), identityCov(3, 0.01), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := f.State()
	if s.AtVec(0) <= 1.0 || s.AtVec(0) > 2.0 {
		t.Fatalf("expected corrected x between prior (1.0) and measurement (2.0), got %v", s.AtVec(0))
	}
}

func TestRejectsNonFiniteMeasurement(t *testing.T) {
	f := newTestFilter(0)
	f.Predict(1000)
	z := posVec(math.NaN(), 0, 0)
	if err := f.Update(z, identityCov(3, 0.01), 1000); err != ErrNonFinite {
		t.Fatalf("expected ErrNonFinite, got %v", err)
	}
}

func TestRejectsIllConditionedInnovation(t *testing.T) {
	state := NewStateVector([3]float64{0, 0, 0}, [3]float64{0, 0, 0}, [3]float64{0, 0, 0})
	cov := mat.NewSymDense(StateDim, nil) // all-zero covariance
	f := New(state, cov, 0, DefaultConfig())
	zeroR := mat.NewSymDense(3, nil)
	if err := f.Update(posVec(0, 0, 0), zeroR, 0); err != ErrIllConditioned {
		t.Fatalf("expected ErrIllConditioned, got %v", err)
	}
}

func TestOOSMTooOldIsRejected(t *testing.T) {
	f := newTestFilter(0)
	for i := int64(1); i <= 5; i++ {
		f.Predict(i * 1000)
		if err := f.Update(posVec(float64(i), 0, 0), identityCov(3, 0.05), i*1000); err != nil {
			t.Fatalf("unexpected update error: %v", err)
		}
	}
	err := f.Update(posVec(-100, 0, 0), identityCov(3, 0.05), -999999)
	if err != ErrOOSMTooOld {
		t.Fatalf("expected ErrOOSMTooOld, got %v", err)
	}
}

// TestOOSMEquivalence verifies the §8 invariant: applying a measurement
// sequence in timestamp order produces (within tolerance) the same final
// posterior as applying one measurement out of sequence via the OOSM path.
func TestOOSMEquivalence(t *testing.T) {
	r := identityCov(3, 0.05)

	inOrder := newTestFilter(0)
	times := []int64{1000, 2000, 3000, 4000}
	measurements := []*mat.VecDense{posVec(1, 0.1, 0), posVec(2, -0.1, 0), posVec(3, 0.2, 0), posVec(4, -0.2, 0)}
	for i, tm := range times {
		inOrder.Predict(tm)
		if err := inOrder.Update(measurements[i], r, tm); err != nil {
			t.Fatalf("in-order update %d failed: %v", i, err)
		}
	}

	outOfOrder := newTestFilter(0)
	// Apply 1000, 3000, 4000 in order, then the 2000 measurement late (OOSM).
	outOfOrder.Predict(1000)
	if err := outOfOrder.Update(measurements[0], r, 1000); err != nil {
		t.Fatalf("oosm setup update 0 failed: %v", err)
	}
	outOfOrder.Predict(3000)
	if err := outOfOrder.Update(measurements[2], r, 3000); err != nil {
		t.Fatalf("oosm setup update 2 failed: %v", err)
	}
	outOfOrder.Predict(4000)
	if err := outOfOrder.Update(measurements[3], r, 4000); err != nil {
		t.Fatalf("oosm setup update 3 failed: %v", err)
	}
	if err := outOfOrder.Update(measurements[1], r, 2000); err != nil {
		t.Fatalf("oosm update failed: %v", err)
	}

	a, b := inOrder.State(), outOfOrder.State()
	for i := 0; i < StateDim; i++ {
		if diff := math.Abs(a.AtVec(i) - b.AtVec(i)); diff > 1e-6 {
			t.Fatalf("state[%d] mismatch: in-order=%v oosm=%v diff=%v", i, a.AtVec(i), b.AtVec(i), diff)
		}
	}
}
