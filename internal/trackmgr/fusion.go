package trackmgr

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const goldenSectionTol = 1e-4

// covarianceIntersection fuses two Gaussians of unknown cross-correlation
// (§4.4): P = (ω·P1⁻¹ + (1−ω)·P2⁻¹)⁻¹, x = P·(ω·P1⁻¹·x1 + (1−ω)·P2⁻¹·x2),
// with ω chosen by golden-section search to minimize det(P) (equivalently,
// maximize det of the weighted information sum).
func covarianceIntersection(x1 *mat.VecDense, p1 *mat.SymDense, x2 *mat.VecDense, p2 *mat.SymDense) (*mat.VecDense, *mat.SymDense) {
	n := x1.Len()

	var p1Inv, p2Inv mat.Dense
	if err := p1Inv.Inverse(p1); err != nil {
		return fusionCloneVec(x2), fusionCloneSym(p2)
	}
	if err := p2Inv.Inverse(p2); err != nil {
		return fusionCloneVec(x1), fusionCloneSym(p1)
	}

	informationSum := func(omega float64) *mat.Dense {
		var w1, w2, sum mat.Dense
		w1.Scale(omega, &p1Inv)
		w2.Scale(1-omega, &p2Inv)
		sum.Add(&w1, &w2)
		return &sum
	}

	omega := goldenSectionMaxOmega(func(o float64) float64 {
		return mat.Det(informationSum(o))
	})

	sum := informationSum(omega)
	var pNew mat.Dense
	if err := pNew.Inverse(sum); err != nil {
		return fusionCloneVec(x1), fusionCloneSym(p1)
	}

	var p1InvX1, p2InvX2 mat.VecDense
	p1InvX1.MulVec(&p1Inv, x1)
	p2InvX2.MulVec(&p2Inv, x2)

	combined := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		combined.SetVec(i, omega*p1InvX1.AtVec(i)+(1-omega)*p2InvX2.AtVec(i))
	}

	var xNew mat.VecDense
	xNew.MulVec(&pNew, combined)

	return &xNew, fusionSymmetrize(&pNew, n)
}

// goldenSectionMaxOmega locates the ω∈[0,1] maximizing f via golden-section
// search, to tolerance goldenSectionTol.
func goldenSectionMaxOmega(f func(float64) float64) float64 {
	const gr = 0.6180339887498949
	a, b := 0.0, 1.0
	c := b - gr*(b-a)
	d := a + gr*(b-a)
	for math.Abs(b-a) > goldenSectionTol {
		if f(c) > f(d) {
			b = d
		} else {
			a = c
		}
		c = b - gr*(b-a)
		d = a + gr*(b-a)
	}
	return (a + b) / 2
}

func fusionCloneVec(v *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	out.CloneFromVec(v)
	return out
}

func fusionCloneSym(m *mat.SymDense) *mat.SymDense {
	n := m.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(m)
	return out
}

func fusionSymmetrize(m *mat.Dense, n int) *mat.SymDense {
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return out
}
