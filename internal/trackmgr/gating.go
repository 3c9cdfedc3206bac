package trackmgr

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/asgard/godview/internal/filter"
)

// DefaultChiSquareGate derives the default d² acceptance gate from the χ²
// distribution with 3 degrees of freedom at p=0.99 (≈11.34), rather than
// hardcoding the literal (§4.4, §6 assignment_gate_chi2).
func DefaultChiSquareGate() float64 {
	return distuv.ChiSquared{K: 3}.Quantile(0.99)
}

// candidateScore pairs a candidate track with its gating cost for the
// assignment solver.
type candidateScore struct {
	track *Track
	d2    float64
}

// gateCandidates scores every candidate track against (z, r) at timestamp
// atMs using the Mahalanobis distance of the candidate's state predicted
// forward to atMs, keeping only those within the χ² gate.
func gateCandidates(candidates []*Track, z *mat.VecDense, r *mat.SymDense, atMs int64, gate float64) []candidateScore {
	h := filter.MeasurementMatrix(z.Len() == 6)
	out := make([]candidateScore, 0, len(candidates))
	for _, c := range candidates {
		predState, predCov := c.Filter.PredictedAt(atMs)
		d2, err := filter.Mahalanobis(predState, predCov, h, z, r)
		if err != nil {
			continue
		}
		if d2 <= gate {
			out = append(out, candidateScore{track: c, d2: d2})
		}
	}
	return out
}
