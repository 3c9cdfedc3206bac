package spatial

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// EllipsoidRadius returns the radius of the sphere bounding the 3-sigma
// position uncertainty ellipsoid described by the 3x3 position covariance
// posCov: 3*sqrt(largest eigenvalue). The track manager's Highlander overlap
// test is its caller; association gating does not use it and queries the
// index with the fixed maximum association radius instead.
func EllipsoidRadius(posCov *mat.SymDense) float64 {
	var eig mat.EigenSym
	if !eig.Factorize(posCov, false) {
		tr := mat.Trace(posCov)
		if tr < 0 {
			tr = 0
		}
		return 3 * math.Sqrt(tr)
	}
	max := 0.0
	for _, v := range eig.Values(nil) {
		if v > max {
			max = v
		}
	}
	return 3 * math.Sqrt(max)
}
