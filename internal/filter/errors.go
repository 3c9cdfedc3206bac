package filter

import "errors"

// ErrOOSMTooOld is returned when an out-of-sequence measurement arrives
// older than anything retained in the history ring (§4.1 edge case).
var ErrOOSMTooOld = errors.New("filter: out-of-sequence measurement older than retained history")

// ErrIllConditioned is returned when the innovation covariance S is too
// close to singular to invert reliably (§4.1: "reject updates whose
// innovation covariance has reciprocal condition number below 1e-12").
var ErrIllConditioned = errors.New("filter: innovation covariance is ill-conditioned")

// ErrNonFinite is returned when a measurement vector or covariance contains
// a NaN or Inf value.
var ErrNonFinite = errors.New("filter: measurement contains non-finite value")
