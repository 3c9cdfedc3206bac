package trust

import "errors"

// Verification failure kinds (§4.3, §7). Each is a distinct sentinel so
// callers can switch on errors.Is without parsing strings.
var (
	ErrBadSignature      = errors.New("trust: signature does not verify")
	ErrStale             = errors.New("trust: packet outside freshness window")
	ErrUnknownKey        = errors.New("trust: signing key not in trusted set")
	ErrCapabilityInvalid = errors.New("trust: capability signature does not verify")
	ErrCapabilityExpired = errors.New("trust: capability has expired")
	ErrScopeMissing      = errors.New("trust: capability scope not in required-scopes set")
)
