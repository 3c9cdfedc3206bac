// Package trust implements per-packet asymmetric signatures, freshness
// checking, and capability-scoped authorization (§4.3).
package trust

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/asgard/godview/internal/wire"
)

// KeySet is an immutable, read-mostly snapshot of trusted Ed25519 public
// keys, indexed by hex-encoded key id. Updates install a new snapshot
// (copy-on-write); a verifier holds one snapshot for the duration of a
// single packet verification (§5).
type KeySet struct {
	keys map[string]ed25519.PublicKey
}

// NewKeySet builds a KeySet from a slice of trusted public keys.
func NewKeySet(keys []ed25519.PublicKey) *KeySet {
	m := make(map[string]ed25519.PublicKey, len(keys))
	for _, k := range keys {
		m[KeyIDOf(k)] = k
	}
	return &KeySet{keys: m}
}

// Lookup returns the public key for a hex key id, and whether it is trusted.
func (s *KeySet) Lookup(keyID string) (ed25519.PublicKey, bool) {
	if s == nil {
		return nil, false
	}
	k, ok := s.keys[keyID]
	return k, ok
}

// KeyIDOf returns the canonical string identifier for a public key.
func KeyIDOf(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// TrustedKeyStore holds the live KeySet and swaps it atomically — the
// copy-on-write update mechanism described in §5 ("Shared resources").
type TrustedKeyStore struct {
	snapshot atomic.Pointer[KeySet]
}

// NewTrustedKeyStore creates a store seeded with the given snapshot.
func NewTrustedKeyStore(initial *KeySet) *TrustedKeyStore {
	s := &TrustedKeyStore{}
	s.snapshot.Store(initial)
	return s
}

// Snapshot returns the currently-installed KeySet. The caller should use
// this single value for the duration of one verification, per §5.
func (s *TrustedKeyStore) Snapshot() *KeySet {
	return s.snapshot.Load()
}

// Swap installs a new KeySet, replacing the prior snapshot wholesale.
func (s *TrustedKeyStore) Swap(next *KeySet) {
	s.snapshot.Store(next)
}

// Signer holds a private signing key and signs payloads into SignedPackets.
type Signer struct {
	priv ed25519.PrivateKey
}

// NewSigner wraps a raw Ed25519 private key (as produced by a key-provider).
func NewSigner(priv ed25519.PrivateKey) *Signer {
	return &Signer{priv: priv}
}

// Sign produces a SignedPacket over payload, optionally scoped by a
// capability, stamping IssuedAtNS with the current wall time (§4.3).
func (s *Signer) Sign(payload []byte, capability *wire.Capability) wire.SignedPacket {
	p := wire.SignedPacket{
		Payload:    payload,
		KeyID:      []byte(s.priv.Public().(ed25519.PublicKey)),
		IssuedAtNS: time.Now().UnixNano(),
		Capability: capability,
	}
	p.Signature = ed25519.Sign(s.priv, p.SigningBytes())
	return p
}

// CapabilityIssuer signs capability grants on behalf of an authority key.
type CapabilityIssuer struct {
	priv ed25519.PrivateKey
}

// NewCapabilityIssuer wraps the issuer's private key.
func NewCapabilityIssuer(priv ed25519.PrivateKey) *CapabilityIssuer {
	return &CapabilityIssuer{priv: priv}
}

// Issue grants scope to subjectPub until expiry.
func (ci *CapabilityIssuer) Issue(subjectPub ed25519.PublicKey, scope string, expiry time.Time) wire.Capability {
	c := wire.Capability{
		Scope:         scope,
		ExpiryNS:      expiry.UnixNano(),
		SubjectPubKey: []byte(subjectPub),
		IssuerPubKey:  []byte(ci.priv.Public().(ed25519.PublicKey)),
	}
	c.IssuerSignature = ed25519.Sign(ci.priv, c.SigningBytes())
	return c
}

// Verifier checks SignedPackets against a trusted key snapshot.
type Verifier struct {
	// RequiredScopes is the set of capability scopes this collaborator
	// accepts; a packet with a capability outside this set fails with
	// ErrScopeMissing. An empty set means any declared scope is accepted
	// for collaborators that do not gate by scope at all.
	RequiredScopes map[string]struct{}
}

// NewVerifier creates a Verifier accepting the given required scopes.
func NewVerifier(requiredScopes ...string) *Verifier {
	m := make(map[string]struct{}, len(requiredScopes))
	for _, s := range requiredScopes {
		m[s] = struct{}{}
	}
	return &Verifier{RequiredScopes: m}
}

// Verify checks p against trusted, at wall-clock now, with the given
// freshness window, in the order specified by §4.3: signature, freshness,
// capability signature, capability expiry, scope. It returns the verified
// payload on success.
func (v *Verifier) Verify(p wire.SignedPacket, trusted *KeySet, now time.Time, freshnessWindow time.Duration) ([]byte, error) {
	pub, ok := trusted.Lookup(hexKeyID(p.KeyID))
	if !ok {
		return nil, ErrUnknownKey
	}
	if !ed25519.Verify(pub, p.SigningBytes(), p.Signature) {
		return nil, ErrBadSignature
	}

	delta := now.UnixNano() - p.IssuedAtNS
	if delta < 0 {
		delta = -delta
	}
	if delta > freshnessWindow.Nanoseconds() {
		return nil, ErrStale
	}

	if p.Capability != nil {
		if err := v.verifyCapability(*p.Capability, trusted, now); err != nil {
			return nil, err
		}
	}

	return p.Payload, nil
}

func (v *Verifier) verifyCapability(c wire.Capability, trusted *KeySet, now time.Time) error {
	issuerPub, ok := trusted.Lookup(hexKeyID(c.IssuerPubKey))
	if !ok {
		return fmt.Errorf("%w: issuer key not trusted", ErrCapabilityInvalid)
	}
	if !ed25519.Verify(issuerPub, c.SigningBytes(), c.IssuerSignature) {
		return ErrCapabilityInvalid
	}
	if c.Expired(now.UnixNano()) {
		return ErrCapabilityExpired
	}
	if len(v.RequiredScopes) > 0 {
		if _, ok := v.RequiredScopes[c.Scope]; !ok {
			return ErrScopeMissing
		}
	}
	return nil
}

func hexKeyID(keyID []byte) string {
	return KeyIDOf(ed25519.PublicKey(keyID))
}
