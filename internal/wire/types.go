// Package wire defines the shared record types and canonical binary encoding used
// both over the network and as the payload that gets signed by the trust layer.
package wire

import (
	"time"

	"github.com/google/uuid"
)

// Vector3 is an opaque 3-vector in the single globally-agreed frame the boundary
// adapter is responsible for establishing. godview never interprets X/Y/Z as
// geodetic or ECEF itself.
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

// Entity is the observation unit crossing the inbound boundary: one detection,
// produced by exactly one agent, at one instant.
type Entity struct {
	ID         uuid.UUID
	Position   Vector3
	Velocity   Vector3
	Class      string
	TimestampMS int64
	Confidence float64
}

// Measurement pairs an Entity with its measurement-noise covariance and the
// agent that produced it. Cov is either 3x3 (position-only) or 6x6
// (position+velocity), row-major, flattened.
type Measurement struct {
	Entity  Entity
	Cov     []float64
	AgentID string
}

// PositionOnly reports whether this measurement carries a 3x3 (not 6x6)
// noise covariance.
func (m Measurement) PositionOnly() bool {
	return len(m.Cov) == 9
}

// Capability is a signed grant asserting a subject key may emit packets
// tagged with Scope, until ExpiryNS (unix nanoseconds).
type Capability struct {
	Scope           string
	ExpiryNS        int64
	SubjectPubKey   []byte
	IssuerPubKey    []byte
	IssuerSignature []byte
}

// Expired reports whether the capability has expired as of now (unix ns).
func (c Capability) Expired(nowNS int64) bool {
	return nowNS > c.ExpiryNS
}

// SigningBytes returns the bytes the issuer signs over: subject-pubkey || scope || expiry.
func (c Capability) SigningBytes() []byte {
	buf := make([]byte, 0, len(c.SubjectPubKey)+len(c.Scope)+8)
	buf = append(buf, c.SubjectPubKey...)
	buf = append(buf, []byte(c.Scope)...)
	buf = appendBE64(buf, uint64(c.ExpiryNS))
	return buf
}

// SignedPacket is payload bytes plus provenance: the signing key id, the
// signature itself, an issued-at timestamp, and an optional capability.
type SignedPacket struct {
	Payload      []byte
	KeyID        []byte // Ed25519 public key, 32 bytes
	Signature    []byte // Ed25519 signature, 64 bytes
	IssuedAtNS   int64
	Capability   *Capability
}

// SigningBytes returns canonical-bytes(payload) || be64(issued_at_ns) || capability_bytes
// (zero-length capability_bytes if absent) — the exact bytes Ed25519 signs over.
func (p SignedPacket) SigningBytes() []byte {
	buf := make([]byte, 0, len(p.Payload)+8+capabilityLen(p.Capability))
	buf = append(buf, p.Payload...)
	buf = appendBE64(buf, uint64(p.IssuedAtNS))
	if p.Capability != nil {
		buf = append(buf, encodeCapability(*p.Capability)...)
	}
	return buf
}

func capabilityLen(c *Capability) int {
	if c == nil {
		return 0
	}
	return len(encodeCapability(*c))
}

// PayloadTag discriminates the closed tagged union of payload types carried
// inside a SignedPacket's Payload field (§6 wire protocol).
type PayloadTag uint8

const (
	TagMeasurement     PayloadTag = 0x01
	TagTrackDelta      PayloadTag = 0x02
	TagCapabilityGrant PayloadTag = 0x03
)

// TrackDelta is the outbound notification emitted on every track change
// (§6 outbound track interface).
type TrackDelta struct {
	TrackID            uuid.UUID
	State              []float64 // 9-vector: position, velocity, acceleration
	Covariance         []float64 // 9x9, row-major, flattened
	Version            uint64
	ContributingAgents []string
	SupersededBy       *uuid.UUID // set on the final event for a merged-away track
	Retired            bool       // set on the final event for an idle-retired track
	Class              string
	LastUpdate         time.Time
}

func timeFromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func appendBE64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
