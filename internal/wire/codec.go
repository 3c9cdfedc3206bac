package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Canonical binary encoding: deterministic field order, little-endian
// numerics, length-prefixed variable fields (§4.5). Every Marshal/Unmarshal
// pair in this file follows the same Encoder/Decoder shape so a reader of
// one recognizes all the others.

// entityWireVersion tags the Entity layout so a future field addition can be
// rejected by old decoders instead of silently misreading bytes.
const entityWireVersion uint8 = 1

// Encoder writes wire records to an io.Writer in the canonical binary format.
type Encoder struct {
	w   io.Writer
	err error
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) writeUint8(v uint8) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, v)
}

func (e *Encoder) writeUint32(v uint32) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, v)
}

func (e *Encoder) writeUint64(v uint64) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, v)
}

func (e *Encoder) writeInt64(v int64) {
	e.writeUint64(uint64(v))
}

func (e *Encoder) writeFloat64(v float64) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, v)
}

func (e *Encoder) writeBytes(b []byte) {
	e.writeUint32(uint32(len(b)))
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *Encoder) writeString(s string) {
	e.writeBytes([]byte(s))
}

func (e *Encoder) writeUUID(u uuid.UUID) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(u[:])
}

func (e *Encoder) writeFloat64Slice(v []float64) {
	e.writeUint32(uint32(len(v)))
	for _, f := range v {
		e.writeFloat64(f)
	}
}

// Decoder reads wire records from an io.Reader.
type Decoder struct {
	r   io.Reader
	err error
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

func (d *Decoder) readUint8() uint8 {
	var v uint8
	if d.err == nil {
		d.err = binary.Read(d.r, binary.LittleEndian, &v)
	}
	return v
}

func (d *Decoder) readUint32() uint32 {
	var v uint32
	if d.err == nil {
		d.err = binary.Read(d.r, binary.LittleEndian, &v)
	}
	return v
}

func (d *Decoder) readUint64() uint64 {
	var v uint64
	if d.err == nil {
		d.err = binary.Read(d.r, binary.LittleEndian, &v)
	}
	return v
}

func (d *Decoder) readInt64() int64 {
	return int64(d.readUint64())
}

func (d *Decoder) readFloat64() float64 {
	var v float64
	if d.err == nil {
		d.err = binary.Read(d.r, binary.LittleEndian, &v)
	}
	return v
}

func (d *Decoder) readBytes() []byte {
	n := d.readUint32()
	if d.err != nil {
		return nil
	}
	const maxFieldBytes = 64 << 20
	if n > maxFieldBytes {
		d.err = fmt.Errorf("wire: field length %d exceeds max %d", n, maxFieldBytes)
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.err = err
		return nil
	}
	return buf
}

func (d *Decoder) readString() string {
	return string(d.readBytes())
}

func (d *Decoder) readUUID() uuid.UUID {
	var u uuid.UUID
	if d.err != nil {
		return u
	}
	if _, err := io.ReadFull(d.r, u[:]); err != nil {
		d.err = err
	}
	return u
}

func (d *Decoder) readFloat64Slice() []float64 {
	n := d.readUint32()
	if d.err != nil {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = d.readFloat64()
	}
	return out
}

// EncodeEntity writes e in canonical form.
func EncodeEntity(w io.Writer, e Entity) error {
	enc := NewEncoder(w)
	enc.writeUint8(entityWireVersion)
	enc.writeUUID(e.ID)
	enc.writeFloat64(e.Position.X)
	enc.writeFloat64(e.Position.Y)
	enc.writeFloat64(e.Position.Z)
	enc.writeFloat64(e.Velocity.X)
	enc.writeFloat64(e.Velocity.Y)
	enc.writeFloat64(e.Velocity.Z)
	enc.writeString(e.Class)
	enc.writeInt64(e.TimestampMS)
	enc.writeFloat64(e.Confidence)
	return enc.err
}

// DecodeEntity reads an Entity from r, rejecting an unrecognized wire version.
func DecodeEntity(r io.Reader) (Entity, error) {
	dec := NewDecoder(r)
	var e Entity
	version := dec.readUint8()
	if dec.err == nil && version != entityWireVersion {
		return e, fmt.Errorf("wire: unknown entity wire version %d", version)
	}
	e.ID = dec.readUUID()
	e.Position = Vector3{X: dec.readFloat64(), Y: dec.readFloat64(), Z: dec.readFloat64()}
	e.Velocity = Vector3{X: dec.readFloat64(), Y: dec.readFloat64(), Z: dec.readFloat64()}
	e.Class = dec.readString()
	e.TimestampMS = dec.readInt64()
	e.Confidence = dec.readFloat64()
	return e, dec.err
}

// EncodeMeasurement writes m in canonical form.
func EncodeMeasurement(w io.Writer, m Measurement) error {
	var buf bytes.Buffer
	if err := EncodeEntity(&buf, m.Entity); err != nil {
		return err
	}
	enc := NewEncoder(w)
	enc.writeBytes(buf.Bytes())
	enc.writeFloat64Slice(m.Cov)
	enc.writeString(m.AgentID)
	return enc.err
}

// DecodeMeasurement reads a Measurement from r.
func DecodeMeasurement(r io.Reader) (Measurement, error) {
	dec := NewDecoder(r)
	var m Measurement
	entityBytes := dec.readBytes()
	if dec.err != nil {
		return m, dec.err
	}
	entity, err := DecodeEntity(bytes.NewReader(entityBytes))
	if err != nil {
		return m, err
	}
	m.Entity = entity
	m.Cov = dec.readFloat64Slice()
	m.AgentID = dec.readString()
	if dec.err != nil {
		return m, dec.err
	}
	if len(m.Cov) != 9 && len(m.Cov) != 36 {
		return m, fmt.Errorf("wire: measurement covariance must be 3x3 or 6x6, got %d entries", len(m.Cov))
	}
	return m, nil
}

func encodeCapability(c Capability) []byte {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.writeString(c.Scope)
	enc.writeInt64(c.ExpiryNS)
	enc.writeBytes(c.SubjectPubKey)
	enc.writeBytes(c.IssuerPubKey)
	enc.writeBytes(c.IssuerSignature)
	return buf.Bytes()
}

// EncodeCapability writes c in canonical form.
func EncodeCapability(w io.Writer, c Capability) error {
	b := encodeCapability(c)
	_, err := w.Write(b)
	return err
}

// DecodeCapability reads a Capability from r.
func DecodeCapability(r io.Reader) (Capability, error) {
	dec := NewDecoder(r)
	var c Capability
	c.Scope = dec.readString()
	c.ExpiryNS = dec.readInt64()
	c.SubjectPubKey = dec.readBytes()
	c.IssuerPubKey = dec.readBytes()
	c.IssuerSignature = dec.readBytes()
	return c, dec.err
}

// EncodeSignedPacket writes p in canonical form.
func EncodeSignedPacket(w io.Writer, p SignedPacket) error {
	enc := NewEncoder(w)
	enc.writeBytes(p.Payload)
	enc.writeBytes(p.KeyID)
	enc.writeBytes(p.Signature)
	enc.writeInt64(p.IssuedAtNS)
	if p.Capability == nil {
		enc.writeUint8(0)
	} else {
		enc.writeUint8(1)
		if enc.err == nil {
			enc.err = EncodeCapability(enc.w, *p.Capability)
		}
	}
	return enc.err
}

// DecodeSignedPacket reads a SignedPacket from r.
func DecodeSignedPacket(r io.Reader) (SignedPacket, error) {
	dec := NewDecoder(r)
	var p SignedPacket
	p.Payload = dec.readBytes()
	p.KeyID = dec.readBytes()
	p.Signature = dec.readBytes()
	p.IssuedAtNS = dec.readInt64()
	hasCap := dec.readUint8()
	if dec.err != nil {
		return p, dec.err
	}
	switch hasCap {
	case 0:
	case 1:
		cap, err := DecodeCapability(dec.r)
		if err != nil {
			return p, err
		}
		p.Capability = &cap
	default:
		return p, fmt.Errorf("wire: unknown capability presence tag %d", hasCap)
	}
	return p, dec.err
}

// MarshalSignedPacket serializes p to a byte slice.
func MarshalSignedPacket(p SignedPacket) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeSignedPacket(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalSignedPacket deserializes p from data, rejecting any trailing bytes.
func UnmarshalSignedPacket(data []byte) (SignedPacket, error) {
	r := bytes.NewReader(data)
	p, err := DecodeSignedPacket(r)
	if err != nil {
		return p, err
	}
	if r.Len() != 0 {
		return p, fmt.Errorf("wire: %d trailing bytes after signed packet", r.Len())
	}
	return p, nil
}
