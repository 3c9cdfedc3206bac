package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteFrame writes p as a length-prefixed frame: [u32 length][bytes] (§6).
func WriteFrame(w io.Writer, p SignedPacket) error {
	body, err := MarshalSignedPacket(p)
	if err != nil {
		return fmt.Errorf("wire: marshal frame: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(body))); err != nil {
		return fmt.Errorf("wire: write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and decodes its SignedPacket.
func ReadFrame(r io.Reader) (SignedPacket, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return SignedPacket{}, fmt.Errorf("wire: read frame length: %w", err)
	}
	const maxFrameBytes = 64 << 20
	if length > maxFrameBytes {
		return SignedPacket{}, fmt.Errorf("wire: frame length %d exceeds max %d", length, maxFrameBytes)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return SignedPacket{}, fmt.Errorf("wire: read frame body: %w", err)
	}
	return UnmarshalSignedPacket(body)
}

// WrapMeasurementPayload prefixes a measurement encoding with its tag byte,
// producing the bytes suitable for SignedPacket.Payload.
func WrapMeasurementPayload(m Measurement) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(TagMeasurement))
	if err := EncodeMeasurement(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WrapTrackDeltaPayload prefixes a track-delta encoding with its tag byte.
func WrapTrackDeltaPayload(d TrackDelta) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(TagTrackDelta))
	enc := NewEncoder(&buf)
	enc.writeUUID(d.TrackID)
	enc.writeFloat64Slice(d.State)
	enc.writeFloat64Slice(d.Covariance)
	enc.writeUint64(d.Version)
	enc.writeUint32(uint32(len(d.ContributingAgents)))
	for _, a := range d.ContributingAgents {
		enc.writeString(a)
	}
	enc.writeString(d.Class)
	enc.writeInt64(d.LastUpdate.UnixNano())
	if d.SupersededBy == nil {
		enc.writeUint8(0)
	} else {
		enc.writeUint8(1)
		enc.writeUUID(*d.SupersededBy)
	}
	if d.Retired {
		enc.writeUint8(1)
	} else {
		enc.writeUint8(0)
	}
	if enc.err != nil {
		return nil, enc.err
	}
	return buf.Bytes(), nil
}

// WrapCapabilityGrantPayload prefixes a capability encoding with its tag byte.
func WrapCapabilityGrantPayload(c Capability) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(TagCapabilityGrant))
	if err := EncodeCapability(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ErrUnknownPayloadTag is returned by DispatchPayload for a tag byte outside
// the closed union. Per §6, an unknown tag must be dropped without
// disconnecting the peer — callers should log and continue, never abort.
var ErrUnknownPayloadTag = fmt.Errorf("wire: unknown payload tag")

// DispatchPayload inspects the leading tag byte of a verified SignedPacket's
// payload and decodes the matching variant. Exactly one of the return values
// is non-nil on success.
func DispatchPayload(payload []byte) (tag PayloadTag, measurement *Measurement, delta *TrackDelta, capability *Capability, err error) {
	if len(payload) == 0 {
		return 0, nil, nil, nil, fmt.Errorf("wire: empty payload")
	}
	tag = PayloadTag(payload[0])
	body := bytes.NewReader(payload[1:])
	switch tag {
	case TagMeasurement:
		m, derr := DecodeMeasurement(body)
		if derr != nil {
			return tag, nil, nil, nil, derr
		}
		measurement = &m
	case TagTrackDelta:
		d, derr := decodeTrackDelta(body)
		if derr != nil {
			return tag, nil, nil, nil, derr
		}
		delta = &d
	case TagCapabilityGrant:
		c, derr := DecodeCapability(body)
		if derr != nil {
			return tag, nil, nil, nil, derr
		}
		capability = &c
	default:
		return tag, nil, nil, nil, ErrUnknownPayloadTag
	}
	if body.Len() != 0 {
		return tag, nil, nil, nil, fmt.Errorf("wire: %d trailing bytes in payload", body.Len())
	}
	return tag, measurement, delta, capability, nil
}

func decodeTrackDelta(r io.Reader) (TrackDelta, error) {
	dec := NewDecoder(r)
	var d TrackDelta
	d.TrackID = dec.readUUID()
	d.State = dec.readFloat64Slice()
	d.Covariance = dec.readFloat64Slice()
	d.Version = dec.readUint64()
	n := dec.readUint32()
	if dec.err != nil {
		return d, dec.err
	}
	d.ContributingAgents = make([]string, n)
	for i := range d.ContributingAgents {
		d.ContributingAgents[i] = dec.readString()
	}
	d.Class = dec.readString()
	lastUpdateNS := dec.readInt64()
	d.LastUpdate = timeFromUnixNano(lastUpdateNS)
	hasSuperseded := dec.readUint8()
	if dec.err != nil {
		return d, dec.err
	}
	switch hasSuperseded {
	case 0:
	case 1:
		u := dec.readUUID()
		d.SupersededBy = &u
	default:
		return d, fmt.Errorf("wire: unknown superseded-by presence tag %d", hasSuperseded)
	}
	retired := dec.readUint8()
	d.Retired = retired != 0
	return d, dec.err
}
