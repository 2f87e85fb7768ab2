// Package tlv encodes and decodes the type-length-value records carried in
// management message payloads.
//
// Each record is a one byte type followed by a one byte length and the
// value. Values longer than 254 bytes use the extended form: a length byte of
// 0xFF followed by a big-endian uint16 length.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Length encoding limits.
const (
	// ExtendedLength is the length byte marking an extended length record.
	ExtendedLength = 0xFF

	// MaxBaseLength is the largest value length encoded in one byte.
	MaxBaseLength = ExtendedLength - 1

	// MaxLength is the largest value length that can be encoded.
	MaxLength = 0xFFFF
)

// Errors returned when decoding.
var (
	ErrTruncated = errors.New("tlv: truncated record")
	ErrTooLong   = errors.New("tlv: value too long")
)

// TLV is a single decoded record.
type TLV struct {
	Type  uint8
	Value []byte
}

// Size returns the encoded size of the record.
func (t TLV) Size() int {
	return HeaderSize(len(t.Value)) + len(t.Value)
}

// HeaderSize returns the size of the type and length fields for a value of
// length n.
func HeaderSize(n int) int {
	if n > MaxBaseLength {
		return 4
	}
	return 2
}

// Append appends one record to b.
func Append(b []byte, typ uint8, value []byte) ([]byte, error) {
	n := len(value)
	switch {
	case n > MaxLength:
		return b, fmt.Errorf("%w: type %d length %d", ErrTooLong, typ, n)
	case n > MaxBaseLength:
		b = append(b, typ, ExtendedLength)
		b = binary.BigEndian.AppendUint16(b, uint16(n))
	default:
		b = append(b, typ, uint8(n))
	}
	return append(b, value...), nil
}

// Encode concatenates the given records.
func Encode(tlvs []TLV) ([]byte, error) {
	size := 0
	for _, t := range tlvs {
		size += t.Size()
	}

	b := make([]byte, 0, size)
	for _, t := range tlvs {
		var err error
		if b, err = Append(b, t.Type, t.Value); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Next decodes the record at the start of b and returns it together with the
// remaining bytes. The returned value aliases b.
func Next(b []byte) (TLV, []byte, error) {
	if len(b) < 2 {
		return TLV{}, nil, ErrTruncated
	}

	typ := b[0]
	n := int(b[1])
	off := 2
	if n == ExtendedLength {
		if len(b) < 4 {
			return TLV{}, nil, ErrTruncated
		}
		n = int(binary.BigEndian.Uint16(b[2:4]))
		off = 4
	}

	if len(b)-off < n {
		return TLV{}, nil, fmt.Errorf("%w: type %d wants %d bytes, %d left", ErrTruncated, typ, n, len(b)-off)
	}

	return TLV{Type: typ, Value: b[off : off+n : off+n]}, b[off+n:], nil
}

// Decode splits b into records. The returned values alias b.
func Decode(b []byte) ([]TLV, error) {
	var out []TLV
	for len(b) > 0 {
		t, rest, err := Next(b)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		b = rest
	}
	return out, nil
}

// Find returns the value of the first record of the given type.
// Malformed input after the match is not inspected.
func Find(b []byte, typ uint8) ([]byte, bool, error) {
	for len(b) > 0 {
		t, rest, err := Next(b)
		if err != nil {
			return nil, false, err
		}
		if t.Type == typ {
			return t.Value, true, nil
		}
		b = rest
	}
	return nil, false, nil
}
