package meshcop

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TimestampSize is the encoded size of a Timestamp.
const TimestampSize = 8

// Timestamp limits.
const (
	MaxTimestampSeconds = 1<<48 - 1
	MaxTimestampTicks   = 1<<15 - 1
)

// ErrInvalidTimestamp is returned when a timestamp value is malformed.
var ErrInvalidTimestamp = errors.New("meshcop: invalid timestamp")

// Timestamp orders datasets. It is a logical clock of seconds and ticks
// (1/32768 s) plus an authoritative bit.
type Timestamp struct {
	Seconds       uint64
	Ticks         uint16
	Authoritative bool
}

// ParseTimestamp decodes a timestamp TLV value.
func ParseTimestamp(b []byte) (Timestamp, error) {
	if len(b) != TimestampSize {
		return Timestamp{}, fmt.Errorf("%w: length %d", ErrInvalidTimestamp, len(b))
	}

	var secs [8]byte
	copy(secs[2:], b[:6])
	low := binary.BigEndian.Uint16(b[6:])

	return Timestamp{
		Seconds:       binary.BigEndian.Uint64(secs[:]),
		Ticks:         low >> 1,
		Authoritative: low&1 != 0,
	}, nil
}

// Bytes encodes the timestamp as a TLV value.
func (t Timestamp) Bytes() []byte {
	b := make([]byte, TimestampSize)
	var secs [8]byte
	binary.BigEndian.PutUint64(secs[:], t.Seconds&MaxTimestampSeconds)
	copy(b[:6], secs[2:])

	low := (t.Ticks & MaxTimestampTicks) << 1
	if t.Authoritative {
		low |= 1
	}
	binary.BigEndian.PutUint16(b[6:], low)
	return b
}

// Compare returns -1 if t is older than u, 0 if equal and +1 if newer.
// Seconds are compared first, then ticks, then the authoritative bit.
func (t Timestamp) Compare(u Timestamp) int {
	switch {
	case t.Seconds != u.Seconds:
		return cmp3(t.Seconds < u.Seconds)
	case t.Ticks != u.Ticks:
		return cmp3(t.Ticks < u.Ticks)
	case t.Authoritative != u.Authoritative:
		return cmp3(!t.Authoritative)
	default:
		return 0
	}
}

// After reports whether t is strictly newer than u.
func (t Timestamp) After(u Timestamp) bool {
	return t.Compare(u) > 0
}

// String formats the timestamp as seconds.ticks with an 'A' suffix when
// authoritative.
func (t Timestamp) String() string {
	s := fmt.Sprintf("%d.%d", t.Seconds, t.Ticks)
	if t.Authoritative {
		s += "A"
	}
	return s
}

func cmp3(less bool) int {
	if less {
		return -1
	}
	return 1
}
