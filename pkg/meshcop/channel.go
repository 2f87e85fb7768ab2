package meshcop

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Channel limits for channel page 0.
const (
	ChannelPage0 = 0
	MinChannel   = 11
	MaxChannel   = 26
)

// ErrInvalidChannel is returned for a malformed or out of range channel.
var ErrInvalidChannel = errors.New("meshcop: invalid channel")

// Channel is the value of the Channel TLV.
type Channel struct {
	Page   uint8
	Number uint16
}

// ParseChannel decodes a Channel TLV value.
func ParseChannel(b []byte) (Channel, error) {
	if len(b) != 3 {
		return Channel{}, fmt.Errorf("%w: length %d", ErrInvalidChannel, len(b))
	}
	return Channel{Page: b[0], Number: binary.BigEndian.Uint16(b[1:])}, nil
}

// Bytes encodes the channel as a TLV value.
func (c Channel) Bytes() []byte {
	return binary.BigEndian.AppendUint16([]byte{c.Page}, c.Number)
}

// Validate checks that the channel is on page 0 and within 11..26.
func (c Channel) Validate() error {
	if c.Page != ChannelPage0 || c.Number < MinChannel || c.Number > MaxChannel {
		return fmt.Errorf("%w: page %d channel %d", ErrInvalidChannel, c.Page, c.Number)
	}
	return nil
}
