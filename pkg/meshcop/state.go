package meshcop

import (
	"errors"
	"fmt"
)

// State is the value of the State TLV.
type State int8

const (
	// StateReject refuses the request.
	StateReject State = -1
	// StatePending means the request is still being processed.
	StatePending State = 0
	// StateAccept accepts the request.
	StateAccept State = 1
)

// ErrInvalidState is returned for a malformed State TLV.
var ErrInvalidState = errors.New("meshcop: invalid state")

// ParseState decodes a State TLV value.
func ParseState(b []byte) (State, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("%w: length %d", ErrInvalidState, len(b))
	}
	s := State(int8(b[0]))
	switch s {
	case StateReject, StatePending, StateAccept:
		return s, nil
	default:
		return 0, fmt.Errorf("%w: value %d", ErrInvalidState, b[0])
	}
}

// Bytes encodes the state as a TLV value.
func (s State) Bytes() []byte {
	return []byte{byte(s)}
}

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReject:
		return "REJECT"
	case StatePending:
		return "PENDING"
	case StateAccept:
		return "ACCEPT"
	default:
		return "UNKNOWN"
	}
}
