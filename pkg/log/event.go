package log

import (
	"time"
)

// Event represents a protocol log event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// NodeID identifies the stack instance that captured the event (UUID).
	NodeID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole is the role of the capturing node.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address ([addr]:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// SessionID is the commissioner session the event belongs to, if any.
	SessionID *uint16 `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the request/response transport.
	LayerTransport Layer = 0
	// LayerManagement is the management protocol (petition, datasets).
	LayerManagement Layer = 1
	// LayerSecurity is the key management layer.
	LayerSecurity Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerManagement:
		return "MANAGEMENT"
	case LayerSecurity:
		return "SECURITY"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a management message.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role is the role of the capturing node.
type Role uint8

const (
	// RoleNode is a mesh node that is not the leader.
	RoleNode Role = 0
	// RoleLeader is the partition leader.
	RoleLeader Role = 1
	// RoleCommissioner is an external commissioner.
	RoleCommissioner Role = 2
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleNode:
		return "NODE"
	case RoleLeader:
		return "LEADER"
	case RoleCommissioner:
		return "COMMISSIONER"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent captures a management message.
type MessageEvent struct {
	// Type distinguishes request/response.
	Type MessageType `cbor:"1,keyasint"`

	// MessageID is the transport message ID.
	MessageID uint16 `cbor:"2,keyasint"`

	// Token correlates requests and responses.
	Token []byte `cbor:"3,keyasint,omitempty"`

	// URIPath is the resource of a request.
	URIPath string `cbor:"4,keyasint,omitempty"`

	// Code is the transport code (e.g. 0.02 POST, 2.04 Changed).
	Code uint8 `cbor:"5,keyasint"`

	// State is the State TLV value, if present.
	State *int8 `cbor:"6,keyasint,omitempty"`

	// TLVTypes lists the TLV types carried in the payload.
	TLVTypes []uint8 `cbor:"7,keyasint,omitempty"`

	// PayloadSize is the payload size in bytes.
	PayloadSize int `cbor:"8,keyasint"`

	// ResponseTime is the time from request to response (responses only).
	ResponseTime *time.Duration `cbor:"9,keyasint,omitempty"`
}

// MessageType distinguishes request/response.
type MessageType uint8

const (
	// MessageTypeRequest indicates a request message.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse indicates a response message.
	MessageTypeResponse MessageType = 1
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures lifecycle changes.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityAdmission is the leader's commissioner admission session.
	StateEntityAdmission StateEntity = 0
	// StateEntityCommissioner is the external commissioner.
	StateEntityCommissioner StateEntity = 1
	// StateEntityActiveDataset is the Active operational dataset.
	StateEntityActiveDataset StateEntity = 2
	// StateEntityPendingDataset is the Pending operational dataset.
	StateEntityPendingDataset StateEntity = 3
	// StateEntityKeySequence is the key sequence counter.
	StateEntityKeySequence StateEntity = 4
	// StateEntityRole is the node role.
	StateEntityRole StateEntity = 5
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityAdmission:
		return "ADMISSION"
	case StateEntityCommissioner:
		return "COMMISSIONER"
	case StateEntityActiveDataset:
		return "ACTIVE_DATASET"
	case StateEntityPendingDataset:
		return "PENDING_DATASET"
	case StateEntityKeySequence:
		return "KEY_SEQUENCE"
	case StateEntityRole:
		return "ROLE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
