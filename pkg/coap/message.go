package coap

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Type is the message type.
type Type uint8

// Message types.
const (
	Confirmable    Type = 0
	NonConfirmable Type = 1
	Acknowledgment Type = 2
	Reset          Type = 3
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case Confirmable:
		return "CON"
	case NonConfirmable:
		return "NON"
	case Acknowledgment:
		return "ACK"
	case Reset:
		return "RST"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Code is a class.detail message code.
type Code uint8

// Request methods and response codes.
const (
	CodeEmpty  Code = 0x00
	CodeGet    Code = 0x01
	CodePost   Code = 0x02
	CodePut    Code = 0x03
	CodeDelete Code = 0x04

	CodeCreated Code = 0x41
	CodeDeleted Code = 0x42
	CodeValid   Code = 0x43
	CodeChanged Code = 0x44
	CodeContent Code = 0x45

	CodeBadRequest    Code = 0x80
	CodeUnauthorized  Code = 0x81
	CodeForbidden     Code = 0x83
	CodeNotFound      Code = 0x84
	CodeNotAllowed    Code = 0x85
	CodeInternalError Code = 0xA0
)

// Class returns the code class (0 request, 2 success, 4 client error, 5
// server error).
func (c Code) Class() uint8 {
	return uint8(c) >> 5
}

// IsRequest reports whether the code is a request method.
func (c Code) IsRequest() bool {
	return c.Class() == 0 && c != CodeEmpty
}

// IsSuccess reports whether the code is a 2.xx response.
func (c Code) IsSuccess() bool {
	return c.Class() == 2
}

// String renders the code as class.detail.
func (c Code) String() string {
	return fmt.Sprintf("%d.%02d", c.Class(), uint8(c)&0x1f)
}

// Message is a transport message.
type Message struct {
	Type      Type   `cbor:"1,keyasint"`
	Code      Code   `cbor:"2,keyasint"`
	MessageID uint16 `cbor:"3,keyasint"`
	Token     []byte `cbor:"4,keyasint,omitempty"`
	URIPath   string `cbor:"5,keyasint,omitempty"`
	Payload   []byte `cbor:"6,keyasint,omitempty"`
}

// MaxTokenLength bounds the token size.
const MaxTokenLength = 8

// ErrMalformed is returned when a datagram cannot be decoded.
var ErrMalformed = errors.New("coap: malformed message")

// NewRequest builds a request message for path. The agent fills in the
// message ID and token when it is sent.
func NewRequest(typ Type, code Code, path string, payload []byte) *Message {
	return &Message{
		Type:    typ,
		Code:    code,
		URIPath: path,
		Payload: payload,
	}
}

// IsRequest reports whether the message is a request.
func (m *Message) IsRequest() bool {
	return m.Code.IsRequest()
}

// IsConfirmable reports whether the message is confirmable.
func (m *Message) IsConfirmable() bool {
	return m.Type == Confirmable
}

// String returns a short description for logs.
func (m *Message) String() string {
	if m.URIPath != "" {
		return fmt.Sprintf("%s %s %s mid=%d", m.Type, m.Code, m.URIPath, m.MessageID)
	}
	return fmt.Sprintf("%s %s mid=%d", m.Type, m.Code, m.MessageID)
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("coap: cbor encoder mode: %v", err))
	}

	// Unknown keys are ignored so newer peers can extend the envelope.
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
		MaxMapPairs: 16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("coap: cbor decoder mode: %v", err))
	}
}

// Encode serializes the message.
func Encode(m *Message) ([]byte, error) {
	if len(m.Token) > MaxTokenLength {
		return nil, fmt.Errorf("%w: token length %d", ErrMalformed, len(m.Token))
	}
	return encMode.Marshal(m)
}

// Decode parses a datagram.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(m.Token) > MaxTokenLength || m.Type > Reset {
		return nil, ErrMalformed
	}
	return &m, nil
}
