package coap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	in := &Message{
		Type:      Confirmable,
		Code:      CodePost,
		MessageID: 0xbeef,
		Token:     []byte{1, 2, 3, 4},
		URIPath:   "c/ps",
		Payload:   []byte{14, 8, 0, 0, 0, 0, 0, 100, 0, 1},
	}

	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeRejectsLongToken(t *testing.T) {
	_, err := Encode(&Message{Token: make([]byte, 9)})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, data := range [][]byte{nil, {0x01}, {0xa1, 0x01, 0x04}} {
		_, err := Decode(data)
		assert.ErrorIs(t, err, ErrMalformed, "%x", data)
	}
}

func TestCodes(t *testing.T) {
	assert.True(t, CodePost.IsRequest())
	assert.False(t, CodeEmpty.IsRequest())
	assert.True(t, CodeChanged.IsSuccess())
	assert.False(t, CodeNotFound.IsSuccess())
	assert.Equal(t, "2.04", CodeChanged.String())
	assert.Equal(t, "4.04", CodeNotFound.String())
	assert.Equal(t, "0.02", CodePost.String())
	assert.Equal(t, "CON", Confirmable.String())
	assert.Equal(t, "Type(7)", Type(7).String())
}
