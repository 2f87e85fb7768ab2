package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  ProtocolVersion
	}{
		{"1.1", ProtocolVersion{1, 1, 0}},
		{"1.2.0", ProtocolVersion{1, 2, 0}},
		{"1.3.1", ProtocolVersion{1, 3, 1}},
		{"10.23.4", ProtocolVersion{10, 23, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"", "1", "abc", "1.0.0.0", "1.x", "-1.0", "1..0", "70000.1"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "1.2.0", MustParse("1.2").String())
	assert.Equal(t, Current, MustParse(Current).String())
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, MustParse("1.2.0").Compare(MustParse("1.3.0")))
	assert.Equal(t, 1, MustParse("1.3.1").Compare(MustParse("1.3.0")))
	assert.Equal(t, 0, MustParse("1.3").Compare(MustParse("1.3.0")))
	assert.Equal(t, 1, MustParse("2.0").Compare(MustParse("1.9.9")))
}

func TestCompatible(t *testing.T) {
	assert.True(t, MustParse("1.1.1").Compatible(MustParse("1.3.0")))
	assert.False(t, MustParse("2.0").Compatible(MustParse("1.3.0")))
}

func TestCheckPeer(t *testing.T) {
	assert.NoError(t, CheckPeer(""))
	assert.NoError(t, CheckPeer("1.2.0"))
	assert.Error(t, CheckPeer("2.0.0"))
	assert.Error(t, CheckPeer("garbage"))
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("x") })
}
