package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-protocol/meshcop-go/pkg/log"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
)

func TestFormatMessageEvent(t *testing.T) {
	session := uint16(0x2a)
	state := int8(1)
	rtt := 1500 * time.Microsecond

	var buf bytes.Buffer
	formatEvent(&buf, log.Event{
		Timestamp:  time.Date(2026, 3, 2, 9, 30, 1, 500000000, time.UTC),
		NodeID:     "0123456789abcdef",
		LocalRole:  log.RoleCommissioner,
		Direction:  log.DirectionIn,
		Layer:      log.LayerTransport,
		Category:   log.CategoryMessage,
		RemoteAddr: "[fd00::ff:fe00:fc00]:61631",
		SessionID:  &session,
		Message: &log.MessageEvent{
			Type:         log.MessageTypeResponse,
			MessageID:    42,
			URIPath:      "c/cp",
			Code:         0x44,
			State:        &state,
			TLVTypes:     []uint8{uint8(meshcop.TLVState), uint8(meshcop.TLVCommissionerSessionID)},
			PayloadSize:  7,
			ResponseTime: &rtt,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "2026-03-02T09:30:01.500000Z [node:01234567] COMMISSIONER IN  TRANSPORT RESPONSE")
	assert.Contains(t, out, "Peer: [fd00::ff:fe00:fc00]:61631")
	assert.Contains(t, out, "Session: 42")
	assert.Contains(t, out, "MessageID: 42  Code: 2.04")
	assert.Contains(t, out, "URI: /c/cp")
	assert.Contains(t, out, "State: ACCEPT")
	assert.Contains(t, out, "TLVs: "+meshcop.TLVState.String())
	assert.Contains(t, out, "Payload: 7 bytes")
	assert.Contains(t, out, "Duration: 1.500ms")
}

func TestFormatStateChangeEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, log.Event{
		NodeID:   "n1",
		Layer:    log.LayerManagement,
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityAdmission,
			OldState: "IDLE",
			NewState: "ADMITTED",
			Reason:   "petition accepted",
		},
	})

	out := buf.String()
	assert.Contains(t, out, "[node:n1]")
	assert.Contains(t, out, "MANAGEMENT State")
	assert.Contains(t, out, "Entity: ADMISSION")
	assert.Contains(t, out, "IDLE -> ADMITTED")
	assert.Contains(t, out, "Reason: petition accepted")
}

func TestFormatErrorEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, log.Event{
		Layer:    log.LayerTransport,
		Category: log.CategoryError,
		Error:    &log.ErrorEventData{Layer: log.LayerTransport, Message: "truncated header", Context: "decode"},
	})

	out := buf.String()
	assert.Contains(t, out, "TRANSPORT Error")
	assert.Contains(t, out, "Message: truncated header")
	assert.Contains(t, out, "Context: decode")
}

func TestRunViewAppliesFilter(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	path := createTestLogFile(t, []log.Event{
		{Timestamp: ts, NodeID: "a", Direction: log.DirectionOut, Category: log.CategoryMessage,
			Message: &log.MessageEvent{URIPath: "c/mg"}},
		{Timestamp: ts, NodeID: "b", Direction: log.DirectionIn, Category: log.CategoryMessage,
			Message: &log.MessageEvent{URIPath: "c/mg"}},
	})

	dir := log.DirectionIn
	var buf bytes.Buffer
	require.NoError(t, RunView(path, log.Filter{Direction: &dir}, &buf))

	out := buf.String()
	assert.Contains(t, out, "[node:b]")
	assert.NotContains(t, out, "[node:a]")
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView("/nonexistent/capture.mclog", log.Filter{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestParseFlags(t *testing.T) {
	l, err := ParseLayerFlag("MGMT")
	require.NoError(t, err)
	assert.Equal(t, log.LayerManagement, l)

	d, err := ParseDirectionFlag("Out")
	require.NoError(t, err)
	assert.Equal(t, log.DirectionOut, d)

	c, err := ParseCategoryFlag("error")
	require.NoError(t, err)
	assert.Equal(t, log.CategoryError, c)

	e, err := ParseEntityFlag("key-sequence")
	require.NoError(t, err)
	assert.Equal(t, log.StateEntityKeySequence, e)

	_, err = ParseLayerFlag("service")
	assert.Error(t, err)
	_, err = ParseDirectionFlag("both")
	assert.Error(t, err)
	_, err = ParseCategoryFlag("snapshot")
	assert.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500.000us", formatDuration(500*time.Microsecond))
	assert.Equal(t, "12.000ms", formatDuration(12*time.Millisecond))
	assert.Equal(t, "2.500s", formatDuration(2500*time.Millisecond))
}
