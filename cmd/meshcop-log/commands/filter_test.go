package commands

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-protocol/meshcop-go/pkg/log"
)

func readEvents(t *testing.T, path string) []log.Event {
	t.Helper()

	reader, err := log.NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	events, err := reader.ReadAll()
	require.NoError(t, err)
	return events
}

func TestFilterByNodeID(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	path := createTestLogFile(t, []log.Event{
		{Timestamp: ts, NodeID: "leader", Category: log.CategoryMessage},
		{Timestamp: ts, NodeID: "router", Category: log.CategoryMessage},
		{Timestamp: ts, NodeID: "leader", Category: log.CategoryState},
	})
	out := filepath.Join(t.TempDir(), "filtered.mclog")

	var buf bytes.Buffer
	require.NoError(t, RunFilter(path, FilterOptions{Output: out, NodeID: "leader"}, &buf))
	assert.Contains(t, buf.String(), "Filtered 2 events")

	events := readEvents(t, out)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "leader", e.NodeID)
	}
}

func TestFilterByTimeRange(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, []log.Event{
		{Timestamp: base, NodeID: "n"},
		{Timestamp: base.Add(30 * time.Minute), NodeID: "n"},
		{Timestamp: base.Add(90 * time.Minute), NodeID: "n"},
	})
	out := filepath.Join(t.TempDir(), "filtered.mclog")

	require.NoError(t, RunFilter(path, FilterOptions{
		Output:    out,
		TimeStart: "2026-03-02T09:15:00Z",
		TimeEnd:   "2026-03-02T10:00:00Z",
	}, &bytes.Buffer{}))

	events := readEvents(t, out)
	require.Len(t, events, 1)
	assert.True(t, events[0].Timestamp.Equal(base.Add(30*time.Minute)))
}

func TestFilterBySessionAndURI(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	s1, s2 := uint16(1), uint16(2)
	path := createTestLogFile(t, []log.Event{
		{Timestamp: ts, SessionID: &s1, Message: &log.MessageEvent{URIPath: "c/ca"}},
		{Timestamp: ts, SessionID: &s1, Message: &log.MessageEvent{URIPath: "c/as"}},
		{Timestamp: ts, SessionID: &s2, Message: &log.MessageEvent{URIPath: "c/ca"}},
		{Timestamp: ts, Message: &log.MessageEvent{URIPath: "c/ca"}},
	})
	out := filepath.Join(t.TempDir(), "filtered.mclog")

	require.NoError(t, RunFilter(path, FilterOptions{Output: out, SessionID: "1", URIPath: "c/ca"}, &bytes.Buffer{}))

	events := readEvents(t, out)
	require.Len(t, events, 1)
	assert.Equal(t, uint16(1), *events[0].SessionID)
}

func TestFilterOptionsBuild(t *testing.T) {
	f, err := FilterOptions{
		Layer:     "management",
		Direction: "in",
		Category:  "state",
		Entity:    "pending",
		SessionID: "0x1234",
	}.Build()
	require.NoError(t, err)
	assert.Equal(t, log.LayerManagement, *f.Layer)
	assert.Equal(t, log.DirectionIn, *f.Direction)
	assert.Equal(t, log.CategoryState, *f.Category)
	assert.Equal(t, log.StateEntityPendingDataset, *f.Entity)
	assert.Equal(t, uint16(0x1234), *f.SessionID)

	for _, opts := range []FilterOptions{
		{Layer: "wire"},
		{Direction: "sideways"},
		{Category: "control"},
		{Entity: "zone"},
		{SessionID: "70000"},
		{TimeStart: "yesterday"},
	} {
		_, err := opts.Build()
		assert.Error(t, err, "%+v", opts)
	}
}
