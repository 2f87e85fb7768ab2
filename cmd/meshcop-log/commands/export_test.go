package commands

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-protocol/meshcop-go/pkg/log"
)

// createTestLogFile writes events to a temporary .mclog file.
func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.mclog")
	logger, err := log.NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())
	return path
}

func ptr[T any](v T) *T { return &v }

func TestExportToJSONL(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	path := createTestLogFile(t, []log.Event{
		{
			Timestamp: ts,
			NodeID:    "node-1",
			Direction: log.DirectionOut,
			Layer:     log.LayerTransport,
			Category:  log.CategoryMessage,
			Message:   &log.MessageEvent{Type: log.MessageTypeRequest, MessageID: 7, URIPath: "c/as", Code: 2},
		},
		{
			Timestamp:   ts.Add(time.Second),
			NodeID:      "node-1",
			Layer:       log.LayerManagement,
			Category:    log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityActiveDataset, NewState: "UPDATED"},
		},
	})
	out := filepath.Join(t.TempDir(), "out.jsonl")

	require.NoError(t, RunExport(path, "jsonl", out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "node-1", lines[0]["NodeID"])
	assert.NotNil(t, lines[0]["Message"])
	assert.NotNil(t, lines[1]["StateChange"])
}

func TestExportToCSV(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	path := createTestLogFile(t, []log.Event{
		{
			Timestamp:  ts,
			NodeID:     "node-1",
			LocalRole:  log.RoleLeader,
			Direction:  log.DirectionIn,
			Layer:      log.LayerTransport,
			Category:   log.CategoryMessage,
			RemoteAddr: "[fd00::1]:61631",
			SessionID:  ptr(uint16(0x1234)),
			Message: &log.MessageEvent{
				Type:      log.MessageTypeResponse,
				MessageID: 9,
				URIPath:   "c/cp",
				Code:      0x44,
				State:     ptr(int8(1)),
			},
		},
		{
			Timestamp: ts,
			NodeID:    "node-1",
			Layer:     log.LayerSecurity,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Layer: log.LayerSecurity, Message: "bad key"},
		},
	})
	out := filepath.Join(t.TempDir(), "out.csv")

	require.NoError(t, RunExport(path, "csv", out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])

	row := records[1]
	assert.Equal(t, "node-1", row[1])
	assert.Equal(t, "LEADER", row[2])
	assert.Equal(t, "[fd00::1]:61631", row[6])
	assert.Equal(t, "4660", row[7])
	assert.Equal(t, "RESPONSE", row[8])
	assert.Equal(t, "9", row[9])
	assert.Equal(t, "c/cp", row[10])
	assert.Equal(t, "2.04", row[11])
	assert.Equal(t, "ACCEPT", row[12])

	assert.Equal(t, "error", records[2][8])
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, nil)
	err := RunExport(path, "xml", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
