package log

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func messageEvent(nodeID, uri string, dir Direction) Event {
	state := int8(1)
	return Event{
		Timestamp:  time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC),
		NodeID:     nodeID,
		Direction:  dir,
		Layer:      LayerTransport,
		Category:   CategoryMessage,
		LocalRole:  RoleLeader,
		RemoteAddr: "[fd00::ff:fe00:fc00]:61631",
		Message: &MessageEvent{
			Type:        MessageTypeResponse,
			MessageID:   42,
			Token:       []byte{0xde, 0xad},
			URIPath:     uri,
			Code:        0x44,
			State:       &state,
			TLVTypes:    []uint8{16},
			PayloadSize: 3,
		},
	}
}

func TestEventCBORPreservesFields(t *testing.T) {
	session := uint16(0x1234)
	in := messageEvent("node-a", "c/lp", DirectionOut)
	in.SessionID = &session

	data, err := EncodeEvent(in)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	out, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("timestamp: got %v, want %v", out.Timestamp, in.Timestamp)
	}
	if out.NodeID != "node-a" || out.Direction != DirectionOut || out.LocalRole != RoleLeader {
		t.Errorf("header mismatch: %+v", out)
	}
	if out.SessionID == nil || *out.SessionID != session {
		t.Errorf("session: got %v", out.SessionID)
	}
	if out.Message == nil {
		t.Fatal("message payload lost")
	}
	if out.Message.URIPath != "c/lp" || out.Message.Code != 0x44 || *out.Message.State != 1 {
		t.Errorf("message mismatch: %+v", out.Message)
	}
	if !bytes.Equal(out.Message.Token, []byte{0xde, 0xad}) {
		t.Errorf("token: got %x", out.Message.Token)
	}
}

func TestEnumStrings(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{DirectionIn.String(), "IN"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerManagement.String(), "MANAGEMENT"},
		{CategoryState.String(), "STATE"},
		{RoleCommissioner.String(), "COMMISSIONER"},
		{MessageTypeRequest.String(), "REQUEST"},
		{StateEntityPendingDataset.String(), "PENDING_DATASET"},
		{StateEntity(99).String(), "UNKNOWN"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}

func TestFormatCode(t *testing.T) {
	if got := FormatCode(0x02); got != "0.02" {
		t.Errorf("POST: got %s", got)
	}
	if got := FormatCode(0x44); got != "2.04" {
		t.Errorf("Changed: got %s", got)
	}
	if got := FormatCode(0x84); got != "4.04" {
		t.Errorf("NotFound: got %s", got)
	}
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captures", "leader.mclog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	logger.Log(messageEvent("node-a", "c/lp", DirectionIn))
	logger.Log(messageEvent("node-b", "c/as", DirectionIn))
	logger.Log(Event{
		NodeID:   "node-a",
		Category: CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityAdmission,
			OldState: "idle",
			NewState: "active",
		},
	})
	if written, dropped := logger.Stats(); written != 3 || dropped != 0 {
		t.Errorf("stats: written=%d dropped=%d", written, dropped)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Logging after close is ignored and a second Close is harmless.
	logger.Log(messageEvent("node-a", "c/la", DirectionIn))
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	all, err := r.ReadAll()
	r.Close()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}

	r, err = NewFilteredReader(path, Filter{NodeID: "node-a"})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	filtered, err := r.ReadAll()
	r.Close()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("node filter: expected 2 events, got %d", len(filtered))
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.mclog")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(messageEvent("node-a", "c/la", DirectionIn))
		logger.Close()
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()
	events, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.mclog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				logger.Log(messageEvent("node-a", "c/la", DirectionOut))
			}
		}()
	}
	wg.Wait()
	logger.Close()

	if written, _ := logger.Stats(); written != 200 {
		t.Errorf("expected 200 events written, got %d", written)
	}
}

func TestFilterMatches(t *testing.T) {
	session := uint16(7)
	other := uint16(8)
	in := DirectionIn
	entity := StateEntityCommissioner
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	msg := messageEvent("node-a", "c/ps", DirectionIn)
	msg.SessionID = &session

	state := Event{
		Category: CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityCommissioner,
			NewState: "active",
		},
	}

	cases := []struct {
		name   string
		filter Filter
		event  Event
		want   bool
	}{
		{"empty filter", Filter{}, msg, true},
		{"uri match", Filter{URIPath: "c/ps"}, msg, true},
		{"uri mismatch", Filter{URIPath: "c/as"}, msg, false},
		{"uri on non-message", Filter{URIPath: "c/ps"}, state, false},
		{"session match", Filter{SessionID: &session}, msg, true},
		{"session mismatch", Filter{SessionID: &other}, msg, false},
		{"direction", Filter{Direction: &in}, msg, true},
		{"entity", Filter{Entity: &entity}, state, true},
		{"entity on message", Filter{Entity: &entity}, msg, false},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, msg, true},
		{"before window", Filter{TimeStart: &end}, msg, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.filter.matches(c.event); got != c.want {
				t.Errorf("matches = %v, want %v", got, c.want)
			}
		})
	}
}

func TestMultiLoggerSkipsNil(t *testing.T) {
	a, b := &captureLogger{}, &captureLogger{}
	m := NewMultiLogger(a, nil, b)
	if m.Len() != 2 {
		t.Fatalf("expected 2 loggers, got %d", m.Len())
	}

	m.Log(messageEvent("n", "c/lp", DirectionIn))
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out failed: a=%d b=%d", len(a.events), len(b.events))
	}
}

func TestSlogAdapterWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewSlogAdapter(logger).Log(messageEvent("node-a", "c/lp", DirectionIn))

	out := buf.String()
	for _, want := range []string{"uri=c/lp", "code=2.04", "node_id=node-a", "role=LEADER"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestEmitterStampsEvents(t *testing.T) {
	capture := &captureLogger{}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &Emitter{
		Logger: capture,
		NodeID: "node-x",
		Role:   RoleCommissioner,
		Now:    func() time.Time { return now },
	}

	e.StateChange(StateEntityCommissioner, "petitioning", "active", "")
	e.Error(LayerManagement, errors.New("boom"), "keep-alive")
	e.Error(LayerManagement, nil, "ignored")

	if len(capture.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(capture.events))
	}
	got := capture.events[0]
	if got.NodeID != "node-x" || got.LocalRole != RoleCommissioner || !got.Timestamp.Equal(now) {
		t.Errorf("event not stamped: %+v", got)
	}
	if capture.events[1].Error == nil || capture.events[1].Error.Message != "boom" {
		t.Errorf("error event: %+v", capture.events[1])
	}

	// A nil emitter drops events.
	var nilEmitter *Emitter
	nilEmitter.StateChange(StateEntityRole, "", "leader", "")
}

func TestReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing.mclog"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
