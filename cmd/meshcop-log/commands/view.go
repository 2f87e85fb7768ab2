// Package commands implements the meshcop-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mesh-protocol/meshcop-go/pkg/log"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
)

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [node:id] ROLE DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var typeLabel string
	switch {
	case event.Message != nil:
		typeLabel = event.Message.Type.String()
	case event.StateChange != nil:
		typeLabel = "State"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [node:%s] %s %-3s %s %s\n", ts, shortenNodeID(event.NodeID),
		event.LocalRole, event.Direction, event.Layer, typeLabel)
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Peer: %s\n", event.RemoteAddr)
	}
	if event.SessionID != nil {
		fmt.Fprintf(w, "  Session: %d\n", *event.SessionID)
	}

	switch {
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenNodeID returns the first 8 characters of the node ID.
func shortenNodeID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  MessageID: %d  Code: %s\n", msg.MessageID, log.FormatCode(msg.Code))
	if msg.URIPath != "" {
		fmt.Fprintf(w, "  URI: /%s\n", msg.URIPath)
	}
	if msg.State != nil {
		fmt.Fprintf(w, "  State: %s\n", meshcop.State(*msg.State))
	}
	if len(msg.TLVTypes) > 0 {
		names := make([]string, len(msg.TLVTypes))
		for i, t := range msg.TLVTypes {
			names[i] = meshcop.TLVType(t).String()
		}
		fmt.Fprintf(w, "  TLVs: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(w, "  Payload: %d bytes\n", msg.PayloadSize)
	if msg.ResponseTime != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*msg.ResponseTime))
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayerFlag parses a layer name (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "management", "mgmt":
		return log.LayerManagement, nil
	case "security":
		return log.LayerSecurity, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, management, or security)", s)
	}
}

// ParseDirectionFlag parses a direction name (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
	}
}

// RunView prints the events of the log file that match filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
	return nil
}

// ParseEntityFlag parses a state entity name (case-insensitive).
func ParseEntityFlag(s string) (log.StateEntity, error) {
	switch strings.ToLower(s) {
	case "admission":
		return log.StateEntityAdmission, nil
	case "commissioner":
		return log.StateEntityCommissioner, nil
	case "active":
		return log.StateEntityActiveDataset, nil
	case "pending":
		return log.StateEntityPendingDataset, nil
	case "key-sequence":
		return log.StateEntityKeySequence, nil
	case "role":
		return log.StateEntityRole, nil
	default:
		return 0, fmt.Errorf("invalid entity: %s (must be admission, commissioner, active, pending, key-sequence, or role)", s)
	}
}
