package log

import (
	"context"
	"fmt"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
		slog.String("role", event.LocalRole.String()),
	}

	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node_id", event.NodeID))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}
	if event.SessionID != nil {
		attrs = append(attrs, slog.Uint64("session_id", uint64(*event.SessionID)))
	}

	switch {
	case event.Message != nil:
		m := event.Message
		attrs = append(attrs,
			slog.String("msg_type", m.Type.String()),
			slog.Uint64("msg_id", uint64(m.MessageID)),
			slog.String("code", FormatCode(m.Code)),
			slog.Int("payload_size", m.PayloadSize),
		)
		if m.URIPath != "" {
			attrs = append(attrs, slog.String("uri", m.URIPath))
		}
		if m.State != nil {
			attrs = append(attrs, slog.Int("state", int(*m.State)))
		}
		if m.ResponseTime != nil {
			attrs = append(attrs, slog.Duration("response_time", *m.ResponseTime))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// FormatCode renders a transport code in class.detail notation, e.g. "2.04".
func FormatCode(code uint8) string {
	return fmt.Sprintf("%d.%02d", code>>5, code&0x1f)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
