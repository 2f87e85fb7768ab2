package log

import "time"

// Logger is the interface applications implement to receive protocol log events.
// Pass nil or NoopLogger to disable logging.
type Logger interface {
	// Log records a protocol event. Implementations must be thread-safe.
	// The event should be processed quickly or queued; blocking stalls the
	// event loop that emitted it.
	Log(event Event)
}

// NoopLogger discards all events. Use when logging is disabled.
// NoopLogger is safe for concurrent use and usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}

// Emitter stamps events with the capturing node's identity before handing
// them to a Logger. A nil Emitter or one without a Logger drops events.
type Emitter struct {
	Logger Logger
	NodeID string
	Role   Role

	// Now returns the event timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Emit fills in Timestamp, NodeID and LocalRole and logs the event.
func (e *Emitter) Emit(event Event) {
	if e == nil || e.Logger == nil {
		return
	}
	if event.Timestamp.IsZero() {
		if e.Now != nil {
			event.Timestamp = e.Now()
		} else {
			event.Timestamp = time.Now()
		}
	}
	if event.NodeID == "" {
		event.NodeID = e.NodeID
	}
	if event.LocalRole == 0 {
		event.LocalRole = e.Role
	}
	e.Logger.Log(event)
}

// StateChange emits a state change event.
func (e *Emitter) StateChange(entity StateEntity, oldState, newState, reason string) {
	e.Emit(Event{
		Layer:    LayerManagement,
		Category: CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// Error emits an error event.
func (e *Emitter) Error(layer Layer, err error, context string) {
	if err == nil {
		return
	}
	e.Emit(Event{
		Layer:    layer,
		Category: CategoryError,
		Error: &ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	})
}
