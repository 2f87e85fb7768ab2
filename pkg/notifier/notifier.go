// Package notifier delivers state change events between the components of a
// stack instance without giving them upward references to each other.
package notifier

import "strings"

// Flags is a set of change events.
type Flags uint32

// Change events.
const (
	KeySequenceChanged Flags = 1 << iota
	ActiveDatasetChanged
	PendingDatasetChanged
	CommissionerSessionChanged
	NetworkDataChanged
	SecurityPolicyChanged
	NetworkKeyChanged
	RoleChanged
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{KeySequenceChanged, "KeySequence"},
	{ActiveDatasetChanged, "ActiveDataset"},
	{PendingDatasetChanged, "PendingDataset"},
	{CommissionerSessionChanged, "CommissionerSession"},
	{NetworkDataChanged, "NetworkData"},
	{SecurityPolicyChanged, "SecurityPolicy"},
	{NetworkKeyChanged, "NetworkKey"},
	{RoleChanged, "Role"},
}

// Has reports whether every flag in o is set.
func (f Flags) Has(o Flags) bool {
	return f&o == o
}

// Any reports whether any flag in o is set.
func (f Flags) Any(o Flags) bool {
	return f&o != 0
}

// String lists the set flags separated by '|'.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for _, n := range flagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Handler receives signalled events.
type Handler func(Flags)

// Notifier fans events out to subscribers synchronously, in subscription
// order. It carries no lock and must only be used from the owning event loop.
type Notifier struct {
	handlers []Handler
}

// New creates an empty notifier.
func New() *Notifier {
	return &Notifier{}
}

// Subscribe registers h for all future events.
func (n *Notifier) Subscribe(h Handler) {
	n.handlers = append(n.handlers, h)
}

// Signal delivers f to every subscriber. Signalling no flags is a no-op.
// A nil notifier discards events.
func (n *Notifier) Signal(f Flags) {
	if n == nil || f == 0 {
		return
	}
	for _, h := range n.handlers {
		h(f)
	}
}
