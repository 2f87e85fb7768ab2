// Package settings provides the non-volatile key/value store used by a stack
// instance.
//
// A key holds an ordered list of values. Set replaces the list with a single
// value, Add appends, Get and Delete address a value by its index. Only the
// Active dataset and the network info record (key sequence and frame
// counters) are persisted; the Pending dataset, timers and the admission
// session are volatile.
package settings
