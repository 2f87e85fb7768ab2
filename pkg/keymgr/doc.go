// Package keymgr owns the network key material of a stack instance.
//
// The KeyManager holds the network (master) key and the key sequence
// counter, derives the per-sequence MLE and MAC keys, tracks the frame
// counters used with the current key and rotates the key sequence
// periodically.
//
// # Key Derivation
//
// The working key for sequence n is HMAC-SHA256(networkKey, BE32(n) || "Thread").
// The first 16 bytes are the MLE key and the last 16 bytes the MAC key.
//
// # Guard Window
//
// After a sequence change while rotation is running, the rotation timer is
// re-armed and the guard is enabled. Until the guard time has elapsed since
// the timer was armed, a request to advance the sequence by exactly one is
// silently ignored. This keeps a replayed or stale configuration from
// flapping the key inside one rotation period. The periodic rotation itself
// disables the guard before advancing, so it always succeeds.
//
// # Frame Counters
//
// Frame counters restart at zero on every sequence change. They are
// persisted ahead of use by FrameCounterStoreAhead so that a restart never
// reuses a counter value.
package keymgr
