// Package timer implements the cooperative, single-threaded timer core used
// by every other component of the stack.
//
// A Scheduler owns an ordered set of armed timers and drives exactly one
// platform Alarm, always armed against the timer that fires soonest. When the
// platform reports that the alarm expired it calls FireTimers, which fires at
// most one timer per invocation.
//
// # Ticks
//
// Time is measured in uint32 milliseconds that wrap after ~49.7 days.
// Ordering never compares absolute tick values: each timer is ranked by its
// remaining time (delay minus time elapsed since it was armed), which stays
// correct across counter wraparound as long as no armed timer is older than
// one full wrap.
//
// # Ownership
//
// Each component creates its timers once, at construction, and keeps them for
// its lifetime. The scheduler stores timers in an arena indexed by handle and
// keeps a min-heap of handles; timers carry no pointers to each other.
//
// # Concurrency
//
// Scheduler and Timer are not safe for concurrent use. They are meant to be
// driven from a single event loop goroutine (see package stack).
package timer
