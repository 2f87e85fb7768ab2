package timer

import "time"

// Timer is a one-shot deferred callback registered with a Scheduler.
//
// A Timer is created once by its owner through Scheduler.NewTimer and can be
// armed and disarmed any number of times. Firing always unlinks the timer
// before its handler runs; re-arming is the handler's responsibility.
type Timer struct {
	sched *Scheduler
	id    int
}

// Start arms the timer to fire delay milliseconds from now.
func (t *Timer) Start(delay uint32) {
	t.sched.Add(t, t.sched.Now(), delay)
}

// StartAt arms the timer to fire delay milliseconds after start.
func (t *Timer) StartAt(start, delay uint32) {
	t.sched.Add(t, start, delay)
}

// Stop disarms the timer. Stopping an idle timer is a no-op.
func (t *Timer) Stop() {
	t.sched.Remove(t)
}

// IsRunning reports whether the timer is armed.
func (t *Timer) IsRunning() bool {
	return t.sched.entries[t.id].heapIndex != noHeapIndex
}

// StartTime returns the tick at which the timer was last armed.
func (t *Timer) StartTime() uint32 {
	return t.sched.entries[t.id].start
}

// Delay returns the delay the timer was last armed with.
func (t *Timer) Delay() uint32 {
	return t.sched.entries[t.id].delay
}

// FireTime returns the tick at which the timer fires (modulo 2^32).
func (t *Timer) FireTime() uint32 {
	e := t.sched.entries[t.id]
	return e.start + e.delay
}

// Remaining returns the time left until the timer fires, or 0 if it is not
// armed or already due.
func (t *Timer) Remaining() uint32 {
	if !t.IsRunning() {
		return 0
	}

	e := t.sched.entries[t.id]
	elapsed := t.sched.Now() - e.start
	if elapsed >= e.delay {
		return 0
	}
	return e.delay - elapsed
}

// Tick conversion helpers.
const (
	msecPerSec  = 1000
	msecPerHour = 3600 * msecPerSec
)

// SecToMsec converts seconds to milliseconds.
func SecToMsec(sec uint32) uint32 {
	return sec * msecPerSec
}

// HoursToMsec converts hours to milliseconds.
func HoursToMsec(hours uint32) uint32 {
	return hours * msecPerHour
}

// DurationToMsec converts a time.Duration to milliseconds, saturating at
// the largest representable delay.
func DurationToMsec(d time.Duration) uint32 {
	ms := d.Milliseconds()
	switch {
	case ms < 0:
		return 0
	case ms > int64(^uint32(0)):
		return ^uint32(0)
	default:
		return uint32(ms)
	}
}
