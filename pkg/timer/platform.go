package timer

import (
	"sync"
	"time"
)

// ManualPlatform is a Clock and Alarm whose time only moves when told to.
// It is used by tests and by the simulator to drive a Scheduler
// deterministically.
type ManualPlatform struct {
	now uint32

	armed bool
	t0    uint32
	dt    uint32

	starts int
	stops  int

	sched *Scheduler
}

// NewManualPlatform creates a manual platform whose clock starts at now.
func NewManualPlatform(now uint32) *ManualPlatform {
	return &ManualPlatform{now: now}
}

// Bind attaches the scheduler that Advance fires.
func (m *ManualPlatform) Bind(s *Scheduler) {
	m.sched = s
}

// Now returns the current manual time.
func (m *ManualPlatform) Now() uint32 {
	return m.now
}

// StartAt records the alarm request.
func (m *ManualPlatform) StartAt(t0, dt uint32) {
	m.armed = true
	m.t0 = t0
	m.dt = dt
	m.starts++
}

// Stop records the alarm cancellation.
func (m *ManualPlatform) Stop() {
	m.armed = false
	m.stops++
}

// Armed reports whether the alarm is armed.
func (m *ManualPlatform) Armed() bool {
	return m.armed
}

// Deadline returns the alarm's fire tick. Only meaningful while Armed.
func (m *ManualPlatform) Deadline() uint32 {
	return m.t0 + m.dt
}

// AlarmParams returns the last StartAt arguments.
func (m *ManualPlatform) AlarmParams() (t0, dt uint32) {
	return m.t0, m.dt
}

// Calls returns how often StartAt and Stop were called.
func (m *ManualPlatform) Calls() (starts, stops int) {
	return m.starts, m.stops
}

// Set jumps the clock to now without firing anything.
func (m *ManualPlatform) Set(now uint32) {
	m.now = now
}

// Advance moves the clock forward by d milliseconds, stopping at every alarm
// deadline on the way to let the scheduler fire due timers.
func (m *ManualPlatform) Advance(d uint32) {
	left := d

	for m.armed && m.sched != nil {
		elapsed := m.now - m.t0
		var untilDue uint32
		if elapsed < m.dt {
			untilDue = m.dt - elapsed
		}
		if untilDue > left {
			break
		}

		m.now += untilDue
		left -= untilDue
		m.sched.FireTimers()
	}

	m.now += left
}

// RealClock reports milliseconds elapsed since it was created.
type RealClock struct {
	base time.Time
}

// NewRealClock creates a clock starting at zero.
func NewRealClock() *RealClock {
	return &RealClock{base: time.Now()}
}

// Now returns milliseconds since creation, wrapping at 2^32.
func (c *RealClock) Now() uint32 {
	return uint32(time.Since(c.base).Milliseconds())
}

// RealAlarm arms a runtime timer and, on expiry, hands FireTimers to post so
// it runs on the goroutine that owns the scheduler.
type RealAlarm struct {
	clock Clock
	post  func(func())

	mu    sync.Mutex
	timer *time.Timer
	sched *Scheduler
}

// NewRealAlarm creates an alarm that delivers expiries through post.
func NewRealAlarm(clock Clock, post func(func())) *RealAlarm {
	return &RealAlarm{clock: clock, post: post}
}

// Bind attaches the scheduler to fire.
func (a *RealAlarm) Bind(s *Scheduler) {
	a.sched = s
}

// StartAt arms the runtime timer for the remaining time until t0 + dt.
func (a *RealAlarm) StartAt(t0, dt uint32) {
	var remaining uint32
	if elapsed := a.clock.Now() - t0; elapsed < dt {
		remaining = dt - elapsed
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(time.Duration(remaining)*time.Millisecond, func() {
		// A stale expiry is harmless: FireTimers re-arms when nothing is due.
		a.post(a.sched.FireTimers)
	})
}

// Stop disarms the runtime timer.
func (a *RealAlarm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Clock  = (*ManualPlatform)(nil)
	_ Alarm  = (*ManualPlatform)(nil)
	_ Binder = (*ManualPlatform)(nil)
	_ Clock  = (*RealClock)(nil)
	_ Alarm  = (*RealAlarm)(nil)
	_ Binder = (*RealAlarm)(nil)
)
