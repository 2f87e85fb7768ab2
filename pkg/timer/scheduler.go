package timer

import "container/heap"

// Clock provides the current tick in milliseconds.
type Clock interface {
	// Now returns the current time. The value wraps at 2^32.
	Now() uint32
}

// Alarm is the single platform alarm a Scheduler drives.
type Alarm interface {
	// StartAt arms the alarm to fire at t0 + dt.
	StartAt(t0, dt uint32)

	// Stop disarms the alarm.
	Stop()
}

// Binder is implemented by alarms that need to call back into the
// scheduler when they expire. NewScheduler binds them automatically.
type Binder interface {
	Bind(s *Scheduler)
}

// Handler is invoked when a timer fires.
type Handler interface {
	HandleTimer()
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func()

// HandleTimer calls f.
func (f HandlerFunc) HandleTimer() { f() }

// noHeapIndex marks an arena entry that is not linked into the heap.
const noHeapIndex = -1

// entry is one arena slot. The owning Timer refers to it by index.
type entry struct {
	start   uint32
	delay   uint32
	handler Handler

	// heapIndex is the position in Scheduler.heap, or noHeapIndex.
	heapIndex int
}

// Scheduler keeps the armed timers of one stack instance ordered by
// soonest remaining time and drives the platform alarm for the head.
type Scheduler struct {
	clock Clock
	alarm Alarm

	entries []entry
	heap    timerHeap

	// now is sampled once per operation so that every comparison made
	// while restoring the heap uses the same reference point.
	now uint32
}

// NewScheduler creates a scheduler using the given clock and alarm.
func NewScheduler(clock Clock, alarm Alarm) *Scheduler {
	s := &Scheduler{
		clock: clock,
		alarm: alarm,
	}
	s.heap.s = s

	if b, ok := alarm.(Binder); ok {
		b.Bind(s)
	}

	return s
}

// Now returns the scheduler clock's current tick.
func (s *Scheduler) Now() uint32 {
	return s.clock.Now()
}

// NewTimer allocates a timer that invokes h when it fires.
// The returned timer is not armed.
func (s *Scheduler) NewTimer(h Handler) *Timer {
	s.entries = append(s.entries, entry{handler: h, heapIndex: noHeapIndex})
	return &Timer{sched: s, id: len(s.entries) - 1}
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	return len(s.heap.ids)
}

// Add arms the timer with the given start and delay. A timer that is already
// armed is unlinked first. If the timer becomes the soonest one, the alarm is
// re-armed to its deadline.
func (s *Scheduler) Add(t *Timer, start, delay uint32) {
	s.now = s.clock.Now()

	e := &s.entries[t.id]
	if e.heapIndex != noHeapIndex {
		heap.Remove(&s.heap, e.heapIndex)
	}

	e.start = start
	e.delay = delay
	heap.Push(&s.heap, t.id)

	if s.heap.ids[0] == t.id {
		s.alarm.StartAt(start, delay)
	} else {
		// The previous head may have been displaced by the removal above.
		s.armHead()
	}
}

// Remove unlinks the timer. If it was the head, the alarm is re-armed to the
// new head, or stopped when no timers remain. Removing a timer that is not
// armed is a no-op.
func (s *Scheduler) Remove(t *Timer) {
	e := &s.entries[t.id]
	if e.heapIndex == noHeapIndex {
		return
	}

	s.now = s.clock.Now()
	wasHead := e.heapIndex == 0

	heap.Remove(&s.heap, e.heapIndex)

	if wasHead {
		s.armHead()
	}
}

// FireTimers is called by the platform when the alarm expires. If the head
// timer is due it is unlinked and its handler invoked; otherwise the alarm is
// re-armed for the remaining time. At most one timer fires per call, and
// timers armed from inside the handler are only considered by the next call.
func (s *Scheduler) FireTimers() {
	if len(s.heap.ids) == 0 {
		s.alarm.Stop()
		return
	}

	s.now = s.clock.Now()

	id := s.heap.ids[0]
	e := &s.entries[id]

	if s.now-e.start < e.delay {
		// Woke early, e.g. because of clock drift.
		s.alarm.StartAt(e.start, e.delay)
		return
	}

	heap.Pop(&s.heap)
	s.armHead()

	e.handler.HandleTimer()
}

func (s *Scheduler) armHead() {
	if len(s.heap.ids) == 0 {
		s.alarm.Stop()
		return
	}

	head := &s.entries[s.heap.ids[0]]
	s.alarm.StartAt(head.start, head.delay)
}

// firesBefore reports whether entry a is due before entry b relative to
// s.now. Both are ranked by remaining time; already expired timers rank
// ahead of pending ones, the most overdue first.
func (s *Scheduler) firesBefore(a, b *entry) bool {
	elapsedA := s.now - a.start
	elapsedB := s.now - b.start

	expiredA := elapsedA >= a.delay
	expiredB := elapsedB >= b.delay

	switch {
	case !expiredA && !expiredB:
		return a.delay-elapsedA < b.delay-elapsedB
	case expiredA && !expiredB:
		return true
	case expiredA && expiredB:
		return elapsedA-a.delay > elapsedB-b.delay
	default:
		return false
	}
}

// timerHeap implements heap.Interface over arena handles.
type timerHeap struct {
	s   *Scheduler
	ids []int
}

func (h *timerHeap) Len() int { return len(h.ids) }

func (h *timerHeap) Less(i, j int) bool {
	return h.s.firesBefore(&h.s.entries[h.ids[i]], &h.s.entries[h.ids[j]])
}

func (h *timerHeap) Swap(i, j int) {
	h.ids[i], h.ids[j] = h.ids[j], h.ids[i]
	h.s.entries[h.ids[i]].heapIndex = i
	h.s.entries[h.ids[j]].heapIndex = j
}

func (h *timerHeap) Push(x any) {
	id := x.(int)
	h.s.entries[id].heapIndex = len(h.ids)
	h.ids = append(h.ids, id)
}

func (h *timerHeap) Pop() any {
	n := len(h.ids)
	id := h.ids[n-1]
	h.ids = h.ids[:n-1]
	h.s.entries[id].heapIndex = noHeapIndex
	return id
}
