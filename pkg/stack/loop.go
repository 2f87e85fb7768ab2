package stack

import (
	"context"
	"errors"
	"sync"
)

// taskQueueSize bounds the tasks waiting for the event loop.
const taskQueueSize = 256

// ErrClosed is returned by Do once the event loop has exited.
var ErrClosed = errors.New("stack: instance closed")

// Loop runs posted functions one at a time on a single goroutine. All
// protocol state of a stack is owned by its loop.
type Loop struct {
	tasks    chan func()
	done     chan struct{}
	doneOnce sync.Once
}

// NewLoop creates a loop. Nothing runs until Run.
func NewLoop() *Loop {
	return &Loop{
		tasks: make(chan func(), taskQueueSize),
		done:  make(chan struct{}),
	}
}

// Post queues fn. It returns false once the loop has exited.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		fn()
		close(finished)
	}) {
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued functions until ctx is done. Afterwards Post and Do
// fail with ErrClosed.
func (l *Loop) Run(ctx context.Context) {
	defer l.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Close stops accepting work. Queued functions are discarded.
func (l *Loop) Close() {
	l.doneOnce.Do(func() { close(l.done) })
}

// Closed reports whether the loop has stopped.
func (l *Loop) Closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
