package stream

import (
	"context"
	"sync"
)

// Handle is the consumer side of a live generation stream: a lazy, finite,
// non-restartable sequence of events. Slow consumers throttle the producer
// through the unbuffered-ish channel, not through unbounded buffering.
type Handle struct {
	ch     chan Event
	cancel context.CancelFunc
	once   sync.Once
}

// NewHandle pairs an event channel with the cancel function that tears down
// the producing goroutine.
func NewHandle(cancel context.CancelFunc) *Handle {
	return &Handle{
		ch:     make(chan Event, 8),
		cancel: cancel,
	}
}

// Events returns the event sequence. The channel is closed on every exit
// path; a KindError or KindDone event is always the final element of a
// stream that was not cancelled.
func (h *Handle) Events() <-chan Event { return h.ch }

// Cancel stops the producer. Pending events may still be drained.
func (h *Handle) Cancel() {
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
	})
}

// Emit delivers an event from the producer unless ctx is done.
func (h *Handle) Emit(ctx context.Context, ev Event) bool {
	select {
	case h.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// CloseSend marks the end of the producer's sequence.
func (h *Handle) CloseSend() { close(h.ch) }
