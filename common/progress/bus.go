package progress

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrDisconnected is returned by Emit once the consumer has gone away
	ErrDisconnected = errors.New("progress consumer disconnected")
	// ErrTerminated is returned by Emit after a terminal event
	ErrTerminated = errors.New("progress stream already terminated")
)

// DefaultCapacity is the buffer size of a bus
const DefaultCapacity = 32

// Bus carries the events of one ingestion from its single producer to its
// single consumer. Events arrive in emit order with non-decreasing
// percentages. The consumer signals that it is gone with Disconnect; the
// producer then sees ErrDisconnected instead of blocking.
type Bus struct {
	events chan Event
	gone   chan struct{}

	goneOnce  sync.Once
	closeOnce sync.Once

	// producer-only state
	last       int
	terminated bool

	observers []func(Event)
}

// BusOption configures a Bus
type BusOption func(*Bus)

// WithObserver registers fn to see every accepted event
func WithObserver(fn func(Event)) BusOption {
	return func(b *Bus) {
		if fn != nil {
			b.observers = append(b.observers, fn)
		}
	}
}

// NewBus creates a bus buffering up to capacity events
func NewBus(capacity int, opts ...BusOption) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Bus{
		events: make(chan Event, capacity),
		gone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit delivers ev, blocking while the buffer is full. Percentages are
// clamped to [0,100] and never go below the last emitted value. Observers
// see every emitted event, whether or not the consumer is still there.
func (b *Bus) Emit(ctx context.Context, ev Event) error {
	if b.terminated {
		return ErrTerminated
	}

	if ev.Stage != StageExisted {
		ev.Percent = max(min(ev.Percent, 100), 0, b.last)
		b.last = ev.Percent
	}
	if ev.Terminal() {
		b.terminated = true
	}
	for _, fn := range b.observers {
		fn(ev)
	}

	select {
	case <-b.gone:
		return ErrDisconnected
	default:
	}

	select {
	case b.events <- ev:
		return nil
	case <-b.gone:
		return ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Last returns the most recent percentage the producer emitted
func (b *Bus) Last() int {
	return b.last
}

// Close ends the stream. Only the producer calls it.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.events)
	})
}

// Events returns the receive side for the consumer
func (b *Bus) Events() <-chan Event {
	return b.events
}

// Disconnect tells the producer nobody is listening any more
func (b *Bus) Disconnect() {
	b.goneOnce.Do(func() {
		close(b.gone)
	})
}

// Disconnected reports whether the consumer has gone away
func (b *Bus) Disconnected() bool {
	select {
	case <-b.gone:
		return true
	default:
		return false
	}
}
