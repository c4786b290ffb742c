package events

import (
	"sync"
	"sync/atomic"
)

// Bus is a lightweight pub/sub broker using channels. Publishing never
// blocks: a subscriber that falls behind loses messages, and every loss is
// counted so the API can surface backpressure instead of hiding it.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Event][]chan any
	dropped atomic.Uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe registers a listener for an event and returns the channel and an
// unsubscribe function. Unsubscribing closes the channel.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish fans the payload out to subscribers without blocking. Slow
// subscribers lose the message; the drop counter keeps the evidence.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many messages have been lost to slow subscribers
// since the bus was created.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Typed adapts a raw subscription to a concrete payload type. Payloads of a
// different type are discarded; the returned channel closes when the raw
// channel does.
func Typed[T any](raw <-chan any) <-chan T {
	out := make(chan T, cap(raw))
	go func() {
		defer close(out)
		for msg := range raw {
			if v, ok := msg.(T); ok {
				out <- v
			}
		}
	}()
	return out
}
