// Package watch delivers the latest value of a state container to observers.
package watch

import "sync"

// Broadcaster fans values out to watchers. Each watcher holds at most one
// pending value; a newer value replaces an unread one.
type Broadcaster[T any] struct {
	mu       sync.Mutex
	watchers map[chan T]struct{}
	closed   bool
}

// New returns a Broadcaster with no watchers.
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{watchers: make(map[chan T]struct{})}
}

// Watch registers a watcher primed with initial. cancel is idempotent and
// closes the channel.
func (b *Broadcaster[T]) Watch(initial T) (<-chan T, func()) {
	ch := make(chan T, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	ch <- initial
	b.watchers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.watchers[ch]; ok {
				delete(b.watchers, ch)
				close(ch)
			}
		})
	}
}

// Publish replaces each watcher's pending value with v. It never blocks.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Close closes every watcher channel. Later Watch calls return a closed
// channel.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.watchers {
		delete(b.watchers, ch)
		close(ch)
	}
}
