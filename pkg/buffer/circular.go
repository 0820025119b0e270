package buffer

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("buffer closed")

// ErrFull is returned by Write under the DropNewest policy when the buffer
// is at capacity.
var ErrFull = errors.New("buffer full")

// circularBuffer is a fixed-capacity ring. The zero value is not usable;
// construct via NewCircular.
type circularBuffer[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int // next read position
	tail   int // next write position
	size   int
	policy OverflowPolicy
	closed bool
	stats  Statistics
	onDrop func(T)
}

// Option configures a circular buffer.
type Option[T any] func(*circularBuffer[T])

// WithOverflowPolicy sets the overflow policy (default DropOldest).
func WithOverflowPolicy[T any](p OverflowPolicy) Option[T] {
	return func(b *circularBuffer[T]) { b.policy = p }
}

// WithDropCallback registers a callback invoked with each dropped item.
func WithDropCallback[T any](fn func(T)) Option[T] {
	return func(b *circularBuffer[T]) { b.onDrop = fn }
}

// NewCircular creates a circular buffer with the given capacity.
func NewCircular[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	if capacity <= 0 {
		return nil, errors.New("buffer capacity must be positive")
	}
	b := &circularBuffer[T]{
		items:  make([]T, capacity),
		policy: DropOldest,
	}
	for _, opt := range options {
		opt(b)
	}
	return b, nil
}

func (b *circularBuffer[T]) Write(item T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	if b.size == len(b.items) {
		switch b.policy {
		case DropNewest:
			b.stats.Dropped++
			if b.onDrop != nil {
				b.onDrop(item)
			}
			return ErrFull
		default: // DropOldest
			dropped := b.items[b.head]
			b.head = (b.head + 1) % len(b.items)
			b.size--
			b.stats.Dropped++
			if b.onDrop != nil {
				b.onDrop(dropped)
			}
		}
	}

	b.items[b.tail] = item
	b.tail = (b.tail + 1) % len(b.items)
	b.size++
	b.stats.Writes++
	return nil
}

func (b *circularBuffer[T]) Read() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readLocked()
}

func (b *circularBuffer[T]) readLocked() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	item := b.items[b.head]
	b.items[b.head] = zero // release reference
	b.head = (b.head + 1) % len(b.items)
	b.size--
	b.stats.Reads++
	return item, true
}

func (b *circularBuffer[T]) ReadBatch(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if max <= 0 || b.size == 0 {
		return nil
	}
	n := max
	if n > b.size {
		n = b.size
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		item, ok := b.readLocked()
		if !ok {
			break
		}
		out = append(out, item)
	}
	return out
}

func (b *circularBuffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.items[(b.head+i)%len(b.items)])
	}
	return out
}

func (b *circularBuffer[T]) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *circularBuffer[T]) Capacity() int {
	return len(b.items)
}

func (b *circularBuffer[T]) Stats() Statistics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *circularBuffer[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
