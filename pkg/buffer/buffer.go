// Package buffer provides a generic, thread-safe circular buffer with
// configurable overflow policies. The websocket feed keeps recent event
// frames in one so late-joining clients see what just happened. All
// operations are safe for concurrent use.
package buffer

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// Buffer is the interface all buffer implementations satisfy.
// The buffer is parameterized by item type T for type safety.
type Buffer[T any] interface {
	// Write adds an item to the buffer. Behavior on a full buffer depends
	// on the overflow policy.
	Write(item T) error

	// Read retrieves and removes one item from the buffer.
	// Returns the zero value and false if the buffer is empty.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items from the buffer.
	ReadBatch(max int) []T

	// Snapshot returns the buffered items oldest-first without removing
	// them.
	Snapshot() []T

	// Size returns the current number of items in the buffer.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// Stats returns buffer statistics.
	Stats() Statistics

	// Close shuts down the buffer and releases any resources.
	Close() error
}

// Statistics tracks buffer activity for observability.
type Statistics struct {
	Writes  int64
	Reads   int64
	Dropped int64
}
