package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircular_WriteRead(t *testing.T) {
	b, err := NewCircular[int](4)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, b.Write(i))
	}
	assert.Equal(t, 3, b.Size())

	v, ok := b.Read()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	got := b.ReadBatch(10)
	assert.Equal(t, []int{2, 3}, got)
	assert.Equal(t, 0, b.Size())

	_, ok = b.Read()
	assert.False(t, ok)
}

func TestCircular_DropOldest(t *testing.T) {
	var dropped []string
	b, err := NewCircular[string](2,
		WithOverflowPolicy[string](DropOldest),
		WithDropCallback[string](func(s string) { dropped = append(dropped, s) }))
	require.NoError(t, err)

	require.NoError(t, b.Write("a"))
	require.NoError(t, b.Write("b"))
	require.NoError(t, b.Write("c"))

	assert.Equal(t, []string{"a"}, dropped)
	assert.Equal(t, []string{"b", "c"}, b.ReadBatch(5))
	assert.Equal(t, int64(1), b.Stats().Dropped)
}

func TestCircular_DropNewest(t *testing.T) {
	b, err := NewCircular[int](2, WithOverflowPolicy[int](DropNewest))
	require.NoError(t, err)

	require.NoError(t, b.Write(1))
	require.NoError(t, b.Write(2))
	assert.ErrorIs(t, b.Write(3), ErrFull)
	assert.Equal(t, []int{1, 2}, b.ReadBatch(5))
}

func TestCircular_Snapshot(t *testing.T) {
	b, err := NewCircular[int](3)
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		require.NoError(t, b.Write(i)) // wraps, drops 1
	}

	assert.Equal(t, []int{2, 3, 4}, b.Snapshot())
	// Snapshot does not consume.
	assert.Equal(t, 3, b.Size())
	assert.Equal(t, []int{2, 3, 4}, b.ReadBatch(5))
}

func TestCircular_Close(t *testing.T) {
	b, err := NewCircular[int](2)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Write(1), ErrClosed)
}

func TestCircular_InvalidCapacity(t *testing.T) {
	_, err := NewCircular[int](0)
	assert.Error(t, err)
}

func TestCircular_ConcurrentAccess(t *testing.T) {
	b, err := NewCircular[int](128)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = b.Write(i)
			}
		}()
	}
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.ReadBatch(8)
			}
		}()
	}
	wg.Wait()

	stats := b.Stats()
	assert.Equal(t, int64(400), stats.Writes+stats.Dropped)
}
