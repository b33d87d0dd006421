package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/datastore/resource"
)

func TestAllocators(t *testing.T) {
	allocators := map[string]Allocator{
		"heap":      Heap(),
		"anonymous": Anonymous(),
		"auto":      Auto(4096),
	}

	for name, a := range allocators {
		t.Run(name, func(t *testing.T) {
			for _, size := range []int{1, 64, 4096, 10000} {
				buf, err := a.Alloc(size)
				require.NoError(t, err)
				require.Len(t, buf.Bytes(), size)
				assert.Equal(t, size, buf.Size())
				assert.False(t, buf.Empty())

				for i, b := range buf.Bytes() {
					if b != 0 {
						t.Fatalf("byte %d not zero", i)
					}
				}
				buf.Bytes()[size-1] = 1

				require.NoError(t, buf.Release())
				assert.True(t, buf.Empty())
				require.NoError(t, buf.Release())
			}

			empty, err := a.Alloc(0)
			require.NoError(t, err)
			assert.True(t, empty.Empty())
		})
	}
}

func TestAlloc_Ownership(t *testing.T) {
	a := Heap()

	first, err := a.Alloc(128)
	require.NoError(t, err)
	first.Bytes()[0] = 7

	var second Alloc
	second.Swap(&first)
	assert.True(t, first.Empty())
	assert.Equal(t, byte(7), second.Bytes()[0])

	moved := second.Take()
	assert.True(t, second.Empty())
	assert.Equal(t, 128, moved.Size())
	require.NoError(t, moved.Release())
}

func TestAlloc_Budget(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1000})

	for _, a := range []Allocator{Heap(WithController(rc)), Anonymous(WithController(rc))} {
		buf, err := a.Alloc(800)
		require.NoError(t, err)
		assert.Equal(t, int64(800), rc.MemoryUsage())

		_, err = a.Alloc(400)
		assert.ErrorIs(t, err, ErrOutOfMemory)
		assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
		assert.Equal(t, int64(800), rc.MemoryUsage())

		require.NoError(t, buf.Release())
		assert.Equal(t, int64(0), rc.MemoryUsage())
	}
}

func BenchmarkHeapAlloc(b *testing.B) {
	a := Heap()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf, _ := a.Alloc(4096)
		_ = buf.Release()
	}
}
