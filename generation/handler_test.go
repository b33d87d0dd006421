package generation

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestHandler_Initial(t *testing.T) {
	h := NewHandler()
	assert.Equal(t, Generation(0), h.CurrentGeneration())
	assert.Equal(t, Generation(0), h.OldestUsedGeneration())
	assert.Equal(t, uint32(0), h.GenerationRefCount())
	assert.Contains(t, h.String(), "current: 0")
}

func TestHandler_IncWithoutReaders(t *testing.T) {
	h := NewHandler()
	for i := 1; i <= 5; i++ {
		h.IncGeneration()
		assert.Equal(t, Generation(i), h.CurrentGeneration())
		assert.Equal(t, Generation(i), h.OldestUsedGeneration())
	}
}

func TestHandler_GuardPinsOldest(t *testing.T) {
	h := NewHandler()
	h.IncGeneration()

	g1 := h.TakeGuard()
	assert.Equal(t, Generation(1), g1.Generation())
	h.IncGeneration()
	h.IncGeneration()

	g3 := h.TakeGuard()
	assert.Equal(t, Generation(3), g3.Generation())
	assert.Equal(t, Generation(3), h.CurrentGeneration())
	assert.Equal(t, Generation(1), h.OldestUsedGeneration())
	assert.Equal(t, uint32(2), h.GenerationRefCount())
	assert.Equal(t, uint32(1), h.ReadersAt(1))
	assert.Equal(t, uint32(0), h.ReadersAt(2))

	g1.Release()
	assert.False(t, g1.Valid())
	g1.Release()
	h.UpdateOldestUsed()
	assert.Equal(t, Generation(3), h.OldestUsedGeneration(), "current generation has a reader")

	h.IncGeneration()
	assert.Equal(t, Generation(3), h.OldestUsedGeneration())
	g3.Release()
	h.UpdateOldestUsed()
	assert.Equal(t, Generation(4), h.OldestUsedGeneration())
	assert.Equal(t, uint32(0), h.GenerationRefCount())
}

func TestHandler_ReadersInCurrentGeneration(t *testing.T) {
	h := NewHandler()
	g := h.TakeGuard()
	h.UpdateOldestUsed()
	assert.Equal(t, Generation(0), h.OldestUsedGeneration())
	g.Release()

	var zero Guard
	assert.False(t, zero.Valid())
	assert.Equal(t, Generation(0), zero.Generation())
	zero.Release()
}

func TestHandler_ConcurrentReaders(t *testing.T) {
	h := NewHandler()
	var stop atomic.Bool
	var violations atomic.Int64

	var eg errgroup.Group
	for range 8 {
		eg.Go(func() error {
			for !stop.Load() {
				g := h.TakeGuard()
				// The writer may never consider a pinned generation reclaimable.
				if h.OldestUsedGeneration() > g.Generation() {
					violations.Add(1)
				}
				g.Release()
			}
			return nil
		})
	}

	for range 10000 {
		h.IncGeneration()
	}
	stop.Store(true)
	require.NoError(t, eg.Wait())

	h.UpdateOldestUsed()
	assert.Equal(t, Generation(10000), h.CurrentGeneration())
	assert.Equal(t, h.CurrentGeneration(), h.OldestUsedGeneration())
	assert.Equal(t, uint32(0), h.GenerationRefCount())
	assert.Zero(t, violations.Load())
}

func BenchmarkHandler_TakeGuard(b *testing.B) {
	h := NewHandler()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			g := h.TakeGuard()
			g.Release()
		}
	})
}
