package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRNG_Reset(t *testing.T) {
	rng := NewRNG(4711)
	a := rng.Uint64()
	rng.Reset()
	assert.Equal(t, a, rng.Uint64())
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestZipf(t *testing.T) {
	rng := NewRNG(4711)

	counts := make([]int, 10)
	for range 2000 {
		k := rng.Zipf(10, 1.5)
		assert.GreaterOrEqual(t, k, 0)
		assert.Less(t, k, 10)
		counts[k]++
	}
	assert.Greater(t, counts[0], counts[9])
	assert.Equal(t, 0, rng.Zipf(1, 1.5))
}

func TestWorkload(t *testing.T) {
	ops := NewRNG(4711).Workload(1000, DefaultMix)
	assert.Len(t, ops, 1000)

	live := 0
	seen := map[OpKind]int{}
	for _, op := range ops {
		seen[op.Kind]++
		switch op.Kind {
		case OpAllocate:
			live++
		case OpHold:
			assert.Less(t, op.Target, live)
			live--
		}
	}
	assert.Positive(t, seen[OpAllocate])
	assert.Positive(t, seen[OpHold])
	assert.Positive(t, seen[OpCommit])

	assert.Equal(t, ops, NewRNG(4711).Workload(1000, DefaultMix), "workloads are reproducible")
}

func TestOpKind_String(t *testing.T) {
	assert.Equal(t, "allocate", OpAllocate.String())
	assert.Equal(t, "hold", OpHold.String())
	assert.Equal(t, "commit", OpCommit.String())
	assert.Equal(t, "unknown", OpKind(9).String())
}
