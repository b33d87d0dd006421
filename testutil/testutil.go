package testutil

import (
	"math"
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic test data
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed) //nolint:staticcheck // reseeding keeps workloads reproducible
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Zipf returns a Zipfian-distributed value in [0, n).
// Uses Zipf's law: P(k) ∝ 1/k^s where s is the skew parameter.
// s=1.0 gives standard Zipf, s=1.5 gives heavy-tail (80/20 rule).
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

// zipfLocked is the internal implementation (caller must hold lock).
func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	// Compute normalization constant (harmonic number with exponent s)
	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	// Sample from uniform and use inverse transform
	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1 // 0-indexed
		}
	}

	return n - 1
}

// OpKind is the kind of a workload operation.
type OpKind uint8

const (
	// OpAllocate allocates a new entry holding Value.
	OpAllocate OpKind = iota
	// OpHold retires the live entry at index Target.
	OpHold
	// OpCommit ends the current generation.
	OpCommit
)

func (k OpKind) String() string {
	switch k {
	case OpAllocate:
		return "allocate"
	case OpHold:
		return "hold"
	case OpCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// Op is one workload operation.
type Op struct {
	Kind   OpKind
	Value  uint64
	Target int // index into the live entries, newest first
}

// Mix sets the relative weights of the operation kinds.
type Mix struct {
	Allocate int
	Hold     int
	Commit   int
	Skew     float64 // Zipf skew of hold targets
}

// DefaultMix allocates most of the time, retires about a third as often and
// commits every few dozen operations.
var DefaultMix = Mix{Allocate: 60, Hold: 20, Commit: 3, Skew: 1.2}

// Workload generates n operations. Hold operations only target entries that
// are live at that point.
func (r *RNG) Workload(n int, mix Mix) []Op {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := mix.Allocate + mix.Hold + mix.Commit
	ops := make([]Op, 0, n)
	live := 0
	for len(ops) < n {
		pick := r.rand.Intn(total)
		switch {
		case pick < mix.Allocate:
			ops = append(ops, Op{Kind: OpAllocate, Value: r.rand.Uint64()})
			live++
		case pick < mix.Allocate+mix.Hold:
			if live == 0 {
				continue
			}
			ops = append(ops, Op{Kind: OpHold, Target: r.zipfLocked(live, mix.Skew)})
			live--
		default:
			ops = append(ops, Op{Kind: OpCommit})
		}
	}
	return ops
}
