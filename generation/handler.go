package generation

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// Generation is a monotonically increasing writer epoch.
type Generation uint64

// validBit marks a node readers may still enter. Readers count in steps of two.
const validBit = 1

type node struct {
	gen  Generation
	refs atomic.Uint32
	next atomic.Pointer[node]
}

// tryAcquire adds a reader unless the node was invalidated.
func (n *node) tryAcquire() bool {
	for {
		refs := n.refs.Load()
		if refs&validBit == 0 {
			return false
		}
		if n.refs.CompareAndSwap(refs, refs+2) {
			return true
		}
	}
}

func (n *node) release() {
	n.refs.Add(^uint32(1)) // -2
}

func (n *node) readers() uint32 { return n.refs.Load() >> 1 }

// Handler hands out reader guards and computes the oldest used generation.
type Handler struct {
	first *node // oldest node that may have readers; writer only
	last  atomic.Pointer[node]

	current    atomic.Uint64
	oldestUsed atomic.Uint64
}

// NewHandler returns a Handler at generation 0.
func NewHandler() *Handler {
	n := &node{}
	n.refs.Store(validBit)

	h := &Handler{first: n}
	h.last.Store(n)
	return h
}

// Guard pins one generation for a reader. The zero Guard is released.
type Guard struct {
	n *node
}

// TakeGuard enters the current generation.
func (h *Handler) TakeGuard() Guard {
	for {
		n := h.last.Load()
		if n.tryAcquire() {
			return Guard{n: n}
		}
		// The writer is publishing a newer node.
		runtime.Gosched()
	}
}

// Generation returns the pinned generation.
func (g *Guard) Generation() Generation {
	if g.n == nil {
		return 0
	}
	return g.n.gen
}

// Valid reports whether the guard still pins a generation.
func (g *Guard) Valid() bool { return g.n != nil }

// Release leaves the generation. It is idempotent.
func (g *Guard) Release() {
	if g.n == nil {
		return
	}
	g.n.release()
	g.n = nil
}

// CurrentGeneration returns the generation new readers enter.
func (h *Handler) CurrentGeneration() Generation {
	return Generation(h.current.Load())
}

// OldestUsedGeneration returns the generation of the oldest reader as of the
// last UpdateOldestUsed, or the current generation if there was none.
func (h *Handler) OldestUsedGeneration() Generation {
	return Generation(h.oldestUsed.Load())
}

// IncGeneration publishes a new generation and recomputes the oldest used one.
func (h *Handler) IncGeneration() {
	prev := h.last.Load()
	n := &node{gen: prev.gen + 1}
	n.refs.Store(validBit)

	prev.next.Store(n)
	h.last.Store(n)
	h.current.Store(uint64(n.gen))
	// Readers that loaded prev but did not enter yet will retry on n.
	prev.refs.Add(^uint32(0))

	h.UpdateOldestUsed()
}

// UpdateOldestUsed drops generations without readers from the front of the list.
func (h *Handler) UpdateOldestUsed() {
	last := h.last.Load()
	for h.first != last && h.first.refs.Load() == 0 {
		h.first = h.first.next.Load()
	}
	h.oldestUsed.Store(uint64(h.first.gen))
}

// GenerationRefCount returns the number of readers in generations not yet
// retired by UpdateOldestUsed. Writer only.
func (h *Handler) GenerationRefCount() uint32 {
	var refs uint32
	for n := h.first; n != nil; n = n.next.Load() {
		refs += n.readers()
	}
	return refs
}

// ReadersAt returns the number of readers in generation gen. Writer only.
func (h *Handler) ReadersAt(gen Generation) uint32 {
	for n := h.first; n != nil; n = n.next.Load() {
		if n.gen == gen {
			return n.readers()
		}
	}
	return 0
}

func (h *Handler) String() string {
	return fmt.Sprintf("generation.Handler{current: %d, oldestUsed: %d}",
		h.CurrentGeneration(), h.OldestUsedGeneration())
}
