package buffer

import (
	"fmt"
	"reflect"

	"github.com/hupe1980/datastore/internal/conv"
)

// ElementOps are the element-level operations of one element type. Buffers are
// raw byte regions; every method interprets them as arrays of the element type.
type ElementOps interface {
	// ElementType returns the Go type stored in the buffers.
	ElementType() reflect.Type
	// ElementSize returns the size of one element in bytes.
	ElementSize() int
	// DestroyElements ends the lifetime of numElems elements at the start of buf.
	DestroyElements(buf []byte, numElems int)
	// FallbackCopy copies numElems elements from src into dst. The regions never overlap.
	FallbackCopy(dst, src []byte, numElems int)
	// InitializeReservedElements fills the first reservedElems elements with the empty entry.
	InitializeReservedElements(buf []byte, reservedElems int)
	// CleanHold assigns the empty entry over [offset, offset+length).
	CleanHold(buf []byte, offset, length int)
}

// TypeHandler is everything a State needs to know about the type of its buffer:
// the element operations plus the aggregate bookkeeping shared by all buffers
// of the type.
type TypeHandler interface {
	ElementOps

	// ReservedElements returns how many elements at the head of the buffer
	// are never handed out.
	ReservedElements(bufferID uint32) int
	ClusterSize() int
	ActiveBuffers() int

	// FlushLastUsed folds the tracked counter of the latest active buffer
	// into the active total.
	FlushLastUsed()
	// OnActive registers a newly active buffer, initializes its reserved
	// elements and returns its initial dead element count.
	OnActive(bufferID uint32, usedElems *int, buf []byte) (deadElems int)
	// OnHold moves a buffer's contribution from the active to the hold totals.
	OnHold(usedElems *int)
	// OnFree removes a held buffer's contribution.
	OnFree(usedElems int)
	// CalcClustersToAlloc sizes a new allocation for bufferID.
	CalcClustersToAlloc(bufferID uint32, sizeNeeded int, clusterRefSize uint64) int
}

// SizingFunc proposes the cluster count of a new buffer given the clusters
// already used by the type's active and held buffers. The result is always
// clamped to the type's bounds.
type SizingFunc func(usedClusters int) int

// Doubling allocates as many clusters as the type already uses, doubling the
// total on every new buffer. It is the default policy.
func Doubling() SizingFunc {
	return func(usedClusters int) int { return usedClusters }
}

// Growth allocates factor times the clusters already used.
func Growth(factor float64) SizingFunc {
	return func(usedClusters int) int { return int(float64(usedClusters) * factor) }
}

// Fixed always proposes the same number of clusters.
func Fixed(clusters int) SizingFunc {
	return func(int) int { return clusters }
}

type typeOptions struct {
	reserved          func(bufferID uint32) int
	sizing            SizingFunc
	emptyEntry        any
	newBufferClusters int
}

// TypeOption configures a TypeBase or BufferType.
type TypeOption func(*typeOptions)

// WithReservedElements overrides the number of reserved head elements per buffer.
func WithReservedElements(fn func(bufferID uint32) int) TypeOption {
	return func(o *typeOptions) {
		o.reserved = fn
	}
}

// WithSizing replaces the default Doubling sizing policy.
func WithSizing(fn SizingFunc) TypeOption {
	return func(o *typeOptions) {
		o.sizing = fn
	}
}

// WithClustersForNewBuffer sets the size a buffer must reach before growing
// it gives way to switching to a new buffer. Smaller active buffers are
// resized in place. It defaults to the minimum buffer size.
func WithClustersForNewBuffer(clusters int) TypeOption {
	return func(o *typeOptions) {
		o.newBufferClusters = clusters
	}
}

// WithEmptyEntry sets the value used for reserved and scrubbed elements.
// The value's type must match the BufferType's element type.
func WithEmptyEntry[T any](v T) TypeOption {
	return func(o *typeOptions) {
		o.emptyEntry = v
	}
}

// defaultReservedElements keeps offset 0 of buffer 0 out of the valid
// reference space.
func defaultReservedElements(bufferID uint32) int {
	if bufferID == 0 {
		return 1
	}
	return 0
}

// TypeBase holds the sizing bounds and running totals of one element type
// across all of its buffers, and implements TypeHandler on top of an ElementOps.
type TypeBase struct {
	ElementOps

	clusterSize       int
	minClusters       int
	maxClusters       int
	newBufferClusters int

	activeBuffers   int
	holdBuffers     int
	activeUsedElems int  // used elements in all but the latest active buffer
	holdUsedElems   int  // used elements in all held buffers
	lastUsedElems   *int // used elements in the latest active buffer

	reserved func(bufferID uint32) int
	sizing   SizingFunc
}

// NewTypeBase creates a TypeBase. Invalid bounds panic with ErrInvalidTypeConfig.
func NewTypeBase(ops ElementOps, clusterSize, minClusters, maxClusters int, opts ...TypeOption) *TypeBase {
	o := typeOptions{
		reserved: defaultReservedElements,
		sizing:   Doubling(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return newTypeBase(ops, clusterSize, minClusters, maxClusters, o)
}

func newTypeBase(ops ElementOps, clusterSize, minClusters, maxClusters int, o typeOptions) *TypeBase {
	if ops == nil {
		violation(ErrInvalidTypeConfig, "nil element operations")
	}
	if clusterSize <= 0 {
		violation(ErrInvalidTypeConfig, "cluster size %d", clusterSize)
	}
	if minClusters <= 0 || minClusters > maxClusters {
		violation(ErrInvalidTypeConfig, "cluster bounds [%d, %d]", minClusters, maxClusters)
	}
	return &TypeBase{
		ElementOps:        ops,
		clusterSize:       clusterSize,
		minClusters:       minClusters,
		maxClusters:       maxClusters,
		newBufferClusters: min(max(o.newBufferClusters, minClusters), maxClusters),
		reserved:          o.reserved,
		sizing:            o.sizing,
	}
}

// ClusterSize returns the number of elements per cluster.
func (t *TypeBase) ClusterSize() int { return t.clusterSize }

// MinClusters returns the smallest buffer size in clusters.
func (t *TypeBase) MinClusters() int { return t.minClusters }

// MaxClusters returns the largest buffer size in clusters.
func (t *TypeBase) MaxClusters() int { return t.maxClusters }

// ClustersForNewBuffer returns the size below which an active buffer is
// resized in place rather than replaced.
func (t *TypeBase) ClustersForNewBuffer() int { return t.newBufferClusters }

// ActiveBuffers returns the number of active buffers of this type.
func (t *TypeBase) ActiveBuffers() int { return t.activeBuffers }

// HoldBuffers returns the number of held buffers of this type.
func (t *TypeBase) HoldBuffers() int { return t.holdBuffers }

// ActiveUsedElems returns the used elements of all active buffers, including
// the live counter of the latest one.
func (t *TypeBase) ActiveUsedElems() int {
	used := t.activeUsedElems
	if t.lastUsedElems != nil {
		used += *t.lastUsedElems
	}
	return used
}

// HoldUsedElems returns the used elements of all held buffers.
func (t *TypeBase) HoldUsedElems() int { return t.holdUsedElems }

// ReservedElements returns the reserved head elements of bufferID.
func (t *TypeBase) ReservedElements(bufferID uint32) int { return t.reserved(bufferID) }

// FlushLastUsed folds the latest active buffer's counter into the active total.
func (t *TypeBase) FlushLastUsed() {
	if t.lastUsedElems != nil {
		t.activeUsedElems += *t.lastUsedElems
		t.lastUsedElems = nil
	}
}

// OnActive registers a new active buffer. usedElems becomes the tracked counter
// of the latest active buffer; the previous one is flushed first.
func (t *TypeBase) OnActive(bufferID uint32, usedElems *int, buf []byte) int {
	t.FlushLastUsed()
	t.activeBuffers++
	t.lastUsedElems = usedElems

	reserved := t.ReservedElements(bufferID)
	if reserved == 0 {
		return 0
	}
	t.InitializeReservedElements(buf, reserved)
	return t.clustersFor(reserved) * t.clusterSize
}

// OnHold moves one buffer from the active to the hold totals using its final
// used element count.
func (t *TypeBase) OnHold(usedElems *int) {
	if usedElems == t.lastUsedElems {
		t.FlushLastUsed()
	}
	if t.activeBuffers == 0 || t.activeUsedElems < *usedElems {
		violation(ErrInvalidState, "hold of %d used elements with %d active buffers holding %d",
			*usedElems, t.activeBuffers, t.activeUsedElems)
	}
	t.activeBuffers--
	t.holdBuffers++
	t.activeUsedElems -= *usedElems
	t.holdUsedElems += *usedElems
}

// OnFree removes a held buffer from the hold totals.
func (t *TypeBase) OnFree(usedElems int) {
	if t.holdBuffers == 0 || t.holdUsedElems < usedElems {
		violation(ErrInvalidState, "free of %d used elements with %d held buffers holding %d",
			usedElems, t.holdBuffers, t.holdUsedElems)
	}
	t.holdBuffers--
	t.holdUsedElems -= usedElems
}

// CalcClustersToAlloc returns the number of clusters for a new allocation of
// bufferID holding at least sizeNeeded elements. The result lies in
// [max(need, minClusters), min(maxClusters, clusterRefSize-reserved)], where the
// upper bound wins if the two conflict. A need above the upper bound panics
// with ErrClusterOverflow.
func (t *TypeBase) CalcClustersToAlloc(bufferID uint32, sizeNeeded int, clusterRefSize uint64) int {
	reservedClusters := t.clustersFor(t.ReservedElements(bufferID))
	refLimit := conv.ClampUint64ToInt(clusterRefSize) - reservedClusters
	limit := min(t.maxClusters, refLimit)

	needClusters := t.clustersFor(sizeNeeded)
	if needClusters > limit {
		violation(ErrClusterOverflow, "need %d clusters, at most %d addressable (max %d, reference %d)",
			needClusters, max(limit, 0), t.maxClusters, clusterRefSize)
	}

	usedClusters := t.clustersFor(t.ActiveUsedElems() + t.holdUsedElems)
	want := max(t.sizing(usedClusters), t.minClusters, needClusters)
	return min(want, limit)
}

func (t *TypeBase) clustersFor(elems int) int {
	return (elems + t.clusterSize - 1) / t.clusterSize
}

func (t *TypeBase) String() string {
	return fmt.Sprintf("TypeBase{cluster: %d, clusters: [%d, %d], active: %d, hold: %d, activeUsed: %d, holdUsed: %d}",
		t.clusterSize, t.minClusters, t.maxClusters, t.activeBuffers, t.holdBuffers, t.ActiveUsedElems(), t.holdUsedElems)
}
