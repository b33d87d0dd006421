package datastore

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/datastore/buffer"
	"github.com/hupe1980/datastore/entryref"
	"github.com/hupe1980/datastore/generation"
	"github.com/hupe1980/datastore/internal/conv"
	"github.com/hupe1980/datastore/resource"
)

// bufferView is the part of a buffer readers may see. It is replaced, never
// mutated, when the buffer is activated, resized or freed.
type bufferView struct {
	mem      []byte
	elems    int
	typeID   uint32
	elemType reflect.Type
}

type typeEntry struct {
	handler buffer.TypeHandler
	refSize uint64 // clusters one buffer can address

	primary    uint32
	hasPrimary bool
	freeList   *buffer.FreeListList // nil unless free lists are enabled

	compacting   bool
	compactStart time.Time
	moved        int
}

// Store hands out entry references into typed buffers and manages the
// buffers' lifecycle.
//
// Mutating methods are serialized by an internal lock. Get and GetArray are
// lock-free: they pin the current generation while reading, and memory is only
// released once no reader can be in a generation that saw it.
type Store struct {
	mu sync.Mutex

	layout entryref.Layout
	states []buffer.State
	views  []atomic.Pointer[bufferView]
	types  []*typeEntry

	generations *generation.Handler
	holder      *generation.Holder
	compacting  *roaring.Bitmap

	freeLists        bool
	elemHoldDisabled bool

	controller *resource.Controller
	logger     *Logger
	metrics    MetricsCollector

	closed atomic.Bool
}

// New creates an empty Store.
func New(optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)

	layout, err := entryref.NewLayout(o.offsetBits)
	if err != nil {
		return nil, err
	}
	if o.maxBuffers <= 0 {
		return nil, fmt.Errorf("%w: max buffers %d", ErrInvalidArgument, o.maxBuffers)
	}
	numBuffers := min(o.maxBuffers, conv.ClampUint64ToInt(uint64(layout.NumBuffers())))

	s := &Store{
		layout:      layout,
		states:      make([]buffer.State, numBuffers),
		views:       make([]atomic.Pointer[bufferView], numBuffers),
		generations: o.generations,
		holder:      generation.NewHolder(),
		compacting:  roaring.New(),
		freeLists:   o.freeLists,
		controller:  o.controller,
		logger:      o.logger,
		metrics:     o.metricsCollector,
	}
	for i := range s.states {
		s.states[i].SetAllocator(o.allocator)
	}
	return s, nil
}

// Layout returns the reference layout.
func (s *Store) Layout() entryref.Layout { return s.layout }

// NumBuffers returns the number of buffer slots.
func (s *Store) NumBuffers() int { return len(s.states) }

// GenerationHandler returns the generation handler readers synchronize on.
func (s *Store) GenerationHandler() *generation.Handler { return s.generations }

// AddType registers a type handler and returns its type id. The type has no
// buffer until InitActiveBuffers or its first allocation.
//
// Registering a nil handler or registering on a closed Store is a programming
// error and panics with ErrInvalidArgument or ErrClosed.
func (s *Store) AddType(h buffer.TypeHandler) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		panic(fmt.Errorf("%w: type registration", ErrClosed))
	}
	if h == nil {
		panic(fmt.Errorf("%w: nil type handler", ErrInvalidArgument))
	}

	id := uint32(len(s.types)) //nolint:gosec // bounded by the number of registered types
	te := &typeEntry{
		handler: h,
		refSize: s.layout.OffsetSize() / uint64(h.ClusterSize()), //nolint:gosec // cluster size is positive
	}
	if s.freeLists {
		te.freeList = buffer.NewFreeListList(s.state)
	}
	s.types = append(s.types, te)

	s.logger.WithTypeID(id).Debug("type added",
		"element_type", h.ElementType(),
		"cluster_size", h.ClusterSize(),
	)
	return id
}

// InitActiveBuffers activates a primary buffer for every type without one.
func (s *Store) InitActiveBuffers() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	for i, te := range s.types {
		if te.hasPrimary {
			continue
		}
		if err := s.switchLocked(uint32(i), te, 0); err != nil { //nolint:gosec // type ids fit in uint32
			return err
		}
	}
	return nil
}

// EnsureBufferCapacity makes room for elemsNeeded more elements in the primary
// buffer of typeID. A buffer smaller than the type's new-buffer size is
// resized in place; otherwise a new primary buffer is activated.
func (s *Store) EnsureBufferCapacity(typeID uint32, elemsNeeded int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	te, err := s.typeEntryLocked(typeID)
	if err != nil {
		return err
	}
	return s.ensureLocked(typeID, te, elemsNeeded)
}

// SwitchActiveBuffer activates a new primary buffer for typeID with room for
// at least elemsNeeded elements. The previous primary buffer stays active.
func (s *Store) SwitchActiveBuffer(typeID uint32, elemsNeeded int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	te, err := s.typeEntryLocked(typeID)
	if err != nil {
		return err
	}
	return s.switchLocked(typeID, te, elemsNeeded)
}

func (s *Store) state(bufferID uint32) *buffer.State { return &s.states[bufferID] }

func (s *Store) typeEntryLocked(typeID uint32) (*typeEntry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if int(typeID) >= len(s.types) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, typeID)
	}
	return s.types[typeID], nil
}

func (s *Store) ensureLocked(typeID uint32, te *typeEntry, elemsNeeded int) error {
	if elemsNeeded < 0 {
		return fmt.Errorf("%w: %d elements needed", ErrInvalidArgument, elemsNeeded)
	}
	if !te.hasPrimary {
		return s.switchLocked(typeID, te, elemsNeeded)
	}
	st := &s.states[te.primary]
	if st.Remaining() >= elemsNeeded {
		return nil
	}
	grown := st.Size() + elemsNeeded
	if grown >= s.newBufferElems(te) || grown > s.addressableElems(te, st.ReservedElems()) {
		return s.switchLocked(typeID, te, elemsNeeded)
	}
	return s.fallbackResizeLocked(typeID, te, elemsNeeded)
}

// addressableElems returns how many elements past a reserved head of the
// given size one buffer of the type can hold and references can reach.
func (s *Store) addressableElems(te *typeEntry, reservedElems int) int {
	cs := te.handler.ClusterSize()
	reservedClusters := (reservedElems + cs - 1) / cs
	clusters := conv.ClampUint64ToInt(te.refSize) - reservedClusters
	if bounded, ok := te.handler.(interface{ MaxClusters() int }); ok {
		clusters = min(clusters, bounded.MaxClusters())
	}
	return clusters * cs
}

// newBufferElems returns the buffer size from which switching beats resizing.
func (s *Store) newBufferElems(te *typeEntry) int {
	sized, ok := te.handler.(interface{ ClustersForNewBuffer() int })
	if !ok {
		return 0
	}
	return sized.ClustersForNewBuffer() * te.handler.ClusterSize()
}

func (s *Store) findFreeBuffer() (uint32, bool) {
	for i := range s.states {
		if s.states[i].IsFree() {
			return uint32(i), true //nolint:gosec // bounded by the layout's buffer count
		}
	}
	return 0, false
}

func (s *Store) switchLocked(typeID uint32, te *typeEntry, elemsNeeded int) error {
	bufferID, ok := s.findFreeBuffer()
	if !ok {
		err := fmt.Errorf("%w: type %d", ErrNoFreeBuffer, typeID)
		s.logger.WithTypeID(typeID).Error("buffer activation failed", "error", err)
		s.metrics.RecordBufferActive(typeID, 0, err)
		return err
	}

	if limit := s.addressableElems(te, te.handler.ReservedElements(bufferID)); elemsNeeded > limit {
		return fmt.Errorf("%w: %d elements exceed the %d one buffer of type %d can hold",
			ErrInvalidArgument, elemsNeeded, limit, typeID)
	}

	st := &s.states[bufferID]
	_, err := st.OnActive(bufferID, typeID, te.handler, elemsNeeded, te.refSize)
	s.logger.LogBufferActive(bufferID, typeID, st.Capacity(), err)
	s.metrics.RecordBufferActive(typeID, st.AllocatedBytes(), err)
	if err != nil {
		return err
	}

	if s.elemHoldDisabled {
		st.DisableElemHoldList()
	}
	st.SetFreeListList(te.freeList)
	s.publish(bufferID, st)

	te.primary = bufferID
	te.hasPrimary = true
	return nil
}

func (s *Store) fallbackResizeLocked(typeID uint32, te *typeEntry, elemsNeeded int) error {
	bufferID := te.primary
	st := &s.states[bufferID]
	oldCapacity, oldBytes := st.Capacity(), st.AllocatedBytes()

	_, hold, err := st.FallbackResize(bufferID, elemsNeeded, te.refSize)
	s.logger.LogFallbackResize(bufferID, typeID, oldCapacity, st.Capacity(), err)
	s.metrics.RecordFallbackResize(typeID, oldBytes, st.AllocatedBytes(), err)
	if err != nil {
		return err
	}

	s.publish(bufferID, st)
	s.holder.Hold(hold.Size(), func() {
		if err := hold.Release(); err != nil {
			s.logger.WithBufferID(bufferID).Error("release of resized-away memory failed", "error", err)
		}
	})
	return nil
}

func (s *Store) publish(bufferID uint32, st *buffer.State) {
	h := st.TypeHandler()
	mem := st.Memory()
	s.views[bufferID].Store(&bufferView{
		mem:      mem,
		elems:    len(mem) / h.ElementSize(),
		typeID:   st.TypeID(),
		elemType: h.ElementType(),
	})
}

// reserve hands out n elements of typeID, from the free lists if possible.
// It returns the reference, the buffer and the element offset in the buffer's
// memory.
func (s *Store) reserve(typeID uint32, elemType reflect.Type, n int) (entryref.EntryRef, *buffer.State, int, error) {
	te, err := s.typeEntryLocked(typeID)
	if err != nil {
		return 0, nil, 0, err
	}
	if te.handler.ElementType() != elemType {
		return 0, nil, 0, fmt.Errorf("%w: type %d stores %s, not %s", ErrTypeMismatch, typeID, te.handler.ElementType(), elemType)
	}
	if n <= 0 {
		return 0, nil, 0, fmt.Errorf("%w: allocation of %d elements", ErrInvalidArgument, n)
	}

	clusterSize := te.handler.ClusterSize()
	if te.freeList != nil && n == clusterSize && !te.freeList.Empty() {
		st := te.freeList.HeadState()
		ref := st.PopFreeList()
		return ref, st, int(s.layout.Offset(ref)), nil //nolint:gosec // offsets fit in 31 bits
	}

	elems := (n + clusterSize - 1) / clusterSize * clusterSize
	if err := s.ensureLocked(typeID, te, elems); err != nil {
		return 0, nil, 0, err
	}
	st := &s.states[te.primary]
	offset := st.ReservedElems() + st.Size()
	st.PushedBack(elems)
	return s.layout.Make(te.primary, uint64(offset)), st, offset, nil //nolint:gosec // offset is non-negative
}

// resolve validates ref for reading n elements of elemType.
func (s *Store) resolve(ref entryref.EntryRef, elemType reflect.Type, n int) (*bufferView, int, error) {
	if s.closed.Load() {
		return nil, 0, ErrClosed
	}
	if !ref.Valid() {
		return nil, 0, fmt.Errorf("%w: null reference", ErrInvalidRef)
	}
	bufferID, offset := s.layout.Split(ref)
	if int(bufferID) >= len(s.views) {
		return nil, 0, fmt.Errorf("%w: buffer %d out of range", ErrInvalidRef, bufferID)
	}
	view := s.views[bufferID].Load()
	if view == nil {
		return nil, 0, fmt.Errorf("%w: buffer %d is free", ErrInvalidRef, bufferID)
	}
	if view.elemType != elemType {
		return nil, 0, fmt.Errorf("%w: buffer %d stores %s, not %s", ErrTypeMismatch, bufferID, view.elemType, elemType)
	}
	if n < 0 || offset+uint64(n) > uint64(view.elems) { //nolint:gosec // n is non-negative
		return nil, 0, fmt.Errorf("%w: offset %d+%d beyond %d elements of buffer %d", ErrInvalidRef, offset, n, view.elems, bufferID)
	}
	return view, int(offset), nil //nolint:gosec // offsets fit in 31 bits
}

// stateOf returns the non-free buffer ref points into.
func (s *Store) stateOf(ref entryref.EntryRef) (*buffer.State, int, error) {
	bufferID, offset := s.layout.Split(ref)
	if !ref.Valid() || int(bufferID) >= len(s.states) || s.states[bufferID].IsFree() {
		return nil, 0, fmt.Errorf("%w: %#x", ErrInvalidRef, ref.Ref())
	}
	return &s.states[bufferID], int(offset), nil //nolint:gosec // offsets fit in 31 bits
}

// HoldElem retires the n elements at ref. They stay readable until the
// generation they were retired in is no longer used; then they are scrubbed,
// counted dead and, for single clusters, recycled through the free lists.
//
// With element hold lists disabled the elements are counted dead at once.
func (s *Store) HoldElem(ref entryref.EntryRef, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	st, offset, err := s.stateOf(ref)
	if err != nil {
		return err
	}
	index := offset - st.ReservedElems()
	if n <= 0 || index < 0 || index+n > st.Size() {
		return fmt.Errorf("%w: %d elements at offset %d of buffer %d", ErrInvalidRef, n, offset, st.BufferID())
	}

	// The whole buffer is already held.
	if st.IsOnHold() {
		st.IncDeadElems(n)
		return nil
	}
	if !st.HoldElems(n) {
		return nil
	}
	s.holder.Hold(n*st.TypeHandler().ElementSize(), func() {
		st.DecHoldElems(n)
		st.CleanHold(index, n)
		st.FreeElem(ref, n)
	})
	return nil
}

// TransferHoldLists tags everything retired since the last transfer with gen.
func (s *Store) TransferHoldLists(gen generation.Generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holder.TransferHoldLists(gen)
}

// TrimHoldLists releases everything retired before oldestUsed.
func (s *Store) TrimHoldLists(oldestUsed generation.Generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holder.TrimHoldLists(oldestUsed)
}

// Commit ends the current generation: retired memory is tagged with it, a new
// generation starts, and everything no reader can see any more is released.
func (s *Store) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.holder.TransferHoldLists(s.generations.CurrentGeneration())
	s.generations.IncGeneration()
	s.holder.TrimHoldLists(s.generations.OldestUsedGeneration())
}

// HoldBuffer retires an active buffer. It stays readable until the current
// generation is no longer used, then its memory is released.
func (s *Store) HoldBuffer(bufferID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	return s.holdBufferLocked(bufferID)
}

func (s *Store) holdBufferLocked(bufferID uint32) error {
	if int(bufferID) >= len(s.states) {
		return fmt.Errorf("%w: buffer %d out of range", ErrInvalidRef, bufferID)
	}
	st := &s.states[bufferID]
	if !st.IsActive() {
		return fmt.Errorf("%w: buffer %d is %s", ErrInvalidRef, bufferID, st.Status())
	}

	typeID := st.TypeID()
	if te := s.types[typeID]; te.hasPrimary && te.primary == bufferID {
		te.hasPrimary = false
	}
	st.OnHold()

	bytes := st.AllocatedBytes()
	s.logger.LogBufferHold(bufferID, typeID, st.Size(), st.DeadElems())
	s.metrics.RecordBufferHold(typeID, bytes)
	s.holder.Hold(bytes, func() {
		s.freeBufferLocked(bufferID, typeID, bytes)
	})
	return nil
}

func (s *Store) freeBufferLocked(bufferID, typeID uint32, bytes int) {
	s.views[bufferID].Store(nil)
	s.compacting.Remove(bufferID)
	err := s.states[bufferID].OnFree()
	s.logger.LogBufferFree(bufferID, typeID, err)
	s.metrics.RecordBufferFree(typeID, bytes, err)
}

// DisableElemHoldList makes HoldElem count elements dead immediately in all
// current and future buffers.
func (s *Store) DisableElemHoldList() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.elemHoldDisabled = true
	for i := range s.states {
		if s.states[i].IsActive() {
			s.states[i].DisableElemHoldList()
		}
	}
}

// BufferState returns the bookkeeping of bufferID, or nil if it is out of range.
// The State must not be modified and must not be read concurrently with
// mutating Store methods.
func (s *Store) BufferState(bufferID uint32) *buffer.State {
	if int(bufferID) >= len(s.states) {
		return nil
	}
	return &s.states[bufferID]
}

// PrimaryBuffer returns the buffer new elements of typeID are appended to.
func (s *Store) PrimaryBuffer(typeID uint32) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(typeID) >= len(s.types) {
		return 0, false
	}
	te := s.types[typeID]
	return te.primary, te.hasPrimary
}

// Close releases all buffers. Readers must be gone.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}

	s.holder.ReleaseAll()

	var errs []error
	for i := range s.states {
		s.views[i].Store(nil)
		if err := s.states[i].DropBuffer(); err != nil {
			errs = append(errs, fmt.Errorf("buffer %d: %w", i, err))
		}
	}
	for _, te := range s.types {
		te.hasPrimary = false
	}
	s.compacting.Clear()
	return errors.Join(errs...)
}
