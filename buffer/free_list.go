package buffer

// FreeListList links the buffers of one type that have reusable slots.
//
// Members form a circular doubly-linked list through buffer ids; the head is
// the buffer that most recently gained a free slot. Buffer ids are resolved to
// States with the lookup function, so the list never holds pointers of its own.
type FreeListList struct {
	head    uint32
	hasHead bool
	len     int
	lookup  func(bufferID uint32) *State
}

// NewFreeListList creates an empty registry resolving buffer ids with lookup.
func NewFreeListList(lookup func(bufferID uint32) *State) *FreeListList {
	return &FreeListList{lookup: lookup}
}

// Head returns the buffer id at the head of the list.
func (l *FreeListList) Head() (uint32, bool) {
	return l.head, l.hasHead
}

// HeadState returns the State at the head of the list, or nil if it is empty.
func (l *FreeListList) HeadState() *State {
	if !l.hasHead {
		return nil
	}
	return l.lookup(l.head)
}

// Len returns the number of member buffers.
func (l *FreeListList) Len() int { return l.len }

// Empty reports whether no buffer has a free slot.
func (l *FreeListList) Empty() bool { return !l.hasHead }

// link inserts s in front of the head and makes it the new head.
func (l *FreeListList) link(s *State) {
	if s.linked {
		violation(ErrInvalidState, "buffer %d already on free list list", s.id)
	}
	if l.hasHead {
		next := l.lookup(l.head)
		prev := l.lookup(next.prevHasFree)
		s.nextHasFree = next.id
		s.prevHasFree = prev.id
		next.prevHasFree = s.id
		prev.nextHasFree = s.id
	} else {
		s.nextHasFree = s.id
		s.prevHasFree = s.id
	}
	s.linked = true
	l.head = s.id
	l.hasHead = true
	l.len++
}

func (l *FreeListList) unlink(s *State) {
	if !s.linked {
		violation(ErrInvalidState, "buffer %d not on free list list", s.id)
	}
	if s.nextHasFree == s.id {
		l.hasHead = false
		l.head = 0
	} else {
		if l.head == s.id {
			l.head = s.nextHasFree
		}
		next := l.lookup(s.nextHasFree)
		prev := l.lookup(s.prevHasFree)
		next.prevHasFree = s.prevHasFree
		prev.nextHasFree = s.nextHasFree
	}
	s.nextHasFree = 0
	s.prevHasFree = 0
	s.linked = false
	l.len--
}
