package buffer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/datastore/entryref"
)

const testRefSize = uint64(1) << entryref.DefaultOffsetBits

// requirePanicIs fails the test unless f panics with an error matching target.
func requirePanicIs(t *testing.T, target error, f func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic wrapping %v", target)
		}
		err, ok := r.(error)
		if !ok {
			t.Fatalf("panic value %v is not an error", r)
		}
		if !errors.Is(err, target) {
			t.Fatalf("panic %v does not wrap %v", err, target)
		}
	}()
	f()
}

// slots is a fixed buffer slot table with a registry, as an orchestrator keeps it.
type slots struct {
	states []State
	free   *FreeListList
}

func newSlots(n int) *slots {
	s := &slots{states: make([]State, n)}
	s.free = NewFreeListList(func(id uint32) *State { return &s.states[id] })
	return s
}

func (s *slots) String() string {
	return fmt.Sprintf("slots{%d, registry: %d}", len(s.states), s.free.Len())
}
