package buffer

import (
	"reflect"
	"unsafe"
)

// Elements implements ElementOps for a pointer-free element type T.
type Elements[T any] struct {
	empty T
	typ   reflect.Type
}

// NewElements creates the element operations for T with the given empty entry.
// T must be pointer-free and non-zero-sized; otherwise NewElements panics with
// ErrInvalidTypeConfig.
func NewElements[T any](empty T) *Elements[T] {
	typ := reflect.TypeFor[T]()
	if typ.Size() == 0 {
		violation(ErrInvalidTypeConfig, "element type %s has zero size", typ)
	}
	if !pointerFree(typ) {
		violation(ErrInvalidTypeConfig, "element type %s contains pointers", typ)
	}
	return &Elements[T]{empty: empty, typ: typ}
}

// EmptyEntry returns the prototype value of reserved and scrubbed elements.
func (e *Elements[T]) EmptyEntry() T { return e.empty }

// ElementType implements ElementOps.
func (e *Elements[T]) ElementType() reflect.Type { return e.typ }

// ElementSize implements ElementOps.
func (e *Elements[T]) ElementSize() int { return int(e.typ.Size()) }

// DestroyElements implements ElementOps. Pointer-free elements have no
// destructor; the memory is zeroed so no stale payload survives.
func (e *Elements[T]) DestroyElements(buf []byte, numElems int) {
	clear(Elems[T](buf)[:numElems])
}

// FallbackCopy implements ElementOps.
func (e *Elements[T]) FallbackCopy(dst, src []byte, numElems int) {
	copy(Elems[T](dst)[:numElems], Elems[T](src)[:numElems])
}

// InitializeReservedElements implements ElementOps.
func (e *Elements[T]) InitializeReservedElements(buf []byte, reservedElems int) {
	fill(Elems[T](buf)[:reservedElems], e.empty)
}

// CleanHold implements ElementOps.
func (e *Elements[T]) CleanHold(buf []byte, offset, length int) {
	fill(Elems[T](buf)[offset:offset+length], e.empty)
}

// BufferType is the TypeHandler for buffers of T.
type BufferType[T any] struct {
	*TypeBase
	elems *Elements[T]
}

// NewBufferType creates a BufferType for T. The empty entry defaults to the
// zero value of T; see WithEmptyEntry.
func NewBufferType[T any](clusterSize, minClusters, maxClusters int, opts ...TypeOption) *BufferType[T] {
	o := typeOptions{
		reserved: defaultReservedElements,
		sizing:   Doubling(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	var empty T
	if o.emptyEntry != nil {
		v, ok := o.emptyEntry.(T)
		if !ok {
			violation(ErrInvalidTypeConfig, "empty entry of type %T for element type %s",
				o.emptyEntry, reflect.TypeFor[T]())
		}
		empty = v
	}

	elems := NewElements(empty)
	return &BufferType[T]{
		TypeBase: newTypeBase(elems, clusterSize, minClusters, maxClusters, o),
		elems:    elems,
	}
}

// EmptyEntry returns the prototype value of reserved and scrubbed elements.
func (b *BufferType[T]) EmptyEntry() T { return b.elems.EmptyEntry() }

// Elems reinterprets buf as a slice of T. Trailing bytes that do not form a
// whole element are ignored. buf must come from an allocation aligned for T.
func Elems[T any](buf []byte) []T {
	size := int(unsafe.Sizeof(*new(T)))
	if size == 0 {
		return nil
	}
	n := len(buf) / size
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(buf))), n) //nolint:gosec // unsafe is required for typed buffer views
}

func fill[T any](s []T, v T) {
	for i := range s {
		s[i] = v
	}
}

// pointerFree reports whether values of typ hold no Go pointers, so they may
// live in memory the garbage collector does not scan.
func pointerFree(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return typ.Len() == 0 || pointerFree(typ.Elem())
	case reflect.Struct:
		for i := 0; i < typ.NumField(); i++ {
			if !pointerFree(typ.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
