package generation

type holdEntry struct {
	gen     Generation
	bytes   int
	release func()
}

// Holder keeps release callbacks for retired memory until no reader can
// reach it. Entries are queued untagged by Hold, tagged with a generation by
// TransferHoldLists, and run by TrimHoldLists in FIFO order.
type Holder struct {
	pending []holdEntry
	held    []holdEntry

	pendingBytes int
	heldBytes    int
}

// NewHolder returns an empty Holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Hold queues release for bytes of retired memory. release must not be nil.
func (h *Holder) Hold(bytes int, release func()) {
	h.pending = append(h.pending, holdEntry{bytes: bytes, release: release})
	h.pendingBytes += bytes
}

// TransferHoldLists tags every queued entry with gen, the generation current
// when the memory was retired.
func (h *Holder) TransferHoldLists(gen Generation) {
	if len(h.pending) == 0 {
		return
	}
	for i := range h.pending {
		h.pending[i].gen = gen
		h.held = append(h.held, h.pending[i])
	}
	h.heldBytes += h.pendingBytes
	clear(h.pending)
	h.pending = h.pending[:0]
	h.pendingBytes = 0
}

// TrimHoldLists runs the release of every tagged entry older than oldestUsed
// and returns how many were released.
func (h *Holder) TrimHoldLists(oldestUsed Generation) int {
	n := 0
	for n < len(h.held) && h.held[n].gen < oldestUsed {
		n++
	}
	h.releaseFront(n)
	return n
}

// ReleaseAll runs every release, tagged or not. Only safe without readers.
func (h *Holder) ReleaseAll() {
	h.TransferHoldLists(0)
	h.releaseFront(len(h.held))
}

func (h *Holder) releaseFront(n int) {
	for i := 0; i < n; i++ {
		e := h.held[i]
		h.heldBytes -= e.bytes
		e.release()
	}
	clear(h.held[:n])
	h.held = h.held[n:]
}

// Len returns the number of entries not yet released.
func (h *Holder) Len() int { return len(h.pending) + len(h.held) }

// HeldBytes returns the bytes of all entries not yet released.
func (h *Holder) HeldBytes() int { return h.pendingBytes + h.heldBytes }
