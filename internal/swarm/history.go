package swarm

// History is a fixed-capacity ring buffer. Pushing past capacity evicts the
// oldest entry; the bound is an invariant, not a hint.
type History[T any] struct {
	buf  []T
	head int // index of oldest entry
	size int
}

// NewHistory creates a ring buffer holding at most capacity entries.
func NewHistory[T any](capacity int) *History[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &History[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest entry when full.
func (h *History[T]) Push(v T) {
	if h.size < len(h.buf) {
		h.buf[(h.head+h.size)%len(h.buf)] = v
		h.size++
		return
	}
	h.buf[h.head] = v
	h.head = (h.head + 1) % len(h.buf)
}

// Len returns the number of stored entries.
func (h *History[T]) Len() int { return h.size }

// Cap returns the fixed capacity.
func (h *History[T]) Cap() int { return len(h.buf) }

// Items returns a copy of the entries, oldest first.
func (h *History[T]) Items() []T {
	out := make([]T, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}

// Last returns a copy of the most recent n entries, oldest first.
func (h *History[T]) Last(n int) []T {
	if n >= h.size {
		return h.Items()
	}
	out := make([]T, n)
	start := h.size - n
	for i := 0; i < n; i++ {
		out[i] = h.buf[(h.head+start+i)%len(h.buf)]
	}
	return out
}

// Clear drops all entries, keeping capacity.
func (h *History[T]) Clear() {
	h.head = 0
	h.size = 0
}
