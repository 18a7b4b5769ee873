package feed

// Ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
// Not safe for concurrent use.
type Ring[T any] struct {
	buf   []T
	head  int // oldest entry
	count int
}

// NewRing creates a ring holding at most capacity entries (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest entry at capacity.
func (r *Ring[T]) Push(v T) {
	if r.count == len(r.buf) {
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[(r.head+r.count)%len(r.buf)] = v
	r.count++
}

// All returns every entry, oldest first.
func (r *Ring[T]) All() []T {
	return r.Last(0)
}

// Last returns the n newest entries in arrival order.
// n <= 0 or n >= Len() returns everything.
func (r *Ring[T]) Last(n int) []T {
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]T, n)
	start := r.head + r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Clear drops every entry and releases references for GC.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.count = 0
}

func (r *Ring[T]) Len() int { return r.count }

func (r *Ring[T]) Cap() int { return len(r.buf) }
