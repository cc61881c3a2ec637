package dataset

// Ring is a fixed-capacity FIFO buffer; pushing onto a full ring overwrites the oldest item.
type Ring[T any] struct {
	buf    []T
	start  int
	length int
}

// NewRing allocates a ring holding at most capacity items (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest item when the ring is full.
func (r *Ring[T]) Push(v T) {
	if r.length < len(r.buf) {
		r.buf[(r.start+r.length)%len(r.buf)] = v
		r.length++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Get returns the item at index, 0 being the oldest.
func (r *Ring[T]) Get(index int) (T, bool) {
	var zero T
	if index < 0 || index >= r.length {
		return zero, false
	}
	return r.buf[(r.start+index)%len(r.buf)], true
}

// Last returns the newest item.
func (r *Ring[T]) Last() (T, bool) { return r.Get(r.length - 1) }

// Len is the number of stored items.
func (r *Ring[T]) Len() int { return r.length }

// Cap is the maximum number of stored items.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Slice copies the items out oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.length)
	for i := 0; i < r.length; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Reset drops every item while keeping the allocation.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start = 0
	r.length = 0
}
