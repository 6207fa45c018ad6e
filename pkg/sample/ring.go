package sample

// Number is the set of element types a Ring can average.
type Number interface {
	~float32 | ~float64 | ~int | ~int32 | ~int64 | ~uint16 | ~uint32
}

// Ring is a fixed capacity circular buffer. Push advances head before
// writing, so head always indexes the newest element.
type Ring[T Number] struct {
	buf  []T
	head int
	n    int
}

// NewRing allocates a ring of the given capacity.
func NewRing[T Number](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, overwriting the oldest element when full.
func (r *Ring[T]) Push(v T) {
	r.head++
	if r.head >= len(r.buf) {
		r.head -= len(r.buf)
	}
	r.buf[r.head] = v
	if r.n < len(r.buf) {
		r.n++
	}
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	return r.n
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// At returns the i-th most recent element, 0 being the newest.
func (r *Ring[T]) At(i int) T {
	idx := r.head - i
	if idx < 0 {
		idx += len(r.buf)
	}
	return r.buf[idx]
}

// Last returns the newest element and whether the ring is non-empty.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.n == 0 {
		return zero, false
	}
	return r.buf[r.head], true
}

// WindowedMean returns the mean of the min(window, Len) newest elements
// and the number of elements used. An empty window yields (0, 0).
func (r *Ring[T]) WindowedMean(window int) (float64, int) {
	count := window
	if r.n < count {
		count = r.n
	}
	if count <= 0 {
		return 0, 0
	}

	var sum float64
	for i := 0; i < count; i++ {
		sum += float64(r.At(i))
	}
	return sum / float64(count), count
}

// Clear empties the ring.
func (r *Ring[T]) Clear() {
	r.head = 0
	r.n = 0
	clear(r.buf)
}
