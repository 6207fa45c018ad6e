package sample

import "time"

// Point is one entry of a display history.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Downsample reduces src to at most maxPoints elements by decimation.
// Destination-based: reuses dst if it has sufficient capacity, otherwise allocates new.
// Returns the destination slice (may be dst if reused, or a new slice if dst was too small).
func Downsample[T any](dst []T, src []T, maxPoints int) []T {
	if len(src) <= maxPoints {
		if cap(dst) >= len(src) {
			dst = dst[:len(src)]
			copy(dst, src)
			return dst
		}
		result := make([]T, len(src))
		copy(result, src)
		return result
	}

	if maxPoints <= 0 {
		return dst[:0]
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]T, 0, maxPoints)
	}

	step := float64(len(src)) / float64(maxPoints)

	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(src) {
			dst = append(dst, src[idx])
		}
	}

	return dst
}

// History is a bounded, time ordered list of points.
type History struct {
	points []Point
	max    int
}

// NewHistory creates a history keeping at most max points.
func NewHistory(max int) *History {
	return &History{max: max}
}

// Add appends a point and drops the oldest beyond the limit.
func (h *History) Add(p Point) {
	h.points = append(h.points, p)
	if over := len(h.points) - h.max; over > 0 {
		h.points = append(h.points[:0], h.points[over:]...)
	}
}

// Since returns the points newer than t.
func (h *History) Since(t time.Time) []Point {
	for i, p := range h.points {
		if p.Timestamp.After(t) {
			return h.points[i:]
		}
	}
	return nil
}

// Points returns all stored points.
func (h *History) Points() []Point {
	return h.points
}

// Len returns the number of stored points.
func (h *History) Len() int {
	return len(h.points)
}
