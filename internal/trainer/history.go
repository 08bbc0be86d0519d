package trainer

import "math"

// Window is a fixed-capacity ring of recent per-episode values. Once full,
// new appends overwrite the oldest entry, so aggregates always describe the
// most recent capacity episodes.
type Window struct {
	values []float64
	head   int
	size   int
}

// NewWindow creates a window holding up to capacity values. A non-positive
// capacity falls back to 1.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{values: make([]float64, capacity)}
}

// Append records a value, evicting the oldest when full.
func (w *Window) Append(v float64) {
	w.values[w.head] = v
	w.head = (w.head + 1) % len(w.values)
	if w.size < len(w.values) {
		w.size++
	}
}

// Len returns the number of stored values.
func (w *Window) Len() int { return w.size }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.values) }

// Values returns the stored values oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, 0, w.size)
	start := 0
	if w.size == len(w.values) {
		start = w.head
	}
	for i := 0; i < w.size; i++ {
		out = append(out, w.values[(start+i)%len(w.values)])
	}
	return out
}

// Mean returns the average of stored values, 0 when empty.
func (w *Window) Mean() float64 {
	if w.size == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.size; i++ {
		sum += w.values[i]
	}
	return sum / float64(w.size)
}

// Variance returns the population variance of stored values, 0 when empty.
func (w *Window) Variance() float64 {
	if w.size == 0 {
		return 0
	}
	mean := w.Mean()
	var sumSq float64
	for i := 0; i < w.size; i++ {
		d := w.values[i] - mean
		sumSq += d * d
	}
	return sumSq / float64(w.size)
}

// StdDev returns the population standard deviation of stored values.
func (w *Window) StdDev() float64 {
	return math.Sqrt(w.Variance())
}

// Reset discards all stored values.
func (w *Window) Reset() {
	w.head = 0
	w.size = 0
}
