// Package memory keeps short rolling histories of episode statistics.
package memory

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Window is a bounded FIFO of values. Once full, pushing drops the oldest.
type Window struct {
	values   []float64
	capacity int
	mu       sync.RWMutex
}

func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		values:   make([]float64, 0, capacity),
		capacity: capacity,
	}
}

// Values returns a copy of the values in insertion order.
func (w *Window) Values() []float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	values := make([]float64, len(w.values))
	copy(values, w.values)
	return values
}

func (w *Window) Push(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.values = append(w.values, v)
	if len(w.values) > w.capacity {
		w.values = w.values[1:]
	}
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.values)
}

func (w *Window) Capacity() int {
	return w.capacity
}

// Mean returns the mean of the window, or 0 when it is empty.
func (w *Window) Mean() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.values) == 0 {
		return 0
	}
	return stat.Mean(w.values, nil)
}
