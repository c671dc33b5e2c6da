package experience

import (
	"golang.org/x/exp/rand"
)

// Selector implements functionality for choosing which buffered
// records are sampled from a Memory
type Selector interface {
	// choose selects the indices of the records to sample from a
	// memory holding size records. It is only called with size > 0.
	choose(size int) []int

	// BatchSize returns the number of elements that will be selected.
	// A batch size of 0 or less selects every record.
	BatchSize() int
}

// uniformSelector is a Selector which selects records uniformly
// randomly, with replacement
type uniformSelector struct {
	samples int
	rng     *rand.Rand
}

// NewUniformSelector returns a new Selector which selects samples
// records uniformly randomly from a Memory
func NewUniformSelector(samples int, seed uint64) Selector {
	source := rand.NewSource(seed)
	rng := rand.New(source)

	return &uniformSelector{samples: samples, rng: rng}
}

// BatchSize gets the number of samples in a batch drawn from the memory
func (u *uniformSelector) BatchSize() int {
	return u.samples
}

// choose selects a number of indices at which to draw data from the
// memory
func (u *uniformSelector) choose(size int) []int {
	n := u.samples
	if n <= 0 {
		n = size
	}

	selected := make([]int, n)
	for i := range selected {
		selected[i] = u.rng.Intn(size)
	}
	return selected
}

// fifoSelector is a Selector which selects the oldest records first
type fifoSelector struct {
	samples int
}

// NewFifoSelector returns a new Selector which draws the samples oldest
// records of a Memory, in arrival order
func NewFifoSelector(samples int) Selector {
	return &fifoSelector{samples: samples}
}

// BatchSize gets the number of samples in a batch drawn from the memory
func (f *fifoSelector) BatchSize() int {
	return f.samples
}

// choose selects a number of indices at which to draw data from the
// memory
func (f *fifoSelector) choose(size int) []int {
	n := f.samples
	if n <= 0 || n > size {
		n = size
	}

	selected := make([]int, n)
	for i := range selected {
		selected[i] = i
	}
	return selected
}
