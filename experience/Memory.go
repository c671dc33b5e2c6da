package experience

import (
	"fmt"
	"sync"

	"github.com/samuelfneumann/distlearn/timestep"
)

// Memory buffers the records delivered to a single policy. Records are
// kept in arrival order and are only removed when the owning policy
// calls Retain after consuming them in an update.
//
// A Memory is safe for concurrent use.
type Memory struct {
	mu          sync.Mutex
	owner       string
	records     []timestep.Transition
	minSize     int
	totalPut    int
	totalRemove int
}

// NewMemory returns an empty Memory for the policy named owner.
// Sampling is refused until the memory holds at least minSize records.
func NewMemory(owner string, minSize int) (*Memory, error) {
	if minSize < 0 {
		return nil, fmt.Errorf("new memory: minSize must be >= 0")
	}
	return &Memory{owner: owner, minSize: minSize}, nil
}

// Owner returns the name of the policy the Memory buffers records for
func (m *Memory) Owner() string {
	return m.owner
}

// Put appends all records of b to the memory. Batches owned by a
// different policy are rejected.
func (m *Memory) Put(b Batch) error {
	if b.Policy != "" && b.Policy != m.owner {
		return &MemoryError{
			Op:  "put",
			Err: fmt.Errorf("%w: memory %q, batch %q", ErrPolicyMismatch, m.owner, b.Policy),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, b.Transitions...)
	m.totalPut += b.Size()
	return nil
}

// Size returns the number of records currently buffered
func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.records)
}

// MinSize returns the number of records required before sampling is
// allowed
func (m *Memory) MinSize() int {
	return m.minSize
}

// Totals returns the number of records ever put into and removed from
// the memory
func (m *Memory) Totals() (put, removed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.totalPut, m.totalRemove
}

// All returns a copy of every buffered record in arrival order
func (m *Memory) All() []timestep.Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]timestep.Transition, len(m.records))
	copy(out, m.records)
	return out
}

// Sample returns the records chosen by the Selector s. Sampling does not
// remove records.
func (m *Memory) Sample(s Selector) ([]timestep.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.records) == 0 {
		return nil, &MemoryError{Op: "sample", Err: errEmptyMemory}
	}
	if len(m.records) < m.minSize {
		return nil, &MemoryError{Op: "sample", Err: errInsufficientSamples}
	}

	indices := s.choose(len(m.records))
	batch := make([]timestep.Transition, len(indices))
	for i, index := range indices {
		batch[i] = m.records[index]
	}
	return batch, nil
}

// Retain keeps only the newest n records, discarding the oldest ones,
// and returns the number of records removed. Retain(0) empties the
// memory. Only the owning policy's update routine should call Retain,
// after it has consumed the records.
func (m *Memory) Retain(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if len(m.records) <= n {
		return 0
	}

	removed := len(m.records) - n
	kept := make([]timestep.Transition, n)
	copy(kept, m.records[removed:])
	m.records = kept
	m.totalRemove += removed
	return removed
}

// Drain removes and returns every buffered record as a Batch owned by
// the memory's policy. Actors drain their local memories to ship
// records to the policy manager.
func (m *Memory) Drain() Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := Batch{Policy: m.owner, Transitions: m.records}
	m.totalRemove += len(m.records)
	m.records = nil
	return b
}

func (m *Memory) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return fmt.Sprintf("Memory | Owner: %v  |  Size: %v  |  Put: %v  |  "+
		"Removed: %v", m.owner, len(m.records), m.totalPut, m.totalRemove)
}
