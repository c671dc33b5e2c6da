// Package experience implements batches of interaction records and the
// per-policy memories that buffer them until a policy update consumes
// them
package experience

import (
	"errors"
	"fmt"

	"github.com/samuelfneumann/distlearn/timestep"
)

// ErrPolicyMismatch is returned when batches owned by different
// policies are combined
var ErrPolicyMismatch = errors.New("batches belong to different policies")

// Batch is an ordered sequence of transitions owned by exactly one
// policy. A Batch is never mutated after it is built: Merge and Append
// return new batches.
type Batch struct {
	Policy      string                `json:"policy"`
	Transitions []timestep.Transition `json:"transitions"`
}

// NewBatch returns a new Batch owned by policy. The transitions are
// copied so that later changes to the argument slice are not seen by
// the Batch.
func NewBatch(policy string, transitions ...timestep.Transition) Batch {
	copied := make([]timestep.Transition, len(transitions))
	copy(copied, transitions)
	return Batch{Policy: policy, Transitions: copied}
}

// Size returns the number of records in the batch
func (b Batch) Size() int {
	return len(b.Transitions)
}

// Empty returns whether the batch holds no records
func (b Batch) Empty() bool {
	return len(b.Transitions) == 0
}

// Append returns a new Batch holding the records of b followed by
// transitions
func (b Batch) Append(transitions ...timestep.Transition) Batch {
	joined := make([]timestep.Transition, 0, len(b.Transitions)+
		len(transitions))
	joined = append(joined, b.Transitions...)
	joined = append(joined, transitions...)
	return Batch{Policy: b.Policy, Transitions: joined}
}

// Merge concatenates batches owned by the same policy, preserving
// order. Batches for other policies are rejected so that records are
// never attributed to the wrong owner.
func Merge(batches ...Batch) (Batch, error) {
	if len(batches) == 0 {
		return Batch{}, nil
	}

	owner := batches[0].Policy
	size := 0
	for _, b := range batches {
		if b.Policy != owner {
			return Batch{}, fmt.Errorf("merge: %w: %q and %q",
				ErrPolicyMismatch, owner, b.Policy)
		}
		size += b.Size()
	}

	joined := make([]timestep.Transition, 0, size)
	for _, b := range batches {
		joined = append(joined, b.Transitions...)
	}
	return Batch{Policy: owner, Transitions: joined}, nil
}

// TotalSize returns the number of records held by all batches in
// byPolicy
func TotalSize(byPolicy map[string]Batch) int {
	total := 0
	for _, b := range byPolicy {
		total += b.Size()
	}
	return total
}
