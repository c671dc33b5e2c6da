// Package manager implements policy managers, which own the trainable
// policies of a training run, absorb incoming experience, decide per
// policy when to update and expose only the policies that changed.
package manager

import (
	"context"
	"errors"

	"github.com/samuelfneumann/distlearn/experience"
	"github.com/samuelfneumann/distlearn/policy"
)

var (
	// ErrInvalidConfig is wrapped by every construction error
	ErrInvalidConfig = errors.New("invalid policy manager configuration")

	// ErrUnknownPolicy is wrapped when experience or a query names a
	// policy that is not under management
	ErrUnknownPolicy = errors.New("unknown policy")
)

// Manager owns a fixed set of policies.
//
// Local holds the policies in-process and updates them synchronously
// inside Submit. Remote forwards every call to a Host over messaging.
// Both satisfy the same contract.
type Manager interface {
	// Names returns the sorted names of the policies under management.
	// The set is fixed at construction.
	Names() []string

	// Submit buffers the experience of each policy and updates every
	// policy whose trigger is satisfied. Every record for a known,
	// buffering policy is retained before Submit returns. A batch for an
	// unknown policy fails the call before anything is buffered.
	Submit(ctx context.Context, byPolicy map[string]experience.Batch) error

	// State returns the exported state of every policy updated since the
	// previous call to State, and forgets them
	State(ctx context.Context) (map[string]policy.State, error)

	// Snapshot returns the exported state of every policy without
	// affecting State
	Snapshot(ctx context.Context) (map[string]policy.State, error)
}
