// Package policy defines the policies that actors act with and that the
// policy manager trains
package policy

import (
	"encoding/json"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/distlearn/experience"
)

// Capability is a set of flags that a policy declares at construction
// to say which parts of the training contract it takes part in
type Capability uint8

const (
	// Buffered policies own an experience.Memory that accepts incoming
	// records
	Buffered Capability = 1 << iota

	// Updatable policies run an update routine over their buffered
	// records. Updatable implies Buffered.
	Updatable
)

// Trainable is the capability set of a policy that buffers experience
// and updates from it
const Trainable = Buffered | Updatable

// Has returns whether c includes every flag of other
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	if c == 0 {
		return "None"
	}
	var parts []string
	if c.Has(Buffered) {
		parts = append(parts, "Buffered")
	}
	if c.Has(Updatable) {
		parts = append(parts, "Updatable")
	}
	return strings.Join(parts, "|")
}

// State is the exported, transport-ready form of a policy's parameters.
// Params is opaque to everything except the policy kind named by Kind.
type State struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Policy represents a named decision-making unit.
//
// Policies select actions in either exploration mode (training) or
// exploitation mode (evaluation) and can export and import their
// parameters as a State.
type Policy interface {
	// Name returns the identifier of the policy, stable for a whole
	// training run
	Name() string

	// Capabilities returns the declared capability set of the policy
	Capabilities() Capability

	// SelectAction selects an action to take given an observation
	SelectAction(obs mat.Vector) *mat.VecDense

	Explore()          // Set policy to exploration mode
	Exploit()          // Set policy to exploitation mode
	IsExploring() bool // Indicates if in exploration mode

	// State exports the current parameters of the policy
	State() (State, error)

	// SetState replaces the parameters of the policy
	SetState(State) error
}

// Buffer is a Policy declared as Buffered. Memory returns the memory
// that buffers its records.
type Buffer interface {
	Policy
	Memory() *experience.Memory
}

// Learner is a Policy declared as Updatable. Update consumes buffered
// records and changes the policy's parameters; an error leaves the
// update incomplete and is returned to the caller.
type Learner interface {
	Buffer
	Update() error
}

// Explorer is a Policy with an exploration schedule which advances once
// per training episode
type Explorer interface {
	Policy
	ExplorationStep()
}
