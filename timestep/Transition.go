package timestep

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Transition is a single interaction record: taking Action in State
// produced Reward and led to NextState. Discount is the discount of the
// next step, so a terminal transition has a Discount of 0.
//
// Aux holds auxiliary per-record values (log-probabilities, value
// estimates, ...) which are carried along but not interpreted here.
type Transition struct {
	State     *mat.VecDense
	Action    *mat.VecDense
	Reward    float64
	Discount  float64
	NextState *mat.VecDense
	Aux       map[string]float64
}

// NewTransition builds the transition generated by taking action in
// step and arriving at next
func NewTransition(step TimeStep, action *mat.VecDense,
	next TimeStep) Transition {
	discount := next.Discount
	if next.Last() && next.EndType() == TerminalStateReached {
		discount = 0.0
	}

	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    next.Reward,
		Discount:  discount,
		NextState: next.Observation,
	}
}

// transitionJSON is the wire form of a Transition, with vectors laid
// out as plain float slices
type transitionJSON struct {
	State     []float64          `json:"state"`
	Action    []float64          `json:"action"`
	Reward    float64            `json:"reward"`
	Discount  float64            `json:"discount"`
	NextState []float64          `json:"next_state"`
	Aux       map[string]float64 `json:"aux,omitempty"`
}

// MarshalJSON satisfies the json.Marshaler interface
func (t Transition) MarshalJSON() ([]byte, error) {
	return json.Marshal(transitionJSON{
		State:     vecData(t.State),
		Action:    vecData(t.Action),
		Reward:    t.Reward,
		Discount:  t.Discount,
		NextState: vecData(t.NextState),
		Aux:       t.Aux,
	})
}

// UnmarshalJSON satisfies the json.Unmarshaler interface
func (t *Transition) UnmarshalJSON(data []byte) error {
	var wire transitionJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("unmarshal transition: %w", err)
	}

	t.State = newVec(wire.State)
	t.Action = newVec(wire.Action)
	t.Reward = wire.Reward
	t.Discount = wire.Discount
	t.NextState = newVec(wire.NextState)
	t.Aux = wire.Aux
	return nil
}

// vecData copies the elements of v into a new slice. A nil vector
// yields a nil slice.
func vecData(v *mat.VecDense) []float64 {
	if v == nil || v.IsEmpty() {
		return nil
	}
	return mat.Col(nil, 0, v)
}

// newVec wraps data in a vector, returning nil for empty data since
// gonum does not allow zero-length vectors
func newVec(data []float64) *mat.VecDense {
	if len(data) == 0 {
		return nil
	}
	return mat.NewVecDense(len(data), data)
}
