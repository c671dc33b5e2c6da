// Package rulebased implements policies whose actions are given by a
// fixed rule. Rule-based policies never buffer experience and are never
// updated.
package rulebased

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/distlearn/policy"
)

// Kind is the policy.State kind of rule-based policies
const Kind = "rulebased"

// Rule maps an observation to an action
type Rule func(obs mat.Vector) *mat.VecDense

// RuleBased is a policy.Policy which selects actions with a Rule in
// both exploration and exploitation mode
type RuleBased struct {
	name    string
	rule    Rule
	explore bool
}

// New returns a new rule-based policy
func New(name string, rule Rule) (*RuleBased, error) {
	if name == "" {
		return nil, fmt.Errorf("rulebased: policy name cannot be empty")
	}
	if rule == nil {
		return nil, fmt.Errorf("rulebased: rule cannot be nil")
	}
	return &RuleBased{name: name, rule: rule, explore: true}, nil
}

// Name returns the name of the policy
func (r *RuleBased) Name() string {
	return r.name
}

// Capabilities implements the policy.Policy interface. Rule-based
// policies declare no capabilities.
func (r *RuleBased) Capabilities() policy.Capability {
	return 0
}

// SelectAction selects an action using the policy's rule
func (r *RuleBased) SelectAction(obs mat.Vector) *mat.VecDense {
	return r.rule(obs)
}

// Explore implements the policy.Policy interface
func (r *RuleBased) Explore() {
	r.explore = true
}

// Exploit implements the policy.Policy interface
func (r *RuleBased) Exploit() {
	r.explore = false
}

// IsExploring implements the policy.Policy interface
func (r *RuleBased) IsExploring() bool {
	return r.explore
}

// State returns a parameterless State
func (r *RuleBased) State() (policy.State, error) {
	return policy.State{Kind: Kind}, nil
}

// SetState accepts only parameterless rule-based states
func (r *RuleBased) SetState(s policy.State) error {
	if s.Kind != Kind {
		return fmt.Errorf("set state %v: cannot load state of kind %q",
			r.name, s.Kind)
	}
	return nil
}

// Sign returns a Rule for discrete actions which chooses action above
// when feature index of the observation is positive and action below
// otherwise
func Sign(index int, below, above float64) Rule {
	return func(obs mat.Vector) *mat.VecDense {
		action := below
		if obs.AtVec(index) > 0 {
			action = above
		}
		return mat.NewVecDense(1, []float64{action})
	}
}
