// Package environment outlines the interfaces and structs needed to
// implement concrete environments, and the wrappers that actors drive
// to roll out episodes and collect experience
package environment

import (
	"gonum.org/v1/gonum/mat"

	ts "github.com/samuelfneumann/distlearn/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when episodes end. If End returns true it has
// modified the TimeStep so that its StepType is timestep.Last and its
// EndType describes why the episode ended.
type Ender interface {
	End(*ts.TimeStep) bool
}

// Task implements the reward scheme, starting state distribution and
// episode termination of some environment
type Task interface {
	Starter
	Ender
	GetReward(state, action, nextState mat.Vector) float64
	AtGoal(state mat.Matrix) bool
	RewardSpec() Spec
}

// Environment implements a simulated environment, which includes a Task
// to complete
type Environment interface {
	Task
	Reset() ts.TimeStep // Resets between episodes

	// Step takes a single step with action and returns the next
	// TimeStep and whether the episode has ended. Illegal actions
	// return an error and leave the environment unchanged.
	Step(action *mat.VecDense) (ts.TimeStep, bool, error)

	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}
