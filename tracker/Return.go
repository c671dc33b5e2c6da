package tracker

import (
	"fmt"

	ts "github.com/samuelfneumann/distlearn/timestep"
)

// Return tracks the episodic return of an environment. When an
// environment returns a TimeStep, this Tracker extracts the reward and
// accumulates the return for the current episode.
//
// Note: An episode must finish for this Tracker to save its return.
type Return struct {
	lastTimeStep   int
	currentReturn  float64
	episodeReturns []float64
}

// NewReturn creates and returns a new *Return Tracker
func NewReturn() *Return {
	return &Return{lastTimeStep: -1}
}

// Track tracks the reward seen on a timestep. A TimeStep numbered 0
// starts a new episode, discarding any unfinished one. Track returns an
// error if it is called for non-sequential timesteps.
func (r *Return) Track(step ts.TimeStep) error {
	if step.Number == 0 {
		r.currentReturn = 0
		r.lastTimeStep = -1
	}
	if r.lastTimeStep+1 != step.Number {
		return fmt.Errorf("track: last two timesteps tracked are not "+
			"sequential: timestep %v --> timestep %v", r.lastTimeStep,
			step.Number)
	}

	r.currentReturn += step.Reward
	r.lastTimeStep = step.Number

	// Episode has ended, save the return and begin tracking the
	// return for a new episode
	if step.Last() {
		r.episodeReturns = append(r.episodeReturns, r.currentReturn)
		r.currentReturn = 0.0
		r.lastTimeStep = -1
	}
	return nil
}

// Current returns the return accumulated so far in the current episode
func (r *Return) Current() float64 {
	return r.currentReturn
}

// Returns returns a copy of the returns of every finished episode
func (r *Return) Returns() []float64 {
	out := make([]float64, len(r.episodeReturns))
	copy(out, r.episodeReturns)
	return out
}

// Last returns the return of the most recently finished episode and
// whether any episode has finished
func (r *Return) Last() (float64, bool) {
	if len(r.episodeReturns) == 0 {
		return 0, false
	}
	return r.episodeReturns[len(r.episodeReturns)-1], true
}

// Save saves the returns of every finished episode to filename
func (r *Return) Save(filename string) error {
	return save(filename, r.episodeReturns)
}
