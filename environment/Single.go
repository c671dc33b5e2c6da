package environment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/distlearn/experience"
	ts "github.com/samuelfneumann/distlearn/timestep"
	"github.com/samuelfneumann/distlearn/tracker"
)

// Single is a Wrapper around an Environment with a single agent. Every
// step produces one transition for the agent.
type Single struct {
	env     Environment
	agentID string

	returns *tracker.Return
	lengths *tracker.EpisodeLength

	last    ts.TimeStep
	started bool
	done    bool
	steps   int
	pending []ts.Transition
}

// NewSingle returns a new Single wrapper in which agentID acts in env
func NewSingle(env Environment, agentID string) *Single {
	return &Single{
		env:     env,
		agentID: agentID,
		returns: tracker.NewReturn(),
		lengths: tracker.NewEpisodeLength(),
		done:    true,
	}
}

// Reset implements the Wrapper interface. Experience not yet drained
// from the previous episode is discarded.
func (s *Single) Reset() error {
	s.last = s.env.Reset()
	s.started = false
	s.done = s.last.Last()
	s.steps = 0
	s.pending = nil

	if err := s.returns.Track(s.last); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Start implements the Wrapper interface
func (s *Single) Start() {
	s.started = true
}

// State implements the Wrapper interface
func (s *Single) State() map[string]mat.Vector {
	if !s.started || s.done {
		return nil
	}
	return map[string]mat.Vector{s.agentID: s.last.Observation}
}

// Step implements the Wrapper interface
func (s *Single) Step(actions map[string]*mat.VecDense) error {
	if !s.started || s.done {
		return fmt.Errorf("step: %w", ErrEpisodeOver)
	}
	action, ok := actions[s.agentID]
	if !ok || action == nil {
		return fmt.Errorf("step: no action for agent %q", s.agentID)
	}

	next, done, err := s.env.Step(action)
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}
	if err := s.returns.Track(next); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	if err := s.lengths.Track(next); err != nil {
		return fmt.Errorf("step: %w", err)
	}

	s.pending = append(s.pending, ts.NewTransition(s.last, action, next))
	s.last = next
	s.done = done
	s.steps++
	return nil
}

// StepIndex implements the Wrapper interface
func (s *Single) StepIndex() int {
	return s.steps
}

// Experiences implements the Wrapper interface
func (s *Single) Experiences() map[string]experience.Batch {
	out := make(map[string]experience.Batch, 1)
	if len(s.pending) > 0 {
		out[s.agentID] = experience.NewBatch("", s.pending...)
	}
	s.pending = nil
	return out
}

// Returns returns the return of every finished episode
func (s *Single) Returns() []float64 {
	return s.returns.Returns()
}

// Summary implements the Wrapper interface
func (s *Single) Summary() Summary {
	returns := s.returns.Returns()
	summary := Summary{Episodes: len(returns), Steps: s.steps}

	if s.done && len(returns) > 0 {
		summary.Return = returns[len(returns)-1]
	} else {
		summary.Return = s.returns.Current()
	}
	if len(returns) > 0 {
		summary.MeanReturn = stat.Mean(returns, nil)
	}
	return summary
}
