package environment

import (
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/distlearn/experience"
)

// ErrEpisodeOver is returned when stepping a wrapper whose episode has
// not started or has already ended
var ErrEpisodeOver = errors.New("episode is not running")

// Wrapper wraps one or more environments with the agents acting in
// them. Actors drive a Wrapper through episodes:
//
//	w.Reset()
//	w.Start()
//	for w.State() != nil {
//		w.Step(actions)
//	}
//
// and periodically drain the experience generated since the last drain.
type Wrapper interface {
	// Reset resets the environment for a new episode
	Reset() error

	// Start begins the episode so that State returns the initial
	// observations
	Start()

	// State returns the current observation of each agent, or nil if
	// the episode has not started or has ended
	State() map[string]mat.Vector

	// Step steps the environment with the action of each agent
	Step(actions map[string]*mat.VecDense) error

	// StepIndex returns the number of steps taken in the episode
	StepIndex() int

	// Experiences drains the experience produced since the last call,
	// keyed by agent
	Experiences() map[string]experience.Batch

	// Summary reports on the episodes run so far
	Summary() Summary
}

// Summary is a read-only report on the episodes run by a Wrapper
type Summary struct {
	Episodes   int     // number of finished episodes
	Steps      int     // steps taken in the current or last episode
	Return     float64 // return of the current or last episode
	MeanReturn float64 // mean return over all finished episodes
}

func (s Summary) String() string {
	return fmt.Sprintf("Episodes: %v  |  Steps: %v  |  Return: %.3f  |  "+
		"Mean Return: %.3f", s.Episodes, s.Steps, s.Return, s.MeanReturn)
}

// LogValue implements slog.LogValuer
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("episodes", s.Episodes),
		slog.Int("steps", s.Steps),
		slog.Float64("return", s.Return),
		slog.Float64("mean_return", s.MeanReturn),
	)
}
