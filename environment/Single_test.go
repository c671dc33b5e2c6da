package environment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	ts "github.com/samuelfneumann/distlearn/timestep"
)

// counter is an Environment whose episodes last a fixed number of steps
// and reward each step with the action taken
type counter struct {
	StepLimit
	last ts.TimeStep
}

func (c *counter) Start() *mat.VecDense { return mat.NewVecDense(1, nil) }

func (c *counter) GetReward(_, action, _ mat.Vector) float64 {
	return action.AtVec(0)
}

func (c *counter) AtGoal(mat.Matrix) bool { return false }
func (c *counter) RewardSpec() Spec       { return Spec{} }
func (c *counter) DiscountSpec() Spec     { return Spec{} }
func (c *counter) ObservationSpec() Spec  { return Spec{} }
func (c *counter) ActionSpec() Spec       { return Spec{} }

func (c *counter) Reset() ts.TimeStep {
	c.last = ts.New(ts.First, 0, 1, c.Start(), 0)
	return c.last
}

func (c *counter) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a.AtVec(0) < 0 {
		return ts.TimeStep{}, false, errors.New("negative action")
	}
	obs := mat.NewVecDense(1, []float64{float64(c.last.Number + 1)})
	next := ts.New(ts.Mid, c.GetReward(nil, a, nil), 1, obs, c.last.Number+1)
	c.End(&next)
	c.last = next
	return next, next.Last(), nil
}

func act(v float64) map[string]*mat.VecDense {
	return map[string]*mat.VecDense{"a": mat.NewVecDense(1, []float64{v})}
}

func TestSingleRunsEpisodes(t *testing.T) {
	s := NewSingle(&counter{StepLimit: NewStepLimit(3)}, "a")
	assert.Nil(t, s.State())
	assert.ErrorIs(t, s.Step(act(1)), ErrEpisodeOver)

	require.NoError(t, s.Reset())
	assert.Nil(t, s.State(), "no state before Start")
	s.Start()

	require.NoError(t, s.Step(act(1)))
	require.NoError(t, s.Step(act(2)))
	assert.Equal(t, 2, s.StepIndex())

	exp := s.Experiences()
	require.Contains(t, exp, "a")
	assert.Equal(t, 2, exp["a"].Size())
	assert.Empty(t, s.Experiences(), "experiences are drained")

	require.NotNil(t, s.State())
	require.NoError(t, s.Step(act(3)))
	assert.Nil(t, s.State())
	assert.ErrorIs(t, s.Step(act(1)), ErrEpisodeOver)

	last := s.Experiences()["a"]
	require.Equal(t, 1, last.Size())
	assert.Equal(t, 1.0, last.Transitions[0].Discount,
		"step limits are not terminal")

	summary := s.Summary()
	assert.Equal(t, 1, summary.Episodes)
	assert.Equal(t, 3, summary.Steps)
	assert.Equal(t, 6.0, summary.Return)
	assert.Equal(t, []float64{6}, s.Returns())
}

func TestSingleStepErrors(t *testing.T) {
	s := NewSingle(&counter{StepLimit: NewStepLimit(3)}, "a")
	require.NoError(t, s.Reset())
	s.Start()

	assert.Error(t, s.Step(map[string]*mat.VecDense{}))
	assert.Error(t, s.Step(act(-1)))
	assert.Zero(t, s.StepIndex())
}
