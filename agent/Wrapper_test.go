package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/distlearn/experience"
	"github.com/samuelfneumann/distlearn/policy"
	"github.com/samuelfneumann/distlearn/policy/linear"
	"github.com/samuelfneumann/distlearn/policy/rulebased"
	"github.com/samuelfneumann/distlearn/timestep"
)

func newWrapper(t *testing.T) (*Wrapper, *linear.QLearning) {
	t.Helper()

	q, err := linear.New(linear.Config{
		Name:         "P",
		Features:     1,
		Actions:      2,
		Epsilon:      0.5,
		EpsilonDecay: 0.5,
		LearningRate: 0.1,
	})
	require.NoError(t, err)
	r, err := rulebased.New("R", rulebased.Sign(0, 0, 1))
	require.NoError(t, err)

	w, err := New([]policy.Policy{q, r},
		map[string]string{"a0": "P", "a1": "P", "a2": "R"})
	require.NoError(t, err)
	return w, q
}

func transitions(n int) []timestep.Transition {
	out := make([]timestep.Transition, n)
	for i := range out {
		out[i] = timestep.Transition{
			State:     mat.NewVecDense(1, []float64{1}),
			Action:    mat.NewVecDense(1, []float64{0}),
			NextState: mat.NewVecDense(1, []float64{1}),
		}
	}
	return out
}

func TestNewValidatesMapping(t *testing.T) {
	r, err := rulebased.New("R", rulebased.Sign(0, 0, 1))
	require.NoError(t, err)

	_, err = New([]policy.Policy{r}, map[string]string{"a": "missing"})
	assert.Error(t, err)
	_, err = New([]policy.Policy{r, r}, nil)
	assert.Error(t, err)
}

func TestStoreAndDrainExperiences(t *testing.T) {
	w, q := newWrapper(t)

	names, err := w.StoreExperiences(map[string]experience.Batch{
		"a0": experience.NewBatch("", transitions(2)...),
		"a1": experience.NewBatch("", transitions(3)...),
		"a2": experience.NewBatch("", transitions(4)...),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"P"}, names, "rule-based policies do not buffer")
	assert.Equal(t, 5, q.Memory().Size())

	byPolicy := w.ExperiencesByPolicy(names)
	require.Contains(t, byPolicy, "P")
	assert.Equal(t, 5, byPolicy["P"].Size())
	assert.Equal(t, "P", byPolicy["P"].Policy)
	assert.Zero(t, q.Memory().Size())
	assert.Empty(t, w.ExperiencesByPolicy(names))

	_, err = w.StoreExperiences(map[string]experience.Batch{
		"a0":     experience.NewBatch("", transitions(1)...),
		"nobody": experience.NewBatch("", transitions(1)...),
	})
	assert.Error(t, err)
	assert.Zero(t, q.Memory().Size())
}

func TestStoreExperiencesGroupsSharedPolicies(t *testing.T) {
	w, q := newWrapper(t)

	first := transitions(2)
	first[0].Reward, first[1].Reward = 1, 2
	second := transitions(1)
	second[0].Reward = 3

	_, err := w.StoreExperiences(map[string]experience.Batch{
		"a1": experience.NewBatch("", second...),
		"a0": experience.NewBatch("", first...),
	})
	require.NoError(t, err)

	put, _ := q.Memory().Totals()
	assert.Equal(t, 3, put)
	drained := q.Memory().Drain()
	require.Equal(t, 3, drained.Size())
	for i, want := range []float64{1, 2, 3} {
		assert.Equal(t, want, drained.Transitions[i].Reward)
	}
}

func TestModesAndActions(t *testing.T) {
	w, q := newWrapper(t)

	w.Exploit()
	assert.False(t, q.IsExploring())
	actions := w.ChooseAction(map[string]mat.Vector{
		"a0":      mat.NewVecDense(1, []float64{1}),
		"a2":      mat.NewVecDense(1, []float64{1}),
		"unknown": mat.NewVecDense(1, []float64{1}),
	})
	assert.Len(t, actions, 2)
	assert.Equal(t, 1.0, actions["a2"].AtVec(0))

	w.Explore()
	assert.True(t, q.IsExploring())

	w.ExplorationStep()
	assert.InDelta(t, 0.25, q.Epsilon(), 1e-12)
}

func TestSetPolicyStates(t *testing.T) {
	w, q := newWrapper(t)

	params, err := json.Marshal(map[string]any{
		"rows": 2, "cols": 1, "weights": []float64{3, 4},
	})
	require.NoError(t, err)

	require.NoError(t, w.SetPolicyStates(map[string]policy.State{
		"P": {Kind: linear.Kind, Params: params},
		"R": {Kind: rulebased.Kind},
	}))
	assert.Equal(t, 4.0, q.ActionValues(mat.NewVecDense(1, []float64{1})).AtVec(1))

	assert.Error(t, w.SetPolicyStates(map[string]policy.State{
		"missing": {Kind: rulebased.Kind},
	}))
	assert.Error(t, w.SetPolicyStates(map[string]policy.State{
		"R": {Kind: linear.Kind},
	}))
}
