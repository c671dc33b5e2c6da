package linear

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/distlearn/experience"
	"github.com/samuelfneumann/distlearn/policy"
	"github.com/samuelfneumann/distlearn/timestep"
)

func testConfig() Config {
	return Config{
		Name:         "P",
		Features:     2,
		Actions:      2,
		Epsilon:      0.5,
		EpsilonDecay: 0.5,
		MinEpsilon:   0.1,
		LearningRate: 0.5,
		Seed:         7,
	}
}

func rewarded(action float64, reward float64) timestep.Transition {
	return timestep.Transition{
		State:     mat.NewVecDense(2, []float64{1, 0}),
		Action:    mat.NewVecDense(1, []float64{action}),
		Reward:    reward,
		Discount:  0,
		NextState: mat.NewVecDense(2, []float64{0, 1}),
	}
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"no name":       func(c *Config) { c.Name = "" },
		"no features":   func(c *Config) { c.Features = 0 },
		"no actions":    func(c *Config) { c.Actions = 0 },
		"epsilon > 1":   func(c *Config) { c.Epsilon = 2 },
		"zero lr":       func(c *Config) { c.LearningRate = 0 },
		"no batch size": func(c *Config) { c.Updates = 3 },
		"neg capacity":  func(c *Config) { c.Capacity = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := testConfig()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
	assert.NoError(t, testConfig().Validate())
}

func TestUpdateLearnsAndDrainsMemory(t *testing.T) {
	q, err := New(testConfig())
	require.NoError(t, err)
	assert.Equal(t, policy.Trainable, q.Capabilities())

	batch := experience.NewBatch("P", rewarded(1, 1), rewarded(1, 1),
		rewarded(0, -1))
	require.NoError(t, q.Memory().Put(batch))
	require.NoError(t, q.Update())

	assert.Zero(t, q.Memory().Size())
	assert.Equal(t, 1, q.Updates())

	q.Exploit()
	action := q.SelectAction(mat.NewVecDense(2, []float64{1, 0}))
	assert.Equal(t, 1.0, action.AtVec(0))
}

func TestUpdateRetainsCapacity(t *testing.T) {
	c := testConfig()
	c.Capacity = 2
	c.Updates = 2
	c.BatchSize = 4
	q, err := New(c)
	require.NoError(t, err)

	require.NoError(t, q.Memory().Put(experience.NewBatch("P",
		rewarded(1, 1), rewarded(1, 1), rewarded(1, 1))))
	require.NoError(t, q.Update())
	assert.Equal(t, 2, q.Memory().Size())
}

func TestUpdateOnEmptyMemoryIsNoop(t *testing.T) {
	q, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, q.Update())
	assert.Zero(t, q.Updates())
}

func TestUpdateRejectsMalformedTransitionWithoutChangingWeights(t *testing.T) {
	q, err := New(testConfig())
	require.NoError(t, err)
	before, err := q.State()
	require.NoError(t, err)

	bad := rewarded(1, 1)
	bad.State = mat.NewVecDense(3, nil)
	require.NoError(t, q.Memory().Put(experience.NewBatch("P",
		rewarded(1, 1), bad)))

	assert.Error(t, q.Update())
	after, err := q.State()
	require.NoError(t, err)
	assert.JSONEq(t, string(before.Params), string(after.Params))
}

func TestStateRoundTripBetweenPolicies(t *testing.T) {
	trainer, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, trainer.Memory().Put(experience.NewBatch("P",
		rewarded(1, 1))))
	require.NoError(t, trainer.Update())

	state, err := trainer.State()
	require.NoError(t, err)

	actor, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, actor.SetState(state))

	obs := mat.NewVecDense(2, []float64{1, 0})
	assert.True(t, mat.Equal(trainer.ActionValues(obs),
		actor.ActionValues(obs)))

	other := testConfig()
	other.Features = 3
	mismatched, err := New(other)
	require.NoError(t, err)
	assert.Error(t, mismatched.SetState(state))
	assert.Error(t, actor.SetState(policy.State{Kind: "rulebased"}))
}

func TestExplorationStepDecaysToMinimum(t *testing.T) {
	q, err := New(testConfig())
	require.NoError(t, err)

	q.ExplorationStep()
	assert.InDelta(t, 0.25, q.Epsilon(), 1e-12)
	for i := 0; i < 10; i++ {
		q.ExplorationStep()
	}
	assert.InDelta(t, 0.1, q.Epsilon(), 1e-12)
}

func BenchmarkSelectAction(b *testing.B) {
	q, err := New(testConfig())
	if err != nil {
		b.Fatal(err)
	}
	obs := mat.NewVecDense(2, []float64{0.5, 0.5})

	for i := 0; i < b.N; i++ {
		q.SelectAction(obs)
	}
}
