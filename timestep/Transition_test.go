package timestep

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewTransitionZeroesDiscountOnTerminalStep(t *testing.T) {
	first := New(First, 0, 0.9, mat.NewVecDense(2, []float64{0, 1}), 0)
	next := New(Mid, 1, 0.9, mat.NewVecDense(2, []float64{1, 1}), 1)
	action := mat.NewVecDense(1, []float64{2})

	mid := NewTransition(first, action, next)
	assert.Equal(t, 0.9, mid.Discount)
	assert.Equal(t, 1.0, mid.Reward)

	next.SetEnd(TerminalStateReached)
	terminal := NewTransition(first, action, next)
	assert.Equal(t, 0.0, terminal.Discount)

	timeout := New(Mid, 1, 0.9, mat.NewVecDense(2, nil), 1)
	timeout.SetEnd(Timeout)
	assert.Equal(t, 0.9, NewTransition(first, action, timeout).Discount,
		"a step limit is not a terminal state")
}

func TestTransitionJSONKeepsVectors(t *testing.T) {
	tr := Transition{
		State:     mat.NewVecDense(3, []float64{1, 2, 3}),
		Action:    mat.NewVecDense(1, []float64{1}),
		Reward:    -1,
		Discount:  0.5,
		NextState: mat.NewVecDense(3, []float64{4, 5, 6}),
		Aux:       map[string]float64{"logp": -0.7},
	}

	data, err := json.Marshal(tr)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"next_state":[4,5,6]`)

	var got Transition
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, mat.Equal(tr.State, got.State))
	assert.True(t, mat.Equal(tr.NextState, got.NextState))
	assert.Equal(t, tr.Aux, got.Aux)
}
