// Package linear implements a trainable ε-greedy policy using linear
// function approximation of action values, updated with Q-learning
package linear

import (
	"encoding/json"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/distlearn/experience"
	"github.com/samuelfneumann/distlearn/policy"
	"github.com/samuelfneumann/distlearn/timestep"
	"github.com/samuelfneumann/distlearn/utils/matutils"
)

// Kind is the policy.State kind of QLearning policies
const Kind = "linear-qlearning"

// QLearning implements an ε-greedy policy over linear action values.
// Actions selected by this policy are always enumerated as
// (0, 1, 2, ... N-1) where N is the number of actions.
//
// The policy buffers experience in its own Memory and, when updated,
// performs Q-learning over the buffered transitions. Weights have one
// row per action and one column per feature.
type QLearning struct {
	config  Config
	weights *mat.Dense
	epsilon float64
	explore bool
	source  rand.Source
	memory  *experience.Memory
	sampler experience.Selector
	updates int
}

// New creates a new QLearning policy with zero weights
func New(c Config) (*QLearning, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	memory, err := experience.NewMemory(c.Name, 0)
	if err != nil {
		return nil, fmt.Errorf("linear: %w", err)
	}

	var sampler experience.Selector
	if c.Updates > 0 {
		sampler = experience.NewUniformSelector(c.BatchSize, c.Seed)
	} else {
		sampler = experience.NewFifoSelector(0)
	}

	return &QLearning{
		config:  c,
		weights: mat.NewDense(c.Actions, c.Features, nil),
		epsilon: c.Epsilon,
		explore: true,
		source:  rand.NewSource(c.Seed),
		memory:  memory,
		sampler: sampler,
	}, nil
}

// Name returns the name of the policy
func (q *QLearning) Name() string {
	return q.config.Name
}

// Capabilities implements the policy.Policy interface. QLearning
// policies both buffer experience and update from it.
func (q *QLearning) Capabilities() policy.Capability {
	return policy.Trainable
}

// Memory returns the memory that buffers the policy's experience
func (q *QLearning) Memory() *experience.Memory {
	return q.memory
}

// Explore sets the policy to act ε-greedily
func (q *QLearning) Explore() {
	q.explore = true
}

// Exploit sets the policy to act greedily
func (q *QLearning) Exploit() {
	q.explore = false
}

// IsExploring returns whether the policy acts ε-greedily
func (q *QLearning) IsExploring() bool {
	return q.explore
}

// Epsilon returns the current exploration probability
func (q *QLearning) Epsilon() float64 {
	return q.epsilon
}

// Updates returns the number of updates the policy has performed
func (q *QLearning) Updates() int {
	return q.updates
}

// ExplorationStep decays epsilon, bounded below by the configured
// minimum. A decay of 0 leaves epsilon unchanged.
func (q *QLearning) ExplorationStep() {
	if q.config.EpsilonDecay == 0 {
		return
	}
	q.epsilon *= q.config.EpsilonDecay
	if q.epsilon < q.config.MinEpsilon {
		q.epsilon = q.config.MinEpsilon
	}
}

// ActionValues returns the estimated value of each action in obs
func (q *QLearning) ActionValues(obs mat.Vector) *mat.VecDense {
	values := mat.NewVecDense(q.config.Actions, nil)
	values.MulVec(q.weights, obs)
	return values
}

// SelectAction selects an action from an ε-greedy policy when exploring
// and from the greedy policy when exploiting
func (q *QLearning) SelectAction(obs mat.Vector) *mat.VecDense {
	actionValues := q.ActionValues(obs)

	// Find the greedy action
	greedyAction := matutils.MaxVec(actionValues)
	if !q.explore || q.epsilon == 0 {
		return mat.NewVecDense(1, []float64{float64(greedyAction)})
	}

	// Calculate the ε probability of choosing any action at random
	numActions := q.config.Actions
	prob := q.epsilon / float64(numActions)
	actionProbabilites := make([]float64, numActions)
	for i := 0; i < numActions; i++ {
		actionProbabilites[i] = prob
	}

	// Adjust the probability of choosing the greedy action
	actionProbabilites[greedyAction] += (1.0 - q.epsilon)

	// Sample an action from a categorical distribution over actions
	dist := distuv.NewCategorical(actionProbabilites, q.source)
	return mat.NewVecDense(1, []float64{dist.Rand()})
}

// Update performs Q-learning over the buffered transitions, then keeps
// only the configured number of most recent records in the memory.
// Every transition is validated before any weight changes, so an
// invalid record leaves the weights untouched.
func (q *QLearning) Update() error {
	var batches [][]timestep.Transition
	rounds := q.config.Updates
	if rounds == 0 {
		rounds = 1
	}
	for i := 0; i < rounds; i++ {
		batch, err := q.memory.Sample(q.sampler)
		if experience.IsEmptyMemory(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("update %v: %w", q.config.Name, err)
		}
		batches = append(batches, batch)
	}

	for _, batch := range batches {
		for _, t := range batch {
			if err := q.validate(t); err != nil {
				return fmt.Errorf("update %v: %w", q.config.Name, err)
			}
		}
	}

	for _, batch := range batches {
		for _, t := range batch {
			q.learn(t)
		}
	}

	q.memory.Retain(q.config.Capacity)
	q.updates++
	return nil
}

// validate ensures a transition fits the shape of the weights
func (q *QLearning) validate(t timestep.Transition) error {
	if t.State == nil || t.NextState == nil || t.Action == nil {
		return fmt.Errorf("incomplete transition")
	}
	if t.State.Len() != q.config.Features ||
		t.NextState.Len() != q.config.Features {
		return fmt.Errorf("invalid feature size \n\twant(%v)\n\thave(%v)",
			q.config.Features, t.State.Len())
	}
	if t.Action.Len() != 1 {
		return fmt.Errorf("value-based methods should not have "+
			"multi-dimensional actions (action dim = %d)", t.Action.Len())
	}
	action := int(t.Action.AtVec(0))
	if action < 0 || action >= q.config.Actions {
		return fmt.Errorf("illegal action %v", action)
	}
	return nil
}

// learn performs a single Q-learning update on the transition t
func (q *QLearning) learn(t timestep.Transition) {
	// Find the maximum action value in the next state
	maxVal := mat.Max(q.ActionValues(t.NextState))

	// Create the update target
	target := t.Reward + t.Discount*maxVal

	// Find the current estimate of the taken action
	action := int(t.Action.AtVec(0))
	weights := q.weights.RowView(action)
	currentEstimate := mat.Dot(weights, t.State)

	// Construct the scaling factor of the gradient
	scale := q.config.LearningRate * (target - currentEstimate)

	// Perform gradient descent: ∇weights = scale * state
	newWeights := mat.NewVecDense(weights.Len(), nil)
	newWeights.AddScaledVec(weights, scale, t.State)
	q.weights.SetRow(action, mat.Col(nil, 0, newWeights))
}

// params is the wire form of the policy's weights
type params struct {
	Rows    int       `json:"rows"`
	Cols    int       `json:"cols"`
	Weights []float64 `json:"weights"`
}

// State exports the weights of the policy
func (q *QLearning) State() (policy.State, error) {
	rows, cols := q.weights.Dims()
	data, err := json.Marshal(params{
		Rows:    rows,
		Cols:    cols,
		Weights: mat.DenseCopyOf(q.weights).RawMatrix().Data,
	})
	if err != nil {
		return policy.State{}, fmt.Errorf("state %v: %w", q.config.Name, err)
	}
	return policy.State{Kind: Kind, Params: data}, nil
}

// SetState replaces the weights of the policy. The State must have been
// exported by a QLearning policy of the same shape.
func (q *QLearning) SetState(s policy.State) error {
	if s.Kind != Kind {
		return fmt.Errorf("set state %v: cannot load state of kind %q",
			q.config.Name, s.Kind)
	}

	var p params
	if err := json.Unmarshal(s.Params, &p); err != nil {
		return fmt.Errorf("set state %v: %w", q.config.Name, err)
	}
	if p.Rows != q.config.Actions || p.Cols != q.config.Features ||
		len(p.Weights) != p.Rows*p.Cols {
		return fmt.Errorf("set state %v: shape (%v, %v) does not match "+
			"(%v, %v)", q.config.Name, p.Rows, p.Cols, q.config.Actions,
			q.config.Features)
	}

	q.weights = mat.NewDense(p.Rows, p.Cols, p.Weights)
	return nil
}

func (q *QLearning) String() string {
	return fmt.Sprintf("QLearning | Name: %v  |  Epsilon: %.3f  |  "+
		"Updates: %v\n%v", q.config.Name, q.epsilon, q.updates,
		matutils.Format(q.weights))
}
