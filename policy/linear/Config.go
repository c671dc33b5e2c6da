package linear

import (
	"fmt"
)

// Config represents a configuration for the linear Q-learning policy
type Config struct {
	Name     string `yaml:"name"`
	Features int    `yaml:"features"` // length of observation vectors
	Actions  int    `yaml:"actions"`  // number of discrete actions, enumerated from 0

	Epsilon      float64 `yaml:"epsilon"`       // exploration probability
	EpsilonDecay float64 `yaml:"epsilon_decay"` // multiplicative decay applied once per episode
	MinEpsilon   float64 `yaml:"min_epsilon"`   // lower bound on the decayed epsilon
	LearningRate float64 `yaml:"learning_rate"`

	// Updates is the number of minibatches sampled uniformly from the
	// memory on each update. With Updates == 0 an update makes a single
	// pass over every buffered record in arrival order.
	Updates   int `yaml:"updates"`
	BatchSize int `yaml:"batch_size"`

	// Capacity is the number of most recent records kept in the memory
	// after an update has consumed it. A Capacity of 0 drains the
	// memory on every update.
	Capacity int `yaml:"capacity"`

	Seed uint64 `yaml:"seed"`
}

// Validate ensures that the Config is valid
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("linear: policy name cannot be empty")
	}
	if c.Features < 1 {
		return fmt.Errorf("linear: features must be >= 1")
	}
	if c.Actions < 1 {
		return fmt.Errorf("linear: actions must be >= 1")
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("linear: epsilon must be in [0, 1]")
	}
	if c.EpsilonDecay < 0 || c.EpsilonDecay > 1 {
		return fmt.Errorf("linear: epsilon decay must be in [0, 1]")
	}
	if c.MinEpsilon < 0 || c.MinEpsilon > 1 {
		return fmt.Errorf("linear: min epsilon must be in [0, 1]")
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("linear: learning rate must be > 0")
	}
	if c.Updates < 0 {
		return fmt.Errorf("linear: updates cannot be lower than 0")
	}
	if c.Updates > 0 && c.BatchSize < 1 {
		return fmt.Errorf("linear: batch size must be >= 1 when sampling " +
			"minibatches")
	}
	if c.Capacity < 0 {
		return fmt.Errorf("linear: capacity cannot be lower than 0")
	}
	return nil
}
