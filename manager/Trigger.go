package manager

import "fmt"

// Trigger gates the updates of a single policy. A policy is updated on
// a Submit when it buffers at least NumWarmupExperiences records and
// received at least MinNewExperiences records since its last update.
type Trigger struct {
	MinNewExperiences    int `yaml:"min_new_experiences" json:"min_new_experiences"`
	NumWarmupExperiences int `yaml:"num_warmup_experiences" json:"num_warmup_experiences"`
}

// DefaultTrigger returns the trigger that updates a policy as soon as
// it holds any new record
func DefaultTrigger() Trigger {
	return Trigger{MinNewExperiences: 1, NumWarmupExperiences: 1}
}

// Validate ensures both thresholds are non-negative
func (t Trigger) Validate() error {
	if t.MinNewExperiences < 0 {
		return fmt.Errorf("%w: min_new_experiences must be >= 0, have %v",
			ErrInvalidConfig, t.MinNewExperiences)
	}
	if t.NumWarmupExperiences < 0 {
		return fmt.Errorf("%w: num_warmup_experiences must be >= 0, have %v",
			ErrInvalidConfig, t.NumWarmupExperiences)
	}
	return nil
}

// ready returns whether a policy with buffered records of which pending
// are new should update
func (t Trigger) ready(buffered, pending int) bool {
	return buffered >= t.NumWarmupExperiences &&
		pending >= t.MinNewExperiences
}

func (t Trigger) String() string {
	return fmt.Sprintf("Trigger | Min New: %v  |  Warmup: %v",
		t.MinNewExperiences, t.NumWarmupExperiences)
}
