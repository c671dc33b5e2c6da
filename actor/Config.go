package actor

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidConfig is wrapped by every configuration error
var ErrInvalidConfig = errors.New("invalid actor configuration")

// UntilDone runs segments until the episode ends
const UntilDone = -1

// Config configures an Actor
type Config struct {
	// NumEpisodes is the number of training episodes to run
	NumEpisodes int `yaml:"num_episodes" env:"NUM_EPISODES"`

	// NumSteps is the number of environment steps per segment. With
	// UntilDone every episode is a single segment.
	NumSteps int `yaml:"num_steps" env:"NUM_STEPS"`

	// EvalEvery evaluates every EvalEvery training episodes. Only one of
	// EvalEvery and EvalEpisodes may be set. When neither is set the
	// actor evaluates once, after the last episode.
	EvalEvery    int   `yaml:"eval_every" env:"EVAL_EVERY"`
	EvalEpisodes []int `yaml:"eval_episodes" env:"EVAL_EPISODES"`

	LogEnvSummary bool   `yaml:"log_env_summary" env:"LOG_ENV_SUMMARY"`
	ReturnsFile   string `yaml:"returns_file" env:"RETURNS_FILE"`
}

// Validate ensures that the Config is valid
func (c Config) Validate() error {
	if c.NumEpisodes < 1 {
		return fmt.Errorf("%w: num episodes must be >= 1, have %v",
			ErrInvalidConfig, c.NumEpisodes)
	}
	if c.NumSteps != UntilDone && c.NumSteps < 1 {
		return fmt.Errorf("%w: num steps must be %v or >= 1, have %v",
			ErrInvalidConfig, UntilDone, c.NumSteps)
	}
	if c.EvalEvery < 0 {
		return fmt.Errorf("%w: eval every cannot be negative", ErrInvalidConfig)
	}
	if c.EvalEvery > 0 && len(c.EvalEpisodes) > 0 {
		return fmt.Errorf("%w: only one of eval every and eval episodes may "+
			"be set", ErrInvalidConfig)
	}
	return nil
}

// EvalSchedule returns the ascending, duplicate-free episode indices
// after which to evaluate. Every schedule ends with numEpisodes.
// Episodes outside [1, numEpisodes] are dropped.
func EvalSchedule(numEpisodes, every int, episodes []int) []int {
	var schedule []int
	switch {
	case every > 0:
		for ep := every; ep <= numEpisodes; ep += every {
			schedule = append(schedule, ep)
		}

	case len(episodes) > 0:
		sorted := append([]int(nil), episodes...)
		sort.Ints(sorted)
		for _, ep := range sorted {
			if ep < 1 || ep > numEpisodes {
				continue
			}
			if n := len(schedule); n > 0 && schedule[n-1] == ep {
				continue
			}
			schedule = append(schedule, ep)
		}
	}

	if n := len(schedule); n == 0 || schedule[n-1] != numEpisodes {
		schedule = append(schedule, numEpisodes)
	}
	return schedule
}
