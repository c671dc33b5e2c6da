package rulebased

import (
	"fmt"

	"github.com/samuelfneumann/distlearn/policy"
)

func init() {
	policy.Register(Kind, build)
}

// Config configures a rule-based policy which acts with the Sign rule
// over one feature of the observation
type Config struct {
	Feature int     `yaml:"feature"`
	Below   float64 `yaml:"below"`
	Above   float64 `yaml:"above"`
}

func build(name string, params policy.Decoder) (policy.Policy, error) {
	var c Config
	if params != nil {
		if err := params.Decode(&c); err != nil {
			return nil, fmt.Errorf("rulebased: decode %v: %w", name, err)
		}
	}
	if c.Feature < 0 {
		return nil, fmt.Errorf("rulebased: feature index must be >= 0")
	}

	return New(name, Sign(c.Feature, c.Below, c.Above))
}
