package linear

import (
	"fmt"

	"github.com/samuelfneumann/distlearn/policy"
)

func init() {
	policy.Register(Kind, build)
}

// build decodes a Config from params and creates a QLearning policy
func build(name string, params policy.Decoder) (policy.Policy, error) {
	if params == nil {
		return nil, fmt.Errorf("linear: policy %v requires parameters", name)
	}

	var c Config
	if err := params.Decode(&c); err != nil {
		return nil, fmt.Errorf("linear: decode %v: %w", name, err)
	}
	c.Name = name

	return New(c)
}
