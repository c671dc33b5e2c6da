package config

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/distlearn/agent"
	"github.com/samuelfneumann/distlearn/checkpointer"
	"github.com/samuelfneumann/distlearn/environment"
	"github.com/samuelfneumann/distlearn/environment/cartpole"
	"github.com/samuelfneumann/distlearn/manager"
	"github.com/samuelfneumann/distlearn/messaging"
	"github.com/samuelfneumann/distlearn/observability"
	"github.com/samuelfneumann/distlearn/policy"

	// Register policy kinds
	_ "github.com/samuelfneumann/distlearn/policy/linear"
	_ "github.com/samuelfneumann/distlearn/policy/rulebased"
)

// BuildPolicies builds a fresh instance of every configured policy
func (c Config) BuildPolicies() ([]policy.Policy, error) {
	policies := make([]policy.Policy, 0, len(c.Policies))
	for i := range c.Policies {
		p := &c.Policies[i]

		var params policy.Decoder
		if p.Params.Kind != 0 {
			params = &p.Params
		}
		built, err := policy.Build(p.Kind, p.Name, params)
		if err != nil {
			return nil, err
		}
		policies = append(policies, built)
	}
	return policies, nil
}

// BuildAgents builds the agent wrapper over a fresh instance of every
// configured policy
func (c Config) BuildAgents() (*agent.Wrapper, error) {
	policies, err := c.BuildPolicies()
	if err != nil {
		return nil, err
	}
	return agent.New(policies, c.Agents)
}

// BuildEnv builds the configured environment. The offset is added to the
// configured seed so that actors and evaluation environments do not
// share start states.
func (c Config) BuildEnv(offset uint64) (*environment.Single, error) {
	e := c.Environment
	bounds := make([]r1.Interval, cartpole.ObservationDims)
	for i := range bounds {
		bounds[i] = r1.Interval{Min: -e.StartBound, Max: e.StartBound}
	}
	starter := environment.NewUniformStarter(bounds, e.Seed+offset)
	task := cartpole.NewBalance(starter, e.EpisodeSteps, e.FailAngle)

	env, _, err := cartpole.New(task, e.Discount)
	if err != nil {
		return nil, fmt.Errorf("build environment: %w", err)
	}
	return environment.NewSingle(env, e.AgentID), nil
}

// ManagerOptions returns the trigger options of the policy manager
func (c Config) ManagerOptions() []manager.Option {
	if len(c.Server.Triggers) > 0 {
		return []manager.Option{manager.WithTriggers(c.Server.Triggers)}
	}
	return []manager.Option{manager.WithTrigger(c.Server.Trigger)}
}

// BuildCheckpointer returns the checkpointer of the authority, or nil
// if checkpoints are disabled
func (c Config) BuildCheckpointer() (checkpointer.Checkpointer, error) {
	if c.Server.CheckpointEvery == 0 {
		return nil, nil
	}
	dir := c.Server.CheckpointDir
	if dir == "" {
		dir = "checkpoints"
	}
	base := filepath.Join(dir, "policies")

	var filename func(int64) string
	switch c.Server.CheckpointNaming {
	case NamingCounter:
		filename = checkpointer.FilenameEnumerator(0, base+"-", ".bin")
	case NamingTime:
		filename = checkpointer.FileTimer(base, ".bin")
	default:
		filename = checkpointer.FileVersion(base, ".bin")
	}

	n, err := checkpointer.NewNStep(c.Server.CheckpointEvery, filename)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Resolver returns the resolver of peer addresses
func (c Config) Resolver() *messaging.Resolver {
	return messaging.NewResolver(c.Group, c.Transport.Peers)
}

// Proxy returns an HTTP proxy speaking for the endpoint name
func (c Config) Proxy(name string, logger *observability.Logger) (*messaging.HTTPProxy,
	error) {
	return messaging.NewHTTPProxy(messaging.HTTPProxyConfig{
		Name:          name,
		Resolver:      c.Resolver(),
		Timeout:       c.Transport.Timeout,
		MaxRetries:    c.Transport.MaxRetries,
		RetryInterval: c.Transport.RetryInterval,
		Logger:        logger,
	})
}

// ListenAddr returns the address the endpoint serving role listens on
func (c Config) ListenAddr(role string) string {
	if c.Transport.Listen != "" {
		return c.Transport.Listen
	}
	return fmt.Sprintf(":%v", messaging.DefaultPort(role))
}
