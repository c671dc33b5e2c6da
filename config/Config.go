// Package config loads the configuration shared by every distlearn
// process and builds the components it describes
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/samuelfneumann/distlearn/actor"
	"github.com/samuelfneumann/distlearn/environment/cartpole"
	"github.com/samuelfneumann/distlearn/manager"
	"github.com/samuelfneumann/distlearn/messaging"
	"github.com/samuelfneumann/distlearn/observability"
	"github.com/samuelfneumann/distlearn/policy"
)

// EnvPrefix prefixes every environment variable override
const EnvPrefix = "DISTLEARN_"

// ErrInvalidConfig is wrapped by every validation error
var ErrInvalidConfig = errors.New("invalid configuration")

// Manager modes
const (
	ManagerLocal  = "local"
	ManagerRemote = "remote"
)

// Checkpoint file naming schemes
const (
	NamingVersion = "version" // policies-v{version}.bin
	NamingCounter = "counter" // policies-{n}.bin, counting from 1
	NamingTime    = "time"    // policies-{unix nanoseconds}.bin
)

// Config is the configuration of a training run
type Config struct {
	Group string `yaml:"group" env:"GROUP"`

	Logging observability.LoggingConfig `yaml:"logging" envPrefix:"LOGGING_"`
	Metrics MetricsConfig               `yaml:"metrics" envPrefix:"METRICS_"`
	Tracing observability.TracingConfig `yaml:"tracing" envPrefix:"TRACING_"`

	Transport TransportConfig `yaml:"transport" envPrefix:"TRANSPORT_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Actor     actor.Config    `yaml:"actor" envPrefix:"ACTOR_"`

	Policies    []PolicyConfig    `yaml:"policies"`
	Agents      map[string]string `yaml:"agents" env:"AGENTS"`
	Environment EnvironmentConfig `yaml:"environment" envPrefix:"ENVIRONMENT_"`
}

// MetricsConfig configures the prometheus metrics
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// TransportConfig configures the HTTP transport between processes
type TransportConfig struct {
	Listen        string            `yaml:"listen" env:"LISTEN"`
	Timeout       time.Duration     `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries    int               `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryInterval time.Duration     `yaml:"retry_interval" env:"RETRY_INTERVAL"`
	Peers         map[string]string `yaml:"peers" env:"PEERS"` // base URL by role
}

// ServerConfig configures the policy authority and its manager
type ServerConfig struct {
	NumActors int    `yaml:"num_actors" env:"NUM_ACTORS"`
	MaxLag    int    `yaml:"max_lag" env:"MAX_LAG"`
	Manager   string `yaml:"manager" env:"MANAGER"` // local or remote

	// Trigger applies to every updatable policy unless Triggers is set,
	// in which case only the policies named by Triggers have one
	Trigger  manager.Trigger            `yaml:"trigger"`
	Triggers map[string]manager.Trigger `yaml:"triggers"`

	CheckpointEvery  int    `yaml:"checkpoint_every" env:"CHECKPOINT_EVERY"`
	CheckpointDir    string `yaml:"checkpoint_dir" env:"CHECKPOINT_DIR"`
	CheckpointNaming string `yaml:"checkpoint_naming" env:"CHECKPOINT_NAMING"`
}

// PolicyConfig describes one policy. Params are decoded by the
// builder registered for Kind.
type PolicyConfig struct {
	Name   string    `yaml:"name"`
	Kind   string    `yaml:"kind"`
	Params yaml.Node `yaml:"params"`
}

// EnvironmentConfig describes the environment actors train in
type EnvironmentConfig struct {
	Kind         string  `yaml:"kind" env:"KIND"`
	AgentID      string  `yaml:"agent_id" env:"AGENT_ID"`
	EpisodeSteps int     `yaml:"episode_steps" env:"EPISODE_STEPS"`
	Discount     float64 `yaml:"discount" env:"DISCOUNT"`
	FailAngle    float64 `yaml:"fail_angle" env:"FAIL_ANGLE"`
	StartBound   float64 `yaml:"start_bound" env:"START_BOUND"`
	Seed         uint64  `yaml:"seed" env:"SEED"`
}

// Default returns the configuration used for every unset value
func Default() Config {
	return Config{
		Logging: observability.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracing: observability.TracingConfig{SampleRatio: 1},
		Transport: TransportConfig{
			Timeout:       messaging.DefaultTimeout,
			RetryInterval: 100 * time.Millisecond,
		},
		Server: ServerConfig{
			NumActors: 1,
			MaxLag:    -1,
			Manager:   ManagerLocal,
			Trigger:   manager.DefaultTrigger(),

			CheckpointNaming: NamingVersion,
		},
		Actor: actor.Config{
			NumEpisodes: 10,
			NumSteps:    actor.UntilDone,
		},
		Environment: EnvironmentConfig{
			Kind:         cartpole.Kind,
			AgentID:      "agent",
			EpisodeSteps: 500,
			Discount:     0.99,
			FailAngle:    cartpole.FailAngle,
			StartBound:   0.05,
		},
	}
}

// Load reads the YAML file at path over Default, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("load config %v: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("load config: parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate ensures that the Config is valid
func (c Config) Validate() error {
	if err := c.Actor.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if len(c.Policies) == 0 {
		return fmt.Errorf("%w: no policies configured", ErrInvalidConfig)
	}
	kinds := make(map[string]bool)
	for _, kind := range policy.Kinds() {
		kinds[kind] = true
	}
	names := make(map[string]bool, len(c.Policies))
	for _, p := range c.Policies {
		if p.Name == "" {
			return fmt.Errorf("%w: policy name cannot be empty",
				ErrInvalidConfig)
		}
		if names[p.Name] {
			return fmt.Errorf("%w: duplicate policy %q", ErrInvalidConfig,
				p.Name)
		}
		if !kinds[p.Kind] {
			return fmt.Errorf("%w: policy %v has unknown kind %q (known: %v)",
				ErrInvalidConfig, p.Name, p.Kind, policy.Kinds())
		}
		names[p.Name] = true
	}

	if len(c.Agents) == 0 {
		return fmt.Errorf("%w: no agents configured", ErrInvalidConfig)
	}
	for agentID, name := range c.Agents {
		if !names[name] {
			return fmt.Errorf("%w: agent %q maps to unknown policy %q",
				ErrInvalidConfig, agentID, name)
		}
	}
	if _, ok := c.Agents[c.Environment.AgentID]; !ok {
		return fmt.Errorf("%w: environment agent %q has no policy",
			ErrInvalidConfig, c.Environment.AgentID)
	}

	if err := c.Server.Trigger.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for name, t := range c.Server.Triggers {
		if !names[name] {
			return fmt.Errorf("%w: trigger for unknown policy %q",
				ErrInvalidConfig, name)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: trigger of %v: %w", ErrInvalidConfig, name,
				err)
		}
	}

	switch {
	case c.Server.Manager != ManagerLocal && c.Server.Manager != ManagerRemote:
		return fmt.Errorf("%w: server manager must be %q or %q, have %q",
			ErrInvalidConfig, ManagerLocal, ManagerRemote, c.Server.Manager)
	case c.Server.NumActors < 0:
		return fmt.Errorf("%w: server num actors cannot be negative",
			ErrInvalidConfig)
	case c.Server.CheckpointEvery < 0:
		return fmt.Errorf("%w: checkpoint every cannot be negative",
			ErrInvalidConfig)
	case c.Server.CheckpointNaming != NamingVersion &&
		c.Server.CheckpointNaming != NamingCounter &&
		c.Server.CheckpointNaming != NamingTime:
		return fmt.Errorf("%w: checkpoint naming must be one of %q, %q or "+
			"%q, have %q", ErrInvalidConfig, NamingVersion, NamingCounter,
			NamingTime, c.Server.CheckpointNaming)
	case c.Transport.Timeout < 0:
		return fmt.Errorf("%w: transport timeout cannot be negative",
			ErrInvalidConfig)
	case c.Transport.MaxRetries < 0:
		return fmt.Errorf("%w: transport max retries cannot be negative",
			ErrInvalidConfig)
	}

	e := c.Environment
	switch {
	case e.Kind != cartpole.Kind:
		return fmt.Errorf("%w: unknown environment kind %q", ErrInvalidConfig,
			e.Kind)
	case e.EpisodeSteps < 1:
		return fmt.Errorf("%w: episode steps must be >= 1", ErrInvalidConfig)
	case e.Discount < 0 || e.Discount > 1:
		return fmt.Errorf("%w: discount must be in [0, 1]", ErrInvalidConfig)
	case e.FailAngle <= 0:
		return fmt.Errorf("%w: fail angle must be > 0", ErrInvalidConfig)
	case e.StartBound < 0:
		return fmt.Errorf("%w: start bound cannot be negative",
			ErrInvalidConfig)
	}
	return nil
}
