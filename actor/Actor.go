// Package actor implements the actor loop. An actor drives an
// environment through episodes and synchronizes the state of its
// policies with the policy authority at every segment boundary.
package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samuelfneumann/distlearn/agent"
	"github.com/samuelfneumann/distlearn/environment"
	"github.com/samuelfneumann/distlearn/messaging"
	"github.com/samuelfneumann/distlearn/observability"
	"github.com/samuelfneumann/distlearn/policy"
	"github.com/samuelfneumann/distlearn/protocol"
	"github.com/samuelfneumann/distlearn/tracker"
)

// ErrVersionRegression is returned when the authority replies with a
// version older than one the actor already adopted
var ErrVersionRegression = errors.New("policy version regressed")

// Option configures an Actor
type Option func(*Actor)

// WithEvalEnv evaluates in env instead of the training environment
func WithEvalEnv(env environment.Wrapper) Option {
	return func(a *Actor) {
		a.evalEnv = env
	}
}

// WithLogger sets the logger of the actor
func WithLogger(l *observability.Logger) Option {
	return func(a *Actor) {
		a.logger = l
	}
}

// WithMetrics sets the metrics the actor records to
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Actor) {
		a.metrics = m
	}
}

// Actor runs training episodes in an environment
type Actor struct {
	config    Config
	env       environment.Wrapper
	evalEnv   environment.Wrapper
	agents    *agent.Wrapper
	proxy     messaging.Proxy
	authority string

	schedule map[int]bool
	version  int64

	evalReturns []float64

	logger  *observability.Logger
	metrics *observability.Metrics
}

// New returns a new Actor. The configuration is validated before
// anything else is done.
func New(c Config, env environment.Wrapper, agents *agent.Wrapper,
	proxy messaging.Proxy, opts ...Option) (*Actor, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if env == nil || agents == nil || proxy == nil {
		return nil, fmt.Errorf("new actor: environment, agents and proxy " +
			"are required")
	}

	authority, err := proxy.Peer(messaging.RoleAuthority)
	if err != nil {
		return nil, fmt.Errorf("new actor: %w", err)
	}

	a := &Actor{
		config:    c,
		env:       env,
		agents:    agents,
		proxy:     proxy,
		authority: authority,
		schedule:  make(map[int]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.evalEnv == nil {
		a.evalEnv = env
	}
	a.logger = observability.OrNop(a.logger).With("component", "actor",
		"actor", proxy.Name())

	for _, ep := range EvalSchedule(c.NumEpisodes, c.EvalEvery,
		c.EvalEpisodes) {
		a.schedule[ep] = true
	}
	return a, nil
}

// Version returns the latest policy version adopted by the actor
func (a *Actor) Version() int64 {
	return a.version
}

// EvalReturns returns the return of every evaluation episode
func (a *Actor) EvalReturns() []float64 {
	return append([]float64(nil), a.evalReturns...)
}

// Run runs every training episode, then notifies the authority that
// the actor is done and closes the proxy. Round-trip failures are
// returned as is.
func (a *Actor) Run(ctx context.Context) error {
	defer a.proxy.Close()

	if err := a.initialState(ctx); err != nil {
		return err
	}

	for ep := 1; ep <= a.config.NumEpisodes; ep++ {
		if err := a.episode(ctx, ep); err != nil {
			return fmt.Errorf("episode %v: %w", ep, err)
		}
		if a.schedule[ep] {
			if err := a.evaluate(ctx, ep); err != nil {
				return fmt.Errorf("evaluate after episode %v: %w", ep, err)
			}
		}
	}

	m, err := messaging.NewNotification(protocol.TagDone, a.proxy.Name(),
		a.authority, nil)
	if err != nil {
		return err
	}
	if err := a.proxy.SendNoWait(ctx, m); err != nil {
		return fmt.Errorf("notify done: %w", err)
	}
	a.logger.Info("done", "episodes", a.config.NumEpisodes,
		"version", a.version)

	if a.config.ReturnsFile != "" {
		if err := tracker.SaveData(a.config.ReturnsFile,
			a.evalReturns); err != nil {
			return fmt.Errorf("save evaluation returns: %w", err)
		}
	}
	return nil
}

func (a *Actor) initialState(ctx context.Context) error {
	var reply protocol.InitialStateReply
	if err := a.call(ctx, protocol.TagGetInitialPolicyState, nil,
		&reply); err != nil {
		return fmt.Errorf("initial policy state: %w", err)
	}
	if err := a.adopt(reply.Version, reply.PolicyState); err != nil {
		return fmt.Errorf("initial policy state: %w", err)
	}
	a.logger.Info("initial policy state", "version", a.version,
		"policies", len(reply.PolicyState))
	return nil
}

// episode runs one training episode as a sequence of segments
func (a *Actor) episode(ctx context.Context, ep int) error {
	start := time.Now()
	a.agents.Explore()
	if err := a.env.Reset(); err != nil {
		return err
	}
	a.env.Start()

	var segments, records int
	for a.env.State() != nil {
		segments++
		a.logger.Debug("segment start", "episode", ep, "segment", segments,
			"version", a.version)

		steps, err := a.run(a.env, a.config.NumSteps)
		if err != nil {
			return err
		}

		n, err := a.collect(ctx)
		if err != nil {
			return fmt.Errorf("segment %v: %w", segments, err)
		}
		records += n
		a.logger.Debug("segment finish", "episode", ep, "segment", segments,
			"version", a.version, "steps", steps, "records", n)
	}

	a.agents.ExplorationStep()

	elapsed := time.Since(start)
	args := []any{"episode", ep, "segments", segments,
		"steps", a.env.StepIndex(), "records", records,
		"elapsed", elapsed, "version", a.version}
	if a.config.LogEnvSummary {
		args = append(args, "summary", a.env.Summary())
	}
	a.logger.Info("episode finished", args...)
	return nil
}

// run steps env for up to steps steps, or until the episode ends if
// steps is UntilDone, and returns the number of steps taken
func (a *Actor) run(env environment.Wrapper, steps int) (int, error) {
	taken := 0
	for state := env.State(); state != nil; state = env.State() {
		if steps != UntilDone && taken >= steps {
			break
		}
		if err := env.Step(a.agents.ChooseAction(state)); err != nil {
			return taken, err
		}
		taken++
	}
	return taken, nil
}

// collect sends the experience produced since the last segment to the
// authority and applies the policy states of the reply. It returns the
// number of records sent.
func (a *Actor) collect(ctx context.Context) (int, error) {
	names, err := a.agents.StoreExperiences(a.env.Experiences())
	if err != nil {
		return 0, err
	}
	byPolicy := a.agents.ExperiencesByPolicy(names)

	records := 0
	for _, b := range byPolicy {
		records += b.Size()
	}

	var reply protocol.CollectDoneReply
	if err := a.call(ctx, protocol.TagCollectDone, protocol.CollectDoneRequest{
		Experiences: byPolicy,
		Version:     a.version,
	}, &reply); err != nil {
		return 0, err
	}
	if err := a.adopt(reply.Version, reply.PolicyState); err != nil {
		return 0, err
	}
	return records, nil
}

// adopt moves the actor to version and loads states. A version older
// than the current one is rejected without loading anything.
func (a *Actor) adopt(version int64, states map[string]policy.State) error {
	if version < a.version {
		return fmt.Errorf("%w: have %v, received %v", ErrVersionRegression,
			a.version, version)
	}
	if err := a.agents.SetPolicyStates(states); err != nil {
		return err
	}
	a.version = version
	return nil
}

// evaluate runs one full episode in exploitation mode. Evaluation
// produces no experience and makes no round trip.
func (a *Actor) evaluate(ctx context.Context, ep int) error {
	_, span := observability.Tracer().Start(ctx, "evaluate",
		trace.WithAttributes(attribute.Int("episode", ep)))
	defer span.End()

	a.agents.Exploit()
	defer a.agents.Explore()

	if err := a.evalEnv.Reset(); err != nil {
		return err
	}
	a.evalEnv.Start()
	steps, err := a.run(a.evalEnv, UntilDone)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	a.evalEnv.Experiences()

	summary := a.evalEnv.Summary()
	a.evalReturns = append(a.evalReturns, summary.Return)
	a.logger.Info("evaluation", "episode", ep, "steps", steps,
		"return", summary.Return, "version", a.version)
	return nil
}

// call performs a round trip to the authority inside a client span,
// decoding the reply into out
func (a *Actor) call(ctx context.Context, tag string, body,
	out interface{}) error {
	ctx, span := observability.Tracer().Start(ctx, "actor "+tag,
		trace.WithAttributes(
			attribute.String("message.tag", tag),
			attribute.Int64("policy.version", a.version),
		))
	defer span.End()

	m, err := messaging.NewMessage(tag, a.proxy.Name(), a.authority, body)
	if err != nil {
		return err
	}

	start := time.Now()
	reply, err := a.proxy.Send(ctx, m)
	a.metrics.ObserveRoundTrip(tag, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return reply.Decode(out)
}
