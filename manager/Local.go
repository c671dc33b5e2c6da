package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samuelfneumann/distlearn/experience"
	"github.com/samuelfneumann/distlearn/observability"
	"github.com/samuelfneumann/distlearn/policy"
)

// Option configures a Local manager
type Option func(*options)

type options struct {
	trigger    *Trigger
	triggers   map[string]Trigger
	perPolicy  bool
	logger     *observability.Logger
	metrics    *observability.Metrics
	triggerSet int
}

// WithTrigger applies t to every updatable policy
func WithTrigger(t Trigger) Option {
	return func(o *options) {
		o.trigger = &t
		o.triggerSet++
	}
}

// WithTriggers applies triggers by policy name. Every key must name a
// managed policy. Updatable policies without an entry have no trigger
// and update whenever they buffer any record.
func WithTriggers(triggers map[string]Trigger) Option {
	return func(o *options) {
		o.triggers = make(map[string]Trigger, len(triggers))
		for name, t := range triggers {
			o.triggers[name] = t
		}
		o.perPolicy = true
		o.triggerSet++
	}
}

// WithLogger sets the logger of the manager
func WithLogger(l *observability.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics the manager records to
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Local is a Manager which holds its policies in-process and updates
// them synchronously inside Submit. Buffers, pending counters and the
// updated set are guarded by a single mutex, so a Local is safe for
// concurrent use by many request handlers.
type Local struct {
	mu sync.Mutex

	names     []string
	policies  map[string]policy.Policy
	updatable map[string]policy.Learner
	triggers  map[string]Trigger

	pending     map[string]int
	updated     map[string]struct{}
	lastUpdated map[string]struct{}

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewLocal returns a new Local manager over policies. Without a trigger
// option every updatable policy uses DefaultTrigger.
func NewLocal(policies []policy.Policy, opts ...Option) (*Local, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.triggerSet > 1 {
		return nil, fmt.Errorf("%w: only one of WithTrigger and "+
			"WithTriggers may be given", ErrInvalidConfig)
	}

	l := &Local{
		policies:    make(map[string]policy.Policy, len(policies)),
		updatable:   make(map[string]policy.Learner),
		triggers:    make(map[string]Trigger),
		pending:     make(map[string]int),
		updated:     make(map[string]struct{}),
		lastUpdated: make(map[string]struct{}),
		logger:      observability.OrNop(o.logger).With("component", "policy_manager"),
		metrics:     o.metrics,
	}

	for _, p := range policies {
		name := p.Name()
		if _, ok := l.policies[name]; ok {
			return nil, fmt.Errorf("%w: duplicate policy %q", ErrInvalidConfig,
				name)
		}
		if err := checkCapabilities(p); err != nil {
			return nil, err
		}

		l.policies[name] = p
		l.names = append(l.names, name)
		if p.Capabilities().Has(policy.Trainable) {
			l.updatable[name] = p.(policy.Learner)
		}
	}
	sort.Strings(l.names)

	switch {
	case o.perPolicy:
		for name, t := range o.triggers {
			if _, ok := l.policies[name]; !ok {
				return nil, fmt.Errorf("%w: trigger keys must be a subset of "+
					"%v, have %q", ErrInvalidConfig, l.names, name)
			}
			if err := t.Validate(); err != nil {
				return nil, fmt.Errorf("trigger of %v: %w", name, err)
			}
			l.triggers[name] = t
		}
	default:
		t := DefaultTrigger()
		if o.trigger != nil {
			t = *o.trigger
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		for name := range l.updatable {
			l.triggers[name] = t
		}
	}

	return l, nil
}

// checkCapabilities ensures a policy implements the interfaces its
// declared capabilities require
func checkCapabilities(p policy.Policy) error {
	c := p.Capabilities()
	if c.Has(policy.Updatable) && !c.Has(policy.Buffered) {
		return fmt.Errorf("%w: policy %q is updatable but does not buffer",
			ErrInvalidConfig, p.Name())
	}
	if _, ok := p.(policy.Buffer); c.Has(policy.Buffered) && !ok {
		return fmt.Errorf("%w: policy %q declares %v but has no memory",
			ErrInvalidConfig, p.Name(), c)
	}
	if _, ok := p.(policy.Learner); c.Has(policy.Updatable) && !ok {
		return fmt.Errorf("%w: policy %q declares %v but cannot update",
			ErrInvalidConfig, p.Name(), c)
	}
	return nil
}

// Names implements the Manager interface
func (l *Local) Names() []string {
	names := make([]string, len(l.names))
	copy(names, l.names)
	return names
}

// Submit implements the Manager interface. Updatable policies are
// evaluated in name order; an update error stops the evaluation and is
// returned, leaving the failing policy's pending counter untouched.
func (l *Local) Submit(ctx context.Context,
	byPolicy map[string]experience.Batch) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(byPolicy))
	for name, batch := range byPolicy {
		if _, ok := l.policies[name]; !ok {
			return fmt.Errorf("submit: %w %q", ErrUnknownPolicy, name)
		}
		if batch.Policy != "" && batch.Policy != name {
			return fmt.Errorf("submit: %w: key %q, batch %q",
				experience.ErrPolicyMismatch, name, batch.Policy)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for name := range l.lastUpdated {
		delete(l.lastUpdated, name)
	}

	for _, name := range names {
		batch := byPolicy[name]
		buffer, ok := l.policies[name].(policy.Buffer)
		if !ok || !l.policies[name].Capabilities().Has(policy.Buffered) {
			l.logger.Debug("ignoring experience for policy without buffer",
				"policy", name, "records", batch.Size())
			l.metrics.AddIgnored(name, batch.Size())
			continue
		}

		owned := experience.NewBatch(name, batch.Transitions...)
		if err := buffer.Memory().Put(owned); err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		l.pending[name] += batch.Size()
		l.metrics.AddExperiences(name, batch.Size())
	}

	var updatedNow []string
	for _, name := range l.names {
		learner, ok := l.updatable[name]
		if !ok {
			continue
		}

		buffered := learner.Memory().Size()
		l.logger.Debug("buffer status", "policy", name, "buffered", buffered,
			"pending", l.pending[name])

		if !l.shouldUpdate(name, buffered) {
			continue
		}
		if err := learner.Update(); err != nil {
			return fmt.Errorf("submit: update %v: %w", name, err)
		}

		l.pending[name] = 0
		l.updated[name] = struct{}{}
		l.lastUpdated[name] = struct{}{}
		l.metrics.IncUpdates(name)
		updatedNow = append(updatedNow, name)
	}

	if len(updatedNow) > 0 {
		l.logger.Info("updated policies", "policies", updatedNow)
	}
	return nil
}

// shouldUpdate returns whether the named updatable policy holding
// buffered records should update. Policies without a trigger update
// whenever they buffer any record.
func (l *Local) shouldUpdate(name string, buffered int) bool {
	t, ok := l.triggers[name]
	if !ok {
		return buffered > 0
	}
	return t.ready(buffered, l.pending[name])
}

// State implements the Manager interface. If any policy fails to export
// its state, nothing is forgotten and the error is returned.
func (l *Local) State(ctx context.Context) (map[string]policy.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	states := make(map[string]policy.State, len(l.updated))
	for name := range l.updated {
		s, err := l.policies[name].State()
		if err != nil {
			return nil, fmt.Errorf("state: export %v: %w", name, err)
		}
		states[name] = s
	}

	for name := range l.updated {
		delete(l.updated, name)
	}
	return states, nil
}

// Snapshot implements the Manager interface
func (l *Local) Snapshot(ctx context.Context) (map[string]policy.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	states := make(map[string]policy.State, len(l.policies))
	for name, p := range l.policies {
		s, err := p.State()
		if err != nil {
			return nil, fmt.Errorf("snapshot: export %v: %w", name, err)
		}
		states[name] = s
	}
	return states, nil
}

// Pending returns the number of records the named policy received
// since its last update
func (l *Local) Pending(name string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.policies[name]; !ok {
		return 0, fmt.Errorf("pending: %w %q", ErrUnknownPolicy, name)
	}
	return l.pending[name], nil
}

// Stage returns the update lifecycle stage of the named policy.
// Policies that do not buffer are always Cold.
func (l *Local) Stage(name string) (Stage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.policies[name]
	if !ok {
		return Cold, fmt.Errorf("stage: %w %q", ErrUnknownPolicy, name)
	}
	if _, ok := l.lastUpdated[name]; ok {
		return Updated, nil
	}

	buffer, ok := p.(policy.Buffer)
	if !ok || !p.Capabilities().Has(policy.Buffered) {
		return Cold, nil
	}
	buffered := buffer.Memory().Size()
	if buffered == 0 {
		return Cold, nil
	}
	if t, ok := l.triggers[name]; ok && buffered < t.NumWarmupExperiences {
		return Warming, nil
	}
	return Ready, nil
}

// Policy returns a managed policy by name
func (l *Local) Policy(name string) (policy.Policy, bool) {
	p, ok := l.policies[name]
	return p, ok
}
