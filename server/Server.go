// Package server implements the policy authority. The authority owns
// the policy version, routes the experience of actors into a policy
// manager and answers every round trip with the latest version and the
// policies that changed since the version the actor reported.
package server

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/samuelfneumann/distlearn/checkpointer"
	"github.com/samuelfneumann/distlearn/manager"
	"github.com/samuelfneumann/distlearn/messaging"
	"github.com/samuelfneumann/distlearn/observability"
	"github.com/samuelfneumann/distlearn/policy"
	"github.com/samuelfneumann/distlearn/protocol"
)

// Option configures a Server
type Option func(*Server)

// WithNumActors closes Done once n distinct actors finished. With
// n <= 0, Done never closes.
func WithNumActors(n int) Option {
	return func(s *Server) {
		s.numActors = n
	}
}

// WithMaxLag discards the experience of collect-done requests reported
// more than lag versions behind the current one. A negative lag keeps
// all experience.
func WithMaxLag(lag int) Option {
	return func(s *Server) {
		s.maxLag = lag
	}
}

// WithCheckpointer checkpoints every policy after each version bump
func WithCheckpointer(c checkpointer.Checkpointer) Option {
	return func(s *Server) {
		s.checkpointer = c
	}
}

// WithLogger sets the logger of the server
func WithLogger(l *observability.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics sets the metrics the server records to
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server is the policy authority. It is the single drainer of the
// updated-policy set of its manager.
type Server struct {
	mu sync.Mutex

	manager   manager.Manager
	version   int64
	changedAt map[string]int64
	latest    map[string]policy.State

	numActors int
	maxLag    int
	finished  map[string]struct{}
	done      chan struct{}

	checkpointer checkpointer.Checkpointer
	logger       *observability.Logger
	metrics      *observability.Metrics
	mux          *messaging.Mux
}

// New returns a Server at version 0 over the current state of every
// policy of m
func New(ctx context.Context, m manager.Manager, opts ...Option) (*Server,
	error) {
	s := &Server{
		manager:   m,
		changedAt: make(map[string]int64),
		maxLag:    -1,
		finished:  make(map[string]struct{}),
		done:      make(chan struct{}),
		mux:       messaging.NewMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = observability.OrNop(s.logger).With("component", "policy_server")

	latest, err := m.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("new server: %w", err)
	}
	s.latest = latest
	for name := range latest {
		s.changedAt[name] = 0
	}
	s.metrics.SetVersion(0)

	s.mux.HandleTag(protocol.TagGetInitialPolicyState,
		messaging.HandlerFunc(s.initialState))
	s.mux.HandleTag(protocol.TagCollectDone,
		messaging.HandlerFunc(s.collectDone))
	s.mux.HandleTag(protocol.TagDone, messaging.HandlerFunc(s.actorDone))
	return s, nil
}

// Handle implements the messaging.Handler interface
func (s *Server) Handle(ctx context.Context, m messaging.Message) (messaging.Message,
	error) {
	ctx, span := observability.Tracer().Start(ctx, "authority "+m.Tag,
		trace.WithAttributes(
			attribute.String("message.tag", m.Tag),
			attribute.String("message.source", m.Source),
		))
	defer span.End()

	reply, err := s.mux.Handle(ctx, m)
	if err != nil {
		span.RecordError(err)
		s.logger.WarnContext(ctx, "round trip failed", "tag", m.Tag,
			"source", m.Source, "error", err)
	}
	return reply, err
}

// Version returns the current policy version
func (s *Server) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Done is closed once the configured number of actors finished
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Finished returns the sorted names of the actors that finished
func (s *Server) Finished() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.finished))
	for name := range s.finished {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) initialState(ctx context.Context,
	m messaging.Message) (messaging.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.InfoContext(ctx, "initial policy state", "source", m.Source,
		"version", s.version)
	return m.Reply(protocol.InitialStateReply{
		Version:     s.version,
		PolicyState: s.changedSince(-1),
	})
}

func (s *Server) collectDone(ctx context.Context,
	m messaging.Message) (messaging.Message, error) {
	var req protocol.CollectDoneRequest
	if err := m.Decode(&req); err != nil {
		return messaging.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Version > s.version {
		return messaging.Message{}, fmt.Errorf("collect done: %v reported "+
			"version %v ahead of current version %v", m.Source, req.Version,
			s.version)
	}

	records := 0
	for _, b := range req.Experiences {
		records += b.Size()
	}

	if lag := s.version - req.Version; s.maxLag >= 0 && lag > int64(s.maxLag) {
		s.logger.InfoContext(ctx, "discarding stale experience",
			"source", m.Source, "version", req.Version,
			"current_version", s.version, "records", records)
		s.metrics.AddStale(records)
	} else if err := s.manager.Submit(ctx, req.Experiences); err != nil {
		return messaging.Message{}, err
	}

	if err := s.pull(ctx); err != nil {
		return messaging.Message{}, err
	}

	delta := s.changedSince(req.Version)
	s.logger.DebugContext(ctx, "collect done", "source", m.Source,
		"version", req.Version, "current_version", s.version,
		"records", records, "changed", len(delta))
	return m.Reply(protocol.CollectDoneReply{
		Version:     s.version,
		PolicyState: delta,
	})
}

// pull drains the updated policies of the manager, bumping the version
// once if any policy changed
func (s *Server) pull(ctx context.Context) error {
	states, err := s.manager.State(ctx)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return nil
	}

	s.version++
	for name, state := range states {
		s.latest[name] = state
		s.changedAt[name] = s.version
	}
	s.metrics.SetVersion(s.version)
	s.logger.InfoContext(ctx, "policy version advanced", "version", s.version,
		"policies", len(states))

	if s.checkpointer != nil {
		saved, err := s.checkpointer.Checkpoint(s.version, s.changedSince(-1))
		if err != nil {
			s.logger.ErrorContext(ctx, "checkpoint failed", "version",
				s.version, "error", err)
		} else if saved {
			s.logger.InfoContext(ctx, "checkpoint written", "version",
				s.version)
		}
	}
	return nil
}

// changedSince returns the latest state of every policy changed after
// version
func (s *Server) changedSince(version int64) map[string]policy.State {
	out := make(map[string]policy.State)
	for name, at := range s.changedAt {
		if at > version {
			out[name] = s.latest[name]
		}
	}
	return out
}

func (s *Server) actorDone(ctx context.Context,
	m messaging.Message) (messaging.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.finished[m.Source]; ok {
		return messaging.Message{}, nil
	}
	s.finished[m.Source] = struct{}{}
	s.metrics.SetDoneActors(len(s.finished))
	s.logger.InfoContext(ctx, "actor done", "source", m.Source,
		"done", len(s.finished), "actors", s.numActors)

	if s.numActors > 0 && len(s.finished) == s.numActors {
		close(s.done)
	}
	return messaging.Message{}, nil
}
