package manager

import (
	"context"
	"sync"

	"github.com/samuelfneumann/distlearn/messaging"
	"github.com/samuelfneumann/distlearn/observability"
	"github.com/samuelfneumann/distlearn/policy"
	"github.com/samuelfneumann/distlearn/protocol"
)

// Host serves a Manager to Remote managers over messaging. States
// drained by a pull are kept until the next pull acknowledges the
// reply, so a lost reply is delivered again. A Host serves the pulls
// of a single Remote.
type Host struct {
	manager Manager
	mux     *messaging.Mux
	logger  *observability.Logger

	mu      sync.Mutex
	seq     int64
	unacked map[string]policy.State
}

// NewHost returns a Host serving m
func NewHost(m Manager, logger *observability.Logger) *Host {
	h := &Host{
		manager: m,
		mux:     messaging.NewMux(),
		logger:  observability.OrNop(logger).With("component", "policy_host"),
	}
	h.mux.HandleTag(protocol.TagListPolicies, messaging.HandlerFunc(h.list))
	h.mux.HandleTag(protocol.TagSubmitExperiences,
		messaging.HandlerFunc(h.submit))
	h.mux.HandleTag(protocol.TagPullPolicyState, messaging.HandlerFunc(h.pull))
	h.mux.HandleTag(protocol.TagPullAllPolicyStates,
		messaging.HandlerFunc(h.pullAll))
	return h
}

// Handle implements the messaging.Handler interface
func (h *Host) Handle(ctx context.Context, m messaging.Message) (messaging.Message,
	error) {
	h.logger.DebugContext(ctx, "handling", "tag", m.Tag, "source", m.Source)
	return h.mux.Handle(ctx, m)
}

func (h *Host) list(_ context.Context, m messaging.Message) (messaging.Message,
	error) {
	return m.Reply(protocol.ListPoliciesReply{Names: h.manager.Names()})
}

func (h *Host) submit(ctx context.Context, m messaging.Message) (messaging.Message,
	error) {
	var req protocol.SubmitExperiencesRequest
	if err := m.Decode(&req); err != nil {
		return messaging.Message{}, err
	}
	if err := h.manager.Submit(ctx, req.Experiences); err != nil {
		return messaging.Message{}, err
	}
	return m.Reply(nil)
}

func (h *Host) pull(ctx context.Context, m messaging.Message) (messaging.Message,
	error) {
	var req protocol.PullPolicyStateRequest
	if err := m.Decode(&req); err != nil {
		return messaging.Message{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if req.Ack == h.seq {
		h.unacked = nil
	}
	states, err := h.manager.State(ctx)
	if err != nil {
		return messaging.Message{}, err
	}

	if len(h.unacked) > 0 {
		h.logger.InfoContext(ctx, "resending unacknowledged policy states",
			"seq", h.seq, "ack", req.Ack, "policies", len(h.unacked))
		for name, state := range states {
			h.unacked[name] = state
		}
		states = h.unacked
	}
	h.seq++
	h.unacked = states

	return m.Reply(protocol.PolicyStateReply{
		Seq:         h.seq,
		PolicyState: states,
	})
}

func (h *Host) pullAll(ctx context.Context, m messaging.Message) (messaging.Message,
	error) {
	states, err := h.manager.Snapshot(ctx)
	if err != nil {
		return messaging.Message{}, err
	}
	return m.Reply(protocol.PolicyStateReply{PolicyState: states})
}
