package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samuelfneumann/distlearn/experience"
	"github.com/samuelfneumann/distlearn/messaging"
	"github.com/samuelfneumann/distlearn/policy"
	"github.com/samuelfneumann/distlearn/protocol"
)

// Remote is a Manager whose policies live behind a Host. Policy names
// are fetched once by NewRemote and never change afterwards.
type Remote struct {
	proxy messaging.Proxy
	host  string
	names []string
	known map[string]struct{}

	mu    sync.Mutex
	acked int64
}

// NewRemote returns a Remote for the Host serving the policy host role
// of proxy
func NewRemote(ctx context.Context, proxy messaging.Proxy) (*Remote, error) {
	host, err := proxy.Peer(messaging.RolePolicyHost)
	if err != nil {
		return nil, fmt.Errorf("new remote manager: %w", err)
	}
	r := &Remote{proxy: proxy, host: host}

	var reply protocol.ListPoliciesReply
	if err := r.call(ctx, protocol.TagListPolicies, nil, &reply); err != nil {
		return nil, fmt.Errorf("new remote manager: %w", err)
	}
	r.names = append([]string(nil), reply.Names...)
	sort.Strings(r.names)
	r.known = make(map[string]struct{}, len(r.names))
	for _, name := range r.names {
		r.known[name] = struct{}{}
	}
	return r, nil
}

// Names implements the Manager interface
func (r *Remote) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Submit implements the Manager interface. Unknown policies are
// rejected before any message is sent.
func (r *Remote) Submit(ctx context.Context,
	byPolicy map[string]experience.Batch) error {
	for name := range byPolicy {
		if _, ok := r.known[name]; !ok {
			return fmt.Errorf("submit: %w %q", ErrUnknownPolicy, name)
		}
	}
	req := protocol.SubmitExperiencesRequest{Experiences: byPolicy}
	if err := r.call(ctx, protocol.TagSubmitExperiences, req, nil); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

// State implements the Manager interface. Each call acknowledges the
// reply of the previous successful call; if a reply is lost, its states
// are returned again by the next call.
func (r *Remote) State(ctx context.Context) (map[string]policy.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req := protocol.PullPolicyStateRequest{Ack: r.acked}
	var reply protocol.PolicyStateReply
	if err := r.call(ctx, protocol.TagPullPolicyState, req, &reply); err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	r.acked = reply.Seq
	return orEmpty(reply.PolicyState), nil
}

// Snapshot implements the Manager interface
func (r *Remote) Snapshot(ctx context.Context) (map[string]policy.State, error) {
	var reply protocol.PolicyStateReply
	if err := r.call(ctx, protocol.TagPullAllPolicyStates, nil,
		&reply); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return orEmpty(reply.PolicyState), nil
}

// call performs a round trip to the host, decoding the reply into out
// unless out is nil
func (r *Remote) call(ctx context.Context, tag string, body,
	out interface{}) error {
	m, err := messaging.NewMessage(tag, r.proxy.Name(), r.host, body)
	if err != nil {
		return err
	}
	reply, err := r.proxy.Send(ctx, m)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return reply.Decode(out)
}

func orEmpty(states map[string]policy.State) map[string]policy.State {
	if states == nil {
		return make(map[string]policy.State)
	}
	return states
}
