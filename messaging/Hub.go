package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/samuelfneumann/distlearn/observability"
)

// Hub connects in-process endpoints. Messages are encoded exactly as on
// the wire, so no state is shared between sender and handler.
type Hub struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	closed   bool
	wg       sync.WaitGroup
	logger   *observability.Logger
}

// NewHub returns a Hub without endpoints
func NewHub(logger *observability.Logger) *Hub {
	return &Hub{
		handlers: make(map[string]Handler),
		logger:   observability.OrNop(logger).With("component", "hub"),
	}
}

// Register serves messages addressed to name with h
func (h *Hub) Register(name string, handler Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("register %v: %w", name, ErrClosed)
	}
	if _, ok := h.handlers[name]; ok {
		return fmt.Errorf("register %v: endpoint already registered", name)
	}
	h.handlers[name] = handler
	return nil
}

// Proxy returns a proxy speaking for the endpoint name. Every Send runs
// under timeout; a timeout <= 0 uses DefaultTimeout.
func (h *Hub) Proxy(name string, timeout time.Duration) *HubProxy {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HubProxy{hub: h, name: name, timeout: timeout}
}

// Close stops accepting messages and waits for every handler still
// running, including those whose caller timed out
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.wg.Wait()
	return nil
}

func (h *Hub) handler(name string) (Handler, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, ErrClosed
	}
	handler, ok := h.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownEndpoint, name)
	}
	return handler, nil
}

// spawn runs f in a goroutine Close waits for
func (h *Hub) spawn(f func()) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		f()
	}()
	return nil
}

// notify handles a notification in the background
func (h *Hub) notify(ctx context.Context, handler Handler, m Message) error {
	return h.spawn(func() {
		if _, err := handler.Handle(ctx, m); err != nil {
			h.logger.Warn("notification failed", "tag", m.Tag,
				"source", m.Source, "error", err)
		}
	})
}

// deliver re-decodes m as a receiver would see it off the wire
func deliver(m Message) (Message, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Message{}, err
	}
	var out Message
	if err := json.Unmarshal(data, &out); err != nil {
		return Message{}, err
	}
	return out, nil
}

// HubProxy is a Proxy over a Hub
type HubProxy struct {
	hub     *Hub
	name    string
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// Name implements the Proxy interface
func (p *HubProxy) Name() string {
	return p.name
}

// Peer implements the Proxy interface. On a Hub, roles are served by
// endpoints registered under the role name.
func (p *HubProxy) Peer(role string) (string, error) {
	if _, err := p.hub.handler(role); err != nil {
		return "", fmt.Errorf("%w %q", ErrNoPeer, role)
	}
	return role, nil
}

func (p *HubProxy) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Send implements the Proxy interface. The handler runs in its own
// goroutine; if the call times out its reply is discarded, and the
// handler still counts as in flight for Hub.Close.
func (p *HubProxy) Send(ctx context.Context, m Message) (Message, error) {
	if p.isClosed() {
		return Message{}, &Error{Op: "send", Tag: m.Tag, Err: ErrClosed}
	}
	m.Source, m.Session = p.name, Task

	handler, err := p.hub.handler(m.Destination)
	if err != nil {
		return Message{}, &Error{Op: "send", Tag: m.Tag, Err: err}
	}
	in, err := deliver(m)
	if err != nil {
		return Message{}, &Error{Op: "send", Tag: m.Tag, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		reply Message
		err   error
	}
	done := make(chan result, 1)
	err = p.hub.spawn(func() {
		reply, err := handler.Handle(ctx, in)
		if err != nil {
			reply = in.replyError(err)
		}
		reply, err = deliver(reply)
		done <- result{reply, err}
	})
	if err != nil {
		return Message{}, &Error{Op: "send", Tag: m.Tag, Err: err}
	}

	select {
	case <-ctx.Done():
		return Message{}, &Error{Op: "send", Tag: m.Tag, Err: ctxError(ctx)}
	case r := <-done:
		if r.err != nil {
			return Message{}, &Error{Op: "send", Tag: m.Tag, Err: r.err}
		}
		if err := replyErr(r.reply); err != nil {
			return Message{}, err
		}
		return r.reply, nil
	}
}

// SendNoWait implements the Proxy interface
func (p *HubProxy) SendNoWait(ctx context.Context, m Message) error {
	if p.isClosed() {
		return &Error{Op: "send_no_wait", Tag: m.Tag, Err: ErrClosed}
	}
	m.Source, m.Session = p.name, Notification

	handler, err := p.hub.handler(m.Destination)
	if err != nil {
		return &Error{Op: "send_no_wait", Tag: m.Tag, Err: err}
	}
	in, err := deliver(m)
	if err != nil {
		return &Error{Op: "send_no_wait", Tag: m.Tag, Err: err}
	}

	if err := p.hub.notify(context.WithoutCancel(ctx), handler, in); err != nil {
		return &Error{Op: "send_no_wait", Tag: m.Tag, Err: err}
	}
	return nil
}

// Close implements the Proxy interface
func (p *HubProxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
