// Package messaging carries tagged request/reply and notification
// messages between named endpoints. Proxy is the client side used by
// actors and the policy authority; Handler is the serving side.
// Transports are an in-process Hub and JSON over HTTP.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Session tells whether a message expects a reply
type Session string

const (
	// Task messages are round trips answered by exactly one reply
	Task Session = "task"

	// Notification messages are fire-and-forget
	Notification Session = "notification"
)

// Message is the envelope exchanged between endpoints
type Message struct {
	ID          string          `json:"id"`
	Tag         string          `json:"tag"`
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	Session     Session         `json:"session"`
	Body        json.RawMessage `json:"body,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// NewMessage returns a Task message carrying body encoded as JSON. A
// nil body leaves the message empty.
func NewMessage(tag, source, destination string, body interface{}) (Message,
	error) {
	m := Message{
		ID:          uuid.NewString(),
		Tag:         tag,
		Source:      source,
		Destination: destination,
		Session:     Task,
	}
	if err := m.encode(body); err != nil {
		return Message{}, err
	}
	return m, nil
}

// NewNotification returns a Notification message carrying body
func NewNotification(tag, source, destination string,
	body interface{}) (Message, error) {
	m, err := NewMessage(tag, source, destination, body)
	if err != nil {
		return Message{}, err
	}
	m.Session = Notification
	return m, nil
}

// Decode decodes the body of the message into v
func (m Message) Decode(v interface{}) error {
	if len(m.Body) == 0 {
		return fmt.Errorf("decode %v: empty body", m.Tag)
	}
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("decode %v: %w", m.Tag, err)
	}
	return nil
}

// Reply returns the reply to m carrying body
func (m Message) Reply(body interface{}) (Message, error) {
	r := Message{
		ID:          m.ID,
		Tag:         m.Tag,
		Source:      m.Destination,
		Destination: m.Source,
		Session:     m.Session,
	}
	if err := r.encode(body); err != nil {
		return Message{}, err
	}
	return r, nil
}

// replyError returns the reply to m reporting err
func (m Message) replyError(err error) Message {
	return Message{
		ID:          m.ID,
		Tag:         m.Tag,
		Source:      m.Destination,
		Destination: m.Source,
		Session:     m.Session,
		Error:       err.Error(),
	}
}

func (m *Message) encode(body interface{}) error {
	if body == nil {
		return nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %v: %w", m.Tag, err)
	}
	m.Body = data
	return nil
}

// Handler serves messages addressed to an endpoint. For Task messages
// the returned Message is the reply; for Notifications it is ignored.
// A returned error travels back to the sender as a *RemoteError.
type Handler interface {
	Handle(ctx context.Context, m Message) (Message, error)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, m Message) (Message, error)

// Handle calls f(ctx, m)
func (f HandlerFunc) Handle(ctx context.Context, m Message) (Message, error) {
	return f(ctx, m)
}

// Mux dispatches messages to handlers by tag
type Mux struct {
	handlers map[string]Handler
}

// NewMux returns an empty Mux
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

// HandleTag registers h for tag
func (x *Mux) HandleTag(tag string, h Handler) {
	x.handlers[tag] = h
}

// Handle implements the Handler interface
func (x *Mux) Handle(ctx context.Context, m Message) (Message, error) {
	h, ok := x.handlers[m.Tag]
	if !ok {
		return Message{}, fmt.Errorf("%w %q", ErrUnknownTag, m.Tag)
	}
	return h.Handle(ctx, m)
}

// Proxy is the client side of an endpoint
type Proxy interface {
	// Name returns the name of the endpoint the proxy speaks for
	Name() string

	// Peer resolves a role to the name of the endpoint serving it
	Peer(role string) (string, error)

	// Send delivers a Task message and blocks until its reply arrives,
	// the per-call timeout expires or ctx is done
	Send(ctx context.Context, m Message) (Message, error)

	// SendNoWait delivers a Notification without waiting for it to be
	// handled
	SendNoWait(ctx context.Context, m Message) error

	// Close releases the proxy. Sending on a closed proxy returns
	// ErrClosed.
	Close() error
}
