package messaging

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTimeout is wrapped when a round trip outlives its timeout
	ErrTimeout = errors.New("round trip timed out")

	// ErrClosed is wrapped when sending on a closed proxy or hub
	ErrClosed = errors.New("messaging endpoint closed")

	// ErrNoPeer is wrapped when a role cannot be resolved to an endpoint
	ErrNoPeer = errors.New("no peer for role")

	// ErrUnknownEndpoint is wrapped when a destination is not served
	ErrUnknownEndpoint = errors.New("unknown endpoint")

	// ErrUnknownTag is returned by a Mux for tags it does not serve
	ErrUnknownTag = errors.New("unknown message tag")

	// ErrUnavailable is wrapped when a peer could not be reached, so the
	// message was never handled
	ErrUnavailable = errors.New("peer unavailable")
)

// Error is a transport failure of a single operation
type Error struct {
	Op  string // send, send_no_wait
	Tag string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v %v: %v", e.Op, e.Tag, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// RemoteError is a failure reported by the handler of a message
type RemoteError struct {
	Tag     string
	Source  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%v handled by %v: %v", e.Tag, e.Source, e.Message)
}

// IsTimeout returns whether err is a round-trip timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsTransient returns whether err reports a message that was never
// handled, so that sending it again cannot duplicate its effect.
// Timeouts and remote errors are not transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsRemote returns whether err was reported by the remote handler
func IsRemote(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote)
}

// ctxError maps the error of a done context to the messaging errors
func ctxError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
	return ctx.Err()
}

// replyErr converts a reply carrying an error into a *RemoteError
func replyErr(reply Message) error {
	if reply.Error == "" {
		return nil
	}
	return &RemoteError{Tag: reply.Tag, Source: reply.Source,
		Message: reply.Error}
}
