package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/samuelfneumann/distlearn/observability"
)

// HTTPProxyConfig configures an HTTPProxy
type HTTPProxyConfig struct {
	Name     string    // endpoint the proxy speaks for
	Resolver *Resolver // destination name to base URL

	// Timeout caps each attempt of a round trip; 0 uses DefaultTimeout
	Timeout time.Duration

	// MaxRetries bounds how often a transient failure is retried. With
	// 0, failures are returned immediately.
	MaxRetries    int
	RetryInterval time.Duration

	Client *http.Client
	Logger *observability.Logger
}

// HTTPProxy is a Proxy posting JSON messages to HTTPServers
type HTTPProxy struct {
	config HTTPProxyConfig
	client *http.Client
	logger *observability.Logger
	closed atomic.Bool
}

// NewHTTPProxy returns a new HTTPProxy
func NewHTTPProxy(c HTTPProxyConfig) (*HTTPProxy, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("new http proxy: name cannot be empty")
	}
	if c.Resolver == nil {
		return nil, fmt.Errorf("new http proxy: resolver cannot be nil")
	}
	if c.MaxRetries < 0 {
		return nil, fmt.Errorf("new http proxy: max retries must be >= 0")
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 100 * time.Millisecond
	}

	client := c.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProxy{
		config: c,
		client: client,
		logger: observability.OrNop(c.Logger).With("component", "http_proxy",
			"endpoint", c.Name),
	}, nil
}

// Name implements the Proxy interface
func (p *HTTPProxy) Name() string {
	return p.config.Name
}

// Peer implements the Proxy interface. Roles are served by endpoints
// named after the role.
func (p *HTTPProxy) Peer(role string) (string, error) {
	if _, err := p.config.Resolver.Resolve(role); err != nil {
		return "", err
	}
	return role, nil
}

// Send implements the Proxy interface
func (p *HTTPProxy) Send(ctx context.Context, m Message) (Message, error) {
	m.Source, m.Session = p.config.Name, Task
	return p.roundTrip(ctx, "send", m)
}

// SendNoWait implements the Proxy interface. The notification is
// delivered before SendNoWait returns but its handling is not awaited.
func (p *HTTPProxy) SendNoWait(ctx context.Context, m Message) error {
	m.Source, m.Session = p.config.Name, Notification
	_, err := p.roundTrip(ctx, "send_no_wait", m)
	return err
}

// Close implements the Proxy interface
func (p *HTTPProxy) Close() error {
	p.closed.Store(true)
	p.client.CloseIdleConnections()
	return nil
}

// roundTrip posts m, retrying transient failures with exponential
// backoff up to MaxRetries times
func (p *HTTPProxy) roundTrip(ctx context.Context, op string,
	m Message) (Message, error) {
	if p.closed.Load() {
		return Message{}, &Error{Op: op, Tag: m.Tag, Err: ErrClosed}
	}
	addr, err := p.config.Resolver.Resolve(m.Destination)
	if err != nil {
		return Message{}, &Error{Op: op, Tag: m.Tag, Err: err}
	}
	body, err := json.Marshal(m)
	if err != nil {
		return Message{}, &Error{Op: op, Tag: m.Tag, Err: err}
	}

	ctx, span := observability.Tracer().Start(ctx, op+" "+m.Tag,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("message.tag", m.Tag),
			attribute.String("message.destination", m.Destination),
		))
	defer span.End()

	attempt := func() (Message, error) {
		reply, err := p.post(ctx, addr, body)
		if err != nil && !IsTransient(err) {
			return Message{}, backoff.Permanent(err)
		}
		if err != nil {
			p.logger.Warn("round trip failed, retrying", "tag", m.Tag,
				"error", err)
		}
		return reply, err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.config.RetryInterval
	b := backoff.WithContext(
		backoff.WithMaxRetries(exp, uint64(p.config.MaxRetries)), ctx)

	reply, err := backoff.RetryWithData(attempt, b)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if IsRemote(err) {
			return Message{}, err
		}
		return Message{}, &Error{Op: op, Tag: m.Tag, Err: err}
	}
	return reply, nil
}

// post performs a single attempt of a round trip under the per-call
// timeout
func (p *HTTPProxy) post(ctx context.Context, addr string,
	body []byte) (Message, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	url := strings.TrimRight(addr, "/") + MessagePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		bytes.NewReader(body))
	if err != nil {
		return Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Message{}, ctxError(ctx)
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return Message{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Message{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return Message{}, ctxError(ctx)
		}
		return Message{}, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted:
		return Message{}, nil
	case http.StatusNotFound:
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownEndpoint, data)
	case http.StatusBadGateway, http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return Message{}, fmt.Errorf("%w: status %v", ErrUnavailable,
			resp.StatusCode)
	default:
		return Message{}, fmt.Errorf("unexpected status %v: %s",
			resp.StatusCode, data)
	}

	var reply Message
	if err := json.Unmarshal(data, &reply); err != nil {
		return Message{}, fmt.Errorf("malformed reply: %w", err)
	}
	if err := replyErr(reply); err != nil {
		return Message{}, err
	}
	return reply, nil
}
