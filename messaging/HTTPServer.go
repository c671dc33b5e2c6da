package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/samuelfneumann/distlearn/observability"
)

// MessagePath is the route messages are posted to
const MessagePath = "/v1/messages"

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// HTTPServer serves a Handler for the endpoint name over HTTP
type HTTPServer struct {
	name    string
	handler Handler
	engine  *gin.Engine
	server  *http.Server
	logger  *observability.Logger

	// notifications still being handled after their 202
	inflight sync.WaitGroup
}

// ServerOption configures an HTTPServer
type ServerOption func(*HTTPServer)

// WithGatherer serves the metrics of g at /metrics
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *HTTPServer) {
		s.engine.GET("/metrics",
			gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}
}

// WithServerLogger sets the logger of the server
func WithServerLogger(l *observability.Logger) ServerOption {
	return func(s *HTTPServer) {
		s.logger = l
	}
}

// NewHTTPServer returns a server for the endpoint name listening on addr
func NewHTTPServer(name, addr string, h Handler,
	opts ...ServerOption) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &HTTPServer{
		name:    name,
		handler: h,
		engine:  engine,
		logger:  observability.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "http_server", "endpoint", name)

	engine.POST(MessagePath, s.handleMessage)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "endpoint": s.name})
	})

	s.server = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the http.Handler of the server
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully. Shutdown
// waits for accepted notifications to be handled.
func (s *HTTPServer) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.server.Addr)
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve %v: %w", s.name, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %v: %w", s.name, err)
	}
	s.Wait()
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %v: %w", s.name, err)
	}
	return nil
}

func (s *HTTPServer) handleMessage(c *gin.Context) {
	var m Message
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if m.Destination != s.name {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("%v %q", ErrUnknownEndpoint, m.Destination),
		})
		return
	}

	ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(),
		propagation.HeaderCarrier(c.Request.Header))

	if m.Session == Notification {
		ctx = context.WithoutCancel(ctx)
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			if _, err := s.handle(ctx, m); err != nil {
				s.logger.WarnContext(ctx, "notification failed", "tag", m.Tag,
					"source", m.Source, "error", err)
			}
		}()
		c.Status(http.StatusAccepted)
		return
	}

	reply, err := s.handle(ctx, m)
	if err != nil {
		reply = m.replyError(err)
	}
	c.JSON(http.StatusOK, reply)
}

// handle runs the handler of the server inside a server span
func (s *HTTPServer) handle(ctx context.Context, m Message) (Message, error) {
	ctx, span := observability.Tracer().Start(ctx, "handle "+m.Tag,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("message.tag", m.Tag),
			attribute.String("message.source", m.Source),
		))
	defer span.End()

	reply, err := s.handler.Handle(ctx, m)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return reply, err
}

// Wait blocks until every accepted notification has been handled
func (s *HTTPServer) Wait() {
	s.inflight.Wait()
}
