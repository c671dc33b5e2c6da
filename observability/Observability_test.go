package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestMetricsRecordOnPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRoundTrip("collect_done", nil, time.Millisecond)
	m.ObserveRoundTrip("collect_done", errors.New("boom"), time.Millisecond)
	m.AddExperiences("P", 5)
	m.IncUpdates("P")
	m.SetVersion(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.roundTrips.WithLabelValues("collect_done", "error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.experiences.WithLabelValues("P")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.version))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRoundTrip("done", nil, 0)
		m.AddStale(1)
		m.SetDoneActors(1)
	})
}

func TestLoggerWithContextAddsTrace(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "json", slog.LevelDebug)

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	l.InfoContext(ctx, "hello", "k", 1)
	assert.Contains(t, buf.String(), `"trace_id"`)
	assert.Contains(t, buf.String(), `"k":1`)

	buf.Reset()
	l.Info("plain")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, _, err := NewLogger(LoggingConfig{Level: "loud"})
	assert.Error(t, err)

	l, closer, err := NewLogger(LoggingConfig{Level: "debug", Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, l)
	assert.NoError(t, closer.Close())
}

func TestSetupTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "test", TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
