package messaging

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTTPPair(t *testing.T, opts ...ServerOption) (*HTTPProxy,
	*httptest.Server) {
	t.Helper()

	server := NewHTTPServer("server", "", echo(), opts...)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	proxy, err := NewHTTPProxy(HTTPProxyConfig{
		Name:     "client",
		Resolver: NewResolver("", map[string]string{"server": ts.URL}),
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	return proxy, ts
}

func TestHTTPRoundTrip(t *testing.T) {
	proxy, _ := newHTTPPair(t)

	m, err := NewMessage("ping", "", "server", ping{N: 41})
	require.NoError(t, err)
	reply, err := proxy.Send(context.Background(), m)
	require.NoError(t, err)

	var p ping
	require.NoError(t, reply.Decode(&p))
	assert.Equal(t, 42, p.N)
	assert.Equal(t, "client", reply.Destination)

	m, err = NewMessage("fail", "", "server", nil)
	require.NoError(t, err)
	_, err = proxy.Send(context.Background(), m)
	assert.True(t, IsRemote(err))
}

func TestHTTPNotificationAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	proxy, ts := newHTTPPair(t, WithGatherer(reg))

	m, err := NewNotification("ping", "", "server", ping{})
	require.NoError(t, err)
	assert.NoError(t, proxy.SendNoWait(context.Background(), m))

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestHTTPWrongDestination(t *testing.T) {
	server := NewHTTPServer("server", "", echo())
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	proxy, err := NewHTTPProxy(HTTPProxyConfig{
		Name:     "client",
		Resolver: NewResolver("", map[string]string{"other": ts.URL}),
	})
	require.NoError(t, err)

	m, err := NewMessage("ping", "", "other", ping{})
	require.NoError(t, err)
	_, err = proxy.Send(context.Background(), m)
	assert.ErrorIs(t, err, ErrUnknownEndpoint)
}

func TestHTTPRetriesUnavailable(t *testing.T) {
	server := NewHTTPServer("server", "", echo())
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			server.Handler().ServeHTTP(w, r)
		}))
	defer ts.Close()

	newProxy := func(retries int) *HTTPProxy {
		proxy, err := NewHTTPProxy(HTTPProxyConfig{
			Name:          "client",
			Resolver:      NewResolver("", map[string]string{"server": ts.URL}),
			Timeout:       time.Second,
			MaxRetries:    retries,
			RetryInterval: time.Millisecond,
		})
		require.NoError(t, err)
		return proxy
	}

	m, err := NewMessage("ping", "", "server", ping{N: 1})
	require.NoError(t, err)

	_, err = newProxy(0).Send(context.Background(), m)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())

	reply, err := newProxy(3).Send(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	var p ping
	require.NoError(t, reply.Decode(&p))
	assert.Equal(t, 2, p.N)
}

func TestHTTPDoesNotRetryRemoteErrors(t *testing.T) {
	server := NewHTTPServer("server", "", echo())
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			server.Handler().ServeHTTP(w, r)
		}))
	defer ts.Close()

	proxy, err := NewHTTPProxy(HTTPProxyConfig{
		Name:          "client",
		Resolver:      NewResolver("", map[string]string{"server": ts.URL}),
		MaxRetries:    5,
		RetryInterval: time.Millisecond,
	})
	require.NoError(t, err)

	m, err := NewMessage("fail", "", "server", nil)
	require.NoError(t, err)
	_, err = proxy.Send(context.Background(), m)
	assert.True(t, IsRemote(err))
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, proxy.Close())
	_, err = proxy.Send(context.Background(), m)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHTTPNotificationsAreAcceptedBeforeHandling(t *testing.T) {
	release := make(chan struct{})
	var handled atomic.Int32
	server := NewHTTPServer("server", "", HandlerFunc(
		func(ctx context.Context, m Message) (Message, error) {
			<-release
			handled.Add(1)
			return Message{}, ctx.Err()
		}))
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	proxy, err := NewHTTPProxy(HTTPProxyConfig{
		Name:     "client",
		Resolver: NewResolver("", map[string]string{"server": ts.URL}),
		Timeout:  time.Second,
	})
	require.NoError(t, err)

	m, err := NewNotification("done", "", "server", nil)
	require.NoError(t, err)
	require.NoError(t, proxy.SendNoWait(context.Background(), m))
	assert.Zero(t, handled.Load())

	close(release)
	server.Wait()
	assert.Equal(t, int32(1), handled.Load())
}
