package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct {
	N int `json:"n"`
}

func echo() Handler {
	mux := NewMux()
	mux.HandleTag("ping", HandlerFunc(func(_ context.Context, m Message) (Message, error) {
		var p ping
		if err := m.Decode(&p); err != nil {
			return Message{}, err
		}
		return m.Reply(ping{N: p.N + 1})
	}))
	mux.HandleTag("fail", HandlerFunc(func(context.Context, Message) (Message, error) {
		return Message{}, errors.New("boom")
	}))
	mux.HandleTag("slow", HandlerFunc(func(ctx context.Context, m Message) (Message, error) {
		<-ctx.Done()
		return Message{}, ctx.Err()
	}))
	return mux
}

func TestHubRoundTrip(t *testing.T) {
	hub := NewHub(nil)
	require.NoError(t, hub.Register("server", echo()))
	proxy := hub.Proxy("client", time.Second)

	m, err := NewMessage("ping", "", "server", ping{N: 1})
	require.NoError(t, err)
	reply, err := proxy.Send(context.Background(), m)
	require.NoError(t, err)

	var p ping
	require.NoError(t, reply.Decode(&p))
	assert.Equal(t, 2, p.N)
	assert.Equal(t, m.ID, reply.ID)
	assert.Equal(t, "server", reply.Source)
	assert.Equal(t, "client", reply.Destination)

	peer, err := proxy.Peer("server")
	require.NoError(t, err)
	assert.Equal(t, "server", peer)
	_, err = proxy.Peer("nobody")
	assert.ErrorIs(t, err, ErrNoPeer)
}

func TestHubErrors(t *testing.T) {
	hub := NewHub(nil)
	require.NoError(t, hub.Register("server", echo()))
	assert.Error(t, hub.Register("server", echo()))
	proxy := hub.Proxy("client", 20*time.Millisecond)
	ctx := context.Background()

	m, err := NewMessage("fail", "", "server", nil)
	require.NoError(t, err)
	_, err = proxy.Send(ctx, m)
	require.Error(t, err)
	assert.True(t, IsRemote(err))
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "boom")

	m, err = NewMessage("unknown", "", "server", nil)
	require.NoError(t, err)
	_, err = proxy.Send(ctx, m)
	assert.True(t, IsRemote(err))
	assert.Contains(t, err.Error(), ErrUnknownTag.Error())

	m, err = NewMessage("slow", "", "server", nil)
	require.NoError(t, err)
	_, err = proxy.Send(ctx, m)
	assert.True(t, IsTimeout(err))

	m, err = NewMessage("ping", "", "elsewhere", ping{})
	require.NoError(t, err)
	_, err = proxy.Send(ctx, m)
	assert.ErrorIs(t, err, ErrUnknownEndpoint)

	require.NoError(t, proxy.Close())
	_, err = proxy.Send(ctx, m)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHubNotification(t *testing.T) {
	hub := NewHub(nil)
	var handled atomic.Int32
	require.NoError(t, hub.Register("server", HandlerFunc(
		func(_ context.Context, m Message) (Message, error) {
			assert.Equal(t, Notification, m.Session)
			handled.Add(1)
			return Message{}, nil
		})))
	proxy := hub.Proxy("client", 0)

	m, err := NewNotification("done", "", "server", nil)
	require.NoError(t, err)
	require.NoError(t, proxy.SendNoWait(context.Background(), m))
	require.NoError(t, hub.Close())
	assert.Equal(t, int32(1), handled.Load())

	assert.ErrorIs(t, proxy.SendNoWait(context.Background(), m), ErrClosed)
}

func TestHubCloseWaitsForTimedOutHandlers(t *testing.T) {
	hub := NewHub(nil)
	var finished atomic.Bool
	require.NoError(t, hub.Register("server", HandlerFunc(
		func(_ context.Context, m Message) (Message, error) {
			time.Sleep(50 * time.Millisecond)
			finished.Store(true)
			return m.Reply(nil)
		})))
	proxy := hub.Proxy("client", 5*time.Millisecond)

	m, err := NewMessage("work", "", "server", nil)
	require.NoError(t, err)
	_, err = proxy.Send(context.Background(), m)
	require.True(t, IsTimeout(err))
	assert.False(t, finished.Load())

	require.NoError(t, hub.Close())
	assert.True(t, finished.Load())

	_, err = proxy.Send(context.Background(), m)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestResolver(t *testing.T) {
	r := NewResolver("exp", map[string]string{
		RolePolicyHost: "http://localhost:9000",
	})

	addr, err := r.Resolve(RolePolicyHost)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", addr)

	addr, err = r.Resolve(RoleAuthority)
	require.NoError(t, err)
	assert.Equal(t, "http://exp-policy-server:7070", addr)

	_, err = r.Resolve(ActorName(3))
	assert.ErrorIs(t, err, ErrNoPeer)
	assert.Equal(t, "actor.3", ActorName(3))
}
