package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/distlearn/checkpointer"
	"github.com/samuelfneumann/distlearn/experience"
	"github.com/samuelfneumann/distlearn/manager"
	"github.com/samuelfneumann/distlearn/messaging"
	"github.com/samuelfneumann/distlearn/policy"
	"github.com/samuelfneumann/distlearn/protocol"
	"github.com/samuelfneumann/distlearn/timestep"
)

// counter is a trainable policy whose state is its number of updates
type counter struct {
	name    string
	mem     *experience.Memory
	updates int
}

func newCounter(t *testing.T, name string) *counter {
	t.Helper()
	mem, err := experience.NewMemory(name, 0)
	require.NoError(t, err)
	return &counter{name: name, mem: mem}
}

func (c *counter) Name() string                          { return c.name }
func (c *counter) Capabilities() policy.Capability       { return policy.Trainable }
func (c *counter) SelectAction(mat.Vector) *mat.VecDense { return mat.NewVecDense(1, nil) }
func (c *counter) Explore()                              {}
func (c *counter) Exploit()                              {}
func (c *counter) IsExploring() bool                     { return true }
func (c *counter) SetState(policy.State) error           { return nil }
func (c *counter) Memory() *experience.Memory            { return c.mem }

func (c *counter) Update() error {
	c.mem.Drain()
	c.updates++
	return nil
}

func (c *counter) State() (policy.State, error) {
	params, err := json.Marshal(c.updates)
	return policy.State{Kind: "counter", Params: params}, err
}

func updatesOf(t *testing.T, s policy.State) int {
	t.Helper()
	var n int
	require.NoError(t, json.Unmarshal(s.Params, &n))
	return n
}

func records(n int) experience.Batch {
	out := make([]timestep.Transition, n)
	for i := range out {
		out[i] = timestep.Transition{
			State:     mat.NewVecDense(1, []float64{1}),
			Action:    mat.NewVecDense(1, []float64{0}),
			NextState: mat.NewVecDense(1, []float64{1}),
		}
	}
	return experience.NewBatch("", out...)
}

type harness struct {
	server *Server
	hub    *messaging.Hub
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	m, err := manager.NewLocal([]policy.Policy{
		newCounter(t, "A"),
		newCounter(t, "B"),
	}, manager.WithTriggers(map[string]manager.Trigger{
		"A": {MinNewExperiences: 1, NumWarmupExperiences: 1},
		"B": {MinNewExperiences: 1, NumWarmupExperiences: 1},
	}))
	require.NoError(t, err)

	s, err := New(context.Background(), m, opts...)
	require.NoError(t, err)

	hub := messaging.NewHub(nil)
	t.Cleanup(func() { hub.Close() })
	require.NoError(t, hub.Register(messaging.RoleAuthority, s))
	return &harness{server: s, hub: hub}
}

func (h *harness) collect(t *testing.T, actor string, version int64,
	byPolicy map[string]experience.Batch) protocol.CollectDoneReply {
	t.Helper()

	proxy := h.hub.Proxy(actor, time.Second)
	m, err := messaging.NewMessage(protocol.TagCollectDone, actor,
		messaging.RoleAuthority, protocol.CollectDoneRequest{
			Experiences: byPolicy,
			Version:     version,
		})
	require.NoError(t, err)
	reply, err := proxy.Send(context.Background(), m)
	require.NoError(t, err)

	var out protocol.CollectDoneReply
	require.NoError(t, reply.Decode(&out))
	return out
}

func TestInitialState(t *testing.T) {
	h := newHarness(t)

	proxy := h.hub.Proxy(messaging.ActorName(0), time.Second)
	m, err := messaging.NewMessage(protocol.TagGetInitialPolicyState,
		proxy.Name(), messaging.RoleAuthority, nil)
	require.NoError(t, err)
	reply, err := proxy.Send(context.Background(), m)
	require.NoError(t, err)

	var out protocol.InitialStateReply
	require.NoError(t, reply.Decode(&out))
	assert.Zero(t, out.Version)
	assert.Len(t, out.PolicyState, 2)
}

func TestVersionsAdvanceOncePerDrain(t *testing.T) {
	h := newHarness(t)

	r := h.collect(t, "actor.0", 0, map[string]experience.Batch{
		"A": records(2),
		"B": records(1),
	})
	assert.Equal(t, int64(1), r.Version)
	assert.Len(t, r.PolicyState, 2)

	r = h.collect(t, "actor.0", 1, nil)
	assert.Equal(t, int64(1), r.Version)
	assert.Empty(t, r.PolicyState)

	r = h.collect(t, "actor.0", 1, map[string]experience.Batch{"A": records(1)})
	assert.Equal(t, int64(2), r.Version)
	require.Contains(t, r.PolicyState, "A")
	assert.Equal(t, 2, updatesOf(t, r.PolicyState["A"]))
	assert.Equal(t, int64(2), h.server.Version())
}

func TestOtherActorsReceiveChanges(t *testing.T) {
	h := newHarness(t)

	h.collect(t, "actor.0", 0, map[string]experience.Batch{"A": records(1)})
	h.collect(t, "actor.0", 1, map[string]experience.Batch{"B": records(1)})

	r := h.collect(t, "actor.1", 0, nil)
	assert.Equal(t, int64(2), r.Version)
	assert.Len(t, r.PolicyState, 2)

	r = h.collect(t, "actor.2", 1, nil)
	assert.Len(t, r.PolicyState, 1)
	assert.Contains(t, r.PolicyState, "B")
}

func TestMaxLagDiscardsStaleExperience(t *testing.T) {
	h := newHarness(t, WithMaxLag(0))

	h.collect(t, "actor.0", 0, map[string]experience.Batch{"A": records(1)})

	r := h.collect(t, "actor.1", 0, map[string]experience.Batch{"B": records(3)})
	assert.Equal(t, int64(1), r.Version, "stale experience causes no update")
	assert.Len(t, r.PolicyState, 1)
	assert.Contains(t, r.PolicyState, "A")

	r = h.collect(t, "actor.1", 1, map[string]experience.Batch{"B": records(3)})
	assert.Equal(t, int64(2), r.Version)
	assert.Contains(t, r.PolicyState, "B")
}

func TestVersionAheadIsRejected(t *testing.T) {
	h := newHarness(t)

	proxy := h.hub.Proxy("actor.0", time.Second)
	m, err := messaging.NewMessage(protocol.TagCollectDone, "actor.0",
		messaging.RoleAuthority, protocol.CollectDoneRequest{Version: 5})
	require.NoError(t, err)
	_, err = proxy.Send(context.Background(), m)
	assert.True(t, messaging.IsRemote(err))
}

func TestDoneClosesAfterAllActors(t *testing.T) {
	h := newHarness(t, WithNumActors(2))

	notify := func(actor string) {
		proxy := h.hub.Proxy(actor, time.Second)
		m, err := messaging.NewNotification(protocol.TagDone, actor,
			messaging.RoleAuthority, nil)
		require.NoError(t, err)
		require.NoError(t, proxy.SendNoWait(context.Background(), m))
	}

	notify("actor.0")
	notify("actor.0")
	assert.Eventually(t, func() bool {
		return len(h.server.Finished()) == 1
	}, time.Second, time.Millisecond)
	select {
	case <-h.server.Done():
		t.Fatal("done closed before every actor finished")
	default:
	}

	notify("actor.1")
	select {
	case <-h.server.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed")
	}
	assert.Equal(t, []string{"actor.0", "actor.1"}, h.server.Finished())
}

func TestCheckpointsOnVersionBump(t *testing.T) {
	dir := t.TempDir()
	c, err := checkpointer.NewNStep(1,
		checkpointer.FileVersion(filepath.Join(dir, "ckpt"), ".bin"))
	require.NoError(t, err)
	h := newHarness(t, WithCheckpointer(c))

	h.collect(t, "actor.0", 0, map[string]experience.Batch{"A": records(1)})

	saved, err := checkpointer.Load(filepath.Join(dir, "ckpt-v1.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)
	assert.Len(t, saved.States, 2)
	assert.Equal(t, 1, updatesOf(t, saved.States["A"]))
}
