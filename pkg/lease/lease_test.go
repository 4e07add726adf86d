package lease

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/entrhq/translator/pkg/kv"
	"github.com/entrhq/translator/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setup(t *testing.T) (*task.Store, *clock) {
	t.Helper()
	store := task.NewStore(kv.NewMemoryStore())
	c := &clock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	tk := task.New("https://example.com", []task.Block{{Key: "P:5:hello", SourceText: "hello"}}, c.now)
	require.NoError(t, store.Save(context.Background(), tk))
	return store, c
}

func TestNewSelfID(t *testing.T) {
	a, b := NewSelfID(), NewSelfID()
	assert.True(t, strings.HasPrefix(a, "tr_"))
	assert.NotEqual(t, a, b)
}

func TestDecide(t *testing.T) {
	now := time.UnixMilli(100_000)
	tests := []struct {
		name    string
		handler string
		beatAgo time.Duration
		want    Decision
	}{
		{name: "unset", handler: "", want: Claim},
		{name: "self", handler: "me", beatAgo: time.Second, want: Renew},
		{name: "self even when stale", handler: "me", beatAgo: time.Minute, want: Renew},
		{name: "other alive", handler: "other", beatAgo: 9 * time.Second, want: Held},
		{name: "other just under timeout", handler: "other", beatAgo: HeartbeatTimeout - time.Millisecond, want: Held},
		{name: "other at timeout", handler: "other", beatAgo: HeartbeatTimeout, want: Claim},
		{name: "other stale", handler: "other", beatAgo: time.Minute, want: Claim},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := &task.Task{HandlerID: tt.handler}
			tk.SetHeartbeat(now.Add(-tt.beatAgo))
			assert.Equal(t, tt.want, Decide(tk, "me", now, HeartbeatTimeout))
		})
	}
}

func TestDecide_OtherWithoutHeartbeatIsStale(t *testing.T) {
	tk := &task.Task{HandlerID: "other"}
	assert.Equal(t, Claim, Decide(tk, "me", time.Now(), HeartbeatTimeout))
}

func TestElector_ClaimsFreeLease(t *testing.T) {
	ctx := context.Background()
	store, c := setup(t)
	a := NewElector(store, "A", WithClock(c.Now))

	res, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, Claim, res.Decision)
	assert.True(t, res.Decision.Owns())
	assert.Empty(t, res.PreviousOwner)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", loaded.HandlerID)
	assert.Equal(t, c.Now().UnixMilli(), loaded.LastHeartbeat)
}

func TestElector_NoTask(t *testing.T) {
	e := NewElector(task.NewStore(kv.NewMemoryStore()), "A")
	_, err := e.Acquire(context.Background())
	assert.ErrorIs(t, err, task.ErrNoTask)
}

func TestElector_HeldWritesNothing(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemoryStore()
	store := task.NewStore(mem)
	c := &clock{now: time.UnixMilli(1_000_000)}
	require.NoError(t, store.Save(ctx, task.New("u", []task.Block{{SourceText: "hello"}}, c.now)))

	a := NewElector(store, "A", WithClock(c.Now))
	b := NewElector(store, "B", WithClock(c.Now))
	_, err := a.Acquire(ctx)
	require.NoError(t, err)
	writes := mem.Writes()

	res, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, Held, res.Decision)
	assert.Equal(t, "A", res.Task.HandlerID)
	assert.Equal(t, writes, mem.Writes())
}

// If A claims and then stops heartbeating, B may take over only once the full
// timeout has elapsed.
func TestElector_Liveness(t *testing.T) {
	ctx := context.Background()
	store, c := setup(t)
	a := NewElector(store, "A", WithClock(c.Now))
	b := NewElector(store, "B", WithClock(c.Now))

	_, err := a.Acquire(ctx)
	require.NoError(t, err)

	for elapsed := TickInterval; elapsed < HeartbeatTimeout; elapsed += TickInterval {
		c.Advance(TickInterval)
		res, err := b.Acquire(ctx)
		require.NoError(t, err)
		require.Equal(t, Held, res.Decision, "B took over after only %s", elapsed)
	}

	c.Advance(HeartbeatTimeout - 4*TickInterval - time.Millisecond)
	res, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, Held, res.Decision, "1ms before timeout")

	c.Advance(time.Millisecond)
	res, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, Claim, res.Decision)
	assert.Equal(t, "A", res.PreviousOwner)
	assert.Equal(t, "B", res.Task.HandlerID)
}

// While A heartbeats every tick, B never takes over.
func TestElector_MutualProgress(t *testing.T) {
	ctx := context.Background()
	store, c := setup(t)
	a := NewElector(store, "A", WithClock(c.Now))
	b := NewElector(store, "B", WithClock(c.Now))

	_, err := a.Acquire(ctx)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		c.Advance(TickInterval)
		res, err := b.Acquire(ctx)
		require.NoError(t, err)
		require.Equal(t, Held, res.Decision, "tick %d", i)

		res, err = a.Acquire(ctx)
		require.NoError(t, err)
		require.Equal(t, Renew, res.Decision, "tick %d", i)
	}
}

// Two instances that both observe a free lease both claim it; the later save
// wins and the loser finds out on its next tick.
func TestElector_DoubleClaimRaceResolvesToLastWriter(t *testing.T) {
	ctx := context.Background()
	store, c := setup(t)
	a := NewElector(store, "A", WithClock(c.Now))
	b := NewElector(store, "B", WithClock(c.Now))

	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Claim, Decide(snapshot, "A", c.Now(), HeartbeatTimeout))
	assert.Equal(t, Claim, Decide(snapshot, "B", c.Now(), HeartbeatTimeout))

	_, err = a.Acquire(ctx)
	require.NoError(t, err)
	// B's claim is modeled as a blind overwrite from the same stale snapshot.
	snapshot.HandlerID = "B"
	snapshot.SetHeartbeat(c.Now())
	require.NoError(t, store.Save(ctx, snapshot))

	c.Advance(TickInterval)
	res, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, Held, res.Decision, "A defers to the surviving claim")

	res, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, Renew, res.Decision)
}

func TestTickIsWellBelowTimeout(t *testing.T) {
	assert.LessOrEqual(t, 3*TickInterval, HeartbeatTimeout)
}
