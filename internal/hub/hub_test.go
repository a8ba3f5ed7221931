package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/match3-backend/internal/engine"
	"github.com/DoyleJ11/match3-backend/internal/lobby"
	"github.com/DoyleJ11/match3-backend/internal/store"
	"github.com/DoyleJ11/match3-backend/internal/timer"
)

func newTestHub(t *testing.T, unit time.Duration) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, Deps{
		Timers:   timer.NewCoordinator(nil, unit),
		Store:    store.NewMemory(),
		Defaults: engine.Config{Rows: 6, Cols: 6, LobbyTimeoutSec: 120, TargetScore: 500},
	})
}

func scoreAttack(maxPlayers int) engine.Config {
	return engine.Config{Mode: engine.ModeScoreAttack, MaxPlayers: maxPlayers}
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := newTestHub(t, time.Second)
	reply := make(chan CreateResult, 1)

	h.Inbox() <- CreateSession{Config: scoreAttack(2), Reply: reply}
	res := <-reply
	require.NoError(t, res.Err)
	lb1 := res.Lobby

	get := make(chan *lobby.Lobby, 1)
	h.Inbox() <- GetSession{ID: lb1.ID(), Reply: get}
	lb2 := <-get

	if lb1 == nil || lb2 == nil || lb1 != lb2 {
		t.Fatalf("expected same lobby pointer")
	}
	assert.Len(t, lb1.ID(), 6)
}

func TestHub_Create_AppliesDefaults(t *testing.T) {
	h := newTestHub(t, time.Second)
	ctx := context.Background()

	lb, err := h.Create(ctx, scoreAttack(3))
	require.NoError(t, err)

	view, err := lb.State(ctx)
	require.NoError(t, err)
	cfg := view.Session.Config
	assert.Equal(t, 6, cfg.Rows)
	assert.Equal(t, 6, cfg.Cols)
	assert.Equal(t, 500, cfg.TargetScore)
	assert.Equal(t, "classic", cfg.Theme)
	assert.Equal(t, engine.PhaseWaiting, view.Session.Phase)
}

func TestHub_Create_RejectsBadConfig(t *testing.T) {
	h := newTestHub(t, time.Second)

	_, err := h.Create(context.Background(), engine.Config{Mode: engine.ModeTimeAttack, MaxPlayers: 2})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)

	_, err = h.Create(context.Background(), engine.Config{Mode: engine.ModeScoreAttack, MaxPlayers: 2, Theme: "neon"})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestHub_Remove_IsIdempotent(t *testing.T) {
	h := newTestHub(t, time.Second)
	ctx := context.Background()

	lb, err := h.Create(ctx, scoreAttack(2))
	require.NoError(t, err)

	removed, err := h.Remove(ctx, lb.ID())
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = h.Remove(ctx, lb.ID())
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = h.Get(ctx, lb.ID())
	assert.ErrorIs(t, err, engine.ErrSessionNotFound)

	select {
	case <-lb.Done():
	case <-time.After(time.Second):
		t.Fatalf("removed lobby still running")
	}
}

func TestHub_Disconnect_RoutesToSession(t *testing.T) {
	h := newTestHub(t, time.Second)
	ctx := context.Background()

	lb, err := h.Create(ctx, scoreAttack(3))
	require.NoError(t, err)

	for _, name := range []string{"a", "b"} {
		_, err := lb.JoinPlayer(ctx, "c-"+name, name, "p-"+name, make(chan lobby.Envelope, 32))
		require.NoError(t, err)
		h.Bind("c-"+name, "p-"+name, lb.ID())
	}

	require.NoError(t, h.Disconnect(ctx, "c-a"))
	require.NoError(t, h.Disconnect(ctx, "c-unknown"))

	assert.Eventually(t, func() bool {
		v, err := lb.State(ctx)
		return err == nil && len(v.Session.Players) == 1 && v.Session.HostID == "p-b"
	}, time.Second, 5*time.Millisecond)
}

func TestHub_Reconnect_ByPlayerIndex(t *testing.T) {
	h := newTestHub(t, time.Second)
	ctx := context.Background()

	lb, err := h.Create(ctx, scoreAttack(2))
	require.NoError(t, err)
	for _, name := range []string{"a", "b"} {
		_, err := lb.JoinPlayer(ctx, "c-"+name, name, "p-"+name, make(chan lobby.Envelope, 32))
		require.NoError(t, err)
		h.Bind("c-"+name, "p-"+name, lb.ID())
	}
	require.NoError(t, h.Disconnect(ctx, "c-a"))

	got, p, err := h.Reconnect(ctx, "", "p-a", "c-a2", make(chan lobby.Envelope, 32))
	require.NoError(t, err)
	assert.Same(t, lb, got)
	assert.True(t, p.Connected)

	_, _, err = h.Reconnect(ctx, "", "p-ghost", "c-z", make(chan lobby.Envelope, 1))
	assert.ErrorIs(t, err, engine.ErrPlayerNotFound)

	_, _, err = h.Reconnect(ctx, "NOPE00", "p-a", "c-z", make(chan lobby.Envelope, 1))
	assert.ErrorIs(t, err, engine.ErrSessionNotFound)
}

func TestHub_Sweep_ReapsFinishedAfterRetention(t *testing.T) {
	h := newTestHub(t, time.Second)
	ctx := context.Background()

	done, err := h.Create(ctx, scoreAttack(2))
	require.NoError(t, err)
	open, err := h.Create(ctx, scoreAttack(2))
	require.NoError(t, err)

	// both players drop, which finishes the session
	for _, name := range []string{"a", "b"} {
		_, err := done.JoinPlayer(ctx, "c-"+name, name, "p-"+name, make(chan lobby.Envelope, 32))
		require.NoError(t, err)
		h.Bind("c-"+name, "p-"+name, done.ID())
	}
	require.NoError(t, h.Disconnect(ctx, "c-a"))
	require.NoError(t, h.Disconnect(ctx, "c-b"))

	require.Eventually(t, func() bool {
		v, err := done.State(ctx)
		return err == nil && v.Session.Phase == engine.PhaseFinished
	}, time.Second, 5*time.Millisecond)

	// finished sessions stay until retention has passed
	var reaped []string
	require.Eventually(t, func() bool {
		reaped, err = h.Sweep(ctx, time.Now().Add(time.Hour), time.Minute)
		return err == nil && len(reaped) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{done.ID()}, reaped)

	_, err = h.Get(ctx, done.ID())
	assert.ErrorIs(t, err, engine.ErrSessionNotFound)
	_, err = h.Get(ctx, open.ID())
	assert.NoError(t, err)

	reaped, err = h.Sweep(ctx, time.Now(), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, reaped)
}

func TestHub_SelfClosedLobbyLeavesRegistry(t *testing.T) {
	h := newTestHub(t, 5*time.Millisecond)
	ctx := context.Background()

	cfg := scoreAttack(3)
	cfg.LobbyTimeoutSec = 2
	lb, err := h.Create(ctx, cfg)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := h.Get(ctx, lb.ID())
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestHub_Shutdown_ClosesLobbies(t *testing.T) {
	h := newTestHub(t, time.Second)
	ctx := context.Background()

	lb, err := h.Create(ctx, scoreAttack(2))
	require.NoError(t, err)

	h.Shutdown()
	select {
	case <-lb.Done():
	case <-time.After(time.Second):
		t.Fatalf("lobby survived hub shutdown")
	}

	_, err = h.Get(ctx, lb.ID())
	assert.ErrorIs(t, err, engine.ErrSessionNotFound)
}
