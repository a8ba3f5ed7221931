package hub

import (
	"context"
	"time"

	"github.com/DoyleJ11/match3-backend/internal/engine"
	"github.com/DoyleJ11/match3-backend/internal/lobby"
)

func ask[T any](ctx context.Context, h *Hub, m HubMsg, reply <-chan T) (T, error) {
	var zero T
	select {
	case h.inbox <- m:
	case <-h.ctx.Done():
		return zero, engine.ErrSessionNotFound
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return zero, engine.ErrSessionNotFound
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Create registers a new session and returns its lobby.
func (h *Hub) Create(ctx context.Context, cfg engine.Config) (*lobby.Lobby, error) {
	reply := make(chan CreateResult, 1)
	res, err := ask(ctx, h, CreateSession{Config: cfg, Reply: reply}, reply)
	if err != nil {
		return nil, err
	}
	return res.Lobby, res.Err
}

// Get returns the lobby for id or ErrSessionNotFound.
func (h *Hub) Get(ctx context.Context, id string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	lb, err := ask(ctx, h, GetSession{ID: id, Reply: reply}, reply)
	if err != nil {
		return nil, err
	}
	if lb == nil {
		return nil, engine.ErrSessionNotFound
	}
	return lb, nil
}

// Remove deletes a session. Removing an unknown session is not an error.
func (h *Hub) Remove(ctx context.Context, id string) (bool, error) {
	reply := make(chan bool, 1)
	return ask(ctx, h, RemoveSession{ID: id, Reply: reply}, reply)
}

func (h *Hub) Bind(connID, playerID, sessionID string) {
	h.post(BindConn{ConnID: connID, PlayerID: playerID, SessionID: sessionID})
}

// Disconnect forgets connID and tells its session the player dropped.
func (h *Hub) Disconnect(ctx context.Context, connID string) error {
	reply := make(chan *lobby.Lobby, 1)
	lb, err := ask(ctx, h, UnbindConn{ConnID: connID, Reply: reply}, reply)
	if err != nil {
		return err
	}
	if lb != nil {
		lb.Leave(connID)
	}
	return nil
}

// Reconnect rebinds playerID to newConnID. An empty sessionID is resolved
// from the player index.
func (h *Hub) Reconnect(ctx context.Context, sessionID, playerID, newConnID string, out chan lobby.Envelope) (*lobby.Lobby, engine.PlayerView, error) {
	var lb *lobby.Lobby
	var err error
	if sessionID != "" {
		lb, err = h.Get(ctx, sessionID)
	} else {
		reply := make(chan *lobby.Lobby, 1)
		lb, err = ask(ctx, h, LookupPlayer{PlayerID: playerID, Reply: reply}, reply)
		if err == nil && lb == nil {
			err = engine.ErrPlayerNotFound
		}
	}
	if err != nil {
		return nil, engine.PlayerView{}, err
	}

	p, err := lb.ReconnectPlayer(ctx, playerID, newConnID, out)
	if err != nil {
		return nil, engine.PlayerView{}, err
	}
	h.Bind(newConnID, playerID, lb.ID())
	return lb, p, nil
}

// Sweep removes sessions that finished at least retention before now.
func (h *Hub) Sweep(ctx context.Context, now time.Time, retention time.Duration) ([]string, error) {
	reply := make(chan []string, 1)
	return ask(ctx, h, Sweep{Now: now, Retention: retention, Reply: reply}, reply)
}

func (h *Hub) Shutdown() {
	h.post(ShutdownHub{})
}
