package lobby

import (
	"context"

	"github.com/DoyleJ11/match3-backend/internal/engine"
)

// The helpers below wrap the inbox protocol for callers that want a
// synchronous answer. A lobby that has already exited answers
// ErrSessionNotFound.

func (l *Lobby) JoinPlayer(ctx context.Context, connID, nickname, playerID string, out chan Envelope) (engine.PlayerView, error) {
	reply := make(chan JoinResult, 1)
	if err := l.deliver(ctx, Join{ConnID: connID, Nickname: nickname, PlayerID: playerID, Outbox: out, Reply: reply}); err != nil {
		return engine.PlayerView{}, err
	}
	res, err := await(ctx, l, reply)
	if err != nil {
		return engine.PlayerView{}, err
	}
	return res.Player, res.Err
}

func (l *Lobby) ReconnectPlayer(ctx context.Context, playerID, connID string, out chan Envelope) (engine.PlayerView, error) {
	reply := make(chan JoinResult, 1)
	if err := l.deliver(ctx, Reconnect{PlayerID: playerID, ConnID: connID, Outbox: out, Reply: reply}); err != nil {
		return engine.PlayerView{}, err
	}
	res, err := await(ctx, l, reply)
	if err != nil {
		return engine.PlayerView{}, err
	}
	return res.Player, res.Err
}

func (l *Lobby) Do(ctx context.Context, connID string, cmd engine.Command) error {
	reply := make(chan error, 1)
	if err := l.deliver(ctx, FromClient{ConnID: connID, Cmd: cmd, Reply: reply}); err != nil {
		return err
	}
	res, err := await(ctx, l, reply)
	if err != nil {
		return err
	}
	return res
}

func (l *Lobby) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := l.deliver(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, l, reply)
}

// Leave reports a dropped connection without waiting.
func (l *Lobby) Leave(connID string) {
	l.post(Leave{ConnID: connID})
}

// Close stops the lobby. Safe to call more than once.
func (l *Lobby) Close() {
	l.post(Shutdown{})
}

func (l *Lobby) deliver(ctx context.Context, m Msg) error {
	select {
	case l.inbox <- m:
		return nil
	case <-l.done:
		return engine.ErrSessionNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, l *Lobby, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		// the reply may have been sent just before exit
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, engine.ErrSessionNotFound
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
