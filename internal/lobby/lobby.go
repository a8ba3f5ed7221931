package lobby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/match3-backend/internal/board"
	"github.com/DoyleJ11/match3-backend/internal/engine"
	"github.com/DoyleJ11/match3-backend/internal/store"
	"github.com/DoyleJ11/match3-backend/internal/timer"
	"github.com/DoyleJ11/match3-backend/internal/validator"
)

type Msg interface{ isLobbyMsg() }

type Join struct {
	ConnID   string
	Nickname string
	PlayerID string
	Outbox   chan Envelope // where this client wants to receive envelopes
	Reply    chan JoinResult
}

type Reconnect struct {
	PlayerID string
	ConnID   string
	Outbox   chan Envelope
	Reply    chan JoinResult
}

type JoinResult struct {
	Player engine.PlayerView
	Err    error
}

// Leave is a dropped connection.
type Leave struct{ ConnID string }

type FromClient struct {
	ConnID string
	Cmd    engine.Command
	Reply  chan error
}

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

type timerTick struct {
	seq  uint64
	left int
}

type timerExpired struct{ seq uint64 }

func (Join) isLobbyMsg()         {}
func (Reconnect) isLobbyMsg()    {}
func (Leave) isLobbyMsg()        {}
func (FromClient) isLobbyMsg()   {}
func (GetState) isLobbyMsg()     {}
func (Shutdown) isLobbyMsg()     {}
func (timerTick) isLobbyMsg()    {}
func (timerExpired) isLobbyMsg() {}

// EvtSnapshot is sent to a single client when it joins or reconnects.
const EvtSnapshot engine.EventType = "session_snapshot"

const (
	TimerLobby = "lobby"
	TimerMatch = "match"
)

type MatchResult struct {
	Valid    bool             `json:"valid"`
	PlayerID string           `json:"player_id,omitempty"`
	Points   int              `json:"points,omitempty"`
	Coords   []board.Coord    `json:"coords,omitempty"`
	Reason   validator.Reason `json:"reason,omitempty"`
}

// Envelope is one outbound event. Only the fields relevant to Type are set.
type Envelope struct {
	Type        engine.EventType
	SessionID   string
	Version     int
	Phase       engine.Phase
	HostID      string
	Players     []engine.PlayerView
	Board       *board.Snapshot
	Config      *engine.Config
	Match       *MatchResult
	Ranking     []engine.RankEntry
	Timer       string
	SecondsLeft int
	Reason      string
}

type View struct {
	Version    int
	NumClients int
	Session    engine.View
}

type Deps struct {
	Timers          *timer.Coordinator
	Validator       validator.Async
	Store           store.Store
	Logger          *zap.Logger
	Clock           func() time.Time
	ValidateTimeout time.Duration

	// OnFinished is called from the lobby goroutine.
	OnFinished func(id string, at time.Time)
}

type Lobby struct {
	id      string
	inbox   chan Msg
	session *engine.Session
	version int
	clients map[string]chan Envelope
	deps    Deps
	logger  *zap.Logger

	timerSeq  uint64
	timerKind string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLobby(parent context.Context, s *engine.Session, deps Deps) *Lobby {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Validator == nil {
		deps.Validator = validator.Inline{}
	}
	if deps.Timers == nil {
		deps.Timers = timer.NewCoordinator(deps.Logger, time.Second)
	}
	if deps.ValidateTimeout <= 0 {
		deps.ValidateTimeout = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(parent)
	l := &Lobby{
		id:      s.ID,
		inbox:   make(chan Msg, 64),
		session: s,
		clients: make(map[string]chan Envelope),
		deps:    deps,
		logger:  deps.Logger.With(zap.String("session", s.ID)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	l.recordCreated()
	l.armTimer(TimerLobby, s.Config.LobbyTimeoutSec)

	go l.loop()
	return l
}

func (l *Lobby) ID() string { return l.id }

// Inbox exposes the inbox so tests or the transport can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby goroutine has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.teardown("shutdown")
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- l.join(msg)

			case Reconnect:
				msg.Reply <- l.reconnect(msg)

			case Leave:
				if l.leave(msg.ConnID) {
					l.teardown("empty")
					return
				}

			case FromClient:
				msg.Reply <- l.handle(msg.ConnID, msg.Cmd)

			case GetState:
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					Session:    l.session.View(),
				}

			case timerTick:
				if msg.seq != l.timerSeq {
					break // stale countdown
				}
				l.broadcast(Envelope{
					Type:        engine.EvtTimerTick,
					Timer:       l.timerKind,
					SecondsLeft: msg.left,
				})

			case timerExpired:
				if msg.seq != l.timerSeq {
					break
				}
				if l.expire() {
					l.teardown("lobby_expired")
					return
				}

			case Shutdown:
				l.teardown("deleted")
				return
			}
		}
	}
}

func (l *Lobby) join(msg Join) JoinResult {
	events, p, err := l.session.Join(msg.ConnID, msg.Nickname, msg.PlayerID, l.deps.Clock())
	if err != nil {
		return JoinResult{Err: err}
	}
	l.clients[msg.ConnID] = msg.Outbox
	l.sendSnapshot(msg.ConnID)
	l.emit(events)
	return JoinResult{Player: l.playerView(p.ID)}
}

func (l *Lobby) reconnect(msg Reconnect) JoinResult {
	oldConn := ""
	if p := l.session.PlayerByID(msg.PlayerID); p != nil {
		oldConn = p.ConnID
	}
	p, events, err := l.session.Reconnect(msg.PlayerID, msg.ConnID)
	if err != nil {
		return JoinResult{Err: err}
	}
	if ch, ok := l.clients[oldConn]; ok && oldConn != msg.ConnID {
		close(ch)
		delete(l.clients, oldConn)
	}
	l.clients[msg.ConnID] = msg.Outbox
	l.sendSnapshot(msg.ConnID)
	l.emit(events)
	return JoinResult{Player: l.playerView(p.ID)}
}

// leave reports whether the session emptied out and should be torn down.
func (l *Lobby) leave(connID string) bool {
	if ch, ok := l.clients[connID]; ok {
		close(ch)
		delete(l.clients, connID)
	}
	events, empty, err := l.session.Disconnect(connID, l.deps.Clock())
	if err != nil {
		if !errors.Is(err, engine.ErrPlayerNotFound) {
			l.logger.Warn("disconnect failed", zap.String("conn", connID), zap.Error(err))
		}
		return false
	}
	l.emit(events)
	return empty
}

func (l *Lobby) handle(connID string, cmd engine.Command) error {
	cmd.ConnID = connID
	switch cmd.Type {
	case engine.CmdConfirmMatch, engine.CmdSubmitChain:
		return l.handleMatch(cmd)
	}
	events, err := engine.Apply(l.session, cmd, l.deps.Clock())
	if err != nil {
		return err
	}
	l.emit(events)
	return nil
}

// handleMatch awaits the validator inside the loop, so no other message for
// this session is processed until the verdict has been applied.
func (l *Lobby) handleMatch(cmd engine.Command) error {
	req, err := l.session.PrepareMatch(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(l.ctx, l.deps.ValidateTimeout)
	defer cancel()

	var out validator.Outcome
	select {
	case out = <-l.deps.Validator.Validate(ctx, req):
	case <-ctx.Done():
		out.Err = ctx.Err()
	}
	if out.Err != nil {
		l.logger.Error("validation failed", zap.String("conn", cmd.ConnID), zap.Error(out.Err))
		return fmt.Errorf("%w: validation: %v", engine.ErrInternal, out.Err)
	}

	verdict := out.Result
	cmd.Verdict = &verdict
	events, err := engine.Apply(l.session, cmd, l.deps.Clock())
	if errors.Is(err, engine.ErrInvalidMatch) {
		// only the requester hears about a rejected match
		playerID := ""
		if p, ok := l.session.Players[cmd.ConnID]; ok {
			playerID = p.ID
		}
		l.send(cmd.ConnID, l.envelope(Envelope{
			Type:  engine.EvtMatchResult,
			Match: &MatchResult{Valid: false, PlayerID: playerID, Reason: verdict.Reason},
		}))
		return err
	}
	if err != nil {
		return err
	}
	l.emit(events)
	return nil
}

// expire resolves the running countdown and reports whether the session
// should be torn down.
func (l *Lobby) expire() bool {
	now := l.deps.Clock()
	switch l.session.Phase {
	case engine.PhaseWaiting:
		events, teardown := l.session.ExpireLobby(now)
		if teardown {
			return true
		}
		l.emit(events)
	case engine.PhasePlaying:
		l.emit(l.session.Finish(now))
	}
	return false
}

// emit broadcasts one envelope per event and runs the side effects of phase changes.
func (l *Lobby) emit(events []engine.Event) {
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		l.version++
		env := Envelope{Type: ev.Type}
		switch ev.Type {
		case engine.EvtPlayersUpdated:
			env.Players = l.session.Roster()

		case engine.EvtBoardUpdated:
			snap := l.session.Board.Snapshot()
			env.Board = &snap

		case engine.EvtMatchResult:
			env.Match = &MatchResult{
				Valid:    ev.Valid,
				PlayerID: ev.PlayerID,
				Points:   ev.Points,
				Coords:   ev.Coords,
			}

		case engine.EvtSessionStarted:
			snap := l.session.Board.Snapshot()
			cfg := l.session.Config
			env.Board = &snap
			env.Config = &cfg
			env.Players = l.session.Roster()
			l.onStarted()

		case engine.EvtSessionFinished:
			env.Ranking = append([]engine.RankEntry(nil), l.session.Ranking...)
			l.onFinished()
		}
		l.broadcast(l.envelope(env))
	}

	if err := l.session.CheckInvariants(); err != nil {
		l.logger.Error("session invariant violated", zap.Error(err))
	}
}

func (l *Lobby) onStarted() {
	if l.session.Config.Mode == engine.ModeTimeAttack {
		l.armTimer(TimerMatch, l.session.Config.DurationMinutes*60)
		return
	}
	l.disarmTimer()
}

func (l *Lobby) onFinished() {
	l.disarmTimer()

	results := make([]store.FinalResult, len(l.session.Ranking))
	for i, r := range l.session.Ranking {
		results[i] = store.FinalResult{
			PlayerID: r.PlayerID,
			Nickname: r.Nickname,
			Score:    r.Score,
			IsWinner: r.IsWinner,
		}
	}
	l.persist("record final results", func(ctx context.Context, st store.Store) error {
		return st.RecordFinalResults(ctx, l.id, results)
	})

	if l.deps.OnFinished != nil {
		l.deps.OnFinished(l.id, l.session.FinishedAt)
	}
}

func (l *Lobby) recordCreated() {
	s := l.session
	rec := store.SessionRecord{
		ID:              s.ID,
		Mode:            string(s.Config.Mode),
		Theme:           s.Config.Theme,
		MaxPlayers:      s.Config.MaxPlayers,
		DurationMinutes: s.Config.DurationMinutes,
		CreatedAt:       s.CreatedAt,
	}
	l.persist("record session created", func(ctx context.Context, st store.Store) error {
		return st.RecordSessionCreated(ctx, rec)
	})
}

// persist runs fn off the lobby goroutine. Failures are logged and never
// reach gameplay.
func (l *Lobby) persist(what string, fn func(context.Context, store.Store) error) {
	st := l.deps.Store
	if st == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx, st); err != nil {
			l.logger.Error(what, zap.Error(err))
		}
	}()
}

func (l *Lobby) armTimer(kind string, seconds int) {
	l.timerSeq++
	seq := l.timerSeq
	l.timerKind = kind
	l.deps.Timers.Start(l.id, seconds,
		func(left int) { l.post(timerTick{seq: seq, left: left}) },
		func() { l.post(timerExpired{seq: seq}) },
	)
}

func (l *Lobby) disarmTimer() {
	l.timerSeq++
	l.timerKind = ""
	l.deps.Timers.Cancel(l.id)
}

// post is used by timer callbacks; it gives up once the lobby is gone.
func (l *Lobby) post(m Msg) {
	select {
	case l.inbox <- m:
	case <-l.ctx.Done():
	}
}

// teardown tells every client the session is gone and stops the lobby.
func (l *Lobby) teardown(reason string) {
	l.disarmTimer()
	l.version++
	l.broadcast(l.envelope(Envelope{Type: engine.EvtSessionClosed, Reason: reason}))
	for id, ch := range l.clients {
		close(ch) // tell client no more envelopes
		delete(l.clients, id)
	}
	l.cancel()
	l.logger.Info("session closed", zap.String("reason", reason))
}

func (l *Lobby) envelope(env Envelope) Envelope {
	env.SessionID = l.id
	if env.Version == 0 {
		env.Version = l.version
	}
	env.Phase = l.session.Phase
	env.HostID = l.session.HostID
	return env
}

func (l *Lobby) sendSnapshot(connID string) {
	snap := l.session.Board.Snapshot()
	cfg := l.session.Config
	l.send(connID, l.envelope(Envelope{
		Type:    EvtSnapshot,
		Players: l.session.Roster(),
		Board:   &snap,
		Config:  &cfg,
		Ranking: append([]engine.RankEntry(nil), l.session.Ranking...),
	}))
}

func (l *Lobby) send(connID string, env Envelope) {
	ch, ok := l.clients[connID]
	if !ok {
		return
	}
	select {
	case ch <- env:
	default:
		l.drop(connID, ch)
	}
}

func (l *Lobby) broadcast(env Envelope) {
	if env.SessionID == "" {
		env = l.envelope(env)
	}
	for id, ch := range l.clients {
		select {
		case ch <- env:
			// ok
		default:
			// Client is slow/full - drop them.
			l.drop(id, ch)
		}
	}
}

func (l *Lobby) drop(connID string, ch chan Envelope) {
	close(ch)
	delete(l.clients, connID)
	l.logger.Warn("dropped slow client", zap.String("conn", connID))
}

func (l *Lobby) playerView(id string) engine.PlayerView {
	for _, p := range l.session.Roster() {
		if p.ID == id {
			return p
		}
	}
	return engine.PlayerView{ID: id}
}
