package hub

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/match3-backend/internal/engine"
	"github.com/DoyleJ11/match3-backend/internal/lobby"
	"github.com/DoyleJ11/match3-backend/internal/store"
	"github.com/DoyleJ11/match3-backend/internal/timer"
	"github.com/DoyleJ11/match3-backend/internal/validator"
)

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	Config engine.Config
	Reply  chan CreateResult
}

type CreateResult struct {
	Lobby *lobby.Lobby
	Err   error
}

type GetSession struct {
	ID    string
	Reply chan *lobby.Lobby
}

// RemoveSession is idempotent.
type RemoveSession struct {
	ID    string
	Reply chan bool // optional; true when something was removed
}

// BindConn records which session a connection and player belong to.
type BindConn struct {
	ConnID    string
	PlayerID  string
	SessionID string
}

// UnbindConn forgets a connection and replies with its lobby, if any.
type UnbindConn struct {
	ConnID string
	Reply  chan *lobby.Lobby
}

type LookupPlayer struct {
	PlayerID string
	Reply    chan *lobby.Lobby
}

type Sweep struct {
	Now       time.Time
	Retention time.Duration
	Reply     chan []string
}

type ShutdownHub struct{}

type sessionFinished struct {
	ID string
	At time.Time
}

type sessionClosed struct {
	ID    string
	Lobby *lobby.Lobby
}

func (CreateSession) isHubMsg()   {}
func (GetSession) isHubMsg()      {}
func (RemoveSession) isHubMsg()   {}
func (BindConn) isHubMsg()        {}
func (UnbindConn) isHubMsg()      {}
func (LookupPlayer) isHubMsg()    {}
func (Sweep) isHubMsg()           {}
func (ShutdownHub) isHubMsg()     {}
func (sessionFinished) isHubMsg() {}
func (sessionClosed) isHubMsg()   {}

// Deps are handed to every lobby the hub creates.
type Deps struct {
	Timers          *timer.Coordinator
	Validator       validator.Async
	Store           store.Store
	Logger          *zap.Logger
	Clock           func() time.Time
	ValidateTimeout time.Duration

	// Defaults fill in board size, lobby timeout and target score when a
	// create request leaves them out.
	Defaults engine.Config

	// NewRand seeds each session's board; nil means time-seeded.
	NewRand func() *mrand.Rand
}

type Hub struct {
	inbox    chan HubMsg
	lobbies  map[string]*lobby.Lobby
	finished map[string]time.Time
	conns    map[string]string // connection -> session
	players  map[string]string // player -> session
	deps     Deps
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, deps Deps) *Hub {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewRand == nil {
		deps.NewRand = func() *mrand.Rand { return mrand.New(mrand.NewSource(time.Now().UnixNano())) }
	}
	if deps.Timers == nil {
		deps.Timers = timer.NewCoordinator(deps.Logger, time.Second)
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		lobbies:  make(map[string]*lobby.Lobby),
		finished: make(map[string]time.Time),
		conns:    make(map[string]string),
		players:  make(map[string]string),
		deps:     deps,
		logger:   deps.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				lb, err := h.create(msg.Config)
				msg.Reply <- CreateResult{Lobby: lb, Err: err}

			case GetSession:
				msg.Reply <- h.lobbies[msg.ID] // May be nil

			case RemoveSession:
				removed := h.remove(msg.ID)
				if msg.Reply != nil {
					msg.Reply <- removed
				}

			case sessionClosed:
				if h.lobbies[msg.ID] == msg.Lobby {
					h.remove(msg.ID)
				}

			case sessionFinished:
				if _, ok := h.lobbies[msg.ID]; ok {
					h.finished[msg.ID] = msg.At
				}

			case BindConn:
				if _, ok := h.lobbies[msg.SessionID]; !ok {
					break
				}
				h.conns[msg.ConnID] = msg.SessionID
				if msg.PlayerID != "" {
					h.players[msg.PlayerID] = msg.SessionID
				}

			case UnbindConn:
				id, ok := h.conns[msg.ConnID]
				delete(h.conns, msg.ConnID)
				if !ok {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.lobbies[id]

			case LookupPlayer:
				msg.Reply <- h.lobbies[h.players[msg.PlayerID]]

			case Sweep:
				msg.Reply <- h.sweep(msg.Now, msg.Retention)

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) create(cfg engine.Config) (*lobby.Lobby, error) {
	cfg = h.withDefaults(cfg)

	var id string
	for {
		c, err := GenerateCode()
		if err != nil {
			return nil, fmt.Errorf("%w: generate code: %v", engine.ErrInternal, err)
		}
		if _, taken := h.lobbies[c]; !taken {
			id = c
			break
		}
		h.logger.Debug("collision on session code, regenerating")
	}

	s, err := engine.NewSession(id, cfg, h.deps.NewRand(), h.deps.Clock())
	if err != nil {
		return nil, err
	}

	lb := lobby.NewLobby(h.ctx, s, lobby.Deps{
		Timers:          h.deps.Timers,
		Validator:       h.deps.Validator,
		Store:           h.deps.Store,
		Logger:          h.logger,
		Clock:           h.deps.Clock,
		ValidateTimeout: h.deps.ValidateTimeout,
		OnFinished: func(id string, at time.Time) {
			go h.post(sessionFinished{ID: id, At: at})
		},
	})
	h.lobbies[id] = lb
	// a lobby that tears itself down drops out of the registry
	go func() {
		<-lb.Done()
		h.post(sessionClosed{ID: id, Lobby: lb})
	}()
	h.logger.Info("session created",
		zap.String("session", id),
		zap.String("mode", string(cfg.Mode)),
		zap.Int("max_players", cfg.MaxPlayers),
	)
	return lb, nil
}

func (h *Hub) withDefaults(cfg engine.Config) engine.Config {
	d := h.deps.Defaults
	if cfg.Rows == 0 {
		cfg.Rows = d.Rows
	}
	if cfg.Cols == 0 {
		cfg.Cols = d.Cols
	}
	if cfg.LobbyTimeoutSec == 0 {
		cfg.LobbyTimeoutSec = d.LobbyTimeoutSec
	}
	if cfg.Mode == engine.ModeScoreAttack && cfg.TargetScore == 0 {
		cfg.TargetScore = d.TargetScore
	}
	return cfg.WithDefaults()
}

func (h *Hub) remove(id string) bool {
	lb, ok := h.lobbies[id]
	if !ok {
		return false
	}
	delete(h.lobbies, id)
	delete(h.finished, id)
	for conn, sid := range h.conns {
		if sid == id {
			delete(h.conns, conn)
		}
	}
	for player, sid := range h.players {
		if sid == id {
			delete(h.players, player)
		}
	}
	lb.Close()
	h.logger.Info("session removed", zap.String("session", id))
	return true
}

func (h *Hub) sweep(now time.Time, retention time.Duration) []string {
	var reaped []string
	for id, at := range h.finished {
		if now.Sub(at) >= retention {
			reaped = append(reaped, id)
		}
	}
	for _, id := range reaped {
		h.remove(id)
	}
	return reaped
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Close()
	}
	clear(h.lobbies)
	clear(h.finished)
	clear(h.conns)
	clear(h.players)
}

func (h *Hub) post(m HubMsg) {
	select {
	case h.inbox <- m:
	case <-h.ctx.Done():
	}
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
