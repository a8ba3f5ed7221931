package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/match3-backend/internal/engine"
	"github.com/DoyleJ11/match3-backend/internal/hub"
	"github.com/DoyleJ11/match3-backend/internal/lobby"
	"github.com/DoyleJ11/match3-backend/internal/store"
	"github.com/DoyleJ11/match3-backend/internal/types"
)

const (
	readTimeout  = 10 * time.Minute
	writeTimeout = 3 * time.Second
	storeTimeout = 3 * time.Second
	outboxSize   = 64
)

type Deps struct {
	Hub            *hub.Hub
	Store          store.Store
	Logger         *zap.Logger
	Validate       *validator.Validate
	AllowedOrigins []string
}

// Handler serves /ws?session=ID. The first frame must be a join or a
// reconnect; gameplay frames are accepted after that.
func Handler(d Deps) http.HandlerFunc {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Validate == nil {
		d.Validate = validator.New()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		if sessionID == "" {
			http.Error(w, "missing session", http.StatusBadRequest)
			return
		}
		lb, err := d.Hub.Get(r.Context(), sessionID)
		if err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: d.AllowedOrigins,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &client{
			deps:   d,
			conn:   conn,
			lobby:  lb,
			connID: uuid.NewString(),
			out:    make(chan lobby.Envelope, outboxSize),
			logger: d.Logger.With(zap.String("session", sessionID)),
		}
		c.serve(r.Context())
	}
}

type client struct {
	deps     Deps
	conn     *websocket.Conn
	lobby    *lobby.Lobby
	connID   string
	playerID string
	out      chan lobby.Envelope
	logger   *zap.Logger
}

func (c *client) serve(ctx context.Context) {
	writeCtx, writeCancel := context.WithCancel(ctx)
	defer writeCancel()

	joined := false
	defer func() {
		if joined {
			if err := c.deps.Hub.Disconnect(context.Background(), c.connID); err != nil {
				c.logger.Warn("disconnect failed", zap.String("conn", c.connID), zap.Error(err))
			}
		}
	}()

	// Reader loop
	for {
		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		_, data, err := c.conn.Read(readCtx)
		cancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				c.logger.Debug("read ended", zap.String("conn", c.connID), zap.Error(err))
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			c.writeError(ctx, fmt.Errorf("%w: bad json", engine.ErrInvalidInput))
			continue
		}
		if err := c.deps.Validate.Struct(cm); err != nil {
			c.writeError(ctx, fmt.Errorf("%w: missing type", engine.ErrInvalidInput))
			continue
		}

		if !joined {
			if err := c.handshake(ctx, cm); err != nil {
				c.writeError(ctx, err)
				continue
			}
			joined = true
			go c.writer(writeCtx)
			continue
		}

		cmd, err := toEngineCommand(cm, c.deps.Validate)
		if err != nil {
			c.writeError(ctx, err)
			continue
		}
		err = c.lobby.Do(ctx, c.connID, cmd)
		switch {
		case err == nil:
		case errors.Is(err, engine.ErrInvalidMatch):
			// the requester already got match_result{valid:false}
		default:
			c.writeError(ctx, err)
		}
	}
}

func (c *client) handshake(ctx context.Context, cm types.ClientMessage) error {
	switch cm.Type {
	case types.MsgJoin:
		if err := c.deps.Validate.Struct(types.JoinPayload{Nickname: cm.Nickname}); err != nil {
			return fmt.Errorf("%w: nickname is required and at most %d characters", engine.ErrInvalidInput, engine.MaxNicknameLength)
		}
		playerID := c.resolvePlayer(ctx, cm.Nickname)
		you, err := c.lobby.JoinPlayer(ctx, c.connID, cm.Nickname, playerID, c.out)
		if err != nil {
			return err
		}
		c.playerID = you.ID
		c.deps.Hub.Bind(c.connID, you.ID, c.lobby.ID())
		c.write(ctx, types.ServerMessage{Type: types.MsgJoined, SessionID: c.lobby.ID(), You: &you})
		return nil

	case types.MsgReconnect:
		if err := c.deps.Validate.Struct(types.ReconnectPayload{PlayerID: cm.PlayerID}); err != nil {
			return fmt.Errorf("%w: player_id is required", engine.ErrInvalidInput)
		}
		lb, you, err := c.deps.Hub.Reconnect(ctx, c.lobby.ID(), cm.PlayerID, c.connID, c.out)
		if err != nil {
			return err
		}
		c.lobby = lb
		c.playerID = you.ID
		c.write(ctx, types.ServerMessage{Type: types.MsgJoined, SessionID: lb.ID(), You: &you})
		return nil

	default:
		return fmt.Errorf("%w: join or reconnect first", engine.ErrPlayerNotFound)
	}
}

// resolvePlayer asks the store for a durable player ID and falls back to a
// guest ID so an unavailable store never blocks a join.
func (c *client) resolvePlayer(ctx context.Context, nickname string) string {
	if c.deps.Store != nil {
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		id, err := c.deps.Store.FindOrCreatePlayer(sctx, nickname)
		if err == nil {
			return id
		}
		c.logger.Error("find or create player", zap.String("nickname", nickname), zap.Error(err))
	}
	return "guest-" + uuid.NewString()
}

// Writer goroutine. The lobby closes the outbox when the client is dropped,
// leaves, or the session goes away.
func (c *client) writer(ctx context.Context) {
	for env := range c.out {
		c.write(ctx, types.FromEnvelope(env, c.playerID))
	}
	c.conn.Close(websocket.StatusNormalClosure, "session stream ended")
}

func (c *client) write(ctx context.Context, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("marshal server message", zap.Error(err))
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = c.conn.Write(wctx, websocket.MessageText, payload)
}

func (c *client) writeError(ctx context.Context, err error) {
	c.write(ctx, types.ErrorMessage(err))
}

func toEngineCommand(m types.ClientMessage, v *validator.Validate) (engine.Command, error) {
	switch m.Type {
	case types.MsgSetReady:
		return engine.Command{Type: engine.CmdSetReady, Ready: m.Ready}, nil
	case types.MsgStart:
		return engine.Command{Type: engine.CmdStart}, nil
	case types.MsgSelectCell:
		if err := v.Struct(types.SelectPayload{Row: m.Row, Col: m.Col}); err != nil {
			return engine.Command{}, fmt.Errorf("%w: row and col are required", engine.ErrInvalidInput)
		}
		return engine.Command{Type: engine.CmdSelectCell, Row: *m.Row, Col: *m.Col}, nil
	case types.MsgConfirmMatch:
		return engine.Command{Type: engine.CmdConfirmMatch}, nil
	case types.MsgSubmitChain:
		if err := v.Struct(types.ChainPayload{Cells: m.Cells}); err != nil {
			return engine.Command{}, fmt.Errorf("%w: cells must hold 1 to 256 coordinates", engine.ErrInvalidInput)
		}
		return engine.Command{Type: engine.CmdSubmitChain, Chain: m.Cells}, nil
	case types.MsgJoin, types.MsgReconnect:
		return engine.Command{}, engine.ErrAlreadyJoined
	default:
		return engine.Command{}, fmt.Errorf("%w: unknown type %q", engine.ErrInvalidInput, m.Type)
	}
}
