package types

import (
	"github.com/DoyleJ11/match3-backend/internal/board"
	"github.com/DoyleJ11/match3-backend/internal/engine"
	"github.com/DoyleJ11/match3-backend/internal/lobby"
)

// Client message types.
const (
	MsgJoin         = "join"
	MsgReconnect    = "reconnect"
	MsgSetReady     = "set_ready"
	MsgStart        = "start"
	MsgSelectCell   = "select_cell"
	MsgConfirmMatch = "confirm_match"
	MsgSubmitChain  = "submit_chain"
)

// Server-only message types; the rest are engine event names.
const (
	MsgJoined = "joined"
	MsgError  = "error"
)

type ClientMessage struct {
	Type     string        `json:"type" validate:"required"`
	Nickname string        `json:"nickname,omitempty"`
	PlayerID string        `json:"player_id,omitempty"`
	Ready    bool          `json:"ready,omitempty"`
	Row      *int          `json:"row,omitempty"`
	Col      *int          `json:"col,omitempty"`
	Cells    []board.Coord `json:"cells,omitempty"`
}

type JoinPayload struct {
	Nickname string `validate:"required,max=24"`
}

type ReconnectPayload struct {
	PlayerID string `validate:"required,max=64"`
}

type SelectPayload struct {
	Row *int `validate:"required,gte=0"`
	Col *int `validate:"required,gte=0"`
}

type ChainPayload struct {
	Cells []board.Coord `validate:"required,min=1,max=256"`
}

type CreateSessionRequest struct {
	Mode            string `json:"mode" validate:"required,oneof=score_attack time_attack"`
	Theme           string `json:"theme" validate:"omitempty,max=32"`
	MaxPlayers      int    `json:"max_players" validate:"required,min=2,max=8"`
	DurationMinutes int    `json:"duration_minutes" validate:"required_if=Mode time_attack,gte=0,max=60"`
	Rows            int    `json:"rows" validate:"omitempty,min=3,max=16"`
	Cols            int    `json:"cols" validate:"omitempty,min=3,max=16"`
	TargetScore     int    `json:"target_score" validate:"omitempty,min=1"`
	LobbyTimeoutSec int    `json:"lobby_timeout_sec" validate:"omitempty,min=1,max=3600"`
}

func (r CreateSessionRequest) Config() engine.Config {
	return engine.Config{
		Mode:            engine.Mode(r.Mode),
		Theme:           r.Theme,
		MaxPlayers:      r.MaxPlayers,
		DurationMinutes: r.DurationMinutes,
		Rows:            r.Rows,
		Cols:            r.Cols,
		TargetScore:     r.TargetScore,
		LobbyTimeoutSec: r.LobbyTimeoutSec,
	}
}

type CreateSessionResponse struct {
	ID     string        `json:"id"`
	Config engine.Config `json:"config"`
}

// Cell states as seen by one viewer.
const (
	CellFree  = "free"
	CellMine  = "mine"
	CellOther = "other"
)

type CellView struct {
	Row   int         `json:"row"`
	Col   int         `json:"col"`
	Color board.Color `json:"color"`
	State string      `json:"state"`
	Owner string      `json:"owner,omitempty"`
}

type BoardView struct {
	Rows  int          `json:"rows"`
	Cols  int          `json:"cols"`
	Cells [][]CellView `json:"cells"`
}

// NewBoardView derives the per-viewer lock state of every cell.
func NewBoardView(snap board.Snapshot, viewerID string) *BoardView {
	bv := &BoardView{Rows: snap.Rows, Cols: snap.Cols, Cells: make([][]CellView, len(snap.Cells))}
	for r, row := range snap.Cells {
		bv.Cells[r] = make([]CellView, len(row))
		for c, cell := range row {
			state := CellFree
			switch {
			case cell.LockOwner == "":
			case cell.LockOwner == viewerID:
				state = CellMine
			default:
				state = CellOther
			}
			bv.Cells[r][c] = CellView{
				Row:   cell.Row,
				Col:   cell.Col,
				Color: cell.Color,
				State: state,
				Owner: cell.LockOwner,
			}
		}
	}
	return bv
}

type ServerMessage struct {
	Type        string              `json:"type"`
	SessionID   string              `json:"session_id,omitempty"`
	Version     int                 `json:"version,omitempty"`
	Phase       engine.Phase        `json:"phase,omitempty"`
	HostID      string              `json:"host_id,omitempty"`
	You         *engine.PlayerView  `json:"you,omitempty"`
	Players     []engine.PlayerView `json:"players,omitempty"`
	Board       *BoardView          `json:"board,omitempty"`
	Config      *engine.Config      `json:"config,omitempty"`
	Match       *lobby.MatchResult  `json:"match,omitempty"`
	Ranking     []engine.RankEntry  `json:"ranking,omitempty"`
	Timer       string              `json:"timer,omitempty"`
	SecondsLeft int                 `json:"seconds_left,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	Code        string              `json:"code,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// FromEnvelope renders env for the player viewerID.
func FromEnvelope(env lobby.Envelope, viewerID string) ServerMessage {
	msg := ServerMessage{
		Type:        string(env.Type),
		SessionID:   env.SessionID,
		Version:     env.Version,
		Phase:       env.Phase,
		HostID:      env.HostID,
		Players:     env.Players,
		Config:      env.Config,
		Match:       env.Match,
		Ranking:     env.Ranking,
		Timer:       env.Timer,
		SecondsLeft: env.SecondsLeft,
		Reason:      env.Reason,
	}
	if env.Board != nil {
		msg.Board = NewBoardView(*env.Board, viewerID)
	}
	return msg
}

func ErrorMessage(err error) ServerMessage {
	return ServerMessage{Type: MsgError, Code: engine.CodeOf(err), Error: err.Error()}
}
