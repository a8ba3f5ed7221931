package engine

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/match3-backend/internal/board"
	"github.com/DoyleJ11/match3-backend/internal/validator"
)

type Mode string

const (
	ModeScoreAttack Mode = "score_attack"
	ModeTimeAttack  Mode = "time_attack"
)

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

const (
	MinPlayers        = 2
	MaxPlayersLimit   = 8
	MinBoardSide      = 3
	MaxBoardSide      = 16
	MaxNicknameLength = 24

	DefaultBoardSide    = 8
	DefaultLobbyTimeout = 120
	DefaultTargetScore  = 1000
)

type Config struct {
	Mode            Mode   `json:"mode"`
	Theme           string `json:"theme"`
	MaxPlayers      int    `json:"max_players"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Rows            int    `json:"rows"`
	Cols            int    `json:"cols"`
	TargetScore     int    `json:"target_score,omitempty"`
	LobbyTimeoutSec int    `json:"lobby_timeout_sec"`
}

func (c Config) WithDefaults() Config {
	if c.Theme == "" {
		c.Theme = board.DefaultTheme
	}
	if c.Rows == 0 {
		c.Rows = DefaultBoardSide
	}
	if c.Cols == 0 {
		c.Cols = DefaultBoardSide
	}
	if c.LobbyTimeoutSec == 0 {
		c.LobbyTimeoutSec = DefaultLobbyTimeout
	}
	if c.Mode == ModeScoreAttack && c.TargetScore == 0 {
		c.TargetScore = DefaultTargetScore
	}
	return c
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeScoreAttack:
	case ModeTimeAttack:
		if c.DurationMinutes < 1 || c.DurationMinutes > 60 {
			return fmt.Errorf("%w: duration_minutes must be between 1 and 60", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if _, ok := board.Palette(c.Theme); !ok {
		return fmt.Errorf("%w: unknown theme %q", ErrInvalidConfig, c.Theme)
	}
	if c.MaxPlayers < MinPlayers || c.MaxPlayers > MaxPlayersLimit {
		return fmt.Errorf("%w: max_players must be between %d and %d", ErrInvalidConfig, MinPlayers, MaxPlayersLimit)
	}
	if c.Rows < MinBoardSide || c.Rows > MaxBoardSide || c.Cols < MinBoardSide || c.Cols > MaxBoardSide {
		return fmt.Errorf("%w: board sides must be between %d and %d", ErrInvalidConfig, MinBoardSide, MaxBoardSide)
	}
	if c.LobbyTimeoutSec < 1 {
		return fmt.Errorf("%w: lobby_timeout_sec must be positive", ErrInvalidConfig)
	}
	if c.TargetScore < 0 {
		return fmt.Errorf("%w: target_score must not be negative", ErrInvalidConfig)
	}
	return nil
}

type Player struct {
	ID        string
	ConnID    string
	Nickname  string
	Score     int
	Selection []board.Coord
	Ready     bool
	Connected bool

	seq int // join order
}

type Session struct {
	ID         string
	Config     Config
	Phase      Phase
	Board      *board.Board
	Players    map[string]*Player // keyed by connection ID
	HostID     string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Ranking    []RankEntry

	nextSeq int
}

func NewSession(id string, cfg Config, rng *rand.Rand, now time.Time) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	palette, _ := board.Palette(cfg.Theme)
	b, err := board.New(cfg.Rows, cfg.Cols, palette, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &Session{
		ID:        id,
		Config:    cfg,
		Phase:     PhaseWaiting,
		Board:     b,
		Players:   make(map[string]*Player),
		CreatedAt: now,
	}, nil
}

type CommandType string

const (
	CmdSetReady     CommandType = "SetReady"
	CmdStart        CommandType = "Start"
	CmdSelectCell   CommandType = "SelectCell"
	CmdConfirmMatch CommandType = "ConfirmMatch"
	CmdSubmitChain  CommandType = "SubmitChain"
)

/*
	CmdSetReady     -> players_update
	CmdStart        -> session_started -> players_update
	CmdSelectCell   -> board_update -> players_update
	CmdConfirmMatch -> (validator, group rules) -> match_result -> board_update -> players_update [-> session_finished]
	CmdSubmitChain  -> (validator, line rules)  -> match_result -> board_update -> players_update [-> session_finished]
*/

type Command struct {
	Type   CommandType
	ConnID string
	Ready  bool
	Row    int
	Col    int
	Chain  []board.Coord

	// Verdict carries the validator's answer for match commands. It is filled
	// in by the caller after PrepareMatch and the asynchronous validation.
	Verdict *validator.Result
}

type EventType string

// Event types double as the outbound wire names.
const (
	EvtPlayersUpdated  EventType = "players_update"
	EvtBoardUpdated    EventType = "board_update"
	EvtMatchResult     EventType = "match_result"
	EvtSessionStarted  EventType = "session_started"
	EvtSessionFinished EventType = "session_finished"
	EvtTimerTick       EventType = "timer_tick"
	EvtSessionClosed   EventType = "session_closed"
)

type Event struct {
	Type     EventType
	PlayerID string
	Valid    bool
	Points   int
	Coords   []board.Coord
}

// Apply runs one command against s. A rejected command returns a named error
// and leaves s untouched.
func Apply(s *Session, cmd Command, now time.Time) ([]Event, error) {
	switch cmd.Type {
	case CmdSetReady:
		return s.SetReady(cmd.ConnID, cmd.Ready)
	case CmdStart:
		return s.Start(cmd.ConnID, now)
	case CmdSelectCell:
		return s.SelectCell(cmd.ConnID, board.Coord{Row: cmd.Row, Col: cmd.Col})
	case CmdConfirmMatch, CmdSubmitChain:
		if cmd.Verdict == nil {
			return nil, fmt.Errorf("%w: %s without verdict", ErrInternal, cmd.Type)
		}
		return s.commitMatch(cmd, now)
	default:
		return nil, fmt.Errorf("%w: unsupported command %q", ErrInvalidInput, cmd.Type)
	}
}

// Join adds a player while the session is waiting. Filling the last seat starts play.
func (s *Session) Join(connID, nickname, playerID string, now time.Time) ([]Event, *Player, error) {
	nickname = strings.TrimSpace(nickname)
	if connID == "" || playerID == "" || nickname == "" || utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return nil, nil, ErrInvalidInput
	}
	if len(s.Players) >= s.Config.MaxPlayers {
		return nil, nil, ErrSessionFull
	}
	if err := s.requirePhase(PhaseWaiting); err != nil {
		return nil, nil, err
	}
	for _, p := range s.Players {
		if strings.EqualFold(p.Nickname, nickname) {
			return nil, nil, ErrNicknameTaken
		}
	}
	for _, p := range s.Players {
		if p.ID == playerID || p.ConnID == connID {
			return nil, nil, ErrAlreadyJoined
		}
	}

	p := &Player{
		ID:        playerID,
		ConnID:    connID,
		Nickname:  nickname,
		Connected: true,
		seq:       s.nextSeq,
	}
	s.nextSeq++
	s.Players[connID] = p
	if s.HostID == "" {
		s.HostID = playerID
	}

	events := []Event{{Type: EvtPlayersUpdated}}
	if len(s.Players) == s.Config.MaxPlayers {
		events = append(events, s.start(now)...)
	}
	return events, p, nil
}

func (s *Session) SetReady(connID string, ready bool) ([]Event, error) {
	if err := s.requirePhase(PhaseWaiting); err != nil {
		return nil, err
	}
	p, err := s.player(connID)
	if err != nil {
		return nil, err
	}
	p.Ready = ready
	return []Event{{Type: EvtPlayersUpdated}}, nil
}

// Start is the host's explicit start.
func (s *Session) Start(connID string, now time.Time) ([]Event, error) {
	if err := s.requirePhase(PhaseWaiting); err != nil {
		return nil, err
	}
	p, err := s.player(connID)
	if err != nil {
		return nil, err
	}
	if p.ID != s.HostID {
		return nil, ErrNotHost
	}
	if len(s.Players) < MinPlayers {
		return nil, ErrNotEnoughPlayers
	}
	return s.start(now), nil
}

// ExpireLobby resolves the lobby timeout. With at least two ready players the
// session starts; otherwise teardown is true and the caller should delete it.
func (s *Session) ExpireLobby(now time.Time) (events []Event, teardown bool) {
	if s.Phase != PhaseWaiting {
		return nil, false
	}
	ready := 0
	for _, p := range s.Players {
		if p.Ready {
			ready++
		}
	}
	if ready >= MinPlayers {
		return s.start(now), false
	}
	return nil, true
}

func (s *Session) start(now time.Time) []Event {
	if err := s.transition(PhasePlaying); err != nil {
		return nil
	}
	s.StartedAt = now
	return []Event{{Type: EvtSessionStarted}, {Type: EvtPlayersUpdated}}
}

// SelectCell selects the group under c, or deselects when c is already the player's.
func (s *Session) SelectCell(connID string, c board.Coord) ([]Event, error) {
	if err := s.requirePhase(PhasePlaying); err != nil {
		return nil, err
	}
	p, err := s.player(connID)
	if err != nil {
		return nil, err
	}
	if !s.Board.InBounds(c) {
		return nil, ErrOutOfBounds
	}

	switch owner := s.Board.LockOwner(c); {
	case owner == p.ID:
		s.release(p)
		return []Event{{Type: EvtBoardUpdated}, {Type: EvtPlayersUpdated}}, nil
	case owner != "":
		return nil, ErrCellLocked
	}

	group := s.Board.DetectConnectedGroup(c)
	if group == nil {
		return nil, ErrNoValidGroup
	}
	for _, g := range group {
		if owner := s.Board.LockOwner(g); owner != "" && owner != p.ID {
			return nil, ErrGroupPartiallyLocked
		}
	}

	s.release(p)
	for _, g := range group {
		s.Board.Lock(g, p.ID)
	}
	p.Selection = group
	return []Event{{Type: EvtBoardUpdated}, {Type: EvtPlayersUpdated}}, nil
}

// PrepareMatch checks a match command and builds the validation request for it.
// It never mutates the session.
func (s *Session) PrepareMatch(cmd Command) (validator.Request, error) {
	if err := s.requirePhase(PhasePlaying); err != nil {
		return validator.Request{}, err
	}
	p, err := s.player(cmd.ConnID)
	if err != nil {
		return validator.Request{}, err
	}

	switch cmd.Type {
	case CmdConfirmMatch:
		if len(p.Selection) < board.MinGroup {
			return validator.Request{}, ErrNoSelection
		}
		return validator.Request{
			Rules: validator.RulesGroup,
			Chain: append([]board.Coord(nil), p.Selection...),
			Board: s.Board.Snapshot(),
		}, nil

	case CmdSubmitChain:
		if len(cmd.Chain) == 0 || len(cmd.Chain) > s.Board.Rows()*s.Board.Cols() {
			return validator.Request{}, ErrInvalidInput
		}
		for _, c := range cmd.Chain {
			if !s.Board.InBounds(c) {
				return validator.Request{}, ErrOutOfBounds
			}
		}
		return validator.Request{
			Rules: validator.RulesLine,
			Chain: append([]board.Coord(nil), cmd.Chain...),
			Board: s.Board.Snapshot(),
		}, nil

	default:
		return validator.Request{}, fmt.Errorf("%w: %s is not a match command", ErrInvalidInput, cmd.Type)
	}
}

func (s *Session) commitMatch(cmd Command, now time.Time) ([]Event, error) {
	if err := s.requirePhase(PhasePlaying); err != nil {
		return nil, err
	}
	p, err := s.player(cmd.ConnID)
	if err != nil {
		return nil, err
	}
	verdict := cmd.Verdict
	if !verdict.Valid {
		return nil, ErrInvalidMatch
	}

	coords := verdict.Coordinates
	if cmd.Type == CmdConfirmMatch {
		if len(p.Selection) < board.MinGroup {
			return nil, ErrNoSelection
		}
		for _, c := range coords {
			if s.Board.LockOwner(c) != p.ID {
				return nil, fmt.Errorf("%w: confirmed cell %v not locked to player", ErrInternal, c)
			}
		}
	}
	return s.score(p, coords, now), nil
}

// score awards n² points, refills the matched cells in place and drops every
// selection that touched them. Newly formed runs are not scored.
func (s *Session) score(p *Player, coords []board.Coord, now time.Time) []Event {
	n := len(coords)
	points := n * n
	p.Score += points

	eliminated := make(map[board.Coord]bool, n)
	for _, c := range coords {
		eliminated[c] = true
	}
	s.Board.Refill(coords)
	s.release(p)
	for _, other := range s.Players {
		if other == p {
			continue
		}
		for _, c := range other.Selection {
			if eliminated[c] {
				s.release(other)
				break
			}
		}
	}

	events := []Event{
		{Type: EvtMatchResult, PlayerID: p.ID, Valid: true, Points: points, Coords: append([]board.Coord(nil), coords...)},
		{Type: EvtBoardUpdated},
		{Type: EvtPlayersUpdated},
	}
	if s.Config.Mode == ModeScoreAttack && s.Config.TargetScore > 0 && p.Score >= s.Config.TargetScore {
		events = append(events, s.Finish(now)...)
	}
	return events
}

// Finish ends play and computes the ranking. Calling it again is a no-op.
func (s *Session) Finish(now time.Time) []Event {
	if err := s.transition(PhaseFinished); err != nil {
		return nil
	}
	for _, p := range s.Players {
		p.Selection = nil
	}
	s.Board.UnlockAll()
	s.FinishedAt = now
	s.Ranking = ComputeRanking(s.Roster())
	return []Event{{Type: EvtSessionFinished}, {Type: EvtPlayersUpdated}}
}

// Disconnect handles a dropped connection. While waiting the player leaves the
// roster; during play they keep their score but lose their selection. empty
// reports a waiting session with nobody left in it.
func (s *Session) Disconnect(connID string, now time.Time) (events []Event, empty bool, err error) {
	p, err := s.player(connID)
	if err != nil {
		return nil, false, err
	}

	switch s.Phase {
	case PhaseWaiting:
		delete(s.Players, connID)
		if p.ID == s.HostID {
			s.HostID = ""
			if next := s.earliest(); next != nil {
				s.HostID = next.ID
			}
		}
		return []Event{{Type: EvtPlayersUpdated}}, len(s.Players) == 0, nil

	case PhasePlaying:
		p.Connected = false
		hadSelection := len(p.Selection) > 0
		s.release(p)
		events = []Event{{Type: EvtPlayersUpdated}}
		if hadSelection {
			events = append(events, Event{Type: EvtBoardUpdated})
		}
		if s.connectedCount() == 0 {
			events = append(events, s.Finish(now)...)
		}
		return events, false, nil

	default:
		p.Connected = false
		return []Event{{Type: EvtPlayersUpdated}}, false, nil
	}
}

// Reconnect rebinds a known player to a new connection.
func (s *Session) Reconnect(playerID, newConnID string) (*Player, []Event, error) {
	if playerID == "" || newConnID == "" {
		return nil, nil, ErrInvalidInput
	}
	var p *Player
	for _, candidate := range s.Players {
		if candidate.ID == playerID {
			p = candidate
			break
		}
	}
	if p == nil {
		return nil, nil, ErrPlayerNotFound
	}
	if other, ok := s.Players[newConnID]; ok && other != p {
		return nil, nil, ErrAlreadyJoined
	}

	delete(s.Players, p.ConnID)
	p.ConnID = newConnID
	p.Connected = true
	s.Players[newConnID] = p
	return p, []Event{{Type: EvtPlayersUpdated}}, nil
}

// release unlocks every cell in p's selection and clears it.
func (s *Session) release(p *Player) {
	for _, c := range p.Selection {
		if s.Board.LockOwner(c) == p.ID {
			s.Board.Unlock(c)
		}
	}
	p.Selection = nil
}

func (s *Session) player(connID string) (*Player, error) {
	p, ok := s.Players[connID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return p, nil
}

func (s *Session) requirePhase(want Phase) error {
	if s.Phase == want {
		return nil
	}
	switch s.Phase {
	case PhaseFinished:
		return ErrSessionFinished
	case PhasePlaying:
		return ErrSessionAlreadyStarted
	default:
		return ErrSessionNotPlaying
	}
}

func (s *Session) connectedCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

func (s *Session) earliest() *Player {
	var first *Player
	for _, p := range s.Players {
		if first == nil || p.seq < first.seq {
			first = p
		}
	}
	return first
}

// PlayerByID finds a player by stable identity.
func (s *Session) PlayerByID(id string) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}
