package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/DoyleJ11/match3-backend/internal/board"
)

type PlayerView struct {
	ID        string        `json:"id"`
	Nickname  string        `json:"nickname"`
	Score     int           `json:"score"`
	Selection []board.Coord `json:"selection,omitempty"`
	Ready     bool          `json:"ready"`
	Connected bool          `json:"connected"`
	Host      bool          `json:"host"`
}

type RankEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	IsWinner bool   `json:"is_winner"`
}

type View struct {
	ID         string         `json:"id"`
	Config     Config         `json:"config"`
	Phase      Phase          `json:"phase"`
	HostID     string         `json:"host_id"`
	Players    []PlayerView   `json:"players"`
	Board      board.Snapshot `json:"board"`
	Ranking    []RankEntry    `json:"ranking,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Roster returns the players in join order.
func (s *Session) Roster() []PlayerView {
	players := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].seq < players[j].seq })

	out := make([]PlayerView, len(players))
	for i, p := range players {
		out[i] = PlayerView{
			ID:        p.ID,
			Nickname:  p.Nickname,
			Score:     p.Score,
			Selection: append([]board.Coord(nil), p.Selection...),
			Ready:     p.Ready,
			Connected: p.Connected,
			Host:      p.ID == s.HostID,
		}
	}
	return out
}

func (s *Session) View() View {
	v := View{
		ID:        s.ID,
		Config:    s.Config,
		Phase:     s.Phase,
		HostID:    s.HostID,
		Players:   s.Roster(),
		Board:     s.Board.Snapshot(),
		Ranking:   append([]RankEntry(nil), s.Ranking...),
		CreatedAt: s.CreatedAt,
	}
	if !s.StartedAt.IsZero() {
		t := s.StartedAt
		v.StartedAt = &t
	}
	if !s.FinishedAt.IsZero() {
		t := s.FinishedAt
		v.FinishedAt = &t
	}
	return v
}

// ComputeRanking sorts by score descending. Equal scores share a rank and the
// next distinct score skips ahead (1, 1, 3). Every player holding the top
// score is a winner. Ties keep the input order.
func ComputeRanking(players []PlayerView) []RankEntry {
	sorted := append([]PlayerView(nil), players...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	out := make([]RankEntry, len(sorted))
	for i, p := range sorted {
		rank := i + 1
		if i > 0 && p.Score == sorted[i-1].Score {
			rank = out[i-1].Rank
		}
		out[i] = RankEntry{
			Rank:     rank,
			PlayerID: p.ID,
			Nickname: p.Nickname,
			Score:    p.Score,
			IsWinner: p.Score == sorted[0].Score,
		}
	}
	return out
}

// Winners returns the entries holding the top score.
func Winners(ranking []RankEntry) []RankEntry {
	var out []RankEntry
	for _, r := range ranking {
		if r.IsWinner {
			out = append(out, r)
		}
	}
	return out
}

// CheckInvariants verifies the lock/selection bookkeeping: every locked cell
// belongs to a rostered player, every selection matches exactly the cells
// locked to that player, and the roster fits in the session.
func (s *Session) CheckInvariants() error {
	if len(s.Players) > s.Config.MaxPlayers {
		return fmt.Errorf("%w: %d players in a %d seat session", ErrInternal, len(s.Players), s.Config.MaxPlayers)
	}

	ids := make(map[string]*Player, len(s.Players))
	for conn, p := range s.Players {
		if p.ConnID != conn {
			return fmt.Errorf("%w: player %s filed under connection %s", ErrInternal, p.ID, conn)
		}
		if p.Score < 0 {
			return fmt.Errorf("%w: negative score for %s", ErrInternal, p.ID)
		}
		ids[p.ID] = p
	}

	snap := s.Board.Snapshot()
	locked := make(map[string]map[board.Coord]bool)
	for _, row := range snap.Cells {
		for _, cell := range row {
			if cell.LockOwner == "" {
				continue
			}
			if _, ok := ids[cell.LockOwner]; !ok {
				return fmt.Errorf("%w: cell %d,%d locked by unknown player %s", ErrInternal, cell.Row, cell.Col, cell.LockOwner)
			}
			if locked[cell.LockOwner] == nil {
				locked[cell.LockOwner] = make(map[board.Coord]bool)
			}
			locked[cell.LockOwner][board.Coord{Row: cell.Row, Col: cell.Col}] = true
		}
	}

	for id, p := range ids {
		if len(p.Selection) != len(locked[id]) {
			return fmt.Errorf("%w: player %s selects %d cells but holds %d locks", ErrInternal, id, len(p.Selection), len(locked[id]))
		}
		for _, c := range p.Selection {
			if !locked[id][c] {
				return fmt.Errorf("%w: player %s selects unlocked cell %v", ErrInternal, id, c)
			}
		}
	}
	return nil
}
