package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Memory is the store used when no database is configured.
type Memory struct {
	mu       sync.Mutex
	nextID   int
	players  map[string]string // lower-cased nickname -> id
	sessions map[string]SessionRecord
	finished map[string]time.Time
	results  []memoryResult
}

type memoryResult struct {
	sessionID string
	FinalResult
}

func NewMemory() *Memory {
	return &Memory{
		players:  make(map[string]string),
		sessions: make(map[string]SessionRecord),
		finished: make(map[string]time.Time),
	}
}

func (m *Memory) FindOrCreatePlayer(_ context.Context, nickname string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(nickname))
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.players[key]; ok {
		return id, nil
	}
	m.nextID++
	id := strconv.Itoa(m.nextID)
	m.players[key] = id
	return id, nil
}

func (m *Memory) RecordSessionCreated(_ context.Context, rec SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.ID] = rec
	return nil
}

func (m *Memory) RecordFinalResults(_ context.Context, sessionID string, results []FinalResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[sessionID] = time.Now()
	for _, r := range results {
		m.results = append(m.results, memoryResult{sessionID: sessionID, FinalResult: r})
	}
	return nil
}

func (m *Memory) FetchHistoricalRanking(_ context.Context, limit int) ([]RankingRow, error) {
	m.mu.Lock()
	byPlayer := make(map[string]*RankingRow)
	for _, r := range m.results {
		row, ok := byPlayer[r.PlayerID]
		if !ok {
			row = &RankingRow{PlayerID: r.PlayerID, Nickname: r.Nickname}
			byPlayer[r.PlayerID] = row
		}
		row.TotalScore += r.Score
		row.Games++
		if r.Score > row.BestScore {
			row.BestScore = r.Score
		}
		if r.IsWinner {
			row.Wins++
		}
	}
	m.mu.Unlock()

	rows := make([]RankingRow, 0, len(byPlayer))
	for _, r := range byPlayer {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalScore != rows[j].TotalScore {
			return rows[i].TotalScore > rows[j].TotalScore
		}
		if rows[i].Wins != rows[j].Wins {
			return rows[i].Wins > rows[j].Wins
		}
		return rows[i].Nickname < rows[j].Nickname
	})
	if n := clampLimit(limit); len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}
