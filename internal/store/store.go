package store

import (
	"context"
	"time"
)

type SessionRecord struct {
	ID              string
	Mode            string
	Theme           string
	MaxPlayers      int
	DurationMinutes int
	CreatedAt       time.Time
}

type FinalResult struct {
	PlayerID string
	Nickname string
	Score    int
	IsWinner bool
}

type RankingRow struct {
	PlayerID   string `json:"player_id"`
	Nickname   string `json:"nickname"`
	TotalScore int    `json:"total_score"`
	BestScore  int    `json:"best_score"`
	Games      int    `json:"games"`
	Wins       int    `json:"wins"`
}

// Store is the persistence collaborator. Gameplay never waits on it for
// correctness: callers log failures and carry on.
type Store interface {
	FindOrCreatePlayer(ctx context.Context, nickname string) (string, error)
	RecordSessionCreated(ctx context.Context, rec SessionRecord) error
	RecordFinalResults(ctx context.Context, sessionID string, results []FinalResult) error
	FetchHistoricalRanking(ctx context.Context, limit int) ([]RankingRow, error)
}

const DefaultRankingLimit = 10
const MaxRankingLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRankingLimit
	}
	if limit > MaxRankingLimit {
		return MaxRankingLimit
	}
	return limit
}
