package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/DoyleJ11/match3-backend/internal/engine"
)

type PlayerModel struct {
	gorm.Model
	Nickname string `gorm:"uniqueIndex;not null"`
}

func (PlayerModel) TableName() string { return "players" }

type SessionModel struct {
	ID              string `gorm:"primaryKey"`
	Mode            string `gorm:"not null"`
	Theme           string `gorm:"not null"`
	MaxPlayers      int    `gorm:"not null"`
	DurationMinutes int
	CreatedAt       time.Time
	FinishedAt      *time.Time
}

func (SessionModel) TableName() string { return "sessions" }

type ResultModel struct {
	gorm.Model
	SessionID string `gorm:"index;not null"`
	PlayerID  string `gorm:"index;not null"`
	Nickname  string `gorm:"not null"`
	Score     int    `gorm:"not null"`
	IsWinner  bool   `gorm:"not null"`
}

func (ResultModel) TableName() string { return "session_results" }

type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{db: db, logger: logger}
}

// OpenPostgres connects with a few retries and migrates the schema.
func OpenPostgres(dsn string, logger *zap.Logger) (*GormStore, error) {
	const maxRetries = 3
	const retryInterval = 2 * time.Second

	var db *gorm.DB
	var err error
	for i := 0; i <= maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			break
		}
		logger.Error("postgres connect failed, retrying", zap.Int("retry", i), zap.Error(err))
		time.Sleep(retryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := db.AutoMigrate(&PlayerModel{}, &SessionModel{}, &ResultModel{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("connected to postgres")
	return NewGormStore(db, logger), nil
}

func (s *GormStore) FindOrCreatePlayer(ctx context.Context, nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	var p PlayerModel
	err := s.db.WithContext(ctx).
		Where(PlayerModel{Nickname: nickname}).
		FirstOrCreate(&p).Error
	if err != nil {
		return "", persistence(err)
	}
	return strconv.FormatUint(uint64(p.ID), 10), nil
}

func (s *GormStore) RecordSessionCreated(ctx context.Context, rec SessionRecord) error {
	m := SessionModel{
		ID:              rec.ID,
		Mode:            rec.Mode,
		Theme:           rec.Theme,
		MaxPlayers:      rec.MaxPlayers,
		DurationMinutes: rec.DurationMinutes,
		CreatedAt:       rec.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return persistence(err)
	}
	return nil
}

func (s *GormStore) RecordFinalResults(ctx context.Context, sessionID string, results []FinalResult) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.Model(&SessionModel{}).Where("id = ?", sessionID).Update("finished_at", &now).Error; err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
		rows := make([]ResultModel, len(results))
		for i, r := range results {
			rows[i] = ResultModel{
				SessionID: sessionID,
				PlayerID:  r.PlayerID,
				Nickname:  r.Nickname,
				Score:     r.Score,
				IsWinner:  r.IsWinner,
			}
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return persistence(err)
	}
	return nil
}

func (s *GormStore) FetchHistoricalRanking(ctx context.Context, limit int) ([]RankingRow, error) {
	var rows []RankingRow
	err := s.db.WithContext(ctx).
		Model(&ResultModel{}).
		Select(`player_id, nickname,
			SUM(score) AS total_score,
			MAX(score) AS best_score,
			COUNT(*) AS games,
			SUM(CASE WHEN is_winner THEN 1 ELSE 0 END) AS wins`).
		Group("player_id, nickname").
		Order("total_score DESC, wins DESC, nickname ASC").
		Limit(clampLimit(limit)).
		Scan(&rows).Error
	if err != nil {
		return nil, persistence(err)
	}
	return rows, nil
}

func persistence(err error) error {
	return fmt.Errorf("%w: %v", engine.ErrPersistence, err)
}
