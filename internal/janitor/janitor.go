package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper removes sessions that finished at least retention before now.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time, retention time.Duration) ([]string, error)
}

// Start schedules the finished-session sweep on schedule and starts the cron.
// The caller stops it with Stop.
func Start(s Sweeper, retention time.Duration, schedule string, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { Run(s, retention, logger) }); err != nil {
		return nil, err
	}
	c.Start()
	logger.Info("janitor scheduled", zap.String("schedule", schedule), zap.Duration("retention", retention))
	return c, nil
}

// Run performs one sweep.
func Run(s Sweeper, retention time.Duration, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reaped, err := s.Sweep(ctx, time.Now(), retention)
	if err != nil {
		logger.Error("finished-session sweep failed", zap.Error(err))
		return
	}
	if len(reaped) > 0 {
		logger.Info("reaped finished sessions", zap.Strings("sessions", reaped))
	}
}
