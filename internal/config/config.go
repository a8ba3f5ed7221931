package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/match3-backend/internal/engine"
)

type Config struct {
	HTTPAddr string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel string

	BoardRows         int
	BoardCols         int
	LobbyTimeoutSec   int
	ScoreAttackTarget int

	ValidatorWorkers int
	ValidateTimeout  time.Duration

	FinishedRetention time.Duration
	SweepSchedule     string

	AllowedOrigins []string
}

// Defaults for every setting Load understands.
func Defaults() Config {
	return Config{
		HTTPAddr:          ":8080",
		LogLevel:          "info",
		BoardRows:         engine.DefaultBoardSide,
		BoardCols:         engine.DefaultBoardSide,
		LobbyTimeoutSec:   engine.DefaultLobbyTimeout,
		ScoreAttackTarget: engine.DefaultTargetScore,
		ValidatorWorkers:  4,
		ValidateTimeout:   2 * time.Second,
		FinishedRetention: 10 * time.Minute,
		SweepSchedule:     "@every 1m",
	}
}

// Load reads an optional .env file and then the environment. Every bad
// value is reported, not just the first.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from lookup, which returns "" for unset keys.
func FromEnv(lookup func(string) string) (Config, error) {
	c := Defaults()
	var errs error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := strings.TrimSpace(lookup(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(lookup(key))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str("HTTP_ADDR", &c.HTTPAddr)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_ADDR", &c.RedisAddr)
	c.RedisPassword = lookup("REDIS_PASSWORD")
	num("REDIS_DB", &c.RedisDB)
	str("LOG_LEVEL", &c.LogLevel)
	num("BOARD_ROWS", &c.BoardRows)
	num("BOARD_COLS", &c.BoardCols)
	num("LOBBY_TIMEOUT_SEC", &c.LobbyTimeoutSec)
	num("SCORE_ATTACK_TARGET", &c.ScoreAttackTarget)
	num("VALIDATOR_WORKERS", &c.ValidatorWorkers)
	str("SWEEP_SCHEDULE", &c.SweepSchedule)
	dur("FINISHED_RETENTION", &c.FinishedRetention)

	var timeoutMS int
	num("VALIDATE_TIMEOUT_MS", &timeoutMS)
	if timeoutMS != 0 {
		c.ValidateTimeout = time.Duration(timeoutMS) * time.Millisecond
	}

	if v := lookup("ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}

	errs = multierr.Append(errs, c.Validate())
	if errs != nil {
		return Config{}, errs
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs error
	if c.HTTPAddr == "" {
		errs = multierr.Append(errs, fmt.Errorf("HTTP_ADDR must not be empty"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = multierr.Append(errs, fmt.Errorf("LOG_LEVEL: unknown level %q", c.LogLevel))
	}
	if c.BoardRows < engine.MinBoardSide || c.BoardRows > engine.MaxBoardSide {
		errs = multierr.Append(errs, fmt.Errorf("BOARD_ROWS must be between %d and %d", engine.MinBoardSide, engine.MaxBoardSide))
	}
	if c.BoardCols < engine.MinBoardSide || c.BoardCols > engine.MaxBoardSide {
		errs = multierr.Append(errs, fmt.Errorf("BOARD_COLS must be between %d and %d", engine.MinBoardSide, engine.MaxBoardSide))
	}
	if c.LobbyTimeoutSec < 1 {
		errs = multierr.Append(errs, fmt.Errorf("LOBBY_TIMEOUT_SEC must be positive"))
	}
	if c.ScoreAttackTarget < 1 {
		errs = multierr.Append(errs, fmt.Errorf("SCORE_ATTACK_TARGET must be positive"))
	}
	if c.ValidatorWorkers < 1 {
		errs = multierr.Append(errs, fmt.Errorf("VALIDATOR_WORKERS must be positive"))
	}
	if c.ValidateTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("VALIDATE_TIMEOUT_MS must be positive"))
	}
	if c.FinishedRetention < 0 {
		errs = multierr.Append(errs, fmt.Errorf("FINISHED_RETENTION must not be negative"))
	}
	if c.RedisDB < 0 {
		errs = multierr.Append(errs, fmt.Errorf("REDIS_DB must not be negative"))
	}
	if strings.TrimSpace(c.SweepSchedule) == "" {
		errs = multierr.Append(errs, fmt.Errorf("SWEEP_SCHEDULE must not be empty"))
	}
	return errs
}

// SessionDefaults is the part of the config new sessions inherit.
func (c Config) SessionDefaults() engine.Config {
	return engine.Config{
		Rows:            c.BoardRows,
		Cols:            c.BoardCols,
		LobbyTimeoutSec: c.LobbyTimeoutSec,
		TargetScore:     c.ScoreAttackTarget,
	}
}
