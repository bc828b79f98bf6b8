package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned by stores when a row is missing or belongs to
// another firm. Callers cannot tell the two apart.
var ErrNotFound = errors.New("record not found")

type Options struct {
	DSN           string
	Logger        *slog.Logger
	SlowThreshold time.Duration
	LogSQL        bool
}

// Connect opens the shared pool. The returned handle is passed to every
// store; nothing reads it from a package variable.
func Connect(opts Options) (*gorm.DB, error) {
	if opts.DSN == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SlowThreshold == 0 {
		opts.SlowThreshold = 100 * time.Millisecond
	}

	level := logger.Warn
	if opts.LogSQL {
		level = logger.Info
	}
	lg := logger.New(
		slog.NewLogLogger(opts.Logger.Handler(), slog.LevelInfo),
		logger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gdb, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		Logger: lg,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	opts.Logger.Info("connected to database")
	return gdb, nil
}

func Ping(ctx context.Context, d *gorm.DB) error {
	sqlDB, err := d.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
