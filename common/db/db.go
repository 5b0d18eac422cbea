package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/lyzr/materials/common/config"
	"github.com/lyzr/materials/common/logger"
)

// DB is the metadata connection pool
type DB struct {
	*pgxpool.Pool
	log *logger.Logger
}

// New opens the pool and pings it. Queries are traced to log at
// cfg.Database.LogLevel.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxIdleTime

	level, err := tracelog.LogLevelFromString(cfg.Database.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("database log level: %w", err)
	}
	poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   queryLogger{log: log},
		LogLevel: level,
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database connected",
		"host", cfg.Database.Host,
		"db", cfg.Database.Database,
		"max_conns", poolConfig.MaxConns,
		"log_level", level.String(),
	)

	return &DB{Pool: pool, log: log}, nil
}

// Close closes the pool after logging its final counters
func (db *DB) Close() {
	stat := db.Stat()
	db.log.Info("closing database connection pool",
		"acquired", stat.AcquireCount(),
		"canceled_acquires", stat.CanceledAcquireCount(),
	)
	db.Pool.Close()
}

// Health pings the database
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return db.Pool.Ping(ctx)
}

// InTx runs fn inside a transaction, committing when fn returns nil
func (db *DB) InTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, db.Pool, fn)
}

// queryLogger forwards pgx trace output to the service logger
type queryLogger struct {
	log *logger.Logger
}

func (l queryLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	log := l.log.WithContext(ctx)
	args := make([]any, 0, 2*len(data))
	for k, v := range data {
		// arguments may carry user content
		if k == "args" {
			continue
		}
		args = append(args, k, v)
	}

	switch level {
	case tracelog.LogLevelError:
		log.Error("pgx: "+msg, args...)
	case tracelog.LogLevelWarn:
		log.Warn("pgx: "+msg, args...)
	case tracelog.LogLevelInfo:
		log.Info("pgx: "+msg, args...)
	default:
		log.Debug("pgx: "+msg, args...)
	}
}
