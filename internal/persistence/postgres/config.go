// Package postgres implements every table in §6's Database Schemas list
// as one repository per table, following the teacher's sqlx+lib/pq
// connection/repo-constructor idiom.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string        `yaml:"dsn" env:"PG_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"PG_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"PG_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"PG_CONN_MAX_LIFETIME"`
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"PG_QUERY_TIMEOUT"`
}

// DefaultConfig returns reasonable defaults for database connections.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
}

// Manager owns the pooled connection and the collection of table repos.
type Manager struct {
	db  *sqlx.DB
	cfg Config
	log zerolog.Logger

	Traders      *TraderProfileRepo
	Transactions *TraderTransactionRepo
	Metrics      *PerformanceMetricsRepo
	Rankings     *TraderRankingRepo
	Audit        *AuditLogRepo
	Idempotency  *IdempotencyRepo
	Users        *UserRiskProfileRepo
}

// Connect opens the pool, pings it, and wires every repo.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*Manager, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Manager{
		db:           db,
		cfg:          cfg,
		log:          log.With().Str("component", "postgres").Logger(),
		Traders:      NewTraderProfileRepo(db, timeout),
		Transactions: NewTraderTransactionRepo(db, timeout),
		Metrics:      NewPerformanceMetricsRepo(db, timeout),
		Rankings:     NewTraderRankingRepo(db, timeout),
		Audit:        NewAuditLogRepo(db, timeout),
		Idempotency:  NewIdempotencyRepo(db, timeout),
		Users:        NewUserRiskProfileRepo(db, timeout),
	}, nil
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Ping checks connectivity, used by the health endpoint (§6).
func (m *Manager) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.QueryTimeout)
	defer cancel()
	return m.db.PingContext(pingCtx)
}
