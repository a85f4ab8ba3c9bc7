package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// TraderProfile is the row shape of trader_profiles.
type TraderProfile struct {
	TraderID          string
	WalletAddress     string
	FirstSeen         time.Time
	LastActivity      time.Time
	IsActive          bool
	TotalTrades       int
	TotalVolumeSOL    decimal.Decimal
	CurrentTrustScore decimal.Decimal
	PerformanceRank   *int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TraderProfileRepo persists trader_profiles.
type TraderProfileRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTraderProfileRepo constructs a TraderProfileRepo.
func NewTraderProfileRepo(db *sqlx.DB, timeout time.Duration) *TraderProfileRepo {
	return &TraderProfileRepo{db: db, timeout: timeout}
}

// Upsert inserts or refreshes a trader's profile row, keyed by wallet
// address's uniqueness constraint.
func (r *TraderProfileRepo) Upsert(ctx context.Context, p TraderProfile) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if p.TraderID == "" {
		p.TraderID = uuid.NewString()
	}

	query := `
		INSERT INTO trader_profiles
			(trader_id, wallet_address, first_seen, last_activity, is_active,
			 total_trades, total_volume_sol, current_trust_score, performance_rank)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (wallet_address) DO UPDATE SET
			last_activity = EXCLUDED.last_activity,
			is_active = EXCLUDED.is_active,
			total_trades = EXCLUDED.total_trades,
			total_volume_sol = EXCLUDED.total_volume_sol,
			current_trust_score = EXCLUDED.current_trust_score,
			performance_rank = EXCLUDED.performance_rank,
			updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		p.TraderID, p.WalletAddress, p.FirstSeen, p.LastActivity, p.IsActive,
		p.TotalTrades, p.TotalVolumeSOL.String(), p.CurrentTrustScore.String(), p.PerformanceRank)
	if err != nil {
		return fmt.Errorf("postgres: upsert trader profile: %w", err)
	}
	return nil
}

// GetByWallet returns the profile for a wallet, or nil if not found.
func (r *TraderProfileRepo) GetByWallet(ctx context.Context, wallet string) (*TraderProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT trader_id, wallet_address, first_seen, last_activity, is_active,
			   total_trades, total_volume_sol, current_trust_score, performance_rank,
			   created_at, updated_at
		FROM trader_profiles
		WHERE wallet_address = $1`

	var p TraderProfile
	var volumeStr, scoreStr string
	err := r.db.QueryRowContext(ctx, query, wallet).Scan(
		&p.TraderID, &p.WalletAddress, &p.FirstSeen, &p.LastActivity, &p.IsActive,
		&p.TotalTrades, &volumeStr, &scoreStr, &p.PerformanceRank,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get trader profile: %w", err)
	}

	p.TotalVolumeSOL, _ = decimal.NewFromString(volumeStr)
	p.CurrentTrustScore, _ = decimal.NewFromString(scoreStr)
	return &p, nil
}

// ListActive returns every active trader, ordered by trust score
// descending, honoring the teacher's `WHERE is_active` partial-index idiom.
func (r *TraderProfileRepo) ListActive(ctx context.Context, limit int) ([]TraderProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT trader_id, wallet_address, first_seen, last_activity, is_active,
			   total_trades, total_volume_sol, current_trust_score, performance_rank,
			   created_at, updated_at
		FROM trader_profiles
		WHERE is_active = true
		ORDER BY current_trust_score DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active traders: %w", err)
	}
	defer rows.Close()

	var profiles []TraderProfile
	for rows.Next() {
		var p TraderProfile
		var volumeStr, scoreStr string
		if err := rows.Scan(&p.TraderID, &p.WalletAddress, &p.FirstSeen, &p.LastActivity, &p.IsActive,
			&p.TotalTrades, &volumeStr, &scoreStr, &p.PerformanceRank, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan trader profile: %w", err)
		}
		p.TotalVolumeSOL, _ = decimal.NewFromString(volumeStr)
		p.CurrentTrustScore, _ = decimal.NewFromString(scoreStr)
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate trader profiles: %w", err)
	}
	return profiles, nil
}

// WalletsByActivityWindow returns wallets active since cutoff, used by
// the ingestion scheduler to pick which leaderboard candidates to refresh.
func (r *TraderProfileRepo) WalletsByActivityWindow(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT wallet_address
		FROM trader_profiles
		WHERE last_activity >= $1 AND is_active = true
		ORDER BY last_activity DESC`

	var wallets []string
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wallets by activity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var wallet string
		if err := rows.Scan(&wallet); err != nil {
			return nil, fmt.Errorf("postgres: scan wallet: %w", err)
		}
		wallets = append(wallets, wallet)
	}
	return wallets, rows.Err()
}
