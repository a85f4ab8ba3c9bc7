package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/vaultrun/internal/domain"
)

// UserRiskProfileRepo persists user_risk_profiles, the per-subscriber
// configuration the orchestrator reads once per cycle to decide which
// vaults to reconcile and how aggressively to size trades.
type UserRiskProfileRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewUserRiskProfileRepo constructs a UserRiskProfileRepo.
func NewUserRiskProfileRepo(db *sqlx.DB, timeout time.Duration) *UserRiskProfileRepo {
	return &UserRiskProfileRepo{db: db, timeout: timeout}
}

// Upsert inserts or refreshes a subscriber's risk configuration, keyed by
// the unique constraint on user_id.
func (r *UserRiskProfileRepo) Upsert(ctx context.Context, p domain.UserRiskProfile) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO user_risk_profiles
			(user_id, wallet, vault_address, risk_profile, max_position_size_native, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			wallet = EXCLUDED.wallet,
			vault_address = EXCLUDED.vault_address,
			risk_profile = EXCLUDED.risk_profile,
			max_position_size_native = EXCLUDED.max_position_size_native,
			active = EXCLUDED.active,
			updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		p.UserID, p.Wallet, p.VaultAddress, string(p.RiskProfile),
		p.MaxPositionSizeNative.String(), p.Active)
	if err != nil {
		return fmt.Errorf("postgres: upsert user risk profile: %w", err)
	}
	return nil
}

// ActiveUsers implements orchestrator.UserStore, returning every subscriber
// whose copy-trading subscription is currently active.
func (r *UserRiskProfileRepo) ActiveUsers(ctx context.Context) ([]domain.UserRiskProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT user_id, wallet, vault_address, risk_profile, max_position_size_native, active
		FROM user_risk_profiles
		WHERE active = true
		ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active users: %w", err)
	}
	defer rows.Close()

	var users []domain.UserRiskProfile
	for rows.Next() {
		var u domain.UserRiskProfile
		var riskProfile, sizeStr string
		if err := rows.Scan(&u.UserID, &u.Wallet, &u.VaultAddress, &riskProfile, &sizeStr, &u.Active); err != nil {
			return nil, fmt.Errorf("postgres: scan user risk profile: %w", err)
		}
		u.RiskProfile = domain.RiskProfile(riskProfile)
		u.MaxPositionSizeNative, _ = decimal.NewFromString(sizeStr)
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetByUserID returns a single subscriber's profile, or nil if not found.
func (r *UserRiskProfileRepo) GetByUserID(ctx context.Context, userID string) (*domain.UserRiskProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT user_id, wallet, vault_address, risk_profile, max_position_size_native, active
		FROM user_risk_profiles
		WHERE user_id = $1`

	var u domain.UserRiskProfile
	var riskProfile, sizeStr string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&u.UserID, &u.Wallet, &u.VaultAddress, &riskProfile, &sizeStr, &u.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get user risk profile: %w", err)
	}
	u.RiskProfile = domain.RiskProfile(riskProfile)
	u.MaxPositionSizeNative, _ = decimal.NewFromString(sizeStr)
	return &u, nil
}
