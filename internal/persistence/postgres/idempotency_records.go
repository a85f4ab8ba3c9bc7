package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/vaultrun/internal/domain"
)

// IdempotencyRepo persists the idempotency_records table and satisfies
// idempotency.Store.
type IdempotencyRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewIdempotencyRepo constructs an IdempotencyRepo.
func NewIdempotencyRepo(db *sqlx.DB, timeout time.Duration) *IdempotencyRepo {
	return &IdempotencyRepo{db: db, timeout: timeout}
}

// Get looks up a reservation by its idempotency key.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (domain.IdempotencyRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT idempotency_key, operation, user_id, state, trade_id, transaction_signature,
			   created_at, started_at, completed_at, operation_data, result_data, error_details, checksum
		FROM idempotency_records
		WHERE idempotency_key = $1`

	var rec domain.IdempotencyRecord
	var opData, resData []byte

	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&rec.IdemKey, &rec.Operation, &rec.UserID, &rec.State, &rec.TradeID, &rec.TxSignature,
		&rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt, &opData, &resData, &rec.Error, &rec.Checksum)
	if err == sql.ErrNoRows {
		return domain.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return domain.IdempotencyRecord{}, false, fmt.Errorf("postgres: get idempotency record: %w", err)
	}

	_ = json.Unmarshal(opData, &rec.OperationData)
	_ = json.Unmarshal(resData, &rec.ResultData)
	return rec, true, nil
}

// Put inserts a new reservation row or refreshes an existing one's state,
// keyed by the idempotency key's uniqueness constraint.
func (r *IdempotencyRepo) Put(ctx context.Context, rec domain.IdempotencyRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opData, err := json.Marshal(rec.OperationData)
	if err != nil {
		return fmt.Errorf("postgres: marshal operation data: %w", err)
	}
	resData, err := json.Marshal(rec.ResultData)
	if err != nil {
		return fmt.Errorf("postgres: marshal result data: %w", err)
	}

	query := `
		INSERT INTO idempotency_records
			(idempotency_key, operation, user_id, state, trade_id, transaction_signature,
			 created_at, started_at, completed_at, operation_data, result_data, error_details, checksum)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			state = EXCLUDED.state,
			trade_id = EXCLUDED.trade_id,
			transaction_signature = EXCLUDED.transaction_signature,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			result_data = EXCLUDED.result_data,
			error_details = EXCLUDED.error_details,
			checksum = EXCLUDED.checksum,
			updated_at = NOW()`

	_, err = r.db.ExecContext(ctx, query,
		rec.IdemKey, rec.Operation, rec.UserID, rec.State, rec.TradeID, rec.TxSignature,
		rec.CreatedAt, rec.StartedAt, rec.CompletedAt, opData, resData, rec.Error, rec.Checksum)
	if err != nil {
		return fmt.Errorf("postgres: put idempotency record: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes terminal-state (confirmed, failed, cancelled,
// expired) records created before cutoff, run periodically to keep the
// table bounded.
func (r *IdempotencyRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE created_at < $1 AND state IN ('confirmed', 'failed', 'cancelled', 'expired')`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge idempotency records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: rows affected after purge: %w", err)
	}
	return int(n), nil
}
