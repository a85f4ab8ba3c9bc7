// Package idempotency implements the §4.14 idempotency manager: derived
// SHA-256 keys per operation family, a pending/started/confirmed/failed
// state machine, tamper-evident checksums, and 30-day purge of
// terminal-state records.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/vaultrun/internal/domain"
)

const (
	startedTimeout = 5 * time.Minute
	bucketSize     = 5 * time.Minute
	retentionDays  = 30
)

// Store persists idempotency records keyed by IdemKey.
type Store interface {
	Get(ctx context.Context, key string) (domain.IdempotencyRecord, bool, error)
	Put(ctx context.Context, rec domain.IdempotencyRecord) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Manager guards trade-generation and trade-execution operations against
// duplicate effects.
type Manager struct {
	store Store
	log   zerolog.Logger
}

// New constructs an idempotency Manager.
func New(store Store, log zerolog.Logger) *Manager {
	return &Manager{store: store, log: log.With().Str("component", "idempotency_manager").Logger()}
}

// TradeGenerationKey derives the idempotency key for a trade-generation
// call: SHA-256 over (user_id, hash(strategy_data), hash(portfolio_state),
// 5-minute timestamp bucket).
func TradeGenerationKey(userID string, strategyData, portfolioState map[string]any, at time.Time) (string, error) {
	strategyHash, err := hashJSON(strategyData)
	if err != nil {
		return "", err
	}
	portfolioHash, err := hashJSON(portfolioState)
	if err != nil {
		return "", err
	}
	return hashTuple(userID, strategyHash, portfolioHash, bucketKey(at)), nil
}

// TradeExecutionKey derives the idempotency key for a trade-execution
// call: SHA-256 over (user_id, trade payload with mutable fields
// removed, 5-minute bucket of trade.created_at). Mutable fields (status,
// tx signature, timestamps other than CreatedAt, execution error, risk
// score) are excluded so retries of the same intended trade collide.
func TradeExecutionKey(userID string, trade domain.GeneratedTrade) (string, error) {
	stable := map[string]any{
		"trade_id":       trade.TradeID,
		"user_id":        trade.UserID,
		"vault_address":  trade.VaultAddress,
		"type":           trade.Type,
		"from_mint":      trade.SwapInstruction.FromMint,
		"to_mint":        trade.SwapInstruction.ToMint,
		"from_amount":    trade.SwapInstruction.FromAmount.String(),
		"priority":       trade.Priority,
	}
	tradeHash, err := hashJSON(stable)
	if err != nil {
		return "", err
	}
	return hashTuple(userID, tradeHash, bucketKey(trade.CreatedAt)), nil
}

// CheckAndReserve transitions absent -> started for key, returning
// (shouldProceed, existing record if the prior attempt is terminal and
// reusable).
func (m *Manager) CheckAndReserve(ctx context.Context, key string, op domain.IdempotencyOperation, userID string, operationData map[string]any, now time.Time) (bool, *domain.IdempotencyRecord, error) {
	existing, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return false, nil, fmt.Errorf("idempotency: get %s: %w", key, err)
	}

	if ok {
		valid, err := m.verify(existing)
		if err != nil {
			return false, nil, err
		}
		if !valid {
			m.log.Error().Str("key", key).Msg("idempotency record checksum mismatch, tamper suspected")
			return false, nil, nil
		}

		switch existing.State {
		case domain.IdemConfirmed:
			return false, &existing, nil
		case domain.IdemStarted:
			if existing.StartedAt != nil && now.Sub(*existing.StartedAt) < startedTimeout {
				return false, nil, nil
			}
			existing.State = domain.IdemFailed
			existing.Error = "started timeout exceeded"
			if err := m.save(ctx, existing); err != nil {
				return false, nil, err
			}
		case domain.IdemFailed, domain.IdemCancelled, domain.IdemExpired:
			// fall through to retry
		}
	}

	rec := domain.IdempotencyRecord{
		IdemKey:       key,
		Operation:     op,
		UserID:        userID,
		State:         domain.IdemStarted,
		CreatedAt:     now,
		StartedAt:     &now,
		OperationData: operationData,
	}
	if err := m.save(ctx, rec); err != nil {
		return false, nil, err
	}
	return true, nil, nil
}

// RecordResult transitions started -> {confirmed | failed}, recomputing
// the checksum over the finished record.
func (m *Manager) RecordResult(ctx context.Context, key string, success bool, tradeID, txSignature string, resultData map[string]any, errMsg string, now time.Time) error {
	rec, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("idempotency: get %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("idempotency: record_result on missing key %s", key)
	}

	rec.TradeID = tradeID
	rec.TxSignature = txSignature
	rec.ResultData = resultData
	rec.CompletedAt = &now
	if success {
		rec.State = domain.IdemConfirmed
	} else {
		rec.State = domain.IdemFailed
		rec.Error = errMsg
	}

	return m.save(ctx, rec)
}

// Purge deletes terminal-state records older than 30 days.
func (m *Manager) Purge(ctx context.Context, now time.Time) (int, error) {
	return m.store.PurgeOlderThan(ctx, now.AddDate(0, 0, -retentionDays))
}

func (m *Manager) save(ctx context.Context, rec domain.IdempotencyRecord) error {
	rec.Checksum = ""
	sum, err := hashJSON(rec)
	if err != nil {
		return err
	}
	rec.Checksum = sum
	return m.store.Put(ctx, rec)
}

func (m *Manager) verify(rec domain.IdempotencyRecord) (bool, error) {
	want := rec.Checksum
	rec.Checksum = ""
	got, err := hashJSON(rec)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

func hashJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("idempotency: marshal: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func hashTuple(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func bucketKey(at time.Time) string {
	bucket := at.UTC().Unix() / int64(bucketSize.Seconds())
	return fmt.Sprintf("%d", bucket)
}
