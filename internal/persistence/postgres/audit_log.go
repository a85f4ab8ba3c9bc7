package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/vaultrun/internal/domain"
)

// AuditLogRepo persists the append-only audit_log table and satisfies
// audit.Store.
type AuditLogRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAuditLogRepo constructs an AuditLogRepo.
func NewAuditLogRepo(db *sqlx.DB, timeout time.Duration) *AuditLogRepo {
	return &AuditLogRepo{db: db, timeout: timeout}
}

// Insert appends one hash-chained entry. Rows are never updated or
// deleted once written.
func (r *AuditLogRepo) Insert(ctx context.Context, entry domain.AuditEntry) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}

	eventData, _ := json.Marshal(entry.EventData)
	riskAssessment, _ := json.Marshal(entry.RiskAssessment)
	tradeDetails, _ := json.Marshal(entry.TradeDetails)
	systemState, _ := json.Marshal(entry.SystemState)
	calcInputs, _ := json.Marshal(entry.CalculationInputs)
	calcOutputs, _ := json.Marshal(entry.CalculationOutputs)
	decisionFactors, _ := json.Marshal(entry.DecisionFactors)
	validationResults, _ := json.Marshal(entry.ValidationResults)
	performanceMetrics, _ := json.Marshal(entry.PerformanceMetrics)
	contextSnapshot, _ := json.Marshal(entry.ContextSnapshot)

	query := `
		INSERT INTO audit_log
			(entry_id, timestamp, event_type, severity, user_id, wallet_address, trader_address,
			 event_data, decision_rationale, risk_assessment, trade_details, transaction_signature,
			 error_message, system_state, calculation_inputs, calculation_outputs, decision_factors,
			 validation_results, performance_metrics, context_snapshot, correlation_id,
			 entry_hash, previous_entry_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	_, err := r.db.ExecContext(ctx, query,
		entry.EntryID, entry.Timestamp, entry.EventType, entry.Severity, entry.UserID, entry.Wallet, entry.TraderWallet,
		eventData, entry.DecisionRationale, riskAssessment, tradeDetails, entry.TxSignature,
		entry.Error, systemState, calcInputs, calcOutputs, decisionFactors,
		validationResults, performanceMetrics, contextSnapshot, entry.CorrelationID,
		entry.EntryHash, entry.PreviousEntryHash)
	if err != nil {
		return fmt.Errorf("postgres: insert audit entry: %w", err)
	}
	return nil
}

// Last returns the most recently written entry, used by audit.New to
// resume the hash chain after a restart.
func (r *AuditLogRepo) Last(ctx context.Context) (domain.AuditEntry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT entry_id, timestamp, event_type, severity, user_id, wallet_address, trader_address,
			   event_data, decision_rationale, risk_assessment, trade_details, transaction_signature,
			   error_message, system_state, calculation_inputs, calculation_outputs, decision_factors,
			   validation_results, performance_metrics, context_snapshot, correlation_id,
			   entry_hash, previous_entry_hash
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT 1`

	var e domain.AuditEntry
	var eventData, riskAssessment, tradeDetails, systemState, calcInputs, calcOutputs, decisionFactors, validationResults, performanceMetrics, contextSnapshot []byte

	err := r.db.QueryRowContext(ctx, query).Scan(
		&e.EntryID, &e.Timestamp, &e.EventType, &e.Severity, &e.UserID, &e.Wallet, &e.TraderWallet,
		&eventData, &e.DecisionRationale, &riskAssessment, &tradeDetails, &e.TxSignature,
		&e.Error, &systemState, &calcInputs, &calcOutputs, &decisionFactors,
		&validationResults, &performanceMetrics, &contextSnapshot, &e.CorrelationID,
		&e.EntryHash, &e.PreviousEntryHash)
	if err == sql.ErrNoRows {
		return domain.AuditEntry{}, false, nil
	}
	if err != nil {
		return domain.AuditEntry{}, false, fmt.Errorf("postgres: last audit entry: %w", err)
	}

	_ = json.Unmarshal(eventData, &e.EventData)
	_ = json.Unmarshal(riskAssessment, &e.RiskAssessment)
	_ = json.Unmarshal(tradeDetails, &e.TradeDetails)
	_ = json.Unmarshal(systemState, &e.SystemState)
	_ = json.Unmarshal(calcInputs, &e.CalculationInputs)
	_ = json.Unmarshal(calcOutputs, &e.CalculationOutputs)
	_ = json.Unmarshal(decisionFactors, &e.DecisionFactors)
	_ = json.Unmarshal(validationResults, &e.ValidationResults)
	_ = json.Unmarshal(performanceMetrics, &e.PerformanceMetrics)
	_ = json.Unmarshal(contextSnapshot, &e.ContextSnapshot)

	return e, true, nil
}
