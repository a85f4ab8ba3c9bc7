package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/domain"
	"github.com/sawpanic/vaultrun/internal/persistence/postgres"
)

func TestAuditLogRepo_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewAuditLogRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO audit_log").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), domain.AuditEntry{
		Timestamp:     time.Now(),
		EventType:     "trade_execution",
		Severity:      domain.SeverityInfo,
		UserID:        "user1",
		CorrelationID: "cycle-1",
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLogRepo_Last_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewAuditLogRepo(db, time.Second)

	mock.ExpectQuery("SELECT entry_id, timestamp").
		WillReturnRows(sqlmock.NewRows(nil))

	_, ok, err := repo.Last(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuditLogRepo_Last_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewAuditLogRepo(db, time.Second)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"entry_id", "timestamp", "event_type", "severity", "user_id", "wallet_address", "trader_address",
		"event_data", "decision_rationale", "risk_assessment", "trade_details", "transaction_signature",
		"error_message", "system_state", "calculation_inputs", "calculation_outputs", "decision_factors",
		"validation_results", "performance_metrics", "context_snapshot", "correlation_id",
		"entry_hash", "previous_entry_hash",
	}).AddRow("e1", now, "trade_execution", "info", "user1", "", "", []byte(`{}`), "", []byte(`{}`), []byte(`{}`), "",
		"", []byte(`{}`), []byte(`{}`), []byte(`{}`), []byte(`{}`), []byte(`{}`), []byte(`{}`), []byte(`{}`), "cycle-1",
		"hash1", "hash0")

	mock.ExpectQuery("SELECT entry_id, timestamp").WillReturnRows(rows)

	entry, ok, err := repo.Last(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cycle-1", entry.CorrelationID)
	assert.Equal(t, "hash1", entry.EntryHash)
}
