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

func TestIdempotencyRepo_Put(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewIdempotencyRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Put(context.Background(), domain.IdempotencyRecord{
		IdemKey:   "key1",
		Operation: domain.OpTradeExecution,
		UserID:    "user1",
		State:     domain.IdemPending,
		CreatedAt: time.Now(),
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewIdempotencyRepo(db, time.Second)

	mock.ExpectQuery("SELECT idempotency_key, operation").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, ok, err := repo.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIdempotencyRepo_Get_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewIdempotencyRepo(db, time.Second)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"idempotency_key", "operation", "user_id", "state", "trade_id", "transaction_signature",
		"created_at", "started_at", "completed_at", "operation_data", "result_data", "error_details", "checksum",
	}).AddRow("key1", "trade_execution", "user1", "confirmed", "trade1", "SIG123",
		now, nil, nil, []byte(`{}`), []byte(`{}`), "", "checksum1")

	mock.ExpectQuery("SELECT idempotency_key, operation").
		WithArgs("key1").
		WillReturnRows(rows)

	rec, ok, err := repo.Get(context.Background(), "key1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "SIG123", rec.TxSignature)
	assert.Equal(t, domain.IdemConfirmed, rec.State)
}

func TestIdempotencyRepo_PurgeOlderThan(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewIdempotencyRepo(db, time.Second)

	mock.ExpectExec("DELETE FROM idempotency_records").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.PurgeOlderThan(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
