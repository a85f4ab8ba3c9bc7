package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/persistence/postgres"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return sqlx.NewDb(sqlDB, "postgres"), mock
}

func TestTraderProfileRepo_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewTraderProfileRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO trader_profiles").
		WithArgs(sqlmock.AnyArg(), "WalletABC", sqlmock.AnyArg(), sqlmock.AnyArg(), true,
			12, "4.5", "82.1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), postgres.TraderProfile{
		WalletAddress:     "WalletABC",
		FirstSeen:         time.Now(),
		LastActivity:      time.Now(),
		IsActive:          true,
		TotalTrades:       12,
		TotalVolumeSOL:    decimal.RequireFromString("4.5"),
		CurrentTrustScore: decimal.RequireFromString("82.1"),
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTraderProfileRepo_GetByWallet_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewTraderProfileRepo(db, time.Second)

	mock.ExpectQuery("SELECT trader_id, wallet_address").
		WithArgs("Missing").
		WillReturnRows(sqlmock.NewRows(nil))

	p, err := repo.GetByWallet(context.Background(), "Missing")
	require.NoError(t, err)
	assert.Nil(t, p)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTraderProfileRepo_GetByWallet_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewTraderProfileRepo(db, time.Second)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"trader_id", "wallet_address", "first_seen", "last_activity", "is_active",
		"total_trades", "total_volume_sol", "current_trust_score", "performance_rank",
		"created_at", "updated_at",
	}).AddRow("t1", "WalletABC", now, now, true, 3, "1.23", "70.5", nil, now, now)

	mock.ExpectQuery("SELECT trader_id, wallet_address").
		WithArgs("WalletABC").
		WillReturnRows(rows)

	p, err := repo.GetByWallet(context.Background(), "WalletABC")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "WalletABC", p.WalletAddress)
	assert.True(t, p.CurrentTrustScore.Equal(decimal.RequireFromString("70.5")))
}

func TestTraderProfileRepo_WalletsByActivityWindow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewTraderProfileRepo(db, time.Second)

	rows := sqlmock.NewRows([]string{"wallet_address"}).AddRow("W1").AddRow("W2")
	mock.ExpectQuery("SELECT wallet_address").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	wallets, err := repo.WalletsByActivityWindow(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"W1", "W2"}, wallets)
}
