package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/persistence/postgres"
)

func TestTraderTransactionRepo_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewTraderTransactionRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO trader_transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), postgres.TraderTransaction{
		WalletAddress:   "WalletABC",
		Signature:       "SIG1",
		BlockTime:       time.Now(),
		Slot:            123,
		TransactionType: "swap",
		ProgramID:       "Program1",
		InputTokenMint:  "So1111",
		OutputTokenMint: "Mint2",
		InputAmount:     1000,
		OutputAmount:    900,
		InputDecimals:   9,
		OutputDecimals:  6,
		InputUSD:        decimal.RequireFromString("10"),
		OutputUSD:       decimal.RequireFromString("9.8"),
		NetUSD:          decimal.RequireFromString("-0.2"),
		ProcessedAt:     time.Now(),
		PriceDataSource: "pyth",
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTraderTransactionRepo_Insert_WrapsPQError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewTraderTransactionRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO trader_transactions").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})

	err := repo.Insert(context.Background(), postgres.TraderTransaction{
		WalletAddress: "WalletABC",
		Signature:     "SIG1",
		InputUSD:      decimal.Zero,
		OutputUSD:     decimal.Zero,
		NetUSD:        decimal.Zero,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "23505")
}

func TestTraderTransactionRepo_ListByWallet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewTraderTransactionRepo(db, time.Second)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"transaction_id", "wallet_address", "signature", "block_time", "slot", "transaction_type",
		"program_id", "input_token_mint", "output_token_mint", "input_amount", "output_amount",
		"input_decimals", "output_decimals", "input_usd", "output_usd", "net_usd", "processed_at",
		"price_data_source", "raw_transaction_data",
	}).AddRow("tx1", "WalletABC", "SIG1", now, int64(1), "swap", "Program1", "MintA", "MintB",
		int64(500), int64(480), 9, 6, "5.0", "4.8", "-0.2", now, "pyth", []byte(`{}`))

	mock.ExpectQuery("SELECT transaction_id, wallet_address").
		WithArgs("WalletABC", sqlmock.AnyArg(), sqlmock.AnyArg(), 50).
		WillReturnRows(rows)

	out, err := repo.ListByWallet(context.Background(), "WalletABC", now.Add(-time.Hour), now, 50)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "SIG1", out[0].Signature)
	assert.True(t, out[0].NetUSD.Equal(decimal.RequireFromString("-0.2")))
}
