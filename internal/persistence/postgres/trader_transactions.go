package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// TraderTransaction is the row shape of trader_transactions.
type TraderTransaction struct {
	TransactionID     string
	WalletAddress     string
	Signature         string
	BlockTime         time.Time
	Slot              uint64
	TransactionType   string
	ProgramID         string
	InputTokenMint    string
	OutputTokenMint   string
	InputAmount       int64
	OutputAmount      int64
	InputDecimals     int
	OutputDecimals    int
	InputUSD          decimal.Decimal
	OutputUSD         decimal.Decimal
	NetUSD            decimal.Decimal
	ProcessedAt       time.Time
	PriceDataSource   string
	RawTransactionData map[string]any
}

// TraderTransactionRepo persists trader_transactions.
type TraderTransactionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTraderTransactionRepo constructs a TraderTransactionRepo.
func NewTraderTransactionRepo(db *sqlx.DB, timeout time.Duration) *TraderTransactionRepo {
	return &TraderTransactionRepo{db: db, timeout: timeout}
}

// Insert records a decoded swap, idempotent on the unique tx signature.
func (r *TraderTransactionRepo) Insert(ctx context.Context, tx TraderTransaction) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if tx.TransactionID == "" {
		tx.TransactionID = uuid.NewString()
	}

	raw, err := json.Marshal(tx.RawTransactionData)
	if err != nil {
		return fmt.Errorf("postgres: marshal raw transaction data: %w", err)
	}

	query := `
		INSERT INTO trader_transactions
			(transaction_id, wallet_address, signature, block_time, slot, transaction_type,
			 program_id, input_token_mint, output_token_mint, input_amount, output_amount,
			 input_decimals, output_decimals, input_usd, output_usd, net_usd, processed_at,
			 price_data_source, raw_transaction_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (signature) DO NOTHING`

	_, err = r.db.ExecContext(ctx, query,
		tx.TransactionID, tx.WalletAddress, tx.Signature, tx.BlockTime, tx.Slot, tx.TransactionType,
		tx.ProgramID, tx.InputTokenMint, tx.OutputTokenMint, tx.InputAmount, tx.OutputAmount,
		tx.InputDecimals, tx.OutputDecimals, tx.InputUSD.String(), tx.OutputUSD.String(), tx.NetUSD.String(),
		tx.ProcessedAt, tx.PriceDataSource, raw)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return fmt.Errorf("postgres: insert trader transaction (%s): %w", pqErr.Code, err)
		}
		return fmt.Errorf("postgres: insert trader transaction: %w", err)
	}
	return nil
}

// ListByWallet returns a wallet's transactions within [from, to], most
// recent first, for metrics computation (§4.6).
func (r *TraderTransactionRepo) ListByWallet(ctx context.Context, wallet string, from, to time.Time, limit int) ([]TraderTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT transaction_id, wallet_address, signature, block_time, slot, transaction_type,
			   program_id, input_token_mint, output_token_mint, input_amount, output_amount,
			   input_decimals, output_decimals, input_usd, output_usd, net_usd, processed_at,
			   price_data_source, raw_transaction_data
		FROM trader_transactions
		WHERE wallet_address = $1 AND block_time >= $2 AND block_time <= $3
		ORDER BY block_time DESC
		LIMIT $4`

	rows, err := r.db.QueryContext(ctx, query, wallet, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions by wallet: %w", err)
	}
	defer rows.Close()

	var out []TraderTransaction
	for rows.Next() {
		tx, err := scanTraderTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTraderTransaction(rows *sql.Rows) (TraderTransaction, error) {
	var tx TraderTransaction
	var inUSD, outUSD, netUSD string
	var raw []byte

	err := rows.Scan(
		&tx.TransactionID, &tx.WalletAddress, &tx.Signature, &tx.BlockTime, &tx.Slot, &tx.TransactionType,
		&tx.ProgramID, &tx.InputTokenMint, &tx.OutputTokenMint, &tx.InputAmount, &tx.OutputAmount,
		&tx.InputDecimals, &tx.OutputDecimals, &inUSD, &outUSD, &netUSD, &tx.ProcessedAt,
		&tx.PriceDataSource, &raw)
	if err != nil {
		return tx, fmt.Errorf("postgres: scan trader transaction: %w", err)
	}

	tx.InputUSD, _ = decimal.NewFromString(inUSD)
	tx.OutputUSD, _ = decimal.NewFromString(outUSD)
	tx.NetUSD, _ = decimal.NewFromString(netUSD)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &tx.RawTransactionData)
	}
	return tx, nil
}
