package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/persistence/postgres"
)

func TestTraderRankingRepo_InsertBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewTraderRankingRepo(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO trader_rankings")
	mock.ExpectExec("INSERT INTO trader_rankings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO trader_rankings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.InsertBatch(context.Background(), []postgres.TraderRankingRow{
		{
			CalculationTimestamp: time.Now(),
			PeriodDays:           30,
			AlgorithmVersion:     "v1",
			WalletAddress:        "W1",
			Rank:                 1,
			TrustScore:           decimal.RequireFromString("90"),
			MinTrustScoreTier:    "elite",
			IsEligible:           true,
		},
		{
			CalculationTimestamp: time.Now(),
			PeriodDays:           30,
			AlgorithmVersion:     "v1",
			WalletAddress:        "W2",
			Rank:                 2,
			TrustScore:           decimal.RequireFromString("80"),
			MinTrustScoreTier:    "trusted",
			IsEligible:           true,
		},
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTraderRankingRepo_InsertBatch_Empty(t *testing.T) {
	db, _ := newMockDB(t)
	repo := postgres.NewTraderRankingRepo(db, time.Second)

	err := repo.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
}

func TestTraderRankingRepo_LatestSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewTraderRankingRepo(db, time.Second)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"ranking_id", "calculation_timestamp", "period_days", "algorithm_version", "wallet_address",
		"rank", "trust_score", "performance_metrics", "eligibility_check", "min_trust_score_tier",
		"is_eligible", "created_at",
	}).AddRow("r1", now, 30, "v1", "W1", 1, "90", []byte(`{}`), []byte(`{}`), "elite", true, now)

	mock.ExpectQuery("SELECT ranking_id, calculation_timestamp").WillReturnRows(rows)

	out, err := repo.LatestSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "W1", out[0].WalletAddress)
	assert.True(t, out[0].TrustScore.Equal(decimal.RequireFromString("90")))
}
