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

func TestPerformanceMetricsRepo_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewPerformanceMetricsRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO trader_performance_metrics").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), postgres.PerformanceMetricsRow{
		WalletAddress:          "WalletABC",
		CalculationDate:        time.Now(),
		PeriodDays:             30,
		TotalTrades:            40,
		TotalVolumeUSD:         decimal.RequireFromString("10000"),
		TotalProfitUSD:         decimal.RequireFromString("500"),
		NetROIPercent:          decimal.RequireFromString("5"),
		SharpeRatio:            decimal.RequireFromString("1.2"),
		MaximumDrawdownPercent: decimal.RequireFromString("12"),
		Volatility:             decimal.RequireFromString("0.3"),
		WinLossRatio:           decimal.RequireFromString("1.8"),
		WinningTrades:          25,
		LosingTrades:           15,
		AverageWinUSD:          decimal.RequireFromString("40"),
		AverageLossUSD:         decimal.RequireFromString("20"),
		LargestWinUSD:          decimal.RequireFromString("300"),
		LargestLossUSD:         decimal.RequireFromString("100"),
		PerformanceScore:       decimal.RequireFromString("78"),
		RiskPenalty:            decimal.RequireFromString("5"),
		TrustScore:             decimal.RequireFromString("73"),
		DataPoints:             40,
		CalculationVersion:     "v1",
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceMetricsRepo_LatestByWallet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewPerformanceMetricsRepo(db, time.Second)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"metrics_id", "wallet_address", "calculation_date", "period_days", "total_trades",
		"total_volume_usd", "total_profit_usd", "net_roi_percent", "sharpe_ratio",
		"maximum_drawdown_percent", "volatility", "win_loss_ratio", "winning_trades", "losing_trades",
		"average_win_usd", "average_loss_usd", "largest_win_usd", "largest_loss_usd",
		"performance_score", "risk_penalty", "trust_score", "data_points", "calculation_version", "created_at",
	}).AddRow("m1", "WalletABC", now, 30, 40,
		"10000", "500", "5", "1.2",
		"12", "0.3", "1.8", 25, 15,
		"40", "20", "300", "100",
		"78", "5", "73", 40, "v1", now)

	mock.ExpectQuery("SELECT metrics_id, wallet_address").
		WithArgs("WalletABC").
		WillReturnRows(rows)

	m, err := repo.LatestByWallet(context.Background(), "WalletABC")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, m.TrustScore.Equal(decimal.RequireFromString("73")))
}
