package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// PerformanceMetricsRow is the row shape of trader_performance_metrics.
type PerformanceMetricsRow struct {
	MetricsID               string
	WalletAddress            string
	CalculationDate          time.Time
	PeriodDays               int
	TotalTrades              int
	TotalVolumeUSD           decimal.Decimal
	TotalProfitUSD           decimal.Decimal
	NetROIPercent            decimal.Decimal
	SharpeRatio              decimal.Decimal
	MaximumDrawdownPercent   decimal.Decimal
	Volatility               decimal.Decimal
	WinLossRatio             decimal.Decimal
	WinningTrades            int
	LosingTrades             int
	AverageWinUSD            decimal.Decimal
	AverageLossUSD           decimal.Decimal
	LargestWinUSD            decimal.Decimal
	LargestLossUSD           decimal.Decimal
	PerformanceScore         decimal.Decimal
	RiskPenalty              decimal.Decimal
	TrustScore               decimal.Decimal
	DataPoints               int
	CalculationVersion       string
	CreatedAt                time.Time
}

// PerformanceMetricsRepo persists trader_performance_metrics.
type PerformanceMetricsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPerformanceMetricsRepo constructs a PerformanceMetricsRepo.
func NewPerformanceMetricsRepo(db *sqlx.DB, timeout time.Duration) *PerformanceMetricsRepo {
	return &PerformanceMetricsRepo{db: db, timeout: timeout}
}

// Insert appends one computed metrics row (§4.6); this table is
// append-only, one row per calculation run.
func (r *PerformanceMetricsRepo) Insert(ctx context.Context, m PerformanceMetricsRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if m.MetricsID == "" {
		m.MetricsID = uuid.NewString()
	}

	query := `
		INSERT INTO trader_performance_metrics
			(metrics_id, wallet_address, calculation_date, period_days, total_trades,
			 total_volume_usd, total_profit_usd, net_roi_percent, sharpe_ratio,
			 maximum_drawdown_percent, volatility, win_loss_ratio, winning_trades, losing_trades,
			 average_win_usd, average_loss_usd, largest_win_usd, largest_loss_usd,
			 performance_score, risk_penalty, trust_score, data_points, calculation_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
				$15, $16, $17, $18, $19, $20, $21, $22, $23)`

	_, err := r.db.ExecContext(ctx, query,
		m.MetricsID, m.WalletAddress, m.CalculationDate, m.PeriodDays, m.TotalTrades,
		m.TotalVolumeUSD.String(), m.TotalProfitUSD.String(), m.NetROIPercent.String(), m.SharpeRatio.String(),
		m.MaximumDrawdownPercent.String(), m.Volatility.String(), m.WinLossRatio.String(), m.WinningTrades, m.LosingTrades,
		m.AverageWinUSD.String(), m.AverageLossUSD.String(), m.LargestWinUSD.String(), m.LargestLossUSD.String(),
		m.PerformanceScore.String(), m.RiskPenalty.String(), m.TrustScore.String(), m.DataPoints, m.CalculationVersion)
	if err != nil {
		return fmt.Errorf("postgres: insert performance metrics: %w", err)
	}
	return nil
}

// LatestByWallet returns the most recently computed metrics row for a
// wallet.
func (r *PerformanceMetricsRepo) LatestByWallet(ctx context.Context, wallet string) (*PerformanceMetricsRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT metrics_id, wallet_address, calculation_date, period_days, total_trades,
			   total_volume_usd, total_profit_usd, net_roi_percent, sharpe_ratio,
			   maximum_drawdown_percent, volatility, win_loss_ratio, winning_trades, losing_trades,
			   average_win_usd, average_loss_usd, largest_win_usd, largest_loss_usd,
			   performance_score, risk_penalty, trust_score, data_points, calculation_version, created_at
		FROM trader_performance_metrics
		WHERE wallet_address = $1
		ORDER BY calculation_date DESC
		LIMIT 1`

	var m PerformanceMetricsRow
	var volumeStr, profitStr, roiStr, sharpeStr, ddStr, volStr, wlStr, awStr, alStr, lwStr, llStr, perfStr, riskStr, trustStr string

	err := r.db.QueryRowContext(ctx, query, wallet).Scan(
		&m.MetricsID, &m.WalletAddress, &m.CalculationDate, &m.PeriodDays, &m.TotalTrades,
		&volumeStr, &profitStr, &roiStr, &sharpeStr,
		&ddStr, &volStr, &wlStr, &m.WinningTrades, &m.LosingTrades,
		&awStr, &alStr, &lwStr, &llStr,
		&perfStr, &riskStr, &trustStr, &m.DataPoints, &m.CalculationVersion, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest performance metrics: %w", err)
	}

	m.TotalVolumeUSD, _ = decimal.NewFromString(volumeStr)
	m.TotalProfitUSD, _ = decimal.NewFromString(profitStr)
	m.NetROIPercent, _ = decimal.NewFromString(roiStr)
	m.SharpeRatio, _ = decimal.NewFromString(sharpeStr)
	m.MaximumDrawdownPercent, _ = decimal.NewFromString(ddStr)
	m.Volatility, _ = decimal.NewFromString(volStr)
	m.WinLossRatio, _ = decimal.NewFromString(wlStr)
	m.AverageWinUSD, _ = decimal.NewFromString(awStr)
	m.AverageLossUSD, _ = decimal.NewFromString(alStr)
	m.LargestWinUSD, _ = decimal.NewFromString(lwStr)
	m.LargestLossUSD, _ = decimal.NewFromString(llStr)
	m.PerformanceScore, _ = decimal.NewFromString(perfStr)
	m.RiskPenalty, _ = decimal.NewFromString(riskStr)
	m.TrustScore, _ = decimal.NewFromString(trustStr)

	return &m, nil
}
