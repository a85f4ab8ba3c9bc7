package analyticscycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/vaultrun/internal/domain"
	"github.com/sawpanic/vaultrun/internal/persistence/postgres"
	"github.com/sawpanic/vaultrun/internal/ranking"
	"github.com/sawpanic/vaultrun/internal/trust"
)

const (
	maxActiveProfiles        = 10000
	maxTransactionsPerWallet = 20000
)

// ComputeMetrics recomputes rolling-window performance metrics and Trust
// Scores for every active trader, persisting one append-only metrics row
// per wallet (§4.5, §4.6).
func (c *Cycle) ComputeMetrics(ctx context.Context) error {
	profiles, err := c.db.Traders.ListActive(ctx, maxActiveProfiles)
	if err != nil {
		return fmt.Errorf("analyticscycle: list active profiles: %w", err)
	}

	since := time.Now().AddDate(0, 0, -c.periodDays)

	inputs := make([]trust.EligibilityInput, 0, len(profiles))
	for _, p := range profiles {
		txs, err := c.db.Transactions.ListByWallet(ctx, p.WalletAddress, since, time.Now(), maxTransactionsPerWallet)
		if err != nil {
			c.log.Error().Err(err).Str("wallet", p.WalletAddress).Msg("failed to load transactions")
			continue
		}
		if len(txs) == 0 {
			continue
		}

		trades := tradesFromTransactions(txs)
		m := c.metrics.Compute(p.WalletAddress, trades, c.periodDays)

		if err := c.db.Metrics.Insert(ctx, metricsRowFromDomain(*m)); err != nil {
			c.log.Error().Err(err).Str("wallet", p.WalletAddress).Msg("failed to persist performance metrics")
		}

		inputs = append(inputs, trust.EligibilityInput{
			Wallet:       p.WalletAddress,
			Trades:       trades,
			FirstTradeAt: txs[len(txs)-1].BlockTime,
			LastTradeAt:  txs[0].BlockTime,
			Metrics:      m,
		})
	}

	results := c.trust.ScoreBatch(inputs)
	c.lastResults = results
	return nil
}

// BuildRanking folds the most recent ScoreBatch results into a published
// ranking snapshot (§4.7).
func (c *Cycle) BuildRanking(ctx context.Context) error {
	if len(c.lastResults) == 0 {
		return fmt.Errorf("analyticscycle: no scored wallets available, run compute_metrics first")
	}

	cfg := ranking.Config{
		MinTrustScore: c.minTrustScore,
		Limit:         c.rankingLimit,
		PeriodDays:    c.periodDays,
	}
	snapshot := c.ranking.Build(c.lastResults, cfg, time.Now().Unix())

	rows := make([]postgres.TraderRankingRow, 0, len(snapshot.Traders))
	for _, t := range snapshot.Traders {
		rows = append(rows, postgres.TraderRankingRow{
			RankingID:            snapshot.SnapshotID,
			CalculationTimestamp: time.Unix(snapshot.CalculatedAt, 0).UTC(),
			PeriodDays:           snapshot.PeriodDays,
			AlgorithmVersion:     snapshot.AlgorithmVersion,
			WalletAddress:        t.Wallet,
			Rank:                 t.Rank,
			TrustScore:           t.TrustScore,
			PerformanceMetrics:   performanceMetricsToMap(t.MetricsDigest),
			EligibilityCheck:     snapshot.EligibilityCriteria,
			IsEligible:           t.EligibilityInfo == domain.EligibilityEligible,
		})
	}

	if err := c.db.Rankings.InsertBatch(ctx, rows); err != nil {
		return fmt.Errorf("analyticscycle: persist ranking: %w", err)
	}
	c.log.Info().Str("snapshot_id", snapshot.SnapshotID).Int("traders", len(rows)).Msg("ranking snapshot published")
	return nil
}

func tradesFromTransactions(txs []postgres.TraderTransaction) []domain.Trade {
	trades := make([]domain.Trade, 0, len(txs))
	for _, tx := range txs {
		swap := domain.Swap{
			Signature: tx.Signature,
			Wallet:    tx.WalletAddress,
			BlockTime: tx.BlockTime,
			Slot:      tx.Slot,
			Status:    domain.SwapStatusSuccess,
			TokenIn:   domain.TokenLeg{Mint: tx.InputTokenMint, Decimals: tx.InputDecimals},
			TokenOut:  domain.TokenLeg{Mint: tx.OutputTokenMint, Decimals: tx.OutputDecimals},
			ProgramID: tx.ProgramID,
		}
		trade := domain.NewTrade(swap, tx.InputUSD, tx.OutputUSD, decimal.Zero)
		trade.Type = domain.TradeType(tx.TransactionType)
		trades = append(trades, trade)
	}
	return trades
}

func metricsRowFromDomain(m domain.PerformanceMetrics) postgres.PerformanceMetricsRow {
	return postgres.PerformanceMetricsRow{
		MetricsID:              uuid.NewString(),
		WalletAddress:          m.Wallet,
		CalculationDate:        time.Now().UTC(),
		PeriodDays:             m.PeriodDays,
		TotalTrades:            m.TotalTrades,
		TotalVolumeUSD:         m.TotalVolumeUSD,
		TotalProfitUSD:         m.TotalProfitUSD,
		NetROIPercent:          m.NetROIPercent,
		SharpeRatio:            m.SharpeRatio,
		MaximumDrawdownPercent: m.MaximumDrawdownPercent,
		WinLossRatio:           m.WinLossRatio,
		WinningTrades:          m.WinningTrades,
		LosingTrades:           m.LosingTrades,
		AverageWinUSD:          decimal.Zero,
		AverageLossUSD:         decimal.Zero,
		LargestWinUSD:          m.LargestWinUSD,
		LargestLossUSD:         m.LargestLossUSD,
		DataPoints:             m.DataPoints,
		CalculationVersion:     "v1",
	}
}

func performanceMetricsToMap(m domain.PerformanceMetrics) map[string]any {
	return map[string]any{
		"net_roi_percent":          m.NetROIPercent.String(),
		"maximum_drawdown_percent": m.MaximumDrawdownPercent.String(),
		"sharpe_ratio":             m.SharpeRatio.String(),
		"win_loss_ratio":           m.WinLossRatio.String(),
		"total_trades":             m.TotalTrades,
		"total_volume_usd":         m.TotalVolumeUSD.String(),
	}
}
