package trust

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/domain"
)

func metricsWith(wallet string, sharpe, roi, dd float64) *domain.PerformanceMetrics {
	return &domain.PerformanceMetrics{
		Wallet:                 wallet,
		SharpeRatio:            decimal.NewFromFloat(sharpe),
		NetROIPercent:          decimal.NewFromFloat(roi),
		MaximumDrawdownPercent: decimal.NewFromFloat(dd),
	}
}

func eligibleTrades(n int, day int) []domain.Trade {
	trades := make([]domain.Trade, 0, n)
	for i := 0; i < n; i++ {
		s := domain.Swap{BlockTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day)}
		trades = append(trades, domain.NewTrade(s, decimal.NewFromInt(10), decimal.NewFromInt(11), decimal.NewFromInt(0)))
	}
	return trades
}

// scenario A: single wallet, trivial cohort of itself.
func TestScoreSingleWalletTrivialCohort(t *testing.T) {
	m := metricsWith("w1", 1.0, 10.0, 5.0)
	in := EligibilityInput{
		Wallet:       "w1",
		Trades:       eligibleTrades(minTradeCount, 0),
		FirstTradeAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		LastTradeAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, minTradingSpanDays),
		Metrics:      m,
	}

	e := New(zerolog.Nop())
	result := e.Score(in, Cohort{m})

	require.Equal(t, domain.EligibilityEligible, result.Eligibility)
	require.True(t, result.Normalized.Sharpe.Equal(decimal.NewFromInt(1)))
	require.True(t, result.Normalized.ROI.Equal(decimal.NewFromInt(1)))
	require.True(t, result.Normalized.Drawdown.Equal(decimal.NewFromInt(1)))
	require.True(t, result.PerformanceScore.Equal(decimal.NewFromFloat(0.65)), result.PerformanceScore.String())
	require.True(t, result.RiskPenalty.Equal(decimal.Zero), result.RiskPenalty.String())
	require.True(t, result.Score.Equal(decimal.NewFromFloat(65.0)), result.Score.String())
}

// scenario B: cohort of two, w1 best-of-breed and w2 worst-of-breed.
func TestScoreCohortOfTwo(t *testing.T) {
	m1 := metricsWith("w1", 2.0, 30.0, 10.0)
	m2 := metricsWith("w2", 0.5, 5.0, 40.0)
	cohort := Cohort{m1, m2}

	baseTrades := eligibleTrades(minTradeCount, 0)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, minTradingSpanDays)

	e := New(zerolog.Nop())

	r1 := e.Score(EligibilityInput{Wallet: "w1", Trades: baseTrades, FirstTradeAt: start, LastTradeAt: end, Metrics: m1}, cohort)
	require.Equal(t, domain.EligibilityEligible, r1.Eligibility)
	require.True(t, r1.PerformanceScore.Equal(decimal.NewFromFloat(0.65)), r1.PerformanceScore.String())
	require.True(t, r1.RiskPenalty.Equal(decimal.Zero), r1.RiskPenalty.String())
	require.True(t, r1.Score.Equal(decimal.NewFromFloat(65.0)), r1.Score.String())

	r2 := e.Score(EligibilityInput{Wallet: "w2", Trades: baseTrades, FirstTradeAt: start, LastTradeAt: end, Metrics: m2}, cohort)
	require.Equal(t, domain.EligibilityEligible, r2.Eligibility)
	require.True(t, r2.PerformanceScore.Equal(decimal.Zero), r2.PerformanceScore.String())
	require.True(t, r2.RiskPenalty.Equal(decimal.NewFromFloat(0.35)), r2.RiskPenalty.String())
	require.True(t, r2.Score.Equal(decimal.Zero), r2.Score.String())
}

// scenario C: 55 trades, one day with profit=60 over volume=100 -> spike.
func TestCheckEligibilityRejectsExtremeROISpike(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := make([]domain.Trade, 0, 55)

	spikeSwap := domain.Swap{BlockTime: start}
	trades = append(trades, domain.NewTrade(spikeSwap, decimal.NewFromInt(100), decimal.NewFromInt(160), decimal.Zero))

	for i := 1; i < 55; i++ {
		s := domain.Swap{BlockTime: start.AddDate(0, 0, i)}
		trades = append(trades, domain.NewTrade(s, decimal.NewFromInt(10), decimal.NewFromInt(11), decimal.NewFromInt(0)))
	}

	in := EligibilityInput{
		Wallet:       "w3",
		Trades:       trades,
		FirstTradeAt: start,
		LastTradeAt:  start.AddDate(0, 0, minTradingSpanDays),
		Metrics:      metricsWith("w3", 1, 10, 5),
	}

	require.Equal(t, domain.EligibilityExtremeROISpike, CheckEligibility(in))
}

func TestCheckEligibilityBoundaries(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tooFewTrades := EligibilityInput{
		Trades:       eligibleTrades(49, 0),
		FirstTradeAt: start,
		LastTradeAt:  start.AddDate(0, 0, minTradingSpanDays),
		Metrics:      metricsWith("w", 1, 10, 5),
	}
	require.Equal(t, domain.EligibilityInsufficientTrades, CheckEligibility(tooFewTrades))

	enoughTrades := tooFewTrades
	enoughTrades.Trades = eligibleTrades(50, 0)
	require.Equal(t, domain.EligibilityEligible, CheckEligibility(enoughTrades))

	shortSpan := EligibilityInput{
		Trades:       eligibleTrades(minTradeCount, 0),
		FirstTradeAt: start,
		LastTradeAt:  start.AddDate(0, 0, 89),
		Metrics:      metricsWith("w", 1, 10, 5),
	}
	require.Equal(t, domain.EligibilityInsufficientHistory, CheckEligibility(shortSpan))

	fullSpan := shortSpan
	fullSpan.LastTradeAt = start.AddDate(0, 0, 90)
	require.Equal(t, domain.EligibilityEligible, CheckEligibility(fullSpan))
}

func TestCheckEligibilityNoData(t *testing.T) {
	require.Equal(t, domain.EligibilityNoData, CheckEligibility(EligibilityInput{}))
}

func TestScoreBatchDeterministic(t *testing.T) {
	m1 := metricsWith("w1", 2.0, 30.0, 10.0)
	m2 := metricsWith("w2", 0.5, 5.0, 40.0)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, minTradingSpanDays)
	trades := eligibleTrades(minTradeCount, 0)

	inputs := []EligibilityInput{
		{Wallet: "w1", Trades: trades, FirstTradeAt: start, LastTradeAt: end, Metrics: m1},
		{Wallet: "w2", Trades: trades, FirstTradeAt: start, LastTradeAt: end, Metrics: m2},
	}

	e := New(zerolog.Nop())
	first := e.ScoreBatch(inputs)
	second := e.ScoreBatch(inputs)

	require.Len(t, first, 2)
	byWallet := func(results []domain.TrustScoreResult, wallet string) domain.TrustScoreResult {
		for _, r := range results {
			if r.Wallet == wallet {
				return r
			}
		}
		t.Fatalf("wallet %s not found", wallet)
		return domain.TrustScoreResult{}
	}

	require.True(t, byWallet(first, "w1").Score.Equal(byWallet(second, "w1").Score))
	require.True(t, byWallet(first, "w2").Score.Equal(byWallet(second, "w2").Score))
}
