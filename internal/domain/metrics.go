package domain

import "github.com/shopspring/decimal"

// PerformanceMetrics is computed over a rolling window (default 90 days).
type PerformanceMetrics struct {
	Wallet     string
	PeriodDays int

	NetROIPercent         decimal.Decimal
	MaximumDrawdownPercent decimal.Decimal
	SharpeRatio           decimal.Decimal
	WinLossRatio          decimal.Decimal // infinity-sentinel when LosingTrades == 0

	TotalVolumeUSD decimal.Decimal
	TotalFeesUSD   decimal.Decimal
	TotalProfitUSD decimal.Decimal

	WinningTrades int
	LosingTrades  int
	TotalTrades   int

	AverageTradeSizeUSD decimal.Decimal
	LargestWinUSD       decimal.Decimal
	LargestLossUSD      decimal.Decimal
	AverageHoldingPeriodSeconds int64

	DataPoints int
}

// WinLossInfinitySentinel is used in place of an unbounded ratio when a
// wallet has zero losing trades.
var WinLossInfinitySentinel = decimal.NewFromInt(999999)

// TrustEligibility enumerates the outcomes of the §4.6 eligibility gate.
type TrustEligibility string

const (
	EligibilityEligible            TrustEligibility = "eligible"
	EligibilityNoData              TrustEligibility = "no_data"
	EligibilityInsufficientHistory TrustEligibility = "insufficient_history"
	EligibilityInsufficientTrades  TrustEligibility = "insufficient_trades"
	EligibilityExtremeROISpike     TrustEligibility = "extreme_roi_spike"
	EligibilityCalculationError    TrustEligibility = "calculation_error"
)

// NormalizedTriple is the cross-wallet min-max normalized (sharpe, roi, drawdown).
type NormalizedTriple struct {
	Sharpe    decimal.Decimal
	ROI       decimal.Decimal
	Drawdown  decimal.Decimal // already inverted: higher is better
}

// TrustScoreResult is the output of the Trust-Score engine for one wallet.
type TrustScoreResult struct {
	Wallet      string
	Score       decimal.Decimal // [0, 100]
	Eligibility TrustEligibility

	Normalized        NormalizedTriple
	PerformanceScore  decimal.Decimal
	RiskPenalty       decimal.Decimal
	Metrics           *PerformanceMetrics
}

// IsEligible reports whether the result represents a scoreable wallet.
func (r TrustScoreResult) IsEligible() bool {
	return r.Eligibility == EligibilityEligible
}

// RankedTrader is one row of a ranking snapshot.
type RankedTrader struct {
	Rank                int
	Wallet              string
	TrustScore          decimal.Decimal
	PerformanceBreakdown struct {
		PerformanceScore decimal.Decimal
		RiskPenalty      decimal.Decimal
	}
	MetricsDigest   PerformanceMetrics
	EligibilityInfo TrustEligibility
}

// RankingSnapshot is an immutable, timestamped, append-only publication of
// the ordered trader roster.
type RankingSnapshot struct {
	SnapshotID        string
	CalculatedAt      int64 // unix seconds, UTC
	PeriodDays        int
	AlgorithmVersion  string
	EligibilityCriteria map[string]any
	ScoringWeights      map[string]decimal.Decimal
	Traders             []RankedTrader
}
