// Package trust implements the Trust-Score engine of §4.6: an eligibility
// gate, cross-wallet min-max normalization over a benchmark cohort, and
// the fixed weighted scoring formula. Treat the formula as core IP — do
// not rebalance the weights without updating §8 scenario tests A/B/C.
package trust

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/vaultrun/internal/domain"
)

const (
	minTradingSpanDays  = 90
	minTradeCount       = 50
	maxDailyROISpikeRatio = 0.5
)

var (
	weightSharpe   = decimal.NewFromFloat(0.40)
	weightROI      = decimal.NewFromFloat(0.25)
	weightDrawdown = decimal.NewFromFloat(0.35)

	minNormalizationRange = decimal.NewFromFloat(0.001)
)

// Weights returns the fixed scoring weights, for embedding in a ranking
// snapshot's metadata (§3 "scoring_weights").
func Weights() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"sharpe":   weightSharpe,
		"roi":      weightROI,
		"drawdown": weightDrawdown,
	}
}

// EligibilityInput is what the eligibility gate needs for one wallet.
type EligibilityInput struct {
	Wallet       string
	Trades       []domain.Trade
	FirstTradeAt time.Time
	LastTradeAt  time.Time
	Metrics      *domain.PerformanceMetrics
}

// CheckEligibility runs the §4.6 checks in order, returning the first
// failure.
func CheckEligibility(in EligibilityInput) domain.TrustEligibility {
	if len(in.Trades) < 1 {
		return domain.EligibilityNoData
	}

	span := in.LastTradeAt.Sub(in.FirstTradeAt)
	if span < minTradingSpanDays*24*time.Hour {
		return domain.EligibilityInsufficientHistory
	}

	if len(in.Trades) < minTradeCount {
		return domain.EligibilityInsufficientTrades
	}

	if hasExtremeDailyROISpike(in.Trades) {
		return domain.EligibilityExtremeROISpike
	}

	if in.Metrics == nil {
		return domain.EligibilityCalculationError
	}

	return domain.EligibilityEligible
}

// hasExtremeDailyROISpike groups trades by UTC date and rejects if, for
// any date with volume > 0, |profit/volume| > 0.5 (§4.6).
func hasExtremeDailyROISpike(trades []domain.Trade) bool {
	type agg struct {
		profit decimal.Decimal
		volume decimal.Decimal
	}
	byDate := map[string]*agg{}

	for _, t := range trades {
		key := t.Swap.BlockTime.UTC().Format("2006-01-02")
		a, ok := byDate[key]
		if !ok {
			a = &agg{profit: decimal.Zero, volume: decimal.Zero}
			byDate[key] = a
		}
		a.profit = a.profit.Add(t.NetProfitUSD)
		a.volume = a.volume.Add(t.TokenInUSD)
	}

	threshold := decimal.NewFromFloat(maxDailyROISpikeRatio)
	for _, a := range byDate {
		if !a.volume.IsPositive() {
			continue
		}
		ratio := a.profit.Div(a.volume).Abs()
		if ratio.GreaterThan(threshold) {
			return true
		}
	}
	return false
}

// Cohort is the benchmark set of metrics used for normalization. A single-
// wallet caller passes a cohort of exactly that wallet's own metrics,
// which degenerates min==max and drives the normalized triple to 1 (§4.6).
type Cohort []*domain.PerformanceMetrics

// normalize computes the min-max normalized (sharpe, roi, drawdown)
// triple for one wallet's metrics against the cohort.
func normalize(m *domain.PerformanceMetrics, cohort Cohort) domain.NormalizedTriple {
	sharpeMin, sharpeMax := minMax(cohort, func(pm *domain.PerformanceMetrics) decimal.Decimal { return pm.SharpeRatio })
	roiMin, roiMax := minMax(cohort, func(pm *domain.PerformanceMetrics) decimal.Decimal { return pm.NetROIPercent })
	ddMin, ddMax := minMax(cohort, func(pm *domain.PerformanceMetrics) decimal.Decimal { return pm.MaximumDrawdownPercent })

	return domain.NormalizedTriple{
		Sharpe:   clamp01(normalizeValue(m.SharpeRatio, sharpeMin, sharpeMax, false)),
		ROI:      clamp01(normalizeValue(m.NetROIPercent, roiMin, roiMax, false)),
		Drawdown: clamp01(normalizeValue(m.MaximumDrawdownPercent, ddMin, ddMax, true)),
	}
}

// normalizeValue min-max normalizes v against [min, max]; invert flips
// the ratio (used for drawdown, where lower is better) so that, both
// here and in the degenerate min==max cohort case below, 1 always means
// "best in cohort".
func normalizeValue(v, min, max decimal.Decimal, invert bool) decimal.Decimal {
	if min.Equal(max) {
		return decimal.NewFromInt(1)
	}
	rangeVal := max.Sub(min)
	if rangeVal.LessThan(minNormalizationRange) {
		rangeVal = minNormalizationRange
	}
	ratio := v.Sub(min).Div(rangeVal)
	if invert {
		return decimal.NewFromInt(1).Sub(ratio)
	}
	return ratio
}

func minMax(cohort Cohort, f func(*domain.PerformanceMetrics) decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if len(cohort) == 0 {
		return decimal.Zero, decimal.Zero
	}
	min := f(cohort[0])
	max := f(cohort[0])
	for _, m := range cohort[1:] {
		v := f(m)
		if v.LessThan(min) {
			min = v
		}
		if v.GreaterThan(max) {
			max = v
		}
	}
	return min, max
}

func clamp01(d decimal.Decimal) decimal.Decimal {
	if d.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return d
}

// score applies the fixed weighted formula (§4.6):
//   performance = norm_sharpe*0.40 + norm_roi*0.25
//   penalty     = (1 - norm_drawdown) * 0.35
//   score_raw   = max(0, performance - penalty)
//   trust_score = score_raw * 100
func score(n domain.NormalizedTriple) (trustScore, performance, penalty decimal.Decimal) {
	performance = n.Sharpe.Mul(weightSharpe).Add(n.ROI.Mul(weightROI))
	penalty = decimal.NewFromInt(1).Sub(n.Drawdown).Mul(weightDrawdown)

	raw := performance.Sub(penalty)
	if raw.IsNegative() {
		raw = decimal.Zero
	}
	trustScore = raw.Mul(decimal.NewFromInt(100))
	return trustScore, performance, penalty
}

// Engine computes Trust-Score results for a cohort of wallets.
type Engine struct {
	log zerolog.Logger
}

// New constructs a trust-score Engine.
func New(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "trust_score_engine").Logger()}
}

// ScoreBatch filters to eligible wallets, normalizes once over that
// cohort, then scores each — preserving deterministic per-wallet
// reproducibility given identical cohort inputs (§4.6, invariant 4).
func (e *Engine) ScoreBatch(inputs []EligibilityInput) []domain.TrustScoreResult {
	results := make([]domain.TrustScoreResult, 0, len(inputs))
	var cohort Cohort

	eligible := make([]EligibilityInput, 0, len(inputs))
	ineligible := make([]EligibilityInput, 0)

	for _, in := range inputs {
		elig := CheckEligibility(in)
		if elig != domain.EligibilityEligible {
			ineligible = append(ineligible, in)
			continue
		}
		eligible = append(eligible, in)
		cohort = append(cohort, in.Metrics)
	}

	for _, in := range eligible {
		n := normalize(in.Metrics, cohort)
		trustScore, perf, penalty := score(n)
		results = append(results, domain.TrustScoreResult{
			Wallet:           in.Wallet,
			Score:            trustScore,
			Eligibility:      domain.EligibilityEligible,
			Normalized:       n,
			PerformanceScore: perf,
			RiskPenalty:      penalty,
			Metrics:          in.Metrics,
		})
	}

	for _, in := range ineligible {
		results = append(results, domain.TrustScoreResult{
			Wallet:      in.Wallet,
			Score:       decimal.Zero,
			Eligibility: CheckEligibility(in),
			Metrics:     in.Metrics,
		})
	}

	return results
}

// Score scores a single wallet against a cohort it was not necessarily
// drawn from; single-wallet callers typically pass Cohort{in.Metrics}.
func (e *Engine) Score(in EligibilityInput, cohort Cohort) domain.TrustScoreResult {
	elig := CheckEligibility(in)
	if elig != domain.EligibilityEligible {
		return domain.TrustScoreResult{Wallet: in.Wallet, Score: decimal.Zero, Eligibility: elig, Metrics: in.Metrics}
	}

	n := normalize(in.Metrics, cohort)
	trustScore, perf, penalty := score(n)
	return domain.TrustScoreResult{
		Wallet:           in.Wallet,
		Score:            trustScore,
		Eligibility:      domain.EligibilityEligible,
		Normalized:       n,
		PerformanceScore: perf,
		RiskPenalty:      penalty,
		Metrics:          in.Metrics,
	}
}
