// Package ranking turns scored wallets into an ordered, published
// leaderboard (§4.7): filter by eligibility and a minimum trust score,
// sort descending, assign ranks, truncate, and stamp the snapshot with
// the eligibility criteria and weights that produced it.
package ranking

import (
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/vaultrun/internal/domain"
	"github.com/sawpanic/vaultrun/internal/trust"
)

const algorithmVersion = "trust-score-v1"

// Config bounds a single ranking request.
type Config struct {
	MinTrustScore decimal.Decimal
	Limit         int
	PeriodDays    int
}

// Engine builds ranking snapshots from scored results.
type Engine struct {
	log zerolog.Logger
}

// New constructs a ranking Engine.
func New(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "ranking_engine").Logger()}
}

// Build filters results to eligible wallets at or above MinTrustScore,
// sorts by Score descending, assigns 1-based ranks, and truncates to
// Limit.
func (e *Engine) Build(results []domain.TrustScoreResult, cfg Config, calculatedAt int64) domain.RankingSnapshot {
	eligible := make([]domain.TrustScoreResult, 0, len(results))
	for _, r := range results {
		if !r.IsEligible() {
			continue
		}
		if r.Score.LessThan(cfg.MinTrustScore) {
			continue
		}
		eligible = append(eligible, r)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Score.GreaterThan(eligible[j].Score)
	})

	if cfg.Limit > 0 && len(eligible) > cfg.Limit {
		eligible = eligible[:cfg.Limit]
	}

	traders := make([]domain.RankedTrader, 0, len(eligible))
	for i, r := range eligible {
		rt := domain.RankedTrader{
			Rank:            i + 1,
			Wallet:          r.Wallet,
			TrustScore:      r.Score,
			EligibilityInfo: r.Eligibility,
		}
		rt.PerformanceBreakdown.PerformanceScore = r.PerformanceScore
		rt.PerformanceBreakdown.RiskPenalty = r.RiskPenalty
		if r.Metrics != nil {
			rt.MetricsDigest = *r.Metrics
		}
		traders = append(traders, rt)
	}

	return domain.RankingSnapshot{
		SnapshotID:       uuid.NewString(),
		CalculatedAt:     calculatedAt,
		PeriodDays:       cfg.PeriodDays,
		AlgorithmVersion: algorithmVersion,
		EligibilityCriteria: map[string]any{
			"min_trading_span_days": 90,
			"min_trade_count":       50,
			"max_daily_roi_spike":   0.5,
			"min_trust_score":       cfg.MinTrustScore.String(),
		},
		ScoringWeights: trust.Weights(),
		Traders:        traders,
	}
}
