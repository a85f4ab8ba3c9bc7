// Package strategy implements step 3 of the orchestrator cycle (§4.9):
// picking the top-ranked eligible trader a user should copy and deriving
// the target portfolio allocation from that trader's own holdings.
package strategy

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/vaultrun/internal/domain"
)

const minConfidence = 60

// ErrNoEligibleTrader means no ranked trader cleared the user's threshold
// and confidence floor; the caller must skip the user for this cycle.
var ErrNoEligibleTrader = errors.New("strategy: no eligible trader for user risk profile")

// TraderHoldingsFunc resolves the leader's own vault holdings, used to
// derive target allocation percentages rather than hardcoding them.
type TraderHoldingsFunc func(wallet string) (domain.Portfolio, error)

// Selector picks a leader trader per user and turns their holdings into
// a TargetPortfolio.
type Selector struct {
	log     zerolog.Logger
	holders TraderHoldingsFunc
}

// New constructs a Selector. holders resolves a leader wallet's current
// on-chain holdings (typically backed by the vault reader, §4.10).
func New(holders TraderHoldingsFunc, log zerolog.Logger) *Selector {
	return &Selector{log: log.With().Str("component", "strategy_selector").Logger(), holders: holders}
}

// Select scans the snapshot's traders in rank order and returns the
// TargetPortfolio for the first one clearing both the user's risk
// threshold and the confidence floor.
func (s *Selector) Select(user domain.UserRiskProfile, snapshot domain.RankingSnapshot, confidence decimal.Decimal) (domain.TargetPortfolio, error) {
	threshold := user.RiskProfile.TrustScoreThreshold()
	if confidence.LessThan(decimal.NewFromInt(minConfidence)) {
		return domain.TargetPortfolio{}, ErrNoEligibleTrader
	}

	for _, trader := range snapshot.Traders {
		if trader.EligibilityInfo != domain.EligibilityEligible {
			continue
		}
		if trader.TrustScore.LessThan(threshold) {
			continue
		}

		holdings, err := s.holders(trader.Wallet)
		if err != nil {
			s.log.Warn().Err(err).Str("wallet", trader.Wallet).Msg("failed to read leader holdings, trying next trader")
			continue
		}

		allocations := allocationsFromHoldings(holdings)
		if len(allocations) == 0 {
			continue
		}

		return domain.TargetPortfolio{
			SelectedTraderWallet: trader.Wallet,
			Rank:                 trader.Rank,
			TrustScore:           trader.TrustScore,
			TrustScoreThreshold:  threshold,
			Allocations:          allocations,
			UserID:               user.UserID,
			UserVaultAddress:     user.VaultAddress,
			UserRiskProfile:      user.RiskProfile,
		}, nil
	}

	return domain.TargetPortfolio{}, ErrNoEligibleTrader
}

// allocationsFromHoldings converts a leader's current holdings into
// target percentages proportional to each asset's USD value, so the
// target portfolio mirrors what the leader actually holds rather than a
// fixed or invented split.
func allocationsFromHoldings(p domain.Portfolio) []domain.Allocation {
	total := p.TotalValueUSD()
	if !total.IsPositive() {
		return nil
	}

	allocations := make([]domain.Allocation, 0, len(p.Assets))
	runningPercent := decimal.Zero
	for i, a := range p.Assets {
		var pct decimal.Decimal
		if i == len(p.Assets)-1 {
			// last leg absorbs rounding remainder so allocations sum to exactly 100.
			pct = decimal.NewFromInt(100).Sub(runningPercent)
		} else {
			pct = a.EstimatedUSDValue.Div(total).Mul(decimal.NewFromInt(100)).Round(4)
			runningPercent = runningPercent.Add(pct)
		}
		allocations = append(allocations, domain.Allocation{
			Symbol:        a.Symbol,
			Mint:          a.Mint,
			TargetPercent: pct,
		})
	}
	return allocations
}
