package strategy

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/domain"
)

func TestSelectPicksTopRankedAboveThreshold(t *testing.T) {
	holdings := domain.Portfolio{
		Assets: []domain.PortfolioAsset{
			{Mint: "SOLMint", Symbol: "SOL", EstimatedUSDValue: decimal.NewFromInt(600)},
			{Mint: "USDCMint", Symbol: "USDC", EstimatedUSDValue: decimal.NewFromInt(400)},
		},
	}
	s := New(func(wallet string) (domain.Portfolio, error) { return holdings, nil }, zerolog.Nop())

	snapshot := domain.RankingSnapshot{Traders: []domain.RankedTrader{
		{Rank: 1, Wallet: "top", TrustScore: decimal.NewFromInt(90), EligibilityInfo: domain.EligibilityEligible},
		{Rank: 2, Wallet: "second", TrustScore: decimal.NewFromInt(60), EligibilityInfo: domain.EligibilityEligible},
	}}

	user := domain.UserRiskProfile{UserID: "u1", RiskProfile: domain.RiskModerate}
	target, err := s.Select(user, snapshot, decimal.NewFromInt(80))
	require.NoError(t, err)
	require.Equal(t, "top", target.SelectedTraderWallet)
	require.Len(t, target.Allocations, 2)
	require.True(t, target.SumAllocations().Equal(decimal.NewFromInt(100)), target.SumAllocations().String())
}

func TestSelectSkipsBelowThresholdFallsToNext(t *testing.T) {
	holdings := domain.Portfolio{Assets: []domain.PortfolioAsset{{Mint: "M", Symbol: "M", EstimatedUSDValue: decimal.NewFromInt(100)}}}
	s := New(func(wallet string) (domain.Portfolio, error) { return holdings, nil }, zerolog.Nop())

	snapshot := domain.RankingSnapshot{Traders: []domain.RankedTrader{
		{Rank: 1, Wallet: "too-low", TrustScore: decimal.NewFromInt(50), EligibilityInfo: domain.EligibilityEligible},
		{Rank: 2, Wallet: "qualifies", TrustScore: decimal.NewFromInt(90), EligibilityInfo: domain.EligibilityEligible},
	}}

	user := domain.UserRiskProfile{UserID: "u1", RiskProfile: domain.RiskConservative}
	target, err := s.Select(user, snapshot, decimal.NewFromInt(80))
	require.NoError(t, err)
	require.Equal(t, "qualifies", target.SelectedTraderWallet)
}

func TestSelectReturnsErrNoEligibleTraderBelowConfidenceFloor(t *testing.T) {
	s := New(func(wallet string) (domain.Portfolio, error) { return domain.Portfolio{}, nil }, zerolog.Nop())
	snapshot := domain.RankingSnapshot{Traders: []domain.RankedTrader{
		{Rank: 1, Wallet: "top", TrustScore: decimal.NewFromInt(90), EligibilityInfo: domain.EligibilityEligible},
	}}
	_, err := s.Select(domain.UserRiskProfile{RiskProfile: domain.RiskAggressive}, snapshot, decimal.NewFromInt(59))
	require.True(t, errors.Is(err, ErrNoEligibleTrader))
}

func TestSelectReturnsErrNoEligibleTraderWhenNoneQualify(t *testing.T) {
	s := New(func(wallet string) (domain.Portfolio, error) { return domain.Portfolio{}, nil }, zerolog.Nop())
	snapshot := domain.RankingSnapshot{Traders: []domain.RankedTrader{
		{Rank: 1, Wallet: "low", TrustScore: decimal.NewFromInt(40), EligibilityInfo: domain.EligibilityEligible},
	}}
	_, err := s.Select(domain.UserRiskProfile{RiskProfile: domain.RiskAggressive}, snapshot, decimal.NewFromInt(80))
	require.True(t, errors.Is(err, ErrNoEligibleTrader))
}
