package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskProfile is a user's configured risk tolerance.
type RiskProfile string

const (
	RiskConservative RiskProfile = "conservative"
	RiskModerate     RiskProfile = "moderate"
	RiskAggressive   RiskProfile = "aggressive"
)

// TrustScoreThreshold returns the minimum trust score required for a trader
// to be eligible for selection under this risk profile (§4.9 step 3).
func (r RiskProfile) TrustScoreThreshold() decimal.Decimal {
	switch r {
	case RiskConservative:
		return decimal.NewFromInt(85)
	case RiskModerate:
		return decimal.NewFromInt(70)
	case RiskAggressive:
		return decimal.NewFromInt(55)
	default:
		return decimal.NewFromInt(100)
	}
}

// UserRiskProfile is a subscribed end-user's configuration.
type UserRiskProfile struct {
	UserID              string
	Wallet              string
	VaultAddress        string
	RiskProfile         RiskProfile
	MaxPositionSizeNative decimal.Decimal
	Active              bool
}

// Allocation is one target-portfolio line item.
type Allocation struct {
	Symbol       string
	Mint         string
	TargetPercent decimal.Decimal
}

// TargetPortfolio is the desired end-state allocation for a user vault,
// derived from the selected leader trader.
type TargetPortfolio struct {
	SelectedTraderWallet  string
	Rank                  int
	TrustScore            decimal.Decimal
	TrustScoreThreshold   decimal.Decimal
	Allocations           []Allocation
	UserID                string
	UserVaultAddress      string
	UserRiskProfile       RiskProfile
}

// SumAllocations returns the sum of target percentages (should equal 100).
func (p TargetPortfolio) SumAllocations() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range p.Allocations {
		sum = sum.Add(a.TargetPercent)
	}
	return sum
}

// PortfolioAsset is a current on-chain vault holding.
type PortfolioAsset struct {
	Mint               string
	Symbol             string
	Decimals           int
	Amount             decimal.Decimal
	EstimatedUSDValue  decimal.Decimal
}

// Portfolio is a snapshot of a vault's current on-chain composition.
type Portfolio struct {
	VaultAddress string
	Slot         uint64
	Assets       []PortfolioAsset
}

// TotalValueUSD sums the estimated USD value of every asset.
func (p Portfolio) TotalValueUSD() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Assets {
		total = total.Add(a.EstimatedUSDValue)
	}
	return total
}

// AssetDiscrepancy is one line of a portfolio comparison.
type AssetDiscrepancy struct {
	Mint            string
	Symbol          string
	CurrentPercent  decimal.Decimal
	TargetPercent   decimal.Decimal
	CurrentValueUSD decimal.Decimal
	TargetValueUSD  decimal.Decimal
	DeltaValueUSD   decimal.Decimal // target - current
}

// PortfolioComparison is the result of reconciling current vault holdings
// against a target portfolio.
type PortfolioComparison struct {
	UserID            string
	VaultAddress      string
	TotalValueUSD     decimal.Decimal
	Discrepancies     []AssetDiscrepancy
	RebalanceRequired bool
}

// SwapInstruction is the sized, sourced/sink-matched instruction a trade
// generator emits before the executor quotes and builds it on-chain.
type SwapInstruction struct {
	FromSymbol          string
	FromMint            string
	ToSymbol            string
	ToMint              string
	FromAmount          decimal.Decimal
	ExpectedToAmount    decimal.Decimal
	MinimumToAmount     decimal.Decimal // slippage floor
	MaxSlippagePercent  decimal.Decimal // in [0, 50]
}

// TradeStatus is the lifecycle state of a generated trade.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusSimulated TradeStatus = "simulated"
	TradeStatusSigned    TradeStatus = "signed"
	TradeStatusSubmitted TradeStatus = "submitted"
	TradeStatusConfirmed TradeStatus = "confirmed"
	TradeStatusFailed    TradeStatus = "failed"
	TradeStatusTimeout   TradeStatus = "timeout"
	TradeStatusRejected  TradeStatus = "rejected"
	TradeStatusSkipped   TradeStatus = "skipped"
)

// GeneratedTrade is one rebalancing swap produced for a user's vault.
type GeneratedTrade struct {
	TradeID         string
	UserID          string
	VaultAddress    string
	Type            TradeType
	SwapInstruction SwapInstruction
	Rationale       string
	Priority        int
	Status          TradeStatus

	CreatedAt   time.Time
	UpdatedAt   time.Time

	TxSignature     string
	BlockHeight     uint64
	ExecutionError  string
	RiskScore       decimal.Decimal
}
