// Package domain holds the shared record types that flow through the
// ingestion, metrics, scoring, and execution subsystems.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SwapStatus is the on-chain execution status of a parsed transaction.
type SwapStatus string

const (
	SwapStatusSuccess SwapStatus = "success"
	SwapStatusFailed  SwapStatus = "failed"
)

// SwapVariant classifies the AMM instruction that produced the swap.
type SwapVariant string

const (
	SwapVariantIn      SwapVariant = "in"
	SwapVariantOut     SwapVariant = "out"
	SwapVariantGeneric SwapVariant = "generic"
	SwapVariantUnknown SwapVariant = "unknown"
)

// TokenLeg describes one side (input or output) of a swap.
type TokenLeg struct {
	Mint     string
	Symbol   string
	Decimals int
	Amount   decimal.Decimal
	USD      decimal.NullDecimal
}

// Swap is the immutable record produced by the parser. Identity is
// (Signature, Wallet); it is never mutated after creation.
type Swap struct {
	Signature      string
	Wallet         string
	BlockTime      time.Time // always UTC
	Slot           uint64
	Status         SwapStatus
	Variant        SwapVariant
	TokenIn        TokenLeg
	TokenOut       TokenLeg
	PoolID         string
	ProgramID      string
	FeeLamports    uint64
	FeeUSD         decimal.NullDecimal
	ParsingSource  string
}

// Validate enforces the §3 swap invariants.
func (s Swap) Validate() error {
	if s.TokenIn.Mint == "" || s.TokenOut.Mint == "" {
		return fmt.Errorf("swap %s: missing mint", s.Signature)
	}
	if s.TokenIn.Mint == s.TokenOut.Mint {
		return fmt.Errorf("swap %s: input mint equals output mint", s.Signature)
	}
	if !s.TokenIn.Amount.IsPositive() || !s.TokenOut.Amount.IsPositive() {
		return fmt.Errorf("swap %s: non-positive amount", s.Signature)
	}
	if len(s.Signature) < 64 {
		return fmt.Errorf("swap %s: signature too short", s.Signature)
	}
	if len(s.Wallet) < 32 {
		return fmt.Errorf("swap %s: wallet address too short", s.Signature)
	}
	return nil
}

// TradeType classifies a trade for reporting purposes.
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
	TradeTypeSwap TradeType = "swap"
)

// Trade is the USD-enriched, derived record computed from a Swap plus a
// price lookup. All monetary fields use 28-digit decimal arithmetic.
type Trade struct {
	Swap Swap

	TokenInUSD    decimal.Decimal
	TokenOutUSD   decimal.Decimal
	NetUSDChange  decimal.Decimal // out - in
	FeeUSD        decimal.Decimal
	TotalCostUSD  decimal.Decimal // in + fee
	NetProfitUSD  decimal.Decimal // net - fee
	Type          TradeType
}

var stablecoins = map[string]bool{
	"USDC": true,
	"USDT": true,
}

// NewTrade computes the derived USD fields for a swap given resolved leg
// prices and the fee in USD.
func NewTrade(s Swap, tokenInUSD, tokenOutUSD, feeUSD decimal.Decimal) Trade {
	net := tokenOutUSD.Sub(tokenInUSD)
	totalCost := tokenInUSD.Add(feeUSD)
	netProfit := net.Sub(feeUSD)

	t := Trade{
		Swap:         s,
		TokenInUSD:   tokenInUSD,
		TokenOutUSD:  tokenOutUSD,
		NetUSDChange: net,
		FeeUSD:       feeUSD,
		TotalCostUSD: totalCost,
		NetProfitUSD: netProfit,
	}
	t.Type = classifyTradeType(s)
	return t
}

func classifyTradeType(s Swap) TradeType {
	inStable := stablecoins[s.TokenIn.Symbol]
	outStable := stablecoins[s.TokenOut.Symbol]
	switch {
	case inStable && !outStable:
		return TradeTypeBuy
	case outStable && !inStable:
		return TradeTypeSell
	default:
		return TradeTypeSwap
	}
}
