// Package tradegen sizes and orders the rebalancing swaps that would
// realize a target portfolio within slippage bounds (§4.11). It does not
// quote on-chain; the executor does that.
package tradegen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/vaultrun/internal/domain"
)

// QuoteFunc returns the best available quote (expected output amount)
// for swapping fromAmount of fromMint into toMint.
type QuoteFunc func(fromMint, toMint string, fromAmount decimal.Decimal) (decimal.Decimal, error)

// Generator builds ordered GeneratedTrade lists from a PortfolioComparison.
type Generator struct {
	log   zerolog.Logger
	quote QuoteFunc
}

// New constructs a Generator. quote resolves the best-quote expected
// output for a sized swap leg.
func New(quote QuoteFunc, log zerolog.Logger) *Generator {
	return &Generator{log: log.With().Str("component", "trade_generator").Logger(), quote: quote}
}

type leg struct {
	mint   string
	symbol string
	delta  decimal.Decimal // target - current; negative = source, positive = sink
}

// Generate matches sources to sinks greedily (largest-to-largest) and
// emits one ordered swap per pair, with a deterministic trade_id derived
// from (userID, cycleID, pairIndex).
func (g *Generator) Generate(cmp domain.PortfolioComparison, userID, cycleID string, maxSlippagePercent decimal.Decimal, createdAt time.Time) ([]domain.GeneratedTrade, error) {
	var sources, sinks []leg
	for _, d := range cmp.Discrepancies {
		if d.DeltaValueUSD.IsNegative() {
			sources = append(sources, leg{mint: d.Mint, symbol: d.Symbol, delta: d.DeltaValueUSD})
		} else if d.DeltaValueUSD.IsPositive() {
			sinks = append(sinks, leg{mint: d.Mint, symbol: d.Symbol, delta: d.DeltaValueUSD})
		}
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].delta.Abs().GreaterThan(sources[j].delta.Abs()) })
	sort.Slice(sinks, func(i, j int) bool { return sinks[i].delta.Abs().GreaterThan(sinks[j].delta.Abs()) })

	// remaining tracks the un-matched magnitude of each leg, in the same
	// order as the now-sorted sources/sinks; greedily match the largest
	// remaining source against the largest remaining sink, consuming the
	// smaller of the two each round, until one side is exhausted.
	sourceRemaining := make([]decimal.Decimal, len(sources))
	for i, s := range sources {
		sourceRemaining[i] = s.delta.Abs()
	}
	sinkRemaining := make([]decimal.Decimal, len(sinks))
	for i, s := range sinks {
		sinkRemaining[i] = s.delta.Abs()
	}

	trades := make([]domain.GeneratedTrade, 0, len(sources)+len(sinks))
	pairIndex := 0
	si, ki := 0, 0

	for si < len(sources) && ki < len(sinks) {
		src := sources[si]
		sink := sinks[ki]

		fillUSD := sourceRemaining[si]
		if sinkRemaining[ki].LessThan(fillUSD) {
			fillUSD = sinkRemaining[ki]
		}

		expected, err := g.quote(src.mint, sink.mint, fillUSD)
		if err != nil {
			return nil, fmt.Errorf("tradegen: quote %s->%s: %w", src.mint, sink.mint, err)
		}

		slippageFrac := maxSlippagePercent.Div(decimal.NewFromInt(100))
		minOut := expected.Mul(decimal.NewFromInt(1).Sub(slippageFrac))

		trades = append(trades, domain.GeneratedTrade{
			TradeID:      tradeID(userID, cycleID, pairIndex),
			UserID:       userID,
			VaultAddress: cmp.VaultAddress,
			Type:         domain.TradeTypeSwap,
			SwapInstruction: domain.SwapInstruction{
				FromSymbol:         src.symbol,
				FromMint:           src.mint,
				ToSymbol:           sink.symbol,
				ToMint:             sink.mint,
				FromAmount:         fillUSD,
				ExpectedToAmount:   expected,
				MinimumToAmount:    minOut,
				MaxSlippagePercent: maxSlippagePercent,
			},
			Rationale: fmt.Sprintf("rebalance %s -> %s toward target allocation", src.symbol, sink.symbol),
			Priority:  pairIndex + 1,
			Status:    domain.TradeStatusPending,
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		})
		pairIndex++

		sourceRemaining[si] = sourceRemaining[si].Sub(fillUSD)
		sinkRemaining[ki] = sinkRemaining[ki].Sub(fillUSD)
		if sourceRemaining[si].IsZero() {
			si++
		}
		if sinkRemaining[ki].IsZero() {
			ki++
		}
	}

	return trades, nil
}

func tradeID(userID, cycleID string, pairIndex int) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(cycleID))
	h.Write([]byte{0})
	h.Write([]byte(fmt.Sprintf("%d", pairIndex)))
	return hex.EncodeToString(h.Sum(nil))
}
