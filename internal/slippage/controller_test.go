package slippage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/breaker"
	"github.com/sawpanic/vaultrun/internal/domain"
)

func testTrade(expected decimal.Decimal) domain.GeneratedTrade {
	return domain.GeneratedTrade{
		SwapInstruction: domain.SwapInstruction{
			FromMint:           "A",
			ToMint:             "B",
			FromAmount:         decimal.NewFromInt(100),
			ExpectedToAmount:   expected,
			MaxSlippagePercent: decimal.NewFromInt(5),
		},
	}
}

func testBreakers() *breaker.Registry {
	return breaker.New(domain.BreakerConfig{
		FailureThreshold:        100,
		TimeWindow:              time.Minute,
		ConsecutiveFailureLimit: 100,
		RecoveryTimeout:         time.Minute,
		TestRequestLimit:        1,
	}, nil, zerolog.Nop())
}

func TestCheckPassesWithinBound(t *testing.T) {
	quote := func(ctx context.Context, from, to string, amt decimal.Decimal) (decimal.Decimal, error) {
		return decimal.NewFromInt(98), nil // 2% slippage, within 5%
	}
	c := New(quote, testBreakers(), zerolog.Nop())
	err := c.Check(context.Background(), testTrade(decimal.NewFromInt(100)))
	require.NoError(t, err)
}

func TestCheckRejectsBeyondBound(t *testing.T) {
	quote := func(ctx context.Context, from, to string, amt decimal.Decimal) (decimal.Decimal, error) {
		return decimal.NewFromInt(90), nil // 10% slippage, exceeds 5%
	}
	c := New(quote, testBreakers(), zerolog.Nop())
	err := c.Check(context.Background(), testTrade(decimal.NewFromInt(100)))
	var slipErr *ErrSlippageExceeded
	require.ErrorAs(t, err, &slipErr)
}

func TestCheckPropagatesQuoteError(t *testing.T) {
	quote := func(ctx context.Context, from, to string, amt decimal.Decimal) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("rpc down")
	}
	c := New(quote, testBreakers(), zerolog.Nop())
	err := c.Check(context.Background(), testTrade(decimal.NewFromInt(100)))
	require.Error(t, err)
}
