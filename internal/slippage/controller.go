// Package slippage implements the §4.15 pre-submission slippage check:
// compare a freshly fetched quote against the generator's expected
// output and reject trades whose realized slippage exceeds the
// configured bound.
package slippage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/vaultrun/internal/breaker"
	"github.com/sawpanic/vaultrun/internal/domain"
)

// ErrSlippageExceeded means the current quote deviates from the
// generator's expected output by more than the trade's configured bound.
type ErrSlippageExceeded struct {
	RealizedPercent decimal.Decimal
	MaxPercent      decimal.Decimal
}

func (e *ErrSlippageExceeded) Error() string {
	return fmt.Sprintf("slippage: realized %s%% exceeds max %s%%", e.RealizedPercent.String(), e.MaxPercent.String())
}

// QuoteFunc fetches a fresh expected-output quote for the trade's leg.
type QuoteFunc func(ctx context.Context, fromMint, toMint string, fromAmount decimal.Decimal) (decimal.Decimal, error)

// Controller rechecks slippage immediately before execution.
type Controller struct {
	quote    QuoteFunc
	breakers *breaker.Registry
	log      zerolog.Logger
}

// New constructs a slippage Controller.
func New(quote QuoteFunc, breakers *breaker.Registry, log zerolog.Logger) *Controller {
	return &Controller{quote: quote, breakers: breakers, log: log.With().Str("component", "slippage_controller").Logger()}
}

// Check fetches a current quote for trade and rejects it if realized
// slippage exceeds MaxSlippagePercent, feeding the slippage_rate breaker
// either way.
func (c *Controller) Check(ctx context.Context, trade domain.GeneratedTrade) error {
	inst := trade.SwapInstruction

	_, err := c.breakers.Execute(ctx, breaker.DomainSlippageRate, func() (any, error) {
		current, err := c.quote(ctx, inst.FromMint, inst.ToMint, inst.FromAmount)
		if err != nil {
			return nil, fmt.Errorf("slippage: quote: %w", err)
		}

		if inst.ExpectedToAmount.IsZero() {
			return nil, nil
		}

		realized := inst.ExpectedToAmount.Sub(current).Div(inst.ExpectedToAmount).Mul(decimal.NewFromInt(100))
		if realized.GreaterThan(inst.MaxSlippagePercent) {
			return nil, &ErrSlippageExceeded{RealizedPercent: realized, MaxPercent: inst.MaxSlippagePercent}
		}
		return nil, nil
	})

	return err
}
