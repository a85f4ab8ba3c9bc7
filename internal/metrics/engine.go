// Package metrics computes the §4.5 performance metrics (ROI, maximum
// drawdown, Sharpe, win/loss) over a rolling window, using 28-digit
// decimal arithmetic throughout — no floating point in the money path
// (§9).
package metrics

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/vaultrun/internal/domain"
)

const batchConcurrency = 3

func init() {
	decimal.DivisionPrecision = 28
}

// Engine computes PerformanceMetrics from a wallet's enriched trade
// history.
type Engine struct {
	log zerolog.Logger
}

// New constructs a metrics Engine.
func New(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "metrics_engine").Logger()}
}

// Compute derives PerformanceMetrics for one wallet over periodDays,
// given its enriched trades already filtered to the rolling window.
func (e *Engine) Compute(wallet string, trades []domain.Trade, periodDays int) *domain.PerformanceMetrics {
	m := &domain.PerformanceMetrics{Wallet: wallet, PeriodDays: periodDays, DataPoints: len(trades)}
	if len(trades) == 0 {
		return zeroMetrics(wallet, periodDays)
	}

	var (
		totalVolume = decimal.Zero
		totalFees   = decimal.Zero
		totalProfit = decimal.Zero
		sizes       []decimal.Decimal
	)

	for _, t := range trades {
		totalVolume = totalVolume.Add(t.TokenInUSD)
		totalFees = totalFees.Add(t.FeeUSD)
		totalProfit = totalProfit.Add(t.NetProfitUSD)
		sizes = append(sizes, t.TotalCostUSD)

		if t.NetProfitUSD.IsPositive() {
			m.WinningTrades++
			if m.LargestWinUSD.IsZero() || t.NetProfitUSD.GreaterThan(m.LargestWinUSD) {
				m.LargestWinUSD = t.NetProfitUSD
			}
		} else if t.NetProfitUSD.IsNegative() {
			m.LosingTrades++
			if m.LargestLossUSD.IsZero() || t.NetProfitUSD.LessThan(m.LargestLossUSD) {
				m.LargestLossUSD = t.NetProfitUSD
			}
		}
	}

	m.TotalTrades = len(trades)
	m.TotalVolumeUSD = quantize(totalVolume, 2)
	m.TotalFeesUSD = quantize(totalFees, 2)
	m.TotalProfitUSD = quantize(totalProfit, 2)
	m.AverageTradeSizeUSD = quantize(average(sizes), 2)
	m.LargestWinUSD = quantize(m.LargestWinUSD, 2)
	m.LargestLossUSD = quantize(m.LargestLossUSD, 2)

	m.NetROIPercent = quantize(netROI(totalProfit, totalVolume), 2)
	m.MaximumDrawdownPercent = quantize(maxDrawdown(trades), 2)
	m.SharpeRatio = quantize(sharpeRatio(trades), 3)
	m.WinLossRatio = winLossRatio(m.WinningTrades, m.LosingTrades)

	return m
}

// ComputeBatch runs Compute for many wallets concurrently, bounded by a
// semaphore of 3 (§4.5).
func (e *Engine) ComputeBatch(ctx context.Context, tradesByWallet map[string][]domain.Trade, periodDays int) (map[string]*domain.PerformanceMetrics, error) {
	out := make(map[string]*domain.PerformanceMetrics, len(tradesByWallet))
	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for wallet, trades := range tradesByWallet {
		wallet, trades := wallet, trades
		g.Go(func() error {
			m := e.Compute(wallet, trades, periodDays)
			mu.Lock()
			out[wallet] = m
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func zeroMetrics(wallet string, periodDays int) *domain.PerformanceMetrics {
	return &domain.PerformanceMetrics{
		Wallet: wallet, PeriodDays: periodDays,
		WinLossRatio: decimal.Zero,
	}
}

// netROI = total_profit_usd / total_volume_usd * 100 (§4.5).
func netROI(totalProfit, totalVolume decimal.Decimal) decimal.Decimal {
	if totalVolume.IsZero() {
		return decimal.Zero
	}
	return totalProfit.Div(totalVolume).Mul(decimal.NewFromInt(100))
}

// maxDrawdown walks the cumulative-profit curve, tracking a running peak,
// and returns max(drawdown)/peak * 100 (0 if peak <= 0), per §4.5.
func maxDrawdown(trades []domain.Trade) decimal.Decimal {
	sorted := make([]domain.Trade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Swap.BlockTime.Before(sorted[j].Swap.BlockTime)
	})

	cumulative := decimal.Zero
	peak := decimal.Zero
	maxDD := decimal.Zero

	for _, t := range sorted {
		cumulative = cumulative.Add(t.NetProfitUSD)
		if cumulative.GreaterThan(peak) {
			peak = cumulative
		}
		dd := peak.Sub(cumulative)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}

	if !peak.IsPositive() {
		return decimal.Zero
	}
	return maxDD.Div(peak).Mul(decimal.NewFromInt(100))
}

// sharpeRatio is the unannualized per-trade-return Sharpe proxy:
// (mean(returns) - rf) / stdev(returns), rf=0; 0 when <2 trades or
// stdev=0 (§4.5).
func sharpeRatio(trades []domain.Trade) decimal.Decimal {
	if len(trades) < 2 {
		return decimal.Zero
	}

	returns := make([]decimal.Decimal, 0, len(trades))
	for _, t := range trades {
		if t.TokenInUSD.IsZero() {
			continue
		}
		returns = append(returns, t.NetProfitUSD.Div(t.TokenInUSD))
	}
	if len(returns) < 2 {
		return decimal.Zero
	}

	mean := average(returns)
	sd := stdev(returns, mean)
	if sd.IsZero() {
		return decimal.Zero
	}
	return mean.Div(sd)
}

// winLossRatio = |winning| / |losing|, or the infinity-sentinel when there
// are no losing trades (§4.5).
func winLossRatio(winning, losing int) decimal.Decimal {
	if losing == 0 {
		if winning == 0 {
			return decimal.Zero
		}
		return domain.WinLossInfinitySentinel
	}
	return decimal.NewFromInt(int64(winning)).Div(decimal.NewFromInt(int64(losing)))
}

func average(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

func stdev(values []decimal.Decimal, mean decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}
	sumSq := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sumSq = sumSq.Add(diff.Mul(diff))
	}
	variance := sumSq.Div(decimal.NewFromInt(int64(len(values) - 1)))
	return sqrt(variance)
}

// sqrt implements Newton's method at decimal precision since
// shopspring/decimal has no native Sqrt in the pinned version.
func sqrt(d decimal.Decimal) decimal.Decimal {
	if !d.IsPositive() {
		return decimal.Zero
	}
	x := d
	two := decimal.NewFromInt(2)
	for i := 0; i < 64; i++ {
		next := x.Add(d.Div(x)).Div(two)
		if next.Sub(x).Abs().LessThan(decimal.New(1, -20)) {
			x = next
			break
		}
		x = next
	}
	return x
}

func quantize(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}
