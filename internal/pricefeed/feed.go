// Package pricefeed implements the historical USD price lookup of §4.4:
// a stablecoin shortcut, a historical provider, and a realtime provider
// fallback, with per-source rate limiting and a shared TTL/LRU cache.
package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sawpanic/vaultrun/internal/apperrors"
)

const (
	cacheValidity    = time.Hour
	lruSweepThreshold = 1000
	realtimeWindow   = 24 * time.Hour
	batchConcurrency = 5
)

var stablecoinSymbols = map[string]bool{"USDC": true, "USDT": true}

// Source names a price source, per §4.4.
type Source string

const (
	SourceStablecoin Source = "stablecoin"
	SourceHistorical Source = "historical"
	SourceRealtime   Source = "realtime"
)

// Quote is the result of a successful price lookup.
type Quote struct {
	PriceUSD   decimal.Decimal
	Source     Source
	Confidence float64
}

// HistoricalProvider is a CoinGecko-class historical price source, keyed
// by a symbol-to-id map and queried by DD-MM-YYYY date.
type HistoricalProvider interface {
	HistoricalPrice(ctx context.Context, coinID string, date time.Time) (decimal.Decimal, error)
}

// RealtimeProvider is a Jupiter-class realtime price source, keyed by mint.
type RealtimeProvider interface {
	RealtimePrice(ctx context.Context, mint string) (decimal.Decimal, error)
}

// Feed implements the §4.4 contract.
type Feed struct {
	symbolToCoinID map[string]string

	historical HistoricalProvider
	realtime   RealtimeProvider

	historicalLimiter *rate.Limiter
	realtimeLimiter   *rate.Limiter

	mu    sync.Mutex
	cache map[string]cacheEntry
	order []string // least recently read first; a cache hit moves its key to the end

	log zerolog.Logger
}

type cacheEntry struct {
	quote     Quote
	expiresAt time.Time
}

// New constructs a price Feed.
func New(symbolToCoinID map[string]string, historical HistoricalProvider, realtime RealtimeProvider, historicalRPS, realtimeRPS float64, log zerolog.Logger) *Feed {
	return &Feed{
		symbolToCoinID:    symbolToCoinID,
		historical:        historical,
		realtime:          realtime,
		historicalLimiter: rate.NewLimiter(rate.Limit(historicalRPS), int(historicalRPS)+1),
		realtimeLimiter:   rate.NewLimiter(rate.Limit(realtimeRPS), int(realtimeRPS)+1),
		cache:             make(map[string]cacheEntry),
		log:               log.With().Str("component", "price_feed").Logger(),
	}
}

// cacheKey groups by (mint, timestamp_minute), per §4.4.
func cacheKey(mint string, ts time.Time) string {
	return fmt.Sprintf("%s|%d", mint, ts.UTC().Truncate(time.Minute).Unix())
}

// Price implements the §4.4 priority-ordered lookup.
func (f *Feed) Price(ctx context.Context, mint string, ts time.Time, symbol string) (*Quote, error) {
	key := cacheKey(mint, ts)
	if q, ok := f.getCached(key); ok {
		return &q, nil
	}

	if stablecoinSymbols[symbol] {
		q := Quote{PriceUSD: decimal.NewFromInt(1), Source: SourceStablecoin, Confidence: 0.99}
		f.setCached(key, q)
		return &q, nil
	}

	if f.historical != nil {
		if coinID, ok := f.symbolToCoinID[symbol]; ok {
			if err := f.historicalLimiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
			}
			price, err := f.historical.HistoricalPrice(ctx, coinID, ts)
			if err == nil {
				q := Quote{PriceUSD: price, Source: SourceHistorical, Confidence: 0.9}
				f.setCached(key, q)
				return &q, nil
			}
			f.log.Debug().Err(err).Str("mint", mint).Msg("historical price lookup failed, trying realtime fallback")
		}
	}

	if f.realtime != nil && time.Since(ts) <= realtimeWindow {
		if err := f.realtimeLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
		}
		price, err := f.realtime.RealtimePrice(ctx, mint)
		if err == nil {
			q := Quote{PriceUSD: price, Source: SourceRealtime, Confidence: 0.7}
			f.setCached(key, q)
			return &q, nil
		}
	}

	return nil, nil // no source available: data-quality gap, not an error
}

// PriceRequest is one batch-lookup input.
type PriceRequest struct {
	Mint      string
	Timestamp time.Time
	Symbol    string
}

// Prices runs the batch variant with bounded concurrency (semaphore <= 5,
// per §4.4), returning a map keyed by cache key.
func (f *Feed) Prices(ctx context.Context, reqs []PriceRequest) (map[string]*Quote, error) {
	out := make(map[string]*Quote, len(reqs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for _, r := range reqs {
		r := r
		g.Go(func() error {
			q, err := f.Price(gctx, r.Mint, r.Timestamp, r.Symbol)
			if err != nil {
				return err
			}
			mu.Lock()
			out[cacheKey(r.Mint, r.Timestamp)] = q
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (f *Feed) getCached(key string) (Quote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.cache[key]
	if !ok || time.Now().After(e.expiresAt) {
		return Quote{}, false
	}
	for i, k := range f.order {
		if k == key {
			f.order = append(f.order[:i], f.order[i+1:]...)
			f.order = append(f.order, key)
			break
		}
	}
	return e.quote, true
}

func (f *Feed) setCached(key string, q Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.cache[key]; !exists {
		f.order = append(f.order, key)
	}
	f.cache[key] = cacheEntry{quote: q, expiresAt: time.Now().Add(cacheValidity)}

	for len(f.cache) > lruSweepThreshold && len(f.order) > 0 {
		oldest := f.order[0]
		f.order = f.order[1:]
		delete(f.cache, oldest)
	}
}
