// Package batch implements the generic, fault-tolerant bounded-concurrency
// processor of §4.8. The orchestrator's trade-execution phase runs through
// it; metrics computation, price fetches, and wallet ingestion bound their
// own concurrency with errgroup instead.
package batch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ItemState is a per-item position in the pending -> processing ->
// {success | retried | failed | skipped} state machine.
type ItemState string

const (
	StatePending    ItemState = "pending"
	StateProcessing ItemState = "processing"
	StateSuccess    ItemState = "success"
	StateRetried    ItemState = "retried"
	StateFailed     ItemState = "failed"
	StateSkipped    ItemState = "skipped"
)

// ErrCircuitBreakerTripped is returned (as Outcome.Err) for every item
// skipped after the sliding-window failure rate crosses the configured
// threshold.
var ErrCircuitBreakerTripped = errors.New("batch: circuit breaker tripped")

// Config parameterizes a Pool's concurrency, per-item retry, and
// sliding-window circuit-breaker behavior.
type Config struct {
	MaxConcurrent           int
	MaxRetries              int
	RetryDelay              time.Duration
	BackoffMultiplier       float64
	ItemTimeout             time.Duration
	CircuitBreakerThreshold float64 // failure ratio in [0,1] that trips the breaker
	CircuitBreakerWindow    int     // size of the trailing outcome window
	ContinueOnFailure       bool    // if true, items still run after trip; trip is only logged
}

// DefaultConfig returns a sane bounded-concurrency default.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:           8,
		MaxRetries:              3,
		RetryDelay:              200 * time.Millisecond,
		BackoffMultiplier:       2,
		ItemTimeout:             60 * time.Second,
		CircuitBreakerThreshold: 0.5,
		CircuitBreakerWindow:    20,
	}
}

// ItemFunc processes a single item and returns its result.
type ItemFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Outcome is one item's terminal state after a Run.
type Outcome[T, R any] struct {
	Index    int
	Item     T
	Value    R
	Err      error
	State    ItemState
	Attempts int
}

// Result is the aggregate output of a Run: per-item outcomes plus counts
// and error groupings by error type, per §4.8.
type Result[T, R any] struct {
	Items          []Outcome[T, R]
	SuccessCount   int
	RetriedCount   int
	FailedCount    int
	SkippedCount   int
	Tripped        bool
	ErrorsByType   map[string]int
}

// Pool runs ItemFunc over a slice of items with bounded concurrency,
// per-item exponential-backoff retry, and a sliding-window circuit
// breaker: once the trailing failure rate crosses the threshold, queued
// items are skipped with ErrCircuitBreakerTripped instead of run (unless
// ContinueOnFailure, in which case they still run but the trip is
// logged).
type Pool[T, R any] struct {
	cfg Config
	fn  ItemFunc[T, R]
	log zerolog.Logger

	mu      sync.Mutex
	window  []bool // true = success
	tripped bool
}

// New constructs a Pool.
func New[T, R any](fn ItemFunc[T, R], cfg Config, log zerolog.Logger) *Pool[T, R] {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.CircuitBreakerWindow <= 0 {
		cfg.CircuitBreakerWindow = 20
	}
	return &Pool[T, R]{
		cfg:    cfg,
		fn:     fn,
		log:    log.With().Str("component", "batch_pool").Logger(),
		window: make([]bool, 0, cfg.CircuitBreakerWindow),
	}
}

// Run processes every item, preserving result order by original index.
func (p *Pool[T, R]) Run(ctx context.Context, items []T) Result[T, R] {
	outcomes := make([]Outcome[T, R], len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrent)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			outcomes[i] = p.runOne(gctx, i, item)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.log.Warn().Err(err).Msg("batch pool context ended before all items completed")
	}

	return summarize(outcomes, p.hasTripped())
}

func (p *Pool[T, R]) runOne(ctx context.Context, index int, item T) Outcome[T, R] {
	if p.hasTripped() && !p.cfg.ContinueOnFailure {
		return Outcome[T, R]{Index: index, Item: item, State: StateSkipped, Err: ErrCircuitBreakerTripped}
	}

	var zero R
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		attempts++
		if attempt > 0 {
			delay := backoffDelay(p.cfg.RetryDelay, p.cfg.BackoffMultiplier, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				p.recordOutcome(false)
				return Outcome[T, R]{Index: index, Item: item, State: StateFailed, Err: ctx.Err(), Attempts: attempts}
			}
		}

		value, err := p.callWithTimeout(ctx, item)
		if err == nil {
			p.recordOutcome(true)
			state := StateSuccess
			if attempt > 0 {
				state = StateRetried
			}
			return Outcome[T, R]{Index: index, Item: item, Value: value, State: state, Attempts: attempts}
		}
		lastErr = err

		if ctx.Err() != nil {
			p.recordOutcome(false)
			return Outcome[T, R]{Index: index, Item: item, State: StateFailed, Err: ctx.Err(), Attempts: attempts}
		}
	}

	p.recordOutcome(false)
	return Outcome[T, R]{
		Index:    index,
		Item:     item,
		State:    StateFailed,
		Err:      fmt.Errorf("batch: item failed after %d attempts: %w", attempts, lastErr),
		Attempts: attempts,
	}
}

func (p *Pool[T, R]) callWithTimeout(ctx context.Context, item T) (R, error) {
	if p.cfg.ItemTimeout <= 0 {
		return p.fn(ctx, item)
	}
	itemCtx, cancel := context.WithTimeout(ctx, p.cfg.ItemTimeout)
	defer cancel()
	return p.fn(itemCtx, item)
}

// recordOutcome appends to the sliding window and evaluates the trip
// condition once the window is full.
func (p *Pool[T, R]) recordOutcome(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.window = append(p.window, success)
	if len(p.window) > p.cfg.CircuitBreakerWindow {
		p.window = p.window[len(p.window)-p.cfg.CircuitBreakerWindow:]
	}

	if len(p.window) < p.cfg.CircuitBreakerWindow || p.cfg.CircuitBreakerThreshold <= 0 {
		return
	}

	failures := 0
	for _, ok := range p.window {
		if !ok {
			failures++
		}
	}
	rate := float64(failures) / float64(len(p.window))
	if rate > p.cfg.CircuitBreakerThreshold {
		if !p.tripped {
			p.log.Warn().Float64("failure_rate", rate).Msg("batch pool circuit breaker tripped")
		}
		p.tripped = true
	}
}

func (p *Pool[T, R]) hasTripped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tripped
}

func backoffDelay(base time.Duration, multiplier float64, attempt int) time.Duration {
	delay := float64(base)
	for i := 1; i < attempt; i++ {
		delay *= multiplier
	}
	return time.Duration(delay)
}

func summarize[T, R any](outcomes []Outcome[T, R], tripped bool) Result[T, R] {
	res := Result[T, R]{Items: outcomes, Tripped: tripped, ErrorsByType: map[string]int{}}
	for _, o := range outcomes {
		switch o.State {
		case StateSuccess:
			res.SuccessCount++
		case StateRetried:
			res.RetriedCount++
		case StateFailed:
			res.FailedCount++
		case StateSkipped:
			res.SkippedCount++
		}
		if o.Err != nil {
			res.ErrorsByType[errorTypeName(o.Err)]++
		}
	}
	return res
}

func errorTypeName(err error) string {
	if errors.Is(err, ErrCircuitBreakerTripped) {
		return "circuit_breaker_tripped"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	t := reflect.TypeOf(err)
	if t == nil {
		return "unknown"
	}
	return t.String()
}
