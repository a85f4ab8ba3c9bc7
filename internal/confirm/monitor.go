// Package confirm implements the §4.16 confirmation monitor: a
// background loop that polls chain status for every submitted
// transaction, classifies stuck/expired conditions, and applies the
// retry-strategy table by error kind.
package confirm

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/vaultrun/internal/domain"
)

const (
	tickInterval = 10 * time.Second
	stuckAfter   = 120 * time.Second

	backoffInitial    = 5 * time.Second
	backoffMultiplier = 2
	backoffMax        = 300 * time.Second
	maxRetries        = 5
)

// ErrorKind classifies a chain-status failure for retry-strategy
// selection (§4.16).
type ErrorKind string

const (
	KindNetworkError       ErrorKind = "network_error"
	KindRateLimited        ErrorKind = "rate_limited"
	KindNodeUnhealthy      ErrorKind = "node_unhealthy"
	KindUnknown            ErrorKind = "unknown_error"
	KindBlockhashExpired   ErrorKind = "blockhash_expired"
	KindComputeBudget      ErrorKind = "compute_budget_exceeded"
	KindTimeout            ErrorKind = "timeout_error"
	KindProgramError       ErrorKind = "program_error"
	KindInsufficientFunds  ErrorKind = "insufficient_funds"
	KindSlippageExceeded   ErrorKind = "slippage_exceeded"
	KindTxTooLarge         ErrorKind = "tx_too_large"
	KindDuplicateTx        ErrorKind = "duplicate_tx"
)

// Strategy is the retry action the monitor should take for a classified
// error.
type Strategy string

const (
	StrategyExponentialBackoff Strategy = "exponential_backoff"
	StrategyReplaceTransaction Strategy = "replace_transaction"
	StrategyLinearBackoff      Strategy = "linear_backoff"
	StrategyNoRetry            Strategy = "no_retry"
)

var strategyByKind = map[ErrorKind]Strategy{
	KindNetworkError:      StrategyExponentialBackoff,
	KindRateLimited:       StrategyExponentialBackoff,
	KindNodeUnhealthy:     StrategyExponentialBackoff,
	KindUnknown:           StrategyExponentialBackoff,
	KindBlockhashExpired:  StrategyReplaceTransaction,
	KindComputeBudget:     StrategyReplaceTransaction,
	KindTimeout:           StrategyReplaceTransaction,
	KindProgramError:      StrategyLinearBackoff,
	KindInsufficientFunds: StrategyNoRetry,
	KindSlippageExceeded:  StrategyNoRetry,
	KindTxTooLarge:        StrategyNoRetry,
	KindDuplicateTx:       StrategyNoRetry,
}

// StrategyFor returns the retry strategy for a classified error kind.
func StrategyFor(kind ErrorKind) Strategy {
	if s, ok := strategyByKind[kind]; ok {
		return s
	}
	return StrategyExponentialBackoff
}

// BackoffDelay computes delay = min(initial * multiplier^retryCount, max)
// for the exponential-backoff and replace-transaction strategies, and
// delay = min(initial * (retryCount+1), max) for linear backoff.
func BackoffDelay(strategy Strategy, retryCount int) time.Duration {
	switch strategy {
	case StrategyLinearBackoff:
		d := backoffInitial * time.Duration(retryCount+1)
		if d > backoffMax {
			return backoffMax
		}
		return d
	case StrategyExponentialBackoff, StrategyReplaceTransaction:
		d := backoffInitial
		for i := 0; i < retryCount && d < backoffMax; i++ {
			d *= backoffMultiplier
		}
		if d > backoffMax {
			return backoffMax
		}
		return d
	default:
		return 0
	}
}

// ChainStatus is one poll result for a submitted transaction.
type ChainStatus struct {
	Confirmations int
	BlockHeight   uint64
	Finalized     bool
	Failed        bool
	ErrorKind     ErrorKind
}

// StatusFunc polls the chain for a transaction's current status.
type StatusFunc func(ctx context.Context, signature string) (ChainStatus, error)

// Monitor tracks submitted transactions through confirmation on a
// background tick.
type Monitor struct {
	status StatusFunc
	log    zerolog.Logger

	mu  sync.Mutex
	txs map[string]*domain.TransactionMonitor
}

// New constructs a confirmation Monitor.
func New(status StatusFunc, log zerolog.Logger) *Monitor {
	return &Monitor{status: status, log: log.With().Str("component", "confirmation_monitor").Logger(), txs: make(map[string]*domain.TransactionMonitor)}
}

// Track registers a newly submitted transaction, deriving its
// confirmation requirement from tradeUSD.
func (m *Monitor) Track(signature string, submittedAt time.Time, tradeUSD float64) *domain.TransactionMonitor {
	tm := &domain.TransactionMonitor{
		TxSignature: signature,
		SubmittedAt: submittedAt,
		State:       domain.TxSubmitted,
		Requirement: domain.RequirementForUSD(tradeUSD),
	}
	m.mu.Lock()
	m.txs[signature] = tm
	m.mu.Unlock()
	return tm
}

// Get returns the current tracked state for a signature, if any.
func (m *Monitor) Get(signature string) (*domain.TransactionMonitor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.txs[signature]
	return tm, ok
}

// Backlog reports how many transactions are still being tracked
// (non-terminal), used by the gateway's health endpoint.
func (m *Monitor) Backlog() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tm := range m.txs {
		if !isTerminal(tm.State) {
			n++
		}
	}
	return n
}

// Run polls every tracked transaction every 10s until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.pollAll(ctx, now)
		}
	}
}

func (m *Monitor) pollAll(ctx context.Context, now time.Time) {
	m.mu.Lock()
	sigs := make([]string, 0, len(m.txs))
	for sig, tm := range m.txs {
		if isTerminal(tm.State) {
			continue
		}
		sigs = append(sigs, sig)
	}
	m.mu.Unlock()

	for _, sig := range sigs {
		m.pollOne(ctx, sig, now)
	}
}

func (m *Monitor) pollOne(ctx context.Context, signature string, now time.Time) {
	m.mu.Lock()
	tm, ok := m.txs[signature]
	m.mu.Unlock()
	if !ok {
		return
	}

	status, err := m.status(ctx, signature)
	if err != nil {
		m.log.Warn().Err(err).Str("signature", signature).Msg("chain status poll failed")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tm.Confirmations = status.Confirmations
	tm.BlockHeight = status.BlockHeight
	tm.Finalized = status.Finalized

	elapsed := now.Sub(tm.SubmittedAt)

	switch {
	case status.Failed:
		tm.State = domain.TxFailed
		tm.ErrorCount++
		m.scheduleRetry(tm, status.ErrorKind, now)
	case elapsed > time.Duration(tm.Requirement.MaxWaitSeconds)*time.Second:
		tm.State = domain.TxTimeout
	case tm.Confirmations == 0 && elapsed > stuckAfter:
		tm.State = domain.TxStuck
	case status.Finalized && tm.Requirement.RequireFinalization:
		tm.State = domain.TxFinalized
	case status.Confirmations >= tm.Requirement.MinConfirmations && !tm.Requirement.RequireFinalization:
		tm.State = domain.TxConfirmed
	default:
		tm.State = domain.TxPending
	}
}

func (m *Monitor) scheduleRetry(tm *domain.TransactionMonitor, kind ErrorKind, now time.Time) {
	strategy := StrategyFor(kind)
	if strategy == StrategyNoRetry || tm.RetryCount >= maxRetries {
		return
	}
	tm.RetryCount++
	next := now.Add(BackoffDelay(strategy, tm.RetryCount))
	tm.NextRetryAt = &next
}

func isTerminal(state domain.TxMonitorState) bool {
	switch state {
	case domain.TxConfirmed, domain.TxFinalized, domain.TxTimeout, domain.TxDropped:
		return true
	default:
		return false
	}
}
