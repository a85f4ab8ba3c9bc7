// Package breaker wraps sony/gobreaker with the independent per-domain
// circuit breakers of §4.17 (trade failure rate, network, market
// volatility, slippage rate, HSM failure, system errors, confirmation
// timeout) plus a manually asserted system-wide halt (Halt/Resume).
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker"

	"github.com/sawpanic/vaultrun/internal/audit"
	"github.com/sawpanic/vaultrun/internal/domain"
)

// Domain names one of the independent failure domains §3/§4.17 tracks.
type Domain string

const (
	DomainTradeFailureRate   Domain = "trade_failure_rate"
	DomainNetwork            Domain = "network"
	DomainMarketVolatility   Domain = "market_volatility"
	DomainSlippageRate       Domain = "slippage_rate"
	DomainHSMFailure         Domain = "hsm_failure"
	DomainSystemErrors       Domain = "system_errors"
	DomainConfirmationTimeout Domain = "confirmation_timeout"
)

var domainDisplayNames = map[Domain]string{
	DomainTradeFailureRate:    "Trade Failure Rate Monitor",
	DomainNetwork:             "Network Monitor",
	DomainMarketVolatility:    "Market Volatility Monitor",
	DomainSlippageRate:        "Slippage Rate Monitor",
	DomainHSMFailure:          "HSM Failure Monitor",
	DomainSystemErrors:        "System Errors Monitor",
	DomainConfirmationTimeout: "Confirmation Timeout Monitor",
}

// AllDomains returns every domain the registry tracks, used by the
// gateway's health endpoint to report a state per domain.
func AllDomains() []Domain {
	return []Domain{
		DomainTradeFailureRate,
		DomainNetwork,
		DomainMarketVolatility,
		DomainSlippageRate,
		DomainHSMFailure,
		DomainSystemErrors,
		DomainConfirmationTimeout,
	}
}

// ErrBreakerOpen is returned when a guarded call is rejected because its
// breaker (or the system-wide halt) is open.
type ErrBreakerOpen struct {
	Reason string
}

func (e *ErrBreakerOpen) Error() string { return fmt.Sprintf("Circuit breaker open: %s", e.Reason) }

// domainBreaker pairs a gobreaker instance with a semaphore capping
// concurrent half-open probe calls at cfg.TestRequestLimit, independent
// of cfg.RecoverySuccessThreshold (the consecutive-success count
// gobreaker itself requires, via MaxRequests, before closing).
type domainBreaker struct {
	cb          *gobreaker.CircuitBreaker
	halfOpenSem chan struct{}
}

// Registry holds one gobreaker instance per domain plus a manual halt
// flag, and writes every transition to the audit log.
type Registry struct {
	log    zerolog.Logger
	auditl *audit.Logger

	mu       sync.RWMutex
	breakers map[Domain]*domainBreaker
	halted   bool
	haltedBy string
}

// New builds a Registry with one breaker per domain, every domain using
// cfg as its configuration.
func New(cfg domain.BreakerConfig, auditl *audit.Logger, log zerolog.Logger) *Registry {
	r := &Registry{
		log:      log.With().Str("component", "circuit_breaker_registry").Logger(),
		auditl:   auditl,
		breakers: make(map[Domain]*domainBreaker),
	}
	for d := range domainDisplayNames {
		r.breakers[d] = newDomainBreaker(d, cfg)
	}
	return r
}

func newDomainBreaker(d Domain, cfg domain.BreakerConfig) *domainBreaker {
	// gobreaker closes a half-open breaker once ConsecutiveSuccesses
	// reaches MaxRequests, so RecoverySuccessThreshold (not
	// TestRequestLimit) drives MaxRequests here; TestRequestLimit is
	// enforced separately as a concurrency cap on half-open probes via
	// halfOpenSem below.
	closeThreshold := cfg.RecoverySuccessThreshold
	if closeThreshold <= 0 {
		closeThreshold = cfg.TestRequestLimit
	}
	if closeThreshold <= 0 {
		closeThreshold = 1
	}
	settings := gobreaker.Settings{
		Name:        domainDisplayNames[d],
		Interval:    cfg.TimeWindow,
		Timeout:     cfg.RecoveryTimeout,
		MaxRequests: uint32(closeThreshold),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailureLimit > 0 && int(counts.ConsecutiveFailures) >= cfg.ConsecutiveFailureLimit {
				return true
			}
			if cfg.FailureThreshold > 0 && int(counts.TotalFailures) >= cfg.FailureThreshold {
				return true
			}
			if cfg.PercentageThreshold != nil && counts.Requests > 0 {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				if ratio > *cfg.PercentageThreshold {
					return true
				}
			}
			return false
		},
	}

	semSize := cfg.TestRequestLimit
	if semSize <= 0 {
		semSize = 1
	}
	return &domainBreaker{
		cb:          gobreaker.NewCircuitBreaker(settings),
		halfOpenSem: make(chan struct{}, semSize),
	}
}

// IsTradingAllowed reports whether the system-wide halt is NOT asserted.
// A halt short-circuits every domain. Only Halt asserts it; an open
// domain breaker, whatever its priority, does not.
func (r *Registry) IsTradingAllowed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.halted
}

// Halt asserts a system-wide trading halt; reason is recorded in the
// audit trail.
func (r *Registry) Halt(ctx context.Context, reason string) {
	r.mu.Lock()
	r.halted = true
	r.haltedBy = reason
	r.mu.Unlock()

	r.writeAudit(ctx, "circuit_breaker_halt", domain.SeverityCritical, map[string]any{"reason": reason})
}

// Resume clears a system-wide trading halt.
func (r *Registry) Resume(ctx context.Context) {
	r.mu.Lock()
	r.halted = false
	r.haltedBy = ""
	r.mu.Unlock()

	r.writeAudit(ctx, "circuit_breaker_resume", domain.SeverityInfo, nil)
}

// Execute runs fn through the named domain's breaker, rejecting
// immediately if the system is halted or the domain breaker is open.
func (r *Registry) Execute(ctx context.Context, d Domain, fn func() (any, error)) (any, error) {
	if !r.IsTradingAllowed() {
		return nil, &ErrBreakerOpen{Reason: "system halt: " + r.haltedBy}
	}

	r.mu.RLock()
	b, ok := r.breakers[d]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("breaker: unknown domain %q", d)
	}

	before := b.cb.State()
	if before == gobreaker.StateHalfOpen {
		select {
		case b.halfOpenSem <- struct{}{}:
			defer func() { <-b.halfOpenSem }()
		default:
			return nil, &ErrBreakerOpen{Reason: domainDisplayNames[d]}
		}
	}

	result, err := b.cb.Execute(fn)
	after := b.cb.State()

	if before != after {
		r.writeAudit(ctx, "circuit_breaker_transition", severityForTransition(after), map[string]any{
			"domain": string(d),
			"from":   before.String(),
			"to":     after.String(),
		})
	}

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, &ErrBreakerOpen{Reason: domainDisplayNames[d]}
	}
	return result, err
}

// State reports the current gobreaker state for a domain.
func (r *Registry) State(d Domain) domain.BreakerState {
	r.mu.RLock()
	b, ok := r.breakers[d]
	r.mu.RUnlock()
	if !ok {
		return domain.BreakerClosed
	}
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return domain.BreakerOpen
	case gobreaker.StateHalfOpen:
		return domain.BreakerHalfOpen
	default:
		return domain.BreakerClosed
	}
}

func severityForTransition(s gobreaker.State) domain.AuditSeverity {
	if s == gobreaker.StateOpen {
		return domain.SeverityCritical
	}
	return domain.SeverityInfo
}

func (r *Registry) writeAudit(ctx context.Context, eventType string, severity domain.AuditSeverity, data map[string]any) {
	if r.auditl == nil {
		return
	}
	if _, err := r.auditl.Write(ctx, domain.AuditEntry{
		EventType: eventType,
		Severity:  severity,
		EventData: data,
	}); err != nil {
		r.log.Error().Err(err).Msg("failed to write breaker audit entry")
	}
}

// RunHalfOpenTicker logs currently-open domains on a 30s cadence until
// ctx is cancelled. gobreaker transitions open->half-open lazily on the
// next real Execute call once Timeout has elapsed; this ticker surfaces
// that state for observability without forcing a transition itself,
// since a synthetic no-op call would close a breaker without the
// recovery successes §4.17 requires.
func (r *Registry) RunHalfOpenTicker(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.RLock()
			for d := range r.breakers {
				if r.State(d) == domain.BreakerOpen {
					r.log.Info().Str("domain", string(d)).Msg("breaker still open, awaiting recovery_timeout")
				}
			}
			r.mu.RUnlock()
		}
	}
}
