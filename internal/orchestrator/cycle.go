// Package orchestrator implements the §4.9 six-phase execution cycle:
// fetch intelligence, fetch user settings, strategy selection, portfolio
// reconciliation, trade generation, trade execution. A cycle_id
// correlates every audit entry written during one run. The orchestrator
// is stateless between cycles: all durable knowledge lives in the
// ranking snapshot store, the audit log, and the idempotency store.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/vaultrun/internal/batch"
	"github.com/sawpanic/vaultrun/internal/domain"
	"github.com/sawpanic/vaultrun/internal/executor"
	"github.com/sawpanic/vaultrun/internal/strategy"
	"github.com/sawpanic/vaultrun/internal/tradegen"
	"github.com/sawpanic/vaultrun/internal/vault"
)

const defaultExecutionConcurrency = 3

// RankingFetcher retrieves the current ranking snapshot; in cmd/execbot it
// is httpapi.HTTPAnalyticsClient, which calls the Analytics service's
// GET /rankings endpoint.
type RankingFetcher interface {
	FetchRankedTraders(ctx context.Context) (domain.RankingSnapshot, error)
}

// UserStore lists the active users a cycle should process.
type UserStore interface {
	ActiveUsers(ctx context.Context) ([]domain.UserRiskProfile, error)
}

// AuditWriter is the subset of audit.Logger the orchestrator depends on.
type AuditWriter interface {
	Write(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error)
}

// Config wires every per-cycle collaborator.
type Config struct {
	Ranking             RankingFetcher
	Users               UserStore
	Strategy            *strategy.Selector
	Vault               *vault.Reader
	TradeGen            *tradegen.Generator
	Executor            *executor.Executor
	Audit               AuditWriter
	MaxSlippagePercent  decimal.Decimal
	ExecutionConcurrency int
	UserPublicKey       func(userID string) string
}

// PhaseOutcome is one named phase's cycle-level result, recorded
// regardless of whether the phase succeeded, so a failure doesn't erase
// visibility into what was attempted.
type PhaseOutcome struct {
	Phase    string
	Success  bool
	Count    int
	Duration time.Duration
	Err      error
}

// CycleResult is the aggregate outcome of one orchestrator run.
type CycleResult struct {
	CycleID      string
	Phases       []PhaseOutcome
	UsersSkipped []string
	TradesRun    int
}

// Orchestrator drives one cycle through all six phases.
type Orchestrator struct {
	cfg Config
	log zerolog.Logger
}

// New constructs an Orchestrator.
func New(cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.ExecutionConcurrency <= 0 {
		cfg.ExecutionConcurrency = defaultExecutionConcurrency
	}
	return &Orchestrator{cfg: cfg, log: log.With().Str("component", "orchestrator").Logger()}
}

// RunCycle executes phases 1-6 in sequence. Failure at any phase is
// recorded and the cycle continues to the next compatible phase where
// possible (e.g. a per-user reconciliation failure skips that user but
// does not abort the cycle).
func (o *Orchestrator) RunCycle(ctx context.Context, now time.Time) CycleResult {
	cycleID := uuid.NewString()
	result := CycleResult{CycleID: cycleID}
	log := o.log.With().Str("cycle_id", cycleID).Logger()

	// phase 1: fetch intelligence
	snapshot, phase1 := o.fetchIntelligence(ctx, cycleID, now)
	result.Phases = append(result.Phases, phase1)
	if phase1.Err != nil {
		log.Error().Err(phase1.Err).Msg("cycle aborted: could not fetch ranking snapshot")
		return result
	}

	// phase 2: fetch user settings
	users, phase2 := o.fetchUsers(ctx, cycleID)
	result.Phases = append(result.Phases, phase2)
	if phase2.Err != nil {
		log.Error().Err(phase2.Err).Msg("cycle aborted: could not fetch active users")
		return result
	}

	var allTrades []domain.GeneratedTrade
	phase3 := PhaseOutcome{Phase: "strategy_selection"}
	phase4 := PhaseOutcome{Phase: "portfolio_reconciliation"}
	phase5 := PhaseOutcome{Phase: "trade_generation"}

	for _, user := range users {
		target, err := o.cfg.Strategy.Select(user, snapshot, decimal.NewFromInt(100))
		if err != nil {
			result.UsersSkipped = append(result.UsersSkipped, user.UserID)
			o.writeAudit(ctx, cycleID, "strategy_selection_skipped", domain.SeverityInfo, user.UserID, err)
			continue
		}
		phase3.Count++

		holdings, err := o.cfg.Vault.ReadHoldings(ctx, user.VaultAddress, user.UserID)
		if err != nil {
			o.writeAudit(ctx, cycleID, "portfolio_reconciliation_failed", domain.SeverityError, user.UserID, err)
			continue
		}

		comparison := reconcile(user.UserID, holdings, target)
		phase4.Count++
		if !comparison.RebalanceRequired {
			continue
		}

		trades, err := o.cfg.TradeGen.Generate(comparison, user.UserID, cycleID, o.cfg.MaxSlippagePercent, now)
		if err != nil {
			o.writeAudit(ctx, cycleID, "trade_generation_failed", domain.SeverityError, user.UserID, err)
			continue
		}
		phase5.Count += len(trades)
		allTrades = append(allTrades, trades...)
	}
	result.Phases = append(result.Phases, phase3, phase4, phase5)

	// phase 6: trade execution, bounded concurrency across trades
	phase6 := o.executeTrades(ctx, allTrades, now)
	result.Phases = append(result.Phases, phase6)
	result.TradesRun = phase6.Count

	return result
}

func (o *Orchestrator) fetchIntelligence(ctx context.Context, cycleID string, now time.Time) (domain.RankingSnapshot, PhaseOutcome) {
	start := now
	snapshot, err := o.cfg.Ranking.FetchRankedTraders(ctx)
	outcome := PhaseOutcome{Phase: "fetch_intelligence", Success: err == nil, Count: len(snapshot.Traders), Duration: time.Since(start), Err: err}
	o.writeAudit(ctx, cycleID, "fetch_intelligence", severityFor(err), "", err)
	return snapshot, outcome
}

func (o *Orchestrator) fetchUsers(ctx context.Context, cycleID string) ([]domain.UserRiskProfile, PhaseOutcome) {
	users, err := o.cfg.Users.ActiveUsers(ctx)
	outcome := PhaseOutcome{Phase: "fetch_user_settings", Success: err == nil, Count: len(users), Err: err}
	o.writeAudit(ctx, cycleID, "fetch_user_settings", severityFor(err), "", err)
	return users, outcome
}

func (o *Orchestrator) executeTrades(ctx context.Context, trades []domain.GeneratedTrade, now time.Time) PhaseOutcome {
	if len(trades) == 0 {
		return PhaseOutcome{Phase: "trade_execution", Success: true}
	}

	pool := batch.New(func(ctx context.Context, t domain.GeneratedTrade) (executor.Result, error) {
		pubkey := ""
		if o.cfg.UserPublicKey != nil {
			pubkey = o.cfg.UserPublicKey(t.UserID)
		}
		res := o.cfg.Executor.Execute(ctx, t, pubkey, now)
		return res, res.Err
	}, batch.Config{
		MaxConcurrent: o.cfg.ExecutionConcurrency,
		MaxRetries:    0,
	}, o.log)

	res := pool.Run(ctx, trades)
	return PhaseOutcome{
		Phase:   "trade_execution",
		Success: res.FailedCount == 0,
		Count:   res.SuccessCount + res.RetriedCount,
	}
}

// reconcile builds a PortfolioComparison from a vault's current holdings
// against a target allocation (§4.9 step 4).
func reconcile(userID string, current domain.Portfolio, target domain.TargetPortfolio) domain.PortfolioComparison {
	total := current.TotalValueUSD()

	byMint := make(map[string]domain.PortfolioAsset, len(current.Assets))
	for _, a := range current.Assets {
		byMint[a.Mint] = a
	}

	const rebalanceThresholdPercent = "1"
	threshold, _ := decimal.NewFromString(rebalanceThresholdPercent)

	discrepancies := make([]domain.AssetDiscrepancy, 0, len(target.Allocations))
	rebalanceRequired := false

	for _, alloc := range target.Allocations {
		asset, held := byMint[alloc.Mint]
		currentValue := decimal.Zero
		currentPercent := decimal.Zero
		if held {
			currentValue = asset.EstimatedUSDValue
			if total.IsPositive() {
				currentPercent = currentValue.Div(total).Mul(decimal.NewFromInt(100))
			}
		}

		targetValue := decimal.Zero
		if total.IsPositive() {
			targetValue = total.Mul(alloc.TargetPercent).Div(decimal.NewFromInt(100))
		}

		delta := targetValue.Sub(currentValue)
		if delta.Abs().GreaterThan(threshold.Mul(total).Div(decimal.NewFromInt(100))) {
			rebalanceRequired = true
		}

		discrepancies = append(discrepancies, domain.AssetDiscrepancy{
			Mint:            alloc.Mint,
			Symbol:          alloc.Symbol,
			CurrentPercent:  currentPercent,
			TargetPercent:   alloc.TargetPercent,
			CurrentValueUSD: currentValue,
			TargetValueUSD:  targetValue,
			DeltaValueUSD:   delta,
		})
	}

	return domain.PortfolioComparison{
		UserID:            userID,
		VaultAddress:      current.VaultAddress,
		TotalValueUSD:     total,
		Discrepancies:     discrepancies,
		RebalanceRequired: rebalanceRequired,
	}
}

func (o *Orchestrator) writeAudit(ctx context.Context, cycleID, eventType string, severity domain.AuditSeverity, userID string, err error) {
	if o.cfg.Audit == nil {
		return
	}
	entry := domain.AuditEntry{
		EventType:     eventType,
		Severity:      severity,
		UserID:        userID,
		CorrelationID: cycleID,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if _, auditErr := o.cfg.Audit.Write(ctx, entry); auditErr != nil {
		o.log.Error().Err(auditErr).Str("event_type", eventType).Msg("failed to write cycle audit entry")
	}
}

func severityFor(err error) domain.AuditSeverity {
	if err != nil {
		return domain.SeverityError
	}
	return domain.SeverityInfo
}
