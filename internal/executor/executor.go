// Package executor implements the §4.12 per-trade state machine:
// idempotency guard, slippage recheck, transaction build, simulate,
// HSM sign, submit, and handoff to the confirmation monitor.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/vaultrun/internal/ammrouter"
	"github.com/sawpanic/vaultrun/internal/audit"
	"github.com/sawpanic/vaultrun/internal/breaker"
	"github.com/sawpanic/vaultrun/internal/confirm"
	"github.com/sawpanic/vaultrun/internal/domain"
	"github.com/sawpanic/vaultrun/internal/idempotency"
	"github.com/sawpanic/vaultrun/internal/slippage"
)

// BlockhashFunc returns a recent blockhash to include in the built
// transaction.
type BlockhashFunc func(ctx context.Context) (string, error)

// Simulator dry-runs a built, unsigned transaction.
type Simulator func(ctx context.Context, txB64 string) error

// Submitter submits a signed transaction to the chain and returns its
// signature.
type Submitter func(ctx context.Context, signedTxB64 string) (string, error)

// Signer authorizes a signing request via the HSM abstraction (§4.13).
type Signer interface {
	Sign(ctx context.Context, keyID string, message []byte) ([]byte, error)
}

// Result is the terminal outcome of one Execute call.
type Result struct {
	ShouldExecute     bool
	ExistingSignature string
	Trade             domain.GeneratedTrade
	Err               error
}

// Executor drives a GeneratedTrade from pending through to a terminal
// state.
type Executor struct {
	idem        *idempotency.Manager
	slippage    *slippage.Controller
	router      *ammrouter.Client
	blockhash   BlockhashFunc
	simulate    Simulator
	requireSim  bool
	signer      Signer
	signerKeyID string
	submit      Submitter
	monitor     *confirm.Monitor
	breakers    *breaker.Registry
	auditl      *audit.Logger
	log         zerolog.Logger
}

// Config wires every collaborator the executor needs.
type Config struct {
	Idempotency    *idempotency.Manager
	Slippage       *slippage.Controller
	Router         *ammrouter.Client
	Blockhash      BlockhashFunc
	Simulate       Simulator
	RequireSimulate bool
	Signer         Signer
	SignerKeyID    string
	Submit         Submitter
	Monitor        *confirm.Monitor
	Breakers       *breaker.Registry
	Audit          *audit.Logger
}

// New constructs an Executor.
func New(cfg Config, log zerolog.Logger) *Executor {
	return &Executor{
		idem:        cfg.Idempotency,
		slippage:    cfg.Slippage,
		router:      cfg.Router,
		blockhash:   cfg.Blockhash,
		simulate:    cfg.Simulate,
		requireSim:  cfg.RequireSimulate,
		signer:      cfg.Signer,
		signerKeyID: cfg.SignerKeyID,
		submit:      cfg.Submit,
		monitor:     cfg.Monitor,
		breakers:    cfg.Breakers,
		auditl:      cfg.Audit,
		log:         log.With().Str("component", "executor").Logger(),
	}
}

// Execute runs trade through the full state machine.
func (e *Executor) Execute(ctx context.Context, trade domain.GeneratedTrade, userPublicKey string, now time.Time) Result {
	// step 1: idempotency guard
	key, err := idempotency.TradeExecutionKey(trade.UserID, trade)
	if err != nil {
		return Result{Trade: trade, Err: fmt.Errorf("executor: derive idempotency key: %w", err)}
	}

	shouldProceed, existing, err := e.idem.CheckAndReserve(ctx, key, domain.OpTradeExecution, trade.UserID, nil, now)
	if err != nil {
		return Result{Trade: trade, Err: fmt.Errorf("executor: idempotency check: %w", err)}
	}
	if !shouldProceed {
		if existing != nil {
			trade.Status = domain.TradeStatusConfirmed
			trade.TxSignature = existing.TxSignature
			return Result{ShouldExecute: false, ExistingSignature: existing.TxSignature, Trade: trade}
		}
		trade.Status = domain.TradeStatusSkipped
		return Result{ShouldExecute: false, Trade: trade}
	}

	// step 2: slippage recheck
	if err := e.slippage.Check(ctx, trade); err != nil {
		trade.Status = domain.TradeStatusRejected
		trade.ExecutionError = err.Error()
		e.recordResult(ctx, key, trade, false, err.Error(), now)
		return Result{Trade: trade, Err: err}
	}

	// step 3: build transaction
	builtTxB64, err := e.buildTransaction(ctx, trade, userPublicKey)
	if err != nil {
		trade.Status = domain.TradeStatusRejected
		trade.ExecutionError = err.Error()
		e.recordResult(ctx, key, trade, false, err.Error(), now)
		return Result{Trade: trade, Err: err}
	}

	// step 4: simulate
	if e.requireSim && e.simulate != nil {
		if err := e.simulate(ctx, builtTxB64); err != nil {
			trade.Status = domain.TradeStatusFailed
			trade.ExecutionError = fmt.Sprintf("simulation failed: %v", err)
			e.recordResult(ctx, key, trade, false, trade.ExecutionError, now)
			return Result{Trade: trade, Err: err}
		}
	}
	trade.Status = domain.TradeStatusSimulated

	// step 5: sign via HSM
	signature, err := e.signer.Sign(ctx, e.signerKeyID, []byte(builtTxB64))
	if err != nil {
		trade.Status = domain.TradeStatusFailed
		trade.ExecutionError = fmt.Sprintf("signing failed: %v", err)
		e.recordResult(ctx, key, trade, false, trade.ExecutionError, now)
		return Result{Trade: trade, Err: err}
	}
	trade.Status = domain.TradeStatusSigned
	signedTxB64 := builtTxB64 + ":" + string(signature)

	// step 6: submit and handoff to confirmation monitor
	txSignature, err := e.submit(ctx, signedTxB64)
	if err != nil {
		trade.Status = domain.TradeStatusFailed
		trade.ExecutionError = fmt.Sprintf("submit failed: %v", err)
		e.recordResult(ctx, key, trade, false, trade.ExecutionError, now)
		return Result{Trade: trade, Err: err}
	}
	trade.Status = domain.TradeStatusSubmitted
	trade.TxSignature = txSignature

	tradeUSD, _ := trade.SwapInstruction.FromAmount.Float64()
	e.monitor.Track(txSignature, now, tradeUSD)

	// step 7: record provisional success; final confirmed/failed state
	// is recorded by the confirmation monitor once it observes the
	// terminal chain state.
	e.recordResult(ctx, key, trade, true, "", now)

	return Result{ShouldExecute: true, Trade: trade}
}

func (e *Executor) buildTransaction(ctx context.Context, trade domain.GeneratedTrade, userPublicKey string) (string, error) {
	blockhash, err := e.blockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch blockhash: %w", err)
	}

	inst := trade.SwapInstruction
	quote, err := e.router.Quote(ctx, inst.FromMint, inst.ToMint, inst.FromAmount, slippageBps(inst.MaxSlippagePercent))
	if err != nil {
		return "", fmt.Errorf("router quote: %w", err)
	}

	swapTx, err := e.router.BuildSwapTransaction(ctx, quote, userPublicKey)
	if err != nil {
		return "", fmt.Errorf("router build swap tx: %w", err)
	}

	amountIn, _ := inst.FromAmount.Float64()
	minOut, _ := inst.MinimumToAmount.Float64()
	wrapped := buildVaultInstructionData(uint64(amountIn), uint64(minOut), []byte(swapTx.SwapInstructionB64))

	return fmt.Sprintf("%s|%s|%x", blockhash, swapTx.TransactionB64, wrapped), nil
}

func (e *Executor) recordResult(ctx context.Context, key string, trade domain.GeneratedTrade, success bool, errMsg string, now time.Time) {
	if err := e.idem.RecordResult(ctx, key, success, trade.TradeID, trade.TxSignature, nil, errMsg, now); err != nil {
		e.log.Error().Err(err).Str("trade_id", trade.TradeID).Msg("failed to record idempotency result")
	}

	severity := domain.SeverityInfo
	if !success {
		severity = domain.SeverityError
	}
	if e.auditl != nil {
		_, auditErr := e.auditl.Write(ctx, domain.AuditEntry{
			EventType:   "trade_execution",
			Severity:    severity,
			UserID:      trade.UserID,
			TxSignature: trade.TxSignature,
			Error:       errMsg,
			TradeDetails: map[string]any{
				"trade_id": trade.TradeID,
				"status":   string(trade.Status),
				"from":     trade.SwapInstruction.FromMint,
				"to":       trade.SwapInstruction.ToMint,
			},
		})
		if auditErr != nil {
			e.log.Error().Err(auditErr).Msg("failed to write trade_execution audit entry")
		}
	}

	if e.breakers != nil {
		domainName := breaker.DomainTradeFailureRate
		_, _ = e.breakers.Execute(ctx, domainName, func() (any, error) {
			if success {
				return nil, nil
			}
			return nil, fmt.Errorf("trade execution failed: %s", errMsg)
		})
	}
}

func slippageBps(maxSlippagePercent decimal.Decimal) int {
	bps := maxSlippagePercent.Mul(decimal.NewFromInt(100))
	i, _ := bps.Float64()
	return int(i)
}
