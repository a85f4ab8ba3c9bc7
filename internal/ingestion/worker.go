// Package ingestion implements the per-wallet ingestion procedure of §4.3:
// paginate signatures, batch-fetch transactions concurrently, parse and
// validate, and report a WalletIngestionStatus.
package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/vaultrun/internal/domain"
	"github.com/sawpanic/vaultrun/internal/parser"
)

const (
	signaturePageSize = 1000
	txBatchSize       = 100
)

// SignatureInfo is one entry returned by getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	BlockTime time.Time
	Slot      uint64
}

// Chain is the subset of RPC behavior the ingestion worker depends on,
// letting tests substitute a fake without standing up a real client.
type Chain interface {
	GetSignaturesForAddress(ctx context.Context, wallet string, before string, limit int) ([]SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*parser.RawTransaction, error)
}

// WalletIngestionStatus reports the outcome of ingesting one wallet.
type WalletIngestionStatus struct {
	Wallet        string
	TotalFound    int
	RaydiumFound  int
	ValidExtracted int
	Invalid       int
	Errors        []string
	Warnings      []string
	Duration      time.Duration
	Success       bool
}

// Worker runs the §4.3 ingestion procedure for one wallet at a time.
// analyticscycle.Cycle.IngestWallets calls it for each wallet in turn;
// config.Ingestion.MaxConcurrentWallets is not read by any caller.
type Worker struct {
	chain  Chain
	parser *parser.Parser
	log    zerolog.Logger

	minTradeValueUSD decimal.Decimal
	supportedMints   map[string]bool
}

// New constructs an ingestion Worker.
func New(chain Chain, p *parser.Parser, minTradeValueUSD decimal.Decimal, supportedMints map[string]bool, log zerolog.Logger) *Worker {
	return &Worker{
		chain:            chain,
		parser:           p,
		minTradeValueUSD: minTradeValueUSD,
		supportedMints:   supportedMints,
		log:              log.With().Str("component", "ingestion_worker").Logger(),
	}
}

// Ingest runs the full §4.3 procedure for one wallet over [start, end),
// stopping early at maxTxs.
func (w *Worker) Ingest(ctx context.Context, wallet string, start, end time.Time, maxTxs int) (WalletIngestionStatus, []domain.Swap) {
	begin := time.Now()
	status := WalletIngestionStatus{Wallet: wallet}

	sigs, err := w.paginateSignatures(ctx, wallet, start, end, maxTxs)
	if err != nil {
		status.Errors = append(status.Errors, err.Error())
		status.Duration = time.Since(begin)
		return status, nil
	}
	status.TotalFound = len(sigs)

	swaps := w.fetchAndParse(ctx, wallet, sigs, &status)

	status.ValidExtracted = len(swaps)
	status.Invalid = status.TotalFound - status.ValidExtracted - len(status.Errors)
	status.Duration = time.Since(begin)
	status.Success = true
	return status, swaps
}

// paginateSignatures walks pages newest-first (before=nil initially),
// stopping once a page's oldest signature is older than start, dropping
// anything newer than end, and respecting maxTxs. Signatures exactly
// matching end are excluded (strict upper bound, §8 boundary behavior);
// a signature whose block time equals start is included.
func (w *Worker) paginateSignatures(ctx context.Context, wallet string, start, end time.Time, maxTxs int) ([]SignatureInfo, error) {
	var collected []SignatureInfo
	before := ""

	for {
		remaining := signaturePageSize
		if maxTxs > 0 {
			remaining = maxTxs - len(collected)
			if remaining <= 0 {
				break
			}
			if remaining > signaturePageSize {
				remaining = signaturePageSize
			}
		}

		page, err := w.chain.GetSignaturesForAddress(ctx, wallet, before, remaining)
		if err != nil {
			return collected, fmt.Errorf("paginate signatures for %s: %w", wallet, err)
		}
		if len(page) == 0 {
			break
		}

		stop := false
		for _, s := range page {
			bt := s.BlockTime.UTC()
			if !bt.Before(end) {
				continue // strict < end
			}
			if bt.Before(start) {
				stop = true
				continue
			}
			collected = append(collected, s)
		}

		before = page[len(page)-1].Signature
		if stop || len(page) < signaturePageSize {
			break
		}
		if maxTxs > 0 && len(collected) >= maxTxs {
			break
		}
	}

	return collected, nil
}

// fetchAndParse batch-fetches transactions concurrently per batch of 100
// and feeds each through the parser, dropping invalid parses.
func (w *Worker) fetchAndParse(ctx context.Context, wallet string, sigs []SignatureInfo, status *WalletIngestionStatus) []domain.Swap {
	var (
		mu    sync.Mutex
		swaps []domain.Swap
	)

	for start := 0; start < len(sigs); start += txBatchSize {
		end := start + txBatchSize
		if end > len(sigs) {
			end = len(sigs)
		}
		batch := sigs[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, sig := range batch {
			sig := sig
			g.Go(func() error {
				tx, err := w.chain.GetTransaction(gctx, sig.Signature)
				if err != nil || tx == nil {
					mu.Lock()
					status.Warnings = append(status.Warnings, fmt.Sprintf("fetch failed for %s", sig.Signature))
					mu.Unlock()
					return nil // fetch failures become nil results and continue, per §4.3
				}

				swap, perr := w.parser.Parse(*tx, sig.Signature, wallet, sig.BlockTime, sig.Slot)
				if perr != nil || swap == nil {
					return nil
				}

				if err := parser.ValidateSwap(*swap, w.minTradeValueUSD, w.supportedMints); err != nil {
					return nil
				}

				mu.Lock()
				status.RaydiumFound++
				swaps = append(swaps, *swap)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait() // per-item errors are absorbed above; this only surfaces ctx cancellation
		if ctx.Err() != nil {
			break
		}
	}

	return swaps
}
