// Package analyticscycle wires the three periodic analytics jobs —
// ingest, score, rank — that cmd/analytics registers on the scheduler's
// dispatcher, keeping the job bodies out of main.go the way the teacher
// keeps its menu command bodies in dedicated *_main.go files.
package analyticscycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/vaultrun/internal/domain"
	"github.com/sawpanic/vaultrun/internal/ingestion"
	"github.com/sawpanic/vaultrun/internal/metrics"
	"github.com/sawpanic/vaultrun/internal/parser"
	"github.com/sawpanic/vaultrun/internal/persistence/postgres"
	"github.com/sawpanic/vaultrun/internal/pricefeed"
	"github.com/sawpanic/vaultrun/internal/ranking"
	"github.com/sawpanic/vaultrun/internal/trust"
)

// Cycle holds every collaborator the three analytics jobs share.
type Cycle struct {
	db       *postgres.Manager
	worker   *ingestion.Worker
	prices   *pricefeed.Feed
	metrics  *metrics.Engine
	trust    *trust.Engine
	ranking  *ranking.Engine

	ingestWindow   time.Duration
	maxTxPerWallet int
	periodDays     int
	minTrustScore  decimal.Decimal
	rankingLimit   int

	lastResults []domain.TrustScoreResult

	log zerolog.Logger
}

// Config bounds the ingest window and ranking cutoffs, sourced from
// config.Config.
type Config struct {
	IngestWindow   time.Duration
	MaxTxPerWallet int
	PeriodDays     int
	MinTrustScore  decimal.Decimal
	RankingLimit   int
}

// New constructs a Cycle.
func New(db *postgres.Manager, worker *ingestion.Worker, prices *pricefeed.Feed, metricsEngine *metrics.Engine, trustEngine *trust.Engine, rankingEngine *ranking.Engine, cfg Config, log zerolog.Logger) *Cycle {
	return &Cycle{
		db:             db,
		worker:         worker,
		prices:         prices,
		metrics:        metricsEngine,
		trust:          trustEngine,
		ranking:        rankingEngine,
		ingestWindow:   cfg.IngestWindow,
		maxTxPerWallet: cfg.MaxTxPerWallet,
		periodDays:     cfg.PeriodDays,
		minTrustScore:  cfg.MinTrustScore,
		rankingLimit:   cfg.RankingLimit,
		log:            log.With().Str("component", "analytics_cycle").Logger(),
	}
}

// IngestWallets pulls new swaps for every active trader wallet, enriches
// them with USD pricing, and persists both the raw transactions and the
// refreshed trader_profiles row (§4.3, §4.4).
func (c *Cycle) IngestWallets(ctx context.Context) error {
	wallets, err := c.db.Traders.WalletsByActivityWindow(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		return fmt.Errorf("analyticscycle: list wallets: %w", err)
	}

	end := time.Now().UTC()
	start := end.Add(-c.ingestWindow)

	var ingestErrors []string
	for _, wallet := range wallets {
		status, swaps := c.worker.Ingest(ctx, wallet, start, end, c.maxTxPerWallet)
		if !status.Success {
			ingestErrors = append(ingestErrors, wallet)
			c.log.Warn().Str("wallet", wallet).Strs("errors", status.Errors).Msg("ingestion failed")
			continue
		}

		for _, swap := range swaps {
			trade, err := c.priceSwap(ctx, swap)
			if err != nil {
				c.log.Debug().Err(err).Str("signature", swap.Signature).Msg("could not price swap, skipping persistence")
				continue
			}
			if err := c.db.Transactions.Insert(ctx, transactionFromTrade(trade)); err != nil {
				c.log.Error().Err(err).Str("signature", swap.Signature).Msg("failed to persist transaction")
			}
		}

		if err := c.db.Traders.Upsert(ctx, postgres.TraderProfile{
			WalletAddress: wallet,
			FirstSeen:     start,
			LastActivity:  end,
			IsActive:      true,
			TotalTrades:   status.ValidExtracted,
		}); err != nil {
			c.log.Error().Err(err).Str("wallet", wallet).Msg("failed to refresh trader profile")
		}
	}

	if len(ingestErrors) > 0 {
		return fmt.Errorf("analyticscycle: %d wallets failed ingestion", len(ingestErrors))
	}
	return nil
}

func (c *Cycle) priceSwap(ctx context.Context, s domain.Swap) (domain.Trade, error) {
	inQuote, err := c.prices.Price(ctx, s.TokenIn.Mint, s.BlockTime, s.TokenIn.Symbol)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("price token in: %w", err)
	}
	outQuote, err := c.prices.Price(ctx, s.TokenOut.Mint, s.BlockTime, s.TokenOut.Symbol)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("price token out: %w", err)
	}
	if inQuote == nil || outQuote == nil {
		return domain.Trade{}, fmt.Errorf("no price source available")
	}

	tokenInUSD := s.TokenIn.Amount.Mul(inQuote.PriceUSD)
	tokenOutUSD := s.TokenOut.Amount.Mul(outQuote.PriceUSD)
	feeUSD := decimal.NewFromInt(int64(s.FeeLamports)).Shift(-9).Mul(inQuote.PriceUSD)

	if err := parser.ValidateSwap(s, decimal.Zero, nil); err != nil {
		return domain.Trade{}, err
	}
	return domain.NewTrade(s, tokenInUSD, tokenOutUSD, feeUSD), nil
}

func transactionFromTrade(t domain.Trade) postgres.TraderTransaction {
	s := t.Swap
	return postgres.TraderTransaction{
		WalletAddress:   s.Wallet,
		Signature:       s.Signature,
		BlockTime:       s.BlockTime,
		Slot:            s.Slot,
		TransactionType: string(t.Type),
		ProgramID:       s.ProgramID,
		InputTokenMint:  s.TokenIn.Mint,
		OutputTokenMint: s.TokenOut.Mint,
		InputDecimals:   s.TokenIn.Decimals,
		OutputDecimals:  s.TokenOut.Decimals,
		InputUSD:        t.TokenInUSD,
		OutputUSD:       t.TokenOutUSD,
		NetUSD:          t.NetUSDChange,
		ProcessedAt:     time.Now().UTC(),
		PriceDataSource: "pricefeed",
	}
}
