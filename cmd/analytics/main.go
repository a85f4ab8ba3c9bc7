// Command analytics runs the Analytics service: the periodic
// ingest/score/rank job cycle of §4.3-§4.7 plus the read-only rankings
// HTTP API of §6.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/vaultrun/internal/analyticscycle"
	"github.com/sawpanic/vaultrun/internal/chainio"
	"github.com/sawpanic/vaultrun/internal/config"
	"github.com/sawpanic/vaultrun/internal/httpapi"
	"github.com/sawpanic/vaultrun/internal/ingestion"
	"github.com/sawpanic/vaultrun/internal/metrics"
	"github.com/sawpanic/vaultrun/internal/parser"
	"github.com/sawpanic/vaultrun/internal/persistence/postgres"
	"github.com/sawpanic/vaultrun/internal/pricefeed"
	"github.com/sawpanic/vaultrun/internal/ranking"
	"github.com/sawpanic/vaultrun/internal/rpc"
	"github.com/sawpanic/vaultrun/internal/scheduler"
	"github.com/sawpanic/vaultrun/internal/trust"
)

const appName = "analytics"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	var cfgPath string

	root := &cobra.Command{
		Use:     appName,
		Short:   "Copy-trading analytics service: ingest/score/rank cycle + rankings HTTP API",
		Version: "v1.0.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("analytics exited with error")
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("analytics: load config: %w", err)
	}

	logger := log.Logger.With().Str("app", appName).Str("env", cfg.Environment).Logger()

	db, err := postgres.Connect(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("analytics: connect postgres: %w", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	queue := scheduler.NewQueue(redisClient, "analytics:jobs", logger)
	producer := scheduler.NewProducer(queue, scheduler.DefaultCadence(), logger)
	dispatcher := scheduler.NewDispatcher(queue, logger)

	rpcClient := rpc.New(rpc.Config{
		Endpoint:          cfg.RPC.Endpoint,
		RequestsPerSecond: cfg.RPC.RequestsPerSecond,
		BurstLimit:        cfg.RPC.BurstLimit,
		CacheTTL:          time.Duration(cfg.RPC.CacheTTLSeconds) * time.Second,
		RetryBaseDelay:    time.Duration(cfg.RPC.RetryDelaySeconds * float64(time.Second)),
		MaxRetries:        cfg.RPC.MaxRetries,
	}, logger)

	chainHistory := chainio.NewSolanaChainHistory(rpcClient)
	jupiter := chainio.NewJupiterClient("", 5*time.Second)
	coingecko := chainio.NewCoinGeckoHistorical("", 5*time.Second)

	txParser := parser.New(parser.KnownAMMProgramIDs{
		Raydium: cfg.Programs.RaydiumProgramID,
		Jupiter: cfg.Programs.JupiterProgramID,
		Orca:    cfg.Programs.OrcaProgramID,
		Serum:   cfg.Programs.SerumProgramID,
	}, logger)

	supportedMints := make(map[string]bool, len(cfg.SupportedTokens))
	for _, mint := range cfg.SupportedTokens {
		supportedMints[mint] = true
	}

	worker := ingestion.New(chainHistory, txParser, decimal.NewFromFloat(cfg.Ingestion.MinTradeValueUSD), supportedMints, logger)

	prices := pricefeed.New(symbolToCoinGeckoID(), coingecko, jupiter, 5, 10, logger)

	metricsEngine := metrics.New(logger)
	trustEngine := trust.New(logger)
	rankingEngine := ranking.New(logger)

	cycle := analyticscycle.New(db, worker, prices, metricsEngine, trustEngine, rankingEngine, analyticscycle.Config{
		IngestWindow:   24 * time.Hour,
		MaxTxPerWallet: cfg.Ingestion.MaxTransactionsPerWallet,
		PeriodDays:     cfg.Metrics.RollingPeriodDays,
		MinTrustScore:  decimal.NewFromInt(60),
		RankingLimit:   100,
	}, logger)

	dispatcher.Register(scheduler.JobIngestWallets, func(ctx context.Context, job scheduler.Job) error {
		return cycle.IngestWallets(ctx)
	})
	dispatcher.Register(scheduler.JobComputeMetrics, func(ctx context.Context, job scheduler.Job) error {
		return cycle.ComputeMetrics(ctx)
	})
	dispatcher.Register(scheduler.JobBuildRanking, func(ctx context.Context, job scheduler.Job) error {
		return cycle.BuildRanking(ctx)
	})

	srvCfg := httpapi.DefaultServerConfig()
	server, err := httpapi.NewAnalyticsServer(srvCfg, db, queue, logger)
	if err != nil {
		return fmt.Errorf("analytics: build http server: %w", err)
	}

	errCh := make(chan error, 3)
	go func() {
		if err := producer.Run(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("scheduler producer: %w", err)
		}
	}()
	go func() {
		if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("scheduler dispatcher: %w", err)
		}
	}()
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("analytics service component failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// symbolToCoinGeckoID maps the supported leader-trade token symbols to
// their CoinGecko coin ids for historical price lookups (§4.4).
func symbolToCoinGeckoID() map[string]string {
	return map[string]string{
		"SOL":  "solana",
		"USDC": "usd-coin",
		"USDT": "tether",
		"BONK": "bonk",
		"JUP":  "jupiter-exchange-solana",
		"RAY":  "raydium",
		"ORCA": "orca",
	}
}
