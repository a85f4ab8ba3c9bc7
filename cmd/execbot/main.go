// Command execbot runs the Execution-bot: the §4.9 six-phase
// orchestrator cycle plus the gateway HTTP server (auth, emergency-halt,
// health) of §6.
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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/vaultrun/internal/ammrouter"
	"github.com/sawpanic/vaultrun/internal/audit"
	"github.com/sawpanic/vaultrun/internal/breaker"
	"github.com/sawpanic/vaultrun/internal/chainio"
	"github.com/sawpanic/vaultrun/internal/config"
	"github.com/sawpanic/vaultrun/internal/confirm"
	"github.com/sawpanic/vaultrun/internal/domain"
	"github.com/sawpanic/vaultrun/internal/executor"
	"github.com/sawpanic/vaultrun/internal/hsm"
	"github.com/sawpanic/vaultrun/internal/hsm/providers"
	"github.com/sawpanic/vaultrun/internal/httpapi"
	"github.com/sawpanic/vaultrun/internal/idempotency"
	"github.com/sawpanic/vaultrun/internal/orchestrator"
	"github.com/sawpanic/vaultrun/internal/persistence/postgres"
	"github.com/sawpanic/vaultrun/internal/rpc"
	"github.com/sawpanic/vaultrun/internal/slippage"
	"github.com/sawpanic/vaultrun/internal/strategy"
	"github.com/sawpanic/vaultrun/internal/tradegen"
	"github.com/sawpanic/vaultrun/internal/vault"
)

const appName = "execbot"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	var cfgPath string
	var cycleInterval time.Duration

	root := &cobra.Command{
		Use:     appName,
		Short:   "Copy-trading execution bot: orchestrator cycle + gateway HTTP server",
		Version: "v1.0.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfgPath, cycleInterval)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	root.Flags().DurationVar(&cycleInterval, "cycle-interval", 5*time.Minute, "interval between orchestrator cycles")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("execbot exited with error")
	}
}

func run(ctx context.Context, cfgPath string, cycleInterval time.Duration) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("execbot: load config: %w", err)
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
		return fmt.Errorf("execbot: connect postgres: %w", err)
	}
	defer db.Close()

	auditl, err := audit.New(ctx, db.Audit, logger)
	if err != nil {
		return fmt.Errorf("execbot: init audit log: %w", err)
	}

	breakers := breaker.New(defaultBreakerConfig(), auditl, logger)
	go breakers.RunHalfOpenTicker(ctx)

	rpcClient := rpc.New(rpc.Config{
		Endpoint:          cfg.RPC.Endpoint,
		RequestsPerSecond: cfg.RPC.RequestsPerSecond,
		BurstLimit:        cfg.RPC.BurstLimit,
		CacheTTL:          time.Duration(cfg.RPC.CacheTTLSeconds) * time.Second,
		RetryBaseDelay:    time.Duration(cfg.RPC.RetryDelaySeconds * float64(time.Second)),
		MaxRetries:        cfg.RPC.MaxRetries,
	}, logger)

	txio := chainio.NewTransactionIO(rpcClient)
	jupiter := chainio.NewJupiterClient("", 5*time.Second)

	priceLookup := func(ctx context.Context, mint, symbol string) (decimal.Decimal, error) {
		return jupiter.RealtimePrice(ctx, mint)
	}
	vaultChain := chainio.NewSolanaVaultReader(rpcClient, priceLookup)
	leaderHoldingsChain := chainio.NewSolanaVaultReader(rpcClient, nil)

	vaultReader := vault.New(vaultChain, time.Duration(cfg.RPC.CacheTTLSeconds)*time.Second, logger)

	traderHoldings := func(wallet string) (domain.Portfolio, error) {
		assets, slot, err := leaderHoldingsChain.VaultTokenBalances(ctx, wallet)
		if err != nil {
			return domain.Portfolio{}, err
		}
		return domain.Portfolio{VaultAddress: wallet, Slot: slot, Assets: assets}, nil
	}
	selector := strategy.New(traderHoldings, logger)

	tradeGen := tradegen.New(jupiter.Quote, logger)
	slippageCtl := slippage.New(jupiter.QuoteContext, breakers, logger)

	router := ammrouter.New(ammrouter.Config{BaseURL: cfg.AMMRouterBaseURL, Timeout: 10 * time.Second}, logger)

	hsmDriver := hsmDriverFor(cfg.HSMProvider, cfg.HSMBaseURL, cfg.HSMAPIKey)
	signer := hsm.New(hsmDriver, auditl, logger)

	idem := idempotency.New(db.Idempotency, logger)

	confirmMon := confirm.New(txio.ConfirmationStatus, logger)
	go confirmMon.Run(ctx)

	exec := executor.New(executor.Config{
		Idempotency:     idem,
		Slippage:        slippageCtl,
		Router:          router,
		Blockhash:       txio.Blockhash,
		Simulate:        txio.Simulate,
		RequireSimulate: true,
		Signer:          signer,
		SignerKeyID:     "default",
		Submit:          txio.Submit,
		Monitor:         confirmMon,
		Breakers:        breakers,
		Audit:           auditl,
	}, logger)

	analyticsClient := httpapi.NewHTTPAnalyticsClient(httpapi.DefaultClientConfig(cfg.AnalyticsBaseURL))

	orch := orchestrator.New(orchestrator.Config{
		Ranking:              analyticsClient,
		Users:                db.Users,
		Strategy:             selector,
		Vault:                vaultReader,
		TradeGen:             tradeGen,
		Executor:             exec,
		Audit:                auditl,
		MaxSlippagePercent:   decimal.NewFromFloat(1),
		ExecutionConcurrency: cfg.Execution.MaxConcurrentTrades,
		UserPublicKey:        userVaultLookup(db),
	}, logger)

	sessionAuth := httpapi.NewSessionAuth([]byte(cfg.JWTSigningKey), time.Hour)
	credentials := loadCredentials(cfg)

	srvCfg := httpapi.DefaultServerConfig()
	gateway, err := httpapi.NewGatewayServer(srvCfg, sessionAuth, credentials, cfg.OperatorToken, breakers, confirmMon, auditl, logger)
	if err != nil {
		return fmt.Errorf("execbot: build gateway server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := gateway.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go runCycleLoop(ctx, orch, cycleInterval, logger)

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("gateway server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return gateway.Shutdown(shutdownCtx)
}

func runCycleLoop(ctx context.Context, orch *orchestrator.Orchestrator, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := orch.RunCycle(ctx, time.Now())
			log.Info().Str("cycle_id", result.CycleID).Int("trades_run", result.TradesRun).
				Int("users_skipped", len(result.UsersSkipped)).Msg("orchestrator cycle complete")
		}
	}
}

func hsmDriverFor(provider config.HSMProvider, baseURL, apiKey string) hsm.Driver {
	switch provider {
	case config.HSMAWSKMS:
		return providers.NewAWSKMS(baseURL, apiKey)
	case config.HSMAzureKeyVault:
		return providers.NewAzureKeyVault(baseURL, apiKey)
	case config.HSMGoogleKMS:
		return providers.NewGoogleKMS(baseURL, apiKey)
	default:
		return providers.NewHardwareHSM(baseURL, apiKey)
	}
}

// defaultBreakerConfig is the §4.17 documented default tuning, not
// currently exposed as a YAML/env surface since every domain shares one
// registry-wide setting.
func defaultBreakerConfig() domain.BreakerConfig {
	return domain.BreakerConfig{
		FailureThreshold:         5,
		TimeWindow:               10 * time.Minute,
		ConsecutiveFailureLimit:  5,
		RecoveryTimeout:          30 * time.Minute,
		TestRequestLimit:         3,
		RecoverySuccessThreshold: 3,
	}
}

// loadCredentials builds the static user -> API key mapping from the
// INTERNAL_API_KEY single-operator shim until a per-user credential
// table exists.
func loadCredentials(cfg *config.Config) httpapi.StaticCredentialStore {
	return httpapi.StaticCredentialStore{
		"operator": cfg.InternalAPIKey,
	}
}

// userVaultLookup resolves a user's own wallet address for HSM signing,
// loaded lazily per cycle from the user_risk_profiles table.
func userVaultLookup(db *postgres.Manager) func(userID string) string {
	return func(userID string) string {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		profile, err := db.Users.GetByUserID(ctx, userID)
		if err != nil || profile == nil {
			return ""
		}
		return profile.Wallet
	}
}
