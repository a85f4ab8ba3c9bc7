// Package config loads the enumerated §6 configuration surface from a YAML
// file with environment-variable overrides, following the teacher's
// yaml+env struct-tag convention (internal/infrastructure/db.Config).
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RPCConfig tunes the rate-limited RPC client (§4.1).
type RPCConfig struct {
	RequestsPerSecond float64 `yaml:"rpc_requests_per_second" env:"RPC_REQUESTS_PER_SECOND"`
	BurstLimit        int     `yaml:"rpc_burst_limit" env:"RPC_BURST_LIMIT"`
	CacheTTLSeconds   int     `yaml:"rpc_cache_ttl_seconds" env:"RPC_CACHE_TTL_SECONDS"`
	RetryDelaySeconds float64 `yaml:"rpc_retry_delay_seconds" env:"RPC_RETRY_DELAY_SECONDS"`
	MaxRetries        int     `yaml:"rpc_max_retries" env:"RPC_MAX_RETRIES"`
	Endpoint          string  `yaml:"rpc_endpoint" env:"RPC_ENDPOINT"`
}

// IngestionConfig caps per-wallet ingestion (§4.3).
type IngestionConfig struct {
	MaxTransactionsPerWallet int `yaml:"max_transactions_per_wallet" env:"MAX_TRANSACTIONS_PER_WALLET"`
	TransactionThreshold     int `yaml:"transaction_threshold" env:"TRANSACTION_THRESHOLD"`
	NumSamplesPerDay         int `yaml:"num_samples_per_day" env:"NUM_SAMPLES_PER_DAY"`
	MaxConcurrentWallets     int `yaml:"max_concurrent_wallets" env:"MAX_CONCURRENT_WALLETS"`
	MinTradeValueUSD         float64 `yaml:"min_trade_value_usd" env:"MIN_TRADE_VALUE_USD"`
}

// MetricsConfig windows the metrics engine (§4.5).
type MetricsConfig struct {
	RollingPeriodDays int     `yaml:"metrics_rolling_period_days" env:"METRICS_ROLLING_PERIOD_DAYS"`
	RiskFreeRateAnnual float64 `yaml:"risk_free_rate_annual" env:"RISK_FREE_RATE_ANNUAL"`
	PrecisionPlaces   int     `yaml:"metrics_precision_places" env:"METRICS_PRECISION_PLACES"`
}

// SchedulingConfig bounds worker concurrency (§5).
type SchedulingConfig struct {
	MaxConcurrentWorkers int `yaml:"max_concurrent_workers" env:"MAX_CONCURRENT_WORKERS"`
	TaskTimeoutSeconds   int `yaml:"task_timeout_seconds" env:"TASK_TIMEOUT_SECONDS"`
}

// ExecutionConfig bounds live trading (§6).
type ExecutionConfig struct {
	MaxTradeAmountSOL     float64 `yaml:"max_trade_amount_sol" env:"MAX_TRADE_AMOUNT_SOL"`
	MaxConcurrentTrades   int     `yaml:"max_concurrent_trades" env:"MAX_CONCURRENT_TRADES"`
	EmergencyStopEnabled  bool    `yaml:"emergency_stop_enabled" env:"EMERGENCY_STOP_ENABLED"`
	ExecutionIntervalSeconds int  `yaml:"execution_interval_seconds" env:"EXECUTION_INTERVAL_SECONDS"`
}

// HSMProvider identifies the backing signer implementation (§4.13).
type HSMProvider string

const (
	HSMAWSKMS        HSMProvider = "aws_kms"
	HSMAzureKeyVault  HSMProvider = "azure_keyvault"
	HSMGoogleKMS      HSMProvider = "google_kms"
	HSMHardware       HSMProvider = "hardware_hsm"
)

// ProgramIDs are the on-chain program addresses the parser and executor
// recognize.
type ProgramIDs struct {
	VaultProgramID   string `yaml:"vault_program_id" env:"VAULT_PROGRAM_ID"`
	RaydiumProgramID string `yaml:"raydium_program_id" env:"RAYDIUM_PROGRAM_ID"`
	JupiterProgramID string `yaml:"jupiter_program_id" env:"JUPITER_PROGRAM_ID"`
	OrcaProgramID    string `yaml:"orca_program_id" env:"ORCA_PROGRAM_ID"`
	SerumProgramID   string `yaml:"serum_program_id" env:"SERUM_PROGRAM_ID"`
}

// DatabaseConfig configures the shared postgres connection pool.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" env:"PG_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"PG_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"PG_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"PG_CONN_MAX_LIFETIME"`
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"PG_QUERY_TIMEOUT"`
}

// RedisConfig configures the shared queue/cache broker.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED"`
}

// Config is the complete, enumerated configuration surface of §6, all
// overridable by environment variable.
type Config struct {
	Environment string `yaml:"environment" env:"APP_ENV"`

	RPC        RPCConfig        `yaml:"rpc"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Programs   ProgramIDs       `yaml:"programs"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`

	HSMProvider    HSMProvider `yaml:"hsm_provider" env:"HSM_PROVIDER"`
	HSMBaseURL     string      `yaml:"hsm_base_url" env:"HSM_BASE_URL"`
	HSMAPIKey      string      `yaml:"hsm_api_key" env:"HSM_API_KEY"`
	SupportedTokens []string   `yaml:"supported_tokens" env:"SUPPORTED_TOKENS"`

	InternalAPIKey string `yaml:"internal_api_key" env:"INTERNAL_API_KEY"`
	JWTSigningKey  string `yaml:"jwt_signing_key" env:"JWT_SIGNING_KEY"`
	OperatorToken  string `yaml:"operator_token" env:"OPERATOR_TOKEN"`
	AnalyticsBaseURL string `yaml:"analytics_base_url" env:"ANALYTICS_BASE_URL"`
	AMMRouterBaseURL string `yaml:"amm_router_base_url" env:"AMM_ROUTER_BASE_URL"`
}

// Default returns the documented §6 defaults, matching the teacher's
// DefaultConfig() pattern (internal/infrastructure/db.DefaultConfig).
func Default() Config {
	return Config{
		Environment: "development",
		RPC: RPCConfig{
			RequestsPerSecond: 10,
			BurstLimit:        20,
			CacheTTLSeconds:   60,
			RetryDelaySeconds: 1,
			MaxRetries:        5,
		},
		Ingestion: IngestionConfig{
			MaxTransactionsPerWallet: 5000,
			TransactionThreshold:     50,
			NumSamplesPerDay:         24,
			MaxConcurrentWallets:     8,
			MinTradeValueUSD:         1,
		},
		Metrics: MetricsConfig{
			RollingPeriodDays: 90,
			PrecisionPlaces:   2,
		},
		Scheduling: SchedulingConfig{
			MaxConcurrentWorkers: 8,
			TaskTimeoutSeconds:   90,
		},
		Execution: ExecutionConfig{
			MaxConcurrentTrades:      3,
			ExecutionIntervalSeconds: 300,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		HSMProvider: HSMHardware,
	}
}

// Load reads a YAML config file (if path is non-empty and exists) over the
// defaults, then applies environment-variable overrides declared via the
// `env` struct tag.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(reflect.ValueOf(&cfg).Elem())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports a missing production setting (PG_DSN,
// INTERNAL_API_KEY, JWT_SIGNING_KEY) as an error. It does not set the
// process exit code: both commands exit with status 1 on any Load error.
func (c Config) Validate() error {
	if c.Environment == "production" {
		if c.Database.DSN == "" {
			return fmt.Errorf("config: PG_DSN required in production")
		}
		if c.InternalAPIKey == "" {
			return fmt.Errorf("config: INTERNAL_API_KEY required in production")
		}
		if c.JWTSigningKey == "" {
			return fmt.Errorf("config: JWT_SIGNING_KEY required in production")
		}
	}
	return nil
}

// applyEnvOverrides walks struct fields recursively, applying os.Getenv
// against each field's `env` tag when present and non-empty.
func applyEnvOverrides(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)

		if fv.Kind() == reflect.Struct {
			applyEnvOverrides(fv)
			continue
		}

		tag := field.Tag.Get("env")
		if tag == "" {
			continue
		}
		raw, ok := os.LookupEnv(tag)
		if !ok || raw == "" {
			continue
		}
		setFromString(fv, raw)
	}
}

func setFromString(fv reflect.Value, raw string) {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			fv.SetBool(b)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if fv.Type() == reflect.TypeOf(time.Duration(0)) {
			if d, err := time.ParseDuration(raw); err == nil {
				fv.SetInt(int64(d))
			}
			return
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			fv.SetInt(n)
		}
	case reflect.Float32, reflect.Float64:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			fv.SetFloat(f)
		}
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.String {
			fv.Set(reflect.ValueOf(splitCSV(raw)))
		}
	}
}

func splitCSV(raw string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}
