package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 90, cfg.Metrics.RollingPeriodDays)
	require.Equal(t, HSMHardware, cfg.HSMProvider)
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rpc:\n  rpc_requests_per_second: 25\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 25.0, cfg.RPC.RequestsPerSecond)
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rpc:\n  rpc_requests_per_second: 25\n"), 0o644))

	t.Setenv("RPC_REQUESTS_PER_SECOND", "42")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 42.0, cfg.RPC.RequestsPerSecond)
}

func TestValidateProductionRequiresSecrets(t *testing.T) {
	cfg := Default()
	cfg.Environment = "production"
	require.Error(t, cfg.Validate())

	cfg.Database.DSN = "postgres://x"
	cfg.InternalAPIKey = "k"
	cfg.JWTSigningKey = "s"
	require.NoError(t, cfg.Validate())
}

func TestSupportedTokensCSVOverride(t *testing.T) {
	t.Setenv("SUPPORTED_TOKENS", "SOL,USDC,JUP")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, []string{"SOL", "USDC", "JUP"}, cfg.SupportedTokens)
}
