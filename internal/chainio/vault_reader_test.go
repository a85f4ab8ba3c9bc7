package chainio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/rpc"
)

const tokenAccountsResponseJSON = `{
	"jsonrpc": "2.0",
	"id": 1,
	"result": {
		"context": {"slot": 123456},
		"value": [
			{
				"account": {
					"data": {
						"parsed": {
							"info": {
								"mint": "MintA",
								"tokenAmount": {"amount": "1000000", "decimals": 6, "uiAmount": 1.0}
							}
						}
					}
				}
			}
		]
	}
}`

func newTestRPCClient(t *testing.T, body string) *rpc.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return rpc.New(rpc.Config{Endpoint: srv.URL, RequestsPerSecond: 1000, BurstLimit: 1000}, zerolog.Nop())
}

func TestVaultTokenBalancesParsesAmountsAndSlot(t *testing.T) {
	client := newTestRPCClient(t, tokenAccountsResponseJSON)
	reader := NewSolanaVaultReader(client, nil)

	assets, slot, err := reader.VaultTokenBalances(context.Background(), "VaultAddr")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, uint64(123456), slot)
	assert.Equal(t, "MintA", assets[0].Mint)
	assert.True(t, assets[0].Amount.Equal(decimal.NewFromInt(1)))
}

func TestVaultTokenBalancesAppliesPriceLookup(t *testing.T) {
	client := newTestRPCClient(t, tokenAccountsResponseJSON)
	reader := NewSolanaVaultReader(client, func(ctx context.Context, mint, symbol string) (decimal.Decimal, error) {
		return decimal.NewFromInt(2), nil
	})

	assets, _, err := reader.VaultTokenBalances(context.Background(), "VaultAddr")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.True(t, assets[0].EstimatedUSDValue.Equal(decimal.NewFromInt(2)))
}

func TestTraderHoldingsWrapsPortfolio(t *testing.T) {
	client := newTestRPCClient(t, tokenAccountsResponseJSON)
	reader := NewSolanaVaultReader(client, nil)

	portfolio, err := reader.TraderHoldings("WalletX")
	require.NoError(t, err)
	assert.Equal(t, "WalletX", portfolio.VaultAddress)
	assert.Len(t, portfolio.Assets, 1)
}
