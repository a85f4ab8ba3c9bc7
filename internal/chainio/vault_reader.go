// Package chainio implements the concrete on-chain and price-source
// adapters §4's interfaces (vault.ChainReader, strategy.TraderHoldingsFunc,
// tradegen/slippage.QuoteFunc, pricefeed.HistoricalProvider/
// RealtimeProvider) are defined against, following the teacher's
// internal/providers/kraken thin-REST-client idiom but speaking
// Solana's JSON-RPC and the Jupiter aggregator's HTTP API instead of an
// exchange's REST API.
package chainio

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/vaultrun/internal/domain"
	"github.com/sawpanic/vaultrun/internal/rpc"
)

// PriceLookup resolves a mint's current USD price for valuing a
// balance; cmd/execbot backs it with JupiterClient.RealtimePrice.
type PriceLookup func(ctx context.Context, mint, symbol string) (decimal.Decimal, error)

// SolanaVaultReader implements vault.ChainReader and
// strategy.TraderHoldingsFunc over the standard Solana
// getTokenAccountsByOwner JSON-RPC method.
type SolanaVaultReader struct {
	client *rpc.Client
	price  PriceLookup
}

// NewSolanaVaultReader constructs a SolanaVaultReader. price may be nil
// when only token amounts, not USD valuation, are needed (as for
// strategy.TraderHoldingsFunc).
func NewSolanaVaultReader(client *rpc.Client, price PriceLookup) *SolanaVaultReader {
	return &SolanaVaultReader{client: client, price: price}
}

type tokenAccountsResult struct {
	Value []struct {
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						Mint        string `json:"mint"`
						TokenAmount struct {
							Amount   string `json:"amount"`
							Decimals int    `json:"decimals"`
							UIAmount float64 `json:"uiAmount"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
}

// VaultTokenBalances implements vault.ChainReader.
func (r *SolanaVaultReader) VaultTokenBalances(ctx context.Context, vaultAddress string) ([]domain.PortfolioAsset, uint64, error) {
	var result tokenAccountsResult
	params := []any{
		vaultAddress,
		map[string]string{"programId": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"},
		map[string]string{"encoding": "jsonParsed"},
	}
	if err := r.client.Call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return nil, 0, fmt.Errorf("chainio: get token accounts for %s: %w", vaultAddress, err)
	}

	assets := make([]domain.PortfolioAsset, 0, len(result.Value))
	for _, entry := range result.Value {
		info := entry.Account.Data.Parsed.Info
		amount, err := decimal.NewFromString(info.TokenAmount.Amount)
		if err != nil {
			continue
		}
		scaled := amount.Shift(int32(-info.TokenAmount.Decimals))

		asset := domain.PortfolioAsset{
			Mint:     info.Mint,
			Decimals: info.TokenAmount.Decimals,
			Amount:   scaled,
		}
		if r.price != nil {
			if usd, err := r.price(ctx, info.Mint, ""); err == nil {
				asset.EstimatedUSDValue = scaled.Mul(usd)
			}
		}
		assets = append(assets, asset)
	}
	return assets, result.Context.Slot, nil
}

// TraderHoldings implements strategy.TraderHoldingsFunc, reading a
// trader wallet's current holdings without USD valuation.
func (r *SolanaVaultReader) TraderHoldings(wallet string) (domain.Portfolio, error) {
	assets, slot, err := r.VaultTokenBalances(context.Background(), wallet)
	if err != nil {
		return domain.Portfolio{}, err
	}
	return domain.Portfolio{VaultAddress: wallet, Slot: slot, Assets: assets}, nil
}
