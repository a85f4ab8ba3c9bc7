package chainio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const defaultJupiterBaseURL = "https://quote-api.jup.ag/v6"

// JupiterClient quotes swaps and spot prices through the Jupiter
// aggregator, implementing tradegen.QuoteFunc, slippage.QuoteFunc, and
// pricefeed.RealtimeProvider.
type JupiterClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewJupiterClient constructs a JupiterClient. baseURL defaults to the
// public Jupiter v6 quote API when empty.
func NewJupiterClient(baseURL string, timeout time.Duration) *JupiterClient {
	if baseURL == "" {
		baseURL = defaultJupiterBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &JupiterClient{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

type jupiterQuoteResponse struct {
	OutAmount string `json:"outAmount"`
}

// Quote implements tradegen.QuoteFunc's signature (no context).
func (j *JupiterClient) Quote(fromMint, toMint string, fromAmount decimal.Decimal) (decimal.Decimal, error) {
	return j.QuoteContext(context.Background(), fromMint, toMint, fromAmount)
}

// QuoteContext implements slippage.QuoteFunc's signature.
func (j *JupiterClient) QuoteContext(ctx context.Context, fromMint, toMint string, fromAmount decimal.Decimal) (decimal.Decimal, error) {
	lamports := fromAmount.Shift(9).Truncate(0)

	q := url.Values{}
	q.Set("inputMint", fromMint)
	q.Set("outputMint", toMint)
	q.Set("amount", lamports.String())
	q.Set("slippageBps", "50")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chainio: build jupiter quote request: %w", err)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chainio: jupiter quote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("chainio: jupiter quote returned %d", resp.StatusCode)
	}

	var out jupiterQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("chainio: decode jupiter quote: %w", err)
	}

	outAmount, err := decimal.NewFromString(out.OutAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chainio: parse jupiter out amount: %w", err)
	}
	return outAmount.Shift(-9), nil
}

type jupiterPriceResponse struct {
	Data map[string]struct {
		Price string `json:"price"`
	} `json:"data"`
}

// RealtimePrice implements pricefeed.RealtimeProvider.
func (j *JupiterClient) RealtimePrice(ctx context.Context, mint string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://price.jup.ag/v6/price?ids="+url.QueryEscape(mint), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chainio: build jupiter price request: %w", err)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chainio: jupiter price request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("chainio: jupiter price returned %d", resp.StatusCode)
	}

	var out jupiterPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("chainio: decode jupiter price: %w", err)
	}

	entry, ok := out.Data[mint]
	if !ok {
		return decimal.Zero, fmt.Errorf("chainio: no jupiter price for mint %s", mint)
	}
	return decimal.NewFromString(entry.Price)
}

// CoinGeckoHistorical implements pricefeed.HistoricalProvider against
// CoinGecko's free historical-price-by-date endpoint.
type CoinGeckoHistorical struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinGeckoHistorical constructs a CoinGeckoHistorical client.
func NewCoinGeckoHistorical(baseURL string, timeout time.Duration) *CoinGeckoHistorical {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CoinGeckoHistorical{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

type coinGeckoHistoryResponse struct {
	MarketData struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

// HistoricalPrice implements pricefeed.HistoricalProvider.
func (c *CoinGeckoHistorical) HistoricalPrice(ctx context.Context, coinID string, date time.Time) (decimal.Decimal, error) {
	path := fmt.Sprintf("%s/coins/%s/history?date=%s", c.baseURL, coinID, date.Format("02-01-2006"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chainio: build coingecko history request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chainio: coingecko history request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("chainio: coingecko history returned %d", resp.StatusCode)
	}

	var out coinGeckoHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("chainio: decode coingecko history: %w", err)
	}

	usd, ok := out.MarketData.CurrentPrice["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("chainio: no usd price for %s on %s", coinID, date.Format("2006-01-02"))
	}
	return decimal.NewFromFloat(usd), nil
}
