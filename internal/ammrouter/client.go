// Package ammrouter is a thin REST client for an external swap
// aggregator (Jupiter-shaped): quote a swap, then build the unsigned
// swap transaction for a quote. The executor treats both responses as
// opaque inputs to its own vault-wrapped instruction (§4.12 step 3).
package ammrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config parameterizes the router client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the router's quote and swap-build REST endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
}

// New constructs a router Client.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With().Str("component", "amm_router_client").Logger(),
	}
}

// Quote is a router-returned best-price quote for one swap leg.
type Quote struct {
	InMint       string          `json:"in_mint"`
	OutMint      string          `json:"out_mint"`
	InAmount     decimal.Decimal `json:"in_amount"`
	OutAmount    decimal.Decimal `json:"out_amount"`
	SlippageBps  int             `json:"slippage_bps"`
	RouteSummary string          `json:"route_summary"`
}

// Quote fetches the best available quote for swapping inAmount of inMint
// into outMint, within slippageBps basis points.
func (c *Client) Quote(ctx context.Context, inMint, outMint string, inAmount decimal.Decimal, slippageBps int) (Quote, error) {
	var out Quote
	path := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%s&slippageBps=%d",
		c.cfg.BaseURL, inMint, outMint, inAmount.String(), slippageBps)
	if err := c.doGet(ctx, path, &out); err != nil {
		return Quote{}, fmt.Errorf("ammrouter: quote: %w", err)
	}
	return out, nil
}

// SwapTransaction is the router-built, base64-encoded unsigned swap
// transaction for a prior Quote.
type SwapTransaction struct {
	TransactionB64    string `json:"swap_transaction"`
	SwapInstructionB64 string `json:"swap_instruction"`
}

// BuildSwapTransaction asks the router to build the unsigned transaction
// realizing quote, for the given user's wallet as fee payer.
func (c *Client) BuildSwapTransaction(ctx context.Context, quote Quote, userPublicKey string) (SwapTransaction, error) {
	body, err := json.Marshal(map[string]any{
		"quote":          quote,
		"user_public_key": userPublicKey,
	})
	if err != nil {
		return SwapTransaction{}, fmt.Errorf("ammrouter: marshal swap request: %w", err)
	}

	var out SwapTransaction
	if err := c.doPost(ctx, c.cfg.BaseURL+"/swap", body, &out); err != nil {
		return SwapTransaction{}, fmt.Errorf("ammrouter: build swap transaction: %w", err)
	}
	return out, nil
}

func (c *Client) doGet(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("router returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
