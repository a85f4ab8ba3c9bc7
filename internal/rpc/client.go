// Package rpc implements the rate-limited, cached, retrying JSON-RPC
// client of §4.1, generalizing the teacher's per-host token-bucket
// Limiter (internal/net/ratelimit) to a single upstream endpoint shared
// by every ingestion worker.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sawpanic/vaultrun/internal/apperrors"
)

var cacheableMethods = map[string]bool{
	"getProgramAccounts":      true,
	"getTransaction":          true,
	"getSignaturesForAddress": true,
	"getAccountInfo":          true,
	"getBlock":                true,
}

// Config tunes the client per §4.1 / §6.
type Config struct {
	Endpoint          string
	RequestsPerSecond float64
	BurstLimit        int
	CacheTTL          time.Duration
	RetryBaseDelay    time.Duration
	MaxRetries        int
}

// Client is a rate-limited, cached, retrying JSON-RPC 2.0 client. It is
// safe for concurrent use; every call is independently paced and there is
// no ordering guarantee across concurrent callers (§4.1).
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	minSpacing time.Duration
	lastCallAt time.Time
	cache      *cache
	log        zerolog.Logger

	nextRequestID int64
}

// New constructs an RPC client from Config.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.BurstLimit <= 0 {
		cfg.BurstLimit = 1
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstLimit),
		minSpacing: time.Duration(float64(time.Second) / cfg.RequestsPerSecond),
		cache:      newCache(cfg.CacheTTL),
		log:        log.With().Str("component", "rpc_client").Logger(),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call performs a JSON-RPC call, applying the cache (for cacheable
// methods), token-bucket pacing, minimum inter-request spacing, and
// retry/backoff policy of §4.1. The raw JSON result is unmarshaled into
// out.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	cacheable := cacheableMethods[method]
	var key string
	if cacheable {
		key = cacheKey(method, params)
		if cached, ok := c.cache.get(key); ok {
			return json.Unmarshal(cached, out)
		}
	}

	raw, err := c.callWithRetry(ctx, method, params)
	if err != nil {
		return err
	}

	if cacheable {
		c.cache.set(key, raw)
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) callWithRetry(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(c.cfg.RetryBaseDelay) * math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		raw, err := c.doOnce(ctx, method, params)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !errors.Is(err, apperrors.ErrTransient) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("rpc: %s exhausted retries: %w", method, lastErr)
}

// doOnce performs exactly one paced, unretried call.
func (c *Client) doOnce(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	c.nextRequestID++
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextRequestID, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", apperrors.ErrFatal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", apperrors.ErrTransient, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: rate limited by upstream", apperrors.ErrTransient)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: upstream status %d", apperrors.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: upstream status %d: %s", apperrors.ErrFatal, resp.StatusCode, string(respBody))
	}

	var parsed rpcResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", apperrors.ErrTransient, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: rpc error %d: %s", apperrors.ErrFatal, parsed.Error.Code, parsed.Error.Message)
	}
	return parsed.Result, nil
}

// pace enforces both the token-bucket burst window and the 1/R minimum
// spacing floor, per §4.1.
func (c *Client) pace(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
	}
	if since := time.Since(c.lastCallAt); since < c.minSpacing {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.minSpacing - since):
		}
	}
	c.lastCallAt = time.Now()
	return nil
}

// CacheSize reports the current number of cached responses, for tests and
// health endpoints.
func (c *Client) CacheSize() int {
	return c.cache.len()
}
