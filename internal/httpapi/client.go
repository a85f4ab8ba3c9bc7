package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/vaultrun/internal/domain"
)

// AnalyticsClient is the Execution-bot gateway's view of the Analytics
// service, fetching the published ranking and trader profiles it copy
// trades against.
type AnalyticsClient interface {
	LatestRanking(ctx context.Context) (RankingResponse, error)
	TraderDetail(ctx context.Context, wallet string) (TraderDetailResponse, error)
	Health(ctx context.Context) (AnalyticsHealthResponse, error)
}

// ClientConfig configures an HTTPAnalyticsClient.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultClientConfig returns reasonable defaults for same-host calls.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{BaseURL: baseURL, Timeout: 5 * time.Second}
}

// HTTPAnalyticsClient is the production AnalyticsClient, backed by
// net/http against the Analytics service's HTTP boundary.
type HTTPAnalyticsClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAnalyticsClient builds an HTTPAnalyticsClient.
func NewHTTPAnalyticsClient(cfg ClientConfig) *HTTPAnalyticsClient {
	return &HTTPAnalyticsClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// LatestRanking fetches GET /rankings.
func (c *HTTPAnalyticsClient) LatestRanking(ctx context.Context) (RankingResponse, error) {
	var out RankingResponse
	err := c.getJSON(ctx, "/rankings", &out)
	return out, err
}

// TraderDetail fetches GET /traders/{wallet}.
func (c *HTTPAnalyticsClient) TraderDetail(ctx context.Context, wallet string) (TraderDetailResponse, error) {
	var out TraderDetailResponse
	err := c.getJSON(ctx, "/traders/"+wallet, &out)
	return out, err
}

// Health fetches GET /health.
func (c *HTTPAnalyticsClient) Health(ctx context.Context) (AnalyticsHealthResponse, error) {
	var out AnalyticsHealthResponse
	err := c.getJSON(ctx, "/health", &out)
	return out, err
}

// FetchRankedTraders implements orchestrator.RankingFetcher, converting
// the wire ranking response back into the domain snapshot the
// orchestrator's strategy selector consumes.
func (c *HTTPAnalyticsClient) FetchRankedTraders(ctx context.Context) (domain.RankingSnapshot, error) {
	resp, err := c.LatestRanking(ctx)
	if err != nil {
		return domain.RankingSnapshot{}, err
	}

	traders := make([]domain.RankedTrader, 0, len(resp.Traders))
	for _, t := range resp.Traders {
		rt := domain.RankedTrader{
			Rank:       t.Rank,
			Wallet:     t.Wallet,
			TrustScore: parseDecimal(t.TrustScore),
		}
		rt.PerformanceBreakdown.PerformanceScore = parseDecimal(t.PerformanceScore)
		rt.PerformanceBreakdown.RiskPenalty = parseDecimal(t.RiskPenalty)
		if t.Eligible {
			rt.EligibilityInfo = domain.EligibilityEligible
		}
		rt.MetricsDigest.Wallet = t.Wallet
		rt.MetricsDigest.NetROIPercent = parseDecimal(t.NetROIPercent)
		rt.MetricsDigest.SharpeRatio = parseDecimal(t.SharpeRatio)
		rt.MetricsDigest.MaximumDrawdownPercent = parseDecimal(t.MaxDrawdownPercent)
		traders = append(traders, rt)
	}

	return domain.RankingSnapshot{
		SnapshotID:       resp.SnapshotID,
		CalculatedAt:     resp.CalculatedAt,
		PeriodDays:       resp.PeriodDays,
		AlgorithmVersion: resp.AlgorithmVersion,
		Traders:          traders,
	}, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (c *HTTPAnalyticsClient) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("httpapi: build request for %s: %w", path, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("httpapi: call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("httpapi: %s returned %d: %s", path, resp.StatusCode, errResp.Message)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("httpapi: decode %s response: %w", path, err)
	}
	return nil
}
