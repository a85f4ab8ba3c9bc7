// Package httpapi implements the typed HTTP boundary of §6 for both
// services: Analytics serves ranking/trader read endpoints, the
// Execution-bot gateway serves auth, emergency-halt, and health.
// Every payload is a typed struct — never map[string]any past the
// handler — following the teacher's internal/http contracts +
// internal/interfaces/http/handlers split.
package httpapi

import "time"

// ErrorResponse is the standard error envelope for every 4xx/5xx reply.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// RankingResponse is the payload of GET /rankings.
type RankingResponse struct {
	SnapshotID       string              `json:"snapshot_id"`
	CalculatedAt     int64               `json:"calculated_at"`
	PeriodDays       int                 `json:"period_days"`
	AlgorithmVersion string              `json:"algorithm_version"`
	Traders          []RankedTraderEntry `json:"traders"`
	Generated        time.Time           `json:"generated"`
}

// RankedTraderEntry is one row of a ranking response.
type RankedTraderEntry struct {
	Rank               int    `json:"rank"`
	Wallet             string `json:"wallet"`
	TrustScore         string `json:"trust_score"`
	PerformanceScore   string `json:"performance_score"`
	RiskPenalty        string `json:"risk_penalty"`
	Eligible           bool   `json:"eligible"`
	NetROIPercent      string `json:"net_roi_percent"`
	SharpeRatio        string `json:"sharpe_ratio"`
	MaxDrawdownPercent string `json:"maximum_drawdown_percent"`
}

// TraderDetailResponse is the payload of GET /traders/{wallet}.
type TraderDetailResponse struct {
	Wallet            string    `json:"wallet"`
	IsActive          bool      `json:"is_active"`
	FirstSeen         time.Time `json:"first_seen"`
	LastActivity      time.Time `json:"last_activity"`
	TotalTrades       int       `json:"total_trades"`
	TotalVolumeSOL    string    `json:"total_volume_sol"`
	CurrentTrustScore string    `json:"current_trust_score"`
	PerformanceRank   *int      `json:"performance_rank,omitempty"`
}

// AnalyticsHealthResponse is the payload of GET /health (Analytics).
type AnalyticsHealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	DatabaseUp     bool      `json:"database_up"`
	QueueBacklog   int64     `json:"queue_backlog"`
	LatestSnapshot int64     `json:"latest_snapshot_calculated_at"`
}

// AuthenticateRequest is the payload of POST /auth/authenticate.
type AuthenticateRequest struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key"`
}

// AuthenticateResponse returns a short-lived session JWT.
type AuthenticateResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EmergencyHaltRequest is the payload of POST /bot/emergency.
type EmergencyHaltRequest struct {
	Reason string `json:"reason"`
}

// EmergencyHaltResponse acknowledges a halt request.
type EmergencyHaltResponse struct {
	Halted    bool      `json:"halted"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// BotHealthResponse is the payload of GET /bot/health.
type BotHealthResponse struct {
	Status              string            `json:"status"`
	Timestamp           time.Time         `json:"timestamp"`
	TradingAllowed      bool              `json:"trading_allowed"`
	Breakers            map[string]string `json:"breakers"`
	ConfirmationBacklog int               `json:"confirmation_backlog"`
	AuditWritable       bool              `json:"audit_writable"`
}
