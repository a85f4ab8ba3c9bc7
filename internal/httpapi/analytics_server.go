package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/sawpanic/vaultrun/internal/persistence/postgres"
	"github.com/sawpanic/vaultrun/internal/scheduler"
)

// AnalyticsServer serves the read-only ranking and trader-detail
// endpoints of §6 backed directly by the Postgres repositories.
type AnalyticsServer struct {
	router     *mux.Router
	httpServer *http.Server
	config     ServerConfig
	log        zerolog.Logger

	db    *postgres.Manager
	queue *scheduler.Queue
}

// NewAnalyticsServer builds the Analytics HTTP server.
func NewAnalyticsServer(cfg ServerConfig, db *postgres.Manager, queue *scheduler.Queue, log zerolog.Logger) (*AnalyticsServer, error) {
	addr, err := listenAddr(cfg)
	if err != nil {
		return nil, err
	}

	s := &AnalyticsServer{
		router: mux.NewRouter(),
		config: cfg,
		log:    log.With().Str("component", "analytics_http").Logger(),
		db:     db,
		queue:  queue,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *AnalyticsServer) setupRoutes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(requestLoggingMiddleware(s.log))
	s.router.Use(timeoutMiddleware(5 * time.Second))
	s.router.Use(corsMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.Health).Methods(http.MethodGet)
	api.HandleFunc("/rankings", s.Rankings).Methods(http.MethodGet)
	api.HandleFunc("/traders/{wallet}", s.TraderDetail).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)
}

// Health reports database connectivity, scheduler backlog, and the
// calculated_at of the most recent ranking snapshot.
func (s *AnalyticsServer) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbUp := s.db.Ping(ctx) == nil

	var backlog int64
	if s.queue != nil {
		if n, err := s.queue.Len(ctx); err == nil {
			backlog = n
		}
	}

	var latest int64
	if rows, err := s.db.Rankings.LatestSnapshot(ctx); err == nil && len(rows) > 0 {
		latest = rows[0].CalculationTimestamp.Unix()
	}

	status := "healthy"
	if !dbUp {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, AnalyticsHealthResponse{
		Status:         status,
		Timestamp:      time.Now().UTC(),
		DatabaseUp:     dbUp,
		QueueBacklog:   backlog,
		LatestSnapshot: latest,
	})
}

// Rankings returns every trader of the most recently published ranking
// snapshot, ordered by rank.
func (s *AnalyticsServer) Rankings(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Rankings.LatestSnapshot(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if len(rows) == 0 {
		writeJSON(w, http.StatusOK, RankingResponse{Traders: []RankedTraderEntry{}, Generated: time.Now().UTC()})
		return
	}

	entries := make([]RankedTraderEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, rankedEntryFromRow(row))
	}

	head := rows[0]
	writeJSON(w, http.StatusOK, RankingResponse{
		SnapshotID:       head.RankingID,
		CalculatedAt:     head.CalculationTimestamp.Unix(),
		PeriodDays:       head.PeriodDays,
		AlgorithmVersion: head.AlgorithmVersion,
		Traders:          entries,
		Generated:        time.Now().UTC(),
	})
}

func rankedEntryFromRow(row postgres.TraderRankingRow) RankedTraderEntry {
	entry := RankedTraderEntry{
		Rank:       row.Rank,
		Wallet:     row.WalletAddress,
		TrustScore: row.TrustScore.String(),
		Eligible:   row.IsEligible,
	}
	if v, ok := row.PerformanceMetrics["performance_score"]; ok {
		entry.PerformanceScore = stringify(v)
	}
	if v, ok := row.PerformanceMetrics["risk_penalty"]; ok {
		entry.RiskPenalty = stringify(v)
	}
	if v, ok := row.PerformanceMetrics["net_roi_percent"]; ok {
		entry.NetROIPercent = stringify(v)
	}
	if v, ok := row.PerformanceMetrics["sharpe_ratio"]; ok {
		entry.SharpeRatio = stringify(v)
	}
	if v, ok := row.PerformanceMetrics["maximum_drawdown_percent"]; ok {
		entry.MaxDrawdownPercent = stringify(v)
	}
	return entry
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// TraderDetail returns the profile of a single wallet.
func (s *AnalyticsServer) TraderDetail(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]

	profile, err := s.db.Traders.GetByWallet(r.Context(), wallet)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if profile == nil {
		writeError(w, r, http.StatusNotFound, "trader_not_found", "no profile exists for this wallet")
		return
	}

	writeJSON(w, http.StatusOK, TraderDetailResponse{
		Wallet:            profile.WalletAddress,
		IsActive:          profile.IsActive,
		FirstSeen:         profile.FirstSeen,
		LastActivity:      profile.LastActivity,
		TotalTrades:       profile.TotalTrades,
		TotalVolumeSOL:    profile.TotalVolumeSOL.String(),
		CurrentTrustScore: profile.CurrentTrustScore.String(),
		PerformanceRank:   profile.PerformanceRank,
	})
}

func (s *AnalyticsServer) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "endpoint_not_found", "the requested endpoint does not exist")
}

// Start blocks serving the Analytics HTTP server.
func (s *AnalyticsServer) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting analytics http server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *AnalyticsServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server's listen address.
func (s *AnalyticsServer) Address() string {
	return s.httpServer.Addr
}
