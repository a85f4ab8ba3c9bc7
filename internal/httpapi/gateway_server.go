package httpapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/sawpanic/vaultrun/internal/apperrors"
	"github.com/sawpanic/vaultrun/internal/audit"
	"github.com/sawpanic/vaultrun/internal/breaker"
	"github.com/sawpanic/vaultrun/internal/confirm"
)

// CredentialStore looks up the API key registered for a user, used by
// POST /auth/authenticate.
type CredentialStore interface {
	APIKeyFor(userID string) (string, bool)
}

// StaticCredentialStore is a fixed, in-memory user -> API key mapping,
// loaded once at startup from configuration.
type StaticCredentialStore map[string]string

// APIKeyFor implements CredentialStore.
func (s StaticCredentialStore) APIKeyFor(userID string) (string, bool) {
	key, ok := s[userID]
	return key, ok
}

// GatewayServer serves the Execution-bot gateway's auth, emergency-halt,
// and health endpoints of §6.
type GatewayServer struct {
	router     *mux.Router
	httpServer *http.Server
	config     ServerConfig
	log        zerolog.Logger

	auth          *SessionAuth
	credentials   CredentialStore
	operatorToken string

	breakers   *breaker.Registry
	confirmMon *confirm.Monitor
	auditl     *audit.Logger
}

// NewGatewayServer builds the Execution-bot gateway HTTP server.
func NewGatewayServer(
	cfg ServerConfig,
	auth *SessionAuth,
	credentials CredentialStore,
	operatorToken string,
	breakers *breaker.Registry,
	confirmMon *confirm.Monitor,
	auditl *audit.Logger,
	log zerolog.Logger,
) (*GatewayServer, error) {
	addr, err := listenAddr(cfg)
	if err != nil {
		return nil, err
	}

	s := &GatewayServer{
		router:        mux.NewRouter(),
		config:        cfg,
		log:           log.With().Str("component", "gateway_http").Logger(),
		auth:          auth,
		credentials:   credentials,
		operatorToken: operatorToken,
		breakers:      breakers,
		confirmMon:    confirmMon,
		auditl:        auditl,
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

func (s *GatewayServer) setupRoutes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(requestLoggingMiddleware(s.log))
	s.router.Use(timeoutMiddleware(5 * time.Second))
	s.router.Use(corsMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/auth/authenticate", s.Authenticate).Methods(http.MethodPost)
	api.HandleFunc("/bot/health", s.BotHealth).Methods(http.MethodGet)

	emergency := api.PathPrefix("/bot/emergency").Subrouter()
	emergency.Use(StaticBearerMiddleware(s.operatorToken))
	emergency.HandleFunc("", s.EmergencyHalt).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)
}

// Authenticate exchanges a user ID + API key for a short-lived session
// JWT, comparing the key in constant time.
func (s *GatewayServer) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}
	if req.UserID == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, "missing_credentials", "user_id and api_key are required")
		return
	}

	expected, ok := s.credentials.APIKeyFor(req.UserID)
	if !ok || subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(expected)) != 1 {
		writeAppError(w, r, fmt.Errorf("%w: invalid user_id or api_key", apperrors.ErrAuth))
		return
	}

	token, expiresAt, err := s.auth.Issue(req.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthenticateResponse{Token: token, ExpiresAt: expiresAt})
}

// EmergencyHalt asserts a system-wide trading halt. Guarded by
// StaticBearerMiddleware, not the session JWT — an operator, not a
// trading user, calls this.
func (s *GatewayServer) EmergencyHalt(w http.ResponseWriter, r *http.Request) {
	var req EmergencyHaltRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "operator requested emergency halt"
	}

	s.breakers.Halt(r.Context(), req.Reason)

	writeJSON(w, http.StatusOK, EmergencyHaltResponse{
		Halted:    true,
		Reason:    req.Reason,
		Timestamp: time.Now().UTC(),
	})
}

// BotHealth aggregates circuit breaker state, confirmation-monitor
// backlog, and audit-log writability into one operational snapshot.
func (s *GatewayServer) BotHealth(w http.ResponseWriter, r *http.Request) {
	breakers := make(map[string]string)
	allClosed := true
	for _, d := range breaker.AllDomains() {
		state := s.breakers.State(d)
		breakers[string(d)] = string(state)
		if string(state) != "closed" {
			allClosed = false
		}
	}

	status := "healthy"
	if !allClosed || !s.breakers.IsTradingAllowed() {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, BotHealthResponse{
		Status:              status,
		Timestamp:           time.Now().UTC(),
		TradingAllowed:      s.breakers.IsTradingAllowed(),
		Breakers:            breakers,
		ConfirmationBacklog: s.confirmMon.Backlog(),
		AuditWritable:       s.auditl.Writable(r.Context()),
	})
}

func (s *GatewayServer) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "endpoint_not_found", "the requested endpoint does not exist")
}

// Start blocks serving the gateway HTTP server.
func (s *GatewayServer) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting execution bot gateway http server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *GatewayServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server's listen address.
func (s *GatewayServer) Address() string {
	return s.httpServer.Addr
}
