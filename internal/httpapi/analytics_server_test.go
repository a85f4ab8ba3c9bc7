package httpapi

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/persistence/postgres"
)

func newMockManager(t *testing.T) (*postgres.Manager, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db := sqlx.NewDb(sqlDB, "postgres")

	return &postgres.Manager{
		Traders:  postgres.NewTraderProfileRepo(db, time.Second),
		Rankings: postgres.NewTraderRankingRepo(db, time.Second),
	}, mock
}

func TestRankingsReturnsEmptyWhenNoSnapshot(t *testing.T) {
	mgr, mock := newMockManager(t)
	mock.ExpectQuery("SELECT ranking_id").WillReturnRows(sqlmock.NewRows(nil))

	s := &AnalyticsServer{router: mux.NewRouter(), db: mgr, log: zerolog.Nop()}
	s.setupRoutes()

	req := httptest.NewRequest("GET", "/rankings", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"traders":[]`)
}

func TestRankingsReturnsLatestSnapshot(t *testing.T) {
	mgr, mock := newMockManager(t)
	rows := sqlmock.NewRows([]string{
		"ranking_id", "calculation_timestamp", "period_days", "algorithm_version", "wallet_address",
		"rank", "trust_score", "performance_metrics", "eligibility_check", "min_trust_score_tier",
		"is_eligible", "created_at",
	}).AddRow("rk1", time.Now(), 90, "v1", "WalletA", 1, "95.5", []byte(`{"net_roi_percent":"12.3"}`), []byte(`{}`), "gold", true, time.Now())
	mock.ExpectQuery("SELECT ranking_id").WillReturnRows(rows)

	s := &AnalyticsServer{router: mux.NewRouter(), db: mgr, log: zerolog.Nop()}
	s.setupRoutes()

	req := httptest.NewRequest("GET", "/rankings", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "WalletA")
	assert.Contains(t, rec.Body.String(), "12.3")
}

func TestTraderDetailQueryErrorReturns500(t *testing.T) {
	mgr, mock := newMockManager(t)
	mock.ExpectQuery("SELECT trader_id").WillReturnError(errors.New("connection reset"))

	s := &AnalyticsServer{router: mux.NewRouter(), db: mgr, log: zerolog.Nop()}
	s.setupRoutes()

	req := httptest.NewRequest("GET", "/traders/WalletZ", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, 500, rec.Code)
}
