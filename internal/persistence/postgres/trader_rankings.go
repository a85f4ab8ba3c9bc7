package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// TraderRankingRow is the row shape of trader_rankings.
type TraderRankingRow struct {
	RankingID           string
	CalculationTimestamp time.Time
	PeriodDays           int
	AlgorithmVersion     string
	WalletAddress        string
	Rank                 int
	TrustScore           decimal.Decimal
	PerformanceMetrics   map[string]any
	EligibilityCheck     map[string]any
	MinTrustScoreTier    string
	IsEligible           bool
	CreatedAt            time.Time
}

// TraderRankingRepo persists trader_rankings, one row per trader per
// published ranking snapshot.
type TraderRankingRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTraderRankingRepo constructs a TraderRankingRepo.
func NewTraderRankingRepo(db *sqlx.DB, timeout time.Duration) *TraderRankingRepo {
	return &TraderRankingRepo{db: db, timeout: timeout}
}

// InsertBatch persists every ranked trader of one snapshot atomically,
// mirroring the teacher's transactional batch-insert idiom.
func (r *TraderRankingRepo) InsertBatch(ctx context.Context, rows []TraderRankingRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin ranking batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trader_rankings
			(ranking_id, calculation_timestamp, period_days, algorithm_version, wallet_address,
			 rank, trust_score, performance_metrics, eligibility_check, min_trust_score_tier, is_eligible)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	if err != nil {
		return fmt.Errorf("postgres: prepare ranking insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if row.RankingID == "" {
			row.RankingID = uuid.NewString()
		}
		perfJSON, err := json.Marshal(row.PerformanceMetrics)
		if err != nil {
			return fmt.Errorf("postgres: marshal performance metrics: %w", err)
		}
		eligJSON, err := json.Marshal(row.EligibilityCheck)
		if err != nil {
			return fmt.Errorf("postgres: marshal eligibility check: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			row.RankingID, row.CalculationTimestamp, row.PeriodDays, row.AlgorithmVersion, row.WalletAddress,
			row.Rank, row.TrustScore.String(), perfJSON, eligJSON, row.MinTrustScoreTier, row.IsEligible,
		); err != nil {
			return fmt.Errorf("postgres: insert ranking row: %w", err)
		}
	}

	return tx.Commit()
}

// LatestSnapshot returns every row belonging to the most recent
// calculation_timestamp, ordered by rank.
func (r *TraderRankingRepo) LatestSnapshot(ctx context.Context) ([]TraderRankingRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ranking_id, calculation_timestamp, period_days, algorithm_version, wallet_address,
			   rank, trust_score, performance_metrics, eligibility_check, min_trust_score_tier,
			   is_eligible, created_at
		FROM trader_rankings
		WHERE calculation_timestamp = (SELECT MAX(calculation_timestamp) FROM trader_rankings)
		ORDER BY rank ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest ranking snapshot: %w", err)
	}
	defer rows.Close()

	var out []TraderRankingRow
	for rows.Next() {
		var row TraderRankingRow
		var trustStr string
		var perfJSON, eligJSON []byte
		if err := rows.Scan(
			&row.RankingID, &row.CalculationTimestamp, &row.PeriodDays, &row.AlgorithmVersion, &row.WalletAddress,
			&row.Rank, &trustStr, &perfJSON, &eligJSON, &row.MinTrustScoreTier, &row.IsEligible, &row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan ranking row: %w", err)
		}
		row.TrustScore, _ = decimal.NewFromString(trustStr)
		_ = json.Unmarshal(perfJSON, &row.PerformanceMetrics)
		_ = json.Unmarshal(eligJSON, &row.EligibilityCheck)
		out = append(out, row)
	}
	return out, rows.Err()
}
