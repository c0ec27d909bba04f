package db

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/muling-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time, so schema init works
// in runtime images that do not ship internal/db/schema.sql.
//
//go:embed schema.sql
var schemaSQL string

// Store archives completed analyses. The engine runs fine without one; the
// caller decides whether a missing database is fatal.
type Store struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for the analysis archive")
	return &Store{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *Store) InitSchema() error {
	_, err := s.pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Analysis archive schema initialized")
	return nil
}

// AnalysisRecord bundles everything one completed analysis persists.
type AnalysisRecord struct {
	RunID     string
	Source    string
	Metadata  models.DatasetMetadata
	Result    *models.DetectionResult
	Plan      *models.DisruptionPlan // optional, nil when planning was skipped
	CreatedAt time.Time
}

// SaveAnalysis persists one run together with its rings and disruption
// strategies in a single transaction.
func (s *Store) SaveAnalysis(ctx context.Context, rec AnalysisRecord) error {
	if rec.Result == nil {
		return fmt.Errorf("analysis record %s has no detection result", rec.RunID)
	}

	// 1. Begin transaction
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	maxRisk := 0.0
	for _, r := range rec.Result.Rings {
		if r.RiskScore > maxRisk {
			maxRisk = r.RiskScore
		}
	}

	// 2. Insert the run row
	insertRunSQL := `
		INSERT INTO analysis_runs
			(run_id, source, total_transactions, total_accounts, skipped_rows,
			 ring_count, flagged_accounts, max_risk, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err = tx.Exec(ctx, insertRunSQL,
		rec.RunID, rec.Source,
		rec.Metadata.TotalTransactions, rec.Metadata.TotalAccounts, rec.Metadata.SkippedRows,
		len(rec.Result.Rings), len(rec.Result.AccountFlags), maxRisk, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert analysis run: %v", err)
	}

	// 3. Batch insert the rings
	insertRingSQL := `
		INSERT INTO rings (run_id, ring_id, pattern_type, member_accounts, risk_score)
		VALUES ($1, $2, $3, $4, $5);
	`
	for _, ring := range rec.Result.Rings {
		_, err = tx.Exec(ctx, insertRingSQL,
			rec.RunID, ring.RingID, ring.PatternType, ring.MemberAccounts, ring.RiskScore)
		if err != nil {
			return fmt.Errorf("failed to insert ring %s: %v", ring.RingID, err)
		}
	}

	// 4. Batch insert the disruption strategies
	if rec.Plan != nil {
		insertStrategySQL := `
			INSERT INTO strategies
				(run_id, ring_id, member_count, critical_accounts, optimal_pair,
				 max_disruption_pct, resilience_score)
			VALUES ($1, $2, $3, $4, $5, $6, $7);
		`
		for _, st := range rec.Plan.Strategies {
			criticals := make([]string, 0, len(st.CriticalNodes))
			for _, cn := range st.CriticalNodes {
				criticals = append(criticals, cn.AccountID)
			}
			_, err = tx.Exec(ctx, insertStrategySQL,
				rec.RunID, st.RingID, st.MemberCount, criticals, st.OptimalPairRemoval.Nodes,
				st.MaxDisruptionPct, st.ResilienceScore)
			if err != nil {
				return fmt.Errorf("failed to insert strategy for %s: %v", st.RingID, err)
			}
		}
	}

	// 5. Commit
	return tx.Commit(ctx)
}

// RunSummary is one archived run as listed by the API.
type RunSummary struct {
	RunID             string    `json:"run_id"`
	Source            string    `json:"source"`
	TotalTransactions int       `json:"total_transactions"`
	TotalAccounts     int       `json:"total_accounts"`
	RingCount         int       `json:"ring_count"`
	FlaggedAccounts   int       `json:"flagged_accounts"`
	MaxRisk           float64   `json:"max_risk"`
	CreatedAt         time.Time `json:"created_at"`
}

// ListRuns pages through archived runs, newest first.
func (s *Store) ListRuns(ctx context.Context, page, limit int) ([]RunSummary, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var totalCount int
	countSQL := `SELECT COUNT(*) FROM analysis_runs`
	if err := s.pool.QueryRow(ctx, countSQL).Scan(&totalCount); err != nil {
		return nil, 0, err
	}

	dataSQL := `
		SELECT run_id, source, total_transactions, total_accounts,
		       ring_count, flagged_accounts, max_risk, created_at
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.pool.Query(ctx, dataSQL, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := make([]RunSummary, 0)
	for rows.Next() {
		var r RunSummary
		err := rows.Scan(&r.RunID, &r.Source, &r.TotalTransactions, &r.TotalAccounts,
			&r.RingCount, &r.FlaggedAccounts, &r.MaxRisk, &r.CreatedAt)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, r)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return runs, totalCount, nil
}

// PatternCounts tallies archived rings per pattern type.
func (s *Store) PatternCounts(ctx context.Context) (map[string]int, error) {
	sql := `SELECT pattern_type, COUNT(*) FROM rings GROUP BY pattern_type`

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var pattern string
		var n int
		if err := rows.Scan(&pattern, &n); err != nil {
			return nil, err
		}
		counts[pattern] = n
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

// GetPool exposes the connection pool for the shadow evaluator and other
// subsystems.
func (s *Store) GetPool() *pgxpool.Pool {
	return s.pool
}
