// Package shadow runs a candidate detector configuration alongside the
// production baseline. Threshold changes never reach stored analyses
// directly; a candidate runs in shadow mode until its drift report
// justifies promotion.
package shadow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/muling-engine/internal/graph"
	"github.com/rawblock/muling-engine/internal/heuristics"
	"github.com/rawblock/muling-engine/internal/metrics"
	"github.com/rawblock/muling-engine/pkg/models"
)

// ErrNoPool is returned when a drift report is requested without a database.
var ErrNoPool = errors.New("shadow: no database pool configured")

// Evaluator compares two detector configurations over the same dataset.
// Each comparison runs fresh detectors for both sides, so repeated calls
// never share state.
type Evaluator struct {
	pool         *pgxpool.Pool
	experimentID string
	baseline     heuristics.DetectorConfig
	candidate    heuristics.DetectorConfig
}

// Comparison captures the diff between the baseline and candidate runs.
type Comparison struct {
	ExperimentID    string         `json:"experiment_id"`
	BaselineRings   int            `json:"baseline_rings"`
	CandidateRings  int            `json:"candidate_rings"`
	FlaggedDelta    int            `json:"flagged_delta"` // candidate flagged accounts minus baseline
	RandIndex       float64        `json:"rand_index"`
	VariationOfInfo float64        `json:"variation_of_info"`
	RiskDrift       []AccountDrift `json:"risk_drift"`
	MaxRiskDrift    float64        `json:"max_risk_drift"`
	Diverged        bool           `json:"diverged"`
	CreatedAt       time.Time      `json:"created_at"`
}

// AccountDrift is one account whose aggregate graph score moved between the
// two configurations.
type AccountDrift struct {
	AccountID string  `json:"account_id"`
	Baseline  float64 `json:"baseline"`
	Candidate float64 `json:"candidate"`
	Delta     float64 `json:"delta"`
}

// NewEvaluator builds an evaluator for one experiment. A nil pool disables
// persistence; comparisons still run and return their results.
func NewEvaluator(pool *pgxpool.Pool, experimentID string, baseline, candidate heuristics.DetectorConfig) *Evaluator {
	return &Evaluator{
		pool:         pool,
		experimentID: experimentID,
		baseline:     baseline,
		candidate:    candidate,
	}
}

// Compare runs both configurations against the graph and measures how far
// the candidate's rings and account scores drift from the baseline's.
// Divergences are logged for monitoring and, when a database is attached,
// persisted to the shadow_results table.
func (ev *Evaluator) Compare(ctx context.Context, g *graph.TransactionGraph) (*Comparison, error) {
	baseRes, err := heuristics.NewRingDetector(g, ev.baseline).Detect()
	if err != nil {
		return nil, fmt.Errorf("baseline detection: %w", err)
	}
	candRes, err := heuristics.NewRingDetector(g, ev.candidate).Detect()
	if err != nil {
		return nil, fmt.Errorf("candidate detection: %w", err)
	}

	universe := metrics.AccountUniverse(baseRes.Rings, candRes.Rings)

	// Ring ids are run-scoped, so agreement is measured structurally over
	// the account->ring partitions instead of by id.
	ari, vi := 1.0, 0.0
	if len(universe) >= 2 {
		baseLabels := metrics.PartitionLabels(universe, baseRes.Rings)
		candLabels := metrics.PartitionLabels(universe, candRes.Rings)
		ari = metrics.AdjustedRandIndex(baseLabels, candLabels)
		vi = metrics.VariationOfInformation(baseLabels, candLabels)
	}

	drift, maxDrift := riskDrift(baseRes.AccountFlags, candRes.AccountFlags)

	cmp := &Comparison{
		ExperimentID:    ev.experimentID,
		BaselineRings:   len(baseRes.Rings),
		CandidateRings:  len(candRes.Rings),
		FlaggedDelta:    len(candRes.AccountFlags) - len(baseRes.AccountFlags),
		RandIndex:       round4(ari),
		VariationOfInfo: round4(vi),
		RiskDrift:       drift,
		MaxRiskDrift:    maxDrift,
		CreatedAt:       time.Now(),
	}
	cmp.Diverged = cmp.BaselineRings != cmp.CandidateRings ||
		len(cmp.RiskDrift) > 0 ||
		cmp.RandIndex < 1

	if cmp.Diverged {
		log.Printf("[Shadow] DIVERGENCE in %s: baseline_rings=%d candidate_rings=%d ari=%.4f max_drift=%.2f",
			ev.experimentID, cmp.BaselineRings, cmp.CandidateRings, cmp.RandIndex, cmp.MaxRiskDrift)
	}

	if ev.pool != nil {
		if err := ev.persistComparison(ctx, cmp); err != nil {
			return cmp, err
		}
	}

	return cmp, nil
}

// riskDrift lines up the per-account aggregate scores from both runs.
// Accounts flagged by neither side carry no drift; a score of 0 stands in
// for an account one side did not flag at all.
func riskDrift(base, cand []models.AccountFlag) ([]AccountDrift, float64) {
	baseScores := make(map[string]float64, len(base))
	for _, f := range base {
		baseScores[f.AccountID] = f.GraphScore
	}
	candScores := make(map[string]float64, len(cand))
	for _, f := range cand {
		candScores[f.AccountID] = f.GraphScore
	}

	ids := make([]string, 0, len(baseScores)+len(candScores))
	for id := range baseScores {
		ids = append(ids, id)
	}
	for id := range candScores {
		if _, ok := baseScores[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var drift []AccountDrift
	maxDrift := 0.0
	for _, id := range ids {
		b, c := baseScores[id], candScores[id]
		if b == c {
			continue
		}
		delta := round2(c - b)
		drift = append(drift, AccountDrift{AccountID: id, Baseline: b, Candidate: c, Delta: delta})
		if math.Abs(delta) > maxDrift {
			maxDrift = math.Abs(delta)
		}
	}
	return drift, maxDrift
}

// persistComparison writes the comparison to the shadow_results table,
// never to the production analysis tables.
func (ev *Evaluator) persistComparison(ctx context.Context, cmp *Comparison) error {
	sql := `INSERT INTO shadow_results
		(experiment_id, baseline_rings, candidate_rings, flagged_delta, rand_index, variation_of_info, max_risk_drift, diverged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := ev.pool.Exec(ctx, sql,
		cmp.ExperimentID,
		cmp.BaselineRings,
		cmp.CandidateRings,
		cmp.FlaggedDelta,
		cmp.RandIndex,
		cmp.VariationOfInfo,
		cmp.MaxRiskDrift,
		cmp.Diverged,
		cmp.CreatedAt,
	)
	return err
}

// DriftReport aggregates every stored comparison for this experiment: how
// often the candidate diverged and how much structural agreement remained.
func (ev *Evaluator) DriftReport(ctx context.Context) (totalRuns int, divergences int, avgRandIndex float64, err error) {
	if ev.pool == nil {
		err = ErrNoPool
		return
	}

	sql := `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE diverged) AS divergences,
		COALESCE(AVG(rand_index), 1) AS avg_agreement
	FROM shadow_results WHERE experiment_id = $1`

	row := ev.pool.QueryRow(ctx, sql, ev.experimentID)
	err = row.Scan(&totalRuns, &divergences, &avgRandIndex)
	return
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
