package shadow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/rawblock/muling-engine/internal/graph"
	"github.com/rawblock/muling-engine/internal/heuristics"
	"github.com/rawblock/muling-engine/pkg/models"
)

var base = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

var txSeq int

func tx(from, to string, amount float64, offset time.Duration) models.Transaction {
	txSeq++
	return models.Transaction{
		TransactionID: fmt.Sprintf("tx%04d", txSeq),
		SenderID:      from,
		ReceiverID:    to,
		Amount:        amount,
		Timestamp:     base.Add(offset),
	}
}

func buildGraph(t *testing.T, txs ...models.Transaction) *graph.TransactionGraph {
	t.Helper()
	g := graph.New()
	for _, txn := range txs {
		if err := g.AddTransaction(txn); err != nil {
			t.Fatalf("AddTransaction: %v", err)
		}
	}
	g.Finalize()
	return g
}

// edge adds two transactions per hop so every account ends up with more
// lifetime transactions than a pass-through shell would have.
func edge(from, to string, offset time.Duration) []models.Transaction {
	return []models.Transaction{
		tx(from, to, 500, offset),
		tx(from, to, 500, offset+10*time.Minute),
	}
}

// triangleGraph is the 3-cycle ACC_A -> ACC_B -> ACC_C -> ACC_A. The
// baseline config detects it as one cycle ring with risk 80.
func triangleGraph(t *testing.T) *graph.TransactionGraph {
	t.Helper()
	var txs []models.Transaction
	txs = append(txs, edge("ACC_A", "ACC_B", 0)...)
	txs = append(txs, edge("ACC_B", "ACC_C", time.Hour)...)
	txs = append(txs, edge("ACC_C", "ACC_A", 2*time.Hour)...)
	return buildGraph(t, txs...)
}

// sharedEdgeGraph holds two cycles through the shared hop ACC_A -> ACC_B:
// the 3-cycle A-B-C and the 4-cycle A-B-D-E.
func sharedEdgeGraph(t *testing.T) *graph.TransactionGraph {
	t.Helper()
	var txs []models.Transaction
	txs = append(txs, edge("ACC_A", "ACC_B", 0)...)
	txs = append(txs, edge("ACC_B", "ACC_C", time.Hour)...)
	txs = append(txs, edge("ACC_C", "ACC_A", 2*time.Hour)...)
	txs = append(txs, edge("ACC_B", "ACC_D", 3*time.Hour)...)
	txs = append(txs, edge("ACC_D", "ACC_E", 4*time.Hour)...)
	txs = append(txs, edge("ACC_E", "ACC_A", 5*time.Hour)...)
	return buildGraph(t, txs...)
}

func compare(t *testing.T, ev *Evaluator, g *graph.TransactionGraph) *Comparison {
	t.Helper()
	cmp, err := ev.Compare(context.Background(), g)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	return cmp
}

func TestCompare_IdenticalConfigsDoNotDiverge(t *testing.T) {
	cfg := heuristics.DefaultDetectorConfig()
	ev := NewEvaluator(nil, "exp-noop", cfg, cfg)

	cmp := compare(t, ev, triangleGraph(t))

	if cmp.Diverged {
		t.Errorf("Expected no divergence for identical configs. Got: %+v", cmp)
	}
	if cmp.BaselineRings != 1 || cmp.CandidateRings != 1 {
		t.Errorf("Expected 1 ring on both sides. Got: %d vs %d", cmp.BaselineRings, cmp.CandidateRings)
	}
	if cmp.RandIndex != 1 || cmp.VariationOfInfo != 0 {
		t.Errorf("Expected perfect agreement. Got: ari=%v vi=%v", cmp.RandIndex, cmp.VariationOfInfo)
	}
	if cmp.FlaggedDelta != 0 || len(cmp.RiskDrift) != 0 || cmp.MaxRiskDrift != 0 {
		t.Errorf("Expected no drift. Got: flagged=%d drift=%v max=%v",
			cmp.FlaggedDelta, cmp.RiskDrift, cmp.MaxRiskDrift)
	}
}

func TestCompare_CandidateDropsOnlyRing(t *testing.T) {
	// Raising the minimum cycle length to 4 makes the candidate blind to
	// the triangle. Both sides then hold single-block partitions, so the
	// label-invariant agreement stays perfect; the divergence shows up in
	// the ring counts and the per-account drift.
	baseline := heuristics.DefaultDetectorConfig()
	candidate := heuristics.DefaultDetectorConfig()
	candidate.CycleMinLength = 4

	ev := NewEvaluator(nil, "exp-min-4", baseline, candidate)
	cmp := compare(t, ev, triangleGraph(t))

	if !cmp.Diverged {
		t.Fatalf("Expected divergence. Got: %+v", cmp)
	}
	if cmp.BaselineRings != 1 || cmp.CandidateRings != 0 {
		t.Errorf("Expected 1 baseline ring and 0 candidate rings. Got: %d vs %d",
			cmp.BaselineRings, cmp.CandidateRings)
	}
	if cmp.RandIndex != 1 || cmp.VariationOfInfo != 0 {
		t.Errorf("Expected degenerate perfect agreement. Got: ari=%v vi=%v",
			cmp.RandIndex, cmp.VariationOfInfo)
	}
	if cmp.FlaggedDelta != -3 {
		t.Errorf("Expected flagged delta -3. Got: %d", cmp.FlaggedDelta)
	}

	want := []AccountDrift{
		{AccountID: "ACC_A", Baseline: 80, Candidate: 0, Delta: -80},
		{AccountID: "ACC_B", Baseline: 80, Candidate: 0, Delta: -80},
		{AccountID: "ACC_C", Baseline: 80, Candidate: 0, Delta: -80},
	}
	if !reflect.DeepEqual(cmp.RiskDrift, want) {
		t.Errorf("Expected drift %v. Got: %v", want, cmp.RiskDrift)
	}
	if cmp.MaxRiskDrift != 80 {
		t.Errorf("Expected max drift 80. Got: %v", cmp.MaxRiskDrift)
	}
}

func TestCompare_RegroupingLowersAgreement(t *testing.T) {
	// The baseline splits the five accounts into the 3-cycle {A,B,C} and
	// the 4-cycle picks up D and E. The candidate only sees the 4-cycle,
	// regrouping A and B with D and E while C drops out entirely. That is
	// a genuine structural disagreement, not a relabeling, so the adjusted
	// Rand index falls below 1.
	baseline := heuristics.DefaultDetectorConfig()
	candidate := heuristics.DefaultDetectorConfig()
	candidate.CycleMinLength = 4

	ev := NewEvaluator(nil, "exp-regroup", baseline, candidate)
	cmp := compare(t, ev, sharedEdgeGraph(t))

	if !cmp.Diverged {
		t.Fatalf("Expected divergence. Got: %+v", cmp)
	}
	if cmp.BaselineRings != 2 || cmp.CandidateRings != 1 {
		t.Errorf("Expected 2 baseline rings and 1 candidate ring. Got: %d vs %d",
			cmp.BaselineRings, cmp.CandidateRings)
	}
	if cmp.RandIndex != -0.1538 {
		t.Errorf("Expected adjusted Rand index -0.1538. Got: %v", cmp.RandIndex)
	}
	if cmp.VariationOfInfo != 1.351 {
		t.Errorf("Expected variation of information 1.351. Got: %v", cmp.VariationOfInfo)
	}
	if cmp.FlaggedDelta != -1 {
		t.Errorf("Expected flagged delta -1. Got: %d", cmp.FlaggedDelta)
	}

	// A and B keep the 4-cycle score 75 instead of the triangle's 80; C
	// loses its only ring. D and E score 75 on both sides.
	want := []AccountDrift{
		{AccountID: "ACC_A", Baseline: 80, Candidate: 75, Delta: -5},
		{AccountID: "ACC_B", Baseline: 80, Candidate: 75, Delta: -5},
		{AccountID: "ACC_C", Baseline: 80, Candidate: 0, Delta: -80},
	}
	if !reflect.DeepEqual(cmp.RiskDrift, want) {
		t.Errorf("Expected drift %v. Got: %v", want, cmp.RiskDrift)
	}
	if cmp.MaxRiskDrift != 80 {
		t.Errorf("Expected max drift 80. Got: %v", cmp.MaxRiskDrift)
	}
}

func TestCompare_NilGraph(t *testing.T) {
	cfg := heuristics.DefaultDetectorConfig()
	ev := NewEvaluator(nil, "exp-nil", cfg, cfg)

	_, err := ev.Compare(context.Background(), nil)
	if !errors.Is(err, heuristics.ErrNilGraph) {
		t.Errorf("Expected nil graph error. Got: %v", err)
	}
}

func TestDriftReport_RequiresPool(t *testing.T) {
	cfg := heuristics.DefaultDetectorConfig()
	ev := NewEvaluator(nil, "exp-nopool", cfg, cfg)

	_, _, _, err := ev.DriftReport(context.Background())
	if !errors.Is(err, ErrNoPool) {
		t.Errorf("Expected ErrNoPool. Got: %v", err)
	}
}
