package disruption

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/rawblock/muling-engine/internal/graph"
	"github.com/rawblock/muling-engine/pkg/models"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

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

func plan(t *testing.T, p *DisruptionPlanner) *models.DisruptionPlan {
	t.Helper()
	result, err := p.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return result
}

// pathGraph is the five-account chain ACC_A -> ... -> ACC_E. Its undirected
// projection is a path, so every interior account is an articulation point.
func pathGraph(t *testing.T) *graph.TransactionGraph {
	t.Helper()
	return buildGraph(t,
		tx("ACC_A", "ACC_B", 2000, 0),
		tx("ACC_B", "ACC_C", 2000, time.Hour),
		tx("ACC_C", "ACC_D", 2000, 2*time.Hour),
		tx("ACC_D", "ACC_E", 2000, 3*time.Hour),
	)
}

func pathRing() models.Ring {
	return models.Ring{
		RingID:         "RING_001",
		PatternType:    models.PatternShellNetwork,
		MemberAccounts: []string{"ACC_A", "ACC_B", "ACC_C", "ACC_D", "ACC_E"},
		RiskScore:      80,
	}
}

func TestAnalyzeRing_PathArticulation(t *testing.T) {
	// Removing ACC_C from the path splits it into two components. Interior
	// accounts share the top impact: 12.5 fragmentation + 15 edge loss +
	// 10 degree = 37.5.
	p := NewPlanner(pathGraph(t), []models.Ring{pathRing()}, nil, nil, DefaultPlannerConfig())

	result := plan(t, p)

	if len(result.Strategies) != 1 {
		t.Fatalf("Expected one strategy. Got: %d", len(result.Strategies))
	}
	s := result.Strategies[0]
	if s.MemberCount != 5 || s.SubgraphEdges != 4 {
		t.Errorf("Expected 5 members over 4 subgraph edges. Got: %d members, %d edges",
			s.MemberCount, s.SubgraphEdges)
	}

	var c *models.RemovalSimulation
	for i := range s.RemovalSimulations {
		if s.RemovalSimulations[i].RemovedNode == "ACC_C" {
			c = &s.RemovalSimulations[i]
		}
	}
	if c == nil {
		t.Fatal("Expected a removal simulation for ACC_C")
	}
	if c.NewComponents != 2 {
		t.Errorf("Expected removing ACC_C to split the ring into 2 components. Got: %d", c.NewComponents)
	}
	if !c.IsArticulationPoint {
		t.Error("Expected ACC_C to be an articulation point")
	}
	if c.ImpactScore != s.RemovalSimulations[0].ImpactScore {
		t.Errorf("Expected ACC_C to share the top impact %.1f. Got: %.1f",
			s.RemovalSimulations[0].ImpactScore, c.ImpactScore)
	}
	if s.MaxDisruptionPct != 37.5 {
		t.Errorf("Expected max disruption 37.5. Got: %.1f", s.MaxDisruptionPct)
	}
	if s.ResilienceScore != 62.5 {
		t.Errorf("Expected resilience 62.5. Got: %.1f", s.ResilienceScore)
	}

	// All three interior accounts clear the critical threshold.
	if len(s.CriticalNodes) != 3 {
		t.Fatalf("Expected 3 critical nodes. Got: %d (%+v)", len(s.CriticalNodes), s.CriticalNodes)
	}
	for _, cn := range s.CriticalNodes {
		if cn.ImpactScore <= 20 {
			t.Errorf("Expected critical node %s above threshold. Got: %.1f", cn.AccountID, cn.ImpactScore)
		}
	}
}

func TestFindOptimalPair_PathSplitsThreeWays(t *testing.T) {
	// Removing ACC_B and ACC_D strands ACC_A, ACC_C and ACC_E separately:
	// 2/3*60 fragmentation + 4/4*40 edge loss = 80.
	p := NewPlanner(pathGraph(t), []models.Ring{pathRing()}, nil, nil, DefaultPlannerConfig())

	result := plan(t, p)

	pair := result.Strategies[0].OptimalPairRemoval
	if !reflect.DeepEqual(pair.Nodes, []string{"ACC_B", "ACC_D"}) {
		t.Fatalf("Expected pair [ACC_B ACC_D]. Got: %v", pair.Nodes)
	}
	if pair.CombinedImpact != 80.0 {
		t.Errorf("Expected combined impact 80.0. Got: %.1f", pair.CombinedImpact)
	}
	if pair.NewComponents != 3 {
		t.Errorf("Expected 3 components after pair removal. Got: %d", pair.NewComponents)
	}
	if pair.EdgesRemaining != 0 {
		t.Errorf("Expected no edges to survive. Got: %d", pair.EdgesRemaining)
	}
}

func TestRun_RanksAndCapsRings(t *testing.T) {
	g := pathGraph(t)
	rings := []models.Ring{
		{RingID: "RING_001", PatternType: models.PatternCycle, MemberAccounts: []string{"ACC_A", "ACC_B"}, RiskScore: 70},
		{RingID: "RING_002", PatternType: models.PatternCycle, MemberAccounts: []string{"ACC_B", "ACC_C"}, RiskScore: 90},
		{RingID: "RING_003", PatternType: models.PatternCycle, MemberAccounts: []string{"ACC_C", "ACC_D"}, RiskScore: 80},
	}
	cfg := DefaultPlannerConfig()
	cfg.TopRings = 2

	result := plan(t, NewPlanner(g, rings, nil, nil, cfg))

	if len(result.Strategies) != 2 {
		t.Fatalf("Expected the cap to keep 2 strategies. Got: %d", len(result.Strategies))
	}
	if result.Strategies[0].RingID != "RING_002" || result.Strategies[1].RingID != "RING_003" {
		t.Errorf("Expected highest-risk rings RING_002, RING_003. Got: %s, %s",
			result.Strategies[0].RingID, result.Strategies[1].RingID)
	}
	if result.GlobalSummary.TotalRingsAnalyzed != 2 {
		t.Errorf("Expected 2 rings analyzed. Got: %d", result.GlobalSummary.TotalRingsAnalyzed)
	}
}

func TestRun_DegenerateRingIsNeutral(t *testing.T) {
	g := pathGraph(t)
	rings := []models.Ring{
		{RingID: "RING_001", PatternType: models.PatternCycle, MemberAccounts: []string{"ACC_A"}, RiskScore: 60},
	}

	result := plan(t, NewPlanner(g, rings, nil, nil, DefaultPlannerConfig()))

	s := result.Strategies[0]
	if s.MaxDisruptionPct != 0 || s.ResilienceScore != 100 {
		t.Errorf("Expected neutral strategy (0 disruption, 100 resilience). Got: %.1f, %.1f",
			s.MaxDisruptionPct, s.ResilienceScore)
	}
	if len(s.CriticalNodes) != 0 || len(s.RemovalSimulations) != 0 {
		t.Errorf("Expected no critical nodes or simulations. Got: %d, %d",
			len(s.CriticalNodes), len(s.RemovalSimulations))
	}
	if result.GlobalSummary.NetworkResilience != 100 {
		t.Errorf("Expected network resilience 100. Got: %.1f", result.GlobalSummary.NetworkResilience)
	}
}

func TestGlobalSummary_UniqueCriticalUnion(t *testing.T) {
	// Triangle ring: every member scores 20 edge loss + 20 degree = 40.
	// Two-member ring: both score 30 edge loss + 20 degree = 50.
	// ACC_B and ACC_C are critical in both rings; the union has 3 accounts.
	g := buildGraph(t,
		tx("ACC_A", "ACC_B", 1000, 0),
		tx("ACC_B", "ACC_C", 1000, time.Hour),
		tx("ACC_C", "ACC_A", 1000, 2*time.Hour),
	)
	rings := []models.Ring{
		{RingID: "RING_001", PatternType: models.PatternCycle, MemberAccounts: []string{"ACC_A", "ACC_B", "ACC_C"}, RiskScore: 90},
		{RingID: "RING_002", PatternType: models.PatternFanIn, MemberAccounts: []string{"ACC_B", "ACC_C"}, RiskScore: 70},
	}

	result := plan(t, NewPlanner(g, rings, nil, nil, DefaultPlannerConfig()))

	union := make(map[string]bool)
	for _, s := range result.Strategies {
		for _, cn := range s.CriticalNodes {
			union[cn.AccountID] = true
		}
	}
	gs := result.GlobalSummary
	if gs.UniqueCriticalNodes != len(union) {
		t.Errorf("Expected unique critical count %d. Got: %d", len(union), gs.UniqueCriticalNodes)
	}
	if !reflect.DeepEqual(gs.CriticalNodeList, []string{"ACC_A", "ACC_B", "ACC_C"}) {
		t.Errorf("Expected sorted critical list [ACC_A ACC_B ACC_C]. Got: %v", gs.CriticalNodeList)
	}
	if gs.AvgDisruptionPotential != 45.0 {
		t.Errorf("Expected average disruption 45.0. Got: %.1f", gs.AvgDisruptionPotential)
	}
	if gs.NetworkResilience != 55.0 {
		t.Errorf("Expected network resilience 55.0. Got: %.1f", gs.NetworkResilience)
	}
}

func TestPartitionOverlay_AgreementWithSuspicionScores(t *testing.T) {
	g := buildGraph(t,
		tx("ACC_A", "ACC_B", 1000, 0),
		tx("ACC_B", "ACC_C", 1000, time.Hour),
		tx("ACC_C", "ACC_A", 1000, 2*time.Hour),
	)
	rings := []models.Ring{
		{RingID: "RING_001", PatternType: models.PatternCycle, MemberAccounts: []string{"ACC_A", "ACC_B", "ACC_C"}, RiskScore: 90},
	}
	scores := map[string]float64{"ACC_A": 80, "ACC_B": 30, "ACC_C": 60}
	estimates := []models.PartitionEstimate{
		{RingID: "RING_001", SuspiciousSet: []string{"ACC_A", "ACC_B"}, PartitionScore: 0.8},
	}

	result := plan(t, NewPlanner(g, rings, scores, estimates, DefaultPlannerConfig()))

	overlay := result.Strategies[0].QuantumOverlay
	if !overlay.Available {
		t.Fatal("Expected the overlay to be available")
	}
	if !reflect.DeepEqual(overlay.SuspiciousPartition, []string{"ACC_A", "ACC_B"}) {
		t.Errorf("Expected suspicious partition [ACC_A ACC_B]. Got: %v", overlay.SuspiciousPartition)
	}
	if !reflect.DeepEqual(overlay.CleanPartition, []string{"ACC_C"}) {
		t.Errorf("Expected clean partition [ACC_C]. Got: %v", overlay.CleanPartition)
	}
	// Classical flags {ACC_A, ACC_C}; overlap {ACC_A}; union of 3 -> 33.3%.
	if overlay.QuantumAgreement != 33.3 {
		t.Errorf("Expected agreement 33.3. Got: %.1f", overlay.QuantumAgreement)
	}
}

func TestPartitionOverlay_EdgeCases(t *testing.T) {
	g := pathGraph(t)
	ring := pathRing()

	// No estimate for this ring.
	p := NewPlanner(g, []models.Ring{ring}, nil, nil, DefaultPlannerConfig())
	if got := plan(t, p).Strategies[0].QuantumOverlay; got.Available {
		t.Error("Expected the overlay to be unavailable without an estimate")
	}

	// Empty suspicious set never agrees.
	p = NewPlanner(g, []models.Ring{ring}, nil,
		[]models.PartitionEstimate{{RingID: ring.RingID, SuspiciousSet: []string{}}}, DefaultPlannerConfig())
	if got := plan(t, p).Strategies[0].QuantumOverlay; !got.Available || got.QuantumAgreement != 0 {
		t.Errorf("Expected available overlay with agreement 0. Got: %+v", got)
	}

	// No classically flagged member reads as 50.
	p = NewPlanner(g, []models.Ring{ring}, map[string]float64{"ACC_A": 10},
		[]models.PartitionEstimate{{RingID: ring.RingID, SuspiciousSet: []string{"ACC_A"}}}, DefaultPlannerConfig())
	if got := plan(t, p).Strategies[0].QuantumOverlay; got.QuantumAgreement != 50 {
		t.Errorf("Expected agreement 50 without classical flags. Got: %.1f", got.QuantumAgreement)
	}
}

func TestNetworkStats_PathGraph(t *testing.T) {
	p := NewPlanner(pathGraph(t), nil, nil, nil, DefaultPlannerConfig())

	result := plan(t, p)

	stats := result.NetworkStats
	if stats.TotalNodes != 5 || stats.TotalEdges != 4 {
		t.Errorf("Expected 5 nodes, 4 edges. Got: %d, %d", stats.TotalNodes, stats.TotalEdges)
	}
	if stats.ConnectedComponents != 1 || stats.LargestComponentSize != 5 {
		t.Errorf("Expected one component of 5. Got: %d components, largest %d",
			stats.ConnectedComponents, stats.LargestComponentSize)
	}
	if stats.Density != 0.2 {
		t.Errorf("Expected density 0.2. Got: %v", stats.Density)
	}
	if !reflect.DeepEqual(stats.ArticulationPoints, []string{"ACC_B", "ACC_C", "ACC_D"}) {
		t.Errorf("Expected articulation points [ACC_B ACC_C ACC_D]. Got: %v", stats.ArticulationPoints)
	}
	if stats.ArticulationPointCount != 3 {
		t.Errorf("Expected 3 articulation points. Got: %d", stats.ArticulationPointCount)
	}

	// The middle of the chain carries the most shortest paths: 4 of the 12
	// ordered pairs route through ACC_C.
	if len(stats.TopBetweenness) == 0 || stats.TopBetweenness[0].AccountID != "ACC_C" {
		t.Fatalf("Expected ACC_C to top betweenness. Got: %+v", stats.TopBetweenness)
	}
	if stats.TopBetweenness[0].Score != 0.3333 {
		t.Errorf("Expected betweenness 0.3333 for ACC_C. Got: %v", stats.TopBetweenness[0].Score)
	}
	if stats.TopDegreeCentrality[0].Score != 0.5 {
		t.Errorf("Expected top degree centrality 0.5. Got: %v", stats.TopDegreeCentrality[0].Score)
	}
	if !reflect.DeepEqual(stats.TopCloseness, stats.TopDegreeCentrality) {
		t.Error("Expected closeness ranking to mirror the degree ranking")
	}
}

func TestRun_NilGraph(t *testing.T) {
	_, err := NewPlanner(nil, nil, nil, nil, DefaultPlannerConfig()).Run()
	if !errors.Is(err, ErrNilGraph) {
		t.Errorf("Expected ErrNilGraph. Got: %v", err)
	}
}

func TestRun_Deterministic(t *testing.T) {
	g := buildGraph(t,
		tx("ACC_A", "ACC_B", 1000, 0),
		tx("ACC_B", "ACC_C", 1000, time.Hour),
		tx("ACC_C", "ACC_A", 1000, 2*time.Hour),
		tx("ACC_C", "ACC_D", 4000, 3*time.Hour),
	)
	rings := []models.Ring{
		{RingID: "RING_001", PatternType: models.PatternCycle, MemberAccounts: []string{"ACC_A", "ACC_B", "ACC_C"}, RiskScore: 90},
		{RingID: "RING_002", PatternType: models.PatternShellNetwork, MemberAccounts: []string{"ACC_C", "ACC_D"}, RiskScore: 90},
	}
	scores := map[string]float64{"ACC_A": 75, "ACC_B": 20, "ACC_C": 90, "ACC_D": 40}

	first := plan(t, NewPlanner(g, rings, scores, nil, DefaultPlannerConfig()))
	second := plan(t, NewPlanner(g, rings, scores, nil, DefaultPlannerConfig()))

	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical plans from identical inputs")
	}
}
