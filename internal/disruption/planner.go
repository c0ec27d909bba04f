package disruption

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/rawblock/muling-engine/internal/graph"
	"github.com/rawblock/muling-engine/pkg/models"
)

// ErrNilGraph is returned when planning is invoked without a graph.
var ErrNilGraph = errors.New("planner: nil transaction graph")

// DisruptionPlanner computes removal strategies for one analysis run. The
// graph is read-only input; every simulation mutates a private subgraph copy.
type DisruptionPlanner struct {
	cfg       PlannerConfig
	g         *graph.TransactionGraph
	rings     []models.Ring
	scores    map[string]float64
	estimates []models.PartitionEstimate

	diags []models.Diagnostic
}

// NewPlanner builds a planner over one graph and ring list. scores maps
// account ids to externally fused suspicion scores (0-100) and may be nil.
// estimates carries optional per-ring partition splits and may be nil.
func NewPlanner(g *graph.TransactionGraph, rings []models.Ring, scores map[string]float64,
	estimates []models.PartitionEstimate, cfg PlannerConfig) *DisruptionPlanner {
	return &DisruptionPlanner{cfg: cfg, g: g, rings: rings, scores: scores, estimates: estimates}
}

// Run computes network statistics once, then simulates removals on the top
// rings by risk score. A nil graph is the only fatal input; a failing ring
// is skipped with a diagnostic.
func (p *DisruptionPlanner) Run() (*models.DisruptionPlan, error) {
	if p.g == nil {
		return nil, ErrNilGraph
	}
	p.diags = nil

	log.Printf("[DisruptionPlanner] Planning over %d accounts, %d rings",
		p.g.NodeCount(), len(p.rings))

	stats := p.networkStats()

	ranked := append([]models.Ring(nil), p.rings...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RiskScore > ranked[j].RiskScore
	})
	if len(ranked) > p.cfg.TopRings {
		ranked = ranked[:p.cfg.TopRings]
	}

	strategies := make([]models.DisruptionStrategy, 0, len(ranked))
	for _, ring := range ranked {
		p.guardRing(ring.RingID, func() {
			strategies = append(strategies, p.analyzeRing(ring))
		})
	}

	summary := p.summarize(strategies)
	log.Printf("[DisruptionPlanner] Planned %d strategies, %d unique critical accounts",
		len(strategies), summary.UniqueCriticalNodes)

	return &models.DisruptionPlan{
		NetworkStats:  stats,
		Strategies:    strategies,
		GlobalSummary: summary,
		Diagnostics:   append([]models.Diagnostic(nil), p.diags...),
	}, nil
}

// guardRing isolates one ring's analysis. A panic becomes a diagnostic and
// the remaining rings still get strategies.
func (p *DisruptionPlanner) guardRing(ringID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[DisruptionPlanner] ring %s failed: %v", ringID, r)
			p.diags = append(p.diags, models.Diagnostic{
				Stage:  models.StageRingAnalysis,
				Unit:   ringID,
				Reason: fmt.Sprintf("unit failed: %v", r),
			})
		}
	}()
	fn()
}

// summarize folds the strategies into the global verdict. The average runs
// over every analyzed ring, degenerate ones included, so resilience reflects
// the whole slate rather than only the fragile rings.
func (p *DisruptionPlanner) summarize(strategies []models.DisruptionStrategy) models.GlobalSummary {
	critical := make(map[string]bool)
	total := 0.0
	for _, s := range strategies {
		for _, c := range s.CriticalNodes {
			critical[c.AccountID] = true
		}
		total += s.MaxDisruptionPct
	}

	avg := 0.0
	if len(strategies) > 0 {
		avg = total / float64(len(strategies))
	}

	list := make([]string, 0, len(critical))
	for id := range critical {
		list = append(list, id)
	}
	sort.Strings(list)

	return models.GlobalSummary{
		TotalRingsAnalyzed:     len(strategies),
		UniqueCriticalNodes:    len(list),
		CriticalNodeList:       list,
		AvgDisruptionPotential: round1(avg),
		NetworkResilience:      round1(100 - avg),
	}
}

// round1 keeps impact and resilience values at one decimal.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// round4 keeps centrality and density values at four decimals.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// clampPct bounds an impact score to [0, 100]. Removing an isolated member
// can lower the component count, so the raw sum can go negative.
func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
