package disruption

import (
	"sort"

	"github.com/rawblock/muling-engine/internal/graph"
	"github.com/rawblock/muling-engine/pkg/models"
)

// Ring Disruption Analysis
//
// For each ring the planner builds an undirected subgraph restricted to the
// members, then measures what single-node removal does to it:
//  1. Fragmentation: how many new components the removal creates.
//  2. Edge loss: the share of the ring's internal edges severed.
//  3. Degree: how central the member was inside the ring.
// Members whose impact clears the configured threshold become critical
// nodes; rings where nobody clears it still surface their top three, so an
// investigator always has a freeze target for any ring with 2+ members.

// analyzeRing simulates removals for one ring. Rings with fewer than two
// members get the neutral strategy: nothing to fragment, full resilience.
func (p *DisruptionPlanner) analyzeRing(ring models.Ring) models.DisruptionStrategy {
	members := ring.MemberAccounts
	if len(members) < 2 {
		return models.DisruptionStrategy{
			RingID:             ring.RingID,
			PatternType:        ring.PatternType,
			RiskScore:          ring.RiskScore,
			Members:            append([]string(nil), members...),
			MemberCount:        len(members),
			CriticalNodes:      []models.CriticalNode{},
			MaxDisruptionPct:   0,
			ResilienceScore:    100,
			RemovalSimulations: []models.RemovalSimulation{},
			OptimalPairRemoval: models.PairRemoval{Nodes: []string{}},
		}
	}

	sub := p.ringSubgraph(members)
	origComponents, _ := sub.Components()
	origEdges := sub.EdgeCount()

	sims := make([]models.RemovalSimulation, 0, len(members))
	for _, member := range members {
		sims = append(sims, p.simulateRemoval(sub, member, len(members), origComponents, origEdges))
	}
	sort.SliceStable(sims, func(i, j int) bool {
		return sims[i].ImpactScore > sims[j].ImpactScore
	})

	maxDisruption := sims[0].ImpactScore

	return models.DisruptionStrategy{
		RingID:             ring.RingID,
		PatternType:        ring.PatternType,
		RiskScore:          ring.RiskScore,
		Members:            append([]string(nil), members...),
		MemberCount:        len(members),
		SubgraphEdges:      origEdges,
		CriticalNodes:      p.criticalNodes(sims),
		MaxDisruptionPct:   round1(maxDisruption),
		ResilienceScore:    round1(100 - maxDisruption),
		RemovalSimulations: sims,
		OptimalPairRemoval: p.findOptimalPair(sub, members, origComponents, origEdges),
		QuantumOverlay:     p.partitionOverlay(ring.RingID, members),
	}
}

// ringSubgraph projects the members onto an undirected graph. Edge weight is
// total_amount summed over both directions; members with no flow to another
// member stay as isolated nodes so they still count in component math.
func (p *DisruptionPlanner) ringSubgraph(members []string) *graph.Undirected {
	sub := graph.NewUndirected()
	for i, u := range members {
		for _, v := range members[i+1:] {
			if u == v {
				continue
			}
			weight := 0.0
			if e, ok := p.g.Edge(u, v); ok {
				weight += e.TotalAmount
			}
			if e, ok := p.g.Edge(v, u); ok {
				weight += e.TotalAmount
			}
			if weight > 0 {
				sub.AddEdge(u, v, weight)
			}
		}
	}
	for _, m := range members {
		sub.AddNode(m)
	}
	return sub
}

// simulateRemoval deletes one member on a private copy and scores the damage.
func (p *DisruptionPlanner) simulateRemoval(sub *graph.Undirected, node string,
	memberCount, origComponents, origEdges int) models.RemovalSimulation {
	degree := sub.Degree(node)

	test := sub.Copy()
	test.RemoveNode(node)
	newComponents, componentSizes := test.Components()

	denom := float64(max(memberCount-1, 1))
	fragmentation := float64(newComponents-origComponents) / denom * 50
	edgeLoss := float64(degree) / float64(max(origEdges, 1)) * 30
	degreeImpact := float64(degree) / denom * 20
	impact := clampPct(fragmentation + edgeLoss + degreeImpact)

	return models.RemovalSimulation{
		RemovedNode:         node,
		EdgesLost:           degree,
		NewComponents:       newComponents,
		ComponentSizes:      componentSizes,
		ImpactScore:         round1(impact),
		IsArticulationPoint: newComponents > origComponents,
		SuspicionScore:      p.scores[node],
	}
}

// criticalNodes keeps every simulation above the impact threshold; when none
// clear it, the top three stand in.
func (p *DisruptionPlanner) criticalNodes(sims []models.RemovalSimulation) []models.CriticalNode {
	out := make([]models.CriticalNode, 0, 3)
	for _, sim := range sims {
		if sim.ImpactScore > p.cfg.CriticalImpact {
			out = append(out, criticalFromSim(sim))
		}
	}
	if len(out) == 0 {
		for _, sim := range sims[:min(len(sims), 3)] {
			out = append(out, criticalFromSim(sim))
		}
	}
	return out
}

func criticalFromSim(sim models.RemovalSimulation) models.CriticalNode {
	return models.CriticalNode{
		AccountID:           sim.RemovedNode,
		ImpactScore:         sim.ImpactScore,
		FragmentsCreated:    sim.NewComponents,
		EdgesSevered:        sim.EdgesLost,
		SuspicionScore:      sim.SuspicionScore,
		IsArticulationPoint: sim.IsArticulationPoint,
	}
}
