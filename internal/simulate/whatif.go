// Package simulate answers "what happens if we freeze these accounts":
// before/after network states, per-ring damage, residual risk, flow
// disruption and cascade effects, rolled into one graded result.
package simulate

import (
	"errors"
	"log"
	"math"
	"sort"

	"github.com/rawblock/muling-engine/internal/graph"
	"github.com/rawblock/muling-engine/pkg/models"
)

var (
	// ErrNilGraph is returned when the simulator is built without a graph.
	ErrNilGraph = errors.New("simulate: nil transaction graph")
	// ErrNoNodes is returned when the removal list is empty.
	ErrNoNodes = errors.New("simulate: no accounts specified for removal")
)

// WhatIfSimulator replays account removals against one analysis run. The
// input graph stays untouched; every simulation works on a private copy.
type WhatIfSimulator struct {
	g      *graph.TransactionGraph
	rings  []models.Ring
	scores map[string]float64
}

// NewWhatIfSimulator builds a simulator over one graph, its detected rings
// and the suspicion map. scores may be nil.
func NewWhatIfSimulator(g *graph.TransactionGraph, rings []models.Ring, scores map[string]float64) *WhatIfSimulator {
	return &WhatIfSimulator{g: g, rings: rings, scores: scores}
}

// Simulate removes the listed accounts and reports the impact. Unknown
// accounts are reported back rather than failing the run.
func (s *WhatIfSimulator) Simulate(nodesToRemove []string) (*models.SimulationResult, error) {
	if s.g == nil {
		return nil, ErrNilGraph
	}
	if len(nodesToRemove) == 0 {
		return nil, ErrNoNodes
	}

	valid := make([]string, 0, len(nodesToRemove))
	invalid := make([]string, 0)
	for _, id := range nodesToRemove {
		if s.g.HasNode(id) {
			valid = append(valid, id)
		} else {
			invalid = append(invalid, id)
		}
	}

	log.Printf("[WhatIfSimulator] Removing %d accounts (%d unknown)", len(valid), len(invalid))

	before := networkState(s.g)

	modified := s.g.Copy()
	for _, id := range valid {
		modified.RemoveNode(id)
	}
	after := networkState(modified)

	removed := make(map[string]bool, len(valid))
	for _, id := range valid {
		removed[id] = true
	}

	ringImpacts := s.ringImpacts(removed)

	return &models.SimulationResult{
		NodesRemoved:   valid,
		InvalidNodes:   invalid,
		Before:         before,
		After:          after,
		Delta:          computeDelta(before, after),
		RingImpacts:    ringImpacts,
		AccountImpacts: s.accountImpacts(valid, removed),
		FlowImpact:     s.flowImpact(removed),
		CascadeEffects: s.cascadeEffects(valid, removed),
		Effectiveness:  effectiveness(before, after, ringImpacts),
	}, nil
}

// networkState snapshots the metrics compared across the removal.
func networkState(g *graph.TransactionGraph) models.NetworkState {
	und := graph.UndirectedView(g)
	components, sizes := und.Components()
	largest := 0
	if len(sizes) > 0 {
		largest = sizes[0]
	}

	degreeSum, maxDegree := 0, 0
	for _, id := range g.Nodes() {
		d := g.Degree(id)
		degreeSum += d
		if d > maxDegree {
			maxDegree = d
		}
	}
	avgDegree := float64(degreeSum) / float64(max(g.NodeCount(), 1))

	return models.NetworkState{
		Nodes:            g.NodeCount(),
		Edges:            g.EdgeCount(),
		Components:       components,
		LargestComponent: largest,
		Density:          round6(g.Density()),
		AvgDegree:        round2(avgDegree),
		MaxDegree:        maxDegree,
		TotalFlow:        round2(g.TotalFlow()),
	}
}

// computeDelta compares the numeric state metrics pairwise. change_pct is
// zero when the before value is zero rather than dividing by it.
func computeDelta(before, after models.NetworkState) map[string]models.MetricDelta {
	pairs := map[string][2]float64{
		"nodes":             {float64(before.Nodes), float64(after.Nodes)},
		"edges":             {float64(before.Edges), float64(after.Edges)},
		"components":        {float64(before.Components), float64(after.Components)},
		"largest_component": {float64(before.LargestComponent), float64(after.LargestComponent)},
		"density":           {before.Density, after.Density},
		"avg_degree":        {before.AvgDegree, after.AvgDegree},
		"total_flow":        {before.TotalFlow, after.TotalFlow},
	}

	delta := make(map[string]models.MetricDelta, len(pairs))
	for key, p := range pairs {
		b, a := p[0], p[1]
		change := a - b
		pct := 0.0
		if b != 0 {
			pct = change / b * 100
		}
		delta[key] = models.MetricDelta{
			Before:    b,
			After:     a,
			Change:    round4(change),
			ChangePct: round1(pct),
		}
	}
	return delta
}

// ringImpacts classifies each known ring by how much membership it lost.
// Survivor connectivity is checked on the original graph (either direction
// counts), so a ring can be FRAGMENTED even when the wider network holds.
func (s *WhatIfSimulator) ringImpacts(removed map[string]bool) []models.RingImpact {
	impacts := make([]models.RingImpact, 0, len(s.rings))

	for _, ring := range s.rings {
		members := ring.MemberAccounts
		removedMembers := make([]string, 0)
		surviving := make([]string, 0, len(members))
		for _, m := range members {
			if removed[m] {
				removedMembers = append(removedMembers, m)
			} else {
				surviving = append(surviving, m)
			}
		}

		if len(removedMembers) == 0 {
			impacts = append(impacts, models.RingImpact{
				RingID:           ring.RingID,
				PatternType:      ring.PatternType,
				Status:           models.RingIntact,
				OriginalSize:     len(members),
				SurvivingMembers: len(surviving),
				RemovedMembers:   []string{},
				DisruptionPct:    0,
				OriginalRisk:     ring.RiskScore,
			})
			continue
		}

		disruptionPct := float64(len(removedMembers)) / float64(len(members)) * 100
		var status string
		switch {
		case len(surviving) < 3:
			status = models.RingDestroyed
			disruptionPct = 100
		case float64(len(surviving)) < float64(len(members))*0.5:
			status = models.RingCriticallyDamaged
		default:
			status = models.RingWeakened
			if s.survivorComponents(surviving) > 1 {
				status = models.RingFragmented
			}
		}

		impacts = append(impacts, models.RingImpact{
			RingID:           ring.RingID,
			PatternType:      ring.PatternType,
			Status:           status,
			OriginalSize:     len(members),
			SurvivingMembers: len(surviving),
			RemovedMembers:   removedMembers,
			SurvivingList:    surviving,
			DisruptionPct:    round1(disruptionPct),
			OriginalRisk:     ring.RiskScore,
		})
	}

	sort.SliceStable(impacts, func(i, j int) bool {
		return impacts[i].DisruptionPct > impacts[j].DisruptionPct
	})
	return impacts
}

// survivorComponents counts components among survivors that still transact
// with each other. Survivors with no in-ring edge left do not join the
// subgraph, mirroring how ring cohesion is judged by remaining flow.
func (s *WhatIfSimulator) survivorComponents(surviving []string) int {
	sub := graph.NewUndirected()
	for i, u := range surviving {
		for _, v := range surviving[i+1:] {
			if u != v && (s.g.HasEdge(u, v) || s.g.HasEdge(v, u)) {
				sub.AddEdge(u, v, 1)
			}
		}
	}
	components, _ := sub.Components()
	return components
}

// accountImpacts splits the suspicion map into removed and surviving
// accounts and totals the risk on each side.
func (s *WhatIfSimulator) accountImpacts(valid []string, removed map[string]bool) models.AccountImpactSummary {
	ids := make([]string, 0, len(s.scores))
	for id := range s.scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	removedAccounts := make([]models.AccountImpact, 0)
	survivingAccounts := make([]models.AccountImpact, 0, len(ids))
	totalRemoved, totalRemaining := 0.0, 0.0

	for _, id := range ids {
		score := s.scores[id]
		if removed[id] {
			removedAccounts = append(removedAccounts, models.AccountImpact{
				AccountID:      id,
				SuspicionScore: score,
				Status:         models.AccountRemoved,
			})
			totalRemoved += score
			continue
		}
		connected := false
		for _, r := range valid {
			if s.g.HasEdge(id, r) || s.g.HasEdge(r, id) {
				connected = true
				break
			}
		}
		status := models.AccountUnaffected
		if connected {
			status = models.AccountIsolated
		}
		survivingAccounts = append(survivingAccounts, models.AccountImpact{
			AccountID:          id,
			SuspicionScore:     score,
			Status:             status,
			ConnectedToRemoved: connected,
		})
		totalRemaining += score
	}

	denom := totalRemoved + totalRemaining
	if denom < 1 {
		denom = 1
	}

	return models.AccountImpactSummary{
		Removed:            removedAccounts,
		Surviving:          survivingAccounts,
		TotalRiskRemoved:   round1(totalRemoved),
		TotalRiskRemaining: round1(totalRemaining),
		RiskReductionPct:   round1(totalRemoved / denom * 100),
	}
}

// flowImpact totals the volume and transaction count crossing removed nodes.
func (s *WhatIfSimulator) flowImpact(removed map[string]bool) models.FlowImpact {
	totalFlow, disruptedFlow := 0.0, 0.0
	totalTxs, disruptedTxs := 0, 0

	s.g.ForEachEdge(func(u, v string, e *graph.EdgeData) {
		totalFlow += e.TotalAmount
		totalTxs += e.TxCount
		if removed[u] || removed[v] {
			disruptedFlow += e.TotalAmount
			disruptedTxs += e.TxCount
		}
	})

	flowDenom := totalFlow
	if flowDenom < 1 {
		flowDenom = 1
	}

	return models.FlowImpact{
		TotalFlow:             round2(totalFlow),
		DisruptedFlow:         round2(disruptedFlow),
		FlowDisruptionPct:     round1(disruptedFlow / flowDenom * 100),
		TotalTransactions:     totalTxs,
		DisruptedTransactions: disruptedTxs,
		TxDisruptionPct:       round1(float64(disruptedTxs) / float64(max(totalTxs, 1)) * 100),
	}
}

// cascadeEffects lists the surviving accounts that lost the most
// counterparties to the removal, capped at the twenty most exposed.
func (s *WhatIfSimulator) cascadeEffects(valid []string, removed map[string]bool) []models.CascadeEffect {
	cascade := make([]models.CascadeEffect, 0)

	for _, node := range s.g.Nodes() {
		if removed[node] {
			continue
		}
		incoming, outgoing := 0, 0
		flowLost := 0.0
		for _, r := range valid {
			if e, ok := s.g.Edge(r, node); ok {
				incoming++
				flowLost += e.TotalAmount
			}
			if e, ok := s.g.Edge(node, r); ok {
				outgoing++
				flowLost += e.TotalAmount
			}
		}
		if incoming+outgoing == 0 {
			continue
		}
		score, flagged := s.scores[node]
		cascade = append(cascade, models.CascadeEffect{
			AccountID:       node,
			ConnectionsLost: incoming + outgoing,
			IncomingLost:    incoming,
			OutgoingLost:    outgoing,
			FlowDisrupted:   round2(flowLost),
			SuspicionScore:  score,
			IsSuspicious:    flagged,
		})
	}

	sort.SliceStable(cascade, func(i, j int) bool {
		return cascade[i].ConnectionsLost > cascade[j].ConnectionsLost
	})
	if len(cascade) > 20 {
		cascade = cascade[:20]
	}
	return cascade
}

// effectiveness grades the removal: edge disruption 30%, ring destruction
// 50%, fragmentation gain 20%.
func effectiveness(before, after models.NetworkState, ringImpacts []models.RingImpact) models.EffectivenessScore {
	edgeReduction := 1 - float64(after.Edges)/float64(max(before.Edges, 1))

	destroyed := 0
	for _, r := range ringImpacts {
		if r.Status == models.RingDestroyed || r.Status == models.RingCriticallyDamaged {
			destroyed++
		}
	}
	ringRate := float64(destroyed) / float64(max(len(ringImpacts), 1))

	fragIncrease := float64(after.Components-before.Components) / float64(max(before.Nodes, 1))

	score := edgeReduction*30 + ringRate*50 + fragIncrease*20
	score = math.Min(math.Max(score, 0), 100)

	grade := "F"
	switch {
	case score > 90:
		grade = "A+"
	case score > 80:
		grade = "A"
	case score > 70:
		grade = "B+"
	case score > 60:
		grade = "B"
	case score > 40:
		grade = "C"
	case score > 20:
		grade = "D"
	}

	return models.EffectivenessScore{
		Overall:               round1(score),
		EdgeDisruption:        round1(edgeReduction * 100),
		RingDestructionRate:   round1(ringRate * 100),
		FragmentationIncrease: round1(fragIncrease * 100),
		Grade:                 grade,
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

func round6(v float64) float64 { return math.Round(v*1000000) / 1000000 }
