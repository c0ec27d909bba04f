package disruption

import (
	"sort"

	"github.com/rawblock/muling-engine/internal/graph"
	"github.com/rawblock/muling-engine/pkg/models"
)

// findOptimalPair tries unordered member pairs and keeps the one whose joint
// removal fragments the ring most. Small rings are searched exhaustively;
// above the candidate cap only the three highest-degree members are paired,
// which avoids the quadratic blowup on wide fan rings.
func (p *DisruptionPlanner) findOptimalPair(sub *graph.Undirected, members []string,
	origComponents, origEdges int) models.PairRemoval {
	candidates := members
	if len(members) > p.cfg.PairCandidateCap {
		ranked := append([]string(nil), members...)
		sort.SliceStable(ranked, func(i, j int) bool {
			return sub.Degree(ranked[i]) > sub.Degree(ranked[j])
		})
		candidates = ranked[:3]
	}

	best := models.PairRemoval{Nodes: []string{}}
	bestImpact := 0.0

	for i, a := range candidates {
		for _, b := range candidates[i+1:] {
			test := sub.Copy()
			test.RemoveNode(a)
			test.RemoveNode(b)
			newComponents, _ := test.Components()
			remaining := test.EdgeCount()

			fragmentation := float64(newComponents-origComponents) / float64(max(len(members)-2, 1)) * 60
			edgeLoss := float64(origEdges-remaining) / float64(max(origEdges, 1)) * 40
			impact := clampPct(fragmentation + edgeLoss)

			if impact > bestImpact {
				bestImpact = impact
				best = models.PairRemoval{
					Nodes:          []string{a, b},
					CombinedImpact: round1(impact),
					NewComponents:  newComponents,
					EdgesRemaining: remaining,
				}
			}
		}
	}
	return best
}
