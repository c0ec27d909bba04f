package disruption

import (
	"sort"

	"github.com/rawblock/muling-engine/internal/graph"
	"github.com/rawblock/muling-engine/pkg/models"
)

// networkStats computes the run-level descriptive statistics. Betweenness is
// sampled so large graphs stay tractable; closeness reuses the degree ranking
// because the exact computation is quadratic and the ranking is only context.
func (p *DisruptionPlanner) networkStats() models.NetworkStats {
	n := p.g.NodeCount()

	k := min(p.cfg.BetweennessSample, n)
	betweenness := p.g.BetweennessCentrality(k)
	degree := p.g.DegreeCentrality()

	topBetweenness := topScores(betweenness, 10)
	topDegree := topScores(degree, 10)
	topCloseness := append([]models.CentralityScore(nil), topDegree...)

	und := graph.UndirectedView(p.g)
	components, sizes := und.Components()
	largest := 0
	if len(sizes) > 0 {
		largest = sizes[0]
	}
	articulation := und.ArticulationPoints()

	return models.NetworkStats{
		TotalNodes:             n,
		TotalEdges:             p.g.EdgeCount(),
		ConnectedComponents:    components,
		LargestComponentSize:   largest,
		Density:                round4(p.g.Density()),
		TopBetweenness:         topBetweenness,
		TopDegreeCentrality:    topDegree,
		TopCloseness:           topCloseness,
		ArticulationPoints:     articulation[:min(len(articulation), 20)],
		ArticulationPointCount: len(articulation),
	}
}

// topScores ranks a centrality map by score descending, account id ascending
// on ties, then rounds the surviving entries to four decimals.
func topScores(scores map[string]float64, limit int) []models.CentralityScore {
	out := make([]models.CentralityScore, 0, len(scores))
	for id, s := range scores {
		out = append(out, models.CentralityScore{AccountID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].AccountID < out[j].AccountID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Score = round4(out[i].Score)
	}
	return out
}
