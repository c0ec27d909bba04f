package graph

// Centrality measures used by the disruption planner's network statistics.
//
// Betweenness follows Brandes' accumulation with pivot sampling: BFS from
// k pivots instead of all n sources, raw sums scaled by n/k and normalized
// by (n-1)(n-2). Pivots are taken at an even stride over the sorted node
// list so repeated runs rank the same nodes.

// BetweennessCentrality returns the sampled betweenness score per node on
// the directed graph. k caps the pivot count; k <= 0 or k >= n means exact.
func (g *TransactionGraph) BetweennessCentrality(k int) map[string]float64 {
	nodes := g.Nodes()
	n := len(nodes)
	bc := make(map[string]float64, n)
	for _, v := range nodes {
		bc[v] = 0
	}
	if n < 3 {
		return bc
	}
	if k <= 0 || k > n {
		k = n
	}

	pivots := make([]string, 0, k)
	for i := 0; i < k; i++ {
		pivots = append(pivots, nodes[i*n/k])
	}

	// Reused per-pivot state.
	sigma := make(map[string]float64, n)
	dist := make(map[string]int, n)
	delta := make(map[string]float64, n)
	preds := make(map[string][]string, n)

	for _, s := range pivots {
		stack := make([]string, 0, n)
		queue := []string{s}
		for _, v := range nodes {
			sigma[v] = 0
			dist[v] = -1
			delta[v] = 0
			preds[v] = preds[v][:0]
		}
		sigma[s] = 1
		dist[s] = 0

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range g.Successors(v) {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				bc[w] += delta[w]
			}
		}
	}

	scale := float64(n) / float64(k) / (float64(n-1) * float64(n-2))
	for v := range bc {
		bc[v] *= scale
	}
	return bc
}

// DegreeCentrality returns (in_degree + out_degree) / (n-1) per node.
func (g *TransactionGraph) DegreeCentrality() map[string]float64 {
	n := len(g.nodes)
	out := make(map[string]float64, n)
	if n < 2 {
		for id := range g.nodes {
			out[id] = 0
		}
		return out
	}
	for id := range g.nodes {
		out[id] = float64(g.Degree(id)) / float64(n-1)
	}
	return out
}
