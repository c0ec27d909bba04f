package graph

import "sort"

// StronglyConnectedComponents returns Tarjan's SCC decomposition of the
// directed graph. Members of each component are sorted and the component
// list is ordered by smallest member, so cycle search sees a stable order.
func (g *TransactionGraph) StronglyConnectedComponents() [][]string {
	index := 0
	indices := make(map[string]int, len(g.nodes))
	low := make(map[string]int, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	stack := make([]string, 0, len(g.nodes))
	var comps [][]string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		low[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.Successors(v) {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] && indices[w] < low[v] {
				low[v] = indices[w]
			}
		}

		if low[v] == indices[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Strings(comp)
			comps = append(comps, comp)
		}
	}

	for _, v := range g.Nodes() {
		if _, seen := indices[v]; !seen {
			strongConnect(v)
		}
	}

	sort.Slice(comps, func(i, j int) bool { return comps[i][0] < comps[j][0] })
	return comps
}
