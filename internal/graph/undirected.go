package graph

import "sort"

// Undirected is a weighted undirected simple graph. The disruption planner
// uses it for the full-network projection and for the per-ring member
// subgraphs it mutates during removal simulation.
type Undirected struct {
	adj       map[string]map[string]float64
	edgeCount int
}

// NewUndirected returns an empty undirected graph.
func NewUndirected() *Undirected {
	return &Undirected{adj: make(map[string]map[string]float64)}
}

// UndirectedView projects the directed graph onto an undirected one. Edge
// weight is the total_amount summed over both directions.
func UndirectedView(g *TransactionGraph) *Undirected {
	u := NewUndirected()
	for id := range g.nodes {
		u.AddNode(id)
	}
	for a, out := range g.succ {
		for b, e := range out {
			u.AddEdge(a, b, e.TotalAmount)
		}
	}
	return u
}

// AddNode ensures the node exists, with or without edges.
func (u *Undirected) AddNode(id string) {
	if _, ok := u.adj[id]; !ok {
		u.adj[id] = make(map[string]float64)
	}
}

// AddEdge adds or reinforces the edge between a and b. Self-loops are
// ignored; repeated calls accumulate weight without recounting the edge.
func (u *Undirected) AddEdge(a, b string, weight float64) {
	if a == b {
		return
	}
	u.AddNode(a)
	u.AddNode(b)
	if _, ok := u.adj[a][b]; !ok {
		u.edgeCount++
	}
	u.adj[a][b] += weight
	u.adj[b][a] = u.adj[a][b]
}

// HasNode reports whether the node exists.
func (u *Undirected) HasNode(id string) bool {
	_, ok := u.adj[id]
	return ok
}

// NodeCount returns the number of nodes.
func (u *Undirected) NodeCount() int { return len(u.adj) }

// EdgeCount returns the number of undirected edges.
func (u *Undirected) EdgeCount() int { return u.edgeCount }

// Degree returns the number of neighbors of id.
func (u *Undirected) Degree(id string) int { return len(u.adj[id]) }

// Nodes returns all node ids in sorted order.
func (u *Undirected) Nodes() []string {
	ids := make([]string, 0, len(u.adj))
	for id := range u.adj {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Neighbors returns the neighbors of id in sorted order.
func (u *Undirected) Neighbors(id string) []string {
	next := u.adj[id]
	ids := make([]string, 0, len(next))
	for n := range next {
		ids = append(ids, n)
	}
	sort.Strings(ids)
	return ids
}

// RemoveNode deletes the node and its incident edges.
func (u *Undirected) RemoveNode(id string) {
	next, ok := u.adj[id]
	if !ok {
		return
	}
	for n := range next {
		delete(u.adj[n], id)
		u.edgeCount--
	}
	delete(u.adj, id)
}

// Copy returns a deep copy for exclusive mutation.
func (u *Undirected) Copy() *Undirected {
	cp := NewUndirected()
	cp.edgeCount = u.edgeCount
	for id, next := range u.adj {
		m := make(map[string]float64, len(next))
		for n, w := range next {
			m[n] = w
		}
		cp.adj[id] = m
	}
	return cp
}

// Components returns the connected-component count and sizes in descending
// order, using union-find over the edge set.
func (u *Undirected) Components() (int, []int) {
	if len(u.adj) == 0 {
		return 0, nil
	}
	parent := make(map[string]string, len(u.adj))
	for id := range u.adj {
		parent[id] = id
	}
	var find func(string) string
	find = func(x string) string {
		for parent[x] != x {
			parent[x] = parent[parent[x]] // path halving
			x = parent[x]
		}
		return x
	}
	for a, next := range u.adj {
		for b := range next {
			ra, rb := find(a), find(b)
			if ra != rb {
				parent[ra] = rb
			}
		}
	}
	sizes := make(map[string]int)
	for id := range u.adj {
		sizes[find(id)]++
	}
	out := make([]int, 0, len(sizes))
	for _, s := range sizes {
		out = append(out, s)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return len(out), out
}

// ArticulationPoints returns the nodes whose removal increases the component
// count, sorted. Standard low-link computation rooted at each unvisited node.
func (u *Undirected) ArticulationPoints() []string {
	disc := make(map[string]int, len(u.adj))
	low := make(map[string]int, len(u.adj))
	isAP := make(map[string]bool)
	timer := 0

	var dfs func(v, parent string, root bool)
	dfs = func(v, parent string, root bool) {
		timer++
		disc[v] = timer
		low[v] = timer
		children := 0

		for _, w := range u.Neighbors(v) {
			if !root && w == parent {
				continue
			}
			if _, seen := disc[w]; seen {
				if disc[w] < low[v] {
					low[v] = disc[w]
				}
				continue
			}
			children++
			dfs(w, v, false)
			if low[w] < low[v] {
				low[v] = low[w]
			}
			if !root && low[w] >= disc[v] {
				isAP[v] = true
			}
		}
		if root && children > 1 {
			isAP[v] = true
		}
	}

	for _, v := range u.Nodes() {
		if _, seen := disc[v]; !seen {
			dfs(v, "", true)
		}
	}

	out := make([]string, 0, len(isAP))
	for v := range isAP {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
