// Package graph holds the directed transaction graph the detection and
// disruption engines operate on, plus the structural algorithms they need
// (strongly connected components, undirected projections, centrality).
//
// The canonical graph built from one dataset is treated as read-only by
// every consumer. Anything that mutates (removal simulation, what-if runs)
// works on a Copy it exclusively owns.
package graph

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rawblock/muling-engine/pkg/models"
)

// TxRef is one transaction recorded on an aggregated edge.
type TxRef struct {
	TransactionID string    `json:"transaction_id"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// EdgeData aggregates every transfer from one sender to one receiver.
type EdgeData struct {
	TotalAmount  float64 `json:"total_amount"`
	TxCount      int     `json:"tx_count"`
	Transactions []TxRef `json:"transactions"` // input order
}

// NodeData carries the per-account aggregates computed during the build.
type NodeData struct {
	TotalSent       float64 `json:"total_sent"`
	TotalReceived   float64 `json:"total_received"`
	TxCountSent     int     `json:"tx_count_sent"`
	TxCountReceived int     `json:"tx_count_received"`
	TxCountTotal    int     `json:"tx_count_total"`
	AvgTimeGap      float64 `json:"avg_time_gap"` // seconds between consecutive events
	MinTimeGap      float64 `json:"min_time_gap"` // seconds, 0 when fewer than 2 events

	events []time.Time
}

// TransactionGraph is a directed graph of accounts with aggregated edges.
// Node and edge iteration helpers return sorted order so that downstream
// ring ids and dedup keys are stable across runs.
type TransactionGraph struct {
	nodes map[string]*NodeData
	succ  map[string]map[string]*EdgeData
	pred  map[string]map[string]*EdgeData // mirrors succ, same *EdgeData

	edgeCount int
	txCount   int
}

// New returns an empty transaction graph.
func New() *TransactionGraph {
	return &TransactionGraph{
		nodes: make(map[string]*NodeData),
		succ:  make(map[string]map[string]*EdgeData),
		pred:  make(map[string]map[string]*EdgeData),
	}
}

func (g *TransactionGraph) ensureNode(id string) *NodeData {
	n, ok := g.nodes[id]
	if !ok {
		n = &NodeData{}
		g.nodes[id] = n
		g.succ[id] = make(map[string]*EdgeData)
		g.pred[id] = make(map[string]*EdgeData)
	}
	return n
}

// AddTransaction aggregates one transfer into the graph. Self-loops and
// non-positive amounts are rejected; ingestion filters them before this
// point, direct API input may not.
func (g *TransactionGraph) AddTransaction(tx models.Transaction) error {
	if tx.SenderID == tx.ReceiverID {
		return fmt.Errorf("self transfer on account %s", tx.SenderID)
	}
	if tx.Amount <= 0 {
		return fmt.Errorf("non-positive amount %.2f on %s", tx.Amount, tx.TransactionID)
	}

	sender := g.ensureNode(tx.SenderID)
	receiver := g.ensureNode(tx.ReceiverID)

	edge, ok := g.succ[tx.SenderID][tx.ReceiverID]
	if !ok {
		edge = &EdgeData{}
		g.succ[tx.SenderID][tx.ReceiverID] = edge
		g.pred[tx.ReceiverID][tx.SenderID] = edge
		g.edgeCount++
	}
	edge.TotalAmount += tx.Amount
	edge.TxCount++
	edge.Transactions = append(edge.Transactions, TxRef{
		TransactionID: tx.TransactionID,
		Amount:        tx.Amount,
		Timestamp:     tx.Timestamp,
	})

	sender.TotalSent += tx.Amount
	sender.TxCountSent++
	sender.TxCountTotal++
	sender.events = append(sender.events, tx.Timestamp)

	receiver.TotalReceived += tx.Amount
	receiver.TxCountReceived++
	receiver.TxCountTotal++
	receiver.events = append(receiver.events, tx.Timestamp)

	g.txCount++
	return nil
}

// Finalize computes the per-account timing aggregates. Call once after the
// last AddTransaction.
func (g *TransactionGraph) Finalize() {
	for _, n := range g.nodes {
		if len(n.events) < 2 {
			continue
		}
		events := make([]time.Time, len(n.events))
		copy(events, n.events)
		sort.Slice(events, func(i, j int) bool { return events[i].Before(events[j]) })

		sum := 0.0
		minGap := math.MaxFloat64
		for i := 1; i < len(events); i++ {
			gap := events[i].Sub(events[i-1]).Seconds()
			sum += gap
			if gap < minGap {
				minGap = gap
			}
		}
		n.AvgTimeGap = sum / float64(len(events)-1)
		n.MinTimeGap = minGap
	}
}

// NodeCount returns the number of accounts.
func (g *TransactionGraph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of distinct sender->receiver pairs.
func (g *TransactionGraph) EdgeCount() int { return g.edgeCount }

// TxCount returns the number of transactions aggregated into the graph.
func (g *TransactionGraph) TxCount() int { return g.txCount }

// HasNode reports whether the account exists.
func (g *TransactionGraph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns the account's aggregates. Callers must not mutate the result.
func (g *TransactionGraph) Node(id string) (*NodeData, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all account ids in sorted order.
func (g *TransactionGraph) Nodes() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Successors returns the distinct receivers of id, sorted.
func (g *TransactionGraph) Successors(id string) []string {
	return sortedKeys(g.succ[id])
}

// Predecessors returns the distinct senders into id, sorted.
func (g *TransactionGraph) Predecessors(id string) []string {
	return sortedKeys(g.pred[id])
}

// OutDegree returns the number of distinct receivers of id.
func (g *TransactionGraph) OutDegree(id string) int { return len(g.succ[id]) }

// InDegree returns the number of distinct senders into id.
func (g *TransactionGraph) InDegree(id string) int { return len(g.pred[id]) }

// Degree returns in-degree plus out-degree.
func (g *TransactionGraph) Degree(id string) int {
	return len(g.succ[id]) + len(g.pred[id])
}

// Edge returns the aggregate for sender u to receiver v.
func (g *TransactionGraph) Edge(u, v string) (*EdgeData, bool) {
	e, ok := g.succ[u][v]
	return e, ok
}

// HasEdge reports whether a directed edge u->v exists.
func (g *TransactionGraph) HasEdge(u, v string) bool {
	_, ok := g.succ[u][v]
	return ok
}

// ForEachEdge visits every directed edge in sorted (sender, receiver) order.
func (g *TransactionGraph) ForEachEdge(fn func(u, v string, e *EdgeData)) {
	for _, u := range g.Nodes() {
		for _, v := range sortedKeys(g.succ[u]) {
			fn(u, v, g.succ[u][v])
		}
	}
}

// TotalFlow returns the sum of total_amount over all edges.
func (g *TransactionGraph) TotalFlow() float64 {
	total := 0.0
	for _, out := range g.succ {
		for _, e := range out {
			total += e.TotalAmount
		}
	}
	return total
}

// Density returns m / (n*(n-1)) for the directed graph, 0 for n < 2.
func (g *TransactionGraph) Density() float64 {
	n := len(g.nodes)
	if n < 2 {
		return 0
	}
	return float64(g.edgeCount) / float64(n*(n-1))
}

// Copy returns a deep copy. The copy shares nothing with the original, so
// removal simulation on it cannot disturb concurrent readers.
func (g *TransactionGraph) Copy() *TransactionGraph {
	cp := New()
	cp.edgeCount = g.edgeCount
	cp.txCount = g.txCount
	for id, n := range g.nodes {
		nc := *n
		nc.events = append([]time.Time(nil), n.events...)
		cp.nodes[id] = &nc
		cp.succ[id] = make(map[string]*EdgeData, len(g.succ[id]))
		cp.pred[id] = make(map[string]*EdgeData, len(g.pred[id]))
	}
	for u, out := range g.succ {
		for v, e := range out {
			ec := &EdgeData{
				TotalAmount:  e.TotalAmount,
				TxCount:      e.TxCount,
				Transactions: append([]TxRef(nil), e.Transactions...),
			}
			cp.succ[u][v] = ec
			cp.pred[v][u] = ec
		}
	}
	return cp
}

// RemoveNode deletes the account and every incident edge. Node aggregates of
// the remaining accounts are left untouched.
func (g *TransactionGraph) RemoveNode(id string) {
	if _, ok := g.nodes[id]; !ok {
		return
	}
	for v, e := range g.succ[id] {
		delete(g.pred[v], id)
		g.edgeCount--
		g.txCount -= e.TxCount
	}
	for u, e := range g.pred[id] {
		delete(g.succ[u], id)
		g.edgeCount--
		g.txCount -= e.TxCount
	}
	delete(g.succ, id)
	delete(g.pred, id)
	delete(g.nodes, id)
}

func sortedKeys(m map[string]*EdgeData) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
