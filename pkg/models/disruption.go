package models

// CentralityScore pairs an account with one centrality measure.
type CentralityScore struct {
	AccountID string  `json:"account_id"`
	Score     float64 `json:"score"` // four decimals
}

// NetworkStats describes the whole transaction graph once per planner run.
type NetworkStats struct {
	TotalNodes             int               `json:"total_nodes"`
	TotalEdges             int               `json:"total_edges"`
	ConnectedComponents    int               `json:"connected_components"` // undirected view
	LargestComponentSize   int               `json:"largest_component_size"`
	Density                float64           `json:"density"`         // directed, four decimals
	TopBetweenness         []CentralityScore `json:"top_betweenness"` // sampled, top 10
	TopDegreeCentrality    []CentralityScore `json:"top_degree_centrality"`
	TopCloseness           []CentralityScore `json:"top_closeness"`       // degree proxy, cheaper than true closeness
	ArticulationPoints     []string          `json:"articulation_points"` // first 20, sorted
	ArticulationPointCount int               `json:"articulation_point_count"`
}

// RemovalSimulation is the outcome of deleting one member from a ring subgraph.
type RemovalSimulation struct {
	RemovedNode         string  `json:"removed_node"`
	EdgesLost           int     `json:"edges_lost"`
	NewComponents       int     `json:"new_components"`
	ComponentSizes      []int   `json:"component_sizes"` // descending
	ImpactScore         float64 `json:"impact_score"`    // 0-100, one decimal
	IsArticulationPoint bool    `json:"is_articulation_point"`
	SuspicionScore      float64 `json:"suspicion_score"`
}

// CriticalNode marks a member whose removal meaningfully fragments the ring.
type CriticalNode struct {
	AccountID           string  `json:"account_id"`
	ImpactScore         float64 `json:"impact_score"`
	FragmentsCreated    int     `json:"fragments_created"`
	EdgesSevered        int     `json:"edges_severed"`
	SuspicionScore      float64 `json:"suspicion_score"`
	IsArticulationPoint bool    `json:"is_articulation_point"`
}

// PairRemoval is the best two-node removal found for a ring. Nodes is empty
// when no pair produces positive impact.
type PairRemoval struct {
	Nodes          []string `json:"nodes"`
	CombinedImpact float64  `json:"combined_impact"` // 0-100, one decimal
	NewComponents  int      `json:"new_components,omitempty"`
	EdgesRemaining int      `json:"edges_remaining,omitempty"`
}

// PartitionEstimate is an externally supplied suspicious/clean split for one
// ring, typically produced by a quantum partition solver.
type PartitionEstimate struct {
	RingID         string   `json:"ring_id"`
	SuspiciousSet  []string `json:"suspicious_set"`
	PartitionScore float64  `json:"partition_score"`
}

// PartitionOverlay reports how an external partition estimate maps onto the
// ring membership and how far it agrees with suspicion scoring.
type PartitionOverlay struct {
	Available           bool     `json:"available"`
	SuspiciousPartition []string `json:"suspicious_partition,omitempty"`
	CleanPartition      []string `json:"clean_partition,omitempty"` // members absent from the estimate
	PartitionScore      float64  `json:"partition_score,omitempty"`
	QuantumAgreement    float64  `json:"quantum_agreement,omitempty"` // Jaccard vs score>50 members, percent
}

// DisruptionStrategy is the per-ring removal plan.
type DisruptionStrategy struct {
	RingID             string              `json:"ring_id"`
	PatternType        string              `json:"pattern_type"`
	RiskScore          float64             `json:"risk_score"`
	Members            []string            `json:"members"`
	MemberCount        int                 `json:"member_count"`
	SubgraphEdges      int                 `json:"subgraph_edges"`
	CriticalNodes      []CriticalNode      `json:"critical_nodes"`
	MaxDisruptionPct   float64             `json:"max_disruption_pct"` // best single-node impact
	ResilienceScore    float64             `json:"resilience_score"`   // 100 - max disruption, one decimal
	RemovalSimulations []RemovalSimulation `json:"removal_simulations"`
	OptimalPairRemoval PairRemoval         `json:"optimal_pair_removal"`
	QuantumOverlay     PartitionOverlay    `json:"quantum_overlay"`
}

// GlobalSummary rolls the per-ring strategies into one network verdict.
type GlobalSummary struct {
	TotalRingsAnalyzed     int      `json:"total_rings_analyzed"`
	UniqueCriticalNodes    int      `json:"unique_critical_nodes"`
	CriticalNodeList       []string `json:"critical_node_list"` // sorted
	AvgDisruptionPotential float64  `json:"avg_disruption_potential"`
	NetworkResilience      float64  `json:"network_resilience"` // 100 - avg, one decimal
}

// DisruptionPlan is the planner's full output for one run.
type DisruptionPlan struct {
	NetworkStats  NetworkStats         `json:"network_stats"`
	Strategies    []DisruptionStrategy `json:"strategies"` // risk-descending, capped
	GlobalSummary GlobalSummary        `json:"global_summary"`
	Diagnostics   []Diagnostic         `json:"diagnostics"`
}
