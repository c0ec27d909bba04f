package models

// Ring status after a what-if removal.
const (
	RingIntact            = "INTACT"
	RingDestroyed         = "DESTROYED"
	RingCriticallyDamaged = "CRITICALLY_DAMAGED"
	RingFragmented        = "FRAGMENTED"
	RingWeakened          = "WEAKENED"
)

// Account status after a what-if removal.
const (
	AccountRemoved    = "REMOVED"
	AccountIsolated   = "ISOLATED" // lost at least one counterparty
	AccountUnaffected = "UNAFFECTED"
)

// NetworkState is a metric snapshot of the graph before or after removals.
type NetworkState struct {
	Nodes            int     `json:"nodes"`
	Edges            int     `json:"edges"`
	Components       int     `json:"components"`
	LargestComponent int     `json:"largest_component"`
	Density          float64 `json:"density"`    // six decimals
	AvgDegree        float64 `json:"avg_degree"` // in plus out, two decimals
	MaxDegree        int     `json:"max_degree"`
	TotalFlow        float64 `json:"total_flow"` // two decimals
}

// MetricDelta compares one metric across the before and after states.
type MetricDelta struct {
	Before    float64 `json:"before"`
	After     float64 `json:"after"`
	Change    float64 `json:"change"`     // four decimals
	ChangePct float64 `json:"change_pct"` // one decimal, zero when before is zero
}

// RingImpact describes what a removal did to one known ring.
type RingImpact struct {
	RingID           string   `json:"ring_id"`
	PatternType      string   `json:"pattern_type"`
	Status           string   `json:"status"` // INTACT, DESTROYED, CRITICALLY_DAMAGED, FRAGMENTED, WEAKENED
	OriginalSize     int      `json:"original_size"`
	SurvivingMembers int      `json:"surviving_members"`
	RemovedMembers   []string `json:"removed_members"`
	SurvivingList    []string `json:"surviving_list,omitempty"`
	DisruptionPct    float64  `json:"disruption_pct"` // one decimal
	OriginalRisk     float64  `json:"original_risk"`
}

// AccountImpact classifies one account relative to the removal set.
type AccountImpact struct {
	AccountID          string  `json:"account_id"`
	SuspicionScore     float64 `json:"suspicion_score"`
	Status             string  `json:"status"` // REMOVED, ISOLATED, UNAFFECTED
	ConnectedToRemoved bool    `json:"connected_to_removed,omitempty"`
}

// AccountImpactSummary splits flagged accounts into removed and surviving.
type AccountImpactSummary struct {
	Removed            []AccountImpact `json:"removed"`
	Surviving          []AccountImpact `json:"surviving"`
	TotalRiskRemoved   float64         `json:"total_risk_removed"`   // one decimal
	TotalRiskRemaining float64         `json:"total_risk_remaining"` // one decimal
	RiskReductionPct   float64         `json:"risk_reduction_pct"`   // one decimal
}

// FlowImpact measures transaction volume crossing the removed nodes.
type FlowImpact struct {
	TotalFlow             float64 `json:"total_flow"`
	DisruptedFlow         float64 `json:"disrupted_flow"`
	FlowDisruptionPct     float64 `json:"flow_disruption_pct"` // one decimal
	TotalTransactions     int     `json:"total_transactions"`
	DisruptedTransactions int     `json:"disrupted_transactions"`
	TxDisruptionPct       float64 `json:"tx_disruption_pct"` // one decimal
}

// CascadeEffect lists a surviving account's lost connections to removed nodes.
type CascadeEffect struct {
	AccountID       string  `json:"account_id"`
	ConnectionsLost int     `json:"connections_lost"`
	IncomingLost    int     `json:"incoming_lost"`
	OutgoingLost    int     `json:"outgoing_lost"`
	FlowDisrupted   float64 `json:"flow_disrupted"` // two decimals
	SuspicionScore  float64 `json:"suspicion_score"`
	IsSuspicious    bool    `json:"is_suspicious"` // present in the suspicion map
}

// EffectivenessScore grades the whole removal.
type EffectivenessScore struct {
	Overall               float64 `json:"overall"` // 0-100, one decimal
	EdgeDisruption        float64 `json:"edge_disruption"`
	RingDestructionRate   float64 `json:"ring_destruction_rate"`
	FragmentationIncrease float64 `json:"fragmentation_increase"`
	Grade                 string  `json:"grade"` // A+ down to F
}

// SimulationResult is the full what-if output for one removal scenario.
type SimulationResult struct {
	NodesRemoved   []string               `json:"nodes_removed"`
	InvalidNodes   []string               `json:"invalid_nodes,omitempty"`
	Before         NetworkState           `json:"before"`
	After          NetworkState           `json:"after"`
	Delta          map[string]MetricDelta `json:"delta"`
	RingImpacts    []RingImpact           `json:"ring_impacts"` // disruption-descending
	AccountImpacts AccountImpactSummary   `json:"account_impacts"`
	FlowImpact     FlowImpact             `json:"flow_impact"`
	CascadeEffects []CascadeEffect        `json:"cascade_effects"` // top 20 by connections lost
	Effectiveness  EffectivenessScore     `json:"effectiveness"`
}
