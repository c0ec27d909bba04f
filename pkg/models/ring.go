package models

// Pattern families emitted by the ring detector.
const (
	PatternCycle        = "cycle"
	PatternFanIn        = "fan_in"
	PatternFanOut       = "fan_out"
	PatternShellNetwork = "shell_network"
)

// Ring is one detected laundering structure. Pattern-specific fields are
// populated only for the matching pattern type.
type Ring struct {
	RingID         string   `json:"ring_id"`      // RING_%03d, unique within one detector run
	PatternType    string   `json:"pattern_type"` // cycle, fan_in, fan_out, shell_network
	MemberAccounts []string `json:"member_accounts"`
	RiskScore      float64  `json:"risk_score"` // 0-100, two decimals

	CycleLength   int      `json:"cycle_length,omitempty"`   // cycle
	Aggregator    string   `json:"aggregator,omitempty"`     // fan_in hub
	SenderCount   int      `json:"sender_count,omitempty"`   // fan_in
	Disperser     string   `json:"disperser,omitempty"`      // fan_out hub
	ReceiverCount int      `json:"receiver_count,omitempty"` // fan_out
	ChainLength   int      `json:"chain_length,omitempty"`   // shell_network
	ShellAccounts []string `json:"shell_accounts,omitempty"` // shell_network pass-throughs
}

// AccountFlag aggregates every pattern hit against a single account.
type AccountFlag struct {
	AccountID  string   `json:"account_id"`
	Patterns   []string `json:"patterns"` // cycle_length_N, smurfing_fan_in, smurfing_fan_out, shell_intermediary, shell_network_endpoint
	RingIDs    []string `json:"ring_ids"`
	GraphScore float64  `json:"graph_score"` // max risk over containing rings
}

// Stages reported in diagnostics.
const (
	StageDetection    = "detection"
	StageCycleSearch  = "cycle_search"
	StageFanIn        = "fan_in"
	StageFanOut       = "fan_out"
	StageShellSearch  = "shell_search"
	StageRingAnalysis = "ring_analysis"
)

// Diagnostic records a skipped unit of work or an exhausted search budget.
// Degenerate inputs are reported here instead of failing the run.
type Diagnostic struct {
	Stage  string `json:"stage"`
	Unit   string `json:"unit,omitempty"` // component key, hub account, shell account or ring id
	Reason string `json:"reason"`
}

// DetectionResult is the ring detector's full output for one dataset.
type DetectionResult struct {
	Rings        []Ring        `json:"rings"`
	AccountFlags []AccountFlag `json:"account_flags"` // sorted by account id
	Diagnostics  []Diagnostic  `json:"diagnostics"`
}
