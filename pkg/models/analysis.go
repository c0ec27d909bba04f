package models

import "time"

// SuspiciousAccount is one entry of the suspicion map produced by detection
// and consumed by the planner and simulator.
type SuspiciousAccount struct {
	AccountID      string  `json:"account_id"`
	SuspicionScore float64 `json:"suspicion_score"` // 0-100
}

// AnalysisResult is the combined output envelope kept per run.
type AnalysisResult struct {
	RunID      string           `json:"run_id"` // uuid
	CreatedAt  time.Time        `json:"created_at"`
	SourceFile string           `json:"source_file,omitempty"`
	Metadata   DatasetMetadata  `json:"metadata"`
	Detection  *DetectionResult `json:"detection,omitempty"`
	Disruption *DisruptionPlan  `json:"disruption,omitempty"`
}
