// Package disruption ranks the accounts whose removal would maximally
// fragment each detected ring. It consumes the read-only transaction graph,
// the detector's ring list and an externally supplied suspicion-score map,
// and produces per-ring removal strategies plus a network-level summary.
package disruption

// PlannerConfig bounds the planner's per-run cost.
type PlannerConfig struct {
	TopRings          int     `yaml:"top_rings" validate:"gt=0"`          // rings analyzed per run, highest risk first
	BetweennessSample int     `yaml:"betweenness_sample" validate:"gt=0"` // pivot count for sampled betweenness
	CriticalImpact    float64 `yaml:"critical_impact" validate:"gte=0"`   // impact above which a member is critical
	PairCandidateCap  int     `yaml:"pair_candidate_cap" validate:"gt=0"` // member count above which pair search narrows to top-degree candidates
}

// DefaultPlannerConfig returns the operational defaults.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		TopRings:          30,
		BetweennessSample: 50,
		CriticalImpact:    20,
		PairCandidateCap:  10,
	}
}
