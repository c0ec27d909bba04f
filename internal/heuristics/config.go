// Package heuristics implements the ring detector: bounded structural
// searches for circular routing, fan-in/fan-out smurfing and layered shell
// chains over a transaction graph, plus the account profiling that filters
// legitimate merchant and payroll traffic out of the smurfing search.
//
// A detector instance is built per dataset and never shared between
// concurrent analyses; ring ids are scoped to the instance.
package heuristics

import "time"

// DetectorConfig carries every tunable threshold and search budget the ring
// detector uses. Zero values are invalid; start from DefaultDetectorConfig
// and override via the engine's YAML config.
type DetectorConfig struct {
	// Cycle search.
	CycleMinLength int           `yaml:"cycle_min_length" json:"cycle_min_length" validate:"gte=3"`
	CycleMaxLength int           `yaml:"cycle_max_length" json:"cycle_max_length" validate:"gtefield=CycleMinLength"`
	MaxCycles      int           `yaml:"max_cycles" json:"max_cycles" validate:"gt=0"`
	CycleDeadline  time.Duration `yaml:"cycle_deadline" json:"cycle_deadline" validate:"gt=0"`

	// Smurfing search.
	FanThreshold int           `yaml:"fan_threshold" json:"fan_threshold" validate:"gte=2"` // min distinct counterparties
	BurstWindow  time.Duration `yaml:"burst_window" json:"burst_window" validate:"gt=0"`
	BurstMinSize int           `yaml:"burst_min_size" json:"burst_min_size" validate:"gt=0"`

	// Account profiling (false-positive filters).
	MerchantMaxOutDegree int     `yaml:"merchant_max_out_degree" json:"merchant_max_out_degree" validate:"gte=0"`
	MerchantMinInDegree  int     `yaml:"merchant_min_in_degree" json:"merchant_min_in_degree" validate:"gt=0"`
	MerchantCVLimit      float64 `yaml:"merchant_cv_limit" json:"merchant_cv_limit" validate:"gt=0"`
	PayrollMaxInDegree   int     `yaml:"payroll_max_in_degree" json:"payroll_max_in_degree" validate:"gte=0"`
	PayrollMinOutDegree  int     `yaml:"payroll_min_out_degree" json:"payroll_min_out_degree" validate:"gt=0"`
	PayrollCVLimit       float64 `yaml:"payroll_cv_limit" json:"payroll_cv_limit" validate:"gt=0"`
	ProfileMinSamples    int     `yaml:"profile_min_samples" json:"profile_min_samples" validate:"gt=0"`

	// Shell-chain search.
	ShellTxMin         int           `yaml:"shell_tx_min" json:"shell_tx_min" validate:"gt=0"`
	ShellTxMax         int           `yaml:"shell_tx_max" json:"shell_tx_max" validate:"gtefield=ShellTxMin"`
	ShellChainMaxNodes int           `yaml:"shell_chain_max_nodes" json:"shell_chain_max_nodes" validate:"gte=3"`
	MaxShellRings      int           `yaml:"max_shell_rings" json:"max_shell_rings" validate:"gt=0"`
	ShellDeadline      time.Duration `yaml:"shell_deadline" json:"shell_deadline" validate:"gt=0"`
}

// DefaultDetectorConfig returns the operating thresholds and budgets.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		CycleMinLength: 3,
		CycleMaxLength: 5,
		MaxCycles:      500,
		CycleDeadline:  6 * time.Second,

		FanThreshold: 10,
		BurstWindow:  72 * time.Hour,
		BurstMinSize: 5,

		MerchantMaxOutDegree: 3,
		MerchantMinInDegree:  20,
		MerchantCVLimit:      0.3,
		PayrollMaxInDegree:   2,
		PayrollMinOutDegree:  20,
		PayrollCVLimit:       0.4,
		ProfileMinSamples:    10,

		ShellTxMin:         2,
		ShellTxMax:         3,
		ShellChainMaxNodes: 6,
		MaxShellRings:      100,
		ShellDeadline:      3 * time.Second,
	}
}
