package heuristics

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/rawblock/muling-engine/internal/graph"
	"github.com/rawblock/muling-engine/pkg/models"
)

// ErrNilGraph is returned when detection is invoked without a graph.
var ErrNilGraph = errors.New("detector: nil transaction graph")

// RingDetector runs the three structural searches over one transaction
// graph. State (ring ids, collected rings, diagnostics) is instance-scoped,
// so concurrent analyses on different detectors never interfere.
type RingDetector struct {
	cfg DetectorConfig
	g   *graph.TransactionGraph

	rings   []models.Ring
	diags   []models.Diagnostic
	ringSeq int
}

// NewRingDetector builds a detector for one graph.
func NewRingDetector(g *graph.TransactionGraph, cfg DetectorConfig) *RingDetector {
	return &RingDetector{cfg: cfg, g: g}
}

// Detect runs the cycle, smurfing and shell-chain searches and aggregates
// per-account flags. A nil graph is the only fatal input; everything else
// degrades to partial results plus diagnostics.
func (d *RingDetector) Detect() (*models.DetectionResult, error) {
	if d.g == nil {
		return nil, ErrNilGraph
	}

	d.rings = nil
	d.diags = nil
	d.ringSeq = 0

	if d.g.NodeCount() < 2 {
		d.diag(models.StageDetection, "", "graph has fewer than 2 nodes, nothing to detect")
		return d.result(), nil
	}

	log.Printf("[RingDetector] Starting detection over %d accounts, %d edges",
		d.g.NodeCount(), d.g.EdgeCount())

	d.detectCycles()
	d.detectFanPatterns()
	d.detectShellChains()

	log.Printf("[RingDetector] Detection complete: %d rings, %d diagnostics",
		len(d.rings), len(d.diags))
	return d.result(), nil
}

func (d *RingDetector) result() *models.DetectionResult {
	return &models.DetectionResult{
		Rings:        append([]models.Ring(nil), d.rings...),
		AccountFlags: d.accountFlags(),
		Diagnostics:  append([]models.Diagnostic(nil), d.diags...),
	}
}

// nextRingID hands out RING_001, RING_002, ... in detection order.
func (d *RingDetector) nextRingID() string {
	d.ringSeq++
	return fmt.Sprintf("RING_%03d", d.ringSeq)
}

func (d *RingDetector) diag(stage, unit, reason string) {
	d.diags = append(d.diags, models.Diagnostic{Stage: stage, Unit: unit, Reason: reason})
}

// guardUnit isolates one unit of work (an SCC, a hub, a shell start). A
// panic inside the unit becomes a diagnostic and detection moves on.
func (d *RingDetector) guardUnit(stage, unit string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[RingDetector] %s unit %s failed: %v", stage, unit, r)
			d.diag(stage, unit, fmt.Sprintf("unit failed: %v", r))
		}
	}()
	fn()
}

// accountFlags folds the detected rings into one aggregate per account,
// sorted by account id.
func (d *RingDetector) accountFlags() []models.AccountFlag {
	byAccount := make(map[string]*models.AccountFlag)

	record := func(account, pattern, ringID string, risk float64) {
		f, ok := byAccount[account]
		if !ok {
			f = &models.AccountFlag{AccountID: account}
			byAccount[account] = f
		}
		f.Patterns = append(f.Patterns, pattern)
		f.RingIDs = append(f.RingIDs, ringID)
		if risk > f.GraphScore {
			f.GraphScore = risk
		}
	}

	for _, ring := range d.rings {
		switch ring.PatternType {
		case models.PatternCycle:
			label := fmt.Sprintf("cycle_length_%d", ring.CycleLength)
			for _, m := range ring.MemberAccounts {
				record(m, label, ring.RingID, ring.RiskScore)
			}
		case models.PatternFanIn:
			for _, m := range ring.MemberAccounts {
				record(m, "smurfing_fan_in", ring.RingID, ring.RiskScore)
			}
		case models.PatternFanOut:
			for _, m := range ring.MemberAccounts {
				record(m, "smurfing_fan_out", ring.RingID, ring.RiskScore)
			}
		case models.PatternShellNetwork:
			shell := make(map[string]bool, len(ring.ShellAccounts))
			for _, s := range ring.ShellAccounts {
				shell[s] = true
			}
			for _, m := range ring.MemberAccounts {
				label := "shell_network_endpoint"
				if shell[m] {
					label = "shell_intermediary"
				}
				record(m, label, ring.RingID, ring.RiskScore)
			}
		}
	}

	ids := make([]string, 0, len(byAccount))
	for id := range byAccount {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	flags := make([]models.AccountFlag, 0, len(ids))
	for _, id := range ids {
		flags = append(flags, *byAccount[id])
	}
	return flags
}

// SuspicionFromFlags converts account flags into the suspicion map the
// disruption planner consumes. External scorers may override entries before
// planning.
func SuspicionFromFlags(flags []models.AccountFlag) map[string]float64 {
	out := make(map[string]float64, len(flags))
	for _, f := range flags {
		out[f.AccountID] = f.GraphScore
	}
	return out
}

// round2 keeps risk scores at two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// clamp100 caps an accumulated score at 100.
func clamp100(v float64) float64 {
	if v > 100 {
		return 100
	}
	return v
}
