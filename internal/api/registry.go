package api

import (
	"sync"
	"time"

	"github.com/rawblock/muling-engine/internal/graph"
	"github.com/rawblock/muling-engine/pkg/models"
)

// AnalysisRun is one completed analysis kept in memory for follow-up
// operations: what-if simulation, case creation and shadow comparison all
// need the run's graph back.
type AnalysisRun struct {
	RunID      string
	CreatedAt  time.Time
	SourceFile string
	Metadata   models.DatasetMetadata
	Graph      *graph.TransactionGraph
	Detection  *models.DetectionResult
	Disruption *models.DisruptionPlan
	Suspicion  map[string]float64
}

// RunInfo is the listing row for one retained run.
type RunInfo struct {
	RunID             string    `json:"run_id"`
	CreatedAt         time.Time `json:"created_at"`
	SourceFile        string    `json:"source_file,omitempty"`
	TotalTransactions int       `json:"total_transactions"`
	TotalAccounts     int       `json:"total_accounts"`
	RingCount         int       `json:"ring_count"`
	FlaggedAccounts   int       `json:"flagged_accounts"`
	MaxRisk           float64   `json:"max_risk"`
}

// RunRegistry retains the most recent completed runs. Retention is bounded:
// once capacity is exceeded the oldest run is dropped, and follow-up calls
// against it return 404. The Postgres archive keeps the full history.
type RunRegistry struct {
	mu       sync.RWMutex
	capacity int
	runs     map[string]*AnalysisRun
	order    []string // insertion order, oldest first
}

// NewRunRegistry creates a registry retaining at most capacity runs.
func NewRunRegistry(capacity int) *RunRegistry {
	if capacity <= 0 {
		capacity = 100
	}
	return &RunRegistry{
		capacity: capacity,
		runs:     make(map[string]*AnalysisRun),
	}
}

// Put stores a completed run, evicting the oldest once over capacity.
func (r *RunRegistry) Put(run *AnalysisRun) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.RunID]; !exists {
		r.order = append(r.order, run.RunID)
	}
	r.runs[run.RunID] = run

	for len(r.order) > r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.runs, oldest)
	}
}

// Get returns a retained run by id.
func (r *RunRegistry) Get(runID string) (*AnalysisRun, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[runID]
	return run, ok
}

// List returns summaries of the retained runs, newest first.
func (r *RunRegistry) List() []RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]RunInfo, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		run := r.runs[r.order[i]]
		info := RunInfo{
			RunID:             run.RunID,
			CreatedAt:         run.CreatedAt,
			SourceFile:        run.SourceFile,
			TotalTransactions: run.Metadata.TotalTransactions,
			TotalAccounts:     run.Metadata.TotalAccounts,
		}
		if run.Detection != nil {
			info.RingCount = len(run.Detection.Rings)
			info.FlaggedAccounts = len(run.Detection.AccountFlags)
			for _, ring := range run.Detection.Rings {
				if ring.RiskScore > info.MaxRisk {
					info.MaxRisk = ring.RiskScore
				}
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// Size returns the number of retained runs.
func (r *RunRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
