package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/muling-engine/internal/db"
	"github.com/rawblock/muling-engine/internal/disruption"
	"github.com/rawblock/muling-engine/internal/heuristics"
	"github.com/rawblock/muling-engine/internal/ingest"
	"github.com/rawblock/muling-engine/internal/shadow"
	"github.com/rawblock/muling-engine/internal/simulate"
	"github.com/rawblock/muling-engine/pkg/models"
)

// analyzeJSONRequest is the JSON form of POST /analyze. Suspicion scores and
// partition estimates come from external scoring systems and are optional.
type analyzeJSONRequest struct {
	Transactions       []models.Transaction       `json:"transactions" binding:"required"`
	SuspicionScores    map[string]float64         `json:"suspicion_scores"`
	PartitionEstimates []models.PartitionEstimate `json:"partition_estimates"`
}

// handleAnalyze runs the full pipeline on an uploaded dataset: ingest,
// ring detection, disruption planning, watchlist check, alerting, archive.
// Accepts either a multipart CSV upload (field "file") or a JSON body.
func (h *APIHandler) handleAnalyze(c *gin.Context) {
	started := time.Now()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.API.MaxUploadBytes)

	// 1. Parse the upload into a dataset.
	var (
		ds        *ingest.Dataset
		source    string
		scores    map[string]float64
		estimates []models.PartitionEstimate
	)

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file field in multipart upload"})
			return
		}
		f, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open upload", "details": err.Error()})
			return
		}
		defer f.Close()

		ds, err = ingest.ParseCSV(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		source = fileHeader.Filename
	} else {
		var req analyzeJSONRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {transactions: [...]}"})
			return
		}
		var err error
		ds, err = ingest.FromTransactions(req.Transactions)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		source = "json"
		scores = req.SuspicionScores
		estimates = req.PartitionEstimates
	}

	// 2. Detect rings.
	det, err := heuristics.NewRingDetector(ds.Graph, h.cfg.Detector).Detect()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Detection failed", "details": err.Error()})
		return
	}

	// 3. Fuse suspicion scores: structural flags first, external scores can
	// only raise an account, never clear it.
	suspicion := heuristics.SuspicionFromFlags(det.AccountFlags)
	for id, score := range scores {
		if score > suspicion[id] {
			suspicion[id] = score
		}
	}

	// 4. Plan disruption over the detected rings.
	plan, err := disruption.NewPlanner(ds.Graph, det.Rings, suspicion, estimates, h.cfg.Planner).Run()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Disruption planning failed", "details": err.Error()})
		return
	}

	// 5. Alert on rings and watchlist hits.
	runID := uuid.NewString()
	hits := h.watchlist.CheckDetection(det)
	if h.alerts != nil {
		for _, ring := range det.Rings {
			h.alerts.EmitFromRing(runID, ring)
		}
		h.alerts.EmitFromHits(runID, hits)
	}

	// 6. Retain the run in memory; archive when the DB is connected.
	run := &AnalysisRun{
		RunID:      runID,
		CreatedAt:  time.Now(),
		SourceFile: source,
		Metadata:   ds.Metadata,
		Graph:      ds.Graph,
		Detection:  det,
		Disruption: plan,
		Suspicion:  suspicion,
	}
	h.runs.Put(run)
	if h.store != nil {
		rec := db.AnalysisRecord{
			RunID:     runID,
			Source:    source,
			Metadata:  ds.Metadata,
			Result:    det,
			Plan:      plan,
			CreatedAt: run.CreatedAt,
		}
		if err := h.store.SaveAnalysis(c.Request.Context(), rec); err != nil {
			log.Printf("Failed to archive analysis %s: %v", runID, err)
		}
	}

	// 7. Telemetry.
	label := "upload"
	if source == "json" {
		label = "json"
	}
	h.metrics.AnalysesTotal.WithLabelValues(label).Inc()
	h.metrics.AnalysisDuration.Observe(time.Since(started).Seconds())
	for _, ring := range det.Rings {
		h.metrics.RingsDetected.WithLabelValues(ring.PatternType).Inc()
	}
	h.metrics.AccountsFlagged.Add(float64(len(det.AccountFlags)))

	c.JSON(http.StatusOK, gin.H{
		"run_id":         runID,
		"metadata":       ds.Metadata,
		"detection":      det,
		"disruption":     plan,
		"watchlist_hits": hits,
	})
}

// handleListRuns returns summaries of the runs still held in memory.
func (h *APIHandler) handleListRuns(c *gin.Context) {
	runs := h.runs.List()
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetRun returns the full result envelope for one retained run.
func (h *APIHandler) handleGetRun(c *gin.Context) {
	run, ok := h.runs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found (evicted or unknown)"})
		return
	}

	c.JSON(http.StatusOK, models.AnalysisResult{
		RunID:      run.RunID,
		CreatedAt:  run.CreatedAt,
		SourceFile: run.SourceFile,
		Metadata:   run.Metadata,
		Detection:  run.Detection,
		Disruption: run.Disruption,
	})
}

// handleSimulate replays a retained run with the listed accounts removed.
// POST /api/v1/runs/:id/simulate { "remove_accounts": ["ACC_0042"] }
func (h *APIHandler) handleSimulate(c *gin.Context) {
	run, ok := h.runs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found (evicted or unknown)"})
		return
	}

	var req struct {
		RemoveAccounts []string `json:"remove_accounts" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {remove_accounts: [...]}"})
		return
	}

	sim := simulate.NewWhatIfSimulator(run.Graph, run.Detection.Rings, run.Suspicion)
	result, err := sim.Simulate(req.RemoveAccounts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.metrics.SimulationsTotal.Inc()
	c.JSON(http.StatusOK, result)
}

// handleShadowCompare re-runs a retained run's graph under a candidate
// detector configuration and reports the divergence from the baseline.
// Candidate fields not named in the request keep their baseline values.
func (h *APIHandler) handleShadowCompare(c *gin.Context) {
	req := struct {
		RunID        string                    `json:"run_id" binding:"required"`
		ExperimentID string                    `json:"experiment_id"`
		Candidate    heuristics.DetectorConfig `json:"candidate"`
	}{Candidate: h.cfg.Detector}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {run_id, candidate}"})
		return
	}

	run, ok := h.runs.Get(req.RunID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found (evicted or unknown)"})
		return
	}

	candidateCfg := h.cfg
	candidateCfg.Detector = req.Candidate
	if err := candidateCfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid candidate config", "details": err.Error()})
		return
	}

	if req.ExperimentID == "" {
		req.ExperimentID = "adhoc"
	}

	var pool *pgxpool.Pool
	if h.store != nil {
		pool = h.store.GetPool()
	}

	ev := shadow.NewEvaluator(pool, req.ExperimentID, h.cfg.Detector, req.Candidate)
	cmp, err := ev.Compare(c.Request.Context(), run.Graph)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Shadow comparison failed", "details": err.Error()})
		return
	}

	h.metrics.ShadowComparisons.WithLabelValues(strconv.FormatBool(cmp.Diverged)).Inc()
	c.JSON(http.StatusOK, cmp)
}

// handleShadowDrift reports accumulated divergence counts for an experiment.
func (h *APIHandler) handleShadowDrift(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	experimentID := c.DefaultQuery("experiment_id", "adhoc")
	ev := shadow.NewEvaluator(h.store.GetPool(), experimentID, h.cfg.Detector, h.cfg.Detector)

	total, divergences, avgRand, err := ev.DriftReport(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read drift history", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"experiment_id":  experimentID,
		"total_runs":     total,
		"divergences":    divergences,
		"avg_rand_index": avgRand,
	})
}

// handleArchivedRuns returns the Postgres analysis archive, newest first.
func (h *APIHandler) handleArchivedRuns(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	// Parse pagination parameters
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	runs, totalCount, err := h.store.ListRuns(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch archived runs", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       runs,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

// handlePatternCounts returns ring counts per pattern across the archive.
func (h *APIHandler) handlePatternCounts(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	counts, err := h.store.PatternCounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch pattern counts", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"patterns": counts})
}
