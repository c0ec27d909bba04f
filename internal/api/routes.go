package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rawblock/muling-engine/internal/config"
	"github.com/rawblock/muling-engine/internal/db"
	"github.com/rawblock/muling-engine/internal/heuristics"
	"github.com/rawblock/muling-engine/internal/scanner"
	"github.com/rawblock/muling-engine/internal/telemetry"
)

// Deps carries every subsystem the HTTP surface exposes. Store and Scanner
// may be nil; the affected endpoints answer 503.
type Deps struct {
	Store     *db.Store
	Hub       *Hub
	Scanner   *scanner.CaseScanner
	Runs      *RunRegistry
	Alerts    *heuristics.AlertManager
	Watchlist *heuristics.AccountWatchlist
	Cases     *heuristics.CaseManager
	Metrics   *telemetry.Registry
	Cfg       config.EngineConfig
}

type APIHandler struct {
	store     *db.Store
	scanner   *scanner.CaseScanner
	runs      *RunRegistry
	alerts    *heuristics.AlertManager
	watchlist *heuristics.AccountWatchlist
	cases     *heuristics.CaseManager
	metrics   *telemetry.Registry
	cfg       config.EngineConfig
}

func SetupRouter(deps Deps) *gin.Engine {
	r := gin.Default()

	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewRegistry()
	}
	if deps.Runs == nil {
		deps.Runs = NewRunRegistry(deps.Cfg.API.RunRetention)
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Metrics.WebsocketClients)
		go deps.Hub.Run()
	}
	if deps.Alerts == nil {
		deps.Alerts = heuristics.NewAlertManager(deps.Cfg.Alerts.MinRiskScore, BroadcastAlert(deps.Hub, deps.Metrics))
	}
	if deps.Watchlist == nil {
		deps.Watchlist = heuristics.NewAccountWatchlist()
	}
	if deps.Cases == nil {
		deps.Cases = heuristics.NewCaseManager()
	}

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://aml.rawblock.net
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		store:     deps.Store,
		scanner:   deps.Scanner,
		runs:      deps.Runs,
		alerts:    deps.Alerts,
		watchlist: deps.Watchlist,
		cases:     deps.Cases,
		metrics:   deps.Metrics,
		cfg:       deps.Cfg,
	}

	burst := deps.Cfg.API.RateLimitPerMin / 2
	if burst < 10 {
		burst = 10
	}
	limiter := NewRateLimiter(deps.Cfg.API.RateLimitPerMin, burst)

	api := r.Group("/api/v1")
	api.Use(limiter.Middleware())
	{
		// Public: service discovery, live stream, scan progress.
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", deps.Hub.Subscribe)
		api.GET("/scan/progress", handler.handleScanProgress)

		protected := api.Group("")
		protected.Use(AuthMiddleware())
		{
			protected.POST("/analyze", handler.handleAnalyze)
			protected.GET("/runs", handler.handleListRuns)
			protected.GET("/runs/:id", handler.handleGetRun)
			protected.POST("/runs/:id/simulate", handler.handleSimulate)

			protected.POST("/scan", handler.handleStartScan)

			protected.GET("/watchlist", handler.handleListWatchlist)
			protected.POST("/watchlist", handler.handleAddWatch)
			protected.DELETE("/watchlist/:account_id", handler.handleRemoveWatch)

			protected.GET("/alerts", handler.handleGetAlerts)
			protected.POST("/alerts/webhooks", handler.handleRegisterWebhook)
			protected.DELETE("/alerts/webhooks/:name", handler.handleRemoveWebhook)

			protected.POST("/cases", handler.handleCreateCase)
			protected.GET("/cases", handler.handleListCases)
			protected.GET("/cases/:id", handler.handleGetCase)
			protected.POST("/cases/:id/tags", handler.handleTagAccount)
			protected.PUT("/cases/:id/status", handler.handleSetCaseStatus)
			protected.GET("/cases/:id/timeline", handler.handleGetTimeline)
			protected.POST("/cases/:id/watch", handler.handleWatchCase)

			protected.POST("/shadow/compare", handler.handleShadowCompare)
			protected.GET("/shadow/drift", handler.handleShadowDrift)

			protected.GET("/archive/runs", handler.handleArchivedRuns)
			protected.GET("/archive/patterns", handler.handlePatternCounts)
		}
	}

	// Prometheus scrape endpoint.
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		deps.Metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{})))

	return r
}

// handleHealth returns engine status and capabilities for service discovery
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "RawBlock Muling Detection Engine v2.1",
		"capabilities": gin.H{
			"ring_detection":      true,
			"disruption_planning": true,
			"what_if_simulation":  true,
			"shadow_evaluation":   true,
			"watchlist":           true,
			"batch_scanner":       h.scanner != nil,
			"websocket_stream":    true,
		},
		"dbConnected":     h.store != nil,
		"watchedAccounts": h.watchlist.Size(),
		"retainedRuns":    h.runs.Size(),
	})
}

// handleStartScan launches a batch scan over a case-file directory.
// POST /api/v1/scan { "directory": "/var/drops/2024-06" }
func (h *APIHandler) handleStartScan(c *gin.Context) {
	if h.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Case scanner not initialized"})
		return
	}

	var req struct {
		Directory string `json:"directory" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {directory}"})
		return
	}

	if err := h.scanner.ScanDirectory(c.Request.Context(), req.Directory); err != nil {
		if errors.Is(err, scanner.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "A scan is already in progress"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	progress := h.scanner.GetProgress()
	h.metrics.ScanFilesTotal.Add(float64(progress.FilesTotal))

	c.JSON(http.StatusOK, gin.H{
		"status":     "scan_started",
		"directory":  req.Directory,
		"totalFiles": progress.FilesTotal,
	})
}

// handleScanProgress returns the current progress of the case scanner.
func (h *APIHandler) handleScanProgress(c *gin.Context) {
	if h.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Case scanner not initialized"})
		return
	}
	progress := h.scanner.GetProgress()
	c.JSON(http.StatusOK, progress)
}

// BroadcastAlert adapts the alert manager's callback onto the WebSocket hub.
// This is wired as broadcastFn when the AlertManager is constructed.
func BroadcastAlert(wsHub *Hub, metrics *telemetry.Registry) func(heuristics.Alert) {
	return func(alert heuristics.Alert) {
		if metrics != nil {
			metrics.AlertsEmitted.WithLabelValues(alert.Severity).Inc()
		}
		payload := gin.H{
			"type":  "alert",
			"alert": alert,
		}
		data, _ := json.Marshal(payload)
		wsHub.Broadcast(data)
	}
}

// BroadcastScanAlert sends a batch-scan ring finding via the WebSocket hub.
// This is wired as the alertFunc callback for the CaseScanner.
func BroadcastScanAlert(wsHub *Hub, metrics *telemetry.Registry) func(scanner.ScanAlert) {
	return func(alert scanner.ScanAlert) {
		if metrics != nil {
			metrics.AlertsEmitted.WithLabelValues(heuristics.SeverityForRisk(alert.RiskScore)).Inc()
		}
		payload := gin.H{
			"type":  "scan_finding",
			"alert": alert,
		}
		data, _ := json.Marshal(payload)
		wsHub.Broadcast(data)
		log.Printf("[ALERT] 🔍 %s ring in %s: %s (risk %.2f, %d members)",
			alert.PatternType, alert.File, alert.RingID, alert.RiskScore, len(alert.Members))
	}
}
