package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/muling-engine/internal/heuristics"
	"github.com/rawblock/muling-engine/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Investigation API Handlers: watchlist, alerts, cases
// ════════════════════════════════════════════════════════════════════

// GET /api/v1/watchlist
// Lists every watched account.
func (h *APIHandler) handleListWatchlist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"accounts": h.watchlist.ListAll(),
		"count":    h.watchlist.Size(),
	})
}

// POST /api/v1/watchlist
// Registers an account for monitoring in future analyses.
func (h *APIHandler) handleAddWatch(c *gin.Context) {
	var req struct {
		AccountID  string `json:"account_id" binding:"required"`
		Category   string `json:"category"` // mule_hub/shell/victim/suspect/sanctioned
		Label      string `json:"label"`
		CaseID     string `json:"case_id"`
		AlertLevel string `json:"alert_level"` // low/medium/high/critical
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if req.Category == "" {
		req.Category = "suspect"
	}
	if req.AlertLevel == "" {
		req.AlertLevel = heuristics.SeverityMedium
	}

	h.watchlist.Add(req.AccountID, req.Category, req.Label, req.CaseID, req.AlertLevel)

	c.JSON(http.StatusCreated, gin.H{
		"status":     "watching",
		"account_id": req.AccountID,
		"category":   req.Category,
	})
}

// DELETE /api/v1/watchlist/:account_id
// Stops monitoring an account.
func (h *APIHandler) handleRemoveWatch(c *gin.Context) {
	accountID := c.Param("account_id")

	if !h.watchlist.Contains(accountID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account is not watchlisted"})
		return
	}

	h.watchlist.Remove(accountID)
	c.JSON(http.StatusOK, gin.H{"status": "removed", "account_id": accountID})
}

// GET /api/v1/alerts?limit=50&min_severity=high
// Returns recent alerts, newest first, optionally filtered by severity.
func (h *APIHandler) handleGetAlerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var alerts []heuristics.Alert
	if minSeverity := c.Query("min_severity"); minSeverity != "" {
		alerts = h.alerts.GetAlertsBySeverity(minSeverity)
	} else {
		alerts = h.alerts.GetRecentAlerts(limit)
	}
	if alerts == nil {
		alerts = []heuristics.Alert{}
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// POST /api/v1/alerts/webhooks
// Registers a webhook receiver (Slack, SIEM, case tooling).
func (h *APIHandler) handleRegisterWebhook(c *gin.Context) {
	var req struct {
		Name        string            `json:"name" binding:"required"`
		URL         string            `json:"url" binding:"required"`
		MinSeverity string            `json:"min_severity"`
		Headers     map[string]string `json:"headers"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if req.MinSeverity == "" {
		req.MinSeverity = heuristics.SeverityMedium
	}

	h.alerts.RegisterWebhook(req.Name, req.URL, req.MinSeverity, req.Headers)

	c.JSON(http.StatusCreated, gin.H{
		"status":       "registered",
		"name":         req.Name,
		"min_severity": req.MinSeverity,
	})
}

// DELETE /api/v1/alerts/webhooks/:name
func (h *APIHandler) handleRemoveWebhook(c *gin.Context) {
	name := c.Param("name")
	h.alerts.RemoveWebhook(name)
	c.JSON(http.StatusOK, gin.H{"status": "removed", "name": name})
}

// POST /api/v1/cases
// Opens an investigation seeded from a retained run's rings. ring_ids
// narrows the case to a subset; omitted, every detected ring is attached.
func (h *APIHandler) handleCreateCase(c *gin.Context) {
	var req struct {
		Name        string   `json:"name" binding:"required"`
		Description string   `json:"description"`
		RunID       string   `json:"run_id" binding:"required"`
		RingIDs     []string `json:"ring_ids"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	run, ok := h.runs.Get(req.RunID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found (evicted or unknown)"})
		return
	}

	rings := run.Detection.Rings
	if len(req.RingIDs) > 0 {
		wanted := make(map[string]bool, len(req.RingIDs))
		for _, id := range req.RingIDs {
			wanted[id] = true
		}
		selected := make([]models.Ring, 0, len(req.RingIDs))
		for _, ring := range rings {
			if wanted[ring.RingID] {
				selected = append(selected, ring)
			}
		}
		if len(selected) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "None of the requested ring_ids exist in the run"})
			return
		}
		rings = selected
	}

	inv := h.cases.CreateCase(req.Name, req.Description, req.RunID, rings)

	c.JSON(http.StatusCreated, gin.H{
		"status": "created",
		"case":   inv,
	})
}

// GET /api/v1/cases
func (h *APIHandler) handleListCases(c *gin.Context) {
	cases := h.cases.ListCases()
	c.JSON(http.StatusOK, gin.H{
		"cases": cases,
		"count": len(cases),
	})
}

// GET /api/v1/cases/:id
func (h *APIHandler) handleGetCase(c *gin.Context) {
	inv := h.cases.GetCase(c.Param("id"))
	if inv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Case not found"})
		return
	}
	c.JSON(http.StatusOK, inv)
}

// POST /api/v1/cases/:id/tags
// Tags an account with investigator-provided metadata.
func (h *APIHandler) handleTagAccount(c *gin.Context) {
	inv := h.cases.GetCase(c.Param("id"))
	if inv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Case not found"})
		return
	}

	var req struct {
		AccountID string `json:"account_id" binding:"required"`
		Label     string `json:"label" binding:"required"`
		Role      string `json:"role" binding:"required"` // mule_hub/shell/courier/victim/suspect/unknown
		Notes     string `json:"notes"`
		TaggedBy  string `json:"tagged_by"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	inv.TagAccount(req.AccountID, req.Label, req.Role, req.Notes, req.TaggedBy)

	c.JSON(http.StatusOK, gin.H{
		"status":     "tagged",
		"account_id": req.AccountID,
		"label":      req.Label,
		"role":       req.Role,
	})
}

// PUT /api/v1/cases/:id/status
// Moves the case through its lifecycle: active/paused/completed/archived.
func (h *APIHandler) handleSetCaseStatus(c *gin.Context) {
	inv := h.cases.GetCase(c.Param("id"))
	if inv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Case not found"})
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	switch req.Status {
	case "active", "paused", "completed", "archived":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status. Expected: active, paused, completed or archived"})
		return
	}

	inv.SetStatus(req.Status)
	c.JSON(http.StatusOK, gin.H{"status": "updated", "case_status": req.Status})
}

// GET /api/v1/cases/:id/timeline
// Returns a chronological timeline of all case events.
func (h *APIHandler) handleGetTimeline(c *gin.Context) {
	inv := h.cases.GetCase(c.Param("id"))
	if inv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Case not found"})
		return
	}

	timeline := inv.Timeline()
	if timeline == nil {
		timeline = []heuristics.CaseEvent{}
	}

	c.JSON(http.StatusOK, gin.H{
		"case_id": inv.ID,
		"events":  timeline,
		"total":   len(timeline),
	})
}

// POST /api/v1/cases/:id/watch
// Pushes the case's tagged accounts onto the watchlist so future analyses
// alert when they resurface.
func (h *APIHandler) handleWatchCase(c *gin.Context) {
	inv := h.cases.GetCase(c.Param("id"))
	if inv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Case not found"})
		return
	}

	h.watchlist.LoadFromCase(inv)

	c.JSON(http.StatusOK, gin.H{
		"status":         "watchlisted",
		"case_id":        inv.ID,
		"accounts_added": len(inv.TaggedAccounts),
		"watchlist_size": h.watchlist.Size(),
	})
}
