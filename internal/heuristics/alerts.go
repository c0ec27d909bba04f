package heuristics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/muling-engine/pkg/models"
)

// Alert & Webhook System
//
// Structured alert emission for AML operations. Alerts are:
//  1. Broadcast via WebSocket to connected dashboards
//  2. Pushed to registered webhook endpoints (Slack, SIEM, case tooling)
//  3. Stored in memory for recent alert history
//
// Webhook payloads are plain JSON, compatible with Slack incoming webhooks
// and generic SIEM collectors.

// Severity bands derived from ring risk scores.
const (
	SeverityCritical = "critical" // risk >= 90
	SeverityHigh     = "high"     // risk >= 75
	SeverityMedium   = "medium"   // risk >= 60
	SeverityLow      = "low"
)

// Alert is one structured finding pushed to operators.
type Alert struct {
	ID          string         `json:"id"` // uuid
	Timestamp   time.Time      `json:"timestamp"`
	Severity    string         `json:"severity"`
	AlertType   string         `json:"alert_type"` // ring_detected/watchlist_hit/scan_finding
	Title       string         `json:"title"`
	Description string         `json:"description"`
	RunID       string         `json:"run_id,omitempty"`
	RingID      string         `json:"ring_id,omitempty"`
	RiskScore   float64        `json:"risk_score,omitempty"`
	Ring        *models.Ring   `json:"ring,omitempty"`
	Hits        []WatchlistHit `json:"hits,omitempty"`
}

// WebhookEndpoint is a registered webhook receiver.
type WebhookEndpoint struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Enabled     bool              `json:"enabled"`
	Headers     map[string]string `json:"headers,omitempty"`
	MinSeverity string            `json:"min_severity"` // only send alerts >= this severity
}

// AlertManager handles alert emission and webhook delivery.
type AlertManager struct {
	mu            sync.RWMutex
	webhooks      []WebhookEndpoint
	recentAlerts  []Alert
	maxHistory    int
	minRiskScore  float64
	httpClient    *http.Client
	alertCallback func(Alert) // WebSocket broadcast callback
}

// NewAlertManager creates the alert system. Rings scoring below minRisk
// never alert; broadcastFn may be nil.
func NewAlertManager(minRisk float64, broadcastFn func(Alert)) *AlertManager {
	return &AlertManager{
		webhooks:      make([]WebhookEndpoint, 0),
		recentAlerts:  make([]Alert, 0),
		maxHistory:    1000,
		minRiskScore:  minRisk,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		alertCallback: broadcastFn,
	}
}

// SeverityForRisk maps a ring risk score onto an alert severity band.
func SeverityForRisk(risk float64) string {
	switch {
	case risk >= 90:
		return SeverityCritical
	case risk >= 75:
		return SeverityHigh
	case risk >= 60:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// RegisterWebhook adds a webhook endpoint.
func (am *AlertManager) RegisterWebhook(name, url, minSeverity string, headers map[string]string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	am.webhooks = append(am.webhooks, WebhookEndpoint{
		Name:        name,
		URL:         url,
		Enabled:     true,
		Headers:     headers,
		MinSeverity: minSeverity,
	})

	log.Printf("[AlertManager] Registered webhook: %s -> %s (min: %s)", name, url, minSeverity)
}

// RemoveWebhook removes a webhook by name.
func (am *AlertManager) RemoveWebhook(name string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	for i, wh := range am.webhooks {
		if wh.Name == name {
			am.webhooks = append(am.webhooks[:i], am.webhooks[i+1:]...)
			return
		}
	}
}

// EmitAlert processes and distributes an alert.
func (am *AlertManager) EmitAlert(alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	// Store in history.
	am.mu.Lock()
	am.recentAlerts = append(am.recentAlerts, alert)
	if len(am.recentAlerts) > am.maxHistory {
		am.recentAlerts = am.recentAlerts[len(am.recentAlerts)-am.maxHistory:]
	}
	webhooks := make([]WebhookEndpoint, len(am.webhooks))
	copy(webhooks, am.webhooks)
	am.mu.Unlock()

	if am.alertCallback != nil {
		am.alertCallback(alert)
	}

	// Webhook delivery is async and non-blocking.
	for _, wh := range webhooks {
		if !wh.Enabled {
			continue
		}
		if !severityMeetsThreshold(alert.Severity, wh.MinSeverity) {
			continue
		}
		go am.sendWebhook(wh, alert)
	}

	log.Printf("[Alert] [%s] %s: %s (ring: %s)", alert.Severity, alert.AlertType, alert.Title, alert.RingID)
}

// EmitFromRing alerts on one detected ring when it clears the risk
// threshold.
func (am *AlertManager) EmitFromRing(runID string, ring models.Ring) {
	if ring.RiskScore < am.minRiskScore {
		return
	}

	ringCopy := ring
	am.EmitAlert(Alert{
		Severity:    SeverityForRisk(ring.RiskScore),
		AlertType:   "ring_detected",
		Title:       fmt.Sprintf("%s ring with %d accounts", ring.PatternType, len(ring.MemberAccounts)),
		Description: describeRing(ring),
		RunID:       runID,
		RingID:      ring.RingID,
		RiskScore:   ring.RiskScore,
		Ring:        &ringCopy,
	})
}

// EmitFromHits alerts on watchlisted accounts surfacing in a run.
func (am *AlertManager) EmitFromHits(runID string, hits []WatchlistHit) {
	if len(hits) == 0 {
		return
	}

	severity := SeverityLow
	for _, h := range hits {
		if severityMeetsThreshold(h.AlertLevel, severity) {
			severity = h.AlertLevel
		}
	}

	am.EmitAlert(Alert{
		Severity:    severity,
		AlertType:   "watchlist_hit",
		Title:       fmt.Sprintf("%d watchlisted account(s) in detected rings", len(hits)),
		Description: "Watchlisted accounts appeared as ring members in the latest analysis.",
		RunID:       runID,
		Hits:        hits,
	})
}

// GetRecentAlerts returns the most recent alerts, newest first.
func (am *AlertManager) GetRecentAlerts(limit int) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	if limit <= 0 || limit > len(am.recentAlerts) {
		limit = len(am.recentAlerts)
	}

	start := len(am.recentAlerts) - limit
	result := make([]Alert, limit)
	for i := 0; i < limit; i++ {
		result[i] = am.recentAlerts[start+limit-1-i]
	}
	return result
}

// GetAlertsBySeverity returns alerts matching a minimum severity.
func (am *AlertManager) GetAlertsBySeverity(minSeverity string) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	var filtered []Alert
	for _, alert := range am.recentAlerts {
		if severityMeetsThreshold(alert.Severity, minSeverity) {
			filtered = append(filtered, alert)
		}
	}
	return filtered
}

// sendWebhook delivers an alert to a webhook endpoint.
func (am *AlertManager) sendWebhook(wh WebhookEndpoint, alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("[Webhook] Failed to marshal alert: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewBuffer(payload))
	if err != nil {
		log.Printf("[Webhook] Failed to create request for %s: %v", wh.Name, err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	for key, val := range wh.Headers {
		req.Header.Set(key, val)
	}

	resp, err := am.httpClient.Do(req)
	if err != nil {
		log.Printf("[Webhook] Failed to send to %s: %v", wh.Name, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[Webhook] %s returned status %d", wh.Name, resp.StatusCode)
	}
}

// severityMeetsThreshold checks if a severity level meets the minimum.
func severityMeetsThreshold(severity, minimum string) bool {
	levels := map[string]int{
		SeverityLow: 1, SeverityMedium: 2, SeverityHigh: 3, SeverityCritical: 4,
	}
	return levels[severity] >= levels[minimum]
}

// describeRing builds the human-readable alert line.
func describeRing(ring models.Ring) string {
	switch ring.PatternType {
	case models.PatternCycle:
		return fmt.Sprintf("Funds return to origin through a %d-account cycle.", ring.CycleLength)
	case models.PatternFanIn:
		return fmt.Sprintf("%d senders structured funds into aggregator %s.", ring.SenderCount, ring.Aggregator)
	case models.PatternFanOut:
		return fmt.Sprintf("Disperser %s sprayed funds to %d receivers.", ring.Disperser, ring.ReceiverCount)
	case models.PatternShellNetwork:
		return fmt.Sprintf("Funds layered through a %d-hop chain with %d shell accounts.",
			ring.ChainLength-1, len(ring.ShellAccounts))
	default:
		return "Structural laundering pattern detected."
	}
}
