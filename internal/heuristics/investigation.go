package heuristics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rawblock/muling-engine/pkg/models"
)

// Investigation Case Manager
//
// Manages AML investigations opened from analysis output. An investigator:
//  1. Creates a case from a run's detected rings
//  2. Reviews the auto-tagged accounts (hubs, shells, couriers)
//  3. Re-tags accounts as evidence firms up
//  4. Reviews the case timeline
//  5. Closes or archives the case
//
// Case lifecycle:
//   active    → rings under review, new evidence being added
//   paused    → temporarily halted
//   completed → disposition reached
//   archived  → closed and preserved for records

// Account roles assigned during an investigation.
const (
	RoleMuleHub = "mule_hub" // aggregator or disperser
	RoleShell   = "shell"    // pass-through account
	RoleCourier = "courier"  // cycle participant
	RoleVictim  = "victim"
	RoleSuspect = "suspect"
	RoleUnknown = "unknown"
)

// TaggedAccount is an account with investigator-provided metadata.
type TaggedAccount struct {
	AccountID string    `json:"account_id"`
	Label     string    `json:"label"`
	Role      string    `json:"role"` // mule_hub/shell/courier/victim/suspect/unknown
	Notes     string    `json:"notes,omitempty"`
	RingID    string    `json:"ring_id,omitempty"`
	RiskScore float64   `json:"risk_score,omitempty"`
	TaggedAt  time.Time `json:"tagged_at"`
	TaggedBy  string    `json:"tagged_by,omitempty"`
}

// CaseEvent is one chronological entry in the case timeline.
type CaseEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"` // case_opened/ring_attached/tagged/status_changed
	Description string    `json:"description"`
	AccountID   string    `json:"account_id,omitempty"`
	RingID      string    `json:"ring_id,omitempty"`
}

// Case is a single investigation.
type Case struct {
	ID             string          `json:"id"` // CASE-<unixnano>
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Status         string          `json:"status"` // active/paused/completed/archived
	RunID          string          `json:"run_id,omitempty"`
	RingIDs        []string        `json:"ring_ids"`
	TaggedAccounts []TaggedAccount `json:"tagged_accounts"`
	Events         []CaseEvent     `json:"events"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CaseManager handles CRUD for investigations.
type CaseManager struct {
	mu    sync.RWMutex
	cases map[string]*Case
}

// NewCaseManager creates an empty case manager.
func NewCaseManager() *CaseManager {
	return &CaseManager{cases: make(map[string]*Case)}
}

// CreateCase opens an investigation seeded from a run's rings. Ring members
// are auto-tagged by their structural role; the investigator refines tags
// later.
func (m *CaseManager) CreateCase(name, description, runID string, rings []models.Ring) *Case {
	now := time.Now()
	c := &Case{
		ID:          fmt.Sprintf("CASE-%d", now.UnixNano()),
		Name:        name,
		Description: description,
		Status:      "active",
		RunID:       runID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.Events = append(c.Events, CaseEvent{
		Timestamp:   now,
		EventType:   "case_opened",
		Description: "Case opened: " + name,
	})

	tagged := make(map[string]bool)
	for _, ring := range rings {
		c.RingIDs = append(c.RingIDs, ring.RingID)
		c.Events = append(c.Events, CaseEvent{
			Timestamp:   now,
			EventType:   "ring_attached",
			Description: fmt.Sprintf("Attached %s ring (risk %.2f)", ring.PatternType, ring.RiskScore),
			RingID:      ring.RingID,
		})
		for _, member := range ring.MemberAccounts {
			if tagged[member] {
				continue
			}
			tagged[member] = true
			c.TaggedAccounts = append(c.TaggedAccounts, TaggedAccount{
				AccountID: member,
				Label:     "Auto-tagged from " + ring.RingID,
				Role:      structuralRole(ring, member),
				RingID:    ring.RingID,
				RiskScore: ring.RiskScore,
				TaggedAt:  now,
			})
		}
	}

	m.mu.Lock()
	m.cases[c.ID] = c
	m.mu.Unlock()
	return c
}

// GetCase retrieves a case by ID.
func (m *CaseManager) GetCase(id string) *Case {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cases[id]
}

// ListCases returns all cases, newest first.
func (m *CaseManager) ListCases() []*Case {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*Case, 0, len(m.cases))
	for _, c := range m.cases {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// TagAccount adds or updates an account tag on the case.
func (c *Case) TagAccount(accountID, label, role, notes, taggedBy string) {
	now := time.Now()
	tag := TaggedAccount{
		AccountID: accountID,
		Label:     label,
		Role:      role,
		Notes:     notes,
		TaggedAt:  now,
		TaggedBy:  taggedBy,
	}

	replaced := false
	for i, existing := range c.TaggedAccounts {
		if existing.AccountID == accountID {
			tag.RingID = existing.RingID
			tag.RiskScore = existing.RiskScore
			c.TaggedAccounts[i] = tag
			replaced = true
			break
		}
	}
	if !replaced {
		c.TaggedAccounts = append(c.TaggedAccounts, tag)
	}

	c.Events = append(c.Events, CaseEvent{
		Timestamp:   now,
		EventType:   "tagged",
		Description: fmt.Sprintf("Account tagged as %s: %s", role, label),
		AccountID:   accountID,
	})
	c.UpdatedAt = now
}

// SetStatus updates the case lifecycle status.
func (c *Case) SetStatus(status string) {
	now := time.Now()
	c.Events = append(c.Events, CaseEvent{
		Timestamp:   now,
		EventType:   "status_changed",
		Description: "Status changed to " + status,
	})
	c.Status = status
	c.UpdatedAt = now
}

// Timeline returns the case events in chronological order.
func (c *Case) Timeline() []CaseEvent {
	events := append([]CaseEvent(nil), c.Events...)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}

// structuralRole derives the starting role for a ring member.
func structuralRole(ring models.Ring, member string) string {
	switch ring.PatternType {
	case models.PatternFanIn:
		if member == ring.Aggregator {
			return RoleMuleHub
		}
	case models.PatternFanOut:
		if member == ring.Disperser {
			return RoleMuleHub
		}
	case models.PatternCycle:
		return RoleCourier
	case models.PatternShellNetwork:
		for _, shell := range ring.ShellAccounts {
			if member == shell {
				return RoleShell
			}
		}
	}
	return RoleUnknown
}
