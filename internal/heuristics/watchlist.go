package heuristics

import (
	"sort"
	"sync"
	"time"

	"github.com/rawblock/muling-engine/pkg/models"
)

// Account Watchlist
//
// Concurrent-safe account monitoring for open investigations. Every
// completed analysis is checked against the watchlist; a watched account
// appearing in a detected ring fires a hit.
//
// Lookup is O(1) on a map-based set. sync.RWMutex allows concurrent reads
// on the hot path (checking detection output) while adds and removes are
// serialized.
//
// Categories:
//   mule_hub   — known aggregators/dispersers
//   shell      — known pass-through accounts
//   victim     — compromised source accounts
//   suspect    — accounts under investigation
//   sanctioned — listed accounts

// WatchedAccount holds metadata for a monitored account.
type WatchedAccount struct {
	AccountID  string    `json:"account_id"`
	Category   string    `json:"category"` // mule_hub/shell/victim/suspect/sanctioned
	Label      string    `json:"label"`
	CaseID     string    `json:"case_id"`
	AddedAt    time.Time `json:"added_at"`
	AlertLevel string    `json:"alert_level"` // low/medium/high/critical
}

// WatchlistHit is one watched account found in a detected ring.
type WatchlistHit struct {
	AccountID   string  `json:"account_id"`
	Category    string  `json:"category"`
	Label       string  `json:"label"`
	CaseID      string  `json:"case_id"`
	RingID      string  `json:"ring_id"`
	PatternType string  `json:"pattern_type"`
	RiskScore   float64 `json:"risk_score"`
	AlertLevel  string  `json:"alert_level"`
}

// AccountWatchlist is a concurrent-safe account monitoring set.
type AccountWatchlist struct {
	mu       sync.RWMutex
	accounts map[string]WatchedAccount
}

// NewAccountWatchlist creates an empty watchlist.
func NewAccountWatchlist() *AccountWatchlist {
	return &AccountWatchlist{
		accounts: make(map[string]WatchedAccount),
	}
}

// Add registers an account for monitoring.
func (w *AccountWatchlist) Add(accountID, category, label, caseID, alertLevel string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.accounts[accountID] = WatchedAccount{
		AccountID:  accountID,
		Category:   category,
		Label:      label,
		CaseID:     caseID,
		AddedAt:    time.Now(),
		AlertLevel: alertLevel,
	}
}

// Remove stops monitoring an account.
func (w *AccountWatchlist) Remove(accountID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.accounts, accountID)
}

// Contains checks if an account is watchlisted.
func (w *AccountWatchlist) Contains(accountID string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, exists := w.accounts[accountID]
	return exists
}

// Get returns the watchlist entry for an account.
func (w *AccountWatchlist) Get(accountID string) (WatchedAccount, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	entry, exists := w.accounts[accountID]
	return entry, exists
}

// CheckDetection scans a detection result for watchlisted ring members.
// Returns one hit per (account, ring) pair, in ring order.
func (w *AccountWatchlist) CheckDetection(result *models.DetectionResult) []WatchlistHit {
	if result == nil {
		return nil
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	var hits []WatchlistHit
	for _, ring := range result.Rings {
		for _, member := range ring.MemberAccounts {
			entry, exists := w.accounts[member]
			if !exists {
				continue
			}
			hits = append(hits, WatchlistHit{
				AccountID:   member,
				Category:    entry.Category,
				Label:       entry.Label,
				CaseID:      entry.CaseID,
				RingID:      ring.RingID,
				PatternType: ring.PatternType,
				RiskScore:   ring.RiskScore,
				AlertLevel:  entry.AlertLevel,
			})
		}
	}
	return hits
}

// LoadFromCase populates the watchlist from a case's tagged accounts.
func (w *AccountWatchlist) LoadFromCase(c *Case) {
	for _, tag := range c.TaggedAccounts {
		alertLevel := SeverityMedium
		if tag.Role == RoleMuleHub || tag.Role == RoleSuspect {
			alertLevel = SeverityHigh
		}
		w.Add(tag.AccountID, tag.Role, tag.Label, c.ID, alertLevel)
	}
}

// Size returns the number of watched accounts.
func (w *AccountWatchlist) Size() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.accounts)
}

// ListAll returns all watched accounts sorted by account id.
func (w *AccountWatchlist) ListAll() []WatchedAccount {
	w.mu.RLock()
	defer w.mu.RUnlock()

	list := make([]WatchedAccount, 0, len(w.accounts))
	for _, entry := range w.accounts {
		list = append(list, entry)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AccountID < list[j].AccountID })
	return list
}
