package heuristics

import (
	"fmt"
	"sort"
	"time"

	"github.com/rawblock/muling-engine/pkg/models"
)

// Circular Routing Detection
//
// Funds that return to their origin through a short chain of accounts are
// the classic muling signature. The search:
//  1. Restricts to strongly connected components of 3+ nodes; cycles
//     cannot exist outside them.
//  2. Enumerates simple cycles of length 3-5 per component with a DFS
//     that only discovers each cycle from its smallest member, so every
//     candidate arrives already in canonical rotation and rotations never
//     produce duplicate rings.
//  3. Scores on moved amount, time span of the cyclic transactions and
//     cycle length.
//
// The search is budgeted by a cycle cap and a wall-clock deadline, both
// checked at component boundaries and after each accepted cycle. Hitting a
// budget returns partial results and a diagnostic, never an error.

// detectCycles runs the bounded cycle search over every qualifying SCC.
func (d *RingDetector) detectCycles() {
	deadline := time.Now().Add(d.cfg.CycleDeadline)
	accepted := 0
	exhausted := false

	for _, scc := range d.g.StronglyConnectedComponents() {
		if exhausted {
			break
		}
		if len(scc) < 3 {
			continue
		}
		if time.Now().After(deadline) {
			d.diag(models.StageCycleSearch, scc[0], "deadline reached, remaining components skipped")
			break
		}

		component := scc
		d.guardUnit(models.StageCycleSearch, component[0], func() {
			exhausted = !d.searchComponent(component, deadline, &accepted)
		})
	}
}

// searchComponent enumerates cycles inside one SCC. Start nodes ascend and
// paths only extend through nodes greater than the start, which yields each
// simple cycle exactly once, rotated to its smallest member. Returns false
// once a budget is exhausted so the caller stops scheduling components.
func (d *RingDetector) searchComponent(scc []string, deadline time.Time, accepted *int) bool {
	inSCC := make(map[string]bool, len(scc))
	for _, n := range scc {
		inSCC[n] = true
	}

	path := make([]string, 0, d.cfg.CycleMaxLength)
	inPath := make(map[string]bool, d.cfg.CycleMaxLength)

	var extend func(v, start string) bool
	extend = func(v, start string) bool {
		for _, w := range d.g.Successors(v) {
			if !inSCC[w] {
				continue
			}
			if w == start && len(path) >= d.cfg.CycleMinLength {
				d.rings = append(d.rings, d.buildCycleRing(path))
				*accepted++
				if *accepted >= d.cfg.MaxCycles {
					d.diag(models.StageCycleSearch, start,
						fmt.Sprintf("cycle cap %d reached, search aborted", d.cfg.MaxCycles))
					return false
				}
				if time.Now().After(deadline) {
					d.diag(models.StageCycleSearch, start, "deadline reached, search aborted")
					return false
				}
				continue
			}
			if w <= start || inPath[w] || len(path) >= d.cfg.CycleMaxLength {
				continue
			}
			path = append(path, w)
			inPath[w] = true
			ok := extend(w, start)
			path = path[:len(path)-1]
			delete(inPath, w)
			if !ok {
				return false
			}
		}
		return true
	}

	for _, start := range scc {
		path = append(path[:0], start)
		for k := range inPath {
			delete(inPath, k)
		}
		inPath[start] = true
		if !extend(start, start) {
			return false
		}
	}
	return true
}

// buildCycleRing scores one canonical cycle, including the wrap-around edge
// back to the start.
func (d *RingDetector) buildCycleRing(path []string) models.Ring {
	members := append([]string(nil), path...)
	k := len(members)

	totalAmount := 0.0
	var stamps []time.Time
	for i := range members {
		e, ok := d.g.Edge(members[i], members[(i+1)%k])
		if !ok {
			continue
		}
		totalAmount += e.TotalAmount
		for _, tx := range e.Transactions {
			stamps = append(stamps, tx.Timestamp)
		}
	}

	score := 50.0

	switch {
	case totalAmount > 10000:
		score += 15
	case totalAmount > 5000:
		score += 10
	case totalAmount > 1000:
		score += 5
	}

	// Fast cycling is the strongest signal.
	if len(stamps) > 0 {
		sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
		span := stamps[len(stamps)-1].Sub(stamps[0])
		switch {
		case span <= 24*time.Hour:
			score += 20
		case span <= 72*time.Hour:
			score += 15
		case span <= 168*time.Hour:
			score += 10
		}
	}

	if k == 3 {
		score += 5
	}

	return models.Ring{
		RingID:         d.nextRingID(),
		PatternType:    models.PatternCycle,
		MemberAccounts: members,
		RiskScore:      round2(clamp100(score)),
		CycleLength:    k,
	}
}
