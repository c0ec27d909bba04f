package heuristics

import (
	"sort"
	"time"

	"github.com/rawblock/muling-engine/pkg/models"
)

// Smurfing Detection (Fan-in / Fan-out)
//
// Structuring moves value through many small transfers that converge on an
// aggregator (fan-in) or spray out of a disperser (fan-out). Signals:
//  1. Breadth: 10+ distinct counterparties on the flagged side.
//  2. Burstiness: transfer clusters inside a 72h window.
//  3. Velocity: total value moved through the hub.
//
// Merchant and payroll profiles are excluded first (see profile.go); they
// produce the same degree shape with legitimate traffic.

type txEvent struct {
	ts           time.Time
	counterparty string
	amount       float64
}

// detectFanPatterns scans every account for aggregation, then every account
// for dispersal. Two passes keep ring ids grouped by pattern.
func (d *RingDetector) detectFanPatterns() {
	nodes := d.g.Nodes()

	for _, node := range nodes {
		if d.g.InDegree(node) < d.cfg.FanThreshold {
			continue
		}
		hub := node
		d.guardUnit(models.StageFanIn, hub, func() {
			if d.looksLikeMerchant(hub) {
				return
			}
			d.rings = append(d.rings, d.buildFanInRing(hub))
		})
	}

	for _, node := range nodes {
		if d.g.OutDegree(node) < d.cfg.FanThreshold {
			continue
		}
		hub := node
		d.guardUnit(models.StageFanOut, hub, func() {
			if d.looksLikePayroll(hub) {
				return
			}
			d.rings = append(d.rings, d.buildFanOutRing(hub))
		})
	}
}

func (d *RingDetector) buildFanInRing(hub string) models.Ring {
	senders := d.g.Predecessors(hub)

	totalIn := 0.0
	var events []txEvent
	for _, sender := range senders {
		e, ok := d.g.Edge(sender, hub)
		if !ok {
			continue
		}
		totalIn += e.TotalAmount
		for _, tx := range e.Transactions {
			events = append(events, txEvent{ts: tx.Timestamp, counterparty: sender, amount: tx.Amount})
		}
	}

	burst := d.largestBurst(events)
	score := fanRiskScore(len(senders), burst, totalIn)

	// Downstream receivers belong to the ring too: the aggregator has to
	// move the collected funds somewhere.
	members := sortedUnion(senders, []string{hub}, d.g.Successors(hub))

	return models.Ring{
		RingID:         d.nextRingID(),
		PatternType:    models.PatternFanIn,
		MemberAccounts: members,
		RiskScore:      round2(score),
		Aggregator:     hub,
		SenderCount:    len(senders),
	}
}

func (d *RingDetector) buildFanOutRing(hub string) models.Ring {
	receivers := d.g.Successors(hub)

	totalOut := 0.0
	var events []txEvent
	for _, receiver := range receivers {
		e, ok := d.g.Edge(hub, receiver)
		if !ok {
			continue
		}
		totalOut += e.TotalAmount
		for _, tx := range e.Transactions {
			events = append(events, txEvent{ts: tx.Timestamp, counterparty: receiver, amount: tx.Amount})
		}
	}

	burst := d.largestBurst(events)
	score := fanRiskScore(len(receivers), burst, totalOut)

	members := sortedUnion(d.g.Predecessors(hub), []string{hub}, receivers)

	return models.Ring{
		RingID:         d.nextRingID(),
		PatternType:    models.PatternFanOut,
		MemberAccounts: members,
		RiskScore:      round2(score),
		Disperser:      hub,
		ReceiverCount:  len(receivers),
	}
}

// largestBurst finds the biggest cluster of transactions where every
// timestamp falls within the burst window of the cluster's first element.
// Clusters below the minimum size do not count; 0 means no burst.
func (d *RingDetector) largestBurst(events []txEvent) int {
	if len(events) == 0 {
		return 0
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].ts.Equal(events[j].ts) {
			return events[i].ts.Before(events[j].ts)
		}
		if events[i].counterparty != events[j].counterparty {
			return events[i].counterparty < events[j].counterparty
		}
		return events[i].amount < events[j].amount
	})

	largest := 0
	flush := func(size int) {
		if size >= d.cfg.BurstMinSize && size > largest {
			largest = size
		}
	}

	windowStart := events[0].ts
	size := 1
	for _, e := range events[1:] {
		if e.ts.Sub(windowStart) <= d.cfg.BurstWindow {
			size++
			continue
		}
		flush(size)
		windowStart = e.ts
		size = 1
	}
	flush(size)

	return largest
}

// fanRiskScore accumulates the smurfing signals.
func fanRiskScore(counterparties, maxBurst int, flow float64) float64 {
	score := 40.0

	switch {
	case counterparties >= 20:
		score += 20
	case counterparties >= 15:
		score += 15
	case counterparties >= 10:
		score += 10
	}

	switch {
	case maxBurst >= 15:
		score += 20
	case maxBurst >= 10:
		score += 15
	case maxBurst >= 5:
		score += 10
	}

	switch {
	case flow > 50000:
		score += 15
	case flow > 20000:
		score += 10
	case flow > 10000:
		score += 5
	}

	return clamp100(score)
}

// sortedUnion merges the groups into one sorted, deduplicated member list.
func sortedUnion(groups ...[]string) []string {
	set := make(map[string]bool)
	for _, group := range groups {
		for _, id := range group {
			set[id] = true
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
