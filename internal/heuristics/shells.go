package heuristics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rawblock/muling-engine/pkg/models"
)

// Layered Shell Network Detection
//
// Layering pushes funds through pass-through accounts that exist only to
// obscure the trail. A shell is an account with 2-3 lifetime transactions:
// enough to receive and forward, too few to be a real participant. The
// search walks forward from every shell, extending paths only through
// further shells, and records each simple path of 3+ nodes whose interior
// crosses at least one shell. Endpoints may be ordinary accounts (the
// source and destination of the layered funds).
//
// Near-identical amounts hop to hop are the classic pass-through tell and
// raise the score.

// detectShellChains runs the bounded shell-chain search.
func (d *RingDetector) detectShellChains() {
	shellSet := make(map[string]bool)
	var shells []string
	for _, node := range d.g.Nodes() {
		data, ok := d.g.Node(node)
		if !ok {
			continue
		}
		if data.TxCountTotal >= d.cfg.ShellTxMin && data.TxCountTotal <= d.cfg.ShellTxMax {
			shellSet[node] = true
			shells = append(shells, node)
		}
	}
	if len(shells) == 0 {
		return
	}

	deadline := time.Now().Add(d.cfg.ShellDeadline)
	seen := make(map[string]bool)
	accepted := 0
	exhausted := false

	for _, shell := range shells {
		if exhausted {
			break
		}
		if time.Now().After(deadline) {
			d.diag(models.StageShellSearch, shell, "deadline reached, remaining shells skipped")
			break
		}

		start := shell
		d.guardUnit(models.StageShellSearch, start, func() {
			exhausted = !d.walkShellChains(start, shellSet, seen, deadline, &accepted)
		})
	}
}

// walkShellChains BFS-expands paths from one shell. Recording happens on
// every extension; expansion continues only through shell successors and
// stops at the chain node cap. Returns false once a budget is exhausted,
// with the diagnostic already recorded.
func (d *RingDetector) walkShellChains(start string, shellSet map[string]bool, seen map[string]bool, deadline time.Time, accepted *int) bool {
	queue := [][]string{{start}}

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		last := path[len(path)-1]

		for _, next := range d.g.Successors(last) {
			if contains(path, next) {
				continue
			}
			chain := append(append([]string(nil), path...), next)

			if len(chain) >= 3 && hasShellInterior(chain, shellSet) {
				key := chainKey(chain)
				if !seen[key] {
					seen[key] = true
					d.rings = append(d.rings, d.buildShellRing(chain, shellSet))
					*accepted++
					if *accepted >= d.cfg.MaxShellRings {
						d.diag(models.StageShellSearch, start,
							fmt.Sprintf("shell ring cap %d reached, search aborted", d.cfg.MaxShellRings))
						return false
					}
					if time.Now().After(deadline) {
						d.diag(models.StageShellSearch, start, "deadline reached, search aborted")
						return false
					}
				}
			}

			if len(chain) < d.cfg.ShellChainMaxNodes && shellSet[next] {
				queue = append(queue, chain)
			}
		}
	}
	return true
}

// hasShellInterior reports whether any node strictly between the endpoints
// is a shell.
func hasShellInterior(chain []string, shellSet map[string]bool) bool {
	for _, node := range chain[1 : len(chain)-1] {
		if shellSet[node] {
			return true
		}
	}
	return false
}

// buildShellRing scores one chain. Member order is the path order.
func (d *RingDetector) buildShellRing(chain []string, shellSet map[string]bool) models.Ring {
	members := append([]string(nil), chain...)

	var shellMembers []string
	for _, node := range members {
		if shellSet[node] {
			shellMembers = append(shellMembers, node)
		}
	}

	score := 35.0
	score += float64(len(shellMembers)) * 10

	switch {
	case len(members) >= 5:
		score += 15
	case len(members) >= 4:
		score += 10
	case len(members) >= 3:
		score += 5
	}

	// Pass-through layering keeps hop amounts nearly constant.
	var hopAmounts []float64
	for i := 0; i < len(members)-1; i++ {
		if e, ok := d.g.Edge(members[i], members[i+1]); ok {
			hopAmounts = append(hopAmounts, e.TotalAmount)
		}
	}
	if len(hopAmounts) >= 2 && meanOf(hopAmounts) > 0 {
		cv := coefficientOfVariation(hopAmounts)
		if cv < 0.2 {
			score += 15
		} else if cv < 0.4 {
			score += 10
		}
	}

	return models.Ring{
		RingID:         d.nextRingID(),
		PatternType:    models.PatternShellNetwork,
		MemberAccounts: members,
		RiskScore:      round2(clamp100(score)),
		ChainLength:    len(members),
		ShellAccounts:  shellMembers,
	}
}

func chainKey(chain []string) string {
	key := append([]string(nil), chain...)
	sort.Strings(key)
	return strings.Join(key, "\x1f")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
