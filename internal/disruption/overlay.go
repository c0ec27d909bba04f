package disruption

import "github.com/rawblock/muling-engine/pkg/models"

// partitionOverlay merges an externally computed suspicious/clean split for
// the ring, when one was supplied. The overlay is informational only; it
// never feeds back into the critical-node computation.
func (p *DisruptionPlanner) partitionOverlay(ringID string, members []string) models.PartitionOverlay {
	for _, est := range p.estimates {
		if est.RingID != ringID {
			continue
		}
		suspicious := make(map[string]bool, len(est.SuspiciousSet))
		for _, id := range est.SuspiciousSet {
			suspicious[id] = true
		}
		clean := make([]string, 0, len(members))
		for _, m := range members {
			if !suspicious[m] {
				clean = append(clean, m)
			}
		}
		return models.PartitionOverlay{
			Available:           true,
			SuspiciousPartition: append([]string(nil), est.SuspiciousSet...),
			CleanPartition:      clean,
			PartitionScore:      est.PartitionScore,
			QuantumAgreement:    p.partitionAgreement(est.SuspiciousSet, members),
		}
	}
	return models.PartitionOverlay{}
}

// partitionAgreement is the Jaccard overlap, in percent, between the supplied
// suspicious set and the members whose suspicion score exceeds 50. An empty
// suspicious set agrees with nothing; a ring with no classically flagged
// member has no ground truth, which reads as 50.
func (p *DisruptionPlanner) partitionAgreement(suspicious, members []string) float64 {
	if len(suspicious) == 0 {
		return 0
	}
	flagged := make(map[string]bool, len(suspicious))
	for _, id := range suspicious {
		flagged[id] = true
	}
	classical := make(map[string]bool)
	for _, m := range members {
		if p.scores[m] > 50 {
			classical[m] = true
		}
	}
	if len(classical) == 0 {
		return 50
	}

	overlap := 0
	union := len(classical)
	for id := range flagged {
		if classical[id] {
			overlap++
		} else {
			union++
		}
	}
	return round1(float64(overlap) / float64(max(union, 1)) * 100)
}
