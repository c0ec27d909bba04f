package heuristics

import "math"

// Account Profiling — False-Positive Filters
//
// High fan-in is not always muling. Merchants collect from many customers
// and payroll accounts disperse to many employees, and both would light up
// a naive fan search. Two signals separate them from mule hubs:
//  1. Degree shape. Merchants receive from many counterparties and pay out
//     to almost none; payroll mirrors that on the sending side.
//  2. Amount regularity. Legitimate flows repeat similar amounts, giving a
//     low coefficient of variation; structured mule deposits vary.
//
// References: FATF money-mule typologies; FinCEN SAR structuring guidance.

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// coefficientOfVariation returns the population CV of the samples. The
// epsilon keeps a zero mean from dividing out.
func coefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := meanOf(values)

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))

	return math.Sqrt(variance) / (mean + 1e-9)
}

// incomingAmounts lists every per-transaction amount flowing into id.
func (d *RingDetector) incomingAmounts(id string) []float64 {
	var amounts []float64
	for _, sender := range d.g.Predecessors(id) {
		if e, ok := d.g.Edge(sender, id); ok {
			for _, tx := range e.Transactions {
				amounts = append(amounts, tx.Amount)
			}
		}
	}
	return amounts
}

// outgoingAmounts lists every per-transaction amount flowing out of id.
func (d *RingDetector) outgoingAmounts(id string) []float64 {
	var amounts []float64
	for _, receiver := range d.g.Successors(id) {
		if e, ok := d.g.Edge(id, receiver); ok {
			for _, tx := range e.Transactions {
				amounts = append(amounts, tx.Amount)
			}
		}
	}
	return amounts
}

// looksLikeMerchant reports whether a fan-in hub matches a legitimate
// collection profile. Either the degree shape or the amount regularity
// alone is enough to exclude it.
func (d *RingDetector) looksLikeMerchant(id string) bool {
	inDeg := d.g.InDegree(id)
	if inDeg == 0 {
		return false
	}

	// Receives from many, sends to almost none (refunds only).
	if d.g.OutDegree(id) <= d.cfg.MerchantMaxOutDegree && inDeg > d.cfg.MerchantMinInDegree {
		return true
	}

	// Regular incoming amounts point to pricing, not structuring.
	amounts := d.incomingAmounts(id)
	if len(amounts) > d.cfg.ProfileMinSamples &&
		coefficientOfVariation(amounts) < d.cfg.MerchantCVLimit {
		return true
	}

	return false
}

// looksLikePayroll reports whether a fan-out hub matches a salary-run
// profile. Both the degree shape and the amount regularity must agree;
// a disperser funded by one source but paying irregular amounts still
// counts as suspicious.
func (d *RingDetector) looksLikePayroll(id string) bool {
	if d.g.OutDegree(id) == 0 {
		return false
	}

	if d.g.InDegree(id) <= d.cfg.PayrollMaxInDegree && d.g.OutDegree(id) > d.cfg.PayrollMinOutDegree {
		amounts := d.outgoingAmounts(id)
		if len(amounts) > d.cfg.ProfileMinSamples &&
			coefficientOfVariation(amounts) < d.cfg.PayrollCVLimit {
			return true
		}
	}

	return false
}
