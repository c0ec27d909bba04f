// Package metrics compares ring partitions across detector runs. The shadow
// evaluator uses these scores to judge whether a candidate configuration
// reshapes ring membership or merely renumbers it.
package metrics

import (
	"math"
	"sort"

	"github.com/rawblock/muling-engine/pkg/models"
)

// contingency cross-tabulates two equal-length label slices.
type contingency struct {
	n       int
	cells   [][]int
	rowSums []int
	colSums []int
}

func newContingency(a, b []int) contingency {
	aIndex := labelIndex(a)
	bIndex := labelIndex(b)

	cells := make([][]int, len(aIndex))
	for i := range cells {
		cells[i] = make([]int, len(bIndex))
	}
	for k := range a {
		cells[aIndex[a[k]]][bIndex[b[k]]]++
	}

	rowSums := make([]int, len(aIndex))
	colSums := make([]int, len(bIndex))
	for i := range cells {
		for j, c := range cells[i] {
			rowSums[i] += c
			colSums[j] += c
		}
	}
	return contingency{n: len(a), cells: cells, rowSums: rowSums, colSums: colSums}
}

// labelIndex maps labels to contiguous indices in first-seen order.
func labelIndex(labels []int) map[int]int {
	index := make(map[int]int)
	for _, l := range labels {
		if _, ok := index[l]; !ok {
			index[l] = len(index)
		}
	}
	return index
}

// AdjustedRandIndex scores the agreement between two account partitions.
//
// ARI = (RI - Expected_RI) / (Max_RI - Expected_RI)
//
// Values range from -1 (worse than random) to 1 (identical membership);
// 0 means the partitions agree no better than chance. Ring renumbering
// between runs does not move the score, only membership changes do.
func AdjustedRandIndex(a, b []int) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	ct := newContingency(a, b)

	sumCells := 0.0
	for i := range ct.cells {
		for _, c := range ct.cells[i] {
			sumCells += comb2(c)
		}
	}
	sumRows := 0.0
	for _, r := range ct.rowSums {
		sumRows += comb2(r)
	}
	sumCols := 0.0
	for _, c := range ct.colSums {
		sumCols += comb2(c)
	}

	nC2 := comb2(ct.n)
	if nC2 == 0 {
		return 0
	}
	expected := sumRows * sumCols / nC2
	maximum := (sumRows + sumCols) / 2
	if math.Abs(maximum-expected) < 1e-12 {
		return 1 // both partitions all singletons or one block
	}
	return (sumCells - expected) / (maximum - expected)
}

// VariationOfInformation is the information-theoretic distance between two
// partitions: VI(C, C') = H(C|C') + H(C'|C). Lower is better, 0 means the
// partitions are identical.
func VariationOfInformation(a, b []int) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	ct := newContingency(a, b)
	nf := float64(ct.n)

	vi := 0.0
	for i := range ct.cells {
		for j, c := range ct.cells[i] {
			if c == 0 {
				continue
			}
			pij := float64(c) / nf
			vi -= pij * math.Log2(float64(c)/float64(ct.colSums[j]))
			vi -= pij * math.Log2(float64(c)/float64(ct.rowSums[i]))
		}
	}
	return vi
}

// AccountUniverse returns the sorted union of member accounts across the
// given ring sets. Comparing two runs over this shared universe keeps their
// label slices aligned.
func AccountUniverse(ringSets ...[]models.Ring) []string {
	seen := make(map[string]bool)
	for _, rings := range ringSets {
		for _, r := range rings {
			for _, m := range r.MemberAccounts {
				seen[m] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// PartitionLabels assigns each universe account the 1-based index of the
// first ring containing it. Accounts outside every ring share label 0, so
// dropping an account from all rings registers as a membership change.
func PartitionLabels(universe []string, rings []models.Ring) []int {
	assignment := make(map[string]int)
	for idx, r := range rings {
		for _, m := range r.MemberAccounts {
			if _, ok := assignment[m]; !ok {
				assignment[m] = idx + 1
			}
		}
	}
	labels := make([]int, len(universe))
	for i, id := range universe {
		labels[i] = assignment[id]
	}
	return labels
}

// comb2 computes C(n, 2) = n*(n-1)/2.
func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2.0
}
