package heuristics

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rawblock/muling-engine/internal/graph"
	"github.com/rawblock/muling-engine/pkg/models"
)

func TestCoefficientOfVariation(t *testing.T) {
	if cv := coefficientOfVariation([]float64{250, 250, 250}); cv > 1e-9 {
		t.Errorf("Expected CV 0 for constant amounts. Got: %f", cv)
	}

	// Population std of {100,200,300} is 81.65, mean 200.
	cv := coefficientOfVariation([]float64{100, 200, 300})
	if math.Abs(cv-0.4082) > 0.001 {
		t.Errorf("Expected CV 0.4082. Got: %f", cv)
	}

	if cv := coefficientOfVariation(nil); cv != 0 {
		t.Errorf("Expected CV 0 for no samples. Got: %f", cv)
	}
}

func detectorOver(t *testing.T, txs ...models.Transaction) *RingDetector {
	t.Helper()
	return NewRingDetector(buildGraph(t, txs...), DefaultDetectorConfig())
}

func TestLooksLikeMerchant_DegreeShape(t *testing.T) {
	// 21 customers, no outgoing refunds: merchant on degree shape alone,
	// even with irregular amounts.
	var txs []models.Transaction
	for i := 0; i < 21; i++ {
		txs = append(txs, tx(fmt.Sprintf("C%02d", i), "SHOP", float64(100+i*900), time.Duration(i)*time.Hour))
	}
	d := detectorOver(t, txs...)

	if !d.looksLikeMerchant("SHOP") {
		t.Error("Expected degree-shaped merchant to be recognized")
	}
	if d.looksLikeMerchant("C00") {
		t.Error("Expected a one-transfer customer not to look like a merchant")
	}
}

func TestLooksLikeMerchant_RegularAmounts(t *testing.T) {
	// Only 12 customers (degree shape inconclusive) but a fixed price.
	var txs []models.Transaction
	for i := 0; i < 12; i++ {
		txs = append(txs, tx(fmt.Sprintf("C%02d", i), "SHOP", 250, time.Duration(i)*time.Hour))
	}
	d := detectorOver(t, txs...)

	if !d.looksLikeMerchant("SHOP") {
		t.Error("Expected regular-amount merchant to be recognized")
	}
}

func TestLooksLikePayroll_RequiresBothSignals(t *testing.T) {
	// Degree shape alone is not payroll; the amounts must be regular too.
	regular := []models.Transaction{tx("CO", "PAY", 80000, 0)}
	irregular := []models.Transaction{tx("CO", "VAR", 80000, 0)}
	for i := 0; i < 21; i++ {
		offset := time.Duration(i) * time.Minute
		regular = append(regular, tx("PAY", fmt.Sprintf("E%02d", i), 3000, offset))
		irregular = append(irregular, tx("VAR", fmt.Sprintf("E%02d", i), float64(500+i*800), offset))
	}

	if d := detectorOver(t, regular...); !d.looksLikePayroll("PAY") {
		t.Error("Expected regular salary run to look like payroll")
	}
	if d := detectorOver(t, irregular...); d.looksLikePayroll("VAR") {
		t.Error("Expected irregular disperser not to look like payroll")
	}
}

func TestLargestBurst(t *testing.T) {
	d := NewRingDetector(graph.New(), DefaultDetectorConfig())

	// Six transfers inside 72h, a long gap, then five more: the first
	// cluster wins.
	var events []txEvent
	for i := 0; i < 6; i++ {
		events = append(events, txEvent{ts: base.Add(time.Duration(i) * time.Hour), counterparty: "X", amount: 100})
	}
	for i := 0; i < 5; i++ {
		events = append(events, txEvent{ts: base.Add(500*time.Hour + time.Duration(i)*time.Hour), counterparty: "Y", amount: 100})
	}

	if got := d.largestBurst(events); got != 6 {
		t.Errorf("Expected largest burst 6. Got: %d", got)
	}

	// Four transfers never form a burst (minimum is 5).
	small := append([]txEvent(nil), events[:4]...)
	if got := d.largestBurst(small); got != 0 {
		t.Errorf("Expected no burst below the minimum size. Got: %d", got)
	}

	if got := d.largestBurst(nil); got != 0 {
		t.Errorf("Expected no burst for no events. Got: %d", got)
	}
}
