package heuristics

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rawblock/muling-engine/internal/graph"
	"github.com/rawblock/muling-engine/pkg/models"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

var txSeq int

func tx(from, to string, amount float64, offset time.Duration) models.Transaction {
	txSeq++
	return models.Transaction{
		TransactionID: fmt.Sprintf("tx%04d", txSeq),
		SenderID:      from,
		ReceiverID:    to,
		Amount:        amount,
		Timestamp:     base.Add(offset),
	}
}

func buildGraph(t *testing.T, txs ...models.Transaction) *graph.TransactionGraph {
	t.Helper()
	g := graph.New()
	for _, txn := range txs {
		if err := g.AddTransaction(txn); err != nil {
			t.Fatalf("AddTransaction: %v", err)
		}
	}
	g.Finalize()
	return g
}

func detect(t *testing.T, g *graph.TransactionGraph) *models.DetectionResult {
	t.Helper()
	result, err := NewRingDetector(g, DefaultDetectorConfig()).Detect()
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	return result
}

// triangleTxs builds A->B->C->A with two transfers per edge (so no account
// sits in the shell range) totaling 12000 per edge, all inside 10 hours.
func triangleTxs() []models.Transaction {
	return []models.Transaction{
		tx("ACC_A", "ACC_B", 6000, 0),
		tx("ACC_A", "ACC_B", 6000, time.Hour),
		tx("ACC_B", "ACC_C", 6000, 3*time.Hour),
		tx("ACC_B", "ACC_C", 6000, 4*time.Hour),
		tx("ACC_C", "ACC_A", 6000, 8*time.Hour),
		tx("ACC_C", "ACC_A", 6000, 10*time.Hour),
	}
}

func TestDetect_TriangleCycle(t *testing.T) {
	// 36000 moved around a 3-cycle inside 10 hours:
	// 50 base + 15 amount + 20 velocity + 5 short-cycle = 90.
	g := buildGraph(t, triangleTxs()...)

	result := detect(t, g)

	if len(result.Rings) != 1 {
		t.Fatalf("Expected exactly one ring. Got: %d (%+v)", len(result.Rings), result.Rings)
	}
	ring := result.Rings[0]
	if ring.PatternType != models.PatternCycle {
		t.Errorf("Expected pattern cycle. Got: %s", ring.PatternType)
	}
	if ring.RingID != "RING_001" {
		t.Errorf("Expected RING_001. Got: %s", ring.RingID)
	}
	if ring.RiskScore < 90 {
		t.Errorf("Expected risk >= 90. Got: %.2f", ring.RiskScore)
	}
	if ring.CycleLength != 3 {
		t.Errorf("Expected cycle length 3. Got: %d", ring.CycleLength)
	}
	// Canonical rotation starts at the smallest member; three rotations of
	// the same cycle collapse into this one ring.
	if !reflect.DeepEqual(ring.MemberAccounts, []string{"ACC_A", "ACC_B", "ACC_C"}) {
		t.Errorf("Expected canonical members [ACC_A ACC_B ACC_C]. Got: %v", ring.MemberAccounts)
	}

	if len(result.AccountFlags) != 3 {
		t.Fatalf("Expected 3 flagged accounts. Got: %d", len(result.AccountFlags))
	}
	flag := result.AccountFlags[0]
	if flag.AccountID != "ACC_A" || len(flag.Patterns) != 1 || flag.Patterns[0] != "cycle_length_3" {
		t.Errorf("Unexpected flag for ACC_A: %+v", flag)
	}
	if flag.GraphScore != ring.RiskScore {
		t.Errorf("Expected graph score %.2f. Got: %.2f", ring.RiskScore, flag.GraphScore)
	}
}

func TestDetect_LongCyclesNotEnumerated(t *testing.T) {
	// A 6-node cycle exceeds the length cap; padding transfers keep every
	// account out of the shell range.
	var txs []models.Transaction
	nodes := []string{"H1", "H2", "H3", "H4", "H5", "H6"}
	for i, n := range nodes {
		txs = append(txs, tx(n, nodes[(i+1)%6], 1000, time.Duration(i)*time.Hour))
		txs = append(txs, tx(n, "SINK", 10, 0), tx(n, "SINK", 10, time.Hour))
	}
	g := buildGraph(t, txs...)

	result := detect(t, g)

	if len(result.Rings) != 0 {
		t.Errorf("Expected no rings for a 6-cycle. Got: %d (%+v)", len(result.Rings), result.Rings)
	}
}

func TestDetect_FanInThresholdIsInclusive(t *testing.T) {
	// 9 distinct senders stay silent, the 10th trips the wire.
	nine := make([]models.Transaction, 0, 9)
	for i := 0; i < 9; i++ {
		nine = append(nine, tx(fmt.Sprintf("S%02d", i), "HUB", float64(100*(i+1)), time.Duration(i)*time.Minute))
	}
	if result := detect(t, buildGraph(t, nine...)); len(result.Rings) != 0 {
		t.Errorf("Expected no rings with 9 senders. Got: %d", len(result.Rings))
	}

	ten := make([]models.Transaction, 0, 10)
	for i := 0; i < 10; i++ {
		ten = append(ten, tx(fmt.Sprintf("S%02d", i), "HUB", float64(100*(i+1)), time.Duration(i)*time.Minute))
	}
	result := detect(t, buildGraph(t, ten...))

	if len(result.Rings) != 1 {
		t.Fatalf("Expected one ring with 10 senders. Got: %d", len(result.Rings))
	}
	ring := result.Rings[0]
	if ring.PatternType != models.PatternFanIn {
		t.Errorf("Expected fan_in. Got: %s", ring.PatternType)
	}
	if ring.Aggregator != "HUB" || ring.SenderCount != 10 {
		t.Errorf("Expected HUB aggregating 10 senders. Got: %s / %d", ring.Aggregator, ring.SenderCount)
	}
	// 40 base + 10 counterparties + 15 burst (10 txs in one hour), flow 5500
	// earns nothing.
	if ring.RiskScore != 65 {
		t.Errorf("Expected risk 65. Got: %.2f", ring.RiskScore)
	}
	if len(ring.MemberAccounts) != 11 {
		t.Errorf("Expected 10 senders + hub as members. Got: %d", len(ring.MemberAccounts))
	}
}

func TestDetect_MerchantNotFlaggedAsFanIn(t *testing.T) {
	// Twelve customers paying the same 250 price: CV near zero, merchant.
	var regular []models.Transaction
	for i := 0; i < 12; i++ {
		regular = append(regular, tx(fmt.Sprintf("C%02d", i), "SHOP", 250, time.Duration(i)*time.Hour))
	}
	if result := detect(t, buildGraph(t, regular...)); len(result.Rings) != 0 {
		t.Errorf("Expected merchant filtered out. Got: %d rings", len(result.Rings))
	}

	// Same shape with structured, irregular amounts is flagged.
	var irregular []models.Transaction
	for i := 0; i < 12; i++ {
		irregular = append(irregular, tx(fmt.Sprintf("C%02d", i), "SHOP", float64(200+i*400), time.Duration(i)*time.Hour))
	}
	result := detect(t, buildGraph(t, irregular...))
	if len(result.Rings) != 1 || result.Rings[0].PatternType != models.PatternFanIn {
		t.Errorf("Expected one fan_in ring for irregular amounts. Got: %+v", result.Rings)
	}
}

func TestDetect_PayrollNotFlaggedAsFanOut(t *testing.T) {
	// One company account paying 21 employees the same salary.
	payroll := []models.Transaction{
		tx("COMPANY", "PAYROLL", 80000, 0),
		tx("COMPANY", "PAYROLL", 80000, 30*24*time.Hour),
	}
	for i := 0; i < 21; i++ {
		payroll = append(payroll, tx("PAYROLL", fmt.Sprintf("E%02d", i), 3000, time.Duration(i)*time.Minute))
	}
	if result := detect(t, buildGraph(t, payroll...)); len(result.Rings) != 0 {
		t.Errorf("Expected payroll filtered out. Got: %d rings", len(result.Rings))
	}

	// A disperser spraying alternating 500/9500 amounts is not payroll.
	spray := []models.Transaction{
		tx("FEEDER", "SPRAY", 120000, 0),
		tx("FEEDER", "SPRAY", 120000, time.Hour),
	}
	for i := 0; i < 21; i++ {
		amount := 500.0
		if i%2 == 1 {
			amount = 9500.0
		}
		// Five-day spacing keeps any 72h window under the burst minimum.
		spray = append(spray, tx("SPRAY", fmt.Sprintf("R%02d", i), amount, time.Duration(i)*120*time.Hour))
	}
	result := detect(t, buildGraph(t, spray...))

	if len(result.Rings) != 1 {
		t.Fatalf("Expected one fan_out ring. Got: %d", len(result.Rings))
	}
	ring := result.Rings[0]
	if ring.PatternType != models.PatternFanOut || ring.Disperser != "SPRAY" || ring.ReceiverCount != 21 {
		t.Errorf("Unexpected fan_out ring: %+v", ring)
	}
	// 40 base + 20 counterparties + 0 burst + 15 flow (105000).
	if ring.RiskScore != 75 {
		t.Errorf("Expected risk 75. Got: %.2f", ring.RiskScore)
	}
}

func TestDetect_ShellChain(t *testing.T) {
	// VICTIM -> SH1 -> SH2 -> EXIT with equal 5000 hops. SH1 and SH2 have
	// two lifetime transactions each: textbook pass-throughs.
	g := buildGraph(t,
		tx("VICTIM", "SH1", 5000, 0),
		tx("SH1", "SH2", 5000, time.Hour),
		tx("SH2", "EXIT", 5000, 2*time.Hour),
	)

	result := detect(t, g)

	if len(result.Rings) != 1 {
		t.Fatalf("Expected one shell ring. Got: %d (%+v)", len(result.Rings), result.Rings)
	}
	ring := result.Rings[0]
	if ring.PatternType != models.PatternShellNetwork {
		t.Errorf("Expected shell_network. Got: %s", ring.PatternType)
	}
	if !reflect.DeepEqual(ring.MemberAccounts, []string{"SH1", "SH2", "EXIT"}) {
		t.Errorf("Expected path-ordered members. Got: %v", ring.MemberAccounts)
	}
	if !reflect.DeepEqual(ring.ShellAccounts, []string{"SH1", "SH2"}) {
		t.Errorf("Expected shell accounts SH1, SH2. Got: %v", ring.ShellAccounts)
	}
	if ring.ChainLength != 3 {
		t.Errorf("Expected chain length 3. Got: %d", ring.ChainLength)
	}
	// 35 base + 20 shells + 5 length + 15 constant hop amounts.
	if ring.RiskScore != 75 {
		t.Errorf("Expected risk 75. Got: %.2f", ring.RiskScore)
	}

	for _, flag := range result.AccountFlags {
		switch flag.AccountID {
		case "SH1", "SH2":
			if flag.Patterns[0] != "shell_intermediary" {
				t.Errorf("Expected shell_intermediary for %s. Got: %v", flag.AccountID, flag.Patterns)
			}
		case "EXIT":
			if flag.Patterns[0] != "shell_network_endpoint" {
				t.Errorf("Expected shell_network_endpoint for EXIT. Got: %v", flag.Patterns)
			}
		}
	}
}

func TestDetect_FourTransactionsIsNotAShell(t *testing.T) {
	// SH2 gains two extra transfers, leaving the shell range [2,3].
	g := buildGraph(t,
		tx("VICTIM", "SH1", 5000, 0),
		tx("SH1", "SH2", 5000, time.Hour),
		tx("SH2", "EXIT", 5000, 2*time.Hour),
		tx("SH2", "SIDE", 10, 3*time.Hour),
		tx("SH2", "SIDE", 10, 4*time.Hour),
	)

	result := detect(t, g)

	for _, ring := range result.Rings {
		if ring.PatternType == models.PatternShellNetwork {
			t.Errorf("Expected no shell ring when the intermediary has 4 transactions. Got: %+v", ring)
		}
	}
}

func TestDetect_Deterministic(t *testing.T) {
	txs := triangleTxs()
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(fmt.Sprintf("S%02d", i), "HUB", float64(150*(i+1)), time.Duration(i)*time.Minute))
	}
	txs = append(txs,
		tx("VICTIM", "SH1", 5000, 0),
		tx("SH1", "SH2", 5000, time.Hour),
		tx("SH2", "EXIT", 5000, 2*time.Hour),
	)

	first := detect(t, buildGraph(t, txs...))
	second := detect(t, buildGraph(t, txs...))

	if !reflect.DeepEqual(first.Rings, second.Rings) {
		t.Errorf("Expected identical rings across fresh runs.\nFirst: %+v\nSecond: %+v", first.Rings, second.Rings)
	}
	if !reflect.DeepEqual(first.AccountFlags, second.AccountFlags) {
		t.Errorf("Expected identical account flags across fresh runs")
	}
}

func TestDetect_NilGraph(t *testing.T) {
	_, err := NewRingDetector(nil, DefaultDetectorConfig()).Detect()
	if err != ErrNilGraph {
		t.Errorf("Expected ErrNilGraph. Got: %v", err)
	}
}

func TestDetect_DegenerateGraph(t *testing.T) {
	result, err := NewRingDetector(graph.New(), DefaultDetectorConfig()).Detect()
	if err != nil {
		t.Fatalf("Expected degenerate input to succeed. Got: %v", err)
	}
	if len(result.Rings) != 0 {
		t.Errorf("Expected no rings. Got: %d", len(result.Rings))
	}
	if len(result.Diagnostics) != 1 || result.Diagnostics[0].Stage != models.StageDetection {
		t.Errorf("Expected one detection diagnostic. Got: %+v", result.Diagnostics)
	}
}

func TestDetect_CycleCapReturnsPartialResults(t *testing.T) {
	// Two disjoint triangles but room for only one cycle.
	var txs []models.Transaction
	for _, tri := range [][3]string{{"A1", "B1", "C1"}, {"A2", "B2", "C2"}} {
		for i := 0; i < 3; i++ {
			from, to := tri[i], tri[(i+1)%3]
			txs = append(txs, tx(from, to, 2000, time.Duration(i)*time.Hour))
			txs = append(txs, tx(from, to, 2000, time.Duration(i+1)*time.Hour))
		}
	}
	cfg := DefaultDetectorConfig()
	cfg.MaxCycles = 1

	result, err := NewRingDetector(buildGraph(t, txs...), cfg).Detect()
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	cycles := 0
	for _, ring := range result.Rings {
		if ring.PatternType == models.PatternCycle {
			cycles++
		}
	}
	if cycles != 1 {
		t.Errorf("Expected exactly one cycle ring under the cap. Got: %d", cycles)
	}

	found := false
	for _, diag := range result.Diagnostics {
		if diag.Stage == models.StageCycleSearch && strings.Contains(diag.Reason, "cycle cap 1 reached") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a cycle cap diagnostic. Got: %+v", result.Diagnostics)
	}
}

func TestDetect_ShellCapReturnsPartialResults(t *testing.T) {
	g := buildGraph(t,
		tx("V1", "SA1", 1000, 0),
		tx("SA1", "SA2", 1000, time.Hour),
		tx("SA2", "X1", 1000, 2*time.Hour),
		tx("V2", "SB1", 1000, 0),
		tx("SB1", "SB2", 1000, time.Hour),
		tx("SB2", "X2", 1000, 2*time.Hour),
	)
	cfg := DefaultDetectorConfig()
	cfg.MaxShellRings = 1

	result, err := NewRingDetector(g, cfg).Detect()
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	shellRings := 0
	for _, ring := range result.Rings {
		if ring.PatternType == models.PatternShellNetwork {
			shellRings++
		}
	}
	if shellRings != 1 {
		t.Errorf("Expected exactly one shell ring under the cap. Got: %d", shellRings)
	}

	found := false
	for _, diag := range result.Diagnostics {
		if diag.Stage == models.StageShellSearch && strings.Contains(diag.Reason, "cap 1 reached") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a shell cap diagnostic. Got: %+v", result.Diagnostics)
	}
}

func TestSuspicionFromFlags(t *testing.T) {
	flags := []models.AccountFlag{
		{AccountID: "A", GraphScore: 90},
		{AccountID: "B", GraphScore: 65.5},
	}

	suspicion := SuspicionFromFlags(flags)

	if suspicion["A"] != 90 || suspicion["B"] != 65.5 {
		t.Errorf("Unexpected suspicion map: %v", suspicion)
	}
}
