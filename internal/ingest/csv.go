// Package ingest turns uploaded transaction data into the directed graph the
// detector and planner consume. Rows that cannot be repaired (bad amounts,
// unparseable timestamps, self transfers) are dropped and counted rather
// than failing the upload.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rawblock/muling-engine/internal/graph"
	"github.com/rawblock/muling-engine/pkg/models"
)

var (
	// ErrEmptyInput is returned when the upload has no data rows at all.
	ErrEmptyInput = errors.New("ingest: no data rows found")
	// ErrNoValidRows is returned when cleaning drops every row.
	ErrNoValidRows = errors.New("ingest: no valid transactions after cleaning")
)

// requiredColumns must all be present after header normalization.
var requiredColumns = []string{"transaction_id", "sender_id", "receiver_id", "amount", "timestamp"}

// currencyReplacer strips the symbols and thousands separators commonly
// pasted into amount columns.
var currencyReplacer = strings.NewReplacer("$", "", "€", "", "£", "", "₹", "", ",", "")

// timestampLayouts are tried in order. Exported files mix ISO variants and
// US-style dates depending on the reporting bank.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
}

// Dataset is one cleaned upload: the surviving transactions, the aggregated
// graph built from them, and summary metadata.
type Dataset struct {
	Transactions []models.Transaction
	Graph        *graph.TransactionGraph
	Metadata     models.DatasetMetadata
}

// ParseCSV reads a transaction CSV. The header is normalized (trimmed,
// lowercased, spaces to underscores) before the required columns are
// checked, so "Sender ID" and "sender_id" both work.
func ParseCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[normalizeHeader(name)] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := cols[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("ingest: missing required columns: %s", strings.Join(missing, ", "))
	}

	valid := make([]models.Transaction, 0, 1024)
	rows, skipped := 0, 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		rows++
		tx, ok := parseRow(record, cols)
		if !ok {
			skipped++
			continue
		}
		valid = append(valid, tx)
	}
	if rows == 0 {
		return nil, ErrEmptyInput
	}

	log.Printf("[Ingest] Parsed %d rows: %d kept, %d skipped", rows, len(valid), skipped)
	return buildDataset(valid, skipped)
}

// FromTransactions builds a dataset from already-structured transactions,
// applying the same cleaning rules as the CSV path.
func FromTransactions(txs []models.Transaction) (*Dataset, error) {
	if len(txs) == 0 {
		return nil, ErrEmptyInput
	}

	valid := make([]models.Transaction, 0, len(txs))
	skipped := 0
	for _, t := range txs {
		t.TransactionID = strings.TrimSpace(t.TransactionID)
		t.SenderID = strings.TrimSpace(t.SenderID)
		t.ReceiverID = strings.TrimSpace(t.ReceiverID)
		if !validTransaction(t) {
			skipped++
			continue
		}
		valid = append(valid, t)
	}
	return buildDataset(valid, skipped)
}

func validTransaction(t models.Transaction) bool {
	if t.SenderID == "" || t.ReceiverID == "" || t.SenderID == t.ReceiverID {
		return false
	}
	if !(t.Amount > 0) || math.IsInf(t.Amount, 0) {
		return false
	}
	return !t.Timestamp.IsZero()
}

func buildDataset(valid []models.Transaction, skipped int) (*Dataset, error) {
	if len(valid) == 0 {
		return nil, ErrNoValidRows
	}

	g := graph.New()
	for _, t := range valid {
		if err := g.AddTransaction(t); err != nil {
			return nil, fmt.Errorf("build graph: %w", err)
		}
	}
	g.Finalize()

	start, end := valid[0].Timestamp, valid[0].Timestamp
	for _, t := range valid[1:] {
		if t.Timestamp.Before(start) {
			start = t.Timestamp
		}
		if t.Timestamp.After(end) {
			end = t.Timestamp
		}
	}

	return &Dataset{
		Transactions: valid,
		Graph:        g,
		Metadata: models.DatasetMetadata{
			TotalTransactions: len(valid),
			TotalAccounts:     g.NodeCount(),
			TotalEdges:        g.EdgeCount(),
			SkippedRows:       skipped,
			DateRange:         models.DateRange{Start: start, End: end},
		},
	}, nil
}

func normalizeHeader(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func parseRow(record []string, cols map[string]int) (models.Transaction, bool) {
	get := func(name string) string {
		idx := cols[name]
		if idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	tx := models.Transaction{
		TransactionID: get("transaction_id"),
		SenderID:      get("sender_id"),
		ReceiverID:    get("receiver_id"),
	}

	amount, err := strconv.ParseFloat(currencyReplacer.Replace(get("amount")), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return models.Transaction{}, false
	}
	tx.Amount = amount

	ts, ok := parseTimestamp(get("timestamp"))
	if !ok {
		return models.Transaction{}, false
	}
	tx.Timestamp = ts

	return tx, validTransaction(tx)
}

func parseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
