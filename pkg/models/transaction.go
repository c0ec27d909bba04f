package models

import "time"

// Transaction is one validated transfer row after ingestion cleanup.
type Transaction struct {
	TransactionID string    `json:"transaction_id"`
	SenderID      string    `json:"sender_id"`
	ReceiverID    string    `json:"receiver_id"`
	Amount        float64   `json:"amount"` // positive, currency symbols stripped
	Timestamp     time.Time `json:"timestamp"`
}

// DateRange bounds the timestamps observed in a dataset.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DatasetMetadata summarizes one ingested transaction file.
type DatasetMetadata struct {
	TotalTransactions int       `json:"total_transactions"` // rows kept after cleaning
	TotalAccounts     int       `json:"total_accounts"`
	TotalEdges        int       `json:"total_edges"` // distinct sender->receiver pairs
	SkippedRows       int       `json:"skipped_rows"`
	DateRange         DateRange `json:"date_range"`
}
