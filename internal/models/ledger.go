package models

import (
	"fmt"
	"time"
)

// Ledger entry statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Error codes recorded in the ledger. UNKNOWN_REPORT_TYPE and
// MAX_RETRIES_REACHED are terminal; PARSE_FAILED and STORE_UPSERT_FAILED
// are retry-eligible on a later run. LEDGER_UNAVAILABLE only ever appears
// in results, never in the ledger itself.
const (
	ErrUnknownReportType = "UNKNOWN_REPORT_TYPE"
	ErrParseFailed       = "PARSE_FAILED"
	ErrStoreUpsertFailed = "STORE_UPSERT_FAILED"
	ErrMaxRetriesReached = "MAX_RETRIES_REACHED"
	ErrLedgerUnavailable = "LEDGER_UNAVAILABLE"
)

// LedgerEntry is the durable idempotency record for one
// (tenant, source message) pair. It is created on the first processing
// attempt, updated in place on retries, and never deleted, so the
// collection doubles as the ingestion audit trail.
type LedgerEntry struct {
	TenantID     string    `firestore:"tenantId"`
	SourceID     string    `firestore:"sourceId"`
	ReportType   string    `firestore:"reportType,omitempty"`
	Status       string    `firestore:"status"`
	ReportID     string    `firestore:"reportId,omitempty"`
	RowsInserted int       `firestore:"rowsInserted"`
	DurationMs   int64     `firestore:"durationMs"`
	ErrorCode    string    `firestore:"errorCode,omitempty"`
	ErrorMessage string    `firestore:"errorMessage,omitempty"`
	RetryCount   int       `firestore:"retryCount"`
	ProcessedAt  time.Time `firestore:"processedAt"`
}

// IngestionID derives the ledger document ID for a (tenant, source) pair.
// Gmail message IDs are hex strings, so plain concatenation is safe as a
// Firestore document ID.
func IngestionID(tenantID, sourceID string) string {
	return fmt.Sprintf("%s_%s", tenantID, sourceID)
}
