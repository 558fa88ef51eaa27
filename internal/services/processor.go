// Package services contains the ingestion orchestrator: the per-document
// idempotent processor and the two drivers that feed it (the daily
// incremental run and the historical backfill run).
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fdsanalytics/ingestflow/internal/models"
	"github.com/fdsanalytics/ingestflow/internal/parsers"
	"github.com/fdsanalytics/ingestflow/internal/source"
)

// DefaultMaxRetries bounds automated retries per document. A failed
// document that exhausts its retries requires manual intervention.
const DefaultMaxRetries = 3

// Ledger is the durable idempotency record consulted before and written
// after every processing attempt.
type Ledger interface {
	Get(ctx context.Context, tenantID, sourceID string) (*models.LedgerEntry, error)
	Record(ctx context.Context, entry *models.LedgerEntry) error
}

// ReportStore is the idempotent analytical write target.
type ReportStore interface {
	Upsert(ctx context.Context, report *models.ParsedReport) (models.UpsertResult, error)
}

// DocumentSource searches a mailbox and fetches attachment bytes.
type DocumentSource interface {
	Search(ctx context.Context, q source.SearchQuery) ([]models.SourceDocument, error)
	FetchAttachments(ctx context.Context, doc models.SourceDocument) ([]models.Attachment, error)
}

// AttachmentArchiver persists raw attachment bytes. Archiving is
// best-effort; a nil archiver disables it.
type AttachmentArchiver interface {
	Archive(ctx context.Context, tenantID string, doc models.SourceDocument, attachments []models.Attachment) error
}

// ProcessResult is the structured outcome of one processing attempt. The
// processor never returns a bare error: every failure is folded into the
// result so a single bad document cannot abort a whole run.
type ProcessResult struct {
	Success          bool
	AlreadyProcessed bool
	ReportID         string
	RowsWritten      int
	ErrorCode        string
	ErrorMessage     string
	DurationMs       int64
}

// ReportProcessor is the per-document state machine: ledger check, route,
// parse, upsert, ledger update.
type ReportProcessor struct {
	ledger     Ledger
	router     *parsers.Router
	store      ReportStore
	maxRetries int
}

// NewReportProcessor wires the processor. maxRetries <= 0 selects the
// default of 3.
func NewReportProcessor(ledger Ledger, router *parsers.Router, store ReportStore, maxRetries int) *ReportProcessor {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &ReportProcessor{ledger: ledger, router: router, store: store, maxRetries: maxRetries}
}

// Process runs one attachment through the state machine. Outcomes, retry
// counts and error detail land in the ledger; the returned result mirrors
// what was recorded. A document whose ledger entry already shows success
// short-circuits without touching the parser or the store.
func (p *ReportProcessor) Process(ctx context.Context, tenantID string, doc models.SourceDocument, att models.Attachment) (result ProcessResult) {
	start := time.Now()
	logCtx := slog.With("tenantId", tenantID, "messageId", doc.ID, "filename", att.Filename)

	// A panicking parser or client library must fail this one document,
	// not abort a multi-hour run.
	defer func() {
		if r := recover(); r != nil {
			logCtx.Error("Recovered from panic during processing", "panic", r)
			result = ProcessResult{
				ErrorCode:    models.ErrParseFailed,
				ErrorMessage: fmt.Sprintf("panic during processing: %v", r),
				DurationMs:   time.Since(start).Milliseconds(),
			}
		}
	}()

	existing, err := p.ledger.Get(ctx, tenantID, doc.ID)
	if err != nil {
		// Without a readable ledger we cannot prove the document was never
		// processed, so we must not touch the parser or the store.
		logCtx.Error("Ledger lookup failed", "error", err)
		return ProcessResult{
			ErrorCode:    models.ErrLedgerUnavailable,
			ErrorMessage: fmt.Sprintf("ledger lookup failed: %v", err),
			DurationMs:   time.Since(start).Milliseconds(),
		}
	}

	retryCount := 0
	if existing != nil {
		switch {
		case existing.Status == models.StatusSuccess:
			logCtx.Info("Skipped: already processed.", "reportId", existing.ReportID)
			return ProcessResult{
				Success:          true,
				AlreadyProcessed: true,
				ReportID:         existing.ReportID,
				RowsWritten:      existing.RowsInserted,
				DurationMs:       time.Since(start).Milliseconds(),
			}
		case existing.Status == models.StatusFailed && existing.ErrorCode == models.ErrUnknownReportType:
			// Unroutable documents are terminal on the first failure: no
			// later run can grow a parser for them.
			logCtx.Warn("Refusing unroutable document.", "retryCount", existing.RetryCount)
			return ProcessResult{
				ErrorCode:    models.ErrUnknownReportType,
				ErrorMessage: "document type is unroutable; not retrying",
				DurationMs:   time.Since(start).Milliseconds(),
			}
		case existing.Status == models.StatusFailed && existing.RetryCount >= p.maxRetries:
			logCtx.Warn("Max retries reached; skipping.", "retryCount", existing.RetryCount)
			return ProcessResult{
				ErrorCode:    models.ErrMaxRetriesReached,
				ErrorMessage: fmt.Sprintf("max retries (%d) reached; manual intervention required", p.maxRetries),
				DurationMs:   time.Since(start).Milliseconds(),
			}
		default:
			retryCount = existing.RetryCount
		}
	}

	parser, ok := p.router.Route(att.Filename, doc.Subject)
	if !ok {
		msg := fmt.Sprintf("no parser matches filename %q / subject %q", att.Filename, doc.Subject)
		return p.recordFailure(ctx, logCtx, tenantID, doc, "", models.ErrUnknownReportType, msg, retryCount+1, start)
	}

	report, err := parser.Parse(ctx, att.Data, parsers.ParseMeta{Filename: att.Filename, EmailDate: doc.Date})
	if err != nil {
		return p.recordFailure(ctx, logCtx, tenantID, doc, parser.Type(), models.ErrParseFailed, err.Error(), retryCount+1, start)
	}

	upsert, err := p.store.Upsert(ctx, report)
	if err != nil {
		return p.recordFailure(ctx, logCtx, tenantID, doc, parser.Type(), models.ErrStoreUpsertFailed, err.Error(), retryCount+1, start)
	}

	durationMs := time.Since(start).Milliseconds()
	entry := &models.LedgerEntry{
		TenantID:     tenantID,
		SourceID:     doc.ID,
		ReportType:   parser.Type(),
		Status:       models.StatusSuccess,
		ReportID:     upsert.ReportID,
		RowsInserted: upsert.RowsWritten,
		DurationMs:   durationMs,
		RetryCount:   retryCount,
		ProcessedAt:  time.Now().UTC(),
	}
	if err := p.ledger.Record(ctx, entry); err != nil {
		// The store write landed but the ledger did not. The upsert is
		// idempotent, so the safe move is to report failure and let the
		// next run redo both.
		logCtx.Error("CRITICAL: store upsert succeeded but ledger write failed", "reportId", upsert.ReportID, "error", err)
		return ProcessResult{
			ErrorCode:    models.ErrLedgerUnavailable,
			ErrorMessage: fmt.Sprintf("ledger write failed after upsert: %v", err),
			DurationMs:   time.Since(start).Milliseconds(),
		}
	}

	logCtx.Info("Processed report.", "reportId", upsert.ReportID, "rows", upsert.RowsWritten, "durationMs", durationMs)
	return ProcessResult{
		Success:     true,
		ReportID:    upsert.ReportID,
		RowsWritten: upsert.RowsWritten,
		DurationMs:  durationMs,
	}
}

// recordFailure writes the failed ledger entry and builds the matching
// result. A ledger write error here is logged but cannot change the
// outcome: the attempt already failed.
func (p *ReportProcessor) recordFailure(ctx context.Context, logCtx *slog.Logger, tenantID string, doc models.SourceDocument, reportType, code, message string, retryCount int, start time.Time) ProcessResult {
	durationMs := time.Since(start).Milliseconds()
	entry := &models.LedgerEntry{
		TenantID:     tenantID,
		SourceID:     doc.ID,
		ReportType:   reportType,
		Status:       models.StatusFailed,
		ErrorCode:    code,
		ErrorMessage: message,
		DurationMs:   durationMs,
		RetryCount:   retryCount,
		ProcessedAt:  time.Now().UTC(),
	}
	if err := p.ledger.Record(ctx, entry); err != nil {
		logCtx.Error("CRITICAL: failed to record ledger failure", "code", code, "error", err)
	}
	logCtx.Warn("Processing failed.", "code", code, "message", message, "retryCount", retryCount)
	return ProcessResult{
		ErrorCode:    code,
		ErrorMessage: message,
		DurationMs:   durationMs,
	}
}
