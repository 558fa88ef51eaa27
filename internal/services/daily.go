package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fdsanalytics/ingestflow/internal/models"
	"github.com/fdsanalytics/ingestflow/internal/source"
)

// DefaultLookbackHours is the daily run's search window. Two days
// tolerates a missed scheduler tick without reprocessing cost: documents
// already ingested short-circuit on the ledger.
const DefaultLookbackHours = 48

// DailyConfig holds configuration for the daily incremental run.
type DailyConfig struct {
	TenantID      string
	LookbackHours int
	MaxResults    int64
}

// IngestionService is the daily driver: a short bounded lookback through
// the processor, returning an in-memory aggregate. Daily runs finish in
// minutes and persist no job row.
type IngestionService struct {
	config    DailyConfig
	source    DocumentSource
	processor *ReportProcessor
	archiver  AttachmentArchiver
}

// NewIngestionService wires the daily driver from its dependencies.
func NewIngestionService(config DailyConfig, src DocumentSource, processor *ReportProcessor, archiver AttachmentArchiver) *IngestionService {
	if config.LookbackHours <= 0 {
		config.LookbackHours = DefaultLookbackHours
	}
	return &IngestionService{config: config, source: src, processor: processor, archiver: archiver}
}

// Run searches the lookback window and processes every document in source
// order. Individual failures are aggregated, never propagated: the only
// error returned is a failure to search at all.
func (s *IngestionService) Run(ctx context.Context) (*models.IngestionSummary, error) {
	after := time.Now().Add(-time.Duration(s.config.LookbackHours) * time.Hour)
	logCtx := slog.With("tenantId", s.config.TenantID)
	logCtx.Info("Starting daily ingestion.", "after", after.Format(time.RFC3339))

	docs, err := s.source.Search(ctx, source.SearchQuery{After: after, MaxResults: s.config.MaxResults})
	if err != nil {
		return nil, fmt.Errorf("daily ingestion search failed: %w", err)
	}

	summary := &models.IngestionSummary{TenantID: s.config.TenantID, Errors: []models.IngestionError{}}
	for _, doc := range docs {
		outcome := handleDocument(ctx, s.source, s.processor, s.archiver, s.config.TenantID, doc)
		summary.TotalProcessed++
		switch {
		case outcome.skipped:
			summary.SkippedCount++
		case outcome.failed:
			summary.FailedCount++
			summary.Errors = append(summary.Errors, outcome.errors...)
		default:
			summary.SuccessCount++
		}
	}

	logCtx.Info("Daily ingestion complete.",
		"total", summary.TotalProcessed,
		"success", summary.SuccessCount,
		"failed", summary.FailedCount,
		"skipped", summary.SkippedCount,
	)
	return summary, nil
}
