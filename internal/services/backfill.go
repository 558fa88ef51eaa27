package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fdsanalytics/ingestflow/internal/models"
	"github.com/fdsanalytics/ingestflow/internal/source"
)

// DefaultPersistEvery is how many documents pass between job-row
// persists and progress callbacks during a backfill.
const DefaultPersistEvery = 20

// BackfillJobStore persists and queries BackfillJob rows.
type BackfillJobStore interface {
	Save(ctx context.Context, job *models.BackfillJob) error
	Get(ctx context.Context, jobID string) (*models.BackfillJob, error)
	HasRunning(ctx context.Context, tenantID string) (bool, error)
}

// ProgressFunc receives a snapshot of the job row at each persist cadence.
// It must not block: it runs inline between documents.
type ProgressFunc func(ctx context.Context, job models.BackfillJob)

// BackfillConfig holds configuration for historical replays.
type BackfillConfig struct {
	PersistEvery int
	MaxResults   int64
}

// BackfillService replays a bounded date range through the processor with
// durable, queryable progress. Runs are strictly sequential: the upstream
// mailbox and extraction APIs are quota-bound, and resumability only
// makes sense if document order is preserved.
type BackfillService struct {
	config     BackfillConfig
	source     DocumentSource
	processor  *ReportProcessor
	archiver   AttachmentArchiver
	jobs       BackfillJobStore
	onProgress ProgressFunc
	now        func() time.Time
}

// NewBackfillService wires the backfill driver from its dependencies.
func NewBackfillService(config BackfillConfig, src DocumentSource, processor *ReportProcessor, archiver AttachmentArchiver, jobs BackfillJobStore, onProgress ProgressFunc) *BackfillService {
	if config.PersistEvery <= 0 {
		config.PersistEvery = DefaultPersistEvery
	}
	return &BackfillService{
		config:     config,
		source:     src,
		processor:  processor,
		archiver:   archiver,
		jobs:       jobs,
		onProgress: onProgress,
		now:        time.Now,
	}
}

// Run executes one historical replay. It creates the job row, walks the
// range sequentially, persists progress every PersistEvery documents, and
// finalizes the row exactly once. The returned job mirrors the final
// persisted state; the error is non-nil only when the run could not
// produce per-document results (bad request, duplicate run, search
// failure, cancellation).
func (s *BackfillService) Run(ctx context.Context, req models.BackfillRunnerEvent) (*models.BackfillJob, error) {
	startDate, endDate, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	running, err := s.jobs.HasRunning(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for running backfills: %w", err)
	}
	if running {
		return nil, fmt.Errorf("a backfill is already running for tenant %s", req.TenantID)
	}

	startedAt := s.now().UTC()
	jobID := req.JobID
	if jobID == "" {
		jobID = models.BackfillJobID(req.TenantID, startedAt)
	}
	job := &models.BackfillJob{
		JobID:            jobID,
		TenantID:         req.TenantID,
		Status:           models.JobRunning,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		FailedMessageIDs: []string{},
		StartedAt:        startedAt,
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create backfill job row: %w", err)
	}

	logCtx := slog.With("tenantId", req.TenantID, "jobId", jobID)
	logCtx.Info("Backfill started.", "startDate", req.StartDate, "endDate", req.EndDate)

	// Single bulk listing: volume is bounded (months of daily reports,
	// not unbounded streams).
	docs, err := s.source.Search(ctx, source.SearchQuery{
		After:      startDate,
		Before:     endDate.AddDate(0, 0, 1), // endDate is inclusive
		MaxResults: s.config.MaxResults,
	})
	if err != nil {
		s.finalize(ctx, logCtx, job, models.JobFailed, fmt.Sprintf("document search failed: %v", err))
		return job, fmt.Errorf("backfill search failed: %w", err)
	}

	job.TotalEmails = len(docs)
	if err := s.jobs.Save(ctx, job); err != nil {
		logCtx.Error("Failed to persist document total; continuing", "error", err)
	}

	loopStart := s.now()
	for i, doc := range docs {
		// Cooperative cancellation, checked between documents only: a
		// document already in flight always runs to completion so its
		// ledger entry is written.
		if ctx.Err() != nil {
			logCtx.Warn("Backfill cancelled.", "processed", job.ProcessedEmails, "total", job.TotalEmails)
			s.finalize(ctx, logCtx, job, models.JobCancelled, "")
			return job, ctx.Err()
		}

		outcome := handleDocument(ctx, s.source, s.processor, s.archiver, req.TenantID, doc)
		job.ProcessedEmails++
		switch {
		case outcome.skipped:
			job.SkippedEmails++
		case outcome.failed:
			job.FailedEmails++
			job.FailedMessageIDs = append(job.FailedMessageIDs, doc.ID)
		default:
			job.SuccessfulEmails++
		}

		if (i+1)%s.config.PersistEvery == 0 || i == len(docs)-1 {
			job.RecomputePercent()
			job.EstimatedMinutesLeft = estimateMinutesLeft(s.now().Sub(loopStart), job.ProcessedEmails, job.TotalEmails)
			if err := s.jobs.Save(ctx, job); err != nil {
				logCtx.Error("Failed to persist progress; continuing", "error", err)
			}
			logCtx.Info("Backfill progress.",
				"processed", job.ProcessedEmails,
				"total", job.TotalEmails,
				"percent", job.PercentComplete,
				"etaMinutes", job.EstimatedMinutesLeft,
			)
			if s.onProgress != nil {
				s.onProgress(ctx, *job)
			}
		}
	}

	finalStatus := models.JobCompleted
	if job.TotalEmails > 0 && job.FailedEmails == job.TotalEmails {
		finalStatus = models.JobFailed
	}
	s.finalize(ctx, logCtx, job, finalStatus, "")
	logCtx.Info("Backfill finished.",
		"status", job.Status,
		"success", job.SuccessfulEmails,
		"failed", job.FailedEmails,
		"skipped", job.SkippedEmails,
	)
	return job, nil
}

// finalize moves the job into a terminal state and persists it. Called
// exactly once per run. The write is detached from the run context so a
// cancelled run can still record that it was cancelled.
func (s *BackfillService) finalize(ctx context.Context, logCtx *slog.Logger, job *models.BackfillJob, status, errorMessage string) {
	job.Status = status
	job.ErrorMessage = errorMessage
	job.RecomputePercent()
	job.EstimatedMinutesLeft = 0
	job.CompletedAt = s.now().UTC()
	if err := s.jobs.Save(context.WithoutCancel(ctx), job); err != nil {
		logCtx.Error("CRITICAL: failed to persist terminal job state", "status", status, "error", err)
	}
}

// estimateMinutesLeft extrapolates the remaining time from the average
// per-document pace so far.
func estimateMinutesLeft(elapsed time.Duration, processed, total int) float64 {
	if processed <= 0 || total <= processed {
		return 0
	}
	perDoc := float64(elapsed.Milliseconds()) / float64(processed)
	remainingMs := perDoc * float64(total-processed)
	return remainingMs / 1000 / 60
}

// parseDateRange validates the requested YYYY-MM-DD range.
func parseDateRange(start, end string) (time.Time, time.Time, error) {
	startDate, err := time.Parse("2006-01-02", start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid startDate %q: %w", start, err)
	}
	endDate, err := time.Parse("2006-01-02", end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid endDate %q: %w", end, err)
	}
	if endDate.Before(startDate) {
		return time.Time{}, time.Time{}, fmt.Errorf("endDate %s is before startDate %s", end, start)
	}
	return startDate, endDate, nil
}
