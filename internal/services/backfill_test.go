package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fdsanalytics/ingestflow/internal/models"
	"github.com/fdsanalytics/ingestflow/internal/parsers"
)

type fakeJobs struct {
	saves   []models.BackfillJob
	running bool
	saveErr error
}

func (f *fakeJobs) Save(_ context.Context, job *models.BackfillJob) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	copied := *job
	copied.FailedMessageIDs = append([]string(nil), job.FailedMessageIDs...)
	f.saves = append(f.saves, copied)
	return nil
}

func (f *fakeJobs) Get(_ context.Context, jobID string) (*models.BackfillJob, error) {
	for i := len(f.saves) - 1; i >= 0; i-- {
		if f.saves[i].JobID == jobID {
			copied := f.saves[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeJobs) HasRunning(_ context.Context, _ string) (bool, error) {
	return f.running, nil
}

var _ BackfillJobStore = (*fakeJobs)(nil)

func backfillRequest() models.BackfillRunnerEvent {
	return models.BackfillRunnerEvent{
		JobID:     "senso-sushi_1746057600",
		TenantID:  "senso-sushi",
		StartDate: "2025-03-01",
		EndDate:   "2025-04-30",
	}
}

func newBackfillService(src *fakeSource, proc *ReportProcessor, jobs *fakeJobs, persistEvery int) *BackfillService {
	return NewBackfillService(BackfillConfig{PersistEvery: persistEvery}, src, proc, nil, jobs, nil)
}

func TestBackfillCompletesAndTracksProgress(t *testing.T) {
	docs := sourceDocs(7)
	src := &fakeSource{docs: docs, attachments: attachmentsFor(docs)}
	parser := &fakeParser{typ: "sales_summary", parse: okParse}
	proc := NewReportProcessor(newFakeLedger(), parsers.NewRouter(parser), &fakeStore{}, 3)
	jobs := &fakeJobs{}

	job, err := newBackfillService(src, proc, jobs, 2).Run(context.Background(), backfillRequest())
	require.NoError(t, err)
	require.Equal(t, models.JobCompleted, job.Status)
	require.Equal(t, 7, job.TotalEmails)
	require.Equal(t, 7, job.ProcessedEmails)
	require.Equal(t, 7, job.SuccessfulEmails)
	require.Zero(t, job.FailedEmails)
	require.InDelta(t, 100, job.PercentComplete, 0.001)
	require.False(t, job.CompletedAt.IsZero())

	// Progress persisted at the cadence is monotonic in both the
	// processed count and the percentage.
	prevProcessed, prevPercent := 0, 0.0
	for _, snap := range jobs.saves {
		require.GreaterOrEqual(t, snap.ProcessedEmails, prevProcessed)
		require.GreaterOrEqual(t, snap.PercentComplete, prevPercent)
		require.LessOrEqual(t, snap.ProcessedEmails, snap.TotalEmails)
		prevProcessed, prevPercent = snap.ProcessedEmails, snap.PercentComplete
	}
	final := jobs.saves[len(jobs.saves)-1]
	require.Equal(t, models.JobCompleted, final.Status)
}

func TestBackfillProgressCallbackCadence(t *testing.T) {
	docs := sourceDocs(5)
	src := &fakeSource{docs: docs, attachments: attachmentsFor(docs)}
	parser := &fakeParser{typ: "sales_summary", parse: okParse}
	proc := NewReportProcessor(newFakeLedger(), parsers.NewRouter(parser), &fakeStore{}, 3)
	jobs := &fakeJobs{}

	var callbacks []models.BackfillJob
	svc := NewBackfillService(BackfillConfig{PersistEvery: 2}, src, proc, nil, jobs, func(_ context.Context, job models.BackfillJob) {
		callbacks = append(callbacks, job)
	})

	_, err := svc.Run(context.Background(), backfillRequest())
	require.NoError(t, err)
	// Every 2 documents plus the final document: after 2, 4 and 5.
	require.Len(t, callbacks, 3)
	require.Equal(t, 2, callbacks[0].ProcessedEmails)
	require.Equal(t, 4, callbacks[1].ProcessedEmails)
	require.Equal(t, 5, callbacks[2].ProcessedEmails)
}

func TestBackfillAllFailedEndsFailed(t *testing.T) {
	docs := sourceDocs(3)
	src := &fakeSource{docs: docs, attachments: attachmentsFor(docs)}
	parser := &fakeParser{typ: "sales_summary", parse: func(context.Context, []byte, parsers.ParseMeta) (*models.ParsedReport, error) {
		return nil, errors.New("always malformed")
	}}
	proc := NewReportProcessor(newFakeLedger(), parsers.NewRouter(parser), &fakeStore{}, 3)
	jobs := &fakeJobs{}

	job, err := newBackfillService(src, proc, jobs, 20).Run(context.Background(), backfillRequest())
	require.NoError(t, err)
	require.Equal(t, models.JobFailed, job.Status)
	require.Equal(t, 3, job.FailedEmails)
	require.ElementsMatch(t, []string{"msg-1", "msg-2", "msg-3"}, job.FailedMessageIDs)
}

func TestBackfillPartialFailureCompletes(t *testing.T) {
	docs := sourceDocs(4)
	src := &fakeSource{docs: docs, attachments: attachmentsFor(docs)}
	parser := &fakeParser{typ: "sales_summary", parse: func(ctx context.Context, data []byte, meta parsers.ParseMeta) (*models.ParsedReport, error) {
		if meta.Filename == "msg-2-sales.pdf" {
			return nil, errors.New("malformed")
		}
		return okParse(ctx, data, meta)
	}}
	proc := NewReportProcessor(newFakeLedger(), parsers.NewRouter(parser), &fakeStore{}, 3)
	jobs := &fakeJobs{}

	job, err := newBackfillService(src, proc, jobs, 20).Run(context.Background(), backfillRequest())
	require.NoError(t, err)
	require.Equal(t, models.JobCompleted, job.Status)
	require.Equal(t, 3, job.SuccessfulEmails)
	require.Equal(t, 1, job.FailedEmails)
	require.Equal(t, []string{"msg-2"}, job.FailedMessageIDs)
}

func TestBackfillEmptyRangeCompletes(t *testing.T) {
	src := &fakeSource{}
	parser := &fakeParser{typ: "sales_summary", parse: okParse}
	proc := NewReportProcessor(newFakeLedger(), parsers.NewRouter(parser), &fakeStore{}, 3)
	jobs := &fakeJobs{}

	job, err := newBackfillService(src, proc, jobs, 20).Run(context.Background(), backfillRequest())
	require.NoError(t, err)
	require.Equal(t, models.JobCompleted, job.Status)
	require.Zero(t, job.TotalEmails)
	require.Zero(t, job.PercentComplete)
}

func TestBackfillCancellationBetweenDocuments(t *testing.T) {
	docs := sourceDocs(5)
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{docs: docs, attachments: attachmentsFor(docs)}
	src.onFetch = func(doc models.SourceDocument) {
		if doc.ID == "msg-2" {
			cancel() // cancelled while document #2 is in flight
		}
	}
	parser := &fakeParser{typ: "sales_summary", parse: okParse}
	proc := NewReportProcessor(newFakeLedger(), parsers.NewRouter(parser), &fakeStore{}, 3)
	jobs := &fakeJobs{}

	job, err := newBackfillService(src, proc, jobs, 20).Run(ctx, backfillRequest())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, models.JobCancelled, job.Status)
	// The in-flight document ran to completion; the rest never started.
	require.Equal(t, 2, job.ProcessedEmails)
	require.Less(t, job.ProcessedEmails, job.TotalEmails)
	require.False(t, job.CompletedAt.IsZero())
}

func TestBackfillRefusesSecondRunningJob(t *testing.T) {
	src := &fakeSource{}
	parser := &fakeParser{typ: "sales_summary", parse: okParse}
	proc := NewReportProcessor(newFakeLedger(), parsers.NewRouter(parser), &fakeStore{}, 3)
	jobs := &fakeJobs{running: true}

	_, err := newBackfillService(src, proc, jobs, 20).Run(context.Background(), backfillRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already running")
	require.Empty(t, jobs.saves, "no job row may be created for a refused run")
}

func TestBackfillSearchFailureFinalizesJob(t *testing.T) {
	src := &fakeSource{searchErr: errors.New("mailbox unreachable")}
	parser := &fakeParser{typ: "sales_summary", parse: okParse}
	proc := NewReportProcessor(newFakeLedger(), parsers.NewRouter(parser), &fakeStore{}, 3)
	jobs := &fakeJobs{}

	job, err := newBackfillService(src, proc, jobs, 20).Run(context.Background(), backfillRequest())
	require.Error(t, err)
	require.Equal(t, models.JobFailed, job.Status)
	require.Contains(t, job.ErrorMessage, "mailbox unreachable")
}

func TestBackfillSearchWindowIsInclusive(t *testing.T) {
	src := &fakeSource{}
	parser := &fakeParser{typ: "sales_summary", parse: okParse}
	proc := NewReportProcessor(newFakeLedger(), parsers.NewRouter(parser), &fakeStore{}, 3)
	jobs := &fakeJobs{}

	_, err := newBackfillService(src, proc, jobs, 20).Run(context.Background(), backfillRequest())
	require.NoError(t, err)
	require.Len(t, src.searched, 1)
	q := src.searched[0]
	require.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), q.After)
	// The requested end date is inclusive, so the search bound is the
	// following midnight.
	require.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), q.Before)
}

func TestBackfillInvalidDates(t *testing.T) {
	src := &fakeSource{}
	parser := &fakeParser{typ: "sales_summary", parse: okParse}
	proc := NewReportProcessor(newFakeLedger(), parsers.NewRouter(parser), &fakeStore{}, 3)
	jobs := &fakeJobs{}
	svc := newBackfillService(src, proc, jobs, 20)

	req := backfillRequest()
	req.StartDate = "March 1st"
	_, err := svc.Run(context.Background(), req)
	require.Error(t, err)

	req = backfillRequest()
	req.EndDate = "2025-02-01"
	_, err = svc.Run(context.Background(), req)
	require.Error(t, err)
	require.Contains(t, err.Error(), "before startDate")
}

func TestEstimateMinutesLeft(t *testing.T) {
	// 10 documents took 5 minutes; 30 remain → 15 minutes.
	got := estimateMinutesLeft(5*time.Minute, 10, 40)
	require.InDelta(t, 15, got, 0.01)

	require.Zero(t, estimateMinutesLeft(time.Minute, 0, 10))
	require.Zero(t, estimateMinutesLeft(time.Minute, 10, 10))
}
