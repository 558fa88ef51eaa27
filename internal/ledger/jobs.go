package ledger

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fdsanalytics/ingestflow/internal/models"
)

const defaultJobsCollection = "backfill_jobs"

// JobStore persists BackfillJob progress rows. Each job has a single
// writer (the backfill run that owns it), so documents are rewritten
// wholesale rather than patched field by field.
type JobStore struct {
	client     *firestore.Client
	collection string
}

// NewJobStore creates a job store over the given Firestore client.
func NewJobStore(client *firestore.Client, collection string) *JobStore {
	if collection == "" {
		collection = defaultJobsCollection
	}
	return &JobStore{client: client, collection: collection}
}

// Save writes the job row keyed by its job ID. Used both for the initial
// running row and for every progress/finalization update.
func (s *JobStore) Save(ctx context.Context, job *models.BackfillJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job is missing a jobId")
	}
	if _, err := s.client.Collection(s.collection).Doc(job.JobID).Set(ctx, job); err != nil {
		return fmt.Errorf("failed to write backfill job %s: %w", job.JobID, err)
	}
	return nil
}

// Get loads one job row, or nil if the job ID is unknown.
func (s *JobStore) Get(ctx context.Context, jobID string) (*models.BackfillJob, error) {
	snap, err := s.client.Collection(s.collection).Doc(jobID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backfill job %s: %w", jobID, err)
	}

	var job models.BackfillJob
	if err := snap.DataTo(&job); err != nil {
		return nil, fmt.Errorf("failed to decode backfill job %s: %w", jobID, err)
	}
	return &job, nil
}

// HasRunning reports whether the tenant already has a backfill in flight.
// Only one backfill may run per tenant at a time; both the HTTP trigger
// and the runner check this before creating a new job row.
func (s *JobStore) HasRunning(ctx context.Context, tenantID string) (bool, error) {
	docs, err := s.client.Collection(s.collection).
		Where("tenantId", "==", tenantID).
		Where("status", "==", models.JobRunning).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return false, fmt.Errorf("failed to query running jobs for tenant %s: %w", tenantID, err)
	}
	return len(docs) > 0, nil
}
