package models

import (
	"fmt"
	"time"
)

// Backfill job statuses. "running" is the only initial state; the other
// three are terminal.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// BackfillJob is the persisted progress record for one historical replay.
// It is created when the run starts, rewritten on a periodic cadence while
// the run is in flight, and finalized exactly once when the run ends.
type BackfillJob struct {
	JobID                string    `firestore:"jobId" json:"jobId"`
	TenantID             string    `firestore:"tenantId" json:"tenantId"`
	Status               string    `firestore:"status" json:"status"`
	StartDate            string    `firestore:"startDate" json:"startDate"`
	EndDate              string    `firestore:"endDate" json:"endDate"`
	TotalEmails          int       `firestore:"totalEmails" json:"totalEmails"`
	ProcessedEmails      int       `firestore:"processedEmails" json:"processedEmails"`
	SuccessfulEmails     int       `firestore:"successfulEmails" json:"successfulEmails"`
	FailedEmails         int       `firestore:"failedEmails" json:"failedEmails"`
	SkippedEmails        int       `firestore:"skippedEmails" json:"skippedEmails"`
	PercentComplete      float64   `firestore:"percentComplete" json:"percentComplete"`
	EstimatedMinutesLeft float64   `firestore:"estimatedMinutesLeft" json:"estimatedMinutesLeft"`
	FailedMessageIDs     []string  `firestore:"failedMessageIds" json:"failedMessageIds"`
	StartedAt            time.Time `firestore:"startedAt" json:"startedAt"`
	CompletedAt          time.Time `firestore:"completedAt,omitempty" json:"completedAt,omitzero"`
	ErrorMessage         string    `firestore:"errorMessage,omitempty" json:"errorMessage,omitempty"`
}

// BackfillJobID derives the job document ID from the tenant and the run
// start time.
func BackfillJobID(tenantID string, startedAt time.Time) string {
	return fmt.Sprintf("%s_%d", tenantID, startedAt.Unix())
}

// RecomputePercent refreshes PercentComplete from the counters. The
// percentage is always derived, never adjusted independently.
func (j *BackfillJob) RecomputePercent() {
	if j.TotalEmails == 0 {
		j.PercentComplete = 0
		return
	}
	j.PercentComplete = float64(j.ProcessedEmails) / float64(j.TotalEmails) * 100
}
