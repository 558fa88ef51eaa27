package models

// These structs define the JSON payloads for the HTTP trigger functions
// and the Cloud Workflow hand-off to the backfill runner.

// BackfillRequest is the body of the on-demand backfill trigger.
type BackfillRequest struct {
	TenantID  string `json:"tenantId"`
	StartDate string `json:"startDate"` // YYYY-MM-DD, inclusive
	EndDate   string `json:"endDate"`   // YYYY-MM-DD, inclusive
}

// BackfillAccepted is returned by the trigger once the workflow execution
// has been created. The job ID can be polled via the status function.
type BackfillAccepted struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// BackfillRunnerEvent is the CloudEvent data payload the workflow passes
// to the backfill runner function.
type BackfillRunnerEvent struct {
	JobID     string `json:"jobId"`
	TenantID  string `json:"tenantId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// IngestionError describes one failed document in a daily run summary.
type IngestionError struct {
	SourceID string `json:"sourceId"`
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// IngestionSummary is the in-memory aggregate returned by a daily run.
// Daily runs do not persist a job row; this is the whole result.
type IngestionSummary struct {
	TenantID       string           `json:"tenantId"`
	TotalProcessed int              `json:"totalProcessed"`
	SuccessCount   int              `json:"successCount"`
	FailedCount    int              `json:"failedCount"`
	SkippedCount   int              `json:"skippedCount"`
	Errors         []IngestionError `json:"errors"`
}
