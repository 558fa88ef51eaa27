package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"

	"github.com/fdsanalytics/ingestflow/internal/gcp"
	"github.com/fdsanalytics/ingestflow/internal/ledger"
	"github.com/fdsanalytics/ingestflow/internal/models"
	"github.com/fdsanalytics/ingestflow/internal/parsers"
	"github.com/fdsanalytics/ingestflow/internal/source"
	"github.com/fdsanalytics/ingestflow/internal/store"
)

// OrchestratorConfig holds every environment-driven setting the
// orchestrator services need. One loader serves all entry points so the
// functions agree on collection names and defaults.
type OrchestratorConfig struct {
	ProjectID        string
	TenantID         string
	VertexAIRegion   string
	GmailUser        string
	GmailQuery       string
	ArchiveBucket    string
	BigQueryDataset  string
	BigQueryTable    string
	LedgerCollection string
	JobsCollection   string
	WorkflowID       string
	WorkflowLocation string
	MaxRetries       int
	LookbackHours    int
	MaxResults       int64
}

// loadOrchestratorConfig loads and validates the shared environment.
func loadOrchestratorConfig() (*OrchestratorConfig, error) {
	projectID := gcp.GetEnv("GOOGLE_CLOUD_PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID environment variable must be set")
	}
	tenantID := gcp.GetEnv("TENANT_ID", "")
	if tenantID == "" {
		return nil, fmt.Errorf("TENANT_ID environment variable must be set")
	}

	cfg := &OrchestratorConfig{
		ProjectID:        projectID,
		TenantID:         tenantID,
		VertexAIRegion:   gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		GmailUser:        gcp.GetEnv("GMAIL_USER", "me"),
		GmailQuery:       gcp.GetEnv("REPORT_QUERY", "has:attachment"),
		ArchiveBucket:    gcp.GetEnv("ARCHIVE_BUCKET", ""),
		BigQueryDataset:  gcp.GetEnv("BQ_DATASET", "restaurant_analytics"),
		BigQueryTable:    gcp.GetEnv("BQ_TABLE", "report_metrics"),
		LedgerCollection: gcp.GetEnv("LEDGER_COLLECTION", ""),
		JobsCollection:   gcp.GetEnv("JOBS_COLLECTION", ""),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", "backfill-orchestrator"),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		MaxRetries:       envInt("MAX_RETRIES", DefaultMaxRetries),
		LookbackHours:    envInt("LOOKBACK_HOURS", DefaultLookbackHours),
		MaxResults:       int64(envInt("SEARCH_MAX_RESULTS", 0)),
	}
	return cfg, nil
}

func envInt(key string, fallback int) int {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// buildPipeline assembles the clients and adapters shared by both
// drivers: Gmail source, Gemini parsers behind the router, BigQuery
// store, Firestore ledger, optional GCS archiver.
func buildPipeline(ctx context.Context, cfg *OrchestratorConfig) (*ReportProcessor, DocumentSource, AttachmentArchiver, *firestore.Client, error) {
	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	gmailService, err := gcp.NewGmailService(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	bigqueryClient, err := gcp.NewBigQueryClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	router := parsers.NewRouter(
		parsers.NewSalesSummaryParser(vertexClient),
		parsers.NewProductMixParser(vertexClient),
	)
	ledgerStore := ledger.NewStore(firestoreClient, cfg.LedgerCollection)
	reportStore := store.NewBigQueryStore(bigqueryClient, cfg.BigQueryDataset, cfg.BigQueryTable)
	processor := NewReportProcessor(ledgerStore, router, reportStore, cfg.MaxRetries)
	src := source.NewGmailSource(gmailService, cfg.GmailUser, cfg.GmailQuery)

	var archiver AttachmentArchiver
	if cfg.ArchiveBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		archiver = store.NewArchiver(storageClient, cfg.ArchiveBucket)
	}

	return processor, src, archiver, firestoreClient, nil
}

// NewIngestionFromEnv builds the daily driver for the Cloud Function
// entry point.
func NewIngestionFromEnv(ctx context.Context) (*IngestionService, error) {
	cfg, err := loadOrchestratorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	processor, src, archiver, _, err := buildPipeline(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewIngestionService(DailyConfig{
		TenantID:      cfg.TenantID,
		LookbackHours: cfg.LookbackHours,
		MaxResults:    cfg.MaxResults,
	}, src, processor, archiver), nil
}

// NewBackfillFromEnv builds the backfill driver for the runner function.
// Progress callbacks default to a structured log line; external
// notification hangs off the persisted job row instead.
func NewBackfillFromEnv(ctx context.Context) (*BackfillService, error) {
	cfg, err := loadOrchestratorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	processor, src, archiver, firestoreClient, err := buildPipeline(ctx, cfg)
	if err != nil {
		return nil, err
	}
	jobs := ledger.NewJobStore(firestoreClient, cfg.JobsCollection)

	onProgress := func(_ context.Context, job models.BackfillJob) {
		slog.Info("Backfill progress callback.",
			"jobId", job.JobID,
			"percent", job.PercentComplete,
			"etaMinutes", job.EstimatedMinutesLeft,
		)
	}
	return NewBackfillService(BackfillConfig{MaxResults: cfg.MaxResults}, src, processor, archiver, jobs, onProgress), nil
}

// NewTriggerFromEnv builds the backfill trigger for the HTTP function.
func NewTriggerFromEnv(ctx context.Context) (*TriggerService, error) {
	cfg, err := loadOrchestratorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return NewTriggerService(TriggerConfig{
		ProjectID:        cfg.ProjectID,
		WorkflowID:       cfg.WorkflowID,
		WorkflowLocation: cfg.WorkflowLocation,
	}, ledger.NewJobStore(firestoreClient, cfg.JobsCollection), executionsLauncher{client: executionsClient}), nil
}

// NewJobStoreFromEnv builds just the job store, for the status-polling
// function.
func NewJobStoreFromEnv(ctx context.Context) (*ledger.JobStore, error) {
	cfg, err := loadOrchestratorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	return ledger.NewJobStore(firestoreClient, cfg.JobsCollection), nil
}
