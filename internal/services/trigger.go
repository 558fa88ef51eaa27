package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/fdsanalytics/ingestflow/internal/models"
)

// WorkflowLauncher creates one workflow execution. Satisfied by the
// Workflows Executions client; faked in tests.
type WorkflowLauncher interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest) (*executionspb.Execution, error)
}

// TriggerConfig holds configuration for the backfill trigger.
type TriggerConfig struct {
	ProjectID        string
	WorkflowID       string
	WorkflowLocation string
}

// TriggerService accepts on-demand backfill requests: it refuses
// duplicates, derives the job ID, and hands the run off to a Cloud
// Workflows execution. The long-running work happens in the runner
// function the workflow invokes; the caller gets the job ID back
// immediately for status polling.
type TriggerService struct {
	config   TriggerConfig
	jobs     BackfillJobStore
	launcher WorkflowLauncher
	now      func() time.Time
}

// NewTriggerService wires the trigger from its dependencies.
func NewTriggerService(config TriggerConfig, jobs BackfillJobStore, launcher WorkflowLauncher) *TriggerService {
	return &TriggerService{config: config, jobs: jobs, launcher: launcher, now: time.Now}
}

// StartBackfill validates the request, enforces the one-running-backfill
// rule for the tenant, and creates the workflow execution.
func (s *TriggerService) StartBackfill(ctx context.Context, req models.BackfillRequest) (*models.BackfillAccepted, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("tenantId is required")
	}
	if _, _, err := parseDateRange(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	running, err := s.jobs.HasRunning(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for running backfills: %w", err)
	}
	if running {
		return nil, fmt.Errorf("a backfill is already running for tenant %s", req.TenantID)
	}

	jobID := models.BackfillJobID(req.TenantID, s.now().UTC())
	payload, err := json.Marshal(models.BackfillRunnerEvent{
		JobID:     jobID,
		TenantID:  req.TenantID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow payload: %w", err)
	}

	parent := fmt.Sprintf("projects/%s/locations/%s/workflows/%s",
		s.config.ProjectID, s.config.WorkflowLocation, s.config.WorkflowID)
	if _, err := s.launcher.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    parent,
		Execution: &executionspb.Execution{Argument: string(payload)},
	}); err != nil {
		return nil, fmt.Errorf("failed to trigger workflow execution: %w", err)
	}

	slog.Info("Backfill hand-off complete.", "tenantId", req.TenantID, "jobId", jobID, "workflow", s.config.WorkflowID)
	return &models.BackfillAccepted{JobID: jobID, Status: "accepted"}, nil
}

// executionsLauncher adapts the concrete Workflows client to
// WorkflowLauncher.
type executionsLauncher struct {
	client *executions.Client
}

func (l executionsLauncher) CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest) (*executionspb.Execution, error) {
	return l.client.CreateExecution(ctx, req)
}
