package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/fdsanalytics/ingestflow/internal/models"
	"github.com/fdsanalytics/ingestflow/internal/services"
)

var (
	backfillInstance *services.BackfillService
	once             sync.Once
	initErr          error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The backfill workflow routes its
	// payload here.
	functions.CloudEvent("RunBackfill", runBackfill)
}

// main is required by the Go Functions Framework.
func main() {}

// runBackfill is the CloudEvent entry point for one historical replay.
func runBackfill(ctx context.Context, e cloudevents.Event) error {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		backfillInstance, initErr = services.NewBackfillFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var event models.BackfillRunnerEvent
	if err := json.Unmarshal(e.Data(), &event); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	job, err := backfillInstance.Run(ctx, event)
	if err != nil {
		// Per-document failures are absorbed into the job row; an error
		// here means the run itself could not proceed.
		return err
	}

	slog.Info("Backfill run finished.", "jobId", job.JobID, "status", job.Status)
	return nil
}
