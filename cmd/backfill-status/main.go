package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/fdsanalytics/ingestflow/internal/ledger"
	"github.com/fdsanalytics/ingestflow/internal/services"
)

var (
	jobStore *ledger.JobStore
	once     sync.Once
	initErr  error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("GetBackfillStatus", getBackfillStatus)
}

// main is required by the Go Functions Framework.
func main() {}

// getBackfillStatus returns the persisted job row for ?jobId=..., which
// is queryable at any point mid-run.
func getBackfillStatus(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		jobStore, initErr = services.NewJobStoreFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		http.Error(w, "Bad Request: jobId query parameter is required", http.StatusBadRequest)
		return
	}

	job, err := jobStore.Get(r.Context(), jobID)
	if err != nil {
		slog.Error("Failed to load backfill job", "jobId", jobID, "error", err)
		http.Error(w, "Internal Server Error: failed to load job", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "Not Found: unknown jobId", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(job); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
