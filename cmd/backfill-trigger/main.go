package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/fdsanalytics/ingestflow/internal/models"
	"github.com/fdsanalytics/ingestflow/internal/services"
)

var (
	triggerInstance *services.TriggerService
	once            sync.Once
	initErr         error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("StartBackfill", startBackfill)
}

// main is required by the Go Functions Framework.
func main() {}

// startBackfill accepts {tenantId, startDate, endDate}, hands the run off
// to the backfill workflow and returns the job ID for status polling.
func startBackfill(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		triggerInstance, initErr = services.NewTriggerFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	accepted, err := triggerInstance.StartBackfill(r.Context(), req)
	if err != nil {
		if strings.Contains(err.Error(), "already running") {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		slog.Error("Failed to start backfill", "error", err)
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(accepted); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
