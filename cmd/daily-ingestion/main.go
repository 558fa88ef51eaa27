package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/fdsanalytics/ingestflow/internal/services"
)

var (
	ingestionInstance *services.IngestionService
	once              sync.Once
	initErr           error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the HTTP function invoked by Cloud Scheduler.
	functions.HTTP("RunDailyIngestion", runDailyIngestion)
}

// main is required by the Go Functions Framework.
func main() {}

// runDailyIngestion is the HTTP handler. The scheduler calls it with no
// arguments; all configuration comes from the environment.
func runDailyIngestion(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		ingestionInstance, initErr = services.NewIngestionFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	summary, err := ingestionInstance.Run(r.Context())
	if err != nil {
		slog.Error("Daily ingestion failed", "error", err)
		http.Error(w, "Internal Server Error: ingestion failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		slog.Error("Failed to write response", "error", err)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
