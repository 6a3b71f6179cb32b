package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/unbundler/internal/gcp"
	"github.com/Lllllllleong/unbundler/internal/models"
	"github.com/Lllllllleong/unbundler/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	unbundlerInstance *services.Unbundler
	inputBucket       string
	once              sync.Once
	initErr           error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. "FlattenObject" is the entry point name configured in GCP.
	functions.CloudEvent("FlattenObject", flattenObject)
}

// main starts a local server; in Cloud Functions the framework drives the registered function.
func main() {
	port := gcp.GetEnv("PORT", "8080")
	if err := funcframework.Start(port); err != nil {
		slog.Error("funcframework.Start failed", "error", err)
		os.Exit(1)
	}
}

// flattenObject handles a GCS "object finalized" event. Returning an error
// marks the invocation failed so the platform can redeliver it.
func flattenObject(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		var cfg services.Config
		cfg, initErr = services.FunctionConfigFromEnv(gcp.GetEnv)
		if initErr != nil {
			return
		}
		inputBucket = cfg.InputBucket
		unbundlerInstance, initErr = services.NewUnbundler(context.Background(), cfg)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	if gcsEvent.Bucket != inputBucket {
		slog.Warn("Ignoring event for unexpected bucket.", "gcsBucket", gcsEvent.Bucket, "inputBucket", inputBucket)
		return nil
	}

	// Malformed documents come back as nil, quarantined in the ledger. Other
	// errors are already logged with context within Process.
	return unbundlerInstance.Process(ctx, gcsEvent.Name)
}
