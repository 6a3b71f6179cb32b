package services

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Lllllllleong/unbundler/internal/awscloud"
	"github.com/Lllllllleong/unbundler/internal/flatten"
	"github.com/Lllllllleong/unbundler/internal/models"
)

// Storage providers.
const (
	ProviderS3  = "s3"
	ProviderGCS = "gcs"
)

// Config holds configuration for the unbundler service. It is built once at
// startup and passed to every component.
type Config struct {
	StorageProvider string
	InputBucket     string
	OutputBucket    string
	QueueName       string
	QuarantineQueue string
	Region          string

	OutputPrefix string
	OutputSuffix string
	NoOverwrite  bool

	EntryField   string
	KeySeparator string
	MaxDepth     int

	WorkDir                  string
	PollMaxItems             int
	PollWaitSeconds          int
	VisibilityTimeoutSeconds int

	ProjectID        string
	LedgerCollection string

	MetricsAddr string
	LogLevel    string
}

// EnvFunc reads a setting or returns fallback when it is unset.
type EnvFunc func(key, fallback string) string

// ConfigFromEnv builds the queue worker configuration. The input bucket,
// output bucket, queue and region are required.
func ConfigFromEnv(getenv EnvFunc) (Config, error) {
	cfg, err := baseConfig(getenv, getenv("STORAGE_PROVIDER", ProviderS3))
	if err != nil {
		return Config{}, err
	}
	cfg.QueueName = firstEnv(getenv, "QUEUE_NAME", "SQSBatchQueue")
	cfg.Region = firstEnv(getenv, "REGION", "AWSRegion")

	var missing []string
	for _, required := range []struct{ name, value string }{
		{"INPUT_BUCKET", cfg.InputBucket},
		{"OUTPUT_BUCKET", cfg.OutputBucket},
		{"QUEUE_NAME", cfg.QueueName},
		{"REGION", cfg.Region},
	} {
		if required.value == "" {
			missing = append(missing, required.name)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s must be set", models.ErrConfiguration, strings.Join(missing, ", "))
	}
	return cfg, nil
}

// FunctionConfigFromEnv builds the configuration for the GCS-triggered
// function, which has no queue and always uses GCS.
func FunctionConfigFromEnv(getenv EnvFunc) (Config, error) {
	cfg, err := baseConfig(getenv, ProviderGCS)
	if err != nil {
		return Config{}, err
	}
	cfg.Region = firstEnv(getenv, "REGION", "FUNCTION_REGION")
	cfg.MetricsAddr = ""
	if cfg.InputBucket == "" || cfg.OutputBucket == "" {
		return Config{}, fmt.Errorf("%w: INPUT_BUCKET and OUTPUT_BUCKET must be set", models.ErrConfiguration)
	}
	return cfg, nil
}

func baseConfig(getenv EnvFunc, provider string) (Config, error) {
	cfg := Config{
		StorageProvider:  strings.ToLower(provider),
		InputBucket:      firstEnv(getenv, "INPUT_BUCKET", "s3InputBucket"),
		OutputBucket:     firstEnv(getenv, "OUTPUT_BUCKET", "s3OutputBucket"),
		QuarantineQueue:  getenv("QUARANTINE_QUEUE", ""),
		OutputPrefix:     getenv("OUTPUT_PREFIX", "flattened/"),
		OutputSuffix:     getenv("OUTPUT_SUFFIX", "tabular.csv"),
		EntryField:       getenv("ENTRY_FIELD", flatten.DefaultEntryField),
		KeySeparator:     getenv("KEY_SEPARATOR", flatten.DefaultSeparator),
		WorkDir:          getenv("WORK_DIR", "/hl7/flattened"),
		ProjectID:        firstEnv(getenv, "PROJECT_ID", "GOOGLE_CLOUD_PROJECT"),
		LedgerCollection: getenv("LEDGER_COLLECTION", ""),
		MetricsAddr:      getenv("METRICS_ADDR", ":9090"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
	}
	if cfg.StorageProvider != ProviderS3 && cfg.StorageProvider != ProviderGCS {
		return Config{}, fmt.Errorf("%w: STORAGE_PROVIDER must be %q or %q, got %q", models.ErrConfiguration, ProviderS3, ProviderGCS, provider)
	}
	if cfg.EntryField == "" {
		return Config{}, fmt.Errorf("%w: ENTRY_FIELD must not be empty", models.ErrConfiguration)
	}
	if cfg.KeySeparator == "" {
		return Config{}, fmt.Errorf("%w: KEY_SEPARATOR must not be empty", models.ErrConfiguration)
	}
	if cfg.OutputSuffix == "" {
		return Config{}, fmt.Errorf("%w: OUTPUT_SUFFIX must not be empty", models.ErrConfiguration)
	}
	if cfg.LedgerCollection != "" && cfg.ProjectID == "" {
		return Config{}, fmt.Errorf("%w: PROJECT_ID must be set when LEDGER_COLLECTION is set", models.ErrConfiguration)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}

	var err error
	if cfg.MaxDepth, err = intEnv(getenv, "MAX_DEPTH", flatten.DefaultMaxDepth, 1, 1<<16); err != nil {
		return Config{}, err
	}
	if cfg.PollMaxItems, err = intEnv(getenv, "POLL_MAX_ITEMS", awscloud.MaxReceiveMessages, 1, awscloud.MaxReceiveMessages); err != nil {
		return Config{}, err
	}
	if cfg.PollWaitSeconds, err = intEnv(getenv, "POLL_WAIT_SECONDS", awscloud.MaxWaitSeconds, 0, awscloud.MaxWaitSeconds); err != nil {
		return Config{}, err
	}
	// 12 hours is the SQS maximum.
	if cfg.VisibilityTimeoutSeconds, err = intEnv(getenv, "VISIBILITY_TIMEOUT_SECONDS", 120, 0, 43200); err != nil {
		return Config{}, err
	}
	if cfg.NoOverwrite, err = boolEnv(getenv, "OUTPUT_NO_OVERWRITE", false); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

// LogAttrs lists the settings worth printing at startup.
func (c Config) LogAttrs() []any {
	return []any{
		"storageProvider", c.StorageProvider,
		"inputBucket", c.InputBucket,
		"outputBucket", c.OutputBucket,
		"queueName", c.QueueName,
		"quarantineQueue", c.QuarantineQueue,
		"region", c.Region,
		"outputPrefix", c.OutputPrefix,
		"workDir", c.WorkDir,
		"pollMaxItems", c.PollMaxItems,
		"pollWaitSeconds", c.PollWaitSeconds,
		"visibilityTimeoutSeconds", c.VisibilityTimeoutSeconds,
		"ledgerCollection", c.LedgerCollection,
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: LOG_LEVEL: %v", models.ErrConfiguration, err)
	}
	return level, nil
}

func firstEnv(getenv EnvFunc, keys ...string) string {
	for _, k := range keys {
		if v := getenv(k, ""); v != "" {
			return v
		}
	}
	return ""
}

func intEnv(getenv EnvFunc, key string, fallback, lo, hi int) (int, error) {
	raw := getenv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", models.ErrConfiguration, key, raw)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s must be between %d and %d, got %d", models.ErrConfiguration, key, lo, hi, n)
	}
	return n, nil
}

func boolEnv(getenv EnvFunc, key string, fallback bool) (bool, error) {
	raw := getenv(key, "")
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", models.ErrConfiguration, key, raw)
	}
	return b, nil
}
