package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/unbundler/internal/models"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Storage moves documents between an input and an output GCS bucket.
// It is safe for concurrent use.
type Storage struct {
	client       *storage.Client
	inputBucket  string
	outputBucket string
	noOverwrite  bool
}

// NewStorage creates a GCS-backed transfer adapter. With noOverwrite set, an
// existing output object is left in place and the store counts as done.
func NewStorage(ctx context.Context, inputBucket, outputBucket string, noOverwrite bool) (*Storage, error) {
	if inputBucket == "" || outputBucket == "" {
		return nil, fmt.Errorf("input and output buckets must be provided to create a storage adapter")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Storage{
		client:       client,
		inputBucket:  inputBucket,
		outputBucket: outputBucket,
		noOverwrite:  noOverwrite,
	}, nil
}

// Fetch opens the input object for key. The caller closes the reader.
func (s *Storage) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.inputBucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, classifyError(fmt.Sprintf("gs://%s/%s", s.inputBucket, key), err)
	}
	return r, nil
}

// Store streams data to key in the output bucket.
func (s *Storage) Store(ctx context.Context, key string, data io.Reader) error {
	obj := s.client.Bucket(s.outputBucket).Object(key)
	if s.noOverwrite {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	writer := obj.NewWriter(ctx)
	writer.ContentType = "text/csv"

	if _, err := io.Copy(writer, data); err != nil {
		_ = writer.Close()
		if s.noOverwrite && isPreconditionFailed(err) {
			slog.Info("SKIPPING: Object already exists.", "gcsObject", key)
			return nil
		}
		return fmt.Errorf("%w: failed to write gs://%s/%s: %v", models.ErrTransfer, s.outputBucket, key, err)
	}
	if err := writer.Close(); err != nil {
		if s.noOverwrite && isPreconditionFailed(err) {
			slog.Info("SKIPPING: Object already exists.", "gcsObject", key)
			return nil
		}
		return fmt.Errorf("%w: failed to finalize gs://%s/%s: %v", models.ErrTransfer, s.outputBucket, key, err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func classifyError(location string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, location)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", models.ErrNotFound, location)
	}
	return fmt.Errorf("%w: failed to read %s: %v", models.ErrTransfer, location, err)
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
