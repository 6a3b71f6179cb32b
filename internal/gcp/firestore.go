package gcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/unbundler/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// Ledger keeps one Firestore document per input key describing the latest
// processing attempt.
type Ledger struct {
	client     *firestore.Client
	collection string
}

func NewLedger(ctx context.Context, projectID, collection string) (*Ledger, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection must be provided to create a ledger")
	}
	client, err := NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &Ledger{client: client, collection: collection}, nil
}

// Record merges job into the key's document and bumps its attempt counter.
func (l *Ledger) Record(ctx context.Context, job models.Job) error {
	fields := map[string]interface{}{
		"inputKey":     job.InputKey,
		"outputKey":    job.OutputKey,
		"status":       job.Status,
		"stage":        job.Stage,
		"errorKind":    job.ErrorKind,
		"errorDetails": job.ErrorDetails,
		"rowCount":     job.RowCount,
		"columnCount":  job.ColumnCount,
		"attempts":     firestore.Increment(1),
		"updatedAt":    firestore.ServerTimestamp,
	}
	docRef := l.client.Collection(l.collection).Doc(JobID(job.InputKey))
	if _, err := docRef.Set(ctx, fields, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to record job for %s: %w", job.InputKey, err)
	}
	return nil
}

func (l *Ledger) Close() error {
	return l.client.Close()
}

// JobID maps an object key to a valid Firestore document ID.
// Keys may contain '/', which Firestore treats as a path separator.
func JobID(inputKey string) string {
	sum := sha256.Sum256([]byte(inputKey))
	return hex.EncodeToString(sum[:])
}
