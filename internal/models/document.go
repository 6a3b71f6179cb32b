package models

import "time"

// Job is the ledger record for one input object in Firestore.
// The document ID is derived from the input key, so redeliveries of the same
// key update the same record.
type Job struct {
	InputKey     string    `firestore:"inputKey,omitempty"`
	OutputKey    string    `firestore:"outputKey,omitempty"`
	Status       string    `firestore:"status,omitempty"`
	Stage        string    `firestore:"stage,omitempty"`
	ErrorKind    string    `firestore:"errorKind,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	RowCount     int       `firestore:"rowCount"`
	ColumnCount  int       `firestore:"columnCount"`
	Attempts     int       `firestore:"attempts,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt,omitempty"`
}

// Job statuses.
const (
	JobStatusSucceeded   = "SUCCEEDED"
	JobStatusFailed      = "FAILED"
	JobStatusQuarantined = "QUARANTINED"
)
