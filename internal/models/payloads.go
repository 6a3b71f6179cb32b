package models

// These structs describe the queue message bodies the worker understands and
// the unit of work handed from a queue to the processing loop.

// WorkItem is one delivered queue message. Handle is opaque to everything but
// the source that produced it.
type WorkItem struct {
	MessageID    string
	Body         string
	Handle       string
	ReceiveCount int
}

// S3EventNotification is the body S3 publishes for object events.
type S3EventNotification struct {
	Records []S3EventRecord `json:"Records"`
	// Event is only set on the s3:TestEvent sent when a notification is configured.
	Event string `json:"Event,omitempty"`
}

type S3EventRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

// GCSEvent is the payload of a GCS object notification.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}
