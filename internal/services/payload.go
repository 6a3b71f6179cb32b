package services

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/Lllllllleong/unbundler/internal/flatten"
	"github.com/Lllllllleong/unbundler/internal/models"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

const s3TestEvent = "s3:TestEvent"

// payloadProbe detects which envelope a message body uses.
type payloadProbe struct {
	Records     json.RawMessage `json:"Records"`
	Event       string          `json:"Event"`
	SpecVersion string          `json:"specversion"`
	Name        string          `json:"name"`
}

// DecodeKey extracts the input object key from a queue message body. It
// understands S3 event notifications, GCS object notifications and
// structured-mode CloudEvents carrying a GCS object. skip is true for
// notifications that reference no object, such as the S3 test event.
func DecodeKey(body string) (key string, skip bool, err error) {
	var probe payloadProbe
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return "", false, fmt.Errorf("%w: message body is not JSON: %v", flatten.ErrMalformedDocument, err)
	}

	switch {
	case probe.Event == s3TestEvent:
		return "", true, nil
	case probe.SpecVersion != "":
		key, err = decodeCloudEvent(body)
	case len(probe.Records) > 0:
		key, err = decodeS3Notification(body)
	case probe.Name != "":
		key = probe.Name
	default:
		return "", false, fmt.Errorf("%w: message body carries no object reference", flatten.ErrMalformedDocument)
	}
	if err != nil {
		return "", false, err
	}
	if key == "" {
		return "", false, fmt.Errorf("%w: empty object key", flatten.ErrMalformedDocument)
	}
	return key, false, nil
}

func decodeS3Notification(body string) (string, error) {
	var n models.S3EventNotification
	if err := json.Unmarshal([]byte(body), &n); err != nil {
		return "", fmt.Errorf("%w: invalid S3 notification: %v", flatten.ErrMalformedDocument, err)
	}
	if len(n.Records) == 0 {
		return "", fmt.Errorf("%w: S3 notification has no records", flatten.ErrMalformedDocument)
	}
	// S3 URL-encodes keys in notifications, with spaces as '+'.
	key, err := url.QueryUnescape(n.Records[0].S3.Object.Key)
	if err != nil {
		return "", fmt.Errorf("%w: invalid object key encoding: %v", flatten.ErrMalformedDocument, err)
	}
	return key, nil
}

func decodeCloudEvent(body string) (string, error) {
	event := cloudevents.NewEvent()
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return "", fmt.Errorf("%w: invalid CloudEvent: %v", flatten.ErrMalformedDocument, err)
	}
	var obj models.GCSEvent
	if err := event.DataAs(&obj); err != nil {
		return "", fmt.Errorf("%w: CloudEvent %s has no object data: %v", flatten.ErrMalformedDocument, event.ID(), err)
	}
	return obj.Name, nil
}

// OutputKey derives the destination key: the input key without its extension,
// plus the configured suffix, under the configured prefix.
func (c Config) OutputKey(inputKey string) string {
	base := strings.TrimSuffix(inputKey, path.Ext(inputKey))
	return c.OutputPrefix + base + c.OutputSuffix
}
