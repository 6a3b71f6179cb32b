package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Lllllllleong/unbundler/internal/flatten"
	"github.com/Lllllllleong/unbundler/internal/models"
)

func TestDecodeKey(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKey  string
		wantSkip bool
	}{
		{
			name:    "s3 notification",
			body:    s3Body("incoming/bundle.json"),
			wantKey: "incoming/bundle.json",
		},
		{
			name:    "s3 notification with encoded key",
			body:    s3Body("incoming/my+bundle%281%29.json"),
			wantKey: "incoming/my bundle(1).json",
		},
		{
			name:     "s3 test event",
			body:     `{"Service":"Amazon S3","Event":"s3:TestEvent","Time":"2024-01-01T00:00:00Z","Bucket":"input"}`,
			wantSkip: true,
		},
		{
			name:    "gcs notification",
			body:    `{"bucket":"input","name":"a/b.json","contentType":"application/json"}`,
			wantKey: "a/b.json",
		},
		{
			name: "cloudevent",
			body: `{"specversion":"1.0","id":"42","source":"//storage.googleapis.com/projects/_/buckets/input",` +
				`"type":"google.cloud.storage.object.v1.finalized","datacontenttype":"application/json",` +
				`"data":{"bucket":"input","name":"c/d.json"}}`,
			wantKey: "c/d.json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, skip, err := DecodeKey(tt.body)
			if err != nil {
				t.Fatalf("DecodeKey failed: %v", err)
			}
			if key != tt.wantKey || skip != tt.wantSkip {
				t.Errorf("DecodeKey = (%q, %v), want (%q, %v)", key, skip, tt.wantKey, tt.wantSkip)
			}
		})
	}
}

func TestDecodeKeyMalformed(t *testing.T) {
	for _, body := range []string{
		``,
		`not json`,
		`{}`,
		`{"Records":[]}`,
		`{"Records":[{"s3":{"object":{"key":""}}}]}`,
		`{"Records":[{"s3":{"object":{"key":"bad%zzkey"}}}]}`,
		`{"Records":"nope"}`,
	} {
		t.Run(body, func(t *testing.T) {
			_, skip, err := DecodeKey(body)
			if !errors.Is(err, flatten.ErrMalformedDocument) {
				t.Fatalf("expected ErrMalformedDocument, got %v", err)
			}
			if skip {
				t.Errorf("malformed payloads are not skipped")
			}
		})
	}
}

func TestOutputKey(t *testing.T) {
	cfg := Config{OutputPrefix: "flattened/", OutputSuffix: "tabular.csv"}
	tests := map[string]string{
		"bundle.json":           "flattened/bundletabular.csv",
		"incoming/patient.json": "flattened/incoming/patienttabular.csv",
		"noext":                 "flattened/noexttabular.csv",
		"dir.v2/archive.tar.gz": "flattened/dir.v2/archive.tartabular.csv",
	}
	for in, want := range tests {
		if got := cfg.OutputKey(in); got != want {
			t.Errorf("OutputKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err       error
		want      ErrorKind
		transient bool
	}{
		{nil, KindNone, false},
		{fmt.Errorf("wrap: %w", flatten.ErrRecursionLimit), KindMalformed, false},
		{flatten.ErrKeyCollision, KindMalformed, false},
		{fmt.Errorf("%w: gone", models.ErrNotFound), KindNotFound, true},
		{fmt.Errorf("%w: reset", models.ErrTransfer), KindTransfer, true},
		{fmt.Errorf("%w: disk full", models.ErrLocalIO), KindLocalIO, false},
		{fmt.Errorf("%w: %w", models.ErrTransfer, context.Canceled), KindTransfer, true},
		{context.DeadlineExceeded, KindCanceled, true},
		{errors.New("boom"), KindUnknown, true},
	}
	for _, tt := range tests {
		got := Classify(tt.err)
		if got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
		if got.Transient() != tt.transient {
			t.Errorf("%q.Transient() = %v, want %v", got, got.Transient(), tt.transient)
		}
	}
}
