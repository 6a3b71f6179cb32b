// Package awscloud adapts S3 and SQS to the worker's transfer and queue contracts.
package awscloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/unbundler/internal/models"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// NewSession creates an AWS session pinned to region. Credentials come from
// the default provider chain.
func NewSession(region string) (*session.Session, error) {
	if region == "" {
		return nil, fmt.Errorf("region must be provided to create an AWS session")
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return sess, nil
}

// S3Transfer moves documents between an input and an output S3 bucket.
type S3Transfer struct {
	client       s3iface.S3API
	uploader     s3manageriface.UploaderAPI
	inputBucket  string
	outputBucket string
	noOverwrite  bool
}

func NewS3Transfer(sess *session.Session, inputBucket, outputBucket string, noOverwrite bool) *S3Transfer {
	client := s3.New(sess)
	return NewS3TransferWithClients(client, s3manager.NewUploaderWithClient(client), inputBucket, outputBucket, noOverwrite)
}

func NewS3TransferWithClients(client s3iface.S3API, uploader s3manageriface.UploaderAPI, inputBucket, outputBucket string, noOverwrite bool) *S3Transfer {
	return &S3Transfer{
		client:       client,
		uploader:     uploader,
		inputBucket:  inputBucket,
		outputBucket: outputBucket,
		noOverwrite:  noOverwrite,
	}
}

// Fetch opens the input object for key. The caller closes the reader.
func (t *S3Transfer) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := t.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.inputBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		location := fmt.Sprintf("s3://%s/%s", t.inputBucket, key)
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", models.ErrNotFound, location)
		}
		return nil, fmt.Errorf("%w: failed to read %s: %v", models.ErrTransfer, location, err)
	}
	return out.Body, nil
}

// Store uploads data to key in the output bucket.
func (t *S3Transfer) Store(ctx context.Context, key string, data io.Reader) error {
	location := fmt.Sprintf("s3://%s/%s", t.outputBucket, key)
	if t.noOverwrite {
		exists, err := t.exists(ctx, key)
		if err != nil {
			return fmt.Errorf("%w: failed to check %s: %v", models.ErrTransfer, location, err)
		}
		if exists {
			slog.Info("SKIPPING: Object already exists.", "s3Object", location)
			return nil
		}
	}
	_, err := t.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(t.outputBucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", models.ErrTransfer, location, err)
	}
	return nil
}

func (t *S3Transfer) exists(ctx context.Context, key string) (bool, error) {
	_, err := t.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(t.outputBucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
