package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/unbundler/internal/awscloud"
	"github.com/Lllllllleong/unbundler/internal/gcp"
	"github.com/Lllllllleong/unbundler/internal/metrics"
	"github.com/aws/aws-sdk-go/aws/session"
)

// NewUnbundler creates the cloud clients named by cfg and wires them into an
// Unbundler. The queue is only resolved when cfg.QueueName is set.
func NewUnbundler(ctx context.Context, cfg Config) (*Unbundler, error) {
	deps := Dependencies{Metrics: metrics.NewMetrics()}
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	var sess *session.Session
	awsSession := func() (*session.Session, error) {
		if sess != nil {
			return sess, nil
		}
		var err error
		sess, err = awscloud.NewSession(cfg.Region)
		return sess, err
	}

	switch cfg.StorageProvider {
	case ProviderGCS:
		st, err := gcp.NewStorage(ctx, cfg.InputBucket, cfg.OutputBucket, cfg.NoOverwrite)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS transfer: %w", err)
		}
		closers = append(closers, st)
		deps.Transfer = st
	default:
		s, err := awsSession()
		if err != nil {
			return nil, err
		}
		deps.Transfer = awscloud.NewS3Transfer(s, cfg.InputBucket, cfg.OutputBucket, cfg.NoOverwrite)
	}

	if cfg.QueueName != "" {
		s, err := awsSession()
		if err != nil {
			closeAll()
			return nil, err
		}
		q, err := awscloud.NewQueue(ctx, s, cfg.QueueName, cfg.VisibilityTimeoutSeconds)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create work queue: %w", err)
		}
		deps.Source = q
		slog.Info("Work queue resolved.", "queueUrl", q.URL())
	}

	if cfg.QuarantineQueue != "" {
		s, err := awsSession()
		if err != nil {
			closeAll()
			return nil, err
		}
		q, err := awscloud.NewQueue(ctx, s, cfg.QuarantineQueue, cfg.VisibilityTimeoutSeconds)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create quarantine queue: %w", err)
		}
		deps.Quarantine = q
	}

	if cfg.LedgerCollection != "" {
		l, err := gcp.NewLedger(ctx, cfg.ProjectID, cfg.LedgerCollection)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create job ledger: %w", err)
		}
		closers = append(closers, l)
		deps.Ledger = l
	}

	u, err := New(cfg, deps)
	if err != nil {
		closeAll()
		return nil, err
	}
	u.closers = closers
	slog.Info("Unbundler initialized.", cfg.LogAttrs()...)
	return u, nil
}
