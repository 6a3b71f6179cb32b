package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Lllllllleong/unbundler/internal/flatten"
	"github.com/Lllllllleong/unbundler/internal/metrics"
	"github.com/Lllllllleong/unbundler/internal/models"
)

// Transfer fetches input documents and stores generated tables.
// Implementations must be safe for concurrent use.
type Transfer interface {
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
	Store(ctx context.Context, key string, data io.Reader) error
}

// Source yields work items with at-least-once delivery.
// Implementations must be safe for concurrent use.
type Source interface {
	Poll(ctx context.Context, maxItems, waitSeconds int) ([]models.WorkItem, error)
	Acknowledge(ctx context.Context, item models.WorkItem) error
	Release(ctx context.Context, item models.WorkItem) error
}

// Quarantine receives items that redelivery cannot fix.
type Quarantine interface {
	Quarantine(ctx context.Context, item models.WorkItem, reason string) error
}

// Ledger records the latest attempt for each input key.
type Ledger interface {
	Record(ctx context.Context, job models.Job) error
}

// Dependencies are the collaborators of an Unbundler. Only Transfer is
// required; Source is needed for Run.
type Dependencies struct {
	Transfer   Transfer
	Source     Source
	Quarantine Quarantine
	Ledger     Ledger
	Metrics    *metrics.Metrics
}

// Unbundler downloads bundle documents, flattens their entries into a table
// and uploads the table as CSV.
type Unbundler struct {
	config     Config
	transfer   Transfer
	source     Source
	quarantine Quarantine
	ledger     Ledger
	metrics    *metrics.Metrics
	flattener  flatten.Flattener
	closers    []io.Closer
}

// New creates an Unbundler from explicit dependencies and prepares the work
// directory.
func New(cfg Config, deps Dependencies) (*Unbundler, error) {
	if deps.Transfer == nil {
		return nil, fmt.Errorf("%w: a transfer adapter is required", models.ErrConfiguration)
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create work dir %s: %v", models.ErrLocalIO, cfg.WorkDir, err)
	}
	if cfg.PollMaxItems < 1 {
		cfg.PollMaxItems = 1
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Unbundler{
		config:     cfg,
		transfer:   deps.Transfer,
		source:     deps.Source,
		quarantine: deps.Quarantine,
		ledger:     deps.Ledger,
		metrics:    m,
		flattener:  flatten.Flattener{Separator: cfg.KeySeparator, MaxDepth: cfg.MaxDepth},
	}, nil
}

func (u *Unbundler) Metrics() *metrics.Metrics { return u.metrics }

// Close releases clients created by NewUnbundler.
func (u *Unbundler) Close() error {
	var errs []error
	for _, c := range u.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Process runs the pipeline for one key and records the result in the
// ledger. It is the entry point for push-style triggers with no queue.
//
// Malformed documents are recorded as quarantined and nil is returned, so a
// retrying trigger does not redeliver an object that can never succeed. Any
// other failure is returned.
func (u *Unbundler) Process(ctx context.Context, key string) error {
	out := u.ProcessKey(ctx, key)
	if out.Kind == KindMalformed {
		out.Stage = StageQuarantined
		u.record(ctx, out)
		slog.Warn("Malformed document quarantined, not retrying.", "inputKey", key, "error", out.Err)
		return nil
	}
	u.record(ctx, out)
	return out.Err
}

// ProcessKey runs fetch, extract, flatten, serialize and upload for one input
// key inside a private temp directory, which is removed before returning.
func (u *Unbundler) ProcessKey(ctx context.Context, key string) (out Outcome) {
	start := time.Now()
	out = Outcome{InputKey: key, OutputKey: u.config.OutputKey(key), Stage: StageReceived}
	logCtx := slog.With("inputKey", key, "outputKey", out.OutputKey)
	logCtx.Info("Processing document.")

	workDir, err := os.MkdirTemp(u.config.WorkDir, "item-*")
	if err != nil {
		return u.failed(logCtx, out, fmt.Errorf("%w: failed to create temp dir: %v", models.ErrLocalIO, err))
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil && out.Err == nil {
			out = u.failed(logCtx, out, fmt.Errorf("%w: failed to remove temp dir %s: %v", models.ErrLocalIO, workDir, rmErr))
		}
		u.metrics.ItemDuration.Observe(time.Since(start).Seconds())
	}()

	sourcePath := filepath.Join(workDir, "source"+path.Ext(key))
	stageStart := time.Now()
	if err := u.download(ctx, key, sourcePath); err != nil {
		return u.failed(logCtx, out, err)
	}
	out.Stage = StageFetched
	u.metrics.ObserveStage(out.Stage.String(), stageStart)

	stageStart = time.Now()
	entries, err := u.extract(sourcePath)
	if err != nil {
		return u.failed(logCtx, out, err)
	}
	out.Stage = StageExtracted
	u.metrics.ObserveStage(out.Stage.String(), stageStart)

	stageStart = time.Now()
	table, err := u.flattener.FlattenTable(entries)
	if err != nil {
		return u.failed(logCtx, out, err)
	}
	out.Stage = StageFlattened
	out.Rows, out.Columns = len(table.Rows), len(table.Columns)
	u.metrics.ObserveStage(out.Stage.String(), stageStart)

	stageStart = time.Now()
	tablePath := filepath.Join(workDir, path.Base(out.OutputKey))
	logCtx.Debug("Writing csv.", "path", tablePath)
	if err := writeTable(tablePath, table); err != nil {
		return u.failed(logCtx, out, err)
	}
	out.Stage = StageSerialized
	u.metrics.ObserveStage(out.Stage.String(), stageStart)

	stageStart = time.Now()
	if err := u.upload(ctx, out.OutputKey, tablePath); err != nil {
		return u.failed(logCtx, out, err)
	}
	out.Stage = StageUploaded
	u.metrics.ObserveStage(out.Stage.String(), stageStart)
	u.metrics.RowsWrittenTotal.Add(float64(out.Rows))
	u.metrics.ColumnsPerTable.Observe(float64(out.Columns))

	logCtx.Info("Document flattened and uploaded.", "rows", out.Rows, "columns", out.Columns)
	return out
}

func (u *Unbundler) failed(logCtx *slog.Logger, out Outcome, err error) Outcome {
	out.Err = err
	out.Kind = Classify(err)
	u.metrics.FailuresTotal.WithLabelValues(string(out.Kind), out.Stage.String()).Inc()
	attrs := []any{
		"error", err,
		"errorKind", string(out.Kind),
		"transient", out.Kind.Transient(),
		"lastStage", out.Stage.String(),
	}
	var entryErr *flatten.EntryError
	if errors.As(err, &entryErr) {
		attrs = append(attrs, "entryIndex", entryErr.Index)
	}
	logCtx.Error("Processing failed.", attrs...)
	return out
}

func (u *Unbundler) download(ctx context.Context, key, dest string) error {
	rc, err := u.transfer.Fetch(ctx, key)
	if err != nil {
		return transferError(err)
	}
	defer rc.Close()

	localFile, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", models.ErrLocalIO, dest, err)
	}
	if _, err := io.Copy(localFile, rc); err != nil {
		_ = localFile.Close()
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return fmt.Errorf("%w: failed to write %s: %v", models.ErrLocalIO, dest, err)
		}
		return fmt.Errorf("%w: failed to download %s: %v", models.ErrTransfer, key, err)
	}
	if err := localFile.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %v", models.ErrLocalIO, dest, err)
	}
	return nil
}

func (u *Unbundler) extract(sourcePath string) ([]flatten.Value, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", models.ErrLocalIO, sourcePath, err)
	}
	doc, err := flatten.Parse(data, u.config.MaxDepth+flatten.EntryNesting)
	if err != nil {
		return nil, err
	}
	return flatten.ExtractEntries(doc, u.config.EntryField)
}

func writeTable(dest string, table *flatten.Table) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", models.ErrLocalIO, dest, err)
	}
	if err := flatten.WriteCSV(f, table); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %v", models.ErrLocalIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %v", models.ErrLocalIO, dest, err)
	}
	return nil
}

func (u *Unbundler) upload(ctx context.Context, key, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %v", models.ErrLocalIO, src, err)
	}
	defer f.Close()
	if err := u.transfer.Store(ctx, key, f); err != nil {
		return transferError(err)
	}
	return nil
}

// transferError makes sure adapter errors land in the transfer taxonomy.
func transferError(err error) error {
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrTransfer) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrTransfer, err)
}

func (u *Unbundler) record(ctx context.Context, out Outcome) {
	if u.ledger == nil || out.Stage == StageSkipped || out.InputKey == "" {
		return
	}
	job := models.Job{
		InputKey:    out.InputKey,
		OutputKey:   out.OutputKey,
		Stage:       out.Stage.String(),
		RowCount:    out.Rows,
		ColumnCount: out.Columns,
	}
	switch {
	case out.Stage == StageQuarantined:
		job.Status = models.JobStatusQuarantined
	case out.Err == nil:
		job.Status = models.JobStatusSucceeded
	default:
		job.Status = models.JobStatusFailed
	}
	if out.Err != nil {
		job.ErrorKind = string(out.Kind)
		job.ErrorDetails = out.Err.Error()
	}
	if err := u.ledger.Record(ctx, job); err != nil {
		slog.Warn("Failed to record job in ledger.", "inputKey", out.InputKey, "error", err)
	}
}
