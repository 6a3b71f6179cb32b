package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Lllllllleong/unbundler/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	initialPollBackoff = time.Second
	maxPollBackoff     = time.Minute
)

// task is a received work item with its payload already decoded.
type task struct {
	item models.WorkItem
	key  string
	skip bool
	err  error
}

func decodeTask(item models.WorkItem) task {
	key, skip, err := DecodeKey(item.Body)
	return task{item: item, key: key, skip: skip, err: err}
}

// Run polls and processes batches until ctx is cancelled. Cancellation stops
// polling; items already received are processed and resolved before Run
// returns.
func (u *Unbundler) Run(ctx context.Context) error {
	if u.source == nil {
		return errors.New("no work-item source configured")
	}
	procCtx := context.WithoutCancel(ctx)
	backoff := initialPollBackoff

	slog.Info("Entering main polling loop.")
	for {
		if ctx.Err() != nil {
			slog.Info("Shutdown requested, polling stopped.")
			return nil
		}
		err := u.RunBatch(ctx, procCtx)
		if err == nil {
			backoff = initialPollBackoff
			continue
		}
		if ctx.Err() != nil {
			slog.Info("Shutdown requested, polling stopped.")
			return nil
		}
		slog.Error("Queue poll failed, will retry.", "error", err, "backoff", backoff.String())
		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxPollBackoff)
		case <-ctx.Done():
			slog.Info("Shutdown requested during backoff.")
			return nil
		}
	}
}

// RunBatch polls once and processes every received item. pollCtx bounds the
// poll; procCtx bounds processing and resolution.
//
// Items are processed in parallel, up to the poll size. Items that share an
// input key run sequentially in the same worker.
func (u *Unbundler) RunBatch(pollCtx, procCtx context.Context) error {
	slog.Debug("Checking queue.")
	items, err := u.source.Poll(pollCtx, u.config.PollMaxItems, u.config.PollWaitSeconds)
	if err != nil {
		u.metrics.PollsTotal.WithLabelValues("error").Inc()
		return err
	}
	u.metrics.PollsTotal.WithLabelValues("ok").Inc()
	if len(items) == 0 {
		return nil
	}
	u.metrics.ItemsReceived.Add(float64(len(items)))
	slog.Info("Received work items.", "count", len(items))

	var eg errgroup.Group
	eg.SetLimit(u.config.PollMaxItems)
	for _, group := range groupByKey(items) {
		eg.Go(func() error {
			for _, t := range group {
				u.handle(procCtx, t)
			}
			return nil
		})
	}
	return eg.Wait()
}

// HandleItem processes and resolves a single work item.
func (u *Unbundler) HandleItem(ctx context.Context, item models.WorkItem) Outcome {
	return u.handle(ctx, decodeTask(item))
}

func (u *Unbundler) handle(ctx context.Context, t task) Outcome {
	u.metrics.ItemsInFlight.Inc()
	defer u.metrics.ItemsInFlight.Dec()

	logCtx := slog.With("messageId", t.item.MessageID, "receiveCount", t.item.ReceiveCount)
	var out Outcome
	switch {
	case t.err != nil:
		out = u.failed(logCtx, Outcome{Stage: StageReceived}, t.err)
	case t.skip:
		logCtx.Info("Message references no object, discarding.")
		out = Outcome{Stage: StageSkipped}
	default:
		out = u.ProcessKey(ctx, t.key)
	}

	out.Stage = u.resolve(ctx, logCtx.With("inputKey", out.InputKey), t.item, out)
	u.metrics.ItemsResolved.WithLabelValues(out.Stage.String()).Inc()
	u.record(ctx, out)
	return out
}

// resolve acknowledges successful items and releases failed ones so the
// queue redelivers them. With a quarantine configured, malformed items are
// forwarded there and acknowledged instead. It returns the final stage.
func (u *Unbundler) resolve(ctx context.Context, logCtx *slog.Logger, item models.WorkItem, out Outcome) Stage {
	if out.Err == nil {
		if err := u.source.Acknowledge(ctx, item); err != nil {
			u.metrics.ResolveFailures.WithLabelValues("acknowledge").Inc()
			logCtx.Error("Failed to acknowledge work item; it will be redelivered.", "error", err)
			return out.Stage
		}
		if out.Stage == StageSkipped {
			return StageSkipped
		}
		return StageAcknowledged
	}

	if out.Kind == KindMalformed && u.quarantine != nil {
		if err := u.quarantine.Quarantine(ctx, item, out.Err.Error()); err != nil {
			u.metrics.ResolveFailures.WithLabelValues("quarantine").Inc()
			logCtx.Error("Failed to quarantine work item, releasing instead.", "error", err)
		} else {
			if err := u.source.Acknowledge(ctx, item); err != nil {
				u.metrics.ResolveFailures.WithLabelValues("acknowledge").Inc()
				logCtx.Error("Quarantined work item could not be acknowledged; it may be quarantined again.", "error", err)
			}
			logCtx.Warn("Work item quarantined.", "errorKind", string(out.Kind))
			return StageQuarantined
		}
	}

	if err := u.source.Release(ctx, item); err != nil {
		u.metrics.ResolveFailures.WithLabelValues("release").Inc()
		logCtx.Error("Failed to release work item; it will reappear after the visibility timeout.", "error", err)
	}
	return StageReleased
}

// groupByKey splits a batch into groups of items that must run sequentially.
// Items whose payload could not be decoded get a group of their own.
func groupByKey(items []models.WorkItem) [][]task {
	var groups [][]task
	index := make(map[string]int)
	for _, item := range items {
		t := decodeTask(item)
		if t.key == "" {
			groups = append(groups, []task{t})
			continue
		}
		if i, ok := index[t.key]; ok {
			groups[i] = append(groups[i], t)
			continue
		}
		index[t.key] = len(groups)
		groups = append(groups, []task{t})
	}
	return groups
}
