package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ddr-tools/gitstatusd/internal/fsutil"
	"github.com/ddr-tools/gitstatusd/internal/kv"
	"github.com/ddr-tools/gitstatusd/internal/lock"
	"github.com/ddr-tools/gitstatusd/internal/otel"
	"github.com/ddr-tools/gitstatusd/internal/queue"
	"github.com/ddr-tools/gitstatusd/internal/status"
	"github.com/ddr-tools/gitstatusd/internal/telemetry"
	"github.com/ddr-tools/gitstatusd/internal/vcs"
)

// run collects the messages and the outcome of one UpdateStore call
type run struct {
	ctx      context.Context
	logger   *slog.Logger
	messages []string
	outcome  string
}

func (r *run) note(level slog.Level, msg string, args ...any) {
	r.messages = append(r.messages, msg)
	r.logger.Log(r.ctx, level, msg, args...)
}

// UpdateStore performs one refresh run
func (c *defaultCoordinator) UpdateStore(ctx context.Context) []string {
	runID := uuid.NewString()
	ctx, span := otel.StartSpan(ctx, c.tracer, "refresh.UpdateStore",
		trace.WithAttributes(otel.AttrRunID.String(runID)))
	defer span.End()

	r := &run{
		ctx:     ctx,
		logger:  slog.With("run_id", runID),
		outcome: telemetry.OutcomeFailed,
	}
	defer func() {
		span.SetAttributes(otel.AttrOutcome.String(r.outcome))
		c.refreshMetrics.RecordTick(ctx, r.outcome)
	}()

	if err := c.execLock.TryAcquire(ctx, runID); err != nil {
		if errors.Is(err, kv.ErrBusy) {
			r.outcome = telemetry.OutcomeBusy
			r.note(slog.LevelInfo, "couldn't get execution lock")
		} else {
			otel.RecordError(span, err)
			r.note(slog.LevelWarn, "couldn't get execution lock", "error", err)
		}
		return r.messages
	}

	// Release even when the caller's context is already cancelled
	defer func() {
		if err := c.execLock.Release(context.WithoutCancel(ctx), runID); err != nil {
			r.logger.Warn("Failed to release execution lock", "error", err)
		}
	}()

	r.outcome = c.refresh(ctx, span, r)
	return r.messages
}

// refresh runs the steps behind the execution lock and returns the outcome
func (c *defaultCoordinator) refresh(ctx context.Context, span trace.Span, r *run) string {
	if !fsutil.IsWritable(c.basePath) {
		r.note(slog.LevelWarn, fmt.Sprintf("base_dir not writable: %s", c.basePath))
		return telemetry.OutcomeNotWritable
	}

	if !c.respectCollectionLocks {
		r.note(slog.LevelInfo, "using global lockfile")
	}
	holders, err := c.deps.GlobalLock.Locked(ctx)
	if err != nil {
		otel.RecordError(span, err)
		r.note(slog.LevelWarn, fmt.Sprintf("couldn't read global lockfile: %v", err))
		return telemetry.OutcomeFailed
	}
	if len(holders) > 0 {
		r.note(slog.LevelInfo, fmt.Sprintf("locked: %s", holderNames(holders)))
		return telemetry.OutcomePaused
	}

	q, err := queue.Load(c.basePath)
	if err != nil {
		if errors.Is(err, queue.ErrMissingQueue) {
			r.note(slog.LevelWarn, fmt.Sprintf("queue missing: %v; run \"gitstatusd regenerate\"", err))
			return telemetry.OutcomeMissingQueue
		}
		otel.RecordError(span, err)
		r.note(slog.LevelError, fmt.Sprintf("queue unreadable: %v", err))
		return telemetry.OutcomeFailed
	}
	c.refreshMetrics.RecordQueueEntries(ctx, q.Len())

	sel := queue.PickNext(ctx, q, c.deps.EditLocks, c.respectCollectionLocks)
	if !sel.Ready() {
		if sel.NextAvailable.IsZero() {
			r.note(slog.LevelInfo, "next_repo notready: queue is empty")
		} else {
			wait := sel.Wait(time.Now()).Round(time.Second)
			r.note(slog.LevelInfo, fmt.Sprintf("next_repo notready %s (in %s)",
				status.FormatTimestamp(sel.NextAvailable), wait))
		}
		return telemetry.OutcomeNotReady
	}

	return c.refreshCollection(ctx, r, q, sel.CollectionID)
}

// refreshCollection checks one collection, persists the record, and reschedules it
func (c *defaultCoordinator) refreshCollection(ctx context.Context, r *run, q *queue.Queue, id string) string {
	ctx, span := otel.StartSpan(ctx, c.tracer, "refresh.CheckCollection",
		trace.WithAttributes(otel.AttrCollectionID.String(id)))
	defer span.End()

	collectionPath := filepath.Join(c.basePath, id)
	if _, err := os.Stat(collectionPath); errors.Is(err, os.ErrNotExist) {
		q = queue.MarkUpdated(q, id, c.interval, c.margin)
		if err := queue.Save(c.basePath, q); err != nil {
			otel.RecordError(span, err)
			r.note(slog.LevelError, fmt.Sprintf("failed to save queue: %v", err))
			return telemetry.OutcomeFailed
		}
		r.note(slog.LevelWarn, fmt.Sprintf("%s missing; rescheduled", collectionPath))
		return telemetry.OutcomeFailed
	}

	start := time.Now()
	report, err := c.deps.Provider.Status(ctx, collectionPath)
	elapsed := time.Since(start)
	if err != nil {
		otel.RecordError(span, err)
		c.refreshMetrics.RecordCheck(ctx, elapsed, "", false)
		r.note(slog.LevelWarn, fmt.Sprintf("%s check failed: %v", collectionPath, err))
		return telemetry.OutcomeFailed
	}

	state := vcs.Classify(report.RawStatus, c.isEditLocked(ctx, r, id))
	span.SetAttributes(otel.AttrSyncState.String(string(state)))
	record := status.NewRecord(time.Now(), elapsed, report.RawStatus, report.RawAnnexStatus, state)

	if err := c.deps.Statuses.SaveStatus(ctx, collectionPath, record); err != nil {
		otel.RecordError(span, err)
		c.refreshMetrics.RecordCheck(ctx, elapsed, string(state), false)
		r.note(slog.LevelError, fmt.Sprintf("%s status not written: %v", collectionPath, err))
		return telemetry.OutcomeFailed
	}
	c.refreshMetrics.RecordCheck(ctx, elapsed, string(state), true)
	c.cacheSyncStatus(ctx, r, id, record.SyncStatus)

	q = queue.MarkUpdated(q, id, c.interval, c.margin)
	if err := queue.Save(c.basePath, q); err != nil {
		otel.RecordError(span, err)
		r.note(slog.LevelError, fmt.Sprintf("failed to save queue: %v", err))
		return telemetry.OutcomeFailed
	}

	r.note(slog.LevelInfo, fmt.Sprintf("%s updated", collectionPath),
		"state", state,
		"elapsed", elapsed)
	return telemetry.OutcomeRefreshed
}

// isEditLocked treats a failed query as unlocked; the state then reflects the working tree alone
func (c *defaultCoordinator) isEditLocked(ctx context.Context, r *run, id string) bool {
	if c.deps.EditLocks == nil {
		return false
	}
	locked, err := c.deps.EditLocks.IsEditLocked(ctx, id)
	if err != nil {
		r.logger.Warn("Edit lock query failed", "collection", id, "error", err)
		return false
	}
	return locked
}

// cacheSyncStatus stores the fresh summary so readers skip the status file
func (c *defaultCoordinator) cacheSyncStatus(ctx context.Context, r *run, id string, s *status.SyncStatus) {
	data, err := status.MarshalSyncStatus(s)
	if err != nil {
		r.logger.Warn("Failed to encode sync status", "collection", id, "error", err)
		return
	}
	if err := c.deps.Store.Set(ctx, status.CacheKey(id), data, c.statusTTL); err != nil {
		r.logger.Warn("Failed to cache sync status", "collection", id, "error", err)
	}
}

func holderNames(entries []lock.Entry) string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Holder)
	}
	return strings.Join(names, ", ")
}
