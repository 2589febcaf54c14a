package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ddr-tools/gitstatusd/internal/collection"
	"github.com/ddr-tools/gitstatusd/internal/config"
	"github.com/ddr-tools/gitstatusd/internal/fsutil"
	"github.com/ddr-tools/gitstatusd/internal/kv"
	"github.com/ddr-tools/gitstatusd/internal/lock"
	"github.com/ddr-tools/gitstatusd/internal/otel"
	"github.com/ddr-tools/gitstatusd/internal/queue"
	"github.com/ddr-tools/gitstatusd/internal/status"
	"github.com/ddr-tools/gitstatusd/internal/telemetry"
)

// ErrUnknownRepoOrg is returned when a listing names a repo-org pair that is not configured
var ErrUnknownRepoOrg = errors.New("repo-org is not configured")

// Dependencies are the collaborators of the status service
type Dependencies struct {
	Directory  collection.Directory
	Statuses   status.StatusPersistence
	Store      kv.Store
	GlobalLock lock.Coordinator
	// ExecutionLock is shared with the refresh coordinator; queue writes happen under it
	ExecutionLock *kv.ExecutionLock
}

// ServiceOption configures the status service
type ServiceOption func(*statusService)

// WithStatusMetrics sets the cache lookup metrics
func WithStatusMetrics(metrics *telemetry.StatusMetrics) ServiceOption {
	return func(s *statusService) {
		s.metrics = metrics
	}
}

// WithTracer sets the tracer used for service spans
func WithTracer(tracer trace.Tracer) ServiceOption {
	return func(s *statusService) {
		s.tracer = tracer
	}
}

type statusService struct {
	basePath  string
	repoOrgs  []string
	statusTTL time.Duration
	deps      Dependencies

	// concurrent misses for one collection share a single file read
	loads singleflight.Group

	metrics *telemetry.StatusMetrics
	tracer  trace.Tracer
}

// New creates a status service over the collections of cfg
func New(cfg *config.Config, deps Dependencies, opts ...ServiceOption) StatusService {
	s := &statusService{
		basePath:  cfg.BasePath,
		repoOrgs:  cfg.RepoOrgs,
		statusTTL: cfg.GetStatusTTL(),
		deps:      deps,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *statusService) CheckReadiness(_ context.Context) error {
	if !fsutil.IsWritable(s.basePath) {
		return fmt.Errorf("%w: base path %s is not writable", ErrNotReady, s.basePath)
	}
	return nil
}

func (s *statusService) ListCollections(
	ctx context.Context,
	opts ...Option[ListCollectionsOptions],
) (*CollectionPage, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "service.ListCollections")
	defer span.End()

	options := &ListCollectionsOptions{}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	repoOrgs := s.repoOrgs
	if options.RepoOrg != "" {
		if !slices.Contains(s.repoOrgs, options.RepoOrg) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRepoOrg, options.RepoOrg)
		}
		repoOrgs = []string{options.RepoOrg}
	}

	after, err := DecodeCursor(options.Cursor)
	if err != nil {
		return nil, err
	}

	var refs []collection.Ref
	for _, pair := range repoOrgs {
		repo, org, err := collection.SplitRepoOrg(pair)
		if err != nil {
			return nil, err
		}
		found, err := s.deps.Directory.List(ctx, repo, org)
		if err != nil {
			otel.RecordError(span, err)
			return nil, fmt.Errorf("failed to list collections of %s: %w", pair, err)
		}
		refs = append(refs, found...)
	}

	q := s.loadQueueQuietly()
	page := &CollectionPage{}
	passed := after == ""
	for i, ref := range refs {
		if !passed {
			passed = ref.ID == after
			continue
		}

		summary, err := s.SyncStatus(ctx, ref.ID)
		if err != nil {
			slog.Warn("Failed to read sync status", "collection", ref.ID, "error", err)
		}
		if options.State != "" && (summary == nil || summary.State != options.State) {
			continue
		}

		page.Collections = append(page.Collections, newCollectionStatus(ref, summary, q))
		if options.Limit > 0 && len(page.Collections) == options.Limit {
			if i < len(refs)-1 {
				page.NextCursor = EncodeCursor(ref.ID)
			}
			break
		}
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(page.Collections)))
	return page, nil
}

func (s *statusService) GetCollection(ctx context.Context, collectionID string) (*CollectionStatus, error) {
	ref, err := s.ref(collectionID)
	if err != nil {
		return nil, err
	}
	summary, err := s.SyncStatus(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	return newCollectionStatus(ref, summary, s.loadQueueQuietly()), nil
}

func (s *statusService) SyncStatus(ctx context.Context, collectionID string) (*status.SyncStatus, error) {
	if !collection.ValidID(collectionID) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCollectionID, collectionID)
	}

	key := status.CacheKey(collectionID)
	data, found, err := s.deps.Store.Get(ctx, key)
	switch {
	case err != nil:
		slog.Warn("Status cache unavailable, reading status file", "collection", collectionID, "error", err)
	case found:
		summary, err := status.UnmarshalSyncStatus(data)
		if err == nil {
			s.metrics.RecordLookup(ctx, "hit")
			return summary, nil
		}
		slog.Warn("Dropping unreadable cached sync status", "collection", collectionID, "error", err)
	}

	v, err, _ := s.loads.Do(collectionID, func() (any, error) {
		record, err := s.deps.Statuses.LoadStatus(ctx, collectionID)
		if err != nil {
			return nil, err
		}
		if record == nil || record.SyncStatus == nil {
			return (*status.SyncStatus)(nil), nil
		}
		encoded, err := status.MarshalSyncStatus(record.SyncStatus)
		if err == nil {
			err = s.deps.Store.Set(ctx, key, encoded, s.statusTTL)
		}
		if err != nil {
			slog.Warn("Failed to cache sync status", "collection", collectionID, "error", err)
		}
		return record.SyncStatus, nil
	})
	if err != nil {
		return nil, err
	}

	summary := v.(*status.SyncStatus)
	if summary == nil {
		s.metrics.RecordLookup(ctx, "absent")
		return nil, nil
	}
	s.metrics.RecordLookup(ctx, "miss")
	return summary, nil
}

func (s *statusService) GetRecord(ctx context.Context, collectionID string) (*status.Record, error) {
	if _, err := s.ref(collectionID); err != nil {
		return nil, err
	}
	record, err := s.deps.Statuses.LoadStatus(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrStatusNotFound, collectionID)
	}
	return record, nil
}

func (s *statusService) GetQueue(_ context.Context) (*queue.Queue, error) {
	return queue.Load(s.basePath)
}

func (s *statusService) RegenerateQueue(ctx context.Context) (*queue.Queue, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "service.RegenerateQueue")
	defer span.End()

	var q *queue.Queue
	err := s.withExecutionLock(ctx, func() error {
		var err error
		q, err = queue.Regenerate(ctx, s.repoOrgs, s.deps.Directory, s.deps.Statuses)
		if err != nil {
			return err
		}
		return queue.Save(s.basePath, q)
	})
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	slog.Info("Refresh queue regenerated", "entries", q.Len())
	return q, nil
}

func (s *statusService) RequestRefresh(ctx context.Context, collectionID string) error {
	ctx, span := otel.StartSpan(ctx, s.tracer, "service.RequestRefresh")
	defer span.End()
	span.SetAttributes(otel.AttrCollectionID.String(collectionID))

	if _, err := s.ref(collectionID); err != nil {
		return err
	}

	err := s.withExecutionLock(ctx, func() error {
		q, err := queue.Load(s.basePath)
		if err != nil {
			return err
		}
		return queue.Save(s.basePath, queue.MarkDue(q, collectionID))
	})
	if err != nil {
		otel.RecordError(span, err)
		return err
	}

	slog.Info("Collection refresh requested", "collection", collectionID)
	return nil
}

func (s *statusService) Locks(ctx context.Context) ([]lock.Entry, error) {
	return s.deps.GlobalLock.Locked(ctx)
}

// Lock and Unlock report the contents their own write produced, not a later read
func (s *statusService) Lock(ctx context.Context, holder string) ([]lock.Entry, error) {
	contents, err := s.deps.GlobalLock.Lock(ctx, holder)
	if err != nil {
		return nil, err
	}
	return lock.Parse(lock.LockFileName, contents)
}

func (s *statusService) Unlock(ctx context.Context, holder string) ([]lock.Entry, error) {
	contents, err := s.deps.GlobalLock.Unlock(ctx, holder)
	if err != nil {
		return nil, err
	}
	return lock.Parse(lock.LockFileName, contents)
}

// withExecutionLock runs fn while holding the lock refresh runs take, so queue
// rewrites never interleave with a run
func (s *statusService) withExecutionLock(ctx context.Context, fn func() error) error {
	owner := uuid.NewString()
	if err := s.deps.ExecutionLock.TryAcquire(ctx, owner); err != nil {
		if errors.Is(err, kv.ErrBusy) {
			return ErrRefreshBusy
		}
		return err
	}
	defer func() {
		if err := s.deps.ExecutionLock.Release(context.WithoutCancel(ctx), owner); err != nil {
			slog.Warn("Failed to release execution lock", "error", err)
		}
	}()
	return fn()
}

// ref resolves a collection identifier to its directory, which must exist
func (s *statusService) ref(collectionID string) (collection.Ref, error) {
	if !collection.ValidID(collectionID) {
		return collection.Ref{}, fmt.Errorf("%w: %s", ErrInvalidCollectionID, collectionID)
	}
	path := filepath.Join(s.basePath, collectionID)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return collection.Ref{}, fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionID)
	}
	return collection.Ref{ID: collectionID, Path: path}, nil
}

// loadQueueQuietly returns nil when the queue is missing or unreadable
func (s *statusService) loadQueueQuietly() *queue.Queue {
	q, err := queue.Load(s.basePath)
	if err != nil {
		if !errors.Is(err, queue.ErrMissingQueue) {
			slog.Warn("Failed to read refresh queue", "error", err)
		}
		return nil
	}
	return q
}

func newCollectionStatus(ref collection.Ref, summary *status.SyncStatus, q *queue.Queue) *CollectionStatus {
	cs := &CollectionStatus{ID: ref.ID, Path: ref.Path, SyncStatus: summary}
	if q != nil {
		if e, ok := q.Find(ref.ID); ok {
			cs.NextCheck = e.Next
		}
	}
	return cs
}
