package coordinator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"

	"github.com/ddr-tools/gitstatusd/internal/collection"
	"github.com/ddr-tools/gitstatusd/internal/config"
	"github.com/ddr-tools/gitstatusd/internal/kv"
	kvmocks "github.com/ddr-tools/gitstatusd/internal/kv/mocks"
	"github.com/ddr-tools/gitstatusd/internal/lock"
	lockmocks "github.com/ddr-tools/gitstatusd/internal/lock/mocks"
	"github.com/ddr-tools/gitstatusd/internal/queue"
	"github.com/ddr-tools/gitstatusd/internal/status"
	"github.com/ddr-tools/gitstatusd/internal/telemetry"
	"github.com/ddr-tools/gitstatusd/internal/vcs"
	vcsmocks "github.com/ddr-tools/gitstatusd/internal/vcs/mocks"
)

const testCollectionID = "ddr-test-1"

type fixture struct {
	base       string
	store      kv.Store
	globalLock lock.Coordinator
	statuses   status.StatusPersistence
	cfg        *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	globalLock, err := lock.NewFileCoordinator(base)
	require.NoError(t, err)
	return &fixture{
		base:       base,
		store:      kv.NewMemoryStore(),
		globalLock: globalLock,
		statuses:   status.NewFileStatusPersistence(base),
		cfg: &config.Config{
			BasePath: base,
			RepoOrgs: []string{"ddr-test"},
			Refresh: config.RefreshConfig{
				Interval: "5m",
				Margin:   "1m",
			},
		},
	}
}

// addCollection creates an empty repository for id and returns its path
func (f *fixture) addCollection(t *testing.T, id string) string {
	t.Helper()
	path := filepath.Join(f.base, id)
	_, err := git.PlainInit(path, false)
	require.NoError(t, err)
	return path
}

func (f *fixture) regenerate(t *testing.T) {
	t.Helper()
	q, err := queue.Regenerate(context.Background(), f.cfg.RepoOrgs, collection.NewFSDirectory(f.base), f.statuses)
	require.NoError(t, err)
	require.NoError(t, queue.Save(f.base, q))
}

func (f *fixture) coordinator(provider vcs.StatusProvider, opts ...Option) *defaultCoordinator {
	c := New(f.cfg, Dependencies{
		Store:      f.store,
		GlobalLock: f.globalLock,
		Provider:   provider,
		Statuses:   f.statuses,
		EditLocks:  collection.NewFileLockQuery(f.base),
	}, opts...)
	return c.(*defaultCoordinator)
}

func assertLockReleased(t *testing.T, store kv.Store) {
	t.Helper()
	_, found, err := store.Get(context.Background(), ExecutionLockKey)
	require.NoError(t, err)
	assert.False(t, found, "execution lock should be released")
}

func last(messages []string) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1]
}

func TestUpdateStore_RefreshesDueCollection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	path := f.addCollection(t, testCollectionID)
	f.regenerate(t)
	c := f.coordinator(vcs.NewGitStatusProvider())

	before := time.Now().UTC()
	messages := c.UpdateStore(ctx)
	after := time.Now().UTC()

	assert.Contains(t, messages, "using global lockfile")
	assert.Equal(t, path+" updated", last(messages))
	assertLockReleased(t, f.store)

	record, err := f.statuses.LoadStatus(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.NotNil(t, record.SyncStatus)
	assert.Equal(t, status.SyncStateUnknown, record.SyncStatus.State)
	assert.Equal(t, status.ColorMuted, record.SyncStatus.Color)
	assert.True(t, strings.HasPrefix(record.RawStatus, "## "))

	q, err := queue.Load(f.base)
	require.NoError(t, err)
	entry, ok := q.Find(testCollectionID)
	require.True(t, ok)
	assert.WithinRange(t, entry.Next,
		before.Add(5*time.Minute).Add(-time.Second),
		after.Add(6*time.Minute).Add(time.Second))

	cached, found, err := f.store.Get(ctx, status.CacheKey(testCollectionID))
	require.NoError(t, err)
	require.True(t, found)
	summary, err := status.UnmarshalSyncStatus(cached)
	require.NoError(t, err)
	assert.Equal(t, status.SyncStateUnknown, summary.State)

	// the only collection is now scheduled in the future
	messages = c.UpdateStore(ctx)
	assert.True(t, strings.HasPrefix(last(messages), "next_repo notready "), last(messages))
	assertLockReleased(t, f.store)
}

func TestUpdateStore_ExecutionLockHeld(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	// no provider call is expected
	c := f.coordinator(vcsmocks.NewMockStatusProvider(ctrl))

	ok, err := f.store.Add(ctx, ExecutionLockKey, []byte("other-run"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []string{"couldn't get execution lock"}, c.UpdateStore(ctx))

	holder, found, err := f.store.Get(ctx, ExecutionLockKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "other-run", string(holder))
}

func TestUpdateStore_StoreUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	store := kvmocks.NewMockStore(ctrl)
	store.EXPECT().
		Add(gomock.Any(), ExecutionLockKey, gomock.Any(), config.DefaultExecutionLockTTL).
		Return(false, errors.New("connection refused"))
	f.store = store

	c := f.coordinator(vcsmocks.NewMockStatusProvider(ctrl))
	assert.Equal(t, []string{"couldn't get execution lock"}, c.UpdateStore(context.Background()))
}

func TestUpdateStore_BaseNotWritable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.cfg.BasePath = filepath.Join(f.base, "unmounted")
	ctrl := gomock.NewController(t)
	c := f.coordinator(vcsmocks.NewMockStatusProvider(ctrl))

	messages := c.UpdateStore(context.Background())
	assert.Equal(t, []string{"base_dir not writable: " + f.cfg.BasePath}, messages)
	assertLockReleased(t, f.store)
}

func TestUpdateStore_GlobalLockHeld(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.addCollection(t, testCollectionID)
	f.regenerate(t)
	ctrl := gomock.NewController(t)
	c := f.coordinator(vcsmocks.NewMockStatusProvider(ctrl))

	_, err := f.globalLock.Lock(ctx, "alice")
	require.NoError(t, err)
	_, err = f.globalLock.Lock(ctx, "bob")
	require.NoError(t, err)

	messages := c.UpdateStore(ctx)
	assert.Equal(t, "locked: alice, bob", last(messages))
	assertLockReleased(t, f.store)

	// releasing every holder resumes refreshes
	_, err = f.globalLock.Unlock(ctx, "alice")
	require.NoError(t, err)
	_, err = f.globalLock.Unlock(ctx, "bob")
	require.NoError(t, err)

	provider := vcsmocks.NewMockStatusProvider(ctrl)
	provider.EXPECT().Status(gomock.Any(), filepath.Join(f.base, testCollectionID)).
		Return(&vcs.Report{RawStatus: "## master...origin/master"}, nil)
	c = f.coordinator(provider)
	assert.Equal(t, filepath.Join(f.base, testCollectionID)+" updated", last(c.UpdateStore(ctx)))

	record, err := f.statuses.LoadStatus(ctx, testCollectionID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, status.SyncStateSynced, record.SyncStatus.State)
}

func TestUpdateStore_GlobalLockUnreadable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	globalLock := lockmocks.NewMockCoordinator(ctrl)
	globalLock.EXPECT().Locked(gomock.Any()).Return(nil, errors.New("permission denied"))
	f.globalLock = globalLock

	c := f.coordinator(vcsmocks.NewMockStatusProvider(ctrl))
	messages := c.UpdateStore(context.Background())

	assert.Equal(t, "couldn't read global lockfile: permission denied", last(messages))
	assertLockReleased(t, f.store)
}

func TestUpdateStore_MissingQueue(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addCollection(t, testCollectionID)
	ctrl := gomock.NewController(t)
	c := f.coordinator(vcsmocks.NewMockStatusProvider(ctrl))

	messages := c.UpdateStore(context.Background())
	assert.True(t, strings.HasPrefix(last(messages), "queue missing: "), last(messages))
	assertLockReleased(t, f.store)

	// the queue is never created implicitly
	_, err := queue.Load(f.base)
	assert.ErrorIs(t, err, queue.ErrMissingQueue)
}

func TestUpdateStore_EmptyQueue(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, queue.Save(f.base, &queue.Queue{GeneratedAt: status.Truncate(time.Now())}))
	ctrl := gomock.NewController(t)
	c := f.coordinator(vcsmocks.NewMockStatusProvider(ctrl))

	assert.Equal(t, "next_repo notready: queue is empty", last(c.UpdateStore(context.Background())))
}

func TestUpdateStore_RespectCollectionLocks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	path := f.addCollection(t, testCollectionID)
	f.regenerate(t)
	require.NoError(t, os.WriteFile(filepath.Join(path, collection.EditLockFileName), []byte("editing\n"), 0644))
	f.cfg.Refresh.RespectCollectionLocks = true
	ctrl := gomock.NewController(t)
	c := f.coordinator(vcsmocks.NewMockStatusProvider(ctrl))

	messages := c.UpdateStore(ctx)
	assert.NotContains(t, messages, "using global lockfile")
	assert.Equal(t, "next_repo notready 1970-01-01T00:00:00 (in 0s)", last(messages))
}

func TestUpdateStore_EditLockedCollectionIsClassifiedLocked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	path := f.addCollection(t, testCollectionID)
	f.regenerate(t)
	require.NoError(t, os.WriteFile(filepath.Join(path, collection.EditLockFileName), []byte("editing\n"), 0644))

	ctrl := gomock.NewController(t)
	provider := vcsmocks.NewMockStatusProvider(ctrl)
	provider.EXPECT().Status(gomock.Any(), path).Return(&vcs.Report{RawStatus: "## master"}, nil)
	c := f.coordinator(provider)

	assert.Equal(t, path+" updated", last(c.UpdateStore(ctx)))
	record, err := f.statuses.LoadStatus(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, status.SyncStateLocked, record.SyncStatus.State)
}

func TestUpdateStore_ProviderFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	path := f.addCollection(t, testCollectionID)
	f.regenerate(t)

	ctrl := gomock.NewController(t)
	provider := vcsmocks.NewMockStatusProvider(ctrl)
	provider.EXPECT().Status(gomock.Any(), path).
		Return(nil, &vcs.ProviderError{Path: path, Op: "open repository", Err: errors.New("corrupt")})
	c := f.coordinator(provider)

	messages := c.UpdateStore(ctx)
	assert.True(t, strings.HasPrefix(last(messages), path+" check failed: "), last(messages))
	assertLockReleased(t, f.store)

	// no record written, entry stays due
	record, err := f.statuses.LoadStatus(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, record)
	q, err := queue.Load(f.base)
	require.NoError(t, err)
	entry, ok := q.Find(testCollectionID)
	require.True(t, ok)
	assert.True(t, entry.Next.Equal(status.Epoch))
}

func TestUpdateStore_MissingCollectionIsRescheduled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, queue.Save(f.base, &queue.Queue{
		GeneratedAt: status.Truncate(time.Now()),
		Entries:     []queue.Entry{{Next: status.Epoch, CollectionID: "ddr-test-9"}},
	}))
	ctrl := gomock.NewController(t)
	c := f.coordinator(vcsmocks.NewMockStatusProvider(ctrl))

	messages := c.UpdateStore(context.Background())
	assert.Equal(t, filepath.Join(f.base, "ddr-test-9")+" missing; rescheduled", last(messages))

	q, err := queue.Load(f.base)
	require.NoError(t, err)
	entry, ok := q.Find("ddr-test-9")
	require.True(t, ok)
	assert.True(t, entry.Next.After(time.Now()))
}

func TestUpdateStore_RecordsMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.addCollection(t, testCollectionID)
	f.regenerate(t)

	reader := sdkmetric.NewManualReader()
	metrics, err := telemetry.NewRefreshMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)
	c := f.coordinator(vcs.NewGitStatusProvider(), WithRefreshMetrics(metrics))

	c.UpdateStore(ctx)
	c.UpdateStore(ctx)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "gitstatusd_ticks_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
				counts[outcome.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{
		telemetry.OutcomeRefreshed: 1,
		telemetry.OutcomeNotReady:  1,
	}, counts)
}

func TestCoordinator_StartStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	path := f.addCollection(t, testCollectionID)
	f.regenerate(t)
	f.cfg.Refresh.Schedule = "@every 1h"
	c := f.coordinator(vcs.NewGitStatusProvider())

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Start(ctx)
	}()

	// the initial run refreshes the due collection
	require.Eventually(t, func() bool {
		record, err := f.statuses.LoadStatus(ctx, path)
		return err == nil && record != nil
	}, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Stop())
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}
}

func TestCoordinator_StartRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.cfg.Refresh.Schedule = "every so often"
	ctrl := gomock.NewController(t)
	c := f.coordinator(vcsmocks.NewMockStatusProvider(ctrl))

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to schedule refresh beat")
	assert.NoError(t, c.Stop())
}

func TestCoordinator_StopBeforeStart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	c := f.coordinator(vcsmocks.NewMockStatusProvider(ctrl))
	assert.NoError(t, c.Stop())
}
