package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

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
	"github.com/ddr-tools/gitstatusd/internal/service"
	"github.com/ddr-tools/gitstatusd/internal/status"
	"github.com/ddr-tools/gitstatusd/internal/telemetry"
)

const lockKey = "gitstatus-update-lock"

type fixture struct {
	base     string
	store    kv.Store
	statuses status.StatusPersistence
	execLock *kv.ExecutionLock
	svc      service.StatusService
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	return newFixtureWithStore(t, kv.NewMemoryStore(), nil, ids...)
}

func newFixtureWithStore(t *testing.T, store kv.Store, opts []service.ServiceOption, ids ...string) *fixture {
	t.Helper()
	base := t.TempDir()
	for _, id := range ids {
		require.NoError(t, os.Mkdir(filepath.Join(base, id), 0755))
	}
	globalLock, err := lock.NewFileCoordinator(base)
	require.NoError(t, err)

	f := &fixture{
		base:     base,
		store:    store,
		statuses: status.NewFileStatusPersistence(base),
		execLock: kv.NewExecutionLock(store, lockKey, time.Minute),
	}
	f.svc = service.New(&config.Config{
		BasePath: base,
		RepoOrgs: []string{"ddr-test", "ddr-densho"},
	}, service.Dependencies{
		Directory:     collection.NewFSDirectory(base),
		Statuses:      f.statuses,
		Store:         store,
		GlobalLock:    globalLock,
		ExecutionLock: f.execLock,
	}, opts...)
	return f
}

func (f *fixture) saveStatus(t *testing.T, id string, state status.SyncState) {
	t.Helper()
	record := status.NewRecord(time.Now(), time.Second, "## master", "", state)
	require.NoError(t, f.statuses.SaveStatus(context.Background(), id, record))
}

func TestListCollectionsOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		opt      service.Option[service.ListCollectionsOptions]
		wantErr  bool
		expected service.ListCollectionsOptions
	}{
		{name: "repo-org", opt: service.WithRepoOrg("ddr-test"), expected: service.ListCollectionsOptions{RepoOrg: "ddr-test"}},
		{name: "empty repo-org", opt: service.WithRepoOrg(""), wantErr: true},
		{name: "state", opt: service.WithState("behind"), expected: service.ListCollectionsOptions{State: status.SyncStateBehind}},
		{name: "unknown state", opt: service.WithState("sideways"), wantErr: true},
		{name: "cursor", opt: service.WithCursor("abc"), expected: service.ListCollectionsOptions{Cursor: "abc"}},
		{name: "empty cursor", opt: service.WithCursor(""), wantErr: true},
		{name: "limit", opt: service.WithLimit(10), expected: service.ListCollectionsOptions{Limit: 10}},
		{name: "zero limit", opt: service.WithLimit(0), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := service.ListCollectionsOptions{}
			err := tt.opt(&opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, opts)
		})
	}
}

func TestSyncStatus_ReadThroughCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	metrics, err := telemetry.NewStatusMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)
	f := newFixtureWithStore(t, kv.NewMemoryStore(),
		[]service.ServiceOption{service.WithStatusMetrics(metrics)}, "ddr-test-1")

	// never checked
	summary, err := f.svc.SyncStatus(ctx, "ddr-test-1")
	require.NoError(t, err)
	assert.Nil(t, summary)

	f.saveStatus(t, "ddr-test-1", status.SyncStateBehind)
	summary, err = f.svc.SyncStatus(ctx, "ddr-test-1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, status.SyncStateBehind, summary.State)
	assert.Equal(t, status.ColorWarning, summary.Color)

	// the cached summary wins until it expires
	f.saveStatus(t, "ddr-test-1", status.SyncStateSynced)
	summary, err = f.svc.SyncStatus(ctx, "ddr-test-1")
	require.NoError(t, err)
	assert.Equal(t, status.SyncStateBehind, summary.State)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	lookups := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				result, _ := dp.Attributes.Value(attribute.Key("result"))
				lookups[result.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"absent": 1, "miss": 1, "hit": 1}, lookups)
}

func TestSyncStatus_InvalidID(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.svc.SyncStatus(context.Background(), "../etc")
	assert.ErrorIs(t, err, service.ErrInvalidCollectionID)
}

func TestSyncStatus_CacheUnavailable(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	store := kvmocks.NewMockStore(ctrl)
	f := newFixtureWithStore(t, store, nil, "ddr-test-1")
	f.saveStatus(t, "ddr-test-1", status.SyncStateConflicted)

	store.EXPECT().Get(gomock.Any(), status.CacheKey("ddr-test-1")).Return(nil, false, errors.New("connection refused"))
	store.EXPECT().Set(gomock.Any(), status.CacheKey("ddr-test-1"), gomock.Any(), config.DefaultStatusTTL).
		Return(errors.New("connection refused"))

	summary, err := f.svc.SyncStatus(context.Background(), "ddr-test-1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, status.SyncStateConflicted, summary.State)
}

func TestListCollections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "ddr-test-10", "ddr-test-2", "ddr-test-1", "ddr-densho-5", "other-org-1")
	f.saveStatus(t, "ddr-test-2", status.SyncStateAhead)
	f.saveStatus(t, "ddr-densho-5", status.SyncStateAhead)

	page, err := f.svc.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ddr-test-1", "ddr-test-2", "ddr-test-10", "ddr-densho-5"}, ids(page))
	assert.Empty(t, page.NextCursor)
	assert.Nil(t, page.Collections[0].SyncStatus)
	assert.Equal(t, status.SyncStateAhead, page.Collections[1].SyncStatus.State)

	t.Run("paged", func(t *testing.T) {
		t.Parallel()
		first, err := f.svc.ListCollections(ctx, service.WithLimit(3))
		require.NoError(t, err)
		assert.Equal(t, []string{"ddr-test-1", "ddr-test-2", "ddr-test-10"}, ids(first))
		require.NotEmpty(t, first.NextCursor)

		second, err := f.svc.ListCollections(ctx, service.WithLimit(3), service.WithCursor(first.NextCursor))
		require.NoError(t, err)
		assert.Equal(t, []string{"ddr-densho-5"}, ids(second))
		assert.Empty(t, second.NextCursor)
	})

	t.Run("filtered", func(t *testing.T) {
		t.Parallel()
		got, err := f.svc.ListCollections(ctx, service.WithRepoOrg("ddr-test"), service.WithState("ahead"))
		require.NoError(t, err)
		assert.Equal(t, []string{"ddr-test-2"}, ids(got))
	})

	t.Run("unknown repo-org", func(t *testing.T) {
		t.Parallel()
		_, err := f.svc.ListCollections(ctx, service.WithRepoOrg("other-org"))
		assert.ErrorIs(t, err, service.ErrUnknownRepoOrg)
	})

	t.Run("bad cursor", func(t *testing.T) {
		t.Parallel()
		_, err := f.svc.ListCollections(ctx, service.WithCursor("%%%"))
		assert.Error(t, err)
	})
}

func ids(page *service.CollectionPage) []string {
	out := make([]string, 0, len(page.Collections))
	for _, c := range page.Collections {
		out = append(out, c.ID)
	}
	return out
}

func TestGetCollection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "ddr-test-1")

	c, err := f.svc.GetCollection(ctx, "ddr-test-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.base, "ddr-test-1"), c.Path)
	assert.True(t, c.NextCheck.IsZero(), "no queue yet")

	_, err = f.svc.RegenerateQueue(ctx)
	require.NoError(t, err)
	c, err = f.svc.GetCollection(ctx, "ddr-test-1")
	require.NoError(t, err)
	assert.True(t, c.NextCheck.Equal(status.Epoch))

	_, err = f.svc.GetCollection(ctx, "ddr-test-2")
	assert.ErrorIs(t, err, service.ErrCollectionNotFound)
}

func TestGetRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "ddr-test-1")

	_, err := f.svc.GetRecord(ctx, "ddr-test-1")
	assert.ErrorIs(t, err, service.ErrStatusNotFound)
	_, err = f.svc.GetRecord(ctx, "ddr-test-9")
	assert.ErrorIs(t, err, service.ErrCollectionNotFound)
	_, err = f.svc.GetRecord(ctx, "nope")
	assert.ErrorIs(t, err, service.ErrInvalidCollectionID)

	f.saveStatus(t, "ddr-test-1", status.SyncStateSynced)
	record, err := f.svc.GetRecord(ctx, "ddr-test-1")
	require.NoError(t, err)
	assert.Equal(t, "## master", record.RawStatus)
	assert.Equal(t, status.SyncStateSynced, record.SyncStatus.State)
}

func TestRegenerateQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "ddr-test-1", "ddr-test-2")
	f.saveStatus(t, "ddr-test-2", status.SyncStateSynced)

	_, err := f.svc.GetQueue(ctx)
	assert.ErrorIs(t, err, queue.ErrMissingQueue)

	q, err := f.svc.RegenerateQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Len())

	loaded, err := f.svc.GetQueue(ctx)
	require.NoError(t, err)
	never, ok := loaded.Find("ddr-test-1")
	require.True(t, ok)
	assert.True(t, never.Next.Equal(status.Epoch))
	checked, ok := loaded.Find("ddr-test-2")
	require.True(t, ok)
	assert.True(t, checked.Next.After(status.Epoch))
}

func TestRequestRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "ddr-test-1")

	err := f.svc.RequestRefresh(ctx, "ddr-test-1")
	assert.ErrorIs(t, err, queue.ErrMissingQueue)

	future := status.Truncate(time.Now().Add(time.Hour))
	require.NoError(t, queue.Save(f.base, &queue.Queue{
		GeneratedAt: status.Truncate(time.Now()),
		Entries:     []queue.Entry{{Next: future, CollectionID: "ddr-test-1"}},
	}))

	require.NoError(t, f.svc.RequestRefresh(ctx, "ddr-test-1"))
	q, err := queue.Load(f.base)
	require.NoError(t, err)
	entry, ok := q.Find("ddr-test-1")
	require.True(t, ok)
	assert.True(t, entry.Next.Equal(status.Epoch))

	// lock released after the request
	_, found, err := f.store.Get(ctx, lockKey)
	require.NoError(t, err)
	assert.False(t, found)

	assert.ErrorIs(t, f.svc.RequestRefresh(ctx, "ddr-test-2"), service.ErrCollectionNotFound)
}

func TestRequestRefresh_Busy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, "ddr-test-1")
	_, err := f.svc.RegenerateQueue(ctx)
	require.NoError(t, err)

	require.NoError(t, f.execLock.TryAcquire(ctx, "refresh-run"))
	assert.ErrorIs(t, f.svc.RequestRefresh(ctx, "ddr-test-1"), service.ErrRefreshBusy)
	_, err = f.svc.RegenerateQueue(ctx)
	assert.ErrorIs(t, err, service.ErrRefreshBusy)

	// the running refresh keeps its lock
	holder, found, err := f.store.Get(ctx, lockKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "refresh-run", string(holder))
}

func TestGlobalLock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	entries, err := f.svc.Lock(ctx, "backup")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "backup", entries[0].Holder)

	entries, err = f.svc.Lock(ctx, "migration")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = f.svc.Unlock(ctx, "backup")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "migration", entries[0].Holder)

	entries, err = f.svc.Locks(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = f.svc.Lock(ctx, "")
	assert.ErrorIs(t, err, lock.ErrInvalidHolder)
}

func TestGlobalLock_ReportsOwnWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	globalLock := lockmocks.NewMockCoordinator(ctrl)
	store := kv.NewMemoryStore()
	base := t.TempDir()

	svc := service.New(&config.Config{BasePath: base, RepoOrgs: []string{"ddr-test"}}, service.Dependencies{
		Directory:     collection.NewFSDirectory(base),
		Statuses:      status.NewFileStatusPersistence(base),
		Store:         store,
		GlobalLock:    globalLock,
		ExecutionLock: kv.NewExecutionLock(store, lockKey, time.Minute),
	})

	// Locked is never consulted; an unexpected call fails the test
	globalLock.EXPECT().Lock(gomock.Any(), "backup").Return("2024-05-01T12:30:00 backup\n", nil)
	entries, err := svc.Lock(ctx, "backup")
	require.NoError(t, err)
	assert.Equal(t, []lock.Entry{{Since: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), Holder: "backup"}}, entries)

	globalLock.EXPECT().Unlock(gomock.Any(), "backup").Return("", nil)
	entries, err = svc.Unlock(ctx, "backup")
	require.NoError(t, err)
	assert.Empty(t, entries)

	globalLock.EXPECT().Lock(gomock.Any(), "backup").Return("", errors.New("disk full"))
	_, err = svc.Lock(ctx, "backup")
	assert.ErrorContains(t, err, "disk full")
}

func TestCheckReadiness(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	assert.NoError(t, f.svc.CheckReadiness(context.Background()))

	require.NoError(t, os.RemoveAll(f.base))
	assert.ErrorIs(t, f.svc.CheckReadiness(context.Background()), service.ErrNotReady)
}
