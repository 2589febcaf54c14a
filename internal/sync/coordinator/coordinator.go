package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/ddr-tools/gitstatusd/internal/collection"
	"github.com/ddr-tools/gitstatusd/internal/config"
	"github.com/ddr-tools/gitstatusd/internal/kv"
	"github.com/ddr-tools/gitstatusd/internal/lock"
	"github.com/ddr-tools/gitstatusd/internal/status"
	"github.com/ddr-tools/gitstatusd/internal/telemetry"
	"github.com/ddr-tools/gitstatusd/internal/vcs"
)

// ExecutionLockKey is the key-value store key of the lock that keeps two
// refresh runs from overlapping
const ExecutionLockKey = "gitstatus-update-lock"

// Coordinator schedules and executes collection status refreshes
type Coordinator interface {
	// Start runs an initial refresh and then fires UpdateStore on the configured schedule.
	// Blocks until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the coordinator, waiting for a running refresh to finish
	Stop() error

	// UpdateStore performs one refresh run and returns the messages it produced
	UpdateStore(ctx context.Context) []string
}

// Dependencies are the collaborators a coordinator needs
type Dependencies struct {
	// Store backs the execution lock and the cached status summaries
	Store kv.Store

	// GlobalLock pauses all refreshes while it has holders
	GlobalLock lock.Coordinator

	// Provider reports the working tree status of a collection
	Provider vcs.StatusProvider

	// Statuses persists status records
	Statuses status.StatusPersistence

	// EditLocks answers whether a collection is locked for editing
	EditLocks collection.LockQuery
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	deps Dependencies

	basePath               string
	interval               time.Duration
	margin                 time.Duration
	schedule               string
	respectCollectionLocks bool
	statusTTL              time.Duration

	execLock *kv.ExecutionLock

	// Lifecycle management
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}

	refreshMetrics *telemetry.RefreshMetrics
	tracer         trace.Tracer
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithRefreshMetrics sets the refresh metrics for the coordinator
func WithRefreshMetrics(metrics *telemetry.RefreshMetrics) Option {
	return func(c *defaultCoordinator) {
		c.refreshMetrics = metrics
	}
}

// WithTracer sets the tracer used for refresh spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *defaultCoordinator) {
		c.tracer = tracer
	}
}

// New creates a new coordinator with injected dependencies
func New(cfg *config.Config, deps Dependencies, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		deps:                   deps,
		basePath:               cfg.BasePath,
		interval:               cfg.GetInterval(),
		margin:                 cfg.GetMargin(),
		schedule:               cfg.GetSchedule(),
		respectCollectionLocks: cfg.Refresh.RespectCollectionLocks,
		statusTTL:              cfg.GetStatusTTL(),
		execLock:               kv.NewExecutionLock(deps.Store, ExecutionLockKey, cfg.GetExecutionLockTTL()),
		done:                   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start begins background refreshes
func (c *defaultCoordinator) Start(ctx context.Context) error {
	slog.Info("Starting background refresh coordinator",
		"base_path", c.basePath,
		"schedule", c.schedule,
		"interval", c.interval,
		"margin", c.margin)

	// Create cancellable context for this coordinator
	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer func() {
		close(c.done)
		slog.Info("Background refresh coordinator shutting down")
	}()

	// Overlapping beats are dropped; the execution lock covers other processes
	beat := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := beat.AddFunc(c.schedule, func() { c.UpdateStore(coordCtx) }); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule refresh beat %q: %w", c.schedule, err)
	}

	// Perform initial refresh
	c.UpdateStore(coordCtx)

	beat.Start()
	<-coordCtx.Done()
	slog.Info("Refresh coordinator stopping")

	// Wait for a running refresh to finish
	<-beat.Stop().Done()
	return nil
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()
	if cancel != nil {
		slog.Info("Stopping refresh coordinator")
		cancel()
		// Wait for coordinator to finish
		<-c.done
	}
	return nil
}
