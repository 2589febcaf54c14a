package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// RefreshMetricsMeterName is the meter of the refresh scheduler
	RefreshMetricsMeterName = "github.com/ddr-tools/gitstatusd/refresh"

	// StatusMetricsMeterName is the meter of the status read side
	StatusMetricsMeterName = "github.com/ddr-tools/gitstatusd/status"
)

// Tick outcomes recorded by RefreshMetrics.RecordTick
const (
	OutcomeRefreshed    = "refreshed"
	OutcomeBusy         = "busy"
	OutcomeNotWritable  = "not_writable"
	OutcomePaused       = "paused"
	OutcomeMissingQueue = "missing_queue"
	OutcomeNotReady     = "not_ready"
	OutcomeFailed       = "failed"
)

// RefreshMetrics holds the instruments of the refresh scheduler
type RefreshMetrics struct {
	ticksTotal    metric.Int64Counter
	checkDuration metric.Float64Histogram
	queueEntries  metric.Int64Gauge
}

// NewRefreshMetrics creates the scheduler instruments. A nil provider yields nil, which records nothing.
func NewRefreshMetrics(provider metric.MeterProvider) (*RefreshMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(RefreshMetricsMeterName)

	ticksTotal, err := meter.Int64Counter(
		"gitstatusd_ticks_total",
		metric.WithDescription("Scheduler invocations by outcome"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, err
	}

	checkDuration, err := meter.Float64Histogram(
		"gitstatusd_check_duration_seconds",
		metric.WithDescription("Duration of a single collection status check in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	queueEntries, err := meter.Int64Gauge(
		"gitstatusd_queue_entries",
		metric.WithDescription("Number of collections in the refresh queue"),
		metric.WithUnit("{collection}"),
	)
	if err != nil {
		return nil, err
	}

	return &RefreshMetrics{
		ticksTotal:    ticksTotal,
		checkDuration: checkDuration,
		queueEntries:  queueEntries,
	}, nil
}

// RecordTick counts one scheduler invocation
func (m *RefreshMetrics) RecordTick(ctx context.Context, outcome string) {
	if m == nil || m.ticksTotal == nil {
		return
	}
	m.ticksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCheck records the duration of a status check; state is empty when the check failed
func (m *RefreshMetrics) RecordCheck(ctx context.Context, duration time.Duration, state string, success bool) {
	if m == nil || m.checkDuration == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	if state != "" {
		attrs = append(attrs, attribute.String("state", state))
	}
	m.checkDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordQueueEntries records the queue length seen by a tick
func (m *RefreshMetrics) RecordQueueEntries(ctx context.Context, n int) {
	if m == nil || m.queueEntries == nil {
		return
	}
	m.queueEntries.Record(ctx, int64(n))
}

// StatusMetrics holds the instruments of the status read side
type StatusMetrics struct {
	lookupsTotal metric.Int64Counter
}

// NewStatusMetrics creates the read side instruments. A nil provider yields nil.
func NewStatusMetrics(provider metric.MeterProvider) (*StatusMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	lookupsTotal, err := provider.Meter(StatusMetricsMeterName).Int64Counter(
		"gitstatusd_status_lookups_total",
		metric.WithDescription("Sync status lookups by cache result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}
	return &StatusMetrics{lookupsTotal: lookupsTotal}, nil
}

// RecordLookup counts a sync status lookup; result is "hit", "miss" or "absent"
func (m *StatusMetrics) RecordLookup(ctx context.Context, result string) {
	if m == nil || m.lookupsTotal == nil {
		return
	}
	m.lookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
