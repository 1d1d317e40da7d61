package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tablemate/notifyd/internal/domain"
	"github.com/tablemate/notifyd/internal/observability"
	"github.com/tablemate/notifyd/internal/store"
)

const (
	// batchSize is the flush threshold and the maximum batch submitted upstream.
	batchSize = 20
	// flushInterval bounds how long an event sits unflushed.
	flushInterval = 30 * time.Second
)

// Sink receives flushed event batches.
type Sink interface {
	PostAnalyticsBatch(ctx context.Context, events []domain.AnalyticsEvent) error
}

// EventBatcher accumulates notification lifecycle events, keeps per-type
// counters and flushes batches to the sink. A flush fires when the queue
// reaches batchSize or when the interval timer expires, whichever comes
// first. Only one timer is armed at a time. It satisfies the engine's
// Tracker port.
type EventBatcher struct {
	sink    Sink
	store   store.Store
	metrics *observability.Metrics
	logger  *zap.Logger

	now func() time.Time

	mu       sync.Mutex
	queue    []domain.AnalyticsEvent
	counters map[domain.Type]*domain.TypeMetrics
	timer    *time.Timer
}

func NewEventBatcher(sink Sink, st store.Store, metrics *observability.Metrics, logger *zap.Logger) (*EventBatcher, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBatcher{
		sink:     sink,
		store:    st,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		counters: make(map[domain.Type]*domain.TypeMetrics),
	}, nil
}

// Initialize restores the unflushed queue and the counters from the store.
func (b *EventBatcher) Initialize(ctx context.Context) error {
	var queue []domain.AnalyticsEvent
	if _, err := store.LoadJSON(ctx, b.store, store.KeyAnalyticsQueue, &queue); err != nil {
		return fmt.Errorf("failed to restore analytics queue: %w", err)
	}

	var counters map[domain.Type]*domain.TypeMetrics
	if _, err := store.LoadJSON(ctx, b.store, store.KeyMetrics, &counters); err != nil {
		return fmt.Errorf("failed to restore notification metrics: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue = queue
	if counters != nil {
		b.counters = counters
	}
	if len(b.queue) >= batchSize {
		b.kickFlushLocked(ctx)
	} else if len(b.queue) > 0 {
		b.armTimerLocked()
	}
	return nil
}

// Track records one lifecycle event. It never fails; persistence and flush
// errors are logged.
func (b *EventBatcher) Track(ctx context.Context, record domain.NotificationRecord, event domain.LifecycleEvent, metadata map[string]string) {
	ev := domain.AnalyticsEvent{
		ID:             uuid.NewString(),
		NotificationID: record.ID,
		Type:           record.Type,
		Event:          event,
		Timestamp:      b.now().UTC(),
		Metadata:       metadata,
	}

	b.metrics.IncAnalyticsEvent(event.String())

	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue = append(b.queue, ev)

	m, ok := b.counters[record.Type]
	if !ok {
		m = &domain.TypeMetrics{}
		b.counters[record.Type] = m
	}
	m.Apply(event)

	b.persistQueueLocked(ctx)
	b.persistCountersLocked(ctx)

	if len(b.queue) >= batchSize {
		b.kickFlushLocked(ctx)
		return
	}
	b.armTimerLocked()
}

// Flush submits up to batchSize queued events to the sink. The batch is
// removed from the queue before submission; a sink failure drops it.
func (b *EventBatcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return nil
	}

	n := len(b.queue)
	if n > batchSize {
		n = batchSize
	}
	batch := make([]domain.AnalyticsEvent, n)
	copy(batch, b.queue[:n])
	b.queue = append([]domain.AnalyticsEvent(nil), b.queue[n:]...)
	b.persistQueueLocked(ctx)
	if len(b.queue) > 0 {
		b.armTimerLocked()
	}
	b.mu.Unlock()

	if err := b.sink.PostAnalyticsBatch(ctx, batch); err != nil {
		b.metrics.IncAnalyticsFlush("dropped")
		b.logger.Warn("analytics batch dropped",
			zap.Int("events", len(batch)),
			zap.Error(err))
		return fmt.Errorf("failed to submit analytics batch: %w", err)
	}

	b.metrics.IncAnalyticsFlush("ok")
	b.logger.Debug("analytics batch flushed", zap.Int("events", len(batch)))
	return nil
}

// Metrics returns a copy of the per-type counters.
func (b *EventBatcher) Metrics() map[domain.Type]domain.TypeMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[domain.Type]domain.TypeMetrics, len(b.counters))
	for t, m := range b.counters {
		out[t] = *m
	}
	return out
}

// QueueDepth reports the number of unflushed events.
func (b *EventBatcher) QueueDepth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// EngagementRate is the percentage of delivered notifications that were
// opened, for one type or across all types when typ is empty. Zero delivered
// yields zero.
func (b *EventBatcher) EngagementRate(typ domain.Type) float64 {
	agg := b.aggregate(typ)
	if agg.Delivered == 0 {
		return 0
	}
	return float64(agg.Opened) / float64(agg.Delivered) * 100
}

// ActionRate is the percentage of opened notifications whose action was
// taken, for one type or across all types when typ is empty. Zero opened
// yields zero.
func (b *EventBatcher) ActionRate(typ domain.Type) float64 {
	agg := b.aggregate(typ)
	if agg.Opened == 0 {
		return 0
	}
	return float64(agg.ActionTaken) / float64(agg.Opened) * 100
}

func (b *EventBatcher) aggregate(typ domain.Type) domain.TypeMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	var agg domain.TypeMetrics
	if typ != "" {
		if m, ok := b.counters[typ]; ok {
			agg = *m
		}
		return agg
	}
	for _, m := range b.counters {
		agg.Add(*m)
	}
	return agg
}

func (b *EventBatcher) armTimerLocked() {
	if b.timer != nil {
		return
	}
	b.timer = time.AfterFunc(flushInterval, func() {
		b.mu.Lock()
		b.timer = nil
		b.mu.Unlock()
		if err := b.Flush(context.Background()); err != nil {
			b.logger.Warn("timed analytics flush failed", zap.Error(err))
		}
	})
}

// kickFlushLocked releases the lock around the flush since Flush relocks.
func (b *EventBatcher) kickFlushLocked(ctx context.Context) {
	b.mu.Unlock()
	defer b.mu.Lock()
	if err := b.Flush(ctx); err != nil {
		b.logger.Warn("threshold analytics flush failed", zap.Error(err))
	}
}

func (b *EventBatcher) persistQueueLocked(ctx context.Context) {
	if err := store.SaveJSON(ctx, b.store, store.KeyAnalyticsQueue, b.queue); err != nil {
		b.logger.Warn("failed to persist analytics queue", zap.Error(err))
	}
}

func (b *EventBatcher) persistCountersLocked(ctx context.Context) {
	if err := store.SaveJSON(ctx, b.store, store.KeyMetrics, b.counters); err != nil {
		b.logger.Warn("failed to persist notification metrics", zap.Error(err))
	}
}
