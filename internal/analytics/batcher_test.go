package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tablemate/notifyd/internal/domain"
	"github.com/tablemate/notifyd/internal/store"
)

type fakeSink struct {
	postFn  func(ctx context.Context, events []domain.AnalyticsEvent) error
	batches [][]domain.AnalyticsEvent
}

func (f *fakeSink) PostAnalyticsBatch(ctx context.Context, events []domain.AnalyticsEvent) error {
	f.batches = append(f.batches, events)
	if f.postFn != nil {
		return f.postFn(ctx, events)
	}
	return nil
}

func newTestBatcher(t *testing.T, sink Sink) (*EventBatcher, store.Store) {
	t.Helper()

	st := store.NewMemory()
	b, err := NewEventBatcher(sink, st, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEventBatcher() error = %v", err)
	}
	b.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return b, st
}

func record(id string, typ domain.Type) domain.NotificationRecord {
	return domain.NotificationRecord{ID: id, Type: typ}
}

func TestEventBatcher_TrackAccumulates(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	b, _ := newTestBatcher(t, sink)
	ctx := context.Background()

	b.Track(ctx, record("msg-1", domain.TypeChatMessage), domain.EventSent, nil)
	b.Track(ctx, record("msg-1", domain.TypeChatMessage), domain.EventDelivered, nil)
	b.Track(ctx, record("msg-2", domain.TypeMention), domain.EventSent, map[string]string{"channelId": "ch-1"})

	if got := b.QueueDepth(); got != 3 {
		t.Fatalf("QueueDepth() = %d, want 3", got)
	}
	if len(sink.batches) != 0 {
		t.Fatalf("expected no flush below threshold, got %d batches", len(sink.batches))
	}

	metrics := b.Metrics()
	if got := metrics[domain.TypeChatMessage].Sent; got != 1 {
		t.Fatalf("chat sent = %d, want 1", got)
	}
	if got := metrics[domain.TypeChatMessage].Delivered; got != 1 {
		t.Fatalf("chat delivered = %d, want 1", got)
	}
	if got := metrics[domain.TypeMention].Sent; got != 1 {
		t.Fatalf("mention sent = %d, want 1", got)
	}
}

func TestEventBatcher_FlushAtThreshold(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	b, st := newTestBatcher(t, sink)
	ctx := context.Background()

	for i := 0; i < batchSize; i++ {
		b.Track(ctx, record("msg-1", domain.TypeChatMessage), domain.EventDelivered, nil)
	}

	if len(sink.batches) != 1 {
		t.Fatalf("expected exactly one flush, got %d", len(sink.batches))
	}
	if got := len(sink.batches[0]); got != batchSize {
		t.Fatalf("batch size = %d, want %d", got, batchSize)
	}
	if got := b.QueueDepth(); got != 0 {
		t.Fatalf("QueueDepth() after flush = %d, want 0", got)
	}

	var persisted []domain.AnalyticsEvent
	found, err := store.LoadJSON(ctx, st, store.KeyAnalyticsQueue, &persisted)
	if err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}
	if found && len(persisted) != 0 {
		t.Fatalf("persisted queue has %d events after flush, want 0", len(persisted))
	}
}

func TestEventBatcher_FlushFailureDropsBatch(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{
		postFn: func(ctx context.Context, events []domain.AnalyticsEvent) error {
			return errors.New("backend unavailable")
		},
	}
	b, _ := newTestBatcher(t, sink)
	ctx := context.Background()

	b.Track(ctx, record("msg-1", domain.TypeChatMessage), domain.EventSent, nil)
	b.Track(ctx, record("msg-2", domain.TypeChatMessage), domain.EventSent, nil)

	if err := b.Flush(ctx); err == nil {
		t.Fatal("Flush() error = nil, want failure")
	}
	if got := b.QueueDepth(); got != 0 {
		t.Fatalf("QueueDepth() after failed flush = %d, want 0 (batch dropped)", got)
	}

	// Counters are unaffected by flush outcome.
	if got := b.Metrics()[domain.TypeChatMessage].Sent; got != 2 {
		t.Fatalf("sent = %d, want 2", got)
	}
}

func TestEventBatcher_FlushEmptyQueue(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	b, _ := newTestBatcher(t, sink)

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() on empty queue error = %v", err)
	}
	if len(sink.batches) != 0 {
		t.Fatalf("expected no sink call for empty queue, got %d", len(sink.batches))
	}
}

func TestEventBatcher_FlushTakesAtMostOneBatch(t *testing.T) {
	t.Parallel()

	failFirst := true
	sink := &fakeSink{
		postFn: func(ctx context.Context, events []domain.AnalyticsEvent) error {
			if failFirst {
				failFirst = false
				return errors.New("down")
			}
			return nil
		},
	}
	b, _ := newTestBatcher(t, sink)
	ctx := context.Background()

	// The threshold flush fails and drops the first batch; the overflow stays.
	for i := 0; i < batchSize+5; i++ {
		b.Track(ctx, record("msg-1", domain.TypeChatMessage), domain.EventDelivered, nil)
	}

	if got := b.QueueDepth(); got != 5 {
		t.Fatalf("QueueDepth() = %d, want 5", got)
	}

	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := len(sink.batches); got != 2 {
		t.Fatalf("sink calls = %d, want 2", got)
	}
	if got := len(sink.batches[1]); got != 5 {
		t.Fatalf("second batch size = %d, want 5", got)
	}
}

func TestEventBatcher_Rates(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	b, _ := newTestBatcher(t, sink)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		b.Track(ctx, record("msg-1", domain.TypeChatMessage), domain.EventDelivered, nil)
	}
	b.Track(ctx, record("msg-1", domain.TypeChatMessage), domain.EventOpened, nil)
	b.Track(ctx, record("msg-1", domain.TypeChatMessage), domain.EventOpened, nil)
	b.Track(ctx, record("msg-1", domain.TypeChatMessage), domain.EventActionTaken, nil)
	b.Track(ctx, record("inv-1", domain.TypeChannelInvite), domain.EventDelivered, nil)

	if got, want := b.EngagementRate(domain.TypeChatMessage), 50.0; got != want {
		t.Fatalf("EngagementRate(chat) = %v, want %v", got, want)
	}
	if got, want := b.ActionRate(domain.TypeChatMessage), 50.0; got != want {
		t.Fatalf("ActionRate(chat) = %v, want %v", got, want)
	}
	if got, want := b.EngagementRate(""), 40.0; got != want {
		t.Fatalf("EngagementRate(all) = %v, want %v", got, want)
	}

	// Zero denominators yield zero, not NaN.
	if got := b.EngagementRate(domain.TypeReaction); got != 0 {
		t.Fatalf("EngagementRate(reaction) = %v, want 0", got)
	}
	if got := b.ActionRate(domain.TypeChannelInvite); got != 0 {
		t.Fatalf("ActionRate(invite) = %v, want 0", got)
	}
}

func TestEventBatcher_InitializeRestoresState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemory()

	queued := []domain.AnalyticsEvent{
		{ID: "ev-1", NotificationID: "msg-1", Type: domain.TypeChatMessage, Event: domain.EventSent},
		{ID: "ev-2", NotificationID: "msg-1", Type: domain.TypeChatMessage, Event: domain.EventDelivered},
	}
	if err := store.SaveJSON(ctx, st, store.KeyAnalyticsQueue, queued); err != nil {
		t.Fatalf("SaveJSON(queue) error = %v", err)
	}
	counters := map[domain.Type]*domain.TypeMetrics{
		domain.TypeChatMessage: {Sent: 7, Delivered: 5, Opened: 2},
	}
	if err := store.SaveJSON(ctx, st, store.KeyMetrics, counters); err != nil {
		t.Fatalf("SaveJSON(metrics) error = %v", err)
	}

	b, err := NewEventBatcher(&fakeSink{}, st, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEventBatcher() error = %v", err)
	}
	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if got := b.QueueDepth(); got != 2 {
		t.Fatalf("QueueDepth() = %d, want 2", got)
	}
	if got := b.Metrics()[domain.TypeChatMessage].Sent; got != 7 {
		t.Fatalf("restored sent = %d, want 7", got)
	}
	if got, want := b.EngagementRate(domain.TypeChatMessage), 40.0; got != want {
		t.Fatalf("EngagementRate = %v, want %v", got, want)
	}
}
