package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tablemate/notifyd/internal/domain"
	"github.com/tablemate/notifyd/internal/observability"
	"github.com/tablemate/notifyd/internal/platform"
	"github.com/tablemate/notifyd/internal/ratelimit"
	"github.com/tablemate/notifyd/internal/store"
	"go.uber.org/zap"
)

// SendOptions tune one Send call. Zero value means immediate, ungrouped
// delivery with platform-default sound.
type SendOptions struct {
	// Schedule defers presentation to a future time via the platform.
	Schedule *time.Time
	// GroupID buckets the record for summary collapsing in addition to the
	// normal delivery path.
	GroupID string
	// Sound overrides the platform default.
	Sound string
	// Critical forces an audible alert where the platform allows it.
	Critical bool
}

// Gate is the per-attempt preference check.
type Gate interface {
	ShouldDeliver(record *domain.NotificationRecord, channel domain.Channel) bool
}

// Tracker records lifecycle events; satisfied by the analytics batcher.
type Tracker interface {
	Track(ctx context.Context, record domain.NotificationRecord, event domain.LifecycleEvent, metadata map[string]string)
}

// Backend is the slice of the transmission client the engine needs: in-app
// delivery and badge sync.
type Backend interface {
	CreateNotification(ctx context.Context, record domain.NotificationRecord) error
	GetUnreadCount(ctx context.Context, userID string) (int, error)
}

// Deps wires the engine's collaborators. Store, Notifier, Gate and Tracker
// are required.
type Deps struct {
	Store        store.Store
	Notifier     platform.Notifier
	Capabilities platform.Capabilities
	Gate         Gate
	Tracker      Tracker
	Backend      Backend
	Limiter      ratelimit.Limiter
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// Engine is the delivery orchestrator. It owns the pending queue, the failed
// list and the group map; nothing else mutates them.
type Engine struct {
	store    store.Store
	notifier platform.Notifier
	caps     platform.Capabilities
	gate     Gate
	tracker  Tracker
	backend  Backend
	limiter  ratelimit.Limiter
	metrics  *observability.Metrics
	logger   *zap.Logger

	now func() time.Time

	mu        sync.Mutex
	online    bool
	queue     []domain.QueueEntry
	failed    []domain.QueueEntry
	groups    map[string]*domain.NotificationGroup
	presented map[string]struct{}

	sweepKick chan struct{}
}

func New(deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if deps.Gate == nil {
		return nil, fmt.Errorf("preference gate is required")
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Engine{
		store:     deps.Store,
		notifier:  deps.Notifier,
		caps:      deps.Capabilities,
		gate:      deps.Gate,
		tracker:   deps.Tracker,
		backend:   deps.Backend,
		limiter:   deps.Limiter,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
		online:    true,
		groups:    make(map[string]*domain.NotificationGroup),
		presented: make(map[string]struct{}),
		sweepKick: make(chan struct{}, 1),
	}, nil
}

// Initialize restores the persisted queue and failed list so a restart does
// not lose pending work.
func (e *Engine) Initialize(ctx context.Context) error {
	var queue, failed []domain.QueueEntry

	if _, err := store.LoadJSON(ctx, e.store, store.KeyNotificationQueue, &queue); err != nil {
		return fmt.Errorf("failed to restore notification queue: %w", err)
	}
	if _, err := store.LoadJSON(ctx, e.store, store.KeyFailedNotifications, &failed); err != nil {
		return fmt.Errorf("failed to restore failed list: %w", err)
	}

	e.mu.Lock()
	e.queue = queue
	e.failed = failed
	e.mu.Unlock()

	e.updateDepthMetrics()

	e.logger.Info("delivery engine initialized",
		zap.Int("pending", len(queue)),
		zap.Int("failed", len(failed)),
	)
	return nil
}

// SetOnline records connectivity state. An offline→online transition kicks
// the retry sweep immediately.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	wasOnline := e.online
	e.online = online
	e.mu.Unlock()

	if online && !wasOnline {
		select {
		case e.sweepKick <- struct{}{}:
		default:
		}
	}
}

func (e *Engine) isOnline() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// Send runs the delivery decision pipeline for one record.
func (e *Engine) Send(ctx context.Context, record domain.NotificationRecord, opts *SendOptions) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = e.now().UTC()
	}
	if opts == nil {
		opts = &SendOptions{}
	}

	// An attempt was made even if everything after this fails.
	e.tracker.Track(ctx, record, domain.EventSent, nil)

	if opts.GroupID != "" {
		e.addToGroup(ctx, record, opts.GroupID)
	}

	if opts.Schedule != nil && opts.Schedule.After(e.now()) {
		return e.schedule(ctx, record, *opts)
	}

	if !e.isOnline() && record.Type.RequiresNetwork() {
		e.enqueue(ctx, domain.QueueEntry{
			ID:           record.ID,
			Notification: record.Clone(),
			EnqueuedAt:   e.now().UTC(),
		})
		e.logger.Debug("queued notification while offline", zap.String("notificationId", record.ID))
		return nil
	}

	presented, err := e.deliver(ctx, &record, opts.Sound, opts.Critical)
	if err != nil {
		e.tracker.Track(ctx, record, domain.EventFailed, map[string]string{"error": err.Error()})
		e.metrics.IncDeliveryFailed("push", "delivery_error")
		e.enqueue(ctx, domain.QueueEntry{
			ID:           record.ID,
			Notification: record.Clone(),
			EnqueuedAt:   e.now().UTC(),
		})
		e.logger.Warn("immediate delivery failed, queued for retry",
			zap.String("notificationId", record.ID),
			zap.Error(err),
		)
		return nil
	}
	if presented {
		e.tracker.Track(ctx, record, domain.EventDelivered, nil)
	}
	return nil
}

func (e *Engine) schedule(ctx context.Context, record domain.NotificationRecord, opts SendOptions) error {
	content := e.caps.BuildContent(&record, opts.Sound, opts.Critical)
	handle, err := e.notifier.ScheduleAt(ctx, record.ID, content, *opts.Schedule)
	if err != nil {
		e.tracker.Track(ctx, record, domain.EventFailed, map[string]string{"error": err.Error()})
		e.enqueue(ctx, domain.QueueEntry{
			ID:           record.ID,
			Notification: record.Clone(),
			EnqueuedAt:   e.now().UTC(),
		})
		return nil
	}

	scheduledFor := opts.Schedule.UTC()
	e.enqueue(ctx, domain.QueueEntry{
		ID:           handle,
		Notification: record.Clone(),
		ScheduledFor: &scheduledFor,
		EnqueuedAt:   e.now().UTC(),
	})
	e.logger.Debug("scheduled notification",
		zap.String("notificationId", record.ID),
		zap.String("handle", handle),
		zap.Time("deliverAt", scheduledFor),
	)
	return nil
}

// deliver is the immediate-presentation step shared by Send, the sweep and
// group summaries. It reports whether any channel actually presented. A
// duplicate id is recognized and never re-presented.
func (e *Engine) deliver(ctx context.Context, record *domain.NotificationRecord, sound string, critical bool) (bool, error) {
	e.mu.Lock()
	_, duplicate := e.presented[record.ID]
	e.mu.Unlock()
	if duplicate {
		e.logger.Debug("skipping duplicate delivery", zap.String("notificationId", record.ID))
		return false, nil
	}

	presented := false
	start := e.now()

	if record.WantsChannel(domain.ChannelPush) && e.gate.ShouldDeliver(record, domain.ChannelPush) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx, "push"); err != nil {
				return presented, fmt.Errorf("push throttle wait failed: %w", err)
			}
		}

		content := e.caps.BuildContent(record, sound, critical)
		if err := e.notifier.PresentNow(ctx, record.ID, content); err != nil {
			return presented, fmt.Errorf("push presentation failed: %w", err)
		}
		presented = true
		e.metrics.IncDelivered("push")
		e.metrics.ObserveDeliveryDuration("push", e.now().Sub(start))
	}

	if record.WantsChannel(domain.ChannelInApp) && e.gate.ShouldDeliver(record, domain.ChannelInApp) {
		if e.backend == nil {
			return presented, fmt.Errorf("in-app delivery requested but no backend configured")
		}
		if err := e.backend.CreateNotification(ctx, record.Clone()); err != nil {
			return presented, fmt.Errorf("in-app delivery failed: %w", err)
		}
		presented = true
		e.metrics.IncDelivered("in_app")

		if record.UserID != "" {
			e.syncBadgeBestEffort(ctx, record.UserID)
		}
	}

	if presented {
		e.mu.Lock()
		e.presented[record.ID] = struct{}{}
		e.mu.Unlock()
	}
	return presented, nil
}

func (e *Engine) syncBadgeBestEffort(ctx context.Context, userID string) {
	count, err := e.backend.GetUnreadCount(ctx, userID)
	if err != nil {
		e.logger.Debug("unread count fetch failed", zap.Error(err))
		return
	}
	if err := e.notifier.SetBadgeCount(ctx, count); err != nil {
		e.logger.Debug("badge update failed", zap.Error(err))
	}
}

// enqueue appends an entry and write-through persists the queue snapshot.
func (e *Engine) enqueue(ctx context.Context, entry domain.QueueEntry) {
	e.mu.Lock()
	e.queue = append(e.queue, entry)
	snapshot := append([]domain.QueueEntry(nil), e.queue...)
	e.mu.Unlock()

	e.persistQueue(ctx, snapshot)
	e.updateDepthMetrics()
}

func (e *Engine) persistQueue(ctx context.Context, snapshot []domain.QueueEntry) {
	if err := store.SaveJSON(ctx, e.store, store.KeyNotificationQueue, snapshot); err != nil {
		// In-memory state stays authoritative; a crash right now may lose
		// this mutation.
		e.logger.Error("failed to persist notification queue", zap.Error(err))
	}
}

func (e *Engine) persistFailed(ctx context.Context, snapshot []domain.QueueEntry) {
	if err := store.SaveJSON(ctx, e.store, store.KeyFailedNotifications, snapshot); err != nil {
		e.logger.Error("failed to persist failed list", zap.Error(err))
	}
}

func (e *Engine) updateDepthMetrics() {
	e.mu.Lock()
	pending, failed := len(e.queue), len(e.failed)
	e.mu.Unlock()
	e.metrics.SetQueueDepth(pending, failed)
}

// GetScheduledNotifications returns copies of entries waiting on an explicit
// future time.
func (e *Engine) GetScheduledNotifications() []domain.QueueEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.QueueEntry, 0)
	for i := range e.queue {
		if e.queue[i].IsScheduled() {
			entry := e.queue[i]
			entry.Notification = e.queue[i].Notification.Clone()
			out = append(out, entry)
		}
	}
	return out
}

// GetFailedNotifications returns copies of terminally failed entries.
func (e *Engine) GetFailedNotifications() []domain.QueueEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.QueueEntry, 0, len(e.failed))
	for i := range e.failed {
		entry := e.failed[i]
		entry.Notification = e.failed[i].Notification.Clone()
		out = append(out, entry)
	}
	return out
}

// RetryFailedNotifications re-enqueues every failed entry with a fresh retry
// budget.
func (e *Engine) RetryFailedNotifications(ctx context.Context) int {
	e.mu.Lock()
	moved := len(e.failed)
	for i := range e.failed {
		entry := e.failed[i]
		entry.RetryCount = 0
		entry.FailureReason = ""
		e.queue = append(e.queue, entry)
	}
	e.failed = nil
	queueSnapshot := append([]domain.QueueEntry(nil), e.queue...)
	e.mu.Unlock()

	e.persistQueue(ctx, queueSnapshot)
	e.persistFailed(ctx, []domain.QueueEntry{})
	e.updateDepthMetrics()

	if moved > 0 {
		e.logger.Info("re-enqueued failed notifications", zap.Int("count", moved))
	}
	return moved
}

// ClearFailedNotifications drops the failed list.
func (e *Engine) ClearFailedNotifications(ctx context.Context) {
	e.mu.Lock()
	e.failed = nil
	e.mu.Unlock()

	e.persistFailed(ctx, []domain.QueueEntry{})
	e.updateDepthMetrics()
}

// CancelScheduledNotification removes the platform-scheduled presentation
// and the queue entry by id. Best-effort: a concurrent sweep or platform
// timer may still win.
func (e *Engine) CancelScheduledNotification(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	if err := e.notifier.Cancel(ctx, id); err != nil {
		e.logger.Warn("platform cancel failed", zap.String("id", id), zap.Error(err))
	}

	e.mu.Lock()
	kept := e.queue[:0]
	removed := false
	for i := range e.queue {
		if e.queue[i].ID == id || e.queue[i].Notification.ID == id {
			removed = true
			continue
		}
		kept = append(kept, e.queue[i])
	}
	e.queue = kept
	snapshot := append([]domain.QueueEntry(nil), e.queue...)
	e.mu.Unlock()

	e.persistQueue(ctx, snapshot)
	e.updateDepthMetrics()

	if !removed {
		return domain.ErrNotFound
	}
	return nil
}

// CancelAllScheduledNotifications clears the platform schedule and the whole
// pending queue.
func (e *Engine) CancelAllScheduledNotifications(ctx context.Context) error {
	if err := e.notifier.CancelAll(ctx); err != nil {
		e.logger.Warn("platform cancel-all failed", zap.Error(err))
	}

	e.mu.Lock()
	e.queue = nil
	e.mu.Unlock()

	e.persistQueue(ctx, []domain.QueueEntry{})
	e.updateDepthMetrics()
	return nil
}
