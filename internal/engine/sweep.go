package engine

import (
	"context"
	"time"

	"github.com/tablemate/notifyd/internal/domain"
	"github.com/tablemate/notifyd/internal/platform"
	"go.uber.org/zap"
)

const defaultSweepInterval = 30 * time.Second

// StartRetrySweep re-attempts pending deliveries on a fixed interval and
// immediately after an offline→online transition, until ctx is cancelled.
func (e *Engine) StartRetrySweep(ctx context.Context, interval time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Sweep(ctx)
		case <-e.sweepKick:
			e.Sweep(ctx)
		}
	}
}

// Sweep runs one retry pass over the pending queue. Skipped entirely while
// offline. Exported so callers and tests can drain synchronously.
func (e *Engine) Sweep(ctx context.Context) {
	if !e.isOnline() {
		return
	}

	e.mu.Lock()
	pending := append([]domain.QueueEntry(nil), e.queue...)
	e.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	now := e.now()
	remaining := make([]domain.QueueEntry, 0, len(pending))
	promoted := make([]domain.QueueEntry, 0)

	for i := range pending {
		entry := pending[i]

		if entry.IsScheduled() {
			if !entry.DueAt(now) {
				remaining = append(remaining, entry)
				continue
			}
			// The platform presented this one on its own timer; the entry
			// only needed to outlive cancellation.
			e.tracker.Track(ctx, entry.Notification, domain.EventDelivered, map[string]string{"source": "scheduled"})
			continue
		}

		presented, err := e.deliver(ctx, &entry.Notification, "", false)
		if err == nil {
			if presented {
				e.tracker.Track(ctx, entry.Notification, domain.EventDelivered, nil)
			}
			continue
		}

		if !platform.IsTransient(err) {
			// A permanent rejection will not heal on retry; promote it
			// without spending the retry budget.
			entry.FailureReason = err.Error()
			promoted = append(promoted, entry)
			e.tracker.Track(ctx, entry.Notification, domain.EventFailed, map[string]string{"reason": "permanent_error"})
			e.metrics.IncDeliveryFailed("push", "permanent_error")
			e.logger.Warn("permanent delivery error",
				zap.String("notificationId", entry.Notification.ID),
				zap.String("reason", entry.FailureReason),
			)
			continue
		}

		entry.RetryCount++
		if entry.RetryCount < domain.MaxRetryCount {
			e.metrics.IncRetryScheduled("push")
			e.logger.Debug("sweep retry failed, keeping entry",
				zap.String("notificationId", entry.Notification.ID),
				zap.Int("retryCount", entry.RetryCount),
				zap.Error(err),
			)
			remaining = append(remaining, entry)
			continue
		}

		entry.FailureReason = err.Error()
		promoted = append(promoted, entry)
		e.tracker.Track(ctx, entry.Notification, domain.EventFailed, map[string]string{"reason": "max_retries_exceeded"})
		e.metrics.IncDeliveryFailed("push", "max_retries_exceeded")
		e.logger.Warn("retry budget exhausted",
			zap.String("notificationId", entry.Notification.ID),
			zap.String("reason", entry.FailureReason),
		)
	}

	e.mu.Lock()
	// Entries enqueued while the sweep ran sit past the snapshot point and
	// are carried over untouched. A concurrent cancel may shrink the queue;
	// cancellation is best-effort either way.
	var tail []domain.QueueEntry
	if len(e.queue) > len(pending) {
		tail = e.queue[len(pending):]
	}
	e.queue = append(remaining, tail...)
	e.failed = append(e.failed, promoted...)
	queueSnapshot := append([]domain.QueueEntry(nil), e.queue...)
	failedSnapshot := append([]domain.QueueEntry(nil), e.failed...)
	e.mu.Unlock()

	e.persistQueue(ctx, queueSnapshot)
	if len(promoted) > 0 {
		e.persistFailed(ctx, failedSnapshot)
	}
	e.updateDepthMetrics()
}
