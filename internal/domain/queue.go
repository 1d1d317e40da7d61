package domain

import "time"

// MaxRetryCount bounds sweep retries for a pending entry. A delivery is
// attempted once immediately and then up to MaxRetryCount times by the sweep
// before it moves to the failed list.
const MaxRetryCount = 3

// QueueEntry is one pending or failed delivery owned by the delivery engine.
type QueueEntry struct {
	ID            string             `json:"id"`
	Notification  NotificationRecord `json:"notification"`
	RetryCount    int                `json:"retryCount"`
	ScheduledFor  *time.Time         `json:"scheduledFor,omitempty"`
	FailureReason string             `json:"failureReason,omitempty"`
	EnqueuedAt    time.Time          `json:"enqueuedAt"`
}

// IsScheduled reports whether the entry waits on an explicit future time
// rather than on the retry sweep.
func (e *QueueEntry) IsScheduled() bool {
	return e.ScheduledFor != nil
}

// DueAt reports whether a scheduled entry has reached its presentation time.
// Non-scheduled entries are always due.
func (e *QueueEntry) DueAt(now time.Time) bool {
	if e.ScheduledFor == nil {
		return true
	}
	return !e.ScheduledFor.After(now)
}
