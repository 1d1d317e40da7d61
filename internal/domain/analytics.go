package domain

import (
	"fmt"
	"strings"
	"time"
)

// LifecycleEvent names one transition in a notification's lifecycle.
type LifecycleEvent string

const (
	EventSent        LifecycleEvent = "sent"
	EventDelivered   LifecycleEvent = "delivered"
	EventOpened      LifecycleEvent = "opened"
	EventDismissed   LifecycleEvent = "dismissed"
	EventFailed      LifecycleEvent = "failed"
	EventActionTaken LifecycleEvent = "action_taken"
)

func (e LifecycleEvent) String() string { return string(e) }

func (e LifecycleEvent) IsValid() bool {
	switch e {
	case EventSent, EventDelivered, EventOpened, EventDismissed, EventFailed, EventActionTaken:
		return true
	}
	return false
}

func ParseLifecycleEventFromString(s string) (LifecycleEvent, error) {
	ev := LifecycleEvent(strings.ToLower(strings.TrimSpace(s)))
	if !ev.IsValid() {
		return "", fmt.Errorf("%w: invalid lifecycle event %q", ErrValidation, s)
	}
	return ev, nil
}

// AnalyticsEvent is one recorded lifecycle transition, append-only until a
// batch boundary.
type AnalyticsEvent struct {
	ID             string            `json:"id"`
	NotificationID string            `json:"notificationId"`
	Type           Type              `json:"type"`
	Event          LifecycleEvent    `json:"event"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// TypeMetrics holds the six monotone counters kept per notification type.
type TypeMetrics struct {
	Sent        int64 `json:"sent"`
	Delivered   int64 `json:"delivered"`
	Opened      int64 `json:"opened"`
	Dismissed   int64 `json:"dismissed"`
	Failed      int64 `json:"failed"`
	ActionTaken int64 `json:"actionTaken"`
}

// Apply increments the counter matching ev.
func (m *TypeMetrics) Apply(ev LifecycleEvent) {
	switch ev {
	case EventSent:
		m.Sent++
	case EventDelivered:
		m.Delivered++
	case EventOpened:
		m.Opened++
	case EventDismissed:
		m.Dismissed++
	case EventFailed:
		m.Failed++
	case EventActionTaken:
		m.ActionTaken++
	}
}

// Add accumulates other into m, used for cross-type aggregation.
func (m *TypeMetrics) Add(other TypeMetrics) {
	m.Sent += other.Sent
	m.Delivered += other.Delivered
	m.Opened += other.Opened
	m.Dismissed += other.Dismissed
	m.Failed += other.Failed
	m.ActionTaken += other.ActionTaken
}
