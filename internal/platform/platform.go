package platform

import (
	"context"
	"time"
)

// PermissionStatus mirrors the device notification permission state.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "GRANTED"
	PermissionDenied       PermissionStatus = "DENIED"
	PermissionUndetermined PermissionStatus = "UNDETERMINED"
)

// Content is the payload handed to the delivery primitive.
type Content struct {
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	Sound      string            `json:"sound,omitempty"`
	Priority   string            `json:"priority"`
	CategoryID string            `json:"categoryId,omitempty"`
	ImageURL   string            `json:"imageUrl,omitempty"`
	Extras     map[string]string `json:"platformExtras,omitempty"`
}

// Notifier is the platform delivery primitive. PresentNow shows an alert
// immediately; ScheduleAt defers presentation and returns a handle usable for
// cancellation.
type Notifier interface {
	PresentNow(ctx context.Context, id string, content Content) error
	ScheduleAt(ctx context.Context, id string, content Content, at time.Time) (string, error)
	Cancel(ctx context.Context, handle string) error
	CancelAll(ctx context.Context) error
	SetBadgeCount(ctx context.Context, n int) error
	GetPermissionStatus(ctx context.Context) (PermissionStatus, error)
	RequestPermission(ctx context.Context) (PermissionStatus, error)
}
