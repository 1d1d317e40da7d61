package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tablemate/notifyd/internal/domain"
)

// Fixed snapshot keys. The engine and batcher persist whole serialized
// collections under these names.
const (
	KeyNotificationQueue   = "notification_queue"
	KeyFailedNotifications = "failed_notifications"
	KeyAnalyticsQueue      = "notification_analytics_queue"
	KeyMetrics             = "notification_metrics"
)

// Store is the durable key-value port. Get returns domain.ErrNotFound for
// missing keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
	MultiRemove(ctx context.Context, keys []string) error
}

// SaveJSON serializes v and writes it under key.
func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %q: %w", key, err)
	}
	return s.Set(ctx, key, string(payload))
}

// LoadJSON reads key into out. A missing key is not an error; the second
// return reports whether a snapshot existed.
func LoadJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	value, err := s.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal snapshot %q: %w", key, err)
	}
	return true, nil
}
