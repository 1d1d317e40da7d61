package domain

// GroupThreshold is the member count at which a group collapses into one
// summary notification and resets.
const GroupThreshold = 3

// NotificationGroup buckets a burst of same-type notifications under a
// caller-chosen key. Insertion order is arrival order.
type NotificationGroup struct {
	ID            string               `json:"id"`
	Type          Type                 `json:"type"`
	Notifications []NotificationRecord `json:"notifications"`
	Summary       string               `json:"summary"`
	Count         int                  `json:"count"`
}
