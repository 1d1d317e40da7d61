package prefs

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tablemate/notifyd/internal/domain"
)

// TimeOfDay is minutes past local midnight.
type TimeOfDay int

func (t TimeOfDay) IsValid() bool { return t >= 0 && t < 24*60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: invalid time of day %q", domain.ErrValidation, s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid time of day %q", domain.ErrValidation, s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid time of day %q", domain.ErrValidation, s)
	}

	tod := TimeOfDay(hour*60 + minute)
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: invalid time of day %q", domain.ErrValidation, s)
	}
	return tod, nil
}

// QuietHours is a local time-of-day window during which non-urgent push is
// suppressed. Start > End wraps past midnight.
type QuietHours struct {
	Enabled bool      `json:"enabled"`
	Start   TimeOfDay `json:"start"`
	End     TimeOfDay `json:"end"`
}

// Contains reports whether t's local time of day falls inside the window.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}

	now := TimeOfDay(t.Hour()*60 + t.Minute())
	if q.Start == q.End {
		return false
	}
	if q.Start < q.End {
		return now >= q.Start && now < q.End
	}
	// Overnight span, e.g. 22:00-07:00.
	return now >= q.Start || now < q.End
}

// ParseQuietHours parses a "HH:MM-HH:MM" window.
func ParseQuietHours(s string) (QuietHours, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return QuietHours{}, nil
	}

	parts := strings.SplitN(trimmed, "-", 2)
	if len(parts) != 2 {
		return QuietHours{}, fmt.Errorf("%w: invalid quiet hours %q", domain.ErrValidation, s)
	}
	start, err := ParseTimeOfDay(parts[0])
	if err != nil {
		return QuietHours{}, err
	}
	end, err := ParseTimeOfDay(parts[1])
	if err != nil {
		return QuietHours{}, err
	}

	return QuietHours{Enabled: true, Start: start, End: end}, nil
}

// Preferences is the user-level delivery policy consulted before every
// attempt.
type Preferences struct {
	PushEnabled bool                 `json:"pushEnabled"`
	Categories  map[domain.Type]bool `json:"categories,omitempty"`
	QuietHours  QuietHours           `json:"quietHours"`
}

// CategoryEnabled reports whether the per-type toggle allows typ. Types
// without an explicit toggle default to enabled.
func (p Preferences) CategoryEnabled(typ domain.Type) bool {
	if p.Categories == nil {
		return true
	}
	enabled, ok := p.Categories[typ]
	if !ok {
		return true
	}
	return enabled
}

// Source yields the current preferences. The gate reads it on every attempt
// rather than caching, since preferences may change between queue time and
// delivery time.
type Source interface {
	Current() Preferences
}

// StaticSource serves one fixed Preferences value, used for daemon config and
// tests.
type StaticSource struct {
	Prefs Preferences
}

func (s StaticSource) Current() Preferences { return s.Prefs }

// Gate decides per attempt whether a record may be delivered on a channel.
type Gate struct {
	source Source
	now    func() time.Time
}

func NewGate(source Source) *Gate {
	return &Gate{source: source, now: time.Now}
}

// ShouldDeliver applies the preference policy for one delivery attempt.
// Urgent records bypass quiet hours; the in-app channel ignores both the push
// toggle and quiet hours.
func (g *Gate) ShouldDeliver(record *domain.NotificationRecord, channel domain.Channel) bool {
	if g == nil || g.source == nil || record == nil {
		return false
	}

	current := g.source.Current()
	if !current.CategoryEnabled(record.Type) {
		return false
	}

	if channel != domain.ChannelPush {
		return true
	}
	if !current.PushEnabled {
		return false
	}
	if record.Priority == domain.PriorityUrgent {
		return true
	}
	return !current.QuietHours.Contains(g.now())
}
