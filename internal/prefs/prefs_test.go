package prefs

import (
	"testing"
	"time"

	"github.com/tablemate/notifyd/internal/domain"
)

func gateAt(t *testing.T, prefs Preferences, clock time.Time) *Gate {
	t.Helper()
	gate := NewGate(StaticSource{Prefs: prefs})
	gate.now = func() time.Time { return clock }
	return gate
}

func pushRecord(priority domain.Priority) domain.NotificationRecord {
	return domain.NotificationRecord{
		ID:       "n1",
		Type:     domain.TypeChatMessage,
		Priority: priority,
		Channels: []domain.Channel{domain.ChannelPush, domain.ChannelInApp},
		Title:    "t",
		Body:     "b",
	}
}

func TestParseQuietHours(t *testing.T) {
	t.Parallel()

	window, err := ParseQuietHours("22:00-07:30")
	if err != nil {
		t.Fatalf("ParseQuietHours() error = %v", err)
	}
	if !window.Enabled {
		t.Fatal("window should be enabled")
	}
	if window.Start != TimeOfDay(22*60) || window.End != TimeOfDay(7*60+30) {
		t.Fatalf("window = %s-%s, want 22:00-07:30", window.Start, window.End)
	}

	empty, err := ParseQuietHours("")
	if err != nil {
		t.Fatalf("ParseQuietHours(empty) error = %v", err)
	}
	if empty.Enabled {
		t.Fatal("empty window should be disabled")
	}

	for _, bad := range []string{"22:00", "25:00-07:00", "22:61-07:00", "a-b"} {
		if _, err := ParseQuietHours(bad); err == nil {
			t.Errorf("ParseQuietHours(%q) = nil error, want error", bad)
		}
	}
}

func TestQuietHoursOvernightWrap(t *testing.T) {
	t.Parallel()

	window := QuietHours{Enabled: true, Start: TimeOfDay(22 * 60), End: TimeOfDay(7 * 60)}

	cases := []struct {
		hour int
		want bool
	}{
		{23, true},
		{2, true},
		{6, true},
		{7, false},
		{12, false},
		{21, false},
		{22, true},
	}
	for _, tc := range cases {
		at := time.Date(2024, 5, 1, tc.hour, 0, 0, 0, time.UTC)
		if got := window.Contains(at); got != tc.want {
			t.Errorf("Contains(%02d:00) = %v, want %v", tc.hour, got, tc.want)
		}
	}
}

func TestUrgentBypassesQuietHours(t *testing.T) {
	t.Parallel()

	prefs := Preferences{
		PushEnabled: true,
		QuietHours:  QuietHours{Enabled: true, Start: TimeOfDay(22 * 60), End: TimeOfDay(7 * 60)},
	}
	insideWindow := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	gate := gateAt(t, prefs, insideWindow)

	urgent := pushRecord(domain.PriorityUrgent)
	if !gate.ShouldDeliver(&urgent, domain.ChannelPush) {
		t.Fatal("urgent push should bypass quiet hours")
	}

	normal := pushRecord(domain.PriorityNormal)
	if gate.ShouldDeliver(&normal, domain.ChannelPush) {
		t.Fatal("normal push should be suppressed during quiet hours")
	}
	if !gate.ShouldDeliver(&normal, domain.ChannelInApp) {
		t.Fatal("in-app delivery should not be affected by quiet hours")
	}
}

func TestPushDisabled(t *testing.T) {
	t.Parallel()

	gate := gateAt(t, Preferences{PushEnabled: false}, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	record := pushRecord(domain.PriorityUrgent)
	if gate.ShouldDeliver(&record, domain.ChannelPush) {
		t.Fatal("push should be suppressed when the push toggle is off")
	}
	if !gate.ShouldDeliver(&record, domain.ChannelInApp) {
		t.Fatal("in-app should be independent of the push toggle")
	}
}

func TestCategoryToggle(t *testing.T) {
	t.Parallel()

	prefs := Preferences{
		PushEnabled: true,
		Categories:  map[domain.Type]bool{domain.TypeReaction: false},
	}
	gate := gateAt(t, prefs, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	reaction := pushRecord(domain.PriorityNormal)
	reaction.Type = domain.TypeReaction
	if gate.ShouldDeliver(&reaction, domain.ChannelPush) {
		t.Fatal("disabled category should be suppressed on push")
	}
	if gate.ShouldDeliver(&reaction, domain.ChannelInApp) {
		t.Fatal("disabled category should be suppressed on in-app too")
	}

	chat := pushRecord(domain.PriorityNormal)
	if !gate.ShouldDeliver(&chat, domain.ChannelPush) {
		t.Fatal("types without an explicit toggle default to enabled")
	}
}
