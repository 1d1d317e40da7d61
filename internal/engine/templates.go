package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tablemate/notifyd/internal/domain"
)

// Named template helpers: thin record constructors over Send.

// SendDinnerReminder schedules a reminder for a dinner event. The final
// reminder is urgent and bypasses quiet hours.
func (e *Engine) SendDinnerReminder(ctx context.Context, userID, eventID, eventName string, at time.Time, final bool) error {
	record := domain.NotificationRecord{
		ID:       "dinner-" + eventID,
		Type:     domain.TypeDinnerReminder,
		Priority: domain.PriorityHigh,
		Channels: []domain.Channel{domain.ChannelPush},
		Title:    "🍽️ Dinner Reminder",
		Body:     fmt.Sprintf("%s is coming up soon", eventName),
		UserID:   userID,
		Data:     map[string]string{"eventId": eventID},
	}

	opts := &SendOptions{Schedule: &at}
	if final {
		record.ID = "dinner-" + eventID + "-final"
		record.Type = domain.TypeDinnerReminderFinal
		record.Priority = domain.PriorityUrgent
		record.Title = "🍽️ Dinner Starting Now"
		record.Body = fmt.Sprintf("%s is about to start", eventName)
		opts.Critical = true
	}

	return e.Send(ctx, record, opts)
}

// SendAchievementUnlocked announces a newly earned achievement.
func (e *Engine) SendAchievementUnlocked(ctx context.Context, userID, achievementID, name string) error {
	record := domain.NotificationRecord{
		ID:       "achievement-" + achievementID,
		Type:     domain.TypeAchievementUnlocked,
		Priority: domain.PriorityNormal,
		Channels: []domain.Channel{domain.ChannelPush, domain.ChannelInApp},
		Title:    "🏆 Achievement Unlocked",
		Body:     name,
		UserID:   userID,
		Data:     map[string]string{"achievementId": achievementID},
	}
	return e.Send(ctx, record, nil)
}

// SendGroupMatched announces a new dinner group match.
func (e *Engine) SendGroupMatched(ctx context.Context, userID, matchID string, memberCount int) error {
	record := domain.NotificationRecord{
		ID:       "match-" + matchID,
		Type:     domain.TypeGroupMatched,
		Priority: domain.PriorityHigh,
		Channels: []domain.Channel{domain.ChannelPush, domain.ChannelInApp},
		Title:    "✨ You're Matched",
		Body:     fmt.Sprintf("You've been matched with %d dinner companions", memberCount-1),
		UserID:   userID,
		Data:     map[string]string{"matchId": matchID},
	}
	return e.Send(ctx, record, nil)
}
