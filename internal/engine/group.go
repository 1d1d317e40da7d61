package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tablemate/notifyd/internal/domain"
	"go.uber.org/zap"
)

// addToGroup appends a record to its grouping bucket. Reaching the threshold
// emits one summary notification through the immediate delivery path and
// hard-resets the group; individual deliveries are never suppressed.
func (e *Engine) addToGroup(ctx context.Context, record domain.NotificationRecord, groupID string) {
	e.mu.Lock()
	group, ok := e.groups[groupID]
	if !ok {
		group = &domain.NotificationGroup{
			ID:      groupID,
			Type:    record.Type,
			Summary: record.Body,
		}
		e.groups[groupID] = group
	}

	group.Notifications = append(group.Notifications, record.Clone())
	group.Count++
	if group.Count > 1 {
		group.Summary = summaryText(group.Type, group.Count)
	}

	var ready *domain.NotificationGroup
	if group.Count >= domain.GroupThreshold {
		delete(e.groups, groupID)
		ready = group
	}
	e.mu.Unlock()

	if ready == nil {
		return
	}

	summary := e.buildSummaryRecord(ready)
	e.tracker.Track(ctx, summary, domain.EventSent, map[string]string{"groupId": ready.ID})

	presented, err := e.deliver(ctx, &summary, "", false)
	if err != nil {
		e.tracker.Track(ctx, summary, domain.EventFailed, map[string]string{"error": err.Error()})
		e.enqueue(ctx, domain.QueueEntry{
			ID:           summary.ID,
			Notification: summary.Clone(),
			EnqueuedAt:   e.now().UTC(),
		})
		e.logger.Warn("summary delivery failed, queued for retry",
			zap.String("groupId", ready.ID),
			zap.Error(err),
		)
		return
	}
	if presented {
		e.tracker.Track(ctx, summary, domain.EventDelivered, nil)
	}
}

// GetGroup returns a copy of an in-progress group, or false when the key is
// unknown or was reset at the threshold.
func (e *Engine) GetGroup(groupID string) (domain.NotificationGroup, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	group, ok := e.groups[groupID]
	if !ok {
		return domain.NotificationGroup{}, false
	}

	out := *group
	out.Notifications = make([]domain.NotificationRecord, 0, len(group.Notifications))
	for i := range group.Notifications {
		out.Notifications = append(out.Notifications, group.Notifications[i].Clone())
	}
	return out, true
}

func (e *Engine) buildSummaryRecord(group *domain.NotificationGroup) domain.NotificationRecord {
	ids := make([]string, 0, len(group.Notifications))
	for i := range group.Notifications {
		ids = append(ids, group.Notifications[i].ID)
	}

	return domain.NotificationRecord{
		ID:       "group-" + group.ID + "-" + uuid.NewString(),
		Type:     group.Type,
		Priority: domain.PriorityNormal,
		Channels: []domain.Channel{domain.ChannelPush, domain.ChannelInApp},
		Title:    summaryTitle(group.Type),
		Body:     group.Summary,
		Data: map[string]string{
			"groupId":         group.ID,
			"notificationIds": strings.Join(ids, ","),
		},
		CreatedAt: e.now().UTC(),
	}
}

// summaryText is a pure function of type and count, never of member content.
func summaryText(typ domain.Type, count int) string {
	switch typ {
	case domain.TypeChatMessage, domain.TypeMention:
		return fmt.Sprintf("%d new messages", count)
	case domain.TypeReaction:
		return fmt.Sprintf("%d people reacted to your post", count)
	case domain.TypeChannelInvite:
		return fmt.Sprintf("%d new chat invites", count)
	default:
		return fmt.Sprintf("%d new notifications", count)
	}
}

func summaryTitle(typ domain.Type) string {
	switch typ {
	case domain.TypeChatMessage, domain.TypeMention:
		return "💬 New Messages"
	case domain.TypeReaction:
		return "🎉 New Reactions"
	case domain.TypeChannelInvite:
		return "🍽️ New Invites"
	default:
		return "🔔 New Notifications"
	}
}
