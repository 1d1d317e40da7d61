package mapper

import (
	"context"
	"fmt"
	"strings"

	"github.com/tablemate/notifyd/internal/backend"
	"github.com/tablemate/notifyd/internal/domain"
	"github.com/tablemate/notifyd/internal/engine"
	"github.com/tablemate/notifyd/internal/events"
	"go.uber.org/zap"
)

const maxBodyPreview = 140

// Deliverer accepts mapped records; satisfied by the delivery engine.
type Deliverer interface {
	Send(ctx context.Context, record domain.NotificationRecord, opts *engine.SendOptions) error
}

// Patcher applies updates to already-created notifications by id; satisfied
// by the backend client.
type Patcher interface {
	UpdateNotification(ctx context.Context, id string, patch backend.Patch) error
}

// Mapper converts raw domain events into canonical notification records and
// hands them to the delivery engine. Malformed events are dropped with a
// warning; the event stream is never interrupted.
type Mapper struct {
	localUserID string
	deliverer   Deliverer
	patcher     Patcher
	logger      *zap.Logger
}

func New(localUserID string, deliverer Deliverer, patcher Patcher, logger *zap.Logger) (*Mapper, error) {
	if strings.TrimSpace(localUserID) == "" {
		return nil, fmt.Errorf("local user id is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Mapper{
		localUserID: strings.TrimSpace(localUserID),
		deliverer:   deliverer,
		patcher:     patcher,
		logger:      logger,
	}, nil
}

// Handle is the events.Handler attached to the event source. It always
// returns nil: a bad event is logged and dropped, never propagated.
func (m *Mapper) Handle(ctx context.Context, event events.DomainEvent) error {
	if event.Type == events.KindMessageUpdated {
		m.applyMessagePatch(ctx, event)
		return nil
	}

	record, err := m.Map(event)
	if err != nil {
		m.logger.Warn("dropping unmappable event",
			zap.String("eventType", event.Type),
			zap.Error(err),
		)
		return nil
	}
	if record == nil {
		return nil
	}

	opts := &engine.SendOptions{GroupID: groupKey(event, record.Type)}
	if err := m.deliverer.Send(ctx, *record, opts); err != nil {
		m.logger.Warn("delivery engine rejected mapped record",
			zap.String("notificationId", record.ID),
			zap.Error(err),
		)
	}
	return nil
}

// Map converts one event into zero or one record. A nil record with nil
// error means the event was filtered (self-origin or unrecognized kind).
func (m *Mapper) Map(event events.DomainEvent) (*domain.NotificationRecord, error) {
	switch event.Type {
	case events.KindMessageNew:
		return m.mapNewMessage(event)
	case events.KindReactionNew:
		return m.mapReaction(event)
	case events.KindMemberAdded:
		return m.mapChannelInvite(event)
	case events.KindBookingRequest:
		return m.mapBookingRequest(event)
	default:
		return nil, nil
	}
}

func (m *Mapper) mapNewMessage(event events.DomainEvent) (*domain.NotificationRecord, error) {
	if event.Message == nil || strings.TrimSpace(event.Message.ID) == "" {
		return nil, fmt.Errorf("message payload with id is required")
	}
	if event.User == nil || strings.TrimSpace(event.User.ID) == "" {
		return nil, fmt.Errorf("actor is required")
	}
	if event.User.ID == m.localUserID {
		return nil, nil
	}

	record := domain.NotificationRecord{
		ID:       "msg-" + event.Message.ID,
		Type:     domain.TypeChatMessage,
		Priority: domain.PriorityHigh,
		Channels: []domain.Channel{domain.ChannelPush, domain.ChannelInApp},
		Title:    messageTitle(event.User),
		Body:     preview(event.Message.Text),
		ImageURL: event.Message.ImageURL,
		UserID:   m.localUserID,
		Data: map[string]string{
			"messageId": event.Message.ID,
			"channelId": event.ChannelID,
			"senderId":  event.User.ID,
		},
	}

	// Mention and plain message are mutually exclusive; mention wins.
	if mentionsUser(event.Message.MentionedUsers, m.localUserID) {
		record.Type = domain.TypeMention
		record.Priority = domain.PriorityUrgent
		record.Title = mentionTitle(event.User)
	}

	return &record, nil
}

func (m *Mapper) mapReaction(event events.DomainEvent) (*domain.NotificationRecord, error) {
	if event.Reaction == nil || strings.TrimSpace(event.Reaction.MessageID) == "" {
		return nil, fmt.Errorf("reaction payload with message id is required")
	}
	if event.User == nil || strings.TrimSpace(event.User.ID) == "" {
		return nil, fmt.Errorf("actor is required")
	}
	if event.User.ID == m.localUserID {
		return nil, nil
	}

	body := "Someone reacted to your message"
	if name := strings.TrimSpace(event.User.Name); name != "" {
		body = name + " reacted to your message"
	}

	return &domain.NotificationRecord{
		ID:       "reaction-" + event.Reaction.MessageID + "-" + event.User.ID,
		Type:     domain.TypeReaction,
		Priority: domain.PriorityNormal,
		Channels: []domain.Channel{domain.ChannelPush, domain.ChannelInApp},
		Title:    "New reaction",
		Body:     body,
		UserID:   m.localUserID,
		Data: map[string]string{
			"messageId": event.Reaction.MessageID,
			"channelId": event.ChannelID,
			"senderId":  event.User.ID,
			"emoji":     event.Reaction.Emoji,
		},
	}, nil
}

func (m *Mapper) mapChannelInvite(event events.DomainEvent) (*domain.NotificationRecord, error) {
	if strings.TrimSpace(event.ChannelID) == "" {
		return nil, fmt.Errorf("channel id is required")
	}
	if event.User == nil || strings.TrimSpace(event.User.ID) == "" {
		return nil, fmt.Errorf("actor is required")
	}
	if event.User.ID == m.localUserID {
		return nil, nil
	}

	body := "You were added to a dinner chat"
	if name := strings.TrimSpace(event.User.Name); name != "" {
		body = name + " added you to a dinner chat"
	}

	return &domain.NotificationRecord{
		ID:       "invite-" + event.ChannelID,
		Type:     domain.TypeChannelInvite,
		Priority: domain.PriorityHigh,
		Channels: []domain.Channel{domain.ChannelPush, domain.ChannelInApp},
		Title:    "Chat invite",
		Body:     body,
		UserID:   m.localUserID,
		Data: map[string]string{
			"channelId": event.ChannelID,
			"senderId":  event.User.ID,
		},
	}, nil
}

func (m *Mapper) mapBookingRequest(event events.DomainEvent) (*domain.NotificationRecord, error) {
	if event.Booking == nil || strings.TrimSpace(event.Booking.ID) == "" {
		return nil, fmt.Errorf("booking payload with id is required")
	}
	if event.User != nil && event.User.ID == m.localUserID {
		return nil, nil
	}

	body := "New booking request"
	if name := strings.TrimSpace(event.Booking.EventName); name != "" {
		body = "New booking request for " + name
	}

	data := map[string]string{"bookingId": event.Booking.ID}
	if event.User != nil {
		data["senderId"] = event.User.ID
	}

	return &domain.NotificationRecord{
		ID:       "booking-" + event.Booking.ID,
		Type:     domain.TypeBookingRequest,
		Priority: domain.PriorityHigh,
		Channels: []domain.Channel{domain.ChannelPush, domain.ChannelInApp},
		Title:    "Booking request",
		Body:     body,
		UserID:   m.localUserID,
		Data:     data,
	}, nil
}

func (m *Mapper) applyMessagePatch(ctx context.Context, event events.DomainEvent) {
	if m.patcher == nil {
		return
	}
	if event.Message == nil || strings.TrimSpace(event.Message.ID) == "" {
		m.logger.Warn("dropping message update without id")
		return
	}

	body := preview(event.Message.Text)
	err := m.patcher.UpdateNotification(ctx, "msg-"+event.Message.ID, backend.Patch{Body: &body})
	if err != nil {
		m.logger.Warn("failed to patch notification for edited message",
			zap.String("messageId", event.Message.ID),
			zap.Error(err),
		)
	}
}

func mentionsUser(mentioned []events.User, userID string) bool {
	for _, u := range mentioned {
		if u.ID == userID {
			return true
		}
	}
	return false
}

func messageTitle(actor *events.User) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return "New message from " + name
	}
	return "New message"
}

func mentionTitle(actor *events.User) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name + " mentioned you"
	}
	return "You were mentioned"
}

func preview(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "New message"
	}

	runes := []rune(trimmed)
	if len(runes) <= maxBodyPreview {
		return trimmed
	}
	return string(runes[:maxBodyPreview-1]) + "…"
}

// groupKey buckets burst-prone record types per conversation so the engine's
// aggregator can collapse them.
func groupKey(event events.DomainEvent, typ domain.Type) string {
	switch typ {
	case domain.TypeChatMessage:
		if event.ChannelID != "" {
			return "chat-" + event.ChannelID
		}
	case domain.TypeReaction:
		if event.Reaction != nil {
			return "reaction-" + event.Reaction.MessageID
		}
	}
	return ""
}
