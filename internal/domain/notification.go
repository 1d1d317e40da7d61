package domain

import (
	"fmt"
	"strings"
	"time"
)

// Type categorizes a notification by the domain event that produced it.
type Type string

const (
	TypeChatMessage         Type = "CHAT_MESSAGE"
	TypeMention             Type = "MENTION"
	TypeReaction            Type = "REACTION"
	TypeChannelInvite       Type = "CHANNEL_INVITE"
	TypeBookingRequest      Type = "BOOKING_REQUEST"
	TypeDinnerReminder      Type = "DINNER_REMINDER"
	TypeDinnerReminderFinal Type = "DINNER_REMINDER_FINAL"
	TypeAchievementUnlocked Type = "ACHIEVEMENT_UNLOCKED"
	TypeGroupMatched        Type = "GROUP_MATCHED"
	TypeStreakReminder      Type = "STREAK_REMINDER"
	TypeProfileIncomplete   Type = "PROFILE_INCOMPLETE"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	switch t {
	case TypeChatMessage, TypeMention, TypeReaction, TypeChannelInvite,
		TypeBookingRequest, TypeDinnerReminder, TypeDinnerReminderFinal,
		TypeAchievementUnlocked, TypeGroupMatched, TypeStreakReminder,
		TypeProfileIncomplete:
		return true
	}
	return false
}

// RequiresNetwork reports whether delivery of this type needs connectivity.
// Local reminder types are presented by the device alone and can be delivered
// while offline.
func (t Type) RequiresNetwork() bool {
	switch t {
	case TypeDinnerReminder, TypeDinnerReminderFinal, TypeStreakReminder, TypeProfileIncomplete:
		return false
	}
	return true
}

// IsActionable reports whether the type carries quick actions and therefore
// gets a platform category identifier attached.
func (t Type) IsActionable() bool {
	switch t {
	case TypeChatMessage, TypeMention, TypeChannelInvite, TypeBookingRequest, TypeGroupMatched:
		return true
	}
	return false
}

func ParseTypeFromString(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return t, nil
}

// Priority represents delivery urgency.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// Channel is a delivery destination, not a conversation.
type Channel string

const (
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelPush, ChannelInApp:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Display length limits.
const (
	MaxTitleLength = 120
	MaxBodyLength  = 1024
)

// NotificationRecord is the canonical representation of one notifiable event.
// It is immutable after construction except for Read, which only the UI layer
// flips.
type NotificationRecord struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Priority  Priority          `json:"priority"`
	Channels  []Channel         `json:"channels"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	ImageURL  string            `json:"imageUrl,omitempty"`
	UserID    string            `json:"userId,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"createdAt"`
}

func (n *NotificationRecord) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", ErrValidation)
	}
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, n.Type)
	}
	if !n.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, n.Priority)
	}
	if len(n.Channels) == 0 {
		return fmt.Errorf("%w: at least one channel is required", ErrValidation)
	}
	for _, ch := range n.Channels {
		if !ch.IsValid() {
			return fmt.Errorf("%w: invalid channel %q", ErrValidation, ch)
		}
	}
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if titleLen := len([]rune(n.Title)); titleLen > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters (got %d)", ErrValidation, MaxTitleLength, titleLen)
	}
	if bodyLen := len([]rune(n.Body)); bodyLen > MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxBodyLength, bodyLen)
	}
	return nil
}

// WantsChannel reports whether the record requested delivery on ch.
func (n *NotificationRecord) WantsChannel(ch Channel) bool {
	for _, c := range n.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share Data maps across component
// boundaries.
func (n *NotificationRecord) Clone() NotificationRecord {
	out := *n
	out.Channels = append([]Channel(nil), n.Channels...)
	if n.Data != nil {
		out.Data = make(map[string]string, len(n.Data))
		for k, v := range n.Data {
			out.Data[k] = v
		}
	}
	return out
}
