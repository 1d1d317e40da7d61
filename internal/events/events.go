package events

import (
	"context"
	"fmt"
	"strings"
)

// Event kinds emitted by the messaging backend. Unrecognized kinds are
// no-ops for the mapper.
const (
	KindMessageNew     = "message.new"
	KindMessageUpdated = "message.updated"
	KindReactionNew    = "reaction.new"
	KindMemberAdded    = "member.added"
	KindBookingRequest = "booking.request"
)

// User identifies an actor or mention target in an event payload.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Message is the payload of message events. Fields are optional in the wire
// shape; the mapper enforces its own required-field set per kind.
type Message struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	MentionedUsers []User `json:"mentioned_users,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
}

// Reaction is the payload of reaction events.
type Reaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// Booking is the payload of booking request events.
type Booking struct {
	ID        string `json:"id"`
	EventName string `json:"event_name"`
}

// DomainEvent is the discriminated union delivered by the event source. Type
// selects which payload pointers are expected to be set.
type DomainEvent struct {
	Type      string    `json:"type"`
	ChannelID string    `json:"channel_id,omitempty"`
	User      *User     `json:"user,omitempty"`
	Message   *Message  `json:"message,omitempty"`
	Reaction  *Reaction `json:"reaction,omitempty"`
	Booking   *Booking  `json:"booking,omitempty"`
}

func (e DomainEvent) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("event type is required")
	}
	return nil
}

// Handler processes one consumed domain event.
type Handler func(ctx context.Context, event DomainEvent) error

// Source is the event-subscription port the mapper attaches to.
type Source interface {
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}
