package platform

import (
	"fmt"
	"strings"

	"github.com/tablemate/notifyd/internal/domain"
)

// OS identifies the target device platform. Resolved once at construction;
// the delivery path never branches on it directly.
type OS string

const (
	OSAndroid OS = "android"
	OSiOS     OS = "ios"
)

func ParseOSFromString(s string) (OS, error) {
	os := OS(strings.ToLower(strings.TrimSpace(s)))
	switch os {
	case OSAndroid, OSiOS:
		return os, nil
	}
	return "", fmt.Errorf("%w: invalid platform %q", domain.ErrValidation, s)
}

// Capabilities is the per-platform strategy table for sound, priority and
// extra fields.
type Capabilities struct {
	OS OS

	// Urgency maps record priority to the platform urgency string.
	Urgency map[domain.Priority]string
	// DefaultSound is attached when no override sound is given.
	DefaultSound string
	// ForcesCriticalSound makes urgent/critical deliveries audible even when
	// the device would otherwise stay silent.
	ForcesCriticalSound bool
	// AccentColor and Vibration are attached as extras when non-empty.
	AccentColor      string
	VibrationPattern string
}

// ForOS resolves the capability table for a platform.
func ForOS(os OS) Capabilities {
	switch os {
	case OSAndroid:
		return Capabilities{
			OS: OSAndroid,
			Urgency: map[domain.Priority]string{
				domain.PriorityLow:    "min",
				domain.PriorityNormal: "default",
				domain.PriorityHigh:   "high",
				domain.PriorityUrgent: "max",
			},
			DefaultSound:     "default",
			AccentColor:      "#E8590C",
			VibrationPattern: "0,250,250,250",
		}
	default:
		return Capabilities{
			OS: OSiOS,
			Urgency: map[domain.Priority]string{
				domain.PriorityLow:    "passive",
				domain.PriorityNormal: "active",
				domain.PriorityHigh:   "time-sensitive",
				domain.PriorityUrgent: "critical",
			},
			DefaultSound:        "default",
			ForcesCriticalSound: true,
		}
	}
}

// BuildContent assembles platform content for a record. critical forces an
// audible sound where the platform allows it; sound overrides the default.
func (c Capabilities) BuildContent(record *domain.NotificationRecord, sound string, critical bool) Content {
	content := Content{
		Title:    record.Title,
		Body:     record.Body,
		ImageURL: record.ImageURL,
		Priority: c.Urgency[record.Priority],
		Sound:    sound,
	}

	if record.Data != nil {
		content.Data = make(map[string]string, len(record.Data))
		for k, v := range record.Data {
			content.Data[k] = v
		}
	}

	if content.Sound == "" {
		content.Sound = c.DefaultSound
	}
	if c.ForcesCriticalSound && (critical || record.Priority == domain.PriorityUrgent) {
		content.Sound = "critical"
	}

	if record.Type.IsActionable() {
		content.CategoryID = categoryID(record.Type)
	}

	if c.AccentColor != "" || c.VibrationPattern != "" {
		content.Extras = map[string]string{}
		if c.AccentColor != "" {
			content.Extras["color"] = c.AccentColor
		}
		if c.VibrationPattern != "" {
			content.Extras["vibration"] = c.VibrationPattern
		}
	}

	return content
}

func categoryID(typ domain.Type) string {
	switch typ {
	case domain.TypeChatMessage, domain.TypeMention:
		return "message_actions"
	case domain.TypeChannelInvite:
		return "invite_actions"
	case domain.TypeBookingRequest:
		return "booking_actions"
	case domain.TypeGroupMatched:
		return "match_actions"
	default:
		return ""
	}
}
