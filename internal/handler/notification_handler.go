package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tablemate/notifyd/internal/domain"
	"github.com/tablemate/notifyd/internal/engine"
)

// Delivery is the slice of the delivery engine the HTTP surface needs.
type Delivery interface {
	Send(ctx context.Context, record domain.NotificationRecord, opts *engine.SendOptions) error
	GetScheduledNotifications() []domain.QueueEntry
	GetFailedNotifications() []domain.QueueEntry
	RetryFailedNotifications(ctx context.Context) int
	ClearFailedNotifications(ctx context.Context)
	CancelScheduledNotification(ctx context.Context, id string) error
	CancelAllScheduledNotifications(ctx context.Context) error
}

// Analytics is the slice of the event batcher the HTTP surface needs.
type Analytics interface {
	Track(ctx context.Context, record domain.NotificationRecord, event domain.LifecycleEvent, metadata map[string]string)
	Flush(ctx context.Context) error
	Metrics() map[domain.Type]domain.TypeMetrics
	EngagementRate(typ domain.Type) float64
	ActionRate(typ domain.Type) float64
	QueueDepth() int
}

type NotificationHandler struct {
	delivery  Delivery
	analytics Analytics
}

func NewNotificationHandler(delivery Delivery, analytics Analytics) (*NotificationHandler, error) {
	if delivery == nil {
		return nil, fmt.Errorf("delivery engine is required")
	}
	if analytics == nil {
		return nil, fmt.Errorf("analytics batcher is required")
	}
	return &NotificationHandler{delivery: delivery, analytics: analytics}, nil
}

func RegisterNotificationRoutes(router fiber.Router, delivery Delivery, analytics Analytics) error {
	h, err := NewNotificationHandler(delivery, analytics)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.SendNotification)
	v1.Post("/notifications/:id/events", h.TrackEvent)
	v1.Get("/notifications/scheduled", h.ListScheduled)
	v1.Delete("/notifications/scheduled", h.CancelAllScheduled)
	v1.Delete("/notifications/scheduled/:id", h.CancelScheduled)
	v1.Get("/notifications/failed", h.ListFailed)
	v1.Post("/notifications/failed/retry", h.RetryFailed)
	v1.Delete("/notifications/failed", h.ClearFailed)
	v1.Get("/analytics/stats", h.AnalyticsStats)
	v1.Post("/analytics/flush", h.FlushAnalytics)

	return nil
}

type sendNotificationRequest struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Priority string            `json:"priority"`
	Channels []string          `json:"channels"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	ImageURL string            `json:"imageUrl,omitempty"`
	UserID   string            `json:"userId,omitempty"`

	Schedule *time.Time `json:"schedule,omitempty"`
	GroupID  string     `json:"groupId,omitempty"`
	Sound    string     `json:"sound,omitempty"`
	Critical bool       `json:"critical,omitempty"`
}

type trackEventRequest struct {
	Event    string            `json:"event"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type queueEntryResponse struct {
	ID            string     `json:"id"`
	Notification  any        `json:"notification"`
	RetryCount    int        `json:"retryCount"`
	ScheduledFor  *time.Time `json:"scheduledFor,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
	EnqueuedAt    time.Time  `json:"enqueuedAt"`
}

func (h *NotificationHandler) SendNotification(c *fiber.Ctx) error {
	var req sendNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	record, opts, err := requestToRecord(req)
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.delivery.Send(c.Context(), record, opts); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":     record.ID,
		"status": "accepted",
	})
}

func (h *NotificationHandler) TrackEvent(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return toHTTPError(fmt.Errorf("%w: notification id is required", domain.ErrValidation))
	}

	var req trackEventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	event, err := domain.ParseLifecycleEventFromString(req.Event)
	if err != nil {
		return toHTTPError(err)
	}

	if strings.TrimSpace(req.Type) == "" {
		return toHTTPError(fmt.Errorf("%w: notification type is required", domain.ErrValidation))
	}
	typ, err := domain.ParseTypeFromString(req.Type)
	if err != nil {
		return toHTTPError(err)
	}

	record := domain.NotificationRecord{ID: id, Type: typ}
	h.analytics.Track(c.Context(), record, event, req.Metadata)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) ListScheduled(c *fiber.Ctx) error {
	entries := h.delivery.GetScheduledNotifications()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": toQueueEntryResponses(entries),
	})
}

func (h *NotificationHandler) CancelScheduled(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.delivery.CancelScheduledNotification(c.Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) CancelAllScheduled(c *fiber.Ctx) error {
	if err := h.delivery.CancelAllScheduledNotifications(c.Context()); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) ListFailed(c *fiber.Ctx) error {
	entries := h.delivery.GetFailedNotifications()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": toQueueEntryResponses(entries),
	})
}

func (h *NotificationHandler) RetryFailed(c *fiber.Ctx) error {
	moved := h.delivery.RetryFailedNotifications(c.Context())
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"requeued": moved,
	})
}

func (h *NotificationHandler) ClearFailed(c *fiber.Ctx) error {
	h.delivery.ClearFailedNotifications(c.Context())
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) AnalyticsStats(c *fiber.Ctx) error {
	rawType := strings.TrimSpace(c.Query("type"))

	if rawType != "" {
		typ, err := domain.ParseTypeFromString(rawType)
		if err != nil {
			return toHTTPError(err)
		}
		counters := h.analytics.Metrics()[typ]
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"type":           typ.String(),
			"metrics":        counters,
			"engagementRate": h.analytics.EngagementRate(typ),
			"actionRate":     h.analytics.ActionRate(typ),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"metrics":        h.analytics.Metrics(),
		"engagementRate": h.analytics.EngagementRate(""),
		"actionRate":     h.analytics.ActionRate(""),
		"pendingEvents":  h.analytics.QueueDepth(),
	})
}

func (h *NotificationHandler) FlushAnalytics(c *fiber.Ctx) error {
	if err := h.analytics.Flush(c.Context()); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func requestToRecord(req sendNotificationRequest) (domain.NotificationRecord, *engine.SendOptions, error) {
	typ, err := domain.ParseTypeFromString(req.Type)
	if err != nil {
		return domain.NotificationRecord{}, nil, err
	}

	priority := domain.PriorityNormal
	if strings.TrimSpace(req.Priority) != "" {
		priority, err = domain.ParsePriorityFromString(req.Priority)
		if err != nil {
			return domain.NotificationRecord{}, nil, err
		}
	}

	channels := make([]domain.Channel, 0, len(req.Channels))
	for _, raw := range req.Channels {
		channel, err := domain.ParseChannelFromString(raw)
		if err != nil {
			return domain.NotificationRecord{}, nil, err
		}
		channels = append(channels, channel)
	}
	if len(channels) == 0 {
		channels = append(channels, domain.ChannelPush)
	}

	record := domain.NotificationRecord{
		ID:       strings.TrimSpace(req.ID),
		Type:     typ,
		Priority: priority,
		Channels: channels,
		Title:    strings.TrimSpace(req.Title),
		Body:     req.Body,
		Data:     req.Data,
		ImageURL: strings.TrimSpace(req.ImageURL),
		UserID:   strings.TrimSpace(req.UserID),
	}

	opts := &engine.SendOptions{
		Schedule: req.Schedule,
		GroupID:  strings.TrimSpace(req.GroupID),
		Sound:    strings.TrimSpace(req.Sound),
		Critical: req.Critical,
	}
	return record, opts, nil
}

func toQueueEntryResponses(entries []domain.QueueEntry) []queueEntryResponse {
	responses := make([]queueEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, queueEntryResponse{
			ID:            entry.ID,
			Notification:  entry.Notification,
			RetryCount:    entry.RetryCount,
			ScheduledFor:  entry.ScheduledFor,
			FailureReason: entry.FailureReason,
			EnqueuedAt:    entry.EnqueuedAt,
		})
	}
	return responses
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
