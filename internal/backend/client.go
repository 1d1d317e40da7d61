package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tablemate/notifyd/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Patch carries partial updates applied to an existing notification by id,
// e.g. after a source message edit.
type Patch struct {
	Title    *string           `json:"title,omitempty"`
	Body     *string           `json:"body,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	ImageURL *string           `json:"imageUrl,omitempty"`
	Read     *bool             `json:"read,omitempty"`
}

// Client is the backend transmission port consumed by the engine and batcher.
type Client interface {
	CreateNotification(ctx context.Context, record domain.NotificationRecord) error
	UpdateNotification(ctx context.Context, id string, patch Patch) error
	PostAnalyticsBatch(ctx context.Context, events []domain.AnalyticsEvent) error
	GetUnreadCount(ctx context.Context, userID string) (int, error)
}

type unreadCountResponse struct {
	Count int `json:"count"`
}

// HTTPClient is the resty-backed backend client.
type HTTPClient struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPClient(baseURL string) (*HTTPClient, error) {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)

	return NewHTTPClientWithClient(baseURL, client)
}

func NewHTTPClientWithClient(baseURL string, client *resty.Client) (*HTTPClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPClient{client: client, baseURL: trimmed}, nil
}

func (c *HTTPClient) CreateNotification(ctx context.Context, record domain.NotificationRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(record).
		Post(c.baseURL + "/v1/notifications")
	if err != nil {
		return fmt.Errorf("create notification request failed: %w", err)
	}
	return checkStatus(response, "create notification")
}

func (c *HTTPClient) UpdateNotification(ctx context.Context, id string, patch Patch) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(patch).
		Patch(c.baseURL + "/v1/notifications/" + url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("update notification request failed: %w", err)
	}
	if response.StatusCode() == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return checkStatus(response, "update notification")
}

func (c *HTTPClient) PostAnalyticsBatch(ctx context.Context, batch []domain.AnalyticsEvent) error {
	if len(batch) == 0 {
		return nil
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"events": batch}).
		Post(c.baseURL + "/v1/analytics/notifications")
	if err != nil {
		return fmt.Errorf("analytics batch request failed: %w", err)
	}
	return checkStatus(response, "post analytics batch")
}

func (c *HTTPClient) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("userId", userID).
		Get(c.baseURL + "/v1/notifications/unread-count")
	if err != nil {
		return 0, fmt.Errorf("unread count request failed: %w", err)
	}
	if err := checkStatus(response, "get unread count"); err != nil {
		return 0, err
	}

	var resp unreadCountResponse
	if err := json.Unmarshal(response.Body(), &resp); err != nil {
		return 0, fmt.Errorf("failed to decode unread count response: %w", err)
	}
	return resp.Count, nil
}

func checkStatus(response *resty.Response, op string) error {
	if response == nil {
		return fmt.Errorf("%s: empty response", op)
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	if body := strings.TrimSpace(response.String()); body != "" {
		return fmt.Errorf("%s: backend returned status %d: %s", op, statusCode, body)
	}
	return fmt.Errorf("%s: backend returned status %d", op, statusCode)
}
