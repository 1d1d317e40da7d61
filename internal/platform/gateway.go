package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultGatewayTimeout = 10 * time.Second

type presentRequest struct {
	ID      string  `json:"id"`
	Content Content `json:"content"`
}

type scheduleRequest struct {
	ID        string    `json:"id"`
	Content   Content   `json:"content"`
	DeliverAt time.Time `json:"deliverAt"`
}

type scheduleResponse struct {
	Handle string `json:"handle"`
}

type badgeRequest struct {
	Count int `json:"count"`
}

type permissionResponse struct {
	Status string `json:"status"`
}

// PushGateway talks to the device push bridge over HTTP. It is the shipped
// Notifier implementation.
type PushGateway struct {
	client  *resty.Client
	baseURL string
}

func NewPushGateway(baseURL string) (*PushGateway, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)

	return NewPushGatewayWithClient(baseURL, client)
}

func NewPushGatewayWithClient(baseURL string, client *resty.Client) (*PushGateway, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("push gateway url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid push gateway url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &PushGateway{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (g *PushGateway) PresentNow(ctx context.Context, id string, content Content) error {
	_, err := g.post(ctx, "/v1/push", presentRequest{ID: id, Content: content})
	return err
}

func (g *PushGateway) ScheduleAt(ctx context.Context, id string, content Content, at time.Time) (string, error) {
	body, err := g.post(ctx, "/v1/push/schedule", scheduleRequest{ID: id, Content: content, DeliverAt: at.UTC()})
	if err != nil {
		return "", err
	}

	var resp scheduleResponse
	if err := json.Unmarshal(body, &resp); err != nil || strings.TrimSpace(resp.Handle) == "" {
		// Gateways that do not mint handles fall back to the record id.
		return id, nil
	}
	return resp.Handle, nil
}

func (g *PushGateway) Cancel(ctx context.Context, handle string) error {
	if strings.TrimSpace(handle) == "" {
		return fmt.Errorf("handle is required")
	}
	return g.delete(ctx, "/v1/push/scheduled/"+url.PathEscape(handle))
}

func (g *PushGateway) CancelAll(ctx context.Context) error {
	return g.delete(ctx, "/v1/push/scheduled")
}

func (g *PushGateway) SetBadgeCount(ctx context.Context, n int) error {
	if n < 0 {
		n = 0
	}
	_, err := g.post(ctx, "/v1/badge", badgeRequest{Count: n})
	return err
}

func (g *PushGateway) GetPermissionStatus(ctx context.Context) (PermissionStatus, error) {
	if err := g.ready(); err != nil {
		return PermissionUndetermined, err
	}

	response, err := g.client.R().SetContext(ctx).Get(g.baseURL + "/v1/permission")
	if err != nil {
		return PermissionUndetermined, &GatewayError{
			Message:   "permission status request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	return parsePermission(response)
}

func (g *PushGateway) RequestPermission(ctx context.Context) (PermissionStatus, error) {
	body, err := g.post(ctx, "/v1/permission/request", nil)
	if err != nil {
		return PermissionUndetermined, err
	}

	var resp permissionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return PermissionUndetermined, nil
	}
	return permissionFromString(resp.Status), nil
}

func (g *PushGateway) ready() error {
	if g == nil || g.client == nil {
		return fmt.Errorf("push gateway is not initialized")
	}
	return nil
}

func (g *PushGateway) post(ctx context.Context, path string, body any) ([]byte, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}

	req := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json")
	if body != nil {
		req = req.SetBody(body)
	}

	response, err := req.Post(g.baseURL + path)
	if err != nil {
		return nil, &GatewayError{
			Message:   "gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	if err := checkStatus(response); err != nil {
		return nil, err
	}
	return response.Body(), nil
}

func (g *PushGateway) delete(ctx context.Context, path string) error {
	if err := g.ready(); err != nil {
		return err
	}

	response, err := g.client.R().SetContext(ctx).Delete(g.baseURL + path)
	if err != nil {
		return &GatewayError{
			Message:   "gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	return checkStatus(response)
}

func checkStatus(response *resty.Response) error {
	if response == nil {
		return &GatewayError{Message: "gateway returned empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	message := fmt.Sprintf("gateway returned status %d", statusCode)
	if body := strings.TrimSpace(response.String()); body != "" {
		message = fmt.Sprintf("%s: %s", message, body)
	}

	return &GatewayError{
		StatusCode: statusCode,
		Message:    message,
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func parsePermission(response *resty.Response) (PermissionStatus, error) {
	if err := checkStatus(response); err != nil {
		return PermissionUndetermined, err
	}

	var resp permissionResponse
	if err := json.Unmarshal(response.Body(), &resp); err != nil {
		return PermissionUndetermined, fmt.Errorf("failed to decode permission response: %w", err)
	}
	return permissionFromString(resp.Status), nil
}

func permissionFromString(s string) PermissionStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(PermissionGranted):
		return PermissionGranted
	case string(PermissionDenied):
		return PermissionDenied
	default:
		return PermissionUndetermined
	}
}
