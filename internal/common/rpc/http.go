package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"frontdesk/internal/common/config"
	fdhttp "frontdesk/internal/common/http"
)

// StatusError is a non-2xx answer from the HTTP gateway.
type StatusError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Status     string `json:"status"`
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rpc http %d: %s %s", e.StatusCode, e.Code, e.Message)
}

func (e *StatusError) classify() error {
	switch {
	case e.StatusCode == http.StatusConflict,
		e.Status == "already_answered",
		e.Code == "P0001" && strings.Contains(e.Message, "ALREADY_ANSWERED"):
		return fmt.Errorf("%w: %s", ErrAlreadyAnswered, e.Error())
	case e.StatusCode >= 500,
		e.StatusCode == http.StatusNotFound,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRemoteUnavailable, e.Error())
	default:
		return fmt.Errorf("%w: %s", ErrRemoteRejected, e.Error())
	}
}

// HTTPClient calls the routine through a PostgREST-style gateway:
// POST {base}/rest/v1/rpc/{function}.
type HTTPClient struct {
	client   *fdhttp.Client
	url      string
	apiKey   string
	terminal Terminal
}

func NewHTTPClient(cfg config.RemoteConfig, terminal Terminal) *HTTPClient {
	return &HTTPClient{
		client:   fdhttp.NewClient(config.GetDuration(cfg.Timeout)),
		url:      strings.TrimRight(cfg.BaseURL, "/") + "/rest/v1/rpc/" + cfg.Function,
		apiKey:   cfg.APIKey,
		terminal: terminal,
	}
}

func (c *HTTPClient) Transport() string { return config.RemoteTransportHTTP }

func (c *HTTPClient) ConfirmPayment(ctx context.Context, notificationID int64) (*RemoteResult, error) {
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["apikey"] = c.apiKey
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	body := map[string]interface{}{
		"p_notification_id": notificationID,
		"p_device":          c.terminal.Device,
		"p_area":            c.terminal.Area,
		"p_access_kind":     c.terminal.AccessKind,
	}

	status, raw, err := c.client.PostJSON(ctx, c.url, headers, body)
	if err != nil {
		return nil, Classify(err)
	}

	if status < 200 || status > 299 {
		se := &StatusError{StatusCode: status}
		_ = json.Unmarshal(raw, se) // body is optional
		return nil, Classify(se)
	}

	var res RemoteResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: decode result: %v", ErrRemoteRejected, err)
	}
	if res.Status == "already_answered" {
		return nil, fmt.Errorf("%w: notification %d", ErrAlreadyAnswered, notificationID)
	}
	return &res, nil
}
