// Package webhook provides an action that delivers an HTTP request to an
// external endpoint. Retries across failed deliveries are handled by the
// executor, so a single Execute performs exactly one request.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orchonhq/orchon/pkg/models"
)

const defaultTimeoutSeconds = 30

var (
	// ErrWebhookURLInvalid is returned when the webhook URL is missing or malformed.
	ErrWebhookURLInvalid = errors.New("invalid webhook URL")
	// ErrWebhookMethodInvalid is returned when the HTTP method is not supported.
	ErrWebhookMethodInvalid = errors.New("invalid webhook HTTP method")
	// ErrWebhookStatus is returned when the endpoint responds with a non-2xx status.
	ErrWebhookStatus = errors.New("webhook endpoint returned non-success status")
)

// Action performs an HTTP request to a configured URL with optional headers
// and body.
type Action struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration

	client *http.Client
}

// NewAction creates a webhook action from configuration.
func NewAction(config map[string]any) (*Action, error) {
	rawURL, ok := config["url"].(string)
	if !ok || rawURL == "" {
		return nil, fmt.Errorf("missing or invalid 'url' in configuration: %w", ErrWebhookURLInvalid)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("'url' must be an absolute http(s) URL: %w", ErrWebhookURLInvalid)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	method = strings.ToUpper(method)

	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("unsupported method %q: %w", method, ErrWebhookMethodInvalid)
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Action{
		URL:     rawURL,
		Method:  method,
		Headers: headers,
		Body:    body,
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Execute performs the HTTP request and returns the decoded response. A
// non-2xx status is an error so the executor's retry budget applies.
func (a *Action) Execute(ctx context.Context, execCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "webhook_action", "url", a.URL, "method", a.Method)
	logger.InfoContext(ctx, "Delivering webhook")

	var bodyReader io.Reader
	if a.Body != "" {
		bodyReader = strings.NewReader(a.Body)
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, a.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}

	if a.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range a.Headers {
		req.Header.Set(key, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.ErrorContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.WarnContext(ctx, "Webhook delivery rejected", "status", resp.StatusCode)

		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ErrWebhookStatus)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     flattenHeaders(resp.Header),
	}

	var decoded any
	if json.Unmarshal(respBody, &decoded) == nil {
		result["body"] = decoded
	} else {
		result["body"] = string(respBody)
	}

	return result, nil
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) > 0 {
			flat[key] = values[0]
		}
	}

	return flat
}
