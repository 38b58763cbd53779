// Package updaterecord provides an action that patches a record in an
// external business system over its REST API.
package updaterecord

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

const requestTimeout = 30 * time.Second

var (
	// ErrBaseURLInvalid is returned when the API base URL is missing or malformed.
	ErrBaseURLInvalid = errors.New("invalid record API base URL")
	// ErrRecordRefInvalid is returned when record_type or record_id are missing.
	ErrRecordRefInvalid = errors.New("record type and record id are required")
	// ErrFieldsInvalid is returned when no fields to update are configured.
	ErrFieldsInvalid = errors.New("at least one field to update is required")
	// ErrUpdateRejected is returned when the API responds with a non-2xx status.
	ErrUpdateRejected = errors.New("record update rejected by API")
)

// Action issues a PATCH against <base_url>/<record_type>/<record_id> with the
// configured field values as the JSON body.
type Action struct {
	BaseURL    string
	RecordType string
	RecordID   string
	Fields     map[string]any
	Headers    map[string]string

	client *http.Client
}

// NewAction creates an update-record action from configuration.
func NewAction(config map[string]any) (*Action, error) {
	baseURL, _ := config["base_url"].(string)

	parsed, err := url.Parse(baseURL)
	if baseURL == "" || err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("missing or invalid 'base_url' in configuration: %w", ErrBaseURLInvalid)
	}

	recordType, _ := config["record_type"].(string)
	recordID, _ := config["record_id"].(string)

	if recordType == "" || recordID == "" {
		return nil, ErrRecordRefInvalid
	}

	fields, _ := config["fields"].(map[string]any)
	if len(fields) == 0 {
		return nil, ErrFieldsInvalid
	}

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

	return &Action{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		RecordType: recordType,
		RecordID:   recordID,
		Fields:     fields,
		Headers:    headers,
		client:     &http.Client{Timeout: requestTimeout},
	}, nil
}

// Execute patches the record and returns the API response.
func (a *Action) Execute(ctx context.Context, execCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", a.BaseURL, a.RecordType, a.RecordID)

	logger = logger.With("module", "update_record_action", "endpoint", endpoint)
	logger.InfoContext(ctx, "Updating record", "fields", len(a.Fields))

	payload, err := json.Marshal(a.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record fields: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("failed to build record update request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range a.Headers {
		req.Header.Set(key, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("record update request failed: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.ErrorContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read record update response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.WarnContext(ctx, "Record update rejected", "status", resp.StatusCode)

		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ErrUpdateRejected)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"record_type": a.RecordType,
		"record_id":   a.RecordID,
	}

	var decoded any
	if json.Unmarshal(respBody, &decoded) == nil {
		result["body"] = decoded
	}

	return result, nil
}
