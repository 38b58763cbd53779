package updaterecord

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchonhq/orchon/pkg/models"
)

func TestNewAction_Validation(t *testing.T) {
	t.Parallel()

	valid := map[string]any{
		"base_url":    "https://erp.example.com/api",
		"record_type": "orders",
		"record_id":   "ord-42",
		"fields":      map[string]any{"status": "shipped"},
	}

	_, err := NewAction(valid)
	require.NoError(t, err)

	missingRef := map[string]any{
		"base_url": "https://erp.example.com/api",
		"fields":   map[string]any{"status": "shipped"},
	}
	_, err = NewAction(missingRef)
	require.ErrorIs(t, err, ErrRecordRefInvalid)

	noFields := map[string]any{
		"base_url":    "https://erp.example.com/api",
		"record_type": "orders",
		"record_id":   "ord-42",
	}
	_, err = NewAction(noFields)
	require.ErrorIs(t, err, ErrFieldsInvalid)

	badURL := map[string]any{
		"base_url":    "not-a-url",
		"record_type": "orders",
		"record_id":   "ord-42",
		"fields":      map[string]any{"status": "shipped"},
	}
	_, err = NewAction(badURL)
	require.ErrorIs(t, err, ErrBaseURLInvalid)
}

func TestAction_Execute(t *testing.T) {
	t.Parallel()

	var gotPath string

	var gotFields map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotFields))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "ord-42", "status": "shipped"}`))
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"base_url":    server.URL + "/api/",
		"record_type": "orders",
		"record_id":   "ord-42",
		"fields":      map[string]any{"status": "shipped"},
	})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), models.ExecutionContext{}, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, "/api/orders/ord-42", gotPath)
	assert.Equal(t, map[string]any{"status": "shipped"}, gotFields)

	output, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ord-42", output["record_id"])
}

func TestAction_Execute_Rejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"base_url":    server.URL,
		"record_type": "orders",
		"record_id":   "ord-42",
		"fields":      map[string]any{"status": "shipped"},
	})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), models.ExecutionContext{}, slog.Default())
	require.ErrorIs(t, err, ErrUpdateRejected)
}
