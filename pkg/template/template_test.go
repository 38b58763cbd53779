package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchonhq/orchon/pkg/models"
)

func TestRender(t *testing.T) {
	data := map[string]any{
		"trigger_data": map[string]any{
			"order_id": "ord-42",
			"amount":   19.90,
		},
	}

	t.Run("string interpolation", func(t *testing.T) {
		result, err := Render("order {{.trigger_data.order_id}}", data)
		require.NoError(t, err)
		assert.Equal(t, "order ord-42", result)
	})

	t.Run("numeric coercion", func(t *testing.T) {
		result, err := Render("{{.trigger_data.amount}}", data)
		require.NoError(t, err)
		assert.InDelta(t, 19.90, result, 0.001)
	})

	t.Run("json object coercion", func(t *testing.T) {
		result, err := Render(`{"id": "{{.trigger_data.order_id}}"}`, data)
		require.NoError(t, err)

		obj, ok := result.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "ord-42", obj["id"])
	})

	t.Run("boolean coercion", func(t *testing.T) {
		result, err := Render("true", data)
		require.NoError(t, err)
		assert.Equal(t, true, result)
	})

	t.Run("invalid template", func(t *testing.T) {
		_, err := Render("{{.broken", data)
		require.Error(t, err)
	})

	t.Run("malformed json output", func(t *testing.T) {
		_, err := Render(`{"unterminated": `+"{{.trigger_data.order_id}}}", data)
		require.Error(t, err)
	})
}

func TestRenderParameters(t *testing.T) {
	execCtx := models.ExecutionContext{
		InstanceID: "inst-1",
		WorkflowID: "wf-1",
		TriggerData: map[string]any{
			"customer": "acme",
			"score":    91,
		},
	}

	t.Run("renders templated strings only", func(t *testing.T) {
		params, err := RenderParameters(map[string]any{
			"url":     "https://example.com/notify",
			"message": "customer {{.trigger_data.customer}} scored {{.trigger_data.score}}",
			"retries": 3,
		}, execCtx)
		require.NoError(t, err)

		assert.Equal(t, "https://example.com/notify", params["url"])
		assert.Equal(t, "customer acme scored 91", params["message"])
		assert.Equal(t, 3, params["retries"])
	})

	t.Run("renders nested maps and slices", func(t *testing.T) {
		params, err := RenderParameters(map[string]any{
			"headers": map[string]any{
				"X-Instance": "{{.execution.instance_id}}",
			},
			"recipients": []any{"ops@{{.trigger_data.customer}}.test"},
		}, execCtx)
		require.NoError(t, err)

		headers, ok := params["headers"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "inst-1", headers["X-Instance"])

		recipients, ok := params["recipients"].([]any)
		require.True(t, ok)
		assert.Equal(t, "ops@acme.test", recipients[0])
	})

	t.Run("propagates render errors with parameter name", func(t *testing.T) {
		_, err := RenderParameters(map[string]any{
			"body": "{{.unclosed",
		}, execCtx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `parameter "body"`)
	})

	t.Run("empty parameters pass through", func(t *testing.T) {
		params, err := RenderParameters(nil, execCtx)
		require.NoError(t, err)
		assert.Nil(t, params)
	})
}
