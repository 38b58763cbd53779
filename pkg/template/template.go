// Package template renders action parameters against the run's execution
// context, so workflow authors can reference trigger payloads and
// environment variables from action configuration.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/orchonhq/orchon/pkg/models"
)

// RenderParameters resolves every templated string in an action's
// parameter map. Non-string values and strings without template markup
// pass through untouched.
func RenderParameters(params map[string]any, execCtx models.ExecutionContext) (map[string]any, error) {
	if len(params) == 0 {
		return params, nil
	}

	data := contextData(execCtx)

	rendered := make(map[string]any, len(params))

	for key, value := range params {
		result, err := renderValue(value, data)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", key, err)
		}

		rendered[key] = result
	}

	return rendered, nil
}

func renderValue(value any, data map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		nested := make(map[string]any, len(v))

		for key, item := range v {
			result, err := renderValue(item, data)
			if err != nil {
				return nil, err
			}

			nested[key] = result
		}

		return nested, nil
	case []any:
		items := make([]any, len(v))

		for i, item := range v {
			result, err := renderValue(item, data)
			if err != nil {
				return nil, err
			}

			items[i] = result
		}

		return items, nil
	default:
		return value, nil
	}
}

func contextData(execCtx models.ExecutionContext) map[string]any {
	return map[string]any{
		"trigger_data": execCtx.TriggerData,
		"env":          getEnvVars(),
		"execution": map[string]any{
			"instance_id": execCtx.InstanceID,
			"workflow_id": execCtx.WorkflowID,
			"task_id":     execCtx.TaskID,
		},
	}
}

// Render executes one template string and coerces the output back into a
// JSON-ish value: objects and arrays are unmarshalled, numbers and booleans
// parsed, everything else stays a string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("parameter").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
