package email

import (
	"context"
	"log/slog"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchonhq/orchon/pkg/models"
)

func TestNewAction_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  map[string]any
		wantErr error
	}{
		{
			name: "valid config",
			config: map[string]any{
				"smtp_host": "mail.example.com",
				"to":        "ops@example.com",
				"subject":   "report ready",
			},
		},
		{
			name: "missing host",
			config: map[string]any{
				"to":      "ops@example.com",
				"subject": "report ready",
			},
			wantErr: ErrEmailHostInvalid,
		},
		{
			name: "missing subject",
			config: map[string]any{
				"smtp_host": "mail.example.com",
				"to":        "ops@example.com",
			},
			wantErr: ErrEmailSubjectInvalid,
		},
		{
			name: "no recipients",
			config: map[string]any{
				"smtp_host": "mail.example.com",
				"to":        " , ",
				"subject":   "report ready",
			},
			wantErr: ErrEmailRecipientsInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewAction(tt.config)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestNewAction_RecipientList(t *testing.T) {
	t.Parallel()

	action, err := NewAction(map[string]any{
		"smtp_host": "mail.example.com",
		"to":        []any{"a@example.com", "b@example.com"},
		"subject":   "report ready",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, action.To)
}

func TestAction_Execute(t *testing.T) {
	t.Parallel()

	action, err := NewAction(map[string]any{
		"smtp_host": "mail.example.com",
		"smtp_port": float64(2525),
		"from":      "noreply@example.com",
		"to":        "ops@example.com",
		"subject":   "nightly report",
		"body":      "all green",
	})
	require.NoError(t, err)

	var gotAddr, gotFrom string

	var gotTo []string

	var gotMsg []byte

	action.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg

		return nil
	}

	result, err := action.Execute(context.Background(), models.ExecutionContext{}, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:2525", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: nightly report")
	assert.Contains(t, string(gotMsg), "all green")

	output, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "nightly report", output["subject"])
}
