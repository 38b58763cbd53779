// Package email provides an action that sends a plain-text email through an
// SMTP relay.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/orchonhq/orchon/pkg/models"
)

var (
	// ErrEmailRecipientsInvalid is returned when no recipient is configured.
	ErrEmailRecipientsInvalid = errors.New("email action requires at least one recipient")
	// ErrEmailSubjectInvalid is returned when the subject is missing.
	ErrEmailSubjectInvalid = errors.New("email action requires a subject")
	// ErrEmailHostInvalid is returned when the SMTP host is missing.
	ErrEmailHostInvalid = errors.New("email action requires an SMTP host")
)

// sendFunc matches smtp.SendMail and is replaceable in tests.
type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Action sends an email via SMTP.
type Action struct {
	Host     string
	Port     int
	From     string
	To       []string
	Subject  string
	Body     string
	Username string
	Password string

	send sendFunc
}

// NewAction creates an email action from configuration.
func NewAction(config map[string]any) (*Action, error) {
	host, _ := config["smtp_host"].(string)
	if host == "" {
		return nil, ErrEmailHostInvalid
	}

	subject, _ := config["subject"].(string)
	if subject == "" {
		return nil, ErrEmailSubjectInvalid
	}

	to := parseRecipients(config["to"])
	if len(to) == 0 {
		return nil, ErrEmailRecipientsInvalid
	}

	port := 587
	if p, ok := config["smtp_port"].(float64); ok && p > 0 {
		port = int(p)
	}

	from, _ := config["from"].(string)
	if from == "" {
		from = "orchon@localhost"
	}

	body, _ := config["body"].(string)
	username, _ := config["username"].(string)
	password, _ := config["password"].(string)

	return &Action{
		Host:     host,
		Port:     port,
		From:     from,
		To:       to,
		Subject:  subject,
		Body:     body,
		Username: username,
		Password: password,
		send:     smtp.SendMail,
	}, nil
}

func parseRecipients(value any) []string {
	switch typed := value.(type) {
	case string:
		var out []string

		for _, addr := range strings.Split(typed, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				out = append(out, addr)
			}
		}

		return out
	case []any:
		var out []string

		for _, item := range typed {
			if addr, ok := item.(string); ok && addr != "" {
				out = append(out, addr)
			}
		}

		return out
	default:
		return nil
	}
}

// Execute sends the email and returns the recipient list on success.
func (a *Action) Execute(ctx context.Context, execCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "email_action", "recipients", len(a.To))
	logger.InfoContext(ctx, "Sending email", "subject", a.Subject)

	var auth smtp.Auth
	if a.Username != "" {
		auth = smtp.PlainAuth("", a.Username, a.Password, a.Host)
	}

	msg := a.buildMessage()

	addr := fmt.Sprintf("%s:%d", a.Host, a.Port)

	err := a.send(addr, auth, a.From, a.To, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	return map[string]any{"recipients": a.To, "subject": a.Subject}, nil
}

func (a *Action) buildMessage() []byte {
	var builder strings.Builder

	builder.WriteString("From: " + a.From + "\r\n")
	builder.WriteString("To: " + strings.Join(a.To, ", ") + "\r\n")
	builder.WriteString("Subject: " + a.Subject + "\r\n")
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(a.Body)

	return []byte(builder.String())
}
