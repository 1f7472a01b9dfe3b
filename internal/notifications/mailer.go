// Package notifications renders account emails and queues them for delivery.
package notifications

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	"github.com/hibiken/asynq"
	"github.com/tailingsiq/tailingsiq/internal/logging"
	"github.com/tailingsiq/tailingsiq/internal/queue"
)

// Template names. Each one has a "<name>:subject" and "<name>:body" block.
const (
	PasswordReset   = "password_reset"
	PasswordChanged = "password_changed"
	AccountCreated  = "account_created"
)

//go:embed templates/*.tmpl
var builtin embed.FS

// subset of queue.TaskQueue.
type queueService interface {
	Enqueue(taskType string, data interface{}) (*asynq.TaskInfo, error)
}

type Mailer struct {
	queue     queueService
	templates *template.Template
}

// NewMailer uses the templates compiled into the binary.
func NewMailer(q queueService) (*Mailer, error) {
	tmpl, err := LoadTemplates(builtin, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}
	return &Mailer{queue: q, templates: tmpl}, nil
}

// LoadTemplates parses every file in fsys matching pattern. Each file
// defines {{define "name:subject"}} and {{define "name:body"}} blocks.
func LoadTemplates(fsys fs.FS, pattern string) (*template.Template, error) {
	tmpl, err := template.New("").Option("missingkey=error").ParseFS(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates %s: %w", pattern, err)
	}
	return tmpl, nil
}

// Send renders the named template for one recipient and enqueues it.
func (m *Mailer) Send(ctx context.Context, to, name string, data map[string]any) error {
	subject, body, err := m.render(name, data)
	if err != nil {
		return err
	}

	if _, err := m.queue.Enqueue(queue.TypeEmailDelivery, queue.EmailDeliveryPayload{
		To:      to,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("failed to enqueue %s email: %w", name, err)
	}
	return nil
}

// Notify is Send for emails the caller does not wait on. Failures are
// logged, not returned.
func (m *Mailer) Notify(ctx context.Context, to, name string, data map[string]any) {
	if err := m.Send(ctx, to, name, data); err != nil {
		logging.Error("failed to send notification email", "template", name, "error", err)
	}
}

func (m *Mailer) render(name string, data map[string]any) (subject, body string, err error) {
	var subjectBuf bytes.Buffer
	if err = m.templates.ExecuteTemplate(&subjectBuf, name+":subject", data); err != nil {
		return "", "", fmt.Errorf("render subject for %q: %w", name, err)
	}

	var bodyBuf bytes.Buffer
	if err = m.templates.ExecuteTemplate(&bodyBuf, name+":body", data); err != nil {
		return "", "", fmt.Errorf("render body for %q: %w", name, err)
	}

	return strings.TrimSpace(subjectBuf.String()), bodyBuf.String(), nil
}
