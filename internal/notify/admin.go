package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"github.com/wolfman30/agency-leads/internal/leads"
	"github.com/wolfman30/agency-leads/internal/scoring"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

// adminHTML is the operator email. Every interpolated value goes through
// html/template's contextual escaping.
var adminHTML = template.Must(template.New("admin").Parse(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #111827;">New {{.Category}} lead: {{.Name}}</h2>
<p>Score <strong>{{.Score}}</strong> / 100, sequence <strong>{{.Sequence}}</strong></p>
<table style="border-collapse: collapse; margin: 20px 0;">
{{- range .Rows}}
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>{{.Label}}:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">{{.Value}}</td></tr>
{{- end}}
</table>
<h3>Message</h3>
<p style="white-space: pre-wrap; background: #f9fafb; padding: 12px; border-radius: 8px;">{{.Message}}</p>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">IP {{.Meta.IPAddress}} · {{.Meta.UserAgent}}{{if .Meta.RefererURL}} · from {{.Meta.RefererURL}}{{end}}</p>
</div>`))

var adminText = texttemplate.Must(texttemplate.New("admin-text").Parse(`New {{.Category}} lead (score {{.Score}}, sequence {{.Sequence}})
{{range .Rows}}
{{.Label}}: {{.Value}}{{end}}

Message:
{{.Message}}

IP: {{.Meta.IPAddress}}
User agent: {{.Meta.UserAgent}}
Referer: {{.Meta.RefererURL}}
`))

type adminRow struct {
	Label string
	Value string
}

type adminView struct {
	Name     string
	Score    int
	Category scoring.Category
	Sequence scoring.Sequence
	Rows     []adminRow
	Message  string
	Meta     leads.RequestMeta
}

// AdminEmail is the rendered operator notification.
type AdminEmail struct {
	Subject string
	HTML    string
	Text    string
}

// AdminNotification renders the operator email for a scored submission.
func AdminNotification(sub leads.Submission, result scoring.Result, meta leads.RequestMeta) (AdminEmail, error) {
	view := adminView{
		Name:     sub.FullName(),
		Score:    result.Score,
		Category: result.Category,
		Sequence: result.Sequence,
		Message:  sub.Message,
		Meta:     meta,
	}
	add := func(label, value string) {
		if value != "" {
			view.Rows = append(view.Rows, adminRow{Label: label, Value: value})
		}
	}
	add("Name", sub.FullName())
	add("Email", sub.Email)
	add("Phone", sub.Phone)
	add("Company", sub.Company)
	add("Service", sub.Service)
	add("Budget", sub.Budget)
	add("Timeline", sub.Timeline)

	var html, text bytes.Buffer
	if err := adminHTML.Execute(&html, view); err != nil {
		return AdminEmail{}, fmt.Errorf("notify: render admin html: %w", err)
	}
	if err := adminText.Execute(&text, view); err != nil {
		return AdminEmail{}, fmt.Errorf("notify: render admin text: %w", err)
	}

	subject := fmt.Sprintf("New %s lead: %s", result.Category, oneLine(sub.FullName()))
	if sub.Company != "" {
		subject += " (" + oneLine(sub.Company) + ")"
	}
	return AdminEmail{Subject: subject, HTML: html.String(), Text: text.String()}, nil
}

// oneLine keeps user text from injecting extra header lines into a subject.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// AdminNotifier delivers new-lead emails to the operator inboxes.
type AdminNotifier struct {
	email      EmailSender
	recipients []string
	logger     *logging.Logger
}

// NewAdminNotifier returns nil when there is no sender or recipient, which
// callers treat as email-not-configured.
func NewAdminNotifier(email EmailSender, recipients []string, logger *logging.Logger) *AdminNotifier {
	if email == nil || len(recipients) == 0 {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminNotifier{
		email:      email,
		recipients: append([]string(nil), recipients...),
		logger:     logger,
	}
}

// NotifyNewLead sends the operator email to every recipient. It succeeds when
// at least one inbox accepted the message; individual failures are logged.
func (n *AdminNotifier) NotifyNewLead(ctx context.Context, sub leads.Submission, result scoring.Result, meta leads.RequestMeta) error {
	if n == nil {
		return fmt.Errorf("notify: admin email: %w", ErrNotConfigured)
	}
	rendered, err := AdminNotification(sub, result, meta)
	if err != nil {
		return err
	}

	var errs []error
	delivered := 0
	for _, recipient := range n.recipients {
		msg := EmailMessage{
			To:      recipient,
			Subject: rendered.Subject,
			Body:    rendered.Text,
			HTML:    rendered.HTML,
			ReplyTo: sub.Email,
		}
		id, err := n.email.Send(ctx, msg)
		if err != nil {
			n.logger.Error("notify: failed to send admin email", "error", err, "to", recipient, "lead_email", sub.Email)
			errs = append(errs, err)
			continue
		}
		delivered++
		n.logger.Info("notify: admin email sent", "to", recipient, "lead_email", sub.Email, "message_id", id)
	}
	if delivered == 0 {
		return fmt.Errorf("notify: admin email failed for all %d recipient(s): %w", len(n.recipients), errors.Join(errs...))
	}
	return nil
}
