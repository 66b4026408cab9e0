// Package notify sends office e-mail when a project is created.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Notifier tells the office about a created project.
type Notifier interface {
	ProjectCreated(ctx context.Context, c models.Contact) error
}

// Nop does nothing. Used when e-mail is not configured.
type Nop struct{}

func (Nop) ProjectCreated(context.Context, models.Contact) error { return nil }

// mailSender is the part of *sendgrid.Client the notifier uses.
type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Opts configures the SendGrid notifier.
type Opts struct {
	APIKey    string
	FromEmail string
	FromName  string
	ToEmail   string
	Sandbox   bool
}

// Option configures the SendGrid notifier.
type Option func(*Opts)

func WithAPIKey(key string) Option { return func(o *Opts) { o.APIKey = key } }

// WithFrom sets the sender address and display name.
func WithFrom(email, name string) Option {
	return func(o *Opts) { o.FromEmail, o.FromName = email, name }
}

func WithOfficeEmail(email string) Option { return func(o *Opts) { o.ToEmail = email } }

// WithSandbox turns on SendGrid sandbox mode; mail is validated but not delivered.
func WithSandbox(enabled bool) Option { return func(o *Opts) { o.Sandbox = enabled } }

// SendGridNotifier e-mails the office through SendGrid.
type SendGridNotifier struct {
	client mailSender
	opts   Opts
}

// NewSendGridNotifier builds a notifier. API key, sender and office address are required.
func NewSendGridNotifier(opts ...Option) (*SendGridNotifier, error) {
	cfg := Opts{FromName: "LeadPipe"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" || cfg.FromEmail == "" || cfg.ToEmail == "" {
		return nil, fmt.Errorf("sendgrid api key, from and office e-mail must be provided")
	}
	return &SendGridNotifier{client: sendgrid.NewSendClient(cfg.APIKey), opts: cfg}, nil
}

func (n *SendGridNotifier) ProjectCreated(ctx context.Context, c models.Contact) error {
	msg := n.message(c)
	resp, err := n.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("send project e-mail: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send project e-mail: sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}
	slog.Info("SendGridNotifier.ProjectCreated: office notified", "contact_id", c.ID, "project_id", c.ExternalProjectID)
	return nil
}

func (n *SendGridNotifier) message(c models.Contact) *mail.SGMailV3 {
	subject := fmt.Sprintf("New project created: %s", c.FullName)

	insurance := "No"
	if c.HasInsurance != nil && *c.HasInsurance {
		insurance = "Yes"
		if c.InsuranceCompany != "" {
			insurance += " (" + c.InsuranceCompany + ")"
		}
	}
	property := c.PropertyType
	if c.ResidentialSubtype != "" {
		property += " - " + c.ResidentialSubtype
	}
	rows := [][2]string{
		{"Customer", c.FullName},
		{"Project ID", c.ExternalProjectID},
		{"Project type", c.ProjectType},
		{"Property", property},
		{"Address", c.Address},
		{"Insurance", insurance},
		{"Referral source", c.ReferralSource},
	}

	var plain, htmlBody strings.Builder
	htmlBody.WriteString("<ul>")
	for _, r := range rows {
		fmt.Fprintf(&plain, "%s: %s\n", r[0], r[1])
		fmt.Fprintf(&htmlBody, "<li><strong>%s:</strong> %s</li>", r[0], html.EscapeString(r[1]))
	}
	htmlBody.WriteString("</ul>")

	from := mail.NewEmail(n.opts.FromName, n.opts.FromEmail)
	to := mail.NewEmail("Office", n.opts.ToEmail)
	msg := mail.NewSingleEmail(from, subject, to, plain.String(), htmlBody.String())
	if n.opts.Sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		msg.MailSettings = ms
	}
	return msg
}
