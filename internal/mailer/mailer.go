// Package mailer renders email templates and hands the result to a
// transport (AWS SES in production, the log in development).
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/techgrid/site-backend/internal/domain"
)

// Message is a fully rendered email.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
	// Tags are attached to the message for delivery analytics.
	Tags map[string]string
}

// Transport delivers a rendered message.
type Transport interface {
	Deliver(ctx context.Context, msg *Message) error
}

// Sender identity for outgoing mail.
type Sender struct {
	FromName  string
	FromEmail string
	ReplyTo   string
}

func (s Sender) from() string {
	if s.FromName == "" {
		return s.FromEmail
	}
	return fmt.Sprintf("%s <%s>", s.FromName, s.FromEmail)
}

// Mailer renders templates and delivers them.
type Mailer struct {
	transport Transport
	renderer  *Renderer
	sender    Sender
	globals   map[string]interface{}
}

// New creates a Mailer. Globals are merged into every render (e.g. site name).
func New(transport Transport, renderer *Renderer, sender Sender, globals map[string]interface{}) *Mailer {
	if globals == nil {
		globals = map[string]interface{}{}
	}
	return &Mailer{transport: transport, renderer: renderer, sender: sender, globals: globals}
}

// Renderer exposes the template renderer for syntax checks.
func (m *Mailer) Renderer() *Renderer { return m.renderer }

// Send renders the named template for one recipient and delivers it.
func (m *Mailer) Send(ctx context.Context, template, to string, vars map[string]interface{}) error {
	out, err := m.renderer.Render(template, m.bind(vars))
	if err != nil {
		return err
	}
	return m.deliver(ctx, to, out, map[string]string{"template": template})
}

// SendContent renders ad-hoc subject/body sources and delivers them.
func (m *Mailer) SendContent(ctx context.Context, to string, t Template, vars map[string]interface{}, tags map[string]string) error {
	out, err := m.renderer.RenderTemplate(t, m.bind(vars))
	if err != nil {
		return err
	}
	return m.deliver(ctx, to, out, tags)
}

func (m *Mailer) deliver(ctx context.Context, to string, out *Rendered, tags map[string]string) error {
	to = domain.NormalizeEmail(to)
	if to == "" || !strings.Contains(to, "@") {
		return fmt.Errorf("invalid recipient %q", to)
	}
	return m.transport.Deliver(ctx, &Message{
		From:    m.sender.from(),
		To:      to,
		ReplyTo: m.sender.ReplyTo,
		Subject: out.Subject,
		HTML:    out.HTML,
		Text:    out.Text,
		Tags:    tags,
	})
}

func (m *Mailer) bind(vars map[string]interface{}) map[string]interface{} {
	b := make(map[string]interface{}, len(m.globals)+len(vars))
	for k, v := range m.globals {
		b[k] = v
	}
	for k, v := range vars {
		b[k] = v
	}
	return b
}
