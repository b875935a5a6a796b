package email

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"

	"github.com/pharmeast/pharmeast-backend/internal/config"
)

// Message is one outbound email.
type Message struct {
	To          []string
	Subject     string
	Body        string
	ContentType string
}

// SendOptions tweak a templated send. HTMLOverride replaces the rendered
// template body entirely; the notifier uses it for inbound-reply summaries.
type SendOptions struct {
	Subject      string
	HTMLOverride string
}

// Service sends transactional email over SMTP with pongo2-templated bodies.
type Service struct {
	cfg      config.EmailConfig
	sendMail func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
	dialTLS  func(addr string, tlsCfg *tls.Config) (*smtp.Client, error)
	cache    map[string]*pongo2.Template
}

// Option customizes the service.
type Option func(*Service)

// WithSendFunc overrides the plain SMTP transport, primarily for tests.
func WithSendFunc(fn func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error) Option {
	return func(s *Service) {
		if fn != nil {
			s.sendMail = fn
		}
	}
}

// NewService builds the email service from configuration.
func NewService(cfg config.EmailConfig, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		sendMail: smtp.SendMail,
		cache:    make(map[string]*pongo2.Template),
	}
	s.dialTLS = func(addr string, tlsCfg *tls.Config) (*smtp.Client, error) {
		conn, err := tls.Dial("tcp", addr, tlsCfg)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn, tlsCfg.ServerName)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether outbound email is configured.
func (s *Service) Enabled() bool {
	return s.cfg.Enabled && s.cfg.SMTP.Host != ""
}

// From returns the configured sender address.
func (s *Service) From() string {
	return s.cfg.From
}

// Send delivers one message. TLS and plain submission share the header
// assembly; only the transport differs.
func (s *Service) Send(msg *Message) error {
	if !s.Enabled() {
		return errors.New("email: service disabled")
	}
	if len(msg.To) == 0 {
		return errors.New("email: no recipients")
	}
	if msg.ContentType == "" {
		msg.ContentType = "text/plain"
	}

	from := s.cfg.From
	fromHeader := from
	if s.cfg.FromName != "" {
		fromHeader = fmt.Sprintf("%s <%s>", s.cfg.FromName, from)
	}

	var payload bytes.Buffer
	payload.WriteString(fmt.Sprintf("From: %s\r\n", fromHeader))
	payload.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	payload.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	payload.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	payload.WriteString("MIME-Version: 1.0\r\n")
	payload.WriteString(fmt.Sprintf("Content-Type: %s; charset=UTF-8\r\n", msg.ContentType))
	payload.WriteString("\r\n")
	payload.WriteString(msg.Body)

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTP.Host, s.cfg.SMTP.Port)
	var auth smtp.Auth
	if s.cfg.SMTP.User != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTP.User, s.cfg.SMTP.Password, s.cfg.SMTP.Host)
	}

	if s.cfg.SMTP.TLS {
		return s.sendTLS(addr, auth, from, msg.To, payload.Bytes())
	}
	return s.sendMail(addr, auth, from, msg.To, payload.Bytes())
}

func (s *Service) sendTLS(addr string, auth smtp.Auth, from string, to []string, payload []byte) error {
	client, err := s.dialTLS(addr, &tls.Config{ServerName: s.cfg.SMTP.Host})
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data transfer: %w", err)
	}
	if _, err := writer.Write(payload); err != nil {
		return fmt.Errorf("failed to write email data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close data transfer: %w", err)
	}
	return client.Quit()
}

// SendTemplate renders the named template and sends the result as HTML.
// Data is exposed to the template directly; opts may override subject or the
// whole body.
func (s *Service) SendTemplate(to []string, name string, data map[string]any, opts *SendOptions) error {
	subject, _ := data["subject"].(string)
	body := ""
	if opts != nil && opts.HTMLOverride != "" {
		body = opts.HTMLOverride
	} else {
		rendered, err := s.Render(name, data)
		if err != nil {
			return err
		}
		body = rendered
	}
	if opts != nil && opts.Subject != "" {
		subject = opts.Subject
	}
	return s.Send(&Message{
		To:          to,
		Subject:     subject,
		Body:        body,
		ContentType: "text/html",
	})
}

// Render produces the HTML for one template. Templates live on disk under
// the configured path; every shipped template also has a compiled-in default
// so a bare deployment still sends mail.
func (s *Service) Render(name string, data map[string]any) (string, error) {
	tpl, err := s.template(name)
	if err != nil {
		return "", err
	}
	out, err := tpl.Execute(pongo2.Context(data))
	if err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return out, nil
}

func (s *Service) template(name string) (*pongo2.Template, error) {
	if tpl, ok := s.cache[name]; ok {
		return tpl, nil
	}
	if s.cfg.Templates.Path != "" {
		path := filepath.Join(s.cfg.Templates.Path, name+".html")
		if _, err := os.Stat(path); err == nil {
			tpl, err := pongo2.FromFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
			}
			s.cache[name] = tpl
			return tpl, nil
		}
	}
	src, ok := builtinTemplates[name]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", name)
	}
	tpl, err := pongo2.FromString(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse builtin template %s: %w", name, err)
	}
	s.cache[name] = tpl
	return tpl, nil
}

var builtinTemplates = map[string]string{
	"contact": `<html><body>
<h2>{{ heading|default:"New contact message" }}</h2>
<p><strong>From:</strong> {{ sender }}</p>
<p><strong>Subject:</strong> {{ subject }}</p>
<div style="border-left:3px solid #ccc;padding-left:12px;white-space:pre-wrap">{{ body }}</div>
<p style="color:#888;font-size:12px">Pharmeast back office</p>
</body></html>`,

	"reply": `<html><body>
<p>Dear {{ name|default:"Customer" }},</p>
<div style="white-space:pre-wrap">{{ body }}</div>
<p>Best regards,<br>{{ from_name|default:"Pharmeast Team" }}</p>
</body></html>`,

	"campaign": `<html><body>
{{ body|safe }}
<hr>
<p style="color:#888;font-size:12px">
You receive this because you subscribed to the Pharmeast newsletter.
<a href="{{ unsubscribe_url }}">Unsubscribe</a>
</p>
</body></html>`,
}
