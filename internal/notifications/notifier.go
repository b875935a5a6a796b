package notifications

import (
	"context"
	"fmt"
	"html"
	"log"

	"github.com/pharmeast/pharmeast-backend/internal/email"
	"github.com/pharmeast/pharmeast-backend/internal/events"
	"github.com/pharmeast/pharmeast-backend/internal/models"
)

const (
	maxSubjectChars = 120
	maxBodyChars    = 200
)

type staffLister interface {
	ListActive(ctx context.Context) ([]models.Staff, error)
}

type templateSender interface {
	Enabled() bool
	SendTemplate(to []string, name string, data map[string]any, opts *email.SendOptions) error
}

// Notifier fans new-reply events out to the dashboard stream and to staff
// inboxes. Every delivery is best-effort: failures are logged and never
// escalate into the inbound pipeline.
type Notifier struct {
	hub    *events.Hub
	staff  staffLister
	sender templateSender
	logger *log.Logger
}

// Option customizes the notifier.
type Option func(*Notifier)

// WithLogger overrides the diagnostics logger.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New wires the notifier. hub and sender may be nil, in which case the
// corresponding channel is skipped.
func New(hub *events.Hub, staff staffLister, sender templateSender, opts ...Option) *Notifier {
	n := &Notifier{
		hub:    hub,
		staff:  staff,
		sender: sender,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyNewReply signals a threaded inbound reply. The dashboard broadcast
// and the staff emails are independent; neither failure affects the other.
func (n *Notifier) NotifyNewReply(ctx context.Context, inq *models.Inquiry, sender, subject, body string) {
	if n == nil || inq == nil {
		return
	}
	if n.hub != nil {
		n.hub.BroadcastThreadUpdate(inq.ID, sender, subject, body)
	}
	n.emailStaff(ctx, inq, "New reply", sender, subject, body)
}

// NotifyNewInquiry signals a fresh contact-form thread to the dashboard and
// the staff inboxes.
func (n *Notifier) NotifyNewInquiry(ctx context.Context, inq *models.Inquiry) {
	if n == nil || inq == nil {
		return
	}
	if n.hub != nil {
		n.hub.BroadcastNewInquiry(inq.ID, inq.Email, inq.Subject, inq.Message)
	}
	n.emailStaff(ctx, inq, "New inquiry", inq.Email, inq.Subject, inq.Message)
}

func (n *Notifier) emailStaff(ctx context.Context, inq *models.Inquiry, heading, sender, subject, body string) {
	if n.sender == nil || !n.sender.Enabled() || n.staff == nil {
		return
	}
	staff, err := n.staff.ListActive(ctx)
	if err != nil {
		n.logf("notifier: staff lookup failed: %v", err)
		return
	}
	if len(staff) == 0 {
		return
	}

	shortSubject := truncate(subject, maxSubjectChars)
	summary := fmt.Sprintf(
		`<html><body><h3>%s on inquiry #%d</h3>
<p><strong>From:</strong> %s</p>
<p><strong>Subject:</strong> %s</p>
<blockquote>%s</blockquote>
</body></html>`,
		heading,
		inq.ID,
		html.EscapeString(sender),
		html.EscapeString(shortSubject),
		html.EscapeString(truncate(body, maxBodyChars)),
	)

	for _, member := range staff {
		err := n.sender.SendTemplate(
			[]string{member.Email},
			"contact",
			map[string]any{
				"sender":  sender,
				"subject": shortSubject,
				"body":    body,
			},
			&email.SendOptions{
				Subject:      fmt.Sprintf("%s: %s", heading, shortSubject),
				HTMLOverride: summary,
			},
		)
		if err != nil {
			n.logf("notifier: staff email to %s failed: %v", member.Email, err)
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func (n *Notifier) logf(format string, args ...any) {
	if n == nil || n.logger == nil {
		return
	}
	n.logger.Printf(format, args...)
}
