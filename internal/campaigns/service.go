package campaigns

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/pharmeast/pharmeast-backend/internal/email"
	"github.com/pharmeast/pharmeast-backend/internal/metrics"
	"github.com/pharmeast/pharmeast-backend/internal/models"
	"github.com/pharmeast/pharmeast-backend/internal/repository"
)

// ErrAlreadySent is returned when a send is requested for a campaign that is
// not a draft anymore.
var ErrAlreadySent = errors.New("campaign is not a draft")

type campaignStore interface {
	Create(ctx context.Context, c *models.Campaign) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	MarkSending(ctx context.Context, id int64) error
	Finish(ctx context.Context, id int64, sent, failed int, status string) error
}

type subscriberLister interface {
	ListActive(ctx context.Context) ([]models.Subscriber, error)
}

type templateSender interface {
	Enabled() bool
	SendTemplate(to []string, name string, data map[string]any, opts *email.SendOptions) error
}

// Service authors and dispatches newsletter campaigns.
type Service struct {
	store       campaignStore
	subscribers subscriberLister
	sender      templateSender
	baseURL     string
	markdown    goldmark.Markdown
	batchSize   int
	batchPause  time.Duration
	logger      *log.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithLogger overrides the diagnostics logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBatch throttles dispatch: after every size recipients the run pauses
// for the given duration. A size of zero disables throttling.
func WithBatch(size int, pause time.Duration) Option {
	return func(s *Service) {
		s.batchSize = size
		s.batchPause = pause
	}
}

// NewService wires the campaign service. baseURL is the public site root used
// to build unsubscribe links.
func NewService(store campaignStore, subscribers subscriberLister, sender templateSender, baseURL string, opts ...Option) *Service {
	s := &Service{
		store:       store,
		subscribers: subscribers,
		sender:      sender,
		baseURL:     strings.TrimRight(baseURL, "/"),
		markdown:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Render converts campaign Markdown to HTML.
func (s *Service) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("campaigns: render markdown: %w", err)
	}
	return buf.String(), nil
}

// Create renders and stores a new draft.
func (s *Service) Create(ctx context.Context, subject, bodyMarkdown string) (*models.Campaign, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("campaigns: subject required")
	}
	html, err := s.Render(bodyMarkdown)
	if err != nil {
		return nil, err
	}
	c := &models.Campaign{
		Subject:      subject,
		BodyMarkdown: bodyMarkdown,
		BodyHTML:     html,
		Status:       models.CampaignStatusDraft,
	}
	id, err := s.store.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}

// SendResult summarizes one dispatch run.
type SendResult struct {
	Sent   int
	Failed int
	Status string
}

// Send dispatches a draft to every active subscriber. Each recipient is
// independent; one bounce does not stop the run. The draft-only transition in
// the store makes concurrent sends of the same campaign a no-op.
func (s *Service) Send(ctx context.Context, id int64) (*SendResult, error) {
	if s.sender == nil || !s.sender.Enabled() {
		return nil, errors.New("campaigns: email sending is disabled")
	}

	campaign, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkSending(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAlreadySent
		}
		return nil, err
	}

	subs, err := s.subscribers.ListActive(ctx)
	if err != nil {
		ferr := s.store.Finish(ctx, id, 0, 0, models.CampaignStatusFailed)
		if ferr != nil {
			s.logger.Printf("campaigns: finish after subscriber error failed: %v", ferr)
		}
		return nil, err
	}

	var sent, failed int
	for i, sub := range subs {
		if ctx.Err() != nil {
			break
		}
		if s.batchSize > 0 && s.batchPause > 0 && i > 0 && i%s.batchSize == 0 {
			select {
			case <-time.After(s.batchPause):
			case <-ctx.Done():
			}
		}
		err := s.sender.SendTemplate(
			[]string{sub.Email},
			"campaign",
			map[string]any{
				"body":            campaign.BodyHTML,
				"unsubscribe_url": s.unsubscribeURL(sub.Token),
			},
			&email.SendOptions{Subject: campaign.Subject},
		)
		if err != nil {
			failed++
			metrics.CampaignEmails.WithLabelValues("failed").Inc()
			s.logger.Printf("campaigns: send to %s failed: %v", sub.Email, err)
			continue
		}
		sent++
		metrics.CampaignEmails.WithLabelValues("sent").Inc()
	}

	status := models.CampaignStatusSent
	if sent == 0 && failed > 0 {
		status = models.CampaignStatusFailed
	}
	if err := s.store.Finish(ctx, id, sent, failed, status); err != nil {
		return nil, err
	}
	return &SendResult{Sent: sent, Failed: failed, Status: status}, nil
}

func (s *Service) unsubscribeURL(token string) string {
	return fmt.Sprintf("%s/api/unsubscribe?token=%s", s.baseURL, token)
}
