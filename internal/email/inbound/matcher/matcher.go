package matcher

import (
	"context"
	"errors"
	"log"

	"github.com/pharmeast/pharmeast-backend/internal/email/inbound/parser"
	"github.com/pharmeast/pharmeast-backend/internal/models"
	"github.com/pharmeast/pharmeast-backend/internal/repository"
)

// Repository is the inquiry lookup surface the matcher needs.
type Repository interface {
	FindLatestByEmail(ctx context.Context, email string) (*models.Inquiry, error)
	FindLatestByEmailFold(ctx context.Context, email string) (*models.Inquiry, error)
	FindLatestByReplyMessageID(ctx context.Context, ids []string) (*models.Inquiry, error)
	FindLatestBySubject(ctx context.Context, subject string) (*models.Inquiry, error)
}

// Strategy is one correlation heuristic. A nil inquiry with a nil error means
// the strategy does not apply to this message.
type Strategy struct {
	Name  string
	Match func(ctx context.Context, msg *parser.ParsedMessage, repo Repository) (*models.Inquiry, error)
}

// Matcher runs an ordered cascade of strategies and returns the first hit.
// Within each strategy the repository picks the most recently created
// candidate, which favors the latest open conversation. The cascade is a
// heuristic: two unrelated threads from the same address can still collide.
type Matcher struct {
	strategies []Strategy
	logger     *log.Logger
}

// Option customizes the matcher.
type Option func(*Matcher)

// WithLogger overrides the diagnostics logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Matcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithStrategies replaces the default cascade, primarily for tests.
func WithStrategies(strategies ...Strategy) Option {
	return func(m *Matcher) {
		m.strategies = strategies
	}
}

// New returns a matcher with the default cascade: exact email,
// case-insensitive email, reply Message-ID intersection, stripped-subject
// substring.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		strategies: DefaultStrategies(),
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Result names the strategy that produced the match.
type Result struct {
	Inquiry  *models.Inquiry
	Strategy string
}

// Match returns at most one candidate inquiry, or nil when nothing matches.
// Strategy errors are logged and the cascade continues; a broken lookup never
// blocks the cheaper strategies that follow.
func (m *Matcher) Match(ctx context.Context, msg *parser.ParsedMessage, repo Repository) (*Result, error) {
	if msg == nil {
		return nil, errors.New("matcher: message required")
	}
	for _, s := range m.strategies {
		inq, err := s.Match(ctx, msg, repo)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				m.logf("matcher: strategy %s failed: %v", s.Name, err)
			}
			continue
		}
		if inq != nil {
			return &Result{Inquiry: inq, Strategy: s.Name}, nil
		}
	}
	return nil, nil
}

// DefaultStrategies returns the production cascade in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name: "email_exact",
			Match: func(ctx context.Context, msg *parser.ParsedMessage, repo Repository) (*models.Inquiry, error) {
				if msg.From == "" {
					return nil, nil
				}
				return repo.FindLatestByEmail(ctx, msg.From)
			},
		},
		{
			// Stored addresses should already be lowercase; this covers
			// rows written before that was enforced.
			Name: "email_fold",
			Match: func(ctx context.Context, msg *parser.ParsedMessage, repo Repository) (*models.Inquiry, error) {
				if msg.From == "" {
					return nil, nil
				}
				return repo.FindLatestByEmailFold(ctx, msg.From)
			},
		},
		{
			Name: "message_id",
			Match: func(ctx context.Context, msg *parser.ParsedMessage, repo Repository) (*models.Inquiry, error) {
				ids := msg.ReferenceIDs()
				if len(ids) == 0 {
					return nil, nil
				}
				return repo.FindLatestByReplyMessageID(ctx, ids)
			},
		},
		{
			Name: "subject",
			Match: func(ctx context.Context, msg *parser.ParsedMessage, repo Repository) (*models.Inquiry, error) {
				stripped := parser.StripSubjectPrefixes(msg.Subject)
				if stripped == "" {
					return nil, nil
				}
				return repo.FindLatestBySubject(ctx, stripped)
			},
		},
	}
}

func (m *Matcher) logf(format string, args ...any) {
	if m == nil || m.logger == nil {
		return
	}
	m.logger.Printf(format, args...)
}
