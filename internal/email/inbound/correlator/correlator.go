package correlator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/pharmeast/pharmeast-backend/internal/email/inbound/matcher"
	"github.com/pharmeast/pharmeast-backend/internal/email/inbound/parser"
	"github.com/pharmeast/pharmeast-backend/internal/metrics"
	"github.com/pharmeast/pharmeast-backend/internal/models"
	"github.com/pharmeast/pharmeast-backend/internal/repository"
)

// ErrParse marks messages the parser rejected. Callers can treat it as a bad
// request rather than an internal failure.
var ErrParse = errors.New("message could not be parsed")

// Outcome describes what happened to one inbound message.
type Outcome string

const (
	OutcomeAppended    Outcome = "appended"
	OutcomeDeduped     Outcome = "deduped"
	OutcomeDropped     Outcome = "dropped"
	OutcomeSkippedSelf Outcome = "skipped_self"
)

// Result is the per-message report of a pipeline run.
type Result struct {
	Outcome  Outcome
	Inquiry  *models.Inquiry
	Strategy string
}

// Repository is the persistence surface the correlator needs: the matcher
// lookups plus the append/dedup operations.
type Repository interface {
	matcher.Repository
	HasReplyMessageID(ctx context.Context, inquiryID int64, messageID string) (bool, error)
	AppendReply(ctx context.Context, inquiryID int64, reply *models.Reply) error
}

// Notifier receives successful appends. Implementations must be best-effort;
// the correlator does not inspect their outcome.
type Notifier interface {
	NotifyNewReply(ctx context.Context, inq *models.Inquiry, sender, subject, body string)
}

// Correlator runs the Parser -> Matcher -> Appender -> Notifier pipeline for
// one raw message at a time.
//
// The processed-id set is an in-memory optimization over the persisted
// Message-ID dedup check. It starts empty on every boot; after a restart a
// still-unseen message can therefore produce a second staff notification,
// but never a second thread entry.
type Correlator struct {
	parser      *parser.Parser
	matcher     *matcher.Matcher
	repo        Repository
	notifier    Notifier
	selfAddress string
	sanitizer   *bluemonday.Policy
	logger      *log.Logger

	mu        sync.Mutex
	processed map[string]struct{}
}

// Option customizes the correlator.
type Option func(*Correlator)

// WithLogger overrides the diagnostics logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Correlator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSelfAddress sets the mailbox's own address. Messages from it are
// treated as already processed so the staff's outgoing mail is never
// threaded back onto the inquiry.
func WithSelfAddress(addr string) Option {
	return func(c *Correlator) {
		c.selfAddress = strings.ToLower(strings.TrimSpace(addr))
	}
}

// WithNotifier wires the new-reply fan-out.
func WithNotifier(n Notifier) Option {
	return func(c *Correlator) {
		c.notifier = n
	}
}

// WithMatcher replaces the default matching cascade.
func WithMatcher(m *matcher.Matcher) Option {
	return func(c *Correlator) {
		if m != nil {
			c.matcher = m
		}
	}
}

// New builds a correlator over the given repository.
func New(repo Repository, opts ...Option) *Correlator {
	c := &Correlator{
		parser:    parser.New(),
		matcher:   matcher.New(),
		repo:      repo,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    log.Default(),
		processed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process runs one raw MIME message through the pipeline.
// Parse and persistence failures return an error; an unmatched or duplicate
// message is a normal outcome, not an error.
func (c *Correlator) Process(ctx context.Context, raw []byte) (Result, error) {
	metrics.InboundProcessed.Inc()

	msg, err := c.parser.Parse(raw)
	if err != nil {
		metrics.InboundErrors.Inc()
		return Result{}, fmt.Errorf("correlator: %w: %v", ErrParse, err)
	}

	if c.selfAddress != "" && msg.From == c.selfAddress {
		c.logf("correlator: skipping message from own address %s", msg.From)
		return Result{Outcome: OutcomeSkippedSelf}, nil
	}

	if msg.MessageID != "" && c.alreadyProcessed(msg.MessageID) {
		metrics.InboundDeduped.Inc()
		return Result{Outcome: OutcomeDeduped}, nil
	}

	match, err := c.matcher.Match(ctx, msg, c.repo)
	if err != nil {
		metrics.InboundErrors.Inc()
		return Result{}, fmt.Errorf("correlator: %w", err)
	}
	if match == nil {
		c.logf("correlator: no inquiry matches %s (subject %q), dropping", msg.From, msg.Subject)
		metrics.InboundDropped.Inc()
		return Result{Outcome: OutcomeDropped}, nil
	}
	inq := match.Inquiry

	if msg.MessageID != "" {
		exists, derr := c.repo.HasReplyMessageID(ctx, inq.ID, msg.MessageID)
		if derr != nil {
			metrics.InboundErrors.Inc()
			return Result{}, fmt.Errorf("correlator: %w", derr)
		}
		if exists {
			c.markProcessed(msg.MessageID)
			metrics.InboundDeduped.Inc()
			return Result{Outcome: OutcomeDeduped, Inquiry: inq, Strategy: match.Strategy}, nil
		}
	}

	body := msg.Body
	if msg.BodyIsHTML {
		body = c.sanitizer.Sanitize(body)
	}

	reply := &models.Reply{
		Subject:  msg.Subject,
		Message:  body,
		FromName: msg.FromName,
		Inbound:  true,
	}
	if msg.MessageID != "" {
		id := msg.MessageID
		reply.MessageID = &id
	}

	if err := c.repo.AppendReply(ctx, inq.ID, reply); err != nil {
		if errors.Is(err, repository.ErrReplyExists) {
			c.markProcessed(msg.MessageID)
			metrics.InboundDeduped.Inc()
			return Result{Outcome: OutcomeDeduped, Inquiry: inq, Strategy: match.Strategy}, nil
		}
		metrics.InboundErrors.Inc()
		return Result{}, fmt.Errorf("correlator: append to inquiry %d: %w", inq.ID, err)
	}

	c.markProcessed(msg.MessageID)
	metrics.InboundMatched.WithLabelValues(match.Strategy).Inc()
	c.logf("correlator: appended reply from %s to inquiry %d via %s", msg.From, inq.ID, match.Strategy)

	if c.notifier != nil {
		c.notifier.NotifyNewReply(ctx, inq, msg.From, msg.Subject, body)
	}

	return Result{Outcome: OutcomeAppended, Inquiry: inq, Strategy: match.Strategy}, nil
}

func (c *Correlator) alreadyProcessed(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.processed[messageID]
	return ok
}

func (c *Correlator) markProcessed(messageID string) {
	if messageID == "" {
		return
	}
	c.mu.Lock()
	c.processed[messageID] = struct{}{}
	c.mu.Unlock()
}

func (c *Correlator) logf(format string, args ...any) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
