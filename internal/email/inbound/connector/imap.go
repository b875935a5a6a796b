package connector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/pharmeast/pharmeast-backend/internal/config"
)

// Handler receives one raw message. A non-nil error is logged and the fetch
// moves on; one poisoned message must not stall the mailbox.
type Handler func(ctx context.Context, raw []byte) error

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
	Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

// Fetcher drains the support mailbox into the inbound pipeline.
//
// Each cycle runs two passes: unseen messages, which are flagged \Seen after
// handling, and everything received inside the lookback window, which is
// re-fetched without flag changes. The second pass catches messages another
// client already marked seen; Message-ID dedup downstream keeps the overlap
// harmless.
type Fetcher struct {
	cfg         config.IMAPConfig
	lookback    time.Duration
	dialTimeout time.Duration
	now         func() time.Time
	logger      *log.Logger
	newClient   func() (imapClient, error)
}

// Option customizes fetcher behavior.
type Option func(*Fetcher)

// NewFetcher returns an IMAP connector for the given mailbox.
func NewFetcher(cfg config.IMAPConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:         cfg,
		lookback:    2 * time.Hour,
		dialTimeout: 5 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      log.Default(),
	}
	f.newClient = f.defaultClientFactory
	for _, opt := range opts {
		opt(f)
	}
	if f.newClient == nil {
		f.newClient = f.defaultClientFactory
	}
	return f
}

// WithLogger overrides the logger used for connector diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithLookback overrides the recent-message window of the second pass.
func WithLookback(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.lookback = d
		}
	}
}

// WithDialTimeout overrides the socket dial timeout.
func WithDialTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.dialTimeout = timeout
		}
	}
}

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

func withClientFactory(factory func() (imapClient, error)) Option {
	return func(f *Fetcher) {
		f.newClient = factory
	}
}

// Fetch runs one poll cycle against the mailbox.
func (f *Fetcher) Fetch(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("imap fetcher requires a handler")
	}
	if f.cfg.Host == "" || f.cfg.User == "" {
		return errors.New("imap mailbox not configured")
	}

	client, err := f.newClient()
	if err != nil {
		return fmt.Errorf("imap connect: %w", err)
	}
	defer f.safeClose(client)

	if err := client.Login(f.cfg.User, f.cfg.Password).Wait(); err != nil {
		return fmt.Errorf("imap auth: %w", err)
	}

	mailbox := f.cfg.Folder
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("imap select %s: %w", mailbox, err)
	}

	handled := make(map[imap.UID]struct{})

	unseen := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	unseenUIDs, err := f.handleMatching(ctx, client, unseen, handler, handled)
	if err != nil {
		return err
	}
	if len(unseenUIDs) > 0 {
		store := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Flags: []imap.Flag{imap.FlagSeen}}
		if err := client.Store(imap.UIDSetNum(unseenUIDs...), store, nil).Close(); err != nil {
			return fmt.Errorf("imap store seen: %w", err)
		}
	}

	recent := &imap.SearchCriteria{Since: f.now().Add(-f.lookback)}
	if _, err := f.handleMatching(ctx, client, recent, handler, handled); err != nil {
		return err
	}

	if err := client.Logout().Wait(); err != nil {
		return fmt.Errorf("imap logout: %w", err)
	}
	return nil
}

// handleMatching searches, fetches, and hands off every message the criteria
// selects, skipping UIDs already handled in this cycle. It returns the UIDs it
// passed to the handler.
func (f *Fetcher) handleMatching(ctx context.Context, client imapClient, criteria *imap.SearchCriteria, handler Handler, handled map[imap.UID]struct{}) ([]imap.UID, error) {
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	uids := searchData.AllUIDs()
	var pending []imap.UID
	for _, uid := range uids {
		if _, ok := handled[uid]; !ok {
			pending = append(pending, uid)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	buffers, err := client.Fetch(imap.UIDSetNum(pending...), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	var done []imap.UID
	for _, buf := range buffers {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		body := buf.FindBodySection(&imap.FetchItemBodySection{})
		if body == nil {
			continue
		}
		raw := append([]byte(nil), body...)
		if err := handler(ctx, raw); err != nil {
			f.logf("imap: message %d failed: %v", buf.UID, err)
		}
		handled[buf.UID] = struct{}{}
		done = append(done, buf.UID)
	}
	return done, nil
}

func (f *Fetcher) safeClose(client imapClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		f.logf("imap close error: %v", err)
	}
}

func (f *Fetcher) defaultClientFactory() (imapClient, error) {
	port := f.cfg.Port
	if port == 0 {
		if f.cfg.Secure {
			port = 993
		} else {
			port = 143
		}
	}
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: f.dialTimeout}}
	addr := fmt.Sprintf("%s:%d", f.cfg.Host, port)
	var client *imapclient.Client
	var err error
	if f.cfg.Secure {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, err
	}
	return &imapClientWrapper{Client: client}, nil
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}
func (w *imapClientWrapper) Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter {
	return w.Client.Store(numSet, store, options)
}

func (f *Fetcher) logf(format string, args ...any) {
	if f == nil || f.logger == nil {
		return
	}
	f.logger.Printf(format, args...)
}
