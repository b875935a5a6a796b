package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pharmeast/pharmeast-backend/internal/email/inbound/connector"
	"github.com/pharmeast/pharmeast-backend/internal/email/inbound/correlator"
)

type fetcher interface {
	Fetch(ctx context.Context, handler connector.Handler) error
}

type processor interface {
	Process(ctx context.Context, raw []byte) (correlator.Result, error)
}

// Poller drives the mailbox fetch cycle on a fixed interval. A cycle that
// fails is logged and the next one still runs; overlapping cycles are
// skipped rather than stacked.
type Poller struct {
	fetcher   fetcher
	processor processor
	interval  time.Duration
	cron      *cron.Cron
	logger    *log.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	rootCtx   context.Context
	cancel    context.CancelFunc
}

// Option customizes the poller.
type Option func(*Poller)

// WithLogger overrides the diagnostics logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// New wires a poller over the fetcher and pipeline.
func New(f fetcher, proc processor, opts ...Option) *Poller {
	p := &Poller{
		fetcher:   f,
		processor: proc,
		interval:  30 * time.Second,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.PrintfLogger(p.logger)),
	))
	return p
}

// Start begins polling until Stop is called or ctx is canceled.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.rootCtx, p.cancel = context.WithCancel(ctx)
		p.cron.Schedule(cron.Every(p.interval), cron.FuncJob(func() {
			if err := p.RunOnce(p.rootCtx); err != nil {
				p.logger.Printf("poller: cycle failed: %v", err)
			}
		}))
		p.cron.Start()
		p.logger.Printf("poller: started, interval %s", p.interval)
	})
}

// Stop halts scheduling and waits for a running cycle to finish.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		<-p.cron.Stop().Done()
	})
}

// RunOnce executes one fetch cycle. Per-message pipeline failures are handled
// inside the fetch; only mailbox-level failures surface here.
func (p *Poller) RunOnce(ctx context.Context) error {
	return p.fetcher.Fetch(ctx, func(ctx context.Context, raw []byte) error {
		_, err := p.processor.Process(ctx, raw)
		return err
	})
}
