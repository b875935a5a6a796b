package analytics

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pharmeast/pharmeast-backend/internal/models"
)

// counterTTL keeps daily counters around long enough for the dashboard's
// 90-day view, then lets Redis expire them.
const counterTTL = 120 * 24 * time.Hour

type activityRecorder interface {
	Record(ctx context.Context, ev *models.ActivityEvent) error
	CountSince(ctx context.Context, since time.Time) (map[string]int64, error)
}

// Service tracks site activity. The durable log lives in Postgres; Redis
// carries cheap per-day counters for the dashboard. Redis being down degrades
// the dashboard, never the tracking call.
type Service struct {
	activity activityRecorder
	redis    redis.Cmdable
	now      func() time.Time
	logger   *log.Logger
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

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the analytics service. redis may be nil, which disables
// the daily counters.
func NewService(activity activityRecorder, rdb redis.Cmdable, opts ...Option) *Service {
	s := &Service{
		activity: activity,
		redis:    rdb,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Track records one event.
func (s *Service) Track(ctx context.Context, kind, path string) error {
	if !models.ValidActivityKind(kind) {
		return fmt.Errorf("analytics: unknown activity kind %q", kind)
	}
	if err := s.activity.Record(ctx, &models.ActivityEvent{Kind: kind, Path: path}); err != nil {
		return err
	}
	s.bumpCounter(ctx, kind)
	return nil
}

func (s *Service) bumpCounter(ctx context.Context, kind string) {
	if s.redis == nil {
		return
	}
	key := s.counterKey(kind, s.now())
	pipe := s.redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Printf("analytics: counter bump failed: %v", err)
	}
}

// DailyCount is one day's tally for one kind.
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Summary is the admin dashboard payload.
type Summary struct {
	Totals map[string]int64        `json:"totals"`
	Daily  map[string][]DailyCount `json:"daily"`
}

// Summarize returns per-kind totals over the window plus daily counters when
// Redis is available.
func (s *Service) Summarize(ctx context.Context, days int) (*Summary, error) {
	if days <= 0 {
		days = 30
	}
	now := s.now()
	totals, err := s.activity.CountSince(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}

	summary := &Summary{Totals: totals, Daily: make(map[string][]DailyCount)}
	if s.redis == nil {
		return summary, nil
	}

	for _, kind := range models.ActivityKinds() {
		var series []DailyCount
		for i := days - 1; i >= 0; i-- {
			day := now.AddDate(0, 0, -i)
			val, err := s.redis.Get(ctx, s.counterKey(kind, day)).Result()
			if err != nil && err != redis.Nil {
				s.logger.Printf("analytics: counter read failed: %v", err)
				break
			}
			n, _ := strconv.ParseInt(val, 10, 64)
			series = append(series, DailyCount{Date: day.Format("2006-01-02"), Count: n})
		}
		summary.Daily[kind] = series
	}
	return summary, nil
}

func (s *Service) counterKey(kind string, day time.Time) string {
	return fmt.Sprintf("pharmeast:stats:%s:%s", kind, day.Format("2006-01-02"))
}
