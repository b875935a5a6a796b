package analytics

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pharmeast/pharmeast-backend/internal/models"
)

type fakeActivity struct {
	events []*models.ActivityEvent
	counts map[string]int64
	err    error
}

func (f *fakeActivity) Record(_ context.Context, ev *models.ActivityEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeActivity) CountSince(context.Context, time.Time) (map[string]int64, error) {
	return f.counts, f.err
}

func quiet() Option { return WithLogger(log.New(io.Discard, "", 0)) }

func newRedisService(t *testing.T, activity *fakeActivity, now time.Time) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewService(activity, rdb, quiet(), WithClock(func() time.Time { return now }))
	return svc, mr
}

func TestTrackRecordsAndBumpsCounter(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	activity := &fakeActivity{}
	svc, mr := newRedisService(t, activity, now)

	require.NoError(t, svc.Track(context.Background(), models.ActivityPageView, "/products"))
	require.Len(t, activity.events, 1)
	require.Equal(t, "/products", activity.events[0].Path)

	val, err := mr.Get("pharmeast:stats:page_view:2026-08-28")
	require.NoError(t, err)
	require.Equal(t, "1", val)
}

func TestTrackRejectsUnknownKind(t *testing.T) {
	svc := NewService(&fakeActivity{}, nil, quiet())
	require.Error(t, svc.Track(context.Background(), "bogus", "/"))
}

func TestTrackSurvivesRedisOutage(t *testing.T) {
	now := time.Now().UTC()
	activity := &fakeActivity{}
	svc, mr := newRedisService(t, activity, now)
	mr.Close()

	require.NoError(t, svc.Track(context.Background(), models.ActivityContact, "/contact"))
	require.Len(t, activity.events, 1)
}

func TestTrackPropagatesDatabaseError(t *testing.T) {
	svc := NewService(&fakeActivity{err: errors.New("db down")}, nil, quiet())
	require.Error(t, svc.Track(context.Background(), models.ActivityContact, "/contact"))
}

func TestSummarizeMergesTotalsAndDaily(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	activity := &fakeActivity{counts: map[string]int64{models.ActivityPageView: 12}}
	svc, mr := newRedisService(t, activity, now)

	mr.Set("pharmeast:stats:page_view:2026-08-28", "5")
	mr.Set("pharmeast:stats:page_view:2026-08-27", "7")

	summary, err := svc.Summarize(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, int64(12), summary.Totals[models.ActivityPageView])

	series := summary.Daily[models.ActivityPageView]
	require.Len(t, series, 3)
	require.Equal(t, DailyCount{Date: "2026-08-26", Count: 0}, series[0])
	require.Equal(t, DailyCount{Date: "2026-08-27", Count: 7}, series[1])
	require.Equal(t, DailyCount{Date: "2026-08-28", Count: 5}, series[2])
}

func TestSummarizeWithoutRedis(t *testing.T) {
	activity := &fakeActivity{counts: map[string]int64{models.ActivityContact: 2}}
	svc := NewService(activity, nil, quiet())

	summary, err := svc.Summarize(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.Totals[models.ActivityContact])
	require.Empty(t, summary.Daily)
}
