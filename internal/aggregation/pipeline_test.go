package aggregation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollout.io/rollout/internal/domain"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/repository"
)

func init() {
	_ = logger.Init("error", "json")
}

type rawEvent struct {
	flagID  string // empty for conversions that resolve to no flag
	variant string
	at      time.Time
}

type memStore struct {
	mu          sync.Mutex
	exposures   []rawEvent
	conversions []rawEvent
	aggregates  map[string]domain.Aggregate
	failDays    map[string]bool
	cutoffs     []time.Time
}

func newMemStore() *memStore {
	return &memStore{aggregates: map[string]domain.Aggregate{}, failDays: map[string]bool{}}
}

func count(events []rawEvent, start, end time.Time) ([]repository.VariantCount, int64) {
	counts := map[[2]string]int64{}
	var dropped int64
	for _, e := range events {
		if e.at.Before(start) || !e.at.Before(end) {
			continue
		}
		if e.flagID == "" {
			dropped++
			continue
		}
		counts[[2]string{e.flagID, e.variant}]++
	}
	out := make([]repository.VariantCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, repository.VariantCount{FlagID: k[0], VariantKey: k[1], Count: n})
	}
	return out, dropped
}

func (s *memStore) ExposureCounts(_ context.Context, start, end time.Time) ([]repository.VariantCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, _ := count(s.exposures, start, end)
	return out, nil
}

func (s *memStore) ConversionCounts(_ context.Context, start, end time.Time) ([]repository.VariantCount, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, dropped := count(s.conversions, start, end)
	return out, dropped, nil
}

func (s *memStore) UpsertAggregates(_ context.Context, date time.Time, rows []domain.Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := date.Format(time.DateOnly)
	if s.failDays[day] {
		return errors.New("write failed")
	}
	for _, r := range rows {
		s.aggregates[day+"/"+r.FlagID+"/"+r.VariantKey] = r
	}
	return nil
}

func (s *memStore) ListAggregates(_ context.Context, date time.Time) ([]domain.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := date.Format(time.DateOnly)
	var out []domain.Aggregate
	for _, a := range s.aggregates {
		if a.Date.Format(time.DateOnly) == day {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantKey < out[j].VariantKey })
	return out, nil
}

func deleteBefore(events []rawEvent, cutoff time.Time) ([]rawEvent, int64) {
	kept := events[:0]
	var n int64
	for _, e := range events {
		if e.at.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	return kept, n
}

func (s *memStore) DeleteExposuresBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, cutoff)
	var n int64
	s.exposures, n = deleteBefore(s.exposures, cutoff)
	return n, nil
}

func (s *memStore) DeleteConversionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	s.conversions, n = deleteBefore(s.conversions, cutoff)
	return n, nil
}

func newTestPipeline(store Store, loc *time.Location, now time.Time) *Pipeline {
	p := NewPipeline(store, Options{Location: loc, Retention: 30 * 24 * time.Hour})
	p.now = func() time.Time { return now }
	return p
}

func TestRunDaily_IdempotentRollup(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	for _, h := range []int{1, 5, 23} {
		store.exposures = append(store.exposures, rawEvent{"flagA", "variantX", day.Add(time.Duration(h) * time.Hour)})
	}
	store.conversions = append(store.conversions, rawEvent{"flagA", "variantX", day.Add(6 * time.Hour)})

	p := newTestPipeline(store, time.UTC, day.AddDate(0, 0, 1))
	ctx := context.Background()

	for run := 0; run < 2; run++ {
		res, err := p.RunDaily(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, "2024-06-01", res.Date)
		assert.Equal(t, 1, res.ProcessedFlags)
		assert.Equal(t, int64(3), res.ProcessedExposures)
		assert.Equal(t, int64(1), res.ProcessedConversions)

		rows, err := p.Aggregates(ctx, day)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(3), rows[0].Impressions)
		assert.Equal(t, int64(1), rows[0].Conversions)
	}
}

func TestRunDaily_DayBoundsInZone(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, loc)
	store := newMemStore()
	store.exposures = []rawEvent{
		{"f", "", day.Add(-time.Millisecond)},                  // previous day
		{"f", "", day},                                         // first instant
		{"f", "", day.AddDate(0, 0, 1).Add(-time.Millisecond)}, // last millisecond
		{"f", "", day.AddDate(0, 0, 1).Add(-time.Microsecond)}, // last microsecond
		{"f", "", day.AddDate(0, 0, 1)},                        // next day
	}

	p := newTestPipeline(store, loc, day.AddDate(0, 0, 2))
	res, err := p.RunDaily(context.Background(), day.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.ProcessedExposures)
}

func TestRunDaily_DropsAndNullVariants(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	at := day.Add(time.Hour)
	store := newMemStore()
	store.exposures = []rawEvent{{"flagA", "", at}, {"flagA", "blue", at}}
	store.conversions = []rawEvent{{"flagA", "", at}, {"", "", at}, {"flagB", "", at}}

	p := newTestPipeline(store, time.UTC, day.AddDate(0, 0, 1))
	res, err := p.RunDaily(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.DroppedConversions)
	assert.Equal(t, int64(2), res.ProcessedConversions)

	rows, err := p.Aggregates(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[0].VariantKey)
	assert.Equal(t, int64(1), rows[0].Conversions)
	assert.Equal(t, int64(0), rows[1].Conversions)
}

func TestRunDaily_RetentionCleanup(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 2, 3, 0, 0, 0, time.UTC)
	store := newMemStore()
	store.exposures = []rawEvent{{"f", "", now.AddDate(0, 0, -40)}, {"f", "", now.AddDate(0, 0, -1)}}
	store.conversions = []rawEvent{{"f", "", now.AddDate(0, 0, -31)}}

	p := newTestPipeline(store, time.UTC, now)
	res, err := p.RunDaily(context.Background(), p.Yesterday(now))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.CleanedUpEvents)
	require.Len(t, store.cutoffs, 1)
	assert.Equal(t, now.Add(-30*24*time.Hour), store.cutoffs[0])
}

func TestBackfill(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	for d := 0; d < 3; d++ {
		store.exposures = append(store.exposures, rawEvent{"f", "", start.AddDate(0, 0, d).Add(time.Hour)})
	}
	store.failDays["2024-06-02"] = true

	p := newTestPipeline(store, time.UTC, start.AddDate(0, 0, 5))
	res, err := p.Backfill(context.Background(), start, start.AddDate(0, 0, 2))
	require.Error(t, err)
	require.Len(t, res.Days, 2)
	assert.Equal(t, "2024-06-01", res.Days[0].Date)
	assert.Equal(t, "2024-06-03", res.Days[1].Date)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "2024-06-02", res.Failed[0].Date)

	_, err = p.Backfill(context.Background(), start.AddDate(0, 0, 1), start)
	assert.Error(t, err)
}

func TestBackfill_StopsOnCancel(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	p := newTestPipeline(newMemStore(), time.UTC, start)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Backfill(ctx, start, start.AddDate(0, 0, 5))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Days)
}

func TestYesterdayAndParseDate(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	p := NewPipeline(newMemStore(), Options{Location: loc})

	// 2024-06-01 20:00 UTC is already 2024-06-02 in Tokyo.
	y := p.Yesterday(time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-06-01", y.Format(time.DateOnly))
	assert.Equal(t, loc, y.Location())

	d, err := p.ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, 29, d.Day())
	_, err = p.ParseDate("2024-13-01")
	assert.Error(t, err)
}
