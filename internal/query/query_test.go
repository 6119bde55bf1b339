package query_test

import (
	"context"
	"iter"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/logger"
	"codeberg.org/mutker/sensorlog/internal/query"
	"codeberg.org/mutker/sensorlog/internal/store"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type countingSource struct {
	calls int
	order telemetry.Order
}

func (c *countingSource) QueryRange(_ context.Context, _, _ time.Time, order telemetry.Order) iter.Seq2[telemetry.Record, error] {
	c.calls++
	c.order = order
	return func(func(telemetry.Record, error) bool) {}
}

func TestRunRejectsInvertedRange(t *testing.T) {
	src := &countingSource{}
	q := query.New(src)

	_, err := q.Run(context.Background(), now, now.Add(-time.Hour), telemetry.OrderAscending)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, query.ErrInvalidRange))
	assert.Zero(t, src.calls, "no store access on invalid bounds")
}

func TestRunRejectsUnknownOrder(t *testing.T) {
	src := &countingSource{}

	_, err := query.New(src).Run(context.Background(), now, now, telemetry.Order("up"))
	assert.True(t, errors.HasCode(err, query.ErrInvalidRange))
	assert.Zero(t, src.calls)
}

func TestRunDefaultsToDescending(t *testing.T) {
	src := &countingSource{}

	_, err := query.New(src).Run(context.Background(), now, now, "")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, telemetry.OrderDescending, src.order)
}

func TestRunAgainstStore(t *testing.T) {
	s, err := store.Open(store.Config{DBPath: filepath.Join(t.TempDir(), "sensor_data.db")}, logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for _, ts := range []time.Time{now.Add(-2 * time.Hour), now.Add(-time.Hour), now} {
		_, err := s.Insert(ctx, telemetry.Record{Timestamp: ts})
		require.NoError(t, err)
	}

	q := query.New(s)

	seq, err := q.Run(ctx, now.Add(-90*time.Minute), now, "")
	require.NoError(t, err)
	records, err := store.Collect(seq)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(3), records[0].ID)
	assert.Equal(t, int64(2), records[1].ID)

	seq, err = q.Run(ctx, now.Add(time.Hour), now.Add(2*time.Hour), telemetry.OrderAscending)
	require.NoError(t, err)
	records, err = store.Collect(seq)
	require.NoError(t, err)
	assert.Empty(t, records)

	seq, err = q.Run(ctx, now, now, telemetry.OrderAscending)
	require.NoError(t, err)
	records, err = store.Collect(seq)
	require.NoError(t, err)
	assert.Len(t, records, 1, "an empty range is valid")

	start, end, err := query.ParseBounds("", "", string(query.LastHour), now)
	require.NoError(t, err)
	seq, err = q.Run(ctx, start, end, telemetry.OrderAscending)
	require.NoError(t, err)
	records, err = store.Collect(seq)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPresets(t *testing.T) {
	tests := []struct {
		in    string
		want  query.Preset
		start time.Time
	}{
		{"hour", query.LastHour, now.Add(-time.Hour)},
		{"", query.LastDay, now.Add(-24 * time.Hour)},
		{"WEEK", query.LastWeek, now.Add(-7 * 24 * time.Hour)},
		{"month", query.LastMonth, time.Date(2026, 9, 17, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			p, err := query.ParsePreset(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)

			start, end, err := p.Range(now)
			require.NoError(t, err)
			assert.True(t, tt.start.Equal(start), "start %v", start)
			assert.True(t, now.Equal(end))
		})
	}

	_, err := query.ParsePreset("fortnight")
	assert.True(t, errors.HasCode(err, query.ErrInvalidRange))
}

func TestParseBounds(t *testing.T) {
	start, end, err := query.ParseBounds("", "", "", now)
	require.NoError(t, err)
	assert.True(t, now.AddDate(0, 0, -1).Equal(start))
	assert.True(t, now.Equal(end))

	start, end, err = query.ParseBounds("2026-10-17T10:00:00Z", "", "week", now)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC).Equal(start))
	assert.True(t, now.Equal(end), "to defaults to now")

	_, _, err = query.ParseBounds("", "2026-10-17T10:00:00Z", "", now)
	assert.True(t, errors.HasCode(err, query.ErrInvalidRange), "to without from")

	_, _, err = query.ParseBounds("2026-10-17", "", "", now)
	assert.True(t, errors.HasCode(err, query.ErrInvalidRange))
}
