package store_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/logger"
	"codeberg.org/mutker/sensorlog/internal/store"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()

	cfg := store.Config{DBPath: filepath.Join(t.TempDir(), "sensor_data.db")}
	s, err := store.Open(cfg, logger.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func reading(temp float64) telemetry.Reading {
	return telemetry.Reading{
		Accel:       telemetry.Accel{X: 0.1, Y: 0.2, Z: 9.8},
		Gyro:        telemetry.Gyro{Roll: 1, Pitch: 2, Yaw: 3},
		GPS:         telemetry.GPS{Lat: -12.0464, Lon: -77.0428},
		UVIndex:     temp / 10,
		Temperature: temp,
	}
}

func insertAt(t *testing.T, s *store.Store, ts time.Time, temp float64) int64 {
	t.Helper()

	id, err := s.Insert(context.Background(), telemetry.Record{Timestamp: ts, Reading: reading(temp)})
	require.NoError(t, err)
	return id
}

func ids(records []telemetry.Record) []int64 {
	out := make([]int64, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ID)
	}
	return out
}

func TestOpenIsIdempotent(t *testing.T) {
	cfg := store.Config{DBPath: filepath.Join(t.TempDir(), "nested", "sensor_data.db")}

	s, err := store.Open(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, s.CreateSchemaIfAbsent())
	insertAt(t, s, baseTime, 20)
	require.NoError(t, s.Close())

	s, err = store.Open(cfg, logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	version, dirty, err := s.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(store.SchemaVersion), version)
	assert.False(t, dirty)

	maxID, err := s.MaxID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), maxID, "existing records survive reopening")
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := store.Open(store.Config{}, logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, store.ErrInvalidDBPath))
}

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	s := openStore(t)

	var got []int64
	for i := range 3 {
		got = append(got, insertAt(t, s, baseTime, float64(20+i)))
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestInsertStampsMissingTimestamp(t *testing.T) {
	clock := baseTime.Add(1234 * time.Millisecond)
	s := openStore(t, store.WithClock(func() time.Time { return clock }))

	_, err := s.Insert(context.Background(), telemetry.Record{Reading: reading(21)})
	require.NoError(t, err)

	records, err := s.QueryAfter(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, clock.Equal(records[0].Timestamp), "got %v", records[0].Timestamp)
	assert.Equal(t, reading(21), records[0].Reading)
}

func TestInsertIgnoresCallerID(t *testing.T) {
	s := openStore(t)

	id, err := s.Insert(context.Background(), telemetry.Record{ID: 99, Timestamp: baseTime, Reading: reading(20)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestMaxID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	maxID, err := s.MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), maxID)

	insertAt(t, s, baseTime, 20)
	last := insertAt(t, s, baseTime, 21)

	maxID, err = s.MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, last, maxID)
}

func TestQueryAfter(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	// timestamps deliberately out of order; ID order must win
	insertAt(t, s, baseTime.Add(time.Minute), 20)
	insertAt(t, s, baseTime, 21)
	insertAt(t, s, baseTime.Add(-time.Minute), 22)

	records, err := s.QueryAfter(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids(records))

	records, err = s.QueryAfter(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids(records))

	records, err = s.QueryAfter(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestQueryRange(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	older := insertAt(t, s, baseTime.Add(-2*time.Hour), 20)
	hourAgo := insertAt(t, s, baseTime.Add(-time.Hour), 21)
	now := insertAt(t, s, baseTime, 22)
	_ = older

	records, err := store.Collect(s.QueryRange(ctx, baseTime.Add(-90*time.Minute), baseTime, telemetry.OrderAscending))
	require.NoError(t, err)
	assert.Equal(t, []int64{hourAgo, now}, ids(records))

	records, err = store.Collect(s.QueryRange(ctx, baseTime.Add(-90*time.Minute), baseTime, telemetry.OrderDescending))
	require.NoError(t, err)
	assert.Equal(t, []int64{now, hourAgo}, ids(records))

	records, err = store.Collect(s.QueryRange(ctx, baseTime.Add(time.Hour), baseTime.Add(2*time.Hour), telemetry.OrderDescending))
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = store.Collect(s.QueryRange(ctx, baseTime, baseTime, telemetry.OrderDescending))
	require.NoError(t, err)
	assert.Equal(t, []int64{now}, ids(records), "bounds are inclusive")
}

func TestQueryRangeTiesOrderedByID(t *testing.T) {
	s := openStore(t)

	first := insertAt(t, s, baseTime, 20)
	second := insertAt(t, s, baseTime, 21)

	records, err := store.Collect(s.QueryRange(context.Background(), baseTime, baseTime, telemetry.OrderAscending))
	require.NoError(t, err)
	assert.Equal(t, []int64{first, second}, ids(records))
}

func TestQueryRangeIsRestartable(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	insertAt(t, s, baseTime, 20)
	seq := s.QueryRange(ctx, baseTime.Add(-time.Hour), baseTime.Add(time.Hour), telemetry.OrderAscending)

	records, err := store.Collect(seq)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	insertAt(t, s, baseTime.Add(time.Minute), 21)

	records, err = store.Collect(seq)
	require.NoError(t, err)
	assert.Len(t, records, 2, "re-iterating takes a fresh snapshot")
}

func TestQueryRangeEarlyBreak(t *testing.T) {
	s := openStore(t)

	for i := range 5 {
		insertAt(t, s, baseTime.Add(time.Duration(i)*time.Second), 20)
	}

	var seen int
	for _, err := range s.QueryRange(context.Background(), baseTime, baseTime.Add(time.Minute), telemetry.OrderAscending) {
		require.NoError(t, err)
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)

	// the connection must have been released
	maxID, err := s.MaxID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), maxID)
}

func TestQueryRangeInvalidOrder(t *testing.T) {
	s := openStore(t)

	_, err := store.Collect(s.QueryRange(context.Background(), baseTime, baseTime, telemetry.Order("sideways")))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, store.ErrInvalidOrder))
}

func TestConcurrentInserts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	const (
		writers   = 8
		perWriter = 25
	)

	var wg sync.WaitGroup
	idsCh := make(chan int64, writers*perWriter)
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				id, err := s.Insert(ctx, telemetry.Record{Reading: reading(float64(w*100 + i))})
				assert.NoError(t, err)
				idsCh <- id
			}
		}()
	}
	wg.Wait()
	close(idsCh)

	seen := make(map[int64]bool)
	for id := range idsCh {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, writers*perWriter)

	records, err := s.QueryAfter(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, writers*perWriter)
	for i, rec := range records {
		assert.Equal(t, int64(i+1), rec.ID)
	}
}

func TestStats(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	empty, err := s.Stats(ctx, baseTime.Add(-time.Hour), baseTime)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{}, empty)

	insertAt(t, s, baseTime.Add(-30*time.Minute), 10)
	insertAt(t, s, baseTime.Add(-20*time.Minute), 20)
	insertAt(t, s, baseTime.Add(-10*time.Minute), 30)
	insertAt(t, s, baseTime.Add(time.Hour), 90)

	stats, err := s.Stats(ctx, baseTime.Add(-time.Hour), baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Count)
	assert.InDelta(t, 10, stats.Temperature.Min, 1e-9)
	assert.InDelta(t, 30, stats.Temperature.Max, 1e-9)
	assert.InDelta(t, 20, stats.Temperature.Mean, 1e-9)
	assert.InDelta(t, 2, stats.UVIndex.Mean, 1e-9)
}

func TestClosedStore(t *testing.T) {
	cfg := store.Config{DBPath: filepath.Join(t.TempDir(), "sensor_data.db")}
	s, err := store.Open(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "closing twice is a no-op")

	_, err = s.Insert(context.Background(), telemetry.Record{Reading: reading(20)})
	require.Error(t, err)
	assert.True(t, store.IsStorageError(err))
	assert.True(t, errors.HasCode(err, store.ErrStoreClosed))

	_, err = s.MaxID(context.Background())
	assert.True(t, store.IsStorageError(err))

	_, err = store.Collect(s.QueryRange(context.Background(), baseTime, baseTime, telemetry.OrderAscending))
	assert.True(t, store.IsStorageError(err))
}

func TestTimestampsHaveMillisecondResolution(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	ts := baseTime.Add(1500 * time.Microsecond)
	_, err := s.Insert(ctx, telemetry.Record{Timestamp: ts, Reading: reading(20)})
	require.NoError(t, err)

	records, err := s.QueryAfter(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, baseTime.Add(time.Millisecond).Equal(records[0].Timestamp), "got %v", records[0].Timestamp)

	end := baseTime.Add(time.Millisecond + 200*time.Microsecond)
	got, err := store.Collect(s.QueryRange(ctx, baseTime, end, telemetry.OrderAscending))
	require.NoError(t, err)
	assert.Len(t, got, 1, "same millisecond as end is inside the range")

	got, err = store.Collect(s.QueryRange(ctx, baseTime, baseTime.Add(900*time.Microsecond), telemetry.OrderAscending))
	require.NoError(t, err)
	assert.Empty(t, got)
}
