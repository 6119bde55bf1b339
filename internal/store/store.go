// Package store persists telemetry records in an append-only sqlite table.
//
// Writes are serialized inside the Store so that record IDs follow commit
// order. Reads run concurrently against the WAL snapshot and never observe a
// partially written record.
package store

import (
	"context"
	"database/sql"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/logger"
	"codeberg.org/mutker/sensorlog/internal/telemetry"

	_ "github.com/mattn/go-sqlite3"
)

// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	log    logger.Logger
	cfg    Config
	now    func() time.Time
	mu     sync.Mutex
	closed atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp records inserted without a
// timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Summary holds min, max and mean of one column over a range.
type Summary struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Stats aggregates a time range.
type Stats struct {
	Count       int64   `json:"count"`
	Temperature Summary `json:"temperature"`
	UVIndex     Summary `json:"uv_index"`
}

// Open opens or creates the database at cfg.DBPath and brings its schema up
// to date.
func Open(cfg Config, log logger.Logger, opts ...Option) (*Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	log.Debug().Str("path", cfg.DBPath).Msg("Initializing telemetry store")

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	s := &Store{
		db:  db,
		log: log,
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.CreateSchemaIfAbsent(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Telemetry store initialized")

	return s, nil
}

// CreateSchemaIfAbsent applies any pending migrations. It is safe to call on
// every startup.
func (s *Store) CreateSchemaIfAbsent() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return errors.New().New(ErrStoreClosed)
	}
	return migrateSchema(s.db, s.cfg, s.log)
}

// Version reports the applied schema version and whether a migration was
// left half applied.
func (s *Store) Version() (uint, bool, error) {
	return schemaVersion(s.db, s.log)
}

// Insert appends rec and returns its assigned ID once committed. rec.ID is
// ignored; a zero rec.Timestamp is replaced with the store clock.
// Timestamps are stored as unix milliseconds, so anything finer than a
// millisecond is truncated and reads return the truncated time.
func (s *Store) Insert(ctx context.Context, rec telemetry.Record) (int64, error) {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return 0, errFactory.New(ErrStoreClosed)
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	res, err := s.db.ExecContext(ctx, insertRecordSQL,
		ts.UnixMilli(),
		rec.Accel.X, rec.Accel.Y, rec.Accel.Z,
		rec.Gyro.Roll, rec.Gyro.Pitch, rec.Gyro.Yaw,
		rec.GPS.Lat, rec.GPS.Lon,
		rec.UVIndex,
		rec.Temperature,
	)
	if err != nil {
		return 0, errFactory.Wrap(ErrInsertFailed, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errFactory.Wrap(ErrInsertFailed, err)
	}

	return id, nil
}

// MaxID returns the highest assigned ID, or 0 for an empty store.
func (s *Store) MaxID(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, errors.New().New(ErrStoreClosed)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, maxIDSQL).Scan(&id); err != nil {
		return 0, errors.New().Wrap(ErrQueryFailed, err)
	}
	return id, nil
}

// QueryAfter returns every record with an ID greater than lastID in
// ascending ID order.
func (s *Store) QueryAfter(ctx context.Context, lastID int64) ([]telemetry.Record, error) {
	errFactory := errors.New()

	if s.closed.Load() {
		return nil, errFactory.New(ErrStoreClosed)
	}

	rows, err := s.db.QueryContext(ctx, queryAfterSQL, lastID)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var records []telemetry.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return records, nil
}

// QueryRange returns the records whose timestamp lies in [start, end],
// ordered by timestamp (ties broken by ID). The comparison happens at
// millisecond resolution: start and end are truncated to the millisecond
// like stored timestamps, so a record in the same millisecond as end is
// included. The sequence is lazy: the query
// runs when iteration starts, and iterating again runs it again against a
// fresh snapshot. A failure is yielded once as the final element.
func (s *Store) QueryRange(ctx context.Context, start, end time.Time, order telemetry.Order) iter.Seq2[telemetry.Record, error] {
	return func(yield func(telemetry.Record, error) bool) {
		errFactory := errors.New()

		var query string
		switch order {
		case telemetry.OrderAscending:
			query = queryRangeAscSQL
		case telemetry.OrderDescending:
			query = queryRangeDescSQL
		default:
			yield(telemetry.Record{}, errFactory.WithData(ErrInvalidOrder, string(order)))
			return
		}

		if s.closed.Load() {
			yield(telemetry.Record{}, errFactory.New(ErrStoreClosed))
			return
		}

		rows, err := s.db.QueryContext(ctx, query, start.UnixMilli(), end.UnixMilli())
		if err != nil {
			yield(telemetry.Record{}, errFactory.Wrap(ErrQueryFailed, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				yield(telemetry.Record{}, errFactory.Wrap(ErrQueryFailed, err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(telemetry.Record{}, errFactory.Wrap(ErrQueryFailed, err))
		}
	}
}

// Collect drains a record sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[telemetry.Record, error]) ([]telemetry.Record, error) {
	var records []telemetry.Record
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Stats summarizes temperature and UV index over [start, end].
func (s *Store) Stats(ctx context.Context, start, end time.Time) (Stats, error) {
	if s.closed.Load() {
		return Stats{}, errors.New().New(ErrStoreClosed)
	}

	var (
		stats                              Stats
		tMin, tMax, tAvg, uMin, uMax, uAvg sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, statsSQL, start.UnixMilli(), end.UnixMilli()).
		Scan(&stats.Count, &tMin, &tMax, &tAvg, &uMin, &uMax, &uAvg)
	if err != nil {
		return Stats{}, errors.New().Wrap(ErrQueryFailed, err)
	}

	stats.Temperature = Summary{Min: tMin.Float64, Max: tMax.Float64, Mean: tAvg.Float64}
	stats.UVIndex = Summary{Min: uMin.Float64, Max: uMax.Float64, Mean: uAvg.Float64}
	return stats, nil
}

// Close checkpoints the WAL and closes the database. Further calls fail with
// ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}

	errFactory := errors.New()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.log.Warn().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := s.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	s.log.Info().Msg("Telemetry store closed")
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (telemetry.Record, error) {
	var (
		rec telemetry.Record
		ms  int64
	)
	err := row.Scan(
		&rec.ID, &ms,
		&rec.Accel.X, &rec.Accel.Y, &rec.Accel.Z,
		&rec.Gyro.Roll, &rec.Gyro.Pitch, &rec.Gyro.Yaw,
		&rec.GPS.Lat, &rec.GPS.Lon,
		&rec.UVIndex,
		&rec.Temperature,
	)
	if err != nil {
		return telemetry.Record{}, err
	}
	rec.Timestamp = time.UnixMilli(ms).UTC()
	return rec, nil
}
