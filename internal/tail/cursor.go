// Package tail follows the store, returning only records added since the
// previous poll.
package tail

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/sensorlog/internal/logger"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
)

// Source is the part of the store a Cursor reads from.
type Source interface {
	MaxID(ctx context.Context) (int64, error)
	QueryAfter(ctx context.Context, lastID int64) ([]telemetry.Record, error)
}

// Cursor remembers the last id it returned. It is safe for concurrent use;
// concurrent polls never return the same record twice.
type Cursor struct {
	src Source
	log logger.Logger

	mu       sync.Mutex
	lastSeen int64
}

// New returns a Cursor positioned at the newest stored record, so history is
// not replayed.
func New(ctx context.Context, src Source, log logger.Logger) (*Cursor, error) {
	maxID, err := src.MaxID(ctx)
	if err != nil {
		return nil, err
	}

	return NewFrom(src, maxID, log), nil
}

// NewFrom returns a Cursor that will return records with id > lastSeen.
func NewFrom(src Source, lastSeen int64, log logger.Logger) *Cursor {
	return &Cursor{src: src, log: log.With("tail"), lastSeen: lastSeen}
}

func (c *Cursor) LastSeen() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Poll returns records stored since the previous successful poll, ascending
// by id. It never waits for new data; no new records is an empty result.
// On error the cursor does not move.
func (c *Cursor) Poll(ctx context.Context) ([]telemetry.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.src.QueryAfter(ctx, c.lastSeen)
	if err != nil {
		return nil, err
	}

	if maxID := telemetry.MaxID(records); maxID > c.lastSeen {
		c.lastSeen = maxID
	}

	return records, nil
}

// Follow polls every interval and hands each non-empty batch to fn until ctx
// is done or fn returns an error. Poll errors are logged and retried on the
// next tick.
func (c *Cursor) Follow(ctx context.Context, interval time.Duration, fn func([]telemetry.Record) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		records, err := c.Poll(ctx)
		switch {
		case err != nil:
			c.log.ErrorWithContext(err, "tail", "poll").Msg("Poll failed")
		case len(records) > 0:
			if err := fn(records); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
