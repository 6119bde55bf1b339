// Package query runs bounded historical reads over the telemetry store.
package query

import (
	"context"
	"fmt"
	"iter"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
)

const ErrInvalidRange = errors.ErrorCode("query_invalid_range")

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInvalidRange: "Invalid time range",
	})
}

// Source is the part of the store a RangeQuery reads from.
type Source interface {
	QueryRange(ctx context.Context, start, end time.Time, order telemetry.Order) iter.Seq2[telemetry.Record, error]
}

type RangeQuery struct {
	src Source
}

func New(src Source) *RangeQuery {
	return &RangeQuery{src: src}
}

// Run validates the bounds and returns the records with a timestamp in
// [start, end]. An empty order means newest first. Nothing is read from the
// store when validation fails.
func (q *RangeQuery) Run(ctx context.Context, start, end time.Time, order telemetry.Order) (iter.Seq2[telemetry.Record, error], error) {
	errFactory := errors.New()

	if start.After(end) {
		return nil, errFactory.WithData(ErrInvalidRange,
			fmt.Sprintf("start %s is after end %s", start.Format(time.RFC3339), end.Format(time.RFC3339)))
	}

	if order == "" {
		order = telemetry.OrderDescending
	}
	if !order.Valid() {
		return nil, errFactory.WithData(ErrInvalidRange, fmt.Sprintf("unknown order %q", order))
	}

	return q.src.QueryRange(ctx, start, end, order), nil
}
