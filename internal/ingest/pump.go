// Package ingest moves decoded readings from a link into the store through a
// bounded queue, so a slow disk never stalls the device read loop for long.
package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/sensorlog/internal/logger"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
)

const DefaultQueueSize = 64

// Inserter persists a single record and returns its id.
type Inserter interface {
	Insert(ctx context.Context, rec telemetry.Record) (int64, error)
}

// Stats counts what happened to consumed readings.
type Stats struct {
	Inserted uint64
	Failed   uint64
	Dropped  uint64
}

// Pump queues readings handed to Consume and inserts them from Run.
type Pump struct {
	store Inserter
	log   logger.Logger
	queue chan telemetry.Reading

	closed    chan struct{}
	closeOnce sync.Once

	inserted atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

func NewPump(store Inserter, size int, log logger.Logger) *Pump {
	if size <= 0 {
		size = DefaultQueueSize
	}

	return &Pump{
		store:  store,
		log:    log.With("ingest"),
		queue:  make(chan telemetry.Reading, size),
		closed: make(chan struct{}),
	}
}

// Consume queues r. It blocks while the queue is full and drops r once the
// pump has been closed. Its signature matches link.Consumer.
func (p *Pump) Consume(r telemetry.Reading) {
	select {
	case <-p.closed:
		p.dropped.Add(1)
		return
	default:
	}

	select {
	case p.queue <- r:
	case <-p.closed:
		p.dropped.Add(1)
	}
}

// Close stops accepting readings. Run still drains what is queued.
func (p *Pump) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
}

// Run inserts queued readings until ctx is done or Close is called, then
// drains the queue and returns. ctx only ends the wait for new readings:
// inserts run detached from its cancellation so nothing already queued is
// lost on shutdown. A failed insert loses that one reading only.
func (p *Pump) Run(ctx context.Context) error {
	storeCtx := context.WithoutCancel(ctx)

	for {
		select {
		case r := <-p.queue:
			p.insert(storeCtx, r)
		case <-ctx.Done():
			p.Close()
			p.drain(storeCtx)
			return nil
		case <-p.closed:
			p.drain(storeCtx)
			return nil
		}
	}
}

func (p *Pump) drain(ctx context.Context) {
	for {
		select {
		case r := <-p.queue:
			p.insert(ctx, r)
		default:
			return
		}
	}
}

func (p *Pump) insert(ctx context.Context, r telemetry.Reading) {
	rec := telemetry.Record{Reading: r}

	id, err := p.store.Insert(ctx, rec)
	if err != nil {
		p.failed.Add(1)
		p.log.ErrorWithContext(err, "ingest", "insert").Msg("Dropping reading")
		return
	}

	p.inserted.Add(1)
	p.log.Debug().Int64("id", id).Msg("Stored reading")
}

// Stats returns a snapshot of the pump counters.
func (p *Pump) Stats() Stats {
	return Stats{
		Inserted: p.inserted.Load(),
		Failed:   p.failed.Load(),
		Dropped:  p.dropped.Load(),
	}
}
