// Package link owns the byte stream to a telemetry device and turns it into
// decoded readings.
package link

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/frame"
	"codeberg.org/mutker/sensorlog/internal/logger"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
	"github.com/google/uuid"
)

// State is the lifecycle of a Reader.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reading
	Stopped
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reading:
		return "reading"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Consumer receives every decoded reading, synchronously from the read loop.
type Consumer func(telemetry.Reading)

// Diagnostic describes a line that could not be decoded.
type Diagnostic struct {
	Time time.Time
	Line []byte
	Err  error
}

const (
	readChunk      = 512
	diagnosticsCap = 32
)

// Reader reads newline delimited frames from a single endpoint. A Reader is
// used once: after Stop, or after the connection is lost, a new Reader is
// needed to connect again.
type Reader struct {
	opener  Opener
	log     logger.Logger
	session string

	state    atomic.Int32
	consumer atomic.Pointer[Consumer]

	mu       sync.Mutex
	port     Port
	endpoint string
	err      error

	stopCh      chan struct{}
	stopOnce    sync.Once
	done        chan struct{}
	finishOnce  sync.Once
	diagnostics chan Diagnostic

	received atomic.Uint64
	rejected atomic.Uint64
}

// NewReader returns a disconnected Reader that opens endpoints with opener.
func NewReader(opener Opener, log logger.Logger) *Reader {
	session := uuid.NewString()
	return &Reader{
		opener:      opener,
		log:         log.With("link"),
		session:     session,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		diagnostics: make(chan Diagnostic, diagnosticsCap),
	}
}

// Session identifies this Reader in logs.
func (r *Reader) Session() string {
	return r.session
}

// State returns the current lifecycle state.
func (r *Reader) State() State {
	return State(r.state.Load())
}

// Connect opens endpoint. A failed attempt leaves the Reader disconnected
// with nothing open, so Connect may be retried.
func (r *Reader) Connect(ctx context.Context, endpoint string) error {
	errFactory := errors.New()

	if !r.state.CompareAndSwap(int32(Disconnected), int32(Connecting)) {
		if r.State() == Stopped {
			return errFactory.WithData(ErrInvalidState, Stopped.String())
		}
		return errFactory.Wrap(ErrConnection, errFactory.WithData(ErrBusy, endpoint))
	}

	port, err := r.opener.Open(ctx, endpoint)
	if err != nil {
		r.state.CompareAndSwap(int32(Connecting), int32(Disconnected))
		if !errors.HasCode(err, ErrConnection) {
			err = errFactory.Wrap(ErrConnection, err)
		}
		r.log.Debug().Str("session", r.session).Str("endpoint", endpoint).Err(err).Msg("connect failed")
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.CompareAndSwap(int32(Connecting), int32(Connected)) {
		port.Close()
		return errFactory.WithData(ErrInvalidState, r.State().String())
	}

	r.port = port
	r.endpoint = endpoint
	r.log.Info().Str("session", r.session).Str("endpoint", endpoint).Msg("Connected to device")

	return nil
}

// SetConsumer installs fn as the sink for decoded readings. The swap takes
// effect on the next decoded frame. A nil fn drops readings.
func (r *Reader) SetConsumer(fn Consumer) {
	if fn == nil {
		r.consumer.Store(nil)
		return
	}
	r.consumer.Store(&fn)
}

// Diagnostics reports lines that failed to decode. Sends never block: when
// nobody is listening diagnostics are dropped. The channel is closed once
// the Reader has stopped.
func (r *Reader) Diagnostics() <-chan Diagnostic {
	return r.diagnostics
}

// Done is closed when the Reader reaches Stopped.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Err returns why the Reader stopped. It is nil until Done is closed, and nil
// after a requested stop.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Counts returns how many frames were decoded and rejected so far.
func (r *Reader) Counts() (received, rejected uint64) {
	return r.received.Load(), r.rejected.Load()
}

// Run reads frames until Stop is called, ctx is cancelled or the connection
// fails. It blocks, so callers run it on its own goroutine. A lost connection
// is returned here and from Err; a requested stop returns nil.
func (r *Reader) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(Connected), int32(Reading)) {
		state := r.State()
		if state == Reading {
			return errors.New().Wrap(ErrConnection, errors.New().WithData(ErrBusy, "already reading"))
		}
		return errors.New().WithData(ErrInvalidState, state.String())
	}

	stopOnCancel := context.AfterFunc(ctx, r.Stop)
	defer stopOnCancel()

	r.mu.Lock()
	port := r.port
	endpoint := r.endpoint
	r.mu.Unlock()

	r.log.Debug().Str("session", r.session).Str("endpoint", endpoint).Msg("Read loop started")

	err := r.readLoop(port)
	r.finish(err)

	if err != nil {
		r.log.ErrorWithContext(err, "link", "read").Str("session", r.session).Str("endpoint", endpoint).Msg("Read loop ended")
	} else {
		r.log.Info().Str("session", r.session).Str("endpoint", endpoint).Msg("Read loop stopped")
	}

	return err
}

// Stop moves the Reader to Stopped and closes the connection, which also
// unblocks a pending read. It is safe to call at any time, more than once.
func (r *Reader) Stop() {
	r.stopOnce.Do(func() {
		prev := State(r.state.Swap(int32(Stopped)))
		close(r.stopCh)

		r.mu.Lock()
		r.closePortLocked()
		r.mu.Unlock()

		// Run owns finishing while it is reading.
		if prev != Reading {
			r.finish(nil)
		}
	})
}

func (r *Reader) stopping() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

func (r *Reader) finish(err error) {
	r.finishOnce.Do(func() {
		r.state.Store(int32(Stopped))

		r.mu.Lock()
		r.closePortLocked()
		r.err = err
		r.mu.Unlock()

		close(r.diagnostics)
		close(r.done)
	})
}

func (r *Reader) closePortLocked() {
	if r.port == nil {
		return
	}
	if err := r.port.Close(); err != nil {
		r.log.Debug().Str("session", r.session).Err(err).Msg("close port")
	}
	r.port = nil
}

func (r *Reader) readLoop(port Port) error {
	buf := make([]byte, readChunk)
	var (
		pending    []byte
		discarding bool
	)

	for {
		if r.stopping() {
			return nil
		}

		n, err := port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending, discarding = r.drain(pending, discarding)
		}

		if err == nil {
			continue
		}
		if r.stopping() {
			return nil
		}
		if errors.Is(err, io.EOF) && len(pending) > 0 && !discarding {
			r.handleLine(pending)
		}

		return errors.New().Wrap(ErrLost, err)
	}
}

// drain handles every complete line in pending and returns what is left.
// A line that grows past frame.MaxLength is reported once and skipped up to
// its delimiter.
func (r *Reader) drain(pending []byte, discarding bool) ([]byte, bool) {
	for {
		i := bytes.IndexByte(pending, frame.Delimiter)
		if i < 0 {
			break
		}

		if discarding {
			discarding = false
		} else {
			r.handleLine(pending[:i])
		}
		pending = pending[i+1:]
	}

	if !discarding && len(pending) > frame.MaxLength {
		r.reject(pending[:frame.MaxLength], errors.New().WithData(frame.ErrTooLong, len(pending)))
		discarding = true
	}
	if discarding {
		pending = pending[:0]
	}

	return append([]byte(nil), pending...), discarding
}

func (r *Reader) handleLine(line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}

	reading, err := frame.Decode(line)
	if err != nil {
		r.reject(line, err)
		return
	}

	r.received.Add(1)
	if fn := r.consumer.Load(); fn != nil {
		(*fn)(reading)
	}
}

func (r *Reader) reject(line []byte, err error) {
	r.rejected.Add(1)
	r.log.Warn().Str("session", r.session).Int("length", len(line)).Err(err).Msg("Discarding malformed frame")

	d := Diagnostic{Time: time.Now(), Line: append([]byte(nil), line...), Err: err}
	select {
	case r.diagnostics <- d:
	default:
	}
}
