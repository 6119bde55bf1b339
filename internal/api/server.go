// Package api serves the telemetry store over HTTP: history, stats and a
// websocket live tail.
package api

import (
	"context"
	"encoding/json"
	"iter"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/logger"
	"codeberg.org/mutker/sensorlog/internal/query"
	"codeberg.org/mutker/sensorlog/internal/store"
	"codeberg.org/mutker/sensorlog/internal/tail"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Store is everything the HTTP surface reads.
type Store interface {
	MaxID(ctx context.Context) (int64, error)
	QueryAfter(ctx context.Context, lastID int64) ([]telemetry.Record, error)
	QueryRange(ctx context.Context, start, end time.Time, order telemetry.Order) iter.Seq2[telemetry.Record, error]
	Stats(ctx context.Context, start, end time.Time) (store.Stats, error)
}

type Config struct {
	PollInterval time.Duration
	ViewLimit    int
}

type Server struct {
	store Store
	query *query.RangeQuery
	cfg   Config
	log   logger.Logger
	now   func() time.Time
}

func New(st Store, cfg Config, log logger.Logger) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ViewLimit <= 0 {
		cfg.ViewLimit = tail.DefaultViewLimit
	}

	return &Server{
		store: st,
		query: query.New(st),
		cfg:   cfg,
		log:   log.With("api"),
		now:   time.Now,
	}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/records", s.handleAfter)
		r.Get("/records/max-id", s.handleMaxID)
		r.Get("/records/range", s.handleRange)
		r.Get("/records/stats", s.handleStats)
		r.Get("/ws/tail", s.handleTail)
	})

	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.New().Wrap(errors.ErrInitFailed, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New().Wrap(errors.ErrOperationFailed, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug().Err(err).Msg("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.HasCode(err, query.ErrInvalidRange, errors.ErrInvalidArgument):
		status = http.StatusBadRequest
	case store.IsStorageError(err):
		s.log.ErrorWithContext(err, "api", r.URL.Path).Msg("Store request failed")
	}

	body := errorBody{Error: err.Error()}
	if code, ok := errors.CodeOf(err); ok {
		body.Code = string(code)
	}
	s.writeJSON(w, status, body)
}
