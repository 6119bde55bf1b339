package api

import (
	"net/http"
	"strconv"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/query"
	"codeberg.org/mutker/sensorlog/internal/store"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
)

func (s *Server) handleMaxID(w http.ResponseWriter, r *http.Request) {
	maxID, err := s.store.MaxID(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"max_id": maxID})
}

func (s *Server) handleAfter(w http.ResponseWriter, r *http.Request) {
	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			s.writeError(w, r, errors.New().WithData(errors.ErrInvalidArgument, "after="+v))
			return
		}
		after = n
	}

	records, err := s.store.QueryAfter(r.Context(), after)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []telemetry.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	return query.ParseBounds(q.Get("from"), q.Get("to"), q.Get("preset"), s.now())
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	start, end, err := s.parseRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	seq, err := s.query.Run(r.Context(), start, end, telemetry.Order(r.URL.Query().Get("order")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	records, err := store.Collect(seq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []telemetry.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	start, end, err := s.parseRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if start.After(end) {
		s.writeError(w, r, errors.New().WithData(query.ErrInvalidRange, "from is after to"))
		return
	}

	stats, err := s.store.Stats(r.Context(), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}
