package tail

import "codeberg.org/mutker/sensorlog/internal/telemetry"

// DefaultViewLimit is how many rows a live view keeps.
const DefaultViewLimit = 1000

// Window holds the newest records of a live view, newest first. It is not
// safe for concurrent use.
type Window struct {
	limit   int
	records []telemetry.Record
}

func NewWindow(limit int) *Window {
	if limit <= 0 {
		limit = DefaultViewLimit
	}
	return &Window{limit: limit}
}

// Push adds a batch as returned by Poll (ascending by id) and evicts the
// oldest rows beyond the limit. It returns the part of batch that entered
// the window, ascending by id, which is what a view still needs to show.
func (w *Window) Push(batch []telemetry.Record) []telemetry.Record {
	if len(batch) == 0 {
		return nil
	}

	admitted := batch[len(batch)-min(len(batch), w.limit):]

	next := make([]telemetry.Record, 0, min(w.limit, len(admitted)+len(w.records)))
	for i := len(admitted) - 1; i >= 0; i-- {
		next = append(next, admitted[i])
	}

	room := w.limit - len(next)
	next = append(next, w.records[:min(room, len(w.records))]...)
	w.records = next

	return append([]telemetry.Record(nil), admitted...)
}

// Records returns the window contents, newest first.
func (w *Window) Records() []telemetry.Record {
	return append([]telemetry.Record(nil), w.records...)
}

func (w *Window) Len() int {
	return len(w.records)
}
