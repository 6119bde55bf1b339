package api

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/mutker/sensorlog/internal/tail"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// tailMessage is sent to live tail clients. The first message is a hello
// carrying the cursor start; every later one carries a single record.
type tailMessage struct {
	Type   string            `json:"type"`
	LastID *int64            `json:"last_id,omitempty"`
	Record *telemetry.Record `json:"record,omitempty"`
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	cursor, err := tail.New(r.Context(), s.store, s.log)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.readPump(conn, cancel)

	s.log.Debug().Str("remote", conn.RemoteAddr().String()).Int64("last_id", cursor.LastSeen()).Msg("Tail client connected")

	lastID := cursor.LastSeen()
	if err := writeMessage(conn, tailMessage{Type: "hello", LastID: &lastID}); err != nil {
		return
	}

	s.writePump(ctx, conn, cursor)
}

// readPump discards client messages and cancels the tail once the peer goes
// away.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("websocket read")
			}
			return
		}
	}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, cursor *tail.Cursor) {
	// A client that fell behind only needs the rows its view keeps.
	window := tail.NewWindow(s.cfg.ViewLimit)

	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-poll.C:
			records, err := cursor.Poll(ctx)
			if err != nil {
				s.log.ErrorWithContext(err, "api", "tail").Msg("Poll failed")
				continue
			}

			records = window.Push(records)
			for i := range records {
				if err := writeMessage(conn, tailMessage{Type: "record", Record: &records[i]}); err != nil {
					return
				}
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg tailMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
