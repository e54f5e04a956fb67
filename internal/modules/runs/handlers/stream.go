package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/phaselock/internal/events"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// writeTimeout bounds a single event write to a stream client.
const writeTimeout = 5 * time.Second

// StreamHandler pushes run lifecycle events to websocket clients.
type StreamHandler struct {
	events         *events.Manager
	originPatterns []string
	log            zerolog.Logger
}

// NewStreamHandler creates a stream handler. originPatterns lists the
// accepted cross-origin hosts; nil accepts same-origin clients only.
func NewStreamHandler(manager *events.Manager, originPatterns []string, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		events:         manager,
		originPatterns: originPatterns,
		log:            log.With().Str("handler", "run_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/runs/stream
func (s *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to accept stream connection")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	// The client only reads; CloseRead cancels ctx once it goes away.
	ctx := conn.CloseRead(r.Context())
	s.log.Debug().Int("subscribers", s.events.Subscribers()).Msg("Stream client connected")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := s.write(ctx, conn, ev); err != nil {
				s.log.Debug().Err(err).Msg("Stream client dropped")
				return
			}
		}
	}
}

func (s *StreamHandler) write(ctx context.Context, conn *websocket.Conn, ev events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
