// Package stream relays search events over a websocket: the server side writes
// one JSON text frame per event, the client side turns the frames back into a
// channel of events.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CrispStrobe/allmyposts/internal/domain"
)

const writeTimeout = 10 * time.Second

// Producer starts a search bound to ctx and returns its events.
type Producer func(ctx context.Context) <-chan domain.SearchEvent

// Relay upgrades HTTP requests and writes search events to the socket.
type Relay struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewRelay returns a Relay that accepts connections from any origin.
func NewRelay(logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Serve upgrades the connection and relays every event produced until the
// producer closes its channel. A client that disconnects cancels the search.
func (rl *Relay) Serve(w http.ResponseWriter, r *http.Request, produce Producer) error {
	conn, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends data frames; reading only surfaces its close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	var sent int64
	var writeErr error
	for ev := range produce(ctx) {
		if writeErr != nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			writeErr = fmt.Errorf("write event: %w", err)
			cancel()
			continue
		}
		sent++
	}
	if writeErr != nil {
		return writeErr
	}

	rl.logger.Info("search stream finished", "events_sent", sent)
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
