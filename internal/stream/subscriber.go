package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/CrispStrobe/allmyposts/internal/domain"
)

// Subscriber reads a remote search stream.
type Subscriber struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewSubscriber returns a Subscriber for the stream endpoint at streamURL
// (ws:// or wss://).
func NewSubscriber(streamURL string, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		url:    streamURL,
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

func (s *Subscriber) buildURL(req domain.SearchRequest) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	q := u.Query()
	for k, vs := range EncodeRequest(req) {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe starts a remote search. The returned channel carries the events
// as received and is closed after the close event, when the connection fails
// (after a synthesized error event) or when ctx is cancelled.
func (s *Subscriber) Subscribe(ctx context.Context, req domain.SearchRequest) (<-chan domain.SearchEvent, error) {
	wsURL, err := s.buildURL(req)
	if err != nil {
		return nil, err
	}

	s.logger.Info("connecting to search stream", "url", wsURL)
	conn, _, err := s.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial search stream: %w", err)
	}

	events := make(chan domain.SearchEvent)
	go func() {
		defer close(events)
		defer conn.Close()

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		send := func(ev domain.SearchEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var received, posts int64
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					s.logger.Warn("search stream read failed", "error", err)
				}
				send(domain.SearchEvent{Type: domain.SearchEventError, Error: readErrorMessage(err)})
				return
			}

			ev, err := parseEvent(message)
			if err != nil {
				s.logger.Error("failed to parse event", "error", err)
				continue
			}
			received++
			if ev.Type == domain.SearchEventPost {
				posts++
				s.logger.Debug("search result",
					"platform", ev.Platform,
					"text_preview", domain.Truncate(ev.Post.Text, 80),
				)
			}

			if !send(*ev) {
				return
			}
			if ev.Type == domain.SearchEventClose {
				s.logger.Info("search stream closed", "events_received", received, "posts_received", posts)
				return
			}
		}
	}()

	return events, nil
}

func readErrorMessage(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return "search stream ended before completion"
	}
	return fmt.Sprintf("read search stream: %v", err)
}
