package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/akarpov87/mealkeep/internal/common"
)

// Subscribe opens a websocket change feed for the owner's collection.
// The returned subscription keeps delivering events until the connection
// drops or Close is called; the engine treats a drop as non-fatal and
// re-subscribes on the next trigger.
func (s *HTTPStore) Subscribe(ctx context.Context, ownerID string) (Subscription, error) {
	wsURL, err := changesURL(s.baseURL, ownerID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if token := s.tokens.Token(); token != "" {
		header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}

	sub := &wsSubscription{
		conn:   conn,
		events: make(chan Event),
	}
	go sub.readLoop()
	return sub, nil
}

func changesURL(baseURL, ownerID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("bad base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("bad base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") +
		fmt.Sprintf("/api/v1/owners/%s/changes", url.PathEscape(ownerID))
	return u.String(), nil
}

type wsSubscription struct {
	conn   *websocket.Conn
	events chan Event

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *wsSubscription) readLoop() {
	defer close(s.events)
	for {
		var ev Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			s.mu.Lock()
			if !s.closed {
				s.err = err
			}
			s.mu.Unlock()
			return
		}
		s.events <- ev
	}
}

func (s *wsSubscription) Events() <-chan Event { return s.events }

func (s *wsSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsSubscription) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}
