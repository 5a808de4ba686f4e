package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/fiefdom/internal/engine"
)

const (
	maxFeedConns  = 64
	feedCatchUp   = 50
	feedPing      = 30 * time.Second
	feedWriteWait = 10 * time.Second
)

type feedCounter struct{ n atomic.Int32 }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// feedStart is a subscription opened before its catch-up read, so nothing
// recorded in between is lost. Live entries already sent as catch-up are
// skipped.
type feedStart struct {
	recent  []engine.LogEntry
	seen    map[string]bool
	entries <-chan engine.LogEntry
	cancel  func()
}

func (s *Server) openFeed(ctx context.Context, room string) (*feedStart, error) {
	entries, cancel := s.Eng.Subscribe(room)
	recent, err := s.Eng.Messages(ctx, room, feedCatchUp)
	if err != nil {
		cancel()
		return nil, err
	}
	seen := make(map[string]bool, len(recent))
	for _, e := range recent {
		seen[e.ID] = true
	}
	return &feedStart{recent: recent, seen: seen, entries: entries, cancel: cancel}, nil
}

// fresh reports whether a live entry was not part of the catch-up.
func (f *feedStart) fresh(e engine.LogEntry) bool {
	return !f.seen[e.ID]
}

// handleFeed streams a room's chronicle over a websocket: the most recent
// entries first, then each new entry as it is recorded.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if s.feed.n.Add(1) > maxFeedConns {
		s.feed.n.Add(-1)
		http.Error(w, "too many feed connections", http.StatusServiceUnavailable)
		return
	}
	defer s.feed.n.Add(-1)

	feed, err := s.openFeed(r.Context(), room)
	if err != nil {
		writeError(w, err)
		return
	}
	defer feed.cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("feed upgrade failed", "room", room, "error", err)
		return
	}
	defer conn.Close()

	for _, e := range feed.recent {
		conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}
	slog.Info("feed client connected", "room", room, "remote", r.RemoteAddr)

	// The read loop only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(feedPing)
	defer ping.Stop()
	for {
		select {
		case e, ok := <-feed.entries:
			if !ok {
				return
			}
			if !feed.fresh(e) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				slog.Info("feed client dropped", "room", room, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				return
			}
		case <-closed:
			slog.Info("feed client disconnected", "room", room)
			return
		case <-r.Context().Done():
			return
		}
	}
}
