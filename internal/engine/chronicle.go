package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/fiefdom/internal/store"
)

// LogEntry is one line of a room's chronicle.
type LogEntry struct {
	ID       string         `json:"id"`
	Room     string         `json:"room"`
	At       time.Time      `json:"at"`
	Tick     uint64         `json:"tick"`
	Category string         `json:"category"` // "market", "political", "tax", "construction", "desync", ...
	ActorID  string         `json:"actorId,omitempty"`
	Message  string         `json:"message"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Chronicle is the stored, bounded message log of a room.
type Chronicle struct {
	Entries []LogEntry `json:"entries"`
}

const defaultChronicleCap = 200

// record appends an entry to the room's chronicle and publishes it to feed
// subscribers. Failures are logged and never returned: the action it
// describes has already committed.
func (e *Engine) record(ctx context.Context, room, category, actor, msg string, meta map[string]any) {
	entry := LogEntry{
		ID:       uuid.NewString(),
		Room:     room,
		At:       e.now(),
		Category: category,
		ActorID:  actor,
		Message:  msg,
		Meta:     meta,
	}
	if t, ok := e.ticks.Load(room); ok {
		entry.Tick = t.(uint64)
	}

	limit := e.bal.ChronicleCap
	if limit <= 0 {
		limit = defaultChronicleCap
	}
	if _, err := store.Update(ctx, e.store, messagesPath(room), func(c *Chronicle, _ bool) error {
		c.Entries = append(c.Entries, entry)
		if len(c.Entries) > limit {
			c.Entries = append([]LogEntry(nil), c.Entries[len(c.Entries)-limit:]...)
		}
		return nil
	}); err != nil {
		e.log.Error("chronicle append failed", "room", room, "category", category, "error", err)
	}
	e.feed.publish(entry)
}

// desync records a second-phase failure. The first phase stays committed.
func (e *Engine) desync(ctx context.Context, room, actor, op string, err error) {
	e.log.Warn("ledger desync", "room", room, "actor", actor, "op", op, "error", err)
	e.record(ctx, room, "desync", actor, fmt.Sprintf("%s left the ledger out of step: %v", op, err),
		map[string]any{"op": op})
}

// Messages returns up to limit of the room's most recent chronicle entries,
// oldest first. limit <= 0 returns all of them.
func (e *Engine) Messages(ctx context.Context, room string, limit int) ([]LogEntry, error) {
	c, err := store.Read[Chronicle](ctx, e.store, messagesPath(room))
	if err != nil {
		if _, werr := e.world(ctx, room); werr != nil {
			return nil, werr
		}
		return []LogEntry{}, nil
	}
	entries := c.Entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Subscribe streams chronicle entries for room as they are recorded. The
// returned cancel func must be called to release the subscription. Slow
// subscribers miss entries rather than block writers.
func (e *Engine) Subscribe(room string) (<-chan LogEntry, func()) {
	return e.feed.subscribe(room)
}

type hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan LogEntry]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan LogEntry]struct{})}
}

func (h *hub) subscribe(room string) (<-chan LogEntry, func()) {
	ch := make(chan LogEntry, 64)
	h.mu.Lock()
	if h.subs[room] == nil {
		h.subs[room] = make(map[chan LogEntry]struct{})
	}
	h.subs[room][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[room], ch)
			if len(h.subs[room]) == 0 {
				delete(h.subs, room)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *hub) publish(entry LogEntry) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[entry.Room] {
		select {
		case ch <- entry:
		default:
		}
	}
}
