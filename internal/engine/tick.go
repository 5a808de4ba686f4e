package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Clock drives the world clock of a set of rooms on a fixed interval.
type Clock struct {
	Engine   *Engine
	Rooms    []string
	Interval time.Duration // Base tick interval (default 1 minute)

	// OnTick is called after a room's clock commits a tick.
	OnTick func(room string, w World)

	running atomic.Bool
	stop    chan struct{}
}

// NewClock creates a clock for rooms.
func NewClock(e *Engine, rooms []string, interval time.Duration) *Clock {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Clock{
		Engine:   e,
		Rooms:    rooms,
		Interval: interval,
		stop:     make(chan struct{}, 1),
	}
}

// Run ticks until ctx is done or Stop is called.
func (c *Clock) Run(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	slog.Info("world clock started", "rooms", c.Rooms, "interval", c.Interval)

	t := time.NewTicker(c.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.running.Store(false)
			slog.Info("world clock stopped", "reason", ctx.Err())
			return
		case <-c.stop:
			c.running.Store(false)
			slog.Info("world clock stopped")
			return
		case <-t.C:
			c.Step(ctx)
		}
	}
}

// Running reports whether Run is active.
func (c *Clock) Running() bool { return c.running.Load() }

// Stop halts Run.
func (c *Clock) Stop() {
	if c.running.Load() {
		select {
		case c.stop <- struct{}{}:
		default:
		}
	}
}

// Step attempts one advance on every room.
func (c *Clock) Step(ctx context.Context) {
	for _, room := range c.Rooms {
		// A little slack so a ticker firing early never loses its slot.
		w, advanced, err := c.Engine.Advance(ctx, room, c.Interval*9/10)
		if err != nil {
			slog.Error("clock advance failed", "room", room, "error", err)
			continue
		}
		if advanced && c.OnTick != nil {
			c.OnTick(room, w)
		}
	}
}
