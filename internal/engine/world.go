package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/talgya/fiefdom/internal/social"
	"github.com/talgya/fiefdom/internal/store"
)

// Season constants.
const (
	SeasonSpring = 0
	SeasonSummer = 1
	SeasonAutumn = 2
	SeasonWinter = 3
)

// SeasonName returns a human-readable season name.
func SeasonName(season uint8) string {
	switch season {
	case SeasonSpring:
		return "Spring"
	case SeasonSummer:
		return "Summer"
	case SeasonAutumn:
		return "Autumn"
	case SeasonWinter:
		return "Winter"
	default:
		return "Unknown"
	}
}

// World is the per-room singleton holding the clock and realm-wide state.
type World struct {
	Room       string    `json:"room"`
	Tick       uint64    `json:"tick"`
	Year       int       `json:"year"`
	Season     uint8     `json:"season"`
	LastTickAt time.Time `json:"lastTickAt"`
	CreatedAt  time.Time `json:"createdAt"`

	RolesAssigned  bool               `json:"rolesAssigned"`
	KingTaxRate    float64            `json:"kingTaxRate"`
	LastKingTaxKey string             `json:"lastKingTaxKey,omitempty"`
	TaxHistory     []social.TaxRecord `json:"taxHistory,omitempty"`

	Capital string   `json:"capital"`
	Outer   []string `json:"outer"`
}

// TaxKey identifies the current collection slot.
func (w *World) TaxKey() string { return fmt.Sprintf("%d-%s", w.Year, SeasonName(w.Season)) }

// SimTime renders the world's calendar position.
func (w *World) SimTime() string {
	return fmt.Sprintf("%s, Year %d (tick %d)", SeasonName(w.Season), w.Year, w.Tick)
}

// calendar derives year and season from a tick count.
func calendar(tick, ticksPerSeason uint64) (int, uint8) {
	if ticksPerSeason == 0 {
		ticksPerSeason = 1
	}
	seasons := tick / ticksPerSeason
	return int(seasons/4) + 1, uint8(seasons % 4)
}

// World returns the room's world record.
func (e *Engine) World(ctx context.Context, room string) (World, error) {
	return e.world(ctx, room)
}

// Advance moves the room's clock forward one tick if at least interval has
// passed since the last committed tick. Any number of callers may race; at
// most one commits per interval. It reports whether this call advanced.
// Every Clock.EntropyEvery ticks the entropy pass runs on the room's markets.
func (e *Engine) Advance(ctx context.Context, room string, interval time.Duration) (World, bool, error) {
	now := e.now()
	advanced := false
	var prevSeason uint8

	w, err := e.updateWorld(ctx, room, func(w *World) error {
		advanced = false
		if !w.LastTickAt.IsZero() && now.Sub(w.LastTickAt) < interval {
			return store.ErrNoChange
		}
		prevSeason = w.Season
		w.Tick++
		w.Year, w.Season = calendar(w.Tick, e.bal.Clock.TicksPerSeason)
		w.LastTickAt = now
		advanced = true
		return nil
	})
	if err != nil || !advanced {
		return w, false, err
	}

	if w.Season != prevSeason {
		e.log.Info("season turned", "room", room, "season", SeasonName(w.Season), "year", w.Year)
		e.record(ctx, room, "season", "", fmt.Sprintf("%s has come to the realm (year %d)", SeasonName(w.Season), w.Year), nil)
	}

	if every := e.bal.Clock.EntropyEvery; every > 0 && w.Tick%every == 0 {
		if n, err := e.EntropyPass(ctx, room, w.Tick); err != nil {
			e.log.Error("entropy pass failed", "room", room, "tick", w.Tick, "error", err)
		} else {
			e.log.Debug("entropy pass", "room", room, "tick", w.Tick, "cells", n)
		}
	}
	return w, true, nil
}
