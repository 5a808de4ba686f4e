package engine

import (
	"context"
	"errors"

	"github.com/talgya/fiefdom/internal/economy"
	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/social"
	"github.com/talgya/fiefdom/internal/store"
)

func (e *Engine) player(ctx context.Context, room, id string) (players.Player, error) {
	p, err := store.Read[players.Player](ctx, e.store, playerPath(room, id))
	if errors.Is(err, store.ErrNotFound) {
		return p, notFound("player %s not found", id)
	}
	return p, err
}

// actor reads the player initiating an action and checks they may act.
func (e *Engine) actor(ctx context.Context, room, id string) (players.Player, error) {
	p, err := e.player(ctx, room, id)
	if err != nil {
		return p, err
	}
	if err := p.CanAct(); err != nil {
		return p, asInvalid(err)
	}
	return p, nil
}

// updatePlayer runs fn in one transaction on an existing player node and
// then refreshes the derived profile.
func (e *Engine) updatePlayer(ctx context.Context, room, id string, fn func(p *players.Player) error) (players.Player, error) {
	p, err := store.Update(ctx, e.store, playerPath(room, id), func(p *players.Player, exists bool) error {
		if !exists {
			return notFound("player %s not found", id)
		}
		p.Ledger()
		return fn(p)
	})
	if err != nil {
		return p, err
	}
	e.writeProfile(ctx, room, p)
	return p, nil
}

func (e *Engine) writeProfile(ctx context.Context, room string, p players.Player) {
	prof := p.Profile()
	if _, err := store.Update(ctx, e.store, profilePath(room, p.ID), func(v *players.Profile, _ bool) error {
		if *v == prof {
			return store.ErrNoChange
		}
		*v = prof
		return nil
	}); err != nil {
		e.log.Warn("profile refresh failed", "room", room, "player", p.ID, "error", err)
	}
}

func (e *Engine) allPlayers(ctx context.Context, room string) ([]players.Player, error) {
	return store.ReadAll[players.Player](ctx, e.store, playersPath(room))
}

func (e *Engine) region(ctx context.Context, room, id string) (social.Region, error) {
	r, err := store.Read[social.Region](ctx, e.store, regionPath(room, id))
	if errors.Is(err, store.ErrNotFound) {
		return r, notFound("region %s not found", id)
	}
	return r, err
}

func (e *Engine) updateRegion(ctx context.Context, room, id string, fn func(r *social.Region) error) (social.Region, error) {
	return store.Update(ctx, e.store, regionPath(room, id), func(r *social.Region, exists bool) error {
		if !exists {
			return notFound("region %s not found", id)
		}
		return fn(r)
	})
}

func (e *Engine) world(ctx context.Context, room string) (World, error) {
	w, err := store.Read[World](ctx, e.store, worldPath(room))
	if errors.Is(err, store.ErrNotFound) {
		return w, notFound("room %s not found", room)
	}
	if err == nil {
		e.ticks.Store(room, w.Tick)
	}
	return w, err
}

func (e *Engine) updateWorld(ctx context.Context, room string, fn func(w *World) error) (World, error) {
	w, err := store.Update(ctx, e.store, worldPath(room), func(w *World, exists bool) error {
		if !exists {
			return notFound("room %s not found", room)
		}
		return fn(w)
	})
	if err == nil {
		e.ticks.Store(room, w.Tick)
	}
	return w, err
}

func (e *Engine) building(ctx context.Context, room, id string) (economy.Building, bool, error) {
	b, err := store.Read[economy.Building](ctx, e.store, buildingPath(room, id))
	if errors.Is(err, store.ErrNotFound) {
		return b, false, nil
	}
	return b, err == nil, err
}

// regionID normalizes a caller-supplied region id.
func regionID(s string) string { return social.NormalizeRegionID(s) }
