package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/talgya/fiefdom/internal/economy"
	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/social"
	"github.com/talgya/fiefdom/internal/store"
)

// Contribute gives up to amount of res toward a building's next level. Only
// what the level still needs is taken, and only that much is debited.
func (e *Engine) Contribute(ctx context.Context, room, playerID, buildingID string, res players.Resource, amount int64) (*Outcome, error) {
	if amount <= 0 {
		return nil, invalid("amount must be positive")
	}
	def, ok := e.bal.Building(buildingID)
	if !ok {
		return nil, notFound("building %s not found", buildingID)
	}

	// A winner left behind by an interrupted level-up is settled before
	// anything else touches the building.
	if err := e.applyPendingWinner(ctx, room, buildingID); err != nil {
		e.log.Warn("pending winner not applied", "room", room, "building", buildingID, "error", err)
	}

	p, err := e.actor(ctx, room, playerID)
	if err != nil {
		return nil, err
	}
	have := p.Resources.Get(res)
	if have <= 0 {
		return nil, insufficient("you have no %s", res)
	}
	amount = min(amount, have)

	var result economy.ContributionResult
	if _, err := store.Update(ctx, e.store, buildingPath(room, buildingID), func(b *economy.Building, exists bool) error {
		if !exists {
			*b = economy.NewBuilding(def)
		}
		var err error
		result, err = b.Contribute(def, playerID, res, amount, e.bal.ContributionWeights)
		switch {
		case errors.Is(err, economy.ErrMaxLevel),
			errors.Is(err, economy.ErrResourceFull),
			errors.Is(err, economy.ErrNotRequired):
			return &ActionError{Kind: ErrInvalid, Reason: err.Error(), Err: err}
		}
		return err
	}); err != nil {
		return nil, err
	}

	name := def.Name
	if name == "" {
		name = def.ID
	}
	o := &Outcome{
		Message: fmt.Sprintf("%s contributed %d %s to %s", p.Name, result.Actual, res, name),
		Details: result,
	}
	if result.LeveledUp {
		o.Message += fmt.Sprintf("; it rises to level %d", result.NewLevel)
	}

	if result.WinnerID != "" {
		if err := e.applyPendingWinner(ctx, room, buildingID); err != nil {
			e.log.Warn("pending winner not applied", "room", room, "building", buildingID, "error", err)
		}
	}

	xp := result.Actual * e.bal.Yield.XPPerContribution
	if _, err := e.updatePlayer(ctx, room, playerID, func(p *players.Player) error {
		if err := debit(p, res, result.Actual); err != nil {
			return err
		}
		p.Stats.Contribution += result.Actual
		p.AddXP(xp)
		return nil
	}); err != nil {
		e.desync(ctx, room, playerID, "contribute "+string(res), err)
	} else {
		o.delta(playerID, res, -result.Actual)
		o.xp(playerID, xp)
	}

	e.record(ctx, room, "construction", playerID, o.Message, map[string]any{
		"building": buildingID, "resource": res, "actual": result.Actual, "level": result.NewLevel,
	})
	return o, nil
}

// applyPendingWinner installs a building's stashed leadership winner: the
// region first, then the winner, then the deposed ruler, and finally the
// pending marker is cleared if it still names the same winner. Every step is
// safe to repeat.
func (e *Engine) applyPendingWinner(ctx context.Context, room, buildingID string) error {
	b, ok, err := e.building(ctx, room, buildingID)
	if err != nil || !ok || !b.HasPending() {
		return err
	}
	winnerID, role, regionID := b.PendingWinnerID, b.PendingRole, b.PendingRegionID

	winner, err := e.player(ctx, room, winnerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.clearPending(ctx, room, buildingID, winnerID)
		}
		return err
	}

	var prev string
	if _, err := e.updateRegion(ctx, room, regionID, func(r *social.Region) error {
		prev = ""
		if r.RulerID == winnerID {
			return store.ErrNoChange
		}
		prev = r.SetRuler(winnerID, winner.Name, e.now())
		return nil
	}); err != nil {
		return fmt.Errorf("install %s in %s: %w", winnerID, regionID, err)
	}

	if err := e.promote(ctx, room, winnerID, role, regionID, e.bal.Politics.TitleLegitimacy); err != nil {
		e.desync(ctx, room, winnerID, "leadership title", err)
	}
	if prev != "" && prev != winnerID {
		if err := e.demote(ctx, room, prev); err != nil {
			e.desync(ctx, room, prev, "demote deposed ruler", err)
		}
	}
	e.clearPending(ctx, room, buildingID, winnerID)

	msg := fmt.Sprintf("%s is proclaimed %s of %s", winner.Name, role, regionID)
	e.log.Info("leadership title granted", "room", room, "player", winnerID, "role", role, "region", regionID)
	e.record(ctx, room, "political", winnerID, msg, map[string]any{"building": buildingID, "previous": prev})
	return nil
}

func (e *Engine) clearPending(ctx context.Context, room, buildingID, winnerID string) {
	if _, err := store.Update(ctx, e.store, buildingPath(room, buildingID), func(b *economy.Building, exists bool) error {
		if !exists || b.PendingWinnerID != winnerID {
			return store.ErrNoChange
		}
		b.ClearPending()
		return nil
	}); err != nil {
		e.log.Warn("clear pending winner failed", "room", room, "building", buildingID, "error", err)
	}
}

// Buildings returns every building record in the room, including ones
// nobody has contributed to yet.
func (e *Engine) Buildings(ctx context.Context, room string) ([]economy.Building, error) {
	if _, err := e.world(ctx, room); err != nil {
		return nil, err
	}
	stored, err := store.ReadAll[economy.Building](ctx, e.store, buildingsPath(room))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]economy.Building, len(stored))
	for _, b := range stored {
		byID[b.ID] = b
	}
	out := make([]economy.Building, 0, len(e.bal.Buildings))
	for _, def := range e.bal.Buildings {
		if b, ok := byID[def.ID]; ok {
			out = append(out, b)
			continue
		}
		out = append(out, economy.NewBuilding(def))
	}
	return out, nil
}
