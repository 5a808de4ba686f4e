package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/talgya/fiefdom/internal/players"
)

// Credit adds amount of res to the player in one transaction.
func (e *Engine) Credit(ctx context.Context, room, playerID string, res players.Resource, amount int64) (players.Player, error) {
	if amount <= 0 {
		return players.Player{}, invalid("amount must be positive")
	}
	return e.updatePlayer(ctx, room, playerID, func(p *players.Player) error {
		return p.Resources.Credit(res, amount)
	})
}

// Debit removes amount of res from the player in one transaction. The
// balance is checked inside the transaction, so concurrent debits can never
// drive it negative.
func (e *Engine) Debit(ctx context.Context, room, playerID string, res players.Resource, amount int64) (players.Player, error) {
	if amount <= 0 {
		return players.Player{}, invalid("amount must be positive")
	}
	return e.updatePlayer(ctx, room, playerID, func(p *players.Player) error {
		return debit(p, res, amount)
	})
}

func debit(p *players.Player, res players.Resource, amount int64) error {
	if err := p.Resources.Debit(res, amount); err != nil {
		if errors.Is(err, players.ErrInsufficient) {
			return insufficient("not enough %s", res)
		}
		return err
	}
	return nil
}

// GrantYield credits what a player earned outside the economy (the arcade
// and mini-games). Each grant is capped and awards experience.
func (e *Engine) GrantYield(ctx context.Context, room, playerID string, res players.Resource, amount int64, source string) (*Outcome, error) {
	if amount <= 0 {
		return nil, invalid("amount must be positive")
	}
	if _, err := e.actor(ctx, room, playerID); err != nil {
		return nil, err
	}
	if limit := e.bal.Yield.MaxPerGrant; limit > 0 && amount > limit {
		amount = limit
	}
	xp := amount * e.bal.Yield.XPPerUnit

	p, err := e.updatePlayer(ctx, room, playerID, func(p *players.Player) error {
		if err := p.Resources.Credit(res, amount); err != nil {
			return err
		}
		p.AddXP(xp)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if source == "" {
		source = "the wilds"
	}
	o := &Outcome{Message: fmt.Sprintf("%s brought back %d %s from %s", p.Name, amount, res, source)}
	o.delta(p.ID, res, amount)
	o.xp(p.ID, xp)
	e.record(ctx, room, "yield", p.ID, o.Message, map[string]any{"source": source})
	return o, nil
}

// AdminGrant adds resources and items to a player directly.
func (e *Engine) AdminGrant(ctx context.Context, room, playerID string, resources map[players.Resource]int64, items map[string]int) (*Outcome, error) {
	if len(resources) == 0 && len(items) == 0 {
		return nil, invalid("a grant needs at least one resource or item")
	}
	for res, n := range resources {
		if n <= 0 {
			return nil, invalid("grant of %s must be positive", res)
		}
	}
	for item, n := range items {
		if n <= 0 {
			return nil, invalid("grant of %s must be positive", item)
		}
	}

	p, err := e.updatePlayer(ctx, room, playerID, func(p *players.Player) error {
		for res, n := range resources {
			if err := p.Resources.Credit(res, n); err != nil {
				return err
			}
		}
		if p.Items == nil {
			p.Items = map[string]int{}
		}
		for item, n := range items {
			p.Items[item] += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o := &Outcome{}
	var parts []string
	for _, res := range sortedResources(resources) {
		o.delta(p.ID, res, resources[res])
		parts = append(parts, fmt.Sprintf("%d %s", resources[res], res))
	}
	names := make([]string, 0, len(items))
	for item := range items {
		names = append(names, item)
	}
	sort.Strings(names)
	for _, item := range names {
		parts = append(parts, fmt.Sprintf("%d %s", items[item], item))
	}
	o.Message = fmt.Sprintf("The crown's stewards granted %s to %s", strings.Join(parts, ", "), p.Name)
	e.record(ctx, room, "admin", p.ID, o.Message, nil)
	return o, nil
}

// Restrict sets or lifts a player's jail and freeze flags.
func (e *Engine) Restrict(ctx context.Context, room, playerID string, jailed, frozen bool) (*Outcome, error) {
	p, err := e.updatePlayer(ctx, room, playerID, func(p *players.Player) error {
		p.Status.Jailed = jailed
		p.Status.Frozen = frozen
		return nil
	})
	if err != nil {
		return nil, err
	}
	o := &Outcome{Message: fmt.Sprintf("%s: jailed=%t frozen=%t", p.Name, jailed, frozen)}
	e.record(ctx, room, "admin", p.ID, o.Message, nil)
	return o, nil
}

// Rest restores stamina and health. Rulers gain a little legitimacy.
func (e *Engine) Rest(ctx context.Context, room, playerID string) (*Outcome, error) {
	if _, err := e.actor(ctx, room, playerID); err != nil {
		return nil, err
	}
	r := e.bal.Rest
	p, err := e.updatePlayer(ctx, room, playerID, func(p *players.Player) error {
		p.Status.Stamina = players.Clamp(p.Status.Stamina+r.Stamina, 0, 100)
		p.Status.HP = players.Clamp(p.Status.HP+r.HP, 0, 100)
		if p.Role.IsRuler() {
			p.AdjustLegitimacy(r.RulerLegitimacy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Message: fmt.Sprintf("%s rests (stamina %.0f, hp %.0f)", p.Name, p.Status.Stamina, p.Status.HP)}, nil
}

func sortedResources[V any](m map[players.Resource]V) []players.Resource {
	out := make([]players.Resource, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
