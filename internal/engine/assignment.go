package engine

import (
	"context"
	"fmt"

	"github.com/talgya/fiefdom/internal/entropy"
	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/social"
	"github.com/talgya/fiefdom/internal/store"
)

// Assignment is one player's role from AssignRoles.
type Assignment struct {
	PlayerID string       `json:"playerId"`
	Role     players.Role `json:"role"`
	RegionID string       `json:"regionId"`
}

// AssignRoles hands out the realm's roles once per room: a King for the
// capital, a Baron for each outer region, a share of merchants and
// soldiers, and peasants spread across the outer regions. The world's
// RolesAssigned flag is claimed first, so concurrent callers assign once.
func (e *Engine) AssignRoles(ctx context.Context, room string) (*Outcome, error) {
	w, err := e.updateWorld(ctx, room, func(w *World) error {
		if w.RolesAssigned {
			return invalid("roles have already been assigned")
		}
		w.RolesAssigned = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	all, err := e.allPlayers(ctx, room)
	if err != nil {
		return nil, err
	}
	pool := make([]players.Player, 0, len(all))
	for _, p := range all {
		if p.Active {
			pool = append(pool, p)
		}
	}
	entropy.Shuffle(e.rand, len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	plan := e.planRoles(pool, w)
	for _, a := range plan {
		if _, err := e.updatePlayer(ctx, room, a.PlayerID, func(p *players.Player) error {
			p.Assign(a.Role, a.RegionID)
			return nil
		}); err != nil {
			e.desync(ctx, room, a.PlayerID, "role assignment", err)
			continue
		}
		if !a.Role.IsRuler() {
			continue
		}
		name := a.PlayerID
		for _, p := range pool {
			if p.ID == a.PlayerID {
				name = p.Name
			}
		}
		if _, err := e.updateRegion(ctx, room, a.RegionID, func(r *social.Region) error {
			if r.RulerID == a.PlayerID {
				return store.ErrNoChange
			}
			r.Install(a.PlayerID, name)
			return nil
		}); err != nil {
			e.desync(ctx, room, a.PlayerID, "install ruler", err)
		}
	}

	counts := map[players.Role]int{}
	for _, a := range plan {
		counts[a.Role]++
	}
	msg := fmt.Sprintf("The realm is ordered: %d king, %d barons, %d merchants, %d soldiers, %d peasants",
		counts[players.RoleKing], counts[players.RoleBaron], counts[players.RoleMerchant],
		counts[players.RoleSoldier], counts[players.RolePeasant])
	e.log.Info("roles assigned", "room", room, "players", len(plan))
	e.record(ctx, room, "political", "", msg, nil)
	return &Outcome{Message: msg, Details: plan}, nil
}

// planRoles decides every assignment for an already shuffled pool.
func (e *Engine) planRoles(pool []players.Player, w World) []Assignment {
	rules := e.bal.Roles
	outer := w.Outer
	plan := make([]Assignment, 0, len(pool))
	if len(pool) == 0 {
		return plan
	}

	plan = append(plan, Assignment{pool[0].ID, players.RoleKing, w.Capital})
	rest := pool[1:]

	barons := min(len(outer), 2, len(rest))
	for i := 0; i < barons; i++ {
		plan = append(plan, Assignment{rest[i].ID, players.RoleBaron, outer[i]})
	}
	rest = rest[barons:]

	n := len(rest)
	merchants, soldiers := 0, 0
	if n >= rules.MinPoolForSpecialists && n > 0 {
		merchants = max(1, int(float64(n)*rules.MerchantShare))
		soldiers = max(1, int(float64(n)*rules.SoldierShare))
		if merchants+soldiers > n {
			soldiers = n - merchants
		}
	}

	home := func(i int) string {
		if len(outer) == 0 {
			return w.Capital
		}
		return outer[i%len(outer)]
	}
	for i, p := range rest {
		role := players.RolePeasant
		switch {
		case i < merchants:
			role = players.RoleMerchant
		case i < merchants+soldiers:
			role = players.RoleSoldier
		}
		plan = append(plan, Assignment{p.ID, role, home(i)})
	}
	return plan
}
