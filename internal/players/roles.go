package players

import "time"

// Kit is the starting bundle a role is assigned with.
type Kit struct {
	Resources Resources
	Status    Status
	Equipment map[string]string
}

var kits = map[Role]Kit{
	RoleKing: {
		Resources: Resources{Gold: 1000, Grain: 50, Wood: 20, Stone: 20},
		Status:    Status{HP: 100, Stamina: 100, Morale: 80, Legitimacy: 100, Authority: 100, Loyalty: 50},
		Equipment: map[string]string{"head": "crown", "hand": "scepter", "body": "royal_robe"},
	},
	RoleBaron: {
		Resources: Resources{Gold: 500, Grain: 30, Wood: 15, Stone: 15},
		Status:    Status{HP: 100, Stamina: 100, Morale: 70, Legitimacy: 80, Authority: 60, Loyalty: 60},
		Equipment: map[string]string{"head": "circlet", "hand": "signet_ring", "body": "fine_tunic"},
	},
	RoleSoldier: {
		Resources: Resources{Gold: 100, Grain: 20, Iron: 5},
		Status:    Status{HP: 100, Stamina: 100, Morale: 60, Legitimacy: 0, Authority: 20, Loyalty: 70},
		Equipment: map[string]string{"hand": "spear", "body": "chainmail"},
	},
	RoleMerchant: {
		Resources: Resources{Gold: 300, Grain: 10, Wool: 10, Cloth: 5},
		Status:    Status{HP: 90, Stamina: 100, Morale: 70, Legitimacy: 0, Authority: 10, Loyalty: 40},
		Equipment: map[string]string{"hand": "ledger", "body": "traveling_cloak"},
	},
	RolePeasant: {
		Resources: Resources{Gold: 20, Grain: 15, Wood: 5},
		Status:    Status{HP: 100, Stamina: 100, Morale: 50, Legitimacy: 0, Authority: 0, Loyalty: 50},
		Equipment: map[string]string{"hand": "pitchfork", "body": "rags"},
	},
}

// StartingKit returns an independent copy of the role's starting bundle.
func StartingKit(r Role) Kit {
	k := kits[r]
	eq := make(map[string]string, len(k.Equipment))
	for slot, item := range k.Equipment {
		eq[slot] = item
	}
	return Kit{Resources: k.Resources.Clone(), Status: k.Status, Equipment: eq}
}

// New creates an active Peasant with the peasant starting kit.
func New(id, name, region string, now time.Time) *Player {
	p := &Player{
		ID:       id,
		Name:     name,
		Active:   true,
		JoinedAt: now,
		Items:    map[string]int{},
		Stats:    Stats{Level: 1},
	}
	p.Assign(RolePeasant, region)
	return p
}

// Assign gives the player a role and region along with that role's starting
// resources, status block and equipment. Progression stats are kept.
func (p *Player) Assign(r Role, region string) {
	kit := StartingKit(r)
	p.Role = r
	p.RegionID = region
	p.Resources = kit.Resources
	p.Status = kit.Status
	p.Equipment = kit.Equipment
	if p.Items == nil {
		p.Items = map[string]int{}
	}
	if p.Stats.Level == 0 {
		p.Stats.Level = 1
	}
}

// DefaultVoteWeight is the election weight of a role's ballot when the
// balance tables do not override it.
func (r Role) DefaultVoteWeight() int {
	switch r {
	case RoleKing:
		return 10
	case RoleBaron:
		return 5
	case RoleSoldier, RoleMerchant:
		return 2
	default:
		return 1
	}
}
