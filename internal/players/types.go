// Package players provides the player record, the closed set of feudal roles
// and the resource ledger arithmetic every engine component moves value with.
package players

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is a player's position in the feudal hierarchy.
type Role uint8

const (
	RolePeasant  Role = iota // Default class; pays the Baron of its region
	RoleMerchant             // Pays the King at a reduced rate
	RoleSoldier              // Pays the King at a reduced rate
	RoleBaron                // Rules one outer region
	RoleKing                 // Rules the capital
)

var roleNames = [...]string{"PEASANT", "MERCHANT", "SOLDIER", "BARON", "KING"}

// AllRoles lists every role from lowest to highest.
var AllRoles = []Role{RolePeasant, RoleMerchant, RoleSoldier, RoleBaron, RoleKing}

// ErrInvalidRole is returned when parsing an unknown role name.
var ErrInvalidRole = errors.New("invalid role")

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool { return int(r) < len(roleNames) }

// IsRuler reports whether the role holds a region.
func (r Role) IsRuler() bool { return r == RoleKing || r == RoleBaron }

// LowerClass reports whether the role receives bribe stimulus.
func (r Role) LowerClass() bool { return r == RolePeasant || r == RoleSoldier }

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range roleNames {
		if name == s {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name; unknown names are rejected.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Status holds a player's bounded 0–100 scores and restriction flags.
type Status struct {
	HP         float64 `json:"hp"`
	Stamina    float64 `json:"stamina"`
	Morale     float64 `json:"morale"`
	Legitimacy float64 `json:"legitimacy"`
	Authority  float64 `json:"authority"`
	Loyalty    float64 `json:"loyalty"`
	Jailed     bool    `json:"jailed"`
	Frozen     bool    `json:"frozen"`
}

// Stats tracks progression.
type Stats struct {
	Level        int   `json:"level"`
	XP           int64 `json:"xp"`
	Reputation   int   `json:"reputation"`
	Contribution int64 `json:"contribution"`
}

// XPPerLevel is the experience needed for each level.
const XPPerLevel = 100

// Player is one participant in a room. Players are never deleted;
// Active=false marks them inactive.
type Player struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Role      Role              `json:"role"`
	RegionID  string            `json:"regionId"`
	Resources Resources         `json:"resources"`
	Status    Status            `json:"status"`
	Stats     Stats             `json:"stats"`
	Equipment map[string]string `json:"equipment,omitempty"` // slot → item
	Items     map[string]int    `json:"items,omitempty"`
	Active    bool              `json:"active"`
	JoinedAt  time.Time         `json:"joinedAt"`
}

// Profile is the public summary derived from a Player record.
type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	RegionID string `json:"regionId"`
	Level    int    `json:"level"`
	Gold     int64  `json:"gold"`
	Active   bool   `json:"active"`
}

var (
	ErrJailed   = errors.New("you are jailed")
	ErrFrozen   = errors.New("your assets are frozen")
	ErrInactive = errors.New("player is inactive")
)

// CanAct reports why the player may not initiate an action, if anything.
func (p *Player) CanAct() error {
	switch {
	case !p.Active:
		return ErrInactive
	case p.Status.Jailed:
		return ErrJailed
	case p.Status.Frozen:
		return ErrFrozen
	}
	return nil
}

// AddXP grants experience and recomputes the level.
func (p *Player) AddXP(n int64) {
	if n <= 0 {
		return
	}
	p.Stats.XP += n
	p.Stats.Level = 1 + int(p.Stats.XP/XPPerLevel)
}

// Profile derives the public summary.
func (p *Player) Profile() Profile {
	return Profile{
		ID:       p.ID,
		Name:     p.Name,
		Role:     p.Role,
		RegionID: p.RegionID,
		Level:    p.Stats.Level,
		Gold:     p.Resources.Get(Gold),
		Active:   p.Active,
	}
}

// Demote strips a deposed or abdicating ruler to Peasant and zeroes legitimacy.
func (p *Player) Demote() {
	p.Role = RolePeasant
	p.Status.Legitimacy = 0
}

// AdjustLegitimacy adds delta and clamps to [0,100].
func (p *Player) AdjustLegitimacy(delta float64) {
	p.Status.Legitimacy = Clamp(p.Status.Legitimacy+delta, 0, 100)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Ledger returns the player's resource map, allocating it if needed.
func (p *Player) Ledger() Resources {
	if p.Resources == nil {
		p.Resources = Resources{}
	}
	return p.Resources
}
