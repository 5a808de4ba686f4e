// Package social provides regions and the political records that live on
// them: coups, pledges, elections and the tax history.
package social

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/talgya/fiefdom/internal/players"
)

var (
	ErrNoElection       = errors.New("no active election")
	ErrElectionOpen     = errors.New("election still in progress")
	ErrElectionClosed   = errors.New("election has ended")
	ErrUnknownCandidate = errors.New("candidate not found")
)

// Region is a governed territory. At most one of RulerID and ActiveElection
// is set at any time.
type Region struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Capital       bool    `json:"capital"`
	RulerID       string  `json:"rulerId,omitempty"`
	RulerName     string  `json:"rulerName,omitempty"`
	TaxRate       float64 `json:"taxRate"`
	Garrison      int     `json:"garrison"`
	Fortification int     `json:"fortification"`

	// Start of the honeymoon during which bribes are refused. Kept here and
	// not on the coup, which is discarded when an election resolves.
	LastRulerChangeAt time.Time `json:"lastRulerChangeAt"`

	LastTaxKey string      `json:"lastTaxKey,omitempty"`
	TaxHistory []TaxRecord `json:"taxHistory,omitempty"`

	Coup           *Coup     `json:"coup,omitempty"`
	ActiveElection *Election `json:"activeElection,omitempty"`
}

// NormalizeRegionID folds a region name or id into its canonical slug:
// lower case, spaces as underscores, anything else dropped.
func NormalizeRegionID(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Ruled reports whether the region currently has a ruler.
func (r *Region) Ruled() bool { return r.RulerID != "" }

// InHoneymoon reports whether a ruler change is recent enough that bribes
// are refused.
func (r *Region) InHoneymoon(now time.Time, window time.Duration) bool {
	if r.LastRulerChangeAt.IsZero() || window <= 0 {
		return false
	}
	return now.Before(r.LastRulerChangeAt.Add(window))
}

// SetRuler installs a ruler, ends any coup or election in progress and
// starts the honeymoon. It returns the previous ruler's id.
func (r *Region) SetRuler(id, name string, now time.Time) string {
	prev := r.RulerID
	r.RulerID = id
	r.RulerName = name
	r.Coup = nil
	r.ActiveElection = nil
	r.LastRulerChangeAt = now
	return prev
}

// Install seats a ruler without starting a honeymoon. Used when a realm's
// roles are first handed out.
func (r *Region) Install(id, name string) {
	r.RulerID = id
	r.RulerName = name
	r.Coup = nil
	r.ActiveElection = nil
}

// ClearRuler removes the ruler and returns who it was.
func (r *Region) ClearRuler() string {
	prev := r.RulerID
	r.RulerID = ""
	r.RulerName = ""
	return prev
}

// EnsureCoup returns the region's coup record, creating it if needed.
func (r *Region) EnsureCoup() *Coup {
	if r.Coup == nil {
		r.Coup = &Coup{}
	}
	r.Coup.init()
	return r.Coup
}

// Revolt deposes the ruler and opens an election seeded with the top
// bribe contributors. Pledges for those candidates become votes.
func (r *Region) Revolt(now time.Time, rules PoliticsRules) string {
	deposed := r.ClearRuler()
	c := r.EnsureCoup()
	e := NewElection("revolution", now, rules.ElectionDuration)
	for _, id := range c.TopContributors(rules.CandidateCount) {
		e.AddCandidate(id, c.Names[id], now)
	}
	e.SeedPledges(c.Pledges, "")
	r.ActiveElection = e
	return deposed
}

// Abdicate removes the ruler. Outside the capital an election with no
// candidates opens in its place.
func (r *Region) Abdicate(now time.Time, rules PoliticsRules) string {
	prev := r.ClearRuler()
	if !r.Capital {
		r.ActiveElection = NewElection("abdication", now, rules.ElectionDuration)
	}
	return prev
}

// Resolve closes an expired election. The winner, if any, becomes ruler.
// The coup and election are cleared either way.
func (r *Region) Resolve(now time.Time) (Candidate, bool, error) {
	e := r.ActiveElection
	if e == nil {
		return Candidate{}, false, ErrNoElection
	}
	if !e.Expired(now) {
		return Candidate{}, false, ErrElectionOpen
	}
	winner, ok := e.Winner()
	r.ActiveElection = nil
	r.Coup = nil
	if ok {
		r.SetRuler(winner.ID, winner.Name, now)
	}
	return winner, ok, nil
}

// TitleFor is the role a region's ruler holds.
func (r *Region) TitleFor() players.Role {
	if r.Capital {
		return players.RoleKing
	}
	return players.RoleBaron
}
