package economy

import (
	"errors"
	"sort"
	"strings"

	"github.com/talgya/fiefdom/internal/players"
)

var (
	ErrMaxLevel     = errors.New("building already at maximum level")
	ErrResourceFull = errors.New("resource already full")
	ErrNotRequired  = errors.New("resource not needed for the next level")
)

// titlePrefix marks a leadership title in a level's unlock list.
const titlePrefix = "title:"

// Level is the requirement set for reaching one building level.
type Level struct {
	Requirements map[players.Resource]int64 `yaml:"requirements" json:"requirements"`
	Unlocks      []string                   `yaml:"unlocks" json:"unlocks,omitempty"`
}

// LeadershipTitle returns the role granted to this level's top contributor,
// if the unlock list names one ("title:king", "title:baron").
func (l Level) LeadershipTitle() (players.Role, bool) {
	for _, u := range l.Unlocks {
		if !strings.HasPrefix(u, titlePrefix) {
			continue
		}
		r, err := players.ParseRole(strings.TrimPrefix(u, titlePrefix))
		if err == nil && r.IsRuler() {
			return r, true
		}
	}
	return 0, false
}

// BuildingDef describes a communal building. Levels[i] is what it takes to
// go from level i to level i+1.
type BuildingDef struct {
	ID     string  `yaml:"id" json:"id"`
	Name   string  `yaml:"name" json:"name"`
	Region string  `yaml:"region" json:"region"`
	Levels []Level `yaml:"levels" json:"levels"`
}

// Next returns the definition of the level after current.
func (d BuildingDef) Next(current int) (Level, bool) {
	if current < 0 || current >= len(d.Levels) {
		return Level{}, false
	}
	return d.Levels[current], true
}

// Building is the stored progress of one building.
type Building struct {
	ID            string                                `json:"id"`
	RegionID      string                                `json:"regionId"`
	Level         int                                   `json:"level"`
	Progress      map[players.Resource]int64            `json:"progress"`
	Contributions map[string]map[players.Resource]int64 `json:"contributions"`

	// Set when a completed level names a leadership title; applied to the
	// player and region records outside the building transaction.
	PendingWinnerID string       `json:"pendingWinnerId,omitempty"`
	PendingRole     players.Role `json:"pendingRole,omitempty"`
	PendingRegionID string       `json:"pendingRegionId,omitempty"`
}

// NewBuilding creates a level-0 building.
func NewBuilding(def BuildingDef) Building {
	return Building{
		ID:            def.ID,
		RegionID:      def.Region,
		Progress:      map[players.Resource]int64{},
		Contributions: map[string]map[players.Resource]int64{},
	}
}

// HasPending reports whether a leadership winner awaits application.
func (b *Building) HasPending() bool { return b.PendingWinnerID != "" }

// ClearPending removes the pending winner.
func (b *Building) ClearPending() {
	b.PendingWinnerID = ""
	b.PendingRole = 0
	b.PendingRegionID = ""
}

// ContributionResult reports what one contribution did.
type ContributionResult struct {
	Actual    int64        `json:"actual"`
	Needed    int64        `json:"needed"`
	LeveledUp bool         `json:"leveledUp"`
	NewLevel  int          `json:"newLevel"`
	WinnerID  string       `json:"winnerId,omitempty"`
	Title     players.Role `json:"title,omitempty"`
}

// Contribute accumulates up to amount of res toward the next level, never
// past the requirement. When every requirement is met the level advances and
// progress and contributions reset in the same step; if the completed level
// carries a leadership title the weighted top contributor is stashed as the
// pending winner.
func (b *Building) Contribute(def BuildingDef, playerID string, res players.Resource, amount int64, weights map[players.Resource]float64) (ContributionResult, error) {
	if amount <= 0 {
		return ContributionResult{}, errors.New("contribution must be positive")
	}
	level, ok := def.Next(b.Level)
	if !ok {
		return ContributionResult{}, ErrMaxLevel
	}
	req, required := level.Requirements[res]
	if !required || req <= 0 {
		return ContributionResult{}, ErrNotRequired
	}
	if b.Progress == nil {
		b.Progress = map[players.Resource]int64{}
	}
	if b.Contributions == nil {
		b.Contributions = map[string]map[players.Resource]int64{}
	}

	needed := req - b.Progress[res]
	if needed <= 0 {
		return ContributionResult{}, ErrResourceFull
	}

	actual := min(amount, needed)
	b.Progress[res] += actual
	if b.Contributions[playerID] == nil {
		b.Contributions[playerID] = map[players.Resource]int64{}
	}
	b.Contributions[playerID][res] += actual

	result := ContributionResult{Actual: actual, Needed: needed, NewLevel: b.Level}
	if !levelComplete(level, b.Progress) {
		return result, nil
	}

	if title, ok := level.LeadershipTitle(); ok {
		if winner := WeightedWinner(b.Contributions, weights); winner != "" {
			b.PendingWinnerID = winner
			b.PendingRole = title
			b.PendingRegionID = def.Region
			result.WinnerID = winner
			result.Title = title
		}
	}

	b.Level++
	b.Progress = map[players.Resource]int64{}
	b.Contributions = map[string]map[players.Resource]int64{}
	result.LeveledUp = true
	result.NewLevel = b.Level
	return result, nil
}

func levelComplete(l Level, progress map[players.Resource]int64) bool {
	for res, req := range l.Requirements {
		if progress[res] < req {
			return false
		}
	}
	return true
}

// WeightedScore is a contributor's resource breakdown scored by weight.
// Resources without a weight count 1.
func WeightedScore(breakdown map[players.Resource]int64, weights map[players.Resource]float64) float64 {
	score := 0.0
	for res, amt := range breakdown {
		w, ok := weights[res]
		if !ok {
			w = 1
		}
		score += float64(amt) * w
	}
	return score
}

// WeightedWinner returns the contributor with the highest weighted score,
// breaking ties by the lowest player id.
func WeightedWinner(contribs map[string]map[players.Resource]int64, weights map[players.Resource]float64) string {
	ids := make([]string, 0, len(contribs))
	for id := range contribs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best, bestScore := "", 0.0
	for _, id := range ids {
		s := WeightedScore(contribs[id], weights)
		if s > bestScore {
			best, bestScore = id, s
		}
	}
	return best
}
