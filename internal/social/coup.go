package social

import (
	"sort"
	"time"
)

// Pledge is a standing promise to vote for a candidate, weighted by the
// voter's role when it was made.
type Pledge struct {
	CandidateID string    `json:"candidateId"`
	Weight      int       `json:"weight"`
	At          time.Time `json:"at"`
}

// Coup accumulates bribes against a region's ruler.
type Coup struct {
	BribeProgress float64           `json:"bribeProgress"` // 0–100
	ChallengerID  string            `json:"challengerId,omitempty"`
	Contributions map[string]int64  `json:"contributions"` // subversion gold per player
	Names         map[string]string `json:"names"`
	Pledges       map[string]Pledge `json:"pledges"`
}

func (c *Coup) init() {
	if c.Contributions == nil {
		c.Contributions = map[string]int64{}
	}
	if c.Names == nil {
		c.Names = map[string]string{}
	}
	if c.Pledges == nil {
		c.Pledges = map[string]Pledge{}
	}
}

// BribeDelta converts gold into progress points.
func BribeDelta(amount int64, rules PoliticsRules) float64 {
	if rules.BaseBribeCost <= 0 {
		return 0
	}
	return float64(amount) / float64(rules.BaseBribeCost) * rules.ProgressPerBaseCost
}

// ApplyBribe moves progress by the bribe's weight. A ruler's own bribe
// pushes progress down; anyone else pushes it up, becomes the challenger and
// has the gold counted toward candidacy. It reports whether progress reached
// the revolution threshold.
func (c *Coup) ApplyBribe(briberID, name string, byRuler bool, amount int64, rules PoliticsRules) bool {
	c.init()
	delta := BribeDelta(amount, rules)
	if byRuler {
		c.BribeProgress -= delta
	} else {
		c.BribeProgress += delta
		c.ChallengerID = briberID
		c.Contributions[briberID] += amount
		c.Names[briberID] = name
	}
	switch {
	case c.BribeProgress < 0:
		c.BribeProgress = 0
	case c.BribeProgress > 100:
		c.BribeProgress = 100
	}
	return c.BribeProgress >= 100
}

// Pledge records or replaces voterID's pledge.
func (c *Coup) Pledge(voterID, candidateID string, weight int, now time.Time) {
	c.init()
	c.Pledges[voterID] = Pledge{CandidateID: candidateID, Weight: weight, At: now}
}

// TopContributors returns up to n contributor ids by gold, highest first,
// ties broken by id.
func (c *Coup) TopContributors(n int) []string {
	ids := make([]string, 0, len(c.Contributions))
	for id, amt := range c.Contributions {
		if amt > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := c.Contributions[ids[i]], c.Contributions[ids[j]]
		if a != b {
			return a > b
		}
		return ids[i] < ids[j]
	})
	if n >= 0 && len(ids) > n {
		ids = ids[:n]
	}
	return ids
}
