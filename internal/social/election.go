package social

import (
	"sort"
	"time"
)

// Candidate is one entrant in an election.
type Candidate struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Votes         int       `json:"votes"`
	WeightedVotes int       `json:"weightedVotes"`
	RegisteredAt  time.Time `json:"registeredAt"`
}

// Ballot is the vote a voter currently has cast.
type Ballot struct {
	CandidateID string `json:"candidateId"`
	Weight      int    `json:"weight"`
}

// Election is an open contest for a ruler-less region.
type Election struct {
	Candidates []Candidate       `json:"candidates"`
	Votes      map[string]Ballot `json:"votes"`
	OpenedAt   time.Time         `json:"openedAt"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	Reason     string            `json:"reason"`
}

// NewElection opens an election that runs for d.
func NewElection(reason string, now time.Time, d time.Duration) *Election {
	return &Election{
		Candidates: []Candidate{},
		Votes:      map[string]Ballot{},
		OpenedAt:   now,
		ExpiresAt:  now.Add(d),
		Reason:     reason,
	}
}

// Expired reports whether voting has closed.
func (e *Election) Expired(now time.Time) bool { return !now.Before(e.ExpiresAt) }

func (e *Election) candidate(id string) *Candidate {
	for i := range e.Candidates {
		if e.Candidates[i].ID == id {
			return &e.Candidates[i]
		}
	}
	return nil
}

// HasCandidate reports whether id is standing.
func (e *Election) HasCandidate(id string) bool { return e.candidate(id) != nil }

// AddCandidate enters id. Entering twice is a no-op that returns false.
func (e *Election) AddCandidate(id, name string, now time.Time) bool {
	if e.candidate(id) != nil {
		return false
	}
	e.Candidates = append(e.Candidates, Candidate{ID: id, Name: name, RegisteredAt: now})
	return true
}

// Cast records voterID's ballot for candidateID, first reversing any
// earlier ballot. Voting again for the same candidate changes nothing and
// returns false.
func (e *Election) Cast(voterID, candidateID string, weight int) (bool, error) {
	next := e.candidate(candidateID)
	if next == nil {
		return false, ErrUnknownCandidate
	}
	if e.Votes == nil {
		e.Votes = map[string]Ballot{}
	}
	if prev, ok := e.Votes[voterID]; ok {
		if prev.CandidateID == candidateID {
			return false, nil
		}
		if old := e.candidate(prev.CandidateID); old != nil {
			old.Votes--
			old.WeightedVotes -= prev.Weight
		}
	}
	next.Votes++
	next.WeightedVotes += weight
	e.Votes[voterID] = Ballot{CandidateID: candidateID, Weight: weight}
	return true, nil
}

// SeedPledges turns pledges into ballots for voters who have not voted yet.
// With only set, just pledges for that candidate are converted. It returns
// the number of ballots cast.
func (e *Election) SeedPledges(pledges map[string]Pledge, only string) int {
	voters := make([]string, 0, len(pledges))
	for v := range pledges {
		voters = append(voters, v)
	}
	sort.Strings(voters)

	n := 0
	for _, v := range voters {
		p := pledges[v]
		if only != "" && p.CandidateID != only {
			continue
		}
		if _, voted := e.Votes[v]; voted {
			continue
		}
		if ok, err := e.Cast(v, p.CandidateID, p.Weight); err == nil && ok {
			n++
		}
	}
	return n
}

// Winner picks the candidate with the most weighted votes; ties fall to raw
// votes, then the earliest registration, then the lowest id.
func (e *Election) Winner() (Candidate, bool) {
	if len(e.Candidates) == 0 {
		return Candidate{}, false
	}
	ranked := make([]Candidate, len(e.Candidates))
	copy(ranked, e.Candidates)
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.WeightedVotes != b.WeightedVotes {
			return a.WeightedVotes > b.WeightedVotes
		}
		if a.Votes != b.Votes {
			return a.Votes > b.Votes
		}
		if !a.RegisteredAt.Equal(b.RegisteredAt) {
			return a.RegisteredAt.Before(b.RegisteredAt)
		}
		return a.ID < b.ID
	})
	return ranked[0], true
}
