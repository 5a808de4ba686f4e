package social

import (
	"errors"
	"testing"
	"time"

	"github.com/talgya/fiefdom/internal/players"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var rules = PoliticsRules{
	BaseBribeCost:       1000,
	ProgressPerBaseCost: 10,
	HoneymoonWindow:     time.Hour,
	ElectionDuration:    24 * time.Hour,
	CandidateCount:      3,
}

func TestNormalizeRegionID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"North", "north"},
		{"  North Marches ", "north_marches"},
		{"capital", "capital"},
		{"East-Vale!", "east-vale"},
	}
	for _, tt := range tests {
		if got := NormalizeRegionID(tt.in); got != tt.want {
			t.Errorf("NormalizeRegionID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBribesAccumulate(t *testing.T) {
	c := &Coup{}
	for i := 0; i < 4; i++ {
		if c.ApplyBribe("rebel", "Rebel", false, 1000, rules) {
			t.Fatal("revolution fired early")
		}
	}
	if c.BribeProgress != 40 {
		t.Fatalf("expected progress 40, got %v", c.BribeProgress)
	}
	if c.ChallengerID != "rebel" || c.Contributions["rebel"] != 4000 {
		t.Fatalf("unexpected coup: %+v", c)
	}
}

func TestRulerBribeCountersAndClamps(t *testing.T) {
	c := &Coup{}
	c.ApplyBribe("rebel", "Rebel", false, 2000, rules)
	c.ApplyBribe("king", "King", true, 5000, rules)
	if c.BribeProgress != 0 {
		t.Fatalf("progress should clamp at 0, got %v", c.BribeProgress)
	}
	if _, ok := c.Contributions["king"]; ok {
		t.Fatal("ruler's defence counted as subversion")
	}
	if !c.ApplyBribe("rebel", "Rebel", false, 50000, rules) || c.BribeProgress != 100 {
		t.Fatalf("progress should clamp at 100, got %v", c.BribeProgress)
	}
}

func TestRevoltSeedsTopContributorsAndPledges(t *testing.T) {
	r := &Region{ID: "north", RulerID: "baron", RulerName: "Baron"}
	c := r.EnsureCoup()
	c.ApplyBribe("a", "A", false, 5000, rules)
	c.ApplyBribe("b", "B", false, 3000, rules)
	c.ApplyBribe("c", "C", false, 1000, rules)
	c.ApplyBribe("d", "D", false, 500, rules)
	c.Pledge("v1", "b", 5, t0)
	c.Pledge("v2", "d", 1, t0)

	if deposed := r.Revolt(t0, rules); deposed != "baron" {
		t.Fatalf("deposed = %q", deposed)
	}
	if r.Ruled() {
		t.Fatal("region still has a ruler during an election")
	}
	e := r.ActiveElection
	if len(e.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(e.Candidates))
	}
	for _, id := range []string{"a", "b", "c"} {
		if !e.HasCandidate(id) {
			t.Errorf("missing candidate %s", id)
		}
	}
	if e.HasCandidate("d") {
		t.Error("fourth contributor entered the election")
	}
	if b := e.Votes["v1"]; b.CandidateID != "b" || b.Weight != 5 {
		t.Fatalf("pledge not converted: %+v", b)
	}
	if _, ok := e.Votes["v2"]; ok {
		t.Fatal("pledge for a non-candidate was converted")
	}
	if !e.ExpiresAt.Equal(t0.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", e.ExpiresAt)
	}
}

func TestCastIsIdempotentAndReversible(t *testing.T) {
	e := NewElection("test", t0, time.Hour)
	e.AddCandidate("a", "A", t0)
	e.AddCandidate("b", "B", t0)

	if ok, err := e.Cast("v", "a", 5); err != nil || !ok {
		t.Fatalf("first vote: %v %v", ok, err)
	}
	if ok, _ := e.Cast("v", "a", 5); ok {
		t.Fatal("repeat vote reported a change")
	}
	if e.candidate("a").WeightedVotes != 5 || e.candidate("a").Votes != 1 {
		t.Fatalf("repeat vote double counted: %+v", e.candidate("a"))
	}
	if _, err := e.Cast("v", "b", 5); err != nil {
		t.Fatal(err)
	}
	if a, b := e.candidate("a"), e.candidate("b"); a.WeightedVotes != 0 || a.Votes != 0 || b.WeightedVotes != 5 {
		t.Fatalf("switch not reversed: a=%+v b=%+v", a, b)
	}
	if _, err := e.Cast("v", "nobody", 1); !errors.Is(err, ErrUnknownCandidate) {
		t.Fatalf("expected ErrUnknownCandidate, got %v", err)
	}
}

func TestWinnerTieBreaks(t *testing.T) {
	tests := []struct {
		name  string
		cands []Candidate
		want  string
	}{
		{"weighted", []Candidate{{ID: "a", WeightedVotes: 3, Votes: 3}, {ID: "b", WeightedVotes: 10, Votes: 1}}, "b"},
		{"raw votes", []Candidate{{ID: "a", WeightedVotes: 4, Votes: 1}, {ID: "b", WeightedVotes: 4, Votes: 4}}, "b"},
		{"registration", []Candidate{{ID: "a", RegisteredAt: t0.Add(time.Minute)}, {ID: "b", RegisteredAt: t0}}, "b"},
		{"id", []Candidate{{ID: "z", RegisteredAt: t0}, {ID: "m", RegisteredAt: t0}}, "m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Election{Candidates: tt.cands}
			w, ok := e.Winner()
			if !ok || w.ID != tt.want {
				t.Fatalf("winner = %q, want %q", w.ID, tt.want)
			}
		})
	}
	if _, ok := (&Election{}).Winner(); ok {
		t.Fatal("empty election produced a winner")
	}
}

func TestResolve(t *testing.T) {
	r := &Region{ID: "north"}
	if _, _, err := r.Resolve(t0); !errors.Is(err, ErrNoElection) {
		t.Fatalf("expected ErrNoElection, got %v", err)
	}

	r.Abdicate(t0, rules)
	r.ActiveElection.AddCandidate("a", "A", t0)
	if _, _, err := r.Resolve(t0.Add(time.Hour)); !errors.Is(err, ErrElectionOpen) {
		t.Fatalf("expected ErrElectionOpen, got %v", err)
	}

	end := t0.Add(24 * time.Hour)
	w, ok, err := r.Resolve(end)
	if err != nil || !ok || w.ID != "a" {
		t.Fatalf("resolve: %+v %v %v", w, ok, err)
	}
	if r.RulerID != "a" || r.ActiveElection != nil || r.Coup != nil {
		t.Fatalf("unexpected region after resolve: %+v", r)
	}
	if !r.InHoneymoon(end.Add(time.Minute), rules.HoneymoonWindow) {
		t.Fatal("honeymoon did not start")
	}
	if r.InHoneymoon(end.Add(2*time.Hour), rules.HoneymoonWindow) {
		t.Fatal("honeymoon never ended")
	}
	if _, _, err := r.Resolve(end); !errors.Is(err, ErrNoElection) {
		t.Fatal("second resolve was not a no-op")
	}
}

func TestCapitalAbdicationOpensNoElection(t *testing.T) {
	r := &Region{ID: "capital", Capital: true, RulerID: "k"}
	if prev := r.Abdicate(t0, rules); prev != "k" {
		t.Fatalf("prev = %q", prev)
	}
	if r.ActiveElection != nil {
		t.Fatal("capital abdication opened an election")
	}
	if r.TitleFor() != players.RoleKing {
		t.Fatal("capital ruler should be King")
	}
}

func TestVoteWeightOverride(t *testing.T) {
	p := PoliticsRules{VoteWeights: map[string]int{"MERCHANT": 3}}
	if p.VoteWeight(players.RoleMerchant) != 3 {
		t.Fatal("override ignored")
	}
	if p.VoteWeight(players.RoleKing) != 10 {
		t.Fatal("default weight not used")
	}
}

func TestAppendTaxRecordBounded(t *testing.T) {
	var h []TaxRecord
	for i := 0; i < 5; i++ {
		h = AppendTaxRecord(h, TaxRecord{Year: i}, 3)
	}
	if len(h) != 3 || h[0].Year != 2 || h[2].Year != 4 {
		t.Fatalf("unexpected history: %+v", h)
	}
}
