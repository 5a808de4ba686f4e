package engine

import (
	"testing"

	"github.com/talgya/fiefdom/internal/economy"
	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/store"
)

func (f *fixture) setBuilding(id string, fn func(b *economy.Building)) {
	f.t.Helper()
	if _, err := store.Update(f.ctx, f.s, buildingPath(room, id), func(b *economy.Building, _ bool) error {
		fn(b)
		return nil
	}); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) building(id string) economy.Building {
	f.t.Helper()
	b, ok, err := f.e.building(f.ctx, room, id)
	if err != nil || !ok {
		f.t.Fatalf("building %s: %v %v", id, ok, err)
	}
	return b
}

func TestCapitalHallContributionIsCapped(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("mason", players.RolePeasant, "north", holding(players.Stone, 100))
	f.setBuilding("capital_hall", func(b *economy.Building) {
		b.Progress[players.Stone] = 80
		b.Contributions["early"] = map[players.Resource]int64{players.Stone: 80}
	})

	o, err := f.e.Contribute(f.ctx, room, "mason", "capital_hall", players.Stone, 50)
	if err != nil {
		t.Fatal(err)
	}
	res := o.Details.(economy.ContributionResult)
	if res.Actual != 20 || !res.LeveledUp || res.NewLevel != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	b := f.building("capital_hall")
	if b.Level != 1 || len(b.Progress) != 0 || len(b.Contributions) != 0 {
		t.Fatalf("level-up did not reset the building: %+v", b)
	}
	p := f.player("mason")
	if p.Resources.Get(players.Stone) != 80 {
		t.Fatalf("debited %d stone, want exactly 20", 100-p.Resources.Get(players.Stone))
	}
	if p.Stats.Contribution != 20 {
		t.Fatalf("contribution stat = %d", p.Stats.Contribution)
	}
}

func TestContributeClampsToHoldings(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("p", players.RolePeasant, "north", holding(players.Wood, 5))
	o, err := f.e.Contribute(f.ctx, room, "p", "north_keep", players.Wood, 50)
	if err != nil {
		t.Fatal(err)
	}
	if got := o.Details.(economy.ContributionResult).Actual; got != 5 {
		t.Fatalf("actual = %d, want 5", got)
	}
	if f.player("p").Resources.Get(players.Wood) != 0 {
		t.Fatal("holdings not debited")
	}
	if f.building("north_keep").Progress[players.Wood] != 5 {
		t.Fatal("progress not recorded")
	}

	_, err = f.e.Contribute(f.ctx, room, "p", "north_keep", players.Wood, 1)
	wantReason(t, err, ErrInsufficient, "you have no wood")
}

func TestContributeRejections(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("p", players.RolePeasant, "north", holding(players.Stone, 500), holding(players.Fish, 10))

	_, err := f.e.Contribute(f.ctx, room, "p", "moon_tower", players.Stone, 1)
	wantReason(t, err, ErrNotFound, "building moon_tower not found")

	_, err = f.e.Contribute(f.ctx, room, "p", "north_keep", players.Fish, 1)
	wantReason(t, err, ErrInvalid, "resource not needed for the next level")

	f.setBuilding("north_keep", func(b *economy.Building) { b.Progress[players.Stone] = 60 })
	_, err = f.e.Contribute(f.ctx, room, "p", "north_keep", players.Stone, 1)
	wantReason(t, err, ErrInvalid, "resource already full")

	f.setBuilding("north_keep", func(b *economy.Building) { b.Level = 2 })
	_, err = f.e.Contribute(f.ctx, room, "p", "north_keep", players.Stone, 1)
	wantReason(t, err, ErrInvalid, "building already at maximum level")

	if f.player("p").Resources.Get(players.Stone) != 500 {
		t.Fatal("rejected contributions debited the player")
	}
}

func TestLeadershipTitleInstallsTopContributor(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("old", players.RoleBaron, "north")
	f.addPlayer("mason", players.RolePeasant, "north", holding(players.Stone, 0))
	f.addPlayer("smith", players.RolePeasant, "north", holding(players.Iron, 40))
	f.setBuilding("north_keep", func(b *economy.Building) {
		b.Level = 1
		b.Progress[players.Stone] = 150
		b.Contributions["mason"] = map[players.Resource]int64{players.Stone: 150}
	})

	o, err := f.e.Contribute(f.ctx, room, "smith", "north_keep", players.Iron, 40)
	if err != nil {
		t.Fatal(err)
	}
	res := o.Details.(economy.ContributionResult)
	if res.WinnerID != "mason" || res.Title != players.RoleBaron {
		t.Fatalf("winner = %q/%v, want mason/BARON", res.WinnerID, res.Title)
	}

	r := f.region("north")
	if r.RulerID != "mason" {
		t.Fatalf("ruler = %q", r.RulerID)
	}
	mason := f.player("mason")
	if mason.Role != players.RoleBaron || mason.Status.Legitimacy != f.e.Balance().Politics.TitleLegitimacy {
		t.Fatalf("winner not promoted: %v %v", mason.Role, mason.Status.Legitimacy)
	}
	old := f.player("old")
	if old.Role != players.RolePeasant || old.Status.Legitimacy != 0 {
		t.Fatalf("previous ruler not demoted: %v %v", old.Role, old.Status.Legitimacy)
	}
	if keep := f.building("north_keep"); keep.HasPending() {
		t.Fatal("pending winner not cleared")
	}
}

func TestWedgedPendingWinnerIsRecovered(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("heir", players.RolePeasant, "south")
	f.addPlayer("p", players.RolePeasant, "south", holding(players.Wood, 10))
	f.setBuilding("south_mill", func(b *economy.Building) {
		b.Level = 2
		b.PendingWinnerID = "heir"
		b.PendingRole = players.RoleBaron
		b.PendingRegionID = "south"
	})

	// The mill is complete, but the stale winner is still applied first.
	_, err := f.e.Contribute(f.ctx, room, "p", "south_mill", players.Wood, 1)
	wantReason(t, err, ErrInvalid, "building already at maximum level")

	if f.region("south").RulerID != "heir" || f.player("heir").Role != players.RoleBaron {
		t.Fatal("pending winner was not applied")
	}
	if mill := f.building("south_mill"); mill.HasPending() {
		t.Fatal("pending winner not cleared")
	}
}

func TestBuildingsListsUntouchedDefinitions(t *testing.T) {
	f := newFixture(t)
	bs, err := f.e.Buildings(f.ctx, room)
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != len(f.e.Balance().Buildings) {
		t.Fatalf("got %d buildings", len(bs))
	}
}
