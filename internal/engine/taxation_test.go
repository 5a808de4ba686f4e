package engine

import (
	"math"
	"testing"

	"github.com/talgya/fiefdom/internal/players"
)

func TestBaronTaxFloorsTheSumNotEachPayment(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("baron", players.RoleBaron, "north", gold(500))
	for _, id := range []string{"p1", "p2", "p3"} {
		f.addPlayer(id, players.RolePeasant, "north", gold(15))
	}
	f.addPlayer("broke", players.RolePeasant, "north", gold(0))
	f.addPlayer("outsider", players.RolePeasant, "south", gold(15))
	f.addPlayer("trader", players.RoleMerchant, "north", gold(300))

	o, err := f.e.CollectTax(f.ctx, room, "baron", players.RoleBaron, RateDetails{})
	if err != nil {
		t.Fatal(err)
	}

	// 3 × 1.5 = 4.5 owed; payers lose 1 each, the baron receives floor(4.5).
	for _, id := range []string{"p1", "p2", "p3"} {
		if g := f.player(id).Resources.Get(players.Gold); g != 14 {
			t.Fatalf("%s gold = %d, want 14", id, g)
		}
	}
	if g := f.player("baron").Resources.Get(players.Gold); g != 504 {
		t.Fatalf("baron gold = %d, want 504", g)
	}
	if f.player("outsider").Resources.Get(players.Gold) != 15 || f.player("trader").Resources.Get(players.Gold) != 300 {
		t.Fatal("taxed a player outside the baron's reach")
	}

	r := f.region("north")
	if len(r.TaxHistory) != 1 {
		t.Fatalf("history length %d", len(r.TaxHistory))
	}
	rec := r.TaxHistory[0]
	if rec.Payers != 3 || rec.Amounts[players.Gold] != 4 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(o.ResourceDeltas) != 4 {
		t.Fatalf("deltas %+v", o.ResourceDeltas)
	}

	_, err = f.e.CollectTax(f.ctx, room, "baron", players.RoleBaron, RateDetails{})
	wantReason(t, err, ErrInvalid, "taxes already collected this season")
}

func TestKingTaxCascade(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("king", players.RoleKing, "capital", gold(1000))
	f.addPlayer("baron", players.RoleBaron, "north", gold(500))
	f.addPlayer("trader", players.RoleMerchant, "south", gold(333))
	f.addPlayer("guard", players.RoleSoldier, "south", gold(100))
	f.addPlayer("serf", players.RolePeasant, "south", gold(100))

	if _, err := f.e.CollectTax(f.ctx, room, "king", players.RoleKing, RateDetails{}); err != nil {
		t.Fatal(err)
	}

	// baron 50, trader 16.65, guard 5 at the halved rate.
	want := map[string]int64{"baron": 450, "trader": 317, "guard": 95, "serf": 100}
	for id, g := range want {
		if got := f.player(id).Resources.Get(players.Gold); got != g {
			t.Errorf("%s gold = %d, want %d", id, got, g)
		}
	}
	exact := 500*0.10 + 333*0.05 + 100*0.05
	if got := f.player("king").Resources.Get(players.Gold); got != 1000+int64(math.Floor(exact)) {
		t.Fatalf("king gold = %d", got)
	}

	w, err := f.e.World(f.ctx, room)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.TaxHistory) != 1 || w.LastKingTaxKey != w.TaxKey() {
		t.Fatalf("world tax state not recorded: %+v", w)
	}
}

func TestHighTaxCostsLegitimacy(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("baron", players.RoleBaron, "south")
	f.addPlayer("serf", players.RolePeasant, "south", gold(100))

	if _, err := f.e.SetTaxRate(f.ctx, room, "baron", "south", 0.3); err != nil {
		t.Fatal(err)
	}
	if _, err := f.e.CollectTax(f.ctx, room, "baron", players.RoleBaron, RateDetails{}); err != nil {
		t.Fatal(err)
	}
	if got := f.player("serf").Resources.Get(players.Gold); got != 70 {
		t.Fatalf("serf gold = %d, want 70", got)
	}
	start := players.StartingKit(players.RoleBaron).Status.Legitimacy
	if got := f.player("baron").Status.Legitimacy; math.Abs(got-(start-20)) > 1e-9 {
		t.Fatalf("legitimacy = %v, want %v", got, start-20)
	}
}

func TestTaxCollectorChecks(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("baron", players.RoleBaron, "north")
	f.addPlayer("serf", players.RolePeasant, "north")

	_, err := f.e.CollectTax(f.ctx, room, "serf", players.RolePeasant, RateDetails{})
	wantReason(t, err, ErrInvalid, "only barons and kings collect taxes")

	_, err = f.e.CollectTax(f.ctx, room, "baron", players.RoleKing, RateDetails{})
	wantReason(t, err, ErrInvalid, "you are not a king")

	_, err = f.e.SetTaxRate(f.ctx, room, "baron", "south", 0.2)
	wantReason(t, err, ErrInvalid, "you do not rule south")

	_, err = f.e.SetTaxRate(f.ctx, room, "baron", "north", 0.9)
	wantReason(t, err, ErrInvalid, "tax rate must be between 0 and 0.50")
}

func TestTaxSlotReopensNextSeason(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("baron", players.RoleBaron, "north")
	f.addPlayer("serf", players.RolePeasant, "north", gold(100))

	if _, err := f.e.CollectTax(f.ctx, room, "baron", players.RoleBaron, RateDetails{}); err != nil {
		t.Fatal(err)
	}
	ticks := f.e.Balance().Clock.TicksPerSeason
	for i := uint64(0); i < ticks; i++ {
		f.advance(f.e.Balance().Market.SurgeInterval)
		if _, _, err := f.e.Advance(f.ctx, room, 0); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.e.CollectTax(f.ctx, room, "baron", players.RoleBaron, RateDetails{}); err != nil {
		t.Fatalf("second season collection: %v", err)
	}
	if got := f.player("serf").Resources.Get(players.Gold); got != 81 {
		t.Fatalf("serf gold = %d, want 81", got)
	}
}
