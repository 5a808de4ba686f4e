package engine

import (
	"testing"

	"github.com/talgya/fiefdom/internal/economy"
	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/store"
)

func (f *fixture) cell(region string, res players.Resource) economy.MarketCell {
	f.t.Helper()
	c, err := f.e.cell(f.ctx, room, region, res)
	if err != nil {
		f.t.Fatal(err)
	}
	return c
}

func TestBuyChargesPreTradePrice(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("p", players.RoleMerchant, "north", gold(100), holding(players.Iron, 0))
	before := f.cell("north", players.Iron)

	o, err := f.e.Buy(f.ctx, room, "p", "North", players.Iron)
	if err != nil {
		t.Fatal(err)
	}
	after := f.cell("north", players.Iron)
	if after.Stock != before.Stock-1 || after.Price <= before.Price {
		t.Fatalf("cell did not move: before %+v after %+v", before, after)
	}

	charge := economy.ChargeFor(before.Price)
	p := f.player("p")
	if p.Resources.Get(players.Gold) != 100-charge || p.Resources.Get(players.Iron) != 1 {
		t.Fatalf("ledger wrong: %+v", p.Resources)
	}
	if len(o.ResourceDeltas) != 2 {
		t.Fatalf("expected two deltas, got %+v", o.ResourceDeltas)
	}
}

func TestSellThenBuyAsymmetry(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("p", players.RoleMerchant, "south", gold(1000), holding(players.Wool, 5))
	before := f.cell("south", players.Wool)

	if _, err := f.e.Sell(f.ctx, room, "p", "south", players.Wool); err != nil {
		t.Fatal(err)
	}
	if _, err := f.e.Buy(f.ctx, room, "p", "south", players.Wool); err != nil {
		t.Fatal(err)
	}
	after := f.cell("south", players.Wool)
	if after.Stock != before.Stock {
		t.Fatalf("stock %d, want %d", after.Stock, before.Stock)
	}
	if after.Price == before.Price {
		t.Fatal("price returned exactly to where it started")
	}
}

func TestBuyRejections(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("poor", players.RolePeasant, "north", gold(0))
	f.addPlayer("rich", players.RoleMerchant, "north", gold(1000))

	_, err := f.e.Buy(f.ctx, room, "poor", "north", players.Grain)
	wantReason(t, err, ErrInsufficient, "not enough gold to buy grain")

	_, err = f.e.Buy(f.ctx, room, "rich", "atlantis", players.Grain)
	wantReason(t, err, ErrNotFound, "no market for grain in atlantis")

	if _, err := store.Update(f.ctx, f.s, marketPath(room, "north", players.Fish), func(c *economy.MarketCell, _ bool) error {
		c.Stock = 0
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	_, err = f.e.Buy(f.ctx, room, "rich", "north", players.Fish)
	wantReason(t, err, ErrInvalid, "out of stock")
	if g := f.player("rich").Resources.Get(players.Gold); g != 1000 {
		t.Fatalf("failed buy charged the buyer: %d", g)
	}
}

func TestSellRequiresHoldings(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("p", players.RolePeasant, "north", holding(players.Iron, 0))
	_, err := f.e.Sell(f.ctx, room, "p", "north", players.Iron)
	wantReason(t, err, ErrInsufficient, "you have no iron")
}

func TestQuotesDoNotMutate(t *testing.T) {
	f := newFixture(t)
	f.addPlayer("p", players.RoleMerchant, "north", gold(1000))
	for i := 0; i < 3; i++ {
		if _, err := f.e.Buy(f.ctx, room, "p", "north", players.Cloth); err != nil {
			t.Fatal(err)
		}
	}
	stored := f.cell("north", players.Cloth)

	first, err := f.e.Quotes(f.ctx, room, "north")
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.e.Quotes(f.ctx, room, "north")
	if err != nil {
		t.Fatal(err)
	}
	var cloth Quote
	for i, q := range first {
		if q != second[i] {
			t.Fatalf("quotes differ between reads: %+v vs %+v", q, second[i])
		}
		if q.Resource == players.Cloth {
			cloth = q
		}
	}
	if cloth.Quote <= cloth.Price {
		t.Fatalf("surge not reflected in quote: %+v", cloth)
	}
	if f.cell("north", players.Cloth) != stored {
		t.Fatal("reading quotes changed the stored cell")
	}
}

func TestEntropyPassOncePerTick(t *testing.T) {
	f := newFixture(t)
	cells := len(f.e.Balance().Regions) * len(f.e.Balance().Prices)

	n, err := f.e.EntropyPass(f.ctx, room, 7)
	if err != nil {
		t.Fatal(err)
	}
	if n != cells {
		t.Fatalf("moved %d cells, want %d", n, cells)
	}
	snapshot := f.cell("north", players.Grain)

	n, err = f.e.EntropyPass(f.ctx, room, 7)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("second pass for the same tick moved %d cells", n)
	}
	if f.cell("north", players.Grain) != snapshot {
		t.Fatal("second pass changed a cell")
	}
}
