package economy

import (
	"errors"
	"testing"
	"time"

	"github.com/talgya/fiefdom/internal/players"
)

var testRules = MarketRules{
	BuyImpact:         0.005,
	SellImpact:        0.005,
	SellRatio:         0.8,
	MinPriceFactor:    0.2,
	MaxPriceFactor:    5,
	EntropyRate:       0.1,
	BaselineAmplitude: 0.05,
	SurgeStep:         0.02,
	SurgeDecay:        0.5,
	SurgeInterval:     time.Minute,
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestBuyRaisesPriceAndLowersStock(t *testing.T) {
	c := NewMarketCell("north", players.Grain, 10, 5)
	charge, err := c.Buy(testRules, t0)
	if err != nil {
		t.Fatal(err)
	}
	if charge != 10 {
		t.Fatalf("expected charge at pre-mutation price 10, got %d", charge)
	}
	if c.Stock != 4 {
		t.Fatalf("expected stock 4, got %d", c.Stock)
	}
	if c.Price <= 10 {
		t.Fatalf("price did not rise: %v", c.Price)
	}
}

func TestBuyOutOfStock(t *testing.T) {
	c := NewMarketCell("north", players.Grain, 10, 0)
	if _, err := c.Buy(testRules, t0); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	if c.Price != 10 || c.Stock != 0 {
		t.Fatalf("failed buy mutated the cell: %+v", c)
	}
}

func TestSellPaysRatioOfPreMutationPrice(t *testing.T) {
	c := NewMarketCell("north", players.Grain, 10, 5)
	payout := c.Sell(testRules)
	if payout != 8 {
		t.Fatalf("expected payout 8, got %d", payout)
	}
	if c.Stock != 6 || c.Price >= 10 {
		t.Fatalf("unexpected cell after sell: %+v", c)
	}
}

func TestBuyThenSellIsAsymmetric(t *testing.T) {
	c := NewMarketCell("north", players.Iron, 40, 10)
	if _, err := c.Buy(testRules, t0); err != nil {
		t.Fatal(err)
	}
	c.Sell(testRules)
	if c.Stock != 10 {
		t.Fatalf("stock should return to 10, got %d", c.Stock)
	}
	if c.Price == 40 {
		t.Fatal("price returned exactly to the original value")
	}
}

func TestPriceStaysBounded(t *testing.T) {
	c := NewMarketCell("north", players.Grain, 10, 100000)
	for i := 0; i < 5000; i++ {
		c.Sell(testRules)
	}
	if c.Price < 10*testRules.MinPriceFactor-1e-9 {
		t.Fatalf("price fell below floor: %v", c.Price)
	}
	for i := 0; i < 20000; i++ {
		if _, err := c.Buy(testRules, t0); err != nil {
			t.Fatal(err)
		}
	}
	if c.Price > 10*testRules.MaxPriceFactor+1e-9 {
		t.Fatalf("price rose above ceiling: %v", c.Price)
	}
}

func TestDriftIsIdempotentPerTick(t *testing.T) {
	c := NewMarketCell("north", players.Grain, 10, 50)
	c.Price = 20
	c.Stock = 10

	if !c.Drift(testRules, 1, 7) {
		t.Fatal("first drift at tick 7 should apply")
	}
	price, stock := c.Price, c.Stock
	if price >= 20 || stock <= 10 {
		t.Fatalf("drift did not move toward baseline: %+v", c)
	}
	if c.Drift(testRules, 1, 7) {
		t.Fatal("second drift at tick 7 should be a no-op")
	}
	if c.Price != price || c.Stock != stock {
		t.Fatal("repeated drift mutated the cell")
	}
}

func TestQuoteDecaysGeometrically(t *testing.T) {
	c := NewMarketCell("tavern", players.Grain, 10, 100)
	for i := 0; i < 5; i++ {
		if _, err := c.Buy(testRules, t0); err != nil {
			t.Fatal(err)
		}
	}
	price := c.Price

	q0 := c.Quote(testRules, t0)
	q1 := c.Quote(testRules, t0.Add(time.Minute))
	q2 := c.Quote(testRules, t0.Add(2*time.Minute+30*time.Second))

	if want := price * (1 + 0.02*5); !approx(q0, want) {
		t.Fatalf("q0 = %v, want %v", q0, want)
	}
	if want := price * (1 + 0.02*5*0.5); !approx(q1, want) {
		t.Fatalf("q1 = %v, want %v", q1, want)
	}
	if want := price * (1 + 0.02*5*0.25); !approx(q2, want) {
		t.Fatalf("q2 = %v, want %v", q2, want)
	}
	if c.Quote(testRules, t0.Add(time.Minute)) != q1 {
		t.Fatal("quote is not stable across reads")
	}
	if c.Price != price {
		t.Fatal("quote mutated the stored price")
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func capitalHall() BuildingDef {
	return BuildingDef{
		ID:     "capital_hall",
		Region: "capital",
		Levels: []Level{
			{Requirements: map[players.Resource]int64{players.Stone: 100}, Unlocks: []string{"title:king"}},
			{Requirements: map[players.Resource]int64{players.Stone: 200, players.Wood: 50}},
		},
	}
}

func TestContributeCapsAtRequirement(t *testing.T) {
	def := capitalHall()
	b := NewBuilding(def)
	b.Progress[players.Stone] = 80
	b.Contributions["early"] = map[players.Resource]int64{players.Stone: 80}

	res, err := b.Contribute(def, "late", players.Stone, 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Actual != 20 {
		t.Fatalf("expected actual 20, got %d", res.Actual)
	}
	if !res.LeveledUp || b.Level != 1 {
		t.Fatalf("expected level up to 1: %+v", res)
	}
	if len(b.Progress) != 0 || len(b.Contributions) != 0 {
		t.Fatalf("level up did not reset: %+v", b)
	}
	if b.PendingWinnerID != "early" || b.PendingRole != players.RoleKing {
		t.Fatalf("expected pending winner early/KING, got %q/%v", b.PendingWinnerID, b.PendingRole)
	}
}

func TestContributeRejections(t *testing.T) {
	def := capitalHall()

	b := NewBuilding(def)
	if _, err := b.Contribute(def, "p", players.Wood, 5, nil); !errors.Is(err, ErrNotRequired) {
		t.Fatalf("expected ErrNotRequired, got %v", err)
	}

	b = NewBuilding(def)
	b.Level = 1
	if _, err := b.Contribute(def, "p", players.Stone, 200, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Contribute(def, "p", players.Stone, 1, nil); !errors.Is(err, ErrResourceFull) {
		t.Fatalf("expected ErrResourceFull, got %v", err)
	}
	if b.Progress[players.Stone] != 200 {
		t.Fatalf("progress exceeded requirement: %d", b.Progress[players.Stone])
	}
	if _, err := b.Contribute(def, "p", players.Wood, 50, nil); err != nil {
		t.Fatal(err)
	}
	if b.Level != 2 {
		t.Fatalf("expected level 2, got %d", b.Level)
	}
	if b.HasPending() {
		t.Fatal("level without a title produced a winner")
	}
	if _, err := b.Contribute(def, "p", players.Stone, 1, nil); !errors.Is(err, ErrMaxLevel) {
		t.Fatalf("expected ErrMaxLevel, got %v", err)
	}
}

func TestWeightedWinner(t *testing.T) {
	weights := map[players.Resource]float64{players.Iron: 3, players.Stone: 1}
	contribs := map[string]map[players.Resource]int64{
		"a": {players.Stone: 50},
		"b": {players.Iron: 20},
		"c": {players.Stone: 10, players.Iron: 10},
	}
	if got := WeightedWinner(contribs, weights); got != "b" {
		t.Fatalf("expected b (60), got %q", got)
	}

	tied := map[string]map[players.Resource]int64{
		"z": {players.Stone: 10},
		"m": {players.Stone: 10},
	}
	if got := WeightedWinner(tied, nil); got != "m" {
		t.Fatalf("tie should go to lowest id, got %q", got)
	}
}

func TestLeadershipTitle(t *testing.T) {
	tests := []struct {
		unlocks []string
		want    players.Role
		ok      bool
	}{
		{[]string{"title:king"}, players.RoleKing, true},
		{[]string{"market_stall", "title:Baron"}, players.RoleBaron, true},
		{[]string{"title:peasant"}, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := Level{Unlocks: tt.unlocks}.LeadershipTitle()
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("LeadershipTitle(%v) = %v,%v want %v,%v", tt.unlocks, got, ok, tt.want, tt.ok)
		}
	}
}
