package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/talgya/fiefdom/internal/economy"
	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/store"
)

// Quote is one market cell as shown to players.
type Quote struct {
	Region     string           `json:"region"`
	Resource   players.Resource `json:"resource"`
	Price      float64          `json:"price"`
	Quote      float64          `json:"quote"`
	Stock      int64            `json:"stock"`
	BuyCharge  int64            `json:"buyCharge"`
	SellPayout int64            `json:"sellPayout"`
}

func (e *Engine) cell(ctx context.Context, room, region string, res players.Resource) (economy.MarketCell, error) {
	c, err := store.Read[economy.MarketCell](ctx, e.store, marketPath(room, region, res))
	if errors.Is(err, store.ErrNotFound) {
		return c, notFound("no market for %s in %s", res, region)
	}
	return c, err
}

func (e *Engine) updateCell(ctx context.Context, room, region string, res players.Resource, fn func(c *economy.MarketCell) error) (economy.MarketCell, error) {
	return store.Update(ctx, e.store, marketPath(room, region, res), func(c *economy.MarketCell, exists bool) error {
		if !exists {
			return notFound("no market for %s in %s", res, region)
		}
		return fn(c)
	})
}

// Buy purchases one unit of res in region. The cell commits first; the
// buyer is then charged the pre-trade price, rounded up.
func (e *Engine) Buy(ctx context.Context, room, playerID, region string, res players.Resource) (*Outcome, error) {
	region = regionID(region)
	p, err := e.actor(ctx, room, playerID)
	if err != nil {
		return nil, err
	}
	c, err := e.cell(ctx, room, region, res)
	if err != nil {
		return nil, err
	}
	if c.Stock <= 0 {
		return nil, asInvalid(economy.ErrOutOfStock)
	}
	if p.Resources.Get(players.Gold) < economy.ChargeFor(c.Price) {
		return nil, insufficient("not enough gold to buy %s", res)
	}

	now := e.now()
	var charge int64
	if _, err := e.updateCell(ctx, room, region, res, func(c *economy.MarketCell) error {
		var err error
		charge, err = c.Buy(e.bal.Market, now)
		if errors.Is(err, economy.ErrOutOfStock) {
			return asInvalid(err)
		}
		return err
	}); err != nil {
		return nil, err
	}

	xp := e.bal.Yield.XPPerTrade
	o := &Outcome{Message: fmt.Sprintf("%s bought 1 %s in %s for %d gold", p.Name, res, region, charge)}
	if _, err := e.updatePlayer(ctx, room, playerID, func(p *players.Player) error {
		if err := debit(p, players.Gold, charge); err != nil {
			return err
		}
		p.AddXP(xp)
		return p.Resources.Credit(res, 1)
	}); err != nil {
		e.desync(ctx, room, playerID, "buy "+string(res), err)
	} else {
		o.delta(playerID, players.Gold, -charge)
		o.delta(playerID, res, 1)
		o.xp(playerID, xp)
	}
	e.record(ctx, room, "market", playerID, o.Message, map[string]any{"region": region, "resource": res, "price": charge})
	return o, nil
}

// Sell sells one unit of res in region for the sell ratio of the pre-trade
// price, rounded down.
func (e *Engine) Sell(ctx context.Context, room, playerID, region string, res players.Resource) (*Outcome, error) {
	region = regionID(region)
	p, err := e.actor(ctx, room, playerID)
	if err != nil {
		return nil, err
	}
	if p.Resources.Get(res) < 1 {
		return nil, insufficient("you have no %s", res)
	}

	var payout int64
	if _, err := e.updateCell(ctx, room, region, res, func(c *economy.MarketCell) error {
		payout = c.Sell(e.bal.Market)
		return nil
	}); err != nil {
		return nil, err
	}

	xp := e.bal.Yield.XPPerTrade
	o := &Outcome{Message: fmt.Sprintf("%s sold 1 %s in %s for %d gold", p.Name, res, region, payout)}
	if _, err := e.updatePlayer(ctx, room, playerID, func(p *players.Player) error {
		if err := debit(p, res, 1); err != nil {
			return err
		}
		p.AddXP(xp)
		return p.Resources.Credit(players.Gold, payout)
	}); err != nil {
		e.desync(ctx, room, playerID, "sell "+string(res), err)
	} else {
		o.delta(playerID, res, -1)
		o.delta(playerID, players.Gold, payout)
		o.xp(playerID, xp)
	}
	e.record(ctx, room, "market", playerID, o.Message, map[string]any{"region": region, "resource": res, "price": payout})
	return o, nil
}

// Quotes lists every cell of a region's market with its current surge
// quote. Reading never changes stored prices.
func (e *Engine) Quotes(ctx context.Context, room, region string) ([]Quote, error) {
	region = regionID(region)
	if _, err := e.region(ctx, room, region); err != nil {
		return nil, err
	}
	cells, err := store.ReadAll[economy.MarketCell](ctx, e.store, regionMarketPath(room, region))
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]Quote, 0, len(cells))
	for _, c := range cells {
		out = append(out, Quote{
			Region:     c.Region,
			Resource:   c.Resource,
			Price:      c.Price,
			Quote:      c.Quote(e.bal.Market, now),
			Stock:      c.Stock,
			BuyCharge:  economy.ChargeFor(c.Price),
			SellPayout: economy.PayoutFor(c.Price, e.bal.Market.SellRatio),
		})
	}
	return out, nil
}

// EntropyPass pulls every market cell in the room toward its baseline. A
// cell already drifted for tick is left alone, so repeated or concurrent
// passes for one tick apply once. It returns the number of cells moved.
func (e *Engine) EntropyPass(ctx context.Context, room string, tick uint64) (int, error) {
	nodes, err := e.store.List(ctx, marketsPath(room))
	if err != nil {
		return 0, err
	}
	paths := make([]string, 0, len(nodes))
	for p := range nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	moved := 0
	for _, path := range paths {
		baseline := e.baseline.At(series(path), tick)
		applied := false
		if _, err := store.Update(ctx, e.store, path, func(c *economy.MarketCell, exists bool) error {
			applied = false
			if !exists || !c.Drift(e.bal.Market, baseline, tick) {
				return store.ErrNoChange
			}
			applied = true
			return nil
		}); err != nil {
			e.log.Warn("entropy drift failed", "path", path, "error", err)
			continue
		}
		if applied {
			moved++
		}
	}
	return moved, nil
}

// series gives each cell a stable noise coordinate independent of how many
// other cells exist.
func series(path string) int {
	h := fnv.New32a()
	h.Write([]byte(path[strings.LastIndex(path, "/markets/")+1:]))
	return int(h.Sum32() % 4096)
}
