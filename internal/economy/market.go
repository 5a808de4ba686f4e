// Package economy provides regional market cells, price rules and the
// communal building definitions contributions are measured against.
package economy

import (
	"errors"
	"math"
	"time"

	"github.com/talgya/fiefdom/internal/players"
)

// ErrOutOfStock is returned when buying from an empty cell.
var ErrOutOfStock = errors.New("out of stock")

// MarketRules are the price-impact, clamp, entropy and surge constants.
type MarketRules struct {
	BuyImpact      float64 `yaml:"buy_impact" json:"buy_impact"`             // fractional price rise per unit bought
	SellImpact     float64 `yaml:"sell_impact" json:"sell_impact"`           // fractional price drop per unit sold
	SellRatio      float64 `yaml:"sell_ratio" json:"sell_ratio"`             // share of quoted price paid to sellers
	MinPriceFactor float64 `yaml:"min_price_factor" json:"min_price_factor"` // floor, as a multiple of base price
	MaxPriceFactor float64 `yaml:"max_price_factor" json:"max_price_factor"` // ceiling, as a multiple of base price

	EntropyRate       float64 `yaml:"entropy_rate" json:"entropy_rate"`             // fraction of the gap to baseline closed per pass
	BaselineAmplitude float64 `yaml:"baseline_amplitude" json:"baseline_amplitude"` // max baseline wobble around base price
	BaselineFrequency float64 `yaml:"baseline_frequency" json:"baseline_frequency"` // noise frequency per tick

	SurgeStep     float64       `yaml:"surge_step" json:"surge_step"`         // multiplier added per unit of demand
	SurgeDecay    float64       `yaml:"surge_decay" json:"surge_decay"`       // geometric decay per interval
	SurgeInterval time.Duration `yaml:"surge_interval" json:"surge_interval"` // decay step
}

// MarketCell is the (price, stock) pair for one resource in one region.
type MarketCell struct {
	Region    string           `json:"region"`
	Resource  players.Resource `json:"resource"`
	Price     float64          `json:"price"`
	Stock     int64            `json:"stock"`
	BasePrice float64          `json:"basePrice"`
	BaseStock int64            `json:"baseStock"`

	SurgeDemand     int       `json:"surgeDemand"`
	SurgeResetAt    time.Time `json:"surgeResetAt"`
	LastEntropyTick uint64    `json:"lastEntropyTick"`
}

// NewMarketCell creates a cell at its baseline.
func NewMarketCell(region string, res players.Resource, basePrice float64, baseStock int64) MarketCell {
	return MarketCell{
		Region:    region,
		Resource:  res,
		Price:     basePrice,
		Stock:     baseStock,
		BasePrice: basePrice,
		BaseStock: baseStock,
	}
}

// Buy removes one unit, raises the price and returns the charge: the
// pre-mutation price rounded up to whole gold.
func (c *MarketCell) Buy(r MarketRules, now time.Time) (int64, error) {
	if c.Stock <= 0 {
		return 0, ErrOutOfStock
	}
	charge := ChargeFor(c.Price)

	c.Stock--
	c.Price += c.Price * r.BuyImpact
	c.clamp(r)

	// Demand that has fully decayed starts a fresh surge window.
	if c.SurgeDemand == 0 || c.surgeMultiplier(r, now) <= 1.0001 {
		c.SurgeDemand = 0
		c.SurgeResetAt = now
	}
	c.SurgeDemand++
	return charge, nil
}

// Sell adds one unit, lowers the price and returns the payout: the
// pre-mutation price times the sell ratio, rounded down.
func (c *MarketCell) Sell(r MarketRules) int64 {
	payout := PayoutFor(c.Price, r.SellRatio)
	c.Stock++
	c.Price -= c.Price * r.SellImpact
	c.clamp(r)
	return payout
}

// ChargeFor is what a buyer pays at quoted price p.
func ChargeFor(p float64) int64 {
	charge := int64(math.Ceil(p))
	if charge < 1 {
		charge = 1
	}
	return charge
}

// PayoutFor is what a seller receives at quoted price p.
func PayoutFor(p, ratio float64) int64 {
	return int64(math.Floor(p * ratio))
}

// Quote returns the display price: the stored price times a surge multiplier
// that decays geometrically every SurgeInterval since the surge window began.
// It never mutates the cell; identical inputs give identical quotes.
func (c *MarketCell) Quote(r MarketRules, now time.Time) float64 {
	return c.Price * c.surgeMultiplier(r, now)
}

func (c *MarketCell) surgeMultiplier(r MarketRules, now time.Time) float64 {
	if c.SurgeDemand <= 0 || r.SurgeStep <= 0 {
		return 1
	}
	steps := 0.0
	if r.SurgeInterval > 0 && now.After(c.SurgeResetAt) {
		steps = math.Floor(float64(now.Sub(c.SurgeResetAt)) / float64(r.SurgeInterval))
	}
	return 1 + r.SurgeStep*float64(c.SurgeDemand)*math.Pow(r.SurgeDecay, steps)
}

// Drift pulls price toward baseline·BasePrice and stock toward BaseStock by
// EntropyRate. It is applied at most once per tick; a repeated call for a
// tick already applied returns false and changes nothing.
func (c *MarketCell) Drift(r MarketRules, baseline float64, tick uint64) bool {
	if tick <= c.LastEntropyTick {
		return false
	}
	target := c.BasePrice * baseline
	c.Price += (target - c.Price) * r.EntropyRate

	gap := float64(c.BaseStock - c.Stock)
	step := int64(math.Round(gap * r.EntropyRate))
	if step == 0 && gap != 0 {
		step = int64(math.Copysign(1, gap))
	}
	c.Stock += step
	if c.Stock < 0 {
		c.Stock = 0
	}

	c.clamp(r)
	c.LastEntropyTick = tick
	return true
}

// clamp bounds the price away from zero and below a ceiling.
func (c *MarketCell) clamp(r MarketRules) {
	floor := c.BasePrice * r.MinPriceFactor
	ceiling := c.BasePrice * r.MaxPriceFactor
	if floor <= 0 {
		floor = math.SmallestNonzeroFloat64
	}
	if c.Price < floor {
		c.Price = floor
	}
	if ceiling > floor && c.Price > ceiling {
		c.Price = ceiling
	}
}
