package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/fiefdom/internal/economy"
	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/social"
)

//go:embed balance.yaml
var defaultBalance []byte

// TaxRules tune the taxation cascade.
type TaxRules struct {
	FairRate          float64 `yaml:"fair_rate"`
	PenaltyScale      float64 `yaml:"penalty_scale"`
	ReducedFactor     float64 `yaml:"reduced_factor"` // applied to merchants and soldiers
	MaxRate           float64 `yaml:"max_rate"`
	DefaultRegionRate float64 `yaml:"default_region_rate"`
	DefaultKingRate   float64 `yaml:"default_king_rate"`
	HistoryCap        int     `yaml:"history_cap"`
}

// RoleRules tune the one-time role assignment.
type RoleRules struct {
	MerchantShare         float64 `yaml:"merchant_share"`
	SoldierShare          float64 `yaml:"soldier_share"`
	MinPoolForSpecialists int     `yaml:"min_pool_for_specialists"`
}

// ClockRules tune the world clock.
type ClockRules struct {
	TicksPerSeason uint64 `yaml:"ticks_per_season"`
	EntropyEvery   uint64 `yaml:"entropy_every"`
}

// YieldRules bound what arcade and mini-game submissions may grant.
type YieldRules struct {
	MaxPerGrant       int64 `yaml:"max_per_grant"`
	XPPerUnit         int64 `yaml:"xp_per_unit"`
	XPPerContribution int64 `yaml:"xp_per_contribution"`
	XPPerTrade        int64 `yaml:"xp_per_trade"`
}

// RestRules tune the rest action.
type RestRules struct {
	Stamina         float64 `yaml:"stamina"`
	HP              float64 `yaml:"hp"`
	RulerLegitimacy float64 `yaml:"ruler_legitimacy"`
}

// RegionDef seeds one region at room creation.
type RegionDef struct {
	ID      string  `yaml:"id"`
	Name    string  `yaml:"name"`
	Capital bool    `yaml:"capital"`
	TaxRate float64 `yaml:"tax_rate"`
}

// PriceDef is a resource's base market price and stock.
type PriceDef struct {
	Price float64 `yaml:"price"`
	Stock int64   `yaml:"stock"`
}

// Balance is the full set of tunable game tables.
type Balance struct {
	Market              economy.MarketRules           `yaml:"market"`
	Politics            social.PoliticsRules          `yaml:"politics"`
	Tax                 TaxRules                      `yaml:"tax"`
	Roles               RoleRules                     `yaml:"roles"`
	Clock               ClockRules                    `yaml:"clock"`
	Yield               YieldRules                    `yaml:"yield"`
	Rest                RestRules                     `yaml:"rest"`
	ChronicleCap        int                           `yaml:"chronicle_cap"`
	ContributionWeights map[players.Resource]float64  `yaml:"contribution_weights"`
	Regions             []RegionDef                   `yaml:"regions"`
	Prices              map[players.Resource]PriceDef `yaml:"prices"`
	Buildings           []economy.BuildingDef         `yaml:"buildings"`
}

// DefaultBalance returns the embedded balance tables.
func DefaultBalance() (*Balance, error) {
	return ParseBalance(defaultBalance)
}

// LoadBalance reads balance tables from path, or the embedded defaults when
// path is empty. A file only needs to list the values it overrides.
func LoadBalance(path string) (*Balance, error) {
	b, err := DefaultBalance()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if err := yaml.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("parse balance %s: %w", path, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("balance %s: %w", path, err)
	}
	return b, nil
}

// ParseBalance decodes and validates a full balance document.
func ParseBalance(data []byte) (*Balance, error) {
	var b Balance
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks the tables for values the engine cannot run with.
func (b *Balance) Validate() error {
	var errs []error
	m := b.Market
	if m.BuyImpact < 0 || m.SellImpact < 0 || m.SellImpact >= 1 {
		errs = append(errs, errors.New("market impacts must be in [0,1)"))
	}
	if m.SellRatio <= 0 || m.SellRatio > 1 {
		errs = append(errs, errors.New("market sell_ratio must be in (0,1]"))
	}
	if m.MinPriceFactor <= 0 || m.MaxPriceFactor < m.MinPriceFactor {
		errs = append(errs, errors.New("market price factors must satisfy 0 < min <= max"))
	}
	if m.SurgeDecay < 0 || m.SurgeDecay >= 1 {
		errs = append(errs, errors.New("market surge_decay must be in [0,1)"))
	}
	if b.Politics.BaseBribeCost <= 0 {
		errs = append(errs, errors.New("politics base_bribe_cost must be positive"))
	}
	if b.Politics.ElectionDuration <= 0 {
		errs = append(errs, errors.New("politics election_duration must be positive"))
	}
	if b.Tax.MaxRate <= 0 || b.Tax.MaxRate > 1 {
		errs = append(errs, errors.New("tax max_rate must be in (0,1]"))
	}
	if b.Clock.TicksPerSeason == 0 {
		errs = append(errs, errors.New("clock ticks_per_season must be positive"))
	}

	capitals := 0
	seen := map[string]bool{}
	for _, r := range b.Regions {
		if id := social.NormalizeRegionID(r.ID); id != r.ID || id == "" {
			errs = append(errs, fmt.Errorf("region id %q is not normalized", r.ID))
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("duplicate region %q", r.ID))
		}
		seen[r.ID] = true
		if r.Capital {
			capitals++
		}
	}
	if capitals != 1 {
		errs = append(errs, fmt.Errorf("need exactly one capital region, have %d", capitals))
	}
	for res := range b.Prices {
		if _, err := players.ParseResource(string(res)); err != nil {
			errs = append(errs, err)
		}
	}
	for _, d := range b.Buildings {
		if !seen[d.Region] {
			errs = append(errs, fmt.Errorf("building %q in unknown region %q", d.ID, d.Region))
		}
		if len(d.Levels) == 0 {
			errs = append(errs, fmt.Errorf("building %q has no levels", d.ID))
		}
	}
	return errors.Join(errs...)
}

// Capital returns the capital region definition.
func (b *Balance) Capital() RegionDef {
	for _, r := range b.Regions {
		if r.Capital {
			return r
		}
	}
	return RegionDef{}
}

// OuterRegions returns every non-capital region id in table order.
func (b *Balance) OuterRegions() []string {
	var out []string
	for _, r := range b.Regions {
		if !r.Capital {
			out = append(out, r.ID)
		}
	}
	return out
}

// Building returns the definition with the given id.
func (b *Balance) Building(id string) (economy.BuildingDef, bool) {
	for _, d := range b.Buildings {
		if d.ID == id {
			return d, true
		}
	}
	return economy.BuildingDef{}, false
}

// SeasonLength is how long one season lasts at the given tick interval.
func (b *Balance) SeasonLength(interval time.Duration) time.Duration {
	return time.Duration(b.Clock.TicksPerSeason) * interval
}
