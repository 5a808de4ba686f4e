package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/social"
	"github.com/talgya/fiefdom/internal/store"
)

// RateDetails parameterizes one collection. A zero Rate uses the stored
// rate; no Resources means gold only.
type RateDetails struct {
	Rate      float64            `json:"rate,omitempty"`
	Resources []players.Resource `json:"resources,omitempty"`
}

type taxPayer struct {
	id   string
	rate float64
}

// CollectTax levies one season's tax. A Baron collects from the peasants of
// the region they rule; the King collects from Barons at the full rate and
// from merchants and soldiers at a reduced one. Each payer is debited
// floor(balance·rate) in its own transaction, while the collector receives
// the floor of the summed unrounded amounts.
func (e *Engine) CollectTax(ctx context.Context, room, collectorID string, collectorRole players.Role, d RateDetails) (*Outcome, error) {
	rules := e.bal.Tax
	collector, err := e.actor(ctx, room, collectorID)
	if err != nil {
		return nil, err
	}
	if !collectorRole.IsRuler() {
		return nil, invalid("only barons and kings collect taxes")
	}
	if collector.Role != collectorRole {
		return nil, invalid("you are not a %s", strings.ToLower(collectorRole.String()))
	}
	if d.Rate < 0 || d.Rate > rules.MaxRate {
		return nil, invalid("tax rate must be between 0 and %.2f", rules.MaxRate)
	}
	resources := d.Resources
	if len(resources) == 0 {
		resources = []players.Resource{players.Gold}
	}

	w, err := e.world(ctx, room)
	if err != nil {
		return nil, err
	}
	key := w.TaxKey()

	// Decide the rate and the payer set from a pre-read, before anything is
	// committed.
	var (
		rate   float64
		region social.Region
	)
	if collectorRole == players.RoleBaron {
		region, err = e.region(ctx, room, collector.RegionID)
		if err != nil {
			return nil, err
		}
		if region.RulerID != collectorID {
			return nil, invalid("you do not rule %s", region.ID)
		}
		rate = region.TaxRate
	} else {
		rate = w.KingTaxRate
	}
	if d.Rate > 0 {
		rate = d.Rate
	}

	all, err := e.allPlayers(ctx, room)
	if err != nil {
		return nil, err
	}
	var payers []taxPayer
	for _, p := range all {
		if !p.Active || p.ID == collectorID {
			continue
		}
		switch {
		case collectorRole == players.RoleBaron && p.Role == players.RolePeasant && p.RegionID == region.ID:
			payers = append(payers, taxPayer{p.ID, rate})
		case collectorRole == players.RoleKing && p.Role == players.RoleBaron:
			payers = append(payers, taxPayer{p.ID, rate})
		case collectorRole == players.RoleKing && (p.Role == players.RoleMerchant || p.Role == players.RoleSoldier):
			payers = append(payers, taxPayer{p.ID, rate * rules.ReducedFactor})
		}
	}

	// Claim this season's slot. This is the contested step.
	if collectorRole == players.RoleBaron {
		_, err = e.updateRegion(ctx, room, region.ID, func(r *social.Region) error {
			if r.RulerID != collectorID {
				return invalid("you do not rule %s", r.ID)
			}
			if r.LastTaxKey == key {
				return invalid("taxes already collected this season")
			}
			r.LastTaxKey = key
			return nil
		})
	} else {
		_, err = e.updateWorld(ctx, room, func(w *World) error {
			if w.LastKingTaxKey == key {
				return invalid("taxes already collected this season")
			}
			w.LastKingTaxKey = key
			return nil
		})
	}
	if err != nil {
		return nil, err
	}

	o := &Outcome{}
	acc := make(map[players.Resource]float64, len(resources))
	counted := 0
	for _, payer := range payers {
		var owed map[players.Resource]float64
		if _, err := e.updatePlayer(ctx, room, payer.id, func(p *players.Player) error {
			owed = make(map[players.Resource]float64, len(resources))
			for _, res := range resources {
				bal := p.Resources.Get(res)
				if bal <= 0 {
					continue
				}
				exact := float64(bal) * payer.rate
				owed[res] = exact
				if tax := int64(math.Floor(exact)); tax > 0 {
					if err := p.Resources.Debit(res, tax); err != nil {
						return err
					}
				}
			}
			return nil
		}); err != nil {
			e.desync(ctx, room, payer.id, "tax payment", err)
			continue
		}
		if len(owed) == 0 {
			continue
		}
		counted++
		for res, exact := range owed {
			acc[res] += exact
			o.delta(payer.id, res, -int64(math.Floor(exact)))
		}
	}

	amounts := make(map[players.Resource]int64, len(acc))
	for res, total := range acc {
		if n := int64(math.Floor(total)); n > 0 {
			amounts[res] = n
		}
	}

	penalty := 0.0
	if rate > rules.FairRate {
		penalty = (rate - rules.FairRate) * rules.PenaltyScale
	}
	if _, err := e.updatePlayer(ctx, room, collectorID, func(p *players.Player) error {
		for res, n := range amounts {
			if err := p.Resources.Credit(res, n); err != nil {
				return err
			}
		}
		p.AdjustLegitimacy(-penalty)
		return nil
	}); err != nil {
		e.desync(ctx, room, collectorID, "tax credit", err)
	} else {
		for _, res := range sortedResources(amounts) {
			o.delta(collectorID, res, amounts[res])
		}
	}

	rec := social.TaxRecord{
		Year:        w.Year,
		Season:      SeasonName(w.Season),
		Rate:        rate,
		Amounts:     amounts,
		Payers:      counted,
		CollectorID: collectorID,
		At:          e.now(),
	}
	if collectorRole == players.RoleBaron {
		_, err = e.updateRegion(ctx, room, region.ID, func(r *social.Region) error {
			r.TaxHistory = social.AppendTaxRecord(r.TaxHistory, rec, rules.HistoryCap)
			return nil
		})
	} else {
		_, err = e.updateWorld(ctx, room, func(w *World) error {
			w.TaxHistory = social.AppendTaxRecord(w.TaxHistory, rec, rules.HistoryCap)
			return nil
		})
	}
	if err != nil {
		e.log.Warn("tax history append failed", "room", room, "collector", collectorID, "error", err)
	}

	var parts []string
	for _, res := range sortedResources(amounts) {
		parts = append(parts, fmt.Sprintf("%d %s", amounts[res], res))
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing")
	}
	o.Message = fmt.Sprintf("%s collected %s from %d payers at %.0f%%", collector.Name, strings.Join(parts, ", "), counted, rate*100)
	if penalty > 0 {
		o.Message += fmt.Sprintf(" (legitimacy -%.1f)", penalty)
	}
	o.Details = rec
	e.record(ctx, room, "tax", collectorID, o.Message, map[string]any{"rate": rate, "payers": counted})
	return o, nil
}

// SetTaxRate changes the standing rate a ruler collects at. The King sets
// the realm rate; a Baron sets the rate of the region they rule.
func (e *Engine) SetTaxRate(ctx context.Context, room, rulerID, region string, rate float64) (*Outcome, error) {
	region = regionID(region)
	p, err := e.actor(ctx, room, rulerID)
	if err != nil {
		return nil, err
	}
	if rate < 0 || rate > e.bal.Tax.MaxRate {
		return nil, invalid("tax rate must be between 0 and %.2f", e.bal.Tax.MaxRate)
	}

	r, err := e.updateRegion(ctx, room, region, func(r *social.Region) error {
		if r.RulerID != rulerID {
			return invalid("you do not rule %s", region)
		}
		if r.TaxRate == rate {
			return store.ErrNoChange
		}
		r.TaxRate = rate
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.Capital && p.Role == players.RoleKing {
		if _, err := e.updateWorld(ctx, room, func(w *World) error {
			w.KingTaxRate = rate
			return nil
		}); err != nil {
			return nil, err
		}
	}

	msg := fmt.Sprintf("%s sets the tax in %s to %.0f%%", p.Name, region, rate*100)
	e.record(ctx, room, "tax", rulerID, msg, map[string]any{"region": region, "rate": rate})
	return &Outcome{Message: msg}, nil
}
