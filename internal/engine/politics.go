package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/social"
	"github.com/talgya/fiefdom/internal/store"
)

// errElectionExpired aborts a region transaction that found an election
// past its deadline, so the caller can resolve it and try again.
var errElectionExpired = errors.New("election expired")

// settleElection resolves an expired election on behalf of whoever noticed
// it. Losing the race to another resolver is not an error.
func (e *Engine) settleElection(ctx context.Context, room, region string) error {
	if _, err := e.ResolveElection(ctx, room, region); err != nil && !errors.Is(err, social.ErrNoElection) {
		e.log.Warn("lazy election resolution failed", "room", room, "region", region, "error", err)
		return err
	}
	return nil
}

// afterExpiry runs op and, if op ran into an expired election, resolves it
// and runs op once more against the settled region.
func (e *Engine) afterExpiry(ctx context.Context, room, region string, op func() (*Outcome, error)) (*Outcome, error) {
	o, err := op()
	if !errors.Is(err, errElectionExpired) {
		return o, err
	}
	if err := e.settleElection(ctx, room, region); err != nil {
		return nil, err
	}
	o, err = op()
	if errors.Is(err, errElectionExpired) {
		return nil, asInvalid(social.ErrElectionClosed)
	}
	return o, err
}

// promote makes a player the ruler-role of region. If they ruled somewhere
// else, that region's ruler is cleared, guarded on it still being them.
func (e *Engine) promote(ctx context.Context, room, playerID string, role players.Role, region string, legitimacy float64) error {
	var formerRegion string
	if _, err := e.updatePlayer(ctx, room, playerID, func(p *players.Player) error {
		formerRegion = ""
		if p.Role.IsRuler() && p.RegionID != region {
			formerRegion = p.RegionID
		}
		p.Role = role
		p.RegionID = region
		p.Status.Legitimacy = players.Clamp(legitimacy, 0, 100)
		return nil
	}); err != nil {
		return err
	}
	if formerRegion != "" {
		if _, err := e.updateRegion(ctx, room, formerRegion, func(r *social.Region) error {
			if r.RulerID != playerID {
				return store.ErrNoChange
			}
			r.ClearRuler()
			return nil
		}); err != nil {
			return fmt.Errorf("vacate %s: %w", formerRegion, err)
		}
		e.record(ctx, room, "political", playerID, fmt.Sprintf("%s leaves the seat of %s vacant", playerID, formerRegion), nil)
	}
	return nil
}

// demote strips a ruler to Peasant with zero legitimacy.
func (e *Engine) demote(ctx context.Context, room, playerID string) error {
	_, err := e.updatePlayer(ctx, room, playerID, func(p *players.Player) error {
		p.Demote()
		return nil
	})
	return err
}

// Region returns a region, resolving its election first if it has expired.
func (e *Engine) Region(ctx context.Context, room, id string) (social.Region, error) {
	id = regionID(id)
	r, err := e.region(ctx, room, id)
	if err != nil {
		return r, err
	}
	if r.ActiveElection != nil && r.ActiveElection.Expired(e.now()) {
		_ = e.settleElection(ctx, room, id)
		return e.region(ctx, room, id)
	}
	return r, nil
}

// Regions returns every region in the room, resolving expired elections.
func (e *Engine) Regions(ctx context.Context, room string) ([]social.Region, error) {
	rs, err := store.ReadAll[social.Region](ctx, e.store, regionsPath(room))
	if err != nil {
		return nil, err
	}
	now := e.now()
	for i, r := range rs {
		if r.ActiveElection != nil && r.ActiveElection.Expired(now) {
			if fresh, err := e.Region(ctx, room, r.ID); err == nil {
				rs[i] = fresh
			}
		}
	}
	return rs, nil
}

// Bribe spends gold against a region's ruler. Anyone but the ruler pushes
// the coup forward; the ruler's own bribes push it back. At full progress
// the ruler is deposed and an election opens. Part of every bribe is paid
// out as stimulus to the region's peasants and soldiers.
func (e *Engine) Bribe(ctx context.Context, room, briberID, region string, amount int64) (*Outcome, error) {
	region = regionID(region)
	return e.afterExpiry(ctx, room, region, func() (*Outcome, error) {
		return e.bribe(ctx, room, briberID, region, amount)
	})
}

func (e *Engine) bribe(ctx context.Context, room, briberID, region string, amount int64) (*Outcome, error) {
	if amount <= 0 {
		return nil, invalid("bribe must be positive")
	}
	briber, err := e.actor(ctx, room, briberID)
	if err != nil {
		return nil, err
	}
	if briber.Resources.Get(players.Gold) < amount {
		return nil, insufficient("not enough gold")
	}

	rules := e.bal.Politics
	now := e.now()
	var (
		rulerID, deposed string
		byRuler, revolt  bool
		progress         float64
	)
	r, err := e.updateRegion(ctx, room, region, func(r *social.Region) error {
		deposed, revolt = "", false
		switch {
		case r.ActiveElection != nil && r.ActiveElection.Expired(now):
			return errElectionExpired
		case r.ActiveElection != nil:
			return invalid("an election is already underway in %s", region)
		case !r.Ruled():
			return invalid("%s has no ruler to bribe against", region)
		case r.InHoneymoon(now, rules.HoneymoonWindow):
			return invalid("the people of %s still celebrate their new ruler", region)
		}
		rulerID = r.RulerID
		byRuler = briberID == r.RulerID
		c := r.EnsureCoup()
		if c.ApplyBribe(briberID, briber.Name, byRuler, amount, rules) && !byRuler {
			deposed = r.Revolt(now, rules)
			revolt = true
		}
		if r.Coup != nil {
			progress = r.Coup.BribeProgress
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o := &Outcome{}
	if _, err := e.updatePlayer(ctx, room, briberID, func(p *players.Player) error {
		return debit(p, players.Gold, amount)
	}); err != nil {
		e.desync(ctx, room, briberID, "bribe", err)
	} else {
		o.delta(briberID, players.Gold, -amount)
	}

	if !byRuler {
		loss := float64(amount) / float64(rules.BaseBribeCost) * rules.LegitimacyPerBribe
		if _, err := e.updatePlayer(ctx, room, rulerID, func(p *players.Player) error {
			p.AdjustLegitimacy(-loss)
			return nil
		}); err != nil {
			e.desync(ctx, room, rulerID, "bribe legitimacy", err)
		}
	}

	if revolt {
		if err := e.demote(ctx, room, deposed); err != nil {
			e.desync(ctx, room, deposed, "revolution demotion", err)
		}
	}

	e.stimulus(ctx, room, region, briberID, amount, o)

	switch {
	case revolt:
		names := make([]string, 0, len(r.ActiveElection.Candidates))
		for _, c := range r.ActiveElection.Candidates {
			names = append(names, c.Name)
		}
		o.Message = fmt.Sprintf("Revolution in %s! %s is deposed; %d candidates stand for election", region, deposed, len(names))
		o.Details = r.ActiveElection
		e.log.Info("revolution", "room", room, "region", region, "deposed", deposed, "candidates", names)
		e.record(ctx, room, "political", briberID, o.Message, map[string]any{"region": region, "deposed": deposed, "candidates": names})
	case byRuler:
		o.Message = fmt.Sprintf("%s pays %d gold to calm %s (unrest %.0f)", briber.Name, amount, region, progress)
		e.record(ctx, room, "political", briberID, o.Message, map[string]any{"region": region, "progress": progress})
	default:
		o.Message = fmt.Sprintf("%s spreads %d gold in %s (unrest %.0f)", briber.Name, amount, region, progress)
		e.record(ctx, room, "political", briberID, o.Message, map[string]any{"region": region, "progress": progress})
	}
	return o, nil
}

// stimulus splits amount evenly among the region's active peasants and
// soldiers, counting the briber as one share that is withheld. Each
// recipient is credited in its own transaction.
func (e *Engine) stimulus(ctx context.Context, room, region, briberID string, amount int64, o *Outcome) {
	all, err := e.allPlayers(ctx, room)
	if err != nil {
		e.log.Warn("stimulus skipped", "room", room, "region", region, "error", err)
		return
	}
	var recipients []string
	for _, p := range all {
		if p.Active && p.ID != briberID && p.RegionID == region && p.Role.LowerClass() {
			recipients = append(recipients, p.ID)
		}
	}
	share := amount / int64(len(recipients)+1)
	if share <= 0 {
		return
	}
	for _, id := range recipients {
		if _, err := e.Credit(ctx, room, id, players.Gold, share); err != nil {
			e.desync(ctx, room, id, "bribe stimulus", err)
			continue
		}
		o.delta(id, players.Gold, share)
	}
}

// Pledge records a standing vote for candidateID in region. If that
// candidate is already standing in an open election the pledge is cast at
// once.
func (e *Engine) Pledge(ctx context.Context, room, voterID, region, candidateID string) (*Outcome, error) {
	region = regionID(region)
	return e.afterExpiry(ctx, room, region, func() (*Outcome, error) {
		return e.pledge(ctx, room, voterID, region, candidateID)
	})
}

func (e *Engine) pledge(ctx context.Context, room, voterID, region, candidateID string) (*Outcome, error) {
	voter, err := e.actor(ctx, room, voterID)
	if err != nil {
		return nil, err
	}
	if _, err := e.player(ctx, room, candidateID); err != nil {
		return nil, err
	}
	weight := e.bal.Politics.VoteWeight(voter.Role)
	now := e.now()

	cast := false
	if _, err := e.updateRegion(ctx, room, region, func(r *social.Region) error {
		cast = false
		if r.ActiveElection != nil && r.ActiveElection.Expired(now) {
			return errElectionExpired
		}
		r.EnsureCoup().Pledge(voterID, candidateID, weight, now)
		if el := r.ActiveElection; el != nil && el.HasCandidate(candidateID) {
			if _, voted := el.Votes[voterID]; !voted {
				cast, _ = el.Cast(voterID, candidateID, weight)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("%s pledges support to %s in %s", voter.Name, candidateID, region)
	if cast {
		msg += " and casts the vote"
	}
	e.record(ctx, room, "political", voterID, msg, map[string]any{"region": region, "candidate": candidateID})
	return &Outcome{Message: msg}, nil
}

// RegisterCandidate enters a player into a region's open election. Pledges
// made for them become votes. Registering twice changes nothing.
func (e *Engine) RegisterCandidate(ctx context.Context, room, playerID, region string) (*Outcome, error) {
	region = regionID(region)
	p, err := e.actor(ctx, room, playerID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	added, seeded := false, 0
	if _, err := e.updateRegion(ctx, room, region, func(r *social.Region) error {
		added, seeded = false, 0
		el := r.ActiveElection
		if el == nil {
			return asInvalid(social.ErrNoElection)
		}
		if el.Expired(now) {
			return errElectionExpired
		}
		if !el.AddCandidate(playerID, p.Name, now) {
			return store.ErrNoChange
		}
		added = true
		if r.Coup != nil {
			seeded = el.SeedPledges(r.Coup.Pledges, playerID)
		}
		return nil
	}); errors.Is(err, errElectionExpired) {
		if err := e.settleElection(ctx, room, region); err != nil {
			return nil, err
		}
		return nil, asInvalid(social.ErrElectionClosed)
	} else if err != nil {
		return nil, err
	}
	if !added {
		return &Outcome{Message: fmt.Sprintf("%s is already standing in %s", p.Name, region)}, nil
	}
	msg := fmt.Sprintf("%s stands for election in %s", p.Name, region)
	if seeded > 0 {
		msg += fmt.Sprintf(" with %d pledged votes", seeded)
	}
	e.record(ctx, room, "political", playerID, msg, map[string]any{"region": region})
	return &Outcome{Message: msg}, nil
}

// Vote casts or moves a ballot in a region's open election. Voting for the
// same candidate again is a no-op. A vote on an expired election resolves it.
func (e *Engine) Vote(ctx context.Context, room, voterID, region, candidateID string) (*Outcome, error) {
	region = regionID(region)
	voter, err := e.actor(ctx, room, voterID)
	if err != nil {
		return nil, err
	}
	weight := e.bal.Politics.VoteWeight(voter.Role)
	now := e.now()

	expired, changed := false, false
	if _, err := e.updateRegion(ctx, room, region, func(r *social.Region) error {
		expired, changed = false, false
		el := r.ActiveElection
		if el == nil {
			return asInvalid(social.ErrNoElection)
		}
		if el.Expired(now) {
			expired = true
			return store.ErrNoChange
		}
		ok, err := el.Cast(voterID, candidateID, weight)
		if err != nil {
			return asInvalid(err)
		}
		if !ok {
			return store.ErrNoChange
		}
		changed = true
		return nil
	}); err != nil {
		return nil, err
	}

	if expired {
		if err := e.settleElection(ctx, room, region); err != nil {
			return nil, err
		}
		return nil, asInvalid(social.ErrElectionClosed)
	}
	if !changed {
		return &Outcome{Message: fmt.Sprintf("%s has already voted for %s", voter.Name, candidateID)}, nil
	}
	msg := fmt.Sprintf("%s votes for %s in %s", voter.Name, candidateID, region)
	e.record(ctx, room, "political", voterID, msg, map[string]any{"region": region, "candidate": candidateID, "weight": weight})
	return &Outcome{Message: msg}, nil
}

// ResolveElection closes an expired election. Resolution is guarded inside
// the region transaction, so only one caller installs the winner; the rest
// see "no active election".
func (e *Engine) ResolveElection(ctx context.Context, room, region string) (*Outcome, error) {
	region = regionID(region)
	now := e.now()
	var (
		winner social.Candidate
		won    bool
	)
	r, err := e.updateRegion(ctx, room, region, func(r *social.Region) error {
		var err error
		winner, won, err = r.Resolve(now)
		if err != nil {
			return asInvalid(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !won {
		msg := fmt.Sprintf("The election in %s ends without a candidate; the seat stands empty", region)
		e.record(ctx, room, "political", "", msg, map[string]any{"region": region})
		return &Outcome{Message: msg}, nil
	}

	role := r.TitleFor()
	if err := e.promote(ctx, room, winner.ID, role, region, e.bal.Politics.ElectedLegitimacy); err != nil {
		e.desync(ctx, room, winner.ID, "election win", err)
	}
	msg := fmt.Sprintf("%s wins the election in %s with %d weighted votes and becomes %s", winner.Name, region, winner.WeightedVotes, role)
	e.log.Info("election resolved", "room", room, "region", region, "winner", winner.ID, "weighted_votes", winner.WeightedVotes)
	e.record(ctx, room, "political", winner.ID, msg, map[string]any{"region": region, "votes": winner.Votes, "weighted": winner.WeightedVotes})
	return &Outcome{Message: msg, Details: winner}, nil
}

// Abdicate gives up a region. Outside the capital an election opens at once.
func (e *Engine) Abdicate(ctx context.Context, room, rulerID, region string) (*Outcome, error) {
	region = regionID(region)
	p, err := e.actor(ctx, room, rulerID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	r, err := e.updateRegion(ctx, room, region, func(r *social.Region) error {
		if r.RulerID != rulerID {
			return invalid("you do not rule %s", region)
		}
		r.Abdicate(now, e.bal.Politics)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := e.demote(ctx, room, rulerID); err != nil {
		e.desync(ctx, room, rulerID, "abdication", err)
	}
	msg := fmt.Sprintf("%s abdicates the seat of %s", p.Name, region)
	if r.ActiveElection != nil {
		msg += "; an election is called"
	}
	e.record(ctx, room, "political", rulerID, msg, map[string]any{"region": region})
	return &Outcome{Message: msg}, nil
}

// ClaimThrone buys an empty seat outright. A vacant capital makes the
// claimant King.
func (e *Engine) ClaimThrone(ctx context.Context, room, playerID, region string) (*Outcome, error) {
	region = regionID(region)
	return e.afterExpiry(ctx, room, region, func() (*Outcome, error) {
		return e.claimThrone(ctx, room, playerID, region)
	})
}

func (e *Engine) claimThrone(ctx context.Context, room, playerID, region string) (*Outcome, error) {
	p, err := e.actor(ctx, room, playerID)
	if err != nil {
		return nil, err
	}
	rules := e.bal.Politics
	if p.Resources.Get(players.Gold) < rules.ClaimCost {
		return nil, insufficient("claiming a throne costs %d gold", rules.ClaimCost)
	}

	now := e.now()
	r, err := e.updateRegion(ctx, room, region, func(r *social.Region) error {
		switch {
		case r.ActiveElection != nil && r.ActiveElection.Expired(now):
			return errElectionExpired
		case r.ActiveElection != nil:
			return invalid("an election is already underway in %s", region)
		case r.Ruled():
			return invalid("%s already has a ruler", region)
		}
		r.SetRuler(playerID, p.Name, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	role := r.TitleFor()
	o := &Outcome{Message: fmt.Sprintf("%s claims the empty seat of %s and becomes %s", p.Name, region, role)}
	if _, err := e.updatePlayer(ctx, room, playerID, func(p *players.Player) error {
		return debit(p, players.Gold, rules.ClaimCost)
	}); err != nil {
		e.desync(ctx, room, playerID, "claim throne", err)
	} else {
		o.delta(playerID, players.Gold, -rules.ClaimCost)
	}
	if err := e.promote(ctx, room, playerID, role, region, rules.ClaimLegitimacy); err != nil {
		e.desync(ctx, room, playerID, "claim throne", err)
	}
	e.record(ctx, room, "political", playerID, o.Message, map[string]any{"region": region})
	return o, nil
}
