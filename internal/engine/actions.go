package engine

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/talgya/fiefdom/internal/players"
)

// Action is a player request as it arrives from the presentation layer.
type Action struct {
	Actor   string          `json:"actor"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type tradePayload struct {
	Region   string `json:"region"`
	Resource string `json:"resource"`
}

type contributePayload struct {
	Building string `json:"building"`
	Resource string `json:"resource"`
	Amount   int64  `json:"amount"`
}

type taxPayload struct {
	Role      string   `json:"role"`
	Rate      float64  `json:"rate"`
	Resources []string `json:"resources"`
}

type ratePayload struct {
	Region string  `json:"region"`
	Rate   float64 `json:"rate"`
}

type regionPayload struct {
	Region    string `json:"region"`
	Amount    int64  `json:"amount"`
	Candidate string `json:"candidate"`
}

type yieldPayload struct {
	Resource string `json:"resource"`
	Amount   int64  `json:"amount"`
	Source   string `json:"source"`
}

type handler func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error)

var handlers = map[string]handler{
	"buy": func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error) {
		var p tradePayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		res, err := resource(p.Resource)
		if err != nil {
			return nil, err
		}
		return e.Buy(ctx, room, actor, p.Region, res)
	},
	"sell": func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error) {
		var p tradePayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		res, err := resource(p.Resource)
		if err != nil {
			return nil, err
		}
		return e.Sell(ctx, room, actor, p.Region, res)
	},
	"contribute": func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error) {
		var p contributePayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		res, err := resource(p.Resource)
		if err != nil {
			return nil, err
		}
		return e.Contribute(ctx, room, actor, p.Building, res, p.Amount)
	},
	"collect_tax": func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error) {
		var p taxPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		role, err := players.ParseRole(p.Role)
		if err != nil {
			return nil, asInvalid(err)
		}
		d := RateDetails{Rate: p.Rate}
		for _, name := range p.Resources {
			res, err := resource(name)
			if err != nil {
				return nil, err
			}
			d.Resources = append(d.Resources, res)
		}
		return e.CollectTax(ctx, room, actor, role, d)
	},
	"set_tax_rate": func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error) {
		var p ratePayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		return e.SetTaxRate(ctx, room, actor, p.Region, p.Rate)
	},
	"bribe": func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error) {
		var p regionPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		return e.Bribe(ctx, room, actor, p.Region, p.Amount)
	},
	"pledge": func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error) {
		var p regionPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		return e.Pledge(ctx, room, actor, p.Region, p.Candidate)
	},
	"register_candidate": func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error) {
		var p regionPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		return e.RegisterCandidate(ctx, room, actor, p.Region)
	},
	"vote": func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error) {
		var p regionPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		return e.Vote(ctx, room, actor, p.Region, p.Candidate)
	},
	"resolve_election": func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error) {
		var p regionPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		return e.ResolveElection(ctx, room, p.Region)
	},
	"abdicate": func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error) {
		var p regionPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		return e.Abdicate(ctx, room, actor, p.Region)
	},
	"claim_throne": func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error) {
		var p regionPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		return e.ClaimThrone(ctx, room, actor, p.Region)
	},
	"rest": func(ctx context.Context, e *Engine, room, actor string, _ json.RawMessage) (*Outcome, error) {
		return e.Rest(ctx, room, actor)
	},
	"yield": func(ctx context.Context, e *Engine, room, actor string, raw json.RawMessage) (*Outcome, error) {
		var p yieldPayload
		if err := decode(raw, &p); err != nil {
			return nil, err
		}
		res, err := resource(p.Resource)
		if err != nil {
			return nil, err
		}
		return e.GrantYield(ctx, room, actor, res, p.Amount, p.Source)
	},
}

// Actions lists the action names Do accepts.
func Actions() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Do runs a player action and folds the outcome into a Result.
func (e *Engine) Do(ctx context.Context, room string, a Action) Result {
	h, ok := handlers[a.Action]
	if !ok {
		return Respond(nil, invalid("unknown action %q", a.Action))
	}
	if a.Actor == "" {
		return Respond(nil, invalid("an actor is required"))
	}
	o, err := h(ctx, e, room, a.Actor, a.Payload)
	if err != nil {
		e.log.Debug("action rejected", "room", room, "actor", a.Actor, "action", a.Action, "error", err)
	}
	return Respond(o, err)
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalid("malformed payload: %v", err)
	}
	return nil
}

func resource(name string) (players.Resource, error) {
	res, err := players.ParseResource(name)
	if err != nil {
		return "", invalid("%v", err)
	}
	return res, nil
}
