package players

import (
	"errors"
	"fmt"
	"strings"
)

// Resource names a kind of value a player can hold.
type Resource string

const (
	Gold  Resource = "gold"
	Grain Resource = "grain"
	Wood  Resource = "wood"
	Stone Resource = "stone"
	Iron  Resource = "iron"
	Wool  Resource = "wool"
	Fish  Resource = "fish"
	Cloth Resource = "cloth"
)

// ParseResource normalizes a resource name. Any non-empty lower-case
// identifier is accepted; the balance tables decide what is tradeable.
func ParseResource(s string) (Resource, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || strings.ContainsAny(s, "/ ") {
		return "", fmt.Errorf("invalid resource %q", s)
	}
	return Resource(s), nil
}

// ErrInsufficient is returned when a debit would go negative.
var ErrInsufficient = errors.New("insufficient resources")

// Resources maps resource kind to a non-negative quantity.
type Resources map[Resource]int64

// Get returns the held quantity of k.
func (r Resources) Get(k Resource) int64 {
	if r == nil {
		return 0
	}
	return r[k]
}

// Credit adds amount of k. Negative amounts are rejected.
func (r Resources) Credit(k Resource, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("credit %s: negative amount %d", k, amount)
	}
	r[k] += amount
	return nil
}

// Debit removes amount of k, refusing to go below zero.
func (r Resources) Debit(k Resource, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("debit %s: negative amount %d", k, amount)
	}
	have := r[k]
	if have < amount {
		return fmt.Errorf("not enough %s: have %d, need %d: %w", k, have, amount, ErrInsufficient)
	}
	r[k] = have - amount
	return nil
}

// Clone returns an independent copy.
func (r Resources) Clone() Resources {
	out := make(Resources, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
