// Package engine runs the realm's economy and political transitions against
// the shared node store. Every operation is a short sequence of single-node
// transactions: the contested node first (market cell, building, region,
// world), then the per-player ledger. A failure after the first step is
// logged as a desync and never rolled back.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/fiefdom/internal/config"
	"github.com/talgya/fiefdom/internal/entropy"
	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/store"
)

// Error kinds. Every failure an operation returns matches one of these or
// store.ErrTxFailed via errors.Is.
var (
	ErrInvalid      = errors.New("invalid action")
	ErrInsufficient = players.ErrInsufficient
	ErrNotFound     = errors.New("not found")
)

// ActionError carries a plain-text reason for the player alongside its kind.
type ActionError struct {
	Kind   error
	Reason string
	Err    error
}

func (e *ActionError) Error() string { return e.Reason }

func (e *ActionError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func invalid(format string, args ...any) error {
	return &ActionError{Kind: ErrInvalid, Reason: fmt.Sprintf(format, args...)}
}

func insufficient(format string, args ...any) error {
	return &ActionError{Kind: ErrInsufficient, Reason: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &ActionError{Kind: ErrNotFound, Reason: fmt.Sprintf(format, args...)}
}

// asInvalid turns a domain sentinel from a lower package into a validation
// failure whose reason is the sentinel's text.
func asInvalid(err error) error {
	return &ActionError{Kind: ErrInvalid, Reason: err.Error(), Err: err}
}

// Engine owns no state of its own beyond configuration; everything lives
// in the store.
type Engine struct {
	store    store.Store
	bal      *config.Balance
	now      func() time.Time
	rand     entropy.Source
	baseline *entropy.Baseline
	log      *slog.Logger
	feed     *hub

	ticks sync.Map // room → last seen world tick, for log entries
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRandom sets the source used for role shuffles.
func WithRandom(src entropy.Source) Option {
	return func(e *Engine) { e.rand = src }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithSeed seeds the market baseline noise.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.baseline = entropy.NewBaseline(seed, e.bal.Market.BaselineAmplitude, e.bal.Market.BaselineFrequency)
	}
}

// New creates an engine over s with the given balance tables.
func New(s store.Store, bal *config.Balance, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		bal:      bal,
		now:      time.Now,
		rand:     entropy.Crypto,
		baseline: entropy.NewBaseline(42, bal.Market.BaselineAmplitude, bal.Market.BaselineFrequency),
		log:      slog.Default(),
		feed:     newHub(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Balance returns the tables the engine runs with.
func (e *Engine) Balance() *config.Balance { return e.bal }

// Store returns the underlying node store.
func (e *Engine) Store() store.Store { return e.store }

// Delta is one change to a player's holdings.
type Delta struct {
	PlayerID string           `json:"playerId"`
	Resource players.Resource `json:"resource"`
	Amount   int64            `json:"amount"`
}

// XPDelta is experience granted to a player.
type XPDelta struct {
	PlayerID string `json:"playerId"`
	Amount   int64  `json:"amount"`
}

// Outcome is what a successful operation reports back to the player.
type Outcome struct {
	Message        string    `json:"message"`
	ResourceDeltas []Delta   `json:"resourceDeltas,omitempty"`
	XPDeltas       []XPDelta `json:"xpDeltas,omitempty"`
	Details        any       `json:"details,omitempty"`
}

func (o *Outcome) delta(player string, res players.Resource, amount int64) {
	if amount != 0 {
		o.ResourceDeltas = append(o.ResourceDeltas, Delta{PlayerID: player, Resource: res, Amount: amount})
	}
}

func (o *Outcome) xp(player string, amount int64) {
	if amount > 0 {
		o.XPDeltas = append(o.XPDeltas, XPDelta{PlayerID: player, Amount: amount})
	}
}

// Result is the structured reply to a player action.
type Result struct {
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Data    *Outcome `json:"data,omitempty"`
}

// Respond folds an operation's return values into a Result. CAS exhaustion
// is reported generically; every other failure carries its reason.
func Respond(o *Outcome, err error) Result {
	if err == nil {
		return Result{Success: true, Data: o}
	}
	var ae *ActionError
	switch {
	case errors.As(err, &ae):
		return Result{Error: ae.Reason}
	case errors.Is(err, store.ErrTxFailed):
		return Result{Error: "transaction failed"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Result{Error: "request cancelled"}
	default:
		return Result{Error: err.Error()}
	}
}
