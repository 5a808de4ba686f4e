package steward

import (
	"context"
	"log/slog"
	"time"
)

// Steward runs observe → triage → act cycles.
type Steward struct {
	Observer      *Observer
	Actor         *Actor
	Journal       *Journal
	ClockInterval time.Duration
	DryRun        bool
}

// Cycle runs one pass over room and returns what it recorded.
func (s *Steward) Cycle(ctx context.Context, room string) (CycleRecord, error) {
	snap, err := s.Observer.Observe(ctx, room)
	if err != nil {
		return CycleRecord{}, err
	}
	h := Triage(snap, s.ClockInterval)
	rec := CycleRecord{
		Room:        room,
		At:          snap.At,
		Tick:        snap.Status.Tick,
		CrisisLevel: h.CrisisLevel,
		Findings:    len(h.Findings),
	}
	slog.Info("observation complete",
		"room", room,
		"tick", snap.Status.Tick,
		"crisis", h.CrisisLevel,
		"open_elections", h.OpenElections,
		"vacant_seats", h.VacantSeats,
		"active_coups", h.ActiveCoups,
	)
	for _, f := range h.Findings {
		slog.Warn("finding", "room", room, "kind", f.Kind, "region", f.Region, "detail", f.Detail)
	}

	rec.Steps = Plan(h)
	for _, step := range rec.Steps {
		if s.DryRun {
			slog.Info("dry run, skipping", "room", room, "action", step.Action, "region", step.Region)
			continue
		}
		res, err := s.Actor.Act(ctx, room, step)
		switch {
		case err != nil:
			rec.Failed++
			slog.Error("repair failed", "room", room, "action", step.Action, "region", step.Region, "error", err)
		case !res.Success:
			rec.Failed++
			slog.Warn("repair refused", "room", room, "action", step.Action, "region", step.Region, "reason", res.Error)
		default:
			slog.Info("repair executed", "room", room, "action", step.Action, "region", step.Region)
		}
	}

	if s.Journal != nil {
		s.Journal.Record(rec)
	}
	return rec, nil
}
