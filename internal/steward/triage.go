package steward

import (
	"fmt"
	"time"

	"github.com/talgya/fiefdom/internal/players"
)

// Severity levels, most severe first.
const (
	LevelCritical = "CRITICAL"
	LevelWarning  = "WARNING"
	LevelWatch    = "WATCH"
	LevelHealthy  = "HEALTHY"
)

// Finding is one problem noticed in a snapshot.
type Finding struct {
	Kind   string // "expired_election", "ruler_and_election", "ruler_mismatch", "stale_profiles", "pending_title", "clock_stalled"
	Region string
	Detail string
}

// RoomHealth holds derived diagnostics computed from a RoomSnapshot.
type RoomHealth struct {
	Findings        []Finding
	OpenElections   int
	VacantSeats     int
	ActiveCoups     int
	MaxCoupProgress float64
	StaleProfiles   int
	CrisisLevel     string
}

// Triage inspects a snapshot. clockInterval is the server's tick interval;
// a clock more than three intervals behind is reported as stalled.
func Triage(snap *RoomSnapshot, clockInterval time.Duration) *RoomHealth {
	h := &RoomHealth{CrisisLevel: LevelHealthy}
	byID := make(map[string]players.Player, len(snap.Players))
	for _, p := range snap.Players {
		byID[p.ID] = p
	}

	for _, r := range snap.Regions {
		if r.Coup != nil && r.Coup.BribeProgress > 0 {
			h.ActiveCoups++
			h.MaxCoupProgress = max(h.MaxCoupProgress, r.Coup.BribeProgress)
		}
		el := r.ActiveElection
		switch {
		case r.RulerID != "" && el != nil:
			h.add(Finding{"ruler_and_election", r.ID, fmt.Sprintf("%s is ruled by %s during an election", r.ID, r.RulerID)})
		case el != nil:
			h.OpenElections++
		case r.RulerID == "":
			h.VacantSeats++
		}
		if el != nil && !snap.At.Before(el.ExpiresAt) {
			h.add(Finding{"expired_election", r.ID, fmt.Sprintf("election in %s expired at %s", r.ID, el.ExpiresAt.Format(time.RFC3339))})
		}
		if r.RulerID != "" {
			p, ok := byID[r.RulerID]
			if !ok || !p.Role.IsRuler() || p.RegionID != r.ID {
				h.add(Finding{"ruler_mismatch", r.ID, fmt.Sprintf("%s names %s as ruler but the player record disagrees", r.ID, r.RulerID)})
			}
		}
	}

	profiles := make(map[string]players.Profile, len(snap.Profiles))
	for _, pr := range snap.Profiles {
		profiles[pr.ID] = pr
	}
	for _, p := range snap.Players {
		if pr, ok := profiles[p.ID]; !ok || pr != p.Profile() {
			h.StaleProfiles++
		}
	}
	if h.StaleProfiles > 0 {
		h.add(Finding{Kind: "stale_profiles", Detail: fmt.Sprintf("%d profiles out of step", h.StaleProfiles)})
	}

	for _, b := range snap.Buildings {
		if b.HasPending() {
			h.add(Finding{"pending_title", b.PendingRegionID, fmt.Sprintf("%s holds an uninstalled %s title for %s", b.ID, b.PendingRole, b.PendingWinnerID)})
		}
	}

	if clockInterval > 0 && !snap.Status.LastTickAt.IsZero() && snap.At.Sub(snap.Status.LastTickAt) > 3*clockInterval {
		h.add(Finding{Kind: "clock_stalled", Detail: fmt.Sprintf("last tick %s ago", snap.At.Sub(snap.Status.LastTickAt).Round(time.Second))})
	}

	for _, f := range h.Findings {
		h.CrisisLevel = worse(h.CrisisLevel, levelOf(f.Kind))
	}
	return h
}

func (h *RoomHealth) add(f Finding) { h.Findings = append(h.Findings, f) }

func levelOf(kind string) string {
	switch kind {
	case "ruler_and_election", "ruler_mismatch":
		return LevelCritical
	case "expired_election", "clock_stalled":
		return LevelWarning
	default:
		return LevelWatch
	}
}

var rank = map[string]int{LevelHealthy: 0, LevelWatch: 1, LevelWarning: 2, LevelCritical: 3}

func worse(a, b string) string {
	if rank[b] > rank[a] {
		return b
	}
	return a
}
