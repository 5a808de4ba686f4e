package steward

import "sort"

// Step is one repair the steward will request.
type Step struct {
	Action string `json:"action"` // "resolve_election" or "regenerate_profiles"
	Region string `json:"region,omitempty"`
	Reason string `json:"reason"`
}

// Plan turns findings into repairs. Expired elections are resolved and
// stale profiles are rebuilt once. A ruler sitting through an unexpired
// election has no admin repair, so like the other findings without one it
// is left for a human and only logged.
func Plan(h *RoomHealth) []Step {
	var steps []Step
	seen := map[string]bool{}
	profiles := false
	for _, f := range h.Findings {
		switch f.Kind {
		case "expired_election":
			if seen[f.Region] {
				continue
			}
			seen[f.Region] = true
			steps = append(steps, Step{Action: "resolve_election", Region: f.Region, Reason: f.Detail})
		case "stale_profiles", "ruler_mismatch":
			profiles = true
		}
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Region < steps[j].Region })
	// Profiles last, so they reflect any resolution above.
	if profiles {
		steps = append(steps, Step{Action: "regenerate_profiles", Reason: "profiles out of step with player records"})
	}
	return steps
}
