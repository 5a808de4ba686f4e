package social

import (
	"time"

	"github.com/talgya/fiefdom/internal/players"
)

// PoliticsRules are the tunables for coups, elections and claims.
type PoliticsRules struct {
	BaseBribeCost       int64         `yaml:"base_bribe_cost" json:"base_bribe_cost"`
	ProgressPerBaseCost float64       `yaml:"progress_per_base_cost" json:"progress_per_base_cost"`
	LegitimacyPerBribe  float64       `yaml:"legitimacy_per_bribe" json:"legitimacy_per_bribe"`
	HoneymoonWindow     time.Duration `yaml:"honeymoon_window" json:"honeymoon_window"`
	ElectionDuration    time.Duration `yaml:"election_duration" json:"election_duration"`
	CandidateCount      int           `yaml:"candidate_count" json:"candidate_count"`
	ElectedLegitimacy   float64       `yaml:"elected_legitimacy" json:"elected_legitimacy"`
	ClaimCost           int64         `yaml:"claim_cost" json:"claim_cost"`
	ClaimLegitimacy     float64       `yaml:"claim_legitimacy" json:"claim_legitimacy"`
	TitleLegitimacy     float64       `yaml:"title_legitimacy" json:"title_legitimacy"`

	VoteWeights map[string]int `yaml:"vote_weights" json:"vote_weights"` // role name → weight
}

// VoteWeight is the ballot weight of role, falling back to the role default.
func (p PoliticsRules) VoteWeight(r players.Role) int {
	if w, ok := p.VoteWeights[r.String()]; ok && w > 0 {
		return w
	}
	return r.DefaultVoteWeight()
}

// TaxRecord is one season's collection by a ruler.
type TaxRecord struct {
	Year        int                        `json:"year"`
	Season      string                     `json:"season"`
	Rate        float64                    `json:"rate"`
	Amounts     map[players.Resource]int64 `json:"amounts"`
	Payers      int                        `json:"payers"`
	CollectorID string                     `json:"collectorId"`
	At          time.Time                  `json:"at"`
}

// AppendTaxRecord appends rec, dropping the oldest entries beyond limit.
func AppendTaxRecord(history []TaxRecord, rec TaxRecord, limit int) []TaxRecord {
	history = append(history, rec)
	if limit > 0 && len(history) > limit {
		history = append([]TaxRecord(nil), history[len(history)-limit:]...)
	}
	return history
}
