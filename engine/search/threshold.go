package search

import (
	"fmt"

	"github.com/m1520n/rag-chatbot/engine/domain"
)

// Thresholds are the fractions of the distance spread kept above the best
// candidate. Follow-up queries get a wider band than fresh ones.
type Thresholds struct {
	FollowUp float64 `yaml:"follow_up" json:"follow_up"`
	NewQuery float64 `yaml:"new_query" json:"new_query"`
}

// DefaultThresholds returns 0.3 for follow-ups and 0.2 for new queries.
func DefaultThresholds() Thresholds {
	return Thresholds{FollowUp: 0.3, NewQuery: 0.2}
}

// Validate requires both multipliers in (0, 1].
func (t Thresholds) Validate() error {
	if !(t.FollowUp > 0 && t.FollowUp <= 1) {
		return fmt.Errorf("search: follow-up multiplier %v outside (0,1]", t.FollowUp)
	}
	if !(t.NewQuery > 0 && t.NewQuery <= 1) {
		return fmt.Errorf("search: new-query multiplier %v outside (0,1]", t.NewQuery)
	}
	return nil
}

// Multiplier picks the band for a conversation.
func (t Thresholds) Multiplier(conv domain.Conversation) float64 {
	if conv.IsFollowUp() {
		return t.FollowUp
	}
	return t.NewQuery
}

// Threshold is min + (max - min) * multiplier over distances. It is 0 for
// an empty slice.
func Threshold(distances []float64, multiplier float64) float64 {
	if len(distances) == 0 {
		return 0
	}
	lo, hi := distances[0], distances[0]
	for _, d := range distances[1:] {
		lo = min(lo, d)
		hi = max(hi, d)
	}
	return lo + (hi-lo)*multiplier
}
