// Package stats derives aggregate statistics from a mention set.
package stats

import "github.com/buzzwatch/buzzwatch/internal/models"

// Compute derives AggregateStats from a mention set. It is a pure function:
// stats are always recomputed from the full set, never patched in place, so
// they cannot drift from the mentions they describe. An empty or nil set
// yields all-zero stats.
func Compute(mentions []models.Mention) models.AggregateStats {
	var s models.AggregateStats

	for _, mention := range mentions {
		switch mention.Sentiment {
		case models.SentimentPositive:
			s.Positive++
		case models.SentimentNegative:
			s.Negative++
		default:
			// Unknown or unset sentiment counts as neutral.
			s.Neutral++
		}
		s.TotalEngagement += mention.Engagement.Total()
	}

	s.TotalMentions = len(mentions)
	return s
}
