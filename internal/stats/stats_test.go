package stats

import (
	"testing"

	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCompute_EmptySet(t *testing.T) {
	assert.Equal(t, models.AggregateStats{}, Compute(nil))
	assert.Equal(t, models.AggregateStats{}, Compute([]models.Mention{}))
}

func TestCompute(t *testing.T) {
	mentions := []models.Mention{
		{ID: "1", Platform: "reddit", Sentiment: models.SentimentPositive, Engagement: models.Engagement{Likes: 10, Comments: 5}},
		{ID: "2", Platform: "twitter", Sentiment: models.SentimentNegative, Engagement: models.Engagement{Shares: 3, Views: 100}},
		{ID: "3", Platform: "reddit", Sentiment: models.SentimentNeutral},
		{ID: "4", Platform: "medium", Sentiment: ""}, // unset counts as neutral
	}

	s := Compute(mentions)

	assert.Equal(t, 1, s.Positive)
	assert.Equal(t, 1, s.Negative)
	assert.Equal(t, 2, s.Neutral)
	assert.Equal(t, 4, s.TotalMentions)
	assert.Equal(t, 118, s.TotalEngagement)
}

func TestCompute_Invariants(t *testing.T) {
	mentions := []models.Mention{
		{ID: "1", Sentiment: models.SentimentPositive},
		{ID: "2", Sentiment: "weird"},
		{ID: "3", Sentiment: models.SentimentNegative},
	}

	s := Compute(mentions)

	assert.Equal(t, len(mentions), s.TotalMentions)
	assert.Equal(t, s.TotalMentions, s.Positive+s.Neutral+s.Negative)
}
