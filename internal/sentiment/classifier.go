package sentiment

import (
	"strings"

	"github.com/buzzwatch/buzzwatch/internal/models"
)

// Classifier assigns a sentiment to a piece of text. It is injected into the
// orchestrator so tests can substitute a deterministic stub.
type Classifier func(text string) models.Sentiment

// Lexicon returns the default word-list classifier. In production this would
// be backed by a proper classification service; the contract stays the same.
func Lexicon() Classifier {
	positiveWords := []string{"good", "great", "excellent", "love", "awesome", "fantastic", "helpful", "works", "solved", "success"}
	negativeWords := []string{"bad", "terrible", "awful", "hate", "broken", "error", "fail", "problem", "issue", "bug"}

	return func(text string) models.Sentiment {
		content := strings.ToLower(text)

		positiveCount := 0
		negativeCount := 0

		for _, word := range positiveWords {
			if strings.Contains(content, word) {
				positiveCount++
			}
		}

		for _, word := range negativeWords {
			if strings.Contains(content, word) {
				negativeCount++
			}
		}

		if positiveCount > negativeCount {
			return models.SentimentPositive
		} else if negativeCount > positiveCount {
			return models.SentimentNegative
		}

		return models.SentimentNeutral
	}
}

// Fixed returns a classifier that always answers the same sentiment.
// Useful as a test stub.
func Fixed(s models.Sentiment) Classifier {
	return func(string) models.Sentiment {
		return s
	}
}
