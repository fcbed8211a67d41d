package sources

import (
	"context"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/models"
)

// Source is the contract every platform adapter implements. An adapter owns
// its authentication, request shaping and response normalization; the
// orchestrator only ever sees normalized mentions or a categorized error.
type Source interface {
	Name() string
	Enabled() bool
	Fetch(ctx context.Context, query models.Query) ([]models.Mention, error)
}

const defaultSearchWindow = 24 * time.Hour

// searchWindow resolves the time window an adapter should cover for a query.
func searchWindow(query models.Query) time.Duration {
	if query.Filters.Period > 0 {
		return query.Filters.Period
	}
	return defaultSearchWindow
}

// dedupe drops repeated mentions by (platform, id), keeping the first seen.
// Adapters that search keyword by keyword can surface the same item twice.
func dedupe(mentions []models.Mention) []models.Mention {
	seen := make(map[models.MentionKey]bool)
	var unique []models.Mention

	for _, mention := range mentions {
		if !seen[mention.Key()] {
			seen[mention.Key()] = true
			unique = append(unique, mention)
		}
	}

	return unique
}
