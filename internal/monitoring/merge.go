package monitoring

import (
	"github.com/buzzwatch/buzzwatch/internal/fanout"
	"github.com/buzzwatch/buzzwatch/internal/models"
)

// Merge folds newly fetched mentions into the current live set. Identity is
// (platform, id); a mention already present is never duplicated, and a
// mention missing from the incoming batch is never removed — a provider
// omitting a previously seen item does not mean the item was deleted.
//
// The returned merged set is newest first. delta holds only the genuinely
// new mentions, in the same order they appear in the merged set.
func Merge(current, incoming []models.Mention) (merged, delta []models.Mention) {
	seen := make(map[models.MentionKey]bool, len(current))
	for _, mention := range current {
		seen[mention.Key()] = true
	}

	for _, mention := range incoming {
		if seen[mention.Key()] {
			continue
		}
		seen[mention.Key()] = true
		delta = append(delta, mention)
	}

	if len(delta) == 0 {
		return current, nil
	}

	merged = make([]models.Mention, 0, len(current)+len(delta))
	merged = append(merged, delta...)
	merged = append(merged, current...)
	fanout.SortMentions(merged)
	fanout.SortMentions(delta)

	return merged, delta
}
