package notifications

import "github.com/buzzwatch/buzzwatch/internal/models"

// Notifier delivers monitoring deltas to the configured channels.
type Notifier interface {
	SendDelta(delta []models.Mention, stats models.AggregateStats) error
}
