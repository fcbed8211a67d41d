package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/fanout"
	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQuery() models.Query {
	return models.Query{Keywords: []string{"covid"}, Platforms: []string{"reddit", "twitter"}}
}

func fixedFetch(mentions []models.Mention) fetchFunc {
	return func(context.Context, models.Query) (*fanout.Result, error) {
		return &fanout.Result{Mentions: mentions}, nil
	}
}

func TestSession_TickEmitsOnlyDelta(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m1 := mention("reddit", "m1", base.Add(1*time.Minute))
	m2 := mention("reddit", "m2", base.Add(2*time.Minute))
	m3 := mention("twitter", "m3", base.Add(3*time.Minute))

	var gotDelta []models.Mention
	var gotSnapshot *models.CacheEntry

	session := newSession(testQuery(), time.Minute, 0, fixedFetch([]models.Mention{m2, m3}),
		func(delta []models.Mention, snapshot *models.CacheEntry) {
			gotDelta = delta
			gotSnapshot = snapshot
		})
	session.seed([]models.Mention{m2, m1})

	session.tick()

	require.Len(t, gotDelta, 1)
	assert.Equal(t, m3.Key(), gotDelta[0].Key())
	require.NotNil(t, gotSnapshot)
	assert.Len(t, gotSnapshot.Mentions, 3)
	assert.Equal(t, 3, gotSnapshot.Stats.TotalMentions)
	assert.Equal(t, map[string]int{"reddit": 2, "twitter": 1}, gotSnapshot.PlatformCounts)
}

func TestSession_NoDeltaNoEmission(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m1 := mention("reddit", "m1", base)

	emitted := false
	session := newSession(testQuery(), time.Minute, 0, fixedFetch([]models.Mention{m1}),
		func([]models.Mention, *models.CacheEntry) { emitted = true })
	session.seed([]models.Mention{m1})

	session.tick()

	assert.False(t, emitted, "an unchanged upstream set emits nothing")
}

func TestSession_MinSpacingSkipsTick(t *testing.T) {
	fetches := 0
	session := newSession(testQuery(), time.Minute, 30*time.Second,
		func(context.Context, models.Query) (*fanout.Result, error) {
			fetches++
			return &fanout.Result{}, nil
		}, nil)

	// seed records a fetch timestamp; the next tick is inside minSpacing.
	session.seed(nil)
	session.tick()
	assert.Equal(t, 0, fetches, "tick inside the minimum spacing is skipped, not queued")

	session.mu.Lock()
	session.lastFetchAt = session.now().Add(-time.Minute)
	session.mu.Unlock()

	session.tick()
	assert.Equal(t, 1, fetches)
}

func TestSession_StopDiscardsInFlightResult(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m1 := mention("reddit", "m1", base)

	started := make(chan struct{})
	release := make(chan struct{})
	emitted := false

	session := newSession(testQuery(), time.Minute, 0,
		func(context.Context, models.Query) (*fanout.Result, error) {
			close(started)
			<-release
			return &fanout.Result{Mentions: []models.Mention{m1}}, nil
		},
		func([]models.Mention, *models.CacheEntry) { emitted = true })

	tickDone := make(chan struct{})
	go func() {
		session.tick()
		close(tickDone)
	}()

	<-started
	session.Stop()
	close(release)
	<-tickDone

	assert.False(t, emitted, "a result arriving after Stop is discarded")
	snapshot := session.Snapshot()
	assert.Empty(t, snapshot.Mentions)
}

func TestSession_FailedPollKeepsSet(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m1 := mention("reddit", "m1", base)

	session := newSession(testQuery(), time.Minute, 0,
		func(context.Context, models.Query) (*fanout.Result, error) {
			return nil, fanout.ErrAllPlatformsFailed
		}, nil)
	session.seed([]models.Mention{m1})

	session.mu.Lock()
	session.lastFetchAt = time.Time{}
	session.mu.Unlock()

	session.tick()

	snapshot := session.Snapshot()
	assert.Len(t, snapshot.Mentions, 1, "a failed poll never shrinks the live set")
}

func TestSession_StopCancelsLoop(t *testing.T) {
	session := newSession(testQuery(), 10*time.Millisecond, 0, fixedFetch(nil), nil)
	session.start()

	session.Stop()
	session.Stop() // idempotent

	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatal("polling loop did not exit after Stop")
	}
}
