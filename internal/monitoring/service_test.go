package monitoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/cache"
	"github.com/buzzwatch/buzzwatch/internal/config"
	"github.com/buzzwatch/buzzwatch/internal/fanout"
	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/buzzwatch/buzzwatch/internal/savedqueries"
	"github.com/buzzwatch/buzzwatch/internal/sentiment"
	"github.com/buzzwatch/buzzwatch/internal/sources"
	"github.com/buzzwatch/buzzwatch/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource is a minimal adapter for orchestrator tests.
type scriptedSource struct {
	name string

	mu       sync.Mutex
	mentions []models.Mention
	err      error
	calls    int
}

func (s *scriptedSource) Name() string  { return s.name }
func (s *scriptedSource) Enabled() bool { return true }

func (s *scriptedSource) Fetch(context.Context, models.Query) ([]models.Mention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.mentions, s.err
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testConfig() *config.Config {
	return &config.Config{
		FanoutTimeout:    time.Second,
		CacheTTL:         15 * time.Minute,
		PollInterval:     time.Hour, // ticks never fire within a test
		MinPollSpacing:   time.Minute,
		DefaultPlatforms: []string{"reddit"},
	}
}

func newTestService(adapters ...sources.Source) (*Service, *savedqueries.Store) {
	cfg := testConfig()
	executor := fanout.New(adapters, sentiment.Fixed(models.SentimentNeutral), cfg.FanoutTimeout)
	queryCache := cache.New(executor.Run, cfg.CacheTTL)
	saved := savedqueries.New(storage.NewMemory())
	return NewService(cfg, executor, queryCache, saved, nil), saved
}

func TestService_Search(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	source := &scriptedSource{name: "reddit", mentions: []models.Mention{
		{ID: "1", Platform: "reddit", Content: "covid", CreatedAt: base},
	}}
	service, _ := newTestService(source)

	query := models.Query{Keywords: []string{"covid"}, Platforms: []string{"reddit"}}

	entry, errMap, err := service.Search(context.Background(), query)
	require.NoError(t, err)
	assert.Empty(t, errMap)
	assert.Equal(t, 1, entry.Stats.TotalMentions)

	// Second search inside the TTL is served from the cache.
	_, errMap, err = service.Search(context.Background(), query)
	require.NoError(t, err)
	assert.Nil(t, errMap)
	assert.Equal(t, 1, source.callCount())
}

func TestService_Search_RejectsEmptyKeywords(t *testing.T) {
	service, _ := newTestService(&scriptedSource{name: "reddit"})

	_, _, err := service.Search(context.Background(), models.Query{Keywords: []string{"  ", ""}})
	assert.ErrorIs(t, err, ErrNoKeywords)
}

func TestService_Search_DefaultsPlatforms(t *testing.T) {
	source := &scriptedSource{name: "reddit"}
	service, _ := newTestService(source)

	_, errMap, err := service.Search(context.Background(), models.Query{Keywords: []string{"covid"}})
	require.NoError(t, err)
	assert.Empty(t, errMap)
	assert.Equal(t, 1, source.callCount())
}

func TestService_Search_AllPlatformsFailed(t *testing.T) {
	source := &scriptedSource{name: "reddit", err: sources.NewError("reddit", sources.ErrUpstream, errors.New("down"))}
	service, _ := newTestService(source)

	_, errMap, err := service.Search(context.Background(), models.Query{Keywords: []string{"covid"}, Platforms: []string{"reddit"}})

	assert.ErrorIs(t, err, fanout.ErrAllPlatformsFailed)
	require.Contains(t, errMap, "reddit")
	assert.Equal(t, sources.ErrUpstream, errMap["reddit"].Kind)
}

func TestService_MonitoringLifecycle(t *testing.T) {
	service, _ := newTestService(&scriptedSource{name: "reddit"})
	query := models.Query{Keywords: []string{"covid"}, Platforms: []string{"reddit"}}

	_, ok := service.MonitoringSnapshot()
	assert.False(t, ok)

	require.NoError(t, service.EnableMonitoring(query))

	snapshot, ok := service.MonitoringSnapshot()
	require.True(t, ok)
	fingerprint := snapshot.Fingerprint

	// Same query again is a no-op.
	require.NoError(t, service.EnableMonitoring(models.Query{Keywords: []string{"covid"}, Platforms: []string{"reddit"}}))
	snapshot, _ = service.MonitoringSnapshot()
	assert.Equal(t, fingerprint, snapshot.Fingerprint)

	// A different query replaces the session.
	require.NoError(t, service.EnableMonitoring(models.Query{Keywords: []string{"flu"}, Platforms: []string{"reddit"}}))
	snapshot, _ = service.MonitoringSnapshot()
	assert.NotEqual(t, fingerprint, snapshot.Fingerprint)

	service.DisableMonitoring()
	_, ok = service.MonitoringSnapshot()
	assert.False(t, ok)
}

func TestService_MonitoringSeedsFromCache(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	source := &scriptedSource{name: "reddit", mentions: []models.Mention{
		{ID: "1", Platform: "reddit", Content: "covid", CreatedAt: base},
	}}
	service, _ := newTestService(source)
	query := models.Query{Keywords: []string{"covid"}, Platforms: []string{"reddit"}}

	_, _, err := service.Search(context.Background(), query)
	require.NoError(t, err)

	require.NoError(t, service.EnableMonitoring(query))
	defer service.DisableMonitoring()

	snapshot, ok := service.MonitoringSnapshot()
	require.True(t, ok)
	assert.Equal(t, 1, snapshot.Stats.TotalMentions, "session starts from the cached result")
}

func TestService_RunSaved(t *testing.T) {
	source := &scriptedSource{name: "reddit"}
	service, saved := newTestService(source)

	record, err := saved.Persist(context.Background(), "daily covid check",
		models.Query{Keywords: []string{"covid"}, Platforms: []string{"reddit"}})
	require.NoError(t, err)
	assert.True(t, record.LastExecutedAt.IsZero())

	_, _, err = service.RunSaved(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, source.callCount())

	reloaded, err := saved.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.LastExecutedAt.IsZero(), "replay records the execution time")
}

func TestService_RunSaved_Unknown(t *testing.T) {
	service, _ := newTestService(&scriptedSource{name: "reddit"})

	_, _, err := service.RunSaved(context.Background(), "missing")
	assert.ErrorIs(t, err, savedqueries.ErrNotFound)
}
