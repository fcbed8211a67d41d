// Package monitoring orchestrates keyword searches across platforms: cached
// fan-out on demand, plus continuous polling sessions that incrementally
// merge new mentions into a live set.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/buzzwatch/buzzwatch/internal/cache"
	"github.com/buzzwatch/buzzwatch/internal/config"
	"github.com/buzzwatch/buzzwatch/internal/fanout"
	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/buzzwatch/buzzwatch/internal/notifications"
	"github.com/buzzwatch/buzzwatch/internal/savedqueries"
	"github.com/buzzwatch/buzzwatch/internal/sources"
	"github.com/sirupsen/logrus"
)

// ErrNoKeywords is returned when a query carries no usable keywords.
var ErrNoKeywords = errors.New("query has no keywords")

// Service is the orchestrator behind the inbound API: search, cache
// control and monitoring session lifecycle. At most one session is active
// per Service; enabling monitoring for a new query replaces the old session.
type Service struct {
	config   *config.Config
	executor *fanout.Executor
	cache    *cache.Cache
	saved    *savedqueries.Store
	notifier notifications.Notifier
	onDelta  DeltaFunc

	mu      sync.Mutex
	session *Session
}

// NewService creates the orchestrator. saved and notifier may be nil when
// persistence or notifications are not configured.
func NewService(cfg *config.Config, executor *fanout.Executor, queryCache *cache.Cache, saved *savedqueries.Store, notifier notifications.Notifier) *Service {
	return &Service{
		config:   cfg,
		executor: executor,
		cache:    queryCache,
		saved:    saved,
		notifier: notifier,
	}
}

// SetDeltaFunc registers a callback invoked with every monitoring delta,
// in addition to the configured notifier. Must be called before
// EnableMonitoring.
func (s *Service) SetDeltaFunc(fn DeltaFunc) {
	s.onDelta = fn
}

// Search resolves a query through the cache: a fresh entry is returned
// unchanged, otherwise the platforms are fanned out and the combined result
// cached. The per-platform error map of a fresh fetch is returned alongside;
// it is nil on a cache hit and empty when every platform succeeded.
func (s *Service) Search(ctx context.Context, query models.Query) (*models.CacheEntry, map[string]*sources.Error, error) {
	query, err := s.normalize(query)
	if err != nil {
		return nil, nil, err
	}

	entry, result, err := s.cache.GetOrFetch(ctx, query)
	if err != nil {
		if result != nil {
			return nil, result.Errors, err
		}
		return nil, nil, err
	}

	if result == nil {
		return entry, nil, nil
	}
	return entry, result.Errors, nil
}

// RunSaved replays a persisted query by ID and records the execution time.
func (s *Service) RunSaved(ctx context.Context, id string) (*models.CacheEntry, map[string]*sources.Error, error) {
	if s.saved == nil {
		return nil, nil, fmt.Errorf("saved queries are not configured")
	}

	saved, err := s.saved.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	entry, errMap, err := s.Search(ctx, saved.Query)
	if err != nil {
		return nil, errMap, err
	}

	if touchErr := s.saved.TouchLastExecuted(ctx, id); touchErr != nil {
		logrus.Warnf("Failed to record execution of saved query %s: %v", id, touchErr)
	}

	return entry, errMap, nil
}

// EnableMonitoring starts a polling session for the query. It returns
// immediately; polling runs detached. Enabling the same query again is a
// no-op, a different query replaces the current session. When the query is
// already cached, the session starts from the cached set so the first poll
// emits only genuinely new mentions.
func (s *Service) EnableMonitoring(query models.Query) error {
	query, err := s.normalize(query)
	if err != nil {
		return err
	}
	fingerprint := query.Fingerprint()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		if s.session.Fingerprint() == fingerprint {
			return nil
		}
		s.session.Stop()
	}

	session := newSession(query, s.config.PollInterval, s.config.MinPollSpacing, s.executor.Run, s.emitDelta)
	if entry, ok := s.cache.Get(query); ok {
		session.seed(entry.Mentions)
	}

	s.session = session
	session.start()

	logrus.Infof("Monitoring enabled for fingerprint %.12s (interval %v)", fingerprint, s.config.PollInterval)
	return nil
}

// DisableMonitoring stops the active session, if any. The session timer is
// cancelled deterministically; an in-flight poll completes and is discarded.
func (s *Service) DisableMonitoring() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return
	}

	logrus.Infof("Monitoring disabled for fingerprint %.12s", s.session.Fingerprint())
	s.session.Stop()
	s.session = nil
}

// MonitoringSnapshot returns the live set of the active session.
func (s *Service) MonitoringSnapshot() (*models.CacheEntry, bool) {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()

	if session == nil {
		return nil, false
	}
	return session.Snapshot(), true
}

// ClearCache drops every cached search result.
func (s *Service) ClearCache() {
	s.cache.Clear()
	logrus.Info("Query cache cleared")
}

// Close tears the orchestrator down, stopping any active session.
func (s *Service) Close() {
	s.DisableMonitoring()
}

func (s *Service) emitDelta(delta []models.Mention, snapshot *models.CacheEntry) {
	if s.notifier != nil {
		if err := s.notifier.SendDelta(delta, snapshot.Stats); err != nil {
			logrus.Errorf("Failed to send delta notification: %v", err)
		}
	}
	if s.onDelta != nil {
		s.onDelta(delta, snapshot)
	}
}

// normalize trims keywords, drops empty ones and fills in the default
// platform set when the query names none.
func (s *Service) normalize(query models.Query) (models.Query, error) {
	keywords := query.Keywords[:0:0]
	for _, kw := range query.Keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return query, ErrNoKeywords
	}
	query.Keywords = keywords

	if len(query.Platforms) == 0 {
		query.Platforms = s.config.DefaultPlatforms
	}

	return query, nil
}
