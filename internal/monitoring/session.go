package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/fanout"
	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/buzzwatch/buzzwatch/internal/stats"
	"github.com/sirupsen/logrus"
)

// DeltaFunc receives the newly discovered mentions of one poll together
// with a snapshot of the session's full live set after the merge.
type DeltaFunc func(delta []models.Mention, snapshot *models.CacheEntry)

// fetchFunc matches the fan-out executor's Run.
type fetchFunc func(ctx context.Context, query models.Query) (*fanout.Result, error)

// Session is the live state of one continuously watched query. It owns its
// mention set and its poll timer exclusively; nothing is shared across
// sessions. Lifecycle: created by EnableMonitoring, polls until Stop.
type Session struct {
	query       models.Query
	fingerprint string
	interval    time.Duration
	minSpacing  time.Duration
	fetch       fetchFunc
	onDelta     DeltaFunc
	now         func() time.Time

	mu          sync.Mutex
	mentions    []models.Mention
	stats       models.AggregateStats
	lastFetchAt time.Time
	stopped     bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSession(query models.Query, interval, minSpacing time.Duration, fetch fetchFunc, onDelta DeltaFunc) *Session {
	return &Session{
		query:       query,
		fingerprint: query.Fingerprint(),
		interval:    interval,
		minSpacing:  minSpacing,
		fetch:       fetch,
		onDelta:     onDelta,
		now:         time.Now,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// seed installs an already fetched result as the session's starting set, so
// the first poll emits only what is new relative to the search the operator
// just saw.
func (s *Session) seed(mentions []models.Mention) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mentions = mentions
	s.stats = stats.Compute(mentions)
	s.lastFetchAt = s.now()
}

// start launches the detached polling loop. The caller returns immediately.
func (s *Session) start() {
	go s.loop()
}

func (s *Session) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs one poll. A tick is skipped outright, never queued, when the
// minimum spacing since the last actual fetch has not elapsed; a previous
// tick still in flight blocks the loop itself, so overlapping polls cannot
// happen within one session.
func (s *Session) tick() {
	s.mu.Lock()
	if s.now().Sub(s.lastFetchAt) < s.minSpacing {
		s.mu.Unlock()
		logrus.Debugf("Session %.12s: skipping tick, last fetch too recent", s.fingerprint)
		return
	}
	s.mu.Unlock()

	// The fan-out bypasses the query cache: the point of a poll is to
	// detect new content, not to reuse a recent entry.
	result, err := s.fetch(context.Background(), s.query)

	s.mu.Lock()
	s.lastFetchAt = s.now()
	if s.stopped {
		// A fetch already in flight when Stop landed completes, but its
		// result is discarded.
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.mu.Unlock()
		logrus.Errorf("Session %.12s: poll failed: %v", s.fingerprint, err)
		return
	}

	merged, delta := Merge(s.mentions, result.Mentions)
	s.mentions = merged
	s.stats = stats.Compute(merged)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if len(delta) == 0 {
		logrus.Debugf("Session %.12s: poll found no new mentions", s.fingerprint)
		return
	}

	logrus.Infof("Session %.12s: poll found %d new mentions (%d total)", s.fingerprint, len(delta), len(merged))
	if s.onDelta != nil {
		s.onDelta(delta, snapshot)
	}
}

// Stop ends the session and cancels its timer deterministically. It is safe
// to call more than once and does not wait for an in-flight fetch.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.stop)
	})
}

// Done is closed once the polling loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Fingerprint identifies the watched query.
func (s *Session) Fingerprint() string {
	return s.fingerprint
}

// Snapshot returns an immutable copy of the session's live set and stats.
func (s *Session) Snapshot() *models.CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *models.CacheEntry {
	mentions := make([]models.Mention, len(s.mentions))
	copy(mentions, s.mentions)

	counts := make(map[string]int, len(s.query.Platforms))
	for _, platform := range s.query.Platforms {
		counts[platform] = 0
	}
	for _, mention := range mentions {
		counts[mention.Platform]++
	}

	return &models.CacheEntry{
		Fingerprint:    s.fingerprint,
		Mentions:       mentions,
		PlatformCounts: counts,
		Stats:          s.stats,
		FetchedAt:      s.lastFetchAt,
	}
}
