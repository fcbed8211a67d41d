// Package fanout dispatches one query concurrently to every targeted
// platform adapter and collects the combined, deterministically ordered
// result.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/buzzwatch/buzzwatch/internal/sentiment"
	"github.com/buzzwatch/buzzwatch/internal/sources"
	"github.com/sirupsen/logrus"
)

// ErrAllPlatformsFailed is returned when every targeted platform errored.
// A partial result is never an error; callers distinguish "nothing found"
// from "could not check" through this sentinel.
var ErrAllPlatformsFailed = errors.New("all platforms failed")

// Result is the combined outcome of one fan-out.
type Result struct {
	Mentions       []models.Mention          // newest first, ties broken by (platform, id)
	PlatformCounts map[string]int            // includes platforms that returned zero
	Errors         map[string]*sources.Error // per-platform failures, non-fatal
}

// Executor runs queries against a registry of platform adapters. It holds no
// state between invocations.
type Executor struct {
	registry map[string]sources.Source
	classify sentiment.Classifier
	timeout  time.Duration
}

// New creates an executor over the given adapters. Adapters are addressed by
// their Name() in query platform lists.
func New(adapters []sources.Source, classify sentiment.Classifier, timeout time.Duration) *Executor {
	registry := make(map[string]sources.Source, len(adapters))
	for _, adapter := range adapters {
		registry[adapter.Name()] = adapter
	}
	return &Executor{
		registry: registry,
		classify: classify,
		timeout:  timeout,
	}
}

// Platforms lists the registered adapter names.
func (e *Executor) Platforms() []string {
	names := make([]string, 0, len(e.registry))
	for name := range e.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type platformOutcome struct {
	platform string
	mentions []models.Mention
	err      *sources.Error
}

// Run fans the query out to every targeted platform, waits for all calls to
// finish or for the global timeout, and returns the combined result. A
// platform that errors or times out contributes zero mentions and an entry
// in the error map; it never aborts its siblings.
func (e *Executor) Run(ctx context.Context, query models.Query) (*Result, error) {
	if len(query.Platforms) == 0 {
		return nil, fmt.Errorf("query targets no platforms")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	outcomes := make(chan platformOutcome, len(query.Platforms))
	var wg sync.WaitGroup

	for _, platform := range query.Platforms {
		platform = strings.ToLower(strings.TrimSpace(platform))
		adapter, ok := e.registry[platform]
		if !ok {
			outcomes <- platformOutcome{
				platform: platform,
				err:      sources.NewError(platform, sources.ErrUpstream, fmt.Errorf("unknown platform")),
			}
			continue
		}

		wg.Add(1)
		go func(platform string, adapter sources.Source) {
			defer wg.Done()

			logrus.Debugf("Fetching mentions from %s", platform)
			mentions, err := adapter.Fetch(ctx, query)

			if err != nil {
				logrus.Errorf("Error fetching from %s: %v", platform, err)
				outcomes <- platformOutcome{platform: platform, err: asAdapterError(platform, err)}
				return
			}

			logrus.Debugf("Found %d mentions from %s", len(mentions), platform)
			outcomes <- platformOutcome{platform: platform, mentions: mentions}
		}(platform, adapter)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	result := &Result{
		PlatformCounts: make(map[string]int, len(query.Platforms)),
		Errors:         make(map[string]*sources.Error),
	}

	for outcome := range outcomes {
		if outcome.err != nil {
			result.PlatformCounts[outcome.platform] = 0
			result.Errors[outcome.platform] = outcome.err
			continue
		}
		result.PlatformCounts[outcome.platform] = len(outcome.mentions)
		result.Mentions = append(result.Mentions, outcome.mentions...)
	}

	if len(result.Errors) > 0 && len(result.Errors) == len(result.PlatformCounts) {
		return result, ErrAllPlatformsFailed
	}

	e.finalize(result, query)
	return result, nil
}

// finalize classifies, filters and orders the combined mention list.
func (e *Executor) finalize(result *Result, query models.Query) {
	for i := range result.Mentions {
		if result.Mentions[i].Sentiment == "" {
			result.Mentions[i].Sentiment = e.classify(result.Mentions[i].Title + " " + result.Mentions[i].Content)
		}
	}

	if query.Filters.Sentiment != "" {
		filtered := result.Mentions[:0]
		for _, mention := range result.Mentions {
			if mention.Sentiment == query.Filters.Sentiment {
				filtered = append(filtered, mention)
			}
		}
		result.Mentions = filtered
		// Platform counts track what survives filtering, not raw responses.
		for platform := range result.PlatformCounts {
			if _, failed := result.Errors[platform]; !failed {
				result.PlatformCounts[platform] = 0
			}
		}
		for _, mention := range result.Mentions {
			result.PlatformCounts[mention.Platform]++
		}
	}

	SortMentions(result.Mentions)
}

// SortMentions orders mentions newest first, breaking timestamp ties by
// (platform, id) so the combined list is deterministic regardless of which
// adapter answered first.
func SortMentions(mentions []models.Mention) {
	sort.SliceStable(mentions, func(i, j int) bool {
		if !mentions[i].CreatedAt.Equal(mentions[j].CreatedAt) {
			return mentions[i].CreatedAt.After(mentions[j].CreatedAt)
		}
		if mentions[i].Platform != mentions[j].Platform {
			return mentions[i].Platform < mentions[j].Platform
		}
		return mentions[i].ID < mentions[j].ID
	})
}

func asAdapterError(platform string, err error) *sources.Error {
	var adapterErr *sources.Error
	if errors.As(err, &adapterErr) {
		return adapterErr
	}
	return sources.WrapTransport(platform, err)
}
