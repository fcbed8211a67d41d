package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Sentiment is the classification assigned to a mention's content.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Engagement holds the interaction counters a platform reports for a mention.
// Fields a platform does not expose stay zero.
type Engagement struct {
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
	Shares   int `json:"shares"`
	Views    int `json:"views"`
}

// Total sums all engagement counters.
func (e Engagement) Total() int {
	return e.Likes + e.Comments + e.Shares + e.Views
}

// Mention represents a normalized piece of content found on a platform.
type Mention struct {
	ID         string     `json:"id"`
	Platform   string     `json:"platform"` // "reddit", "twitter", "hackernews", etc.
	Title      string     `json:"title,omitempty"`
	Content    string     `json:"content"`
	Author     string     `json:"author"`
	URL        string     `json:"url"`
	CreatedAt  time.Time  `json:"created_at"`
	Engagement Engagement `json:"engagement"`
	Sentiment  Sentiment  `json:"sentiment"`
}

// MentionKey identifies a mention across the whole system. IDs are only
// unique within a single platform, so the platform is part of the key.
type MentionKey struct {
	Platform string
	ID       string
}

// Key returns the cross-platform identity of the mention.
func (m Mention) Key() MentionKey {
	return MentionKey{Platform: m.Platform, ID: m.ID}
}

// Filters are the optional constraints attached to a query.
type Filters struct {
	Language  string        `json:"language,omitempty"`
	Period    time.Duration `json:"period,omitempty"`
	Sentiment Sentiment     `json:"sentiment,omitempty"`
}

// Query is one keyword search targeted at a set of platforms.
type Query struct {
	Keywords  []string `json:"keywords"`
	Platforms []string `json:"platforms"`
	Filters   Filters  `json:"filters,omitempty"`
}

// Fingerprint returns a canonical hash of the query used as the cache key.
// Keyword and platform order do not affect the result.
func (q Query) Fingerprint() string {
	keywords := make([]string, len(q.Keywords))
	for i, kw := range q.Keywords {
		keywords[i] = strings.ToLower(strings.TrimSpace(kw))
	}
	sort.Strings(keywords)

	platforms := make([]string, len(q.Platforms))
	for i, p := range q.Platforms {
		platforms[i] = strings.ToLower(strings.TrimSpace(p))
	}
	sort.Strings(platforms)

	h := sha256.New()
	for _, kw := range keywords {
		h.Write([]byte("kw:" + kw + "\n"))
	}
	for _, p := range platforms {
		h.Write([]byte("pf:" + p + "\n"))
	}
	h.Write([]byte("lang:" + strings.ToLower(q.Filters.Language) + "\n"))
	h.Write([]byte("period:" + q.Filters.Period.String() + "\n"))
	h.Write([]byte("sent:" + string(q.Filters.Sentiment) + "\n"))

	return hex.EncodeToString(h.Sum(nil))
}

// AggregateStats summarizes a mention set. It is always derived from the
// full set, never adjusted independently of it.
type AggregateStats struct {
	Positive        int `json:"positive"`
	Neutral         int `json:"neutral"`
	Negative        int `json:"negative"`
	TotalMentions   int `json:"total_mentions"`
	TotalEngagement int `json:"total_engagement"`
}

// CacheEntry is one cached combined search result. Entries are immutable
// once stored; a refetch supersedes the entry rather than mutating it.
type CacheEntry struct {
	Fingerprint    string         `json:"fingerprint"`
	Mentions       []Mention      `json:"mentions"` // newest first
	PlatformCounts map[string]int `json:"platform_counts"`
	Stats          AggregateStats `json:"stats"`
	FetchedAt      time.Time      `json:"fetched_at"`
}

// SavedQuery is a named query configuration persisted for replay.
type SavedQuery struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Query          Query     `json:"query"`
	CreatedAt      time.Time `json:"created_at"`
	LastExecutedAt time.Time `json:"last_executed_at,omitempty"`
}
