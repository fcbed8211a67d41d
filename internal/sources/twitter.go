package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// TwitterSource implements the Twitter/X recent-search adapter. Twitter is
// hashtag-oriented: query keywords are shaped into hashtag searches.
type TwitterSource struct {
	bearerToken string
	client      *resty.Client
	apiURL      string
}

type twitterSearchResponse struct {
	Data []twitterTweet `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type twitterTweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	Lang          string `json:"lang"`
	PublicMetrics struct {
		RetweetCount int `json:"retweet_count"`
		LikeCount    int `json:"like_count"`
		ReplyCount   int `json:"reply_count"`
		ViewCount    int `json:"impression_count"`
	} `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

// NewTwitterSource creates a new Twitter adapter
func NewTwitterSource(bearerToken string) *TwitterSource {
	return &TwitterSource{
		bearerToken: bearerToken,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "BuzzWatch/1.0"),
		apiURL: "https://api.twitter.com/2",
	}
}

func (t *TwitterSource) Name() string {
	return "twitter"
}

func (t *TwitterSource) Enabled() bool {
	return t.bearerToken != ""
}

func (t *TwitterSource) Fetch(ctx context.Context, query models.Query) ([]models.Mention, error) {
	if !t.Enabled() {
		logrus.Debug("Twitter source disabled - missing bearer token")
		return nil, nil
	}

	searchQuery := t.buildSearchQuery(query)
	if searchQuery == "" {
		return nil, nil
	}

	mentions, err := t.search(ctx, searchQuery, searchWindow(query))
	if err != nil {
		return nil, err
	}

	return dedupe(mentions), nil
}

// buildSearchQuery turns the query keywords into one hashtag-based search
// expression, e.g. ["covid", "flu shot"] -> `#covid OR "flu shot" -is:retweet`.
// Multi-word keywords cannot be hashtags and are quoted instead.
func (t *TwitterSource) buildSearchQuery(query models.Query) string {
	var terms []string
	for _, keyword := range query.Keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		if strings.ContainsAny(keyword, " \t") {
			terms = append(terms, fmt.Sprintf("%q", keyword))
		} else {
			terms = append(terms, "#"+strings.TrimPrefix(keyword, "#"))
		}
	}
	if len(terms) == 0 {
		return ""
	}

	expr := "(" + strings.Join(terms, " OR ") + ") -is:retweet"
	if query.Filters.Language != "" {
		expr += " lang:" + strings.ToLower(query.Filters.Language)
	}
	return expr
}

func (t *TwitterSource) search(ctx context.Context, searchQuery string, window time.Duration) ([]models.Mention, error) {
	startTime := time.Now().Add(-window).UTC().Format(time.RFC3339)

	searchURL := fmt.Sprintf("%s/tweets/search/recent?query=%s&start_time=%s&max_results=100&tweet.fields=created_at,author_id,lang,public_metrics,referenced_tweets",
		t.apiURL, url.QueryEscape(searchQuery), startTime)

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+t.bearerToken).
		Get(searchURL)

	if err != nil {
		return nil, WrapTransport(t.Name(), err)
	}

	if resp.StatusCode() == 429 {
		logrus.Warnf("Twitter API rate limit hit (reset: %s)", resp.Header().Get("x-rate-limit-reset"))
		return nil, FromStatus(t.Name(), 429, "rate limit exceeded")
	}

	if resp.StatusCode() != 200 {
		return nil, FromStatus(t.Name(), resp.StatusCode(), string(resp.Body()))
	}

	var searchResp twitterSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, NewError(t.Name(), ErrInvalidResponse, err)
	}

	var mentions []models.Mention

	for _, tweet := range searchResp.Data {
		if t.isRetweet(tweet) {
			continue
		}

		createdAt, err := time.Parse(time.RFC3339, tweet.CreatedAt)
		if err != nil {
			logrus.Debugf("Skipping tweet %s with bad timestamp: %v", tweet.ID, err)
			continue
		}

		mentions = append(mentions, models.Mention{
			ID:        tweet.ID,
			Platform:  t.Name(),
			Content:   tweet.Text,
			Author:    tweet.AuthorID,
			URL:       fmt.Sprintf("https://twitter.com/i/status/%s", tweet.ID),
			CreatedAt: createdAt,
			Engagement: models.Engagement{
				Likes:    tweet.PublicMetrics.LikeCount,
				Comments: tweet.PublicMetrics.ReplyCount,
				Shares:   tweet.PublicMetrics.RetweetCount,
				Views:    tweet.PublicMetrics.ViewCount,
			},
		})
	}

	return mentions, nil
}

func (t *TwitterSource) isRetweet(tweet twitterTweet) bool {
	for _, ref := range tweet.ReferencedTweets {
		if ref.Type == "retweeted" {
			return true
		}
	}
	return false
}
