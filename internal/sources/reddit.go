package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// RedditSource implements the Reddit search API adapter. One instance is
// shared across concurrent fan-outs, so the token is mutex-guarded.
type RedditSource struct {
	clientID     string
	clientSecret string
	client       *resty.Client
	authURL      string
	apiURL       string

	mu          sync.Mutex
	accessToken string
}

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type redditSearchResponse struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	Created     float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

// NewRedditSource creates a new Reddit adapter
func NewRedditSource(clientID, clientSecret string) *RedditSource {
	return &RedditSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       resty.New().SetTimeout(30 * time.Second),
		authURL:      "https://www.reddit.com/api/v1/access_token",
		apiURL:       "https://oauth.reddit.com",
	}
}

func (r *RedditSource) Name() string {
	return "reddit"
}

func (r *RedditSource) Enabled() bool {
	return r.clientID != "" && r.clientSecret != ""
}

func (r *RedditSource) Fetch(ctx context.Context, query models.Query) ([]models.Mention, error) {
	if !r.Enabled() {
		logrus.Debug("Reddit source disabled - missing credentials")
		return nil, nil
	}

	token, err := r.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var allMentions []models.Mention
	var lastErr *Error

	for _, keyword := range query.Keywords {
		mentions, err := r.searchKeyword(ctx, token, keyword, searchWindow(query))
		if err != nil {
			logrus.Errorf("Failed to search Reddit for keyword '%s': %v", keyword, err)
			if adapterErr, ok := err.(*Error); ok {
				lastErr = adapterErr
			}
			continue
		}
		allMentions = append(allMentions, mentions...)
	}

	// Surface the failure only when no keyword produced anything.
	if len(allMentions) == 0 && lastErr != nil {
		return nil, lastErr
	}

	return dedupe(allMentions), nil
}

// authenticate returns a bearer token, obtaining one from the OAuth endpoint
// when none is cached yet. The returned token is a local for the calling
// fetch; the field only serves as the shared cache.
func (r *RedditSource) authenticate(ctx context.Context) (string, error) {
	r.mu.Lock()
	token := r.accessToken
	r.mu.Unlock()
	if token != "" {
		return token, nil
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", "BuzzWatch/1.0").
		SetBasicAuth(r.clientID, r.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
		}).
		Post(r.authURL)

	if err != nil {
		return "", WrapTransport(r.Name(), err)
	}

	if resp.StatusCode() != 200 {
		return "", FromStatus(r.Name(), resp.StatusCode(), string(resp.Body()))
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return "", NewError(r.Name(), ErrInvalidResponse, err)
	}
	if authResp.AccessToken == "" {
		return "", NewError(r.Name(), ErrInvalidResponse, fmt.Errorf("empty access token"))
	}

	r.mu.Lock()
	r.accessToken = authResp.AccessToken
	r.mu.Unlock()

	return authResp.AccessToken, nil
}

func (r *RedditSource) searchKeyword(ctx context.Context, token, keyword string, window time.Duration) ([]models.Mention, error) {
	searchURL := fmt.Sprintf("%s/search.json?q=%s&sort=new&limit=100", r.apiURL, url.QueryEscape(keyword))

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("User-Agent", "BuzzWatch/1.0").
		Get(searchURL)

	if err != nil {
		return nil, WrapTransport(r.Name(), err)
	}

	if resp.StatusCode() != 200 {
		return nil, FromStatus(r.Name(), resp.StatusCode(), string(resp.Body()))
	}

	var searchResp redditSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, NewError(r.Name(), ErrInvalidResponse, err)
	}

	var mentions []models.Mention
	cutoff := time.Now().Add(-window)

	for _, child := range searchResp.Data.Children {
		post := child.Data
		createdAt := time.Unix(int64(post.Created), 0).UTC()

		if createdAt.Before(cutoff) {
			continue
		}

		// Reddit's search is fuzzy; keep only posts that actually contain
		// the keyword (case-insensitive).
		content := strings.ToLower(post.Title + " " + post.Selftext)
		if !strings.Contains(content, strings.ToLower(keyword)) {
			continue
		}

		mentions = append(mentions, models.Mention{
			ID:        post.ID,
			Platform:  r.Name(),
			Title:     post.Title,
			Content:   post.Selftext,
			Author:    post.Author,
			URL:       fmt.Sprintf("https://reddit.com%s", post.Permalink),
			CreatedAt: createdAt,
			Engagement: models.Engagement{
				Likes:    post.Score,
				Comments: post.NumComments,
			},
		})
	}

	return mentions, nil
}
