package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// HackerNewsSource implements the Hacker News Algolia search adapter
type HackerNewsSource struct {
	client *resty.Client
	apiURL string
}

type hnSearchResponse struct {
	Hits []hnHit `json:"hits"`
}

type hnHit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	StoryText   string `json:"story_text"`
	CommentText string `json:"comment_text"`
	Author      string `json:"author"`
	URL         string `json:"url"`
	CreatedAtI  int64  `json:"created_at_i"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
}

// NewHackerNewsSource creates a new Hacker News adapter
func NewHackerNewsSource() *HackerNewsSource {
	return &HackerNewsSource{
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "BuzzWatch/1.0"),
		apiURL: "https://hn.algolia.com/api/v1",
	}
}

func (h *HackerNewsSource) Name() string {
	return "hackernews"
}

func (h *HackerNewsSource) Enabled() bool {
	return true // Algolia search API doesn't require authentication
}

func (h *HackerNewsSource) Fetch(ctx context.Context, query models.Query) ([]models.Mention, error) {
	var allMentions []models.Mention
	var lastErr *Error

	for _, keyword := range query.Keywords {
		mentions, err := h.searchKeyword(ctx, keyword, searchWindow(query))
		if err != nil {
			logrus.Errorf("Failed to search Hacker News for keyword '%s': %v", keyword, err)
			if adapterErr, ok := err.(*Error); ok {
				lastErr = adapterErr
			}
			continue
		}
		allMentions = append(allMentions, mentions...)
	}

	if len(allMentions) == 0 && lastErr != nil {
		return nil, lastErr
	}

	return dedupe(allMentions), nil
}

func (h *HackerNewsSource) searchKeyword(ctx context.Context, keyword string, window time.Duration) ([]models.Mention, error) {
	cutoff := time.Now().Add(-window)
	searchURL := fmt.Sprintf("%s/search_by_date?query=%s&tags=(story,comment)&numericFilters=created_at_i>%d&hitsPerPage=100",
		h.apiURL, url.QueryEscape(keyword), cutoff.Unix())

	resp, err := h.client.R().
		SetContext(ctx).
		Get(searchURL)

	if err != nil {
		return nil, WrapTransport(h.Name(), err)
	}

	if resp.StatusCode() != 200 {
		return nil, FromStatus(h.Name(), resp.StatusCode(), string(resp.Body()))
	}

	var searchResp hnSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, NewError(h.Name(), ErrInvalidResponse, err)
	}

	var mentions []models.Mention

	for _, hit := range searchResp.Hits {
		if hit.ObjectID == "" || hit.CreatedAtI == 0 {
			continue
		}

		content := hit.StoryText
		if content == "" {
			content = hit.CommentText
		}

		mention := models.Mention{
			ID:        hit.ObjectID,
			Platform:  h.Name(),
			Title:     hit.Title,
			Content:   content,
			Author:    hit.Author,
			URL:       fmt.Sprintf("https://news.ycombinator.com/item?id=%s", hit.ObjectID),
			CreatedAt: time.Unix(hit.CreatedAtI, 0).UTC(),
			Engagement: models.Engagement{
				Likes:    hit.Points,
				Comments: hit.NumComments,
			},
		}

		// Prefer the story's external link when present
		if hit.URL != "" {
			mention.URL = hit.URL
		}

		mentions = append(mentions, mention)
	}

	return mentions, nil
}
