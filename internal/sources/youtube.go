package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// YouTubeSource implements the YouTube Data API adapter
type YouTubeSource struct {
	apiKey string
	client *resty.Client
	apiURL string
}

type youTubeSearchResponse struct {
	Items []youTubeVideo `json:"items"`
}

type youTubeVideo struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		ChannelTitle string `json:"channelTitle"`
		PublishedAt  string `json:"publishedAt"`
	} `json:"snippet"`
}

type youTubeStatsResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// NewYouTubeSource creates a new YouTube adapter
func NewYouTubeSource(apiKey string) *YouTubeSource {
	return &YouTubeSource{
		apiKey: apiKey,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "BuzzWatch/1.0"),
		apiURL: "https://www.googleapis.com/youtube/v3",
	}
}

func (y *YouTubeSource) Name() string {
	return "youtube"
}

func (y *YouTubeSource) Enabled() bool {
	return y.apiKey != ""
}

func (y *YouTubeSource) Fetch(ctx context.Context, query models.Query) ([]models.Mention, error) {
	if !y.Enabled() {
		logrus.Debug("YouTube source disabled - missing API key")
		return nil, nil
	}

	var allMentions []models.Mention
	var lastErr *Error

	for _, keyword := range query.Keywords {
		mentions, err := y.searchVideos(ctx, keyword, query)
		if err != nil {
			logrus.Errorf("Failed to search YouTube videos for keyword '%s': %v", keyword, err)
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

func (y *YouTubeSource) searchVideos(ctx context.Context, keyword string, query models.Query) ([]models.Mention, error) {
	publishedAfter := time.Now().Add(-searchWindow(query)).UTC().Format(time.RFC3339)

	searchURL := fmt.Sprintf("%s/search?part=snippet&q=%s&type=video&order=date&publishedAfter=%s&maxResults=50&key=%s",
		y.apiURL, url.QueryEscape(keyword), publishedAfter, y.apiKey)
	if query.Filters.Language != "" {
		searchURL += "&relevanceLanguage=" + url.QueryEscape(strings.ToLower(query.Filters.Language))
	}

	resp, err := y.client.R().
		SetContext(ctx).
		Get(searchURL)

	if err != nil {
		return nil, WrapTransport(y.Name(), err)
	}

	if resp.StatusCode() != 200 {
		return nil, FromStatus(y.Name(), resp.StatusCode(), string(resp.Body()))
	}

	var searchResp youTubeSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, NewError(y.Name(), ErrInvalidResponse, err)
	}

	var mentions []models.Mention
	var videoIDs []string

	for _, video := range searchResp.Items {
		if video.ID.VideoID == "" {
			continue
		}

		publishedAt, err := time.Parse(time.RFC3339, video.Snippet.PublishedAt)
		if err != nil {
			logrus.Debugf("Skipping YouTube video %s with bad timestamp: %v", video.ID.VideoID, err)
			continue
		}

		mentions = append(mentions, models.Mention{
			ID:        video.ID.VideoID,
			Platform:  y.Name(),
			Title:     video.Snippet.Title,
			Content:   video.Snippet.Description,
			Author:    video.Snippet.ChannelTitle,
			URL:       fmt.Sprintf("https://www.youtube.com/watch?v=%s", video.ID.VideoID),
			CreatedAt: publishedAt,
		})
		videoIDs = append(videoIDs, video.ID.VideoID)
	}

	// Engagement comes from a second call; a failure there leaves the
	// counters at zero rather than dropping the mentions.
	if len(videoIDs) > 0 {
		if err := y.attachStatistics(ctx, videoIDs, mentions); err != nil {
			logrus.Warnf("Failed to fetch YouTube statistics: %v", err)
		}
	}

	return mentions, nil
}

func (y *YouTubeSource) attachStatistics(ctx context.Context, videoIDs []string, mentions []models.Mention) error {
	statsURL := fmt.Sprintf("%s/videos?part=statistics&id=%s&key=%s",
		y.apiURL, strings.Join(videoIDs, ","), y.apiKey)

	resp, err := y.client.R().
		SetContext(ctx).
		Get(statsURL)

	if err != nil {
		return WrapTransport(y.Name(), err)
	}

	if resp.StatusCode() != 200 {
		return FromStatus(y.Name(), resp.StatusCode(), string(resp.Body()))
	}

	var statsResp youTubeStatsResponse
	if err := json.Unmarshal(resp.Body(), &statsResp); err != nil {
		return NewError(y.Name(), ErrInvalidResponse, err)
	}

	byID := make(map[string]models.Engagement, len(statsResp.Items))
	for _, item := range statsResp.Items {
		byID[item.ID] = models.Engagement{
			Views:    atoiOrZero(item.Statistics.ViewCount),
			Likes:    atoiOrZero(item.Statistics.LikeCount),
			Comments: atoiOrZero(item.Statistics.CommentCount),
		}
	}

	for i := range mentions {
		if engagement, ok := byID[mentions[i].ID]; ok {
			mentions[i].Engagement = engagement
		}
	}

	return nil
}

// atoiOrZero parses YouTube's string-typed counters, defaulting to zero on
// missing or malformed values.
func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
