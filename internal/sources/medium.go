package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// MediumSource implements the Medium RSS adapter. Medium is profile-oriented:
// query keywords are treated as usernames and each author's public feed is
// read, rather than running a keyword search.
type MediumSource struct {
	client  *resty.Client
	feedURL string
}

type mediumFeed struct {
	Channel struct {
		Items []mediumItem `xml:"item"`
	} `xml:"channel"`
}

type mediumItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	GUID    string `xml:"guid"`
	Creator string `xml:"creator"`
	PubDate string `xml:"pubDate"`
	Content string `xml:"encoded"`
}

// NewMediumSource creates a new Medium adapter
func NewMediumSource() *MediumSource {
	return &MediumSource{
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "BuzzWatch/1.0"),
		feedURL: "https://medium.com/feed",
	}
}

func (m *MediumSource) Name() string {
	return "medium"
}

func (m *MediumSource) Enabled() bool {
	return true // public RSS feeds need no credentials
}

func (m *MediumSource) Fetch(ctx context.Context, query models.Query) ([]models.Mention, error) {
	var allMentions []models.Mention
	var lastErr *Error

	for _, keyword := range query.Keywords {
		username := usernameFromKeyword(keyword)
		if username == "" {
			continue
		}

		mentions, err := m.fetchFeed(ctx, username, searchWindow(query))
		if err != nil {
			logrus.Errorf("Failed to fetch Medium feed for '@%s': %v", username, err)
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

// usernameFromKeyword maps a keyword to a Medium handle. Multi-word keywords
// collapse to a single dashless handle the way Medium usernames do.
func usernameFromKeyword(keyword string) string {
	username := strings.ToLower(strings.TrimSpace(keyword))
	username = strings.TrimPrefix(username, "@")
	username = strings.ReplaceAll(username, " ", "")
	return username
}

func (m *MediumSource) fetchFeed(ctx context.Context, username string, window time.Duration) ([]models.Mention, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/@%s", m.feedURL, username))

	if err != nil {
		return nil, WrapTransport(m.Name(), err)
	}

	// An unknown user is an empty result, not an adapter failure.
	if resp.StatusCode() == 404 {
		logrus.Debugf("Medium user @%s not found", username)
		return nil, nil
	}

	if resp.StatusCode() != 200 {
		return nil, FromStatus(m.Name(), resp.StatusCode(), string(resp.Body()))
	}

	var feed mediumFeed
	if err := xml.Unmarshal(resp.Body(), &feed); err != nil {
		return nil, NewError(m.Name(), ErrInvalidResponse, err)
	}

	var mentions []models.Mention
	cutoff := time.Now().Add(-window)

	for _, item := range feed.Channel.Items {
		if item.GUID == "" && item.Link == "" {
			continue
		}

		publishedAt, err := time.Parse(time.RFC1123, item.PubDate)
		if err != nil {
			// Medium occasionally emits RFC1123Z dates
			publishedAt, err = time.Parse(time.RFC1123Z, item.PubDate)
			if err != nil {
				logrus.Debugf("Skipping Medium item with bad pubDate %q: %v", item.PubDate, err)
				continue
			}
		}

		if publishedAt.Before(cutoff) {
			continue
		}

		id := item.GUID
		if id == "" {
			id = item.Link
		}

		author := item.Creator
		if author == "" {
			author = username
		}

		mentions = append(mentions, models.Mention{
			ID:        id,
			Platform:  m.Name(),
			Title:     item.Title,
			Content:   stripTags(item.Content),
			Author:    author,
			URL:       item.Link,
			CreatedAt: publishedAt.UTC(),
		})
	}

	return mentions, nil
}

// stripTags removes HTML markup from feed content, keeping plain text.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
