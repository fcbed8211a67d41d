// Package notifications delivers new-mention alerts via Teams webhooks and
// SMTP email.
package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/config"
	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service sends delta alerts on every configured channel
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements Notifier
var _ Notifier = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams MessageCard
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// Enabled reports whether any notification channel is configured.
func (s *Service) Enabled() bool {
	return s.config.TeamsWebhookURL != "" || s.config.NotificationEmail != ""
}

// SendDelta reports newly discovered mentions on every configured channel.
// A channel failure never blocks the other channels.
func (s *Service) SendDelta(delta []models.Mention, stats models.AggregateStats) error {
	if len(delta) == 0 {
		return nil
	}

	var errs []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(delta, stats); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errs = append(errs, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Info("Sent delta alert to Teams")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(delta, stats); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errs = append(errs, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Info("Sent delta alert via email")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(delta []models.Mention, stats models.AggregateStats) error {
	message := s.buildTeamsMessage(delta, stats)

	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildTeamsMessage(delta []models.Mention, stats models.AggregateStats) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("%d new mentions found", len(delta)),
		Text:    fmt.Sprintf("The watched query now tracks %d mentions in total", stats.TotalMentions),
		Sections: []TeamsSection{
			{
				Facts: []TeamsFact{
					{Name: "New mentions", Value: fmt.Sprintf("%d", len(delta))},
					{Name: "Total tracked", Value: fmt.Sprintf("%d", stats.TotalMentions)},
					{Name: "Sentiment (+/0/-)", Value: fmt.Sprintf("%d / %d / %d", stats.Positive, stats.Neutral, stats.Negative)},
					{Name: "Total engagement", Value: fmt.Sprintf("%d", stats.TotalEngagement)},
				},
				Markdown: true,
			},
		},
	}

	// List the newest few mentions; the full set lives in the app.
	for i, mention := range delta {
		if i >= 5 {
			break
		}
		title := mention.Title
		if title == "" {
			title = truncate(mention.Content, 80)
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle:    fmt.Sprintf("[%s] %s", mention.Platform, title),
			ActivitySubtitle: fmt.Sprintf("by %s at %s", mention.Author, mention.CreatedAt.Format("2006-01-02 15:04 UTC")),
			ActivityText:     mention.URL,
			Markdown:         true,
		})
	}

	return message
}

func (s *Service) sendEmail(delta []models.Mention, stats models.AggregateStats) error {
	var body strings.Builder
	fmt.Fprintf(&body, "<h2>%d new mentions</h2>", len(delta))
	fmt.Fprintf(&body, "<p>Total tracked: %d | Sentiment +%d / 0:%d / -%d | Engagement: %d</p>",
		stats.TotalMentions, stats.Positive, stats.Neutral, stats.Negative, stats.TotalEngagement)
	body.WriteString("<ul>")
	for _, mention := range delta {
		title := mention.Title
		if title == "" {
			title = truncate(mention.Content, 80)
		}
		fmt.Fprintf(&body, `<li>[%s] <a href="%s">%s</a> by %s (%s)</li>`,
			mention.Platform, mention.URL, title, mention.Author, mention.Sentiment)
	}
	body.WriteString("</ul>")

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", fmt.Sprintf("BuzzWatch: %d new mentions", len(delta)))
	m.SetBody("text/html", body.String())

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// truncate limits s to max runes, never cutting through a multi-byte rune.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
