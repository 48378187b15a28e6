package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

var severityColors = map[domain.Priority]int{
	domain.PriorityMin:     0xFFA500,
	domain.PriorityLow:     0xFF8C00,
	domain.PriorityDefault: 0xFF4500,
	domain.PriorityHigh:    0xFF0000,
	domain.PriorityMax:     0x8B0000,
}

// fieldOrder fixes the embed layout; unknown fields follow in map order.
var fieldOrder = []string{"Raison", "Confiance", "Gravité", "Détecteur", "Actions"}

// Discord posts embeds to a webhook.
type Discord struct {
	webhook  string
	mentions string
	client   *http.Client
}

var _ ports.AlertChannel = (*Discord)(nil)

// NewDiscord registers the webhook URL and optional user mentions.
func NewDiscord(httpClient *http.Client, webhook, mentions string) *Discord {
	return &Discord{
		webhook:  webhook,
		mentions: mentions,
		client:   orDefault(httpClient),
	}
}

func (d *Discord) Name() string { return "discord" }

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
	Timestamp string `json:"timestamp"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

// Send posts the alert as one embed. Mentions are only added to deletion alerts.
func (d *Discord) Send(ctx context.Context, alert domain.Alert) error {
	if d.webhook == "" || d.client == nil {
		return fmt.Errorf("discord channel misconfigured")
	}

	embed := discordEmbed{
		Title:       alert.Title,
		URL:         alert.Link,
		Description: alert.Body,
		Color:       severityColors[alert.Priority.Clamp()],
		Timestamp:   alert.Time.UTC().Format(time.RFC3339),
	}
	embed.Footer.Text = "BotCélian"
	for _, name := range fieldOrder {
		if v, ok := alert.Fields[name]; ok {
			embed.Fields = append(embed.Fields, discordField{Name: name, Value: v, Inline: true})
		}
	}
	for name, v := range alert.Fields {
		if !slices.Contains(fieldOrder, name) {
			embed.Fields = append(embed.Fields, discordField{Name: name, Value: v})
		}
	}
	if alert.Link != "" && alert.DiffLink != "" {
		embed.Fields = append(embed.Fields, discordField{
			Name:  "Liens",
			Value: fmt.Sprintf("[Voir la page](%s) • [Voir le diff](%s)", alert.Link, alert.DiffLink),
		})
	}

	payload := discordPayload{Embeds: []discordEmbed{embed}}
	if alert.Category == domain.CategoryDeletion {
		payload.Content = d.mentions
	}
	return postJSON(ctx, d.client, d.webhook, payload)
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

func orDefault(client *http.Client) *http.Client {
	if client == nil {
		return &http.Client{Timeout: 10 * time.Second}
	}
	return client
}
