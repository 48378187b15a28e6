package channels

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

// Ntfy publishes plain-text alerts to an ntfy topic.
type Ntfy struct {
	server     string
	topic      string
	categories []domain.AlertCategory
	client     *http.Client
}

var _ ports.AlertChannel = (*Ntfy)(nil)

// NewNtfy targets server/topic. With categories set, only those alerts are sent.
func NewNtfy(httpClient *http.Client, server, topic string, categories ...domain.AlertCategory) *Ntfy {
	if server == "" {
		server = "https://ntfy.sh"
	}
	return &Ntfy{
		server:     strings.TrimRight(server, "/"),
		topic:      topic,
		categories: categories,
		client:     orDefault(httpClient),
	}
}

func (n *Ntfy) Name() string { return "ntfy:" + n.topic }

// Accepts filters alerts by category.
func (n *Ntfy) Accepts(alert domain.Alert) bool {
	return len(n.categories) == 0 || slices.Contains(n.categories, alert.Category)
}

// Send posts the alert body with ntfy headers.
func (n *Ntfy) Send(ctx context.Context, alert domain.Alert) error {
	if n.topic == "" || n.client == nil {
		return fmt.Errorf("ntfy channel misconfigured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.server+"/"+n.topic, strings.NewReader(alert.Body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Title", alert.Title)
	req.Header.Set("Priority", strconv.Itoa(int(alert.Priority.Clamp())))
	if len(alert.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(alert.Tags, ","))
	}
	if alert.Link != "" {
		req.Header.Set("Click", alert.Link)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ntfy error: %s", resp.Status)
	}
	return nil
}
