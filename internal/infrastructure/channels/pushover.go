package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

const pushoverEndpoint = "https://api.pushover.net/1/messages.json"

// Pushover sends urgent alerts through the Pushover API.
type Pushover struct {
	endpoint    string
	token       string
	user        string
	minPriority domain.Priority
	client      *http.Client
}

var _ ports.AlertChannel = (*Pushover)(nil)

// NewPushover registers the application token and user key.
func NewPushover(httpClient *http.Client, token, user string) *Pushover {
	return &Pushover{
		endpoint:    pushoverEndpoint,
		token:       token,
		user:        user,
		minPriority: domain.PriorityHigh,
		client:      orDefault(httpClient),
	}
}

// WithEndpoint overrides the API URL.
func (p *Pushover) WithEndpoint(endpoint string) *Pushover {
	p.endpoint = endpoint
	return p
}

func (p *Pushover) Name() string { return "pushover" }

// Accepts keeps only high priority alerts.
func (p *Pushover) Accepts(alert domain.Alert) bool {
	return alert.Priority >= p.minPriority
}

// Send posts the form. Pushover priorities run from -2 to 2.
func (p *Pushover) Send(ctx context.Context, alert domain.Alert) error {
	if p.token == "" || p.user == "" || p.client == nil {
		return fmt.Errorf("pushover channel misconfigured")
	}

	form := url.Values{}
	form.Set("token", p.token)
	form.Set("user", p.user)
	form.Set("title", alert.Title)
	form.Set("message", alert.Body)
	form.Set("priority", strconv.Itoa(int(alert.Priority.Clamp())-3))
	if alert.Link != "" {
		form.Set("url", alert.Link)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover error: %s", resp.Status)
	}
	return nil
}
