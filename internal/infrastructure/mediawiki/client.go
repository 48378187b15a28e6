package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

// Config holds the API endpoint and bot credentials.
type Config struct {
	APIURL   string
	Username string
	Password string
}

// Client talks to the MediaWiki action API. It is the only source of page
// content for the bot.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	now    func() time.Time

	csrfToken string
}

var _ ports.Wiki = (*Client)(nil)

// NewClient wraps an HTTP client that must keep cookies between calls.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger, now: time.Now}
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

type tokensResponse struct {
	Query struct {
		Tokens struct {
			LoginToken string `json:"logintoken"`
			CSRFToken  string `json:"csrftoken"`
		} `json:"tokens"`
	} `json:"query"`
}

// Login authenticates with a bot password. Any rejection wraps ports.ErrAuth.
func (c *Client) Login(ctx context.Context) error {
	if c.cfg.Username == "" || c.cfg.Password == "" {
		return fmt.Errorf("%w: missing credentials", ports.ErrAuth)
	}

	var tokens tokensResponse
	if err := c.get(ctx, url.Values{"action": {"query"}, "meta": {"tokens"}, "type": {"login"}}, &tokens); err != nil {
		return fmt.Errorf("fetch login token: %w", err)
	}
	if tokens.Query.Tokens.LoginToken == "" {
		return fmt.Errorf("%w: no login token", ports.ErrAuth)
	}

	var resp struct {
		Login struct {
			Result string `json:"result"`
			Reason string `json:"reason"`
		} `json:"login"`
	}
	form := url.Values{
		"action":     {"login"},
		"lgname":     {c.cfg.Username},
		"lgpassword": {c.cfg.Password},
		"lgtoken":    {tokens.Query.Tokens.LoginToken},
	}
	if err := c.post(ctx, form, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.Login.Result != "Success" {
		return fmt.Errorf("%w: %s %s", ports.ErrAuth, resp.Login.Result, resp.Login.Reason)
	}
	c.csrfToken = ""
	c.logger.Info("logged in", "user", c.cfg.Username)
	return nil
}

type pageInfo struct {
	Title     string `json:"title"`
	Missing   bool   `json:"missing"`
	Invalid   bool   `json:"invalid"`
	Redirect  bool   `json:"redirect"`
	Revisions []struct {
		RevID int64  `json:"revid"`
		User  string `json:"user"`
		Slots struct {
			Main struct {
				Content string `json:"content"`
			} `json:"main"`
		} `json:"slots"`
	} `json:"revisions"`
	Categories []struct {
		Title string `json:"title"`
	} `json:"categories"`
}

type queryResponse struct {
	Query struct {
		Pages []pageInfo `json:"pages"`
	} `json:"query"`
}

// Fetch loads the current text, categories, redirect flag, last revision and
// creator of a page.
func (c *Client) Fetch(ctx context.Context, title string) (domain.PageSnapshot, error) {
	page, err := c.query(ctx, title, url.Values{
		"prop":    {"revisions|categories|info"},
		"rvprop":  {"content|user|ids"},
		"rvslots": {"main"},
		"cllimit": {"max"},
	})
	if err != nil {
		return domain.PageSnapshot{}, err
	}
	if len(page.Revisions) == 0 {
		return domain.PageSnapshot{}, fmt.Errorf("fetch %s: %w", title, ports.ErrNotFound)
	}

	latest := page.Revisions[0]
	snapshot := domain.PageSnapshot{
		Title:      page.Title,
		Text:       latest.Slots.Main.Content,
		Redirect:   page.Redirect,
		Revision:   latest.RevID,
		LastEditor: latest.User,
		FetchedAt:  c.now(),
	}
	for _, cat := range page.Categories {
		name := cat.Title
		if i := strings.IndexByte(name, ':'); i >= 0 {
			name = name[i+1:]
		}
		snapshot.Categories = append(snapshot.Categories, name)
	}

	first, err := c.query(ctx, title, url.Values{
		"prop":    {"revisions"},
		"rvprop":  {"user"},
		"rvdir":   {"newer"},
		"rvlimit": {"1"},
	})
	if err != nil {
		c.logger.Warn("creator lookup failed", "page", title, "error", err)
	} else if len(first.Revisions) > 0 {
		snapshot.Creator = first.Revisions[0].User
	}
	return snapshot, nil
}

// Exists reports whether the page exists.
func (c *Client) Exists(ctx context.Context, title string) (bool, error) {
	_, err := c.query(ctx, title, url.Values{"prop": {"info"}})
	if errors.Is(err, ports.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsRedirect reports whether the page is a redirect.
func (c *Client) IsRedirect(ctx context.Context, title string) (bool, error) {
	page, err := c.query(ctx, title, url.Values{"prop": {"info"}})
	if err != nil {
		return false, err
	}
	return page.Redirect, nil
}

// Save writes a new revision as a bot edit. The page must already exist.
func (c *Client) Save(ctx context.Context, title, text, summary string) error {
	return c.edit(ctx, title, summary, url.Values{
		"text":     {text},
		"nocreate": {"1"},
	})
}

// Append adds text at the end of a page, creating it when missing.
func (c *Client) Append(ctx context.Context, title, text, summary string) error {
	return c.edit(ctx, title, summary, url.Values{
		"appendtext": {text},
	})
}

// sessionCodes are edit rejections meaning the bot is no longer logged in
// or no longer allowed to edit.
var sessionCodes = map[string]bool{
	"notloggedin":      true,
	"assertuserfailed": true,
	"assertbotfailed":  true,
	"permissiondenied": true,
	"blocked":          true,
}

func (c *Client) edit(ctx context.Context, title, summary string, params url.Values) error {
	token, err := c.csrf(ctx)
	if err != nil {
		return err
	}

	var resp struct {
		Edit struct {
			Result string `json:"result"`
		} `json:"edit"`
	}
	params.Set("action", "edit")
	params.Set("title", title)
	params.Set("summary", summary)
	params.Set("bot", "1")
	params.Set("assert", "user")
	params.Set("token", token)
	if err := c.post(ctx, params, &resp); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.Code == "badtoken":
				c.csrfToken = ""
			case sessionCodes[apiErr.Code]:
				c.csrfToken = ""
				return fmt.Errorf("save %s: %w: %w", title, ports.ErrAuth, err)
			}
		}
		return fmt.Errorf("save %s: %w", title, err)
	}
	if resp.Edit.Result != "Success" {
		return fmt.Errorf("save %s: edit result %q", title, resp.Edit.Result)
	}
	return nil
}

func (c *Client) csrf(ctx context.Context) (string, error) {
	if c.csrfToken != "" {
		return c.csrfToken, nil
	}
	var tokens tokensResponse
	if err := c.get(ctx, url.Values{"action": {"query"}, "meta": {"tokens"}}, &tokens); err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	token := tokens.Query.Tokens.CSRFToken
	if token == "" || token == "+\\" {
		return "", fmt.Errorf("%w: anonymous csrf token", ports.ErrAuth)
	}
	c.csrfToken = token
	return token, nil
}

func (c *Client) query(ctx context.Context, title string, params url.Values) (pageInfo, error) {
	params.Set("action", "query")
	params.Set("titles", title)

	var resp queryResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return pageInfo{}, fmt.Errorf("query %s: %w", title, err)
	}
	if len(resp.Query.Pages) == 0 {
		return pageInfo{}, fmt.Errorf("query %s: empty response", title)
	}
	page := resp.Query.Pages[0]
	if page.Missing || page.Invalid {
		return pageInfo{}, fmt.Errorf("query %s: %w", title, ports.ErrNotFound)
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, params url.Values, v any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	return c.do(req, v)
}

func (c *Client) post(ctx context.Context, form url.Values, v any) error {
	form.Set("format", "json")
	form.Set("formatversion", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, v)
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
