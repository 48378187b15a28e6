package mediawiki

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

// RecentOptions selects which page creations a run looks at.
type RecentOptions struct {
	Lookback   time.Duration
	Limit      int
	Namespaces []int
}

// RecentNewPages lists page creations from the recent changes feed.
type RecentNewPages struct {
	client *Client
	opts   RecentOptions
	logger *slog.Logger
}

var _ ports.PageSource = (*RecentNewPages)(nil)

// NewRecentNewPages reads the feed through an authenticated client.
func NewRecentNewPages(client *Client, opts RecentOptions, logger *slog.Logger) *RecentNewPages {
	if opts.Lookback <= 0 {
		opts.Lookback = 15 * time.Minute
	}
	if opts.Limit <= 0 {
		opts.Limit = 30
	}
	if len(opts.Namespaces) == 0 {
		opts.Namespaces = []int{0}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecentNewPages{client: client, opts: opts, logger: logger}
}

// RecentPages returns new pages, newest first, each title at most once.
func (s *RecentNewPages) RecentPages(ctx context.Context) ([]domain.Candidate, error) {
	if s.client == nil {
		return nil, fmt.Errorf("wiki client is not configured")
	}

	now := s.client.now().UTC()
	params := buildRecentParams(now, s.opts)

	var resp struct {
		Query struct {
			RecentChanges []struct {
				Title string `json:"title"`
				User  string `json:"user"`
			} `json:"recentchanges"`
		} `json:"query"`
	}
	if err := s.client.get(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("list recent changes: %w", err)
	}

	seen := map[string]struct{}{}
	candidates := make([]domain.Candidate, 0, len(resp.Query.RecentChanges))
	for _, rc := range resp.Query.RecentChanges {
		if _, ok := seen[rc.Title]; ok {
			continue
		}
		seen[rc.Title] = struct{}{}
		candidates = append(candidates, domain.Candidate{Title: rc.Title, Creator: rc.User})
	}
	s.logger.Debug("recent pages listed", "count", len(candidates), "lookback", s.opts.Lookback)
	return candidates, nil
}

func buildRecentParams(now time.Time, opts RecentOptions) url.Values {
	namespaces := make([]string, 0, len(opts.Namespaces))
	for _, ns := range opts.Namespaces {
		namespaces = append(namespaces, strconv.Itoa(ns))
	}
	return url.Values{
		"action":      {"query"},
		"list":        {"recentchanges"},
		"rctype":      {"new"},
		"rcprop":      {"title|user|timestamp"},
		"rcnamespace": {strings.Join(namespaces, "|")},
		"rclimit":     {strconv.Itoa(opts.Limit)},
		"rcstart":     {now.Format(time.RFC3339)},
		"rcend":       {now.Add(-opts.Lookback).Format(time.RFC3339)},
		"rcdir":       {"older"},
	}
}
