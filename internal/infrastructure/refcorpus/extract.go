package refcorpus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

// noiseSelector lists extract nodes that never carry article prose.
const noiseSelector = "sup.reference, .mw-ref, table, style, script, .mw-empty-elt, .mw-editsection, .noprint"

const blockSelector = "p, li, dd, dt, h1, h2, h3, h4, h5, h6, br"

var spaceExpr = regexp.MustCompile(`[ \t\f\r]+`)
var blankLinesExpr = regexp.MustCompile(`\n\s*\n+`)

// Source describes one reference wiki.
type Source struct {
	Name      string
	APIURL    string
	IntroOnly bool
}

// DefaultSources are the French encyclopedias a Vikidia page is compared to.
var DefaultSources = []Source{
	{Name: "wikipedia", APIURL: "https://fr.wikipedia.org/w/api.php", IntroOnly: true},
	{Name: "wikimini", APIURL: "https://fr.wikimini.org/w/api.php"},
}

// Extractor fetches TextExtracts HTML and flattens it to plain text.
type Extractor struct {
	source Source
	client *http.Client
}

var _ ports.ReferenceCorpus = (*Extractor)(nil)

// NewExtractor wires an HTTP client; a nil client gets a 10s timeout.
func NewExtractor(source Source, client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Extractor{source: source, client: client}
}

// Build returns one extractor per configured source.
func Build(sources []Source, client *http.Client) []ports.ReferenceCorpus {
	out := make([]ports.ReferenceCorpus, 0, len(sources))
	for _, s := range sources {
		out = append(out, NewExtractor(s, client))
	}
	return out
}

// Name identifies the source in verdicts and metrics.
func (e *Extractor) Name() string {
	return e.source.Name
}

// Extract returns the plain-text extract of a title, or ports.ErrNotFound.
func (e *Extractor) Extract(ctx context.Context, title string) (string, error) {
	queryURL, err := buildQueryURL(e.source, title)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request extract: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned %s", e.source.Name, resp.Status)
	}

	var payload struct {
		Query struct {
			Pages []struct {
				Missing bool    `json:"missing"`
				Invalid bool    `json:"invalid"`
				Extract *string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode extract: %w", err)
	}
	if len(payload.Query.Pages) == 0 {
		return "", fmt.Errorf("extract %s: %w", title, ports.ErrNotFound)
	}
	page := payload.Query.Pages[0]
	if page.Missing || page.Invalid || page.Extract == nil {
		return "", fmt.Errorf("extract %s: %w", title, ports.ErrNotFound)
	}

	text, err := htmlToText(*page.Extract)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("extract %s: %w", title, ports.ErrNotFound)
	}
	return text, nil
}

func htmlToText(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse extract: %w", err)
	}
	doc.Find(noiseSelector).Remove()
	doc.Find(blockSelector).AfterHtml("\n")

	text := spaceExpr.ReplaceAllString(doc.Text(), " ")
	text = blankLinesExpr.ReplaceAllString(text, "\n")
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), nil
}

func buildQueryURL(source Source, title string) (string, error) {
	parsed, err := url.Parse(source.APIURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url %s: %w", source.APIURL, err)
	}

	query := parsed.Query()
	query.Set("action", "query")
	query.Set("format", "json")
	query.Set("formatversion", "2")
	query.Set("prop", "extracts")
	query.Set("redirects", "1")
	query.Set("titles", title)
	if source.IntroOnly {
		query.Set("exintro", "1")
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
