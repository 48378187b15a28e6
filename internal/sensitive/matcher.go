package sensitive

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/wikitext"
)

const contextRunes = 50

// Match is one term hit with its surrounding context.
type Match struct {
	Category string
	Term     string
	Severity int
	Context  string
}

// Result is the outcome of a check.
type Result struct {
	Matches     []Match
	MaxSeverity int
	Excluded    bool
}

type compiledTerm struct {
	category string
	re       *regexp.Regexp
	severity int
}

// Matcher looks up sensitive terms in normalized page text.
type Matcher struct {
	terms              []compiledTerm
	exclusions         []string
	excludedCategories map[string]bool
	threshold          int
	logger             *slog.Logger
}

// NewMatcher compiles the table. Invalid patterns are skipped with a warning.
func NewMatcher(table Table, threshold int, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = 4
	}

	m := &Matcher{
		threshold:          threshold,
		excludedCategories: map[string]bool{},
		logger:             logger,
	}

	categories := make([]string, 0, len(table.Terms))
	for category := range table.Terms {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		for _, term := range table.Terms[category] {
			re, err := regexp.Compile("(?i)" + wikitext.StripMarks(term.Pattern))
			if err != nil {
				logger.Warn("skip invalid term pattern", "category", category, "pattern", term.Pattern, "error", err)
				continue
			}
			m.terms = append(m.terms, compiledTerm{
				category: category,
				re:       re,
				severity: clampSeverity(term.Severity),
			})
		}
	}
	for _, prefix := range table.Exclusions {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			m.exclusions = append(m.exclusions, strings.ToLower(prefix))
		}
	}
	for _, cat := range table.ExcludedCategories {
		m.excludedCategories[strings.ToLower(strings.TrimSpace(cat))] = true
	}
	return m
}

// Name implements detector.Detector.
func (m *Matcher) Name() string { return "sensitive" }

// Threshold returns the severity at which a match becomes a deletion flag.
func (m *Matcher) Threshold() int { return m.threshold }

// Check returns every match in the title and text of a page.
func (m *Matcher) Check(title, text string, categories []string) Result {
	if m.excluded(title, categories) {
		return Result{Excluded: true}
	}

	normalized := Normalize(title + "\n" + text)
	var res Result
	for _, term := range m.terms {
		for _, loc := range term.re.FindAllStringIndex(normalized, -1) {
			res.Matches = append(res.Matches, Match{
				Category: term.category,
				Term:     normalized[loc[0]:loc[1]],
				Severity: term.severity,
				Context:  excerpt(normalized, loc[0], loc[1]),
			})
			res.MaxSeverity = max(res.MaxSeverity, term.severity)
		}
	}
	return res
}

// Evaluate implements detector.Detector.
func (m *Matcher) Evaluate(_ context.Context, page *domain.PageSnapshot) (*domain.Verdict, error) {
	if page == nil {
		return nil, nil
	}
	res := m.Check(page.Title, page.Text, page.Categories)
	if res.Excluded || len(res.Matches) == 0 {
		return nil, nil
	}

	top := res.Matches[0]
	evidence := make([]string, 0, len(res.Matches))
	for _, match := range res.Matches {
		if match.Severity > top.Severity {
			top = match
		}
		evidence = append(evidence, fmt.Sprintf("%s (%s, %d) : %s", match.Term, match.Category, match.Severity, match.Context))
	}

	verdict := &domain.Verdict{
		Detector:      m.Name(),
		Kind:          domain.KindSensitive,
		Recommend:     domain.RecommendWarn,
		Confidence:    min(100, 20*res.MaxSeverity),
		Severity:      res.MaxSeverity,
		Justification: fmt.Sprintf("Contenu sensible (%s) : « %s », gravité %d/5", top.Category, top.Term, res.MaxSeverity),
		Evidence:      evidence,
	}
	if res.MaxSeverity >= m.threshold {
		verdict.Recommend = domain.RecommendDeletion
	}
	return verdict, nil
}

func (m *Matcher) excluded(title string, categories []string) bool {
	lower := strings.ToLower(title)
	for _, prefix := range m.exclusions {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return slices.ContainsFunc(categories, func(cat string) bool {
		return m.excludedCategories[strings.ToLower(strings.TrimSpace(cat))]
	})
}

func clampSeverity(s int) int {
	return min(5, max(1, s))
}

// excerpt returns the match with up to contextRunes runes on each side.
func excerpt(text string, start, end int) string {
	from := start
	for n := 0; n < contextRunes && from > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for n := 0; n < contextRunes && to < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}

	out := text[from:to]
	if from > 0 {
		out = "…" + out
	}
	if to < len(text) {
		out += "…"
	}
	return out
}
