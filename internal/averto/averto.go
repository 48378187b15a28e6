// Package averto flags pages copied from reference encyclopedias and pages
// written to promote someone or something.
package averto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/metrics"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/wikitext"
)

// Options carries the detector thresholds.
type Options struct {
	BaseThreshold float64
	HighThreshold float64
	MinTextLength int
	MaxRunes      int
}

func (o Options) withDefaults() Options {
	if o.BaseThreshold <= 0 {
		o.BaseThreshold = 0.7
	}
	if o.HighThreshold <= 0 {
		o.HighThreshold = 0.9
	}
	if o.MinTextLength <= 0 {
		o.MinTextLength = 100
	}
	if o.MaxRunes <= 0 {
		o.MaxRunes = 5000
	}
	return o
}

// Detector compares page text against reference corpora and scores
// promotional wording.
type Detector struct {
	sources []ports.ReferenceCorpus
	opts    Options
	logger  *slog.Logger

	mu          sync.Mutex
	fetchErrors map[string]int
}

// New builds a detector over the given sources.
func New(sources []ports.ReferenceCorpus, opts Options, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		sources:     sources,
		opts:        opts.withDefaults(),
		logger:      logger,
		fetchErrors: map[string]int{},
	}
}

// Name implements detector.Detector.
func (d *Detector) Name() string { return "averto" }

// Evaluate implements detector.Detector.
func (d *Detector) Evaluate(ctx context.Context, page *domain.PageSnapshot) (*domain.Verdict, error) {
	if page == nil {
		return nil, nil
	}
	return d.Detect(ctx, page.Title, page.Text, page.Creator), nil
}

// Detect returns the strongest copy or promotion verdict, or nil. The
// minimum length applies to the raw wikitext.
// On equal strength copy wins.
func (d *Detector) Detect(ctx context.Context, title, text, creator string) *domain.Verdict {
	if utf8.RuneCountInString(text) < d.opts.MinTextLength {
		return nil
	}
	clean := cleanText(text)

	copyVerdict := d.checkCopy(ctx, title, clean)
	promoVerdict := d.checkPromotion(text, creator)

	switch {
	case copyVerdict == nil:
		return promoVerdict
	case promoVerdict == nil:
		return copyVerdict
	case rank(promoVerdict.Recommend) > rank(copyVerdict.Recommend):
		return promoVerdict
	default:
		return copyVerdict
	}
}

// FetchErrors returns failed lookups per source since the detector was built.
func (d *Detector) FetchErrors() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.fetchErrors))
	for k, v := range d.fetchErrors {
		out[k] = v
	}
	return out
}

func (d *Detector) checkCopy(ctx context.Context, title, clean string) *domain.Verdict {
	type score struct {
		source string
		ratio  float64
	}
	var scores []score

	for _, source := range d.sources {
		extract, err := source.Extract(ctx, title)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				continue
			}
			d.countError(source.Name())
			d.logger.Warn("reference lookup failed", "source", source.Name(), "page", title, "error", err)
			continue
		}
		reference := cleanText(extract)
		if reference == "" {
			continue
		}
		scores = append(scores, score{source: source.Name(), ratio: Similarity(clean, reference, d.opts.MaxRunes)})
	}
	if len(scores) == 0 {
		return nil
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].ratio > scores[j].ratio })
	best := scores[0]
	if best.ratio < d.opts.BaseThreshold {
		return nil
	}

	evidence := make([]string, 0, len(scores))
	for _, s := range scores {
		evidence = append(evidence, fmt.Sprintf("%s : %.0f%%", s.source, s.ratio*100))
	}
	verdict := &domain.Verdict{
		Detector:      d.Name(),
		Kind:          domain.KindCopy,
		Recommend:     domain.RecommendWarn,
		Confidence:    int(best.ratio * 100),
		Severity:      3,
		Justification: fmt.Sprintf("Copie probable de %s (similarité %.0f%%)", best.source, best.ratio*100),
		Evidence:      evidence,
	}
	if best.ratio >= d.opts.HighThreshold {
		verdict.Recommend = domain.RecommendDeletion
		verdict.Severity = 5
		verdict.Justification = fmt.Sprintf("Copie quasi identique de %s (similarité %.0f%%)", best.source, best.ratio*100)
	}
	return verdict
}

func (d *Detector) checkPromotion(text, creator string) *domain.Verdict {
	score, hits := PromotionScore(text, creator)
	if score < 0.5 {
		return nil
	}
	verdict := &domain.Verdict{
		Detector:      d.Name(),
		Kind:          domain.KindPromo,
		Recommend:     domain.RecommendWarn,
		Confidence:    int(score*100 + 0.5),
		Severity:      3,
		Justification: fmt.Sprintf("Contenu promotionnel probable (score %.0f%%)", score*100),
		Evidence:      hits,
	}
	if score >= 0.8 {
		verdict.Recommend = domain.RecommendDeletion
		verdict.Severity = 4
	}
	return verdict
}

func (d *Detector) countError(source string) {
	d.mu.Lock()
	d.fetchErrors[source]++
	d.mu.Unlock()
	metrics.ReferenceFetchErrors.WithLabelValues(source).Inc()
}

// Similarity returns difflib's ratio between two texts, compared rune by
// rune and truncated to maxRunes each. Auto junk is off: on long texts it
// would discard every common letter.
func Similarity(a, b string, maxRunes int) float64 {
	ra, rb := splitRunes(a, maxRunes), splitRunes(b, maxRunes)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	return difflib.NewMatcherWithJunk(ra, rb, false, nil).Ratio()
}

func splitRunes(s string, limit int) []string {
	out := make([]string, 0, min(len(s), limit))
	for _, r := range s {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, string(r))
	}
	return out
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(wikitext.PlainText(text))), " ")
}

func rank(r domain.Recommendation) int {
	switch r {
	case domain.RecommendDeletion:
		return 2
	case domain.RecommendWarn:
		return 1
	default:
		return 0
	}
}
