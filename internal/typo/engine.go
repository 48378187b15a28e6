package typo

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
)

// Rejection reasons reported in MutationResult.Reason.
const (
	ReasonSentinel    = "text already contains placeholder sentinels"
	ReasonUnstable    = "corrections did not converge"
	ReasonTokens      = "placeholder tokens were corrupted"
	ReasonStructure   = "structural spans changed after restore"
	ReasonLengthRatio = "length outside tolerance band"
)

// Options tunes the engine. Zero values select the defaults.
type Options struct {
	MinRatio  float64
	MaxRatio  float64
	MaxPasses int
}

// Engine applies French typography fixes to wiki markup without touching
// templates, tables, links, tags or any other structural span.
type Engine struct {
	minRatio  float64
	maxPasses int
	maxRatio  float64
	rules     []rule
}

// Result is a mutation plus the labels of the corrections that fired.
type Result struct {
	domain.MutationResult
	Fixes []string
}

// NewEngine builds an engine with the default French rule set.
func NewEngine(opts Options) *Engine {
	if opts.MinRatio <= 0 {
		opts.MinRatio = 0.95
	}
	if opts.MaxRatio <= 0 {
		opts.MaxRatio = 1.10
	}
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = 5
	}
	return &Engine{
		minRatio:  opts.MinRatio,
		maxRatio:  opts.MaxRatio,
		maxPasses: opts.MaxPasses,
		rules:     defaultRules(),
	}
}

// Apply runs protect, correct, restore and verify. Any failed check returns
// the original text with Accepted=false.
func (e *Engine) Apply(text string) Result {
	reject := func(reason string) Result {
		return Result{MutationResult: domain.MutationResult{
			Original:  text,
			Candidate: text,
			Accepted:  false,
			Reason:    reason,
		}}
	}

	if hasSentinel(text) {
		return reject(ReasonSentinel)
	}

	masked, store := protect(text)
	corrected, fixes, ok := e.correct(masked)
	if !ok {
		return reject(ReasonUnstable)
	}

	candidate, ok := restore(corrected, store)
	if !ok {
		return reject(ReasonTokens)
	}

	if remasked, _ := protect(candidate); remasked != corrected {
		return reject(ReasonStructure)
	}

	if !e.withinBand(text, candidate) {
		return reject(ReasonLengthRatio)
	}

	return Result{
		MutationResult: domain.MutationResult{
			Original:  text,
			Candidate: candidate,
			Accepted:  true,
		},
		Fixes: fixes,
	}
}

// correct applies the rules until nothing changes. It reports false when
// the text is still changing after maxPasses.
func (e *Engine) correct(masked string) (string, []string, bool) {
	fired := map[string]bool{}
	var labels []string

	current := masked
	for pass := 0; pass < e.maxPasses; pass++ {
		before := current
		for _, r := range e.rules {
			next := r.apply(current)
			if next != current && !fired[r.label] {
				fired[r.label] = true
				labels = append(labels, r.label)
			}
			current = next
		}
		if current == before {
			return current, labels, true
		}
	}
	return masked, nil, false
}

func (e *Engine) withinBand(original, candidate string) bool {
	in := utf8.RuneCountInString(original)
	out := utf8.RuneCountInString(candidate)
	if in == 0 {
		return out == 0
	}
	ratio := float64(out) / float64(in)
	return ratio >= e.minRatio && ratio <= e.maxRatio
}

// Summary renders the edit summary for the given fixes, naming at most
// three of them.
func Summary(fixes []string) string {
	if len(fixes) == 0 {
		return "Typo : corrections mineures"
	}
	shown := fixes
	if len(shown) > 3 {
		shown = shown[:3]
	}
	summary := "Typo : " + strings.Join(shown, ", ")
	if extra := len(fixes) - len(shown); extra > 0 {
		summary += fmt.Sprintf(" (+%d)", extra)
	}
	return summary
}
