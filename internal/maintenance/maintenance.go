package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/wikitext"
)

// Problem tags, used as job values of the maintenance template.
const (
	ProblemCategorize = "catégoriser"
	ProblemPortal     = "portail"
	ProblemIllustrate = "illustrer"
	ProblemSource     = "sourcer"
	ProblemWikify     = "wikifier"
)

const (
	maxPortals          = 3
	sourceMinWords      = 100
	minInternalLinks    = 3
	modelStubDisagree   = 70
	modelStubOverride   = 80
	stubTemplatePrefix  = "Modèle:Ébauche "
	defaultMinStubWords = 200
)

var (
	// InProgressTemplates mark pages a contributor is still writing.
	InProgressTemplates = []string{"Travaux", "En travaux", "multi-travaux", "En cours"}
	stubTemplates       = []string{"Ébauche"}
	deletionTemplates   = []string{"SI"}
	maintenanceTemplate = []string{"Maintenance"}

	categoryRe     = regexp.MustCompile(`(?i)\[\[\s*(catégorie|category)\s*:`)
	autoCategoryRe = regexp.MustCompile(`(?i)\{\{\s*(infobox|palette|portail)`)
	mediaRe        = regexp.MustCompile(`(?i)\[\[\s*(fichier|image|file)\s*:`)
	imageParamRe   = regexp.MustCompile(`(?i)\|\s*image\s*=\s*[^\s|}]`)
	referencesRe   = regexp.MustCompile(`(?i)<ref[\s>/]|\{\{\s*(références|references|reflist)`)
)

// InProgress reports whether the page carries a work-in-progress marker.
func InProgress(text string) bool {
	return wikitext.HasTemplate(text, InProgressTemplates...)
}

// HasStub reports whether the page already carries a stub marker.
func HasStub(text string) bool {
	return wikitext.HasTemplate(text, stubTemplates...)
}

// HasDeletionFlag reports whether the page already carries a deletion marker.
func HasDeletionFlag(text string) bool {
	return wikitext.HasTemplate(text, deletionTemplates...)
}

// HasMaintenance reports whether the page already carries a maintenance marker.
func HasMaintenance(text string) bool {
	return wikitext.HasTemplate(text, maintenanceTemplate...)
}

// DetectProblems returns the structural problems of a page in a fixed order.
func DetectProblems(text string) []string {
	var problems []string

	if !categoryRe.MatchString(text) && !autoCategoryRe.MatchString(text) {
		problems = append(problems, ProblemCategorize)
	}
	if !wikitext.HasTemplate(text, "Portail") {
		problems = append(problems, ProblemPortal)
	}
	if !mediaRe.MatchString(text) && !imageParamRe.MatchString(text) {
		problems = append(problems, ProblemIllustrate)
	}
	if !referencesRe.MatchString(text) && wikitext.WordCount(text) > sourceMinWords {
		problems = append(problems, ProblemSource)
	}
	if len(wikitext.InternalLinks(text)) < minInternalLinks {
		problems = append(problems, ProblemWikify)
	}
	return problems
}

// StubDecision is the outcome of the stub fusion rule.
type StubDecision struct {
	Needed  bool
	Portals []string
	Reason  string
	Words   int
}

// Heuristic decides about stub and maintenance markers.
type Heuristic struct {
	minWords int
}

// NewHeuristic builds a heuristic; pages under minWords words are short.
func NewHeuristic(minWords int) *Heuristic {
	if minWords <= 0 {
		minWords = defaultMinStubWords
	}
	return &Heuristic{minWords: minWords}
}

// MinWords returns the short-page threshold.
func (h *Heuristic) MinWords() int { return h.minWords }

// NeedsStub combines the word count with the model verdict. A nil or
// fallback judgment counts as no model verdict.
func (h *Heuristic) NeedsStub(text string, judgment *domain.Judgment) StubDecision {
	if HasStub(text) {
		return StubDecision{Reason: "déjà marquée comme ébauche"}
	}
	words := wikitext.WordCount(text)
	decision := Fuse(words, h.minWords, judgment)
	decision.Words = words
	if decision.Needed {
		decision.Portals = selectPortals(text, judgment)
	}
	return decision
}

// Fuse applies the stub fusion rule to a word count and an optional verdict.
func Fuse(words, minWords int, judgment *domain.Judgment) StubDecision {
	short := words < minWords
	hasModel := judgment != nil && !judgment.Fallback

	switch {
	case short && hasModel && judgment.NeedsStub:
		return StubDecision{Needed: true, Reason: fmt.Sprintf("%d mots, confirmé par le modèle (%d%%)", words, judgment.StubConfidence)}
	case short && !hasModel:
		return StubDecision{Needed: true, Reason: fmt.Sprintf("%d mots, sans avis du modèle", words)}
	case short && judgment.StubConfidence >= modelStubDisagree:
		return StubDecision{Reason: fmt.Sprintf("%d mots, mais le modèle s'y oppose (%d%%)", words, judgment.StubConfidence)}
	case !short && hasModel && judgment.NeedsStub && judgment.StubConfidence >= modelStubOverride:
		return StubDecision{Needed: true, Reason: fmt.Sprintf("%d mots, ébauche selon le modèle (%d%%)", words, judgment.StubConfidence)}
	default:
		return StubDecision{Reason: fmt.Sprintf("%d mots, signaux insuffisants", words)}
	}
}

// selectPortals prefers the model portals, then those already on the page.
func selectPortals(text string, judgment *domain.Judgment) []string {
	if judgment != nil && !judgment.Fallback {
		if portals := cleanPortals(judgment.Portals); len(portals) > 0 {
			return portals
		}
	}
	return cleanPortals(wikitext.TemplateArgs(text, "Portail"))
}

func cleanPortals(raw []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range raw {
		p = wikitext.Capitalize(strings.Trim(p, " \t[]{}|"))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
		if len(out) == maxPortals {
			break
		}
	}
	return out
}

// TemplateChecker reports whether a wiki page exists.
type TemplateChecker interface {
	Exists(ctx context.Context, title string) (bool, error)
}

// FilterPortals keeps portals that have a dedicated stub template. Lookup
// errors drop the portal.
func FilterPortals(ctx context.Context, checker TemplateChecker, portals []string, logger *slog.Logger) []string {
	if checker == nil || len(portals) == 0 {
		return portals
	}
	var kept []string
	for _, portal := range portals {
		ok, err := checker.Exists(ctx, stubTemplatePrefix+portal)
		if err != nil {
			if logger != nil {
				logger.Warn("stub template lookup failed", "portal", portal, "error", err)
			}
			continue
		}
		if ok {
			kept = append(kept, portal)
		}
	}
	return kept
}

// AddMaintenance prepends the maintenance marker. It returns false when
// there is nothing to add or a marker is already present.
func AddMaintenance(text string, problems []string, now time.Time) (string, bool) {
	if len(problems) == 0 || HasMaintenance(text) {
		return text, false
	}
	marker := fmt.Sprintf("{{Maintenance|job=%s|date=%s}}", strings.Join(problems, ","), now.Format("2006-01-02"))
	return marker + "\n" + text, true
}

// AddStub prepends the stub marker with up to three portals.
func AddStub(text string, portals []string) (string, bool) {
	if HasStub(text) {
		return text, false
	}
	marker := "{{Ébauche}}"
	if len(portals) > 0 {
		marker = "{{Ébauche|" + strings.Join(portals, "|") + "}}"
	}
	return marker + "\n" + text, true
}

// AddDeletion prepends the deletion marker. A page already flagged is
// never flagged twice.
func AddDeletion(text, reason, bot string) (string, bool) {
	if HasDeletionFlag(text) {
		return text, false
	}
	marker := fmt.Sprintf("{{SI|%s|%s}}", sanitizeReason(reason), bot)
	return marker + "\n" + text, true
}

var reasonRe = regexp.MustCompile(`[|{}\[\]\n\r]+`)

func sanitizeReason(reason string) string {
	reason = strings.Join(strings.Fields(reasonRe.ReplaceAllString(reason, " ")), " ")
	if reason == "" {
		reason = "Contenu à supprimer"
	}
	runes := []rune(reason)
	if len(runes) > 200 {
		reason = string(runes[:199]) + "…"
	}
	return reason
}
