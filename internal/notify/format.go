package notify

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
)

var reasonLabels = map[domain.VerdictKind]string{
	domain.KindSensitive: "contenu sensible",
	domain.KindCopy:      "copie détectée",
	domain.KindPromo:     "autopromotion",
	domain.KindVandalism: "vandalisme",
	domain.KindLanguage:  "langue non francophone",
}

var actionLabels = map[domain.Action]string{
	domain.ActionWarn:           "avertissement",
	domain.ActionAddMaintenance: "bandeau de maintenance",
	domain.ActionAddStub:        "ébauche",
	domain.ActionFixTypography:  "typographie",
}

// Eligible reports whether a decision produces an alert.
func Eligible(d domain.Decision) bool {
	for _, a := range d.Actions {
		if a != domain.ActionNone && a != domain.ActionSkipped {
			return true
		}
	}
	return false
}

// Priority maps a decision onto the shared 1-5 scale.
func Priority(d domain.Decision) domain.Priority {
	switch {
	case d.IsDeletion():
		return domain.Priority(max(int(domain.PriorityDefault), d.Severity())).Clamp()
	case d.Has(domain.ActionWarn):
		return domain.PriorityLow
	default:
		return domain.PriorityMin
	}
}

// PageURL returns the canonical article URL of a title.
func PageURL(base, title string) string {
	return strings.TrimRight(base, "/") + "/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

// DiffURL returns the link to the latest revision diff of a title.
func DiffURL(base, title string) string {
	q := url.Values{}
	q.Set("title", strings.ReplaceAll(title, " ", "_"))
	q.Set("diff", "cur")
	q.Set("oldid", "prev")
	return strings.TrimRight(base, "/") + "/w/index.php?" + q.Encode()
}

// DecisionAlert renders a moderation decision as an alert.
func DecisionAlert(d domain.Decision, wikiBase string, now time.Time) domain.Alert {
	alert := domain.Alert{
		Category: domain.CategoryModeration,
		Link:     PageURL(wikiBase, d.Page),
		DiffLink: DiffURL(wikiBase, d.Page),
		Page:     d.Page,
		Priority: Priority(d),
		Level:    domain.LevelInfo,
		Tags:     []string{"robot"},
		Fields:   map[string]string{},
		Time:     now,
	}

	var lines []string
	switch {
	case d.IsDeletion():
		alert.Category = domain.CategoryDeletion
		alert.Title = "SI détecté : " + d.Page
		alert.Level = domain.LevelWarning
		alert.Tags = []string{"warning", "rotating_light"}
		reason := "suppression demandée"
		if d.Reason != nil {
			if label, ok := reasonLabels[d.Reason.Kind]; ok {
				reason = label
			}
			alert.Fields["Confiance"] = fmt.Sprintf("%d%%", d.Reason.Confidence)
			alert.Fields["Gravité"] = strings.Repeat("⭐", max(1, d.Severity()))
			alert.Fields["Détecteur"] = d.Reason.Detector
		}
		alert.Fields["Raison"] = reason
		lines = append(lines, "Raison : "+reason)
	case d.Has(domain.ActionWarn):
		alert.Title = "Page à vérifier : " + d.Page
		alert.Level = domain.LevelWarning
		alert.Tags = []string{"warning"}
		if d.Reason != nil {
			if label, ok := reasonLabels[d.Reason.Kind]; ok {
				alert.Fields["Raison"] = label
				lines = append(lines, "Raison : "+label)
			}
			alert.Fields["Confiance"] = fmt.Sprintf("%d%%", d.Reason.Confidence)
		}
	default:
		alert.Title = "Maintenance : " + d.Page
	}

	var done []string
	for _, a := range d.Actions {
		if label, ok := actionLabels[a]; ok {
			done = append(done, label)
		}
	}
	if len(done) > 0 {
		alert.Fields["Actions"] = strings.Join(done, ", ")
		lines = append(lines, "Actions : "+strings.Join(done, ", "))
	}
	if len(d.Problems) > 0 {
		lines = append(lines, "Problèmes : "+strings.Join(d.Problems, ", "))
	}
	if d.Justification != "" {
		lines = append(lines, "Détails : "+d.Justification)
	}
	if len(d.Persisted) == 0 {
		lines = append(lines, "(aucune modification enregistrée)")
	}
	lines = append(lines, "Lien : "+alert.Link)
	alert.Body = strings.Join(lines, "\n")
	return alert
}
