package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
)

// runLog collects one wiki entry per page the run acted on.
type runLog struct {
	entries []string
}

func (l *runLog) reset() {
	l.entries = l.entries[:0]
}

func (l *runLog) add(d domain.Decision) {
	if len(d.Actions) == 0 || d.Has(domain.ActionSkipped) {
		return
	}
	actions := make([]string, 0, len(d.Actions))
	for _, a := range d.Actions {
		actions = append(actions, string(a))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "* '''[[%s]]'''\n", d.Page)
	fmt.Fprintf(&b, "  * SI : %s\n", yesNo(d.IsDeletion()))
	if j := d.Judgment; j != nil && !j.Fallback {
		fmt.Fprintf(&b, "  * Qualité : %s\n", j.Quality)
		fmt.Fprintf(&b, "  * Confiance : %d/100\n", j.Confidence)
	}
	fmt.Fprintf(&b, "  * Actions : %s\n", strings.Join(actions, ", "))
	fmt.Fprintf(&b, "  * Justification : %s", oneLine(d.Justification))
	l.entries = append(l.entries, b.String())
}

func yesNo(v bool) string {
	if v {
		return "Oui"
	}
	return "Non"
}

// oneLine keeps a justification from breaking the template.
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", "{{!}}")
	return strings.ReplaceAll(s, "}}", "} }")
}

// resumeBlock renders the summary template appended to the log page.
func resumeBlock(bot, script string, start time.Time, duration time.Duration, edits int, others string) string {
	return fmt.Sprintf(`{{Utilisateur:%s/Resume
| script = %s
| date = %s
| heure = %s
| durée = %ds
| modifs = %d
| autres =
%s
}}`, bot, script, start.Format("02/01/2006"), start.Format("15:04:05"), int(duration.Round(time.Second)/time.Second), edits, others)
}

// reportTitle resolves the {year} placeholder of the log page.
func (o *Orchestrator) reportTitle(start time.Time) string {
	return strings.ReplaceAll(o.opts.ReportPage, "{year}", strconv.Itoa(start.Year()))
}

// publishReport appends the run summary to the wiki log page. It does not
// count against the edit budget and failures are only logged.
func (o *Orchestrator) publishReport(ctx context.Context, start time.Time, report RunReport, logger *slog.Logger) {
	if o.opts.DryRun || !o.opts.WikiReport || o.wiki == nil || len(o.log.entries) == 0 {
		return
	}
	title := o.reportTitle(start)
	block := "\n\n" + resumeBlock(o.opts.BotName, o.opts.Script, start, report.Duration, report.Edits, strings.Join(o.log.entries, "\n"))
	summary := fmt.Sprintf("%s : rapport %s (%d pages)", o.opts.BotName, o.opts.Script, len(o.log.entries))

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.SaveTimeout)
	defer cancel()
	if err := o.wiki.Append(saveCtx, title, block, summary); err != nil {
		logger.Warn("wiki report not saved", "page", title, "error", err)
		return
	}
	logger.Info("wiki report saved", "page", title, "entries", len(o.log.entries))
}
