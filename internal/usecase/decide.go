package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/maintenance"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/metrics"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/typo"
)

// Process decides about one page outside of a full run. Titles already in
// the processed set are skipped.
func (o *Orchestrator) Process(ctx context.Context, candidate domain.Candidate) (domain.Decision, error) {
	if o.processed != nil && !o.seen[candidate.Title] {
		done, err := o.processed.Processed(ctx, []string{candidate.Title})
		if err != nil {
			return domain.Decision{}, fmt.Errorf("%w: load processed set: %w", ErrFatal, err)
		}
		if done[candidate.Title] {
			o.seen[candidate.Title] = true
		}
	}
	return o.process(ctx, candidate)
}

func (o *Orchestrator) process(ctx context.Context, candidate domain.Candidate) (domain.Decision, error) {
	title := candidate.Title
	logger := o.logger.With("page", title, "run_id", o.runID)

	if o.seen[title] {
		return o.skip(title, "already processed"), nil
	}

	redirect, err := o.wiki.IsRedirect(ctx, title)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		o.seen[title] = true
		return o.skip(title, "page missing"), nil
	case err != nil:
		return domain.Decision{}, o.classify(fmt.Errorf("check redirect: %w", err))
	case redirect:
		o.seen[title] = true
		return o.skip(title, "redirect"), nil
	}

	page, err := o.wiki.Fetch(ctx, title)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		o.seen[title] = true
		return o.skip(title, "page missing"), nil
	case err != nil:
		return domain.Decision{}, o.classify(fmt.Errorf("fetch page: %w", err))
	}
	if page.Creator == "" {
		page.Creator = candidate.Creator
	}

	if maintenance.InProgress(page.Text) {
		o.seen[title] = true
		decision := o.skip(title, "work in progress")
		if err := o.record(ctx, decision); err != nil {
			return decision, err
		}
		return decision, nil
	}

	decision := domain.Decision{Page: title, DecidedAt: o.now().UTC()}
	terminal, warn := o.evaluate(ctx, &page, &decision, logger)
	if err := ctx.Err(); err != nil {
		return decision, fmt.Errorf("evaluate page: %w", err)
	}

	// Once detectors are done the decision is applied and recorded even if
	// the run is interrupted, so the page is never half handled.
	finishCtx := context.WithoutCancel(ctx)

	switch {
	case terminal != nil && o.opts.AutoDeletion:
		decision.Flag(terminal)
		if err := o.flagDeletion(finishCtx, page, &decision, logger); err != nil {
			return decision, err
		}
	case terminal != nil:
		decision.Reason = terminal
		decision.Justification = terminal.Justification
		decision.Add(domain.ActionWarn)
		logger.Info("deletion downgraded to warning", "kind", terminal.Kind, "detector", terminal.Detector)
	default:
		if warn != nil {
			decision.Reason = warn
			decision.Justification = warn.Justification
			decision.Add(domain.ActionWarn)
		}
		if err := o.improve(finishCtx, page, &decision, logger); err != nil {
			return decision, err
		}
	}

	if err := o.record(finishCtx, decision); err != nil {
		return decision, err
	}
	o.notify(finishCtx, decision, logger)

	if o.processed != nil {
		if err := o.processed.Mark(finishCtx, title); err != nil {
			return decision, fmt.Errorf("%w: mark processed: %w", ErrFatal, err)
		}
	}
	o.seen[title] = true

	metrics.PagesProcessed.WithLabelValues("decided").Inc()
	for _, a := range decision.Actions {
		metrics.ActionsTaken.WithLabelValues(string(a), strconv.FormatBool(slices.Contains(decision.Persisted, a))).Inc()
	}
	logger.Info("page decided",
		"action", decision.Action(),
		"actions", decision.Actions,
		"persisted", decision.Persisted,
		"problems", decision.Problems,
	)
	return decision, nil
}

// evaluate runs the detector chain in order. It stops at the first terminal
// verdict and otherwise returns the first warning. Detector failures are
// logged and count as no verdict.
func (o *Orchestrator) evaluate(ctx context.Context, page *domain.PageSnapshot, decision *domain.Decision, logger *slog.Logger) (terminal, warn *domain.Verdict) {
	for _, d := range o.detectors {
		if ctx.Err() != nil {
			return nil, nil
		}
		verdict, err := d.Evaluate(ctx, page)
		if err != nil {
			metrics.DetectorErrors.WithLabelValues(d.Name()).Inc()
			logger.Warn("detector failed", "detector", d.Name(), "error", err)
			continue
		}
		if verdict == nil {
			continue
		}
		metrics.DetectorVerdicts.WithLabelValues(d.Name(), string(verdict.Recommend)).Inc()
		if verdict.Judgment != nil {
			decision.Judgment = verdict.Judgment
		}
		logger.Debug("detector verdict",
			"detector", d.Name(),
			"kind", verdict.Kind,
			"recommend", verdict.Recommend,
			"confidence", verdict.Confidence,
			"severity", verdict.Severity,
		)

		switch {
		case verdict.Terminal():
			return verdict, nil
		case verdict.Recommend == domain.RecommendWarn && warn == nil:
			warn = verdict
		}
	}
	return nil, warn
}

func (o *Orchestrator) flagDeletion(ctx context.Context, page domain.PageSnapshot, decision *domain.Decision, logger *slog.Logger) error {
	text, changed := maintenance.AddDeletion(page.Text, decision.Justification, o.opts.BotName)
	if !changed {
		logger.Info("deletion marker already present")
		return nil
	}
	summary := "Demande de suppression immédiate"
	if decision.Justification != "" {
		summary += " : " + decision.Justification
	}
	return o.save(ctx, page.Title, text, summary, decision, []domain.Action{domain.ActionFlagDeletion}, logger)
}

// improve composes typography, maintenance and stub changes into a single write.
func (o *Orchestrator) improve(ctx context.Context, page domain.PageSnapshot, decision *domain.Decision, logger *slog.Logger) error {
	text := page.Text
	var summaries []string
	var applied []domain.Action

	if o.typography != nil {
		result := o.typography.Apply(text)
		switch {
		case !result.Accepted:
			metrics.MutationsRejected.WithLabelValues(result.Reason).Inc()
			logger.Warn("typography fix discarded", "reason", result.Reason)
		case result.Changed():
			text = result.Text()
			decision.Add(domain.ActionFixTypography)
			applied = append(applied, domain.ActionFixTypography)
			summaries = append(summaries, typo.Summary(result.Fixes))
		}
	}

	decision.Problems = maintenance.DetectProblems(text)
	if next, ok := maintenance.AddMaintenance(text, decision.Problems, o.now()); ok {
		text = next
		decision.Add(domain.ActionAddMaintenance)
		applied = append(applied, domain.ActionAddMaintenance)
		summaries = append(summaries, "Maintenance : "+strings.Join(decision.Problems, ", "))
	}

	stub := o.heuristic.NeedsStub(text, decision.Judgment)
	logger.Debug("stub heuristic", "needed", stub.Needed, "words", stub.Words, "reason", stub.Reason)
	if stub.Needed {
		portals := maintenance.FilterPortals(ctx, o.templates, stub.Portals, logger)
		if next, ok := maintenance.AddStub(text, portals); ok {
			text = next
			decision.Add(domain.ActionAddStub)
			applied = append(applied, domain.ActionAddStub)
			summaries = append(summaries, "Ébauche ("+stub.Reason+")")
		}
	}
	if decision.Justification == "" && len(summaries) > 0 {
		decision.Justification = strings.Join(summaries, " ; ")
	}

	if len(applied) == 0 || text == page.Text {
		return nil
	}
	return o.save(ctx, page.Title, text, "Bot : "+strings.Join(summaries, " ; "), decision, applied, logger)
}

// save persists one action group, honoring dry-run and the edit budget.
func (o *Orchestrator) save(ctx context.Context, title, text, summary string, decision *domain.Decision, actions []domain.Action, logger *slog.Logger) error {
	if o.opts.DryRun {
		logger.Info("dry run, not saving", "actions", actions, "summary", summary)
		return nil
	}
	if o.remaining <= 0 {
		if !o.budgetAlerted {
			o.budgetAlerted = true
			logger.Warn("edit budget exhausted, further changes are not saved", "max_edits", o.opts.MaxEdits)
			o.alert(ctx, domain.LevelWarning, "Budget d'éditions épuisé",
				fmt.Sprintf("Limite de %d modifications atteinte, les décisions suivantes ne sont plus enregistrées.", o.opts.MaxEdits),
				map[string]string{"run": o.runID})
		}
		return nil
	}

	saveCtx, cancel := context.WithTimeout(ctx, o.opts.SaveTimeout)
	defer cancel()
	if err := o.wiki.Save(saveCtx, title, text, summary); err != nil {
		if errors.Is(err, ports.ErrAuth) {
			return fmt.Errorf("%w: save page: %w", ErrFatal, err)
		}
		logger.Error("save failed", "actions", actions, "error", err)
		return nil
	}

	o.remaining--
	metrics.EditsRemaining.Set(float64(o.remaining))
	for _, a := range actions {
		decision.MarkPersisted(a)
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, decision domain.Decision) error {
	if o.events == nil {
		return nil
	}
	if err := o.events.Append(ctx, o.eventRecord(decision)); err != nil {
		return fmt.Errorf("%w: append event: %w", ErrFatal, err)
	}
	return nil
}

func (o *Orchestrator) eventRecord(decision domain.Decision) domain.EventRecord {
	actions := decision.Actions
	if len(actions) == 0 {
		actions = []domain.Action{domain.ActionNone}
	}
	rec := domain.EventRecord{
		Timestamp: o.now().UTC(),
		RunID:     o.runID,
		Script:    o.opts.Script,
		Page:      decision.Page,
		Actions:   actions,
		Deletion:  decision.IsDeletion(),
		Problems:  decision.Problems,
		Summary:   decision.Justification,
	}
	if rec.Problems == nil {
		rec.Problems = []string{}
	}
	if j := decision.Judgment; j != nil && !j.Fallback {
		rec.Quality = j.Quality
		rec.Confidence = j.Confidence
	}
	if decision.Reason != nil {
		rec.Confidence = decision.Reason.Confidence
	}
	return rec
}

func (o *Orchestrator) notify(ctx context.Context, decision domain.Decision, logger *slog.Logger) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, decision); err != nil {
		logger.Warn("notification failed", "error", err)
	}
}

func (o *Orchestrator) skip(title, reason string) domain.Decision {
	o.skipLog(title, reason)
	metrics.PagesProcessed.WithLabelValues("skipped").Inc()
	return domain.Decision{
		Page:          title,
		Actions:       []domain.Action{domain.ActionSkipped},
		Justification: reason,
		DecidedAt:     o.now().UTC(),
	}
}

func (o *Orchestrator) skipLog(title, reason string) {
	o.logger.Info("page skipped", "page", title, "run_id", o.runID, "reason", reason)
}

// classify promotes authentication failures to fatal errors.
func (o *Orchestrator) classify(err error) error {
	if errors.Is(err, ports.ErrAuth) {
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}
	return err
}
