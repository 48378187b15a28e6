package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/detector"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/maintenance"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/metrics"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/typo"
)

// ErrFatal marks failures of shared infrastructure that abort the run.
var ErrFatal = errors.New("fatal run error")

// Options tunes the orchestrator.
type Options struct {
	DryRun           bool
	AutoDeletion     bool
	MaxEdits         int
	BotName          string
	Script           string
	LongRunThreshold time.Duration
	SaveTimeout      time.Duration
	// WikiReport appends a summary of each run to ReportPage, where {year}
	// stands for the year the run started.
	WikiReport bool
	ReportPage string
	// StopPage is watched for emergency stop requests.
	StopPage string
}

func (o Options) withDefaults() Options {
	if o.BotName == "" {
		o.BotName = "BotCélian"
	}
	if o.Script == "" {
		o.Script = "moderation"
	}
	if o.LongRunThreshold <= 0 {
		o.LongRunThreshold = 10 * time.Minute
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = 30 * time.Second
	}
	if o.ReportPage == "" {
		o.ReportPage = "Utilisateur:" + o.BotName + "/Logs/{year}"
	}
	if o.StopPage == "" {
		o.StopPage = "Discussion utilisateur:" + o.BotName
	}
	if o.MaxEdits < 0 {
		o.MaxEdits = 0
	}
	return o
}

// OrchestratorDeps wires the detectors and driven adapters into the orchestrator.
type OrchestratorDeps struct {
	Wiki        ports.Wiki
	Source      ports.PageSource
	Processed   ports.ProcessedSet
	Checkpoints ports.Checkpoints
	Events      ports.EventLog
	Notifier    ports.Notifier
	Detectors   []detector.Detector
	Heuristic   *maintenance.Heuristic
	Typography  *typo.Engine
	Templates   maintenance.TemplateChecker
	Logger      *slog.Logger
	Now         func() time.Time
}

// Orchestrator turns each candidate page into one decision. It owns the
// edit budget and the run-local bookkeeping; it is not safe for
// concurrent use.
type Orchestrator struct {
	wiki        ports.Wiki
	source      ports.PageSource
	processed   ports.ProcessedSet
	checkpoints ports.Checkpoints
	events      ports.EventLog
	notifier    ports.Notifier
	detectors   []detector.Detector
	heuristic   *maintenance.Heuristic
	typography  *typo.Engine
	templates   maintenance.TemplateChecker
	logger      *slog.Logger
	now         func() time.Time
	opts        Options

	runID         string
	remaining     int
	budgetAlerted bool
	seen          map[string]bool
	log           runLog
}

// NewOrchestrator constructs the decision pipeline.
func NewOrchestrator(deps OrchestratorDeps, opts Options) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	heuristic := deps.Heuristic
	if heuristic == nil {
		heuristic = maintenance.NewHeuristic(0)
	}
	o := &Orchestrator{
		wiki:        deps.Wiki,
		source:      deps.Source,
		processed:   deps.Processed,
		checkpoints: deps.Checkpoints,
		events:      deps.Events,
		notifier:    deps.Notifier,
		detectors:   deps.Detectors,
		heuristic:   heuristic,
		typography:  deps.Typography,
		templates:   deps.Templates,
		logger:      logger,
		now:         now,
		opts:        opts.withDefaults(),
	}
	o.reset()
	return o
}

func (o *Orchestrator) reset() {
	o.runID = uuid.NewString()
	o.remaining = o.opts.MaxEdits
	o.budgetAlerted = false
	o.seen = map[string]bool{}
	o.log.reset()
	metrics.EditsRemaining.Set(float64(o.remaining))
}

// RunReport sums up one run.
type RunReport struct {
	RunID       string
	Candidates  int
	Decided     int
	Skipped     int
	Failed      int
	Edits       int
	Deletions   int
	Interrupted bool
	Stopped     bool
	Duration    time.Duration
}

// Run authenticates, honors a pending emergency stop, lists new pages and
// processes them one by one. The processed set is flushed on every exit
// path and a summary is appended to the wiki log page. Only errors wrapping
// ErrFatal or ErrStopped, or a failure to list pages, are returned.
func (o *Orchestrator) Run(ctx context.Context) (report RunReport, err error) {
	o.reset()
	start := o.now()
	report.RunID = o.runID
	logger := o.logger.With("run_id", o.runID)

	defer func() {
		report.Duration = o.now().Sub(start)
		report.Edits = o.opts.MaxEdits - o.remaining
		if flushErr := o.flush(ctx); flushErr != nil {
			err = errors.Join(err, flushErr)
		}
		report.Stopped = errors.Is(err, ErrStopped)
		if err != nil && !report.Stopped {
			o.alert(ctx, domain.LevelCritical, "Exécution interrompue", err.Error(), map[string]string{"run": o.runID})
		}
		if report.Duration > o.opts.LongRunThreshold {
			o.alert(ctx, domain.LevelWarning, "Exécution longue",
				fmt.Sprintf("La passe a duré %s.", report.Duration.Round(time.Second)),
				map[string]string{"run": o.runID, "pages": strconv.Itoa(report.Candidates)})
		}
		o.publishReport(ctx, start, report, logger)
		logger.Info("run finished",
			"candidates", report.Candidates,
			"decided", report.Decided,
			"skipped", report.Skipped,
			"failed", report.Failed,
			"edits", report.Edits,
			"deletions", report.Deletions,
			"interrupted", report.Interrupted,
			"stopped", report.Stopped,
			"dry_run", o.opts.DryRun,
			"duration", report.Duration.Round(time.Millisecond),
		)
	}()

	if o.wiki == nil || o.source == nil {
		return report, nil
	}

	if err := o.wiki.Login(ctx); err != nil {
		return report, fmt.Errorf("%w: login: %w", ErrFatal, err)
	}
	if err := o.checkStop(ctx, start, logger); err != nil {
		return report, err
	}

	candidates, err := o.source.RecentPages(ctx)
	if err != nil {
		return report, fmt.Errorf("list recent pages: %w", err)
	}
	report.Candidates = len(candidates)

	done := map[string]bool{}
	if o.processed != nil && len(candidates) > 0 {
		titles := make([]string, len(candidates))
		for i, c := range candidates {
			titles[i] = c.Title
		}
		done, err = o.processed.Processed(ctx, titles)
		if err != nil {
			return report, fmt.Errorf("%w: load processed set: %w", ErrFatal, err)
		}
	}
	logger.Info("run started", "candidates", len(candidates), "already_processed", len(done), "edit_budget", o.remaining)

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			report.Interrupted = true
			logger.Warn("run interrupted", "error", ctx.Err())
			break
		}
		if done[candidate.Title] {
			report.Skipped++
			o.skip(candidate.Title, "already processed")
			continue
		}

		decision, pErr := o.process(ctx, candidate)
		switch {
		case errors.Is(pErr, ErrFatal):
			report.Failed++
			return report, pErr
		case pErr != nil && ctx.Err() != nil:
			report.Interrupted = true
			logger.Warn("page abandoned on interrupt", "page", candidate.Title, "error", pErr)
		case pErr != nil:
			report.Failed++
			metrics.PagesProcessed.WithLabelValues("failed").Inc()
			logger.Error("page failed", "page", candidate.Title, "error", pErr)
			o.alert(ctx, domain.LevelError, "Erreur sur une page", pErr.Error(), map[string]string{"page": candidate.Title})
		case decision.Has(domain.ActionSkipped):
			report.Skipped++
		default:
			report.Decided++
			o.log.add(decision)
			if decision.IsDeletion() {
				report.Deletions++
			}
		}
	}
	return report, nil
}

func (o *Orchestrator) flush(ctx context.Context) error {
	if o.processed == nil {
		return nil
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.SaveTimeout)
	defer cancel()
	if err := o.processed.Flush(flushCtx); err != nil {
		return fmt.Errorf("%w: flush processed set: %w", ErrFatal, err)
	}
	return nil
}

func (o *Orchestrator) alert(ctx context.Context, level domain.AlertLevel, title, message string, fields map[string]string) {
	if o.notifier == nil {
		return
	}
	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.SaveTimeout)
	defer cancel()
	if err := o.notifier.Alert(alertCtx, level, title, message, fields); err != nil {
		o.logger.Warn("alert delivery failed", "title", title, "error", err)
	}
}
