package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/detector"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/maintenance"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/typo"
)

type savedEdit struct {
	title, text, summary string
}

type fakeWiki struct {
	mu        sync.Mutex
	pages     map[string]domain.PageSnapshot
	templates map[string]bool
	saves     []savedEdit
	appends   []savedEdit
	loginErr  error
	saveErr   error
	fetchErr  error
}

func newFakeWiki(pages ...domain.PageSnapshot) *fakeWiki {
	w := &fakeWiki{pages: map[string]domain.PageSnapshot{}, templates: map[string]bool{}}
	for _, p := range pages {
		w.pages[p.Title] = p
	}
	return w
}

func (w *fakeWiki) Login(context.Context) error { return w.loginErr }

func (w *fakeWiki) Fetch(_ context.Context, title string) (domain.PageSnapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fetchErr != nil {
		return domain.PageSnapshot{}, w.fetchErr
	}
	p, ok := w.pages[title]
	if !ok {
		return domain.PageSnapshot{}, ports.ErrNotFound
	}
	return p, nil
}

func (w *fakeWiki) Save(_ context.Context, title, text, summary string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.saveErr != nil {
		return w.saveErr
	}
	w.saves = append(w.saves, savedEdit{title: title, text: text, summary: summary})
	p := w.pages[title]
	p.Text = text
	w.pages[title] = p
	return nil
}

func (w *fakeWiki) Append(_ context.Context, title, text, summary string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.appends = append(w.appends, savedEdit{title: title, text: text, summary: summary})
	p := w.pages[title]
	p.Title = title
	p.Text += text
	p.LastEditor = "BotCélian"
	w.pages[title] = p
	return nil
}

func (w *fakeWiki) appendedTitles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var titles []string
	for _, a := range w.appends {
		titles = append(titles, a.title)
	}
	return titles
}

func (w *fakeWiki) Exists(_ context.Context, title string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.templates[title] {
		return true, nil
	}
	_, ok := w.pages[title]
	return ok, nil
}

func (w *fakeWiki) IsRedirect(_ context.Context, title string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pages[title]
	if !ok {
		return false, ports.ErrNotFound
	}
	return p.Redirect, nil
}

type fakeSource struct {
	candidates []domain.Candidate
	err        error
}

func (s fakeSource) RecentPages(context.Context) ([]domain.Candidate, error) {
	return s.candidates, s.err
}

type memProcessed struct {
	titles  map[string]bool
	marks   int
	flushes int
	err     error
}

func newMemProcessed(titles ...string) *memProcessed {
	p := &memProcessed{titles: map[string]bool{}}
	for _, t := range titles {
		p.titles[t] = true
	}
	return p
}

func (p *memProcessed) Processed(_ context.Context, titles []string) (map[string]bool, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := map[string]bool{}
	for _, t := range titles {
		if p.titles[t] {
			out[t] = true
		}
	}
	return out, nil
}

func (p *memProcessed) Mark(_ context.Context, title string) error {
	p.marks++
	p.titles[title] = true
	return nil
}

func (p *memProcessed) Flush(context.Context) error {
	p.flushes++
	return nil
}

type memCheckpoints struct {
	values map[string]string
}

func (c *memCheckpoints) Checkpoint(_ context.Context, key string) (string, bool, error) {
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memCheckpoints) SetCheckpoint(_ context.Context, key, value string) error {
	c.values[key] = value
	return nil
}

type memEvents struct {
	records []domain.EventRecord
	err     error
}

func (e *memEvents) Append(_ context.Context, rec domain.EventRecord) error {
	if e.err != nil {
		return e.err
	}
	e.records = append(e.records, rec)
	return nil
}

func (e *memEvents) Records(context.Context, string) ([]domain.EventRecord, error) {
	return e.records, nil
}

type sentAlert struct {
	level domain.AlertLevel
	title string
}

type recordingNotifier struct {
	decisions []domain.Decision
	alerts    []sentAlert
}

func (n *recordingNotifier) Notify(_ context.Context, d domain.Decision) error {
	n.decisions = append(n.decisions, d)
	return nil
}

func (n *recordingNotifier) Alert(_ context.Context, level domain.AlertLevel, title, _ string, _ map[string]string) error {
	n.alerts = append(n.alerts, sentAlert{level: level, title: title})
	return nil
}

func (n *recordingNotifier) alertTitles() []string {
	var titles []string
	for _, a := range n.alerts {
		titles = append(titles, a.title)
	}
	return titles
}

type stubDetector struct {
	name    string
	verdict *domain.Verdict
	err     error
	calls   int
}

func (d *stubDetector) Name() string { return d.name }

func (d *stubDetector) Evaluate(context.Context, *domain.PageSnapshot) (*domain.Verdict, error) {
	d.calls++
	return d.verdict, d.err
}

type fixture struct {
	wiki        *fakeWiki
	processed   *memProcessed
	checkpoints *memCheckpoints
	events      *memEvents
	notifier    *recordingNotifier
	now         time.Time
}

func newFixture(pages ...domain.PageSnapshot) *fixture {
	return &fixture{
		wiki:        newFakeWiki(pages...),
		processed:   newMemProcessed(),
		checkpoints: &memCheckpoints{values: map[string]string{}},
		events:      &memEvents{},
		notifier:    &recordingNotifier{},
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) orchestrator(opts Options, detectors ...detector.Detector) *Orchestrator {
	return NewOrchestrator(OrchestratorDeps{
		Wiki:        f.wiki,
		Source:      fakeSource{},
		Processed:   f.processed,
		Checkpoints: f.checkpoints,
		Events:      f.events,
		Notifier:    f.notifier,
		Detectors:   detectors,
		Heuristic:   maintenance.NewHeuristic(200),
		Typography:  typo.NewEngine(typo.Options{}),
		Templates:   f.wiki,
		Now:         func() time.Time { return f.now },
	}, opts)
}

// runOrchestrator is orchestrator with a candidate list for Run.
func (f *fixture) runOrchestrator(opts Options, candidates []domain.Candidate, detectors ...detector.Detector) *Orchestrator {
	return NewOrchestrator(OrchestratorDeps{
		Wiki:        f.wiki,
		Source:      fakeSource{candidates: candidates},
		Processed:   f.processed,
		Checkpoints: f.checkpoints,
		Events:      f.events,
		Notifier:    f.notifier,
		Detectors:   detectors,
		Heuristic:   maintenance.NewHeuristic(200),
		Typography:  typo.NewEngine(typo.Options{}),
		Templates:   f.wiki,
		Now:         func() time.Time { return f.now },
	}, opts)
}

func page(title, text string) domain.PageSnapshot {
	return domain.PageSnapshot{Title: title, Text: text}
}

const completeText = `{{Infobox Animal|image=Castor.jpg}}
Le [[castor]] est un [[rongeur]] qui vit près des [[rivière]]s.<ref>Source</ref>
{{Ébauche|Animaux}}
{{Portail|Animaux}}
[[Catégorie:Rongeur]]`

func deletionVerdict(detector string) *domain.Verdict {
	return &domain.Verdict{
		Detector:      detector,
		Kind:          domain.KindSensitive,
		Recommend:     domain.RecommendDeletion,
		Confidence:    100,
		Severity:      5,
		Justification: "insulte",
	}
}

func TestProcessComposesImprovementsInOneEdit(t *testing.T) {
	t.Parallel()

	f := newFixture(page("Castor", "Le castor dort ,il rêve."))
	o := f.orchestrator(Options{MaxEdits: 10})

	decision, err := o.Process(context.Background(), domain.Candidate{Title: "Castor"})
	require.NoError(t, err)

	assert.Equal(t, []domain.Action{domain.ActionFixTypography, domain.ActionAddMaintenance, domain.ActionAddStub}, decision.Actions)
	assert.Equal(t, decision.Actions, decision.Persisted)
	assert.Equal(t, []string{"catégoriser", "portail", "illustrer", "wikifier"}, decision.Problems)

	require.Len(t, f.wiki.saves, 1)
	assert.Equal(t,
		"{{Ébauche}}\n{{Maintenance|job=catégoriser,portail,illustrer,wikifier|date=2026-03-01}}\nLe castor dort, il rêve.",
		f.wiki.saves[0].text)
	assert.Contains(t, f.wiki.saves[0].summary, "Typo : ponct. basse")

	require.Len(t, f.events.records, 1)
	rec := f.events.records[0]
	assert.Equal(t, "Castor", rec.Page)
	assert.Equal(t, "moderation", rec.Script)
	assert.False(t, rec.Deletion)
	assert.Len(t, f.notifier.decisions, 1)
	assert.True(t, f.processed.titles["Castor"])
}

func TestProcessSamePageTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(page("Castor", "Le castor dort ,il rêve."))
	o := f.orchestrator(Options{MaxEdits: 10})
	ctx := context.Background()

	_, err := o.Process(ctx, domain.Candidate{Title: "Castor"})
	require.NoError(t, err)
	second, err := o.Process(ctx, domain.Candidate{Title: "Castor"})
	require.NoError(t, err)

	assert.Equal(t, []domain.Action{domain.ActionSkipped}, second.Actions)
	assert.Len(t, f.events.records, 1)
	assert.Len(t, f.wiki.saves, 1)
	assert.Equal(t, 1, f.processed.marks)
}

func TestProcessSkipsTitlesFromPreviousRuns(t *testing.T) {
	t.Parallel()

	f := newFixture(page("Castor", "Le castor dort ,il rêve."))
	f.processed = newMemProcessed("Castor")
	sensitive := &stubDetector{name: "sensitive"}

	decision, err := f.orchestrator(Options{MaxEdits: 10}, sensitive).Process(context.Background(), domain.Candidate{Title: "Castor"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Action{domain.ActionSkipped}, decision.Actions)
	assert.Zero(t, sensitive.calls)
	assert.Empty(t, f.events.records)
}

func TestProcessTerminalVerdictFlagsAndStopsChain(t *testing.T) {
	t.Parallel()

	f := newFixture(page("Insulte", "Un texte ,vulgaire."))
	first := &stubDetector{name: "sensitive", verdict: deletionVerdict("sensitive")}
	second := &stubDetector{name: "averto"}

	decision, err := f.orchestrator(Options{MaxEdits: 10, AutoDeletion: true}, first, second).
		Process(context.Background(), domain.Candidate{Title: "Insulte"})
	require.NoError(t, err)

	assert.Equal(t, []domain.Action{domain.ActionFlagDeletion}, decision.Actions)
	assert.Equal(t, []domain.Action{domain.ActionFlagDeletion}, decision.Persisted)
	assert.Zero(t, second.calls)

	require.Len(t, f.wiki.saves, 1)
	assert.Equal(t, "{{SI|insulte|BotCélian}}\nUn texte ,vulgaire.", f.wiki.saves[0].text)
	require.Len(t, f.events.records, 1)
	assert.True(t, f.events.records[0].Deletion)
	assert.Equal(t, 100, f.events.records[0].Confidence)
}

func TestProcessNeverDoubleFlags(t *testing.T) {
	t.Parallel()

	f := newFixture(page("Déjà", "{{SI|vandalisme|Admin}}\nTexte."))
	decision, err := f.orchestrator(Options{MaxEdits: 10, AutoDeletion: true}, &stubDetector{name: "sensitive", verdict: deletionVerdict("sensitive")}).
		Process(context.Background(), domain.Candidate{Title: "Déjà"})
	require.NoError(t, err)

	assert.True(t, decision.IsDeletion())
	assert.Empty(t, decision.Persisted)
	assert.Empty(t, f.wiki.saves)
}

func TestProcessAutoDeletionDisabledDowngradesToWarn(t *testing.T) {
	t.Parallel()

	f := newFixture(page("Insulte", "Un texte ,vulgaire."))
	decision, err := f.orchestrator(Options{MaxEdits: 10}, &stubDetector{name: "sensitive", verdict: deletionVerdict("sensitive")}).
		Process(context.Background(), domain.Candidate{Title: "Insulte"})
	require.NoError(t, err)

	assert.Equal(t, []domain.Action{domain.ActionWarn}, decision.Actions)
	assert.Equal(t, "insulte", decision.Justification)
	assert.Empty(t, f.wiki.saves)
	require.Len(t, f.notifier.decisions, 1)
}

func TestProcessDetectorErrorIsNoVerdict(t *testing.T) {
	t.Parallel()

	f := newFixture(page("Castor", completeText))
	broken := &stubDetector{name: "sensitive", err: errors.New("boom")}
	warn := &stubDetector{name: "averto", verdict: &domain.Verdict{
		Detector: "averto", Kind: domain.KindCopy, Recommend: domain.RecommendWarn, Confidence: 75, Severity: 3,
		Justification: "similaire à wikipedia",
	}}

	decision, err := f.orchestrator(Options{MaxEdits: 10}, broken, warn).
		Process(context.Background(), domain.Candidate{Title: "Castor"})
	require.NoError(t, err)

	assert.Equal(t, 1, warn.calls)
	assert.Equal(t, domain.ActionWarn, decision.Action())
	assert.Equal(t, domain.KindCopy, decision.Reason.Kind)
	assert.Equal(t, 75, f.events.records[0].Confidence)
}

func TestProcessDryRunNeverSaves(t *testing.T) {
	t.Parallel()

	f := newFixture(page("Castor", "Le castor dort ,il rêve."))
	decision, err := f.orchestrator(Options{MaxEdits: 10, DryRun: true}).
		Process(context.Background(), domain.Candidate{Title: "Castor"})
	require.NoError(t, err)

	assert.Contains(t, decision.Actions, domain.ActionAddStub)
	assert.Empty(t, decision.Persisted)
	assert.Empty(t, f.wiki.saves)
	assert.Len(t, f.events.records, 1)
}

func TestProcessEditBudget(t *testing.T) {
	t.Parallel()

	f := newFixture(
		page("A", "Premier texte ,court."),
		page("B", "Deuxième texte ,court."),
		page("C", "Troisième texte ,court."),
	)
	o := f.orchestrator(Options{MaxEdits: 1})
	ctx := context.Background()

	for _, title := range []string{"A", "B", "C"} {
		decision, err := o.Process(ctx, domain.Candidate{Title: title})
		require.NoError(t, err)
		assert.NotEmpty(t, decision.Actions)
	}

	assert.Len(t, f.wiki.saves, 1)
	assert.Len(t, f.events.records, 3)
	assert.Len(t, f.notifier.decisions, 3)
	assert.Equal(t, []string{"Budget d'éditions épuisé"}, f.notifier.alertTitles())
}

func TestProcessSkips(t *testing.T) {
	t.Parallel()

	redirect := page("Redirection", "#REDIRECTION [[Castor]]")
	redirect.Redirect = true
	f := newFixture(redirect, page("Chantier", "{{En travaux}}\nBrouillon ,court."))
	sensitive := &stubDetector{name: "sensitive"}
	o := f.orchestrator(Options{MaxEdits: 10}, sensitive)
	ctx := context.Background()

	for _, title := range []string{"Redirection", "Absente", "Chantier"} {
		decision, err := o.Process(ctx, domain.Candidate{Title: title})
		require.NoError(t, err)
		assert.Equal(t, []domain.Action{domain.ActionSkipped}, decision.Actions, title)
	}

	assert.Zero(t, sensitive.calls)
	assert.Empty(t, f.wiki.saves)
	require.Len(t, f.events.records, 1)
	assert.Equal(t, "Chantier", f.events.records[0].Page)
	assert.Equal(t, []domain.Action{domain.ActionSkipped}, f.events.records[0].Actions)
	assert.False(t, f.processed.titles["Chantier"])
}

func TestProcessAuthFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(page("Castor", "Le castor dort ,il rêve."))
	f.wiki.saveErr = ports.ErrAuth

	_, err := f.orchestrator(Options{MaxEdits: 10}).Process(context.Background(), domain.Candidate{Title: "Castor"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, ports.ErrAuth)
	assert.False(t, f.processed.titles["Castor"])
}

func TestProcessEventLogFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(page("Castor", completeText))
	f.events.err = errors.New("disk full")

	_, err := f.orchestrator(Options{MaxEdits: 10}).Process(context.Background(), domain.Candidate{Title: "Castor"})
	assert.ErrorIs(t, err, ErrFatal)
}

func TestRunProcessesCandidates(t *testing.T) {
	t.Parallel()

	f := newFixture(
		page("Castor", "Le castor dort ,il rêve."),
		page("Loutre", completeText),
		page("Insulte", "Texte."),
	)
	f.processed = newMemProcessed("Loutre")
	o := NewOrchestrator(OrchestratorDeps{
		Wiki: f.wiki,
		Source: fakeSource{candidates: []domain.Candidate{
			{Title: "Castor"}, {Title: "Loutre"}, {Title: "Insulte"}, {Title: "Absente"},
		}},
		Processed: f.processed,
		Events:    f.events,
		Notifier:  f.notifier,
		Detectors: []detector.Detector{&titleDetector{title: "Insulte"}},
		Templates: f.wiki,
		Now:       func() time.Time { return f.now },
	}, Options{MaxEdits: 10, AutoDeletion: true})

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Candidates)
	assert.Equal(t, 2, report.Decided)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.Deletions)
	assert.Equal(t, 2, report.Edits)
	assert.Equal(t, 1, f.processed.flushes)
	assert.NotEmpty(t, report.RunID)
	for _, rec := range f.events.records {
		assert.Equal(t, report.RunID, rec.RunID)
	}
}

func TestRunLoginFailureAborts(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.wiki.loginErr = ports.ErrAuth
	o := f.orchestrator(Options{})

	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrFatal)
	assert.Equal(t, 1, f.processed.flushes)
	require.NotEmpty(t, f.notifier.alerts)
	assert.Equal(t, domain.LevelCritical, f.notifier.alerts[0].level)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(page("Castor", completeText))
	o := NewOrchestrator(OrchestratorDeps{
		Wiki:      f.wiki,
		Source:    fakeSource{candidates: []domain.Candidate{{Title: "Castor"}}},
		Processed: f.processed,
		Events:    f.events,
	}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := o.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
	assert.Empty(t, f.events.records)
	assert.Equal(t, 1, f.processed.flushes)
}

type titleDetector struct {
	title string
}

func (d *titleDetector) Name() string { return "sensitive" }

func (d *titleDetector) Evaluate(_ context.Context, p *domain.PageSnapshot) (*domain.Verdict, error) {
	if p.Title != d.title {
		return nil, nil
	}
	return deletionVerdict("sensitive"), nil
}

type fakeDriver struct{}

func (fakeDriver) Start(_ context.Context, job func(time.Time)) error {
	job(time.Now())
	return nil
}

func (fakeDriver) Stop(context.Context) error { return nil }

func TestSchedulerReportsFatalRuns(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.wiki.loginErr = ports.ErrAuth
	s := NewScheduler(fakeDriver{}, f.orchestrator(Options{}), nil)

	require.NoError(t, s.Start(context.Background()))
	select {
	case err := <-s.Fatal():
		assert.ErrorIs(t, err, ports.ErrAuth)
	default:
		t.Fatal("expected a fatal error")
	}
	require.NoError(t, s.Stop(context.Background()))
}

func TestRunAppendsWikiReport(t *testing.T) {
	t.Parallel()

	f := newFixture(
		page("Castor", "Le castor dort ,il rêve."),
		page("Insulte", "Texte."),
		page("Loutre", completeText),
	)
	f.processed = newMemProcessed("Loutre")
	o := f.runOrchestrator(Options{MaxEdits: 10, AutoDeletion: true, WikiReport: true},
		[]domain.Candidate{{Title: "Castor"}, {Title: "Insulte"}, {Title: "Loutre"}},
		&titleDetector{title: "Insulte"})

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Edits)
	assert.Len(t, f.wiki.saves, 2, "the report does not use the edit budget")
	require.Equal(t, []string{"Utilisateur:BotCélian/Logs/2026"}, f.wiki.appendedTitles())

	text := f.wiki.appends[0].text
	for _, want := range []string{
		"{{Utilisateur:BotCélian/Resume",
		"| script = moderation",
		"| date = 01/03/2026",
		"| heure = 12:00:00",
		"| durée = 0s",
		"| modifs = 2",
		"* '''[[Castor]]'''",
		"* '''[[Insulte]]'''\n  * SI : Oui",
		"  * Actions : flag-deletion",
	} {
		assert.Contains(t, text, want)
	}
	assert.NotContains(t, text, "Loutre", "skipped pages are not reported")
	assert.Contains(t, f.wiki.appends[0].summary, "2 pages")
}

func TestRunReportPageTemplate(t *testing.T) {
	t.Parallel()

	f := newFixture(page("Castor", "Le castor dort ,il rêve."))
	o := f.runOrchestrator(Options{MaxEdits: 10, WikiReport: true, BotName: "Robot", ReportPage: "Projet:Bots/{year}/Journal"},
		[]domain.Candidate{{Title: "Castor"}})

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Projet:Bots/2026/Journal"}, f.wiki.appendedTitles())
	assert.Contains(t, f.wiki.appends[0].text, "{{Utilisateur:Robot/Resume")
}

func TestRunDryRunWritesNoReport(t *testing.T) {
	t.Parallel()

	f := newFixture(page("Castor", "Le castor dort ,il rêve."))
	o := f.runOrchestrator(Options{MaxEdits: 10, DryRun: true, WikiReport: true},
		[]domain.Candidate{{Title: "Castor"}})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Decided)
	assert.Empty(t, f.wiki.saves)
	assert.Empty(t, f.wiki.appends)
}

const stopPage = "Discussion utilisateur:BotCélian"

func talkPage(text, editor string) domain.PageSnapshot {
	return domain.PageSnapshot{Title: stopPage, Text: text, LastEditor: editor}
}

func TestRunEmergencyStop(t *testing.T) {
	t.Parallel()

	f := newFixture(
		page("Castor", "Le castor dort ,il rêve."),
		talkPage("Bonjour.\n== Arrêt ==\nStop !", "Alice"),
	)
	f.checkpoints.values["stop:"+stopPage] = pageFingerprint("Bonjour.")
	o := f.runOrchestrator(Options{MaxEdits: 10, WikiReport: true}, []domain.Candidate{{Title: "Castor"}})

	report, err := o.Run(context.Background())
	require.ErrorIs(t, err, ErrStopped)
	assert.Contains(t, err.Error(), "Alice")
	assert.True(t, report.Stopped)

	assert.Empty(t, f.wiki.saves)
	assert.Empty(t, f.events.records)
	assert.Equal(t, 1, f.processed.flushes)
	assert.Equal(t, pageFingerprint("Bonjour.\n== Arrêt ==\nStop !"), f.checkpoints.values["stop:"+stopPage])

	require.Equal(t, []string{stopPage, "Utilisateur:BotCélian/Logs/2026"}, f.wiki.appendedTitles())
	assert.Contains(t, f.wiki.appends[0].text, "{{ping|Alice}}")
	assert.Contains(t, f.wiki.appends[1].text, "| script = stop")

	assert.Equal(t, []string{"Arrêt d'urgence demandé"}, f.notifier.alertTitles())
	assert.Equal(t, domain.LevelCritical, f.notifier.alerts[0].level)

	// The reply is the bot's own edit: the next run moves the baseline and proceeds.
	report, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Decided)
	assert.Len(t, f.wiki.saves, 1)
}

func TestRunEmergencyStopDryRun(t *testing.T) {
	t.Parallel()

	f := newFixture(
		page("Castor", "Le castor dort ,il rêve."),
		talkPage("Stop !", "Alice"),
	)
	f.checkpoints.values["stop:"+stopPage] = pageFingerprint("")
	o := f.runOrchestrator(Options{MaxEdits: 10, DryRun: true}, []domain.Candidate{{Title: "Castor"}})

	_, err := o.Run(context.Background())
	require.ErrorIs(t, err, ErrStopped)
	assert.Empty(t, f.wiki.saves)
	assert.Empty(t, f.wiki.appends)
}

func TestRunFirstStopPageSightingIsBaseline(t *testing.T) {
	t.Parallel()

	f := newFixture(
		page("Castor", "Le castor dort ,il rêve."),
		talkPage("Bonjour.", "Alice"),
	)
	o := f.runOrchestrator(Options{MaxEdits: 10}, []domain.Candidate{{Title: "Castor"}})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Decided)
	assert.Equal(t, pageFingerprint("Bonjour."), f.checkpoints.values["stop:"+stopPage])
	assert.Empty(t, f.notifier.alerts)
}

func TestRunIgnoresOwnTalkPageEdits(t *testing.T) {
	t.Parallel()

	f := newFixture(
		page("Castor", "Le castor dort ,il rêve."),
		talkPage("Bonjour.\nRéponse du bot.", "BotCélian"),
	)
	f.checkpoints.values["stop:"+stopPage] = pageFingerprint("Bonjour.")
	o := f.runOrchestrator(Options{MaxEdits: 10}, []domain.Candidate{{Title: "Castor"}})

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.wiki.saves, 1)
	assert.Equal(t, pageFingerprint("Bonjour.\nRéponse du bot."), f.checkpoints.values["stop:"+stopPage])
}

func TestSchedulerReportsEmergencyStop(t *testing.T) {
	t.Parallel()

	f := newFixture(talkPage("Stop !", "Alice"))
	f.checkpoints.values["stop:"+stopPage] = pageFingerprint("")
	s := NewScheduler(fakeDriver{}, f.orchestrator(Options{DryRun: true}), nil)

	require.NoError(t, s.Start(context.Background()))
	select {
	case err := <-s.Fatal():
		assert.ErrorIs(t, err, ErrStopped)
	default:
		t.Fatal("expected the stop to end watch mode")
	}
}
