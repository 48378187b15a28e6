package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/infrastructure/cooldown"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

type recordingChannel struct {
	name string
	err  error

	mu     sync.Mutex
	alerts []domain.Alert
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(_ context.Context, alert domain.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return c.err
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

type filteredChannel struct {
	*recordingChannel
}

func (c filteredChannel) Accepts(alert domain.Alert) bool {
	return alert.Priority >= domain.PriorityHigh
}

type fixture struct {
	svc      *Service
	channel  *recordingChannel
	fallback *recordingChannel
	now      *time.Time
}

func newFixture(extra ...*recordingChannel) fixture {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	channel := &recordingChannel{name: "discord"}
	fallback := &recordingChannel{name: "fallback"}
	channels := []ports.AlertChannel{channel}
	for _, ch := range extra {
		channels = append(channels, ch)
	}
	svc := New(Deps{
		Channels:  channels,
		Fallback:  fallback,
		Cooldowns: cooldown.NewMemoryStore(100, time.Hour).WithClock(clock),
		Now:       clock,
	}, Options{})
	return fixture{svc: svc, channel: channel, fallback: fallback, now: &now}
}

func deletion(page string) domain.Decision {
	d := domain.Decision{Page: page}
	d.Flag(&domain.Verdict{
		Detector:      "sensitive",
		Kind:          domain.KindSensitive,
		Recommend:     domain.RecommendDeletion,
		Confidence:    100,
		Severity:      5,
		Justification: "Terme sensible (insultes)",
	})
	return d
}

func TestNotifyPageCooldown(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.Notify(ctx, deletion("Castor")))
	require.NoError(t, f.svc.Notify(ctx, deletion("Castor")))
	assert.Equal(t, 1, f.channel.count(), "second decision is inside the page window")

	*f.now = f.now.Add(6 * time.Minute)
	require.NoError(t, f.svc.Notify(ctx, deletion("Castor")))
	assert.Equal(t, 2, f.channel.count(), "window has expired")
	assert.Equal(t, 2, f.fallback.count())
}

func TestNotifyIneligibleDecision(t *testing.T) {
	t.Parallel()

	f := newFixture()
	require.NoError(t, f.svc.Notify(context.Background(), domain.Decision{Page: "Castor"}))
	require.NoError(t, f.svc.Notify(context.Background(), domain.Decision{Page: "Castor", Actions: []domain.Action{domain.ActionSkipped}}))
	assert.Zero(t, f.channel.count())
	assert.Zero(t, f.fallback.count())
}

func TestNotifyChannelFailureIsIndependent(t *testing.T) {
	t.Parallel()

	broken := &recordingChannel{name: "ntfy", err: errors.New("503")}
	f := newFixture(broken)

	err := f.svc.Notify(context.Background(), deletion("Castor"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send ntfy")
	assert.Equal(t, 1, broken.count())
	assert.Equal(t, 1, f.channel.count())
	assert.Equal(t, 1, f.fallback.count(), "fallback is always written")
}

func TestNotifyRespectsFilters(t *testing.T) {
	t.Parallel()

	pushover := &recordingChannel{name: "pushover"}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := New(Deps{
		Channels: []ports.AlertChannel{filteredChannel{pushover}},
		Now:      func() time.Time { return now },
	}, Options{})

	warn := domain.Decision{Page: "Loutre", Actions: []domain.Action{domain.ActionWarn}}
	require.NoError(t, svc.Notify(context.Background(), warn))
	assert.Zero(t, pushover.count())

	require.NoError(t, svc.Notify(context.Background(), deletion("Loutre")))
	assert.Equal(t, 1, pushover.count())
}

func TestAlertMessageCooldown(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.Alert(ctx, domain.LevelError, "Erreur", "boom", map[string]string{"page": "A"}))
	require.NoError(t, f.svc.Alert(ctx, domain.LevelError, "Erreur", "boom", map[string]string{"page": "A"}))
	require.NoError(t, f.svc.Alert(ctx, domain.LevelError, "Erreur", "boom", map[string]string{"page": "B"}))
	assert.Equal(t, 2, f.channel.count())

	alert := f.channel.alerts[0]
	assert.Equal(t, domain.PriorityHigh, alert.Priority)
	assert.Equal(t, domain.CategoryOperational, alert.Category)
	assert.Equal(t, "boom\n\npage: A", alert.Body)

	*f.now = f.now.Add(2 * time.Minute)
	require.NoError(t, f.svc.Alert(ctx, domain.LevelError, "Erreur", "boom", map[string]string{"page": "A"}))
	assert.Equal(t, 3, f.channel.count())
}

func TestPriority(t *testing.T) {
	t.Parallel()

	low := domain.Decision{Page: "A"}
	low.Flag(&domain.Verdict{Severity: 1})
	assert.Equal(t, domain.PriorityDefault, Priority(low))
	assert.Equal(t, domain.PriorityMax, Priority(deletion("A")))
	assert.Equal(t, domain.PriorityLow, Priority(domain.Decision{Actions: []domain.Action{domain.ActionWarn}}))
	assert.Equal(t, domain.PriorityMin, Priority(domain.Decision{Actions: []domain.Action{domain.ActionAddStub}}))
}

func TestDecisionAlert(t *testing.T) {
	t.Parallel()

	d := deletion("Le Castor")
	d.MarkPersisted(domain.ActionFlagDeletion)
	alert := DecisionAlert(d, "https://fr.vikidia.org", time.Now())

	assert.Equal(t, domain.CategoryDeletion, alert.Category)
	assert.Equal(t, "SI détecté : Le Castor", alert.Title)
	assert.Equal(t, "https://fr.vikidia.org/wiki/Le_Castor", alert.Link)
	assert.Equal(t, "https://fr.vikidia.org/w/index.php?diff=cur&oldid=prev&title=Le_Castor", alert.DiffLink)
	assert.Equal(t, "contenu sensible", alert.Fields["Raison"])
	assert.Equal(t, "⭐⭐⭐⭐⭐", alert.Fields["Gravité"])
	assert.Contains(t, alert.Body, "Détails : Terme sensible (insultes)")
	assert.NotContains(t, alert.Body, "aucune modification")
}
