package usecase

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
)

func statRecord(page, run string, day int, conf int, quality domain.Quality, actions ...domain.Action) domain.EventRecord {
	return domain.EventRecord{
		Timestamp:  time.Date(2026, 3, day, 10, 0, 0, 0, time.UTC),
		RunID:      run,
		Script:     "moderation",
		Page:       page,
		Actions:    actions,
		Deletion:   len(actions) == 1 && actions[0] == domain.ActionFlagDeletion,
		Confidence: conf,
		Quality:    quality,
		Problems:   []string{"sourcer"},
	}
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	records := []domain.EventRecord{
		statRecord("Castor", "r1", 1, 80, domain.QualityGood, domain.ActionAddStub, domain.ActionFixTypography),
		statRecord("Castor", "r2", 2, 0, "", domain.ActionSkipped),
		statRecord("Insulte", "r2", 2, 100, domain.QualityPoor, domain.ActionFlagDeletion),
		statRecord("Loutre", "r2", 3, 60, domain.QualityMedium, domain.ActionAddStub),
	}

	r := Aggregate("2026-03", records, 2)

	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 3, r.UniquePages)
	assert.Equal(t, 2, r.Runs)
	assert.Equal(t, 1, r.Deletions)
	assert.Equal(t, 25.0, r.DeletionRate)
	assert.Equal(t, 80.0, r.MeanConfidence)
	assert.Equal(t, map[string]int{"add-stub": 2, "fix-typography": 1, "skipped": 1, "flag-deletion": 1}, r.Actions)
	assert.Equal(t, map[string]int{"good": 1, "poor": 1, "medium": 1, "inconnue": 1}, r.Quality)
	assert.Equal(t, map[string]int{"sourcer": 4}, r.Problems)

	require.Len(t, r.TopPages, 2)
	assert.Equal(t, "Castor", r.TopPages[0].Page)
	assert.Equal(t, 2, r.TopPages[0].Count)
	assert.Equal(t, []domain.Action{domain.ActionAddStub, domain.ActionFixTypography, domain.ActionSkipped}, r.TopPages[0].Actions)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), r.TopPages[0].LastEvent)
	assert.Equal(t, "Insulte", r.TopPages[1].Page)
}

func TestAggregateEmpty(t *testing.T) {
	t.Parallel()

	r := Aggregate("2026-03", nil, 10)
	assert.Zero(t, r.Total)
	assert.Zero(t, r.DeletionRate)
	assert.Empty(t, r.TopPages)
}

func TestStatsReport(t *testing.T) {
	t.Parallel()

	events := &memEvents{records: []domain.EventRecord{
		statRecord("Castor", "r1", 1, 80, domain.QualityGood, domain.ActionAddStub),
	}}
	stats := NewStats(events)

	_, err := stats.Report(context.Background(), "mars", 10)
	assert.Error(t, err)

	r, err := stats.Report(context.Background(), "2026-03", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Total)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r))
	assert.Contains(t, buf.String(), "Pages uniques")
	assert.Contains(t, buf.String(), "add-stub")
	assert.Contains(t, buf.String(), "Castor")
}
