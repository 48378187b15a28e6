package averto

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

const beaver = "le castor est un rongeur semi aquatique qui vit pres des rivieres et construit des barrages avec des branches et de la boue pour se proteger des predateurs"

type fakeCorpus struct {
	name    string
	extract string
	err     error
	calls   int
}

func (f *fakeCorpus) Name() string { return f.name }

func (f *fakeCorpus) Extract(context.Context, string) (string, error) {
	f.calls++
	return f.extract, f.err
}

func TestDetectNearIdenticalCopy(t *testing.T) {
	t.Parallel()

	det := New([]ports.ReferenceCorpus{
		&fakeCorpus{name: "wikipedia", extract: beaver},
		&fakeCorpus{name: "wikimini", err: ports.ErrNotFound},
	}, Options{}, nil)

	verdict := det.Detect(context.Background(), "Castor", "Le '''castor''' est un [[rongeur]] semi aquatique qui vit pres des rivieres et construit des barrages avec des branches et de la boue pour se proteger des predateurs", "")
	require.NotNil(t, verdict)
	assert.Equal(t, domain.KindCopy, verdict.Kind)
	assert.Equal(t, domain.RecommendDeletion, verdict.Recommend)
	assert.Equal(t, 5, verdict.Severity)
	assert.Equal(t, 100, verdict.Confidence)
	assert.Contains(t, verdict.Justification, "wikipedia")
	assert.Empty(t, det.FetchErrors(), "a missing page is not an error")
}

func TestDetectPartialCopyWarns(t *testing.T) {
	t.Parallel()

	det := New([]ports.ReferenceCorpus{
		&fakeCorpus{name: "wikimini", extract: beaver + " il est actif surtout la nuit et se nourrit d ecorce tendre"},
	}, Options{}, nil)

	verdict := det.Detect(context.Background(), "Castor", beaver, "")
	require.NotNil(t, verdict)
	assert.Equal(t, domain.RecommendWarn, verdict.Recommend)
	assert.Equal(t, 84, verdict.Confidence)
}

func TestDetectSourceFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	broken := &fakeCorpus{name: "wikipedia", err: errors.New("connection reset")}
	working := &fakeCorpus{name: "wikimini", extract: beaver}
	det := New([]ports.ReferenceCorpus{broken, working}, Options{}, nil)

	verdict := det.Detect(context.Background(), "Castor", beaver, "")
	require.NotNil(t, verdict)
	assert.Equal(t, domain.RecommendDeletion, verdict.Recommend)
	assert.Equal(t, 1, working.calls)
	assert.Equal(t, map[string]int{"wikipedia": 1}, det.FetchErrors())
}

func TestDetectShortTextIsIgnored(t *testing.T) {
	t.Parallel()

	source := &fakeCorpus{name: "wikipedia", extract: "texte court"}
	det := New([]ports.ReferenceCorpus{source}, Options{}, nil)

	assert.Nil(t, det.Detect(context.Background(), "Court", "texte court", ""))
	assert.Zero(t, source.calls)
}

func TestDetectLengthCountsMarkup(t *testing.T) {
	t.Parallel()

	det := New(nil, Options{}, nil)
	text := "{{Infobox Entreprise|nom=Durand|activité=plomberie|siège=Lyon|fondation=1998|effectif=12}}\n" +
		"Contactez-nous sur www.durand.fr"

	verdict := det.Detect(context.Background(), "Durand", text, "")
	require.NotNil(t, verdict, "templates count toward the minimum length")
	assert.Equal(t, domain.KindPromo, verdict.Kind)
	assert.Equal(t, domain.RecommendWarn, verdict.Recommend)
}

func TestDetectPromotion(t *testing.T) {
	t.Parallel()

	det := New(nil, Options{}, nil)
	text := "Durand Plomberie est le meilleur artisan de la region. Nos services sont disponibles " +
		"tous les jours, contactez-nous pour un devis gratuit sur www.durand-plomberie.fr des aujourd'hui."

	verdict := det.Detect(context.Background(), "Durand Plomberie", text, "Durand")
	require.NotNil(t, verdict)
	assert.Equal(t, domain.KindPromo, verdict.Kind)
	assert.Equal(t, domain.RecommendDeletion, verdict.Recommend)
	assert.Equal(t, 100, verdict.Confidence)
}

func TestPromotionScore(t *testing.T) {
	t.Parallel()

	score, hits := PromotionScore("Le castor construit des barrages.", "")
	assert.Zero(t, score)
	assert.Empty(t, hits)

	score, hits = PromotionScore("Achetez au meilleur prix !", "")
	assert.InDelta(t, 0.5, score, 1e-9)
	assert.Len(t, hits, 2)

	score, _ = PromotionScore("Voir https://a.fr https://b.fr https://c.fr", "")
	assert.InDelta(t, 0.6, score, 1e-9)
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Similarity("", "", 10))
	assert.Equal(t, 1.0, Similarity("abc", "abc", 10))
	assert.Zero(t, Similarity("abc", "xyz", 10))
	assert.Equal(t, 1.0, Similarity("abcdef", "abcxyz", 3), "inputs are truncated")
}
