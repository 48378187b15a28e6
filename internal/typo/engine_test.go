package typo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFixesProse(t *testing.T) {
	t.Parallel()

	engine := NewEngine(Options{})
	res := engine.Apply("Le chat dort ,il rêve.Il mange ; puis part!")

	require.True(t, res.Accepted, res.Reason)
	assert.Equal(t, "Le chat dort, il rêve. Il mange ; puis part !", res.Candidate)
	assert.Equal(t, []string{"ponct. basse", "ponct. haute"}, res.Fixes)
	assert.True(t, res.Changed())
}

func TestApplyElisionAndGuillemets(t *testing.T) {
	t.Parallel()

	res := NewEngine(Options{}).Apply("L' arbre de l 'école est «beau».")

	require.True(t, res.Accepted, res.Reason)
	assert.Equal(t, "L'arbre de l'école est « beau ».", res.Candidate)
}

func TestApplyCapitalizesSentencesButNotAbbreviations(t *testing.T) {
	t.Parallel()

	res := NewEngine(Options{}).Apply("Il pleut. le soleil revient. etc. tout va bien. M. dupont arrive.")

	require.True(t, res.Accepted, res.Reason)
	assert.Equal(t, "Il pleut. Le soleil revient. Etc. tout va bien. M. dupont arrive.", res.Candidate)
}

func TestApplyRestoresNestedSpansVerbatim(t *testing.T) {
	t.Parallel()

	spans := []string{
		"{{Infobox|nom={{lang|en|x ,y}}|lien=[[Page|a  ,b]]}}",
		"[[Fichier:x.jpg|vignette|légende [[lien]] ici ,là]]",
		"{|\n| a ,b || {{c|d ,e}}\n|}",
	}
	text := spans[0] + " Texte ,suite " + spans[1] + " fin .\n" + spans[2] + "\nEt voilà ,merci."

	res := NewEngine(Options{}).Apply(text)

	require.True(t, res.Accepted, res.Reason)
	for _, span := range spans {
		assert.Contains(t, res.Candidate, span)
	}
	assert.Contains(t, res.Candidate, " Texte, suite ")
	assert.Contains(t, res.Candidate, " fin.\n")
	assert.Contains(t, res.Candidate, "Et voilà, merci.")
}

func TestApplyProtectsTagsAndComments(t *testing.T) {
	t.Parallel()

	text := "<ref>source ,x</ref> Il dit ,oui <!-- a ,b --> fin"
	res := NewEngine(Options{}).Apply(text)

	require.True(t, res.Accepted, res.Reason)
	assert.Equal(t, "<ref>source ,x</ref> Il dit, oui <!-- a ,b --> fin", res.Candidate)
}

func TestApplyUnbalancedOpenerProtectsRest(t *testing.T) {
	t.Parallel()

	res := NewEngine(Options{}).Apply("Début ,x {{modèle|a ,b suite ,fin")

	require.True(t, res.Accepted, res.Reason)
	assert.Equal(t, "Début, x {{modèle|a ,b suite ,fin", res.Candidate)
}

func TestApplyLeavesURLsAndLineMarkup(t *testing.T) {
	t.Parallel()

	text := "== Titre ,avec virgule ==\n* item ,un\n voir http://exemple.org/a,b ici\nLien http://exemple.org/x, puis"
	res := NewEngine(Options{}).Apply(text)

	require.True(t, res.Accepted, res.Reason)
	assert.Contains(t, res.Candidate, "== Titre ,avec virgule ==")
	assert.Contains(t, res.Candidate, " voir http://exemple.org/a,b ici")
	assert.Contains(t, res.Candidate, "* item, un")
	assert.Contains(t, res.Candidate, "http://exemple.org/x, puis")
}

func TestApplyRejectsOutsideToleranceBand(t *testing.T) {
	t.Parallel()

	text := "Bonjour      le      monde      entier."
	res := NewEngine(Options{}).Apply(text)

	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonLengthRatio, res.Reason)
	assert.Equal(t, text, res.Text())
	assert.False(t, res.Changed())
}

func TestApplyRejectsSentinelInput(t *testing.T) {
	t.Parallel()

	text := "abc \uE0003\uE001 def ,x"
	res := NewEngine(Options{}).Apply(text)

	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonSentinel, res.Reason)
	assert.Equal(t, text, res.Text())
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()

	engine := NewEngine(Options{})
	samples := []string{
		"Le chat dort ,il rêve.Il mange ; puis part!",
		"«Bonjour» dit-il ( en souriant ) ... puis il partit.",
		"{{Ébauche}}\nLa ville ,située au nord ,compte [[habitant|habitants]] .\n\n\n\n\nFin:ici",
		"Note:10:30 et l ' heure ?Oui!",
		"{{a|{{b|[[c|d ,e]]}}}} mot ,autre <math>x ,y</math> [http://a.org lien ,x] reste",
		"",
		"[[Lien ouvert ,sans fin",
	}

	for _, sample := range samples {
		first := engine.Apply(sample)
		second := engine.Apply(first.Text())
		assert.Equal(t, first.Text(), second.Text(), "sample %q", sample)
		if first.Accepted {
			assert.False(t, second.Changed(), "sample %q", sample)
		}
	}
}

func TestProtectRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	text := "A {{x|{{y|[[z]]}}}} b [[p|{{q}}]] c <nowiki>[[n]]</nowiki> d &nbsp; ''it'' __TOC__ ~~~~"
	masked, store := protect(text)

	assert.NotContains(t, masked, "{{")
	assert.NotContains(t, masked, "[[")
	assert.Equal(t, "{{x|{{y|[[z]]}}}}", store.spans[0])

	back, ok := restore(masked, store)
	require.True(t, ok)
	assert.Equal(t, text, back)
}

func TestRestoreDetectsCorruptedTokens(t *testing.T) {
	t.Parallel()

	masked, store := protect("a [[b]] c [[d]]")

	_, ok := restore(strings.Replace(masked, token(1), "", 1), store)
	assert.False(t, ok, "missing token")

	_, ok = restore(masked+token(0), store)
	assert.False(t, ok, "duplicated token")

	_, ok = restore(masked+token(7), store)
	assert.False(t, ok, "foreign token")
}

func TestSummary(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Typo : corrections mineures", Summary(nil))
	assert.Equal(t, "Typo : guillemets, ponct. haute", Summary([]string{"guillemets", "ponct. haute"}))
	assert.Equal(t, "Typo : a, b, c (+2)", Summary([]string{"a", "b", "c", "d", "e"}))
}
