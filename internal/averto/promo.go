package averto

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/wikitext"
)

type promoPattern struct {
	name   string
	re     *regexp.Regexp
	weight int
}

// Patterns run over folded text, so they are written without accents.
var promoPatterns = []promoPattern{
	{"vocabulaire commercial", regexp.MustCompile(`\b(achat|acheter|vente|vendre|prix|promotions?|soldes?|reductions?|offres?|boutique|commandez|commander|gratuit|tarifs?)\b`), 30},
	{"superlatifs", regexp.MustCompile(`\b(meilleure?s?|leader|numero 1|n° ?1|incontournables?|exceptionnel(le)?s?|revolutionnaires?|parfaite?s?)\b`), 20},
	{"adresse web", regexp.MustCompile(`https?://|www\.|\b[a-z0-9-]+\.(com|fr|net|io|shop)\b`), 40},
	{"coordonnees", regexp.MustCompile(`\b(contactez|contact|appelez|telephone|e-?mail|courriel|devis|rendez-vous)\b`), 30},
	{"discours de marque", regexp.MustCompile(`\b(notre|nos) (produits?|services?|entreprise|societe|equipe|marque|gamme|savoir-faire)\b`), 40},
}

var externalURLRe = regexp.MustCompile(`https?://`)

const (
	creatorWeight     = 30
	creatorWindow     = 200
	externalURLWeight = 20
	maxExternalURLs   = 2
)

// PromotionScore sums the weights of promotional signals, capped at 1.
// Each signal counts once. Weights are kept in hundredths.
func PromotionScore(text, creator string) (float64, []string) {
	folded := wikitext.Fold(text)
	var score int
	var hits []string

	for _, p := range promoPatterns {
		if m := p.re.FindString(folded); m != "" {
			score += p.weight
			hits = append(hits, fmt.Sprintf("%s : %q", p.name, m))
		}
	}

	if name := wikitext.Fold(strings.TrimSpace(creator)); len([]rune(name)) > 3 {
		opening := []rune(folded)
		if len(opening) > creatorWindow {
			opening = opening[:creatorWindow]
		}
		if strings.Contains(string(opening), name) {
			score += creatorWeight
			hits = append(hits, fmt.Sprintf("nom du créateur en introduction : %q", creator))
		}
	}

	if n := len(externalURLRe.FindAllStringIndex(text, -1)); n > maxExternalURLs {
		score += externalURLWeight
		hits = append(hits, fmt.Sprintf("%d liens externes", n))
	}

	return float64(min(100, score)) / 100, hits
}
