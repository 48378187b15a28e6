package judgment

import "fmt"

const promptTemplate = `Tu es un modérateur de Vikidia, l'encyclopédie des 8-13 ans.
Analyse la page ci-dessous et réponds UNIQUEMENT avec un objet JSON, sans texte autour :
{
  "vandalism": bool,          // contenu absurde, insultant ou destructeur
  "target_language": bool,    // la page est rédigée en français
  "promotion": bool,          // publicité, autopromotion, page d'entreprise
  "quality": "good" | "medium" | "poor",
  "confidence": 0-100,
  "justification": "une phrase courte",
  "needs_stub": bool,         // la page est une ébauche
  "stub_confidence": 0-100,
  "portals": ["au plus 3 portails Vikidia pertinents"]
}

Titre : %s

Texte :
%s`

// BuildPrompt renders the classifier prompt for a page sample.
func BuildPrompt(title, sample string) string {
	return fmt.Sprintf(promptTemplate, title, sample)
}
