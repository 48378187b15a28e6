package sensitive

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Term is one pattern and its severity on the 1-5 scale.
type Term struct {
	Pattern  string `yaml:"pattern"`
	Severity int    `yaml:"severity"`
}

// Table groups terms by category and lists pages that are never checked.
type Table struct {
	Terms              map[string][]Term `yaml:"terms"`
	Exclusions         []string          `yaml:"exclusions"`
	ExcludedCategories []string          `yaml:"excluded_categories"`
}

// DefaultTable is used when no term file is configured.
func DefaultTable() Table {
	return Table{
		Terms: map[string][]Term{
			"insultes": {
				{Pattern: `\b(connard|connasse|salope|encule|batard|enfoire|pouffiasse)s?\b`, Severity: 4},
				{Pattern: `\bta gueule\b`, Severity: 3},
				{Pattern: `\b(conne?|debile|cretin|abruti|idiot)s?\b`, Severity: 2},
			},
			"pornographie": {
				{Pattern: `\b(porno|pornographique|xxx|hentai)\b`, Severity: 5},
				{Pattern: `\b(bite|chatte|nichons|sodomie)s?\b`, Severity: 4},
			},
			"violence": {
				{Pattern: `\b(je vais|on va|j'vais) te (tuer|buter|crever|egorger)\b`, Severity: 5},
				{Pattern: `\b(massacrer|egorger|decapiter) (les|tous)\b`, Severity: 4},
			},
			"haine": {
				{Pattern: `\bsale(s)? (arabe|noir|juif|pede|negre|bougnoule)s?\b`, Severity: 5},
				{Pattern: `\bheil hitler\b`, Severity: 5},
			},
			"drogues": {
				{Pattern: `\b(acheter|vends?|dealer) (de la |du )?(coke|weed|beuh|shit)\b`, Severity: 4},
				{Pattern: `\b(cocaine|heroine|cannabis|ecstasy)\b`, Severity: 2},
			},
		},
		Exclusions:         []string{"Utilisateur:", "Discussion:", "Liste des", "Catégorie:"},
		ExcludedCategories: []string{"Homonymie"},
	}
}

// LoadTable reads a YAML term table.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read term table: %w", err)
	}
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return Table{}, fmt.Errorf("decode term table: %w", err)
	}
	if len(table.Terms) == 0 {
		return Table{}, fmt.Errorf("term table %s has no terms", path)
	}
	return table, nil
}
