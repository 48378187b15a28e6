package typo

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// rule is one correction applied to masked prose. Tokens never contain
// letters, spaces or punctuation, so rules cannot split them.
type rule struct {
	label string
	apply func(string) string
}

func replaceRule(label, pattern, repl string) rule {
	re := regexp.MustCompile(pattern)
	return rule{label: label, apply: func(s string) string {
		return re.ReplaceAllString(s, repl)
	}}
}

// abbreviations are never followed by a forced capital.
var abbreviations = map[string]bool{
	"etc": true, "cf": true, "ex": true, "env": true, "av": true, "apr": true,
	"vol": true, "chap": true, "fig": true, "op": true, "cit": true, "ibid": true,
	"p": true, "pp": true, "s": true, "ss": true, "n": true, "no": true, "vs": true,
	"st": true, "ste": true, "hab": true, "max": true, "min": true, "approx": true,
	"dir": true, "éd": true, "trad": true, "coll": true, "sq": true, "resp": true,
}

var (
	capitalRe  = regexp.MustCompile(`\.[ \t]+(\p{Ll})`)
	spaceRunRe = regexp.MustCompile(`[ \t]{2,}`)
	trailingRe = regexp.MustCompile(`[ \t]+(\n|$)`)
	blankRunRe = regexp.MustCompile(`\n{4,}`)
)

func defaultRules() []rule {
	return []rule{
		replaceRule("apostrophes", "`", "'"),
		replaceRule("élision",
			`(^|[^\pL\pN])((?i:c|d|j|l|m|n|s|t|qu|jusqu|lorsqu|puisqu))[ \t]*'[ \t]*(\pL)`,
			"$1$2'$3"),
		replaceRule("guillemets", `«[ \t]*`, "« "),
		replaceRule("guillemets", `[ \t]*»`, " »"),
		replaceRule("parenthèses", `\([ \t]+`, "("),
		replaceRule("parenthèses", `[ \t]+\)`, ")"),
		replaceRule("points de suspension", `\.{3,}`, "…"),
		replaceRule("ponct. basse", `([^\s])[ \t]+([,.])`, "$1$2"),
		replaceRule("ponct. basse", `,([\pL«(\x{E000}])`, ", $1"),
		replaceRule("ponct. basse", `(\p{Ll}{2,})\.(\p{Lu}\p{Ll})`, "$1. $2"),
		replaceRule("ponct. haute", `([^\s;:!?(«\[])([;!?])`, "$1 $2"),
		replaceRule("ponct. haute", `([^\s\d;:!?(«\[]):`, "$1 :"),
		replaceRule("ponct. haute", `([;!?])([\pL«(\x{E000}])`, "$1 $2"),
		replaceRule("ponct. haute", `([^\d] :)([\pL«(\x{E000}])`, "$1 $2"),
		{label: "majuscules", apply: capitalizeSentences},
		{label: "espaces", apply: collapseSpaces},
	}
}

// capitalizeSentences upper-cases the first letter after a period, unless
// the period closes a known abbreviation or a single letter initial.
func capitalizeSentences(s string) string {
	matches := capitalRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		word := wordBefore(s, m[0])
		if utf8.RuneCountInString(word) < 2 || abbreviations[strings.ToLower(word)] {
			continue
		}
		letter, size := utf8.DecodeRuneInString(s[m[2]:])
		b.WriteString(s[last:m[2]])
		b.WriteRune(unicode.ToUpper(letter))
		last = m[2] + size
	}
	b.WriteString(s[last:])
	return b.String()
}

// wordBefore returns the run of letters ending at offset end.
func wordBefore(s string, end int) string {
	start := end
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:start])
		if !unicode.IsLetter(r) {
			break
		}
		start -= size
	}
	return s[start:end]
}

func collapseSpaces(s string) string {
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = trailingRe.ReplaceAllString(s, "$1")
	return blankRunRe.ReplaceAllString(s, "\n\n\n")
}
