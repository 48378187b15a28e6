// Package wikitext holds small helpers over raw MediaWiki markup.
package wikitext

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	commentRe  = regexp.MustCompile(`(?s)<!--.*?-->`)
	refRe      = regexp.MustCompile(`(?is)<ref[^>/]*/>|<ref[^>]*>.*?</ref\s*>`)
	tagRe      = regexp.MustCompile(`</?[A-Za-z][^<>]*>`)
	mediaRe    = regexp.MustCompile(`(?i)\[\[\s*(fichier|image|file|catégorie|category)\s*:[^\[\]]*(\[\[[^\]]*\]\][^\[\]]*)*\]\]`)
	pipedRe    = regexp.MustCompile(`\[\[[^\[\]|]*\|([^\[\]]*)\]\]`)
	plainRe    = regexp.MustCompile(`\[\[([^\[\]|]*)\]\]`)
	extLabelRe = regexp.MustCompile(`\[(?:https?:)?//[^\s\]]+\s+([^\]]*)\]`)
	extBareRe  = regexp.MustCompile(`\[(?:https?:)?//[^\s\]]+\]`)
	quotesRe   = regexp.MustCompile(`'{2,}`)
	headingRe  = regexp.MustCompile(`(?m)^=+\s*(.*?)\s*=+\s*$`)
	wordRe     = regexp.MustCompile(`[\pL\pN]+(?:['’-][\pL\pN]+)*`)
	linkRe     = regexp.MustCompile(`\[\[([^\[\]|#]*)(?:#[^\[\]|]*)?(?:\|[^\[\]]*)?\]\]`)
	wsRe       = regexp.MustCompile(`[ \t]+`)
	blankRe    = regexp.MustCompile(`\n{3,}`)
)

// StripTemplates removes {{ }} and {| |} blocks, nested or not. Each opener
// is only closed by its own closer; an unbalanced opener removes the rest.
func StripTemplates(text string) string {
	var b strings.Builder
	var stack []byte
	for i := 0; i < len(text); {
		top := byte(0)
		if len(stack) > 0 {
			top = stack[len(stack)-1]
		}
		switch {
		case strings.HasPrefix(text[i:], "{{"):
			stack = append(stack, '{')
			i += 2
		case strings.HasPrefix(text[i:], "{|"):
			stack = append(stack, '|')
			i += 2
		case top == '{' && strings.HasPrefix(text[i:], "}}"),
			top == '|' && strings.HasPrefix(text[i:], "|}"):
			stack = stack[:len(stack)-1]
			i += 2
		default:
			if len(stack) == 0 {
				b.WriteByte(text[i])
			}
			i++
		}
	}
	return b.String()
}

// PlainText strips markup and keeps the readable prose.
func PlainText(text string) string {
	out := commentRe.ReplaceAllString(text, "")
	out = refRe.ReplaceAllString(out, "")
	out = StripTemplates(out)
	out = mediaRe.ReplaceAllString(out, "")
	out = pipedRe.ReplaceAllString(out, "$1")
	out = plainRe.ReplaceAllString(out, "$1")
	out = extLabelRe.ReplaceAllString(out, "$1")
	out = extBareRe.ReplaceAllString(out, "")
	out = tagRe.ReplaceAllString(out, "")
	out = quotesRe.ReplaceAllString(out, "")
	out = headingRe.ReplaceAllString(out, "$1")
	out = wsRe.ReplaceAllString(out, " ")
	out = blankRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// WordCount counts words in the readable prose of the markup.
func WordCount(text string) int {
	return len(wordRe.FindAllString(PlainText(text), -1))
}

// HasTemplate reports whether any of the named templates is used.
// Names match case-insensitively.
func HasTemplate(text string, names ...string) bool {
	if len(names) == 0 {
		return false
	}
	return templateRe(names).MatchString(text)
}

// TemplateArgs returns the positional arguments of every use of the
// template, in order. Named arguments are skipped.
func TemplateArgs(text, name string) []string {
	re := regexp.MustCompile(`(?i)\{\{\s*` + regexp.QuoteMeta(name) + `\s*\|([^{}]*)\}\}`)
	var args []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		for _, arg := range strings.Split(m[1], "|") {
			arg = strings.TrimSpace(arg)
			if arg == "" || strings.Contains(arg, "=") {
				continue
			}
			args = append(args, arg)
		}
	}
	return args
}

// InternalLinks returns link targets pointing to articles, skipping
// namespaced targets such as files, categories and interwikis.
func InternalLinks(text string) []string {
	var links []string
	for _, m := range linkRe.FindAllStringSubmatch(text, -1) {
		target := strings.TrimSpace(m[1])
		if target == "" || strings.Contains(target, ":") {
			continue
		}
		links = append(links, target)
	}
	return links
}

// Capitalize upper-cases the first letter, as the wiki does for titles.
func Capitalize(s string) string {
	s = strings.TrimSpace(s)
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func templateRe(names []string) *regexp.Regexp {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(strings.TrimSpace(name)), " ", "[ _]")
	}
	return regexp.MustCompile(`(?i)\{\{\s*(?:` + strings.Join(quoted, "|") + `)\s*(?:\||\}\})`)
}
