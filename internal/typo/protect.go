package typo

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	tokenOpen  = "\uE000"
	tokenClose = "\uE001"
)

// contentTags keep their whole body out of reach of the corrections.
var contentTags = []string{
	"ref", "math", "code", "nowiki", "pre", "source", "syntaxhighlight",
	"poem", "score", "gallery", "timeline", "hiero", "chem",
}

var (
	contentOpenRe = regexp.MustCompile(`^(?i)<(` + strings.Join(contentTags, "|") + `)(\s[^<>]*)?>`)
	contentSelfRe = regexp.MustCompile(`^(?i)<(` + strings.Join(contentTags, "|") + `)(\s[^<>]*)?/>`)
	contentClose  = buildCloseTags()
	tagRe         = regexp.MustCompile(`^</?[A-Za-z][^<>\n]*>`)
	entityRe      = regexp.MustCompile(`^&(#[0-9]+|#[xX][0-9A-Fa-f]+|[A-Za-z][A-Za-z0-9]*);`)
	extLinkRe     = regexp.MustCompile(`^\[(?i:https?://|ftp://|//|mailto:)`)
	rawURLRe      = regexp.MustCompile(`^(?i:https?|ftp)://[^\s<>\[\]{}|"]+`)
	magicRe       = regexp.MustCompile(`^__[A-Z]+__`)
	headingRe     = regexp.MustCompile(`^=[^\n]*`)
	listRe        = regexp.MustCompile(`^[*#:;]+`)
	preLineRe     = regexp.MustCompile(`^[ \t][^\n]*`)
	ruleRe        = regexp.MustCompile(`^-{4,}`)
)

func buildCloseTags() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(contentTags))
	for _, tag := range contentTags {
		out[tag] = regexp.MustCompile(`(?i)</` + tag + `\s*>`)
	}
	return out
}

// arena maps token ids to the spans they replaced. Ids grow from zero in
// the order spans appear, so masking the same text twice yields the same
// masked string.
type arena struct {
	spans []string
}

func (a *arena) add(span string) string {
	id := len(a.spans)
	a.spans = append(a.spans, span)
	return token(id)
}

func token(id int) string {
	return tokenOpen + strconv.Itoa(id) + tokenClose
}

func hasSentinel(text string) bool {
	return strings.Contains(text, tokenOpen) || strings.Contains(text, tokenClose)
}

// protect replaces every outermost structural span with a token.
func protect(text string) (string, *arena) {
	store := &arena{}
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); {
		lineStart := i == 0 || text[i-1] == '\n'
		if end := spanEnd(text, i, lineStart); end > i {
			b.WriteString(store.add(text[i:end]))
			i = end
			continue
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String(), store
}

// spanEnd returns the end offset of a protected span starting at i, or i
// when nothing protected starts there.
func spanEnd(text string, i int, lineStart bool) int {
	rest := text[i:]

	if lineStart {
		if loc := lineMarkup(rest); loc > 0 {
			return i + loc
		}
	}

	switch rest[0] {
	case '<':
		if strings.HasPrefix(rest, "<!--") {
			if end := strings.Index(rest[4:], "-->"); end >= 0 {
				return i + 4 + end + 3
			}
			return len(text)
		}
		if loc := contentSelfRe.FindStringIndex(rest); loc != nil {
			return i + loc[1]
		}
		if m := contentOpenRe.FindStringSubmatchIndex(rest); m != nil {
			name := strings.ToLower(rest[m[2]:m[3]])
			body := rest[m[1]:]
			if loc := contentClose[name].FindStringIndex(body); loc != nil {
				return i + m[1] + loc[1]
			}
			return len(text)
		}
		if loc := tagRe.FindStringIndex(rest); loc != nil {
			return i + loc[1]
		}
	case '{':
		if strings.HasPrefix(rest, "{{") || strings.HasPrefix(rest, "{|") {
			return i + braceSpan(rest)
		}
	case '[':
		if strings.HasPrefix(rest, "[[") {
			return i + bracketSpan(rest)
		}
		if extLinkRe.MatchString(rest) {
			if end := strings.IndexByte(rest, ']'); end >= 0 {
				return i + end + 1
			}
			return len(text)
		}
	case '&':
		if loc := entityRe.FindStringIndex(rest); loc != nil {
			return i + loc[1]
		}
	case '\'':
		if strings.HasPrefix(rest, "''") {
			n := 0
			for n < len(rest) && rest[n] == '\'' {
				n++
			}
			return i + n
		}
	case '_':
		if loc := magicRe.FindStringIndex(rest); loc != nil {
			return i + loc[1]
		}
	case '~':
		if strings.HasPrefix(rest, "~~~") {
			n := 0
			for n < len(rest) && rest[n] == '~' {
				n++
			}
			return i + n
		}
	case 'h', 'H', 'f', 'F':
		if i > 0 && isWordByte(text[i-1]) {
			return i
		}
		if loc := rawURLRe.FindStringIndex(rest); loc != nil {
			url := strings.TrimRight(rest[:loc[1]], ".,;:!?)'")
			return i + len(url)
		}
	}
	return i
}

func lineMarkup(rest string) int {
	for _, re := range []*regexp.Regexp{headingRe, ruleRe, listRe, preLineRe} {
		if loc := re.FindStringIndex(rest); loc != nil {
			return loc[1]
		}
	}
	return 0
}

// braceSpan matches {{ }} and {| |} by depth. Each opener is only closed by
// its own closer. An unbalanced opener protects the rest of the text.
func braceSpan(text string) int {
	var stack []byte
	for j := 0; j < len(text); {
		switch {
		case strings.HasPrefix(text[j:], "{{"):
			stack = append(stack, '{')
			j += 2
		case strings.HasPrefix(text[j:], "{|"):
			stack = append(stack, '|')
			j += 2
		case strings.HasPrefix(text[j:], "}}") && len(stack) > 0 && stack[len(stack)-1] == '{':
			stack = stack[:len(stack)-1]
			j += 2
		case strings.HasPrefix(text[j:], "|}") && len(stack) > 0 && stack[len(stack)-1] == '|':
			stack = stack[:len(stack)-1]
			j += 2
		default:
			j++
		}
		if len(stack) == 0 {
			return j
		}
	}
	return len(text)
}

func bracketSpan(text string) int {
	depth := 0
	for j := 0; j < len(text); {
		switch {
		case strings.HasPrefix(text[j:], "[["):
			depth++
			j += 2
		case strings.HasPrefix(text[j:], "]]"):
			depth--
			j += 2
		default:
			j++
		}
		if depth == 0 {
			return j
		}
	}
	return len(text)
}

func isWordByte(c byte) bool {
	return c == '_' || c == '/' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// restore substitutes every token back. It reports false when a token is
// missing, duplicated, or foreign to the arena.
func restore(masked string, store *arena) (string, bool) {
	var b strings.Builder
	b.Grow(len(masked))
	seen := make([]bool, len(store.spans))

	for i := 0; i < len(masked); {
		if !strings.HasPrefix(masked[i:], tokenOpen) {
			if strings.HasPrefix(masked[i:], tokenClose) {
				return "", false
			}
			b.WriteByte(masked[i])
			i++
			continue
		}
		start := i + len(tokenOpen)
		end := strings.Index(masked[start:], tokenClose)
		if end < 0 {
			return "", false
		}
		id, err := strconv.Atoi(masked[start : start+end])
		if err != nil || id < 0 || id >= len(store.spans) || seen[id] {
			return "", false
		}
		seen[id] = true
		b.WriteString(store.spans[id])
		i = start + end + len(tokenClose)
	}

	for _, ok := range seen {
		if !ok {
			return "", false
		}
	}
	return b.String(), true
}
