package sensitive

import (
	"regexp"
	"strings"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/wikitext"
)

var (
	leet = strings.NewReplacer(
		"0", "o", "1", "i", "3", "e", "4", "a", "5", "s", "7", "t",
		"@", "a", "$", "s", "€", "e",
	)
	obfuscationRe = regexp.MustCompile(`[_\-*+.]{2,}`)
	spacesRe      = regexp.MustCompile(`\s+`)
)

// Normalize prepares text for term matching: folded, leetspeak reversed,
// obfuscating punctuation runs removed and whitespace collapsed.
func Normalize(text string) string {
	out := wikitext.Fold(text)
	out = leet.Replace(out)
	out = obfuscationRe.ReplaceAllString(out, "")
	out = spacesRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
