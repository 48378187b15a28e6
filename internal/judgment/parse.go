package judgment

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
)

// ErrMalformed reports a model reply that does not follow the schema.
var ErrMalformed = errors.New("malformed model response")

const (
	maxPortals       = 3
	maxJustification = 500
)

var requiredKeys = []string{
	"vandalism", "target_language", "promotion", "quality", "confidence",
	"justification", "needs_stub", "stub_confidence", "portals",
}

// Parse extracts, validates and normalizes the JSON object of a reply.
func Parse(reply string) (domain.Judgment, error) {
	raw, err := extractObject(reply)
	if err != nil {
		return domain.Judgment{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return domain.Judgment{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			return domain.Judgment{}, fmt.Errorf("%w: missing %q", ErrMalformed, key)
		}
	}

	var j domain.Judgment
	var errs []error
	j.Vandalism = decodeBool(fields["vandalism"], "vandalism", &errs)
	j.TargetLanguage = decodeBool(fields["target_language"], "target_language", &errs)
	j.Promotion = decodeBool(fields["promotion"], "promotion", &errs)
	j.NeedsStub = decodeBool(fields["needs_stub"], "needs_stub", &errs)
	j.Confidence = decodeScore(fields["confidence"], "confidence", &errs)
	j.StubConfidence = decodeScore(fields["stub_confidence"], "stub_confidence", &errs)
	j.Quality = normalizeQuality(decodeString(fields["quality"], "quality", &errs))
	j.Justification = truncate(strings.TrimSpace(decodeString(fields["justification"], "justification", &errs)), maxJustification)
	j.Portals = decodePortals(fields["portals"], &errs)
	if len(errs) > 0 {
		return domain.Judgment{}, fmt.Errorf("%w: %v", ErrMalformed, errors.Join(errs...))
	}
	return j, nil
}

// extractObject returns the outermost JSON object of a reply, tolerating
// code fences and surrounding prose.
func extractObject(reply string) (string, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object", ErrMalformed)
	}
	return reply[start : end+1], nil
}

func decodeBool(raw json.RawMessage, key string, errs *[]error) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "oui", "yes":
			return true
		case "false", "non", "no":
			return false
		}
	}
	*errs = append(*errs, fmt.Errorf("%s is not a boolean", key))
	return false
}

func decodeScore(raw json.RawMessage, key string, errs *[]error) int {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			*errs = append(*errs, fmt.Errorf("%s is not a number", key))
			return 0
		}
		parsed, perr := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
		if perr != nil {
			*errs = append(*errs, fmt.Errorf("%s is not a number", key))
			return 0
		}
		f = parsed
	}
	if math.IsNaN(f) {
		return 0
	}
	return int(math.Round(math.Min(100, math.Max(0, f))))
}

func decodeString(raw json.RawMessage, key string, errs *[]error) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		*errs = append(*errs, fmt.Errorf("%s is not a string", key))
	}
	return s
}

func decodePortals(raw json.RawMessage, errs *[]error) []string {
	portals := []string{}
	if string(raw) == "null" {
		return portals
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		*errs = append(*errs, errors.New("portals is not a list of strings"))
		return portals
	}
	for _, p := range list {
		if p = strings.TrimSpace(p); p != "" {
			portals = append(portals, p)
		}
		if len(portals) == maxPortals {
			break
		}
	}
	return portals
}

func normalizeQuality(q string) domain.Quality {
	switch strings.ToLower(strings.TrimSpace(q)) {
	case "good", "bonne", "bon":
		return domain.QualityGood
	case "poor", "mauvaise", "faible":
		return domain.QualityPoor
	default:
		return domain.QualityMedium
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
