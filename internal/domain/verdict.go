package domain

// VerdictKind enumerates the signals a detector can raise.
type VerdictKind string

const (
	KindSensitive VerdictKind = "sensitive"
	KindCopy      VerdictKind = "copy"
	KindPromo     VerdictKind = "promo"
	KindVandalism VerdictKind = "vandalism"
	KindLanguage  VerdictKind = "language"
	KindStub      VerdictKind = "stub"
	// KindJudgment is a model verdict that raised nothing actionable.
	KindJudgment VerdictKind = "judgment"
)

// Recommendation is what a detector asks the orchestrator to do.
type Recommendation string

const (
	RecommendNone     Recommendation = "none"
	RecommendWarn     Recommendation = "warn"
	RecommendDeletion Recommendation = "flag-deletion"
)

// Verdict is produced by any detector.
type Verdict struct {
	Detector      string
	Kind          VerdictKind
	Recommend     Recommendation
	Confidence    int // 0-100
	Severity      int // 1-5, meaningful for sensitive and copy
	Justification string
	Evidence      []string

	// Judgment is set by the language-model detector, even when it
	// recommends nothing, so later stages can reuse the model output.
	Judgment *Judgment
}

// Terminal reports whether the verdict ends detector evaluation.
func (v *Verdict) Terminal() bool {
	return v != nil && v.Recommend == RecommendDeletion
}

// Quality is the model's coarse quality label.
type Quality string

const (
	QualityGood   Quality = "good"
	QualityMedium Quality = "medium"
	QualityPoor   Quality = "poor"
)

// Judgment is the normalized response of the language-model classifier.
type Judgment struct {
	Vandalism      bool     `json:"vandalism"`
	TargetLanguage bool     `json:"target_language"`
	Promotion      bool     `json:"promotion"`
	Quality        Quality  `json:"quality"`
	Confidence     int      `json:"confidence"`
	Justification  string   `json:"justification"`
	NeedsStub      bool     `json:"needs_stub"`
	StubConfidence int      `json:"stub_confidence"`
	Portals        []string `json:"portals"`

	// Fallback marks the fixed object returned when the model could not
	// be reached or kept answering garbage.
	Fallback bool `json:"-"`
}

// FallbackJudgment is the non-actionable verdict used after retries are exhausted.
func FallbackJudgment(reason string) Judgment {
	return Judgment{
		Vandalism:      false,
		TargetLanguage: true,
		Promotion:      false,
		Quality:        QualityMedium,
		Confidence:     0,
		Justification:  reason,
		NeedsStub:      false,
		StubConfidence: 0,
		Portals:        []string{},
		Fallback:       true,
	}
}
