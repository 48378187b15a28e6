package domain

import "time"

// PageSnapshot is one read of a wiki page. It is never modified; a mutation
// produces a new snapshot through WithText.
type PageSnapshot struct {
	Title      string
	Text       string
	Creator    string
	Categories []string
	Redirect   bool
	Revision   int64
	LastEditor string
	FetchedAt  time.Time
}

// WithText returns a copy of the snapshot carrying new text.
func (p PageSnapshot) WithText(text string) PageSnapshot {
	next := p
	next.Text = text
	next.FetchedAt = time.Now().UTC()
	return next
}

// Candidate is a page reported by the recent changes feed.
type Candidate struct {
	Title   string
	Creator string
}

// MutationResult captures one attempt of the text-mutation engine.
// When Accepted is false, Candidate must be ignored and Original kept.
type MutationResult struct {
	Original  string
	Candidate string
	Accepted  bool
	Reason    string
}

// Text returns the text that should be persisted.
func (m MutationResult) Text() string {
	if m.Accepted {
		return m.Candidate
	}
	return m.Original
}

// Changed reports whether an accepted mutation differs from the original.
func (m MutationResult) Changed() bool {
	return m.Accepted && m.Candidate != m.Original
}
