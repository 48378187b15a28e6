package domain

import (
	"slices"
	"time"
)

// Action is one outcome the orchestrator can take on a page.
type Action string

const (
	ActionNone           Action = "none"
	ActionFlagDeletion   Action = "flag-deletion"
	ActionWarn           Action = "warn"
	ActionAddMaintenance Action = "add-maintenance"
	ActionAddStub        Action = "add-stub"
	ActionFixTypography  Action = "fix-typography"
	ActionSkipped        Action = "skipped"
)

// Decision is the single orchestrator output for a page.
//
// Actions holds what was decided, in application order. Persisted holds the
// subset actually written to the wiki (empty in dry-run or once the edit
// budget is spent). ActionFlagDeletion never shares Actions with anything else.
type Decision struct {
	Page          string
	Actions       []Action
	Persisted     []Action
	Reason        *Verdict
	Justification string
	Problems      []string
	Judgment      *Judgment
	DecidedAt     time.Time
}

// Action returns the primary action of the decision.
func (d Decision) Action() Action {
	if len(d.Actions) == 0 {
		return ActionNone
	}
	return d.Actions[0]
}

// Has reports whether the decision contains the action.
func (d Decision) Has(a Action) bool {
	return slices.Contains(d.Actions, a)
}

// IsDeletion reports whether the page was flagged for deletion.
func (d Decision) IsDeletion() bool {
	return d.Has(ActionFlagDeletion)
}

// Add appends a non-exclusive action. It refuses to mix anything with a
// deletion flag and ignores duplicates.
func (d *Decision) Add(a Action) bool {
	if a == ActionNone || d.Has(a) || d.IsDeletion() {
		return false
	}
	d.Actions = append(d.Actions, a)
	return true
}

// Flag turns the decision into an exclusive deletion flag.
func (d *Decision) Flag(reason *Verdict) {
	d.Actions = []Action{ActionFlagDeletion}
	d.Persisted = nil
	d.Reason = reason
	if reason != nil {
		d.Justification = reason.Justification
	}
}

// MarkPersisted records that the action was saved to the wiki.
func (d *Decision) MarkPersisted(a Action) {
	if !slices.Contains(d.Persisted, a) {
		d.Persisted = append(d.Persisted, a)
	}
}

// Severity returns the severity used to rank alerts about this decision.
func (d Decision) Severity() int {
	if d.Reason != nil && d.Reason.Severity > 0 {
		return d.Reason.Severity
	}
	return 0
}
