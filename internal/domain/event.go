package domain

import "time"

// EventRecord is one append-only entry of the structured event log.
type EventRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id"`
	Script     string    `json:"script"`
	Page       string    `json:"page"`
	Actions    []Action  `json:"actions"`
	Deletion   bool      `json:"deletion"`
	Confidence int       `json:"confidence"`
	Quality    Quality   `json:"quality"`
	Problems   []string  `json:"problems"`
	Summary    string    `json:"summary"`
}

// Period returns the calendar partition key (YYYY-MM) of the record.
func (e EventRecord) Period() string {
	return PeriodOf(e.Timestamp)
}

// PeriodOf formats the partition key for a timestamp.
func PeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// AlertLevel ranks operational alerts.
type AlertLevel string

const (
	LevelInfo     AlertLevel = "info"
	LevelWarning  AlertLevel = "warning"
	LevelError    AlertLevel = "error"
	LevelCritical AlertLevel = "critical"
)

// Priority is the 1-5 scale shared by every alert channel.
type Priority int

const (
	PriorityMin     Priority = 1
	PriorityLow     Priority = 2
	PriorityDefault Priority = 3
	PriorityHigh    Priority = 4
	PriorityMax     Priority = 5
)

// Clamp bounds the priority to the 1-5 scale.
func (p Priority) Clamp() Priority {
	switch {
	case p < PriorityMin:
		return PriorityMin
	case p > PriorityMax:
		return PriorityMax
	default:
		return p
	}
}

// PriorityForLevel maps an alert level onto the shared priority scale.
func PriorityForLevel(level AlertLevel) Priority {
	switch level {
	case LevelInfo:
		return PriorityMin
	case LevelWarning:
		return PriorityDefault
	case LevelError:
		return PriorityHigh
	case LevelCritical:
		return PriorityMax
	default:
		return PriorityDefault
	}
}

// AlertCategory tells channels what an alert is about.
type AlertCategory string

const (
	CategoryDeletion    AlertCategory = "deletion"
	CategoryModeration  AlertCategory = "moderation"
	CategoryOperational AlertCategory = "operational"
)

// Alert is one outbound notification, channel agnostic.
type Alert struct {
	Category AlertCategory     `json:"category"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Link     string            `json:"link,omitempty"`
	DiffLink string            `json:"diff_link,omitempty"`
	Page     string            `json:"page,omitempty"`
	Priority Priority          `json:"priority"`
	Level    AlertLevel        `json:"level"`
	Tags     []string          `json:"tags,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Time     time.Time         `json:"time"`
}
