package ports

import (
	"context"
	"errors"
	"time"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
)

var (
	// ErrAuth reports a rejected wiki login. It aborts the run.
	ErrAuth = errors.New("authentication failed")
	// ErrNotFound reports a page or extract that does not exist.
	ErrNotFound = errors.New("not found")
)

// Wiki is the read/write collaborator and the only source of page content.
type Wiki interface {
	Login(ctx context.Context) error
	Fetch(ctx context.Context, title string) (domain.PageSnapshot, error)
	Save(ctx context.Context, title, text, summary string) error
	// Append adds text at the end of a page and creates it when missing.
	Append(ctx context.Context, title, text, summary string) error
	Exists(ctx context.Context, title string) (bool, error)
	IsRedirect(ctx context.Context, title string) (bool, error)
}

// PageSource lists pages that should be moderated in this run.
type PageSource interface {
	RecentPages(ctx context.Context) ([]domain.Candidate, error)
}

// Classifier sends a prompt to the language model and returns the raw reply.
type Classifier interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ReferenceCorpus returns a short plain-text extract for a title.
// A missing page is reported as ErrNotFound.
type ReferenceCorpus interface {
	Name() string
	Extract(ctx context.Context, title string) (string, error)
}

// ProcessedSet persists titles already handled, for run-to-run idempotency.
type ProcessedSet interface {
	Processed(ctx context.Context, titles []string) (map[string]bool, error)
	Mark(ctx context.Context, title string) error
	Flush(ctx context.Context) error
}

// EventLog is the append-only, monthly partitioned record of decisions.
type EventLog interface {
	Append(ctx context.Context, record domain.EventRecord) error
	Records(ctx context.Context, period string) ([]domain.EventRecord, error)
}

// Checkpoints keeps small named values across runs, next to the
// processed set. A missing key reports ok=false.
type Checkpoints interface {
	Checkpoint(ctx context.Context, key string) (value string, ok bool, err error)
	SetCheckpoint(ctx context.Context, key, value string) error
}

// CooldownStore claims a key for a window. Claim returns false while the
// key is still cooling down.
type CooldownStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// AlertChannel delivers one alert to an outbound service.
type AlertChannel interface {
	Name() string
	Send(ctx context.Context, alert domain.Alert) error
}

// Notifier turns decisions and operational events into alerts.
type Notifier interface {
	Notify(ctx context.Context, decision domain.Decision) error
	Alert(ctx context.Context, level domain.AlertLevel, title, message string, fields map[string]string) error
}

// Scheduler controls when runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
