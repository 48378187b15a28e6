package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_pages (
    title     TEXT PRIMARY KEY,
    marked_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS moderation_events (
    id         BIGSERIAL PRIMARY KEY,
    ts         TIMESTAMPTZ NOT NULL,
    period     TEXT NOT NULL,
    run_id     TEXT NOT NULL,
    script     TEXT NOT NULL,
    page       TEXT NOT NULL,
    actions    TEXT[] NOT NULL,
    deletion   BOOLEAN NOT NULL,
    confidence INTEGER NOT NULL,
    quality    TEXT NOT NULL,
    problems   TEXT[] NOT NULL,
    summary    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS moderation_events_period_idx ON moderation_events (period, ts);
CREATE TABLE IF NOT EXISTS checkpoints (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository keeps the processed set, the event log and the
// checkpoints in Postgres.
type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ ports.ProcessedSet = (*PostgresRepository)(nil)
	_ ports.EventLog     = (*PostgresRepository)(nil)
	_ ports.Checkpoints  = (*PostgresRepository)(nil)
)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

// OpenPostgres connects with lib/pq and creates missing tables.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	repo := NewPostgresRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// EnsureSchema creates the tables used by the bot.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Processed returns the subset of titles already handled.
func (r *PostgresRepository) Processed(ctx context.Context, titles []string) (map[string]bool, error) {
	if r.db == nil || len(titles) == 0 {
		return map[string]bool{}, nil
	}

	query, args, err := psql.Select("title").
		From("processed_pages").
		Where("title = ANY(?)", pq.StringArray(titles)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build processed query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query processed: %w", err)
	}
	defer rows.Close()

	result := make(map[string]bool)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		result[title] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// Mark records a title immediately.
func (r *PostgresRepository) Mark(ctx context.Context, title string) error {
	query, args, err := psql.Insert("processed_pages").
		Columns("title", "marked_at").
		Values(title, r.now().UTC()).
		Suffix("ON CONFLICT (title) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// Flush is a no-op: every Mark is already durable.
func (r *PostgresRepository) Flush(context.Context) error {
	return nil
}

// Append inserts one event record.
func (r *PostgresRepository) Append(ctx context.Context, record domain.EventRecord) error {
	query, args, err := psql.Insert("moderation_events").
		Columns("ts", "period", "run_id", "script", "page", "actions", "deletion",
			"confidence", "quality", "problems", "summary").
		Values(record.Timestamp.UTC(), record.Period(), record.RunID, record.Script, record.Page,
			pq.StringArray(actionStrings(record.Actions)), record.Deletion, record.Confidence,
			string(record.Quality), pq.StringArray(nonNil(record.Problems)), record.Summary).
		ToSql()
	if err != nil {
		return fmt.Errorf("build append query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Records returns the events of one period in insertion order.
func (r *PostgresRepository) Records(ctx context.Context, period string) ([]domain.EventRecord, error) {
	query, args, err := psql.Select("ts", "run_id", "script", "page", "actions", "deletion",
		"confidence", "quality", "problems", "summary").
		From("moderation_events").
		Where(sq.Eq{"period": period}).
		OrderBy("ts", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build records query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []domain.EventRecord
	for rows.Next() {
		var (
			rec      domain.EventRecord
			actions  pq.StringArray
			problems pq.StringArray
			quality  string
		)
		if err := rows.Scan(&rec.Timestamp, &rec.RunID, &rec.Script, &rec.Page, &actions,
			&rec.Deletion, &rec.Confidence, &quality, &problems, &rec.Summary); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		for _, a := range actions {
			rec.Actions = append(rec.Actions, domain.Action(a))
		}
		rec.Problems = []string(problems)
		rec.Quality = domain.Quality(quality)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

func actionStrings(actions []domain.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, string(a))
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Checkpoint returns the value stored under key.
func (r *PostgresRepository) Checkpoint(ctx context.Context, key string) (string, bool, error) {
	query, args, err := psql.Select("value").
		From("checkpoints").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build checkpoint query: %w", err)
	}
	var value string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("query checkpoint: %w", err)
	}
	return value, true, nil
}

// SetCheckpoint upserts key.
func (r *PostgresRepository) SetCheckpoint(ctx context.Context, key, value string) error {
	query, args, err := psql.Insert("checkpoints").
		Columns("key", "value", "updated_at").
		Values(key, value, r.now().UTC()).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build checkpoint upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}
