package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

// FileProcessedSet keeps processed titles in memory and writes them as a
// sorted JSON array on Flush.
type FileProcessedSet struct {
	path string

	mu     sync.Mutex
	titles map[string]struct{}
	dirty  bool
}

var _ ports.ProcessedSet = (*FileProcessedSet)(nil)

// OpenProcessedSet loads path; a missing file is an empty set.
func OpenProcessedSet(path string) (*FileProcessedSet, error) {
	s := &FileProcessedSet{path: path, titles: map[string]struct{}{}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read processed set: %w", err)
	}

	var titles []string
	if err := json.Unmarshal(raw, &titles); err != nil {
		return nil, fmt.Errorf("decode processed set %s: %w", path, err)
	}
	for _, t := range titles {
		s.titles[t] = struct{}{}
	}
	return s, nil
}

// Processed returns which of the titles are already in the set.
func (s *FileProcessedSet) Processed(_ context.Context, titles []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]bool)
	for _, t := range titles {
		if _, ok := s.titles[t]; ok {
			result[t] = true
		}
	}
	return result, nil
}

// Mark adds a title in memory.
func (s *FileProcessedSet) Mark(_ context.Context, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.titles[title]; !ok {
		s.titles[title] = struct{}{}
		s.dirty = true
	}
	return nil
}

// Len returns the number of titles in the set.
func (s *FileProcessedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.titles)
}

// Flush writes the set atomically through a temporary file and a rename.
func (s *FileProcessedSet) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	raw, err := json.MarshalIndent(slices.Sorted(maps.Keys(s.titles)), "", "  ")
	if err != nil {
		return fmt.Errorf("encode processed set: %w", err)
	}
	if err := writeAtomic(s.path, raw); err != nil {
		return fmt.Errorf("write processed set: %w", err)
	}
	s.dirty = false
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// FileEventLog writes one JSONL file per month under dir.
type FileEventLog struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

var _ ports.EventLog = (*FileEventLog)(nil)

// NewFileEventLog stores partitions under dir.
func NewFileEventLog(dir string, logger *slog.Logger) *FileEventLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileEventLog{dir: dir, logger: logger}
}

func (l *FileEventLog) partition(period string) string {
	return filepath.Join(l.dir, period+".jsonl")
}

// Append writes the record to its month file, opened in append mode.
func (l *FileEventLog) Append(_ context.Context, record domain.EventRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create event dir: %w", err)
	}
	f, err := os.OpenFile(l.partition(record.Period()), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("append event: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close event log: %w", err)
	}
	return nil
}

// Records reads one month. Unreadable lines are skipped with a warning.
func (l *FileEventLog) Records(_ context.Context, period string) ([]domain.EventRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.partition(period))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var records []domain.EventRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec domain.EventRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			l.logger.Warn("skip malformed event", "period", period, "line", line, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return records, nil
}

// FileCheckpoints keeps named values in a JSON object rewritten on every set.
type FileCheckpoints struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

var _ ports.Checkpoints = (*FileCheckpoints)(nil)

// OpenCheckpoints loads path; a missing file holds no checkpoint.
func OpenCheckpoints(path string) (*FileCheckpoints, error) {
	c := &FileCheckpoints{path: path, values: map[string]string{}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}
	if err := json.Unmarshal(raw, &c.values); err != nil {
		return nil, fmt.Errorf("decode checkpoints %s: %w", path, err)
	}
	return c, nil
}

// Checkpoint returns the value stored under key.
func (c *FileCheckpoints) Checkpoint(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

// SetCheckpoint stores value and writes the file atomically.
func (c *FileCheckpoints) SetCheckpoint(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.values[key]; ok && v == value {
		return nil
	}
	next := maps.Clone(c.values)
	next[key] = value
	raw, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoints: %w", err)
	}
	if err := writeAtomic(c.path, raw); err != nil {
		return fmt.Errorf("write checkpoints: %w", err)
	}
	c.values = next
	return nil
}
