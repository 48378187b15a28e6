package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

// FileSink appends every alert as a JSON line. It is the durable fallback
// when outbound channels fail.
type FileSink struct {
	path string
	mu   sync.Mutex
}

var _ ports.AlertChannel = (*FileSink)(nil)

// NewFileSink writes to path, creating parent directories on first use.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (f *FileSink) Name() string { return "fallback" }

func (f *FileSink) Send(_ context.Context, alert domain.Alert) error {
	line, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create alert dir: %w", err)
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open alert log: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		_ = file.Close()
		return fmt.Errorf("write alert log: %w", err)
	}
	return file.Close()
}
