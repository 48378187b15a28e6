package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

// Scheduler wires the periodic driver with the orchestrator for watch mode.
type Scheduler struct {
	driver       ports.Scheduler
	orchestrator *Orchestrator
	logger       *slog.Logger
	fatal        chan error
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, orchestrator *Orchestrator, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		driver:       driver,
		orchestrator: orchestrator,
		logger:       logger,
		fatal:        make(chan error, 1),
	}
}

// Start registers the orchestrator run with the driver. Non-fatal run
// errors are logged and the next tick retries; fatal errors and emergency
// stops are delivered on Fatal.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.orchestrator == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if ctx.Err() != nil {
			return
		}
		report, err := s.orchestrator.Run(ctx)
		switch {
		case errors.Is(err, ErrFatal), errors.Is(err, ErrStopped):
			select {
			case s.fatal <- err:
			default:
			}
		case err != nil:
			s.logger.Error("scheduled run failed", "trigger", trigger, "error", err)
		default:
			s.logger.Debug("scheduled run done", "trigger", trigger, "run_id", report.RunID)
		}
	}

	return s.driver.Start(ctx, job)
}

// Fatal delivers the first run error that must stop watch mode, including
// ErrStopped.
func (s *Scheduler) Fatal() <-chan error {
	return s.fatal
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
