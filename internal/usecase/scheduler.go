package usecase

import (
	"context"
	"log/slog"
	"time"

	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/ports"
)

// Scheduler wires the cron driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	hours    int
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs with a fixed lookback.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, hours int, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, hours: hours, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	runCtx := context.WithoutCancel(ctx)
	job := func(trigger time.Time) {
		inv := domain.Invocation{}
		if s.hours > 0 {
			hours := s.hours
			inv.Hours = &hours
		}
		resp := s.pipeline.Run(runCtx, inv)
		if s.logger != nil {
			s.logger.Info("scheduled run finished", "trigger", trigger.Format(time.RFC3339), "status", resp.StatusCode, "body", resp.Body)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
