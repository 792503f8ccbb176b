package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ScheduleAdvancer moves classes along their date-driven lifecycle
type ScheduleAdvancer interface {
	AdvanceClassSchedules(ctx context.Context, now time.Time, limit int) (int, error)
}

// ClassScheduleConfig holds configuration for the class schedule worker
type ClassScheduleConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// ClassScheduleWorker periodically advances Upcoming and Ongoing classes
type ClassScheduleWorker struct {
	*loop
	cfg      ClassScheduleConfig
	advancer ScheduleAdvancer
	now      func() time.Time
}

// NewClassScheduleWorker creates a class schedule worker
func NewClassScheduleWorker(cfg ClassScheduleConfig, advancer ScheduleAdvancer, logger *zap.Logger) *ClassScheduleWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	w := &ClassScheduleWorker{cfg: cfg, advancer: advancer, now: time.Now}
	w.loop = &loop{name: "ClassScheduleWorker", interval: cfg.PollInterval, pass: w.advance, logger: logger}
	return w
}

// SetClock overrides the worker clock
func (w *ClassScheduleWorker) SetClock(now func() time.Time) {
	w.now = now
}

func (w *ClassScheduleWorker) advance(ctx context.Context) (int, int, error) {
	n, err := w.advancer.AdvanceClassSchedules(ctx, w.now(), w.cfg.BatchSize)
	if err != nil {
		return n, 0, fmt.Errorf("failed to advance class schedules: %w", err)
	}
	return n, 0, nil
}
