package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/tutor-matching/internal/application/dispatcher"
	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/event"
)

// RelayConfig holds configuration for the outbox relay
type RelayConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	MaxRetryDelay  time.Duration
}

// DefaultRelayConfig returns default configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		PollInterval:   2 * time.Second,
		BatchSize:      50,
		MaxAttempts:    8,
		RetryBaseDelay: 5 * time.Second,
		MaxRetryDelay:  30 * time.Minute,
	}
}

// Flusher re-appends events whose first append failed
type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

// OutboxRelayWorker delivers pending outbox events to the dispatcher
type OutboxRelayWorker struct {
	*loop
	cfg        RelayConfig
	outbox     port.OutboxRepository
	dispatcher dispatcher.Dispatcher
	flusher    Flusher
	now        func() time.Time
	logger     *zap.Logger
}

// NewOutboxRelayWorker creates a relay worker. flusher may be nil.
func NewOutboxRelayWorker(cfg RelayConfig, outbox port.OutboxRepository, d dispatcher.Dispatcher, flusher Flusher, logger *zap.Logger) *OutboxRelayWorker {
	def := DefaultRelayConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = def.MaxRetryDelay
	}

	w := &OutboxRelayWorker{
		cfg:        cfg,
		outbox:     outbox,
		dispatcher: d,
		flusher:    flusher,
		now:        time.Now,
		logger:     logger,
	}
	w.loop = &loop{name: "OutboxRelayWorker", interval: cfg.PollInterval, pass: w.relay, logger: logger}
	return w
}

// SetClock overrides the worker clock
func (w *OutboxRelayWorker) SetClock(now func() time.Time) {
	w.now = now
}

func (w *OutboxRelayWorker) relay(ctx context.Context) (int, int, error) {
	if w.flusher != nil {
		if n, err := w.flusher.Flush(ctx); err != nil {
			w.logger.Warn("Outbox buffer flush incomplete", zap.Int("flushed", n), zap.Error(err))
		} else if n > 0 {
			w.logger.Info("Outbox buffer flushed", zap.Int("flushed", n))
		}
	}

	now := w.now()
	pending, err := w.outbox.ListPending(ctx, now, w.cfg.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pending events: %w", err)
	}

	delivered, failed := 0, 0
	for _, rec := range pending {
		if ctx.Err() != nil {
			break
		}
		evt := event.FromOutbox(rec)
		if derr := w.dispatcher.Dispatch(ctx, evt); derr != nil {
			failed++
			attempt := rec.Attempts + 1
			dead := attempt >= w.cfg.MaxAttempts
			next := now.Add(w.backoff(attempt))
			if err := w.outbox.MarkFailed(ctx, rec.ID, derr.Error(), next, dead); err != nil {
				return delivered, failed, fmt.Errorf("failed to mark event %s failed: %w", rec.ID, err)
			}
			if dead {
				w.logger.Error("Outbox event is dead",
					zap.String("event_id", rec.ID),
					zap.String("event_type", rec.Type),
					zap.Int("attempts", attempt),
					zap.Error(derr))
			} else {
				w.logger.Warn("Outbox delivery failed",
					zap.String("event_id", rec.ID),
					zap.Int("attempts", attempt),
					zap.Time("next_attempt_at", next),
					zap.Error(derr))
			}
			continue
		}
		if err := w.outbox.MarkDelivered(ctx, rec.ID, now); err != nil {
			return delivered, failed, fmt.Errorf("failed to mark event %s delivered: %w", rec.ID, err)
		}
		delivered++
	}
	return delivered, failed, nil
}

// backoff doubles the base delay per attempt, capped at MaxRetryDelay
func (w *OutboxRelayWorker) backoff(attempt int) time.Duration {
	d := w.cfg.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= w.cfg.MaxRetryDelay {
			return w.cfg.MaxRetryDelay
		}
	}
	return d
}
