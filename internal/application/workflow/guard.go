package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/event"
)

// ErrConcurrentModification is returned when a mutation raced another writer
// and could not be applied within the retry budget, or when the caller's
// expected version is already stale.
var ErrConcurrentModification = errors.New("concurrent modification")

// Plan reads current state, validates, and stages writes. It is re-run from
// scratch on every attempt, so it must not have side effects of its own.
type Plan func(ctx context.Context) (*Changeset, error)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// GuardConfig holds retry settings
type GuardConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultGuardConfig returns default configuration
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxRetries:   3,
		RetryBackoff: 10 * time.Millisecond,
	}
}

// Guard applies optimistic concurrency to multi-entity mutations. Every
// staged update is a compare-and-swap on version, and all writes of one
// changeset commit in a single transaction.
type Guard struct {
	tx     port.TransactionManager
	config GuardConfig
	logger Logger
}

// NewGuard creates a new concurrency guard
func NewGuard(tx port.TransactionManager, config GuardConfig, logger Logger) *Guard {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Guard{
		tx:     tx,
		config: config,
		logger: logger,
	}
}

// Run plans and commits, re-planning on version conflicts. It returns the
// events of the committed changeset.
func (g *Guard) Run(ctx context.Context, op string, plan Plan) ([]*event.Event, error) {
	attempts := g.config.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		cs, err := plan(ctx)
		if err != nil {
			return nil, err
		}
		if cs == nil || cs.Empty() {
			return nil, nil
		}

		err = g.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			for _, w := range cs.writes {
				if err := w(txCtx); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			return cs.events, nil
		}
		if !isConflict(err) {
			return nil, err
		}

		g.logger.Info("Write conflict, re-planning",
			"operation", op,
			"attempt", attempt,
			"error", err,
		)
		if attempt < attempts {
			if err := g.sleep(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	g.logger.Error("Retry budget exhausted", "operation", op, "attempts", attempts)
	return nil, fmt.Errorf("%w: %s failed after %d attempts", ErrConcurrentModification, op, attempts)
}

// isConflict is true for errors a fresh plan may resolve
func isConflict(err error) bool {
	return errors.Is(err, port.ErrVersionConflict) || errors.Is(err, port.ErrUniqueViolation)
}

func (g *Guard) sleep(ctx context.Context, attempt int) error {
	if g.config.RetryBackoff <= 0 {
		return nil
	}
	t := time.NewTimer(time.Duration(attempt) * g.config.RetryBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
