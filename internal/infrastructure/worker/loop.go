package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// loop runs a pass function on a ticker until stopped
type loop struct {
	name     string
	interval time.Duration
	pass     func(ctx context.Context) (processed, failed int, err error)
	logger   *zap.Logger

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	processed int
	failed    int
	lastError error
}

func (l *loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return fmt.Errorf("%s already running", l.name)
	}

	var runCtx context.Context
	runCtx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.running = true

	l.logger.Info(l.name+" started", zap.Duration("poll_interval", l.interval))
	go l.run(runCtx, l.done)
	return nil
}

func (l *loop) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done

	st := l.Status()
	l.logger.Info(l.name+" stopped",
		zap.Int("processed_count", st.Processed),
		zap.Int("failed_count", st.Failed))
	return nil
}

func (l *loop) Name() string {
	return l.name
}

func (l *loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := Status{Name: l.name, Running: l.running, Processed: l.processed, Failed: l.failed}
	if l.lastError != nil {
		st.LastError = l.lastError.Error()
	}
	return st
}

func (l *loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single pass and records its counters
func (l *loop) RunOnce(ctx context.Context) error {
	processed, failed, err := l.pass(ctx)

	l.mu.Lock()
	l.processed += processed
	l.failed += failed
	if err != nil {
		l.lastError = err
	}
	l.mu.Unlock()

	if err != nil {
		l.logger.Error(l.name+" pass failed", zap.Error(err))
	}
	return err
}
