// Package worker runs background maintenance alongside the workflow engine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Worker is a background task with an explicit lifecycle.
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// Status is a point-in-time view of a worker
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Reporter is implemented by workers that track their own runs.
type Reporter interface {
	Status() Status
}

// WorkerManager starts registered workers together and stops the ones that
// started, newest first.
type WorkerManager struct {
	logger *zap.Logger

	mu         sync.RWMutex
	registered []Worker
	started    []Worker
	running    bool
	cancel     context.CancelFunc
}

// NewWorkerManager creates an empty manager.
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{logger: logger}
}

// Register queues w for the next StartAll.
func (m *WorkerManager) Register(w Worker) {
	m.mu.Lock()
	m.registered = append(m.registered, w)
	n := len(m.registered)
	m.mu.Unlock()

	m.logger.Info("Worker registered", zap.String("worker_name", w.Name()), zap.Int("total_workers", n))
}

// StartAll starts every registered worker under a context that StopAll
// cancels. Workers that fail to start are skipped and their errors joined.
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("workers already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.started = m.started[:0]

	var errs []error
	for _, w := range m.registered {
		if err := w.Start(runCtx); err != nil {
			m.logger.Error("Worker failed to start", zap.String("worker_name", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
			continue
		}
		m.started = append(m.started, w)
	}

	m.logger.Info("Workers started",
		zap.Int("started", len(m.started)),
		zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// StopAll cancels the run context and stops started workers in reverse
// start order. Calling it when nothing runs is a no-op.
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel, started := m.cancel, slices.Clone(m.started)
	m.started, m.cancel = nil, nil
	m.mu.Unlock()

	cancel()

	var errs []error
	for _, w := range slices.Backward(started) {
		if err := w.Stop(); err != nil {
			m.logger.Error("Worker failed to stop", zap.String("worker_name", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to stop %d workers: %w", len(errs), errors.Join(errs...))
	}

	m.logger.Info("Workers stopped", zap.Int("count", len(started)))
	return nil
}

// Statuses reports every registered worker. Workers that are not
// Reporters only report whether they started.
func (m *WorkerManager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.registered))
	for _, w := range m.registered {
		if r, ok := w.(Reporter); ok {
			out = append(out, r.Status())
			continue
		}
		out = append(out, Status{Name: w.Name(), Running: m.running && slices.Contains(m.started, w)})
	}
	return out
}

// Len is the number of registered workers.
func (m *WorkerManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.registered)
}

// IsRunning reports whether StartAll has run without a matching StopAll.
func (m *WorkerManager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}
