package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ExpiringCache drops entries that outlived their TTL
type ExpiringCache interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// CacheSweeper periodically purges expired cache entries so that idle
// entries do not hold memory until the next read touches them
type CacheSweeper struct {
	cache    ExpiringCache
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	runs      int
	failures  int
	purged    int
	lastRun   time.Time
	lastError error
}

var _ Reporter = (*CacheSweeper)(nil)

// NewCacheSweeper creates a sweeper running every interval
func NewCacheSweeper(cache ExpiringCache, interval time.Duration, logger *zap.Logger) *CacheSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CacheSweeper{
		cache:    cache,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the sweep loop
func (s *CacheSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cache sweeper already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("CacheSweeper started", zap.Duration("interval", s.interval))

	go s.loop(loopCtx, s.done)
	return nil
}

// Stop ends the loop and waits for an in-flight sweep
func (s *CacheSweeper) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Info("CacheSweeper stopped",
		zap.Int("runs", s.runs),
		zap.Int("purged", s.purged))
	return nil
}

// Name returns the worker name for identification
func (s *CacheSweeper) Name() string {
	return "CacheSweeper"
}

// Status reports sweep counters
func (s *CacheSweeper) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Name:     s.Name(),
		Running:  s.isRunning,
		Runs:     s.runs,
		Failures: s.failures,
		LastRun:  s.lastRun,
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	return st
}

func (s *CacheSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one purge pass
func (s *CacheSweeper) Sweep(ctx context.Context) {
	n, err := s.cache.PurgeExpired(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs++
	s.lastRun = time.Now()
	s.lastError = err
	if err != nil {
		s.failures++
		s.logger.Warn("Cache sweep failed", zap.Error(err))
		return
	}
	s.purged += n
	if n > 0 {
		s.logger.Debug("Purged expired cache entries", zap.Int("count", n))
	}
}
