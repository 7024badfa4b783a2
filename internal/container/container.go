package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/record-workflow/internal/application/dispatcher"
	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/garyjia/record-workflow/internal/application/workflow"
	"github.com/garyjia/record-workflow/internal/domain/kind"
	"github.com/garyjia/record-workflow/internal/infrastructure/metrics"
	"github.com/garyjia/record-workflow/internal/infrastructure/worker"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	store     *StoreBundle
	cache     *CacheBundle
	transport port.NotificationTransport
	metrics   *metrics.Recorder

	// Application
	registry   *kind.Registry
	dispatcher dispatcher.Dispatcher
	workflow   workflow.WorkflowService

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
	Workers    []worker.Status            `json:"workers,omitempty"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Record store
// 2. Item cache
// 3. Notification transport and metrics
// 4. Kind registry, dispatcher and workflow engine
// 5. Workers
func (c *Container) Start(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	defer func() {
		if err != nil {
			c.teardown()
		}
	}()

	// Step 1: Initialize record store
	if c.store, err = ProvideStore(c.config, c.logger); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	c.logger.Info("Store initialized")

	// Step 2: Initialize cache
	if c.cache, err = ProvideCache(c.ctx, &c.config.Cache, c.logger); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	c.logger.Info("Cache initialized", zap.String("backend", c.config.Cache.Backend))

	// Step 3: Initialize transport and metrics
	if c.transport, err = ProvideTransport(c.config, c.logger); err != nil {
		return fmt.Errorf("failed to initialize notification transport: %w", err)
	}
	c.metrics = metrics.NewRecorder(c.config.MetricsNamespace)
	c.logger.Info("Transport initialized", zap.String("transport", c.config.Notification.Transport))

	// Step 4: Initialize registry, dispatcher and workflow engine
	if err = c.initDispatcherAndWorkflow(); err != nil {
		return fmt.Errorf("failed to initialize dispatcher and workflow: %w", err)
	}
	c.logger.Info("Dispatcher and workflow engine initialized", zap.Strings("kinds", c.registry.Names()))

	// Step 5: Initialize and start workers
	if err = c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

func (c *Container) initDispatcherAndWorkflow() error {
	registry, err := ProvideRegistry(c.config.Kinds)
	if err != nil {
		return err
	}
	c.registry = registry

	disp, err := ProvideDispatcher(&c.config.Notification, c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Registry:     c.registry,
		Store:        c.store,
		Cache:        c.cache.Cache,
		Policy:       c.config.Policy,
		Dispatcher:   c.dispatcher,
		Transport:    c.transport,
		Notification: &c.config.Notification,
		Metrics:      c.metrics,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}
	c.workflow = engine
	return nil
}

func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(c.cache.Expiring, &c.config.Cache, c.logger)
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized. Caller holds mu.
func (c *Container) teardown() []error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	// Step 2: Close dispatcher, draining in-flight notifications
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	// Step 3: Close redis client
	if c.cache != nil && c.cache.Redis != nil {
		if err := c.cache.Redis.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	// Step 4: Close database
	if c.store != nil && c.store.Conn != nil {
		if err := c.store.Conn.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.store.Conn = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, err error) {
		if err != nil {
			status.Components[name] = ComponentHealth{Healthy: false, Message: err.Error()}
			status.Overall = false
			return
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// Check store
	switch {
	case c.store == nil:
		set("store", fmt.Errorf("not initialized"))
	case c.store.Conn != nil:
		if err := c.store.Conn.Health(ctx); err != nil {
			set("store", fmt.Errorf("ping failed: %w", err))
		} else {
			set("store", nil)
		}
	default:
		set("store", nil)
	}

	// Check cache
	switch {
	case c.cache == nil:
		set("cache", fmt.Errorf("not initialized"))
	case c.cache.Redis != nil:
		if err := c.cache.Redis.Ping(ctx).Err(); err != nil {
			set("cache", fmt.Errorf("ping failed: %w", err))
		} else {
			set("cache", nil)
		}
	default:
		set("cache", nil)
	}

	// Check dispatcher
	if c.dispatcher == nil {
		set("dispatcher", fmt.Errorf("not initialized"))
	} else {
		set("dispatcher", nil)
	}

	// Check workers
	if c.workers == nil || !c.workers.IsRunning() {
		set("workers", fmt.Errorf("not running"))
	} else {
		set("workers", nil)
		status.Workers = c.workers.Statuses()
	}

	return status
}

// Getters for accessing container components

// Workflow returns the workflow service.
func (c *Container) Workflow() workflow.WorkflowService {
	return c.workflow
}

// Registry returns the kind registry.
func (c *Container) Registry() *kind.Registry {
	return c.registry
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Transport returns the notification transport.
func (c *Container) Transport() port.NotificationTransport {
	return c.transport
}

// Metrics returns the Prometheus recorder.
func (c *Container) Metrics() *metrics.Recorder {
	return c.metrics
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}
