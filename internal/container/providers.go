package container

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appcache "github.com/garyjia/record-workflow/internal/application/cache"
	"github.com/garyjia/record-workflow/internal/application/dispatcher"
	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/garyjia/record-workflow/internal/application/service"
	"github.com/garyjia/record-workflow/internal/application/workflow"
	"github.com/garyjia/record-workflow/internal/domain/access"
	"github.com/garyjia/record-workflow/internal/domain/entity"
	"github.com/garyjia/record-workflow/internal/domain/kind"
	infraCache "github.com/garyjia/record-workflow/internal/infrastructure/cache"
	infraLark "github.com/garyjia/record-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/record-workflow/internal/infrastructure/idgen"
	"github.com/garyjia/record-workflow/internal/infrastructure/metrics"
	"github.com/garyjia/record-workflow/internal/infrastructure/notify"
	"github.com/garyjia/record-workflow/internal/infrastructure/persistence/memory"
	"github.com/garyjia/record-workflow/internal/infrastructure/persistence/sheet"
	"github.com/garyjia/record-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/record-workflow/internal/infrastructure/storage"
	"github.com/garyjia/record-workflow/internal/infrastructure/validation"
	"github.com/garyjia/record-workflow/internal/infrastructure/worker"
	"github.com/garyjia/record-workflow/pkg/database"
	"github.com/garyjia/record-workflow/pkg/utils"
)

// StoreBundle holds the record store and its companions.
type StoreBundle struct {
	// Conn is set for the sqlite backend only
	Conn      *database.DB
	TxManager port.TransactionManager
	Repo      port.RecordRepository
	IDs       port.IDIssuer
}

// CacheBundle holds the item cache. Expiring is the same cache seen by the sweeper.
type CacheBundle struct {
	Cache    port.ItemCache
	Expiring worker.ExpiringCache
	Redis    *redis.Client
}

// ProvideStore opens the configured record store.
// The sqlite backend runs the embedded migrations before returning.
func ProvideStore(cfg *Config, logger *zap.Logger) (*StoreBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	bundle := &StoreBundle{}

	switch cfg.Store.Backend {
	case StoreSQLite:
		conn, err := database.New(database.Config{
			Path:            cfg.Database.Path,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := database.NewMigrator(conn, logger).RunMigrations(sqlite.Migrations()); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		db := sqlite.NewDB(conn.DB, logger)
		bundle.Conn = conn
		bundle.TxManager = db
		bundle.Repo = sqlite.NewRecordRepository(db, logger)
		if cfg.Store.IDIssuer == IDSequence {
			bundle.IDs = sqlite.NewSequenceIssuer(db, logger)
		}

	case StoreSheet:
		files := storage.NewLocalFileStorage(cfg.Store.SheetDir, logger)
		bundle.Repo = sheet.NewRepository(files, cfg.Store.SheetName, logger)

	case StoreMemory:
		bundle.Repo = memory.NewStore()

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if bundle.IDs == nil {
		bundle.IDs = idgen.UUIDIssuer{}
	}

	logger.Info("Record store ready",
		zap.String("backend", cfg.Store.Backend),
		zap.String("id_issuer", cfg.Store.IDIssuer))

	return bundle, nil
}

// ProvideCache creates the configured item cache.
func ProvideCache(ctx context.Context, cfg *CacheConfig, logger *zap.Logger) (*CacheBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cache config is required")
	}

	switch cfg.Backend {
	case CacheMemory, "":
		c := appcache.NewMemoryCache(appcache.WithTTL(cfg.TTL), appcache.WithCapacity(cfg.Capacity))
		return &CacheBundle{Cache: c, Expiring: c}, nil

	case CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		c := infraCache.NewRedisCache(client, logger,
			infraCache.WithPrefix(cfg.RedisPrefix),
			infraCache.WithTTL(cfg.TTL),
			infraCache.WithCapacity(cfg.Capacity))
		if err := c.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return &CacheBundle{Cache: c, Expiring: c, Redis: client}, nil

	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// ProvideTransport creates the notification transport. The lark transport
// is wrapped with rate limiting and a circuit breaker.
func ProvideTransport(cfg *Config, logger *zap.Logger) (port.NotificationTransport, error) {
	switch cfg.Notification.Transport {
	case TransportLog, "":
		return notify.NewLogTransport(logger), nil

	case TransportLark:
		sdk := infraLark.NewSDKClient(infraLark.Config{
			AppID:          cfg.Lark.AppID,
			AppSecret:      cfg.Lark.AppSecret,
			BaseURL:        cfg.Lark.BaseURL,
			RequestTimeout: cfg.Notification.SendTimeout,
		}, logger)
		messenger := infraLark.NewMessenger(sdk, logger)

		rc := notify.DefaultResilienceConfig()
		rc.Name = "lark"
		if n := cfg.Notification; n.RatePerSecond > 0 {
			rc.RatePerSecond = n.RatePerSecond
			rc.Burst = n.Burst
		}
		if cfg.Notification.FailureThreshold > 0 {
			rc.FailureThreshold = cfg.Notification.FailureThreshold
		}
		if cfg.Notification.OpenTimeout > 0 {
			rc.OpenTimeout = cfg.Notification.OpenTimeout
		}
		return notify.NewResilientTransport(messenger, rc, logger), nil

	default:
		return nil, fmt.Errorf("unknown notification transport %q", cfg.Notification.Transport)
	}
}

// ProvideRegistry builds the kind registry from the built-in kinds and
// the per-kind configuration.
func ProvideRegistry(kinds map[string]KindConfig) (*kind.Registry, error) {
	var descriptors []*kind.Descriptor

	for _, name := range kind.DisputeKinds {
		kc := kinds[name]
		descriptors = append(descriptors, kind.NewDisputeKind(name, routingOf(kc), kc.Watchers))
	}
	for _, name := range kind.OrderKinds {
		kc := kinds[name]
		var predicate kind.Predicate
		if kc.AutoApproveMaxVolume > 0 {
			predicate = kind.VerifiedSmallOrder(kc.AutoApproveMaxVolume)
		}
		descriptors = append(descriptors, kind.NewOrderKind(name, routingOf(kc), kc.Watchers, predicate))
	}

	for name := range kinds {
		if !isBuiltin(name) {
			return nil, fmt.Errorf("kinds.%s: unknown kind", name)
		}
	}

	return kind.NewRegistry(descriptors...)
}

func routingOf(kc KindConfig) kind.Routing {
	r := kind.Routing{Field: kc.RoutingField}
	if len(kc.Pools) > 0 {
		r.Pools = make(map[string]entity.Actor, len(kc.Pools))
		for value, a := range kc.Pools {
			r.Pools[strings.ToLower(value)] = a.actor()
		}
	}
	if kc.DefaultAssignee != nil {
		def := kc.DefaultAssignee.actor()
		r.Default = &def
	}
	return r
}

func (a ActorConfig) actor() entity.Actor {
	return entity.Actor{ID: a.ID, Name: a.Name, Contact: a.Contact, Role: a.Role}
}

func isBuiltin(name string) bool {
	for _, k := range append(append([]string(nil), kind.DisputeKinds...), kind.OrderKinds...) {
		if k == name {
			return true
		}
	}
	return false
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(cfg *NotificationConfig, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{dispatcher.WithLogger(utils.NewKVLogger(logger).With("component", "dispatcher"))}
	if cfg != nil && cfg.HandlerTimeout > 0 {
		opts = append(opts, dispatcher.WithHandlerTimeout(cfg.HandlerTimeout))
	}
	return dispatcher.NewDispatcher(opts...), nil
}

// WorkflowDeps holds dependencies for the workflow engine.
type WorkflowDeps struct {
	Registry     *kind.Registry
	Store        *StoreBundle
	Cache        port.ItemCache
	Policy       access.Table
	Dispatcher   dispatcher.Dispatcher
	Transport    port.NotificationTransport
	Notification *NotificationConfig
	Metrics      *metrics.Recorder
	Logger       *zap.Logger
}

// ProvideWorkflowEngine creates the workflow service and subscribes the
// notification service to every transition event.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowService, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow deps are required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	table := deps.Policy
	if table == nil {
		table = access.DefaultTable()
	}

	kv := utils.NewKVLogger(deps.Logger)

	opts := []workflow.EngineOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(kv),
	}
	if deps.Store.TxManager != nil {
		opts = append(opts, workflow.WithTransactionManager(deps.Store.TxManager))
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithMetrics(deps.Metrics))
	}

	engine, err := workflow.NewEngine(
		deps.Registry,
		deps.Store.Repo,
		deps.Cache,
		access.NewPolicy(table),
		validation.New(),
		deps.Store.IDs,
		opts...,
	)
	if err != nil {
		return nil, err
	}

	if deps.Transport != nil && deps.Dispatcher != nil {
		var nopts []service.NotificationOption
		if n := deps.Notification; n != nil {
			nopts = append(nopts, service.WithSendTimeout(n.SendTimeout), service.WithConcurrency(n.Concurrency))
		}
		if deps.Metrics != nil {
			nopts = append(nopts, service.WithNotificationMetrics(deps.Metrics))
		}
		notifier := service.NewNotificationService(deps.Transport, deps.Registry, kv, nopts...)
		deps.Dispatcher.SubscribeAll("notification", notifier.HandleEvent)
	}

	return engine, nil
}

// ProvideWorkers creates the worker manager with its workers registered.
func ProvideWorkers(cache worker.ExpiringCache, cfg *CacheConfig, logger *zap.Logger) (*worker.WorkerManager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(logger)
	if cache != nil {
		manager.Register(worker.NewCacheSweeper(cache, cfg.SweepInterval, logger))
	}
	return manager, nil
}
