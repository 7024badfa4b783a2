// Package container provides dependency injection and lifecycle management
// for the record workflow service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/record-workflow/internal/domain/access"
)

// Store backends
const (
	StoreSQLite = "sqlite"
	StoreSheet  = "sheet"
	StoreMemory = "memory"
)

// ID issuers
const (
	IDSequence = "sequence"
	IDUUID     = "uuid"
)

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Notification transports
const (
	TransportLark = "lark"
	TransportLog  = "log"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration, used by the sqlite store
	Database DatabaseConfig

	// Store selects the record repository and id issuer
	Store StoreConfig

	// Cache configuration
	Cache CacheConfig

	// Lark API configuration
	Lark LarkConfig

	// Notification configuration
	Notification NotificationConfig

	// Kinds configures routing, watchers and auto-approval per kind
	Kinds map[string]KindConfig

	// Policy is the permission table; nil uses access.DefaultTable
	Policy access.Table

	// Metrics namespace for Prometheus series
	MetricsNamespace string
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// StoreConfig selects where records live.
type StoreConfig struct {
	// Backend is one of sqlite, sheet, memory
	Backend string

	// SheetDir is the directory holding the workbook (sheet backend)
	SheetDir string

	// SheetName is the workbook file name (sheet backend)
	SheetName string

	// IDIssuer is sequence (sqlite only) or uuid
	IDIssuer string
}

// CacheConfig holds read cache settings.
type CacheConfig struct {
	Backend       string
	TTL           time.Duration
	Capacity      int
	SweepInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string

	// BaseURL overrides the open platform endpoint
	BaseURL string
}

// NotificationConfig holds delivery settings.
type NotificationConfig struct {
	// Transport is lark or log
	Transport string

	// HandlerTimeout bounds one async event handler run
	HandlerTimeout time.Duration

	// SendTimeout bounds one message send
	SendTimeout time.Duration

	// Concurrency bounds parallel sends per event
	Concurrency int

	RatePerSecond    float64
	Burst            int
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// KindConfig configures one kind.
type KindConfig struct {
	// RoutingField is the payload field that selects a pool
	RoutingField string

	// Pools maps a routing field value to an assignee
	Pools map[string]ActorConfig

	// DefaultAssignee is used when no pool matches
	DefaultAssignee *ActorConfig

	// Watchers are contacts notified of every transition
	Watchers []string

	// AutoApproveMaxVolume enables verified small order auto-approval
	// for order kinds when positive
	AutoApproveMaxVolume float64
}

// ActorConfig is an assignee in routing tables.
type ActorConfig struct {
	ID      string
	Name    string
	Contact string
	Role    string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/workflow.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Store: StoreConfig{
			Backend:   StoreSQLite,
			SheetDir:  "data",
			SheetName: "workflow.xlsx",
			IDIssuer:  IDSequence,
		},
		Cache: CacheConfig{
			Backend:       CacheMemory,
			TTL:           5 * time.Minute,
			Capacity:      100,
			SweepInterval: time.Minute,
			RedisPrefix:   "workflow",
		},
		Notification: NotificationConfig{
			Transport:        TransportLog,
			HandlerTimeout:   10 * time.Second,
			SendTimeout:      5 * time.Second,
			Concurrency:      4,
			RatePerSecond:    5,
			Burst:            10,
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		Kinds: map[string]KindConfig{
			"order_retail":    {AutoApproveMaxVolume: 50},
			"order_wholesale": {},
		},
		MetricsNamespace: "workflow",
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite store")
		}
	case StoreSheet:
		if c.Store.SheetDir == "" || c.Store.SheetName == "" {
			return fmt.Errorf("store.sheet_dir and store.sheet_name are required for the sheet store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Store.IDIssuer {
	case IDUUID:
	case IDSequence:
		if c.Store.Backend != StoreSQLite {
			return fmt.Errorf("sequence ids require the sqlite store")
		}
	default:
		return fmt.Errorf("unknown id issuer %q", c.Store.IDIssuer)
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	switch c.Notification.Transport {
	case TransportLog:
	case TransportLark:
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	default:
		return fmt.Errorf("unknown notification transport %q", c.Notification.Transport)
	}

	for name, k := range c.Kinds {
		for value, a := range k.Pools {
			if a.ID == "" {
				return fmt.Errorf("kinds.%s.pools.%s: assignee id is required", name, value)
			}
		}
		if k.DefaultAssignee != nil && k.DefaultAssignee.ID == "" {
			return fmt.Errorf("kinds.%s.default_assignee: id is required", name)
		}
	}

	return nil
}
