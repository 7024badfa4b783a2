package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig          `mapstructure:"server"`
	Database     DatabaseConfig        `mapstructure:"database"`
	Store        StoreConfig           `mapstructure:"store"`
	Cache        CacheConfig           `mapstructure:"cache"`
	Lark         LarkConfig            `mapstructure:"lark"`
	Notification NotificationConfig    `mapstructure:"notification"`
	Auth         AuthConfig            `mapstructure:"auth"`
	Logger       LoggerConfig          `mapstructure:"logger"`
	Kinds        map[string]KindConfig `mapstructure:"kinds"`
	PolicyFile   string                `mapstructure:"policy_file"`
	Metrics      MetricsConfig         `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StoreConfig selects the record store
type StoreConfig struct {
	Backend   string `mapstructure:"backend"`
	SheetDir  string `mapstructure:"sheet_dir"`
	SheetName string `mapstructure:"sheet_name"`
	IDIssuer  string `mapstructure:"id_issuer"`
}

// CacheConfig holds item cache configuration
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	Capacity      int           `mapstructure:"capacity"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

// NotificationConfig holds notification delivery configuration
type NotificationConfig struct {
	Transport        string        `mapstructure:"transport"`
	HandlerTimeout   time.Duration `mapstructure:"handler_timeout"`
	SendTimeout      time.Duration `mapstructure:"send_timeout"`
	Concurrency      int           `mapstructure:"concurrency"`
	RatePerSecond    float64       `mapstructure:"rate_per_second"`
	Burst            int           `mapstructure:"burst"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	// AllowAnonymous lets requests without a token through as the public role
	AllowAnonymous bool `mapstructure:"allow_anonymous"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// KindConfig configures routing, watchers and auto-approval of one kind
type KindConfig struct {
	RoutingField         string                 `mapstructure:"routing_field"`
	Pools                map[string]ActorConfig `mapstructure:"pools"`
	DefaultAssignee      *ActorConfig           `mapstructure:"default_assignee"`
	Watchers             []string               `mapstructure:"watchers"`
	AutoApproveMaxVolume float64                `mapstructure:"auto_approve_max_volume"`
}

// ActorConfig names an assignee
type ActorConfig struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	Contact string `mapstructure:"contact"`
	Role    string `mapstructure:"role"`
}

// Load reads configuration from a .env file (when present), the YAML file
// at configPath and environment variables, in increasing precedence
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	err := gotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.mode", "release")

	// Database defaults
	v.SetDefault("database.path", "data/workflow.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Store defaults
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sheet_dir", "data")
	v.SetDefault("store.sheet_name", "workflow.xlsx")
	v.SetDefault("store.id_issuer", "sequence")

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.capacity", 100)
	v.SetDefault("cache.sweep_interval", time.Minute)
	v.SetDefault("cache.redis_prefix", "workflow")

	// Notification defaults
	v.SetDefault("notification.transport", "log")
	v.SetDefault("notification.handler_timeout", 10*time.Second)
	v.SetDefault("notification.send_timeout", 5*time.Second)
	v.SetDefault("notification.concurrency", 4)
	v.SetDefault("notification.rate_per_second", 5)
	v.SetDefault("notification.burst", 10)
	v.SetDefault("notification.failure_threshold", 5)
	v.SetDefault("notification.open_timeout", 30*time.Second)

	// Auth defaults
	v.SetDefault("auth.allow_anonymous", true)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("metrics.namespace", "workflow")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	v.BindEnv("lark.app_id", "LARK_APP_ID")
	v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	v.BindEnv("cache.redis_password", "REDIS_PASSWORD")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	switch c.Store.Backend {
	case "sqlite", "sheet", "memory":
	default:
		return fmt.Errorf("store.backend %q is not one of sqlite, sheet, memory", c.Store.Backend)
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend %q is not one of memory, redis", c.Cache.Backend)
	}

	switch c.Notification.Transport {
	case "log":
	case "lark":
		// Validate Lark credentials
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	default:
		return fmt.Errorf("notification.transport %q is not one of log, lark", c.Notification.Transport)
	}

	if !c.Auth.AllowAnonymous && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when anonymous access is disabled")
	}

	return nil
}
