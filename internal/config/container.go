package config

import (
	"github.com/garyjia/record-workflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// The permission table is loaded from PolicyFile.
func (c *Config) ToContainerConfig() (*container.Config, error) {
	policy, err := LoadPolicy(c.PolicyFile)
	if err != nil {
		return nil, err
	}

	kinds := make(map[string]container.KindConfig, len(c.Kinds))
	for name, k := range c.Kinds {
		kc := container.KindConfig{
			RoutingField:         k.RoutingField,
			Watchers:             k.Watchers,
			AutoApproveMaxVolume: k.AutoApproveMaxVolume,
		}
		if len(k.Pools) > 0 {
			kc.Pools = make(map[string]container.ActorConfig, len(k.Pools))
			for value, a := range k.Pools {
				kc.Pools[value] = container.ActorConfig(a)
			}
		}
		if k.DefaultAssignee != nil {
			def := container.ActorConfig(*k.DefaultAssignee)
			kc.DefaultAssignee = &def
		}
		kinds[name] = kc
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Store: container.StoreConfig{
			Backend:   c.Store.Backend,
			SheetDir:  c.Store.SheetDir,
			SheetName: c.Store.SheetName,
			IDIssuer:  c.Store.IDIssuer,
		},
		Cache: container.CacheConfig{
			Backend:       c.Cache.Backend,
			TTL:           c.Cache.TTL,
			Capacity:      c.Cache.Capacity,
			SweepInterval: c.Cache.SweepInterval,
			RedisAddr:     c.Cache.RedisAddr,
			RedisPassword: c.Cache.RedisPassword,
			RedisDB:       c.Cache.RedisDB,
			RedisPrefix:   c.Cache.RedisPrefix,
		},
		Lark: container.LarkConfig{
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			BaseURL:   c.Lark.BaseURL,
		},
		Notification: container.NotificationConfig{
			Transport:        c.Notification.Transport,
			HandlerTimeout:   c.Notification.HandlerTimeout,
			SendTimeout:      c.Notification.SendTimeout,
			Concurrency:      c.Notification.Concurrency,
			RatePerSecond:    c.Notification.RatePerSecond,
			Burst:            c.Notification.Burst,
			FailureThreshold: c.Notification.FailureThreshold,
			OpenTimeout:      c.Notification.OpenTimeout,
		},
		Kinds:            kinds,
		Policy:           policy,
		MetricsNamespace: c.Metrics.Namespace,
	}, nil
}
