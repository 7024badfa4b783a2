package container

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/record-workflow/internal/application/workflow"
	"github.com/garyjia/record-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/record-workflow/internal/domain/workflow"
)

func memoryConfig() *Config {
	cfg := DefaultConfig()
	cfg.Store.Backend = StoreMemory
	cfg.Store.IDIssuer = IDUUID
	cfg.Cache.SweepInterval = 10 * time.Millisecond
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"unknown store", func(c *Config) { c.Store.Backend = "mongo" }, "unknown store backend"},
		{"sequence needs sqlite", func(c *Config) { c.Store.Backend = StoreMemory }, "sequence ids"},
		{"redis needs addr", func(c *Config) { c.Cache.Backend = CacheRedis }, "redis_addr"},
		{"lark needs credentials", func(c *Config) { c.Notification.Transport = TransportLark }, "lark.app_id"},
		{"pool without id", func(c *Config) {
			c.Kinds["technical"] = KindConfig{Pools: map[string]ActorConfig{"high": {Name: "Eng"}}}
		}, "kinds.technical.pools.high"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProvideRegistry(t *testing.T) {
	reg, err := ProvideRegistry(map[string]KindConfig{
		"technical": {
			RoutingField:    "priority",
			Pools:           map[string]ActorConfig{"HIGH": {ID: "eng-1", Role: entity.RoleEngineer}},
			DefaultAssignee: &ActorConfig{ID: "triage", Role: entity.RoleAgent},
		},
		"order_retail": {AutoApproveMaxVolume: 50},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"registration", "technical", "billing", "order_retail", "order_wholesale"}, reg.Names())

	tech, ok := reg.Get("technical")
	require.True(t, ok)
	got, ok := tech.Routing.Route(&entity.WorkflowItem{Payload: map[string]any{"priority": "high"}})
	require.True(t, ok)
	assert.Equal(t, "eng-1", got.ID)

	retail, _ := reg.Get("order_retail")
	assert.NotNil(t, retail.AutoApprove)
	wholesale, _ := reg.Get("order_wholesale")
	assert.Nil(t, wholesale.AutoApprove)

	_, err = ProvideRegistry(map[string]KindConfig{"refund": {}})
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(memoryConfig(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()))

	health := c.Health(context.Background())
	assert.True(t, health.Overall, "%+v", health.Components)
	require.Len(t, health.Workers, 1)
	assert.Equal(t, "CacheSweeper", health.Workers[0].Name)

	res, err := c.Workflow().Submit(context.Background(), workflow.SubmitRequest{
		Kind: "technical",
		Payload: map[string]any{
			"title":       "VPN down",
			"description": "cannot connect since morning",
			"priority":    "low",
		},
	}, entity.Actor{ID: "cust-1", Role: entity.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateSubmitted, res.Status)

	item, err := c.Workflow().GetByID(context.Background(), "technical", res.ID)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", item.SubmittedBy.ID)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}

func TestContainer_SQLiteAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "workflow.db")
	cfg.Cache.Backend = CacheRedis
	cfg.Cache.RedisAddr = mr.Addr()

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	res, err := c.Workflow().Submit(context.Background(), workflow.SubmitRequest{
		Kind: "order_retail",
		Payload: map[string]any{
			"customer_name":     "Ana",
			"customer_email":    "ana@example.com",
			"delivery_address":  "1 Main St",
			"volume":            10,
			"verified_customer": true,
		},
	}, entity.Actor{ID: "cust-1", Role: entity.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, "ORDER_RETAIL-000001", res.ID)

	health := c.Health(context.Background())
	assert.True(t, health.Components["store"].Healthy)
	assert.True(t, health.Components["cache"].Healthy)

	mr.Close()
	health = c.Health(context.Background())
	assert.False(t, health.Overall)
	assert.False(t, health.Components["cache"].Healthy)
}

func TestContainer_StartFailureReleasesResources(t *testing.T) {
	cfg := memoryConfig()
	cfg.Cache.Backend = CacheRedis
	cfg.Cache.RedisAddr = "127.0.0.1:1"

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize cache")
	assert.False(t, c.Ready())
}
