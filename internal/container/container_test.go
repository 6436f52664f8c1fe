package container

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/config"
	"github.com/BaSui01/agentgate/history"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Database.Enabled = false
	cfg.Mongo.Enabled = false
	cfg.Credential.Enabled = false
	cfg.LLM.APIKey = "sk-test"
	cfg.Engines.Uyun.BaseURL = "http://uyun.local"
	cfg.Scheduler.Enabled = false
	return cfg
}

func probeNames(c *Container) map[string]bool {
	out := map[string]bool{}
	for _, p := range c.Probes() {
		out[p.Name] = p.Critical
	}
	return out
}

func TestBuild_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.Addr = mr.Addr()

	c, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	assert.NotNil(t, c.Cache)
	assert.Nil(t, c.Store)
	assert.Nil(t, c.Archive)
	assert.NotNil(t, c.Router)
	assert.NotNil(t, c.Sessions)

	names := probeNames(c)
	assert.Equal(t, map[string]bool{"redis": false, "llm_credential": true}, names)
	for _, p := range c.Probes() {
		assert.NoError(t, p.Check(context.Background()), p.Name)
	}

	// 无关系库与 Mongo 时不注册任何任务
	assert.Empty(t, c.Scheduler.Jobs())
}

func TestBuild_RedisDownDegrades(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.Addr = "127.0.0.1:1"

	c, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	assert.Nil(t, c.Cache)
	require.NotNil(t, c.History)
	ctx := context.Background()
	require.NoError(t, c.History.AddMessages(ctx, "t1", history.Message{Role: history.RoleUser, Content: "hi"}))
	msgs, err := c.History.Messages(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	var redis *Probe
	for _, p := range c.Probes() {
		if p.Name == "redis" {
			redis = &p
		}
	}
	require.NotNil(t, redis)
	assert.False(t, redis.Critical)
	assert.Error(t, redis.Check(context.Background()))
}

func TestBuild_CredentialServiceProbe(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.Addr = mr.Addr()
	cfg.Credential.Enabled = true
	cfg.Credential.URL = "http://127.0.0.1:1/key"
	cfg.Credential.MaxRetries = 1

	c, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	names := probeNames(c)
	critical, ok := names["credential_service"]
	require.True(t, ok)
	assert.False(t, critical)
}

func TestBuild_RejectsBadEngineConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Engines.DefaultEngine = "nope"

	_, err := Build(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestClose_ReverseOrder(t *testing.T) {
	c := &Container{Logger: zap.NewNop()}
	var order []string
	c.onClose("a", func(context.Context) error { order = append(order, "a"); return nil })
	c.onClose("b", func(context.Context) error { order = append(order, "b"); return nil })
	c.onClose("c", func(context.Context) error { order = append(order, "c"); return assert.AnError })

	err := c.Close(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"c", "b", "a"}, order)
	assert.NoError(t, c.Close(context.Background()))
}
