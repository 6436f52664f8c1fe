package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, AuthConfig{}, cfg.Auth)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, MongoConfig{}, cfg.Mongo)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, CredentialConfig{}, cfg.Credential)
	assert.NotEqual(t, HistoryConfig{}, cfg.History)
	assert.NotEqual(t, BackgroundConfig{}, cfg.Background)
	assert.NotEqual(t, SchedulerConfig{}, cfg.Scheduler)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8000, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Zero(t, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.AllowQueryAPIKey)
	assert.Equal(t, 100, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "mysql", cfg.Driver)
	assert.Equal(t, 3306, cfg.Port)
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
}

func TestDefaultMongoConfig(t *testing.T) {
	cfg := DefaultMongoConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 27017, cfg.Port)
	assert.Equal(t, "admin", cfg.AuthSource)
}

func TestDefaultCredentialConfig(t *testing.T) {
	cfg := DefaultCredentialConfig()
	assert.Equal(t, 600*time.Second, cfg.ExpireTime)
	assert.Equal(t, 120*time.Second, cfg.RefreshBefore)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "BASE", cfg.Env)
}

func TestDefaultEnginesConfig(t *testing.T) {
	cfg := DefaultEnginesConfig()
	assert.Equal(t, "uyun", cfg.DefaultEngine)
	assert.Equal(t, 3000*time.Second, cfg.Uyun.Timeout)
	assert.Equal(t, 1000*time.Second, cfg.AgentFlow.Timeout)
	assert.Equal(t, "char", cfg.RevealUnit)
	assert.Equal(t, 50*time.Millisecond, cfg.ThoughtDelay)
}

func TestDefaultHistoryConfig(t *testing.T) {
	cfg := DefaultHistoryConfig()
	assert.Equal(t, 7*24*time.Hour, cfg.TTL)
	assert.Equal(t, "chat_history:", cfg.KeyPrefix)
	assert.Equal(t, "chat_state:", cfg.StatePrefix)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
}
