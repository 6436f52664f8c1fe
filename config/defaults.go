// =============================================================================
// 📦 agentgate 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Auth:       DefaultAuthConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Mongo:      DefaultMongoConfig(),
		LLM:        DefaultLLMConfig(),
		Credential: DefaultCredentialConfig(),
		Engines:    DefaultEnginesConfig(),
		History:    DefaultHistoryConfig(),
		Background: DefaultBackgroundConfig(),
		Scheduler:  DefaultSchedulerConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8000,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxConnections:  0,
		CORSOrigins:     []string{"*"},
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultAuthConfig 返回默认身份配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{CookieName: "token"}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         true,
		Driver:          "mysql",
		Host:            "localhost",
		Port:            3306,
		User:            "root",
		Name:            "agentgate",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     false,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		Enabled:    false,
		Host:       "localhost",
		Port:       27017,
		AuthSource: "admin",
		Database:   "agentgate",
		Collection: "shared_conversation_history",
		Timeout:    5 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:            "https://api.openai.com/v1",
		Model:              "gpt-4o-mini",
		Temperature:        0.3,
		MaxTokens:          64,
		Timeout:            30 * time.Second,
		MaxRetries:         2,
		SummaryInputTokens: 512,
	}
}

// DefaultCredentialConfig 返回默认动态 Key 配置
func DefaultCredentialConfig() CredentialConfig {
	return CredentialConfig{
		Enabled:       false,
		Env:           "BASE",
		ExpireTime:    600 * time.Second,
		RefreshBefore: 120 * time.Second,
		MaxRetries:    3,
		Timeout:       10 * time.Second,
	}
}

// DefaultEnginesConfig 返回默认引擎配置
func DefaultEnginesConfig() EnginesConfig {
	return EnginesConfig{
		DefaultEngine: "uyun",
		Uyun: UyunConfig{
			BaseURL: "http://localhost:8001",
			Timeout: 3000 * time.Second,
		},
		Dify: DifyConfig{
			BaseURL: "http://localhost/v1",
			Timeout: 30 * time.Minute,
		},
		AgentFlow: AgentFlowConfig{
			BaseURL: "http://localhost:8002",
			Timeout: 1000 * time.Second,
		},
		RevealUnit:   "char",
		ThoughtDelay: 50 * time.Millisecond,
	}
}

// DefaultHistoryConfig 返回默认对话历史配置
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		TTL:         7 * 24 * time.Hour,
		KeyPrefix:   "chat_history:",
		StatePrefix: "chat_state:",
		MaxMessages: 200,
	}
}

// DefaultBackgroundConfig 返回默认后台执行器配置
func DefaultBackgroundConfig() BackgroundConfig {
	return BackgroundConfig{
		Workers:     8,
		QueueSize:   1024,
		TaskTimeout: time.Minute,
	}
}

// DefaultSchedulerConfig 返回默认定时任务配置
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:                 true,
		SummaryBackfillInterval: 10 * time.Minute,
		HistorySyncInterval:     30 * time.Minute,
		ArchiveCleanupInterval:  24 * time.Hour,
		ArchiveRetention:        90 * 24 * time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentgate",
		SampleRate:   0.1,
	}
}
