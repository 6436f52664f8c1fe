// =============================================================================
// 📦 agentgate 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTGATE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 agentgate 的完整配置结构
type Config struct {
	Server     ServerConfig     `yaml:"server" env:"SERVER"`
	Auth       AuthConfig       `yaml:"auth" env:"AUTH"`
	Redis      RedisConfig      `yaml:"redis" env:"REDIS"`
	Database   DatabaseConfig   `yaml:"database" env:"DATABASE"`
	Mongo      MongoConfig      `yaml:"mongo" env:"MONGO"`
	LLM        LLMConfig        `yaml:"llm" env:"LLM"`
	Credential CredentialConfig `yaml:"credential" env:"CREDENTIAL"`
	Engines    EnginesConfig    `yaml:"engines" env:"ENGINES"`
	History    HistoryConfig    `yaml:"history" env:"HISTORY"`
	Background BackgroundConfig `yaml:"background" env:"BACKGROUND"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" env:"SCHEDULER"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort    int `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，0 表示不限制（SSE 长连接）
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 最大并发连接数，0 表示不限制
	MaxConnections int `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	// API Key 列表，为空时跳过 API Key 校验
	APIKeys          []string `yaml:"api_keys" env:"API_KEYS"`
	AllowQueryAPIKey bool     `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	CORSOrigins      []string `yaml:"cors_origins" env:"CORS_ORIGINS"`
	RateLimitRPS     int      `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst   int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// AuthConfig 用户身份解析配置（token cookie / Bearer JWT）
type AuthConfig struct {
	// Cookie 名称
	CookieName string `yaml:"cookie_name" env:"COOKIE_NAME"`
	// HMAC 密钥；与 PublicKey 均为空时不校验签名，仅解析 claims
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
	// 是否要求所有对话请求携带有效身份
	Required bool `yaml:"required" env:"REQUIRED"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 关系数据库配置
type DatabaseConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: mysql, postgres, sqlite
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// MongoConfig 对话归档（可选）
type MongoConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 完整 URI，设置后忽略 Host/Port
	URI        string        `yaml:"uri" env:"URI"`
	Host       string        `yaml:"host" env:"HOST"`
	Port       int           `yaml:"port" env:"PORT"`
	User       string        `yaml:"user" env:"USER"`
	Password   string        `yaml:"password" env:"PASSWORD"`
	AuthSource string        `yaml:"auth_source" env:"AUTH_SOURCE"`
	Database   string        `yaml:"database" env:"DATABASE"`
	Collection string        `yaml:"collection" env:"COLLECTION"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LLMConfig 摘要生成使用的 LLM 配置
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	Model       string        `yaml:"model" env:"MODEL"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries  int           `yaml:"max_retries" env:"MAX_RETRIES"`
	// 摘要提示词中问题的最大 token 数
	SummaryInputTokens int `yaml:"summary_input_tokens" env:"SUMMARY_INPUT_TOKENS"`
}

// CredentialConfig 动态 API Key 服务配置
type CredentialConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	URL       string `yaml:"url" env:"URL"`
	SceneCode string `yaml:"scene_code" env:"SCENE_CODE"`
	// Jumpcloud-Env 请求头
	Env           string        `yaml:"env" env:"ENV"`
	ExpireTime    time.Duration `yaml:"expire_time" env:"EXPIRE_TIME"`
	RefreshBefore time.Duration `yaml:"refresh_before" env:"REFRESH_BEFORE"`
	MaxRetries    int           `yaml:"max_retries" env:"MAX_RETRIES"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// EnginesConfig 上游引擎配置
type EnginesConfig struct {
	// 缺少 scene 时使用的引擎: uyun, dify, agentflow
	DefaultEngine string          `yaml:"default_engine" env:"DEFAULT_ENGINE"`
	Uyun          UyunConfig      `yaml:"uyun" env:"UYUN"`
	Dify          DifyConfig      `yaml:"dify" env:"DIFY"`
	AgentFlow     AgentFlowConfig `yaml:"agentflow" env:"AGENTFLOW"`
	// 折叠思考过程的场景名
	FoldedThinkingScenes []string `yaml:"folded_thinking_scenes" env:"FOLDED_THINKING_SCENES"`
	// 逐字展示单位: char, token
	RevealUnit string `yaml:"reveal_unit" env:"REVEAL_UNIT"`
	// 思考内容逐字展示间隔（由 SSE 写出端执行）
	ThoughtDelay time.Duration `yaml:"thought_delay" env:"THOUGHT_DELAY"`
}

// UyunConfig 多智能体引擎
type UyunConfig struct {
	BaseURL   string        `yaml:"base_url" env:"BASE_URL"`
	AgentCode string        `yaml:"agent_code" env:"AGENT_CODE"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DifyConfig Dify 默认路由，scene_routes 表未命中时使用
type DifyConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// AgentFlowConfig agentflow 平台
type AgentFlowConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// HistoryConfig 对话历史缓存配置
type HistoryConfig struct {
	TTL         time.Duration `yaml:"ttl" env:"TTL"`
	KeyPrefix   string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	StatePrefix string        `yaml:"state_prefix" env:"STATE_PREFIX"`
	// 单次读取的最大消息数
	MaxMessages int `yaml:"max_messages" env:"MAX_MESSAGES"`
}

// BackgroundConfig 后台任务执行器
type BackgroundConfig struct {
	Workers     int           `yaml:"workers" env:"WORKERS"`
	QueueSize   int           `yaml:"queue_size" env:"QUEUE_SIZE"`
	TaskTimeout time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
}

// SchedulerConfig 定时任务
type SchedulerConfig struct {
	Enabled                 bool          `yaml:"enabled" env:"ENABLED"`
	SummaryBackfillInterval time.Duration `yaml:"summary_backfill_interval" env:"SUMMARY_BACKFILL_INTERVAL"`
	HistorySyncInterval     time.Duration `yaml:"history_sync_interval" env:"HISTORY_SYNC_INTERVAL"`
	ArchiveCleanupInterval  time.Duration `yaml:"archive_cleanup_interval" env:"ARCHIVE_CLEANUP_INTERVAL"`
	ArchiveRetention        time.Duration `yaml:"archive_retention" env:"ARCHIVE_RETENTION"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: "AGENTGATE"}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// setFieldsFromEnv 递归设置结构体字段，键名为 PREFIX_SECTION_FIELD
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := parts[:0]
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

var validEngines = map[string]bool{"uyun": true, "dify": true, "agentflow": true}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if !validEngines[c.Engines.DefaultEngine] {
		errs = append(errs, fmt.Sprintf("unknown default engine %q", c.Engines.DefaultEngine))
	}
	if u := c.Engines.RevealUnit; u != "char" && u != "token" {
		errs = append(errs, fmt.Sprintf("reveal_unit must be char or token, got %q", u))
	}
	if c.Database.Enabled {
		switch c.Database.Driver {
		case "mysql", "postgres", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
		}
	}
	if c.Credential.Enabled {
		if c.Credential.URL == "" {
			errs = append(errs, "credential.url is required when credential service is enabled")
		}
		if c.Credential.RefreshBefore >= c.Credential.ExpireTime {
			errs = append(errs, "credential.refresh_before must be less than expire_time")
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}
	if c.Background.Workers <= 0 {
		errs = append(errs, "background.workers must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=Local",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// ConnectionURI 返回 MongoDB 连接串
func (m *MongoConfig) ConnectionURI() string {
	if m.URI != "" {
		return m.URI
	}
	return fmt.Sprintf("mongodb://%s:%d", m.Host, m.Port)
}
