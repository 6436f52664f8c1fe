// =============================================================================
// AgentGate 主入口
// =============================================================================
// 对话编排服务入口，包含 HTTP 服务、健康检查、Prometheus 指标
//
// 使用方法:
//
//	agentgate serve                       # 启动服务
//	agentgate serve --config config.yaml  # 指定配置文件
//	agentgate health --ready              # 依赖全部通过才返回 0
//	agentgate migrate up                  # 运行数据库迁移
// =============================================================================

// @title AgentGate API
// @version 1.0.0
// @description AgentGate routes chat requests to uyun, Dify and AgentFlow engines and streams a unified event protocol.
// @description
// @description ## Features
// @description - Scene based engine routing
// @description - Streaming responses via SSE and WebSocket
// @description - Conversation history with Redis and MySQL
// @description - Health monitoring and metrics

// @contact.name AgentFlow Team
// @contact.url https://github.com/BaSui01/agentgate

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8000
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for task endpoints

package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentgate/config"
	"github.com/BaSui01/agentgate/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting AgentGate",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	server := NewServer(cfg, logger, otelProviders)
	if err := server.Start(); err != nil {
		server.Shutdown()
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	server.WaitForShutdown()

	logger.Info("AgentGate stopped")
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithValidator(func(c *config.Config) error { return c.Validate() })
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("AgentGate %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Printf(`AgentGate %s - routes chat by scene to uyun, Dify or AgentFlow

Usage:
  agentgate <command> [options]

Commands:
  serve     Start the gateway (HTTP, SSE, WebSocket, scheduler)
  migrate   Manage the MySQL/PostgreSQL/SQLite schema
  health    Query a running gateway's dependency status
  version   Show build information

serve:
  --config <path>     YAML config; AGENTGATE_* environment variables override it
                      (AGENTGATE_SERVER_HTTP_PORT, AGENTGATE_REDIS_ADDR, AGENTGATE_ENGINES_DIFY_BASE_URL, ...)

health:
  --addr <url>        Gateway base URL (default http://localhost:8000)
  --ready             Use /ready: degraded dependencies count as failure
  --timeout <dur>     Request timeout (default 5s)
  --json              Print the raw report
  Exit status is 1 when the gateway is unhealthy or unreachable.

migrate:
  up | down | status | info | version | reset
  steps <n> | goto <v> | force <v>
  --db-type <mysql|postgres|sqlite> --db-url <dsn> override the config database

Endpoints served:
  POST %s
  POST %s
  GET  %s
  GET  %s
  POST %s    (X-API-Key)
  POST %s    (X-API-Key)
  GET  /health /ready /version /metrics

Examples:
  agentgate serve --config /etc/agentgate/config.yaml
  AGENTGATE_LOG_LEVEL=debug agentgate serve
  agentgate migrate up --db-type mysql --db-url "user:pass@tcp(localhost:3306)/agentgate"
  agentgate health --ready --addr http://gateway:8000
`, Version, pathChat, pathChatStream, pathChatWS, pathMessages, pathTaskExecute, pathTaskControl)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Sampling = nil
	zcfg.DisableCaller = !cfg.EnableCaller
	zcfg.DisableStacktrace = !cfg.EnableStacktrace
	if len(cfg.OutputPaths) > 0 {
		zcfg.OutputPaths = cfg.OutputPaths
	}

	logger, err := zcfg.Build(zap.Fields(zap.String("service", "agentgate")))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
