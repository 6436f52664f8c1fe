package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/api/handlers"
	"github.com/BaSui01/agentgate/config"
	"github.com/BaSui01/agentgate/internal/container"
	"github.com/BaSui01/agentgate/internal/metrics"
	"github.com/BaSui01/agentgate/internal/server"
	"github.com/BaSui01/agentgate/internal/telemetry"
)

// 路由
const (
	pathChat        = "/bitmind/service/api/v2/chat"
	pathChatStream  = "/api/v1/chat/stream"
	pathChatWS      = "/api/v1/chat/ws"
	pathTaskExecute = "/api/v1/task/execute"
	pathTaskControl = "/api/v1/task/control"
	pathMessages    = "/api/v1/conversations/{id}/messages"
)

// publicPaths 免身份与 API Key 校验
var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AgentGate 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	container *container.Container
	collector *metrics.Collector

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler  *handlers.HealthHandler
	chatHandler    *handlers.ChatHandler
	taskHandler    *handlers.TaskHandler
	historyHandler *handlers.HistoryHandler

	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{cfg: cfg, logger: logger, otel: otel}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 指标收集器
	s.collector = metrics.NewCollector("agentgate", s.logger)

	// 2. 组件容器
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	c, err := container.Build(ctx, s.cfg, s.logger, container.WithMetrics(s.collector))
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}
	s.container = c

	// 3. Handlers
	s.initHandlers()

	// 4. HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	for _, p := range s.container.Probes() {
		check := handlers.NewPingCheck(p.Name, p.Check)
		if p.Critical {
			s.healthHandler.RegisterCriticalCheck(check)
		} else {
			s.healthHandler.RegisterCheck(check)
		}
	}

	s.chatHandler = handlers.NewChatHandler(s.container.Router, s.logger,
		handlers.WithOriginPatterns(originPatterns(s.cfg.Server.CORSOrigins)...))
	s.taskHandler = handlers.NewTaskHandler(s.container.Scheduler, s.logger)
	s.historyHandler = handlers.NewHistoryHandler(s.container.History, s.logger)

	s.logger.Info("Handlers initialized")
}

// originPatterns 把 CORS 来源转换成 WebSocket 的 host 匹配模式
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u := hostOf(o); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func hostOf(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册全部路由
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 对话
	mux.HandleFunc("POST "+pathChat, s.chatHandler.HandleStream)
	mux.HandleFunc("POST "+pathChatStream, s.chatHandler.HandleStream)
	mux.HandleFunc("GET "+pathChatWS, s.chatHandler.HandleWebSocket)
	mux.HandleFunc("GET "+pathMessages, s.historyHandler.HandleMessages)

	// 任务接口（API Key 保护）
	taskAuth := APIKeyAuth(s.cfg.Server.APIKeys, nil, s.cfg.Server.AllowQueryAPIKey, s.logger)
	mux.Handle("POST "+pathTaskExecute, taskAuth(http.HandlerFunc(s.taskHandler.HandleExecute)))
	mux.Handle("POST "+pathTaskControl, taskAuth(http.HandlerFunc(s.taskHandler.HandleControl)))

	return mux
}

func (s *Server) startHTTPServer() error {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSOrigins),
		Identity(s.cfg.Auth, publicPaths, s.logger),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		MaxConnections:  s.cfg.Server.MaxConnections,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForSignal(context.Background())
	}
	s.Shutdown()
}

// Shutdown 依次关闭 HTTP、Metrics、组件容器与遥测
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")
	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.container != nil {
		if err := s.container.Shutdown(); err != nil {
			s.logger.Error("Container shutdown error", zap.Error(err))
		}
	}

	if s.otel != nil {
		otelCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.otel.Shutdown(otelCtx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
