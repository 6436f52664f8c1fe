package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger  *zap.Logger
	checks  []registeredCheck
	timeout time.Duration
	mu      sync.RWMutex
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

type registeredCheck struct {
	check    HealthCheck
	critical bool
}

// ServiceHealthResponse 健康状态响应
type ServiceHealthResponse struct {
	Status               string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp            time.Time              `json:"timestamp"`
	Services             map[string]CheckResult `json:"services,omitempty"`
	CriticalServicesDown []string               `json:"critical_services_down"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status   string `json:"status"` // "pass", "fail"
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Critical bool   `json:"critical,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger,
		checks:  make([]registeredCheck, 0),
		timeout: 5 * time.Second,
	}
}

// RegisterCheck 注册非关键检查，失败时整体为 degraded
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.register(check, false)
}

// RegisterCriticalCheck 注册关键检查，失败时整体为 unhealthy
func (h *HealthHandler) RegisterCriticalCheck(check HealthCheck) {
	h.register(check, true)
}

func (h *HealthHandler) register(check HealthCheck, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, registeredCheck{check: check, critical: critical})
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求，聚合所有依赖服务的状态
// @Summary 健康检查
// @Description Redis、数据库、Mongo、凭证服务失败为 degraded；LLM 凭证不可用为 unhealthy
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "healthy 或 degraded"
// @Failure 503 {object} ServiceHealthResponse "unhealthy"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.evaluate(r.Context())
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

// HandleHealthz 处理 /healthz 请求（Kubernetes 风格）
// @Summary Kubernetes 活跃度探针
// @Description Kubernetes 的活跃度探针
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务处于活动状态"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	// Liveness probe - 只检查服务是否运行
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:               StatusHealthy,
		Timestamp:            time.Now(),
		CriticalServicesDown: []string{},
	})
}

// HandleReady 处理 /ready 请求（就绪检查）
// @Summary 准备情况检查
// @Description 任一检查失败即视为未就绪
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务已准备就绪"
// @Failure 503 {object} ServiceHealthResponse "服务尚未准备好"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	status := h.evaluate(r.Context())
	if status.Status != StatusHealthy {
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion 处理 /version 请求
// @Summary 版本信息
// @Description 返回版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		}

		WriteSuccess(w, info)
	}
}

// evaluate 并发执行全部检查
func (h *HealthHandler) evaluate(ctx context.Context) ServiceHealthResponse {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := make([]registeredCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, rc := range checks {
		g.Go(func() error {
			start := time.Now()
			err := rc.check.Check(ctx)
			latency := time.Since(start)

			res := CheckResult{Status: "pass", Latency: latency.String(), Critical: rc.critical}
			if err != nil {
				res.Status = "fail"
				res.Message = err.Error()
				h.logger.Warn("health check failed",
					zap.String("check", rc.check.Name()),
					zap.Bool("critical", rc.critical),
					zap.Error(err),
					zap.Duration("latency", latency),
				)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	status := ServiceHealthResponse{
		Status:               StatusHealthy,
		Timestamp:            time.Now(),
		Services:             make(map[string]CheckResult, len(checks)),
		CriticalServicesDown: []string{},
	}
	for i, rc := range checks {
		res := results[i]
		status.Services[rc.check.Name()] = res
		if res.Status == "pass" {
			continue
		}
		if rc.critical {
			status.Status = StatusUnhealthy
			status.CriticalServicesDown = append(status.CriticalServicesDown, rc.check.Name())
		} else if status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}
	sort.Strings(status.CriticalServicesDown)
	return status
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// PingCheck 以 ping 函数实现的健康检查，用于数据库、Redis、Mongo 等
type PingCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingCheck 创建健康检查
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{
		name: name,
		ping: ping,
	}
}

func (c *PingCheck) Name() string {
	return c.name
}

func (c *PingCheck) Check(ctx context.Context) error {
	return c.ping(ctx)
}
