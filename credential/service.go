package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/agentgate/config"
	"github.com/BaSui01/agentgate/internal/tlsutil"
	"github.com/BaSui01/agentgate/llm/retry"
	"github.com/BaSui01/agentgate/types"
)

const (
	defaultExpire        = 600 * time.Second
	defaultRefreshBefore = 120 * time.Second
	defaultEnv           = "BASE"
)

// Recorder 刷新结果指标
type Recorder interface {
	RecordCredentialRefresh(status string)
}

// Option 配置 Service
type Option func(*Service)

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(h *http.Client) Option {
	return func(s *Service) { s.http = h }
}

// WithRetryPolicy 替换重试策略
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = &p }
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service 动态获取 LLM API Key。
// Key 在 expire-refreshBefore 后视为待刷新；并发刷新合并为一次远程调用。
// 远程失败时依次回落到上次获取的 Key 与配置中的固定 Key。
type Service struct {
	cfg      config.CredentialConfig
	fallback string
	http     *http.Client
	policy   *retry.Policy
	retryer  *retry.Retryer
	recorder Recorder
	now      func() time.Time
	logger   *zap.Logger

	group     singleflight.Group
	mu        sync.RWMutex
	key       string
	fetchedAt time.Time
}

// NewService 创建服务；fallbackKey 为配置文件中的固定 Key
func NewService(cfg config.CredentialConfig, fallbackKey string, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ExpireTime <= 0 {
		cfg.ExpireTime = defaultExpire
	}
	if cfg.RefreshBefore <= 0 || cfg.RefreshBefore >= cfg.ExpireTime {
		cfg.RefreshBefore = defaultRefreshBefore
	}
	if cfg.Env == "" {
		cfg.Env = defaultEnv
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &Service{
		cfg:      cfg,
		fallback: fallbackKey,
		http:     tlsutil.SecureHTTPClient(timeout),
		now:      time.Now,
		logger:   logger.With(zap.String("component", "credential")),
	}
	for _, opt := range opts {
		opt(s)
	}
	policy := retry.DefaultPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries - 1
	}
	if s.policy != nil {
		policy = *s.policy
	}
	s.retryer = retry.New(policy, s.logger)
	return s
}

// Enabled 是否启用动态获取
func (s *Service) Enabled() bool { return s.cfg.Enabled }

// Init 启动时预取一次，失败只记录日志
func (s *Service) Init(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("动态 API key 已禁用，使用配置文件值")
		return
	}
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn("初始获取 API key 失败，将使用备用值", zap.Error(err))
		return
	}
	s.logger.Info("已获取初始 API key")
}

// APIKey 返回当前有效 Key，实现 llm.KeyProvider
func (s *Service) APIKey(ctx context.Context) string {
	if !s.cfg.Enabled {
		return s.fallback
	}
	if key, fresh := s.cached(); fresh {
		return key
	}
	key, err := s.Refresh(ctx)
	if err == nil {
		return key
	}
	s.logger.Error("获取 API key 失败", zap.Error(err))
	if old, _ := s.cached(); old != "" {
		s.logger.Warn("使用旧的 API key（可能已过期）")
		return old
	}
	s.logger.Warn("使用配置文件中的备用 API key")
	return s.fallback
}

// Refresh 强制刷新，并发调用共享同一次远程请求
func (s *Service) Refresh(ctx context.Context) (string, error) {
	if !s.cfg.Enabled {
		return s.fallback, nil
	}
	v, err, _ := s.group.Do("api_key", func() (any, error) {
		key, err := retry.Do(ctx, s.retryer, s.fetch)
		if err != nil {
			s.record("failure")
			return "", types.NewError(types.ErrCredentialFetch, "fetch api key").
				WithCause(err).WithHTTPStatus(http.StatusServiceUnavailable).WithRetryable(true)
		}
		s.mu.Lock()
		s.key = key
		s.fetchedAt = s.now()
		s.mu.Unlock()
		s.record("success")
		s.logger.Info("API key 已刷新")
		return key, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Check 用于健康检查：无任何可用 Key 时返回错误
func (s *Service) Check(ctx context.Context) error {
	if s.APIKey(ctx) != "" {
		return nil
	}
	return types.NewError(types.ErrCredentialFetch, "no llm api key available").
		WithHTTPStatus(http.StatusServiceUnavailable)
}

// ServiceCheck 用于健康检查：启用时确认远程服务可达，Key 仍新鲜时不发起请求
func (s *Service) ServiceCheck(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	if _, fresh := s.cached(); fresh {
		return nil
	}
	_, err := s.Refresh(ctx)
	return err
}

// cached 返回缓存 Key 及其是否仍在刷新窗口之前
func (s *Service) cached() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == "" {
		return "", false
	}
	return s.key, s.now().Sub(s.fetchedAt) < s.cfg.ExpireTime-s.cfg.RefreshBefore
}

func (s *Service) record(status string) {
	if s.recorder != nil {
		s.recorder.RecordCredentialRefresh(status)
	}
}

type keyResponse struct {
	RspBody *struct {
		Result string `json:"result"`
	} `json:"RSP_BODY"`
}

// fetch 以 multipart 表单提交 REQ_MESSAGE，从 RSP_BODY.result 读取 Key
func (s *Service) fetch(ctx context.Context) (string, error) {
	body, contentType, err := s.requestBody()
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Jumpcloud-Env", s.cfg.Env)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post credential service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("credential service status %d: %s", resp.StatusCode, raw)
	}

	var out keyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode credential response: %w", err)
	}
	if out.RspBody == nil {
		return "", errors.New("响应中缺少 'RSP_BODY' 字段")
	}
	if out.RspBody.Result == "" {
		return "", errors.New("响应中缺少 'result' 字段")
	}
	return out.RspBody.Result, nil
}

func (s *Service) requestBody() (*bytes.Buffer, string, error) {
	msg, err := json.Marshal(map[string]any{
		"REQ_HEAD": map[string]any{},
		"REQ_BODY": map[string]string{"sceneCode": s.cfg.SceneCode},
	})
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="REQ_MESSAGE"`)
	h.Set("Content-Type", "application/json")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(msg); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
