package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/config"
	"github.com/BaSui01/agentgate/internal/telemetry"
	"github.com/BaSui01/agentgate/internal/tlsutil"
	"github.com/BaSui01/agentgate/llm/retry"
	"github.com/BaSui01/agentgate/types"
)

const (
	chatCompletionsPath = "/chat/completions"
	providerName        = "llm"
)

// Message OpenAI 兼容消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 补全请求，零值字段使用客户端配置
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// Usage token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse 补全结果
type ChatResponse struct {
	ID      string
	Model   string
	Content string
	Usage   Usage
}

type chatPayload struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatResult struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Recorder LLM 调用指标
type Recorder interface {
	RecordLLMRequest(model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// Option 配置 Client
type Option func(*Client)

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithRetryPolicy 替换重试策略
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = &p }
}

// Client OpenAI 兼容的补全客户端，用于会话摘要
type Client struct {
	cfg      config.LLMConfig
	keys     KeyProvider
	http     *http.Client
	retryer  *retry.Retryer
	policy   *retry.Policy
	recorder Recorder
	logger   *zap.Logger
}

// NewClient 创建客户端；keys 为 nil 时使用配置中的固定 Key
func NewClient(cfg config.LLMConfig, keys KeyProvider, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keys == nil {
		keys = StaticKey(cfg.APIKey)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		keys:   keys,
		http:   tlsutil.SecureHTTPClient(timeout),
		logger: logger.With(zap.String("component", "llm")),
	}
	for _, opt := range opts {
		opt(c)
	}
	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.ShouldRetry = types.IsRetryable
	if c.policy != nil {
		policy = *c.policy
	}
	c.retryer = retry.New(policy, c.logger)
	return c
}

// Model 返回默认模型名
func (c *Client) Model() string { return c.cfg.Model }

// Chat 执行非流式补全，可重试错误按策略重试
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	payload := chatPayload{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if payload.Temperature == nil {
		t := c.cfg.Temperature
		payload.Temperature = &t
	}
	if payload.MaxTokens == 0 {
		payload.MaxTokens = c.cfg.MaxTokens
	}

	ctx, span := telemetry.StartSpan(ctx, "llm.chat", attribute.String("llm.model", model))
	start := time.Now()
	resp, err := retry.Do(ctx, c.retryer, func(ctx context.Context) (*ChatResponse, error) {
		return c.chatOnce(ctx, payload)
	})
	telemetry.EndSpan(span, err)

	if c.recorder != nil {
		status, prompt, completion := "success", 0, 0
		if err != nil {
			status = "error"
		} else {
			prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
		}
		c.recorder.RecordLLMRequest(model, status, time.Since(start), prompt, completion)
	}
	return resp, err
}

func (c *Client) chatOnce(ctx context.Context, payload chatPayload) (*ChatResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(chatCompletionsPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.buildHeaders(ctx, httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamTransport, err.Error()).
			WithCause(err).WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithProvider(providerName)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp)
	}

	var out chatResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrParse, "decode completion").
			WithCause(err).WithHTTPStatus(http.StatusBadGateway).WithProvider(providerName)
	}
	if len(out.Choices) == 0 {
		return nil, types.NewError(types.ErrParse, "completion has no choices").
			WithHTTPStatus(http.StatusBadGateway).WithProvider(providerName)
	}
	return &ChatResponse{
		ID:      out.ID,
		Model:   out.Model,
		Content: out.Choices[0].Message.Content,
		Usage:   out.Usage,
	}, nil
}

func (c *Client) buildHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.keys.APIKey(ctx))
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func mapHTTPError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := readErrorMessage(raw)
	code := types.ErrUpstreamHTTP
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		code = types.ErrUnauthorized
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
	}
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return types.NewError(code, "status "+strconv.Itoa(resp.StatusCode)+": "+msg).
		WithHTTPStatus(resp.StatusCode).WithRetryable(retryable).WithProvider(providerName)
}

// readErrorMessage 兼容 {"error":{"message":...}} 与纯文本
func readErrorMessage(raw []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
