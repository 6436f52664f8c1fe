package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/internal/telemetry"
	"github.com/BaSui01/agentgate/internal/tlsutil"
	"github.com/BaSui01/agentgate/types"
)

// 引擎名，用于错误、日志与指标标签
const (
	EngineUyun      = "uyun"
	EngineDify      = "dify"
	EngineAgentFlow = "agentflow"
)

const (
	modeStream   = "stream"
	modeBlocking = "blocking"

	// maxErrorBody 错误响应体最多保留的字节数
	maxErrorBody = 64 << 10
)

// Recorder 上游调用指标
type Recorder interface {
	RecordUpstreamRequest(engine, mode string, status int, duration time.Duration)
}

// Option 配置客户端
type Option func(*base)

// WithHTTPClient 替换阻塞与流式两个 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(b *base) {
		b.blocking = c
		b.streaming = c
	}
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(b *base) { b.recorder = r }
}

// base 三个适配器共享的请求逻辑
type base struct {
	engine    string
	timeout   time.Duration
	blocking  *http.Client
	streaming *http.Client
	recorder  Recorder
	logger    *zap.Logger
}

func newBase(engine string, timeout time.Duration, logger *zap.Logger, opts []Option) base {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := base{
		engine:    engine,
		timeout:   timeout,
		blocking:  tlsutil.SecureHTTPClient(timeout),
		streaming: tlsutil.StreamingHTTPClient(time.Minute),
		logger:    logger.With(zap.String("component", "upstream"), zap.String("engine", engine)),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}

// do 发送 JSON POST；非 2xx 时读取并关闭响应体，返回 *HTTPError
func (b *base) do(ctx context.Context, mode, url string, payload any, header http.Header) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", b.engine, err)
	}

	ctx, span := telemetry.StartSpan(ctx, "upstream."+mode,
		attribute.String("engine", b.engine),
		attribute.String("url", url),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", b.engine, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if mode == modeStream {
		req.Header.Set("Accept", "text/event-stream")
	}
	telemetry.InjectHeaders(ctx, propagation.HeaderCarrier(req.Header))

	client := b.blocking
	if mode == modeStream {
		client = b.streaming
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		b.record(mode, 0, start)
		terr := &TransportError{Engine: b.engine, Op: "POST " + url, Err: err}
		telemetry.EndSpan(span, terr)
		b.logger.Warn("upstream transport failure", zap.String("mode", mode), zap.Error(err))
		return nil, terr
	}
	b.record(mode, resp.StatusCode, start)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		herr := &HTTPError{Engine: b.engine, StatusCode: resp.StatusCode, Body: string(raw)}
		telemetry.EndSpan(span, herr)
		b.logger.Warn("upstream returned error status",
			zap.String("mode", mode),
			zap.Int("status", resp.StatusCode),
			zap.String("body", herr.Body),
		)
		return nil, herr
	}
	return resp, nil
}

func (b *base) record(mode string, status int, start time.Time) {
	if b.recorder != nil {
		b.recorder.RecordUpstreamRequest(b.engine, mode, status, time.Since(start))
	}
}

// openStream 发起流式请求；整体读超时由 b.timeout 约束，在 Release 时取消
func (b *base) openStream(ctx context.Context, url string, payload any, header http.Header) (*Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	resp, err := b.do(ctx, modeStream, url, payload, header)
	if err != nil {
		cancel()
		return nil, err
	}
	return NewStream(b.engine, resp.Header, resp.Body, cancel), nil
}

// invoke 发起阻塞请求并解码 JSON 响应
func (b *base) invoke(ctx context.Context, url string, payload any, header http.Header, out any) error {
	resp, err := b.do(ctx, modeBlocking, url, payload, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.ErrParse, "decode "+b.engine+" response").
			WithCause(err).WithHTTPStatus(http.StatusBadGateway).WithProvider(b.engine)
	}
	return nil
}
