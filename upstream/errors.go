package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/BaSui01/agentgate/types"
)

// HTTPError 上游返回非 2xx 状态
type HTTPError struct {
	Engine     string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s upstream returned status %d: %s", e.Engine, e.StatusCode, e.Body)
}

// Unwrap exposes the gateway error code.
func (e *HTTPError) Unwrap() error {
	return types.NewError(types.ErrUpstreamHTTP, e.Error()).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests).
		WithProvider(e.Engine)
}

// TransportError 网络层失败：超时、拒绝连接、DNS 等
type TransportError struct {
	Engine string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s upstream %s: %v", e.Engine, e.Op, e.Err)
}

// Unwrap returns both the cause and the gateway error code.
func (e *TransportError) Unwrap() []error {
	code := types.ErrUpstreamTransport
	status := http.StatusBadGateway
	if e.Timeout() {
		code = types.ErrUpstreamTimeout
		status = http.StatusGatewayTimeout
	}
	return []error{
		e.Err,
		types.NewError(code, e.Error()).WithHTTPStatus(status).WithRetryable(true).WithProvider(e.Engine),
	}
}

// Timeout reports whether the failure was a deadline.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Message 返回适合放进流内 error 事件的文本
func Message(err error) string {
	var he *HTTPError
	if errors.As(err, &he) {
		return fmt.Sprintf("upstream %s error: status %d", he.Engine, he.StatusCode)
	}
	var te *TransportError
	if errors.As(err, &te) {
		if te.Timeout() {
			return fmt.Sprintf("upstream %s timeout", te.Engine)
		}
		return fmt.Sprintf("upstream %s unavailable", te.Engine)
	}
	return err.Error()
}
