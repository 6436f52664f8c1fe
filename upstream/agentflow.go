package upstream

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

const (
	agentFlowStreamPath = "/api/v1/agent/stream"
	agentFlowInvokePath = "/api/v1/agent/invoke"
)

// AgentFlowRequest agentflow 平台请求，BaseURL 来自场景配置
type AgentFlowRequest struct {
	BaseURL   string
	AgentName string
	Message   string
	ThreadID  string
	Context   map[string]any
}

type agentFlowPayload struct {
	AgentName string         `json:"agent_name"`
	Message   string         `json:"message"`
	ThreadID  string         `json:"thread_id"`
	Context   map[string]any `json:"context,omitempty"`
}

// AgentFlowClient agentflow 平台适配器
type AgentFlowClient struct {
	base
	defaultBaseURL string
}

// NewAgentFlowClient creates an agentflow adapter; defaultBaseURL is used when the scene has none.
func NewAgentFlowClient(defaultBaseURL string, timeout time.Duration, logger *zap.Logger, opts ...Option) *AgentFlowClient {
	return &AgentFlowClient{base: newBase(EngineAgentFlow, timeout, logger, opts), defaultBaseURL: defaultBaseURL}
}

func (c *AgentFlowClient) payload(req AgentFlowRequest) (string, agentFlowPayload) {
	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = c.defaultBaseURL
	}
	return baseURL, agentFlowPayload{
		AgentName: req.AgentName,
		Message:   req.Message,
		ThreadID:  req.ThreadID,
		Context:   req.Context,
	}
}

// Stream 调用 /api/v1/agent/stream
func (c *AgentFlowClient) Stream(ctx context.Context, req AgentFlowRequest) (*Stream, error) {
	baseURL, p := c.payload(req)
	return c.openStream(ctx, endpoint(baseURL, agentFlowStreamPath), p, nil)
}

// Invoke 调用 /api/v1/agent/invoke，返回原始 JSON
func (c *AgentFlowClient) Invoke(ctx context.Context, req AgentFlowRequest) (json.RawMessage, error) {
	baseURL, p := c.payload(req)
	var out json.RawMessage
	if err := c.invoke(ctx, endpoint(baseURL, agentFlowInvokePath), p, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
