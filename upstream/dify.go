package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const difyChatPath = "/chat-messages"

// DifyRequest Dify chat-messages 请求
type DifyRequest struct {
	// BaseURL/APIKey 为空时使用客户端默认值
	BaseURL        string
	APIKey         string
	Inputs         map[string]any
	Query          string
	User           string
	ConversationID string
}

type difyPayload struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	User           string         `json:"user"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// DifyBlockingResponse 阻塞模式响应
type DifyBlockingResponse struct {
	Event          string          `json:"event"`
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	Mode           string          `json:"mode"`
	Answer         string          `json:"answer"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      int64           `json:"created_at"`
}

// DifyClient Dify 应用适配器
type DifyClient struct {
	base
	baseURL string
	apiKey  string
}

// NewDifyClient creates a Dify adapter with default endpoint and key.
func NewDifyClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger, opts ...Option) *DifyClient {
	return &DifyClient{base: newBase(EngineDify, timeout, logger, opts), baseURL: baseURL, apiKey: apiKey}
}

func (c *DifyClient) prepare(req DifyRequest, mode string) (string, difyPayload, http.Header) {
	baseURL, key := req.BaseURL, req.APIKey
	if baseURL == "" {
		baseURL = c.baseURL
	}
	if key == "" {
		key = c.apiKey
	}
	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	user := req.User
	if user == "" {
		user = "None"
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+key)
	return endpoint(baseURL, difyChatPath), difyPayload{
		Inputs:         inputs,
		Query:          req.Query,
		User:           user,
		ResponseMode:   mode,
		ConversationID: req.ConversationID,
	}, h
}

// Stream 以 streaming 模式调用
func (c *DifyClient) Stream(ctx context.Context, req DifyRequest) (*Stream, error) {
	url, payload, h := c.prepare(req, "streaming")
	return c.openStream(ctx, url, payload, h)
}

// Invoke 以 blocking 模式调用
func (c *DifyClient) Invoke(ctx context.Context, req DifyRequest) (*DifyBlockingResponse, error) {
	url, payload, h := c.prepare(req, "blocking")
	var out DifyBlockingResponse
	if err := c.invoke(ctx, url, payload, h, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
