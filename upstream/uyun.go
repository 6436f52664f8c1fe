package upstream

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

const uyunStreamPath = "/bitmind/engine/api/chat/stream"

// UyunRequest 多智能体引擎请求
type UyunRequest struct {
	Question        string
	AgentCode       string
	UserID          string
	SessionID       string
	ScenePreference json.RawMessage
}

type uyunMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type uyunPayload struct {
	Messages         []uyunMessage   `json:"messages"`
	AgentCode        string          `json:"agent_code,omitempty"`
	UserID           string          `json:"user_id,omitempty"`
	SessionID        string          `json:"session_id,omitempty"`
	ScenePreference  json.RawMessage `json:"scene_preference,omitempty"`
	AutoAcceptedPlan bool            `json:"auto_accepted_plan"`
}

// UyunClient 多智能体引擎适配器，只支持流式
type UyunClient struct {
	base
	baseURL string
}

// NewUyunClient creates a uyun adapter.
func NewUyunClient(baseURL string, timeout time.Duration, logger *zap.Logger, opts ...Option) *UyunClient {
	return &UyunClient{base: newBase(EngineUyun, timeout, logger, opts), baseURL: baseURL}
}

// Stream 发起流式对话
func (c *UyunClient) Stream(ctx context.Context, req UyunRequest) (*Stream, error) {
	payload := uyunPayload{
		Messages:         []uyunMessage{{Role: "user", Content: req.Question}},
		AgentCode:        req.AgentCode,
		UserID:           req.UserID,
		SessionID:        req.SessionID,
		ScenePreference:  req.ScenePreference,
		AutoAcceptedPlan: true,
	}
	return c.openStream(ctx, endpoint(c.baseURL, uyunStreamPath), payload, nil)
}
