package types

import (
	"bytes"
	"encoding/json"
)

// Scene 场景信息，来自请求 context.scene
type Scene struct {
	ID              ID              `json:"id,omitempty"`
	Name            string          `json:"scene_name,omitempty"`
	Source          string          `json:"source,omitempty"`
	APIKey          string          `json:"apikey,omitempty"`
	BaseURL         string          `json:"base_url,omitempty"`
	AgentCode       string          `json:"agent_code,omitempty"`
	ScenePreference json.RawMessage `json:"scene_preference,omitempty"`
}

// ID 接受 JSON 字符串或数字形式的标识
type ID string

// UnmarshalJSON 数字按原文保存
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// ChatContext 请求上下文。未声明的字段保存在 Extra 中，序列化时原样带回，
// 上游引擎收到的 context 与客户端发送的一致。
type ChatContext struct {
	Scene          *Scene         `json:"scene,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	AgentID        string         `json:"agent_id,omitempty"`
	IsScene        bool           `json:"isScene,omitempty"`
	Extra          map[string]any `json:"-"`
}

// chatContextFields 与 ChatContext 的声明字段一一对应
type chatContextFields struct {
	Scene          *Scene `json:"scene,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	IsScene        bool   `json:"isScene,omitempty"`
}

var chatContextKeys = map[string]bool{
	"scene": true, "conversation_id": true, "agent_id": true, "isScene": true,
}

// UnmarshalJSON 解析声明字段并把其余键收进 Extra
func (c *ChatContext) UnmarshalJSON(data []byte) error {
	var f chatContextFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	*c = ChatContext{Scene: f.Scene, ConversationID: f.ConversationID, AgentID: f.AgentID, IsScene: f.IsScene}
	for k, v := range all {
		if chatContextKeys[k] {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[k] = v
	}
	return nil
}

// MarshalJSON 合并声明字段与 Extra
func (c ChatContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

// Map 返回上下文的通用 map 形式，用作上游请求的 inputs/context
func (c ChatContext) Map() map[string]any {
	m := make(map[string]any, len(c.Extra)+4)
	for k, v := range c.Extra {
		m[k] = v
	}
	if c.Scene != nil {
		m["scene"] = c.Scene
	}
	if c.ConversationID != "" {
		m["conversation_id"] = c.ConversationID
	}
	if c.AgentID != "" {
		m["agent_id"] = c.AgentID
	}
	if c.IsScene {
		m["isScene"] = c.IsScene
	}
	return m
}

// ChatRequest 对话请求
type ChatRequest struct {
	Question string      `json:"question"`
	Context  ChatContext `json:"context"`
}

// Source returns the scene source; ok is false when no scene is present.
func (r *ChatRequest) Source() (string, bool) {
	if r.Context.Scene == nil {
		return "", false
	}
	return r.Context.Scene.Source, true
}
