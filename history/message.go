package history

import (
	"time"

	"github.com/BaSui01/agentgate/store"
)

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message 一条历史消息
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	MessageID string `json:"message_id,omitempty"`
}

// cachedMessage Redis 列表元素格式
type cachedMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	MessageID string `json:"message_id,omitempty"`
}

var roleTypes = map[Role]string{
	RoleUser:      "HumanMessage",
	RoleAssistant: "AIMessage",
	RoleSystem:    "SystemMessage",
}

func toCached(m Message) cachedMessage {
	t, ok := roleTypes[m.Role]
	if !ok {
		t = roleTypes[RoleUser]
	}
	return cachedMessage{Type: t, Content: m.Content, MessageID: m.MessageID}
}

func fromCached(c cachedMessage) (Message, bool) {
	for role, t := range roleTypes {
		if t == c.Type {
			return Message{Role: role, Content: c.Content, MessageID: c.MessageID}, true
		}
	}
	return Message{}, false
}

func fromRecord(r store.Message) (Message, bool) {
	switch Role(r.Role) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Message{Role: Role(r.Role), Content: r.Content, MessageID: r.MessageID}, true
	default:
		return Message{}, false
	}
}

// Summary 会话上下文摘要
type Summary struct {
	ThreadID     string `json:"thread_id"`
	MessageCount int64  `json:"message_count"`
	HasHistory   bool   `json:"has_history"`
}

// ArchivedMessage 归档文档中的消息
type ArchivedMessage struct {
	Role          string         `bson:"role" json:"role"`
	Content       string         `bson:"content" json:"content"`
	MessageID     string         `bson:"message_id,omitempty" json:"message_id,omitempty"`
	ExtraMetadata map[string]any `bson:"extra_metadata,omitempty" json:"extra_metadata,omitempty"`
	Timestamp     time.Time      `bson:"timestamp" json:"timestamp"`
}

// ArchiveDocument 一个会话一个文档
type ArchiveDocument struct {
	ThreadID  string            `bson:"thread_id" json:"thread_id"`
	AgentName string            `bson:"agent_name" json:"agent_name"`
	UserID    string            `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Messages  []ArchivedMessage `bson:"messages" json:"messages"`
	CreatedAt time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time         `bson:"updated_at" json:"updated_at"`
}
