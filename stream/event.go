package stream

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType 客户端事件类型
type EventType string

const (
	EventMessage  EventType = "message"
	EventData     EventType = "data"
	EventMetadata EventType = "metadata"
	EventLoading  EventType = "loading"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Terminal reports whether the event ends the stream.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError
}

// Event 下发给客户端的一条流事件，序列化后作为一个 SSE data 帧
type Event struct {
	Type           EventType       `json:"type"`
	ConversationID string          `json:"conversation_id"`
	MessageID      string          `json:"message_id"`
	ThreadID       string          `json:"thread_id,omitempty"`
	Agent          string          `json:"agent,omitempty"`
	Content        string          `json:"content,omitempty"`
	Answer         string          `json:"answer,omitempty"`
	Thought        string          `json:"thought,omitempty"`
	LoadingText    string          `json:"loadingText,omitempty"`
	FinishReason   string          `json:"finish_reason,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	Context        string          `json:"context,omitempty"`
	Error          string          `json:"error,omitempty"`
	Finished       bool            `json:"finished,omitempty"`

	// Delay 建议客户端写出前的停顿，翻译器本身不等待
	Delay time.Duration `json:"-"`
}

// State 翻译器状态
type State int

const (
	StateAwaitingIntent State = iota
	StateStreamingContent
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateAwaitingIntent:
		return "AWAITING_INTENT"
	case StateStreamingContent:
		return "STREAMING_CONTENT"
	case StateTerminal:
		return "TERMINAL"
	default:
		return "UNKNOWN"
	}
}

// Buffers 累积可见回答与思考过程。翻译器 goroutine 是唯一写者，
// 调用方在事件通道关闭后读取。
type Buffers struct {
	answer  []string
	thought []string
}

// AppendAnswer 追加回答片段
func (b *Buffers) AppendAnswer(s string) { b.answer = append(b.answer, s) }

// AppendThought 追加思考片段
func (b *Buffers) AppendThought(s string) { b.thought = append(b.thought, s) }

// Answer 返回拼接后的回答
func (b *Buffers) Answer() string { return strings.Join(b.answer, "") }

// Thought 返回拼接后的思考过程
func (b *Buffers) Thought() string { return strings.Join(b.thought, "") }

// Meta 一次流式请求的标识
type Meta struct {
	ConversationID string
	MessageID      string
}
