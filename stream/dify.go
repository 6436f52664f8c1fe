package stream

import (
	"bytes"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

const foldedThinkingPrefix = "<details open> <summary>深度思考</summary>"

type difyChunk struct {
	Event          string          `json:"event"`
	Answer         string          `json:"answer"`
	Metadata       json.RawMessage `json:"metadata"`
	ConversationID string          `json:"conversation_id"`
	MessageID      string          `json:"message_id"`
	Message        string          `json:"message"`
	Code           string          `json:"code"`
}

// DifyTranslator 翻译 Dify chat-messages 流
type DifyTranslator struct {
	opts   Options
	folded bool
}

// NewDifyTranslator 创建 Dify 翻译器
func NewDifyTranslator(opts Options) *DifyTranslator {
	return &DifyTranslator{opts: opts}
}

func (d *DifyTranslator) Engine() string { return "dify" }
func (d *DifyTranslator) Agent() string  { return agentCoordinator }

func (d *DifyTranslator) Start(e *Emitter) {
	e.Emit(Event{Type: EventLoading, Agent: agentCoordinator, LoadingText: loadingIntent})
}

func (d *DifyTranslator) Line(line string, e *Emitter) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" || payload == "ping" || strings.HasPrefix(line, "event:") {
		return
	}
	var c difyChunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		e.Logger().Debug("skip malformed line", zap.Error(err))
		return
	}

	switch c.Event {
	case "message", "agent_message":
		if strings.Contains(c.Answer, markLoading) {
			d.loading(c, e)
			return
		}
		d.content(c, e)
	case "message_end":
		d.content(c, e)
		e.Done(Event{})
	case "error":
		msg := c.Message
		if msg == "" {
			msg = "unknown error"
		}
		e.Fail(msg)
	default:
		e.Logger().Debug("skip dify event", zap.String("event", c.Event))
	}
}

func (d *DifyTranslator) loading(c difyChunk, e *Emitter) {
	if e.State() != StateAwaitingIntent {
		e.Logger().Debug("skip loading sentinel", zap.String("state", e.State().String()))
		return
	}
	label, text := loadingSegments(c.Answer)
	prefixes := d.opts.Revealer.Reveal(text)
	if len(prefixes) == 0 {
		e.Emit(Event{Type: EventLoading, LoadingText: label})
	}
	for _, prefix := range prefixes {
		if !e.Emit(Event{Type: EventLoading, LoadingText: label + "\n\n" + prefix}) {
			return
		}
	}
	e.BeginContent()
}

// content 记录回答与引用元数据；折叠前缀只出现在下发的首个片段上，不进入缓冲
func (d *DifyTranslator) content(c difyChunk, e *Emitter) {
	e.BeginContent()
	if c.Answer != "" {
		e.Buffers().AppendAnswer(c.Answer)
	}
	if meta := compactJSON(c.Metadata); meta != "" {
		e.Buffers().AppendAnswer(meta)
	}
	if c.Answer == "" {
		return
	}
	shown := c.Answer
	if d.opts.FoldedThinking && !d.folded {
		shown = foldedThinkingPrefix + shown
		d.folded = true
	}
	e.Emit(Event{Type: EventMessage, Content: shown, Answer: shown})
}

// compactJSON 空对象与 null 视为无内容
func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var out bytes.Buffer
	if err := json.Compact(&out, raw); err != nil {
		return ""
	}
	switch s := out.String(); s {
	case "null", "{}", "[]", `""`:
		return ""
	default:
		return s
	}
}
