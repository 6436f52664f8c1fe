package stream

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	agentCoordinator = "coordinator"

	loadingIntent   = "识别用户意图..."
	loadingPlanning = "正在规划任务，请稍后......."
)

// Options 翻译器公共选项
type Options struct {
	Revealer     Revealer
	ThoughtDelay time.Duration
	// FoldedThinking 仅 Dify 使用：首个回答片段前加折叠思考前缀
	FoldedThinking bool
}

type uyunChunk struct {
	Agent        string `json:"agent"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	ThreadID     string `json:"thread_id"`
}

// UyunTranslator 翻译多智能体引擎的 "data: {json}" 行
type UyunTranslator struct {
	opts     Options
	threadID string
}

// NewUyunTranslator 创建多智能体翻译器
func NewUyunTranslator(opts Options) *UyunTranslator {
	return &UyunTranslator{opts: opts}
}

func (u *UyunTranslator) Engine() string { return "uyun" }
func (u *UyunTranslator) Agent() string  { return agentCoordinator }

func (u *UyunTranslator) Start(e *Emitter) {
	e.Emit(Event{Type: EventLoading, Agent: agentCoordinator, LoadingText: loadingIntent})
}

func (u *UyunTranslator) Line(line string, e *Emitter) {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return
	}
	if payload == "[DONE]" {
		e.Done(Event{ThreadID: u.threadID})
		return
	}
	var c uyunChunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		e.Logger().Debug("skip malformed line", zap.Error(err))
		return
	}
	if c.ThreadID != "" {
		u.threadID = c.ThreadID
	}
	if c.Content == "" {
		return
	}

	kind, err := Classify(c.Content)
	if err != nil {
		e.Logger().Warn("skip ambiguous chunk", zap.Error(err))
		return
	}
	switch kind {
	case SentinelLoading:
		u.loading(c, e)
	case SentinelThought:
		u.thought(c, e)
	case SentinelFlag:
		text := strings.ReplaceAll(c.Content, markFlag, "")
		e.BeginContent()
		if text == "" {
			return
		}
		e.Buffers().AppendAnswer(text)
		e.Emit(u.message(c, text))
	default:
		e.BeginContent()
		e.Buffers().AppendAnswer(c.Content)
		e.Emit(u.message(c, c.Content))
	}
}

// loading 仅在等待意图阶段且来自 coordinator 时生效
func (u *UyunTranslator) loading(c uyunChunk, e *Emitter) {
	if c.Agent != agentCoordinator || e.State() != StateAwaitingIntent {
		e.Logger().Debug("skip loading sentinel", zap.String("agent", c.Agent), zap.String("state", e.State().String()))
		return
	}
	text := afterMark(c.Content)
	for _, prefix := range u.opts.Revealer.Reveal(text) {
		if !e.Emit(Event{Type: EventLoading, Agent: c.Agent, LoadingText: loadingIntent + "\n\n" + prefix}) {
			return
		}
	}
	e.Emit(Event{Type: EventLoading, Agent: c.Agent, LoadingText: loadingPlanning})
	e.BeginContent()
}

func (u *UyunTranslator) thought(c uyunChunk, e *Emitter) {
	text := strings.ReplaceAll(c.Content, markThought, "")
	e.BeginContent()
	e.Buffers().AppendThought(text + "\n\n\n")
	for _, piece := range u.opts.Revealer.Pieces(text) {
		if !e.Emit(Event{Type: EventMessage, Agent: c.Agent, Thought: piece, Delay: u.opts.ThoughtDelay}) {
			return
		}
	}
}

func (u *UyunTranslator) message(c uyunChunk, text string) Event {
	return Event{
		Type:         EventMessage,
		Agent:        c.Agent,
		ThreadID:     c.ThreadID,
		Content:      text,
		FinishReason: c.FinishReason,
	}
}

// afterMark 返回 "loading..." 之后 "|" 分隔的第一段
func afterMark(content string) string {
	parts := strings.Split(content, "|")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
