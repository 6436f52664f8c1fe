package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const agentAgentFlow = "agentflow"

// AgentFlowTranslator 翻译 "event: <type>" / "data: <json>" 成对出现的流
type AgentFlowTranslator struct {
	current string
}

// NewAgentFlowTranslator 创建 agentflow 翻译器
func NewAgentFlowTranslator() *AgentFlowTranslator {
	return &AgentFlowTranslator{}
}

func (a *AgentFlowTranslator) Engine() string { return "agentflow" }
func (a *AgentFlowTranslator) Agent() string  { return agentAgentFlow }
func (a *AgentFlowTranslator) Start(*Emitter) {}

func (a *AgentFlowTranslator) Line(line string, e *Emitter) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return
	}
	if v, ok := strings.CutPrefix(line, "event:"); ok {
		a.current = strings.TrimSpace(v)
		return
	}
	raw, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	event := a.current
	a.current = ""

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		data = map[string]any{"text": raw}
	}
	thread := e.meta.ConversationID

	switch event {
	case "message":
		text := textOf(data)
		if text == "" {
			return
		}
		e.BeginContent()
		e.Buffers().AppendAnswer(text)
		e.Emit(Event{Type: EventMessage, ThreadID: thread, Content: text})
	case "data":
		b, _ := json.Marshal(data)
		e.BeginContent()
		e.Buffers().AppendAnswer(string(b))
		e.Emit(Event{Type: EventData, ThreadID: thread, Data: b})
	case "metadata":
		b, _ := json.Marshal(data)
		e.Emit(Event{Type: EventMetadata, ThreadID: thread, Context: string(b)})
	case "done":
		if t := stringField(data, "thread_id"); t != "" {
			thread = t
		}
		e.Done(Event{ThreadID: thread})
	case "error":
		msg := stringField(data, "error")
		if _, isObject := data.(map[string]any); !isObject && data != nil {
			msg = textOf(data)
		}
		if msg == "" {
			msg = "unknown error"
		}
		e.Fail(msg)
	default:
		e.Logger().Debug("skip data without event", zap.String("event", event))
	}
}

func textOf(data any) string {
	if m, ok := data.(map[string]any); ok {
		return stringField(m, "text")
	}
	if s, ok := data.(string); ok {
		return s
	}
	return fmt.Sprint(data)
}

func stringField(data any, key string) string {
	m, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
