package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/upstream"
)

// Opener 打开上游流。Run 在自己的 goroutine 中调用它
type Opener func(ctx context.Context) (*upstream.Stream, error)

// Translator 把一种上游协议的行翻译为客户端事件
type Translator interface {
	// Engine 返回引擎名，用于日志与指标
	Engine() string
	// Agent 返回合成事件使用的 agent 名
	Agent() string
	// Start 在读取上游首行之前调用
	Start(e *Emitter)
	// Line 处理一行上游输入，不含行尾换行符
	Line(line string, e *Emitter)
}

// Observer 接收流生命周期指标
type Observer interface {
	StreamStarted(engine string)
	RecordStreamEvent(engine, event string)
	StreamFinished(engine, outcome string, d time.Duration)
}

// Outcome 流结束方式
const (
	OutcomeDone     = "done"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// RunOption 配置 Run
type RunOption func(*runConfig)

type runConfig struct {
	logger   *zap.Logger
	observer Observer
	buffer   int
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) RunOption {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver 设置指标观察者
func WithObserver(o Observer) RunOption {
	return func(c *runConfig) { c.observer = o }
}

// Run 打开上游并在后台翻译，返回的通道在流结束后关闭。
// 上游连接无论以何种方式结束都只释放一次。ctx 取消后不再发送事件。
func Run(ctx context.Context, t Translator, open Opener, meta Meta, buf *Buffers, opts ...RunOption) <-chan Event {
	cfg := runConfig{logger: zap.NewNop(), buffer: 16}
	for _, o := range opts {
		o(&cfg)
	}
	if buf == nil {
		buf = &Buffers{}
	}
	ch := make(chan Event, cfg.buffer)
	em := &Emitter{
		ctx:    ctx,
		ch:     ch,
		meta:   meta,
		buf:    buf,
		agent:  t.Agent(),
		engine: t.Engine(),
		obs:    cfg.observer,
		logger: cfg.logger.With(zap.String("engine", t.Engine()), zap.String("conversation_id", meta.ConversationID)),
	}
	go em.run(t, open)
	return ch
}

// Emitter 是翻译器唯一的输出口，保证终止事件只有一个
type Emitter struct {
	ctx    context.Context
	ch     chan<- Event
	meta   Meta
	buf    *Buffers
	agent  string
	engine string
	obs    Observer
	logger *zap.Logger

	state   State
	outcome string
}

func (e *Emitter) run(t Translator, open Opener) {
	defer close(e.ch)
	start := time.Now()
	if e.obs != nil {
		e.obs.StreamStarted(e.engine)
		defer func() {
			outcome := e.outcome
			if outcome == "" {
				outcome = OutcomeCanceled
			}
			e.obs.StreamFinished(e.engine, outcome, time.Since(start))
		}()
	}

	src, err := open(e.ctx)
	if err != nil {
		if e.ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return
		}
		e.logger.Warn("upstream open failed", zap.Error(err))
		e.Fail(upstream.Message(err))
		return
	}
	defer src.Release()
	stop := context.AfterFunc(e.ctx, func() { _ = src.Release() })
	defer stop()

	t.Start(e)

	reader := bufio.NewReaderSize(src, 64*1024)
	for e.state != StateTerminal && e.ctx.Err() == nil {
		line, err := reader.ReadString('\n')
		if line != "" {
			t.Line(strings.TrimRight(line, "\r\n"), e)
		}
		if err == nil {
			continue
		}
		if e.ctx.Err() != nil {
			return
		}
		if !errors.Is(err, io.EOF) {
			e.logger.Warn("upstream read failed", zap.Error(err))
			e.Fail("stream processing error: " + err.Error())
		}
		break
	}
	if e.ctx.Err() != nil {
		return
	}
	if e.state != StateTerminal {
		e.Done(Event{})
	}
}

// State 返回当前状态
func (e *Emitter) State() State { return e.state }

// Buffers 返回累积缓冲
func (e *Emitter) Buffers() *Buffers { return e.buf }

// Logger 返回带流字段的日志
func (e *Emitter) Logger() *zap.Logger { return e.logger }

// BeginContent 进入 STREAMING_CONTENT；只在 AWAITING_INTENT 时生效
func (e *Emitter) BeginContent() {
	if e.state == StateAwaitingIntent {
		e.state = StateStreamingContent
	}
}

// Emit 发送非终止事件。终止后或 ctx 取消后返回 false
func (e *Emitter) Emit(ev Event) bool {
	if e.state == StateTerminal || ev.Type.Terminal() {
		return false
	}
	return e.send(ev)
}

// Done 发送 done 事件并进入 TERMINAL
func (e *Emitter) Done(ev Event) bool {
	if e.state == StateTerminal {
		return false
	}
	ev.Type = EventDone
	ev.Finished = true
	e.state = StateTerminal
	e.outcome = OutcomeDone
	return e.send(ev)
}

// Fail 发送 error 事件并进入 TERMINAL
func (e *Emitter) Fail(msg string) bool {
	if e.state == StateTerminal {
		return false
	}
	e.state = StateTerminal
	e.outcome = OutcomeError
	return e.send(Event{Type: EventError, Error: msg, Finished: true})
}

func (e *Emitter) send(ev Event) bool {
	if ev.ConversationID == "" {
		ev.ConversationID = e.meta.ConversationID
	}
	if ev.MessageID == "" {
		ev.MessageID = e.meta.MessageID
	}
	if ev.Agent == "" {
		ev.Agent = e.agent
	}
	if e.ctx.Err() != nil {
		return false
	}
	select {
	case e.ch <- ev:
		if e.obs != nil {
			e.obs.RecordStreamEvent(e.engine, string(ev.Type))
		}
		return true
	case <-e.ctx.Done():
		return false
	}
}
