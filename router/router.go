package router

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/config"
	"github.com/BaSui01/agentgate/llm/tokenizer"
	"github.com/BaSui01/agentgate/session"
	"github.com/BaSui01/agentgate/store"
	"github.com/BaSui01/agentgate/stream"
	"github.com/BaSui01/agentgate/types"
	"github.com/BaSui01/agentgate/upstream"
)

const (
	msgNoPlatform     = "no platform source, contact admin."
	msgAgentNameEmpty = "agent_name is required"
)

// =============================================================================
// 📦 依赖接口
// =============================================================================

// Sessions 会话副作用
type Sessions interface {
	EnsureSession(id string) (string, bool)
	CreateSession(ctx context.Context, s session.Session)
	ScheduleSummary(ctx context.Context, conversationID, question string)
	RecordVisit(ctx context.Context, sceneID string)
	Finalize(ctx context.Context, in session.FinalizeInput)
}

// RouteLookup scene_routes 查询
type RouteLookup interface {
	Get(ctx context.Context, sceneID string) (*store.SceneRoute, error)
}

// UyunStreamer 多智能体引擎
type UyunStreamer interface {
	Stream(ctx context.Context, req upstream.UyunRequest) (*upstream.Stream, error)
}

// DifyStreamer Dify 应用
type DifyStreamer interface {
	Stream(ctx context.Context, req upstream.DifyRequest) (*upstream.Stream, error)
}

// AgentFlowStreamer agentflow 平台
type AgentFlowStreamer interface {
	Stream(ctx context.Context, req upstream.AgentFlowRequest) (*upstream.Stream, error)
}

// Deps 路由依赖；Routes 为 nil 时 Dify 只使用配置中的默认值
type Deps struct {
	Sessions  Sessions
	Routes    RouteLookup
	Uyun      UyunStreamer
	Dify      DifyStreamer
	AgentFlow AgentFlowStreamer
	Observer  stream.Observer
	Tokenizer tokenizer.Tokenizer
}

// =============================================================================
// 🧭 Route
// =============================================================================

// Route 一次请求的路由结果
type Route struct {
	Kind           EngineKind
	ConversationID string
	IsNew          bool
	MessageID      string
	SceneID        string
	SceneName      string
	// uyun
	AgentCode string
	// dify / agentflow
	BaseURL string
	APIKey  string
	// agentflow 智能体名，取自 scene.apikey
	AgentName      string
	FoldedThinking bool
	Identity       types.Identity
}

// Agent 持久化时记录的智能体名
func (r Route) Agent() string {
	if r.Kind == EngineAgentFlow && r.AgentName != "" {
		return r.AgentName
	}
	return r.Kind.String()
}

// Router 请求路由器
type Router struct {
	cfg         config.EnginesConfig
	deps        Deps
	defaultKind EngineKind
	revealer    stream.Revealer
	logger      *zap.Logger
}

// New 创建路由器
func New(cfg config.EnginesConfig, deps Deps, logger *zap.Logger) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Sessions == nil {
		return nil, errors.New("router: sessions are required")
	}
	def := EngineUyun
	if cfg.DefaultEngine != "" {
		k, err := ParseEngineKind(cfg.DefaultEngine)
		if err != nil {
			return nil, fmt.Errorf("router: default engine: %w", err)
		}
		def = k
	}
	unit, err := stream.ParseUnit(cfg.RevealUnit)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	tok := deps.Tokenizer
	if tok == nil {
		tok = tokenizer.NewEstimatorTokenizer()
	}
	return &Router{
		cfg:         cfg,
		deps:        deps,
		defaultKind: def,
		revealer:    stream.Revealer{Unit: unit, Tokenizer: tok},
		logger:      logger.With(zap.String("component", "router")),
	}, nil
}

// Resolve 选择引擎并解析会话 ID。新会话会调度会话记录与标题生成；
// 参数错误在调度之前返回，不会留下孤立会话。
func (r *Router) Resolve(ctx context.Context, req *types.ChatRequest) (Route, error) {
	route := Route{Kind: r.defaultKind}
	scene := req.Context.Scene
	if scene != nil {
		route.Kind = engineForSource(scene.Source)
		route.SceneID = string(scene.ID)
		route.SceneName = scene.Name
	}
	if id, ok := types.IdentityFrom(ctx); ok {
		route.Identity = id
	}

	switch route.Kind {
	case EngineUyun:
		route.AgentCode = req.Context.AgentID
		if route.AgentCode == "" {
			route.AgentCode = r.cfg.Uyun.AgentCode
		}
	case EngineDify:
		if err := r.resolveDify(ctx, &route); err != nil {
			return Route{}, err
		}
		route.FoldedThinking = slices.Contains(r.cfg.FoldedThinkingScenes, route.SceneName)
	case EngineAgentFlow:
		if scene == nil || scene.APIKey == "" {
			return Route{}, types.NewInvalidRequestError(msgAgentNameEmpty)
		}
		route.AgentName = scene.APIKey
		route.BaseURL = scene.BaseURL
	default:
		source := ""
		if scene != nil {
			source = scene.Source
		}
		r.logger.Warn("unknown platform source", zap.String("source", source))
		return Route{}, types.NewRoutingError(msgNoPlatform)
	}

	if !r.configured(route.Kind) {
		return Route{}, engineUnavailable(route.Kind)
	}

	route.ConversationID, route.IsNew = r.deps.Sessions.EnsureSession(req.Context.ConversationID)
	route.MessageID = session.NewConversationID()

	if route.IsNew {
		r.deps.Sessions.CreateSession(ctx, session.Session{
			ID:      route.ConversationID,
			UserID:  route.Identity.UserID,
			Account: route.Identity.Account,
			AgentID: req.Context.AgentID,
			SceneID: route.SceneID,
			Source:  route.Kind.String(),
			IsScene: req.Context.IsScene,
		})
		r.deps.Sessions.ScheduleSummary(ctx, route.ConversationID, req.Question)
	}
	if route.Kind == EngineUyun && route.SceneID != "" {
		r.deps.Sessions.RecordVisit(ctx, route.SceneID)
	}

	r.logger.Info("chat routed",
		zap.String("engine", route.Kind.String()),
		zap.String("conversation_id", route.ConversationID),
		zap.Bool("new_session", route.IsNew),
		zap.String("scene_id", route.SceneID),
	)
	return route, nil
}

// resolveDify 优先使用 scene_routes 表，查询失败或未命中时用配置默认值
func (r *Router) resolveDify(ctx context.Context, route *Route) error {
	route.APIKey = r.cfg.Dify.APIKey
	route.BaseURL = r.cfg.Dify.BaseURL

	if r.deps.Routes != nil && route.SceneID != "" {
		sr, err := r.deps.Routes.Get(ctx, route.SceneID)
		switch {
		case err == nil:
			if sr.APIKey != "" {
				route.APIKey = sr.APIKey
			}
			if sr.BaseURL != "" {
				route.BaseURL = sr.BaseURL
			}
		case types.IsErrorCode(err, types.ErrNotFound):
			r.logger.Debug("scene route not found, using defaults", zap.String("scene_id", route.SceneID))
		default:
			r.logger.Warn("scene route lookup failed, using defaults",
				zap.String("scene_id", route.SceneID), zap.Error(err))
		}
	}

	if route.APIKey == "" || route.BaseURL == "" {
		return types.NewError(types.ErrRouting, "no dify app bound to scene").WithHTTPStatus(500)
	}
	return nil
}

// =============================================================================
// 🚀 Dispatch
// =============================================================================

// Chat 一次进行中的对话
type Chat struct {
	Route  Route
	Events <-chan stream.Event

	question string
	buf      *stream.Buffers
	sessions Sessions
	once     sync.Once
}

// Dispatch 打开上游并启动翻译，事件按上游顺序到达 Events
func (r *Router) Dispatch(ctx context.Context, route Route, req *types.ChatRequest) (*Chat, error) {
	opts := stream.Options{
		Revealer:       r.revealer,
		ThoughtDelay:   r.cfg.ThoughtDelay,
		FoldedThinking: route.FoldedThinking,
	}

	var (
		t    stream.Translator
		open stream.Opener
	)
	switch route.Kind {
	case EngineUyun:
		if r.deps.Uyun == nil {
			return nil, engineUnavailable(route.Kind)
		}
		uyunReq := upstream.UyunRequest{
			Question:        req.Question,
			AgentCode:       route.AgentCode,
			UserID:          route.Identity.UserID,
			SessionID:       route.ConversationID,
			ScenePreference: scenePreference(req),
		}
		t = stream.NewUyunTranslator(opts)
		open = func(ctx context.Context) (*upstream.Stream, error) { return r.deps.Uyun.Stream(ctx, uyunReq) }
	case EngineDify:
		if r.deps.Dify == nil {
			return nil, engineUnavailable(route.Kind)
		}
		difyReq := upstream.DifyRequest{
			BaseURL: route.BaseURL,
			APIKey:  route.APIKey,
			Inputs:  req.Context.Map(),
			Query:   req.Question,
			User:    route.Identity.RealName,
		}
		t = stream.NewDifyTranslator(opts)
		open = func(ctx context.Context) (*upstream.Stream, error) { return r.deps.Dify.Stream(ctx, difyReq) }
	case EngineAgentFlow:
		if r.deps.AgentFlow == nil {
			return nil, engineUnavailable(route.Kind)
		}
		afReq := upstream.AgentFlowRequest{
			BaseURL:   route.BaseURL,
			AgentName: route.AgentName,
			Message:   req.Question,
			ThreadID:  route.ConversationID,
			Context:   req.Context.Map(),
		}
		t = stream.NewAgentFlowTranslator()
		open = func(ctx context.Context) (*upstream.Stream, error) { return r.deps.AgentFlow.Stream(ctx, afReq) }
	default:
		return nil, types.NewRoutingError(msgNoPlatform)
	}

	runOpts := []stream.RunOption{stream.WithLogger(r.logger)}
	if r.deps.Observer != nil {
		runOpts = append(runOpts, stream.WithObserver(r.deps.Observer))
	}
	buf := &stream.Buffers{}
	events := stream.Run(ctx, t, open, stream.Meta{
		ConversationID: route.ConversationID,
		MessageID:      route.MessageID,
	}, buf, runOpts...)

	return &Chat{
		Route:    route,
		Events:   events,
		question: req.Question,
		buf:      buf,
		sessions: r.deps.Sessions,
	}, nil
}

// Open 等价于 Resolve 后 Dispatch
func (r *Router) Open(ctx context.Context, req *types.ChatRequest) (*Chat, error) {
	route, err := r.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	return r.Dispatch(ctx, route, req)
}

// Finish 在 Events 关闭后调用，提交问答持久化；重复调用无效
func (c *Chat) Finish(ctx context.Context) {
	c.once.Do(func() {
		c.sessions.Finalize(context.WithoutCancel(ctx), session.FinalizeInput{
			ConversationID: c.Route.ConversationID,
			MessageID:      c.Route.MessageID,
			AgentName:      c.Route.Agent(),
			UserID:         c.Route.Identity.UserID,
			Question:       c.question,
			Answer:         c.buf.Answer(),
			Thought:        c.buf.Thought(),
		})
	})
}

// Answer 已累计的回答，只能在 Events 关闭后读取
func (c *Chat) Answer() string { return c.buf.Answer() }

// configured 引擎客户端是否已装配
func (r *Router) configured(k EngineKind) bool {
	switch k {
	case EngineUyun:
		return r.deps.Uyun != nil
	case EngineDify:
		return r.deps.Dify != nil
	case EngineAgentFlow:
		return r.deps.AgentFlow != nil
	default:
		return false
	}
}

func engineUnavailable(k EngineKind) error {
	return types.NewError(types.ErrServiceUnavailable, fmt.Sprintf("engine %s is not configured", k)).
		WithHTTPStatus(503)
}

func scenePreference(req *types.ChatRequest) []byte {
	if req.Context.Scene == nil || len(req.Context.Scene.ScenePreference) == 0 {
		return nil
	}
	return req.Context.Scene.ScenePreference
}
