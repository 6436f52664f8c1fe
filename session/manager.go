package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/history"
	"github.com/BaSui01/agentgate/internal/background"
	"github.com/BaSui01/agentgate/store"
)

// =============================================================================
// 📦 依赖接口
// =============================================================================

// Scheduler 后台执行器
type Scheduler interface {
	Go(ctx context.Context, name string, fn background.Task)
}

// ConversationStore 会话记录存储
type ConversationStore interface {
	Create(ctx context.Context, c *store.Conversation) error
	SetTitle(ctx context.Context, id, title string) error
}

// MessageStore 关系库中的对话历史
type MessageStore interface {
	Append(ctx context.Context, msgs ...*store.Message) error
}

// VisitStore 场景访问计数
type VisitStore interface {
	Increment(ctx context.Context, sceneID string) error
}

// HistoryWriter Redis 对话历史
type HistoryWriter interface {
	AddMessages(ctx context.Context, thread string, msgs ...history.Message) error
}

// Archiver 文档归档
type Archiver interface {
	Append(ctx context.Context, doc history.ArchiveDocument) error
}

// TitleGenerator 会话标题生成
type TitleGenerator interface {
	Summarize(ctx context.Context, question string) (string, error)
}

// Deps 各存储均可为 nil，对应副作用会被跳过
type Deps struct {
	Conversations ConversationStore
	Messages      MessageStore
	Visits        VisitStore
	History       HistoryWriter
	Archive       Archiver
	Summarizer    TitleGenerator
}

// =============================================================================
// 🎯 数据类型
// =============================================================================

// Session 新会话记录
type Session struct {
	ID      string
	UserID  string
	Account string
	AgentID string
	SceneID string
	Source  string
	IsScene bool
}

// Turn 一条对话轮次
type Turn struct {
	ConversationID string
	MessageID      string
	Role           history.Role
	Content        string
	AgentName      string
	UserID         string
	ExtraMetadata  map[string]any
}

// FinalizeInput 流结束后写入的一问一答
type FinalizeInput struct {
	ConversationID string
	MessageID      string
	AgentName      string
	UserID         string
	Question       string
	Answer         string
	Thought        string
}

// =============================================================================
// 🧭 Manager
// =============================================================================

// Manager 会话管理器
type Manager struct {
	exec   Scheduler
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

// NewManager 创建会话管理器
func NewManager(exec Scheduler, deps Deps, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		exec:   exec,
		deps:   deps,
		logger: logger.With(zap.String("component", "session")),
		now:    time.Now,
	}
}

// NewConversationID 生成 32 位十六进制会话 ID
func NewConversationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// EnsureSession 返回已有 ID，或生成新 ID 并标记 isNew
func (m *Manager) EnsureSession(id string) (string, bool) {
	if id = strings.TrimSpace(id); id != "" {
		return id, false
	}
	return NewConversationID(), true
}

// CreateSession 异步写入会话记录
func (m *Manager) CreateSession(ctx context.Context, s Session) {
	if m.deps.Conversations == nil {
		return
	}
	m.exec.Go(ctx, "create_session", func(ctx context.Context) error {
		err := m.deps.Conversations.Create(ctx, &store.Conversation{
			ID:      s.ID,
			UserID:  s.UserID,
			Account: s.Account,
			AgentID: s.AgentID,
			SceneID: s.SceneID,
			Source:  s.Source,
			IsScene: s.IsScene,
		})
		if err != nil {
			m.logger.Error("create session failed", zap.String("conversation_id", s.ID), zap.Error(err))
		}
		return err
	})
}

// ScheduleSummary 异步根据首个问题生成会话标题
func (m *Manager) ScheduleSummary(ctx context.Context, conversationID, question string) {
	if m.deps.Summarizer == nil || strings.TrimSpace(question) == "" {
		return
	}
	m.exec.Go(ctx, "generate_summary", func(ctx context.Context) error {
		title, err := m.deps.Summarizer.Summarize(ctx, question)
		if err != nil {
			m.logger.Warn("generate summary failed", zap.String("conversation_id", conversationID), zap.Error(err))
			return err
		}
		if title == "" || m.deps.Conversations == nil {
			return nil
		}
		if err := m.deps.Conversations.SetTitle(ctx, conversationID, title); err != nil {
			m.logger.Error("save summary failed", zap.String("conversation_id", conversationID), zap.Error(err))
			return err
		}
		m.logger.Debug("summary saved", zap.String("conversation_id", conversationID), zap.String("title", title))
		return nil
	})
}

// RecordVisit 异步累加场景访问次数
func (m *Manager) RecordVisit(ctx context.Context, sceneID string) {
	if m.deps.Visits == nil || sceneID == "" {
		return
	}
	m.exec.Go(ctx, "record_visit", func(ctx context.Context) error {
		if err := m.deps.Visits.Increment(ctx, sceneID); err != nil {
			m.logger.Warn("record scene visit failed", zap.String("scene_id", sceneID), zap.Error(err))
			return err
		}
		return nil
	})
}

// PersistTurn 异步写入单条轮次
func (m *Manager) PersistTurn(ctx context.Context, turns ...Turn) {
	if len(turns) == 0 {
		return
	}
	m.exec.Go(ctx, "persist_turn", func(ctx context.Context) error {
		return m.persist(ctx, turns)
	})
}

// Finalize 流结束后写入用户问题与助手回答，思考过程放在 extra_metadata
func (m *Manager) Finalize(ctx context.Context, in FinalizeInput) {
	turns := []Turn{{
		ConversationID: in.ConversationID,
		Role:           history.RoleUser,
		Content:        in.Question,
		AgentName:      in.AgentName,
		UserID:         in.UserID,
	}}
	if in.Answer != "" || in.Thought != "" {
		reply := Turn{
			ConversationID: in.ConversationID,
			MessageID:      in.MessageID,
			Role:           history.RoleAssistant,
			Content:        in.Answer,
			AgentName:      in.AgentName,
			UserID:         in.UserID,
		}
		if in.Thought != "" {
			reply.ExtraMetadata = map[string]any{"thought": in.Thought}
		}
		turns = append(turns, reply)
	}
	m.PersistTurn(ctx, turns...)
}

// persist 依次写入关系库、Redis 与归档；各目标互不影响
func (m *Manager) persist(ctx context.Context, turns []Turn) error {
	thread := turns[0].ConversationID
	log := m.logger.With(zap.String("conversation_id", thread))
	now := m.now()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if m.deps.Messages != nil {
		rows := make([]*store.Message, len(turns))
		for i, t := range turns {
			rows[i] = toRecord(t, now.Add(time.Duration(i)*time.Millisecond))
		}
		if err := m.deps.Messages.Append(ctx, rows...); err != nil {
			log.Error("persist turn to database failed", zap.Error(err))
			keep(err)
		}
	}

	if m.deps.History != nil {
		msgs := make([]history.Message, len(turns))
		for i, t := range turns {
			msgs[i] = history.Message{Role: t.Role, Content: t.Content, MessageID: t.MessageID}
		}
		if err := m.deps.History.AddMessages(ctx, thread, msgs...); err != nil {
			log.Warn("persist turn to history cache failed", zap.Error(err))
			keep(err)
		}
	}

	if m.deps.Archive != nil {
		doc := history.ArchiveDocument{
			ThreadID:  thread,
			AgentName: turns[0].AgentName,
			UserID:    turns[0].UserID,
			Messages:  make([]history.ArchivedMessage, len(turns)),
		}
		for i, t := range turns {
			doc.Messages[i] = history.ArchivedMessage{
				Role:          string(t.Role),
				Content:       t.Content,
				MessageID:     t.MessageID,
				ExtraMetadata: t.ExtraMetadata,
				Timestamp:     now,
			}
		}
		if err := m.deps.Archive.Append(ctx, doc); err != nil {
			log.Warn("archive turn failed", zap.Error(err))
			keep(err)
		}
	}
	return firstErr
}

func toRecord(t Turn, at time.Time) *store.Message {
	rec := &store.Message{
		ThreadID:  t.ConversationID,
		MessageID: t.MessageID,
		AgentName: t.AgentName,
		Role:      string(t.Role),
		Content:   t.Content,
		UserID:    t.UserID,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if len(t.ExtraMetadata) > 0 {
		if raw, err := json.Marshal(t.ExtraMetadata); err == nil {
			s := string(raw)
			rec.ExtraMetadata = &s
		}
	}
	return rec
}
