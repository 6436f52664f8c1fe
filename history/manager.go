package history

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/config"
	"github.com/BaSui01/agentgate/internal/cache"
	"github.com/BaSui01/agentgate/store"
)

// Source 关系型回源
type Source interface {
	ListByThread(ctx context.Context, threadID string, limit int) ([]store.Message, error)
}

// Manager 会话历史：Redis 优先，未命中时从关系库恢复并回写；
// Redis 故障时退化为进程内存储。
type Manager struct {
	cache   *cache.Manager
	source  Source
	memory  *memoryStore
	cfg     config.HistoryConfig
	logger  *zap.Logger
	healthy atomic.Bool
}

// NewManager 创建历史管理器；c 为 nil 时只使用内存，source 可为 nil
func NewManager(c *cache.Manager, source Source, cfg config.HistoryConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := config.DefaultHistoryConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.StatePrefix == "" {
		cfg.StatePrefix = def.StatePrefix
	}
	m := &Manager{
		cache:  c,
		source: source,
		memory: newMemoryStore(cfg.MaxMessages, cfg.TTL),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "history")),
	}
	m.healthy.Store(c != nil)
	return m
}

// Healthy Redis 最近一次操作是否成功
func (m *Manager) Healthy() bool { return m.healthy.Load() }

func (m *Manager) key(thread string) string      { return m.cfg.KeyPrefix + thread }
func (m *Manager) stateKey(thread string) string { return m.cfg.StatePrefix + thread }

func (m *Manager) redisFailed(op string, err error) {
	m.healthy.Store(false)
	m.logger.Warn("redis unavailable, using memory fallback", zap.String("op", op), zap.Error(err))
}

// AddMessages 追加消息并刷新过期时间
func (m *Manager) AddMessages(ctx context.Context, thread string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if m.cache == nil {
		m.memory.append(thread, msgs...)
		return nil
	}
	items := make([]any, len(msgs))
	for i, msg := range msgs {
		items[i] = toCached(msg)
	}
	if err := m.cache.AppendJSON(ctx, m.key(thread), m.cfg.TTL, items...); err != nil {
		m.redisFailed("append", err)
		m.memory.append(thread, msgs...)
		return nil
	}
	m.healthy.Store(true)
	return nil
}

// Messages 返回会话消息；limit>0 时取最后 limit 条
func (m *Manager) Messages(ctx context.Context, thread string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = m.cfg.MaxMessages
	}
	if m.cache == nil {
		return tail(m.fromSourceOrMemory(ctx, thread), limit), nil
	}

	raw, err := m.cache.Range(ctx, m.key(thread), 0, -1)
	switch {
	case err == nil:
		m.healthy.Store(true)
		return tail(m.decode(raw), limit), nil
	case cache.IsCacheMiss(err):
		m.healthy.Store(true)
	default:
		m.redisFailed("range", err)
		return tail(m.fromSourceOrMemory(ctx, thread), limit), nil
	}

	m.logger.Info("history not in redis, restoring from database", zap.String("thread_id", thread))
	msgs := m.load(ctx, thread)
	if len(msgs) > 0 {
		m.restore(ctx, thread, msgs)
	}
	return tail(msgs, limit), nil
}

func (m *Manager) fromSourceOrMemory(ctx context.Context, thread string) []Message {
	if mem := m.memory.list(thread); len(mem) > 0 {
		return mem
	}
	return m.load(ctx, thread)
}

func (m *Manager) load(ctx context.Context, thread string) []Message {
	if m.source == nil {
		return nil
	}
	records, err := m.source.ListByThread(ctx, thread, 0)
	if err != nil {
		m.logger.Warn("load history from database failed", zap.String("thread_id", thread), zap.Error(err))
		return nil
	}
	msgs := make([]Message, 0, len(records))
	for _, r := range records {
		if msg, ok := fromRecord(r); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (m *Manager) restore(ctx context.Context, thread string, msgs []Message) {
	items := make([]any, len(msgs))
	for i, msg := range msgs {
		items[i] = toCached(msg)
	}
	if err := m.cache.AppendJSON(ctx, m.key(thread), m.cfg.TTL, items...); err != nil {
		m.logger.Warn("restore history to redis failed", zap.String("thread_id", thread), zap.Error(err))
		return
	}
	m.logger.Info("history restored to redis", zap.String("thread_id", thread), zap.Int("count", len(msgs)))
}

func (m *Manager) decode(raw []string) []Message {
	msgs := make([]Message, 0, len(raw))
	for _, s := range raw {
		var c cachedMessage
		if err := json.Unmarshal([]byte(s), &c); err != nil {
			m.logger.Debug("skip malformed history item", zap.Error(err))
			continue
		}
		if msg, ok := fromCached(c); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// Clear 删除会话历史
func (m *Manager) Clear(ctx context.Context, thread string) error {
	m.memory.clear(thread)
	if m.cache == nil {
		return nil
	}
	if err := m.cache.Delete(ctx, m.key(thread)); err != nil {
		m.redisFailed("delete", err)
		return err
	}
	return nil
}

// ContextSummary 返回消息数量统计
func (m *Manager) ContextSummary(ctx context.Context, thread string) (Summary, error) {
	var n int64
	if m.cache == nil {
		n = int64(len(m.memory.list(thread)))
	} else {
		count, err := m.cache.Len(ctx, m.key(thread))
		if err != nil {
			m.redisFailed("len", err)
			count = int64(len(m.memory.list(thread)))
		}
		n = count
	}
	return Summary{ThreadID: thread, MessageCount: n, HasHistory: n > 0}, nil
}

// SaveState 保存会话状态
func (m *Manager) SaveState(ctx context.Context, thread string, state map[string]any) error {
	if m.cache == nil {
		m.memory.setState(thread, state)
		return nil
	}
	if err := m.cache.SetJSON(ctx, m.stateKey(thread), state, m.cfg.TTL); err != nil {
		m.redisFailed("set state", err)
		m.memory.setState(thread, state)
	}
	return nil
}

// GetState 读取会话状态，不存在时返回 nil
func (m *Manager) GetState(ctx context.Context, thread string) (map[string]any, error) {
	if m.cache == nil {
		return m.memory.state(thread), nil
	}
	var state map[string]any
	err := m.cache.GetJSON(ctx, m.stateKey(thread), &state)
	switch {
	case err == nil:
		return state, nil
	case cache.IsCacheMiss(err):
		return m.memory.state(thread), nil
	default:
		m.redisFailed("get state", err)
		return m.memory.state(thread), nil
	}
}

// ClearState 删除会话状态
func (m *Manager) ClearState(ctx context.Context, thread string) error {
	m.memory.clearState(thread)
	if m.cache == nil {
		return nil
	}
	if err := m.cache.Delete(ctx, m.stateKey(thread)); err != nil {
		m.redisFailed("delete state", err)
		return err
	}
	return nil
}

// TTL 返回历史过期时间
func (m *Manager) TTL() time.Duration { return m.cfg.TTL }

func tail(msgs []Message, limit int) []Message {
	if limit > 0 && len(msgs) > limit {
		return msgs[len(msgs)-limit:]
	}
	return msgs
}
