package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/agentgate/internal/database"
	"github.com/BaSui01/agentgate/types"
)

// Store 聚合全部仓储
type Store struct {
	db            *gorm.DB
	tx            txFunc
	Conversations *ConversationRepo
	Messages      *MessageRepo
	Routes        *SceneRouteRepo
	Visits        *SceneVisitRepo
	Jobs          *JobRunRepo
}

// txFunc 在事务内执行 fn
type txFunc func(ctx context.Context, fn func(tx *gorm.DB) error) error

// Transactor 带重试的事务执行器，database.PoolManager 实现了它
type Transactor interface {
	WithTransactionRetry(ctx context.Context, maxRetries int, fn database.TransactionFunc) error
}

// Option 配置 Store
type Option func(*Store)

// WithTransactor 写路径经 t 执行，死锁等可重试错误最多尝试 attempts 次
func WithTransactor(t Transactor, attempts int) Option {
	if attempts < 1 {
		attempts = 1
	}
	return func(s *Store) {
		s.tx = func(ctx context.Context, fn func(tx *gorm.DB) error) error {
			return t.WithTransactionRetry(ctx, attempts, fn)
		}
	}
}

// New 基于 db 创建仓储集合
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db: db,
		tx: func(ctx context.Context, fn func(tx *gorm.DB) error) error {
			return db.WithContext(ctx).Transaction(fn)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Conversations = &ConversationRepo{db: db}
	s.Messages = &MessageRepo{db: db, tx: s.tx}
	s.Routes = &SceneRouteRepo{db: db}
	s.Visits = &SceneVisitRepo{db: db, tx: s.tx}
	s.Jobs = &JobRunRepo{db: db}
	return s
}

// DB 返回底层连接
func (s *Store) DB() *gorm.DB { return s.db }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NewError(types.ErrNotFound, op+": record not found").WithCause(err).WithHTTPStatus(404)
	}
	return types.NewPersistenceError(op, err)
}

// =============================================================================
// 💬 会话
// =============================================================================

// ConversationRepo conversations 表
type ConversationRepo struct{ db *gorm.DB }

// Create 插入会话；同 ID 已存在时忽略
func (r *ConversationRepo) Create(ctx context.Context, c *Conversation) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c).Error
	return persistErr("create conversation", err)
}

// Get 按 ID 查询
func (r *ConversationRepo) Get(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, persistErr("get conversation", err)
	}
	return &c, nil
}

// SetTitle 写入摘要标题，会话不存在时先建一条空记录
func (r *ConversationRepo) SetTitle(ctx context.Context, id, title string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{"title": title, "updated_at": now}),
	}).Create(&Conversation{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}).Error
	return persistErr("set conversation title", err)
}

// ListUntitled 返回 since 之后创建且尚无标题的会话，按创建时间升序
func (r *ConversationRepo) ListUntitled(ctx context.Context, since time.Time, limit int) ([]Conversation, error) {
	var out []Conversation
	err := r.db.WithContext(ctx).
		Where("title = ? AND created_at >= ?", "", since).
		Order("created_at ASC").Limit(limit).Find(&out).Error
	return out, persistErr("list untitled conversations", err)
}

// =============================================================================
// 📜 消息
// =============================================================================

// MessageRepo 共享会话历史表
type MessageRepo struct {
	db *gorm.DB
	tx txFunc
}

// Append 在一个事务内追加消息
func (r *MessageRepo) Append(ctx context.Context, msgs ...*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	err := r.tx(ctx, func(tx *gorm.DB) error {
		return tx.Create(msgs).Error
	})
	return persistErr("append messages", err)
}

// ListByThread 按写入顺序返回会话消息；limit>0 时只取最后 limit 条
func (r *MessageRepo) ListByThread(ctx context.Context, threadID string, limit int) ([]Message, error) {
	var out []Message
	q := r.db.WithContext(ctx).Where("thread_id = ?", threadID)
	if limit > 0 {
		q = q.Order("created_at DESC, id DESC").Limit(limit)
	} else {
		q = q.Order("created_at ASC, id ASC")
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, persistErr("list messages", err)
	}
	if limit > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// FirstQuestion 返回会话的第一条用户消息
func (r *MessageRepo) FirstQuestion(ctx context.Context, threadID string) (string, error) {
	var m Message
	err := r.db.WithContext(ctx).Where("thread_id = ? AND role = ?", threadID, "user").
		Order("created_at ASC, id ASC").First(&m).Error
	if err != nil {
		return "", persistErr("first question", err)
	}
	return m.Content, nil
}

// ThreadsSince 返回 since 之后有新消息的会话 ID
func (r *MessageRepo) ThreadsSince(ctx context.Context, since time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("created_at >= ?", since).
		Distinct("thread_id").Limit(limit).Pluck("thread_id", &ids).Error
	return ids, persistErr("list active threads", err)
}

// =============================================================================
// 🧭 场景路由与访问计数
// =============================================================================

// SceneRouteRepo scene_routes 表
type SceneRouteRepo struct{ db *gorm.DB }

// Get 返回启用的路由；不存在时返回 NOT_FOUND
func (r *SceneRouteRepo) Get(ctx context.Context, sceneID string) (*SceneRoute, error) {
	var sr SceneRoute
	err := r.db.WithContext(ctx).Where("scene_id = ? AND enabled = ?", sceneID, true).First(&sr).Error
	if err != nil {
		return nil, persistErr("get scene route", err)
	}
	return &sr, nil
}

// Upsert 写入或覆盖路由
func (r *SceneRouteRepo) Upsert(ctx context.Context, sr *SceneRoute) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scene_id"}},
		UpdateAll: true,
	}).Create(sr).Error
	return persistErr("upsert scene route", err)
}

// SceneVisitRepo scene_visits 表
type SceneVisitRepo struct {
	db *gorm.DB
	tx txFunc
}

// Increment 访问计数加一
func (r *SceneVisitRepo) Increment(ctx context.Context, sceneID string) error {
	now := time.Now()
	err := r.tx(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "scene_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"visit_count":     gorm.Expr("scene_visits.visit_count + 1"),
				"last_visited_at": now,
			}),
		}).Create(&SceneVisit{SceneID: sceneID, VisitCount: 1, LastVisitedAt: now}).Error
	})
	return persistErr("increment scene visit", err)
}

// Count 返回访问次数，未访问过为 0
func (r *SceneVisitRepo) Count(ctx context.Context, sceneID string) (int64, error) {
	var v SceneVisit
	err := r.db.WithContext(ctx).Where("scene_id = ?", sceneID).Limit(1).Find(&v).Error
	return v.VisitCount, persistErr("count scene visits", err)
}

// =============================================================================
// ⏱️ 定时任务执行记录
// =============================================================================

// JobRunRepo job_runs 表
type JobRunRepo struct{ db *gorm.DB }

// Start 记录一次开始执行
func (r *JobRunRepo) Start(ctx context.Context, jobType string) (*JobRun, error) {
	run := &JobRun{JobType: jobType, Status: "running", StartedAt: time.Now()}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, persistErr("start job run", err)
	}
	return run, nil
}

// Finish 写入结束状态
func (r *JobRunRepo) Finish(ctx context.Context, run *JobRun, status, message string) error {
	now := time.Now()
	run.Status, run.Message, run.FinishedAt = status, message, &now
	err := r.db.WithContext(ctx).Model(run).Updates(map[string]any{
		"status":      status,
		"message":     message,
		"finished_at": now,
	}).Error
	return persistErr("finish job run", err)
}

// Latest 返回某类任务最近一次执行
func (r *JobRunRepo) Latest(ctx context.Context, jobType string) (*JobRun, error) {
	var run JobRun
	err := r.db.WithContext(ctx).Where("job_type = ?", jobType).
		Order("started_at DESC, id DESC").First(&run).Error
	if err != nil {
		return nil, persistErr("latest job run", err)
	}
	return &run, nil
}

// DeleteBefore 清理 cutoff 之前开始的执行记录
func (r *JobRunRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("started_at < ?", cutoff).Delete(&JobRun{})
	return res.RowsAffected, persistErr("delete job runs", res.Error)
}
