package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/agentgate/internal/database"
	"github.com/BaSui01/agentgate/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(Models()...))
	return New(db)
}

func TestConversationRepo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &Conversation{ID: "c1", UserID: "u1", AgentID: "a1", IsScene: true}
	require.NoError(t, s.Conversations.Create(ctx, c))
	require.NoError(t, s.Conversations.Create(ctx, &Conversation{ID: "c1", UserID: "other"}))

	got, err := s.Conversations.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.IsScene)

	untitled, err := s.Conversations.ListUntitled(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, untitled, 1)

	require.NoError(t, s.Conversations.SetTitle(ctx, "c1", "部署问题"))
	got, err = s.Conversations.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "部署问题", got.Title)
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, s.Conversations.SetTitle(ctx, "c2", "先有标题"))
	got, err = s.Conversations.Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "先有标题", got.Title)

	_, err = s.Conversations.Get(ctx, "missing")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestMessageRepo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	var msgs []*Message
	for i, role := range []string{"user", "assistant", "user", "assistant"} {
		msgs = append(msgs, &Message{
			ThreadID:  "t1",
			Role:      role,
			Content:   string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	require.NoError(t, s.Messages.Append(ctx, msgs...))
	require.NoError(t, s.Messages.Append(ctx, &Message{ThreadID: "t2", Role: "user", Content: "x"}))

	all, err := s.Messages.ListByThread(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].Content)

	last, err := s.Messages.ListByThread(ctx, "t1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "c", last[0].Content)
	assert.Equal(t, "d", last[1].Content)

	q, err := s.Messages.FirstQuestion(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "a", q)

	threads, err := s.Messages.ThreadsSince(ctx, base.Add(-time.Second), 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, threads)
}

func TestSceneRouteAndVisits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Routes.Get(ctx, "s1")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))

	require.NoError(t, s.Routes.Upsert(ctx, &SceneRoute{SceneID: "s1", Source: "dify", APIKey: "k1", BaseURL: "http://d", Enabled: true}))
	require.NoError(t, s.Routes.Upsert(ctx, &SceneRoute{SceneID: "s1", Source: "dify", APIKey: "k2", BaseURL: "http://d", Enabled: true}))
	r, err := s.Routes.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "k2", r.APIKey)

	n, err := s.Visits.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Visits.Increment(ctx, "s1"))
	}
	n, err = s.Visits.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

// countingTransactor 记录经过的事务
type countingTransactor struct {
	db       *gorm.DB
	calls    int
	attempts int
}

func (c *countingTransactor) WithTransactionRetry(ctx context.Context, maxRetries int, fn database.TransactionFunc) error {
	c.calls++
	c.attempts = maxRetries
	return c.db.WithContext(ctx).Transaction(fn)
}

func TestStore_WritesGoThroughTransactor(t *testing.T) {
	base := newTestStore(t)
	tr := &countingTransactor{db: base.DB()}
	s := New(base.DB(), WithTransactor(tr, 3))
	ctx := context.Background()

	require.NoError(t, s.Messages.Append(ctx,
		&Message{ThreadID: "t1", Role: "user", Content: "q"},
		&Message{ThreadID: "t1", Role: "assistant", Content: "a"},
	))
	require.NoError(t, s.Visits.Increment(ctx, "s1"))

	assert.Equal(t, 2, tr.calls)
	assert.Equal(t, 3, tr.attempts)

	msgs, err := s.Messages.ListByThread(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	n, err := s.Visits.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_WithTransactorClampsAttempts(t *testing.T) {
	base := newTestStore(t)
	tr := &countingTransactor{db: base.DB()}
	s := New(base.DB(), WithTransactor(tr, 0))

	require.NoError(t, s.Visits.Increment(context.Background(), "s1"))
	assert.Equal(t, 1, tr.attempts)
}

func TestStore_PoolManagerTransactor(t *testing.T) {
	base := newTestStore(t)
	pool, err := database.NewPoolManager(base.DB(), database.PoolConfig{Name: "sqlite", MaxIdleConns: 1, MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)

	s := New(pool.DB(), WithTransactor(pool, 3))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, s.Visits.Increment(ctx, "s2"))
	}
	require.NoError(t, s.Messages.Append(ctx, &Message{ThreadID: "t9", Role: "user", Content: "hi"}))

	n, err := s.Visits.Count(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	q, err := s.Messages.FirstQuestion(ctx, "t9")
	require.NoError(t, err)
	assert.Equal(t, "hi", q)
}

func TestJobRunRepo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.Jobs.Start(ctx, "history_sync")
	require.NoError(t, err)
	require.NoError(t, s.Jobs.Finish(ctx, run, "success", "synced 3"))

	latest, err := s.Jobs.Latest(ctx, "history_sync")
	require.NoError(t, err)
	assert.Equal(t, "success", latest.Status)
	assert.Equal(t, "synced 3", latest.Message)
	require.NotNil(t, latest.FinishedAt)

	deleted, err := s.Jobs.DeleteBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
