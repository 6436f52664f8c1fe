package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/config"
	"github.com/BaSui01/agentgate/internal/cache"
	"github.com/BaSui01/agentgate/store"
)

type fakeSource struct {
	rows  []store.Message
	err   error
	calls int
}

func (f *fakeSource) ListByThread(_ context.Context, _ string, _ int) ([]store.Message, error) {
	f.calls++
	return f.rows, f.err
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *cache.Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	cfg.MaxRetries = 0
	c, err := cache.NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestManager_AddAndRead(t *testing.T) {
	mr, c := newRedis(t)
	m := NewManager(c, nil, config.HistoryConfig{}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.AddMessages(ctx, "t1",
		Message{Role: RoleUser, Content: "你好"},
		Message{Role: RoleAssistant, Content: "hi", MessageID: "m1"},
	))

	raw, err := mr.List("chat_history:t1")
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.JSONEq(t, `{"type":"HumanMessage","content":"你好"}`, raw[0])
	assert.Equal(t, 7*24*time.Hour, mr.TTL("chat_history:t1"))

	msgs, err := m.Messages(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "m1", msgs[1].MessageID)

	last, err := m.Messages(ctx, "t1", 1)
	require.NoError(t, err)
	assert.Equal(t, []Message{{Role: RoleAssistant, Content: "hi", MessageID: "m1"}}, last)

	sum, err := m.ContextSummary(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, Summary{ThreadID: "t1", MessageCount: 2, HasHistory: true}, sum)

	require.NoError(t, m.Clear(ctx, "t1"))
	assert.False(t, mr.Exists("chat_history:t1"))
	assert.True(t, m.Healthy())
}

func TestManager_RestoresFromDatabase(t *testing.T) {
	mr, c := newRedis(t)
	src := &fakeSource{rows: []store.Message{
		{ThreadID: "t2", Role: "user", Content: "q"},
		{ThreadID: "t2", Role: "tool", Content: "skipped"},
		{ThreadID: "t2", Role: "assistant", Content: "a"},
	}}
	m := NewManager(c, src, config.HistoryConfig{}, zap.NewNop())
	ctx := context.Background()

	msgs, err := m.Messages(ctx, "t2", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[1].Content)

	raw, err := mr.List("chat_history:t2")
	require.NoError(t, err)
	assert.Len(t, raw, 2)

	_, err = m.Messages(ctx, "t2", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestManager_DatabaseErrorYieldsEmpty(t *testing.T) {
	_, c := newRedis(t)
	m := NewManager(c, &fakeSource{err: errors.New("db down")}, config.HistoryConfig{}, zap.NewNop())
	msgs, err := m.Messages(context.Background(), "none", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestManager_MemoryFallbackWhenRedisDown(t *testing.T) {
	mr, c := newRedis(t)
	m := NewManager(c, nil, config.HistoryConfig{}, zap.NewNop())
	ctx := context.Background()
	mr.Close()

	require.NoError(t, m.AddMessages(ctx, "t3", Message{Role: RoleUser, Content: "offline"}))
	assert.False(t, m.Healthy())

	msgs, err := m.Messages(ctx, "t3", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "offline", msgs[0].Content)

	require.NoError(t, m.SaveState(ctx, "t3", map[string]any{"step": "plan"}))
	state, err := m.GetState(ctx, "t3")
	require.NoError(t, err)
	assert.Equal(t, "plan", state["step"])

	sum, err := m.ContextSummary(ctx, "t3")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.MessageCount)
}

func TestManager_State(t *testing.T) {
	mr, c := newRedis(t)
	m := NewManager(c, nil, config.HistoryConfig{}, zap.NewNop())
	ctx := context.Background()

	state, err := m.GetState(ctx, "t4")
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, m.SaveState(ctx, "t4", map[string]any{"plan": "deploy"}))
	assert.True(t, mr.Exists("chat_state:t4"))
	state, err = m.GetState(ctx, "t4")
	require.NoError(t, err)
	assert.Equal(t, "deploy", state["plan"])

	require.NoError(t, m.ClearState(ctx, "t4"))
	assert.False(t, mr.Exists("chat_state:t4"))
}

func TestManager_MemoryOnly(t *testing.T) {
	m := NewManager(nil, nil, config.HistoryConfig{}, nil)
	ctx := context.Background()
	require.NoError(t, m.AddMessages(ctx, "t5", Message{Role: RoleSystem, Content: "s"}))
	msgs, err := m.Messages(ctx, "t5", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.False(t, m.Healthy())
}

func TestManager_MemoryFallbackKeepsNewest(t *testing.T) {
	m := NewManager(nil, nil, config.HistoryConfig{MaxMessages: 3}, zap.NewNop())
	ctx := context.Background()
	for _, c := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, m.AddMessages(ctx, "t6", Message{Role: RoleUser, Content: c}))
	}

	msgs, err := m.Messages(ctx, "t6", 100)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "c", msgs[0].Content)
	assert.Equal(t, "e", msgs[2].Content)

	sum, err := m.ContextSummary(ctx, "t6")
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.MessageCount)
}

func TestMemoryStore_ExpiresIdleThreads(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ms := newMemoryStore(10, time.Hour)
	ms.now = func() time.Time { return now }

	ms.append("t7", Message{Role: RoleUser, Content: "q"})
	now = now.Add(30 * time.Minute)
	assert.Len(t, ms.list("t7"), 1)

	now = now.Add(time.Hour)
	assert.Empty(t, ms.list("t7"))

	ms.append("t7", Message{Role: RoleUser, Content: "again"})
	got := ms.list("t7")
	require.Len(t, got, 1)
	assert.Equal(t, "again", got[0].Content)
}

func TestAppendUpdate(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	doc := ArchiveDocument{
		ThreadID:  "t1",
		AgentName: "uyun",
		UserID:    "u1",
		Messages:  []ArchivedMessage{{Role: "user", Content: "q", Timestamp: now}},
	}
	filter, update := appendUpdate(doc, now)

	assert.Equal(t, bson.D{{Key: "thread_id", Value: "t1"}, {Key: "agent_name", Value: "uyun"}}, filter)
	require.Len(t, update, 3)
	assert.Equal(t, "$push", update[0].Key)
	set := update[1].Value.(bson.D)
	assert.Equal(t, bson.E{Key: "updated_at", Value: now}, set[0])
	assert.Equal(t, bson.E{Key: "user_id", Value: "u1"}, set[1])
	assert.Equal(t, "$setOnInsert", update[2].Key)
}
