package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

type countingRecorder struct {
	mu           sync.Mutex
	hits, misses int
}

func (r *countingRecorder) RecordCacheHit(string) {
	r.mu.Lock()
	r.hits++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordCacheMiss(string) {
	r.mu.Lock()
	r.misses++
	r.mu.Unlock()
}

func TestManager_SetAndGet(t *testing.T) {
	_, manager := setupTestRedis(t)
	rec := &countingRecorder{}
	manager.SetHitRecorder(rec)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", time.Minute))

	value, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	_, err = manager.Get(ctx, "missing")
	assert.True(t, IsCacheMiss(err))

	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 1, rec.misses)
}

func TestManager_DefaultTTLApplied(t *testing.T) {
	mr, manager := setupTestRedis(t)

	require.NoError(t, manager.Set(context.Background(), "k", "v", 0))
	assert.Equal(t, time.Minute, mr.TTL("k"))
}

func TestManager_Delete(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, manager.Delete(ctx, "k"))
	require.NoError(t, manager.Delete(ctx))

	assert.False(t, mr.Exists("k"))
	_, err := manager.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_JSON(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type state struct {
		Step string `json:"step"`
		N    int    `json:"n"`
	}

	require.NoError(t, manager.SetJSON(ctx, "s", state{Step: "plan", N: 2}, time.Minute))

	var got state
	require.NoError(t, manager.GetJSON(ctx, "s", &got))
	assert.Equal(t, state{Step: "plan", N: 2}, got)

	assert.Error(t, manager.SetJSON(ctx, "bad", make(chan int), time.Minute))

	require.NoError(t, manager.Set(ctx, "raw", "not json", time.Minute))
	assert.Error(t, manager.GetJSON(ctx, "raw", &got))
}

func TestManager_ListOperations(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	_, err := manager.Range(ctx, "chat_history:t1", 0, -1)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, manager.AppendJSON(ctx, "chat_history:t1", time.Hour,
		map[string]string{"type": "user", "content": "hi"},
		map[string]string{"type": "assistant", "content": "hello"},
	))
	require.NoError(t, manager.AppendJSON(ctx, "chat_history:t1", time.Hour))

	vals, err := manager.Range(ctx, "chat_history:t1", 0, -1)
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.JSONEq(t, `{"type":"user","content":"hi"}`, vals[0])

	n, err := manager.Len(ctx, "chat_history:t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Hour, mr.TTL("chat_history:t1"))
}

func TestManager_TTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "ttl", "value", 100*time.Millisecond))
	_, err := manager.Get(ctx, "ttl")
	require.NoError(t, err)

	mr.FastForward(200 * time.Millisecond)

	_, err = manager.Get(ctx, "ttl")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_PingAndStats(t *testing.T) {
	_, manager := setupTestRedis(t)

	assert.NoError(t, manager.Ping(context.Background()))
	stats, err := manager.GetStats()
	require.NoError(t, err)
	assert.NotNil(t, stats)
}

func TestManager_ClosedRejectsOperations(t *testing.T) {
	_, manager := setupTestRedis(t)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	ctx := context.Background()
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.AppendJSON(ctx, "k", 0, "x"), ErrClosed)
}

func TestManager_ConnectFailed(t *testing.T) {
	manager, err := NewManager(Config{Addr: "localhost:1"}, zap.NewNop())
	assert.Nil(t, manager)
	assert.Error(t, err)
}

func TestManager_ConcurrentOperations(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := "concurrent-" + string(rune('0'+id))
			assert.NoError(t, manager.Set(ctx, key, "value", time.Minute))
			v, err := manager.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, "value", v)
		}(i)
	}
	wg.Wait()
}
