package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/health", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("POST", "/api/v1/chat/stream", 500, 50*time.Millisecond, 512, 64)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestsTotal))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/chat/stream", "5xx")))
}

func TestCollector_UpstreamAndStream(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordUpstreamRequest("dify", "stream", 503, time.Second)
	collector.RecordUpstreamRequest("dify", "stream", 0, time.Second)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.upstreamRequestsTotal.WithLabelValues("dify", "stream", "5xx")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.upstreamRequestsTotal.WithLabelValues("dify", "stream", "transport_error")))

	collector.StreamStarted("uyun")
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.streamsActive.WithLabelValues("uyun")))
	collector.RecordStreamEvent("uyun", "message")
	collector.RecordStreamEvent("uyun", "message")
	collector.StreamFinished("uyun", "done", 2*time.Second)

	assert.Equal(t, float64(0), testutil.ToFloat64(collector.streamsActive.WithLabelValues("uyun")))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.streamEvents.WithLabelValues("uyun", "message")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.streamsTotal.WithLabelValues("uyun", "done")))
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordLLMRequest("gpt-4o-mini", "success", 500*time.Millisecond, 100, 12)

	assert.Equal(t, float64(100), testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("gpt-4o-mini", "prompt")))
	assert.Equal(t, float64(12), testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("gpt-4o-mini", "completion")))
	assert.Greater(t, testutil.CollectAndCount(collector.llmRequestsTotal), 0)
}

func TestCollector_BackgroundAndJobs(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.ObserveBackgroundTask("persist_turn", "ok", 10*time.Millisecond)
	collector.ObserveBackgroundTask("persist_turn", "rejected", 0)
	collector.RecordJobRun("history_sync", "success")
	collector.RecordCredentialRefresh("fallback")

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.backgroundTasksTotal.WithLabelValues("persist_turn", "rejected")))
	// rejected 不计入耗时
	assert.Equal(t, 1, testutil.CollectAndCount(collector.backgroundTaskDuration))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.jobRunsTotal.WithLabelValues("history_sync", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.credentialRefreshTotal.WithLabelValues("fallback")))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("chat_history")
	collector.RecordCacheMiss("chat_history")

	assert.Greater(t, testutil.CollectAndCount(collector.cacheHits), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.cacheMisses), 0)
}

func TestCollector_Database(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBQuery("mysql", "SELECT", 20*time.Millisecond)
	collector.RecordDBConnections("mysql", 10, 5)

	assert.Greater(t, testutil.CollectAndCount(collector.dbQueryDuration), 0)
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("mysql")))
	assert.Equal(t, float64(5), testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("mysql")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
			collector.RecordStreamEvent("agentflow", "data")
			collector.RecordCacheHit("redis")
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/test", "2xx")))
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.streamEvents.WithLabelValues("agentflow", "data")))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(400))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(0))
}
