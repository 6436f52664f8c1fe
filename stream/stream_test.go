package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentgate/llm/tokenizer"
	"github.com/BaSui01/agentgate/types"
	"github.com/BaSui01/agentgate/upstream"
)

func charOptions() Options {
	return Options{Revealer: Revealer{Unit: RevealChar}, ThoughtDelay: 50 * time.Millisecond}
}

// =============================================================================
// 内容顺序与终止事件
// =============================================================================

func TestUyun_ContentOrderSurvivesMalformedLines(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		contents := rapid.SliceOfN(rapid.StringMatching(`[b-e0-9xyz]{1,8}`), 0, 20).Draw(rt, "contents")
		var lines []string
		for i, c := range contents {
			if rapid.Bool().Draw(rt, fmt.Sprintf("junk%d", i)) {
				lines = append(lines, "data: {broken", "garbage line", "")
			}
			lines = append(lines, fmt.Sprintf(`data: {"agent":"reporter","content":%q}`, c))
		}

		open, closes, _ := linesOpener("uyun", lines...)
		buf := &Buffers{}
		events := collectRapid(rt, Run(context.Background(), NewUyunTranslator(charOptions()), open, testMeta, buf))

		msgs := ofType(events, EventMessage)
		if len(msgs) != len(contents) {
			rt.Fatalf("want %d messages, got %d", len(contents), len(msgs))
		}
		for i, m := range msgs {
			if m.Content != contents[i] {
				rt.Fatalf("message %d: want %q got %q", i, contents[i], m.Content)
			}
		}
		if terminalCount(events) != 1 || !events[len(events)-1].Type.Terminal() {
			rt.Fatalf("want exactly one trailing terminal event")
		}
		if closes.Load() != 1 {
			rt.Fatalf("body closed %d times", closes.Load())
		}
		if buf.Answer() != strings.Join(contents, "") {
			rt.Fatalf("answer mismatch")
		}
	})
}

func collectRapid(rt *rapid.T, ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestUyun_LoadingRevealAndThought(t *testing.T) {
	open, _, stream := linesOpener("uyun",
		`data: {"agent":"coordinator","content":"loading...|查询","finish_reason":"tool_calls"}`,
		`data: {"agent":"coordinator","content":"loading...|again"}`,
		`data: {"agent":"planner","content":"thought想"}`,
		`data: {"agent":"reporter","content":"flag结果"}`,
		`data: {"agent":"reporter","content":"完毕","thread_id":"t9"}`,
	)
	buf := &Buffers{}
	events := collect(t, Run(context.Background(), NewUyunTranslator(charOptions()), open, testMeta, buf))

	loading := ofType(events, EventLoading)
	require.Len(t, loading, 4)
	assert.Equal(t, "识别用户意图...", loading[0].LoadingText)
	assert.Equal(t, "识别用户意图...\n\n查", loading[1].LoadingText)
	assert.Equal(t, "识别用户意图...\n\n查询", loading[2].LoadingText)
	assert.Equal(t, "正在规划任务，请稍后.......", loading[3].LoadingText)

	msgs := ofType(events, EventMessage)
	require.Len(t, msgs, 3)
	assert.Equal(t, "想", msgs[0].Thought)
	assert.Equal(t, 50*time.Millisecond, msgs[0].Delay)
	assert.Equal(t, "结果", msgs[1].Content)
	assert.Equal(t, "完毕", msgs[2].Content)

	last := events[len(events)-1]
	assert.Equal(t, EventDone, last.Type)
	assert.True(t, last.Finished)
	assert.Equal(t, "c0ffee", last.ConversationID)

	assert.Equal(t, "结果完毕", buf.Answer())
	assert.Equal(t, "想\n\n\n", buf.Thought())
	assert.Equal(t, 1, (*stream).Releases())
}

func TestUyun_AmbiguousSentinelSkipped(t *testing.T) {
	open, _, _ := linesOpener("uyun",
		`data: {"agent":"reporter","content":"thought and flag"}`,
		`data: {"agent":"reporter","content":"ok"}`,
	)
	events := collect(t, Run(context.Background(), NewUyunTranslator(charOptions()), open, testMeta, nil))
	msgs := ofType(events, EventMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ok", msgs[0].Content)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		content string
		want    Sentinel
		wantErr bool
	}{
		{"plain", SentinelNone, false},
		{"loading...|x", SentinelLoading, false},
		{"thoughtabc", SentinelThought, false},
		{"flagabc", SentinelFlag, false},
		{"loading...|thought", SentinelNone, true},
	}
	for _, tt := range tests {
		got, err := Classify(tt.content)
		if tt.wantErr {
			assert.True(t, types.IsErrorCode(err, types.ErrAmbiguousSentinel), tt.content)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.content)
	}
}

// =============================================================================
// Dify
// =============================================================================

func TestDify_LoadingRevealUsesLabel(t *testing.T) {
	open, _, _ := linesOpener("dify",
		`data: {"event":"message","answer":"loading...|识别用户意图|AB"}`,
		`data: {"event":"message","answer":"loading...|重复|CD"}`,
	)
	events := collect(t, Run(context.Background(), NewDifyTranslator(charOptions()), open, testMeta, nil))

	loading := ofType(events, EventLoading)
	require.Len(t, loading, 3)
	assert.Equal(t, "识别用户意图\n\nA", loading[1].LoadingText)
	assert.Equal(t, "识别用户意图\n\nAB", loading[2].LoadingText)
	assert.Equal(t, 1, terminalCount(events))
}

func TestDify_AnswerMatchesEmittedContent(t *testing.T) {
	open, _, _ := linesOpener("dify",
		": keep-alive",
		"data: ping",
		`data: {"event":"workflow_started"}`,
		`data: {"event":"message","answer":"Hello ","conversation_id":"d1"}`,
		`data: not json`,
		`data: {"event":"message","answer":"world"}`,
		`data: {"event":"message_end","answer":"","metadata":{}}`,
		`data: {"event":"message","answer":"after end"}`,
	)
	buf := &Buffers{}
	events := collect(t, Run(context.Background(), NewDifyTranslator(charOptions()), open, testMeta, buf))

	assert.Equal(t, "Hello world", joinContent(events))
	assert.Equal(t, joinContent(events), buf.Answer())
	assert.Equal(t, EventDone, events[len(events)-1].Type)
	assert.Equal(t, 1, terminalCount(events))
}

func TestDify_FoldedPrefixAndMetadata(t *testing.T) {
	open, _, _ := linesOpener("dify",
		`data: {"event":"message","answer":"A"}`,
		`data: {"event":"message","answer":"B"}`,
		`data: {"event":"message_end","metadata":{"retriever_resources":[{"doc":"x"}]}}`,
	)
	opts := charOptions()
	opts.FoldedThinking = true
	buf := &Buffers{}
	events := collect(t, Run(context.Background(), NewDifyTranslator(opts), open, testMeta, buf))

	msgs := ofType(events, EventMessage)
	require.Len(t, msgs, 2)
	assert.Equal(t, "<details open> <summary>深度思考</summary>A", msgs[0].Content)
	assert.Equal(t, "B", msgs[1].Content)
	assert.Equal(t, `AB{"retriever_resources":[{"doc":"x"}]}`, buf.Answer())
}

func TestDify_ErrorEvent(t *testing.T) {
	open, _, _ := linesOpener("dify",
		`data: {"event":"message","answer":"part"}`,
		`data: {"event":"error","message":"quota exceeded"}`,
	)
	events := collect(t, Run(context.Background(), NewDifyTranslator(charOptions()), open, testMeta, nil))
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, "quota exceeded", last.Error)
	assert.Equal(t, 1, terminalCount(events))
}

type countingTransport struct {
	closes atomic.Int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = trackedBody{Reader: resp.Body, closer: resp.Body, closes: &c.closes}
	return resp, nil
}

func TestDify_UpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ct := &countingTransport{}
	client := upstream.NewDifyClient(srv.URL, "k", time.Minute, zap.NewNop(),
		upstream.WithHTTPClient(&http.Client{Transport: ct}))
	open := func(ctx context.Context) (*upstream.Stream, error) {
		return client.Stream(ctx, upstream.DifyRequest{Query: "q"})
	}

	events := collect(t, Run(context.Background(), NewDifyTranslator(charOptions()), open, testMeta, nil))
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, "upstream dify error: status 503", events[0].Error)
	assert.Empty(t, ofType(events, EventMessage))
	assert.Equal(t, int32(1), ct.closes.Load())
}

// =============================================================================
// agentflow
// =============================================================================

func TestAgentFlow_EventPairs(t *testing.T) {
	open, _, _ := linesOpener("agentflow",
		"event: message",
		`data: {"text":"你好"}`,
		"",
		"event: data",
		`data: {"rows":[1,2]}`,
		"event: metadata",
		`data: {"source":"kb"}`,
		"event: message",
		"data: plain text",
		"data: {\"text\":\"orphan\"}",
		"event: done",
		`data: {"thread_id":"th-1"}`,
		"event: message",
		`data: {"text":"ignored"}`,
	)
	buf := &Buffers{}
	events := collect(t, Run(context.Background(), NewAgentFlowTranslator(), open, testMeta, buf))

	require.Len(t, events, 5)
	assert.Equal(t, EventMessage, events[0].Type)
	assert.Equal(t, "你好", events[0].Content)
	assert.Equal(t, "agentflow", events[0].Agent)
	assert.Equal(t, "c0ffee", events[0].ThreadID)
	assert.Equal(t, EventData, events[1].Type)
	assert.JSONEq(t, `{"rows":[1,2]}`, string(events[1].Data))
	assert.Equal(t, EventMetadata, events[2].Type)
	assert.JSONEq(t, `{"source":"kb"}`, events[2].Context)
	assert.Equal(t, "plain text", events[3].Content)
	assert.Equal(t, EventDone, events[4].Type)
	assert.Equal(t, "th-1", events[4].ThreadID)
	assert.Equal(t, `你好{"rows":[1,2]}plain text`, buf.Answer())
}

func TestAgentFlow_ErrorDefaultsMessage(t *testing.T) {
	open, _, _ := linesOpener("agentflow", "event: error", `data: {}`)
	events := collect(t, Run(context.Background(), NewAgentFlowTranslator(), open, testMeta, nil))
	require.Len(t, events, 1)
	assert.Equal(t, "unknown error", events[0].Error)
}

func TestAgentFlow_ErrorMessageShapes(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"object", `data: {"error":"agent crashed"}`, "agent crashed"},
		{"json string", `data: "boom"`, "boom"},
		{"json number", `data: 42`, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open, _, _ := linesOpener("agentflow", "event: error", tt.data)
			events := collect(t, Run(context.Background(), NewAgentFlowTranslator(), open, testMeta, nil))
			require.Len(t, events, 1)
			assert.Equal(t, EventError, events[0].Type)
			assert.Equal(t, tt.want, events[0].Error)
		})
	}
}

// =============================================================================
// 生命周期
// =============================================================================

func TestRun_CancelReleasesOnce(t *testing.T) {
	pr, pw := io.Pipe()
	closes := &atomic.Int32{}
	var opened *upstream.Stream
	open := func(context.Context) (*upstream.Stream, error) {
		opened = upstream.NewStream("uyun", nil, trackedBody{Reader: pr, closer: pr, closes: closes}, nil)
		return opened, nil
	}

	go func() {
		_, _ = io.WriteString(pw, `data: {"agent":"reporter","content":"first"}`+"\n")
	}()

	ctx, cancel := context.WithCancel(context.Background())
	ch := Run(ctx, NewUyunTranslator(charOptions()), open, testMeta, nil)

	for ev := range ch {
		if ev.Type == EventMessage {
			break
		}
	}
	cancel()
	rest := collect(t, ch)
	for _, ev := range rest {
		assert.NotEqual(t, EventMessage, ev.Type)
	}

	assert.Equal(t, int32(1), closes.Load())
	assert.Equal(t, 1, opened.Releases())
	_, err := io.WriteString(pw, "data: late\n")
	assert.Error(t, err)
}

func TestRun_OpenErrorTransport(t *testing.T) {
	open := func(context.Context) (*upstream.Stream, error) {
		return nil, &upstream.TransportError{Engine: "uyun", Op: "POST", Err: io.ErrUnexpectedEOF}
	}
	events := collect(t, Run(context.Background(), NewUyunTranslator(charOptions()), open, testMeta, nil))
	require.Len(t, events, 1)
	assert.Equal(t, "upstream uyun unavailable", events[0].Error)
	assert.True(t, events[0].Finished)
}

type fakeObserver struct {
	started, finished atomic.Int32
	outcome           atomic.Value
	events            atomic.Int32
}

func (f *fakeObserver) StreamStarted(string)                 { f.started.Add(1) }
func (f *fakeObserver) RecordStreamEvent(string, string)     { f.events.Add(1) }
func (f *fakeObserver) StreamFinished(_, o string, _ time.Duration) {
	f.finished.Add(1)
	f.outcome.Store(o)
}

func TestRun_ObserverOutcome(t *testing.T) {
	open, _, _ := linesOpener("uyun", `data: {"agent":"a","content":"x"}`)
	obs := &fakeObserver{}
	events := collect(t, Run(context.Background(), NewUyunTranslator(charOptions()), open, testMeta, nil,
		WithObserver(obs), WithLogger(zap.NewNop())))

	assert.Equal(t, int32(1), obs.started.Load())
	assert.Equal(t, int32(1), obs.finished.Load())
	assert.Equal(t, OutcomeDone, obs.outcome.Load())
	assert.Equal(t, int32(len(events)), obs.events.Load())
}

func TestUyun_TokenRevealWithEstimator(t *testing.T) {
	open, _, _ := linesOpener("uyun", `data: {"agent":"coordinator","content":"loading...|ab"}`)
	opts := Options{Revealer: Revealer{Unit: RevealToken, Tokenizer: tokenizer.NewEstimatorTokenizer()}}
	events := collect(t, Run(context.Background(), NewUyunTranslator(opts), open, testMeta, nil))
	loading := ofType(events, EventLoading)
	require.Len(t, loading, 4)
	assert.Equal(t, "识别用户意图...\n\nab", loading[2].LoadingText)
}
