package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgate/history"
	"github.com/BaSui01/agentgate/store"
)

type fakeConversations struct {
	untitled []store.Conversation
	titles   map[string]string
}

func (f *fakeConversations) ListUntitled(_ context.Context, _ time.Time, _ int) ([]store.Conversation, error) {
	return f.untitled, nil
}

func (f *fakeConversations) SetTitle(_ context.Context, id, title string) error {
	if f.titles == nil {
		f.titles = map[string]string{}
	}
	f.titles[id] = title
	return nil
}

type fakeQuestions map[string]string

func (f fakeQuestions) FirstQuestion(_ context.Context, id string) (string, error) {
	q, ok := f[id]
	if !ok {
		return "", errors.New("not found")
	}
	return q, nil
}

type echoTitles struct{}

func (echoTitles) Summarize(_ context.Context, q string) (string, error) { return "T:" + q, nil }

func TestSummaryBackfill(t *testing.T) {
	convs := &fakeConversations{untitled: []store.Conversation{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	job := &SummaryBackfill{
		Conversations: convs,
		Questions:     fakeQuestions{"a": "qa", "c": "qc"},
		Summarizer:    echoTitles{},
	}
	msg, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "backfilled 2 of 3 conversations", msg)
	assert.Equal(t, map[string]string{"a": "T:qa", "c": "T:qc"}, convs.titles)
}

func TestSummaryBackfill_AllFailed(t *testing.T) {
	job := &SummaryBackfill{
		Conversations: &fakeConversations{untitled: []store.Conversation{{ID: "x"}}},
		Questions:     fakeQuestions{},
		Summarizer:    echoTitles{},
	}
	_, err := job.Run(context.Background())
	assert.Error(t, err)
}

type fakeThreads []string

func (f fakeThreads) ThreadsSince(_ context.Context, _ time.Time, _ int) ([]string, error) {
	return f, nil
}

type fakeWarmer struct{ seen []string }

func (f *fakeWarmer) Messages(_ context.Context, thread string, _ int) ([]history.Message, error) {
	f.seen = append(f.seen, thread)
	return []history.Message{{Role: history.RoleUser, Content: "q"}, {Role: history.RoleAssistant, Content: "a"}}, nil
}

func TestHistorySync(t *testing.T) {
	warm := &fakeWarmer{}
	job := &HistorySync{Threads: fakeThreads{"t1", "t2"}, History: warm}
	msg, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "synced 2 threads, 4 messages", msg)
	assert.Equal(t, []string{"t1", "t2"}, warm.seen)
}

type fakePurger struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakePurger) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestArchiveCleanup(t *testing.T) {
	arch := &fakePurger{n: 3}
	runs := &fakePurger{n: 5}
	job := &ArchiveCleanup{Archive: arch, JobRuns: runs, Retention: 48 * time.Hour}

	msg, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "removed 3 archive documents, 5 job runs", msg)
	assert.WithinDuration(t, time.Now().Add(-48*time.Hour), arch.cutoff, time.Minute)

	runs.err = errors.New("locked")
	_, err = job.Run(context.Background())
	assert.ErrorContains(t, err, "locked")

	job = &ArchiveCleanup{JobRuns: &fakePurger{}}
	_, err = job.Run(context.Background())
	assert.NoError(t, err)
}
