package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/history"
	"github.com/BaSui01/agentgate/store"
)

// 内置任务名
const (
	JobSummaryBackfill = "summary_backfill"
	JobHistorySync     = "history_sync"
	JobArchiveCleanup  = "archive_cleanup"
)

// =============================================================================
// 📝 summary_backfill
// =============================================================================

// UntitledSource 待补标题的会话
type UntitledSource interface {
	ListUntitled(ctx context.Context, since time.Time, limit int) ([]store.Conversation, error)
	SetTitle(ctx context.Context, id, title string) error
}

// QuestionSource 会话的首个问题
type QuestionSource interface {
	FirstQuestion(ctx context.Context, threadID string) (string, error)
}

// TitleGenerator 标题生成
type TitleGenerator interface {
	Summarize(ctx context.Context, question string) (string, error)
}

// SummaryBackfill 为最近 Lookback 内没有标题的会话生成标题
type SummaryBackfill struct {
	Conversations UntitledSource
	Questions     QuestionSource
	Summarizer    TitleGenerator
	Lookback      time.Duration
	BatchSize     int
	Logger        *zap.Logger
}

func (j *SummaryBackfill) Name() string { return JobSummaryBackfill }

func (j *SummaryBackfill) Run(ctx context.Context) (string, error) {
	lookback, batch := j.Lookback, j.BatchSize
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	if batch <= 0 {
		batch = 100
	}
	convs, err := j.Conversations.ListUntitled(ctx, time.Now().Add(-lookback), batch)
	if err != nil {
		return "", err
	}

	var done, failed int
	for _, c := range convs {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		q, err := j.Questions.FirstQuestion(ctx, c.ID)
		if err != nil {
			failed++
			continue
		}
		title, err := j.Summarizer.Summarize(ctx, q)
		if err != nil || title == "" {
			failed++
			logger(j.Logger).Debug("backfill summary failed", zap.String("conversation_id", c.ID), zap.Error(err))
			continue
		}
		if err := j.Conversations.SetTitle(ctx, c.ID, title); err != nil {
			failed++
			continue
		}
		done++
	}
	msg := fmt.Sprintf("backfilled %d of %d conversations", done, len(convs))
	if failed > 0 && done == 0 {
		return msg, errors.New(msg)
	}
	return msg, nil
}

// =============================================================================
// 🔄 history_sync
// =============================================================================

// ThreadSource 近期活跃会话
type ThreadSource interface {
	ThreadsSince(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// HistoryWarmer 读取即在缓存未命中时回填
type HistoryWarmer interface {
	Messages(ctx context.Context, thread string, limit int) ([]history.Message, error)
}

// HistorySync 把 Window 内活跃会话的历史预热到 Redis
type HistorySync struct {
	Threads   ThreadSource
	History   HistoryWarmer
	Window    time.Duration
	BatchSize int
}

func (j *HistorySync) Name() string { return JobHistorySync }

func (j *HistorySync) Run(ctx context.Context) (string, error) {
	window, batch := j.Window, j.BatchSize
	if window <= 0 {
		window = 24 * time.Hour
	}
	if batch <= 0 {
		batch = 500
	}
	threads, err := j.Threads.ThreadsSince(ctx, time.Now().Add(-window), batch)
	if err != nil {
		return "", err
	}
	var messages int
	for _, th := range threads {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msgs, err := j.History.Messages(ctx, th, 0)
		if err != nil {
			continue
		}
		messages += len(msgs)
	}
	return fmt.Sprintf("synced %d threads, %d messages", len(threads), messages), nil
}

// =============================================================================
// 🧹 archive_cleanup
// =============================================================================

// Purger 按时间删除
type Purger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchiveCleanup 删除早于 Retention 的归档文档与任务记录；Archive 可为 nil
type ArchiveCleanup struct {
	Archive   Purger
	JobRuns   Purger
	Retention time.Duration
}

func (j *ArchiveCleanup) Name() string { return JobArchiveCleanup }

func (j *ArchiveCleanup) Run(ctx context.Context) (string, error) {
	retention := j.Retention
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	cutoff := time.Now().Add(-retention)

	var docs, runs int64
	var errs []error
	if j.Archive != nil {
		n, err := j.Archive.DeleteBefore(ctx, cutoff)
		docs = n
		errs = append(errs, err)
	}
	if j.JobRuns != nil {
		n, err := j.JobRuns.DeleteBefore(ctx, cutoff)
		runs = n
		errs = append(errs, err)
	}
	return fmt.Sprintf("removed %d archive documents, %d job runs", docs, runs), errors.Join(errs...)
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
