package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/agentgate/store"
	"github.com/BaSui01/agentgate/types"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) (string, error) {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
		}
	}
	if j.err != nil {
		return "", j.err
	}
	return "ok", nil
}

type jobRecorder struct{ statuses []string }

func (r *jobRecorder) RecordJobRun(jobType, status string) {
	r.statuses = append(r.statuses, jobType+":"+status)
}

func closeScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
}

func TestParseAction(t *testing.T) {
	for _, a := range []string{"start", "stop", "pause", "resume", "status"} {
		_, err := ParseAction(a)
		assert.NoError(t, err)
	}
	_, err := ParseAction("restart")
	require.Error(t, err)
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, 400, e.HTTPStatus)
	assert.Equal(t, "invalid operation type", e.Message)
}

func TestControl_Lifecycle(t *testing.T) {
	s := New(zap.NewNop())
	defer closeScheduler(t, s)
	job := &countingJob{name: "sync"}
	s.Register(job, time.Hour)

	res, err := s.Control("status", "sync")
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, res.Status)

	steps := []struct {
		action string
		want   Status
	}{
		{"start", StatusRunning},
		{"start", StatusRunning},
		{"pause", StatusPaused},
		{"pause", StatusPaused},
		{"resume", StatusRunning},
		{"stop", StatusStopped},
		{"stop", StatusStopped},
		{"resume", StatusStopped},
	}
	for _, st := range steps {
		res, err := s.Control(st.action, "sync")
		require.NoError(t, err, st.action)
		assert.Equal(t, st.want, res.Status, st.action)
		assert.NotEmpty(t, res.Message)
	}

	_, err = s.Control("start", "missing")
	assert.True(t, types.IsErrorCode(err, types.ErrJobNotFound))

	_, err = s.Control("bogus", "sync")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidAction))
}

func TestControl_StartWithoutInterval(t *testing.T) {
	s := New(zap.NewNop())
	defer closeScheduler(t, s)
	s.Register(&countingJob{name: "manual"}, 0)

	_, err := s.Control("start", "manual")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestLoop_RunsAndPauses(t *testing.T) {
	s := New(zap.NewNop())
	defer closeScheduler(t, s)
	job := &countingJob{name: "tick"}
	s.Register(job, 10*time.Millisecond)
	s.StartAll()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	_, err := s.Control("pause", "tick")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	paused := job.runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, job.runs.Load(), paused+1)

	_, err = s.Control("resume", "tick")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return job.runs.Load() > paused+1 }, 2*time.Second, 5*time.Millisecond)
}

func TestExecute_RecordsRuns(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "jobs.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(store.Models()...))
	st := store.New(db)

	rec := &jobRecorder{}
	s := New(zap.NewNop(), WithRunStore(st.Jobs), WithRecorder(rec), WithJobTimeout(time.Second))
	defer closeScheduler(t, s)

	s.Register(&countingJob{name: "good"}, 0)
	s.Register(&countingJob{name: "bad", err: errors.New("boom")}, 0)
	ctx := context.Background()

	msg, err := s.Execute(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "ok", msg)

	_, err = s.Execute(ctx, "bad")
	assert.EqualError(t, err, "boom")

	_, err = s.Execute(ctx, "unknown")
	assert.True(t, types.IsErrorCode(err, types.ErrJobNotFound))

	good, err := st.Jobs.Latest(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "success", good.Status)
	assert.NotNil(t, good.FinishedAt)

	bad, err := st.Jobs.Latest(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, "failed", bad.Status)
	assert.Equal(t, "boom", bad.Message)

	assert.Equal(t, []string{"good:success", "bad:failed"}, rec.statuses)
	assert.Equal(t, []string{"bad", "good"}, s.Jobs())
}

func TestExecute_Busy(t *testing.T) {
	s := New(zap.NewNop())
	defer closeScheduler(t, s)
	job := &countingJob{name: "slow", block: make(chan struct{})}
	s.Register(job, 0)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Execute(context.Background(), "slow")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, 2*time.Second, time.Millisecond)

	_, err := s.Execute(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobBusy)

	close(job.block)
	assert.NoError(t, <-errCh)
}
