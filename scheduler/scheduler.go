package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/store"
	"github.com/BaSui01/agentgate/types"
)

// Action 任务控制操作
type Action string

const (
	ActionStart  Action = "start"
	ActionStop   Action = "stop"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionStatus Action = "status"
)

// ParseAction 校验操作类型
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionStart, ActionStop, ActionPause, ActionResume, ActionStatus:
		return a, nil
	default:
		return "", types.NewError(types.ErrInvalidAction, "invalid operation type").WithHTTPStatus(400)
	}
}

// Status 任务状态
type Status string

const (
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// ErrJobBusy 同一任务正在执行
var ErrJobBusy = errors.New("job is already executing")

// Job 一个可调度的任务，返回执行摘要
type Job interface {
	Name() string
	Run(ctx context.Context) (string, error)
}

// RunStore 任务执行记录
type RunStore interface {
	Start(ctx context.Context, jobType string) (*store.JobRun, error)
	Finish(ctx context.Context, run *store.JobRun, status, message string) error
}

// Recorder 任务指标
type Recorder interface {
	RecordJobRun(jobType, status string)
}

// Result 控制操作结果
type Result struct {
	Message string `json:"message"`
	Status  Status `json:"status"`
}

type entry struct {
	job      Job
	interval time.Duration

	status Status
	done   chan struct{}
	exec   sync.Mutex
}

// Scheduler 任务调度器
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*entry
	runs    RunStore
	rec     Recorder
	timeout time.Duration
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option 配置 Scheduler
type Option func(*Scheduler)

// WithRunStore 记录每次执行
func WithRunStore(rs RunStore) Option { return func(s *Scheduler) { s.runs = rs } }

// WithRecorder 上报执行指标
func WithRecorder(r Recorder) Option { return func(s *Scheduler) { s.rec = r } }

// WithJobTimeout 单次执行超时，0 表示不限制
func WithJobTimeout(d time.Duration) Option { return func(s *Scheduler) { s.timeout = d } }

// New 创建调度器
func New(logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		jobs:   make(map[string]*entry),
		logger: logger.With(zap.String("component", "scheduler")),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register 注册任务；interval<=0 的任务只能手动执行
func (s *Scheduler) Register(job Job, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name()] = &entry{job: job, interval: interval, status: StatusStopped}
}

// Jobs 返回已注册任务名
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll 启动所有带间隔的任务
func (s *Scheduler) StartAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.jobs {
		if e.interval > 0 && e.status == StatusStopped {
			s.startLocked(e)
		}
	}
}

func (s *Scheduler) lookup(jobType string) (*entry, error) {
	e, ok := s.jobs[jobType]
	if !ok {
		return nil, types.NewError(types.ErrJobNotFound, fmt.Sprintf("unknown job type %q", jobType)).WithHTTPStatus(404)
	}
	return e, nil
}

// Control 执行控制操作
func (s *Scheduler) Control(action, jobType string) (Result, error) {
	act, err := ParseAction(action)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(jobType)
	if err != nil {
		return Result{}, err
	}

	switch act {
	case ActionStart:
		if e.status != StatusStopped {
			return Result{Message: jobType + " is already started", Status: e.status}, nil
		}
		if e.interval <= 0 {
			return Result{}, types.NewInvalidRequestError(jobType + " has no schedule interval")
		}
		s.startLocked(e)
		return Result{Message: jobType + " started", Status: e.status}, nil
	case ActionStop:
		if e.status == StatusStopped {
			return Result{Message: jobType + " is not running", Status: e.status}, nil
		}
		close(e.done)
		e.status = StatusStopped
		s.logger.Info("job stopped", zap.String("job", jobType))
		return Result{Message: jobType + " stopped", Status: e.status}, nil
	case ActionPause:
		if e.status != StatusRunning {
			return Result{Message: jobType + " is not running", Status: e.status}, nil
		}
		e.status = StatusPaused
		s.logger.Info("job paused", zap.String("job", jobType))
		return Result{Message: jobType + " paused", Status: e.status}, nil
	case ActionResume:
		if e.status != StatusPaused {
			return Result{Message: jobType + " is not paused", Status: e.status}, nil
		}
		e.status = StatusRunning
		s.logger.Info("job resumed", zap.String("job", jobType))
		return Result{Message: jobType + " resumed", Status: e.status}, nil
	case ActionStatus:
		return Result{Message: jobType + " is " + string(e.status), Status: e.status}, nil
	default:
		return Result{}, types.NewError(types.ErrInvalidAction, "invalid operation type").WithHTTPStatus(400)
	}
}

// startLocked 调用方持有 s.mu
func (s *Scheduler) startLocked(e *entry) {
	e.done = make(chan struct{})
	e.status = StatusRunning
	s.wg.Add(1)
	go s.loop(e, e.done)
	s.logger.Info("job started", zap.String("job", e.job.Name()), zap.Duration("interval", e.interval))
}

func (s *Scheduler) loop(e *entry, done <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			paused := e.status == StatusPaused
			s.mu.Unlock()
			if paused {
				continue
			}
			if _, err := s.execute(s.ctx, e); err != nil && !errors.Is(err, ErrJobBusy) {
				s.logger.Warn("scheduled job failed", zap.String("job", e.job.Name()), zap.Error(err))
			}
		}
	}
}

// Execute 立即同步执行一次
func (s *Scheduler) Execute(ctx context.Context, jobType string) (string, error) {
	s.mu.Lock()
	e, err := s.lookup(jobType)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return s.execute(ctx, e)
}

func (s *Scheduler) execute(ctx context.Context, e *entry) (string, error) {
	if !e.exec.TryLock() {
		return "", ErrJobBusy
	}
	defer e.exec.Unlock()

	name := e.job.Name()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var run *store.JobRun
	if s.runs != nil {
		r, err := s.runs.Start(ctx, name)
		if err != nil {
			s.logger.Warn("record job start failed", zap.String("job", name), zap.Error(err))
		}
		run = r
	}

	start := time.Now()
	msg, err := e.job.Run(ctx)
	status := "success"
	if err != nil {
		status = "failed"
		msg = err.Error()
	}
	s.logger.Info("job finished",
		zap.String("job", name),
		zap.String("status", status),
		zap.String("message", msg),
		zap.Duration("duration", time.Since(start)),
	)
	if s.rec != nil {
		s.rec.RecordJobRun(name, status)
	}
	if run != nil {
		if ferr := s.runs.Finish(context.WithoutCancel(ctx), run, status, msg); ferr != nil {
			s.logger.Warn("record job finish failed", zap.String("job", name), zap.Error(ferr))
		}
	}
	return msg, err
}

// Close 停止全部任务并等待循环退出
func (s *Scheduler) Close(ctx context.Context) error {
	s.cancel()
	s.mu.Lock()
	for _, e := range s.jobs {
		e.status = StatusStopped
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
