package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/config"
	"github.com/BaSui01/agentgate/credential"
	"github.com/BaSui01/agentgate/history"
	"github.com/BaSui01/agentgate/internal/background"
	"github.com/BaSui01/agentgate/internal/cache"
	"github.com/BaSui01/agentgate/internal/database"
	"github.com/BaSui01/agentgate/internal/metrics"
	"github.com/BaSui01/agentgate/internal/migration"
	"github.com/BaSui01/agentgate/llm"
	"github.com/BaSui01/agentgate/llm/tokenizer"
	"github.com/BaSui01/agentgate/router"
	"github.com/BaSui01/agentgate/scheduler"
	"github.com/BaSui01/agentgate/session"
	"github.com/BaSui01/agentgate/store"
	"github.com/BaSui01/agentgate/upstream"
)

// =============================================================================
// 📦 依赖容器
// =============================================================================

// Probe 一个依赖的健康探针
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// Container 进程内全部组件，启动时构建一次，按依赖逆序关闭
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Collector

	Pool       *database.PoolManager
	Store      *store.Store
	Cache      *cache.Manager
	Archive    *history.MongoArchive
	Credential *credential.Service
	LLM        *llm.Client
	Tokenizer  tokenizer.Tokenizer
	History    *history.Manager
	Executor   *background.Executor
	Sessions   *session.Manager
	Router     *router.Router
	Scheduler  *scheduler.Scheduler

	probes  []Probe
	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Option 构建选项
type Option func(*Container)

// WithMetrics 注入指标收集器；未设置时不记录指标
func WithMetrics(c *metrics.Collector) Option {
	return func(ct *Container) { ct.Metrics = c }
}

// Build 按依赖顺序初始化全部组件。
// 可选存储（MySQL、Redis、Mongo）连接失败只记录日志并降级，不阻止启动。
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("container: config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{Config: cfg, Logger: logger}
	for _, opt := range opts {
		opt(c)
	}

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"database", c.initDatabase},
		{"cache", c.initCache},
		{"archive", c.initArchive},
		{"llm", c.initLLM},
		{"history", c.initHistory},
		{"background", c.initBackground},
		{"session", c.initSession},
		{"router", c.initRouter},
		{"scheduler", c.initScheduler},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			closeErr := c.Close(context.WithoutCancel(ctx))
			return nil, errors.Join(fmt.Errorf("container: init %s: %w", step.name, err), closeErr)
		}
	}

	logger.Info("container initialized",
		zap.Bool("database", c.Store != nil),
		zap.Bool("redis", c.Cache != nil),
		zap.Bool("mongo", c.Archive != nil),
		zap.Bool("credential_service", c.Credential.Enabled()),
		zap.Strings("jobs", c.Scheduler.Jobs()),
	)
	return c, nil
}

// Probes 返回健康探针
func (c *Container) Probes() []Probe {
	out := make([]Probe, len(c.probes))
	copy(out, c.probes)
	return out
}

// Close 逆序关闭，返回全部错误
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		if err := cl.fn(ctx); err != nil {
			c.Logger.Warn("close component failed", zap.String("component", cl.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", cl.name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) onClose(name string, fn func(ctx context.Context) error) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

func (c *Container) probe(name string, critical bool, fn func(ctx context.Context) error) {
	c.probes = append(c.probes, Probe{Name: name, Critical: critical, Check: fn})
}

func unavailable(name string) func(context.Context) error {
	return func(context.Context) error { return fmt.Errorf("%s not connected", name) }
}

// =============================================================================
// 🔧 初始化步骤
// =============================================================================

func (c *Container) initDatabase(ctx context.Context) error {
	dbCfg := c.Config.Database
	if !dbCfg.Enabled {
		return nil
	}
	if dbCfg.AutoMigrate {
		if err := runMigrations(ctx, dbCfg); err != nil {
			c.Logger.Error("auto migrate failed", zap.Error(err))
		}
	}

	var openOpts []database.OpenOption
	if c.Metrics != nil {
		openOpts = append(openOpts, database.WithQueryRecorder(c.Metrics))
	}
	db, err := database.Open(dbCfg, c.Logger, openOpts...)
	if err != nil {
		c.Logger.Warn("database not available, persistence disabled", zap.Error(err))
		c.probe(dbCfg.Driver, false, unavailable(dbCfg.Driver))
		return nil
	}
	pool, err := database.NewPoolManager(db, database.PoolConfigFrom(dbCfg), c.Logger)
	if err != nil {
		c.Logger.Warn("database pool init failed, persistence disabled", zap.Error(err))
		c.probe(dbCfg.Driver, false, unavailable(dbCfg.Driver))
		return nil
	}
	if c.Metrics != nil {
		pool.SetStatsRecorder(c.Metrics)
	}
	c.Pool = pool
	c.Store = store.New(pool.DB(), store.WithTransactor(pool, txAttempts))
	c.probe(dbCfg.Driver, false, pool.Ping)
	c.onClose("database", func(context.Context) error { return pool.Close() })
	return nil
}

func runMigrations(ctx context.Context, dbCfg config.DatabaseConfig) error {
	m, err := migration.NewMigratorFromDatabaseConfig(dbCfg)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up(ctx)
}

func (c *Container) initCache(context.Context) error {
	rc := c.Config.Redis
	cacheCfg := cache.DefaultConfig()
	if rc.Addr != "" {
		cacheCfg.Addr = rc.Addr
	}
	cacheCfg.Password = rc.Password
	cacheCfg.DB = rc.DB
	if rc.PoolSize > 0 {
		cacheCfg.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		cacheCfg.MinIdleConns = rc.MinIdleConns
	}

	m, err := cache.NewManager(cacheCfg, c.Logger)
	if err != nil {
		c.Logger.Warn("redis not available, history falls back to memory", zap.Error(err))
		c.probe("redis", false, unavailable("redis"))
		return nil
	}
	if c.Metrics != nil {
		m.SetHitRecorder(c.Metrics)
	}
	c.Cache = m
	c.probe("redis", false, m.Ping)
	c.onClose("redis", func(context.Context) error { return m.Close() })
	return nil
}

func (c *Container) initArchive(ctx context.Context) error {
	mc := c.Config.Mongo
	if !mc.Enabled {
		return nil
	}
	a, err := history.NewMongoArchive(ctx, mc, c.Logger)
	if err != nil {
		c.Logger.Warn("mongodb not available, archive disabled", zap.Error(err))
		c.probe("mongodb", false, unavailable("mongodb"))
		return nil
	}
	c.Archive = a
	c.probe("mongodb", false, a.Ping)
	c.onClose("mongodb", a.Close)
	return nil
}

func (c *Container) initLLM(ctx context.Context) error {
	var credOpts []credential.Option
	var llmOpts []llm.Option
	if c.Metrics != nil {
		credOpts = append(credOpts, credential.WithRecorder(c.Metrics))
		llmOpts = append(llmOpts, llm.WithRecorder(c.Metrics))
	}
	c.Credential = credential.NewService(c.Config.Credential, c.Config.LLM.APIKey, c.Logger, credOpts...)
	c.Credential.Init(ctx)
	c.LLM = llm.NewClient(c.Config.LLM, c.Credential, c.Logger, llmOpts...)
	c.Tokenizer = tokenizer.ForModel(c.Config.LLM.Model)

	c.probe("llm_credential", true, c.Credential.Check)
	if c.Credential.Enabled() {
		c.probe("credential_service", false, c.Credential.ServiceCheck)
	}
	return nil
}

func (c *Container) initHistory(context.Context) error {
	var source history.Source
	if c.Store != nil {
		source = c.Store.Messages
	}
	c.History = history.NewManager(c.Cache, source, c.Config.History, c.Logger)
	return nil
}

func (c *Container) initBackground(context.Context) error {
	bc := c.Config.Background
	execCfg := background.DefaultConfig()
	if bc.Workers > 0 {
		execCfg.Workers = bc.Workers
	}
	if bc.QueueSize > 0 {
		execCfg.QueueSize = bc.QueueSize
	}
	if bc.TaskTimeout > 0 {
		execCfg.TaskTimeout = bc.TaskTimeout
	}
	var opts []background.Option
	if c.Metrics != nil {
		opts = append(opts, background.WithObserver(c.Metrics))
	}
	c.Executor = background.New(execCfg, c.Logger, opts...)
	c.onClose("background", c.Executor.Close)
	return nil
}

func (c *Container) initSession(context.Context) error {
	deps := session.Deps{
		History:    c.History,
		Summarizer: session.NewSummarizer(c.LLM, c.Tokenizer, c.Config.LLM.SummaryInputTokens, c.Logger),
	}
	if c.Store != nil {
		deps.Conversations = c.Store.Conversations
		deps.Messages = c.Store.Messages
		deps.Visits = c.Store.Visits
	}
	if c.Archive != nil {
		deps.Archive = c.Archive
	}
	c.Sessions = session.NewManager(c.Executor, deps, c.Logger)
	return nil
}

func (c *Container) initRouter(context.Context) error {
	ec := c.Config.Engines
	var upOpts []upstream.Option
	if c.Metrics != nil {
		upOpts = append(upOpts, upstream.WithRecorder(c.Metrics))
	}

	deps := router.Deps{
		Sessions:  c.Sessions,
		Dify:      upstream.NewDifyClient(ec.Dify.BaseURL, ec.Dify.APIKey, ec.Dify.Timeout, c.Logger, upOpts...),
		AgentFlow: upstream.NewAgentFlowClient(ec.AgentFlow.BaseURL, ec.AgentFlow.Timeout, c.Logger, upOpts...),
		Tokenizer: c.Tokenizer,
	}
	if ec.Uyun.BaseURL != "" {
		deps.Uyun = upstream.NewUyunClient(ec.Uyun.BaseURL, ec.Uyun.Timeout, c.Logger, upOpts...)
	} else {
		c.Logger.Warn("uyun base_url not configured, uyun engine disabled")
	}
	if c.Store != nil {
		deps.Routes = c.Store.Routes
	}
	if c.Metrics != nil {
		deps.Observer = c.Metrics
	}

	r, err := router.New(ec, deps, c.Logger)
	if err != nil {
		return err
	}
	c.Router = r
	return nil
}

func (c *Container) initScheduler(context.Context) error {
	sc := c.Config.Scheduler
	var opts []scheduler.Option
	if c.Store != nil {
		opts = append(opts, scheduler.WithRunStore(c.Store.Jobs))
	}
	if c.Metrics != nil {
		opts = append(opts, scheduler.WithRecorder(c.Metrics))
	}
	s := scheduler.New(c.Logger, opts...)

	if c.Store != nil {
		s.Register(&scheduler.SummaryBackfill{
			Conversations: c.Store.Conversations,
			Questions:     c.Store.Messages,
			Summarizer:    session.NewSummarizer(c.LLM, c.Tokenizer, c.Config.LLM.SummaryInputTokens, c.Logger),
			Logger:        c.Logger,
		}, sc.SummaryBackfillInterval)
		s.Register(&scheduler.HistorySync{
			Threads: c.Store.Messages,
			History: c.History,
		}, sc.HistorySyncInterval)
	}
	cleanup := &scheduler.ArchiveCleanup{Retention: sc.ArchiveRetention}
	if c.Archive != nil {
		cleanup.Archive = c.Archive
	}
	if c.Store != nil {
		cleanup.JobRuns = c.Store.Jobs
	}
	if cleanup.Archive != nil || cleanup.JobRuns != nil {
		s.Register(cleanup, sc.ArchiveCleanupInterval)
	}

	if sc.Enabled {
		s.StartAll()
	}
	c.Scheduler = s
	c.onClose("scheduler", s.Close)
	return nil
}

const (
	// shutdownTimeout 关闭时的默认超时
	shutdownTimeout = 30 * time.Second
	// txAttempts 可重试事务的最大尝试次数
	txAttempts = 3
)

// Shutdown 以默认超时关闭
func (c *Container) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return c.Close(ctx)
}
