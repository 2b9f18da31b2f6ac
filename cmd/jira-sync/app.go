package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/jira-sync/internal/adapters/driven/auth"
	"github.com/custodia-labs/jira-sync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/jira-sync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/jira-sync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/jira-sync/internal/adapters/driving/admin"
	"github.com/custodia-labs/jira-sync/internal/adapters/driving/cli"
	"github.com/custodia-labs/jira-sync/internal/connectors/github"
	"github.com/custodia-labs/jira-sync/internal/connectors/jira"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driving"
	"github.com/custodia-labs/jira-sync/internal/core/services"
	"github.com/custodia-labs/jira-sync/internal/logger"
	"github.com/custodia-labs/jira-sync/internal/worker"
)

// githubTimeout bounds a single GitHub API call.
const githubTimeout = 30 * time.Second

// stores is the storage backend selected by store.driver.
type stores struct {
	subs  driven.SubscriptionStore
	repos driven.RepoSyncStateStore
	queue driven.Queue
	cache driven.Cache
	close func() error
}

func openStores(cfg *file.Config) (*stores, error) {
	vis, maxRecv := cfg.Queue.VisibilityTimeout(), cfg.Queue.MaxReceiveCount

	if cfg.Store.Driver == file.DriverMemory {
		states := memory.NewSyncStateStore()
		return &stores{
			subs:  memory.NewSubscriptionStore(states),
			repos: states,
			queue: memory.NewQueue(vis, maxRecv),
			cache: memory.NewCache(),
			close: func() error { return nil },
		}, nil
	}

	store, err := sqlite.NewStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return &stores{
		subs:  store.SubscriptionStore(),
		repos: store.RepoSyncStateStore(),
		queue: store.Queue(vis, maxRecv),
		cache: store.Cache(),
		close: store.Close,
	}, nil
}

// app holds every wired component of a running jira-sync.
type app struct {
	cfgPath string
	cfg     *file.Config
	logger  *zap.Logger
	stores  *stores

	tokens      *auth.InstallationTokens
	gate        *services.RateLimitGate
	backfill    *services.BackfillService
	pool        *worker.Pool
	maintenance driving.Scheduler
}

func newApp(cfgPath string, verbose bool) (*app, error) {
	if cfgPath == "" {
		p, err := file.DefaultPath()
		if err != nil {
			return nil, err
		}
		cfgPath = p
	}

	cfg, err := file.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Verbose:    verbose,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, err
	}

	st, err := openStores(cfg)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	a := &app{cfgPath: cfgPath, cfg: cfg, logger: log, stores: st}
	if err := a.wire(); err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg := a.cfg

	tokenTable, err := cfg.GitHub.Tokens()
	if err != nil {
		return err
	}
	pageSizes, err := cfg.GitHub.PageSizes()
	if err != nil {
		return err
	}
	cloudFanOut, err := cfg.GitHub.FanOutTable(false)
	if err != nil {
		return err
	}
	enterpriseFanOut, err := cfg.GitHub.FanOutTable(true)
	if err != nil {
		return err
	}

	a.tokens = auth.NewInstallationTokens(cfg.GitHub.Token, tokenTable)

	opts := []github.FactoryOption{
		github.WithRequestRate(cfg.GitHub.RequestsPerSecond),
		github.WithTimeout(githubTimeout),
	}
	if cfg.GitHub.APIURL != "" {
		opts = append(opts, github.WithAPIURL(cfg.GitHub.APIURL))
	}
	fetcher := github.NewFetcher(github.NewClientFactory(a.tokens, opts...))

	submitter := jira.NewSubmitter(jira.Auth{
		Username:      cfg.Jira.Username,
		APIToken:      cfg.Jira.APIToken,
		AppKey:        cfg.Jira.AppKey,
		SharedSecrets: cfg.Jira.SharedSecrets,
	}, a.logger.Named("jira"))

	discovery := services.NewDiscovery(fetcher, a.stores.subs, a.stores.repos,
		cfg.GitHub.DefaultPageSize, a.logger.Named("discovery"))

	scheduler := services.NewTaskScheduler(a.stores.subs, a.stores.repos, fetcher, submitter, discovery,
		services.TaskSchedulerConfig{
			PageSizes:        pageSizes,
			DefaultPageSize:  cfg.GitHub.DefaultPageSize,
			CloudFanOut:      cloudFanOut,
			EnterpriseFanOut: enterpriseFanOut,
			SecurityTasks:    cfg.GitHub.SecurityTasks,
		}, a.logger.Named("scheduler"))

	a.gate = services.NewRateLimitGate(fetcher, services.RateLimitGateConfig{
		Queues:           cfg.RateLimit.Queues,
		ThresholdPercent: cfg.RateLimit.ThresholdPercent,
		MinDelay:         cfg.RateLimit.MinDelay(),
	}, a.logger.Named("ratelimit"))

	var dedup *services.DedupGuard
	if cfg.Dedup.Enabled {
		dedup = services.NewDedupGuard(a.stores.cache, cfg.Queue.VisibilityTimeout()/2, a.logger.Named("dedup"))
	}

	errHandler := services.NewErrorHandler(scheduler, services.RetryPolicy{
		Base:       time.Duration(cfg.Retry.BaseDelaySec) * time.Second,
		Multiplier: cfg.Retry.Multiplier,
		Max:        time.Duration(cfg.Retry.MaxDelaySec) * time.Second,
	}, a.logger.Named("errors"))

	consumer := services.NewConsumer(a.stores.queue, a.gate, dedup, scheduler, errHandler, a.logger.Named("consumer"))

	a.backfill = services.NewBackfillService(a.stores.subs, a.stores.repos, a.stores.queue,
		cfg.Queue.Name, cfg.GitHub.SecurityTasks, a.logger.Named("backfill"))

	a.pool = worker.NewPool(a.stores.queue, cfg.Queue.Name, consumer,
		worker.WithConcurrency(cfg.Worker.Concurrency),
		worker.WithPollInterval(cfg.Worker.PollInterval()),
		worker.WithLogger(a.logger.Named("worker")),
	)
	a.maintenance = services.NewScheduler(a.stores.cache, a.stores.queue, a.logger.Named("maintenance"))
	return nil
}

// Run processes the queue until ctx is cancelled, alongside maintenance,
// the admin API and config reloads.
func (a *app) Run(ctx context.Context) error {
	if err := a.maintenance.Start(ctx); err != nil {
		return fmt.Errorf("starting maintenance: %w", err)
	}
	defer func() {
		if err := a.maintenance.Stop(); err != nil {
			a.logger.Warn("stopping maintenance", zap.Error(err))
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.pool.Run(ctx) })

	if addr := a.cfg.Admin.Addr; addr != "" {
		srv := admin.NewServer(a.backfill, a.logger.Named("admin"))
		g.Go(func() error { return srv.ListenAndServe(ctx, addr) })
	}

	watcher, err := file.NewWatcher(a.cfgPath, a.logger.Named("config"))
	if err != nil {
		// The config directory may not exist when running on defaults.
		a.logger.Info("config reload disabled", zap.Error(err))
	} else {
		g.Go(func() error { return watcher.Run(ctx, a.reload) })
	}

	return g.Wait()
}

// reload applies the settings that can change without a restart.
func (a *app) reload(cfg *file.Config) {
	a.gate.SetLimits(cfg.RateLimit.ThresholdPercent, cfg.RateLimit.MinDelay())

	tokens, err := cfg.GitHub.Tokens()
	if err != nil {
		a.logger.Warn("keeping installation tokens", zap.Error(err))
		return
	}
	a.tokens.Replace(cfg.GitHub.Token, tokens)
}

func (a *app) close() error {
	err := a.stores.close()
	// Sync fails on stderr for some terminals; ignore it.
	_ = a.logger.Sync()
	return err
}

func bootstrap(cfgPath string, verbose bool) (*cli.Services, error) {
	a, err := newApp(cfgPath, verbose)
	if err != nil {
		return nil, err
	}
	return &cli.Services{
		Backfill: a.backfill,
		Worker:   a,
		Close:    a.close,
	}, nil
}
