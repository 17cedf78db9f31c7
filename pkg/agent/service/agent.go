package service

import (
	"context"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dushixiang/gleam/internal/config"
	"github.com/dushixiang/gleam/internal/gpu"
	"github.com/dushixiang/gleam/internal/handler"
	"github.com/dushixiang/gleam/internal/process"
	"github.com/dushixiang/gleam/internal/scheduler"
	monitor "github.com/dushixiang/gleam/internal/service"
	"github.com/dushixiang/gleam/pkg/agent/collector"
	"github.com/dushixiang/gleam/pkg/agent/sysutil"
)

const helperTimeout = 5 * time.Second

// Agent wires collectors, GPU backends and services into one running monitor.
type Agent struct {
	cfg    *config.Config
	logger *zap.Logger
	fs     afero.Fs

	Monitor   *monitor.MonitorService
	Processes *monitor.ProcessService
	Board     *monitor.StatusBoard
	Scheduler *scheduler.ReportScheduler
}

// GPUOptions returns discovery options for cfg on the real filesystem.
func GPUOptions(cfg *config.Config, logger *zap.Logger) gpu.DiscoverOptions {
	return gpu.DiscoverOptions{
		Fs:          afero.NewOsFs(),
		Runner:      sysutil.NewCommandExecutor(logger, helperTimeout),
		Logger:      logger,
		DisableNVML: cfg.GPU.DisableNVML,
	}
}

// New discovers GPUs and builds every service. It does not start anything.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) *Agent {
	fs := afero.NewOsFs()
	opts := GPUOptions(cfg, logger)
	discover := func(ctx context.Context) monitor.GPUSource {
		return gpu.Discover(ctx, opts)
	}

	procs := collector.NewProcessCollector(logger)
	alerts := monitor.NewAlertService(logger, cfg.Alerts, monitor.NotifierFor(logger.Named("alert"), cfg.Alerts))
	mon := monitor.NewMonitorService(logger, cfg, collector.NewSystemCollector(logger), procs, discover(ctx), discover, alerts)

	board := monitor.NewStatusBoard(logger)
	processes := monitor.NewProcessService(logger, procs, process.DefaultResolver(ctx, fs), process.NewController(logger), board)

	return &Agent{
		cfg:       cfg,
		logger:    logger,
		fs:        fs,
		Monitor:   mon,
		Processes: processes,
		Board:     board,
		Scheduler: scheduler.NewReportScheduler(logger, mon, fs),
	}
}

// Start runs the monitor, the report scheduler, the status API when enabled and, when the
// config file exists, the config watcher. It returns when ctx is cancelled or any of them fails.
func (a *Agent) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Monitor.Run(ctx)
	})
	g.Go(func() error {
		return a.Scheduler.Run(ctx, a.cfg)
	})
	if a.cfg.HTTP.Enabled {
		h := handler.NewMonitorHandler(a.logger.Named("http"), a.Monitor, a.Processes, a.Board, a.Scheduler.Session())
		srv := handler.NewServer(a.logger.Named("http"), a.cfg.HTTP, h, a.cfg.RefreshInterval())
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}
	if ok, _ := afero.Exists(a.fs, a.cfg.Path); ok {
		watcher := config.NewWatcher(a.logger, config.NewLoader(a.fs), a.cfg.Path, a.applyConfig)
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	err := g.Wait()
	a.Processes.Wait()
	if serr := gpu.ShutdownNVML(); serr != nil {
		a.logger.Warn("release NVML", zap.Error(serr))
	}
	return err
}

func (a *Agent) applyConfig(cfg *config.Config) {
	a.Monitor.ApplyConfig(cfg)
	if err := a.Scheduler.Reschedule(cfg); err != nil {
		a.logger.Error("reschedule report jobs", zap.Error(err))
	}
}
