package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/dushixiang/gleam/internal/alert"
	"github.com/dushixiang/gleam/internal/config"
	"github.com/dushixiang/gleam/internal/history"
	"github.com/dushixiang/gleam/internal/process"
	"github.com/dushixiang/gleam/internal/protocol"
	"github.com/dushixiang/gleam/internal/trend"
)

// SystemSampler takes one cpu/memory/swap sample.
type SystemSampler interface {
	Collect(ctx context.Context) (*protocol.SystemData, error)
}

// GPUSource reads all GPUs. *gpu.Manager implements it.
type GPUSource interface {
	Count() int
	Snapshot() []protocol.GPUData
}

// GPUDiscoverer enumerates GPUs from scratch.
type GPUDiscoverer func(ctx context.Context) GPUSource

// State is the immutable result of one refresh tick.
type State struct {
	System    *protocol.SystemData   `json:"system"`
	GPUs      []protocol.GPUData     `json:"gpus"`
	Processes []protocol.ProcessData `json:"processes"` // top by cpu
	Alerts    []alert.Alert          `json:"alerts"`
	Critical  int                    `json:"critical"`
	Warning   int                    `json:"warning"`
	Trends    []trend.MetricTrend    `json:"trends"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// MonitorService owns the refresh loop. Run is the only writer of history, trend and
// alert state; everything else reads State or goes through WithHistory.
type MonitorService struct {
	logger   *zap.Logger
	cfg      *config.Config
	sampler  SystemSampler
	procs    ProcessSource
	gpus     GPUSource
	discover GPUDiscoverer
	analyzer *trend.Analyzer
	alerts   *AlertService

	historyMu sync.RWMutex
	history   *history.MetricsHistory

	state    atomic.Pointer[State]
	configCh chan *config.Config
	paused   atomic.Bool
	stopped  atomic.Bool
}

// NewMonitorService sizes the history for the GPUs gpus reports. discover may be nil to
// disable rescans.
func NewMonitorService(logger *zap.Logger, cfg *config.Config, sampler SystemSampler, procs ProcessSource, gpus GPUSource, discover GPUDiscoverer, alerts *AlertService) *MonitorService {
	return &MonitorService{
		logger:   logger,
		cfg:      cfg,
		sampler:  sampler,
		procs:    procs,
		gpus:     gpus,
		discover: discover,
		analyzer: trend.NewAnalyzer(cfg.Trends),
		alerts:   alerts,
		history:  history.NewMetricsHistory(cfg.General.HistorySamples, gpus.Count()),
		configCh: make(chan *config.Config, 1),
	}
}

// Run ticks until ctx is cancelled.
func (s *MonitorService) Run(ctx context.Context) error {
	defer s.stopped.Store(true)

	ticker := time.NewTicker(s.cfg.RefreshInterval())
	defer ticker.Stop()

	rescans := make(chan GPUSource)
	if s.discover != nil {
		go s.rescanLoop(ctx, rescans, s.gpus.Count(), s.cfg.RescanMin(), s.cfg.RescanMax())
	}

	s.logger.Info("monitor started",
		zap.Duration("interval", s.cfg.RefreshInterval()),
		zap.Int("gpus", s.gpus.Count()),
		zap.Int("history", s.cfg.General.HistorySamples),
	)
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.alerts.Wait()
			s.logger.Info("monitor stopped")
			return nil
		case cfg := <-s.configCh:
			s.applyConfig(cfg)
			ticker.Reset(cfg.RefreshInterval())
		case gpus := <-rescans:
			s.swapGPUs(gpus)
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one refresh cycle: sample, GPU snapshot, history, trends, alerts.
func (s *MonitorService) Tick(ctx context.Context) {
	if s.paused.Load() {
		return
	}

	sys, err := s.sampler.Collect(ctx)
	if err != nil {
		s.logger.Warn("system sample failed", zap.Error(err))
		return
	}
	gpus := s.gpus.Snapshot()

	s.historyMu.Lock()
	if len(gpus) > s.history.GPUCount() {
		s.history.ResizeGPU(len(gpus))
	}
	s.history.Update(sys.Timestamp, sys.CPU.UsagePercent, sys.Memory.UsagePercent, sys.Memory.SwapPercent, gpus)
	s.historyMu.Unlock()

	state := &State{
		System:    sys,
		GPUs:      gpus,
		Alerts:    s.alerts.Check(sys, gpus),
		UpdatedAt: time.Now(),
	}
	state.Critical = s.alerts.CriticalCount()
	state.Warning = s.alerts.WarningCount()

	if s.cfg.Trends.Enabled {
		s.historyMu.RLock()
		state.Trends = s.analyzer.AnalyzeAll(s.history, s.cfg.Alerts.Thresholds)
		s.historyMu.RUnlock()
	}

	if s.procs != nil {
		if procs, err := s.procs.Collect(ctx); err != nil {
			s.logger.Debug("process sample failed", zap.Error(err))
		} else {
			state.Processes = process.Top(procs, process.SortCPU, s.cfg.General.ProcessCount)
		}
	}

	s.state.Store(state)
}

// swapGPUs installs a rediscovered GPU set. GPU history restarts because ids are indexes
// and may now name different devices.
func (s *MonitorService) swapGPUs(gpus GPUSource) {
	s.logger.Info("GPU set changed, GPU history reset",
		zap.Int("before", s.gpus.Count()), zap.Int("after", gpus.Count()))
	s.gpus = gpus
	s.historyMu.Lock()
	s.history.ResetGPU(gpus.Count())
	s.historyMu.Unlock()
}

// rescanLoop rediscovers GPUs with growing intervals and reports a changed device count.
// The interval resets after every change.
func (s *MonitorService) rescanLoop(ctx context.Context, out chan<- GPUSource, known int, minWait, maxWait time.Duration) {
	b := &backoff.Backoff{Min: minWait, Max: maxWait, Factor: 2, Jitter: true}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.Duration()):
		}

		gpus := s.discover(ctx)
		if gpus.Count() == known {
			continue
		}
		select {
		case out <- gpus:
			known = gpus.Count()
			b.Reset()
		case <-ctx.Done():
			return
		}
	}
}

// ApplyConfig hands cfg to the loop. Only the newest pending config is kept.
func (s *MonitorService) ApplyConfig(cfg *config.Config) {
	for {
		select {
		case s.configCh <- cfg:
			return
		default:
		}
		select {
		case <-s.configCh:
		default:
		}
	}
}

func (s *MonitorService) applyConfig(cfg *config.Config) {
	if cfg.General.HistorySamples != s.history.Capacity() {
		s.logger.Info("history_samples change takes effect after restart",
			zap.Int("current", s.history.Capacity()), zap.Int("configured", cfg.General.HistorySamples))
	}
	s.cfg = cfg
	s.analyzer.SetConfig(cfg.Trends)
	s.alerts.SetConfig(cfg.Alerts)
	s.logger.Info("configuration applied", zap.String("path", cfg.Path))
}

// State returns the latest tick result, nil before the first tick.
func (s *MonitorService) State() *State {
	return s.state.Load()
}

// WithHistory runs fn under the history read lock. fn must not retain h.
func (s *MonitorService) WithHistory(fn func(h *history.MetricsHistory)) {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()
	fn(s.history)
}

// Pause stops sampling without stopping the loop.
func (s *MonitorService) Pause() { s.paused.Store(true) }

// Resume restarts sampling on the next tick.
func (s *MonitorService) Resume() { s.paused.Store(false) }

// Paused reports whether sampling is paused.
func (s *MonitorService) Paused() bool { return s.paused.Load() }

// Stopped reports whether Run has returned.
func (s *MonitorService) Stopped() bool { return s.stopped.Load() }
