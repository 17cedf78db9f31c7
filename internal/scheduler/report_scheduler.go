package scheduler

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"github.com/valyala/fasttemplate"
	"go.uber.org/zap"

	"github.com/dushixiang/gleam/internal/config"
	"github.com/dushixiang/gleam/internal/history"
	"github.com/dushixiang/gleam/internal/service"
	"github.com/dushixiang/gleam/internal/trend"
)

const (
	jobReport = "report"
	jobExport = "export"
)

// Monitor is the read side of service.MonitorService.
type Monitor interface {
	State() *service.State
	WithHistory(fn func(h *history.MetricsHistory))
}

// ReportScheduler periodically logs a status line and, when an export directory is set,
// dumps the history to disk.
type ReportScheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	cfg     config.ReportConfig

	monitor Monitor
	fs      afero.Fs
	session string
	logger  *zap.Logger
	now     func() time.Time
}

// NewReportScheduler creates an idle scheduler with a fresh session id. Overlapping runs
// of the same job are skipped.
func NewReportScheduler(logger *zap.Logger, monitor Monitor, fs afero.Fs) *ReportScheduler {
	return &ReportScheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		entries: make(map[string]cron.EntryID),
		monitor: monitor,
		fs:      fs,
		session: uuid.NewString(),
		logger:  logger,
		now:     time.Now,
	}
}

// Session identifies this run in exported files.
func (s *ReportScheduler) Session() string {
	return s.session
}

// Start schedules the jobs for cfg and starts the cron runner.
func (s *ReportScheduler) Start(cfg *config.Config) error {
	if err := s.Reschedule(cfg); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("report scheduler started", zap.String("session", s.session))
	return nil
}

// Stop waits for running jobs to finish.
func (s *ReportScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("report scheduler stopped")
}

// Run starts the scheduler and stops it when ctx ends.
func (s *ReportScheduler) Run(ctx context.Context, cfg *config.Config) error {
	if err := s.Start(cfg); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Reschedule replaces both jobs according to cfg.
func (s *ReportScheduler) Reschedule(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	s.cfg = cfg.Report
	if !cfg.Report.Enabled {
		s.logger.Info("periodic report disabled")
		return nil
	}

	spec := fmt.Sprintf("@every %s", cfg.ReportInterval())
	id, err := s.cron.AddFunc(spec, s.report)
	if err != nil {
		return fmt.Errorf("add report job: %w", err)
	}
	s.entries[jobReport] = id

	if cfg.Report.ExportDir != "" {
		id, err := s.cron.AddFunc(spec, s.export)
		if err != nil {
			return fmt.Errorf("add export job: %w", err)
		}
		s.entries[jobExport] = id
	}

	s.logger.Info("report jobs scheduled",
		zap.String("spec", spec),
		zap.Bool("export", cfg.Report.ExportDir != ""),
	)
	return nil
}

func (s *ReportScheduler) reportConfig() config.ReportConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *ReportScheduler) report() {
	state := s.monitor.State()
	if state == nil {
		return
	}
	line, err := RenderReport(s.reportConfig().Template, state)
	if err != nil {
		s.logger.Error("render report", zap.Error(err))
		return
	}
	s.logger.Info(line)
}

func (s *ReportScheduler) export() {
	cfg := s.reportConfig()
	var (
		name string
		err  error
	)
	s.monitor.WithHistory(func(h *history.MetricsHistory) {
		name, err = history.Export(s.fs, cfg.ExportDir, cfg.ExportFormat, h, s.session, s.now())
	})
	if err != nil {
		s.logger.Error("export history", zap.Error(err))
		return
	}
	s.logger.Info("history exported", zap.String("file", name))
}

// RenderReport fills tpl's {placeholders} from state. Unknown placeholders are kept as is.
func RenderReport(tpl string, state *service.State) (string, error) {
	t, err := fasttemplate.NewTemplate(tpl, "{", "}")
	if err != nil {
		return "", fmt.Errorf("parse report template: %w", err)
	}

	mem := state.System.Memory
	values := map[string]string{
		"cpu":       strconv.FormatFloat(state.System.CPU.UsagePercent, 'f', 1, 64),
		"memory":    strconv.FormatFloat(mem.UsagePercent, 'f', 1, 64),
		"mem_used":  humanize.IBytes(mem.Used),
		"mem_total": humanize.IBytes(mem.Total),
		"swap":      strconv.FormatFloat(mem.SwapPercent, 'f', 1, 64),
		"gpus":      gpuSummary(state),
		"alerts":    strconv.Itoa(len(state.Alerts)),
		"critical":  strconv.Itoa(state.Critical),
		"warning":   strconv.Itoa(state.Warning),
		"trends":    trendSummary(state.Trends),
	}
	return t.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		if v, ok := values[tag]; ok {
			return w.Write([]byte(v))
		}
		return w.Write([]byte("{" + tag + "}"))
	}), nil
}

func gpuSummary(state *service.State) string {
	if len(state.GPUs) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(state.GPUs))
	for _, g := range state.GPUs {
		var b strings.Builder
		fmt.Fprintf(&b, "%d:", g.ID)
		if g.Temperature != nil {
			fmt.Fprintf(&b, " %.0f°C", *g.Temperature)
		}
		if g.Utilization != nil {
			fmt.Fprintf(&b, " %.0f%%", *g.Utilization)
		}
		if g.MemoryUsed != nil && g.MemoryTotal != nil {
			fmt.Fprintf(&b, " %s/%s", humanize.IBytes(*g.MemoryUsed), humanize.IBytes(*g.MemoryTotal))
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ", ")
}

func trendSummary(trends []trend.MetricTrend) string {
	var parts []string
	for _, t := range trends {
		if t.Direction == trend.Stable {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %+.1f/min", t.Metric, t.Direction, t.RatePerMinute))
	}
	if len(parts) == 0 {
		return "stable"
	}
	return strings.Join(parts, ", ")
}
