package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"
	"go.uber.org/zap"

	"github.com/dushixiang/gleam/internal/config"
	"github.com/dushixiang/gleam/pkg/agent"
)

// program implements service.Interface.
type program struct {
	cfg    *config.Config
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// startAgent runs the agent in the background until ctx ends.
func startAgent(ctx context.Context, cfg *config.Config, logger *zap.Logger) chan struct{} {
	done := make(chan struct{})
	a := New(ctx, cfg, logger)
	go func() {
		defer close(done)
		if err := a.Start(ctx); err != nil {
			logger.Warn("agent stopped with error", zap.Error(err))
		}
	}()
	return done
}

func (p *program) Start(s service.Service) error {
	p.logger = agent.InitLogger(&p.cfg.Log)
	p.logger.Info("gleam service starting", zap.String("config", p.cfg.Path))

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = startAgent(ctx, p.cfg, p.logger)
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.logger.Info("gleam service stopping")
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}
	p.logger.Info("gleam service stopped")
	_ = p.logger.Sync()
	return nil
}

// ServiceManager installs and controls the background service.
type ServiceManager struct {
	cfg     *config.Config
	service service.Service
}

// NewServiceManager registers the current executable as the gleam service.
func NewServiceManager(cfg *config.Config) (*ServiceManager, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}

	svcConfig := &service.Config{
		Name:        "gleam",
		DisplayName: "Gleam Hardware Monitor",
		Description: "Samples CPU, memory and GPU telemetry, forecasts trends and raises threshold alerts",
		Arguments:   []string{"service", "run", "--config", cfg.Path},
		Executable:  execPath,
		Option: service.KeyValue{
			// systemd
			"Restart":    "on-failure",
			"RestartSec": "10",
			// windows
			"OnFailure":    "restart",
			"RestartDelay": 10000, // ms
			// launchd
			"KeepAlive": true,
			"RunAtLoad": true,
		},
	}

	s, err := service.New(&program{cfg: cfg}, svcConfig)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return &ServiceManager{cfg: cfg, service: s}, nil
}

// Install registers the service with the host service manager.
func (m *ServiceManager) Install() error { return m.service.Install() }

// Uninstall stops the service first.
func (m *ServiceManager) Uninstall() error {
	_ = m.service.Stop()
	return m.service.Uninstall()
}

// Start asks the service manager to start gleam.
func (m *ServiceManager) Start() error { return m.service.Start() }

// Stop asks the service manager to stop gleam.
func (m *ServiceManager) Stop() error { return m.service.Stop() }

// Restart stops and starts the service.
func (m *ServiceManager) Restart() error { return m.service.Restart() }

// Status returns running, stopped or unknown.
func (m *ServiceManager) Status() (string, error) {
	status, err := m.service.Status()
	if err != nil {
		return "", err
	}
	switch status {
	case service.StatusRunning:
		return "running", nil
	case service.StatusStopped:
		return "stopped", nil
	case service.StatusUnknown:
		return "unknown", nil
	default:
		return fmt.Sprintf("status %d", status), nil
	}
}

// Run runs under the service manager, or in the foreground when started from a terminal.
func (m *ServiceManager) Run() error {
	if !service.Interactive() {
		return m.service.Run()
	}
	return RunForeground(m.cfg)
}

// RunForeground runs the agent until SIGINT or SIGTERM.
func RunForeground(cfg *config.Config) error {
	logger := agent.InitLogger(&cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("path", cfg.Path),
		zap.Duration("refresh", cfg.RefreshInterval()),
		zap.Int("history", cfg.General.HistorySamples),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-startAgent(ctx, cfg, logger)
	logger.Info("gleam stopped")
	return nil
}
