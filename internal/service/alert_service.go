package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"
	"go.uber.org/zap"

	"github.com/dushixiang/gleam/internal/alert"
	"github.com/dushixiang/gleam/internal/config"
	"github.com/dushixiang/gleam/internal/protocol"
)

const notifyTimeout = 30 * time.Second

// AlertService runs the detector each tick and hands fresh alerts to the notifier.
// Check must only be called from the refresh loop; the counters may be read anywhere.
type AlertService struct {
	logger   *zap.Logger
	detector *alert.Detector
	notifier Notifier

	notifications atomic.Bool
	critical      atomic.Int32
	warning       atomic.Int32
	wg            sync.WaitGroup
}

// NewAlertService builds the detector from cfg and delivers notifications through notifier.
func NewAlertService(logger *zap.Logger, cfg config.AlertConfig, notifier Notifier) *AlertService {
	return newAlertService(logger, alert.NewDetector(cfg), cfg, notifier)
}

func newAlertService(logger *zap.Logger, detector *alert.Detector, cfg config.AlertConfig, notifier Notifier) *AlertService {
	s := &AlertService{
		logger:   logger,
		detector: detector,
		notifier: notifier,
	}
	s.notifications.Store(cfg.Notifications)
	return s
}

// SetConfig applies new thresholds, cooldown and the notification switch.
func (s *AlertService) SetConfig(cfg config.AlertConfig) {
	s.detector.SetConfig(cfg)
	s.notifications.Store(cfg.Notifications)
}

// Check replaces the active alert set and dispatches the ones past their cooldown.
func (s *AlertService) Check(sys *protocol.SystemData, gpus []protocol.GPUData) []alert.Alert {
	alerts := s.detector.CheckAlerts(
		sys.CPU.UsagePercent,
		sys.Memory.UsagePercent,
		sys.Memory.SwapPercent,
		sys.Memory.SwapTotal,
		gpus,
	)
	s.critical.Store(int32(s.detector.CriticalCount()))
	s.warning.Store(int32(s.detector.WarningCount()))

	for _, a := range alerts {
		// the cooldown is consumed even when delivery is switched off
		if !s.detector.ShouldNotify(a.Type) || !s.notifications.Load() {
			continue
		}
		s.wg.Add(1)
		go s.dispatch(a)
	}
	return alerts
}

func (s *AlertService) dispatch(a alert.Alert) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while sending alert notification",
				zap.String("type", a.Type.Key()),
				zap.String("stack", errors.Wrap(r, 2).ErrorStack()),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := s.notifier.Notify(ctx, a); err != nil {
		s.logger.Error("failed to send alert notification", zap.String("type", a.Type.Key()), zap.Error(err))
	}
}

// Wait blocks until in-flight notifications finish.
func (s *AlertService) Wait() {
	s.wg.Wait()
}

// CriticalCount is the critical count of the last Check.
func (s *AlertService) CriticalCount() int { return int(s.critical.Load()) }

// WarningCount is the warning count of the last Check.
func (s *AlertService) WarningCount() int { return int(s.warning.Load()) }
