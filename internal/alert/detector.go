package alert

import (
	"fmt"
	"time"

	"github.com/dushixiang/gleam/internal/config"
	"github.com/dushixiang/gleam/internal/protocol"
)

// criticalPercent is the fixed Critical tier for CPU and memory.
const criticalPercent = 95.0

// criticalGPUTemp is the fixed Critical tier for GPU temperature in °C.
const criticalGPUTemp = 85.0

// Detector evaluates thresholds each tick and throttles notifications per alert key.
// It is not safe for concurrent use; the refresh loop owns it.
type Detector struct {
	cfg      config.AlertConfig
	cooldown time.Duration
	now      func() time.Time

	active       []Alert
	lastNotified map[string]time.Time
}

// NewDetector creates a detector using the wall clock.
func NewDetector(cfg config.AlertConfig) *Detector {
	return NewDetectorWithClock(cfg, time.Now)
}

// NewDetectorWithClock creates a detector reading time from now.
func NewDetectorWithClock(cfg config.AlertConfig, now func() time.Time) *Detector {
	return &Detector{
		cfg:          cfg,
		cooldown:     time.Duration(cfg.CooldownSecs) * time.Second,
		now:          now,
		lastNotified: make(map[string]time.Time),
	}
}

// SetConfig replaces thresholds and cooldown. Recorded notification times are kept.
func (d *Detector) SetConfig(cfg config.AlertConfig) {
	d.cfg = cfg
	d.cooldown = time.Duration(cfg.CooldownSecs) * time.Second
}

// CheckAlerts evaluates every threshold against this tick's readings. The returned list
// replaces the active set. Disabled alerting yields an empty list.
func (d *Detector) CheckAlerts(cpu, mem, swap float64, swapTotal uint64, gpus []protocol.GPUData) []Alert {
	if !d.cfg.Enabled {
		d.active = nil
		return nil
	}

	th := d.cfg.Thresholds
	ts := uint64(d.now().Unix())
	var alerts []Alert

	if cpu > th.CPU {
		level := LevelWarning
		if cpu > criticalPercent {
			level = LevelCritical
		}
		alerts = append(alerts, Alert{
			Type: Type{Kind: KindCPU}, Level: level, Value: cpu, Threshold: th.CPU, Timestamp: ts,
			Message: fmt.Sprintf("CPU usage at %.1f%% (threshold: %.1f%%)", cpu, th.CPU),
		})
	}

	if mem > th.Memory {
		level := LevelWarning
		if mem > criticalPercent {
			level = LevelCritical
		}
		alerts = append(alerts, Alert{
			Type: Type{Kind: KindMemory}, Level: level, Value: mem, Threshold: th.Memory, Timestamp: ts,
			Message: fmt.Sprintf("Memory usage at %.1f%% (threshold: %.1f%%)", mem, th.Memory),
		})
	}

	if swap > th.Swap && swapTotal > 0 {
		alerts = append(alerts, Alert{
			Type: Type{Kind: KindSwap}, Level: LevelWarning, Value: swap, Threshold: th.Swap, Timestamp: ts,
			Message: fmt.Sprintf("SWAP usage at %.1f%% (threshold: %.1f%%)", swap, th.Swap),
		})
	}

	for i := range gpus {
		g := &gpus[i]
		if g.Temperature != nil && *g.Temperature > th.GPUTemp {
			temp := *g.Temperature
			level := LevelWarning
			if temp > criticalGPUTemp {
				level = LevelCritical
			}
			alerts = append(alerts, Alert{
				Type: Type{Kind: KindGPUTemperature, GPUID: i}, Level: level, Value: temp, Threshold: th.GPUTemp, Timestamp: ts,
				Message: fmt.Sprintf("GPU %d temperature at %.1f°C (threshold: %.1f°C)", i, temp, th.GPUTemp),
			})
		}

		if g.Utilization != nil && *g.Utilization > th.GPUUtil {
			util := *g.Utilization
			alerts = append(alerts, Alert{
				Type: Type{Kind: KindGPUUtilization, GPUID: i}, Level: LevelInfo, Value: util, Threshold: th.GPUUtil, Timestamp: ts,
				Message: fmt.Sprintf("GPU %d utilization at %.1f%% (threshold: %.1f%%)", i, util, th.GPUUtil),
			})
		}

		if pct := g.MemoryUsagePercent(); pct != nil && *pct > th.GPUMem {
			alerts = append(alerts, Alert{
				Type: Type{Kind: KindGPUMemory, GPUID: i}, Level: LevelWarning, Value: *pct, Threshold: th.GPUMem, Timestamp: ts,
				Message: fmt.Sprintf("GPU %d memory at %.1f%% (threshold: %.1f%%)", i, *pct, th.GPUMem),
			})
		}
	}

	d.active = alerts
	return alerts
}

// ShouldNotify reports whether a notification for t may be sent now. A true result
// records the current time for t's key; a false result leaves state untouched.
func (d *Detector) ShouldNotify(t Type) bool {
	key := t.Key()
	now := d.now()
	if last, ok := d.lastNotified[key]; ok && now.Sub(last) < d.cooldown {
		return false
	}
	d.lastNotified[key] = now
	return true
}

// ActiveAlerts returns the alerts of the last check.
func (d *Detector) ActiveAlerts() []Alert {
	return d.active
}

// HasAlerts reports whether the last check raised anything.
func (d *Detector) HasAlerts() bool {
	return len(d.active) > 0
}

// CriticalCount counts critical alerts in the active set.
func (d *Detector) CriticalCount() int {
	return d.countLevel(LevelCritical)
}

// WarningCount counts warning alerts in the active set.
func (d *Detector) WarningCount() int {
	return d.countLevel(LevelWarning)
}

func (d *Detector) countLevel(level Level) int {
	n := 0
	for _, a := range d.active {
		if a.Level == level {
			n++
		}
	}
	return n
}
