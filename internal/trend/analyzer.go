package trend

import (
	"math"

	"github.com/dushixiang/gleam/internal/config"
	"github.com/dushixiang/gleam/internal/history"
	"gonum.org/v1/gonum/stat"
)

const (
	minDataPoints  = 3
	analysisWindow = 10

	stableSlope      = 0.01
	volatileR2       = 0.5
	forecastMinutes  = 5
	maxThresholdSecs = 2 * 60 * 60
	criticalSecs     = 5 * 60
	warningSecs      = 10 * 60
	warningRate      = 5.0 // %/min
)

// Analyzer fits linear trends over the recent window of each history buffer.
type Analyzer struct {
	cfg config.TrendConfig
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(cfg config.TrendConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// SetConfig replaces the configuration. Callers serialise this with analysis.
func (a *Analyzer) SetConfig(cfg config.TrendConfig) {
	a.cfg = cfg
}

func (a *Analyzer) intervalSecs() float64 {
	if a.cfg.SampleIntervalSecs == 0 {
		return 1
	}
	return float64(a.cfg.SampleIntervalSecs)
}

// AnalyzeAll computes trends for every buffer in h, each against the matching alert
// threshold. Trends below the configured confidence are dropped, as are stable and
// volatile ones unless ShowStableTrends is set.
func (a *Analyzer) AnalyzeAll(h *history.MetricsHistory, thresholds config.AlertThresholds) []MetricTrend {
	if !a.cfg.Enabled {
		return nil
	}

	var trends []MetricTrend
	add := func(b *history.CircularBuffer[float64], m Metric, threshold float64) {
		t, ok := a.Analyze(b, m, threshold)
		if !ok || t.Confidence < a.cfg.MinConfidence {
			return
		}
		if !a.cfg.ShowStableTrends && (t.Direction == Stable || t.Direction == Volatile) {
			return
		}
		trends = append(trends, t)
	}

	add(h.CPU, Metric{Kind: MetricCPU}, thresholds.CPU)
	add(h.Memory, Metric{Kind: MetricMemory}, thresholds.Memory)
	add(h.Swap, Metric{Kind: MetricSwap}, thresholds.Swap)
	for i, b := range h.GPUTemp {
		add(b, Metric{Kind: MetricGPUTemp, GPUID: i}, thresholds.GPUTemp)
	}
	for i, b := range h.GPUUtil {
		add(b, Metric{Kind: MetricGPUUtil, GPUID: i}, thresholds.GPUUtil)
	}
	for i, b := range h.GPUMem {
		add(b, Metric{Kind: MetricGPUMemory, GPUID: i}, thresholds.GPUMem)
	}
	return trends
}

// Analyze fits the last min(10, n) samples of b. It reports false when fewer than three
// samples exist.
func (a *Analyzer) Analyze(b *history.CircularBuffer[float64], m Metric, threshold float64) (MetricTrend, bool) {
	values := b.Values()
	if len(values) < minDataPoints {
		return MetricTrend{}, false
	}
	window := values[len(values)-min(analysisWindow, len(values)):]

	slope, intercept, r2 := fit(window)
	interval := a.intervalSecs()
	samplesPerMinute := 60 / interval
	rate := slope * samplesPerMinute

	var direction Direction
	switch {
	case math.Abs(slope) < stableSlope:
		direction = Stable
	case r2 < volatileR2:
		direction = Volatile
	case slope > 0:
		direction = Increasing
	default:
		direction = Decreasing
	}

	current := window[len(window)-1]
	predicted := slope*(float64(len(window))+samplesPerMinute*forecastMinutes) + intercept

	var ttt *uint64
	if direction == Increasing && current < threshold && slope > 0 {
		secs := (threshold - current) / slope * interval
		if secs > 0 && secs < maxThresholdSecs {
			v := uint64(secs)
			ttt = &v
		}
	}

	return MetricTrend{
		Metric:          m,
		Direction:       direction,
		RatePerMinute:   rate,
		Confidence:      r2,
		Predicted5Min:   predicted,
		TimeToThreshold: ttt,
		Severity:        severityOf(ttt, rate),
	}, true
}

func severityOf(ttt *uint64, rate float64) Severity {
	if ttt != nil {
		switch {
		case *ttt < criticalSecs:
			return SeverityCritical
		case *ttt < warningSecs:
			return SeverityWarning
		default:
			return SeverityInfo
		}
	}
	if math.Abs(rate) > warningRate {
		return SeverityWarning
	}
	return SeverityInfo
}

// fit runs ordinary least squares with x = 0..n-1. R² is clamped to [0, 1]; a series
// with no variance has R² = 0.
func fit(y []float64) (slope, intercept, r2 float64) {
	x := make([]float64, len(y))
	for i := range x {
		x[i] = float64(i)
	}
	intercept, slope = stat.LinearRegression(x, y, nil, false)
	r2 = stat.RSquared(x, y, nil, intercept, slope)
	if math.IsNaN(r2) || r2 < 0 {
		r2 = 0
	}
	return slope, intercept, min(r2, 1)
}
