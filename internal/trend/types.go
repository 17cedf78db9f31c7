package trend

import "fmt"

// Direction of a fitted trend.
type Direction int

const (
	Stable Direction = iota
	Increasing
	Decreasing
	Volatile
)

func (d Direction) String() string {
	switch d {
	case Increasing:
		return "increasing"
	case Decreasing:
		return "decreasing"
	case Volatile:
		return "volatile"
	default:
		return "stable"
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Severity of a trend, ordered Info < Warning < Critical.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MetricKind identifies which buffer a trend was computed from.
type MetricKind int

const (
	MetricCPU MetricKind = iota
	MetricMemory
	MetricSwap
	MetricGPUTemp
	MetricGPUUtil
	MetricGPUMemory
)

// Metric is a trend subject; GPUID is only meaningful for GPU kinds.
type Metric struct {
	Kind  MetricKind
	GPUID int
}

func (m Metric) String() string {
	switch m.Kind {
	case MetricCPU:
		return "CPU"
	case MetricMemory:
		return "Memory"
	case MetricSwap:
		return "SWAP"
	case MetricGPUTemp:
		return fmt.Sprintf("GPU %d Temp", m.GPUID)
	case MetricGPUUtil:
		return fmt.Sprintf("GPU %d Usage", m.GPUID)
	case MetricGPUMemory:
		return fmt.Sprintf("GPU %d Memory", m.GPUID)
	default:
		return "unknown"
	}
}

func (m Metric) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// MetricTrend is the forecast for one metric.
type MetricTrend struct {
	Metric          Metric    `json:"metric"`
	Direction       Direction `json:"direction"`
	RatePerMinute   float64   `json:"ratePerMinute"`
	Confidence      float64   `json:"confidence"` // R² of the fit, in [0, 1]
	Predicted5Min   float64   `json:"predicted5Min"`
	TimeToThreshold *uint64   `json:"timeToThreshold,omitempty"` // seconds; nil unless approaching the threshold within two hours
	Severity        Severity  `json:"severity"`
}
