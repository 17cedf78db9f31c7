package alert

import "fmt"

// Level of an alert, ordered Info < Warning < Critical.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "info"
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Kind is the metric an alert is raised for.
type Kind int

const (
	KindCPU Kind = iota
	KindMemory
	KindSwap
	KindGPUTemperature
	KindGPUUtilization
	KindGPUMemory
)

// Type identifies an alert source. GPUID is only meaningful for GPU kinds.
type Type struct {
	Kind  Kind
	GPUID int
}

// Key is the stable identifier used for notification cooldowns.
func (t Type) Key() string {
	switch t.Kind {
	case KindCPU:
		return "cpu"
	case KindMemory:
		return "memory"
	case KindSwap:
		return "swap"
	case KindGPUTemperature:
		return fmt.Sprintf("gpu_%d_temp", t.GPUID)
	case KindGPUUtilization:
		return fmt.Sprintf("gpu_%d_util", t.GPUID)
	case KindGPUMemory:
		return fmt.Sprintf("gpu_%d_mem", t.GPUID)
	default:
		return "unknown"
	}
}

func (t Type) String() string {
	return t.Key()
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.Key()), nil
}

// Alert is one threshold breach observed on the current tick.
type Alert struct {
	Type      Type    `json:"type"`
	Level     Level   `json:"level"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
	Timestamp uint64  `json:"timestamp"` // unix seconds
}
