package protocol

// GPUProcess is a process holding memory on a GPU.
type GPUProcess struct {
	PID        uint32 `json:"pid"`
	Name       string `json:"name"`
	MemoryUsed uint64 `json:"memoryUsed"` // bytes
}

// GPUData is the point-in-time state of one GPU. Nil fields are unsupported or unreadable
// on that device and must not be read as zero.
type GPUData struct {
	ID              int          `json:"id"`
	Name            string       `json:"name"`
	Vendor          string       `json:"vendor"`
	Temperature     *float64     `json:"temperature,omitempty"`     // °C
	Utilization     *float64     `json:"utilization,omitempty"`     // %
	MemoryUsed      *uint64      `json:"memoryUsed,omitempty"`      // bytes
	MemoryTotal     *uint64      `json:"memoryTotal,omitempty"`     // bytes
	PowerDraw       *float64     `json:"powerDraw,omitempty"`       // W
	PowerLimit      *float64     `json:"powerLimit,omitempty"`      // W
	ClockSpeed      *uint32      `json:"clockSpeed,omitempty"`      // MHz
	MemoryClock     *uint32      `json:"memoryClock,omitempty"`     // MHz
	FanSpeed        *uint32      `json:"fanSpeed,omitempty"`        // %
	PowerEfficiency *float64     `json:"powerEfficiency,omitempty"` // % per W
	Processes       []GPUProcess `json:"processes,omitempty"`
}

// MemoryUsagePercent returns used/total as a percentage, or nil when either side is
// unknown or the total is zero.
func (g *GPUData) MemoryUsagePercent() *float64 {
	if g.MemoryUsed == nil || g.MemoryTotal == nil || *g.MemoryTotal == 0 {
		return nil
	}
	pct := float64(*g.MemoryUsed) / float64(*g.MemoryTotal) * 100
	return &pct
}
