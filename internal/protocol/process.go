package protocol

// ProcessData is one row of the flat process table.
type ProcessData struct {
	PID      uint32  `json:"pid"`
	Name     string  `json:"name"`
	Cmd      string  `json:"cmd"`
	CPUUsage float64 `json:"cpuUsage"` // %
	MemoryKB uint64  `json:"memoryKb"`
	User     string  `json:"user"`
}
