package protocol

// CPUData CPU usage of one refresh tick.
type CPUData struct {
	UsagePercent float64   `json:"usagePercent"`
	PerCore      []float64 `json:"perCore,omitempty"`
	LogicalCores int       `json:"logicalCores"`
}

// MemoryData memory and swap counters in bytes.
type MemoryData struct {
	Total        uint64  `json:"total"`
	Used         uint64  `json:"used"`
	UsagePercent float64 `json:"usagePercent"`
	SwapTotal    uint64  `json:"swapTotal"`
	SwapUsed     uint64  `json:"swapUsed"`
	SwapPercent  float64 `json:"swapPercent"`
}

// DiskData usage of one mounted partition.
type DiskData struct {
	MountPoint   string  `json:"mountPoint"`
	Fstype       string  `json:"fstype"`
	Total        uint64  `json:"total"`
	Used         uint64  `json:"used"`
	UsagePercent float64 `json:"usagePercent"`
}

// NetworkData aggregated interface counters.
type NetworkData struct {
	BytesSentTotal uint64 `json:"bytesSentTotal"`
	BytesRecvTotal uint64 `json:"bytesRecvTotal"`
	BytesSentRate  uint64 `json:"bytesSentRate"` // bytes/s
	BytesRecvRate  uint64 `json:"bytesRecvRate"` // bytes/s
}

// SystemData one sample from the metric source.
type SystemData struct {
	Timestamp uint64       `json:"timestamp"` // unix seconds
	CPU       CPUData      `json:"cpu"`
	Memory    MemoryData   `json:"memory"`
	Disks     []DiskData   `json:"disks,omitempty"`
	Network   *NetworkData `json:"network,omitempty"`
}
