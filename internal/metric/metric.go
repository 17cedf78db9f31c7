package metric

// DataPoint is one exported sample.
type DataPoint struct {
	Timestamp uint64  `json:"timestamp"` // unix seconds
	Value     float64 `json:"value"`
}

// GPUSeries groups the exported series of one GPU.
type GPUSeries struct {
	GPUID       int         `json:"gpu_id"`
	Temperature []DataPoint `json:"temperature"`
	Utilization []DataPoint `json:"utilization"`
	Memory      []DataPoint `json:"memory"`
}

// HistoryDump is the JSON layout of an exported history window.
type HistoryDump struct {
	Session string      `json:"session"`
	CPU     []DataPoint `json:"cpu"`
	Memory  []DataPoint `json:"memory"`
	Swap    []DataPoint `json:"swap"`
	GPUs    []GPUSeries `json:"gpus"`
}
