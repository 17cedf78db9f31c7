package history

import "github.com/dushixiang/gleam/internal/protocol"

// DefaultCapacity is the number of samples kept per metric when none is configured.
const DefaultCapacity = 60

// MetricsHistory holds the rolling window of every tracked metric.
type MetricsHistory struct {
	capacity int

	CPU    *CircularBuffer[float64]
	Memory *CircularBuffer[float64]
	Swap   *CircularBuffer[float64]

	// Per-GPU buffers, indexed by GPU id. The three slices always have equal length.
	GPUTemp []*CircularBuffer[float64]
	GPUUtil []*CircularBuffer[float64]
	GPUMem  []*CircularBuffer[float64]
}

// NewMetricsHistory creates a history with buffers for gpuCount GPUs.
func NewMetricsHistory(capacity, gpuCount int) *MetricsHistory {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	h := &MetricsHistory{
		capacity: capacity,
		CPU:      NewCircularBuffer[float64](capacity),
		Memory:   NewCircularBuffer[float64](capacity),
		Swap:     NewCircularBuffer[float64](capacity),
	}
	h.ResizeGPU(gpuCount)
	return h
}

// Capacity is the per-buffer sample limit.
func (h *MetricsHistory) Capacity() int {
	return h.capacity
}

// GPUCount returns the number of GPUs that have buffers.
func (h *MetricsHistory) GPUCount() int {
	return len(h.GPUTemp)
}

// Update records one refresh tick. GPU readings are only recorded when present, and only
// for GPUs that already have buffers.
func (h *MetricsHistory) Update(ts uint64, cpu, mem, swap float64, gpus []protocol.GPUData) {
	h.CPU.Push(cpu, ts)
	h.Memory.Push(mem, ts)
	h.Swap.Push(swap, ts)

	for i := range gpus {
		if i >= len(h.GPUTemp) {
			break
		}
		if gpus[i].Temperature != nil {
			h.GPUTemp[i].Push(*gpus[i].Temperature, ts)
		}
		if gpus[i].Utilization != nil {
			h.GPUUtil[i].Push(*gpus[i].Utilization, ts)
		}
		if pct := gpus[i].MemoryUsagePercent(); pct != nil {
			h.GPUMem[i].Push(*pct, ts)
		}
	}
}

// ResizeGPU grows the per-GPU buffers to n. It never shrinks and never touches the
// buffers that already exist.
func (h *MetricsHistory) ResizeGPU(n int) {
	for len(h.GPUTemp) < n {
		h.GPUTemp = append(h.GPUTemp, NewCircularBuffer[float64](h.capacity))
		h.GPUUtil = append(h.GPUUtil, NewCircularBuffer[float64](h.capacity))
		h.GPUMem = append(h.GPUMem, NewCircularBuffer[float64](h.capacity))
	}
}

// ResetGPU drops every per-GPU buffer and allocates fresh ones for n GPUs. A changed
// device set can reorder ids, so old samples cannot be attributed to the new GPUs.
func (h *MetricsHistory) ResetGPU(n int) {
	h.GPUTemp, h.GPUUtil, h.GPUMem = nil, nil, nil
	h.ResizeGPU(n)
}
