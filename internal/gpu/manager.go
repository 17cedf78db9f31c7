package gpu

import (
	"context"

	"github.com/dushixiang/gleam/internal/protocol"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"
)

// Manager composes all discovered backends into one snapshot call.
type Manager struct {
	backends []Backend
	logger   *zap.Logger
}

// NewManager wraps an explicit backend list.
func NewManager(logger *zap.Logger, backends []Backend) *Manager {
	return &Manager{
		backends: backends,
		logger:   logger,
	}
}

// Discover enumerates every vendor and returns a manager over what was found. An empty
// manager is a valid result.
func Discover(ctx context.Context, opts DiscoverOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	backends := DiscoverAll(ctx, opts)
	if len(backends) == 0 {
		opts.Logger.Info("no GPUs detected, GPU monitoring disabled")
	}
	return NewManager(opts.Logger, backends)
}

// Count returns the number of managed GPUs.
func (m *Manager) Count() int {
	return len(m.backends)
}

// Snapshot reads every GPU. Backends are read concurrently; the result keeps backend order
// and is never cached.
func (m *Manager) Snapshot() []protocol.GPUData {
	indexed := make([]int, len(m.backends))
	for i := range indexed {
		indexed[i] = i
	}
	return iter.Map(indexed, func(i *int) protocol.GPUData {
		return readSnapshot(*i, m.backends[*i])
	})
}

func readSnapshot(id int, b Backend) protocol.GPUData {
	data := protocol.GPUData{
		ID:          id,
		Name:        b.Name(),
		Vendor:      b.Vendor(),
		Temperature: b.Temperature(),
		Utilization: b.Utilization(),
		MemoryUsed:  b.MemoryUsed(),
		MemoryTotal: b.MemoryTotal(),
		PowerDraw:   b.PowerDraw(),
		PowerLimit:  b.PowerLimit(),
		ClockSpeed:  b.ClockSpeed(),
		MemoryClock: b.MemoryClock(),
		FanSpeed:    b.FanSpeed(),
		Processes:   b.Processes(),
	}
	if data.Utilization != nil && data.PowerDraw != nil && *data.PowerDraw > 0 {
		eff := *data.Utilization / *data.PowerDraw
		data.PowerEfficiency = &eff
	}
	return data
}
