package collector

import (
	"context"
	"sync"

	"github.com/dushixiang/gleam/internal/protocol"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// ProcessCollector lists every process. Handles are kept between calls because
// gopsutil computes cpu percent as a delta against the previous call on the same handle.
type ProcessCollector struct {
	logger *zap.Logger

	mu      sync.Mutex
	handles map[int32]*process.Process
}

// NewProcessCollector creates a process collector.
func NewProcessCollector(logger *zap.Logger) *ProcessCollector {
	return &ProcessCollector{
		logger:  logger,
		handles: make(map[int32]*process.Process),
	}
}

// Collect returns the flat process table. Processes that exit mid-read are skipped.
func (c *ProcessCollector) Collect(ctx context.Context) ([]protocol.ProcessData, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	live := make(map[int32]*process.Process, len(procs))
	result := make([]protocol.ProcessData, 0, len(procs))
	for _, p := range procs {
		if h, ok := c.handles[p.Pid]; ok {
			p = h
		}
		live[p.Pid] = p

		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		data := protocol.ProcessData{PID: uint32(p.Pid), Name: name}
		if cmdline, err := p.CmdlineWithContext(ctx); err == nil {
			data.Cmd = cmdline
		}
		if pct, err := p.PercentWithContext(ctx, 0); err == nil {
			data.CPUUsage = pct
		}
		if info, err := p.MemoryInfoWithContext(ctx); err == nil && info != nil {
			data.MemoryKB = info.RSS / 1024
		}
		if user, err := p.UsernameWithContext(ctx); err == nil {
			data.User = user
		}
		result = append(result, data)
	}
	c.handles = live

	c.logger.Debug("processes collected", zap.Int("count", len(result)))
	return result, nil
}
