package collector

import (
	"context"
	"time"

	"github.com/dushixiang/gleam/internal/protocol"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"go.uber.org/zap"
)

// SystemCollector samples cpu, memory, swap, disk and network counters.
// It keeps the previous network counters, so one instance belongs to one sampling loop.
type SystemCollector struct {
	logger *zap.Logger

	prevNet  *net.IOCountersStat
	prevTime time.Time
}

// NewSystemCollector creates a system collector.
func NewSystemCollector(logger *zap.Logger) *SystemCollector {
	return &SystemCollector{logger: logger}
}

// Collect takes one sample. Only the cpu and memory reads are fatal; disk and network
// failures leave those sections empty.
func (s *SystemCollector) Collect(ctx context.Context) (*protocol.SystemData, error) {
	now := time.Now()
	data := &protocol.SystemData{Timestamp: uint64(now.Unix())}

	cpuData, err := s.collectCPU(ctx)
	if err != nil {
		return nil, err
	}
	data.CPU = *cpuData

	memData, err := s.collectMemory(ctx)
	if err != nil {
		return nil, err
	}
	data.Memory = *memData

	if disks, err := s.collectDisks(ctx); err != nil {
		s.logger.Debug("disk sample failed", zap.Error(err))
	} else {
		data.Disks = disks
	}

	if network, err := s.collectNetwork(ctx, now); err != nil {
		s.logger.Debug("network sample failed", zap.Error(err))
	} else {
		data.Network = network
	}
	return data, nil
}

func (s *SystemCollector) collectCPU(ctx context.Context) (*protocol.CPUData, error) {
	total, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return nil, err
	}
	data := &protocol.CPUData{PerCore: perCore, LogicalCores: len(perCore)}
	if len(total) > 0 {
		data.UsagePercent = total[0]
	}
	return data, nil
}

func (s *SystemCollector) collectMemory(ctx context.Context) (*protocol.MemoryData, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	data := &protocol.MemoryData{
		Total:        vm.Total,
		Used:         vm.Used,
		UsagePercent: vm.UsedPercent,
	}
	// swap may be missing entirely, e.g. in containers
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		data.SwapTotal = sw.Total
		data.SwapUsed = sw.Used
		data.SwapPercent = sw.UsedPercent
	}
	return data, nil
}

func (s *SystemCollector) collectDisks(ctx context.Context) ([]protocol.DiskData, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(partitions))
	disks := make([]protocol.DiskData, 0, len(partitions))
	for _, p := range partitions {
		if _, dup := seen[p.Mountpoint]; dup {
			continue
		}
		seen[p.Mountpoint] = struct{}{}

		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		disks = append(disks, protocol.DiskData{
			MountPoint:   p.Mountpoint,
			Fstype:       p.Fstype,
			Total:        usage.Total,
			Used:         usage.Used,
			UsagePercent: usage.UsedPercent,
		})
	}
	return disks, nil
}

func (s *SystemCollector) collectNetwork(ctx context.Context, now time.Time) (*protocol.NetworkData, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	if len(counters) == 0 {
		return nil, nil
	}
	cur := counters[0]
	data := &protocol.NetworkData{
		BytesSentTotal: cur.BytesSent,
		BytesRecvTotal: cur.BytesRecv,
	}
	if s.prevNet != nil {
		elapsed := now.Sub(s.prevTime)
		data.BytesSentRate = rate(s.prevNet.BytesSent, cur.BytesSent, elapsed)
		data.BytesRecvRate = rate(s.prevNet.BytesRecv, cur.BytesRecv, elapsed)
	}
	s.prevNet = &cur
	s.prevTime = now
	return data, nil
}

// rate returns bytes per second. A counter that went backwards (interface reset) yields 0.
func rate(prev, cur uint64, elapsed time.Duration) uint64 {
	if cur < prev || elapsed <= 0 {
		return 0
	}
	return uint64(float64(cur-prev) / elapsed.Seconds())
}
