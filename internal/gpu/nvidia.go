package gpu

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/dushixiang/gleam/internal/protocol"
	"github.com/go-orz/cache"
	"github.com/spf13/afero"
)

var errNVMLDisabled = errors.New("NVML disabled by configuration")

// nvmlDevice is the subset of nvml.Device the backend reads.
type nvmlDevice interface {
	GetName() (string, nvml.Return)
	GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return)
	GetUtilizationRates() (nvml.Utilization, nvml.Return)
	GetMemoryInfo() (nvml.Memory, nvml.Return)
	GetPowerUsage() (uint32, nvml.Return)
	GetPowerManagementLimit() (uint32, nvml.Return)
	GetClockInfo(nvml.ClockType) (uint32, nvml.Return)
	GetFanSpeed() (uint32, nvml.Return)
	GetComputeRunningProcesses() ([]nvml.ProcessInfo, nvml.Return)
	GetGraphicsRunningProcesses() ([]nvml.ProcessInfo, nvml.Return)
}

var (
	nvmlMu    sync.Mutex
	nvmlReady bool

	nvmlInit     = nvml.Init
	nvmlShutdown = nvml.Shutdown
)

// initNVML loads the driver library. It stays loaded until ShutdownNVML; a failed load is
// retried by the next discovery.
func initNVML() error {
	nvmlMu.Lock()
	defer nvmlMu.Unlock()
	if nvmlReady {
		return nil
	}
	if ret := nvmlInit(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml init: %s", nvml.ErrorString(ret))
	}
	nvmlReady = true
	return nil
}

// ShutdownNVML releases the driver library if discovery loaded it.
func ShutdownNVML() error {
	nvmlMu.Lock()
	defer nvmlMu.Unlock()
	if !nvmlReady {
		return nil
	}
	nvmlReady = false
	if ret := nvmlShutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml shutdown: %s", nvml.ErrorString(ret))
	}
	return nil
}

// NVIDIABackend reads one device through NVML.
type NVIDIABackend struct {
	device nvmlDevice
	name   string
	fs     afero.Fs
	names  cache.Cache[uint32, string]
}

// newNVIDIABackend wraps an NVML device handle.
func newNVIDIABackend(device nvmlDevice, fs afero.Fs) *NVIDIABackend {
	name, ret := device.GetName()
	if ret != nvml.SUCCESS || name == "" {
		name = "Unknown NVIDIA GPU"
	}
	return &NVIDIABackend{
		device: device,
		name:   name,
		fs:     fs,
		names:  cache.New[uint32, string](time.Minute),
	}
}

// DiscoverNVIDIA enumerates devices through NVML. A host without the driver library
// reports an error and no backends.
func DiscoverNVIDIA(_ context.Context, opts DiscoverOptions) ([]Backend, error) {
	if opts.DisableNVML {
		return nil, errNVMLDisabled
	}
	if err := initNVML(); err != nil {
		return nil, err
	}

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml device count: %s", nvml.ErrorString(ret))
	}

	backends := make([]Backend, 0, count)
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			continue
		}
		backends = append(backends, newNVIDIABackend(device, opts.Fs))
	}
	return backends, nil
}

// Name returns the marketing name resolved at discovery.
func (n *NVIDIABackend) Name() string { return n.name }

// Vendor returns the vendor constant.
func (n *NVIDIABackend) Vendor() string { return VendorNVIDIA }

// Temperature returns the core temperature in °C.
func (n *NVIDIABackend) Temperature() *float64 {
	t, ret := n.device.GetTemperature(nvml.TEMPERATURE_GPU)
	if ret != nvml.SUCCESS {
		return nil
	}
	return ptr(float64(t))
}

// Utilization returns the busy percentage.
func (n *NVIDIABackend) Utilization() *float64 {
	u, ret := n.device.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		return nil
	}
	return ptr(float64(u.Gpu))
}

// MemoryUsed returns used VRAM in bytes.
func (n *NVIDIABackend) MemoryUsed() *uint64 {
	m, ret := n.device.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return nil
	}
	return &m.Used
}

// MemoryTotal returns VRAM size in bytes.
func (n *NVIDIABackend) MemoryTotal() *uint64 {
	m, ret := n.device.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return nil
	}
	return &m.Total
}

// PowerDraw converts milliwatts to watts.
func (n *NVIDIABackend) PowerDraw() *float64 {
	mw, ret := n.device.GetPowerUsage()
	if ret != nvml.SUCCESS {
		return nil
	}
	return ptr(float64(mw) / 1000)
}

// PowerLimit returns the board power cap in watts.
func (n *NVIDIABackend) PowerLimit() *float64 {
	mw, ret := n.device.GetPowerManagementLimit()
	if ret != nvml.SUCCESS {
		return nil
	}
	return ptr(float64(mw) / 1000)
}

// ClockSpeed returns the graphics clock in MHz.
func (n *NVIDIABackend) ClockSpeed() *uint32 {
	mhz, ret := n.device.GetClockInfo(nvml.CLOCK_GRAPHICS)
	if ret != nvml.SUCCESS {
		return nil
	}
	return &mhz
}

// MemoryClock returns the memory clock in MHz.
func (n *NVIDIABackend) MemoryClock() *uint32 {
	mhz, ret := n.device.GetClockInfo(nvml.CLOCK_MEM)
	if ret != nvml.SUCCESS {
		return nil
	}
	return &mhz
}

// FanSpeed returns the fan duty in percent.
func (n *NVIDIABackend) FanSpeed() *uint32 {
	pct, ret := n.device.GetFanSpeed()
	if ret != nvml.SUCCESS {
		return nil
	}
	return &pct
}

// Processes lists compute and graphics clients. A pid using both contexts is reported once.
func (n *NVIDIABackend) Processes() []protocol.GPUProcess {
	var infos []nvml.ProcessInfo
	if compute, ret := n.device.GetComputeRunningProcesses(); ret == nvml.SUCCESS {
		infos = append(infos, compute...)
	}
	if graphics, ret := n.device.GetGraphicsRunningProcesses(); ret == nvml.SUCCESS {
		infos = append(infos, graphics...)
	}

	seen := make(map[uint32]struct{}, len(infos))
	processes := make([]protocol.GPUProcess, 0, len(infos))
	for _, info := range infos {
		if _, dup := seen[info.Pid]; dup {
			continue
		}
		seen[info.Pid] = struct{}{}
		processes = append(processes, protocol.GPUProcess{
			PID:        info.Pid,
			Name:       n.processName(info.Pid),
			MemoryUsed: info.UsedGpuMemory,
		})
	}
	return processes
}

// processName reads /proc/<pid>/comm, cached for a minute.
func (n *NVIDIABackend) processName(pid uint32) string {
	if name, ok := n.names.Get(pid); ok {
		return name
	}
	name, ok := readString(n.fs, path.Join("/proc", strconv.FormatUint(uint64(pid), 10), "comm"))
	if !ok {
		return fmt.Sprintf("PID %d", pid)
	}
	n.names.Set(pid, name, time.Minute)
	return name
}
