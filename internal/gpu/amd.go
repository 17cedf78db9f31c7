package gpu

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/dushixiang/gleam/internal/protocol"
	"github.com/spf13/afero"
)

const amdVendorID = "0x1002"

var errNoAMD = errors.New("no AMD GPUs detected")

// AMDBackend reads an amdgpu device through sysfs.
type AMDBackend struct {
	fs     afero.Fs
	device string // .../cardN/device
	hwmon  string // .../cardN/device/hwmon/hwmonM
	name   string
}

// DiscoverAMD finds every amdgpu card that exposes an hwmon interface.
func DiscoverAMD(ctx context.Context, opts DiscoverOptions) ([]Backend, error) {
	cards, err := scanCards(opts.Fs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", drmRoot, err)
	}

	var backends []Backend
	for _, card := range cards {
		if card.vendorID != amdVendorID {
			continue
		}
		hwmon, ok := findHwmon(opts.Fs, card.device, "amdgpu")
		if !ok {
			continue
		}
		backends = append(backends, &AMDBackend{
			fs:     opts.Fs,
			device: card.device,
			hwmon:  hwmon,
			name:   amdName(ctx, opts, card),
		})
	}
	if len(backends) == 0 {
		return nil, errNoAMD
	}
	return backends, nil
}

func amdName(ctx context.Context, opts DiscoverOptions, card drmCard) string {
	if name, ok := readString(opts.Fs, path.Join(card.device, "product_name")); ok {
		return name
	}
	if name, ok := lspciName(ctx, opts.Runner, card.pciSlot); ok {
		return name
	}
	return "Unknown AMD GPU"
}

// Name returns the marketing name resolved at discovery.
func (a *AMDBackend) Name() string { return a.name }

// Vendor returns the vendor constant.
func (a *AMDBackend) Vendor() string { return VendorAMD }

// Temperature returns the core temperature in °C.
func (a *AMDBackend) Temperature() *float64 {
	milli, ok := readInt(a.fs, path.Join(a.hwmon, "temp1_input"))
	if !ok {
		return nil
	}
	return ptr(float64(milli) / 1000)
}

// Utilization returns the busy percentage.
func (a *AMDBackend) Utilization() *float64 {
	v, ok := readFloat(a.fs, path.Join(a.device, "gpu_busy_percent"))
	if !ok {
		return nil
	}
	return &v
}

// MemoryUsed returns used VRAM in bytes.
func (a *AMDBackend) MemoryUsed() *uint64 {
	v, ok := readUint(a.fs, path.Join(a.device, "mem_info_vram_used"))
	if !ok {
		return nil
	}
	return &v
}

// MemoryTotal returns VRAM size in bytes.
func (a *AMDBackend) MemoryTotal() *uint64 {
	v, ok := readUint(a.fs, path.Join(a.device, "mem_info_vram_total"))
	if !ok {
		return nil
	}
	return &v
}

// PowerDraw converts power1_average from µW.
func (a *AMDBackend) PowerDraw() *float64 {
	micro, ok := readUint(a.fs, path.Join(a.hwmon, "power1_average"))
	if !ok {
		return nil
	}
	return ptr(float64(micro) / 1_000_000)
}

// PowerLimit returns the board power cap in watts.
func (a *AMDBackend) PowerLimit() *float64 {
	micro, ok := readUint(a.fs, path.Join(a.hwmon, "power1_cap"))
	if !ok {
		return nil
	}
	return ptr(float64(micro) / 1_000_000)
}

// ClockSpeed converts freq1_input (sclk) from Hz.
func (a *AMDBackend) ClockSpeed() *uint32 {
	hz, ok := readUint(a.fs, path.Join(a.hwmon, "freq1_input"))
	if !ok {
		return nil
	}
	return ptr(uint32(hz / 1_000_000))
}

// MemoryClock returns the active level of pp_dpm_mclk, the line marked with '*'.
func (a *AMDBackend) MemoryClock() *uint32 {
	content, ok := readString(a.fs, path.Join(a.device, "pp_dpm_mclk"))
	if !ok {
		return nil
	}
	mhz, ok := parseDPMLevel(content)
	if !ok {
		return nil
	}
	return &mhz
}

// parseDPMLevel parses lines such as "1: 875Mhz *".
func parseDPMLevel(content string) (uint32, bool) {
	for _, line := range strings.Split(content, "\n") {
		if !strings.Contains(line, "*") {
			continue
		}
		_, level, ok := strings.Cut(line, ":")
		if !ok {
			return 0, false
		}
		level = strings.TrimSpace(level)
		idx := strings.Index(strings.ToLower(level), "mhz")
		if idx < 0 {
			return 0, false
		}
		v, err := strconv.ParseUint(strings.TrimSpace(level[:idx]), 10, 32)
		if err != nil {
			return 0, false
		}
		return uint32(v), true
	}
	return 0, false
}

// FanSpeed reports fan1_input as a percentage of fan1_max.
func (a *AMDBackend) FanSpeed() *uint32 {
	rpm, ok := readUint(a.fs, path.Join(a.hwmon, "fan1_input"))
	if !ok {
		return nil
	}
	maxRPM, ok := readUint(a.fs, path.Join(a.hwmon, "fan1_max"))
	if !ok || maxRPM == 0 {
		return nil
	}
	pct := min(rpm*100/maxRPM, 100)
	return ptr(uint32(pct))
}

// Processes is unsupported through sysfs.
func (a *AMDBackend) Processes() []protocol.GPUProcess {
	return nil
}
