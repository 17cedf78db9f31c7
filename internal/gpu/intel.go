package gpu

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/dushixiang/gleam/internal/protocol"
	"github.com/spf13/afero"
)

const intelVendorID = "0x8086"

var errNoIntel = errors.New("no Intel GPUs detected")

// IntelBackend reads an i915 or xe device through sysfs. Only frequency, temperature and
// power are exposed by those drivers in a stable place; everything else is unsupported.
type IntelBackend struct {
	fs    afero.Fs
	card  string
	hwmon string // empty when the driver has no hwmon
	name  string
}

// DiscoverIntel finds every Intel display adapter.
func DiscoverIntel(ctx context.Context, opts DiscoverOptions) ([]Backend, error) {
	cards, err := scanCards(opts.Fs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", drmRoot, err)
	}

	var backends []Backend
	for _, card := range cards {
		if card.vendorID != intelVendorID {
			continue
		}
		hwmon, _ := findHwmon(opts.Fs, card.device, "i915", "xe")
		name, ok := lspciName(ctx, opts.Runner, card.pciSlot)
		if !ok {
			name = "Intel Graphics"
		}
		backends = append(backends, &IntelBackend{
			fs:    opts.Fs,
			card:  card.path,
			hwmon: hwmon,
			name:  name,
		})
	}
	if len(backends) == 0 {
		return nil, errNoIntel
	}
	return backends, nil
}

// Name returns the marketing name resolved at discovery.
func (g *IntelBackend) Name() string { return g.name }

// Vendor returns the vendor constant.
func (g *IntelBackend) Vendor() string { return VendorIntel }

// Temperature returns the core temperature in °C.
func (g *IntelBackend) Temperature() *float64 {
	if g.hwmon == "" {
		return nil
	}
	milli, ok := readInt(g.fs, path.Join(g.hwmon, "temp1_input"))
	if !ok {
		return nil
	}
	return ptr(float64(milli) / 1000)
}

// Utilization is not exposed by i915/xe and returns nil.
func (g *IntelBackend) Utilization() *float64 { return nil }

// MemoryUsed is not exposed by i915/xe and returns nil.
func (g *IntelBackend) MemoryUsed() *uint64 { return nil }

// MemoryTotal is not exposed by i915/xe and returns nil.
func (g *IntelBackend) MemoryTotal() *uint64 { return nil }

// PowerDraw is not derivable without sampling the energy counter twice, which a
// side-effect-free read cannot do.
func (g *IntelBackend) PowerDraw() *float64 { return nil }

// PowerLimit returns the board power cap in watts.
func (g *IntelBackend) PowerLimit() *float64 {
	if g.hwmon == "" {
		return nil
	}
	micro, ok := readUint(g.fs, path.Join(g.hwmon, "power1_max"))
	if !ok || micro == 0 {
		return nil
	}
	return ptr(float64(micro) / 1_000_000)
}

// ClockSpeed returns the graphics clock in MHz.
func (g *IntelBackend) ClockSpeed() *uint32 {
	for _, name := range []string{"gt_cur_freq_mhz", "gt/gt0/rps_cur_freq_mhz"} {
		if mhz, ok := readUint(g.fs, path.Join(g.card, name)); ok {
			return ptr(uint32(mhz))
		}
	}
	return nil
}

// MemoryClock is not exposed by i915/xe and returns nil.
func (g *IntelBackend) MemoryClock() *uint32 { return nil }

// FanSpeed is not exposed by i915/xe and returns nil.
func (g *IntelBackend) FanSpeed() *uint32 { return nil }

// Processes is unsupported and returns nil.
func (g *IntelBackend) Processes() []protocol.GPUProcess { return nil }
