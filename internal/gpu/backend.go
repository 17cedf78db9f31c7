package gpu

import (
	"context"

	"github.com/dushixiang/gleam/internal/protocol"
	"github.com/dushixiang/gleam/pkg/agent/sysutil"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Vendor names as reported in snapshots.
const (
	VendorNVIDIA = "NVIDIA"
	VendorAMD    = "AMD"
	VendorIntel  = "Intel"
)

// Backend is one physical GPU. Every read is independent and free of side effects; a nil
// result means the sensor is unsupported or the read failed.
type Backend interface {
	Name() string
	Vendor() string
	Temperature() *float64 // °C
	Utilization() *float64 // %
	MemoryUsed() *uint64   // bytes
	MemoryTotal() *uint64  // bytes
	PowerDraw() *float64   // W
	PowerLimit() *float64  // W
	ClockSpeed() *uint32   // MHz
	MemoryClock() *uint32  // MHz
	FanSpeed() *uint32     // %
	Processes() []protocol.GPUProcess
}

// DiscoverOptions carries the collaborators vendor discovery needs.
type DiscoverOptions struct {
	// Fs is rooted at "/" and used for every sysfs and procfs read.
	Fs afero.Fs
	// Runner resolves marketing names through lspci. Only used during discovery.
	Runner sysutil.Runner
	Logger *zap.Logger
	// DisableNVML skips the NVIDIA backend entirely.
	DisableNVML bool
}

// Discoverer enumerates every adapter of one vendor. Returning an error means the vendor
// is unavailable on this host; it is never fatal.
type Discoverer func(ctx context.Context, opts DiscoverOptions) ([]Backend, error)

type vendorDiscoverer struct {
	vendor   string
	discover Discoverer
}

// discoverers run in order; GPU ids follow this order.
var discoverers = []vendorDiscoverer{
	{vendor: VendorNVIDIA, discover: DiscoverNVIDIA},
	{vendor: VendorAMD, discover: DiscoverAMD},
	{vendor: VendorIntel, discover: DiscoverIntel},
}

// DiscoverAll runs every vendor discoverer. Vendors that fail contribute nothing.
func DiscoverAll(ctx context.Context, opts DiscoverOptions) []Backend {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	var backends []Backend
	for _, d := range discoverers {
		found, err := d.discover(ctx, opts)
		if err != nil {
			opts.Logger.Info("GPU vendor unavailable", zap.String("vendor", d.vendor), zap.Error(err))
			continue
		}
		if len(found) == 0 {
			opts.Logger.Debug("no GPUs found", zap.String("vendor", d.vendor))
			continue
		}
		for _, b := range found {
			opts.Logger.Info("GPU discovered", zap.String("vendor", d.vendor), zap.String("name", b.Name()))
		}
		backends = append(backends, found...)
	}
	return backends
}
