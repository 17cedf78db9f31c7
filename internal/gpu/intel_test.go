package gpu

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
)

func TestDiscoverIntel(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/sys/class/drm/card0/device/vendor":                  "0x8086\n",
		"/sys/class/drm/card0/gt_cur_freq_mhz":                "1300\n",
		"/sys/class/drm/card0/device/hwmon/hwmon5/name":       "i915\n",
		"/sys/class/drm/card0/device/hwmon/hwmon5/power1_max": "95000000\n",
	})

	backends, err := DiscoverIntel(context.Background(), DiscoverOptions{Fs: fs})
	if err != nil {
		t.Fatalf("DiscoverIntel: %v", err)
	}
	if len(backends) != 1 {
		t.Fatalf("found %d backends, want 1", len(backends))
	}
	b := backends[0]
	if b.Name() != "Intel Graphics" {
		t.Errorf("Name() = %q", b.Name())
	}
	if v := b.ClockSpeed(); v == nil || *v != 1300 {
		t.Errorf("ClockSpeed() = %v, want 1300", v)
	}
	if v := b.PowerLimit(); v == nil || *v != 95 {
		t.Errorf("PowerLimit() = %v, want 95", v)
	}
	if b.Temperature() != nil {
		t.Errorf("Temperature() should be nil without temp1_input")
	}
	if b.Utilization() != nil || b.MemoryUsed() != nil || b.MemoryTotal() != nil || b.FanSpeed() != nil || b.PowerDraw() != nil {
		t.Error("unsupported Intel sensors must be nil")
	}
}

func TestDiscoverIntel_None(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := DiscoverIntel(context.Background(), DiscoverOptions{Fs: fs}); err == nil {
		t.Error("expected an error without /sys/class/drm")
	}

	writeFiles(t, fs, map[string]string{"/sys/class/drm/card0/device/vendor": "0x1002\n"})
	if _, err := DiscoverIntel(context.Background(), DiscoverOptions{Fs: fs}); !errors.Is(err, errNoIntel) {
		t.Errorf("err = %v, want errNoIntel", err)
	}
}
