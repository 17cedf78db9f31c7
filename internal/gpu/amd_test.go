package gpu

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
)

type fakeRunner struct {
	out   string
	err   error
	calls int
}

func (f *fakeRunner) Run(_ context.Context, _ string, _ ...string) (string, error) {
	f.calls++
	return f.out, f.err
}

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for p, content := range files {
		if err := afero.WriteFile(fs, p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
}

func amdFixture(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/sys/class/drm/card0/device/vendor":                      "0x1002\n",
		"/sys/class/drm/card0/device/uevent":                      "DRIVER=amdgpu\nPCI_SLOT_NAME=0000:03:00.0\n",
		"/sys/class/drm/card0/device/gpu_busy_percent":            "37\n",
		"/sys/class/drm/card0/device/mem_info_vram_used":          "4294967296\n",
		"/sys/class/drm/card0/device/mem_info_vram_total":         "17179869184\n",
		"/sys/class/drm/card0/device/pp_dpm_mclk":                 "0: 96Mhz\n1: 456Mhz\n2: 1000Mhz *\n",
		"/sys/class/drm/card0/device/hwmon/hwmon3/name":           "amdgpu\n",
		"/sys/class/drm/card0/device/hwmon/hwmon3/temp1_input":    "54000\n",
		"/sys/class/drm/card0/device/hwmon/hwmon3/power1_average": "125000000\n",
		"/sys/class/drm/card0/device/hwmon/hwmon3/power1_cap":     "250000000\n",
		"/sys/class/drm/card0/device/hwmon/hwmon3/freq1_input":    "2100000000\n",
		"/sys/class/drm/card0/device/hwmon/hwmon3/fan1_input":     "1500\n",
		"/sys/class/drm/card0/device/hwmon/hwmon3/fan1_max":       "3000\n",
		// connector node, must be ignored
		"/sys/class/drm/card0-DP-1/status": "connected\n",
		// a card from another vendor
		"/sys/class/drm/card1/device/vendor": "0x10de\n",
	})
	return fs
}

func TestDiscoverAMD_ReadsSysfs(t *testing.T) {
	fs := amdFixture(t)
	runner := &fakeRunner{out: "Slot:\t03:00.0\nDevice:\tNavi 21 [Radeon RX 6800/6800 XT / 6900 XT]\nSDevice:\tRadeon RX 6900 XT\n"}

	backends, err := DiscoverAMD(context.Background(), DiscoverOptions{Fs: fs, Runner: runner})
	if err != nil {
		t.Fatalf("DiscoverAMD: %v", err)
	}
	if len(backends) != 1 {
		t.Fatalf("found %d backends, want 1", len(backends))
	}
	b := backends[0]

	if b.Name() != "Radeon RX 6900 XT" {
		t.Errorf("Name() = %q", b.Name())
	}
	if b.Vendor() != VendorAMD {
		t.Errorf("Vendor() = %q", b.Vendor())
	}
	if v := b.Temperature(); v == nil || *v != 54 {
		t.Errorf("Temperature() = %v, want 54", v)
	}
	if v := b.Utilization(); v == nil || *v != 37 {
		t.Errorf("Utilization() = %v, want 37", v)
	}
	if v := b.MemoryUsed(); v == nil || *v != 4<<30 {
		t.Errorf("MemoryUsed() = %v", v)
	}
	if v := b.MemoryTotal(); v == nil || *v != 16<<30 {
		t.Errorf("MemoryTotal() = %v", v)
	}
	if v := b.PowerDraw(); v == nil || *v != 125 {
		t.Errorf("PowerDraw() = %v, want 125", v)
	}
	if v := b.PowerLimit(); v == nil || *v != 250 {
		t.Errorf("PowerLimit() = %v, want 250", v)
	}
	if v := b.ClockSpeed(); v == nil || *v != 2100 {
		t.Errorf("ClockSpeed() = %v, want 2100", v)
	}
	if v := b.MemoryClock(); v == nil || *v != 1000 {
		t.Errorf("MemoryClock() = %v, want 1000", v)
	}
	if v := b.FanSpeed(); v == nil || *v != 50 {
		t.Errorf("FanSpeed() = %v, want 50", v)
	}
	if len(b.Processes()) != 0 {
		t.Errorf("Processes() should be empty")
	}
}

func TestDiscoverAMD_ProductNameSkipsLspci(t *testing.T) {
	fs := amdFixture(t)
	writeFiles(t, fs, map[string]string{"/sys/class/drm/card0/device/product_name": "AMD Instinct MI210\n"})
	runner := &fakeRunner{}

	backends, err := DiscoverAMD(context.Background(), DiscoverOptions{Fs: fs, Runner: runner})
	if err != nil {
		t.Fatalf("DiscoverAMD: %v", err)
	}
	if backends[0].Name() != "AMD Instinct MI210" {
		t.Errorf("Name() = %q", backends[0].Name())
	}
	if runner.calls != 0 {
		t.Errorf("lspci called %d times", runner.calls)
	}
}

func TestDiscoverAMD_UnknownName(t *testing.T) {
	fs := amdFixture(t)
	runner := &fakeRunner{err: errors.New("exec: \"lspci\": executable file not found in $PATH")}

	backends, err := DiscoverAMD(context.Background(), DiscoverOptions{Fs: fs, Runner: runner})
	if err != nil {
		t.Fatalf("DiscoverAMD: %v", err)
	}
	if backends[0].Name() != "Unknown AMD GPU" {
		t.Errorf("Name() = %q", backends[0].Name())
	}
}

func TestAMDBackend_MissingSensorsAreNil(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/sys/class/drm/card0/device/vendor":            "0x1002\n",
		"/sys/class/drm/card0/device/hwmon/hwmon0/name": "amdgpu\n",
		// fan without a max cannot be expressed as a percentage
		"/sys/class/drm/card0/device/hwmon/hwmon0/fan1_input": "1200\n",
		"/sys/class/drm/card0/device/gpu_busy_percent":        "garbage\n",
	})

	backends, err := DiscoverAMD(context.Background(), DiscoverOptions{Fs: fs})
	if err != nil {
		t.Fatalf("DiscoverAMD: %v", err)
	}
	b := backends[0]
	if b.Temperature() != nil || b.Utilization() != nil || b.MemoryUsed() != nil ||
		b.MemoryTotal() != nil || b.PowerDraw() != nil || b.PowerLimit() != nil ||
		b.ClockSpeed() != nil || b.MemoryClock() != nil || b.FanSpeed() != nil {
		t.Error("unsupported sensors must read as nil")
	}
}

func TestDiscoverAMD_NoDevices(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/sys/class/drm/card0/device/vendor": "0x8086\n"})

	backends, err := DiscoverAMD(context.Background(), DiscoverOptions{Fs: fs})
	if !errors.Is(err, errNoAMD) {
		t.Errorf("err = %v, want errNoAMD", err)
	}
	if len(backends) != 0 {
		t.Errorf("backends = %d, want 0", len(backends))
	}

	// card without the amdgpu hwmon
	writeFiles(t, fs, map[string]string{"/sys/class/drm/card1/device/vendor": "0x1002\n"})
	if _, err := DiscoverAMD(context.Background(), DiscoverOptions{Fs: fs}); !errors.Is(err, errNoAMD) {
		t.Errorf("card without hwmon: err = %v", err)
	}
}
