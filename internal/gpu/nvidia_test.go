package gpu

import (
	"testing"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/dushixiang/gleam/internal/protocol"
)

type fakeNVMLDevice struct {
	fail     bool
	compute  []nvml.ProcessInfo
	graphics []nvml.ProcessInfo
}

func (f *fakeNVMLDevice) ret() nvml.Return {
	if f.fail {
		return nvml.ERROR_NOT_SUPPORTED
	}
	return nvml.SUCCESS
}

func (f *fakeNVMLDevice) GetName() (string, nvml.Return) {
	return "NVIDIA GeForce RTX 4090", f.ret()
}

func (f *fakeNVMLDevice) GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return) {
	return 66, f.ret()
}

func (f *fakeNVMLDevice) GetUtilizationRates() (nvml.Utilization, nvml.Return) {
	return nvml.Utilization{Gpu: 80, Memory: 30}, f.ret()
}

func (f *fakeNVMLDevice) GetMemoryInfo() (nvml.Memory, nvml.Return) {
	return nvml.Memory{Total: 24 << 30, Used: 6 << 30, Free: 18 << 30}, f.ret()
}

func (f *fakeNVMLDevice) GetPowerUsage() (uint32, nvml.Return) {
	return 320500, f.ret()
}

func (f *fakeNVMLDevice) GetPowerManagementLimit() (uint32, nvml.Return) {
	return 450000, f.ret()
}

func (f *fakeNVMLDevice) GetClockInfo(clock nvml.ClockType) (uint32, nvml.Return) {
	if clock == nvml.CLOCK_MEM {
		return 10501, f.ret()
	}
	return 2520, f.ret()
}

func (f *fakeNVMLDevice) GetFanSpeed() (uint32, nvml.Return) {
	return 45, f.ret()
}

func (f *fakeNVMLDevice) GetComputeRunningProcesses() ([]nvml.ProcessInfo, nvml.Return) {
	return f.compute, f.ret()
}

func (f *fakeNVMLDevice) GetGraphicsRunningProcesses() ([]nvml.ProcessInfo, nvml.Return) {
	return f.graphics, f.ret()
}

func TestNVIDIABackend_Reads(t *testing.T) {
	b := newNVIDIABackend(&fakeNVMLDevice{}, afero.NewMemMapFs())

	if b.Name() != "NVIDIA GeForce RTX 4090" {
		t.Errorf("Name() = %q", b.Name())
	}
	if v := b.Temperature(); v == nil || *v != 66 {
		t.Errorf("Temperature() = %v", v)
	}
	if v := b.Utilization(); v == nil || *v != 80 {
		t.Errorf("Utilization() = %v", v)
	}
	if v := b.MemoryUsed(); v == nil || *v != 6<<30 {
		t.Errorf("MemoryUsed() = %v", v)
	}
	if v := b.MemoryTotal(); v == nil || *v != 24<<30 {
		t.Errorf("MemoryTotal() = %v", v)
	}
	if v := b.PowerDraw(); v == nil || *v != 320.5 {
		t.Errorf("PowerDraw() = %v, want 320.5", v)
	}
	if v := b.PowerLimit(); v == nil || *v != 450 {
		t.Errorf("PowerLimit() = %v, want 450", v)
	}
	if v := b.ClockSpeed(); v == nil || *v != 2520 {
		t.Errorf("ClockSpeed() = %v", v)
	}
	if v := b.MemoryClock(); v == nil || *v != 10501 {
		t.Errorf("MemoryClock() = %v", v)
	}
	if v := b.FanSpeed(); v == nil || *v != 45 {
		t.Errorf("FanSpeed() = %v", v)
	}
}

func TestNVIDIABackend_UnsupportedReadsAreNil(t *testing.T) {
	b := newNVIDIABackend(&fakeNVMLDevice{fail: true}, afero.NewMemMapFs())

	if b.Name() != "Unknown NVIDIA GPU" {
		t.Errorf("Name() = %q", b.Name())
	}
	if b.Temperature() != nil || b.Utilization() != nil || b.MemoryUsed() != nil ||
		b.MemoryTotal() != nil || b.PowerDraw() != nil || b.PowerLimit() != nil ||
		b.ClockSpeed() != nil || b.MemoryClock() != nil || b.FanSpeed() != nil {
		t.Error("failed NVML reads must be nil")
	}
	if len(b.Processes()) != 0 {
		t.Error("Processes() should be empty when NVML fails")
	}
}

func TestNVIDIABackend_Processes(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/proc/4242/comm": "python3\n"})
	device := &fakeNVMLDevice{
		compute:  []nvml.ProcessInfo{{Pid: 4242, UsedGpuMemory: 2 << 30}},
		graphics: []nvml.ProcessInfo{{Pid: 4242, UsedGpuMemory: 2 << 30}, {Pid: 777, UsedGpuMemory: 512 << 20}},
	}
	b := newNVIDIABackend(device, fs)

	want := []protocol.GPUProcess{
		{PID: 4242, Name: "python3", MemoryUsed: 2 << 30},
		{PID: 777, Name: "PID 777", MemoryUsed: 512 << 20},
	}
	if diff := cmp.Diff(want, b.Processes()); diff != "" {
		t.Errorf("Processes() mismatch (-want +got):\n%s", diff)
	}
}

func TestNVMLLifecycle(t *testing.T) {
	var inits, shutdowns int
	initRet := nvml.ERROR_LIBRARY_NOT_FOUND
	origInit, origShutdown := nvmlInit, nvmlShutdown
	nvmlInit = func() nvml.Return { inits++; return initRet }
	nvmlShutdown = func() nvml.Return { shutdowns++; return nvml.SUCCESS }
	t.Cleanup(func() {
		nvmlInit, nvmlShutdown = origInit, origShutdown
		nvmlReady = false
	})

	if err := initNVML(); err == nil {
		t.Fatal("initNVML succeeded without a driver")
	}
	if err := ShutdownNVML(); err != nil || shutdowns != 0 {
		t.Errorf("ShutdownNVML after failed init = %v, %d calls", err, shutdowns)
	}

	initRet = nvml.SUCCESS
	for range 2 {
		if err := initNVML(); err != nil {
			t.Fatalf("initNVML: %v", err)
		}
	}
	if inits != 2 {
		t.Errorf("init calls = %d, want 2 (one failed, one loaded)", inits)
	}

	if err := ShutdownNVML(); err != nil {
		t.Fatalf("ShutdownNVML: %v", err)
	}
	if err := ShutdownNVML(); err != nil || shutdowns != 1 {
		t.Errorf("second ShutdownNVML = %v, %d calls, want one release", err, shutdowns)
	}
}
