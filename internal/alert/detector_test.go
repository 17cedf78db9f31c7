package alert

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dushixiang/gleam/internal/config"
	"github.com/dushixiang/gleam/internal/protocol"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDetector() (*Detector, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	return NewDetectorWithClock(config.Default().Alerts, clock.Now), clock
}

func ptr[T any](v T) *T { return &v }

func TestCheckAlerts_CPULevels(t *testing.T) {
	tests := []struct {
		name      string
		cpu       float64
		wantCount int
		wantLevel Level
	}{
		{"below threshold", 80, 0, 0},
		{"at threshold", 85, 0, 0},
		{"warning", 90, 1, LevelWarning},
		{"at critical tier", 95, 1, LevelWarning},
		{"critical", 96, 1, LevelCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDetector()
			alerts := d.CheckAlerts(tt.cpu, 0, 0, 0, nil)
			if len(alerts) != tt.wantCount {
				t.Fatalf("got %d alerts, want %d", len(alerts), tt.wantCount)
			}
			if tt.wantCount == 1 {
				a := alerts[0]
				if a.Type.Kind != KindCPU || a.Level != tt.wantLevel {
					t.Errorf("alert = %v/%v, want cpu/%v", a.Type, a.Level, tt.wantLevel)
				}
				if a.Threshold != 85 || a.Value != tt.cpu {
					t.Errorf("value/threshold = %v/%v", a.Value, a.Threshold)
				}
			}
		})
	}
}

func TestCheckAlerts_Message(t *testing.T) {
	d, clock := newTestDetector()
	alerts := d.CheckAlerts(90, 0, 0, 0, nil)
	want := []Alert{{
		Type:      Type{Kind: KindCPU},
		Level:     LevelWarning,
		Value:     90,
		Threshold: 85,
		Message:   "CPU usage at 90.0% (threshold: 85.0%)",
		Timestamp: uint64(clock.t.Unix()),
	}}
	if diff := cmp.Diff(want, alerts); diff != "" {
		t.Errorf("alerts (-want +got):\n%s", diff)
	}
}

func TestCheckAlerts_SeverityTable(t *testing.T) {
	d, _ := newTestDetector()
	gpus := []protocol.GPUData{
		{Temperature: ptr(80.0), Utilization: ptr(99.0), MemoryUsed: ptr(uint64(99)), MemoryTotal: ptr(uint64(100))},
		{Temperature: ptr(90.0)},
		{Temperature: nil, Utilization: nil},
	}
	alerts := d.CheckAlerts(99, 99, 99, 1024, gpus)

	got := map[string]Level{}
	for _, a := range alerts {
		got[a.Type.Key()] = a.Level
	}
	want := map[string]Level{
		"cpu":        LevelCritical,
		"memory":     LevelCritical,
		"swap":       LevelWarning,
		"gpu_0_temp": LevelWarning,
		"gpu_0_util": LevelInfo,
		"gpu_0_mem":  LevelWarning,
		"gpu_1_temp": LevelCritical,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("levels (-want +got):\n%s", diff)
	}

	if d.CriticalCount() != 3 {
		t.Errorf("CriticalCount() = %d, want 3", d.CriticalCount())
	}
	if d.WarningCount() != 3 {
		t.Errorf("WarningCount() = %d, want 3", d.WarningCount())
	}
	if !d.HasAlerts() {
		t.Error("HasAlerts() = false")
	}
}

func TestCheckAlerts_SwapNeedsCapacity(t *testing.T) {
	d, _ := newTestDetector()
	if alerts := d.CheckAlerts(0, 0, 100, 0, nil); len(alerts) != 0 {
		t.Errorf("swap alert without swap capacity: %+v", alerts)
	}
}

func TestCheckAlerts_ReplacesActiveSet(t *testing.T) {
	d, _ := newTestDetector()
	d.CheckAlerts(99, 99, 0, 0, nil)
	if len(d.ActiveAlerts()) != 2 {
		t.Fatalf("active = %d, want 2", len(d.ActiveAlerts()))
	}

	d.CheckAlerts(10, 99, 0, 0, nil)
	active := d.ActiveAlerts()
	if len(active) != 1 || active[0].Type.Kind != KindMemory {
		t.Errorf("active after recovery = %+v, want memory only", active)
	}

	d.CheckAlerts(10, 10, 0, 0, nil)
	if d.HasAlerts() {
		t.Error("active set should be empty once every metric recovered")
	}
}

func TestCheckAlerts_Disabled(t *testing.T) {
	cfg := config.Default().Alerts
	cfg.Enabled = false
	d := NewDetector(cfg)
	if alerts := d.CheckAlerts(100, 100, 100, 1, []protocol.GPUData{{Temperature: ptr(120.0)}}); len(alerts) != 0 {
		t.Errorf("disabled detector raised %d alerts", len(alerts))
	}
	if d.CriticalCount() != 0 {
		t.Error("disabled detector reports critical alerts")
	}
}

func TestShouldNotify_Cooldown(t *testing.T) {
	d, clock := newTestDetector()
	cpu := Type{Kind: KindCPU}

	if !d.ShouldNotify(cpu) {
		t.Fatal("first notification must pass")
	}
	clock.Advance(30 * time.Second)
	if d.ShouldNotify(cpu) {
		t.Error("notification inside cooldown must be suppressed")
	}
	clock.Advance(29 * time.Second)
	if d.ShouldNotify(cpu) {
		t.Error("notification at 59s must be suppressed")
	}
	// suppressed calls must not have extended the window
	clock.Advance(time.Second)
	if !d.ShouldNotify(cpu) {
		t.Error("notification after cooldown must pass")
	}
	if d.ShouldNotify(cpu) {
		t.Error("cooldown must restart after a successful notification")
	}
}

func TestShouldNotify_KeysAreIndependent(t *testing.T) {
	d, _ := newTestDetector()
	if !d.ShouldNotify(Type{Kind: KindGPUTemperature, GPUID: 0}) {
		t.Fatal("gpu 0 first notification must pass")
	}
	if !d.ShouldNotify(Type{Kind: KindGPUTemperature, GPUID: 1}) {
		t.Error("gpu 1 shares no cooldown with gpu 0")
	}
	if !d.ShouldNotify(Type{Kind: KindGPUMemory, GPUID: 0}) {
		t.Error("gpu 0 memory shares no cooldown with gpu 0 temperature")
	}
}

func TestType_Key(t *testing.T) {
	tests := map[Type]string{
		{Kind: KindCPU}:                      "cpu",
		{Kind: KindMemory}:                   "memory",
		{Kind: KindSwap}:                     "swap",
		{Kind: KindGPUTemperature, GPUID: 2}: "gpu_2_temp",
		{Kind: KindGPUUtilization, GPUID: 0}: "gpu_0_util",
		{Kind: KindGPUMemory, GPUID: 1}:      "gpu_1_mem",
	}
	for typ, want := range tests {
		if got := typ.Key(); got != want {
			t.Errorf("%+v.Key() = %q, want %q", typ, got, want)
		}
	}
}
