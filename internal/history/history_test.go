package history

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/dushixiang/gleam/internal/metric"
	"github.com/dushixiang/gleam/internal/protocol"
	"github.com/google/go-cmp/cmp"
)

func ptr[T any](v T) *T { return &v }

func TestMetricsHistory_UpdateSkipsMissingGPUReadings(t *testing.T) {
	h := NewMetricsHistory(10, 2)
	gpus := []protocol.GPUData{
		{ID: 0, Temperature: ptr(60.0), Utilization: ptr(40.0), MemoryUsed: ptr(uint64(2)), MemoryTotal: ptr(uint64(8))},
		{ID: 1, Temperature: nil, Utilization: ptr(10.0)},
		{ID: 2, Temperature: ptr(99.0)}, // no buffers for this one yet
	}

	h.Update(100, 12.5, 50, 0, gpus)

	if h.CPU.Len() != 1 || h.Memory.Len() != 1 || h.Swap.Len() != 1 {
		t.Fatalf("scalar buffers not updated: cpu=%d mem=%d swap=%d", h.CPU.Len(), h.Memory.Len(), h.Swap.Len())
	}
	if diff := cmp.Diff([]float64{25}, h.GPUMem[0].Values()); diff != "" {
		t.Errorf("gpu 0 memory (-want +got):\n%s", diff)
	}
	if h.GPUTemp[1].Len() != 0 {
		t.Errorf("gpu 1 temperature recorded although unsupported")
	}
	if h.GPUMem[1].Len() != 0 {
		t.Errorf("gpu 1 memory recorded although unsupported")
	}
	if h.GPUCount() != 2 {
		t.Errorf("GPUCount() = %d, want 2", h.GPUCount())
	}
}

func TestMetricsHistory_ResizeGPUGrowsOnly(t *testing.T) {
	h := NewMetricsHistory(5, 1)
	h.GPUTemp[0].Push(70, 1)
	first := h.GPUTemp[0]

	h.ResizeGPU(3)
	if h.GPUCount() != 3 || len(h.GPUUtil) != 3 || len(h.GPUMem) != 3 {
		t.Fatalf("ResizeGPU(3) left %d/%d/%d buffers", len(h.GPUTemp), len(h.GPUUtil), len(h.GPUMem))
	}
	if h.GPUTemp[0] != first || first.Len() != 1 {
		t.Error("existing GPU buffer was replaced or truncated")
	}

	h.ResizeGPU(1)
	if h.GPUCount() != 3 {
		t.Errorf("ResizeGPU(1) shrank buffers to %d", h.GPUCount())
	}
	if h.GPUTemp[2].Cap() != 5 {
		t.Errorf("new buffer capacity = %d, want 5", h.GPUTemp[2].Cap())
	}
}

func TestMetricsHistory_ResetGPU(t *testing.T) {
	h := NewMetricsHistory(5, 3)
	h.CPU.Push(10, 1)
	h.GPUTemp[1].Push(70, 1)

	h.ResetGPU(1)
	if h.GPUCount() != 1 || len(h.GPUUtil) != 1 || len(h.GPUMem) != 1 {
		t.Fatalf("ResetGPU(1) left %d/%d/%d buffers", len(h.GPUTemp), len(h.GPUUtil), len(h.GPUMem))
	}
	if h.GPUTemp[0].Len() != 0 || h.GPUTemp[0].Cap() != 5 {
		t.Errorf("gpu 0 buffer len=%d cap=%d, want empty with cap 5", h.GPUTemp[0].Len(), h.GPUTemp[0].Cap())
	}
	if h.CPU.Len() != 1 {
		t.Error("ResetGPU touched the cpu buffer")
	}
}

func TestWriteCSV(t *testing.T) {
	h := NewMetricsHistory(10, 0)
	h.Update(1, 10, 20.555, 0, nil)
	h.Update(2, 11.25, 21, 1, nil)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, h); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	want := "timestamp,cpu_usage,memory_usage,swap_usage\n" +
		"1,10.00,20.55,0.00\n" +
		"2,11.25,21.00,1.00\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteJSON(t *testing.T) {
	h := NewMetricsHistory(10, 1)
	h.Update(5, 1, 2, 3, []protocol.GPUData{{Temperature: ptr(55.0)}})

	var buf bytes.Buffer
	if err := WriteJSON(&buf, h, "session-1"); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var got metric.HistoryDump
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := metric.HistoryDump{
		Session: "session-1",
		CPU:     []metric.DataPoint{{Timestamp: 5, Value: 1}},
		Memory:  []metric.DataPoint{{Timestamp: 5, Value: 2}},
		Swap:    []metric.DataPoint{{Timestamp: 5, Value: 3}},
		GPUs: []metric.GPUSeries{{
			GPUID:       0,
			Temperature: []metric.DataPoint{{Timestamp: 5, Value: 55}},
			Utilization: []metric.DataPoint{},
			Memory:      []metric.DataPoint{},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("json mismatch (-want +got):\n%s", diff)
	}
}

func TestExport(t *testing.T) {
	fs := afero.NewMemMapFs()
	h := NewMetricsHistory(5, 0)
	h.Update(10, 1, 2, 3, nil)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	name, err := Export(fs, "/out", FormatCSV, h, "s1", now)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if name != "/out/gleam-history-20260102-030405.csv" {
		t.Errorf("name = %q", name)
	}
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		t.Fatal(err)
	}
	want := "timestamp,cpu_usage,memory_usage,swap_usage\n10,1.00,2.00,3.00\n"
	if string(data) != want {
		t.Errorf("csv = %q, want %q", data, want)
	}

	if _, err := Export(fs, "/out", "xml", h, "s1", now); err == nil {
		t.Error("Export accepted xml")
	}
}
