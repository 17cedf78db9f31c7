package history

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/dushixiang/gleam/internal/metric"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var csvHeader = []string{"timestamp", "cpu_usage", "memory_usage", "swap_usage"}

// WriteCSV dumps the cpu, memory and swap buffers as CSV rows aligned by index. Rows where
// a buffer is shorter than the others carry 0 for the missing cells.
func WriteCSV(w io.Writer, h *MetricsHistory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	cpu, mem, swap := h.CPU.All(), h.Memory.All(), h.Swap.All()
	rows := max(len(cpu), len(mem), len(swap))
	for i := 0; i < rows; i++ {
		var ts uint64
		if i < len(cpu) {
			ts = cpu[i].Timestamp
		}
		record := []string{
			strconv.FormatUint(ts, 10),
			formatCell(cpu, i),
			formatCell(mem, i),
			formatCell(swap, i),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatCell(samples []Sample[float64], i int) string {
	var v float64
	if i < len(samples) {
		v = samples[i].Value
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Dump converts the history into its export layout.
func Dump(h *MetricsHistory, session string) *metric.HistoryDump {
	dump := &metric.HistoryDump{
		Session: session,
		CPU:     toDataPoints(h.CPU),
		Memory:  toDataPoints(h.Memory),
		Swap:    toDataPoints(h.Swap),
		GPUs:    make([]metric.GPUSeries, 0, h.GPUCount()),
	}
	for i := 0; i < h.GPUCount(); i++ {
		dump.GPUs = append(dump.GPUs, metric.GPUSeries{
			GPUID:       i,
			Temperature: toDataPoints(h.GPUTemp[i]),
			Utilization: toDataPoints(h.GPUUtil[i]),
			Memory:      toDataPoints(h.GPUMem[i]),
		})
	}
	return dump
}

// WriteJSON dumps every buffer, GPUs included, as indented JSON.
func WriteJSON(w io.Writer, h *MetricsHistory, session string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Dump(h, session)); err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return nil
}

func toDataPoints(b *CircularBuffer[float64]) []metric.DataPoint {
	samples := b.All()
	points := make([]metric.DataPoint, len(samples))
	for i, s := range samples {
		points[i] = metric.DataPoint{Timestamp: s.Timestamp, Value: s.Value}
	}
	return points
}

// FileName returns the default export file name for format at t.
func FileName(format string, t time.Time) string {
	return fmt.Sprintf("gleam-history-%s.%s", t.Format("20060102-150405"), format)
}

// Export writes h to dir in format and returns the file path. dir is created if needed.
func Export(fs afero.Fs, dir, format string, h *MetricsHistory, session string, now time.Time) (string, error) {
	if format != FormatCSV && format != FormatJSON {
		return "", fmt.Errorf("unsupported export format %q", format)
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	name := filepath.Join(dir, FileName(format, now))
	f, err := fs.Create(name)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if format == FormatCSV {
		err = WriteCSV(f, h)
	} else {
		err = WriteJSON(f, h, session)
	}
	if err != nil {
		return "", err
	}
	return name, f.Close()
}
