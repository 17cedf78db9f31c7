package process

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dushixiang/gleam/internal/protocol"
)

// SortMode orders the flat process list.
type SortMode int

const (
	SortCPU SortMode = iota
	SortMemory
	SortName
	SortPID
)

func (m SortMode) String() string {
	switch m {
	case SortCPU:
		return "cpu"
	case SortMemory:
		return "memory"
	case SortName:
		return "name"
	case SortPID:
		return "pid"
	}
	return "unknown"
}

// ParseSortMode accepts the names printed by String.
func ParseSortMode(s string) (SortMode, error) {
	for _, m := range []SortMode{SortCPU, SortMemory, SortName, SortPID} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return SortCPU, fmt.Errorf("unknown sort mode %q", s)
}

// Sort orders procs in place. CPU and memory sort descending, name and pid ascending.
func Sort(procs []protocol.ProcessData, mode SortMode) {
	slices.SortStableFunc(procs, func(a, b protocol.ProcessData) int {
		switch mode {
		case SortMemory:
			return cmp.Compare(b.MemoryKB, a.MemoryKB)
		case SortName:
			return strings.Compare(a.Name, b.Name)
		case SortPID:
			return cmp.Compare(a.PID, b.PID)
		default:
			return cmp.Compare(b.CPUUsage, a.CPUUsage)
		}
	})
}

// Filter keeps processes whose name, command line or pid contains query, ignoring case.
// An empty query keeps everything.
func Filter(procs []protocol.ProcessData, query string) []protocol.ProcessData {
	if query == "" {
		return slices.Clone(procs)
	}
	q := strings.ToLower(query)
	var out []protocol.ProcessData
	for _, p := range procs {
		if strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Cmd), q) ||
			strings.Contains(strconv.FormatUint(uint64(p.PID), 10), q) {
			out = append(out, p)
		}
	}
	return out
}

// Top returns the first n processes of procs after sorting a copy by mode.
func Top(procs []protocol.ProcessData, mode SortMode, n int) []protocol.ProcessData {
	sorted := slices.Clone(procs)
	Sort(sorted, mode)
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
