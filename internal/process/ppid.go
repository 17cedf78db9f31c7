package process

import (
	"context"
	"path"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/afero"
)

// ProcStatResolver reads the parent pid from /proc/<pid>/stat.
type ProcStatResolver struct {
	fs afero.Fs
}

// NewProcStatResolver creates a resolver over fs, usually afero.NewOsFs().
func NewProcStatResolver(fs afero.Fs) *ProcStatResolver {
	return &ProcStatResolver{fs: fs}
}

// PPID reads the fourth field of /proc/<pid>/stat.
func (r *ProcStatResolver) PPID(pid uint32) (uint32, bool) {
	data, err := afero.ReadFile(r.fs, path.Join("/proc", strconv.FormatUint(uint64(pid), 10), "stat"))
	if err != nil {
		return 0, false
	}
	return parseStatPPID(string(data))
}

// parseStatPPID takes the second field after the closing paren of comm, which may itself
// contain spaces and parens.
func parseStatPPID(stat string) (uint32, bool) {
	i := strings.LastIndexByte(stat, ')')
	if i < 0 {
		return 0, false
	}
	fields := strings.Fields(stat[i+1:])
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(ppid), true
}

// PsutilResolver asks gopsutil, for platforms without procfs.
type PsutilResolver struct {
	ctx context.Context
}

// NewPsutilResolver resolves parents through gopsutil, for hosts without procfs.
func NewPsutilResolver(ctx context.Context) *PsutilResolver {
	return &PsutilResolver{ctx: ctx}
}

// PPID asks gopsutil for the parent of pid.
func (r *PsutilResolver) PPID(pid uint32) (uint32, bool) {
	p, err := process.NewProcessWithContext(r.ctx, int32(pid))
	if err != nil {
		return 0, false
	}
	ppid, err := p.PpidWithContext(r.ctx)
	if err != nil || ppid < 0 {
		return 0, false
	}
	return uint32(ppid), true
}

// DefaultResolver prefers procfs and falls back to gopsutil.
func DefaultResolver(ctx context.Context, fs afero.Fs) PPIDResolver {
	if ok, _ := afero.DirExists(fs, "/proc/self"); ok {
		return NewProcStatResolver(fs)
	}
	return NewPsutilResolver(ctx)
}

// ResolverFunc adapts a function to PPIDResolver.
type ResolverFunc func(pid uint32) (uint32, bool)

func (f ResolverFunc) PPID(pid uint32) (uint32, bool) { return f(pid) }
