//go:build !unix

package process

import (
	"context"
	"errors"

	"github.com/shirou/gopsutil/v4/process"
)

var errSignalsUnsupported = errors.New("signals are not supported on this platform")

// SystemOS can only probe liveness here; the kill path goes through gopsutil.
type SystemOS struct{}

// Exists reports whether pid is a running process.
func (SystemOS) Exists(pid uint32) bool {
	ok, err := process.PidExistsWithContext(context.Background(), int32(pid))
	return err == nil && ok
}

// Signal supports SIGTERM and SIGKILL only.
func (SystemOS) Signal(pid uint32, sig Signal) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	switch sig {
	case SIGKILL, SIGTERM:
		return p.Kill()
	default:
		return errSignalsUnsupported
	}
}
