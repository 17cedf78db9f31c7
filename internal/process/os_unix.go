//go:build unix

package process

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

var unixSignals = map[Signal]unix.Signal{
	SIGHUP:  unix.SIGHUP,
	SIGINT:  unix.SIGINT,
	SIGKILL: unix.SIGKILL,
	SIGUSR1: unix.SIGUSR1,
	SIGUSR2: unix.SIGUSR2,
	SIGTERM: unix.SIGTERM,
	SIGCONT: unix.SIGCONT,
	SIGSTOP: unix.SIGSTOP,
}

// SystemOS sends real signals with kill(2).
type SystemOS struct{}

// Exists treats a zombie as alive until it is reaped.
func (SystemOS) Exists(pid uint32) bool {
	ok, err := process.PidExistsWithContext(context.Background(), int32(pid))
	return err == nil && ok
}

// Signal delivers sig with kill(2).
func (SystemOS) Signal(pid uint32, sig Signal) error {
	s, ok := unixSignals[sig]
	if !ok {
		return fmt.Errorf("unsupported signal %d", int(sig))
	}
	return unix.Kill(int(pid), s)
}
