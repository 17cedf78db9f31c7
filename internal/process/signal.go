package process

import "fmt"

// Signal identifies a POSIX signal by its Linux number.
type Signal int

const (
	SIGHUP  Signal = 1
	SIGINT  Signal = 2
	SIGKILL Signal = 9
	SIGUSR1 Signal = 10
	SIGUSR2 Signal = 12
	SIGTERM Signal = 15
	SIGCONT Signal = 18
	SIGSTOP Signal = 19
)

var signalNames = map[Signal]string{
	SIGHUP:  "SIGHUP",
	SIGINT:  "SIGINT",
	SIGKILL: "SIGKILL",
	SIGUSR1: "SIGUSR1",
	SIGUSR2: "SIGUSR2",
	SIGTERM: "SIGTERM",
	SIGCONT: "SIGCONT",
	SIGSTOP: "SIGSTOP",
}

func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	return fmt.Sprintf("signal %d", int(s))
}

// Supported reports whether s can be sent with SendSignal.
func (s Signal) Supported() bool {
	_, ok := signalNames[s]
	return ok
}

// OS is the signal-send and liveness primitive pair the controller drives.
type OS interface {
	Exists(pid uint32) bool
	Signal(pid uint32, sig Signal) error
}
