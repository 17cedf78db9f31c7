package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	gracePeriod  = 3 * time.Second
	settlePeriod = 500 * time.Millisecond
)

// ErrNotFound matches any NotFoundError.
var ErrNotFound = errors.New("process not found")

// ErrUnsupportedSignal is returned by SendSignal for numbers outside the supported set.
var ErrUnsupportedSignal = errors.New("unsupported signal")

// NotFoundError is returned when the target process is gone before any signal is sent.
type NotFoundError struct {
	PID uint32
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Process %d does not exist", e.PID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// SignalError reports a failed kill(2).
type SignalError struct {
	PID    uint32
	Signal Signal
	Err    error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("Failed to send signal %s to process %d: %v", e.Signal, e.PID, e.Err)
}

func (e *SignalError) Unwrap() error {
	return e.Err
}

// State is a step of the escalation sequence.
type State int

const (
	StateProbe State = iota
	StateNotFound
	StateSentGraceful
	StateWaitingGraceful
	StateSentForceful
	StateWaitingForceful
	StateDone
)

var stateNames = [...]string{"probe", "not_found", "sent_graceful", "waiting_graceful", "sent_forceful", "waiting_forceful", "done"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Controller terminates processes.
type Controller struct {
	os     OS
	sleep  func(time.Duration)
	logger *zap.Logger
}

// NewController returns a controller that signals real processes.
func NewController(logger *zap.Logger) *Controller {
	return NewControllerWithOS(logger, SystemOS{}, time.Sleep)
}

// NewControllerWithOS injects the signal primitives and the wait function.
func NewControllerWithOS(logger *zap.Logger, os OS, sleep func(time.Duration)) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{os: os, sleep: sleep, logger: logger}
}

func (c *Controller) send(pid uint32, sig Signal) error {
	if err := c.os.Signal(pid, sig); err != nil {
		return &SignalError{PID: pid, Signal: sig, Err: err}
	}
	return nil
}

// SmartKill sends SIGTERM, waits three seconds and escalates to SIGKILL if the process
// survived. The returned message reflects observed liveness. ctx is only checked before
// the first signal; once started the sequence runs to completion.
func (c *Controller) SmartKill(ctx context.Context, pid uint32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	state := StateProbe
	for {
		c.logger.Debug("kill step", zap.Uint32("pid", pid), zap.Stringer("state", state))
		switch state {
		case StateProbe:
			if !c.os.Exists(pid) {
				state = StateNotFound
				continue
			}
			if err := c.send(pid, SIGTERM); err != nil {
				return "", err
			}
			state = StateSentGraceful
		case StateNotFound:
			return "", &NotFoundError{PID: pid}
		case StateSentGraceful:
			c.sleep(gracePeriod)
			state = StateWaitingGraceful
		case StateWaitingGraceful:
			if !c.os.Exists(pid) {
				c.logger.Info("process terminated gracefully", zap.Uint32("pid", pid))
				return fmt.Sprintf("Process %d terminated gracefully (SIGTERM)", pid), nil
			}
			if err := c.send(pid, SIGKILL); err != nil {
				return "", err
			}
			state = StateSentForceful
		case StateSentForceful:
			c.sleep(settlePeriod)
			state = StateWaitingForceful
		case StateWaitingForceful:
			state = StateDone
			if c.os.Exists(pid) {
				c.logger.Warn("process survived SIGKILL settle period", zap.Uint32("pid", pid))
				return fmt.Sprintf("Sent SIGKILL to process %d (escalated from SIGTERM)", pid), nil
			}
			c.logger.Info("process terminated after escalation", zap.Uint32("pid", pid))
			return fmt.Sprintf("Process %d terminated (escalated to SIGKILL)", pid), nil
		default:
			return "", fmt.Errorf("kill %d: unexpected state %s", pid, state)
		}
	}
}

// ForceKill sends SIGKILL without waiting.
func (c *Controller) ForceKill(pid uint32) (string, error) {
	if !c.os.Exists(pid) {
		return "", &NotFoundError{PID: pid}
	}
	if err := c.send(pid, SIGKILL); err != nil {
		return "", err
	}
	return fmt.Sprintf("Sent SIGKILL to process %d", pid), nil
}

// Terminate sends SIGTERM without escalation.
func (c *Controller) Terminate(pid uint32) (string, error) {
	if !c.os.Exists(pid) {
		return "", &NotFoundError{PID: pid}
	}
	if err := c.send(pid, SIGTERM); err != nil {
		return "", err
	}
	return fmt.Sprintf("Sent SIGTERM to process %d", pid), nil
}

// SendSignal sends one of HUP, INT, KILL, USR1, USR2, TERM, CONT or STOP by number.
func (c *Controller) SendSignal(pid uint32, num int) (string, error) {
	sig := Signal(num)
	if !sig.Supported() {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedSignal, num)
	}
	if !c.os.Exists(pid) {
		return "", &NotFoundError{PID: pid}
	}
	if err := c.send(pid, sig); err != nil {
		return "", err
	}
	return fmt.Sprintf("Sent signal %d to process %d", num, pid), nil
}
