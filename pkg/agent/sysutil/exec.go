package sysutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Runner runs an external helper and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// CommandExecutor runs helper binaries with a deadline.
type CommandExecutor struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewCommandExecutor creates an executor that kills commands running longer than timeout.
func NewCommandExecutor(logger *zap.Logger, timeout time.Duration) *CommandExecutor {
	return &CommandExecutor{
		timeout: timeout,
		logger:  logger,
	}
}

// Run executes name with args. A missing binary is reported as exec.ErrNotFound.
func (ce *CommandExecutor) Run(ctx context.Context, name string, args ...string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, ce.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			ce.logger.Warn("command timed out", zap.String("cmd", name), zap.Strings("args", args), zap.Duration("timeout", ce.timeout))
			return "", fmt.Errorf("command timed out after %v: %s", ce.timeout, name)
		}
		if stderr.Len() > 0 {
			ce.logger.Debug("command failed", zap.String("cmd", name), zap.Strings("args", args), zap.String("stderr", stderr.String()))
		}
		return stdout.String(), err
	}

	return stdout.String(), nil
}
