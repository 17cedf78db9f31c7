package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-errors/errors"
	"go.uber.org/zap"

	"github.com/dushixiang/gleam/internal/process"
	"github.com/dushixiang/gleam/internal/protocol"
)

// ProcessSource lists the current process table.
type ProcessSource interface {
	Collect(ctx context.Context) ([]protocol.ProcessData, error)
}

// KillMode selects how KillAsync terminates a process.
type KillMode int

const (
	KillSmart KillMode = iota
	KillForce
	KillTerminate
)

// ProcessService builds the process tree and runs termination off the refresh loop.
type ProcessService struct {
	logger     *zap.Logger
	source     ProcessSource
	resolver   process.PPIDResolver
	controller *process.Controller
	board      *StatusBoard

	mu        sync.Mutex
	collapsed map[uint32]bool
	wg        sync.WaitGroup
}

// NewProcessService builds a service that posts kill and collapse outcomes to board.
func NewProcessService(logger *zap.Logger, source ProcessSource, resolver process.PPIDResolver, controller *process.Controller, board *StatusBoard) *ProcessService {
	return &ProcessService{
		logger:     logger,
		source:     source,
		resolver:   resolver,
		controller: controller,
		board:      board,
		collapsed:  make(map[uint32]bool),
	}
}

// List returns the process table filtered by query and ordered by mode.
func (s *ProcessService) List(ctx context.Context, query string, mode process.SortMode) ([]protocol.ProcessData, error) {
	procs, err := s.source.Collect(ctx)
	if err != nil {
		return nil, err
	}
	procs = process.Filter(procs, query)
	process.Sort(procs, mode)
	return procs, nil
}

// Tree rebuilds the process tree from a fresh table.
func (s *ProcessService) Tree(ctx context.Context) (*process.Tree, error) {
	procs, err := s.source.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return process.Build(procs, s.resolver), nil
}

// RenderOrder returns the rows of tree honoring the collapse state.
func (s *ProcessService) RenderOrder(tree *process.Tree) []process.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tree.RenderOrder(s.collapsed)
}

// ToggleCollapse flips the collapse state of pid. Leaves are ignored.
func (s *ProcessService) ToggleCollapse(tree *process.Tree, pid uint32) {
	node, ok := tree.Node(pid)
	if !ok || len(node.Children) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collapsed[pid] {
		delete(s.collapsed, pid)
		s.board.Post(fmt.Sprintf("Expanded process %d", pid))
	} else {
		s.collapsed[pid] = true
		s.board.Post(fmt.Sprintf("Collapsed process %d", pid))
	}
}

// Kill runs mode synchronously and returns the status line.
func (s *ProcessService) Kill(ctx context.Context, pid uint32, mode KillMode) (string, error) {
	switch mode {
	case KillForce:
		return s.controller.ForceKill(pid)
	case KillTerminate:
		return s.controller.Terminate(pid)
	default:
		return s.controller.SmartKill(ctx, pid)
	}
}

// KillAsync runs mode on its own goroutine and posts the outcome to the status board.
// A panic inside the controller is logged and reported as a failure.
func (s *ProcessService) KillAsync(pid uint32, mode KillMode) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic while terminating process",
					zap.Uint32("pid", pid),
					zap.String("stack", errors.Wrap(r, 2).ErrorStack()),
				)
				s.board.Post(failureMessage(pid, mode, fmt.Errorf("%v", r)))
			}
		}()

		msg, err := s.Kill(context.Background(), pid, mode)
		if err != nil {
			s.logger.Warn("process termination failed", zap.Uint32("pid", pid), zap.Error(err))
			msg = failureMessage(pid, mode, err)
		}
		s.board.Post(msg)
	}()
}

func failureMessage(pid uint32, mode KillMode, err error) string {
	verb := "kill"
	if mode == KillTerminate {
		verb = "terminate"
	}
	return fmt.Sprintf("Failed to %s process %d: %v", verb, pid, err)
}

// Signal sends a numbered signal and posts the outcome.
func (s *ProcessService) Signal(pid uint32, num int) (string, error) {
	msg, err := s.controller.SendSignal(pid, num)
	if err != nil {
		s.board.Post(fmt.Sprintf("Failed to send signal %d to process %d: %v", num, pid, err))
		return "", err
	}
	s.board.Post(msg)
	return msg, nil
}

// Wait blocks until pending KillAsync calls finish.
func (s *ProcessService) Wait() {
	s.wg.Wait()
}
