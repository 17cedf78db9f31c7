package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dushixiang/gleam/internal/history"
	"github.com/dushixiang/gleam/internal/process"
	"github.com/dushixiang/gleam/internal/service"
)

// Monitor is the read side of service.MonitorService.
type Monitor interface {
	State() *service.State
	WithHistory(fn func(h *history.MetricsHistory))
	Pause()
	Resume()
	Paused() bool
}

// Processes is the part of service.ProcessService the API exposes.
type Processes interface {
	Tree(ctx context.Context) (*process.Tree, error)
	RenderOrder(tree *process.Tree) []process.Entry
	KillAsync(pid uint32, mode service.KillMode)
	Signal(pid uint32, num int) (string, error)
}

// Status is the status line board.
type Status interface {
	Current() (string, bool)
}

// MonitorHandler serves the live state over HTTP.
type MonitorHandler struct {
	logger    *zap.Logger
	monitor   Monitor
	processes Processes
	status    Status
	session   string
}

// NewMonitorHandler tags history dumps with session.
func NewMonitorHandler(logger *zap.Logger, monitor Monitor, processes Processes, status Status, session string) *MonitorHandler {
	return &MonitorHandler{
		logger:    logger,
		monitor:   monitor,
		processes: processes,
		status:    status,
		session:   session,
	}
}

// GetState returns the latest tick.
// GET /api/state
func (h *MonitorHandler) GetState(c echo.Context) error {
	state := h.monitor.State()
	if state == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "no sample yet",
		})
	}
	return c.JSON(http.StatusOK, state)
}

// GetHistory dumps the history buffers.
// GET /api/history?format=json|csv
func (h *MonitorHandler) GetHistory(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = history.FormatJSON
	}

	var err error
	switch format {
	case history.FormatJSON:
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c.Response().WriteHeader(http.StatusOK)
		h.monitor.WithHistory(func(hist *history.MetricsHistory) {
			err = history.WriteJSON(c.Response(), hist, h.session)
		})
	case history.FormatCSV:
		c.Response().Header().Set(echo.HeaderContentType, "text/csv")
		c.Response().WriteHeader(http.StatusOK)
		h.monitor.WithHistory(func(hist *history.MetricsHistory) {
			err = history.WriteCSV(c.Response(), hist)
		})
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "format must be json or csv",
		})
	}
	if err != nil {
		h.logger.Error("write history", zap.Error(err))
	}
	return nil
}

type treeRow struct {
	PID         uint32  `json:"pid"`
	PPID        uint32  `json:"ppid"`
	Depth       int     `json:"depth"`
	Name        string  `json:"name"`
	User        string  `json:"user"`
	CPUUsage    float64 `json:"cpuUsage"`
	MemoryKB    uint64  `json:"memoryKb"`
	TotalCPU    float64 `json:"totalCpu"`
	TotalMemory uint64  `json:"totalMemoryKb"`
	HasChildren bool    `json:"hasChildren"`
}

// GetTree returns the process tree in render order.
// GET /api/processes/tree
func (h *MonitorHandler) GetTree(c echo.Context) error {
	tree, err := h.processes.Tree(c.Request().Context())
	if err != nil {
		h.logger.Error("build process tree", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to read processes",
		})
	}

	entries := h.processes.RenderOrder(tree)
	rows := make([]treeRow, 0, len(entries))
	for _, e := range entries {
		cpu, _ := tree.AggregatedCPU(e.Node.PID)
		mem, _ := tree.AggregatedMemory(e.Node.PID)
		rows = append(rows, treeRow{
			PID:         e.Node.PID,
			PPID:        e.Node.PPID,
			Depth:       e.Depth,
			Name:        e.Node.Info.Name,
			User:        e.Node.Info.User,
			CPUUsage:    e.Node.Info.CPUUsage,
			MemoryKB:    e.Node.Info.MemoryKB,
			TotalCPU:    cpu,
			TotalMemory: mem,
			HasChildren: len(e.Node.Children) > 0,
		})
	}
	return c.JSON(http.StatusOK, rows)
}

var killModes = map[string]service.KillMode{
	"":      service.KillSmart,
	"smart": service.KillSmart,
	"force": service.KillForce,
	"term":  service.KillTerminate,
}

// Kill starts terminating a process. The outcome appears on the status line.
// mode=signal sends signal=N right away and returns the outcome.
// POST /api/processes/:pid/kill?mode=smart|force|term|signal&signal=N
func (h *MonitorHandler) Kill(c echo.Context) error {
	pid, err := strconv.ParseUint(c.Param("pid"), 10, 32)
	if err != nil || pid == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid pid",
		})
	}
	if c.QueryParam("mode") == "signal" {
		return h.signal(c, uint32(pid))
	}
	mode, ok := killModes[c.QueryParam("mode")]
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "mode must be smart, force, term or signal",
		})
	}
	h.processes.KillAsync(uint32(pid), mode)
	return c.JSON(http.StatusAccepted, map[string]any{
		"pid": pid,
	})
}

func (h *MonitorHandler) signal(c echo.Context, pid uint32) error {
	num, err := strconv.Atoi(c.QueryParam("signal"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "signal must be a number",
		})
	}
	msg, err := h.processes.Signal(pid, num)
	switch {
	case errors.Is(err, process.ErrUnsupportedSignal):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, process.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		h.logger.Warn("send signal", zap.Uint32("pid", pid), zap.Int("signal", num), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"pid":     pid,
		"message": msg,
	})
}

// GetStatus returns the current status line, empty once it expired.
// GET /api/status
func (h *MonitorHandler) GetStatus(c echo.Context) error {
	msg, _ := h.status.Current()
	return c.JSON(http.StatusOK, map[string]any{
		"message": msg,
		"paused":  h.monitor.Paused(),
	})
}

// Pause stops sampling; the last state stays published.
// POST /api/pause
func (h *MonitorHandler) Pause(c echo.Context) error {
	h.monitor.Pause()
	h.logger.Info("monitoring paused")
	return c.NoContent(http.StatusNoContent)
}

// POST /api/resume
func (h *MonitorHandler) Resume(c echo.Context) error {
	h.monitor.Resume()
	h.logger.Info("monitoring resumed")
	return c.NoContent(http.StatusNoContent)
}
