package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dushixiang/gleam/internal/process"
	"github.com/dushixiang/gleam/internal/protocol"
	"github.com/dushixiang/gleam/pkg/agent/collector"
)

// cpuWarmup separates the two reads gopsutil needs for a cpu percentage.
const cpuWarmup = time.Second

func collectProcesses(ctx context.Context) ([]protocol.ProcessData, error) {
	c := collector.NewProcessCollector(zap.NewNop())
	if _, err := c.Collect(ctx); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(cpuWarmup):
	}
	return c.Collect(ctx)
}

func psCommand() *cobra.Command {
	var (
		sortBy string
		filter string
		top    int
	)
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := process.ParseSortMode(sortBy)
			if err != nil {
				return err
			}
			if top == 0 {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				top = cfg.General.ProcessCount
			}

			ctx, stop := sampleContext(cmd)
			defer stop()
			procs, err := collectProcesses(ctx)
			if err != nil {
				return err
			}
			procs = process.Top(process.Filter(procs, filter), mode, top)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PID\tUSER\tCPU%\tMEMORY\tNAME\tCOMMAND")
			for _, p := range procs {
				fmt.Fprintf(w, "%d\t%s\t%.1f\t%s\t%s\t%s\n",
					p.PID, p.User, p.CPUUsage, humanize.IBytes(p.MemoryKB*1024), p.Name, p.Cmd)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&sortBy, "sort", "s", "cpu", "sort by cpu, memory, name or pid")
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "only show processes whose name, command or pid contains this")
	cmd.Flags().IntVarP(&top, "top", "n", 0, "number of rows (default general.process_count, -1 for all)")
	return cmd
}

func treeCommand() *cobra.Command {
	var collapse []uint
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the process tree with aggregated cpu and memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := sampleContext(cmd)
			defer stop()
			procs, err := collectProcesses(ctx)
			if err != nil {
				return err
			}
			tree := process.Build(procs, process.DefaultResolver(ctx, afero.NewOsFs()))

			collapsed := make(map[uint32]bool, len(collapse))
			for _, pid := range collapse {
				collapsed[uint32(pid)] = true
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PID\tCPU%\tTOTAL CPU%\tMEMORY\tTOTAL MEMORY\tNAME")
			for node, depth := range tree.Walk(collapsed) {
				cpu, _ := tree.AggregatedCPU(node.PID)
				mem, _ := tree.AggregatedMemory(node.PID)
				marker := ""
				if collapsed[node.PID] && len(node.Children) > 0 {
					marker = " [+]"
				}
				fmt.Fprintf(w, "%d\t%.1f\t%.1f\t%s\t%s\t%s%s%s\n",
					node.PID,
					node.Info.CPUUsage,
					cpu,
					humanize.IBytes(node.Info.MemoryKB*1024),
					humanize.IBytes(mem*1024),
					strings.Repeat("  ", depth),
					node.Info.Name,
					marker,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().UintSliceVar(&collapse, "collapse", nil, "pids whose children are hidden")
	return cmd
}
