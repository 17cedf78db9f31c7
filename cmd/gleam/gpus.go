package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dushixiang/gleam/internal/gpu"
	"github.com/dushixiang/gleam/pkg/agent/service"
)

func gpusCommand() *cobra.Command {
	var showProcesses bool
	cmd := &cobra.Command{
		Use:   "gpus",
		Short: "Discover GPUs and print one snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			manager := gpu.Discover(cmd.Context(), service.GPUOptions(cfg, zap.NewNop()))
			snapshot := manager.Snapshot()
			if len(snapshot) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No GPUs detected.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tVENDOR\tNAME\tTEMP\tUTIL\tMEMORY\tPOWER\tCLOCK\tMEM CLOCK\tFAN\tEFFICIENCY")
			for _, g := range snapshot {
				memory := "-"
				if g.MemoryUsed != nil && g.MemoryTotal != nil {
					memory = fmt.Sprintf("%s / %s", humanize.IBytes(*g.MemoryUsed), humanize.IBytes(*g.MemoryTotal))
					if pct := g.MemoryUsagePercent(); pct != nil {
						memory += fmt.Sprintf(" (%.0f%%)", *pct)
					}
				}
				power := orDash(g.PowerDraw, "%.1f W")
				if g.PowerLimit != nil {
					power += fmt.Sprintf(" / %.0f W", *g.PowerLimit)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					g.ID,
					g.Vendor,
					g.Name,
					orDash(g.Temperature, "%.0f°C"),
					orDash(g.Utilization, "%.0f%%"),
					memory,
					power,
					orDash(g.ClockSpeed, "%d MHz"),
					orDash(g.MemoryClock, "%d MHz"),
					orDash(g.FanSpeed, "%d%%"),
					orDash(g.PowerEfficiency, "%.2f %%/W"),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if !showProcesses {
				return nil
			}
			for _, g := range snapshot {
				if len(g.Processes) == 0 {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nGPU %d processes:\n", g.ID)
				pw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
				fmt.Fprintln(pw, "PID\tNAME\tMEMORY")
				for _, p := range g.Processes {
					fmt.Fprintf(pw, "%d\t%s\t%s\n", p.PID, p.Name, humanize.IBytes(p.MemoryUsed))
				}
				if err := pw.Flush(); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showProcesses, "processes", "p", false, "list processes using each GPU")
	return cmd
}

func orDash[T any](v *T, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
