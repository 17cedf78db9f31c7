package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dushixiang/gleam/internal/history"
	"github.com/dushixiang/gleam/pkg/agent/service"
)

func exportCommand() *cobra.Command {
	var (
		samples int
		format  string
		dir     string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Sample for a while and write the history to CSV or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if format == "" {
				format = cfg.Report.ExportFormat
			}
			if dir == "" {
				dir = cfg.Report.ExportDir
			}
			if dir == "" {
				dir = "."
			}
			if samples <= 0 || samples > cfg.General.HistorySamples {
				samples = cfg.General.HistorySamples
			}

			ctx, stop := sampleContext(cmd)
			defer stop()

			a := service.New(ctx, cfg, zap.NewNop())
			ticker := time.NewTicker(cfg.RefreshInterval())
			defer ticker.Stop()
			for i := 0; i < samples; i++ {
				a.Monitor.Tick(ctx)
				if i == samples-1 {
					break
				}
				select {
				case <-ctx.Done():
					i = samples
				case <-ticker.C:
				}
			}

			var name string
			a.Monitor.WithHistory(func(h *history.MetricsHistory) {
				name, err = history.Export(afero.NewOsFs(), dir, format, h, uuid.NewString(), time.Now())
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "History exported to %s\n", name)
			return nil
		},
	}
	cmd.Flags().IntVarP(&samples, "samples", "n", 10, "number of samples to take (capped at general.history_samples)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "csv or json (default report.export_format)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "output directory (default report.export_dir or .)")
	return cmd
}
