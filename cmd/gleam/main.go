package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dushixiang/gleam/internal/config"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gleam",
		Short: "Hardware monitor with GPU telemetry, trend forecasts and alerts",
		Long: `gleam samples CPU, memory, swap and GPU telemetry from NVIDIA, AMD and Intel
devices, keeps a rolling history, forecasts where each metric is heading and
raises rate-limited alerts when thresholds are crossed.

Quick start:
  gleam config init        # write the default configuration
  gleam run                # monitor in the foreground
  gleam gpus               # one GPU snapshot
  gleam tree               # process tree with aggregated usage
  gleam kill 1234          # SIGTERM, escalating to SIGKILL after 3s`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringP("config", "c", "", "config file (default is the user config dir)")

	cmd.AddCommand(runCommand())
	cmd.AddCommand(watchCommand())
	cmd.AddCommand(serviceCommand())
	cmd.AddCommand(gpusCommand())
	cmd.AddCommand(psCommand())
	cmd.AddCommand(treeCommand())
	cmd.AddCommand(killCommand())
	cmd.AddCommand(exportCommand())
	cmd.AddCommand(configCommand())
	return cmd
}

// loadConfig reads the file named by --config, falling back to defaults when it is missing.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.NewLoader(nil).Load(path)
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
