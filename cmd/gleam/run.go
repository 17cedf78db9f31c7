package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dushixiang/gleam/internal/scheduler"
	"github.com/dushixiang/gleam/pkg/agent/service"
)

func runCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.HTTP.Enabled = true
				cfg.HTTP.Listen = listen
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return service.RunForeground(cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "serve the status API on this address")
	return cmd
}

func watchCommand() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a status line every refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := service.New(ctx, cfg, zap.NewNop())
			ticker := time.NewTicker(cfg.RefreshInterval())
			defer ticker.Stop()

			for i := 0; count <= 0 || i < count; i++ {
				a.Monitor.Tick(ctx)
				if state := a.Monitor.State(); state != nil {
					line, err := scheduler.RenderReport(cfg.Report.Template, state)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), line)
					for _, al := range state.Alerts {
						fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s\n", al.Level, al.Message)
					}
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "stop after n samples (0 runs until interrupted)")
	return cmd
}

// sampleContext is used by one-shot commands that need two samples for rate values.
func sampleContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
