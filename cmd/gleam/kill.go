package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dushixiang/gleam/internal/process"
)

func killCommand() *cobra.Command {
	var (
		force     bool
		terminate bool
		signalNum int
	)
	cmd := &cobra.Command{
		Use:   "kill <pid>",
		Short: "Terminate a process, escalating from SIGTERM to SIGKILL",
		Long: `Without flags, kill sends SIGTERM, waits 3 seconds and sends SIGKILL if the
process is still alive. --force sends SIGKILL only, --term sends SIGTERM only,
and --signal sends one of 1, 2, 9, 10, 12, 15, 18 or 19.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			c := process.NewController(zap.NewNop())

			var msg string
			switch {
			case signalNum != 0:
				msg, err = c.SendSignal(uint32(pid), signalNum)
			case force:
				msg, err = c.ForceKill(uint32(pid))
			case terminate:
				msg, err = c.Terminate(uint32(pid))
			default:
				msg, err = c.SmartKill(cmd.Context(), uint32(pid))
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "send SIGKILL without waiting")
	cmd.Flags().BoolVar(&terminate, "term", false, "send SIGTERM without escalation")
	cmd.Flags().IntVar(&signalNum, "signal", 0, "send this signal number instead")
	cmd.MarkFlagsMutuallyExclusive("force", "term", "signal")
	return cmd
}
