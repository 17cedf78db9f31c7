package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dushixiang/gleam/internal/config"
	"github.com/dushixiang/gleam/pkg/agent/service"
)

func serviceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control gleam as a system service",
	}

	actions := []struct {
		use   string
		short string
		run   func(m *service.ServiceManager) error
	}{
		{"install", "Install the service", (*service.ServiceManager).Install},
		{"uninstall", "Stop and remove the service", (*service.ServiceManager).Uninstall},
		{"start", "Start the service", (*service.ServiceManager).Start},
		{"stop", "Stop the service", (*service.ServiceManager).Stop},
		{"restart", "Restart the service", (*service.ServiceManager).Restart},
		{"run", "Run under the service manager", (*service.ServiceManager).Run},
	}
	for _, a := range actions {
		cmd.AddCommand(&cobra.Command{
			Use:   a.use,
			Short: a.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := serviceManager(cmd)
				if err != nil {
					return err
				}
				return a.run(m)
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the service status",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := serviceManager(cmd)
			if err != nil {
				return err
			}
			status, err := m.Status()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	})
	return cmd
}

// serviceManager loads the config, saving defaults first so the service has a file to read.
func serviceManager(cmd *cobra.Command) (*service.ServiceManager, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cmd.Name() == "install" {
		if err := config.NewLoader(nil).Save(cfg); err != nil {
			return nil, err
		}
	}
	return service.NewServiceManager(cfg)
}
