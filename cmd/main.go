package cmd

import (
	"github.com/netrixframework/smscsim/cmd/defaults"
	"github.com/netrixframework/smscsim/cmd/start"
	"github.com/netrixframework/smscsim/config"
	"github.com/spf13/cobra"
)

// RootCmd returns the root cobra command of the simulator
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smscsim",
		Short: "Simulated SMS centre for testing ESME applications",
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.PersistentFlags().StringVarP(&config.ConfigPath, "config", "c", "", "Config file path (json or yaml)")
	cmd.AddCommand(start.StartCmd())
	cmd.AddCommand(defaults.DefaultsCmd())
	return cmd
}
