package defaults

import (
	"github.com/netrixframework/smscsim/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func DefaultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the default configuration as yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(config.Default())
		},
	}
}
