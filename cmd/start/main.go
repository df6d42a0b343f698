package start

import (
	goctx "context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/netrixframework/smscsim/apiserver"
	"github.com/netrixframework/smscsim/config"
	"github.com/netrixframework/smscsim/context"
	"github.com/netrixframework/smscsim/dispatcher"
	"github.com/netrixframework/smscsim/log"
	"github.com/netrixframework/smscsim/smsc"
	"github.com/spf13/cobra"
)

func StartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the simulator and its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			termCtx, stopSignals := signal.NotifyContext(goctx.Background(), os.Interrupt, syscall.SIGTERM)
			defer stopSignals()

			conf := config.Default()
			if config.ConfigPath != "" {
				var err error
				conf, err = config.ParseConfig(config.ConfigPath)
				if err != nil {
					return fmt.Errorf("failed to parse config: %s", err)
				}
			}
			log.Init(conf.LogConfig)
			defer log.Destroy()

			ctx, err := context.NewRootContext(conf, log.DefaultLogger)
			if err != nil {
				return err
			}
			disp := dispatcher.NewDispatcher(conf.Delivery, ctx.Logger)
			sim := smsc.New(ctx, disp)
			server := apiserver.NewAPIServer(ctx, sim, disp)

			if err := sim.Start(); err != nil {
				ctx.Stop()
				return fmt.Errorf("failed to start smsc: %s", err)
			}
			errCh := server.Start()

			select {
			case <-termCtx.Done():
			case err = <-errCh:
			}
			server.Stop()
			sim.Stop()
			ctx.Stop()
			return err
		},
	}
}
