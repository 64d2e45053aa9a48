package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rollkit/ephemeral-counter/config"
	"github.com/rollkit/ephemeral-counter/node"
	ercos "github.com/rollkit/ephemeral-counter/pkg/os"
	"github.com/rollkit/ephemeral-counter/rpc"
)

// NewStartCmd returns the command that runs a node.
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the counter node",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := parseConfig(cmd, viper.GetViper())
			if err != nil {
				return err
			}

			logger, err := newLogger(conf.LogLevel, os.Stdout)
			if err != nil {
				return fmt.Errorf("failed to parse log level: %w", err)
			}

			if !conf.InMemory && conf.RootDir != "" {
				if err := ercos.EnsureDir(conf.RootDir, 0o700); err != nil {
					return err
				}
			}

			n, err := node.NewNode(context.Background(), conf, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}
			if err := n.Start(); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}

			server := rpc.NewServer(n, &conf.RPC, logger.With("module", "rpc"))
			if err := server.Start(); err != nil {
				if stopErr := n.Stop(); stopErr != nil {
					logger.Error("unable to stop the node", "error", stopErr)
				}
				return err
			}
			logger.Info("Started node", "program", n.Program(), "rpc", conf.RPC.ListenAddress)

			// Stop upon receiving SIGTERM or CTRL-C.
			ercos.TrapSignal(logger, func() {
				if server.IsRunning() {
					if err := server.Stop(); err != nil {
						logger.Error("unable to stop the RPC server", "error", err)
					}
				}
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "error", err)
					}
				}
			})
			// Run forever.
			select {}
		},
	}

	config.AddFlags(cmd)
	return cmd
}

// parseConfig reads the node configuration from the flags of cmd and the
// config file loaded into v.
func parseConfig(cmd *cobra.Command, v *viper.Viper) (config.NodeConfig, error) {
	conf := config.DefaultNodeConfig()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return conf, err
	}
	if err := conf.GetViperConfig(v); err != nil {
		return conf, err
	}
	return conf, conf.ValidateBasic()
}
