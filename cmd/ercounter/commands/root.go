// Package commands implements the ercounter command line.
package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	tmflags "github.com/tendermint/tendermint/libs/cli/flags"
	"github.com/tendermint/tendermint/libs/log"
)

const defaultLogLevel = "info"

// NewRootCmd returns the ercounter command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ercounter",
		Short: "Counter program with delegation to an ephemeral rollup",
		Long: `
ercounter hosts a counter program on a base layer ledger and an ephemeral rollup.
A counter can be delegated to the rollup, incremented there, committed back and undelegated.
If the --home flag is not specified, ercounter stores its data and keys in "~/.ercounter".
`,
		SilenceUsage: true,
	}
	root.AddCommand(
		NewStartCmd(),
		NewKeysCmd(),
		NewCounterCmd(),
		VersionCmd,
	)
	return root
}

func newLogger(level string, w io.Writer) (log.Logger, error) {
	logger := log.NewTMLogger(log.NewSyncWriter(w))
	return tmflags.ParseLogLevel(level, logger, defaultLogLevel)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	bz, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bz))
	return err
}
