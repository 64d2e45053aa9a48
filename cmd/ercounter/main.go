package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "github.com/rollkit/ephemeral-counter/cmd/ercounter/commands"
)

func main() {
	rootCmd := cmd.NewRootCmd()

	// Prepare the base command and execute
	executor := cli.PrepareBaseCmd(rootCmd, "ERC", os.ExpandEnv(filepath.Join("$HOME", ".ercounter")))
	if err := executor.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
