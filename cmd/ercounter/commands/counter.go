package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/crypto/ed25519"

	"github.com/rollkit/ephemeral-counter/config"
	"github.com/rollkit/ephemeral-counter/instruction"
	"github.com/rollkit/ephemeral-counter/rpc/client"
	"github.com/rollkit/ephemeral-counter/runtime"
	"github.com/rollkit/ephemeral-counter/types"
)

const (
	flagNode  = "node"
	flagLayer = "layer"
)

// NewCounterCmd returns the client commands driving a counter on a node.
func NewCounterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Send counter instructions to a node",
	}
	cmd.PersistentFlags().String(flagNode, config.DefaultRPCListenAddress, "RPC address of the node")
	cmd.PersistentFlags().String(flagKey, "", "key file path (default <home>/config/key.json)")

	increase := txCmd("increase [amount]", "Increase the counter", runtime.BaseLayer, cobra.ExactArgs(1),
		func(program, owner types.Pubkey, args []string) (types.Instruction, error) {
			by, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return types.Instruction{}, fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			return instruction.NewIncreaseCounter(program, owner, by)
		})
	increase.Flags().String(flagLayer, runtime.BaseLayer.String(), "layer to execute on (base or rollup)")

	cmd.AddCommand(
		txCmd("init", "Create the counter of the key owner, or reset it to zero", runtime.BaseLayer, cobra.NoArgs, noArgs(instruction.NewInitializeCounter)),
		increase,
		txCmd("delegate", "Delegate the counter to the rollup", runtime.BaseLayer, cobra.NoArgs, noArgs(instruction.NewDelegate)),
		txCmd("commit", "Commit the rollup state of the counter to the base layer", runtime.RollupLayer, cobra.NoArgs, noArgs(instruction.NewCommit)),
		txCmd("commit-undelegate", "Commit the counter and return it to the base layer", runtime.RollupLayer, cobra.NoArgs, noArgs(instruction.NewCommitAndUndelegate)),
		getCounterCmd(),
		airdropCmd(),
		pendingCmd(),
	)
	return cmd
}

type buildFunc func(program, owner types.Pubkey, args []string) (types.Instruction, error)

func noArgs(f func(program, owner types.Pubkey) (types.Instruction, error)) buildFunc {
	return func(program, owner types.Pubkey, _ []string) (types.Instruction, error) {
		return f(program, owner)
	}
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	remote, _ := cmd.Flags().GetString(flagNode)
	return client.New(remote)
}

func signingKey(cmd *cobra.Command) (ed25519.PrivKey, error) {
	path, _ := cmd.Flags().GetString(flagKey)
	if path == "" {
		path = defaultKeyPath()
	}
	return loadKey(path)
}

func layerFlag(cmd *cobra.Command, def runtime.Layer) (runtime.Layer, error) {
	if cmd.Flags().Lookup(flagLayer) == nil {
		return def, nil
	}
	s, _ := cmd.Flags().GetString(flagLayer)
	return runtime.ParseLayer(s)
}

// txCmd builds a command that signs the instruction returned by build with
// the key file and sends it to defLayer, or to the layer flag when the
// command has one.
func txCmd(use, short string, defLayer runtime.Layer, args cobra.PositionalArgs, build buildFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			priv, err := signingKey(cmd)
			if err != nil {
				return err
			}
			layer, err := layerFlag(cmd, defLayer)
			if err != nil {
				return err
			}
			health, err := c.Health(ctx)
			if err != nil {
				return err
			}

			ix, err := build(health.Program, types.PubkeyOf(priv), args)
			if err != nil {
				return err
			}
			tx := &types.Transaction{Instruction: ix}
			if err := tx.Sign(priv); err != nil {
				return err
			}
			sig, err := c.SendTransaction(ctx, layer, tx)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"layer":     layer.String(),
				"signature": sig,
			})
		},
	}
}

func getCounterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [owner]",
		Short: "Show the counter of owner, or of the key owner",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			owner, err := ownerArg(cmd, args)
			if err != nil {
				return err
			}
			layer, err := layerFlag(cmd, runtime.BaseLayer)
			if err != nil {
				return err
			}
			res, err := c.GetCounter(context.Background(), layer, owner)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String(flagLayer, runtime.BaseLayer.String(), "layer to read from (base or rollup)")
	return cmd
}

func airdropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "airdrop [lamports] [pubkey]",
		Short: "Request lamports on the base layer for pubkey, or for the key owner",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lamports, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid lamports %q: %w", args[0], err)
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			to, err := ownerArg(cmd, args[1:])
			if err != nil {
				return err
			}
			res, err := c.RequestAirdrop(context.Background(), to, lamports)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List commits not yet applied to the base layer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.PendingCommits(context.Background())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

// ownerArg parses the optional pubkey argument and falls back to the key file.
func ownerArg(cmd *cobra.Command, args []string) (types.Pubkey, error) {
	if len(args) > 0 {
		return types.PubkeyFromBase58(args[0])
	}
	priv, err := signingKey(cmd)
	if err != nil {
		return types.Pubkey{}, err
	}
	return types.PubkeyOf(priv), nil
}
