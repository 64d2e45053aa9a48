package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/libs/cli"
	tmjson "github.com/tendermint/tendermint/libs/json"

	ercos "github.com/rollkit/ephemeral-counter/pkg/os"
	"github.com/rollkit/ephemeral-counter/types"
)

const (
	flagOutput = "output"
	flagForce  = "force"
	flagKey    = "key"
)

// keyFile is the on-disk form of a signing key.
type keyFile struct {
	Address string         `json:"address"`
	PrivKey crypto.PrivKey `json:"priv_key"`
}

// defaultKeyPath is the key location under the home directory.
func defaultKeyPath() string {
	return filepath.Join(viper.GetString(cli.HomeFlag), "config", "key.json")
}

func saveKey(path string, priv ed25519.PrivKey, overwrite bool) error {
	bz, err := tmjson.MarshalIndent(keyFile{
		Address: types.PubkeyOf(priv).String(),
		PrivKey: priv,
	}, "", "  ")
	if err != nil {
		return err
	}
	return ercos.WriteFile(path, bz, 0o600, overwrite)
}

func loadKey(path string) (ed25519.PrivKey, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var kf keyFile
	if err := tmjson.Unmarshal(bz, &kf); err != nil {
		return nil, fmt.Errorf("failed to decode key file %s: %w", path, err)
	}
	priv, ok := kf.PrivKey.(ed25519.PrivKey)
	if !ok {
		return nil, fmt.Errorf("key file %s does not hold an ed25519 key", path)
	}
	if types.PubkeyOf(priv).String() != kf.Address {
		return nil, fmt.Errorf("key file %s: address does not match the private key", path)
	}
	return priv, nil
}

// NewKeysCmd returns a command for managing signing keys.
func NewKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage signing keys",
	}
	cmd.AddCommand(generateKeyCmd(), showKeyCmd())
	return cmd
}

func generateKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new ed25519 signing key",
		Long: `Generate a new ed25519 key and save it unencrypted.
The key file defaults to <home>/config/key.json; an existing file is only replaced with --force.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString(flagOutput)
			if path == "" {
				path = defaultKeyPath()
			}
			force, _ := cmd.Flags().GetBool(flagForce)

			priv := ed25519.GenPrivKey()
			if err := saveKey(path, priv, force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Saved key %s to %s\n", types.PubkeyOf(priv), path)
			return err
		},
	}
	cmd.Flags().String(flagOutput, "", "key file path (default <home>/config/key.json)")
	cmd.Flags().Bool(flagForce, false, "overwrite an existing key file")
	return cmd
}

func showKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the public key of a key file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString(flagKey)
			if path == "" {
				path = defaultKeyPath()
			}
			priv, err := loadKey(path)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), types.PubkeyOf(priv).String())
			return err
		},
	}
	cmd.Flags().String(flagKey, "", "key file path (default <home>/config/key.json)")
	return cmd
}
