package config

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rollkit/ephemeral-counter/store"
	"github.com/rollkit/ephemeral-counter/types"
)

const (
	FlagDBPath          = "ercounter.db_path"
	FlagRollupDBPath    = "ercounter.rollup_db_path"
	FlagInMemory        = "ercounter.in_memory"
	FlagDBBackend       = "ercounter.db_backend"
	FlagCacheSize       = "ercounter.account_cache_size"
	FlagProgramID       = "ercounter.program_id"
	FlagCommitInterval  = "ercounter.commit_interval"
	FlagCommitQueueSize = "ercounter.commit_queue_size"
	FlagLogLevel        = "log_level"

	FlagRPCListenAddress   = "rpc.laddr"
	FlagRPCMaxOpenConns    = "rpc.max_open_connections"
	FlagRPCCORSOrigins     = "rpc.cors_allowed_origins"
	FlagPrometheus         = "instrumentation.prometheus"
	FlagPrometheusAddr     = "instrumentation.prometheus_listen_addr"
	FlagMetricsNamespace   = "instrumentation.namespace"
	FlagPrometheusMaxConns = "instrumentation.max_open_connections"
)

// NodeConfig stores ercounter node configuration.
type NodeConfig struct {
	RootDir string `mapstructure:"home"`
	// DBPath is the base layer ledger directory, relative to RootDir.
	DBPath string `mapstructure:"db_path"`
	// RollupDBPath is the rollup ledger directory, relative to RootDir.
	RollupDBPath string `mapstructure:"rollup_db_path"`
	// InMemory keeps both ledgers in memory.
	InMemory bool `mapstructure:"in_memory"`
	// DBBackend selects the base layer store: badger or goleveldb.
	DBBackend string `mapstructure:"db_backend"`
	// AccountCacheSize is the number of base layer accounts kept in memory, 0 disables the cache.
	AccountCacheSize int `mapstructure:"account_cache_size"`
	// ProgramID is the base58 id the counter program is hosted under.
	ProgramID string `mapstructure:"program_id"`
	// CommitInterval defines how often queued commits are written to the base layer.
	CommitInterval time.Duration `mapstructure:"commit_interval"`
	// CommitQueueSize bounds pending commits, 0 = unlimited.
	CommitQueueSize int    `mapstructure:"commit_queue_size"`
	LogLevel        string `mapstructure:"log_level"`

	RPC             RPCConfig              `mapstructure:"rpc"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// Program returns the parsed ProgramID.
func (nc *NodeConfig) Program() (types.Pubkey, error) {
	pk, err := types.PubkeyFromBase58(nc.ProgramID)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("invalid program id %q: %w", nc.ProgramID, err)
	}
	return pk, nil
}

// ValidateBasic performs basic validation and returns an error if any check fails.
func (nc *NodeConfig) ValidateBasic() error {
	if _, err := nc.Program(); err != nil {
		return err
	}
	if nc.CommitInterval <= 0 {
		return fmt.Errorf("commit_interval must be positive, got %s", nc.CommitInterval)
	}
	switch nc.DBBackend {
	case "", store.BadgerBackend, store.LevelDBBackend:
	default:
		return fmt.Errorf("unsupported db_backend %q", nc.DBBackend)
	}
	if nc.AccountCacheSize < 0 {
		return fmt.Errorf("account_cache_size can't be negative")
	}
	if nc.CommitQueueSize < 0 {
		return fmt.Errorf("commit_queue_size can't be negative")
	}
	if nc.RPC.MaxOpenConnections < 0 {
		return fmt.Errorf("rpc.max_open_connections can't be negative")
	}
	if nc.Instrumentation != nil {
		return nc.Instrumentation.ValidateBasic()
	}
	return nil
}

// GetViperConfig reads configuration parameters from Viper instance.
func (nc *NodeConfig) GetViperConfig(v *viper.Viper) error {
	if home := v.GetString("home"); home != "" {
		nc.RootDir = home
	}
	nc.DBPath = v.GetString(FlagDBPath)
	nc.RollupDBPath = v.GetString(FlagRollupDBPath)
	nc.InMemory = v.GetBool(FlagInMemory)
	nc.DBBackend = v.GetString(FlagDBBackend)
	nc.AccountCacheSize = v.GetInt(FlagCacheSize)
	nc.ProgramID = v.GetString(FlagProgramID)
	nc.CommitInterval = v.GetDuration(FlagCommitInterval)
	nc.CommitQueueSize = v.GetInt(FlagCommitQueueSize)
	nc.LogLevel = v.GetString(FlagLogLevel)

	nc.RPC.ListenAddress = v.GetString(FlagRPCListenAddress)
	nc.RPC.MaxOpenConnections = v.GetInt(FlagRPCMaxOpenConns)
	nc.RPC.CORSAllowedOrigins = v.GetStringSlice(FlagRPCCORSOrigins)

	if nc.Instrumentation == nil {
		nc.Instrumentation = DefaultInstrumentationConfig()
	}
	nc.Instrumentation.Prometheus = v.GetBool(FlagPrometheus)
	nc.Instrumentation.PrometheusListenAddr = v.GetString(FlagPrometheusAddr)
	nc.Instrumentation.Namespace = v.GetString(FlagMetricsNamespace)
	nc.Instrumentation.MaxOpenConnections = v.GetInt(FlagPrometheusMaxConns)
	return nil
}

// AddFlags adds ercounter node configuration options to cobra Command.
func AddFlags(cmd *cobra.Command) {
	def := DefaultNodeConfig()
	cmd.Flags().String(FlagDBPath, def.DBPath, "base layer ledger directory, relative to home")
	cmd.Flags().String(FlagRollupDBPath, def.RollupDBPath, "rollup ledger directory, relative to home")
	cmd.Flags().Bool(FlagInMemory, def.InMemory, "keep both ledgers in memory")
	cmd.Flags().String(FlagDBBackend, def.DBBackend, "base layer store backend (badger, goleveldb)")
	cmd.Flags().Int(FlagCacheSize, def.AccountCacheSize, "number of base layer accounts cached in memory (0 disables the cache)")
	cmd.Flags().String(FlagProgramID, def.ProgramID, "id of the counter program (base58)")
	cmd.Flags().Duration(FlagCommitInterval, def.CommitInterval, "how often queued commits are written to the base layer")
	cmd.Flags().Int(FlagCommitQueueSize, def.CommitQueueSize, "maximum number of pending commits (0 = unlimited)")
	cmd.Flags().String(FlagLogLevel, def.LogLevel, "log level (debug, info, error, none)")

	cmd.Flags().String(FlagRPCListenAddress, def.RPC.ListenAddress, "RPC listen address, tcp://host:port (empty disables RPC)")
	cmd.Flags().Int(FlagRPCMaxOpenConns, def.RPC.MaxOpenConnections, "maximum number of simultaneous RPC connections (0 = unlimited)")
	cmd.Flags().StringSlice(FlagRPCCORSOrigins, def.RPC.CORSAllowedOrigins, "origins allowed for cross-domain RPC requests")

	cmd.Flags().Bool(FlagPrometheus, def.Instrumentation.Prometheus, "serve Prometheus metrics")
	cmd.Flags().String(FlagPrometheusAddr, def.Instrumentation.PrometheusListenAddr, "Prometheus listen address")
	cmd.Flags().String(FlagMetricsNamespace, def.Instrumentation.Namespace, "metrics namespace")
	cmd.Flags().Int(FlagPrometheusMaxConns, def.Instrumentation.MaxOpenConnections, "maximum number of simultaneous Prometheus connections")
}
