package config

import (
	"time"
)

const (
	// Version is the current ercounter version.
	Version = "0.1.0"
	// DefaultProgramID is the id the counter program is hosted under.
	DefaultProgramID = "Counter111111111111111111111111111111111111"
	// DefaultRPCListenAddress is the default JSON-RPC listen address.
	DefaultRPCListenAddress = "tcp://127.0.0.1:8899"
)

// DefaultNodeConfig returns the default values of NodeConfig.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		DBPath:           "data",
		RollupDBPath:     "rollup",
		DBBackend:        "badger",
		AccountCacheSize: 1024,
		ProgramID:        DefaultProgramID,
		CommitInterval:   time.Second,
		LogLevel:         "info",
		RPC: RPCConfig{
			ListenAddress:      DefaultRPCListenAddress,
			MaxOpenConnections: 900,
			CORSAllowedOrigins: []string{},
			CORSAllowedMethods: []string{"HEAD", "GET", "POST"},
			CORSAllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "X-Server-Time"},
		},
		Instrumentation: DefaultInstrumentationConfig(),
	}
}
