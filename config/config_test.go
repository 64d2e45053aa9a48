package config

import (
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultNodeConfigIsValid(t *testing.T) {
	cfg := DefaultNodeConfig()
	require.NoError(t, cfg.ValidateBasic())
	_, err := cfg.Program()
	require.NoError(t, err)
}

func TestValidateBasic(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*NodeConfig)
	}{
		{"bad program id", func(c *NodeConfig) { c.ProgramID = "not-base58-0OIl" }},
		{"zero commit interval", func(c *NodeConfig) { c.CommitInterval = 0 }},
		{"unknown db backend", func(c *NodeConfig) { c.DBBackend = "rocksdb" }},
		{"negative cache size", func(c *NodeConfig) { c.AccountCacheSize = -1 }},
		{"negative queue size", func(c *NodeConfig) { c.CommitQueueSize = -1 }},
		{"negative rpc connections", func(c *NodeConfig) { c.RPC.MaxOpenConnections = -1 }},
		{"negative prometheus connections", func(c *NodeConfig) { c.Instrumentation.MaxOpenConnections = -1 }},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			cfg := DefaultNodeConfig()
			c.mutate(&cfg)
			assert.Error(t, cfg.ValidateBasic())
		})
	}
}

func TestViperAndCobra(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	cmd := &cobra.Command{}
	AddFlags(cmd)

	v := viper.New()
	require.NoError(v.BindPFlags(cmd.Flags()))

	require.NoError(cmd.Flags().Set(FlagCommitInterval, "250ms"))
	require.NoError(cmd.Flags().Set(FlagInMemory, "true"))
	require.NoError(cmd.Flags().Set(FlagDBBackend, "goleveldb"))
	require.NoError(cmd.Flags().Set(FlagRPCListenAddress, "tcp://0.0.0.0:9000"))
	require.NoError(cmd.Flags().Set(FlagPrometheus, "true"))
	v.Set("home", "/tmp/ercounter")

	nc := DefaultNodeConfig()
	require.NoError(nc.GetViperConfig(v))

	assert.Equal("/tmp/ercounter", nc.RootDir)
	assert.Equal(250*time.Millisecond, nc.CommitInterval)
	assert.True(nc.InMemory)
	assert.Equal("tcp://0.0.0.0:9000", nc.RPC.ListenAddress)
	assert.True(nc.Instrumentation.Prometheus)
	assert.Equal(DefaultProgramID, nc.ProgramID)
	assert.Equal("data", nc.DBPath)
	assert.Equal("goleveldb", nc.DBBackend)
	assert.Equal(1024, nc.AccountCacheSize)
}

func TestUnmarshalFromViper(t *testing.T) {
	v := viper.New()
	v.Set("home", "~/custom-root")
	v.Set("commit_interval", "5s")
	v.Set("rpc.laddr", "tcp://localhost:1234")

	var nc NodeConfig
	err := v.Unmarshal(&nc, func(c *mapstructure.DecoderConfig) {
		c.TagName = "mapstructure"
		c.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	require.NoError(t, err)
	assert.Equal(t, "~/custom-root", nc.RootDir)
	assert.Equal(t, 5*time.Second, nc.CommitInterval)
	assert.Equal(t, "tcp://localhost:1234", nc.RPC.ListenAddress)
}
