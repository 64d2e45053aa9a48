package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/rollkit/ephemeral-counter/config"
	"github.com/rollkit/ephemeral-counter/node"
	rpcjson "github.com/rollkit/ephemeral-counter/rpc/json"
)

func TestParseFlags(t *testing.T) {
	flags := []string{
		"--home", "/tmp/ercounter",
		"--ercounter.db_path", "base-data",
		"--ercounter.rollup_db_path", "/var/rollup",
		"--ercounter.in_memory",
		"--ercounter.commit_interval", "250ms",
		"--ercounter.commit_queue_size", "64",
		"--log_level", "debug",
		"--rpc.laddr", "tcp://127.0.0.1:27007",
		"--rpc.max_open_connections", "10",
		"--rpc.cors_allowed_origins", "*",
		"--instrumentation.prometheus",
		"--instrumentation.prometheus_listen_addr", ":26661",
	}

	cmd := NewStartCmd()
	cmd.Flags().String("home", "", "")
	require.NoError(t, cmd.ParseFlags(append([]string{"start"}, flags...)))

	conf, err := parseConfig(cmd, viper.New())
	require.NoError(t, err)

	testCases := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"RootDir", conf.RootDir, "/tmp/ercounter"},
		{"DBPath", conf.DBPath, "base-data"},
		{"RollupDBPath", conf.RollupDBPath, "/var/rollup"},
		{"InMemory", conf.InMemory, true},
		{"ProgramID", conf.ProgramID, config.DefaultProgramID},
		{"CommitInterval", conf.CommitInterval, 250 * time.Millisecond},
		{"CommitQueueSize", conf.CommitQueueSize, 64},
		{"LogLevel", conf.LogLevel, "debug"},
		{"RPCListenAddress", conf.RPC.ListenAddress, "tcp://127.0.0.1:27007"},
		{"RPCMaxOpenConnections", conf.RPC.MaxOpenConnections, 10},
		{"CORSAllowedOrigins", conf.RPC.CORSAllowedOrigins, []string{"*"}},
		{"Prometheus", conf.Instrumentation.Prometheus, true},
		{"PrometheusListenAddr", conf.Instrumentation.PrometheusListenAddr, ":26661"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.got)
		})
	}
}

func TestParseFlagsInvalid(t *testing.T) {
	cmd := NewStartCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--ercounter.program_id", "not-base58-0OIl"}))
	_, err := parseConfig(cmd, viper.New())
	assert.Error(t, err)
}

func execute(args ...string) (string, error) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestKeys(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "config", "key.json")
	out, err := execute("keys", "generate", "--output", path)
	require.NoError(err)
	assert.Contains(out, path)

	shown, err := execute("keys", "show", "--key", path)
	require.NoError(err)
	pub := strings.TrimSpace(shown)
	assert.Contains(out, pub)

	priv, err := loadKey(path)
	require.NoError(err)
	assert.Len(priv.Bytes(), 64)

	_, err = execute("keys", "generate", "--output", path)
	assert.Error(err)
	_, err = execute("keys", "generate", "--output", path, "--force")
	assert.NoError(err)
}

func TestVersion(t *testing.T) {
	out, err := execute("version")
	require.NoError(t, err)
	assert.Contains(t, out, config.Version)
}

func TestCounterCommands(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	conf := config.DefaultNodeConfig()
	conf.InMemory = true
	conf.CommitInterval = 10 * time.Millisecond
	n, err := node.NewNode(context.Background(), conf, log.TestingLogger())
	require.NoError(err)
	require.NoError(n.Start())
	defer func() {
		assert.NoError(n.Stop())
	}()
	handler, err := rpcjson.GetHTTPHandler(n, log.TestingLogger())
	require.NoError(err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	key := filepath.Join(t.TempDir(), "key.json")
	_, err = execute("keys", "generate", "--output", key)
	require.NoError(err)
	counter := func(args ...string) (string, error) {
		return execute(append([]string{"counter", "--node", srv.URL, "--key", key}, args...)...)
	}

	_, err = counter("airdrop", "1000000000")
	require.NoError(err)
	for _, args := range [][]string{
		{"init"},
		{"delegate"},
		{"increase", "7", "--layer", "rollup"},
		{"increase", "8", "--layer", "rollup"},
	} {
		out, err := counter(args...)
		require.NoError(err, args)
		assert.Contains(out, "signature")
	}

	readCounter := func(layer string) (rpcjson.ResultCounter, error) {
		var res rpcjson.ResultCounter
		out, err := counter("get", "--layer", layer)
		if err != nil {
			return res, err
		}
		return res, json.Unmarshal([]byte(out), &res)
	}
	getCounter := func(layer string) rpcjson.ResultCounter {
		res, err := readCounter(layer)
		require.NoError(err)
		return res
	}
	assert.Equal(uint64(15), getCounter("rollup").Count)
	base := getCounter("base")
	assert.Zero(base.Count)
	assert.True(base.Delegated)

	// a delegated counter is frozen on the base layer
	_, err = counter("increase", "1")
	assert.Error(err)

	_, err = counter("commit-undelegate")
	require.NoError(err)
	require.Eventually(func() bool {
		res, err := readCounter("base")
		return err == nil && !res.Delegated
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(uint64(15), getCounter("base").Count)

	out, err := counter("pending")
	require.NoError(err)
	assert.Equal("[]", strings.TrimSpace(out))

	_, err = counter("increase", "not-a-number")
	assert.Error(err)
}
