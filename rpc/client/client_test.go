package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/rollkit/ephemeral-counter/config"
	"github.com/rollkit/ephemeral-counter/instruction"
	"github.com/rollkit/ephemeral-counter/node"
	"github.com/rollkit/ephemeral-counter/rpc/json"
	"github.com/rollkit/ephemeral-counter/runtime"
	"github.com/rollkit/ephemeral-counter/types"
)

func getClient(t *testing.T) (*node.Node, *Client) {
	t.Helper()
	require := require.New(t)

	conf := config.DefaultNodeConfig()
	conf.InMemory = true
	conf.CommitInterval = 10 * time.Millisecond
	n, err := node.NewNode(context.Background(), conf, log.TestingLogger())
	require.NoError(err)
	require.NoError(n.Start())
	t.Cleanup(func() {
		require.NoError(n.Stop())
	})

	handler, err := json.GetHTTPHandler(n, log.TestingLogger())
	require.NoError(err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(err)
	return n, c
}

func TestNew(t *testing.T) {
	cases := []struct {
		remote string
		want   string
		err    bool
	}{
		{"tcp://127.0.0.1:8899", "http://127.0.0.1:8899/", false},
		{"http://localhost:8899/", "http://localhost:8899/", false},
		{"https://rpc.example.com", "https://rpc.example.com/", false},
		{"127.0.0.1:8899", "", true},
	}
	for _, c := range cases {
		t.Run(c.remote, func(t *testing.T) {
			cl, err := New(c.remote)
			if c.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.want, cl.remote)
		})
	}
}

func TestCounterOverRPC(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	n, c := getClient(t)
	program := n.Program()

	priv := ed25519.GenPrivKey()
	owner := types.PubkeyOf(priv)
	acc, err := c.RequestAirdrop(ctx, owner, 1_000_000_000)
	require.NoError(err)
	assert.Equal(uint64(1_000_000_000), acc.Lamports)

	send := func(layer runtime.Layer, ix types.Instruction, err error) {
		t.Helper()
		require.NoError(err)
		tx := &types.Transaction{Instruction: ix}
		require.NoError(tx.Sign(priv))
		sig, err := c.SendTransaction(ctx, layer, tx)
		require.NoError(err)
		assert.NotEmpty(sig)
	}

	ix, err := instruction.NewInitializeCounter(program, owner)
	send(runtime.BaseLayer, ix, err)
	ix, err = instruction.NewDelegate(program, owner)
	send(runtime.BaseLayer, ix, err)

	base, err := c.GetCounter(ctx, runtime.BaseLayer, owner)
	require.NoError(err)
	assert.True(base.Delegated)

	ix, err = instruction.NewIncreaseCounter(program, owner, 2)
	send(runtime.RollupLayer, ix, err)
	ix, err = instruction.NewIncreaseCounter(program, owner, 40)
	send(runtime.RollupLayer, ix, err)
	ix, err = instruction.NewCommitAndUndelegate(program, owner)
	send(runtime.RollupLayer, ix, err)

	require.Eventually(func() bool {
		pending, err := c.PendingCommits(ctx)
		if err != nil || len(pending) != 0 {
			return false
		}
		base, err = c.GetCounter(ctx, runtime.BaseLayer, owner)
		return err == nil && !base.Delegated
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(uint64(42), base.Count)
	assert.Equal(program, base.Owner)

	health, err := c.Health(ctx)
	require.NoError(err)
	assert.Equal(program, health.Program)
	assert.Zero(health.PendingCommits)
}

func TestRemoteErrors(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	_, c := getClient(t)
	owner := types.PubkeyOf(ed25519.GenPrivKey())

	_, err := c.GetCounter(ctx, runtime.BaseLayer, owner)
	require.Error(err)
	var rpcErr *Error
	require.ErrorAs(err, &rpcErr)
	assert.Equal("get_counter", rpcErr.Method)
	assert.Contains(rpcErr.Message, "account not found")

	_, err = c.GetAccount(ctx, runtime.Layer(7), owner)
	require.ErrorAs(err, &rpcErr)
	assert.Contains(rpcErr.Message, "unknown layer")
}
