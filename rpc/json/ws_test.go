package json

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/kit/transport/http/jsonrpc"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/rollkit/ephemeral-counter/instruction"
	"github.com/rollkit/ephemeral-counter/runtime"
	"github.com/rollkit/ephemeral-counter/types"
)

func TestWebSockets(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	n := getNode(t)
	handler, err := GetHTTPHandler(n, log.TestingLogger())
	require.NoError(err)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(strings.Replace(srv.URL, "http://", "ws://", 1)+"/websocket", nil)
	require.NoError(err)
	require.NotNil(resp)
	require.NotNil(conn)
	defer func() {
		_ = conn.Close()
	}()

	assert.Equal(http.StatusSwitchingProtocols, resp.StatusCode)

	err = conn.WriteMessage(websocket.TextMessage, []byte(`
{
"jsonrpc": "2.0",
"method": "subscribe_commits",
"id": 7,
"params": {}
}
`))
	require.NoError(err)

	err = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	require.NoError(err)
	typ, msg, err := conn.ReadMessage()
	require.NoError(err)
	assert.Equal(websocket.TextMessage, typ)
	var subResp jsonrpc.Response
	require.NoError(json.Unmarshal(msg, &subResp))
	assert.Nil(subResp.Error)

	// a second subscription on the same connection is refused
	subscribeReq, err := json2.EncodeClientRequest("subscribe_commits", &subscribeCommitsArgs{})
	require.NoError(err)
	require.NoError(conn.WriteMessage(websocket.TextMessage, subscribeReq))
	_, msg, err = conn.ReadMessage()
	require.NoError(err)
	var dupResp response
	require.NoError(json.Unmarshal(msg, &dupResp))
	require.NotNil(dupResp.Error)
	assert.Contains(dupResp.Error.Message, "already subscribed")

	ctx := context.Background()
	priv := ed25519.GenPrivKey()
	owner := types.PubkeyOf(priv)
	_, err = n.RequestAirdrop(ctx, runtime.BaseLayer, owner, 1_000_000_000)
	require.NoError(err)
	for _, step := range []struct {
		layer runtime.Layer
		build func() (types.Instruction, error)
	}{
		{runtime.BaseLayer, func() (types.Instruction, error) { return instruction.NewInitializeCounter(n.Program(), owner) }},
		{runtime.BaseLayer, func() (types.Instruction, error) { return instruction.NewDelegate(n.Program(), owner) }},
		{runtime.RollupLayer, func() (types.Instruction, error) { return instruction.NewIncreaseCounter(n.Program(), owner, 5) }},
		{runtime.RollupLayer, func() (types.Instruction, error) { return instruction.NewCommitAndUndelegate(n.Program(), owner) }},
	} {
		ix, err := step.build()
		require.NoError(err)
		tx := &types.Transaction{Instruction: ix}
		require.NoError(tx.Sign(priv))
		require.NoError(n.SendTransaction(ctx, step.layer, tx))
	}

	// wait for the commit to reach the base layer
	err = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(err)
	typ, msg, err = conn.ReadMessage()
	require.NoError(err)
	assert.Equal(websocket.TextMessage, typ)
	var jsrpcResp jsonrpc.Response
	require.NoError(json.Unmarshal(msg, &jsrpcResp))
	var ev CommitEvent
	require.NoError(json.Unmarshal(jsrpcResp.Result, &ev))
	assert.True(ev.Undelegated)
	c := &types.Counter{}
	require.NoError(c.UnmarshalBinary(ev.Data))
	assert.Equal(uint64(5), c.Count)

	unsubscribeReq, err := json2.EncodeClientRequest("unsubscribe_commits", &unsubscribeCommitsArgs{})
	require.NoError(err)
	require.NoError(conn.WriteMessage(websocket.TextMessage, unsubscribeReq))
	_, msg, err = conn.ReadMessage()
	require.NoError(err)
	var unsubResp response
	require.NoError(json.Unmarshal(msg, &unsubResp))
	assert.Nil(unsubResp.Error)
}
