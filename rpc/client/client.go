// Package client is a JSON-RPC client for the node's HTTP API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/rollkit/ephemeral-counter/rpc/json"
	"github.com/rollkit/ephemeral-counter/runtime"
	"github.com/rollkit/ephemeral-counter/types"
)

// DefaultTimeout bounds a single call.
const DefaultTimeout = 10 * time.Second

// Client calls a remote node.
type Client struct {
	remote string
	http   *http.Client
}

// New returns a client for remote, given either as a URL or in the
// tcp://host:port form used by the RPC listen address.
func New(remote string) (*Client, error) {
	switch {
	case strings.HasPrefix(remote, "tcp://"):
		remote = "http://" + strings.TrimPrefix(remote, "tcp://")
	case strings.HasPrefix(remote, "http://"), strings.HasPrefix(remote, "https://"):
	default:
		return nil, fmt.Errorf("unsupported remote address %q", remote)
	}
	return &Client{
		remote: strings.TrimSuffix(remote, "/") + "/",
		http:   &http.Client{Timeout: DefaultTimeout},
	}, nil
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	body, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.remote, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	err = json2.DecodeClientResponse(resp.Body, result)
	var rpcErr *json2.Error
	if errors.As(err, &rpcErr) {
		return &Error{Method: method, Code: int(rpcErr.Code), Message: rpcErr.Message}
	}
	return err
}

// Error is an error reported by the remote node.
type Error struct {
	Method  string
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed (code %d): %s", e.Method, e.Code, e.Message)
}

type layerParams struct {
	Layer string `json:"layer"`
}

// Health reports the hosted program and the number of queued commits.
func (c *Client) Health(ctx context.Context) (*json.ResultHealth, error) {
	res := &json.ResultHealth{}
	return res, c.call(ctx, "health", struct{}{}, res)
}

// SendTransaction executes tx on layer and returns its first signature.
func (c *Client) SendTransaction(ctx context.Context, layer runtime.Layer, tx *types.Transaction) (string, error) {
	params := struct {
		layerParams
		Tx *types.Transaction `json:"tx"`
	}{layerParams{layer.String()}, tx}
	res := &json.ResultSendTransaction{}
	if err := c.call(ctx, "send_transaction", params, res); err != nil {
		return "", err
	}
	return res.Signature, nil
}

// GetAccount fetches an account from layer.
func (c *Client) GetAccount(ctx context.Context, layer runtime.Layer, key types.Pubkey) (*json.ResultAccount, error) {
	params := struct {
		layerParams
		Pubkey string `json:"pubkey"`
	}{layerParams{layer.String()}, key.String()}
	res := &json.ResultAccount{}
	return res, c.call(ctx, "get_account", params, res)
}

// GetCounter fetches the counter of owner from layer.
func (c *Client) GetCounter(ctx context.Context, layer runtime.Layer, owner types.Pubkey) (*json.ResultCounter, error) {
	params := struct {
		layerParams
		Owner string `json:"owner"`
	}{layerParams{layer.String()}, owner.String()}
	res := &json.ResultCounter{}
	return res, c.call(ctx, "get_counter", params, res)
}

// PendingCommits lists commits not yet applied to the base layer.
func (c *Client) PendingCommits(ctx context.Context) ([]json.PendingCommit, error) {
	res := &json.ResultPendingCommits{}
	if err := c.call(ctx, "pending_commits", struct{}{}, res); err != nil {
		return nil, err
	}
	return res.Commits, nil
}

// RequestAirdrop credits lamports to key on the base layer.
func (c *Client) RequestAirdrop(ctx context.Context, key types.Pubkey, lamports uint64) (*json.ResultAccount, error) {
	params := struct {
		Pubkey   string `json:"pubkey"`
		Lamports uint64 `json:"lamports"`
	}{key.String(), lamports}
	res := &json.ResultAccount{}
	return res, c.call(ctx, "request_airdrop", params, res)
}
