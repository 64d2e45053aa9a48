// Package json implements the JSON-RPC 2.0 surface of the node, served over
// HTTP POST, HTTP GET (one path per method) and websocket.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/mr-tron/base58"

	"github.com/rollkit/ephemeral-counter/bridge/local"
	"github.com/rollkit/ephemeral-counter/log"
	"github.com/rollkit/ephemeral-counter/runtime"
	"github.com/rollkit/ephemeral-counter/types"
)

// Node is the part of the node the RPC service needs.
type Node interface {
	Program() types.Pubkey
	SendTransaction(ctx context.Context, layer runtime.Layer, tx *types.Transaction) error
	GetAccount(ctx context.Context, layer runtime.Layer, key types.Pubkey) (*types.Account, error)
	GetCounter(ctx context.Context, layer runtime.Layer, owner types.Pubkey) (*types.Counter, *types.Account, error)
	RequestAirdrop(ctx context.Context, layer runtime.Layer, key types.Pubkey, lamports uint64) (*types.Account, error)
	PendingCommits() []local.CommitJob
	SubscribeCommits(buffer int) (<-chan local.CommitEvent, func())
}

// GetHTTPHandler returns handler configured to serve the JSON-RPC API.
func GetHTTPHandler(n Node, logger log.Logger) (http.Handler, error) {
	return newHandler(newService(n, logger), json2.NewCodec(), logger), nil
}

type method struct {
	m          reflect.Value
	argsType   reflect.Type
	returnType reflect.Type
	ws         bool
}

func newMethod(m interface{}) *method {
	mType := reflect.TypeOf(m)

	return &method{
		m:          reflect.ValueOf(m),
		argsType:   mType.In(1).Elem(),
		returnType: mType.Out(0).Elem(),
		ws:         mType.NumIn() == 3,
	}
}

type service struct {
	node    Node
	methods map[string]*method
	logger  log.Logger
}

func newService(n Node, logger log.Logger) *service {
	s := service{
		node:   n,
		logger: logger,
	}
	s.methods = map[string]*method{
		"health":              newMethod(s.Health),
		"send_transaction":    newMethod(s.SendTransaction),
		"get_account":         newMethod(s.GetAccount),
		"get_counter":         newMethod(s.GetCounter),
		"pending_commits":     newMethod(s.PendingCommits),
		"request_airdrop":     newMethod(s.RequestAirdrop),
		"subscribe_commits":   newMethod(s.SubscribeCommits),
		"unsubscribe_commits": newMethod(s.UnsubscribeCommits),
	}
	return &s
}

func parseLayer(s string) (runtime.Layer, error) {
	if s == "" {
		return runtime.BaseLayer, nil
	}
	return runtime.ParseLayer(s)
}

func parsePubkey(name, s string) (types.Pubkey, error) {
	pk, err := types.PubkeyFromBase58(s)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return pk, nil
}

func (s *service) Health(req *http.Request, args *healthArgs) (*ResultHealth, error) {
	return &ResultHealth{
		Program:        s.node.Program(),
		PendingCommits: len(s.node.PendingCommits()),
	}, nil
}

func (s *service) SendTransaction(req *http.Request, args *sendTransactionArgs) (*ResultSendTransaction, error) {
	layer, err := parseLayer(args.Layer)
	if err != nil {
		return nil, err
	}
	if err := s.node.SendTransaction(req.Context(), layer, &args.Tx); err != nil {
		return nil, err
	}
	res := &ResultSendTransaction{}
	if len(args.Tx.Signatures) > 0 {
		res.Signature = base58.Encode(args.Tx.Signatures[0].Signature)
	}
	return res, nil
}

func (s *service) GetAccount(req *http.Request, args *getAccountArgs) (*ResultAccount, error) {
	layer, err := parseLayer(args.Layer)
	if err != nil {
		return nil, err
	}
	key, err := parsePubkey("pubkey", args.Pubkey)
	if err != nil {
		return nil, err
	}
	a, err := s.node.GetAccount(req.Context(), layer, key)
	if err != nil {
		return nil, err
	}
	return newResultAccount(a), nil
}

func (s *service) GetCounter(req *http.Request, args *getCounterArgs) (*ResultCounter, error) {
	layer, err := parseLayer(args.Layer)
	if err != nil {
		return nil, err
	}
	owner, err := parsePubkey("owner", args.Owner)
	if err != nil {
		return nil, err
	}
	c, a, err := s.node.GetCounter(req.Context(), layer, owner)
	if err != nil {
		return nil, err
	}
	return &ResultCounter{
		Address:   a.Key,
		Count:     c.Count,
		Owner:     a.Owner,
		Delegated: a.Owner == types.DelegationProgramID,
	}, nil
}

func (s *service) PendingCommits(req *http.Request, args *pendingCommitsArgs) (*ResultPendingCommits, error) {
	jobs := s.node.PendingCommits()
	res := &ResultPendingCommits{Commits: make([]PendingCommit, 0, len(jobs))}
	for _, j := range jobs {
		res.Commits = append(res.Commits, PendingCommit{
			ID:          j.ID,
			Account:     j.Account,
			Undelegate:  j.Undelegate,
			ScheduledAt: j.ScheduledAt,
		})
	}
	return res, nil
}

func (s *service) RequestAirdrop(req *http.Request, args *requestAirdropArgs) (*ResultAccount, error) {
	key, err := parsePubkey("pubkey", args.Pubkey)
	if err != nil {
		return nil, err
	}
	a, err := s.node.RequestAirdrop(req.Context(), runtime.BaseLayer, key, args.Lamports)
	if err != nil {
		return nil, err
	}
	return newResultAccount(a), nil
}

func (s *service) SubscribeCommits(req *http.Request, args *subscribeCommitsArgs, wsConn *wsConn) (*ResultSubscribe, error) {
	if wsConn == nil {
		return nil, errors.New("subscription is only available over websocket")
	}
	events, release := s.node.SubscribeCommits(16)
	if !wsConn.track(release) {
		release()
		return nil, errors.New("already subscribed")
	}

	go func() {
		defer wsConn.done()
		for ev := range events {
			resp := response{
				Version: "2.0",
				Result:  newCommitEvent(ev),
				ID:      json.RawMessage("-1"),
			}
			bz, err := json.Marshal(resp)
			if err != nil {
				s.logger.Error("failed to marshal commit event", "error", err)
				continue
			}
			wsConn.queue <- bz
		}
	}()
	return &ResultSubscribe{}, nil
}

func (s *service) UnsubscribeCommits(req *http.Request, args *unsubscribeCommitsArgs, wsConn *wsConn) (*emptyResult, error) {
	if wsConn == nil {
		return nil, errors.New("subscription is only available over websocket")
	}
	if !wsConn.untrack() {
		return nil, errors.New("not subscribed")
	}
	return &emptyResult{}, nil
}
