package json

import (
	"encoding/json"
	"time"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/rollkit/ephemeral-counter/bridge/local"
	"github.com/rollkit/ephemeral-counter/types"
)

type healthArgs struct {
}
type sendTransactionArgs struct {
	Layer string            `json:"layer"`
	Tx    types.Transaction `json:"tx"`
}
type getAccountArgs struct {
	Layer  string `json:"layer"`
	Pubkey string `json:"pubkey"`
}
type getCounterArgs struct {
	Layer string `json:"layer"`
	Owner string `json:"owner"`
}
type pendingCommitsArgs struct {
}
type requestAirdropArgs struct {
	Pubkey   string `json:"pubkey"`
	Lamports uint64 `json:"lamports"`
}
type subscribeCommitsArgs struct {
}
type unsubscribeCommitsArgs struct {
}

// ResultHealth is returned by health.
type ResultHealth struct {
	Program        types.Pubkey `json:"program"`
	PendingCommits int          `json:"pending_commits"`
}

// ResultSendTransaction is returned by send_transaction.
type ResultSendTransaction struct {
	Signature string `json:"signature"`
}

// ResultAccount is returned by get_account and request_airdrop.
type ResultAccount struct {
	Pubkey     types.Pubkey `json:"pubkey"`
	Owner      types.Pubkey `json:"owner"`
	Lamports   uint64       `json:"lamports"`
	Data       []byte       `json:"data"`
	Executable bool         `json:"executable"`
}

// ResultCounter is returned by get_counter.
type ResultCounter struct {
	Address types.Pubkey `json:"address"`
	Count   uint64       `json:"count"`
	// Owner is the program owning the counter account on the queried layer.
	Owner     types.Pubkey `json:"owner"`
	Delegated bool         `json:"delegated"`
}

// PendingCommit describes a queued commit.
type PendingCommit struct {
	ID          uint64       `json:"id"`
	Account     types.Pubkey `json:"account"`
	Undelegate  bool         `json:"undelegate"`
	ScheduledAt time.Time    `json:"scheduled_at"`
}

// ResultPendingCommits is returned by pending_commits.
type ResultPendingCommits struct {
	Commits []PendingCommit `json:"commits"`
}

// ResultSubscribe is returned by subscribe_commits.
type ResultSubscribe struct{}

// CommitEvent is streamed to websocket subscribers.
type CommitEvent struct {
	ID          uint64       `json:"id"`
	Account     types.Pubkey `json:"account"`
	Data        []byte       `json:"data"`
	Undelegated bool         `json:"undelegated"`
	AppliedAt   time.Time    `json:"applied_at"`
}

type emptyResult struct{}

type response struct {
	Version string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *json2.Error    `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

func newResultAccount(a *types.Account) *ResultAccount {
	return &ResultAccount{
		Pubkey:     a.Key,
		Owner:      a.Owner,
		Lamports:   a.Lamports,
		Data:       a.Data,
		Executable: a.Executable,
	}
}

func newCommitEvent(ev local.CommitEvent) CommitEvent {
	return CommitEvent{
		ID:          ev.ID,
		Account:     ev.Account,
		Data:        ev.Data,
		Undelegated: ev.Undelegated,
		AppliedAt:   ev.AppliedAt,
	}
}
