package types

import "bytes"

// Account is the in-memory view of an account handed to a program.
type Account struct {
	Key        Pubkey
	Owner      Pubkey
	Lamports   uint64
	Data       []byte
	Executable bool

	// set by the runtime for the current transaction, never persisted
	IsSigner   bool
	IsWritable bool
}

// NewAccount returns an empty, unfunded account owned by the system program.
func NewAccount(key Pubkey) *Account {
	return &Account{Key: key, Owner: SystemProgramID}
}

// Copy returns a deep copy of a.
func (a *Account) Copy() *Account {
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// IsFunded reports whether the account holds any lamports.
func (a *Account) IsFunded() bool {
	return a.Lamports != 0
}

// IsOwnedBy reports whether program owns a.
func (a *Account) IsOwnedBy(program Pubkey) bool {
	return a.Owner == program
}

// SameState reports whether a and other hold the same persisted state.
func (a *Account) SameState(other *Account) bool {
	return a.Key == other.Key &&
		a.Owner == other.Owner &&
		a.Lamports == other.Lamports &&
		a.Executable == other.Executable &&
		bytes.Equal(a.Data, other.Data)
}

// AccountIter hands out positional accounts in order.
type AccountIter struct {
	accounts []*Account
	next     int
}

// NewAccountIter returns an iterator over accounts.
func NewAccountIter(accounts []*Account) *AccountIter {
	return &AccountIter{accounts: accounts}
}

// Next returns the next account or ErrNotEnoughAccountKeys.
func (it *AccountIter) Next() (*Account, error) {
	if it.next >= len(it.accounts) {
		return nil, ErrNotEnoughAccountKeys
	}
	a := it.accounts[it.next]
	it.next++
	return a, nil
}
