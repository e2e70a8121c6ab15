package bank

import (
	"fmt"

	"github.com/algorand/go-deadlock"
	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/byzantine-bank/signature"
)

// DefaultOpeningBalance is credited to every new account.
var DefaultOpeningBalance = decimal.NewFromInt(1000)

// Transaction is the content of a transfer. Two transactions are the same
// fingerprint when source, destination and amount agree, regardless of the
// nonces and signatures attached to them.
type Transaction struct {
	Source      signature.PublicKey
	Destination signature.PublicKey
	Amount      decimal.Decimal
}

// TxKey is the comparable fingerprint of a Transaction.
type TxKey struct {
	Source      string
	Destination string
	Amount      string
}

// Key returns the fingerprint. Amounts are normalised so that 100 and 100.00
// match.
func (t Transaction) Key() TxKey {
	return TxKey{
		Source:      t.Source.String(),
		Destination: t.Destination.String(),
		Amount:      t.Amount.String(),
	}
}

func (t Transaction) Equal(o Transaction) bool { return t.Key() == o.Key() }

func (t Transaction) String() string {
	return fmt.Sprintf("%s -> %s: %s", t.Source, t.Destination, t.Amount)
}

// Entry is a transaction together with the non-repudiation material of the
// party that produced it.
type Entry struct {
	Transaction
	Nonce     signature.Nonce
	Signature []byte
}

// Account is the state of one identity.
type Account struct {
	mu deadlock.Mutex

	Key     signature.PublicKey
	Balance decimal.Decimal
	// Nonce is the last sequence nonce accepted for this account.
	Nonce signature.Nonce
	// Version counts the records applied to this account.
	Version uint64
	Pending []Entry
	History []Entry
}

// AccountSnapshot is a lock-free copy of an account with plain-data fields.
type AccountSnapshot struct {
	Key     string
	Balance string
	Nonce   string
	Version uint64
	Pending []EntrySnapshot
	History []EntrySnapshot
}

// EntrySnapshot is the plain-data form of an Entry.
type EntrySnapshot struct {
	Source      string
	Destination string
	Amount      string
	Nonce       string
}

func snapshotEntries(entries []Entry) []EntrySnapshot {
	out := make([]EntrySnapshot, len(entries))
	for i, e := range entries {
		out[i] = EntrySnapshot{
			Source:      e.Source.String(),
			Destination: e.Destination.String(),
			Amount:      e.Amount.String(),
			Nonce:       e.Nonce.String(),
		}
	}
	return out
}

// snapshot must be called with a.mu held.
func (a *Account) snapshot() AccountSnapshot {
	return AccountSnapshot{
		Key:     a.Key.String(),
		Balance: a.Balance.String(),
		Nonce:   a.Nonce.String(),
		Version: a.Version,
		Pending: snapshotEntries(a.Pending),
		History: snapshotEntries(a.History),
	}
}

// findPending returns the index of the oldest pending entry matching tx.
func (a *Account) findPending(tx Transaction) int {
	key := tx.Key()
	for i, e := range a.Pending {
		if e.Key() == key {
			return i
		}
	}
	return -1
}

func (a *Account) removePending(i int) Entry {
	e := a.Pending[i]
	a.Pending = append(a.Pending[:i:i], a.Pending[i+1:]...)
	return e
}
