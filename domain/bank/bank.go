package bank

import (
	"sort"

	"github.com/algorand/go-deadlock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/byzantine-bank/ledger"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

var (
	ErrAccountExists       = errors.New("account already exists")
	ErrUnknownAccount      = errors.New("unknown account")
	ErrSameAccount         = errors.New("source and destination are the same account")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("not enough balance")
	ErrNoSuchTransaction   = errors.New("no matching pending transaction")
	ErrWrongNonce          = errors.New("nonce is not the successor of the account nonce")
)

// Bank is the account table of one replica.
type Bank struct {
	mu       deadlock.RWMutex
	accounts map[string]*Account
	// creating holds the keys whose create record is being persisted. The
	// channel is closed when the attempt ends.
	creating map[string]chan struct{}
	opening  decimal.Decimal
}

// New returns an empty table whose accounts open with the given balance.
func New(opening decimal.Decimal) *Bank {
	return &Bank{
		accounts: make(map[string]*Account),
		creating: make(map[string]chan struct{}),
		opening:  opening,
	}
}

// OpeningBalance is the balance of a freshly created account.
func (b *Bank) OpeningBalance() decimal.Decimal { return b.opening }

// Exists reports whether key has an account.
func (b *Bank) Exists(key signature.PublicKey) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.accounts[key.String()]
	return ok
}

// Len returns the number of accounts.
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.accounts)
}

// Create opens an account for key with sequence nonce n. persist, when not
// nil, runs before the account becomes visible; if it fails nothing is
// created. The table is not locked while persist runs: a concurrent Create
// for the same key waits for the outcome, other keys are unaffected.
func (b *Bank) Create(key signature.PublicKey, n signature.Nonce, persist func() error) error {
	id := key.String()
	var done chan struct{}
	for done == nil {
		b.mu.Lock()
		if _, ok := b.accounts[id]; ok {
			b.mu.Unlock()
			return ErrAccountExists
		}
		if inflight, ok := b.creating[id]; ok {
			b.mu.Unlock()
			<-inflight
			continue
		}
		done = make(chan struct{})
		b.creating[id] = done
		b.mu.Unlock()
	}

	var err error
	if persist != nil {
		err = persist()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.creating, id)
	close(done)
	if err != nil {
		return err
	}
	b.accounts[id] = &Account{
		Key:     key,
		Balance: b.opening,
		Nonce:   n,
		Version: 1,
	}
	return nil
}

// View runs fn with the account for key locked. It returns false if the
// account does not exist. fn must not retain the account.
func (b *Bank) View(key signature.PublicKey, fn func(*Account)) bool {
	b.mu.RLock()
	a, ok := b.accounts[key.String()]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a)
	return true
}

// Locked is a set of accounts held exclusively by one operation.
type Locked struct {
	byKey map[string]*Account
	order []*Account
}

// Acquire locks the accounts for keys, in key order, and returns them.
// Duplicate keys are locked once.
func (b *Bank) Acquire(keys ...signature.PublicKey) (*Locked, error) {
	l := &Locked{byKey: make(map[string]*Account, len(keys))}

	b.mu.RLock()
	for _, k := range keys {
		a, ok := b.accounts[k.String()]
		if !ok {
			b.mu.RUnlock()
			return nil, errors.Wrap(ErrUnknownAccount, k.String())
		}
		if _, dup := l.byKey[k.String()]; !dup {
			l.byKey[k.String()] = a
			l.order = append(l.order, a)
		}
	}
	b.mu.RUnlock()

	sort.Slice(l.order, func(i, j int) bool { return l.order[i].Key.Less(l.order[j].Key) })
	for _, a := range l.order {
		a.mu.Lock()
	}
	return l, nil
}

// Release unlocks every account, in reverse order.
func (l *Locked) Release() {
	for i := len(l.order) - 1; i >= 0; i-- {
		l.order[i].mu.Unlock()
	}
}

// Account returns a locked account, or nil if key was not acquired.
func (l *Locked) Account(key signature.PublicKey) *Account {
	return l.byKey[key.String()]
}

func (l *Locked) pair(tx Transaction) (src, dst *Account, err error) {
	src, dst = l.Account(tx.Source), l.Account(tx.Destination)
	if src == nil || dst == nil {
		return nil, nil, ErrUnknownAccount
	}
	if src == dst {
		return nil, nil, ErrSameAccount
	}
	return src, dst, nil
}

// CheckSend validates a transfer without applying it.
func (l *Locked) CheckSend(e Entry) error {
	src, _, err := l.pair(e.Transaction)
	if err != nil {
		return err
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if e.Nonce != src.Nonce.Next() {
		return ErrWrongNonce
	}
	if src.Balance.LessThan(e.Amount) {
		return ErrInsufficientBalance
	}
	return nil
}

// Send debits the source and queues e at the destination. The source's
// sequence nonce advances to e.Nonce.
func (l *Locked) Send(e Entry) error {
	if err := l.CheckSend(e); err != nil {
		return err
	}
	src, dst, _ := l.pair(e.Transaction)
	src.Balance = src.Balance.Sub(e.Amount)
	src.Nonce = e.Nonce
	src.Version++
	dst.Pending = append(dst.Pending, e)
	dst.Version++
	return nil
}

// CheckSettle validates an accept or reject signed by the destination.
func (l *Locked) CheckSettle(e Entry) error {
	_, dst, err := l.pair(e.Transaction)
	if err != nil {
		return err
	}
	if e.Nonce != dst.Nonce.Next() {
		return ErrWrongNonce
	}
	if dst.findPending(e.Transaction) < 0 {
		return ErrNoSuchTransaction
	}
	return nil
}

// Accept settles the oldest pending transfer matching e: the destination is
// credited and the transfer is recorded in both histories.
func (l *Locked) Accept(e Entry) error {
	if err := l.CheckSettle(e); err != nil {
		return err
	}
	src, dst, _ := l.pair(e.Transaction)
	pending := dst.removePending(dst.findPending(e.Transaction))
	dst.Balance = dst.Balance.Add(e.Amount)
	dst.Nonce = e.Nonce
	dst.History = append(dst.History, e)
	src.History = append(src.History, pending)
	dst.Version++
	src.Version++
	return nil
}

// Reject drops the oldest pending transfer matching e. No balance changes.
func (l *Locked) Reject(e Entry) error {
	if err := l.CheckSettle(e); err != nil {
		return err
	}
	_, dst, _ := l.pair(e.Transaction)
	dst.removePending(dst.findPending(e.Transaction))
	dst.Nonce = e.Nonce
	dst.Version++
	return nil
}

// Apply replays one ledger record. Preconditions are checked exactly as on
// the live path; a failure means the ledger and the table disagree.
func (b *Bank) Apply(rec ledger.Record) error {
	if rec.Kind == ledger.KindCreate {
		return errors.Wrapf(b.Create(rec.Source, rec.Nonce, nil), "apply %s", rec)
	}
	e := Entry{
		Transaction: Transaction{Source: rec.Source, Destination: rec.Destination, Amount: rec.Amount},
		Nonce:       rec.Nonce,
		Signature:   rec.Signature,
	}
	l, err := b.Acquire(rec.Source, rec.Destination)
	if err != nil {
		return errors.Wrapf(err, "apply %s", rec)
	}
	defer l.Release()
	switch rec.Kind {
	case ledger.KindAdd:
		err = l.Send(e)
	case ledger.KindAccept:
		err = l.Accept(e)
	case ledger.KindReject:
		err = l.Reject(e)
	default:
		err = errors.Errorf("unknown record kind %q", rec.Kind)
	}
	return errors.Wrapf(err, "apply %s", rec)
}

// Snapshot copies every account. Accounts are locked one at a time, so the
// result is only a consistent cut when no operation is in flight.
func (b *Bank) Snapshot() map[string]AccountSnapshot {
	b.mu.RLock()
	accounts := make([]*Account, 0, len(b.accounts))
	for _, a := range b.accounts {
		accounts = append(accounts, a)
	}
	b.mu.RUnlock()

	out := make(map[string]AccountSnapshot, len(accounts))
	for _, a := range accounts {
		a.mu.Lock()
		out[a.Key.String()] = a.snapshot()
		a.mu.Unlock()
	}
	return out
}
