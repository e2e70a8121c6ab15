package bank

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/byzantine-bank/ledger"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openAccounts(t *testing.T, b *Bank, n int) []signature.PublicKey {
	t.Helper()
	keys := make([]signature.PublicKey, n)
	for i := range keys {
		keys[i] = signature.GenerateKey().Public
		require.NoError(t, b.Create(keys[i], signature.NewNonce(), nil))
	}
	return keys
}

func nonceOf(t *testing.T, b *Bank, k signature.PublicKey) signature.Nonce {
	t.Helper()
	var n signature.Nonce
	require.True(t, b.View(k, func(a *Account) { n = a.Nonce }))
	return n
}

func send(t *testing.T, b *Bank, src, dst signature.PublicKey, amount string) error {
	t.Helper()
	l, err := b.Acquire(src, dst)
	require.NoError(t, err)
	defer l.Release()
	return l.Send(Entry{
		Transaction: Transaction{Source: src, Destination: dst, Amount: dec(amount)},
		Nonce:       l.Account(src).Nonce.Next(),
	})
}

func settle(t *testing.T, b *Bank, src, dst signature.PublicKey, amount string, accept bool) error {
	t.Helper()
	l, err := b.Acquire(src, dst)
	require.NoError(t, err)
	defer l.Release()
	e := Entry{
		Transaction: Transaction{Source: src, Destination: dst, Amount: dec(amount)},
		Nonce:       l.Account(dst).Nonce.Next(),
	}
	if accept {
		return l.Accept(e)
	}
	return l.Reject(e)
}

func TestCreate(t *testing.T) {
	b := New(DefaultOpeningBalance)
	k := signature.GenerateKey().Public
	require.NoError(t, b.Create(k, signature.NewNonce(), nil))
	require.ErrorIs(t, b.Create(k, signature.NewNonce(), nil), ErrAccountExists)
	require.Equal(t, 1, b.Len())

	snap := b.Snapshot()[k.String()]
	require.Equal(t, "1000", snap.Balance)
	require.Empty(t, snap.Pending)
}

func TestCreatePersistFailure(t *testing.T) {
	b := New(DefaultOpeningBalance)
	k := signature.GenerateKey().Public
	boom := errors.New("disk full")
	require.ErrorIs(t, b.Create(k, signature.NewNonce(), func() error { return boom }), boom)
	require.False(t, b.Exists(k))
}

func TestCreateDoesNotBlockOtherAccounts(t *testing.T) {
	b := New(DefaultOpeningBalance)
	k1 := openAccounts(t, b, 1)[0]
	k2 := signature.GenerateKey().Public

	started := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- b.Create(k2, signature.NewNonce(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// the table stays usable while k2 is being persisted
	require.True(t, b.Exists(k1))
	require.False(t, b.Exists(k2))
	l, err := b.Acquire(k1)
	require.NoError(t, err)
	l.Release()
	require.NoError(t, b.Create(signature.GenerateKey().Public, signature.NewNonce(), nil))

	second := make(chan error, 1)
	go func() { second <- b.Create(k2, signature.NewNonce(), nil) }()

	close(release)
	require.NoError(t, <-first)
	require.ErrorIs(t, <-second, ErrAccountExists)
	require.Equal(t, 3, b.Len())
}

func TestCreateRetriesAfterFailedAttempt(t *testing.T) {
	b := New(DefaultOpeningBalance)
	k := signature.GenerateKey().Public
	boom := errors.New("disk full")

	started := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- b.Create(k, signature.NewNonce(), func() error {
			close(started)
			<-release
			return boom
		})
	}()
	<-started

	second := make(chan error, 1)
	go func() { second <- b.Create(k, signature.NewNonce(), func() error { return nil }) }()

	close(release)
	require.ErrorIs(t, <-first, boom)
	require.NoError(t, <-second)
	require.True(t, b.Exists(k))
}

func TestSendAcceptReject(t *testing.T) {
	b := New(DefaultOpeningBalance)
	keys := openAccounts(t, b, 2)
	k1, k2 := keys[0], keys[1]

	require.NoError(t, send(t, b, k1, k2, "100"))
	snap := b.Snapshot()
	require.Equal(t, "900", snap[k1.String()].Balance)
	require.Equal(t, "1000", snap[k2.String()].Balance)
	require.Len(t, snap[k2.String()].Pending, 1)

	require.NoError(t, settle(t, b, k1, k2, "100.00", true))
	snap = b.Snapshot()
	require.Equal(t, "1100", snap[k2.String()].Balance)
	require.Empty(t, snap[k2.String()].Pending)
	require.Len(t, snap[k1.String()].History, 1)
	require.Len(t, snap[k2.String()].History, 1)

	require.NoError(t, send(t, b, k1, k2, "50"))
	require.NoError(t, settle(t, b, k1, k2, "50", false))
	snap = b.Snapshot()
	require.Equal(t, "850", snap[k1.String()].Balance)
	require.Equal(t, "1100", snap[k2.String()].Balance)
	require.Empty(t, snap[k2.String()].Pending)
	require.Len(t, snap[k2.String()].History, 1)

	require.ErrorIs(t, settle(t, b, k1, k2, "50", true), ErrNoSuchTransaction)
}

func TestIdenticalSendsStayDistinct(t *testing.T) {
	b := New(DefaultOpeningBalance)
	keys := openAccounts(t, b, 2)
	require.NoError(t, send(t, b, keys[0], keys[1], "10"))
	require.NoError(t, send(t, b, keys[0], keys[1], "10"))
	require.Len(t, b.Snapshot()[keys[1].String()].Pending, 2)

	require.NoError(t, settle(t, b, keys[0], keys[1], "10", true))
	require.Len(t, b.Snapshot()[keys[1].String()].Pending, 1)
}

func TestSendPreconditions(t *testing.T) {
	b := New(DefaultOpeningBalance)
	keys := openAccounts(t, b, 2)
	k1, k2 := keys[0], keys[1]

	require.ErrorIs(t, send(t, b, k1, k2, "1000.01"), ErrInsufficientBalance)
	require.ErrorIs(t, send(t, b, k1, k2, "0"), ErrInvalidAmount)
	require.ErrorIs(t, send(t, b, k1, k1, "1"), ErrSameAccount)

	l, err := b.Acquire(k1, k2)
	require.NoError(t, err)
	stale := l.Account(k1).Nonce
	err = l.Send(Entry{Transaction: Transaction{Source: k1, Destination: k2, Amount: dec("1")}, Nonce: stale})
	l.Release()
	require.ErrorIs(t, err, ErrWrongNonce)

	_, err = b.Acquire(k1, signature.GenerateKey().Public)
	require.ErrorIs(t, err, ErrUnknownAccount)
}

// Opposite transfers between the same pair must not deadlock.
func TestConcurrentOppositeTransfers(t *testing.T) {
	b := New(DefaultOpeningBalance)
	keys := openAccounts(t, b, 2)
	const rounds = 50

	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for _, dir := range [][2]signature.PublicKey{{keys[0], keys[1]}, {keys[1], keys[0]}} {
		wg.Add(1)
		go func(src, dst signature.PublicKey) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				l, err := b.Acquire(src, dst)
				if err != nil {
					errs <- err
					return
				}
				errs <- l.Send(Entry{
					Transaction: Transaction{Source: src, Destination: dst, Amount: dec("1")},
					Nonce:       l.Account(src).Nonce.Next(),
				})
				l.Release()
			}
		}(dir[0], dir[1])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	snap := b.Snapshot()
	require.Equal(t, "950", snap[keys[0].String()].Balance)
	require.Len(t, snap[keys[0].String()].Pending, rounds)
}

func TestReplayIdempotence(t *testing.T) {
	k1, k2 := signature.GenerateKey().Public, signature.GenerateKey().Public
	n1, n2 := signature.NewNonce(), signature.NewNonce()
	tx := func(kind ledger.Kind, amount string, n signature.Nonce) ledger.Record {
		return ledger.Record{Kind: kind, Source: k1, Destination: k2, Amount: dec(amount), Nonce: n, Signature: []byte{1}}
	}
	records := []ledger.Record{
		ledger.CreateRecord(k1, n1),
		ledger.CreateRecord(k2, n2),
		tx(ledger.KindAdd, "100", n1.Next()),
		tx(ledger.KindAdd, "5", n1.Next().Next()),
		tx(ledger.KindAccept, "100", n2.Next()),
		tx(ledger.KindReject, "5", n2.Next().Next()),
	}
	store := ledger.NewMemoryStore(records...)

	replay := func() map[string]AccountSnapshot {
		b := New(DefaultOpeningBalance)
		require.NoError(t, store.Replay(b.Apply))
		return b.Snapshot()
	}
	first, second := replay(), replay()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("replays differ (-first +second):\n%s", diff)
	}
	require.Equal(t, "895", first[k1.String()].Balance)
	require.Equal(t, "1100", first[k2.String()].Balance)
}

func TestReplayRejectsInconsistentLedger(t *testing.T) {
	k1, k2 := signature.GenerateKey().Public, signature.GenerateKey().Public
	b := New(DefaultOpeningBalance)
	require.NoError(t, b.Apply(ledger.CreateRecord(k1, signature.NewNonce())))
	err := b.Apply(ledger.Record{Kind: ledger.KindAdd, Source: k1, Destination: k2, Amount: dec("1"), Nonce: signature.NewNonce()})
	require.ErrorIs(t, err, ErrUnknownAccount)
	require.ErrorIs(t, b.Apply(ledger.CreateRecord(k1, signature.NewNonce())), ErrAccountExists)
}
