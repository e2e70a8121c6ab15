package replica

import (
	"encoding/base64"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/byzantine-bank/api"
	"github.com/luca-patrignani/byzantine-bank/domain/bank"
	"github.com/luca-patrignani/byzantine-bank/ledger"
	"github.com/luca-patrignani/byzantine-bank/logging"
	"github.com/luca-patrignani/byzantine-bank/signature"
	"github.com/luca-patrignani/byzantine-bank/throttle"
)

// Operation names used in logs and metrics.
const (
	OpOpenAccount = "open_account"
	OpNonce       = "nonce_negotiation"
	OpSend        = "send_amount"
	OpReceive     = "receive_amount"
	OpCheck       = "check_account"
	OpAudit       = "audit"
)

// Options configures a Replica. Key and Store are required.
type Options struct {
	Name string
	Key  signature.KeyPair
	// Store is replayed by New and then owned by the replica.
	Store ledger.Store
	// OpeningBalance defaults to bank.DefaultOpeningBalance when zero.
	OpeningBalance   decimal.Decimal
	ThrottleInterval time.Duration
	Logger           logging.Logger
	// Registry receives the replica metrics. A private registry is used
	// when nil.
	Registry prometheus.Registerer
}

// Replica serves the bank protocol over one account table.
type Replica struct {
	name     string
	key      signature.KeyPair
	store    ledger.Store
	bank     *bank.Bank
	throttle *throttle.Throttle
	log      logging.Logger
	metrics  *metrics
}

var _ api.Replica = (*Replica)(nil)

// New rebuilds the account table from opts.Store and returns a replica ready
// to serve. A ledger that cannot be replayed is an error: the replica never
// runs on a partially applied history.
func New(opts Options) (*Replica, error) {
	if opts.Store == nil {
		return nil, errors.New("replica: no ledger store")
	}
	if opts.Key.Public.IsZero() {
		return nil, errors.New("replica: no signing key")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger()
	}
	if opts.OpeningBalance.IsNegative() {
		return nil, errors.Errorf("replica: negative opening balance %s", opts.OpeningBalance)
	}
	if opts.OpeningBalance.IsZero() {
		opts.OpeningBalance = bank.DefaultOpeningBalance
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	r := &Replica{
		name:     opts.Name,
		key:      opts.Key,
		store:    opts.Store,
		bank:     bank.New(opts.OpeningBalance),
		throttle: throttle.New(opts.ThrottleInterval),
		log:      opts.Logger.With("replica", opts.Name),
	}

	records := 0
	err := r.store.Replay(func(rec ledger.Record) error {
		records++
		return r.bank.Apply(rec)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "replay ledger at record %d", records)
	}
	r.log.Infof("replayed %d records into %d accounts", records, r.bank.Len())

	r.metrics = newMetrics(opts.Name, func() float64 { return float64(r.bank.Len()) })
	if err := r.metrics.register(opts.Registry); err != nil {
		return nil, err
	}
	return r, nil
}

// Name returns the configured replica name.
func (r *Replica) Name() string { return r.name }

// PublicKey is the key every response is signed with.
func (r *Replica) PublicKey() signature.PublicKey { return r.key.Public }

// Snapshot copies the account table.
func (r *Replica) Snapshot() map[string]bank.AccountSnapshot { return r.bank.Snapshot() }

// Close releases the ledger store.
func (r *Replica) Close() error {
	return r.store.Close()
}

// admit consults the throttle. Throttled requests are still served.
func (r *Replica) admit(op string, key []byte) {
	id := base64.StdEncoding.EncodeToString(key)
	if r.throttle.Admit(id) {
		r.metrics.throttled.WithLabelValues(op).Inc()
		r.log.WithFields(logging.Fields{"op": op, "key": id}).Warnf("requests closer than %s", r.throttle.Interval())
	}
}

func (r *Replica) done(op string, status api.Status) api.Status {
	r.metrics.observe(op, status)
	r.log.WithFields(logging.Fields{"op": op, "status": status}).Debug("served")
	return status
}

func (r *Replica) fault(op string, err error) error {
	r.metrics.fault(op)
	r.log.With("op", op).Errorf("ledger append failed: %v", err)
	return errors.Wrap(err, op)
}

// parseTransaction decodes the wire form. Both keys are parsed before the
// amount, so a bad key wins over a bad amount.
func parseTransaction(tx api.Transaction) (bank.Transaction, api.Status) {
	src, err := signature.ParsePublicKey(tx.Source)
	if err != nil {
		return bank.Transaction{}, api.StatusInvalidKeyFormat
	}
	dst, err := signature.ParsePublicKey(tx.Destination)
	if err != nil {
		return bank.Transaction{}, api.StatusInvalidKeyFormat
	}
	amount, err := ledger.ParseAmount(tx.Amount)
	if err != nil || !amount.IsPositive() {
		return bank.Transaction{}, api.StatusInvalidNumberFormat
	}
	return bank.Transaction{Source: src, Destination: dst, Amount: amount}, api.StatusSuccess
}

func wireTransaction(tx bank.Transaction) api.Transaction {
	return api.Transaction{
		Source:      tx.Source.Bytes(),
		Destination: tx.Destination.Bytes(),
		Amount:      tx.Amount.String(),
	}
}

func wireEntries(entries []bank.Entry) []api.Transaction {
	out := make([]api.Transaction, len(entries))
	for i, e := range entries {
		out[i] = wireTransaction(e.Transaction)
	}
	return out
}
