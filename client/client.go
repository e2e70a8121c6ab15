// Package client is the account-holder side of the protocol. It signs
// requests, tracks the account's sequence nonce and checks that the answers
// it gets back belong to the request it sent.
package client

import (
	"context"

	"github.com/algorand/go-deadlock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/byzantine-bank/api"
	"github.com/luca-patrignani/byzantine-bank/ledger"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

// ErrDistrust is returned when the decided answer does not match the
// request, i.e. the replicas (or the path to them) cannot be trusted.
var ErrDistrust = errors.New("replica answer does not match the request")

// RejectedError carries a non-success status decided by the replicas.
type RejectedError struct {
	Op     string
	Status api.Status
}

func (e *RejectedError) Error() string {
	return e.Op + ": " + string(e.Status)
}

// StatusOf returns the status carried by err, or "" if err is not a
// rejection.
func StatusOf(err error) api.Status {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Status
	}
	return ""
}

func rejected(op string, status api.Status) error {
	if status.OK() {
		return nil
	}
	return &RejectedError{Op: op, Status: status}
}

// Account is the decided view of an account.
type Account struct {
	Balance decimal.Decimal
	Version uint64
	Pending []Transfer
}

// Transfer is a transaction as returned by CheckAccount and Audit.
type Transfer struct {
	Source      signature.PublicKey
	Destination signature.PublicKey
	Amount      decimal.Decimal
}

// Client acts for one key pair against any api.Replica, usually a
// consensus.Coordinator.
type Client struct {
	key     signature.KeyPair
	replica api.Replica

	mu    deadlock.Mutex
	nonce signature.Nonce
	// synced is false until a nonce has been negotiated, and again after a
	// WRONG_NONCE.
	synced bool
}

// New returns a client for key talking to replica.
func New(key signature.KeyPair, replica api.Replica) *Client {
	return &Client{key: key, replica: replica}
}

// PublicKey returns the account key.
func (c *Client) PublicKey() signature.PublicKey { return c.key.Public }

// OpenAccount creates the account. ALREADY_EXISTED is returned as a
// *RejectedError like any other status.
func (c *Client) OpenAccount(ctx context.Context) error {
	req := api.OpenAccountRequest{PublicKey: c.key.Public.Bytes(), Challenge: signature.NewNonce()}
	req.Sign(c.key)
	resp, err := c.replica.OpenAccount(ctx, req)
	if err != nil {
		return errors.Wrap(err, "open account")
	}
	if resp.Challenge != req.Challenge {
		return errors.Wrap(ErrDistrust, "open account: challenge not echoed")
	}
	return rejected("open account", resp.Status)
}

// NegotiateNonce fetches the current sequence nonce of the account.
func (c *Client) NegotiateNonce(ctx context.Context) (signature.Nonce, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiate(ctx)
}

func (c *Client) negotiate(ctx context.Context) (signature.Nonce, error) {
	req := api.NonceRequest{PublicKey: c.key.Public.Bytes(), Challenge: signature.NewNonce()}
	req.Sign(c.key)
	resp, err := c.replica.NonceNegotiation(ctx, req)
	if err != nil {
		return signature.Nonce{}, errors.Wrap(err, "nonce negotiation")
	}
	if resp.Challenge != req.Challenge {
		return signature.Nonce{}, errors.Wrap(ErrDistrust, "nonce negotiation: challenge not echoed")
	}
	if err := rejected("nonce negotiation", resp.Status); err != nil {
		return signature.Nonce{}, err
	}
	c.nonce, c.synced = resp.Nonce, true
	return resp.Nonce, nil
}

// nextNonce returns the nonce for the next signed request, negotiating first
// if needed. c.mu must be held.
func (c *Client) nextNonce(ctx context.Context) (signature.Nonce, error) {
	if !c.synced {
		if _, err := c.negotiate(ctx); err != nil {
			return signature.Nonce{}, err
		}
	}
	return c.nonce.Next(), nil
}

// settle updates the tracked nonce from the decided answer to a request
// that used next.
func (c *Client) settle(op string, next, echoed signature.Nonce, status api.Status) error {
	if echoed != next {
		c.synced = false
		return errors.Wrapf(ErrDistrust, "%s: replicas echoed nonce %s, sent %s", op, echoed, next)
	}
	switch status {
	case api.StatusSuccess:
		c.nonce = next
	case api.StatusWrongNonce:
		c.synced = false
	}
	return rejected(op, status)
}

// Send transfers amount to dst. The amount is debited at once; dst still has
// to accept it.
func (c *Client) Send(ctx context.Context, dst signature.PublicKey, amount decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := c.nextNonce(ctx)
	if err != nil {
		return err
	}
	req := api.SendAmountRequest{
		Transaction: api.Transaction{
			Source:      c.key.Public.Bytes(),
			Destination: dst.Bytes(),
			Amount:      amount.String(),
		},
		Nonce: next,
	}
	req.Sign(c.key)
	resp, err := c.replica.SendAmount(ctx, req)
	if err != nil {
		return errors.Wrap(err, "send amount")
	}
	return c.settle("send amount", next, resp.Nonce, resp.Status)
}

// Receive accepts or rejects a pending transfer from src to this account.
func (c *Client) Receive(ctx context.Context, src signature.PublicKey, amount decimal.Decimal, accept bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := c.nextNonce(ctx)
	if err != nil {
		return err
	}
	req := api.ReceiveAmountRequest{
		Transaction: api.Transaction{
			Source:      src.Bytes(),
			Destination: c.key.Public.Bytes(),
			Amount:      amount.String(),
		},
		Accept: accept,
		Nonce:  next,
	}
	req.Sign(c.key)
	resp, err := c.replica.ReceiveAmount(ctx, req)
	if err != nil {
		return errors.Wrap(err, "receive amount")
	}
	return c.settle("receive amount", next, resp.Nonce, resp.Status)
}

// Check returns the balance and pending transfers of any account.
func (c *Client) Check(ctx context.Context, account signature.PublicKey) (Account, error) {
	resp, err := c.replica.CheckAccount(ctx, api.CheckAccountRequest{PublicKey: account.Bytes()})
	if err != nil {
		return Account{}, errors.Wrap(err, "check account")
	}
	if err := rejected("check account", resp.Status); err != nil {
		return Account{}, err
	}
	balance, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return Account{}, errors.Wrapf(ErrDistrust, "check account: balance %q", resp.Balance)
	}
	pending, err := transfers(resp.Pending)
	if err != nil {
		return Account{}, errors.Wrap(err, "check account")
	}
	return Account{Balance: balance, Version: resp.Version, Pending: pending}, nil
}

// Audit returns the settled history of any account.
func (c *Client) Audit(ctx context.Context, account signature.PublicKey) ([]Transfer, error) {
	resp, err := c.replica.Audit(ctx, api.AuditRequest{PublicKey: account.Bytes()})
	if err != nil {
		return nil, errors.Wrap(err, "audit")
	}
	if err := rejected("audit", resp.Status); err != nil {
		return nil, err
	}
	history, err := transfers(resp.History)
	return history, errors.Wrap(err, "audit")
}

func transfers(txs []api.Transaction) ([]Transfer, error) {
	out := make([]Transfer, 0, len(txs))
	for _, tx := range txs {
		src, err := signature.ParsePublicKey(tx.Source)
		if err != nil {
			return nil, errors.Wrap(ErrDistrust, err.Error())
		}
		dst, err := signature.ParsePublicKey(tx.Destination)
		if err != nil {
			return nil, errors.Wrap(ErrDistrust, err.Error())
		}
		amount, err := ledger.ParseAmount(tx.Amount)
		if err != nil {
			return nil, errors.Wrap(ErrDistrust, err.Error())
		}
		out = append(out, Transfer{Source: src, Destination: dst, Amount: amount})
	}
	return out, nil
}
