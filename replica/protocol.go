package replica

import (
	"context"

	"github.com/pkg/errors"

	"github.com/luca-patrignani/byzantine-bank/api"
	"github.com/luca-patrignani/byzantine-bank/domain/bank"
	"github.com/luca-patrignani/byzantine-bank/ledger"
	"github.com/luca-patrignani/byzantine-bank/logging"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

// OpenAccount creates an account for the key in req, provided req is signed
// by that key over (key, challenge). The challenge becomes the account's
// first sequence nonce.
func (r *Replica) OpenAccount(_ context.Context, req api.OpenAccountRequest) (api.OpenAccountResponse, error) {
	r.admit(OpOpenAccount, req.PublicKey)
	resp := api.OpenAccountResponse{Challenge: req.Challenge}
	sign := func(status api.Status) (api.OpenAccountResponse, error) {
		resp.Status = r.done(OpOpenAccount, status)
		resp.Sign(r.key)
		return resp, nil
	}

	key, err := signature.ParsePublicKey(req.PublicKey)
	if err != nil {
		return sign(api.StatusKeyFailure)
	}
	if !signature.Verify(key, req.Signature, api.OpenAccountPayload(req.PublicKey, req.Challenge)...) {
		return sign(api.StatusInvalidSignature)
	}

	// the challenge seeds the sequence so that every replica agrees on it
	nonce := req.Challenge
	err = r.bank.Create(key, nonce, func() error {
		return r.store.Append(ledger.CreateRecord(key, nonce))
	})
	switch {
	case errors.Is(err, bank.ErrAccountExists):
		return sign(api.StatusAlreadyExisted)
	case err != nil:
		return api.OpenAccountResponse{}, r.fault(OpOpenAccount, err)
	}
	r.log.With("account", key).Infof("account opened")
	return sign(api.StatusSuccess)
}

// NonceNegotiation tells the owner of an account its current sequence nonce.
// The answer is bound to the caller's challenge so it cannot be replayed.
func (r *Replica) NonceNegotiation(_ context.Context, req api.NonceRequest) (api.NonceResponse, error) {
	r.admit(OpNonce, req.PublicKey)
	resp := api.NonceResponse{Challenge: req.Challenge}
	sign := func(status api.Status) (api.NonceResponse, error) {
		resp.Status = r.done(OpNonce, status)
		resp.Sign(r.key)
		return resp, nil
	}

	key, err := signature.ParsePublicKey(req.PublicKey)
	if err != nil {
		return sign(api.StatusInvalidKeyFormat)
	}
	var current signature.Nonce
	if !r.bank.View(key, func(a *bank.Account) { current = a.Nonce }) {
		return sign(api.StatusInvalidKey)
	}
	if !signature.Verify(key, req.Signature, api.NonceRequestPayload(req.Challenge, req.PublicKey)...) {
		return sign(api.StatusInvalidSignature)
	}
	resp.Nonce = current
	return sign(api.StatusSuccess)
}

// SendAmount debits the source and queues the transfer at the destination.
// The nonce is checked before the signature: a stale nonce is WRONG_NONCE
// whatever the signature.
func (r *Replica) SendAmount(_ context.Context, req api.SendAmountRequest) (api.SendAmountResponse, error) {
	r.admit(OpSend, req.Transaction.Source)
	resp := api.SendAmountResponse{Nonce: req.Nonce}
	sign := func(status api.Status) (api.SendAmountResponse, error) {
		resp.Status = r.done(OpSend, status)
		resp.Sign(r.key)
		return resp, nil
	}

	tx, status := parseTransaction(req.Transaction)
	if !status.OK() {
		return sign(status)
	}
	if !r.bank.Exists(tx.Source) {
		return sign(api.StatusSourceInvalid)
	}
	if tx.Source.Equal(tx.Destination) || !r.bank.Exists(tx.Destination) {
		return sign(api.StatusDestinationInvalid)
	}

	locked, err := r.bank.Acquire(tx.Source, tx.Destination)
	if err != nil {
		return sign(api.StatusDestinationInvalid)
	}
	defer locked.Release()

	if req.Nonce != locked.Account(tx.Source).Nonce.Next() {
		return sign(api.StatusWrongNonce)
	}
	if !signature.Verify(tx.Source, req.Signature, api.SendPayload(req.Transaction, req.Nonce)...) {
		return sign(api.StatusInvalidSignature)
	}
	e := bank.Entry{Transaction: tx, Nonce: req.Nonce, Signature: req.Signature}
	if err := locked.CheckSend(e); err != nil {
		return sign(statusOf(err))
	}

	rec := ledger.Record{
		Kind:        ledger.KindAdd,
		Source:      tx.Source,
		Destination: tx.Destination,
		Amount:      tx.Amount,
		Nonce:       req.Nonce,
		Signature:   req.Signature,
	}
	if err := r.store.Append(rec); err != nil {
		return api.SendAmountResponse{}, r.fault(OpSend, err)
	}
	if err := locked.Send(e); err != nil {
		// CheckSend passed under the same locks
		return api.SendAmountResponse{}, r.fault(OpSend, err)
	}
	r.log.With("tx", tx).Infof("transfer queued")
	return sign(api.StatusSuccess)
}

// ReceiveAmount settles a pending transfer on behalf of its destination,
// accepting or rejecting it.
func (r *Replica) ReceiveAmount(_ context.Context, req api.ReceiveAmountRequest) (api.ReceiveAmountResponse, error) {
	r.admit(OpReceive, req.Transaction.Destination)
	resp := api.ReceiveAmountResponse{Nonce: req.Nonce}
	sign := func(status api.Status) (api.ReceiveAmountResponse, error) {
		resp.Status = r.done(OpReceive, status)
		resp.Sign(r.key)
		return resp, nil
	}

	tx, status := parseTransaction(req.Transaction)
	if !status.OK() {
		return sign(status)
	}
	if tx.Source.Equal(tx.Destination) || !r.bank.Exists(tx.Source) || !r.bank.Exists(tx.Destination) {
		return sign(api.StatusInvalidKey)
	}

	locked, err := r.bank.Acquire(tx.Source, tx.Destination)
	if err != nil {
		return sign(api.StatusInvalidKey)
	}
	defer locked.Release()

	if req.Nonce != locked.Account(tx.Destination).Nonce.Next() {
		return sign(api.StatusWrongNonce)
	}
	if !signature.Verify(tx.Destination, req.Signature, api.ReceivePayload(req.Transaction, req.Accept, req.Nonce)...) {
		return sign(api.StatusInvalidSignature)
	}
	e := bank.Entry{Transaction: tx, Nonce: req.Nonce, Signature: req.Signature}
	if err := locked.CheckSettle(e); err != nil {
		return sign(statusOf(err))
	}

	rec := ledger.Record{
		Kind:        ledger.KindReject,
		Source:      tx.Source,
		Destination: tx.Destination,
		Amount:      tx.Amount,
		Nonce:       req.Nonce,
	}
	settle := locked.Reject
	if req.Accept {
		rec.Kind = ledger.KindAccept
		rec.Signature = req.Signature
		settle = locked.Accept
	}
	if err := r.store.Append(rec); err != nil {
		return api.ReceiveAmountResponse{}, r.fault(OpReceive, err)
	}
	if err := settle(e); err != nil {
		return api.ReceiveAmountResponse{}, r.fault(OpReceive, err)
	}
	r.log.WithFields(logging.Fields{"tx": tx, "accept": req.Accept}).Infof("transfer settled")
	return sign(api.StatusSuccess)
}

// CheckAccount returns the balance and pending queue of an account. It is
// unauthenticated.
func (r *Replica) CheckAccount(_ context.Context, req api.CheckAccountRequest) (api.CheckAccountResponse, error) {
	var resp api.CheckAccountResponse
	status := api.StatusSuccess
	if key, err := signature.ParsePublicKey(req.PublicKey); err != nil {
		status = api.StatusInvalidKeyFormat
	} else if !r.bank.View(key, func(a *bank.Account) {
		resp.Version = a.Version
		resp.Balance = a.Balance.String()
		resp.Pending = wireEntries(a.Pending)
	}) {
		status = api.StatusInvalidKey
	}
	resp.Status = r.done(OpCheck, status)
	resp.Sign(r.key)
	return resp, nil
}

// Audit returns the settled history of an account.
func (r *Replica) Audit(_ context.Context, req api.AuditRequest) (api.AuditResponse, error) {
	var resp api.AuditResponse
	status := api.StatusSuccess
	if key, err := signature.ParsePublicKey(req.PublicKey); err != nil {
		status = api.StatusInvalidKeyFormat
	} else if !r.bank.View(key, func(a *bank.Account) {
		resp.Version = a.Version
		resp.History = wireEntries(a.History)
	}) {
		status = api.StatusInvalidKey
	}
	resp.Status = r.done(OpAudit, status)
	resp.Sign(r.key)
	return resp, nil
}

func statusOf(err error) api.Status {
	switch {
	case errors.Is(err, bank.ErrInsufficientBalance):
		return api.StatusNotEnoughBalance
	case errors.Is(err, bank.ErrWrongNonce):
		return api.StatusWrongNonce
	case errors.Is(err, bank.ErrNoSuchTransaction):
		return api.StatusNoSuchTransaction
	case errors.Is(err, bank.ErrInvalidAmount):
		return api.StatusInvalidNumberFormat
	case errors.Is(err, bank.ErrSameAccount):
		return api.StatusDestinationInvalid
	}
	return api.StatusInvalidKey
}
